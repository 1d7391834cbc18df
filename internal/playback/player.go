package playback

// Player decodes audio payloads into playable streams. Implementations wrap
// a platform audio output; tests use fakes.
type Player interface {
	// Load prepares a stream from an encoded payload.
	Load(data []byte, mimeType string) (Stream, error)
}

// Stream is one playable piece of audio. Gain and pan may be adjusted while
// playing.
type Stream interface {
	// Play starts one-shot playback.
	Play() error

	// Loop starts playback that repeats until Stop.
	Loop() error

	// SetGain sets the output gain, 0..1.
	SetGain(gain float64)

	// SetPan sets stereo position, -1 (left) .. +1 (right).
	SetPan(pan float64)

	// Stop halts playback and releases the stream. Idempotent.
	Stop()

	// Done is closed when playback finishes or is stopped.
	Done() <-chan struct{}
}
