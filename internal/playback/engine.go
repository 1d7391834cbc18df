package playback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/biomapp/derive/internal/config"
	"github.com/biomapp/derive/internal/geo"
	"github.com/biomapp/derive/internal/model"
	"github.com/biomapp/derive/internal/storage"
	"github.com/biomapp/derive/internal/telemetry"
)

// Mode identifies which playback style currently owns the audio output.
type Mode string

const (
	ModeNone         Mode = ""
	ModeSingle       Mode = "single"
	ModeNearby       Mode = "nearby"
	ModeConcatenated Mode = "concatenated"
	ModeJamm         Mode = "jamm"
)

// ErrNoRecording is returned by PlayRecording when the recording or its
// audio payload is unavailable.
var ErrNoRecording = errors.New("recording not playable")

// panSweepStep is how often a jamm voice's pan position is updated.
const panSweepStep = 50 * time.Millisecond

// Options hold the playback tuning knobs.
type Options struct {
	NearbyRadiusMeters   float64
	ProximityNearMeters  float64
	ProximityFarMeters   float64
	ProximityFloorVolume float64
	OverlapRadiusMeters  float64
	ConcatGap            time.Duration
	DefaultVolume        float64
}

// OptionsFromConfig reads the playback options from the loaded configuration.
func OptionsFromConfig() Options {
	return Options{
		NearbyRadiusMeters:   config.GetFloat("playback.nearbyRadiusMeters"),
		ProximityNearMeters:  config.GetFloat("playback.proximityNearMeters"),
		ProximityFarMeters:   config.GetFloat("playback.proximityFarMeters"),
		ProximityFloorVolume: config.GetFloat("playback.proximityFloorVolume"),
		OverlapRadiusMeters:  config.GetFloat("playback.overlapRadiusMeters"),
		ConcatGap:            config.GetDurationMs("playback.concatGapMs"),
		DefaultVolume:        config.GetFloat("playback.defaultVolume"),
	}
}

// Dependencies wires the engine to the audio output and recording storage.
// Telemetry may be nil.
type Dependencies struct {
	Player    Player
	Store     storage.RecordingStore
	Logger    *slog.Logger
	Telemetry *telemetry.Recorder
}

// State is a snapshot of the engine for UIs and diagnostics.
type State struct {
	IsPlaying   bool
	Mode        Mode
	Volume      float64
	Muted       bool
	ActiveCount int
}

// A voice is one sounding stream. Proximity-volumed voices keep their fixed
// gain across volume changes; the rest follow the engine volume scaled by
// their share.
type voice struct {
	stream    Stream
	fixed     bool
	fixedGain float64
	share     float64
}

// Engine drives recording playback. The four modes are mutually exclusive:
// starting any of them stops whatever is already sounding.
type Engine struct {
	deps Dependencies
	opts Options

	mu         sync.Mutex
	playing    bool
	mode       Mode
	volume     float64
	muted      bool
	generation uint64
	voices     []*voice
}

// NewEngine creates a stopped engine at the configured default volume.
func NewEngine(deps Dependencies, opts Options) *Engine {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	vol := opts.DefaultVolume
	if vol <= 0 || vol > 1 {
		vol = 1
	}
	return &Engine{deps: deps, opts: opts, volume: vol}
}

// PlayRecording plays a single recording once at the engine volume.
func (e *Engine) PlayRecording(rec *model.Recording) error {
	if rec == nil {
		return ErrNoRecording
	}
	stream, err := e.loadStream(rec)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNoRecording, err)
	}

	e.mu.Lock()
	e.stopAllLocked()
	e.generation++
	gen := e.generation
	e.playing = true
	e.mode = ModeSingle
	v := &voice{stream: stream, share: 1}
	e.voices = append(e.voices, v)
	gain := e.gainLocked(v)
	e.mu.Unlock()

	stream.SetGain(gain)
	if err := stream.Play(); err != nil {
		e.finish(gen)
		return fmt.Errorf("play %s: %w", rec.UniqueID, err)
	}
	go func() {
		<-stream.Done()
		e.finish(gen)
	}()

	e.deps.Logger.Debug("playing recording", "id", rec.UniqueID)
	e.deps.Telemetry.PlaybackStarted(context.Background(), string(ModeSingle))
	return nil
}

// PlayNearby starts the ambient soundscape mix: every recording within the
// nearby radius of the listener plays simultaneously, looped, volumed by the
// proximity curve and panned by its bearing from the listener. Returns the
// number of voices started; zero means nothing qualified or nothing could be
// loaded.
func (e *Engine) PlayNearby(recs []*model.Recording, listener model.LatLng) int {
	type spatial struct {
		rec  *model.Recording
		gain float64
		pan  float64
	}
	var mix []spatial
	for _, rec := range recs {
		if rec.Location == nil {
			continue
		}
		loc := rec.Location.LatLng()
		dist := geo.DistanceMeters(listener, loc)
		if dist > e.opts.NearbyRadiusMeters {
			continue
		}
		mix = append(mix, spatial{
			rec:  rec,
			gain: e.ProximityVolume(dist),
			pan:  geo.BearingToStereoPan(geo.BearingDegrees(listener, loc)),
		})
	}

	var started []*voice
	var pans []float64
	for _, sp := range mix {
		stream, err := e.loadStream(sp.rec)
		if err != nil {
			e.deps.Logger.Warn("skipping recording", "id", sp.rec.UniqueID, "error", err)
			continue
		}
		started = append(started, &voice{stream: stream, fixed: true, fixedGain: sp.gain})
		pans = append(pans, sp.pan)
	}
	if len(started) == 0 {
		return 0
	}

	e.mu.Lock()
	e.stopAllLocked()
	e.generation++
	e.playing = true
	e.mode = ModeNearby
	e.voices = append(e.voices, started...)
	gains := make([]float64, len(started))
	for i, v := range started {
		gains[i] = e.gainLocked(v)
	}
	e.mu.Unlock()

	for i, v := range started {
		v.stream.SetGain(gains[i])
		v.stream.SetPan(pans[i])
		if err := v.stream.Loop(); err != nil {
			e.deps.Logger.Warn("nearby voice failed", "error", err)
		}
	}
	e.deps.Telemetry.PlaybackStarted(context.Background(), string(ModeNearby))
	return len(started)
}

// PlayConcatenated plays the recordings strictly one at a time in timestamp
// order, with a short gap between tracks. Unplayable recordings are skipped.
// Returns the number of recordings queued; the sequence runs in the
// background until it completes or is stopped.
func (e *Engine) PlayConcatenated(recs []*model.Recording) int {
	playable := e.playableChronological(recs)
	if len(playable) == 0 {
		return 0
	}

	e.mu.Lock()
	e.stopAllLocked()
	e.generation++
	gen := e.generation
	e.playing = true
	e.mode = ModeConcatenated
	e.mu.Unlock()

	go e.runSequence(gen, playable)
	e.deps.Telemetry.PlaybackStarted(context.Background(), string(ModeConcatenated))
	return len(playable)
}

// playableChronological filters to recordings whose audio payload exists and
// sorts them oldest first.
func (e *Engine) playableChronological(recs []*model.Recording) []*model.Recording {
	var out []*model.Recording
	for _, rec := range recs {
		if rec == nil {
			continue
		}
		if _, err := e.deps.Store.GetAudio(rec.Filename); err != nil {
			e.deps.Logger.Warn("skipping recording", "id", rec.UniqueID, "error", err)
			continue
		}
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CapturedAt().Before(out[j].CapturedAt())
	})
	return out
}

func (e *Engine) runSequence(gen uint64, recs []*model.Recording) {
	defer e.finish(gen)
	for i, rec := range recs {
		if !e.isCurrent(gen) {
			return
		}
		stream, err := e.loadStream(rec)
		if err != nil {
			e.deps.Logger.Warn("skipping recording", "id", rec.UniqueID, "error", err)
			continue
		}

		e.mu.Lock()
		if gen != e.generation {
			e.mu.Unlock()
			stream.Stop()
			return
		}
		v := &voice{stream: stream, share: 1}
		e.voices = []*voice{v}
		gain := e.gainLocked(v)
		e.mu.Unlock()

		stream.SetGain(gain)
		if err := stream.Play(); err != nil {
			e.deps.Logger.Warn("skipping recording", "id", rec.UniqueID, "error", err)
			continue
		}
		<-stream.Done()

		if i < len(recs)-1 && e.opts.ConcatGap > 0 {
			time.Sleep(e.opts.ConcatGap)
		}
	}
}

// PlayJamm plays all given recordings simultaneously, non-looped, each with
// a stereo pan that sweeps across the track's duration — even voices sweep
// left to right, odd voices right to left. The first track to end naturally
// ends the whole jam. Returns the number of voices started.
func (e *Engine) PlayJamm(recs []*model.Recording) int {
	type jammVoice struct {
		v        *voice
		reversed bool
		duration time.Duration
	}
	var started []jammVoice
	for _, rec := range recs {
		if rec == nil {
			continue
		}
		stream, err := e.loadStream(rec)
		if err != nil {
			e.deps.Logger.Warn("skipping recording", "id", rec.UniqueID, "error", err)
			continue
		}
		started = append(started, jammVoice{
			v:        &voice{stream: stream},
			reversed: len(started)%2 == 1,
			duration: time.Duration(rec.DurationSeconds * float64(time.Second)),
		})
	}
	if len(started) == 0 {
		return 0
	}

	e.mu.Lock()
	e.stopAllLocked()
	e.generation++
	gen := e.generation
	e.playing = true
	e.mode = ModeJamm
	share := 1.0 / float64(len(started))
	gains := make([]float64, len(started))
	for i, jv := range started {
		jv.v.share = share
		e.voices = append(e.voices, jv.v)
		gains[i] = e.gainLocked(jv.v)
	}
	e.mu.Unlock()

	for i, jv := range started {
		jv.v.stream.SetGain(gains[i])
		startPan := -1.0
		if jv.reversed {
			startPan = 1.0
		}
		jv.v.stream.SetPan(startPan)
		if err := jv.v.stream.Play(); err != nil {
			e.deps.Logger.Warn("jamm voice failed", "error", err)
			continue
		}
		go e.sweepPan(gen, jv.v.stream, jv.duration, jv.reversed)
	}
	e.deps.Telemetry.PlaybackStarted(context.Background(), string(ModeJamm))
	return len(started)
}

// sweepPan animates one jamm voice's pan across its duration and enforces
// first-finisher-ends-all.
func (e *Engine) sweepPan(gen uint64, stream Stream, duration time.Duration, reversed bool) {
	from, to := -1.0, 1.0
	if reversed {
		from, to = 1.0, -1.0
	}
	start := time.Now()
	ticker := time.NewTicker(panSweepStep)
	defer ticker.Stop()

	for {
		select {
		case <-stream.Done():
			// Whether natural or stopped, the jam is over.
			e.finish(gen)
			return
		case <-ticker.C:
			if !e.isCurrent(gen) {
				return
			}
			if duration <= 0 {
				continue
			}
			frac := float64(time.Since(start)) / float64(duration)
			if frac > 1 {
				frac = 1
			}
			stream.SetPan(from + (to-from)*frac)
		}
	}
}

// StopAll halts every active stream. The playing flag is cleared before the
// call returns. Safe to call when nothing is playing.
func (e *Engine) StopAll() {
	e.mu.Lock()
	e.stopAllLocked()
	e.mu.Unlock()
}

func (e *Engine) stopAllLocked() {
	e.generation++
	for _, v := range e.voices {
		v.stream.Stop()
	}
	e.voices = nil
	e.playing = false
	e.mode = ModeNone
}

// SetVolume sets the engine volume, clamped to 0..1. Proximity-volumed
// voices keep their spatial gain; everything else follows.
func (e *Engine) SetVolume(vol float64) {
	vol = math.Max(0, math.Min(1, vol))
	e.mu.Lock()
	e.volume = vol
	e.applyGainLocked()
	e.mu.Unlock()
}

// ToggleMute flips the mute state and returns the new value. Mute silences
// every voice, proximity-volumed ones included.
func (e *Engine) ToggleMute() bool {
	e.mu.Lock()
	e.muted = !e.muted
	e.applyGainLocked()
	muted := e.muted
	e.mu.Unlock()
	return muted
}

func (e *Engine) applyGainLocked() {
	for _, v := range e.voices {
		v.stream.SetGain(e.gainLocked(v))
	}
}

func (e *Engine) gainLocked(v *voice) float64 {
	if e.muted {
		return 0
	}
	if v.fixed {
		return v.fixedGain
	}
	return e.volume * v.share
}

// Volume returns the engine volume.
func (e *Engine) Volume() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.volume
}

// State reports the current playback snapshot.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return State{
		IsPlaying:   e.playing,
		Mode:        e.mode,
		Volume:      e.volume,
		Muted:       e.muted,
		ActiveCount: len(e.voices),
	}
}

// Close stops playback.
func (e *Engine) Close() {
	e.StopAll()
}

// ProximityVolume maps the distance to a recording onto a gain: full volume
// inside the near radius, the floor beyond the far radius, and exponential
// falloff in between.
func (e *Engine) ProximityVolume(distanceMeters float64) float64 {
	near, far, floor := e.opts.ProximityNearMeters, e.opts.ProximityFarMeters, e.opts.ProximityFloorVolume
	if distanceMeters <= near {
		return 1.0
	}
	if distanceMeters >= far {
		return floor
	}
	return floor + (1.0-floor)*math.Exp(-(distanceMeters-near)/3.0)
}

// FindOverlapping returns the other recordings located within the overlap
// radius of the given one. Recordings without a location never overlap.
func (e *Engine) FindOverlapping(rec *model.Recording, all []*model.Recording) []*model.Recording {
	if rec == nil || rec.Location == nil {
		return nil
	}
	center := rec.Location.LatLng()
	var out []*model.Recording
	for _, other := range all {
		if other == nil || other.UniqueID == rec.UniqueID || other.Location == nil {
			continue
		}
		if geo.DistanceMeters(center, other.Location.LatLng()) <= e.opts.OverlapRadiusMeters {
			out = append(out, other)
		}
	}
	return out
}

// Nearby filters recordings to those with a location inside the nearby
// radius of the listener.
func (e *Engine) Nearby(recs []*model.Recording, listener model.LatLng) []*model.Recording {
	var out []*model.Recording
	for _, rec := range recs {
		if rec == nil || rec.Location == nil {
			continue
		}
		if geo.DistanceMeters(listener, rec.Location.LatLng()) <= e.opts.NearbyRadiusMeters {
			out = append(out, rec)
		}
	}
	return out
}

func (e *Engine) loadStream(rec *model.Recording) (Stream, error) {
	data, err := e.deps.Store.GetAudio(rec.Filename)
	if err != nil {
		return nil, fmt.Errorf("fetch audio %s: %w", rec.Filename, err)
	}
	stream, err := e.deps.Player.Load(data, rec.MimeType)
	if err != nil {
		return nil, fmt.Errorf("decode audio %s: %w", rec.Filename, err)
	}
	return stream, nil
}

// finish clears playback state if the given generation is still current.
func (e *Engine) finish(gen uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if gen != e.generation {
		return
	}
	for _, v := range e.voices {
		v.stream.Stop()
	}
	e.voices = nil
	e.playing = false
	e.mode = ModeNone
}

func (e *Engine) isCurrent(gen uint64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return gen == e.generation
}
