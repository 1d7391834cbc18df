// Package memory provides an in-memory storage backend. Used by tests and
// the simulate command; nothing survives process exit.
package memory

import (
	"sort"
	"sync"

	"github.com/biomapp/derive/internal/model"
	"github.com/biomapp/derive/internal/storage"
)

// Backend stores sessions, recordings, and audio payloads in maps.
type Backend struct {
	sessions   map[string]*model.WalkSession
	recordings map[string]*model.Recording
	audio      map[string][]byte

	mu sync.RWMutex
}

// New creates an empty memory backend.
func New() *Backend {
	return &Backend{
		sessions:   make(map[string]*model.WalkSession),
		recordings: make(map[string]*model.Recording),
		audio:      make(map[string][]byte),
	}
}

// Init initializes the backend.
func (b *Backend) Init() error {
	return nil
}

// Close cleans up resources.
func (b *Backend) Close() error {
	return nil
}

// SaveSession stores a copy of the session, inserting or replacing by ID.
func (b *Backend) SaveSession(s *model.WalkSession) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	cp := cloneSession(s)
	b.sessions[s.SessionID] = cp
	return nil
}

// GetSession returns a copy of the stored session.
func (b *Backend) GetSession(sessionID string) (*model.WalkSession, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	s, ok := b.sessions[sessionID]
	if !ok {
		return nil, storage.NotFoundError("session", sessionID)
	}
	return cloneSession(s), nil
}

// DeleteSession removes the session entirely.
func (b *Backend) DeleteSession(sessionID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.sessions[sessionID]; !ok {
		return storage.NotFoundError("session", sessionID)
	}
	delete(b.sessions, sessionID)
	return nil
}

// ListSessions returns non-deleted sessions ordered by start time, newest first.
func (b *Backend) ListSessions() ([]*model.WalkSession, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]*model.WalkSession, 0, len(b.sessions))
	for _, s := range b.sessions {
		if s.Status == model.StatusDeleted {
			continue
		}
		out = append(out, cloneSession(s))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime > out[j].StartTime })
	return out, nil
}

// ActiveSessions returns sessions with status active, newest first.
func (b *Backend) ActiveSessions() ([]*model.WalkSession, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var out []*model.WalkSession
	for _, s := range b.sessions {
		if s.Status == model.StatusActive {
			out = append(out, cloneSession(s))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime > out[j].StartTime })
	return out, nil
}

// SaveRecording stores a copy of the recording metadata.
func (b *Backend) SaveRecording(r *model.Recording) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	cp := *r
	b.recordings[r.UniqueID] = &cp
	return nil
}

// GetRecording returns a copy of the stored recording.
func (b *Backend) GetRecording(uniqueID string) (*model.Recording, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	r, ok := b.recordings[uniqueID]
	if !ok {
		return nil, storage.NotFoundError("recording", uniqueID)
	}
	cp := *r
	return &cp, nil
}

// DeleteRecording removes the recording and any stored audio.
func (b *Backend) DeleteRecording(uniqueID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	r, ok := b.recordings[uniqueID]
	if !ok {
		return storage.NotFoundError("recording", uniqueID)
	}
	delete(b.audio, r.Filename)
	delete(b.recordings, uniqueID)
	return nil
}

// ListRecordings returns all recordings ordered by timestamp, newest first.
func (b *Backend) ListRecordings() ([]*model.Recording, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]*model.Recording, 0, len(b.recordings))
	for _, r := range b.recordings {
		cp := *r
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp > out[j].Timestamp })
	return out, nil
}

// SaveAudio stores an audio payload keyed by filename.
func (b *Backend) SaveAudio(filename string, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	cp := make([]byte, len(data))
	copy(cp, data)
	b.audio[filename] = cp
	return nil
}

// GetAudio returns a copy of the stored payload.
func (b *Backend) GetAudio(filename string) ([]byte, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	data, ok := b.audio[filename]
	if !ok {
		return nil, storage.NotFoundError("audio", filename)
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	return cp, nil
}

func cloneSession(s *model.WalkSession) *model.WalkSession {
	cp := *s
	cp.Breadcrumbs = append([]model.Breadcrumb(nil), s.Breadcrumbs...)
	cp.RecordingIDs = append([]string(nil), s.RecordingIDs...)
	if s.EndTime != nil {
		v := *s.EndTime
		cp.EndTime = &v
	}
	if s.Summary != nil {
		sum := *s.Summary
		cp.Summary = &sum
	}
	return &cp
}

var _ storage.Store = (*Backend)(nil)
