// Package storage defines the persistence interfaces backing walk sessions
// and recordings, with in-memory and gorm implementations.
package storage

import (
	"errors"
	"fmt"

	"github.com/biomapp/derive/internal/model"
)

// ErrNotFound is returned when a session or recording does not exist.
var ErrNotFound = errors.New("not found")

// SessionStore persists walk sessions.
type SessionStore interface {
	// Lifecycle
	Init() error
	Close() error

	SaveSession(s *model.WalkSession) error
	GetSession(sessionID string) (*model.WalkSession, error)
	DeleteSession(sessionID string) error

	// ListSessions returns sessions newest-first. Sessions with status
	// deleted are excluded.
	ListSessions() ([]*model.WalkSession, error)

	// ActiveSessions returns sessions whose status is active.
	ActiveSessions() ([]*model.WalkSession, error)
}

// RecordingStore persists recording metadata and audio payloads.
type RecordingStore interface {
	Init() error
	Close() error

	SaveRecording(r *model.Recording) error
	GetRecording(uniqueID string) (*model.Recording, error)
	DeleteRecording(uniqueID string) error
	ListRecordings() ([]*model.Recording, error)

	// Audio payloads are stored separately from metadata, keyed by the
	// recording's filename.
	SaveAudio(filename string, data []byte) error
	GetAudio(filename string) ([]byte, error)
}

// Store combines both stores. Backends implement this so a single handle
// can be wired through the registry and packager.
type Store interface {
	SessionStore
	RecordingStore
}

// NotFoundError wraps ErrNotFound with the missing key.
func NotFoundError(kind, id string) error {
	return fmt.Errorf("%s %q: %w", kind, id, ErrNotFound)
}
