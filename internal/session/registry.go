// Package session manages walk session lifecycle: at most one active
// session per device, periodic breadcrumb persistence while tracking, and
// recovery of sessions left active by a crash.
package session

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/biomapp/derive/internal/config"
	"github.com/biomapp/derive/internal/geo"
	"github.com/biomapp/derive/internal/identity"
	"github.com/biomapp/derive/internal/model"
	"github.com/biomapp/derive/internal/storage"
	"github.com/biomapp/derive/internal/tracker"
	"github.com/biomapp/derive/internal/util"
)

var (
	// ErrSessionActive is returned when starting a session while another
	// one is still active.
	ErrSessionActive = errors.New("a walk session is already active")

	// ErrSessionNotCompleted is returned when marking a session exported
	// before it has been completed.
	ErrSessionNotCompleted = errors.New("session is not completed")
)

// StaleSessionTitle is assigned to recovered sessions that were never
// given a title.
const StaleSessionTitle = "Deriva (sin finalizar)"

// Options holds the registry tunables.
type Options struct {
	PersistInterval         time.Duration
	PeriodicToleranceMeters float64
	FinalToleranceMeters    float64
}

// OptionsFromConfig reads the session tunables from configuration.
func OptionsFromConfig() Options {
	return Options{
		PersistInterval:         config.GetDurationMs("session.persistIntervalMs"),
		PeriodicToleranceMeters: config.GetFloat("session.periodicToleranceMeters"),
		FinalToleranceMeters:    config.GetFloat("session.finalToleranceMeters"),
	}
}

// Dependencies holds what the registry needs to operate.
type Dependencies struct {
	Store    storage.Store
	Tracker  *tracker.Tracker
	Identity identity.Provider
	Logger   *slog.Logger

	// Now is the clock, defaulting to time.Now.
	Now func() time.Time
}

// Updates carries the caller-editable session fields. Nil fields are left
// unchanged; session ID and status are never editable this way.
type Updates struct {
	Title       *string
	Description *string
}

// Registry is the session lifecycle manager.
type Registry struct {
	opts     Options
	store    storage.Store
	tracker  *tracker.Tracker
	identity identity.Provider
	log      *slog.Logger
	now      func() time.Time

	mu       sync.Mutex
	stopChan chan struct{}
	doneChan chan struct{}
}

// NewRegistry creates a registry.
func NewRegistry(opts Options, deps Dependencies) *Registry {
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &Registry{
		opts:     opts,
		store:    deps.Store,
		tracker:  deps.Tracker,
		identity: deps.Identity,
		log:      log,
		now:      now,
	}
}

// RecoverStaleSessions finalizes sessions left active by a previous run.
// Called once at startup, before any new session starts.
func (r *Registry) RecoverStaleSessions() ([]*model.WalkSession, error) {
	active, err := r.store.ActiveSessions()
	if err != nil {
		return nil, err
	}

	var recovered []*model.WalkSession
	for _, s := range active {
		r.log.Warn("Recovering stale session", "session", s.SessionID)
		if s.Title == "" {
			s.Title = StaleSessionTitle
		}
		if err := r.store.SaveSession(s); err != nil {
			return recovered, err
		}
		ended, err := r.EndSession(s.SessionID)
		if err != nil {
			return recovered, err
		}
		recovered = append(recovered, ended)
	}
	return recovered, nil
}

// StartSession creates and persists a new active session. Only one session
// may be active at a time.
func (r *Registry) StartSession(title string) (*model.WalkSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	active, err := r.store.ActiveSessions()
	if err != nil {
		return nil, err
	}
	if len(active) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrSessionActive, active[0].SessionID)
	}

	alias := "anon"
	deviceID := ""
	if r.identity != nil {
		if a := r.identity.Alias(); a != "" {
			alias = a
		}
		deviceID = r.identity.DeviceID()
	}

	created := r.now()
	now := created.UnixMilli()
	s := &model.WalkSession{
		SessionID:    util.SessionID(created),
		UserAlias:    alias,
		DeviceID:     deviceID,
		Title:        title,
		StartTime:    now,
		Status:       model.StatusActive,
		Breadcrumbs:  []model.Breadcrumb{},
		RecordingIDs: []string{},
	}
	if err := r.store.SaveSession(s); err != nil {
		return nil, err
	}

	r.startPersistenceLocked(s.SessionID)
	r.log.Info("Walk session started", "session", s.SessionID, "alias", alias)
	return s, nil
}

// StartTracking begins breadcrumb capture for the active session. No-op if
// no session is active or tracking already runs.
func (r *Registry) StartTracking(initial *model.Position) error {
	active, err := r.ActiveSession()
	if err != nil {
		return err
	}
	if active == nil || r.tracker == nil {
		return nil
	}
	if r.tracker.IsTracking() {
		return nil
	}
	return r.tracker.Start(active.SessionID, initial)
}

// EndSession completes an active session: tracking stops, the trail is
// simplified at the final tolerance, and the summary is computed.
func (r *Registry) EndSession(sessionID string) (*model.WalkSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, err := r.store.GetSession(sessionID)
	if err != nil {
		return nil, err
	}
	if s.Status != model.StatusActive {
		return nil, fmt.Errorf("session %q is not active", sessionID)
	}

	r.stopPersistenceLocked()

	now := r.now().UnixMilli()
	s.EndTime = &now
	s.Status = model.StatusCompleted

	if r.tracker != nil && r.tracker.IsTracking() && r.tracker.SessionID() == sessionID {
		res, err := r.tracker.Stop()
		if err != nil {
			return nil, err
		}
		compressed := geo.SimplifyBreadcrumbs(res.Breadcrumbs, r.opts.FinalToleranceMeters)
		s.Breadcrumbs = compressed
		sum := res.Summary
		sum.BreadcrumbCount = len(compressed)
		sum.RawBreadcrumbCount = len(res.Breadcrumbs)
		r.attachRecordingTotals(s, sum)
		s.Summary = sum
	} else {
		// Tracking never ran; finalize with whatever breadcrumbs were
		// persisted along the way.
		sum := &model.SessionSummary{
			Pattern:            model.PatternUnknown,
			BreadcrumbCount:    len(s.Breadcrumbs),
			RawBreadcrumbCount: len(s.Breadcrumbs),
		}
		r.attachRecordingTotals(s, sum)
		s.Summary = sum
	}

	if err := r.store.SaveSession(s); err != nil {
		return nil, err
	}
	r.log.Info("Walk session ended", "session", sessionID,
		"breadcrumbs", len(s.Breadcrumbs), "pattern", s.Summary.Pattern)
	return s, nil
}

func (r *Registry) attachRecordingTotals(s *model.WalkSession, sum *model.SessionSummary) {
	sum.TotalRecordings = len(s.RecordingIDs)
	var total float64
	for _, id := range s.RecordingIDs {
		rec, err := r.store.GetRecording(id)
		if err != nil {
			continue
		}
		total += rec.DurationSeconds
	}
	sum.TotalAudioDurationSeconds = total
}

// AddRecording links a recording to the session. Idempotent.
func (r *Registry) AddRecording(sessionID, recordingID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, err := r.store.GetSession(sessionID)
	if err != nil {
		return err
	}
	if s.HasRecording(recordingID) {
		return nil
	}
	s.RecordingIDs = append(s.RecordingIDs, recordingID)
	if err := r.store.SaveSession(s); err != nil {
		return err
	}

	// Best effort back-link on the recording itself.
	if rec, err := r.store.GetRecording(recordingID); err == nil && rec.WalkSessionID == "" {
		rec.WalkSessionID = sessionID
		if err := r.store.SaveRecording(rec); err != nil {
			r.log.Warn("Failed to back-link recording", "recording", recordingID, "error", err)
		}
	}
	return nil
}

// UpdateSession applies caller edits to the session.
func (r *Registry) UpdateSession(sessionID string, updates Updates) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, err := r.store.GetSession(sessionID)
	if err != nil {
		return err
	}
	if updates.Title != nil {
		s.Title = *updates.Title
	}
	if updates.Description != nil {
		s.Description = *updates.Description
	}
	return r.store.SaveSession(s)
}

// MarkExported flips a completed session to exported and stamps the export
// time. Re-marking an exported session refreshes the stamp.
func (r *Registry) MarkExported(sessionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, err := r.store.GetSession(sessionID)
	if err != nil {
		return err
	}
	if s.Status != model.StatusCompleted && s.Status != model.StatusExported {
		return fmt.Errorf("%w: %s is %s", ErrSessionNotCompleted, sessionID, s.Status)
	}
	s.Status = model.StatusExported
	s.ExportedAt = r.now().UTC().Format(time.RFC3339)
	return r.store.SaveSession(s)
}

// DeleteSession removes the session from the store. An active session's
// tracking run is torn down first.
func (r *Registry) DeleteSession(sessionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, err := r.store.GetSession(sessionID)
	if err != nil {
		return err
	}
	if s.Status == model.StatusActive {
		r.stopPersistenceLocked()
		if r.tracker != nil && r.tracker.IsTracking() && r.tracker.SessionID() == sessionID {
			if _, err := r.tracker.Stop(); err != nil && !errors.Is(err, tracker.ErrNotTracking) {
				return err
			}
		}
	}
	return r.store.DeleteSession(sessionID)
}

// ActiveSession returns the active session, or nil when none exists.
func (r *Registry) ActiveSession() (*model.WalkSession, error) {
	active, err := r.store.ActiveSessions()
	if err != nil {
		return nil, err
	}
	if len(active) == 0 {
		return nil, nil
	}
	return active[0], nil
}

// GetSession returns one session by ID.
func (r *Registry) GetSession(sessionID string) (*model.WalkSession, error) {
	return r.store.GetSession(sessionID)
}

// ListSessions returns all non-deleted sessions, newest first.
func (r *Registry) ListSessions() ([]*model.WalkSession, error) {
	return r.store.ListSessions()
}

// CompletedSessions returns sessions that are completed or exported.
func (r *Registry) CompletedSessions() ([]*model.WalkSession, error) {
	all, err := r.store.ListSessions()
	if err != nil {
		return nil, err
	}
	var out []*model.WalkSession
	for _, s := range all {
		if s.Status == model.StatusCompleted || s.Status == model.StatusExported {
			out = append(out, s)
		}
	}
	return out, nil
}

// SessionRecordings returns the session's linked recordings, skipping any
// that no longer exist.
func (r *Registry) SessionRecordings(sessionID string) ([]*model.Recording, error) {
	s, err := r.store.GetSession(sessionID)
	if err != nil {
		return nil, err
	}
	var out []*model.Recording
	for _, id := range s.RecordingIDs {
		rec, err := r.store.GetRecording(id)
		if err != nil {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

// PersistBreadcrumbs saves the live trail into the session, simplified at
// the periodic tolerance. Called by the persistence ticker and exposed for
// tests and shutdown paths.
func (r *Registry) PersistBreadcrumbs(sessionID string) error {
	if r.tracker == nil || !r.tracker.IsTracking() {
		return nil
	}
	crumbs := r.tracker.Breadcrumbs()
	if len(crumbs) == 0 {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	s, err := r.store.GetSession(sessionID)
	if err != nil {
		return err
	}
	if s.Status != model.StatusActive {
		// A tick can race session end; the finalized trail wins.
		return nil
	}
	s.Breadcrumbs = geo.SimplifyBreadcrumbs(crumbs, r.opts.PeriodicToleranceMeters)
	return r.store.SaveSession(s)
}

func (r *Registry) startPersistenceLocked(sessionID string) {
	r.stopPersistenceLocked()
	if r.opts.PersistInterval <= 0 {
		return
	}

	r.stopChan = make(chan struct{})
	r.doneChan = make(chan struct{})
	go r.persistLoop(sessionID, r.stopChan, r.doneChan)
}

func (r *Registry) persistLoop(sessionID string, stop, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(r.opts.PersistInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := r.PersistBreadcrumbs(sessionID); err != nil {
				r.log.Warn("Periodic breadcrumb persistence failed",
					"session", sessionID, "error", err)
			}
		}
	}
}

func (r *Registry) stopPersistenceLocked() {
	if r.stopChan != nil {
		close(r.stopChan)
		r.stopChan = nil
		r.doneChan = nil
	}
}

// Close stops the persistence ticker. Sessions stay as they are; stale
// active sessions are recovered on the next startup.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopPersistenceLocked()
}
