// Package tracker records GPS breadcrumbs during a walk session. Sampling
// is adaptive: positions are captured every second while the walker moves
// and every three seconds while they linger.
package tracker

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/biomapp/derive/internal/config"
	"github.com/biomapp/derive/internal/geo"
	"github.com/biomapp/derive/internal/location"
	"github.com/biomapp/derive/internal/model"
	"github.com/biomapp/derive/internal/ring"
)

var (
	// ErrAlreadyTracking is returned when Start is called during an
	// active tracking run.
	ErrAlreadyTracking = errors.New("breadcrumb tracking already active")

	// ErrNotTracking is returned when Stop is called with no active run.
	ErrNotTracking = errors.New("breadcrumb tracking not active")
)

// Options holds the tracking tunables.
type Options struct {
	MovementThresholdMeters float64
	SpeedThresholdMps       float64
	StationaryInterval      time.Duration
	MovingInterval          time.Duration
	MaxBreadcrumbs          int
}

// OptionsFromConfig reads the tracking tunables from configuration.
func OptionsFromConfig() Options {
	return Options{
		MovementThresholdMeters: config.GetFloat("tracking.movementThresholdMeters"),
		SpeedThresholdMps:       config.GetFloat("tracking.speedThresholdMps"),
		StationaryInterval:      config.GetDurationMs("tracking.stationaryIntervalMs"),
		MovingInterval:          config.GetDurationMs("tracking.movingIntervalMs"),
		MaxBreadcrumbs:          config.GetInt("tracking.maxBreadcrumbs"),
	}
}

// Dependencies holds what the tracker needs to operate.
type Dependencies struct {
	Location location.Provider
	Logger   *slog.Logger

	// Now is the clock, defaulting to time.Now. Tests inject a fake.
	Now func() time.Time
}

// Result is the data handed back when tracking stops.
type Result struct {
	SessionID   string
	StartTime   int64
	EndTime     int64
	Breadcrumbs []model.Breadcrumb
	Summary     *model.SessionSummary
}

// Tracker is the breadcrumb state machine. It is idle until Start and
// returns to idle on Stop.
type Tracker struct {
	opts     Options
	log      *slog.Logger
	now      func() time.Time
	provider location.Provider

	mu           sync.Mutex
	tracking     bool
	paused       bool
	pausePos     *model.LatLng
	onAutoResume func()

	sessionID string
	startTime int64
	crumbs    *ring.Buffer[model.Breadcrumb]
	lastPos   *model.LatLng
	lastTs    int64

	sub  *location.Subscription
	done chan struct{}
}

// New creates an idle tracker.
func New(opts Options, deps Dependencies) *Tracker {
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &Tracker{
		opts:     opts,
		log:      log,
		now:      now,
		provider: deps.Location,
	}
}

// Start begins tracking for the given session. If an initial position is
// known, it becomes the first breadcrumb.
func (t *Tracker) Start(sessionID string, initial *model.Position) error {
	t.mu.Lock()
	if t.tracking {
		t.mu.Unlock()
		return ErrAlreadyTracking
	}

	t.tracking = true
	t.paused = false
	t.pausePos = nil
	t.sessionID = sessionID
	t.startTime = t.now().UnixMilli()
	t.crumbs = ring.New[model.Breadcrumb](t.opts.MaxBreadcrumbs)
	t.lastPos = nil
	t.lastTs = t.startTime

	if initial != nil {
		t.lastPos = &model.LatLng{Lat: initial.Lat, Lng: initial.Lng}
		t.appendLocked(*initial, false, 0, nil)
	}
	t.mu.Unlock()

	t.log.Info("Breadcrumb tracking started", "session", sessionID)

	if t.provider != nil {
		t.sub = t.provider.Subscribe()
		t.done = make(chan struct{})
		go t.watchLoop(t.sub, t.done)
	}
	return nil
}

func (t *Tracker) watchLoop(sub *location.Subscription, done chan struct{}) {
	defer close(done)
	for pos := range sub.C {
		t.HandleUpdate(pos)
	}
}

// Stop ends tracking and returns everything captured during the run.
func (t *Tracker) Stop() (*Result, error) {
	t.mu.Lock()
	if !t.tracking {
		t.mu.Unlock()
		return nil, ErrNotTracking
	}
	t.tracking = false
	sub, done := t.sub, t.done
	t.sub, t.done = nil, nil
	t.mu.Unlock()

	if sub != nil {
		sub.Cancel()
		<-done
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	crumbs := t.crumbs.Snapshot()
	res := &Result{
		SessionID:   t.sessionID,
		StartTime:   t.startTime,
		EndTime:     t.now().UnixMilli(),
		Breadcrumbs: crumbs,
		Summary:     Summarize(crumbs),
	}

	t.sessionID = ""
	t.crumbs = nil
	t.lastPos = nil
	t.paused = false
	t.pausePos = nil

	t.log.Info("Breadcrumb tracking stopped",
		"session", res.SessionID, "breadcrumbs", len(res.Breadcrumbs))
	return res, nil
}

// HandleUpdate processes one position fix. Fixes arriving faster than the
// adaptive interval are dropped.
func (t *Tracker) HandleUpdate(pos model.Position) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.tracking {
		return
	}

	// While paused, only watch for drift past the movement threshold; that
	// auto-resumes tracking and records the triggering fix.
	if t.paused {
		if t.pausePos == nil {
			return
		}
		drift := geo.DistanceMeters(*t.pausePos, model.LatLng{Lat: pos.Lat, Lng: pos.Lng})
		if drift <= t.opts.MovementThresholdMeters {
			return
		}
		t.log.Info("Auto-resuming tracking", "driftMeters", drift)
		t.paused = false
		t.pausePos = nil
		if t.onAutoResume != nil {
			cb := t.onAutoResume
			go cb()
		}
	}

	now := t.now().UnixMilli()
	elapsed := time.Duration(now-t.lastTs) * time.Millisecond

	here := model.LatLng{Lat: pos.Lat, Lng: pos.Lng}
	moving := false
	if t.lastPos != nil {
		moving = geo.DistanceMeters(*t.lastPos, here) > t.opts.MovementThresholdMeters
	}

	target := t.opts.StationaryInterval
	if moving {
		target = t.opts.MovingInterval
	}
	if elapsed < target {
		return
	}

	var speed float64
	var direction *float64
	if t.lastPos != nil {
		dist := geo.DistanceMeters(*t.lastPos, here)
		if elapsed > 0 {
			speed = dist / elapsed.Seconds()
		}
		dir := geo.BearingDegrees(*t.lastPos, here)
		direction = &dir
	}

	t.appendLocked(pos, speed > t.opts.SpeedThresholdMps, speed, direction)
	t.lastPos = &model.LatLng{Lat: pos.Lat, Lng: pos.Lng}
	t.lastTs = now
}

func (t *Tracker) appendLocked(pos model.Position, isMoving bool, speed float64, direction *float64) {
	t.crumbs.Push(model.Breadcrumb{
		Lat:           pos.Lat,
		Lng:           pos.Lng,
		Timestamp:     t.now().UnixMilli(),
		Accuracy:      pos.Accuracy,
		Altitude:      pos.Altitude,
		SessionID:     t.sessionID,
		AudioLevel:    0,
		IsMoving:      isMoving,
		MovementSpeed: speed,
		Direction:     direction,
		IsRecording:   true,
	})
}

// UpdateAudioLevel stamps the ambient audio level onto the most recent
// breadcrumb. No-op when idle or before the first breadcrumb.
func (t *Tracker) UpdateAudioLevel(level float64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.tracking || t.crumbs.Len() == 0 {
		return
	}
	last, _ := t.crumbs.Last()
	last.AudioLevel = level
	t.crumbs.ReplaceLast(last)
}

// Pause suspends breadcrumb capture. The position watch stays live so the
// tracker can auto-resume when the walker moves on.
func (t *Tracker) Pause() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.tracking || t.paused {
		return
	}
	t.paused = true
	if t.lastPos != nil {
		cp := *t.lastPos
		t.pausePos = &cp
	}
	t.log.Info("Breadcrumb tracking paused")
}

// Resume clears the pause state.
func (t *Tracker) Resume() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.tracking || !t.paused {
		return
	}
	t.paused = false
	t.pausePos = nil
	t.log.Info("Breadcrumb tracking resumed")
}

// IsPaused reports the pause state.
func (t *Tracker) IsPaused() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.paused
}

// IsTracking reports whether a run is active.
func (t *Tracker) IsTracking() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.tracking
}

// SetAutoResumeCallback registers a callback fired when pause drift
// triggers an auto-resume.
func (t *Tracker) SetAutoResumeCallback(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onAutoResume = fn
}

// Breadcrumbs returns a copy of the current run's breadcrumbs.
func (t *Tracker) Breadcrumbs() []model.Breadcrumb {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.crumbs == nil {
		return nil
	}
	return t.crumbs.Snapshot()
}

// Load seeds the tracker with previously persisted breadcrumbs. Used when
// resuming a recovered session mid-run.
func (t *Tracker) Load(crumbs []model.Breadcrumb) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.tracking {
		return
	}
	t.crumbs.Load(crumbs)
	if len(crumbs) > 0 {
		last := crumbs[len(crumbs)-1]
		t.lastPos = &model.LatLng{Lat: last.Lat, Lng: last.Lng}
		t.lastTs = last.Timestamp
	}
}

// SessionID returns the active session's ID, or "" when idle.
func (t *Tracker) SessionID() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sessionID
}
