package tracker

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/biomapp/derive/internal/model"
)

// fakeClock advances only when told to.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 8, 29, 6, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func testOptions() Options {
	return Options{
		MovementThresholdMeters: 5,
		SpeedThresholdMps:       0.5,
		StationaryInterval:      3 * time.Second,
		MovingInterval:          time.Second,
		MaxBreadcrumbs:          1000,
	}
}

func newTestTracker(t *testing.T) (*Tracker, *fakeClock) {
	t.Helper()
	clock := newFakeClock()
	tr := New(testOptions(), Dependencies{Now: clock.Now})
	return tr, clock
}

// offsetPos returns a position north of the base by roughly the given meters.
func offsetPos(northMeters float64) model.Position {
	return model.Position{Lat: 6.15 + northMeters/111320.0, Lng: -75.37}
}

func TestStart_InitialBreadcrumb(t *testing.T) {
	tr, _ := newTestTracker(t)

	init := offsetPos(0)
	require.NoError(t, tr.Start("s1", &init))

	crumbs := tr.Breadcrumbs()
	require.Len(t, crumbs, 1)
	assert.Equal(t, "s1", crumbs[0].SessionID)
	assert.False(t, crumbs[0].IsMoving)
	assert.Zero(t, crumbs[0].MovementSpeed)
	assert.Nil(t, crumbs[0].Direction)
	assert.True(t, crumbs[0].IsRecording)
}

func TestStart_WhileTracking(t *testing.T) {
	tr, _ := newTestTracker(t)
	require.NoError(t, tr.Start("s1", nil))

	assert.ErrorIs(t, tr.Start("s2", nil), ErrAlreadyTracking)
	assert.Equal(t, "s1", tr.SessionID())
}

func TestStop_WhileIdle(t *testing.T) {
	tr, _ := newTestTracker(t)
	_, err := tr.Stop()
	assert.ErrorIs(t, err, ErrNotTracking)
}

func TestStop_ReturnsResultAndResets(t *testing.T) {
	tr, clock := newTestTracker(t)

	init := offsetPos(0)
	require.NoError(t, tr.Start("s1", &init))
	clock.Advance(4 * time.Second)
	tr.HandleUpdate(offsetPos(2))

	res, err := tr.Stop()
	require.NoError(t, err)
	assert.Equal(t, "s1", res.SessionID)
	assert.Len(t, res.Breadcrumbs, 2)
	require.NotNil(t, res.Summary)
	assert.False(t, tr.IsTracking())
	assert.Empty(t, tr.SessionID())
	assert.Nil(t, tr.Breadcrumbs())

	// Can start again after stopping.
	require.NoError(t, tr.Start("s2", nil))
}

func TestHandleUpdate_IgnoredWhenIdle(t *testing.T) {
	tr, _ := newTestTracker(t)
	tr.HandleUpdate(offsetPos(0))
	assert.Nil(t, tr.Breadcrumbs())
}

func TestAdaptiveSampling_MovingUsesShortInterval(t *testing.T) {
	tr, clock := newTestTracker(t)
	init := offsetPos(0)
	require.NoError(t, tr.Start("s1", &init))

	// 10m north after 1.5s: movement exceeds threshold, so the 1s moving
	// interval applies and the fix is recorded.
	clock.Advance(1500 * time.Millisecond)
	tr.HandleUpdate(offsetPos(10))

	crumbs := tr.Breadcrumbs()
	require.Len(t, crumbs, 2)
	assert.True(t, crumbs[1].IsMoving)
	assert.InDelta(t, 10.0/1.5, crumbs[1].MovementSpeed, 0.5)
	require.NotNil(t, crumbs[1].Direction)
	assert.InDelta(t, 0, *crumbs[1].Direction, 1.0) // heading north
}

func TestAdaptiveSampling_StationaryUsesLongInterval(t *testing.T) {
	tr, clock := newTestTracker(t)
	init := offsetPos(0)
	require.NoError(t, tr.Start("s1", &init))

	// 1m drift after 1.5s: under the movement threshold, so the 3s
	// stationary interval applies and the fix is dropped.
	clock.Advance(1500 * time.Millisecond)
	tr.HandleUpdate(offsetPos(1))
	assert.Len(t, tr.Breadcrumbs(), 1)

	// After 3s total the same drift is recorded.
	clock.Advance(1600 * time.Millisecond)
	tr.HandleUpdate(offsetPos(1))
	crumbs := tr.Breadcrumbs()
	require.Len(t, crumbs, 2)
	assert.False(t, crumbs[1].IsMoving)
}

func TestAdaptiveSampling_FastMovingFixDropped(t *testing.T) {
	tr, clock := newTestTracker(t)
	init := offsetPos(0)
	require.NoError(t, tr.Start("s1", &init))

	clock.Advance(500 * time.Millisecond)
	tr.HandleUpdate(offsetPos(10))
	assert.Len(t, tr.Breadcrumbs(), 1)
}

func TestBreadcrumbCap_DropsOldest(t *testing.T) {
	clock := newFakeClock()
	opts := testOptions()
	opts.MaxBreadcrumbs = 5
	tr := New(opts, Dependencies{Now: clock.Now})

	require.NoError(t, tr.Start("s1", nil))
	for i := 0; i < 10; i++ {
		clock.Advance(2 * time.Second)
		tr.HandleUpdate(offsetPos(float64(i * 10)))
	}

	crumbs := tr.Breadcrumbs()
	require.Len(t, crumbs, 5)
	// Newest survive.
	last := crumbs[len(crumbs)-1]
	assert.InDelta(t, 6.15+90/111320.0, last.Lat, 1e-9)
}

func TestUpdateAudioLevel(t *testing.T) {
	tr, _ := newTestTracker(t)
	init := offsetPos(0)
	require.NoError(t, tr.Start("s1", &init))

	tr.UpdateAudioLevel(0.42)

	crumbs := tr.Breadcrumbs()
	require.Len(t, crumbs, 1)
	assert.Equal(t, 0.42, crumbs[0].AudioLevel)
}

func TestUpdateAudioLevel_NoCrumbs(t *testing.T) {
	tr, _ := newTestTracker(t)
	require.NoError(t, tr.Start("s1", nil))
	tr.UpdateAudioLevel(0.5) // must not panic
	assert.Empty(t, tr.Breadcrumbs())
}

func TestPause_SuppressesCapture(t *testing.T) {
	tr, clock := newTestTracker(t)
	init := offsetPos(0)
	require.NoError(t, tr.Start("s1", &init))

	tr.Pause()
	assert.True(t, tr.IsPaused())

	// Drift under the threshold is ignored while paused.
	clock.Advance(5 * time.Second)
	tr.HandleUpdate(offsetPos(3))
	assert.Len(t, tr.Breadcrumbs(), 1)
}

func TestPause_AutoResumeOnDrift(t *testing.T) {
	tr, clock := newTestTracker(t)
	init := offsetPos(0)
	require.NoError(t, tr.Start("s1", &init))

	resumed := make(chan struct{})
	tr.SetAutoResumeCallback(func() { close(resumed) })
	tr.Pause()

	clock.Advance(5 * time.Second)
	tr.HandleUpdate(offsetPos(12))

	assert.False(t, tr.IsPaused())
	assert.Len(t, tr.Breadcrumbs(), 2, "triggering fix is recorded")
	select {
	case <-resumed:
	case <-time.After(time.Second):
		t.Fatal("auto-resume callback not fired")
	}
}

func TestResume_ClearsPause(t *testing.T) {
	tr, clock := newTestTracker(t)
	init := offsetPos(0)
	require.NoError(t, tr.Start("s1", &init))

	tr.Pause()
	tr.Resume()
	assert.False(t, tr.IsPaused())

	clock.Advance(4 * time.Second)
	tr.HandleUpdate(offsetPos(2))
	assert.Len(t, tr.Breadcrumbs(), 2)
}

func TestResume_NoopWhenNotPaused(t *testing.T) {
	tr, _ := newTestTracker(t)
	tr.Resume()
	assert.False(t, tr.IsPaused())
}

func TestLoad_SeedsTrail(t *testing.T) {
	tr, clock := newTestTracker(t)
	require.NoError(t, tr.Start("s1", nil))

	seed := []model.Breadcrumb{
		{Lat: 6.15, Lng: -75.37, Timestamp: clock.Now().UnixMilli() - 10000, SessionID: "s1"},
		{Lat: 6.151, Lng: -75.37, Timestamp: clock.Now().UnixMilli() - 5000, SessionID: "s1"},
	}
	tr.Load(seed)
	assert.Len(t, tr.Breadcrumbs(), 2)

	clock.Advance(4 * time.Second)
	tr.HandleUpdate(model.Position{Lat: 6.1511, Lng: -75.37})
	assert.Len(t, tr.Breadcrumbs(), 3)
}

func TestSummarize_Empty(t *testing.T) {
	sum := Summarize(nil)
	assert.Equal(t, model.PatternStationary, sum.Pattern)
	assert.Zero(t, sum.TotalDistanceMeters)
	assert.Zero(t, sum.BreadcrumbCount)
}

func TestSummarize_SingleBreadcrumb(t *testing.T) {
	sum := Summarize([]model.Breadcrumb{{Lat: 6.15, Lng: -75.37, Timestamp: 1000, IsMoving: true}})
	assert.Equal(t, model.PatternStationary, sum.Pattern)
	assert.Zero(t, sum.TotalDistanceMeters)
	assert.Zero(t, sum.AverageSpeedMps)
	assert.Zero(t, sum.StationaryTimeSeconds)
	assert.Zero(t, sum.MovingTimeSeconds)
	assert.Equal(t, 1, sum.BreadcrumbCount)
}

func TestSummarize_MovingPattern(t *testing.T) {
	var crumbs []model.Breadcrumb
	for i := 0; i < 10; i++ {
		crumbs = append(crumbs, model.Breadcrumb{
			Lat:       6.15 + float64(i)*10/111320.0,
			Lng:       -75.37,
			Timestamp: int64(i * 5000),
			IsMoving:  i > 0,
		})
	}

	sum := Summarize(crumbs)
	assert.Equal(t, model.PatternMoving, sum.Pattern)
	assert.InDelta(t, 90, sum.TotalDistanceMeters, 1)
	assert.InDelta(t, 2.0, sum.AverageSpeedMps, 0.1)
	assert.Equal(t, 10, sum.BreadcrumbCount)
	assert.InDelta(t, 45, sum.StationaryTimeSeconds+sum.MovingTimeSeconds, 1)
}

func TestSummarize_StationaryPattern(t *testing.T) {
	var crumbs []model.Breadcrumb
	for i := 0; i < 10; i++ {
		crumbs = append(crumbs, model.Breadcrumb{
			Lat:       6.15,
			Lng:       -75.37,
			Timestamp: int64(i * 3000),
		})
	}

	sum := Summarize(crumbs)
	assert.Equal(t, model.PatternStationary, sum.Pattern)
	assert.Zero(t, sum.TotalDistanceMeters)
	assert.Zero(t, sum.MaxSpeedMps)
}

func TestSummarize_MixedPattern(t *testing.T) {
	var crumbs []model.Breadcrumb
	for i := 0; i < 10; i++ {
		crumbs = append(crumbs, model.Breadcrumb{
			Lat:       6.15 + float64(i)*10/111320.0,
			Lng:       -75.37,
			Timestamp: int64(i * 5000),
			IsMoving:  i%2 == 0,
		})
	}

	sum := Summarize(crumbs)
	assert.Equal(t, model.PatternMixed, sum.Pattern)
}

func TestOptionsDefaults(t *testing.T) {
	opts := testOptions()
	assert.Equal(t, 5.0, opts.MovementThresholdMeters)
	assert.Equal(t, time.Second, opts.MovingInterval)
	assert.Equal(t, 3*time.Second, opts.StationaryInterval)
}
