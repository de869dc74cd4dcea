package tracker_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldvigil/fieldvigil/internal/position"
	"github.com/fieldvigil/fieldvigil/internal/risk"
	"github.com/fieldvigil/fieldvigil/internal/scheduler"
	"github.com/fieldvigil/fieldvigil/internal/store"
	"github.com/fieldvigil/fieldvigil/internal/tournee"
	"github.com/fieldvigil/fieldvigil/internal/tracker"
)

type fakeScheduler struct {
	mu       sync.Mutex
	running  bool
	interval time.Duration
	job      scheduler.Job
	stops    int
}

func (f *fakeScheduler) StartService(interval time.Duration, job scheduler.Job) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.running = true
	f.interval = interval
	f.job = job
	return nil
}

func (f *fakeScheduler) StopService() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.running = false
	f.stops++
}

func (f *fakeScheduler) Running() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.running
}

type fakeGuard struct {
	expired bool
	checks  int
	resets  int
}

func (f *fakeGuard) CheckMaxDuration(context.Context) bool {
	f.checks++
	return f.expired
}

func (f *fakeGuard) Reset() { f.resets++ }

type fakeMonitor struct{ checks int }

func (f *fakeMonitor) CheckSlowdown(context.Context) { f.checks++ }

type fakePositions struct {
	pos  position.Position
	err  error
	hits int
}

func (f *fakePositions) CurrentPosition(context.Context) (position.Position, error) {
	f.hits++
	if f.err != nil {
		return position.Position{}, f.err
	}
	return f.pos, nil
}

type fakeCache struct {
	needsRefresh bool
	refreshErr   error
	refreshes    int
	risks        []risk.Risk
}

func (f *fakeCache) ShouldRefresh(_, _ float64, _ tournee.Config) bool { return f.needsRefresh }

func (f *fakeCache) Refresh(_ context.Context, _, _ float64, _ tournee.Config) error {
	f.refreshes++
	return f.refreshErr
}

func (f *fakeCache) Risks() []risk.Risk { return f.risks }

type fakeProximity struct {
	checks []float64
	resets int
	found  []risk.NearbyRisk
}

func (f *fakeProximity) Check(_ context.Context, _, _, alertRadiusMeters float64, _ []risk.Risk) []risk.NearbyRisk {
	f.checks = append(f.checks, alertRadiusMeters)
	return f.found
}

func (f *fakeProximity) Reset() { f.resets++ }

type fakeWatcher struct{ checks int }

func (f *fakeWatcher) Check(context.Context, float64, float64) { f.checks++ }

type fakeResolver struct {
	cfg      tournee.Config
	resolved []tournee.Mode
}

func (f *fakeResolver) Resolve(_ context.Context, mode tournee.Mode) tournee.Config {
	f.resolved = append(f.resolved, mode)
	return f.cfg
}

type fixture struct {
	tracker   *tracker.Tracker
	store     *store.Store
	scheduler *fakeScheduler
	guard     *fakeGuard
	monitor   *fakeMonitor
	positions *fakePositions
	cache     *fakeCache
	proximity *fakeProximity
	watcher   *fakeWatcher
	resolver  *fakeResolver
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	st, err := store.Open(":memory:", zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	f := &fixture{
		store:     st,
		scheduler: &fakeScheduler{},
		guard:     &fakeGuard{},
		monitor:   &fakeMonitor{},
		positions: &fakePositions{pos: position.Position{Latitude: 45.76, Longitude: 4.83}},
		cache:     &fakeCache{},
		proximity: &fakeProximity{},
		watcher:   &fakeWatcher{},
		resolver: &fakeResolver{cfg: tournee.Config{
			Mode:                 tournee.ModeVelo,
			SearchRadiusKm:       10,
			AlertRadiusMeters:    100,
			RefreshInterval:      3 * time.Minute,
			PositionPollInterval: 20 * time.Second,
		}},
	}

	f.tracker, err = tracker.New(tracker.Config{
		Store:     st,
		Scheduler: f.scheduler,
		Guard:     f.guard,
		Monitor:   f.monitor,
		Positions: f.positions,
		Cache:     f.cache,
		Proximity: f.proximity,
		Commune:   f.watcher,
		Resolver:  f.resolver,
		Logger:    zerolog.Nop(),
	})
	require.NoError(t, err)
	return f
}

func (f *fixture) markActive(t *testing.T) {
	t.Helper()
	require.NoError(t, f.store.Set(context.Background(), store.KeyTourneeType, string(tournee.ModeVelo)))
}

func TestStartSchedulesAtPollInterval(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.tracker.Start(context.Background(), tournee.ModeVelo))

	assert.Equal(t, []tournee.Mode{tournee.ModeVelo}, f.resolver.resolved)
	assert.True(t, f.scheduler.Running())
	assert.Equal(t, 20*time.Second, f.scheduler.interval)
	assert.Equal(t, 1, f.proximity.resets)
	assert.Equal(t, 1, f.guard.resets)

	_, found, err := f.store.GetInt64(context.Background(), store.KeyTrackingStartTime)
	require.NoError(t, err)
	assert.True(t, found)
}

func TestStartRejectsUnknownMode(t *testing.T) {
	f := newFixture(t)

	err := f.tracker.Start(context.Background(), tournee.Mode("trottinette"))
	require.Error(t, err)
	assert.False(t, f.scheduler.Running())
}

func TestStopClearsRoundState(t *testing.T) {
	f := newFixture(t)
	f.markActive(t)
	require.NoError(t, f.store.SetInt64(context.Background(), store.KeyTrackingStartTime, time.Now().UnixMilli()))

	require.NoError(t, f.tracker.Stop(context.Background()))

	assert.Equal(t, 1, f.scheduler.stops)
	assert.False(t, f.tracker.Active(context.Background()))
	_, found, err := f.store.Get(context.Background(), store.KeyTrackingStartTime)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestRunCycleHaltsOnStopSignal(t *testing.T) {
	f := newFixture(t)

	f.tracker.RunCycle(context.Background())

	assert.Equal(t, 1, f.scheduler.stops)
	assert.Equal(t, 0, f.guard.checks, "no further work after the stop signal")
	assert.Equal(t, 0, f.positions.hits)
}

func TestRunCycleAbortsOnSessionCutoff(t *testing.T) {
	f := newFixture(t)
	f.markActive(t)
	f.guard.expired = true

	f.tracker.RunCycle(context.Background())

	assert.Equal(t, 1, f.guard.checks)
	assert.Equal(t, 0, f.monitor.checks)
	assert.Equal(t, 0, f.positions.hits)
}

func TestRunCycleSkipsWhenPositionUnavailable(t *testing.T) {
	f := newFixture(t)
	f.markActive(t)
	f.positions.err = position.ErrTimeout
	f.cache.needsRefresh = true

	f.tracker.RunCycle(context.Background())

	assert.Equal(t, 1, f.monitor.checks, "cadence is still stamped")
	assert.Equal(t, 0, f.cache.refreshes)
	assert.Empty(t, f.proximity.checks)
	assert.Equal(t, 0, f.watcher.checks)
}

func TestRunCycleFullPass(t *testing.T) {
	f := newFixture(t)
	f.markActive(t)
	require.NoError(t, f.store.SetInt64(context.Background(), store.KeyAPICallDelayMinutes, 3))
	require.NoError(t, f.store.SetFloat64(context.Background(), store.KeyAlertRadiusMeters, 250))
	require.NoError(t, f.store.SetFloat64(context.Background(), store.KeyRiskLoadZoneKm, 10))
	f.cache.needsRefresh = true
	f.cache.risks = []risk.Risk{{ID: "r1", Title: "Inondation"}}

	f.tracker.RunCycle(context.Background())

	assert.Equal(t, 1, f.monitor.checks)
	assert.Equal(t, 1, f.cache.refreshes)
	require.Len(t, f.proximity.checks, 1)
	assert.InDelta(t, 250, f.proximity.checks[0], 1e-9, "alert radius comes from the persisted parameters")
	assert.Equal(t, 1, f.watcher.checks)
}

func TestRunCycleKeepsGoingWhenRefreshFails(t *testing.T) {
	f := newFixture(t)
	f.markActive(t)
	f.cache.needsRefresh = true
	f.cache.refreshErr = errors.New("api down")
	f.cache.risks = []risk.Risk{{ID: "r1"}}

	f.tracker.RunCycle(context.Background())

	assert.Equal(t, 1, f.cache.refreshes)
	assert.Len(t, f.proximity.checks, 1, "stale zone is still evaluated")
	assert.Equal(t, 1, f.watcher.checks)
}

func TestResumeRestartsActiveRound(t *testing.T) {
	f := newFixture(t)
	f.markActive(t)
	require.NoError(t, f.store.SetInt64(context.Background(), store.KeyPositionTestDelaySeconds, 10))

	resumed, err := f.tracker.Resume(context.Background())
	require.NoError(t, err)
	assert.True(t, resumed)
	assert.True(t, f.scheduler.Running())
	assert.Equal(t, 10*time.Second, f.scheduler.interval)
}

func TestResumeIsNoopWhenInactive(t *testing.T) {
	f := newFixture(t)

	resumed, err := f.tracker.Resume(context.Background())
	require.NoError(t, err)
	assert.False(t, resumed)
	assert.False(t, f.scheduler.Running())
}
