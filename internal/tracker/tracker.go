// Package tracker orchestrates the background proximity engine: it runs the
// periodic cycle that reads the position, keeps the risk zone fresh, raises
// proximity alerts and watches for municipality changes.
package tracker

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/fieldvigil/fieldvigil/internal/position"
	"github.com/fieldvigil/fieldvigil/internal/risk"
	"github.com/fieldvigil/fieldvigil/internal/scheduler"
	"github.com/fieldvigil/fieldvigil/internal/store"
	"github.com/fieldvigil/fieldvigil/internal/tournee"
)

// CycleScheduler runs the periodic cycle.
type CycleScheduler interface {
	StartService(interval time.Duration, job scheduler.Job) error
	StopService()
	Running() bool
}

// DurationGuard enforces the maximum round duration.
type DurationGuard interface {
	CheckMaxDuration(ctx context.Context) bool
	Reset()
}

// CadenceMonitor watches the gap between cycles.
type CadenceMonitor interface {
	CheckSlowdown(ctx context.Context)
}

// RiskCache holds the loaded risk zone.
type RiskCache interface {
	ShouldRefresh(lat, lon float64, cfg tournee.Config) bool
	Refresh(ctx context.Context, lat, lon float64, cfg tournee.Config) error
	Risks() []risk.Risk
}

// ProximityChecker evaluates risks against the current position.
type ProximityChecker interface {
	Check(ctx context.Context, lat, lon, alertRadiusMeters float64, risks []risk.Risk) []risk.NearbyRisk
	Reset()
}

// BoundaryWatcher reacts to municipality changes.
type BoundaryWatcher interface {
	Check(ctx context.Context, lat, lon float64)
}

// ConfigResolver resolves the per-mode tracking parameters.
type ConfigResolver interface {
	Resolve(ctx context.Context, mode tournee.Mode) tournee.Config
}

// Config holds the collaborators of a Tracker.
type Config struct {
	Store     *store.Store
	Scheduler CycleScheduler
	Guard     DurationGuard
	Monitor   CadenceMonitor
	Positions position.Provider
	Cache     RiskCache
	Proximity ProximityChecker
	Commune   BoundaryWatcher
	Resolver  ConfigResolver
	Logger    zerolog.Logger

	// Now is the clock. Defaults to time.Now.
	Now func() time.Time
}

// Tracker drives a tracking round from start to stop.
type Tracker struct {
	store     *store.Store
	scheduler CycleScheduler
	guard     DurationGuard
	monitor   CadenceMonitor
	positions position.Provider
	cache     RiskCache
	proximity ProximityChecker
	commune   BoundaryWatcher
	resolver  ConfigResolver
	logger    zerolog.Logger
	now       func() time.Time
	metrics   *metrics
}

// New creates a Tracker.
func New(cfg Config) (*Tracker, error) {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	m, err := newMetrics()
	if err != nil {
		return nil, fmt.Errorf("init tracker metrics: %w", err)
	}

	return &Tracker{
		store:     cfg.Store,
		scheduler: cfg.Scheduler,
		guard:     cfg.Guard,
		monitor:   cfg.Monitor,
		positions: cfg.Positions,
		cache:     cfg.Cache,
		proximity: cfg.Proximity,
		commune:   cfg.Commune,
		resolver:  cfg.Resolver,
		logger:    cfg.Logger.With().Str("component", "tracker").Logger(),
		now:       cfg.Now,
		metrics:   m,
	}, nil
}

// Start begins a new round for the given travel mode: parameters are
// resolved and persisted, per-round state is re-armed, and the periodic
// cycle is scheduled at the mode's position poll interval.
func (t *Tracker) Start(ctx context.Context, mode tournee.Mode) error {
	if !mode.Valid() {
		return fmt.Errorf("unknown travel mode %q", mode)
	}

	cfg := t.resolver.Resolve(ctx, mode)

	if err := t.store.SetInt64(ctx, store.KeyTrackingStartTime, t.now().UnixMilli()); err != nil {
		return fmt.Errorf("persist round start: %w", err)
	}

	t.proximity.Reset()
	t.guard.Reset()

	if err := t.scheduler.StartService(cfg.PositionPollInterval, t.RunCycle); err != nil {
		return fmt.Errorf("start cycle: %w", err)
	}

	t.logger.Info().
		Str("mode", string(mode)).
		Dur("poll_interval", cfg.PositionPollInterval).
		Msg("tracking round started")
	return nil
}

// Stop ends the active round and clears its persisted state. Stopping an
// inactive tracker is a no-op.
func (t *Tracker) Stop(ctx context.Context) error {
	t.scheduler.StopService()
	if err := t.store.Delete(ctx, store.SessionKeys...); err != nil {
		return fmt.Errorf("clear round state: %w", err)
	}
	t.logger.Info().Msg("tracking round stopped")
	return nil
}

// Active reports whether a round is in progress according to the persisted
// mode key.
func (t *Tracker) Active(ctx context.Context) bool {
	_, found, err := t.store.Get(ctx, store.KeyTourneeType)
	if err != nil {
		t.logger.Warn().Err(err).Msg("failed to read round state")
		return false
	}
	return found
}

// Resume restarts the cycle after a process restart when a round was left
// active. It reports whether a round was resumed.
func (t *Tracker) Resume(ctx context.Context) (bool, error) {
	if !t.Active(ctx) {
		return false, nil
	}

	cfg := tournee.Load(ctx, t.store, t.logger)
	if err := t.scheduler.StartService(cfg.PositionPollInterval, t.RunCycle); err != nil {
		return false, fmt.Errorf("resume cycle: %w", err)
	}

	t.logger.Info().Str("mode", string(cfg.Mode)).Msg("tracking round resumed")
	return true, nil
}

// RunCycle executes one pass of the background engine. Every failure short
// of a stop signal is contained: the cycle logs, skips the rest of the pass
// and lets the next tick try again.
func (t *Tracker) RunCycle(ctx context.Context) {
	if !t.Active(ctx) {
		t.logger.Info().Msg("stop signal observed, halting cycle")
		t.scheduler.StopService()
		t.metrics.recordSkip(ctx, "stopped")
		return
	}

	if t.guard.CheckMaxDuration(ctx) {
		t.metrics.recordSkip(ctx, "session_expired")
		return
	}

	t.monitor.CheckSlowdown(ctx)

	cfg := tournee.Load(ctx, t.store, t.logger)

	pos, err := t.positions.CurrentPosition(ctx)
	if err != nil {
		t.logger.Warn().Err(err).Msg("position unavailable, skipping cycle")
		t.metrics.recordSkip(ctx, "no_position")
		return
	}

	if t.cache.ShouldRefresh(pos.Latitude, pos.Longitude, cfg) {
		if err := t.cache.Refresh(ctx, pos.Latitude, pos.Longitude, cfg); err != nil {
			t.logger.Error().Err(err).Msg("risk zone refresh failed, keeping previous zone")
			t.metrics.refreshFailures.Add(ctx, 1)
		}
	}

	nearby := t.proximity.Check(ctx, pos.Latitude, pos.Longitude, cfg.AlertRadiusMeters, t.cache.Risks())
	if len(nearby) > 0 {
		t.metrics.alertsRaised.Add(ctx, int64(len(nearby)))
	}

	t.commune.Check(ctx, pos.Latitude, pos.Longitude)

	t.metrics.cyclesTotal.Add(ctx, 1)
}
