// Package health watches the cadence of the background cycle and warns the
// agent when the platform throttles scheduled work.
package health

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/fieldvigil/fieldvigil/internal/notify"
	"github.com/fieldvigil/fieldvigil/internal/store"
)

const (
	// DefaultExpectedInterval is the nominal gap between cycles. Anything
	// beyond it counts as a slowdown.
	DefaultExpectedInterval = 45 * time.Second

	// DefaultWarningCooldown bounds how often slowdown warnings fire.
	DefaultWarningCooldown = 5 * time.Minute
)

// MonitorConfig holds configuration for a cycle cadence monitor.
type MonitorConfig struct {
	Store      *store.Store
	Dispatcher notify.Dispatcher
	Logger     zerolog.Logger

	// ExpectedInterval overrides DefaultExpectedInterval.
	ExpectedInterval time.Duration

	// WarningCooldown overrides DefaultWarningCooldown.
	WarningCooldown time.Duration

	// Now is the clock. Defaults to time.Now.
	Now func() time.Time
}

// Monitor compares the wall-clock gap between cycles against the expected
// interval. The warning cooldown lives in memory only, so a restart may
// re-warn early; the gap measurement itself survives restarts through the
// persisted timestamp.
type Monitor struct {
	store      *store.Store
	dispatcher notify.Dispatcher
	logger     zerolog.Logger
	expected   time.Duration
	cooldown   time.Duration
	now        func() time.Time

	lastWarnedAt time.Time
}

// NewMonitor creates a cycle cadence monitor.
func NewMonitor(cfg MonitorConfig) *Monitor {
	if cfg.ExpectedInterval <= 0 {
		cfg.ExpectedInterval = DefaultExpectedInterval
	}
	if cfg.WarningCooldown <= 0 {
		cfg.WarningCooldown = DefaultWarningCooldown
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Monitor{
		store:      cfg.Store,
		dispatcher: cfg.Dispatcher,
		logger:     cfg.Logger.With().Str("component", "health").Logger(),
		expected:   cfg.ExpectedInterval,
		cooldown:   cfg.WarningCooldown,
		now:        cfg.Now,
	}
}

// CheckSlowdown measures the gap since the previous cycle, warns when it
// exceeds the expected interval, and stamps the current cycle. Persistence
// failures are logged only.
func (m *Monitor) CheckSlowdown(ctx context.Context) {
	now := m.now()

	lastMillis, found, err := m.store.GetInt64(ctx, store.KeyLastTaskRun)
	if err != nil {
		m.logger.Warn().Err(err).Msg("failed to read last cycle timestamp")
	} else if found {
		elapsed := now.Sub(time.UnixMilli(lastMillis))
		if elapsed > m.expected {
			m.warn(ctx, now, elapsed)
		}
	}

	if err := m.store.SetInt64(ctx, store.KeyLastTaskRun, now.UnixMilli()); err != nil {
		m.logger.Warn().Err(err).Msg("failed to stamp cycle timestamp")
	}
}

func (m *Monitor) warn(ctx context.Context, now time.Time, elapsed time.Duration) {
	m.logger.Warn().
		Dur("elapsed", elapsed).
		Dur("expected", m.expected).
		Msg("background cycle slowed down")

	if !m.lastWarnedAt.IsZero() && now.Sub(m.lastWarnedAt) <= m.cooldown {
		return
	}

	if err := m.dispatcher.Notify(ctx, notify.Notification{
		Title:      "⚠️ Service ralenti",
		Body:       fmt.Sprintf("Le suivi a pris du retard (%d s entre deux cycles). Vérifiez les réglages d'économie d'énergie.", int(elapsed.Seconds())),
		Importance: notify.ImportanceHigh,
	}); err != nil {
		m.logger.Warn().Err(err).Msg("failed to notify slowdown")
		return
	}
	m.lastWarnedAt = now
}
