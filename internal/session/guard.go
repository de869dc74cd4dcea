// Package session enforces the maximum duration of a tracking round and
// winds the agent down cleanly when the limit is reached.
package session

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/fieldvigil/fieldvigil/internal/notify"
	"github.com/fieldvigil/fieldvigil/internal/store"
)

const (
	// DefaultMaxDuration is how long a round may run before forced stop.
	DefaultMaxDuration = 4 * time.Hour

	// DefaultWarningLead is how far before the cutoff the heads-up fires.
	DefaultWarningLead = 15 * time.Minute
)

// ServiceStopper stops the background cycle.
type ServiceStopper interface {
	StopService()
}

// GuardConfig holds configuration for a session duration guard.
type GuardConfig struct {
	Store      *store.Store
	Dispatcher notify.Dispatcher
	Stopper    ServiceStopper
	Logger     zerolog.Logger

	// MaxDuration overrides DefaultMaxDuration.
	MaxDuration time.Duration

	// WarningLead overrides DefaultWarningLead.
	WarningLead time.Duration

	// Now is the clock. Defaults to time.Now.
	Now func() time.Time
}

// Guard watches the elapsed time of the active round. The warned flag is
// in-memory, so a restart inside the warning window re-warns once.
type Guard struct {
	store       *store.Store
	dispatcher  notify.Dispatcher
	stopper     ServiceStopper
	logger      zerolog.Logger
	maxDuration time.Duration
	warningLead time.Duration
	now         func() time.Time

	warned bool
}

// NewGuard creates a session duration guard.
func NewGuard(cfg GuardConfig) *Guard {
	if cfg.MaxDuration <= 0 {
		cfg.MaxDuration = DefaultMaxDuration
	}
	if cfg.WarningLead <= 0 {
		cfg.WarningLead = DefaultWarningLead
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Guard{
		store:       cfg.Store,
		dispatcher:  cfg.Dispatcher,
		stopper:     cfg.Stopper,
		logger:      cfg.Logger.With().Str("component", "session").Logger(),
		maxDuration: cfg.MaxDuration,
		warningLead: cfg.WarningLead,
		now:         cfg.Now,
	}
}

// Reset re-arms the heads-up warning for a fresh round.
func (g *Guard) Reset() {
	g.warned = false
}

// CheckMaxDuration enforces the round duration limit. It returns true when
// the round was terminated, in which case the caller must abort its cycle.
func (g *Guard) CheckMaxDuration(ctx context.Context) bool {
	startMillis, found, err := g.store.GetInt64(ctx, store.KeyTrackingStartTime)
	if err != nil {
		g.logger.Warn().Err(err).Msg("failed to read round start time")
		return false
	}
	if !found {
		return false
	}

	elapsed := g.now().Sub(time.UnixMilli(startMillis))
	if elapsed >= g.maxDuration {
		g.terminate(ctx, elapsed)
		return true
	}

	if !g.warned && elapsed >= g.maxDuration-g.warningLead {
		g.warned = true
		remaining := g.maxDuration - elapsed
		if err := g.dispatcher.Notify(ctx, notify.Notification{
			Title:      "⏳ Fin de session proche",
			Body:       fmt.Sprintf("La session se terminera automatiquement dans %d minutes.", int(remaining.Minutes())),
			Importance: notify.ImportanceHigh,
		}); err != nil {
			g.logger.Warn().Err(err).Msg("failed to notify session warning")
		}
	}

	return false
}

func (g *Guard) terminate(ctx context.Context, elapsed time.Duration) {
	g.logger.Info().
		Dur("elapsed", elapsed).
		Dur("limit", g.maxDuration).
		Msg("round reached maximum duration, stopping")

	g.stopper.StopService()

	if err := g.store.Delete(ctx, store.SessionKeys...); err != nil {
		g.logger.Warn().Err(err).Msg("failed to clear round state")
	}

	if err := g.dispatcher.Notify(ctx, notify.Notification{
		Title:      "🏁 Session terminée",
		Body:       "La durée maximale de suivi est atteinte. Le suivi a été arrêté automatiquement.",
		Importance: notify.ImportanceHigh,
	}); err != nil {
		g.logger.Warn().Err(err).Msg("failed to notify session end")
	}

	g.warned = false
}
