package commune

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/fieldvigil/fieldvigil/internal/notify"
	"github.com/fieldvigil/fieldvigil/internal/store"
)

// Locator resolves a position to a municipality name.
type Locator interface {
	CommuneAt(ctx context.Context, lat, lon float64) (string, error)
}

// Watcher tracks the current municipality across cycles and raises a
// notification when the device crosses an administrative boundary.
// The check is opt-in: it only runs when the persisted flag is enabled.
type Watcher struct {
	store      *store.Store
	locator    Locator
	dispatcher notify.Dispatcher
	logger     zerolog.Logger
}

// NewWatcher creates a municipality change watcher.
func NewWatcher(st *store.Store, locator Locator, dispatcher notify.Dispatcher, logger zerolog.Logger) *Watcher {
	return &Watcher{
		store:      st,
		locator:    locator,
		dispatcher: dispatcher,
		logger:     logger.With().Str("component", "commune").Logger(),
	}
}

// Check resolves the municipality at the given position and notifies when it
// differs from the previously observed one. Lookup or persistence failures
// are logged and never fail the caller's cycle.
func (w *Watcher) Check(ctx context.Context, lat, lon float64) {
	enabled, err := w.store.GetBool(ctx, store.KeyNotifyCommuneChange)
	if err != nil {
		w.logger.Warn().Err(err).Msg("failed to read commune change flag")
		return
	}
	if !enabled {
		return
	}

	current, err := w.locator.CommuneAt(ctx, lat, lon)
	if err != nil {
		w.logger.Warn().Err(err).
			Float64("lat", lat).
			Float64("lon", lon).
			Msg("municipality lookup failed")
		return
	}

	previous, hasPrevious, err := w.store.Get(ctx, store.KeyLastKnownCommune)
	if err != nil {
		w.logger.Warn().Err(err).Msg("failed to read last known municipality")
		return
	}

	if hasPrevious && previous != current {
		w.logger.Info().
			Str("from", previous).
			Str("to", current).
			Msg("municipality changed")

		if err := w.dispatcher.Notify(ctx, notify.Notification{
			Title:      "🏘️ Changement de commune",
			Body:       fmt.Sprintf("Vous êtes maintenant à %s. Les risques de la zone seront rechargés.", current),
			Importance: notify.ImportanceDefault,
			Data:       map[string]string{"commune": current},
		}); err != nil {
			w.logger.Warn().Err(err).Msg("failed to notify municipality change")
		}
	}

	if err := w.store.Set(ctx, store.KeyLastKnownCommune, current); err != nil {
		w.logger.Warn().Err(err).Msg("failed to persist municipality")
	}
}
