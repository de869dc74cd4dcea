// Package proximity matches the current position against the cached risks
// and dispatches deduplicated, cooldown-throttled alerts. The dedup state is
// in-memory only: losing it on a process restart costs at most one duplicate
// notification, never a missed one.
package proximity

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/fieldvigil/fieldvigil/internal/notify"
	"github.com/fieldvigil/fieldvigil/internal/risk"
	"github.com/fieldvigil/fieldvigil/pkg/geo"
)

// DefaultCooldown is the minimum time between repeated notifications for the
// same risk while it stays continuously in range.
const DefaultCooldown = 5 * time.Minute

// ServiceConfig holds configuration for the proximity service.
type ServiceConfig struct {
	Notifier notify.Dispatcher
	Logger   zerolog.Logger

	// Cooldown overrides DefaultCooldown when non-zero.
	Cooldown time.Duration

	Now func() time.Time
}

// Service computes which cached risks are within the alert radius of the
// current position and notifies for each, at most once per cooldown while
// the risk stays in range. A risk that leaves the radius has its state
// evicted, so re-entering alerts immediately instead of waiting out a stale
// cooldown.
type Service struct {
	notifier notify.Dispatcher
	logger   zerolog.Logger
	cooldown time.Duration
	now      func() time.Time

	notified       map[string]struct{}
	lastNotifiedAt map[string]time.Time
}

// NewService creates a proximity service.
func NewService(cfg ServiceConfig) *Service {
	cooldown := cfg.Cooldown
	if cooldown == 0 {
		cooldown = DefaultCooldown
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Service{
		notifier:       cfg.Notifier,
		logger:         cfg.Logger,
		cooldown:       cooldown,
		now:            now,
		notified:       make(map[string]struct{}),
		lastNotifiedAt: make(map[string]time.Time),
	}
}

// Check filters risks to those within alertRadiusMeters of the position,
// notifies the ones due under the cooldown policy, evicts dedup state for
// risks no longer nearby, and returns the nearby set with distances for
// diagnostics.
func (s *Service) Check(ctx context.Context, lat, lon, alertRadiusMeters float64, risks []risk.Risk) []risk.NearbyRisk {
	now := s.now()

	var nearby []risk.NearbyRisk
	for _, r := range risks {
		distance := geo.DistanceMeters(lat, lon, r.Latitude, r.Longitude)
		if distance <= alertRadiusMeters {
			nearby = append(nearby, risk.NearbyRisk{Risk: r, DistanceMeters: distance})
		}
	}

	nearbyIDs := make(map[string]struct{}, len(nearby))
	for _, r := range nearby {
		nearbyIDs[r.ID] = struct{}{}
	}

	for _, r := range nearby {
		lastAt, seen := s.lastNotifiedAt[r.ID]
		_, armed := s.notified[r.ID]
		cooledDown := !seen || now.Sub(lastAt) > s.cooldown

		if !cooledDown && armed {
			s.logger.Debug().
				Str("risk_id", r.ID).
				Dur("remaining", s.cooldown-now.Sub(lastAt)).
				Msg("risk still in cooldown")
			continue
		}

		s.dispatch(ctx, r)
		s.notified[r.ID] = struct{}{}
		s.lastNotifiedAt[r.ID] = now
	}

	// A risk out of range loses its dedup state entirely: coming back into
	// range is a fresh encounter.
	evicted := 0
	for id := range s.notified {
		if _, stillNearby := nearbyIDs[id]; !stillNearby {
			delete(s.notified, id)
			delete(s.lastNotifiedAt, id)
			evicted++
		}
	}
	if evicted > 0 {
		s.logger.Debug().Int("evicted", evicted).Msg("cleared dedup state for departed risks")
	}

	return nearby
}

func (s *Service) dispatch(ctx context.Context, r risk.NearbyRisk) {
	s.logger.Info().
		Str("risk_id", r.ID).
		Str("category", r.Category).
		Float64("distance_m", r.DistanceMeters).
		Msg("nearby risk alert")

	_ = s.notifier.Notify(ctx, notify.Notification{
		Title:      fmt.Sprintf("⚠️ Risque : %s", r.Category),
		Body:       fmt.Sprintf("À %dm - %s", int(math.Round(r.DistanceMeters)), r.Title),
		Channel:    notify.ChannelRiskAlerts,
		Importance: notify.ImportanceHigh,
		Data: map[string]string{
			"risk_id":  r.ID,
			"severity": string(r.Severity),
		},
	})
}

// Reset clears all dedup state, used when a tracking session starts or
// stops.
func (s *Service) Reset() {
	s.notified = make(map[string]struct{})
	s.lastNotifiedAt = make(map[string]time.Time)
}
