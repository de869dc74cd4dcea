// Package notify dispatches user-facing notifications from the background
// tracking engine to a pluggable sink. The engine's only synchronous
// observability is logs; everything a user learns about (nearby risks,
// throttling, session expiry, municipality changes) flows through here.
package notify

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const historyLimit = 300

// Sink delivers a notification to the platform presentation subsystem.
type Sink interface {
	Send(ctx context.Context, n Notification) error
}

// Dispatcher is the interface consumed by engine components that emit
// notifications.
type Dispatcher interface {
	Notify(ctx context.Context, n Notification) error
}

// ServiceConfig holds configuration for the dispatch service.
type ServiceConfig struct {
	Sink   Sink
	Logger zerolog.Logger

	// FloodLimit caps the sustained notification rate across all sources.
	// Default: one every 2 seconds with a burst of 5. The per-risk cooldown
	// logic lives upstream; this is a last-resort guard against a
	// misbehaving cycle buzzing the user.
	FloodLimit rate.Limit
	FloodBurst int
}

// Service dispatches notifications through the configured sink, applying a
// global flood limit and keeping a bounded in-memory history for the status
// endpoint.
type Service struct {
	sink    Sink
	logger  zerolog.Logger
	limiter *rate.Limiter

	mu      sync.Mutex
	history []Dispatched
}

// NewService creates a notification dispatch service.
func NewService(cfg ServiceConfig) *Service {
	limit := cfg.FloodLimit
	if limit == 0 {
		limit = rate.Every(2 * time.Second)
	}
	burst := cfg.FloodBurst
	if burst == 0 {
		burst = 5
	}

	return &Service{
		sink:    cfg.Sink,
		logger:  cfg.Logger,
		limiter: rate.NewLimiter(limit, burst),
	}
}

// Notify sends a notification through the sink. A notification dropped by
// the flood guard or failed by the sink is logged and swallowed; callers in
// scheduled cycles must not fail because presentation did.
func (s *Service) Notify(ctx context.Context, n Notification) error {
	if n.Channel == "" {
		n.Channel = ChannelRiskAlerts
	}
	if n.Importance == "" {
		n.Importance = ImportanceDefault
	}

	if !s.limiter.Allow() {
		s.logger.Warn().
			Str("title", n.Title).
			Msg("notification dropped by flood guard")
		return nil
	}

	dispatched := Dispatched{
		ID:           uuid.NewString(),
		Notification: n,
		At:           time.Now(),
	}

	if err := s.sink.Send(ctx, n); err != nil {
		s.logger.Warn().
			Err(err).
			Str("title", n.Title).
			Str("channel", n.Channel).
			Msg("notification send failed")
		return nil
	}

	s.logger.Debug().
		Str("id", dispatched.ID).
		Str("title", n.Title).
		Str("channel", n.Channel).
		Msg("notification dispatched")

	s.appendHistory(dispatched)
	return nil
}

func (s *Service) appendHistory(d Dispatched) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history, d)
	if len(s.history) > historyLimit {
		s.history = s.history[len(s.history)-historyLimit:]
	}
}

// History returns a copy of the recent dispatch history.
func (s *Service) History() []Dispatched {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Dispatched, len(s.history))
	copy(out, s.history)
	return out
}
