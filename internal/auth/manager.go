// Package auth manages the agent's credentials for the remote risk API:
// a short-lived access token and the refresh token used to renew it while
// the background engine runs unattended.
package auth

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"

	"github.com/fieldvigil/fieldvigil/internal/store"
)

// ErrNoSession is returned when no credentials are persisted.
var ErrNoSession = errors.New("no persisted session")

// Session is a renewed credential pair. RefreshToken is empty when the
// server did not rotate it.
type Session struct {
	AccessToken  string
	RefreshToken string
}

// SessionRefresher exchanges a refresh token for a new session against the
// remote API.
type SessionRefresher interface {
	RefreshSession(ctx context.Context, refreshToken string) (Session, error)
}

// ManagerConfig holds configuration for the credential manager.
type ManagerConfig struct {
	Store     *store.Store
	Refresher SessionRefresher
	Logger    zerolog.Logger

	// RefreshTimeout bounds the renewal call. Default: 10s.
	RefreshTimeout time.Duration

	// ExpirySkew is how close to expiry an access token may get before it
	// is treated as expiring. Default: 60s.
	ExpirySkew time.Duration

	Now func() time.Time
}

// Manager reads, renews and persists credentials. All renewal failures
// collapse to a boolean: a scheduled cycle degrades on a failed refresh, it
// never crashes on one.
type Manager struct {
	store          *store.Store
	refresher      SessionRefresher
	logger         zerolog.Logger
	refreshTimeout time.Duration
	expirySkew     time.Duration
	now            func() time.Time
}

// NewManager creates a credential manager.
func NewManager(cfg ManagerConfig) *Manager {
	refreshTimeout := cfg.RefreshTimeout
	if refreshTimeout == 0 {
		refreshTimeout = 10 * time.Second
	}
	expirySkew := cfg.ExpirySkew
	if expirySkew == 0 {
		expirySkew = 60 * time.Second
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Manager{
		store:          cfg.Store,
		refresher:      cfg.Refresher,
		logger:         cfg.Logger,
		refreshTimeout: refreshTimeout,
		expirySkew:     expirySkew,
		now:            now,
	}
}

// AccessToken returns the persisted access token, or ErrNoSession when none
// is stored.
func (m *Manager) AccessToken(ctx context.Context) (string, error) {
	token, ok, err := m.store.Get(ctx, store.KeyAccessToken)
	if err != nil {
		return "", err
	}
	if !ok || token == "" {
		return "", ErrNoSession
	}
	return token, nil
}

// ShouldRenew reports whether the access token is missing, malformed, or
// within the expiry skew of its exp claim. The token is inspected without
// signature verification; the server remains the authority, this only saves
// a doomed round-trip.
func (m *Manager) ShouldRenew(token string) bool {
	if token == "" {
		return true
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return true
	}

	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		// No exp claim: assume the server enforces expiry and let the 401
		// path handle it.
		return false
	}

	return m.now().Add(m.expirySkew).After(exp.Time)
}

// Refresh exchanges the persisted refresh token for a new session and
// persists the result. It returns false on any failure — missing refresh
// token, transport error, rejection — leaving existing credentials intact.
func (m *Manager) Refresh(ctx context.Context) bool {
	refreshToken, ok, err := m.store.Get(ctx, store.KeyRefreshToken)
	if err != nil {
		m.logger.Error().Err(err).Msg("read refresh token")
		return false
	}
	if !ok || refreshToken == "" {
		m.logger.Warn().Msg("no refresh token, session cannot be renewed")
		return false
	}

	refreshCtx, cancel := context.WithTimeout(ctx, m.refreshTimeout)
	defer cancel()

	session, err := m.refresher.RefreshSession(refreshCtx, refreshToken)
	if err != nil {
		m.logger.Warn().Err(err).Msg("session refresh failed")
		return false
	}

	if err := m.store.Set(ctx, store.KeyAccessToken, session.AccessToken); err != nil {
		m.logger.Error().Err(err).Msg("persist access token")
		return false
	}
	if session.RefreshToken != "" {
		if err := m.store.Set(ctx, store.KeyRefreshToken, session.RefreshToken); err != nil {
			m.logger.Error().Err(err).Msg("persist rotated refresh token")
			return false
		}
	}

	m.logger.Info().Msg("session renewed")
	return true
}

// Logout clears credentials. While a background tracking session is active
// only the access token is cleared: the headless cycles still need the
// refresh token to renew the session after the user signed out of the
// foreground app.
func (m *Manager) Logout(ctx context.Context, trackingActive bool) error {
	if trackingActive {
		return m.store.Delete(ctx, store.KeyAccessToken)
	}
	return m.store.Delete(ctx, store.KeyAccessToken, store.KeyRefreshToken)
}
