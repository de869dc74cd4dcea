package risk

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/fieldvigil/fieldvigil/internal/tournee"
	"github.com/fieldvigil/fieldvigil/pkg/geo"
)

// ErrSessionExpired is returned by Refresh when the session could not be
// renewed. The existing cache is retained.
var ErrSessionExpired = errors.New("session expired and refresh failed")

// refreshMarginKm keeps the refresh trigger one kilometer inside the search
// radius, so the device cannot wander past the edge of the previously
// fetched disk before a refresh is forced.
const refreshMarginKm = 1.0

// Fetcher fetches risks around a position from the remote API.
type Fetcher interface {
	NearbyRisks(ctx context.Context, lat, lng, radiusKm float64, accessToken string) ([]Risk, error)
}

// CredentialSource supplies and renews the access token used for fetches.
type CredentialSource interface {
	AccessToken(ctx context.Context) (string, error)
	ShouldRenew(token string) bool
	Refresh(ctx context.Context) bool
}

type fetchPoint struct {
	lat float64
	lon float64
}

// CacheConfig holds configuration for the risk cache.
type CacheConfig struct {
	Fetcher     Fetcher
	Credentials CredentialSource
	Logger      zerolog.Logger

	Now func() time.Time
}

// Cache holds the most recently fetched risk snapshot together with the
// position it was fetched at. It is owned by the single scheduled worker;
// no cycle-internal locking is needed, and the contents do not survive a
// process restart (the first cycle after a restart always refetches).
type Cache struct {
	fetcher     Fetcher
	credentials CredentialSource
	logger      zerolog.Logger
	now         func() time.Time

	risks        []Risk
	lastFetch    time.Time
	lastPosition *fetchPoint
}

// NewCache creates a risk cache.
func NewCache(cfg CacheConfig) *Cache {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Cache{
		fetcher:     cfg.Fetcher,
		credentials: cfg.Credentials,
		logger:      cfg.Logger,
		now:         now,
	}
}

// Risks returns the cached snapshot. The returned slice must not be mutated.
func (c *Cache) Risks() []Risk {
	return c.risks
}

// ShouldRefresh reports whether a fetch is warranted at the given position:
// the cache was never populated, the snapshot is older than the refresh
// interval, or the device moved within one kilometer of the edge of the
// previously fetched search disk.
func (c *Cache) ShouldRefresh(lat, lon float64, cfg tournee.Config) bool {
	if len(c.risks) == 0 || c.lastPosition == nil {
		return true
	}
	if c.now().Sub(c.lastFetch) > cfg.RefreshInterval {
		return true
	}

	displacement := geo.DistanceMeters(c.lastPosition.lat, c.lastPosition.lon, lat, lon)
	return displacement > (cfg.SearchRadiusKm-refreshMarginKm)*1000
}

// Refresh fetches risks within the search radius of the given position and
// replaces the snapshot. A 401 triggers one credential refresh followed by
// exactly one retried fetch. On any failure the existing cache is left
// untouched: stale risks still protect, an emptied cache does not.
func (c *Cache) Refresh(ctx context.Context, lat, lon float64, cfg tournee.Config) error {
	token, err := c.credentials.AccessToken(ctx)
	if err != nil || c.credentials.ShouldRenew(token) {
		c.logger.Debug().Msg("access token missing or expiring, renewing before fetch")
		if !c.credentials.Refresh(ctx) {
			c.logger.Warn().Msg("session renewal failed, keeping cached risks")
			return ErrSessionExpired
		}
		if token, err = c.credentials.AccessToken(ctx); err != nil {
			return ErrSessionExpired
		}
	}

	risks, err := c.fetcher.NearbyRisks(ctx, lat, lon, cfg.SearchRadiusKm, token)
	if errors.Is(err, ErrUnauthorized) {
		c.logger.Warn().Msg("risk fetch rejected with 401, refreshing session")
		if !c.credentials.Refresh(ctx) {
			c.logger.Warn().Msg("session renewal failed after 401, keeping cached risks")
			return ErrSessionExpired
		}
		token, tokenErr := c.credentials.AccessToken(ctx)
		if tokenErr != nil {
			return ErrSessionExpired
		}
		risks, err = c.fetcher.NearbyRisks(ctx, lat, lon, cfg.SearchRadiusKm, token)
	}
	if err != nil {
		c.logger.Warn().Err(err).Msg("risk fetch failed, keeping cached risks")
		return err
	}

	c.risks = risks
	c.lastFetch = c.now()
	c.lastPosition = &fetchPoint{lat: lat, lon: lon}

	c.logger.Info().
		Int("count", len(risks)).
		Float64("lat", lat).
		Float64("lon", lon).
		Float64("radius_km", cfg.SearchRadiusKm).
		Msg("risk cache refreshed")
	return nil
}

// Stats describes the cache for the status endpoint.
type Stats struct {
	Count       int        `json:"count"`
	LastFetchAt time.Time  `json:"last_fetch_at"`
	Populated   bool       `json:"populated"`
	FetchLat    float64    `json:"fetch_lat,omitempty"`
	FetchLon    float64    `json:"fetch_lon,omitempty"`
}

// Stats returns a snapshot description of the cache.
func (c *Cache) Stats() Stats {
	stats := Stats{
		Count:       len(c.risks),
		LastFetchAt: c.lastFetch,
		Populated:   c.lastPosition != nil,
	}
	if c.lastPosition != nil {
		stats.FetchLat = c.lastPosition.lat
		stats.FetchLon = c.lastPosition.lon
	}
	return stats
}
