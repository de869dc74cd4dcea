package tournee

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/fieldvigil/fieldvigil/internal/store"
)

// Cache defaults used by headless cycles when no mode parameters were ever
// persisted.
const (
	fallbackSearchRadiusKm    = 3
	fallbackAlertRadiusMeters = 100
	fallbackRefreshInterval   = 3 * time.Minute
)

// SettingsAPI fetches the per-mode parameter rows from the remote API.
type SettingsAPI interface {
	ModeSettings(ctx context.Context) ([]Setting, error)
}

// ResolverConfig holds configuration for the resolver.
type ResolverConfig struct {
	API    SettingsAPI
	Store  *store.Store
	Logger zerolog.Logger
}

// Resolver maps a travel mode to its parameters, preferring server-provided
// settings and falling back to the static table. Resolved values are
// persisted so later headless cycles, which never call the resolver, read
// the same parameters from the durable store.
type Resolver struct {
	api    SettingsAPI
	store  *store.Store
	logger zerolog.Logger
}

// NewResolver creates a mode configuration resolver.
func NewResolver(cfg ResolverConfig) *Resolver {
	return &Resolver{api: cfg.API, store: cfg.Store, logger: cfg.Logger}
}

// Resolve returns the parameters for mode and persists them. It never fails:
// an unreachable settings endpoint falls back to the static defaults.
func (r *Resolver) Resolve(ctx context.Context, mode Mode) Config {
	cfg := DefaultConfig(mode)

	settings, err := r.api.ModeSettings(ctx)
	if err != nil {
		r.logger.Warn().Err(err).Str("mode", string(mode)).Msg("mode settings unavailable, using defaults")
	} else if setting := findSetting(settings, mode); setting != nil {
		cfg = Config{
			Mode:                 mode,
			SearchRadiusKm:       setting.RiskLoadZoneKm,
			AlertRadiusMeters:    setting.AlertRadiusMeters,
			RefreshInterval:      time.Duration(setting.APICallDelayMinutes) * time.Minute,
			PositionPollInterval: time.Duration(setting.PositionTestDelaySeconds) * time.Second,
		}
		r.logger.Info().
			Str("mode", string(mode)).
			Str("label", setting.Label).
			Float64("search_radius_km", cfg.SearchRadiusKm).
			Float64("alert_radius_m", cfg.AlertRadiusMeters).
			Dur("refresh_interval", cfg.RefreshInterval).
			Dur("poll_interval", cfg.PositionPollInterval).
			Msg("mode settings resolved from API")
	} else {
		r.logger.Warn().Str("mode", string(mode)).Msg("no setting for mode, using defaults")
	}

	if err := r.Persist(ctx, cfg); err != nil {
		r.logger.Error().Err(err).Msg("persist mode configuration")
	}
	return cfg
}

func findSetting(settings []Setting, mode Mode) *Setting {
	for i := range settings {
		if settings[i].TourneeType == mode {
			return &settings[i]
		}
	}
	return nil
}

// Persist writes the resolved configuration to the durable store.
func (r *Resolver) Persist(ctx context.Context, cfg Config) error {
	if err := r.store.Set(ctx, store.KeyTourneeType, string(cfg.Mode)); err != nil {
		return err
	}
	if err := r.store.SetInt64(ctx, store.KeyAPICallDelayMinutes, int64(cfg.RefreshInterval/time.Minute)); err != nil {
		return err
	}
	if err := r.store.SetFloat64(ctx, store.KeyAlertRadiusMeters, cfg.AlertRadiusMeters); err != nil {
		return err
	}
	if err := r.store.SetFloat64(ctx, store.KeyRiskLoadZoneKm, cfg.SearchRadiusKm); err != nil {
		return err
	}
	return r.store.SetInt64(ctx, store.KeyPositionTestDelaySeconds, int64(cfg.PositionPollInterval/time.Second))
}

// Load reads the persisted configuration for a headless cycle. Missing or
// unreadable keys fall back to built-in defaults; a cycle is never blocked
// on configuration.
func Load(ctx context.Context, st *store.Store, logger zerolog.Logger) Config {
	cfg := Config{
		SearchRadiusKm:    fallbackSearchRadiusKm,
		AlertRadiusMeters: fallbackAlertRadiusMeters,
		RefreshInterval:   fallbackRefreshInterval,
	}

	if mode, ok, err := st.Get(ctx, store.KeyTourneeType); err == nil && ok {
		cfg.Mode = Mode(mode)
	}

	delayMin, okDelay, errDelay := st.GetInt64(ctx, store.KeyAPICallDelayMinutes)
	alertM, okAlert, errAlert := st.GetFloat64(ctx, store.KeyAlertRadiusMeters)
	zoneKm, okZone, errZone := st.GetFloat64(ctx, store.KeyRiskLoadZoneKm)

	if errDelay != nil || errAlert != nil || errZone != nil {
		logger.Warn().
			AnErr("delay", errDelay).
			AnErr("alert", errAlert).
			AnErr("zone", errZone).
			Msg("unreadable mode parameters, using defaults")
		return cfg
	}

	if okDelay && okAlert && okZone {
		cfg.RefreshInterval = time.Duration(delayMin) * time.Minute
		cfg.AlertRadiusMeters = alertM
		cfg.SearchRadiusKm = zoneKm
	} else {
		logger.Warn().Msg("missing mode parameters, using defaults")
	}

	if pollSec, ok, err := st.GetInt64(ctx, store.KeyPositionTestDelaySeconds); err == nil && ok {
		cfg.PositionPollInterval = time.Duration(pollSec) * time.Second
	}

	return cfg
}
