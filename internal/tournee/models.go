// Package tournee resolves and persists the per-mode tracking parameters:
// how often the risk cache refreshes, how far the engine looks, how close a
// risk must be to alert, and how often the position is polled.
package tournee

import "time"

// Mode is the travel mode selected for a patrol round.
type Mode string

const (
	ModePieds   Mode = "pieds"
	ModeVelo    Mode = "velo"
	ModeVoiture Mode = "voiture"
)

// Valid reports whether m is a known travel mode.
func (m Mode) Valid() bool {
	switch m {
	case ModePieds, ModeVelo, ModeVoiture:
		return true
	}
	return false
}

// Config is the resolved parameter set for one travel mode.
type Config struct {
	Mode                 Mode
	SearchRadiusKm       float64
	AlertRadiusMeters    float64
	RefreshInterval      time.Duration
	PositionPollInterval time.Duration
}

// Setting is a per-mode parameter row as served by the remote API.
type Setting struct {
	ID                       string  `json:"id"`
	TourneeType              Mode    `json:"tourneeType"`
	Label                    string  `json:"label"`
	APICallDelayMinutes      int     `json:"apiCallDelayMinutes"`
	PositionTestDelaySeconds int     `json:"positionTestDelaySeconds"`
	RiskLoadZoneKm           float64 `json:"riskLoadZoneKm"`
	AlertRadiusMeters        float64 `json:"alertRadiusMeters"`
}

// DefaultConfig returns the static fallback parameters for a mode, used when
// the remote settings endpoint is unreachable. The server-provided values
// are authoritative whenever available.
func DefaultConfig(mode Mode) Config {
	cfg := Config{
		Mode:                 mode,
		SearchRadiusKm:       5,
		AlertRadiusMeters:    100,
		RefreshInterval:      5 * time.Minute,
		PositionPollInterval: 30 * time.Second,
	}

	switch mode {
	case ModePieds:
		cfg.SearchRadiusKm = 5
		cfg.AlertRadiusMeters = 60
		cfg.RefreshInterval = 10 * time.Minute
		cfg.PositionPollInterval = 30 * time.Second
	case ModeVelo:
		cfg.SearchRadiusKm = 10
		cfg.AlertRadiusMeters = 100
		cfg.RefreshInterval = 3 * time.Minute
		cfg.PositionPollInterval = 20 * time.Second
	case ModeVoiture:
		cfg.SearchRadiusKm = 10
		cfg.AlertRadiusMeters = 250
		cfg.RefreshInterval = 2 * time.Minute
		cfg.PositionPollInterval = 10 * time.Second
	}

	return cfg
}
