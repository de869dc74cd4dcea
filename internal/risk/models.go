// Package risk holds the geolocated hazard model and the spatially-bounded
// cache the background engine checks proximity against.
package risk

import "errors"

// ErrUnauthorized is returned by the remote API client when the access token
// is rejected. The cache treats it as the trigger for one credential
// refresh-and-retry.
var ErrUnauthorized = errors.New("unauthorized")

// Severity grades a risk.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Risk is a geolocated hazard record owned by the remote API. Cached copies
// are read-only snapshots.
type Risk struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Category    string   `json:"category"`
	Severity    Severity `json:"severity"`
	Latitude    float64  `json:"latitude"`
	Longitude   float64  `json:"longitude"`
	Description string   `json:"description,omitempty"`
}

// NearbyRisk is a cached risk annotated with its distance in meters from the
// current position.
type NearbyRisk struct {
	Risk
	DistanceMeters float64
}
