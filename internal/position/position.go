// Package position abstracts the source of device location fixes.
package position

import (
	"errors"
	"time"
)

// Well-known acquisition failures.
var (
	// ErrTimeout means no fix arrived within the acquisition window.
	ErrTimeout = errors.New("position acquisition timed out")

	// ErrPermissionDenied means the platform refused location access.
	ErrPermissionDenied = errors.New("location permission denied")

	// ErrUnavailable means the location source is not reachable.
	ErrUnavailable = errors.New("position source unavailable")
)

// Position is a single location fix.
type Position struct {
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Accuracy  float64   `json:"accuracy"`
	At        time.Time `json:"at"`
}
