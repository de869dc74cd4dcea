package notify

import "time"

// ChannelRiskAlerts is the notification channel used by the tracking engine.
// The identifier is carried over from the mobile app's notification channel.
const ChannelRiskAlerts = "risk-alerts-final"

// Importance mirrors the platform notification importance levels the engine
// distinguishes between.
type Importance string

const (
	ImportanceDefault Importance = "default"
	ImportanceHigh    Importance = "high"
)

// Notification is a user-facing message handed to a Sink. Delivery is
// fire-and-forget; the engine never waits for a confirmation.
type Notification struct {
	Title      string            `json:"title"`
	Body       string            `json:"body"`
	Channel    string            `json:"channel"`
	Importance Importance        `json:"importance"`
	Data       map[string]string `json:"data,omitempty"`
}

// Dispatched records a notification that went through the dispatch service.
type Dispatched struct {
	ID string `json:"id"`
	Notification
	At time.Time `json:"at"`
}
