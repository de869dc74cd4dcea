package store

// Key names are carried over from the mobile app's AsyncStorage so that the
// persisted state format stays recognizable across the two codebases.
const (
	// KeyTourneeType holds the selected travel mode. Its presence doubles as
	// the "tracking active" signal: clearing it stops the background engine.
	KeyTourneeType = "tourneeType"

	// KeyTrackingStartTime holds the session start time in Unix milliseconds.
	KeyTrackingStartTime = "trackingStartTime"

	// KeyLastTaskRun holds the timestamp of the previous scheduled cycle in
	// Unix milliseconds, used by the slowdown monitor.
	KeyLastTaskRun = "lastTaskRun"

	// Per-mode parameters resolved at tracking start.
	KeyAPICallDelayMinutes      = "apiCallDelayMinutes"
	KeyAlertRadiusMeters        = "alertRadiusMeters"
	KeyRiskLoadZoneKm           = "riskLoadZoneKm"
	KeyPositionTestDelaySeconds = "positionTestDelaySeconds"

	// Municipality watcher state.
	KeyNotifyCommuneChange = "notifyCommuneChange"
	KeyLastKnownCommune    = "lastKnownCommune"

	// Credentials for the remote risk API.
	KeyAccessToken  = "accessToken"
	KeyRefreshToken = "refreshToken"

	// KeyActiveAPIURL holds the base URL of the remote risk API, persisted
	// at login so headless cycles resolve the same server.
	KeyActiveAPIURL = "activeApiUrl"
)

// SessionKeys are the keys cleared when a tracking session ends, whether by
// user action or by the maximum-duration cutoff.
var SessionKeys = []string{
	KeyTourneeType,
	KeyTrackingStartTime,
	KeyLastTaskRun,
	KeyAPICallDelayMinutes,
	KeyAlertRadiusMeters,
	KeyRiskLoadZoneKm,
	KeyPositionTestDelaySeconds,
}
