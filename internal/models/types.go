package models

import "time"

// DetectionResult is what the ledger reports back for a recorded frame.
type DetectionResult struct {
	Prediction string  `json:"prediction"`
	Confidence float64 `json:"confidence"`
	IsDrowsy   bool    `json:"is_drowsy"`
	AlertLevel string  `json:"alert_level"`
}

type RecentSession struct {
	ID              int64      `json:"id"`
	StartTime       time.Time  `json:"start_time"`
	EndTime         *time.Time `json:"end_time"`
	Alerts          int64      `json:"alerts"`
	TotalDetections int64      `json:"total_detections"`
	DetectionCount  int64      `json:"detection_count"`
}

type DriverDashboard struct {
	TotalSessions   int64           `json:"total_sessions"`
	TotalAlerts     int64           `json:"total_alerts"`
	TotalDetections int64           `json:"total_detections"`
	SafetyScore     float64         `json:"safety_score"`
	RecentSessions  []RecentSession `json:"recent_sessions"`
}

type ActiveSession struct {
	SessionID       int64     `json:"session_id"`
	UserID          int64     `json:"user_id"`
	Username        string    `json:"username"`
	StartTime       time.Time `json:"start_time"`
	TotalDetections int64     `json:"total_detections"`
	Alerts          int64     `json:"alerts"`
	LatestDrowsy    bool      `json:"latest_drowsy"`

	LatestPrediction *string `json:"-"`
}

type DetectionLogEntry struct {
	ID         int64     `json:"id"`
	SessionID  int64     `json:"session_id"`
	Timestamp  time.Time `json:"timestamp"`
	Prediction string    `json:"prediction"`
	Confidence float64   `json:"confidence"`
	Username   string    `json:"username"`
}

type FleetSnapshot struct {
	TotalDrivers       int64               `json:"total_drivers"`
	ActiveDrivers      int64               `json:"active_drivers"`
	DrowsyDrivers      int64               `json:"drowsy_drivers"`
	TotalSessions      int64               `json:"total_sessions"`
	ActiveSessions     []ActiveSession     `json:"active_sessions"`
	RecentDetectionLog []DetectionLogEntry `json:"recent_logs"`
}

type DriverSummary struct {
	ID                 int64      `json:"id"`
	Username           string     `json:"username"`
	Email              string     `json:"email"`
	Phone              *string    `json:"phone"`
	CreatedAt          time.Time  `json:"created_at"`
	TotalSessions      int64      `json:"total_sessions"`
	TotalAlerts        int64      `json:"total_alerts"`
	IsActive           bool       `json:"is_active"`
	ActiveSessionStart *time.Time `json:"active_session_start"`
}

type SessionListEntry struct {
	ID              int64      `json:"id"`
	UserID          int64      `json:"user_id"`
	Username        string     `json:"username"`
	StartTime       time.Time  `json:"start_time"`
	EndTime         *time.Time `json:"end_time"`
	TotalDetections int64      `json:"total_detections"`
	Alerts          int64      `json:"alerts"`
	Distance        float64    `json:"distance"`
}

type SessionPage struct {
	Sessions []SessionListEntry `json:"sessions"`
	Total    int64              `json:"total"`
	Limit    int                `json:"limit"`
	Offset   int                `json:"offset"`
}

type SessionDetail struct {
	Session    Session     `json:"session"`
	Detections []Detection `json:"detections"`
}

// DrowsyAlert is pushed to live subscribers whenever a drowsy frame is recorded.
type DrowsyAlert struct {
	SessionID  int64     `json:"session_id"`
	Prediction string    `json:"prediction"`
	Confidence float64   `json:"confidence"`
	AlertLevel string    `json:"alert_level"`
	Location   *Location `json:"location,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

type HealthStatus struct {
	Status     string        `json:"status"`
	Database   bool          `json:"database"`
	Classifier bool          `json:"classifier"`
	WSClients  int           `json:"ws_clients"`
	Uptime     time.Duration `json:"uptime"`
	Version    string        `json:"version,omitempty"`
}

// SessionTotals sums the stored counters over a driver's ended sessions.
type SessionTotals struct {
	Sessions         int64
	DrowsyDetections int64
	TotalDetections  int64
}
