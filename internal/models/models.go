package models

import "time"

const (
	RoleDriver = "driver"
	RoleAdmin  = "admin"
)

type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Phone        *string   `json:"phone"`
	Role         string    `json:"role"`
	CreatedAt    time.Time `json:"created_at"`
}

type Location struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// NewLocation returns nil unless both coordinates are present.
func NewLocation(lat, lng *float64) *Location {
	if lat == nil || lng == nil {
		return nil
	}
	return &Location{Lat: *lat, Lng: *lng}
}

type Session struct {
	ID               int64      `json:"id"`
	UserID           int64      `json:"user_id"`
	StartTime        time.Time  `json:"start_time"`
	EndTime          *time.Time `json:"end_time"`
	TotalDetections  int64      `json:"total_detections"`
	DrowsyDetections int64      `json:"drowsy_detections"`
	DistanceKm       float64    `json:"distance"`
	StartLocation    *Location  `json:"start_location,omitempty"`
	EndLocation      *Location  `json:"end_location,omitempty"`
}

// Active reports whether the session has not been ended yet.
func (s Session) Active() bool {
	return s.EndTime == nil
}

type Detection struct {
	ID         int64     `json:"-"`
	SessionID  int64     `json:"-"`
	Timestamp  time.Time `json:"timestamp"`
	Prediction string    `json:"prediction"`
	Confidence float64   `json:"confidence"`
	Location   *Location `json:"location"`
}

type RegisterRequest struct {
	Username string  `json:"username"`
	Email    string  `json:"email"`
	Password string  `json:"password"`
	Phone    *string `json:"phone,omitempty"`
	Role     string  `json:"role,omitempty"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Role     string `json:"role,omitempty"`
}

type StartSessionRequest struct {
	UserID    int64    `json:"user_id"`
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`
}

type EndSessionRequest struct {
	DistanceKm *float64 `json:"distance_km,omitempty"`
	Latitude   *float64 `json:"latitude,omitempty"`
	Longitude  *float64 `json:"longitude,omitempty"`
}
