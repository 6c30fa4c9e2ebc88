package models

import "time"

// LocationSample represents one position reading from the platform
// location service. Immutable once constructed.
type LocationSample struct {
	Latitude         float64   `json:"latitude"`
	Longitude        float64   `json:"longitude"`
	Timestamp        time.Time `json:"timestamp"`
	Accuracy         float64   `json:"accuracy"`         // Horizontal accuracy in meters
	VerticalAccuracy float64   `json:"verticalAccuracy"` // Vertical accuracy in meters
	Speed            float64   `json:"speed"`            // m/s, negative when unknown
}

// HasSpeed reports whether the sample carries a usable speed reading.
// Platform services use a negative value as the unknown sentinel.
func (s LocationSample) HasSpeed() bool {
	return s.Speed >= 0
}

// ValidCoordinate reports whether the sample's coordinate is a real
// latitude/longitude pair.
func (s LocationSample) ValidCoordinate() bool {
	return s.Latitude >= -90 && s.Latitude <= 90 &&
		s.Longitude >= -180 && s.Longitude <= 180
}

// RoutePoint is the persisted form of an accepted sample in the
// session's route.
type RoutePoint struct {
	ID               int64     `json:"id" db:"id"`
	SessionID        string    `json:"sessionId" db:"session_id"`
	Latitude         float64   `json:"latitude" db:"latitude"`
	Longitude        float64   `json:"longitude" db:"longitude"`
	RecordedAt       time.Time `json:"recordedAt" db:"recorded_at"`
	Accuracy         float64   `json:"accuracy" db:"accuracy"`
	VerticalAccuracy float64   `json:"verticalAccuracy" db:"vertical_accuracy"`
	Speed            float64   `json:"speed" db:"speed"`
}
