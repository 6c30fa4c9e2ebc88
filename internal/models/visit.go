package models

import "time"

// VisitEvent is a coarse arrival/departure signal from the platform's
// low-power visit service. Read-only input, not owned by this backend.
type VisitEvent struct {
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Arrival   time.Time `json:"arrival"`
	Departure time.Time `json:"departure"`
	Accuracy  float64   `json:"accuracy"` // Horizontal accuracy in meters
}

// Duration returns the span between arrival and departure.
func (v VisitEvent) Duration() time.Duration {
	return v.Departure.Sub(v.Arrival)
}
