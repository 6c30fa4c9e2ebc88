package models

// VenueCandidate is a nearby venue suggestion from the geocoding
// collaborator, used for manual correction only.
type VenueCandidate struct {
	Name           string  `json:"name"`
	Latitude       float64 `json:"latitude"`
	Longitude      float64 `json:"longitude"`
	DistanceMeters float64 `json:"distanceMeters"`
	Category       string  `json:"category,omitempty"`
}
