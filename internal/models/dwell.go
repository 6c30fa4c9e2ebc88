package models

import (
	"errors"
	"time"
)

// ErrInvalidDwellRange is returned when a dwell is constructed or
// extended such that startTime would not precede endTime.
var ErrInvalidDwellRange = errors.New("dwell start time must precede end time")

// Confidence is a qualitative estimate of how trustworthy a dwell's
// location and duration are.
type Confidence string

const (
	ConfidenceHigh      Confidence = "HIGH"
	ConfidenceMedium    Confidence = "MEDIUM"
	ConfidenceLow       Confidence = "LOW"
	ConfidenceEstimated Confidence = "ESTIMATED" // Reconciled from a platform visit event
)

// DwellType buckets a dwell by duration.
type DwellType string

const (
	DwellTypePassedThrough DwellType = "PASSED_THROUGH" // under 10 min
	DwellTypeQuickStop     DwellType = "QUICK_STOP"     // 10-20 min
	DwellTypeVisit         DwellType = "VISIT"          // 20-40 min
	DwellTypeLongVisit     DwellType = "LONG_VISIT"     // 40-60 min
	DwellTypeMarathon      DwellType = "MARATHON"       // 60 min and up
)

// DwellPoint represents a confirmed stop at one location.
//
// While a dwell is the session's active dwell its EndTime may be
// advanced; once finalized no component extends it again.
type DwellPoint struct {
	ID        string  `json:"id" db:"id"`
	SessionID string  `json:"sessionId" db:"session_id"`
	AnchorLat float64 `json:"anchorLat" db:"anchor_lat"`
	AnchorLon float64 `json:"anchorLon" db:"anchor_lon"`

	StartTime time.Time `json:"startTime" db:"start_time"`
	EndTime   time.Time `json:"endTime" db:"end_time"`

	Confidence  Confidence `json:"confidence" db:"confidence"`
	SampleCount int        `json:"sampleCount,omitempty" db:"sample_count"`

	IsRevisit bool   `json:"isRevisit" db:"is_revisit"`
	RevisitOf string `json:"revisitOf,omitempty" db:"revisit_of"`

	VenueName     string   `json:"venueName,omitempty" db:"venue_name"`
	VenueOverride string   `json:"venueOverride,omitempty" db:"venue_override"`
	NearbyVenues  []string `json:"nearbyVenues,omitempty" db:"nearby_venues"`

	Rating int    `json:"rating,omitempty" db:"rating"`
	Note   string `json:"note,omitempty" db:"note"`

	CreatedAt time.Time `json:"createdAt,omitempty" db:"created_at"`
}

// NewDwellPoint constructs a dwell, rejecting an inverted or empty time
// range. A violated range here is a caller bug, not a reason to kill a
// live tracking session.
func NewDwellPoint(id, sessionID string, lat, lon float64, start, end time.Time, confidence Confidence) (*DwellPoint, error) {
	if !start.Before(end) {
		return nil, ErrInvalidDwellRange
	}
	return &DwellPoint{
		ID:         id,
		SessionID:  sessionID,
		AnchorLat:  lat,
		AnchorLon:  lon,
		StartTime:  start,
		EndTime:    end,
		Confidence: confidence,
	}, nil
}

// Extend advances the dwell's end time. It preserves the range
// invariant by rejecting any end that does not follow the start.
func (d *DwellPoint) Extend(end time.Time) error {
	if !d.StartTime.Before(end) {
		return ErrInvalidDwellRange
	}
	d.EndTime = end
	return nil
}

// Duration returns how long the dwell lasted.
func (d *DwellPoint) Duration() time.Duration {
	return d.EndTime.Sub(d.StartTime)
}

// Type buckets the dwell by its duration.
func (d *DwellPoint) Type() DwellType {
	switch m := d.Duration().Minutes(); {
	case m < 10:
		return DwellTypePassedThrough
	case m < 20:
		return DwellTypeQuickStop
	case m < 40:
		return DwellTypeVisit
	case m < 60:
		return DwellTypeLongVisit
	default:
		return DwellTypeMarathon
	}
}

// DisplayName prefers the user's override over the detected venue name.
func (d *DwellPoint) DisplayName() string {
	if d.VenueOverride != "" {
		return d.VenueOverride
	}
	return d.VenueName
}

// DwellFilter represents filter parameters for querying dwells.
type DwellFilter struct {
	SessionID    string `form:"sessionId"`
	StartTime    int64  `form:"startTime"` // Unix timestamp
	EndTime      int64  `form:"endTime"`   // Unix timestamp
	MinDurationS int64  `form:"minDuration"`
	Confidence   string `form:"confidence"`
	RevisitsOnly bool   `form:"revisitsOnly"`
	Page         int    `form:"page"`
	PageSize     int    `form:"pageSize"`
}
