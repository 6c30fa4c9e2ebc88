package models

import "time"

// Session is the persisted record of one tracking session.
type Session struct {
	ID            string     `json:"id" db:"id"`
	Label         string     `json:"label,omitempty" db:"label"`
	StartedAt     time.Time  `json:"startedAt" db:"started_at"`
	EndedAt       *time.Time `json:"endedAt,omitempty" db:"ended_at"`
	SampleCount   int64      `json:"sampleCount" db:"sample_count"`
	RejectedCount int64      `json:"rejectedCount" db:"rejected_count"`
	CreatedAt     time.Time  `json:"createdAt,omitempty" db:"created_at"`
}

// Ended reports whether the session has been closed.
func (s *Session) Ended() bool {
	return s.EndedAt != nil
}

// SessionSnapshot is the serialized shape of a full session handed to
// the persistence layer: the record plus its ordered route and dwells.
type SessionSnapshot struct {
	Session Session      `json:"session"`
	Route   []RoutePoint `json:"route"`
	Dwells  []DwellPoint `json:"dwells"`
}

// SessionFilter represents filter parameters for querying sessions.
type SessionFilter struct {
	StartedAfter  int64 `form:"startedAfter"` // Unix timestamp
	StartedBefore int64 `form:"startedBefore"`
	ActiveOnly    bool  `form:"activeOnly"`
	Page          int   `form:"page"`
	PageSize      int   `form:"pageSize"`
}
