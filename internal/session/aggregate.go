package session

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/citydwell/sessions-backend-go/internal/models"
)

var (
	// ErrSessionEnded is returned for any mutation attempted after End.
	ErrSessionEnded = errors.New("session has ended")

	// ErrDwellStateConflict is returned when a mutation would leave the
	// session with both a pending candidate and an active dwell, or
	// with more than one active dwell.
	ErrDwellStateConflict = errors.New("pending candidate and active dwell are mutually exclusive")

	// ErrNoActiveDwell is returned when an extension or finalization is
	// requested and no dwell is active.
	ErrNoActiveDwell = errors.New("no active dwell")

	// ErrDwellNotFound is returned when a dwell ID is not part of the
	// session.
	ErrDwellNotFound = errors.New("dwell not found in session")
)

// Aggregate owns the ordered route and the ordered dwell timeline of
// one tracking session. Every mutation from the detector and the visit
// reconciler goes through its methods; the internal mutex is the
// exclusive-access point that keeps the two asynchronous feeds from
// corrupting each other.
//
// The session is always in exactly one of three shapes: idle (no
// candidate, no active dwell), candidate-tracking, or dwell-active.
type Aggregate struct {
	mu sync.Mutex

	session models.Session
	route   []models.RoutePoint
	dwells  []*models.DwellPoint

	pending     *models.DwellCandidate
	activeDwell string // ID of the active dwell, "" when none
	ended       bool
}

// NewAggregate creates the aggregate for a session that starts now.
func NewAggregate(id, label string, startedAt time.Time) *Aggregate {
	return &Aggregate{
		session: models.Session{
			ID:        id,
			Label:     label,
			StartedAt: startedAt,
		},
	}
}

// AppendSample appends an accepted sample to the route.
func (a *Aggregate) AppendSample(s models.LocationSample) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.ended {
		return ErrSessionEnded
	}

	a.route = append(a.route, models.RoutePoint{
		SessionID:        a.session.ID,
		Latitude:         s.Latitude,
		Longitude:        s.Longitude,
		RecordedAt:       s.Timestamp,
		Accuracy:         s.Accuracy,
		VerticalAccuracy: s.VerticalAccuracy,
		Speed:            s.Speed,
	})
	a.session.SampleCount++
	return nil
}

// RecordRejected counts a sample dropped by the validator. Rejection is
// a filtering decision, not an error, but it must stay observable.
func (a *Aggregate) RecordRejected() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.session.RejectedCount++
}

// Candidate returns the pending dwell candidate, or nil.
func (a *Aggregate) Candidate() *models.DwellCandidate {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.pending
}

// SetCandidate installs a new pending candidate. It fails while a dwell
// is active: a candidate and an active dwell never coexist.
func (a *Aggregate) SetCandidate(c *models.DwellCandidate) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.ended {
		return ErrSessionEnded
	}
	if a.activeDwell != "" {
		return ErrDwellStateConflict
	}
	a.pending = c
	return nil
}

// ClearCandidate discards the pending candidate.
func (a *Aggregate) ClearCandidate() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.pending = nil
}

// PromoteCandidate appends the dwell built from the pending candidate
// and makes it the session's active dwell, consuming the candidate.
func (a *Aggregate) PromoteCandidate(d *models.DwellPoint) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.ended {
		return ErrSessionEnded
	}
	if a.activeDwell != "" {
		return fmt.Errorf("promote candidate: %w", ErrDwellStateConflict)
	}
	if !d.StartTime.Before(d.EndTime) {
		return models.ErrInvalidDwellRange
	}

	a.dwells = append(a.dwells, d)
	a.activeDwell = d.ID
	a.pending = nil
	return nil
}

// AppendFinalizedDwell appends a dwell that is already closed: a
// candidate promoted on exit, or a reconciled visit event. It never
// becomes the active dwell.
func (a *Aggregate) AppendFinalizedDwell(d *models.DwellPoint) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.ended {
		return ErrSessionEnded
	}
	if !d.StartTime.Before(d.EndTime) {
		return models.ErrInvalidDwellRange
	}

	a.dwells = append(a.dwells, d)
	return nil
}

// ActiveDwell returns a copy of the active dwell, or nil when idle or
// candidate-tracking.
func (a *Aggregate) ActiveDwell() *models.DwellPoint {
	a.mu.Lock()
	defer a.mu.Unlock()

	d := a.findLocked(a.activeDwell)
	if d == nil {
		return nil
	}
	cp := *d
	return &cp
}

// ExtendActiveDwell advances the active dwell's end time in place.
func (a *Aggregate) ExtendActiveDwell(end time.Time) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.ended {
		return ErrSessionEnded
	}
	d := a.findLocked(a.activeDwell)
	if d == nil {
		return ErrNoActiveDwell
	}
	return d.Extend(end)
}

// FinalizeActiveDwell closes the active dwell and returns a copy of it.
// The dwell keeps its last extended end time; after this call no
// component extends it again.
func (a *Aggregate) FinalizeActiveDwell() (*models.DwellPoint, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	d := a.findLocked(a.activeDwell)
	if d == nil {
		return nil, ErrNoActiveDwell
	}
	a.activeDwell = ""
	cp := *d
	return &cp, nil
}

// SetRevisit marks a dwell as a revisit of an earlier one. Applied once
// per dwell, when it is finalized.
func (a *Aggregate) SetRevisit(id, revisitOf string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	d := a.findLocked(id)
	if d == nil {
		return ErrDwellNotFound
	}
	d.IsRevisit = true
	d.RevisitOf = revisitOf
	return nil
}

// SetVenue records the geocoder's detected name and nearby suggestions
// for a dwell. Naming is asynchronous, so this is legal on finalized
// dwells; it never touches the time range.
func (a *Aggregate) SetVenue(id, name string, nearby []string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	d := a.findLocked(id)
	if d == nil {
		return ErrDwellNotFound
	}
	d.VenueName = name
	d.NearbyVenues = nearby
	return nil
}

// SetVenueOverride records the user's manual venue correction.
func (a *Aggregate) SetVenueOverride(id, name string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	d := a.findLocked(id)
	if d == nil {
		return ErrDwellNotFound
	}
	d.VenueOverride = name
	return nil
}

// SetRating records the user's rating and note for a dwell.
func (a *Aggregate) SetRating(id string, rating int, note string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	d := a.findLocked(id)
	if d == nil {
		return ErrDwellNotFound
	}
	d.Rating = rating
	d.Note = note
	return nil
}

// HasDwell reports whether the session contains the dwell.
func (a *Aggregate) HasDwell(id string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.findLocked(id) != nil
}

// Dwells returns a copy of the dwell timeline in append order.
func (a *Aggregate) Dwells() []models.DwellPoint {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]models.DwellPoint, len(a.dwells))
	for i, d := range a.dwells {
		out[i] = *d
	}
	return out
}

// Session returns a copy of the session record.
func (a *Aggregate) Session() models.Session {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.session
}

// Ended reports whether the session has been closed.
func (a *Aggregate) Ended() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.ended
}

// End closes the session. The caller must have flushed the detector
// first: a session never ends with a dangling candidate or an open
// active dwell.
func (a *Aggregate) End(endedAt time.Time) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.ended {
		return ErrSessionEnded
	}
	if a.pending != nil || a.activeDwell != "" {
		return ErrDwellStateConflict
	}
	a.ended = true
	a.session.EndedAt = &endedAt
	return nil
}

// Snapshot returns the serializable shape of the whole session: record,
// ordered route, ordered dwells.
func (a *Aggregate) Snapshot() models.SessionSnapshot {
	a.mu.Lock()
	defer a.mu.Unlock()

	route := make([]models.RoutePoint, len(a.route))
	copy(route, a.route)

	dwells := make([]models.DwellPoint, len(a.dwells))
	for i, d := range a.dwells {
		dwells[i] = *d
	}

	return models.SessionSnapshot{
		Session: a.session,
		Route:   route,
		Dwells:  dwells,
	}
}

func (a *Aggregate) findLocked(id string) *models.DwellPoint {
	if id == "" {
		return nil
	}
	for _, d := range a.dwells {
		if d.ID == id {
			return d
		}
	}
	return nil
}
