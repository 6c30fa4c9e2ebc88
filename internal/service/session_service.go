package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/citydwell/sessions-backend-go/internal/config"
	"github.com/citydwell/sessions-backend-go/internal/geocoding"
	"github.com/citydwell/sessions-backend-go/internal/models"
	"github.com/citydwell/sessions-backend-go/internal/notify"
	"github.com/citydwell/sessions-backend-go/internal/repository"
	"github.com/citydwell/sessions-backend-go/internal/session"
)

var (
	// ErrSessionNotFound is returned when neither a live tracker nor a
	// stored session matches the ID.
	ErrSessionNotFound = errors.New("session not found")

	// ErrDwellNotFound is returned when a dwell ID matches nothing.
	ErrDwellNotFound = errors.New("dwell not found")
)

// SessionService owns the set of live trackers plus the persistence of
// finished sessions. One tracker per session, wired explicitly; there
// is no process-wide detector.
type SessionService struct {
	cfg *config.Config

	mu       sync.Mutex
	trackers map[string]*session.Tracker

	sessions *repository.SessionRepository
	dwells   *repository.DwellRepository

	geocoder geocoding.Geocoder
	notifier notify.Notifier
}

// NewSessionService creates the service.
func NewSessionService(cfg *config.Config, sessions *repository.SessionRepository, dwells *repository.DwellRepository, geocoder geocoding.Geocoder, notifier notify.Notifier) *SessionService {
	return &SessionService{
		cfg:      cfg,
		trackers: make(map[string]*session.Tracker),
		sessions: sessions,
		dwells:   dwells,
		geocoder: geocoder,
		notifier: notifier,
	}
}

// StartSession creates a session and begins tracking it.
func (s *SessionService) StartSession(label string) (models.Session, error) {
	id := uuid.NewString()
	agg := session.NewAggregate(id, label, time.Now())
	tracker := session.NewTracker(agg, s.cfg.Detector, s.cfg.VisitEventsEnabled, s.geocoder, s.notifier)

	record := agg.Session()
	if err := s.sessions.Create(record); err != nil {
		return models.Session{}, fmt.Errorf("start session: %w", err)
	}

	s.mu.Lock()
	s.trackers[id] = tracker
	s.mu.Unlock()

	log.Printf("[SessionService] Started session %s", id)
	return record, nil
}

// IngestSamples pushes samples through a live session's detector, in
// the order given.
func (s *SessionService) IngestSamples(sessionID string, samples []models.LocationSample) error {
	tracker, ok := s.tracker(sessionID)
	if !ok {
		return ErrSessionNotFound
	}

	for _, sample := range samples {
		if err := tracker.IngestSample(sample); err != nil {
			return err
		}
	}
	return nil
}

// IngestVisit merges a platform visit event into a live session.
func (s *SessionService) IngestVisit(sessionID string, event models.VisitEvent) error {
	tracker, ok := s.tracker(sessionID)
	if !ok {
		return ErrSessionNotFound
	}
	return tracker.IngestVisit(event)
}

// StopSession flushes the detector, closes the session and persists the
// final snapshot.
func (s *SessionService) StopSession(sessionID string) (models.SessionSnapshot, error) {
	s.mu.Lock()
	tracker, ok := s.trackers[sessionID]
	if ok {
		delete(s.trackers, sessionID)
	}
	s.mu.Unlock()

	if !ok {
		return models.SessionSnapshot{}, ErrSessionNotFound
	}

	snap, err := tracker.Stop()
	if err != nil {
		return models.SessionSnapshot{}, err
	}

	if err := s.sessions.SaveSnapshot(snap); err != nil {
		// Detection already succeeded; the snapshot is returned even
		// when the save fails so the caller can retry.
		log.Printf("[SessionService] Failed to persist session %s: %v", sessionID, err)
		return snap, fmt.Errorf("persist session: %w", err)
	}

	log.Printf("[SessionService] Stopped session %s: %d dwells, %d samples",
		sessionID, len(snap.Dwells), snap.Session.SampleCount)
	return snap, nil
}

// GetSession returns a session's current shape: the live snapshot for a
// running session, otherwise the stored one.
func (s *SessionService) GetSession(sessionID string) (models.SessionSnapshot, error) {
	if tracker, ok := s.tracker(sessionID); ok {
		return tracker.Snapshot(), nil
	}

	record, err := s.sessions.GetByID(sessionID)
	if err != nil {
		return models.SessionSnapshot{}, err
	}
	if record == nil {
		return models.SessionSnapshot{}, ErrSessionNotFound
	}

	route, err := s.sessions.GetRoute(sessionID)
	if err != nil {
		return models.SessionSnapshot{}, err
	}
	dwells, _, err := s.dwells.GetDwells(models.DwellFilter{SessionID: sessionID, PageSize: 1000})
	if err != nil {
		return models.SessionSnapshot{}, err
	}

	return models.SessionSnapshot{Session: *record, Route: route, Dwells: dwells}, nil
}

// ListSessions lists stored sessions.
func (s *SessionService) ListSessions(filter models.SessionFilter) ([]models.Session, int64, error) {
	return s.sessions.List(filter)
}

// ListDwells lists dwells from live and stored sessions. A live
// session's dwells come from its aggregate; everything else from the
// database.
func (s *SessionService) ListDwells(filter models.DwellFilter) ([]models.DwellPoint, int64, error) {
	if filter.SessionID != "" {
		if tracker, ok := s.tracker(filter.SessionID); ok {
			dwells := tracker.Aggregate().Dwells()
			return dwells, int64(len(dwells)), nil
		}
	}
	return s.dwells.GetDwells(filter)
}

// GetDwell returns one dwell from a live or stored session.
func (s *SessionService) GetDwell(dwellID string) (*models.DwellPoint, error) {
	if tracker, ok := s.trackerForDwell(dwellID); ok {
		for _, d := range tracker.Aggregate().Dwells() {
			if d.ID == dwellID {
				return &d, nil
			}
		}
	}

	d, err := s.dwells.GetByID(dwellID)
	if err != nil {
		return nil, err
	}
	if d == nil {
		return nil, ErrDwellNotFound
	}
	return d, nil
}

// OverrideVenue records the user's manual venue correction and
// persists it immediately.
func (s *SessionService) OverrideVenue(dwellID, name string) error {
	if tracker, ok := s.trackerForDwell(dwellID); ok {
		if err := tracker.Aggregate().SetVenueOverride(dwellID, name); err != nil {
			return err
		}
		return s.persistLive(tracker)
	}

	err := s.dwells.UpdateVenueOverride(dwellID, name)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrDwellNotFound
	}
	return err
}

// RateDwell records the user's rating and note and persists them
// immediately.
func (s *SessionService) RateDwell(dwellID string, rating int, note string) error {
	if tracker, ok := s.trackerForDwell(dwellID); ok {
		if err := tracker.Aggregate().SetRating(dwellID, rating, note); err != nil {
			return err
		}
		return s.persistLive(tracker)
	}

	err := s.dwells.UpdateRating(dwellID, rating, note)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrDwellNotFound
	}
	return err
}

// NearbyVenues proxies the geocoder's venue suggestions around a
// dwell's anchor, for manual correction.
func (s *SessionService) NearbyVenues(ctx context.Context, dwellID string) ([]models.VenueCandidate, error) {
	d, err := s.GetDwell(dwellID)
	if err != nil {
		return nil, err
	}
	return s.geocoder.NearbyVenues(ctx, d.AnchorLat, d.AnchorLon, s.cfg.Detector.VisitMergeDistanceMeters)
}

// tracker returns the live tracker for a session, when there is one.
func (s *SessionService) tracker(sessionID string) (*session.Tracker, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.trackers[sessionID]
	return t, ok
}

// trackerForDwell finds the live tracker owning a dwell.
func (s *SessionService) trackerForDwell(dwellID string) (*session.Tracker, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.trackers {
		if t.Aggregate().HasDwell(dwellID) {
			return t, true
		}
	}
	return nil, false
}

// persistLive saves the current snapshot of a still-running session so
// user-visible edits survive a crash.
func (s *SessionService) persistLive(tracker *session.Tracker) error {
	if err := s.sessions.SaveSnapshot(tracker.Snapshot()); err != nil {
		return fmt.Errorf("persist live session: %w", err)
	}
	return nil
}
