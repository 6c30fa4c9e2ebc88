package service

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/citydwell/sessions-backend-go/internal/config"
	"github.com/citydwell/sessions-backend-go/internal/database"
	"github.com/citydwell/sessions-backend-go/internal/geocoding"
	"github.com/citydwell/sessions-backend-go/internal/models"
	"github.com/citydwell/sessions-backend-go/internal/notify"
	"github.com/citydwell/sessions-backend-go/internal/repository"
)

func newTestService(t *testing.T) (*SessionService, *sql.DB) {
	t.Helper()

	db, err := database.Open(database.Config{Path: filepath.Join(t.TempDir(), "test.db")})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	cfg := &config.Config{
		VisitEventsEnabled: true,
		Detector: config.DetectorConfig{
			RadiusMeters:              25,
			MinDuration:               1200 * time.Second,
			MovementSpeedThreshold:    1.4,
			MaxAccuracyMeters:         100,
			MaxVerticalAccuracyMeters: 50,
			MaxSampleAge:              60 * time.Second,
			VisitMergeDistanceMeters:  50,
			RevisitDistanceMeters:     35,
		},
	}

	svc := NewSessionService(cfg,
		repository.NewSessionRepository(db),
		repository.NewDwellRepository(db),
		geocoding.Noop{}, notify.LogNotifier{})
	return svc, db
}

func TestServiceSessionLifecycle(t *testing.T) {
	svc, _ := newTestService(t)

	record, err := svc.StartSession("evening errands")
	require.NoError(t, err)
	require.NotEmpty(t, record.ID)
	assert.Equal(t, "evening errands", record.Label)

	// One good sample and one too inaccurate to keep.
	err = svc.IngestSamples(record.ID, []models.LocationSample{
		{Latitude: 40.7128, Longitude: -74.0060, Timestamp: time.Now(), Accuracy: 10, Speed: 0},
		{Latitude: 40.7128, Longitude: -74.0060, Timestamp: time.Now(), Accuracy: 400, Speed: 0},
	})
	require.NoError(t, err)

	// Visit event for a stay before the session's samples; reconciled
	// straight into the timeline.
	arrival := time.Now().Add(-2 * time.Hour)
	err = svc.IngestVisit(record.ID, models.VisitEvent{
		Latitude:  40.7200,
		Longitude: -74.0060,
		Arrival:   arrival,
		Departure: arrival.Add(30 * time.Minute),
	})
	require.NoError(t, err)

	// Live view reflects all of it.
	snap, err := svc.GetSession(record.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), snap.Session.SampleCount)
	assert.Equal(t, int64(1), snap.Session.RejectedCount)
	require.Len(t, snap.Dwells, 1)
	assert.Equal(t, models.ConfidenceEstimated, snap.Dwells[0].Confidence)
	assert.Nil(t, snap.Session.EndedAt)

	// Stop persists the snapshot; the stored view matches the live one.
	final, err := svc.StopSession(record.ID)
	require.NoError(t, err)
	require.NotNil(t, final.Session.EndedAt)

	stored, err := svc.GetSession(record.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.Session.EndedAt)
	assert.Len(t, stored.Route, 1)
	require.Len(t, stored.Dwells, 1)
	assert.Equal(t, final.Dwells[0].ID, stored.Dwells[0].ID)

	// The tracker is gone: further input is an unknown session.
	err = svc.IngestSamples(record.ID, []models.LocationSample{
		{Latitude: 40.7128, Longitude: -74.0060, Timestamp: time.Now(), Accuracy: 10},
	})
	assert.ErrorIs(t, err, ErrSessionNotFound)
	_, err = svc.StopSession(record.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestServiceUnknownSession(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.GetSession("nope")
	assert.ErrorIs(t, err, ErrSessionNotFound)

	err = svc.IngestVisit("nope", models.VisitEvent{})
	assert.ErrorIs(t, err, ErrSessionNotFound)

	_, err = svc.GetDwell("nope")
	assert.ErrorIs(t, err, ErrDwellNotFound)

	assert.ErrorIs(t, svc.OverrideVenue("nope", "x"), ErrDwellNotFound)
	assert.ErrorIs(t, svc.RateDwell("nope", 3, ""), ErrDwellNotFound)
}

func TestServiceDwellEdits(t *testing.T) {
	svc, db := newTestService(t)

	record, err := svc.StartSession("")
	require.NoError(t, err)

	arrival := time.Now().Add(-2 * time.Hour)
	require.NoError(t, svc.IngestVisit(record.ID, models.VisitEvent{
		Latitude:  40.7200,
		Longitude: -74.0060,
		Arrival:   arrival,
		Departure: arrival.Add(30 * time.Minute),
	}))

	dwells, _, err := svc.ListDwells(models.DwellFilter{SessionID: record.ID})
	require.NoError(t, err)
	require.Len(t, dwells, 1)
	dwellID := dwells[0].ID

	t.Run("edits on a live session persist immediately", func(t *testing.T) {
		require.NoError(t, svc.OverrideVenue(dwellID, "The Corner Cafe"))
		require.NoError(t, svc.RateDwell(dwellID, 5, "great"))

		d, err := svc.GetDwell(dwellID)
		require.NoError(t, err)
		assert.Equal(t, "The Corner Cafe", d.VenueOverride)
		assert.Equal(t, 5, d.Rating)

		// The live edit was snapshotted to the database as well.
		stored := repository.NewDwellRepository(db)
		fromDB, err := stored.GetByID(dwellID)
		require.NoError(t, err)
		require.NotNil(t, fromDB)
		assert.Equal(t, "The Corner Cafe", fromDB.VenueOverride)
	})

	t.Run("edits keep working after the session is stored", func(t *testing.T) {
		_, err := svc.StopSession(record.ID)
		require.NoError(t, err)

		require.NoError(t, svc.RateDwell(dwellID, 2, "changed my mind"))

		d, err := svc.GetDwell(dwellID)
		require.NoError(t, err)
		assert.Equal(t, 2, d.Rating)
		assert.Equal(t, "changed my mind", d.Note)
	})
}

func TestServiceNearbyVenues(t *testing.T) {
	svc, _ := newTestService(t)

	record, err := svc.StartSession("")
	require.NoError(t, err)

	arrival := time.Now().Add(-2 * time.Hour)
	require.NoError(t, svc.IngestVisit(record.ID, models.VisitEvent{
		Latitude:  40.7200,
		Longitude: -74.0060,
		Arrival:   arrival,
		Departure: arrival.Add(30 * time.Minute),
	}))

	dwells, _, err := svc.ListDwells(models.DwellFilter{SessionID: record.ID})
	require.NoError(t, err)
	require.Len(t, dwells, 1)

	venues, err := svc.NearbyVenues(context.Background(), dwells[0].ID)
	require.NoError(t, err)
	assert.Empty(t, venues, "noop geocoder knows nothing")

	_, err = svc.NearbyVenues(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrDwellNotFound)
}
