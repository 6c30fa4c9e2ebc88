package session

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/citydwell/sessions-backend-go/internal/models"
)

func testAggregate() *Aggregate {
	return NewAggregate("session-1", "morning walk", time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC))
}

func testDwell(t *testing.T, id string, start, end time.Time) *models.DwellPoint {
	t.Helper()
	d, err := models.NewDwellPoint(id, "session-1", 40.7128, -74.0060, start, end, models.ConfidenceHigh)
	require.NoError(t, err)
	return d
}

func TestAggregateStateExclusion(t *testing.T) {
	t0 := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

	t.Run("candidate blocked while a dwell is active", func(t *testing.T) {
		agg := testAggregate()

		require.NoError(t, agg.SetCandidate(models.NewDwellCandidate(models.LocationSample{}, t0)))
		require.NoError(t, agg.PromoteCandidate(testDwell(t, "dwell-1", t0, t0.Add(25*time.Minute))))

		assert.Nil(t, agg.Candidate(), "promotion consumes the candidate")
		err := agg.SetCandidate(models.NewDwellCandidate(models.LocationSample{}, t0))
		assert.ErrorIs(t, err, ErrDwellStateConflict)
	})

	t.Run("second promotion blocked while a dwell is active", func(t *testing.T) {
		agg := testAggregate()

		require.NoError(t, agg.PromoteCandidate(testDwell(t, "dwell-1", t0, t0.Add(25*time.Minute))))
		err := agg.PromoteCandidate(testDwell(t, "dwell-2", t0, t0.Add(25*time.Minute)))
		assert.ErrorIs(t, err, ErrDwellStateConflict)
	})

	t.Run("finalization clears the active slot", func(t *testing.T) {
		agg := testAggregate()

		require.NoError(t, agg.PromoteCandidate(testDwell(t, "dwell-1", t0, t0.Add(25*time.Minute))))
		final, err := agg.FinalizeActiveDwell()
		require.NoError(t, err)
		assert.Equal(t, "dwell-1", final.ID)

		assert.Nil(t, agg.ActiveDwell())
		_, err = agg.FinalizeActiveDwell()
		assert.ErrorIs(t, err, ErrNoActiveDwell)
	})
}

func TestAggregateDwellRange(t *testing.T) {
	t0 := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	agg := testAggregate()

	t.Run("constructor rejects an empty range", func(t *testing.T) {
		_, err := models.NewDwellPoint("dwell-1", "session-1", 40.7128, -74.0060, t0, t0, models.ConfidenceHigh)
		assert.ErrorIs(t, err, models.ErrInvalidDwellRange)
	})

	t.Run("extension rejects an end at or before the start", func(t *testing.T) {
		require.NoError(t, agg.PromoteCandidate(testDwell(t, "dwell-1", t0, t0.Add(25*time.Minute))))

		err := agg.ExtendActiveDwell(t0)
		assert.ErrorIs(t, err, models.ErrInvalidDwellRange)

		require.NoError(t, agg.ExtendActiveDwell(t0.Add(30*time.Minute)))
		assert.Equal(t, t0.Add(30*time.Minute), agg.ActiveDwell().EndTime)
	})
}

func TestAggregateFinalizedImmutability(t *testing.T) {
	t0 := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	agg := testAggregate()

	require.NoError(t, agg.PromoteCandidate(testDwell(t, "dwell-1", t0, t0.Add(25*time.Minute))))
	_, err := agg.FinalizeActiveDwell()
	require.NoError(t, err)

	// Time range is frozen after finalization.
	assert.ErrorIs(t, agg.ExtendActiveDwell(t0.Add(time.Hour)), ErrNoActiveDwell)

	// Annotation stays legal: venue naming resolves after finalization,
	// and users edit past dwells.
	require.NoError(t, agg.SetVenue("dwell-1", "Blue Bottle Coffee", []string{"Blue Bottle Coffee", "Court Deli"}))
	require.NoError(t, agg.SetVenueOverride("dwell-1", "The Corner Cafe"))
	require.NoError(t, agg.SetRating("dwell-1", 4, "good espresso"))

	d := agg.Dwells()[0]
	assert.Equal(t, t0.Add(25*time.Minute), d.EndTime)
	assert.Equal(t, "Blue Bottle Coffee", d.VenueName)
	assert.Equal(t, "The Corner Cafe", d.VenueOverride)
	assert.Equal(t, "The Corner Cafe", d.DisplayName())
	assert.Equal(t, 4, d.Rating)
}

func TestAggregateEnd(t *testing.T) {
	t0 := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

	t.Run("end with open state is refused", func(t *testing.T) {
		agg := testAggregate()
		require.NoError(t, agg.SetCandidate(models.NewDwellCandidate(models.LocationSample{}, t0)))
		assert.ErrorIs(t, agg.End(t0), ErrDwellStateConflict)

		agg.ClearCandidate()
		require.NoError(t, agg.PromoteCandidate(testDwell(t, "dwell-1", t0, t0.Add(25*time.Minute))))
		assert.ErrorIs(t, agg.End(t0), ErrDwellStateConflict)
	})

	t.Run("mutations after end are refused", func(t *testing.T) {
		agg := testAggregate()
		endedAt := t0.Add(time.Hour)
		require.NoError(t, agg.End(endedAt))

		assert.ErrorIs(t, agg.AppendSample(models.LocationSample{Latitude: 40.7, Longitude: -74}), ErrSessionEnded)
		assert.ErrorIs(t, agg.SetCandidate(models.NewDwellCandidate(models.LocationSample{}, t0)), ErrSessionEnded)
		assert.ErrorIs(t, agg.AppendFinalizedDwell(testDwell(t, "dwell-2", t0, t0.Add(time.Minute))), ErrSessionEnded)
		assert.ErrorIs(t, agg.End(endedAt), ErrSessionEnded)

		require.NotNil(t, agg.Session().EndedAt)
		assert.Equal(t, endedAt, *agg.Session().EndedAt)
	})
}

func TestAggregateCopiesOnRead(t *testing.T) {
	t0 := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	agg := testAggregate()

	require.NoError(t, agg.PromoteCandidate(testDwell(t, "dwell-1", t0, t0.Add(25*time.Minute))))

	// Mutating a returned dwell must not leak into the aggregate.
	cp := agg.ActiveDwell()
	cp.VenueName = "scribbled"
	assert.Empty(t, agg.ActiveDwell().VenueName)

	list := agg.Dwells()
	list[0].Rating = 5
	assert.Zero(t, agg.Dwells()[0].Rating)
}

func TestAggregateConcurrentAppends(t *testing.T) {
	agg := testAggregate()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				_ = agg.AppendSample(models.LocationSample{Latitude: 40.7128, Longitude: -74.0060})
				agg.RecordRejected()
			}
		}()
	}
	wg.Wait()

	s := agg.Session()
	assert.Equal(t, int64(400), s.SampleCount)
	assert.Equal(t, int64(400), s.RejectedCount)
	assert.Len(t, agg.Snapshot().Route, 400)
}
