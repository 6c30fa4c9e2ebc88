package detector

import (
	"fmt"
	"log"

	"github.com/google/uuid"

	"github.com/citydwell/sessions-backend-go/internal/config"
	"github.com/citydwell/sessions-backend-go/internal/models"
	"github.com/citydwell/sessions-backend-go/internal/spatial"
)

// Reconciler merges platform visit events into the dwell timeline. The
// sample-driven detector can miss dwells (tracking suspended, samples
// too sparse) that the platform's lower-power visit service still saw;
// this path fills those gaps without duplicating dwells the detector
// already captured.
type Reconciler struct {
	cfg config.DetectorConfig

	// NewID is swappable for tests.
	NewID func() string
}

// NewReconciler creates a reconciler with the given thresholds.
func NewReconciler(cfg config.DetectorConfig) *Reconciler {
	return &Reconciler{
		cfg:   cfg,
		NewID: uuid.NewString,
	}
}

// Reconcile merges one visit event into the session. It returns the
// dwell it appended, or nil when the event was too short or already
// represented. An overlap is expected, not an error.
//
// Visit events are delivered after the fact, so a reconciled dwell is
// born finalized with Estimated confidence and never becomes active.
func (r *Reconciler) Reconcile(agg Aggregate, event models.VisitEvent) (*models.DwellPoint, error) {
	if event.Duration() < r.cfg.MinDuration {
		log.Printf("[VisitReconciler] Ignoring short visit (%.0fs)", event.Duration().Seconds())
		return nil, nil
	}

	// Overlap test reads a snapshot of the existing dwells, including
	// the still-active one at its current extent.
	for _, d := range agg.Dwells() {
		dist := spatial.HaversineDistance(event.Latitude, event.Longitude, d.AnchorLat, d.AnchorLon)
		if dist >= r.cfg.VisitMergeDistanceMeters {
			continue
		}
		if d.StartTime.Before(event.Departure) && d.EndTime.After(event.Arrival) {
			log.Printf("[VisitReconciler] Visit overlaps dwell %s, discarding", d.ID)
			return nil, nil
		}
	}

	dwell, err := models.NewDwellPoint(
		r.NewID(), agg.Session().ID,
		event.Latitude, event.Longitude,
		event.Arrival, event.Departure,
		models.ConfidenceEstimated,
	)
	if err != nil {
		return nil, fmt.Errorf("reconcile visit: %w", err)
	}

	if err := agg.AppendFinalizedDwell(dwell); err != nil {
		return nil, fmt.Errorf("reconcile visit: %w", err)
	}
	log.Printf("[VisitReconciler] Appended estimated dwell %s (%.0fs)", dwell.ID, dwell.Duration().Seconds())
	return dwell, nil
}
