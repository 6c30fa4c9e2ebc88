package detector

import (
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/citydwell/sessions-backend-go/internal/config"
	"github.com/citydwell/sessions-backend-go/internal/models"
	"github.com/citydwell/sessions-backend-go/internal/spatial"
)

// Result describes what one detector step did to the session's dwell
// timeline. At most one of Activated/Finalized is set per step.
type Result struct {
	// Activated is the dwell a qualifying candidate was promoted to.
	// It is now the session's active dwell.
	Activated *models.DwellPoint

	// Finalized is a dwell closed during this step: the former active
	// dwell, or a candidate that already met the duration threshold
	// when the user left its vicinity. In the latter case the dwell is
	// created and finalized in the same step.
	Finalized *models.DwellPoint

	// Extended reports that the active dwell's end time advanced.
	Extended bool
}

// Detector is the dwell detection state machine. It keeps no state of
// its own; the session aggregate holds the pending candidate and the
// active dwell, so the machine's state (idle, candidate-tracking,
// dwell-active) is always exactly the aggregate's.
//
// Each step is pure in-memory computation, a handful of distance
// calculations; nothing here blocks.
type Detector struct {
	cfg config.DetectorConfig

	// Now and NewID are swappable for tests; they default to the wall
	// clock and random UUIDs.
	Now   func() time.Time
	NewID func() string
}

// NewDetector creates a detector with the given thresholds.
func NewDetector(cfg config.DetectorConfig) *Detector {
	return &Detector{
		cfg:   cfg,
		Now:   time.Now,
		NewID: uuid.NewString,
	}
}

// Process consumes one validated sample. Samples must arrive in order
// per session; the candidate clock runs on processing time, not the
// sample timestamp, so reordering would break the window semantics.
func (d *Detector) Process(agg Aggregate, s models.LocationSample) (Result, error) {
	now := d.Now()

	// Moving samples never start or sustain a dwell. Resolve whatever
	// is open and go idle.
	if s.HasSpeed() && s.Speed > d.cfg.MovementSpeedThreshold {
		return d.resolveOnMovement(agg, now)
	}

	if active := agg.ActiveDwell(); active != nil {
		return d.stepActive(agg, active, s, now)
	}
	if c := agg.Candidate(); c != nil {
		return d.stepTracking(agg, c, s, now)
	}

	// Idle: anchor a fresh candidate at this sample.
	if err := agg.SetCandidate(models.NewDwellCandidate(s, now)); err != nil {
		return Result{}, fmt.Errorf("start candidate: %w", err)
	}
	return Result{}, nil
}

// Flush forces resolution of any non-idle state. Called when the
// session stops, synchronously, so no open-ended dwell survives.
// Calling it again in the idle state is a no-op.
func (d *Detector) Flush(agg Aggregate) (Result, error) {
	now := d.Now()

	if active := agg.ActiveDwell(); active != nil {
		if err := agg.ExtendActiveDwell(now); err != nil {
			return Result{}, fmt.Errorf("flush: extend active dwell: %w", err)
		}
		final, err := agg.FinalizeActiveDwell()
		if err != nil {
			return Result{}, fmt.Errorf("flush: finalize active dwell: %w", err)
		}
		log.Printf("[DwellDetector] Flush finalized active dwell %s (%.0fs)", final.ID, final.Duration().Seconds())
		return Result{Finalized: final}, nil
	}

	if c := agg.Candidate(); c != nil {
		return d.resolveCandidate(agg, c)
	}

	return Result{}, nil
}

// resolveOnMovement handles a sample above the speed threshold.
func (d *Detector) resolveOnMovement(agg Aggregate, now time.Time) (Result, error) {
	if agg.ActiveDwell() != nil {
		if err := agg.ExtendActiveDwell(now); err != nil {
			return Result{}, fmt.Errorf("movement: extend active dwell: %w", err)
		}
		final, err := agg.FinalizeActiveDwell()
		if err != nil {
			return Result{}, fmt.Errorf("movement: finalize active dwell: %w", err)
		}
		log.Printf("[DwellDetector] Movement finalized dwell %s (%.0fs)", final.ID, final.Duration().Seconds())
		return Result{Finalized: final}, nil
	}

	if c := agg.Candidate(); c != nil {
		return d.resolveCandidate(agg, c)
	}

	return Result{}, nil
}

// stepTracking handles a slow sample while a candidate is pending.
func (d *Detector) stepTracking(agg Aggregate, c *models.DwellCandidate, s models.LocationSample, now time.Time) (Result, error) {
	dist := spatial.HaversineDistance(s.Latitude, s.Longitude, c.Anchor.Latitude, c.Anchor.Longitude)

	if dist > d.cfg.RadiusMeters {
		// Left the candidate's vicinity. Resolve it, then re-anchor at
		// the new sample; we stay in candidate-tracking.
		res, err := d.resolveCandidate(agg, c)
		if err != nil {
			return res, err
		}
		if err := agg.SetCandidate(models.NewDwellCandidate(s, now)); err != nil {
			return res, fmt.Errorf("re-anchor candidate: %w", err)
		}
		return res, nil
	}

	c.Observe(s, now)

	if c.Elapsed() < d.cfg.MinDuration {
		return Result{}, nil
	}

	// Candidate qualifies: promote it to the active dwell.
	dwell, err := models.NewDwellPoint(
		d.NewID(), agg.Session().ID,
		c.Anchor.Latitude, c.Anchor.Longitude,
		c.FirstSeenAt, now,
		confidenceFor(c),
	)
	if err != nil {
		return Result{}, fmt.Errorf("promote candidate: %w", err)
	}
	dwell.SampleCount = c.SampleCount

	if err := agg.PromoteCandidate(dwell); err != nil {
		return Result{}, fmt.Errorf("promote candidate: %w", err)
	}
	log.Printf("[DwellDetector] Promoted candidate to active dwell %s after %.0fs (%d samples, %s)",
		dwell.ID, c.Elapsed().Seconds(), c.SampleCount, dwell.Confidence)
	return Result{Activated: dwell}, nil
}

// stepActive handles a slow sample while a dwell is active. Distance is
// measured to the dwell's anchor, not to a moving centroid.
func (d *Detector) stepActive(agg Aggregate, active *models.DwellPoint, s models.LocationSample, now time.Time) (Result, error) {
	dist := spatial.HaversineDistance(s.Latitude, s.Longitude, active.AnchorLat, active.AnchorLon)

	if dist <= d.cfg.RadiusMeters {
		if err := agg.ExtendActiveDwell(now); err != nil {
			return Result{}, fmt.Errorf("extend active dwell: %w", err)
		}
		return Result{Extended: true}, nil
	}

	// Left the dwell's vicinity: its end time is already correct from
	// the last extension.
	final, err := agg.FinalizeActiveDwell()
	if err != nil {
		return Result{}, fmt.Errorf("finalize active dwell: %w", err)
	}
	if err := agg.SetCandidate(models.NewDwellCandidate(s, now)); err != nil {
		return Result{}, fmt.Errorf("candidate after dwell exit: %w", err)
	}
	log.Printf("[DwellDetector] Exit finalized dwell %s (%.0fs), tracking new candidate", final.ID, final.Duration().Seconds())
	return Result{Finalized: final}, nil
}

// resolveCandidate closes out a pending candidate: a dwell if it
// already met the duration threshold, otherwise discarded.
func (d *Detector) resolveCandidate(agg Aggregate, c *models.DwellCandidate) (Result, error) {
	agg.ClearCandidate()

	if c.Elapsed() < d.cfg.MinDuration {
		log.Printf("[DwellDetector] Discarded candidate after %.0fs (%d samples)", c.Elapsed().Seconds(), c.SampleCount)
		return Result{}, nil
	}

	dwell, err := models.NewDwellPoint(
		d.NewID(), agg.Session().ID,
		c.Anchor.Latitude, c.Anchor.Longitude,
		c.FirstSeenAt, c.LastSeenAt,
		confidenceFor(c),
	)
	if err != nil {
		return Result{}, fmt.Errorf("finalize candidate: %w", err)
	}
	dwell.SampleCount = c.SampleCount

	if err := agg.AppendFinalizedDwell(dwell); err != nil {
		return Result{}, fmt.Errorf("finalize candidate: %w", err)
	}
	log.Printf("[DwellDetector] Candidate finalized directly as dwell %s (%.0fs)", dwell.ID, dwell.Duration().Seconds())
	return Result{Finalized: dwell}, nil
}

// confidenceFor computes dwell confidence at promotion time from the
// candidate's accumulated samples.
func confidenceFor(c *models.DwellCandidate) models.Confidence {
	mean := c.MeanAccuracy()
	switch {
	case mean < 20 && c.SampleCount >= 5:
		return models.ConfidenceHigh
	case mean >= 50 || c.SampleCount < 5:
		return models.ConfidenceLow
	default:
		return models.ConfidenceMedium
	}
}
