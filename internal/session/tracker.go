package session

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/citydwell/sessions-backend-go/internal/config"
	"github.com/citydwell/sessions-backend-go/internal/detector"
	"github.com/citydwell/sessions-backend-go/internal/geocoding"
	"github.com/citydwell/sessions-backend-go/internal/models"
	"github.com/citydwell/sessions-backend-go/internal/notify"
	"github.com/citydwell/sessions-backend-go/internal/spatial"
)

// Tracker runs one live tracking session: it pushes validated samples
// through the dwell detector, merges visit events through the
// reconciler, and classifies revisits as dwells are finalized.
//
// Samples and visit events arrive from two independent platform feeds
// on arbitrary goroutines. The tracker's mutex serializes both paths,
// so the detector state machine and the aggregate only ever see one
// mutation at a time. Venue naming is the single asynchronous
// exception; it runs outside the lock and never blocks detection.
type Tracker struct {
	mu sync.Mutex

	agg        *Aggregate
	validator  *detector.Validator
	det        *detector.Detector
	reconciler *detector.Reconciler
	revisits   *detector.RevisitClassifier

	geocoder geocoding.Geocoder
	notifier notify.Notifier

	visitEventsEnabled bool
	geocodeRadius      float64

	// Dwell IDs already sent to the geocoder, so a dwell that is
	// created active and later finalized is only looked up once.
	named map[string]bool

	// Now is swappable for tests.
	Now func() time.Time

	stopped bool
}

// NewTracker wires a tracker for one session. Collaborators are passed
// explicitly; there is exactly one detector and one aggregate per
// tracked session.
func NewTracker(agg *Aggregate, cfg config.DetectorConfig, visitEventsEnabled bool, geocoder geocoding.Geocoder, notifier notify.Notifier) *Tracker {
	return &Tracker{
		agg:                agg,
		validator:          detector.NewValidator(cfg),
		det:                detector.NewDetector(cfg),
		reconciler:         detector.NewReconciler(cfg),
		revisits:           detector.NewRevisitClassifier(cfg.RevisitDistanceMeters),
		geocoder:           geocoder,
		notifier:           notifier,
		visitEventsEnabled: visitEventsEnabled,
		geocodeRadius:      cfg.VisitMergeDistanceMeters,
		named:              make(map[string]bool),
		Now:                time.Now,
	}
}

// Aggregate exposes the session aggregate for read paths.
func (t *Tracker) Aggregate() *Aggregate {
	return t.agg
}

// IngestSample validates one sample and, when accepted, appends it to
// the route and steps the detector. Samples must be delivered in
// arrival order.
func (t *Tracker) IngestSample(s models.LocationSample) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.stopped {
		return ErrSessionEnded
	}

	ok, reason := t.validator.Check(s)
	if !ok {
		t.agg.RecordRejected()
		log.Printf("[Tracker] Session %s: dropped sample (%s)", t.agg.Session().ID, reason)
		return nil
	}

	if err := t.agg.AppendSample(s); err != nil {
		return err
	}

	res, err := t.det.Process(t.agg, s)
	if err != nil {
		return err
	}
	t.applyLocked(res)
	return nil
}

// IngestVisit merges one platform visit event. Visit events may arrive
// in any order relative to samples; reconciliation only reads the
// existing dwell timeline and either appends or discards. A no-op when
// the deployment has no visit service.
func (t *Tracker) IngestVisit(event models.VisitEvent) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.stopped {
		return ErrSessionEnded
	}
	if !t.visitEventsEnabled {
		return nil
	}

	dwell, err := t.reconciler.Reconcile(t.agg, event)
	if err != nil {
		return err
	}
	if dwell != nil {
		// A reconciled dwell is born finalized.
		t.finalizeLocked(*dwell)
	}
	return nil
}

// Stop flushes the detector, closes the session, and returns the final
// snapshot. Flushing is synchronous: no open-ended dwell survives a
// stop. Stopping twice returns ErrSessionEnded.
func (t *Tracker) Stop() (models.SessionSnapshot, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.stopped {
		return models.SessionSnapshot{}, ErrSessionEnded
	}

	res, err := t.det.Flush(t.agg)
	if err != nil {
		return models.SessionSnapshot{}, err
	}
	t.applyLocked(res)

	if err := t.agg.End(t.Now()); err != nil {
		return models.SessionSnapshot{}, err
	}
	t.stopped = true

	snap := t.agg.Snapshot()
	summary := summarize(snap)
	go func() {
		t.notifier.SessionEnded(summary)
	}()

	return snap, nil
}

// Snapshot returns the current serializable state of the session.
func (t *Tracker) Snapshot() models.SessionSnapshot {
	return t.agg.Snapshot()
}

// ValidatorStats exposes the accept/reject counters for diagnostics.
func (t *Tracker) ValidatorStats() (uint64, map[detector.RejectReason]uint64) {
	return t.validator.Stats()
}

// applyLocked reacts to one detector step: revisit classification and
// notification for finalized dwells, venue naming for new ones.
func (t *Tracker) applyLocked(res detector.Result) {
	if res.Activated != nil {
		t.nameLocked(*res.Activated)
	}
	if res.Finalized != nil {
		t.finalizeLocked(*res.Finalized)
	}
}

// finalizeLocked runs the once-per-dwell finalization work: revisit
// classification against earlier dwells, venue naming if the dwell was
// never active, and the fire-and-forget notification.
func (t *Tracker) finalizeLocked(d models.DwellPoint) {
	if isRevisit, of := t.revisits.Classify(d, t.agg.Dwells()); isRevisit {
		if err := t.agg.SetRevisit(d.ID, of); err != nil {
			log.Printf("[Tracker] Session %s: revisit mark failed: %v", t.agg.Session().ID, err)
		} else {
			d.IsRevisit = true
			d.RevisitOf = of
		}
	}

	t.nameLocked(d)

	go func() {
		t.notifier.DwellFinalized(d.SessionID, d)
	}()
}

// nameLocked kicks off the asynchronous venue lookup for a dwell, at
// most once. The detector never waits on it; a failed or slow lookup
// leaves the name unknown.
func (t *Tracker) nameLocked(d models.DwellPoint) {
	if t.named[d.ID] {
		return
	}
	t.named[d.ID] = true

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		name, err := t.geocoder.BestVenueName(ctx, d.AnchorLat, d.AnchorLon)
		if err != nil {
			log.Printf("[Tracker] Session %s: venue lookup failed for dwell %s: %v", d.SessionID, d.ID, err)
			return
		}
		if name == "" {
			return
		}

		var nearby []string
		if venues, err := t.geocoder.NearbyVenues(ctx, d.AnchorLat, d.AnchorLon, t.geocodeRadius); err == nil {
			for _, v := range venues {
				nearby = append(nearby, v.Name)
			}
		}

		if err := t.agg.SetVenue(d.ID, name, nearby); err != nil {
			log.Printf("[Tracker] Session %s: venue set failed for dwell %s: %v", d.SessionID, d.ID, err)
		}
	}()
}

// summarize computes the end-of-session digest.
func summarize(snap models.SessionSnapshot) notify.SessionSummary {
	points := make([]spatial.Point, len(snap.Route))
	for i, p := range snap.Route {
		points[i] = spatial.Point{Lat: p.Latitude, Lon: p.Longitude}
	}
	center := spatial.Centroid(points)

	revisits := 0
	for _, d := range snap.Dwells {
		if d.IsRevisit {
			revisits++
		}
	}

	return notify.SessionSummary{
		SessionID:     snap.Session.ID,
		DwellCount:    len(snap.Dwells),
		RevisitCount:  revisits,
		SampleCount:   snap.Session.SampleCount,
		RejectedCount: snap.Session.RejectedCount,
		CenterLat:     center.Lat,
		CenterLon:     center.Lon,
		SpreadMeters:  spatial.RadiusOfGyration(points),
	}
}
