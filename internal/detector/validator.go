package detector

import (
	"sync"
	"time"

	"github.com/citydwell/sessions-backend-go/internal/config"
	"github.com/citydwell/sessions-backend-go/internal/models"
)

// RejectReason identifies why the validator dropped a sample.
type RejectReason string

const (
	RejectNone           RejectReason = ""
	RejectBadCoordinate  RejectReason = "BAD_COORDINATE"
	RejectBadAccuracy    RejectReason = "BAD_ACCURACY"
	RejectBadVerticalAcc RejectReason = "BAD_VERTICAL_ACCURACY"
	RejectStale          RejectReason = "STALE"
)

// Validator gates samples before they reach the dwell detector.
// Rejection is silent filtering, never an error path, but every drop
// is counted per reason for diagnostics.
type Validator struct {
	cfg config.DetectorConfig

	// Now is swappable for tests.
	Now func() time.Time

	mu       sync.Mutex
	accepted uint64
	rejected map[RejectReason]uint64
}

// NewValidator creates a validator with the given thresholds.
func NewValidator(cfg config.DetectorConfig) *Validator {
	return &Validator{
		cfg:      cfg,
		Now:      time.Now,
		rejected: make(map[RejectReason]uint64),
	}
}

// Check reports whether the sample is usable, and the reject reason
// when it is not. Pure predicate apart from the counters.
func (v *Validator) Check(s models.LocationSample) (bool, RejectReason) {
	reason := v.inspect(s)

	v.mu.Lock()
	if reason == RejectNone {
		v.accepted++
	} else {
		v.rejected[reason]++
	}
	v.mu.Unlock()

	return reason == RejectNone, reason
}

// Validate is the boolean form of Check.
func (v *Validator) Validate(s models.LocationSample) bool {
	ok, _ := v.Check(s)
	return ok
}

func (v *Validator) inspect(s models.LocationSample) RejectReason {
	if !s.ValidCoordinate() {
		return RejectBadCoordinate
	}
	if s.Accuracy < 0 || s.Accuracy > v.cfg.MaxAccuracyMeters {
		return RejectBadAccuracy
	}
	if s.VerticalAccuracy > v.cfg.MaxVerticalAccuracyMeters {
		return RejectBadVerticalAcc
	}
	if v.Now().Sub(s.Timestamp) > v.cfg.MaxSampleAge {
		return RejectStale
	}
	return RejectNone
}

// Stats returns the accepted count and a copy of the per-reason reject
// counters.
func (v *Validator) Stats() (uint64, map[RejectReason]uint64) {
	v.mu.Lock()
	defer v.mu.Unlock()

	out := make(map[RejectReason]uint64, len(v.rejected))
	for k, n := range v.rejected {
		out[k] = n
	}
	return v.accepted, out
}
