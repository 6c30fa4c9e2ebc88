package models

import "time"

// DwellCandidate is an unconfirmed dwell in progress. Transient: it
// lives only inside the detector and is never persisted.
//
// FirstSeenAt/LastSeenAt use processing time rather than the sample
// timestamp. Sample delivery can be delayed or batched by the platform,
// and the duration threshold is meant to measure observed continued
// presence.
type DwellCandidate struct {
	Anchor      LocationSample
	FirstSeenAt time.Time
	LastSeenAt  time.Time
	SampleCount int

	// Accuracy sum over all samples in the candidate, for the
	// confidence computation at promotion time.
	accuracySum float64
}

// NewDwellCandidate starts a candidate anchored at the given sample.
func NewDwellCandidate(anchor LocationSample, now time.Time) *DwellCandidate {
	return &DwellCandidate{
		Anchor:      anchor,
		FirstSeenAt: now,
		LastSeenAt:  now,
		SampleCount: 1,
		accuracySum: anchor.Accuracy,
	}
}

// Observe records one more sample near the anchor.
func (c *DwellCandidate) Observe(sample LocationSample, now time.Time) {
	c.LastSeenAt = now
	c.SampleCount++
	c.accuracySum += sample.Accuracy
}

// Elapsed is how long the candidate has been observed.
func (c *DwellCandidate) Elapsed() time.Duration {
	return c.LastSeenAt.Sub(c.FirstSeenAt)
}

// MeanAccuracy is the mean horizontal accuracy over the candidate's
// samples, in meters.
func (c *DwellCandidate) MeanAccuracy() float64 {
	if c.SampleCount == 0 {
		return 0
	}
	return c.accuracySum / float64(c.SampleCount)
}
