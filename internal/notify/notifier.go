package notify

import (
	"log"

	"github.com/citydwell/sessions-backend-go/internal/models"
)

// SessionSummary is the digest sent when a session ends.
type SessionSummary struct {
	SessionID     string  `json:"sessionId"`
	DwellCount    int     `json:"dwellCount"`
	RevisitCount  int     `json:"revisitCount"`
	SampleCount   int64   `json:"sampleCount"`
	RejectedCount int64   `json:"rejectedCount"`
	CenterLat     float64 `json:"centerLat"`
	CenterLon     float64 `json:"centerLon"`
	SpreadMeters  float64 `json:"spreadMeters"` // radius of gyration of the route
}

// Notifier is informed, fire and forget, when a dwell is newly
// finalized and when a session ends. A failed notification is logged
// and forgotten; it never rolls back or blocks detection.
type Notifier interface {
	DwellFinalized(sessionID string, dwell models.DwellPoint)
	SessionEnded(summary SessionSummary)
}

// LogNotifier writes notifications to the process log. Stands in for
// the platform push/local-notification bridge.
type LogNotifier struct{}

// DwellFinalized logs a finalized dwell.
func (LogNotifier) DwellFinalized(sessionID string, dwell models.DwellPoint) {
	log.Printf("[Notifier] Session %s: dwell %s finalized (%s, %.0fs, revisit=%v)",
		sessionID, dwell.ID, dwell.Type(), dwell.Duration().Seconds(), dwell.IsRevisit)
}

// SessionEnded logs a session summary.
func (LogNotifier) SessionEnded(summary SessionSummary) {
	log.Printf("[Notifier] Session %s ended: %d dwells (%d revisits), %d samples, %d rejected, spread %.0fm",
		summary.SessionID, summary.DwellCount, summary.RevisitCount,
		summary.SampleCount, summary.RejectedCount, summary.SpreadMeters)
}
