package detector

import (
	"time"

	"github.com/citydwell/sessions-backend-go/internal/models"
)

// Aggregate is the session state the detector and reconciler mutate:
// the pending candidate, the active dwell, and the dwell timeline. The
// session package's Aggregate satisfies it; tests may substitute their
// own.
//
// All mutations go through these methods so one exclusive-access point
// serializes the sample feed and the visit feed.
type Aggregate interface {
	Session() models.Session

	Candidate() *models.DwellCandidate
	SetCandidate(c *models.DwellCandidate) error
	ClearCandidate()
	PromoteCandidate(d *models.DwellPoint) error

	ActiveDwell() *models.DwellPoint
	ExtendActiveDwell(end time.Time) error
	FinalizeActiveDwell() (*models.DwellPoint, error)

	AppendFinalizedDwell(d *models.DwellPoint) error
	Dwells() []models.DwellPoint
}
