package detector

import (
	"github.com/citydwell/sessions-backend-go/internal/models"
	"github.com/citydwell/sessions-backend-go/internal/spatial"
)

// RevisitClassifier marks a dwell as a return to an earlier dwell in
// the same session when the two anchors are co-located. It runs exactly
// once per dwell, when the dwell is finalized; anchors are fixed from
// promotion, so the answer never changes afterwards.
type RevisitClassifier struct {
	distanceMeters float64
}

// NewRevisitClassifier creates a classifier with the given proximity
// threshold.
func NewRevisitClassifier(distanceMeters float64) *RevisitClassifier {
	return &RevisitClassifier{distanceMeters: distanceMeters}
}

// Classify checks the new dwell against every prior dwell that started
// earlier. When several priors match, it binds to the earliest-started
// one, keeping a stable "original venue" reference: later returns all
// point at the first visit rather than chaining.
func (c *RevisitClassifier) Classify(newDwell models.DwellPoint, priors []models.DwellPoint) (bool, string) {
	var (
		found    bool
		bestID   string
		bestTime = newDwell.StartTime
	)

	for _, p := range priors {
		if p.ID == newDwell.ID {
			continue
		}
		if !p.StartTime.Before(newDwell.StartTime) {
			continue
		}
		dist := spatial.HaversineDistance(newDwell.AnchorLat, newDwell.AnchorLon, p.AnchorLat, p.AnchorLon)
		if dist > c.distanceMeters {
			continue
		}
		if !found || p.StartTime.Before(bestTime) {
			found = true
			bestID = p.ID
			bestTime = p.StartTime
		}
	}

	return found, bestID
}
