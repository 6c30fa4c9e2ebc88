package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/citydwell/sessions-backend-go/internal/models"
	"github.com/citydwell/sessions-backend-go/internal/service"
	"github.com/citydwell/sessions-backend-go/pkg/response"
)

// DwellHandler handles HTTP requests for dwells.
type DwellHandler struct {
	service *service.SessionService
}

// NewDwellHandler creates a new dwell handler
func NewDwellHandler(service *service.SessionService) *DwellHandler {
	return &DwellHandler{service: service}
}

// dwellView adds the derived fields clients render.
type dwellView struct {
	models.DwellPoint
	DurationSeconds int64            `json:"durationSeconds"`
	DwellType       models.DwellType `json:"dwellType"`
	DisplayName     string           `json:"displayName,omitempty"`
}

func viewOf(d models.DwellPoint) dwellView {
	return dwellView{
		DwellPoint:      d,
		DurationSeconds: int64(d.Duration().Seconds()),
		DwellType:       d.Type(),
		DisplayName:     d.DisplayName(),
	}
}

// ListDwells handles GET /api/v1/dwells
func (h *DwellHandler) ListDwells(c *gin.Context) {
	var filter models.DwellFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		response.Error(c, http.StatusBadRequest, "Invalid query parameters", err)
		return
	}

	dwells, total, err := h.service.ListDwells(filter)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, "Failed to list dwells", err)
		return
	}

	views := make([]dwellView, len(dwells))
	for i, d := range dwells {
		views[i] = viewOf(d)
	}

	response.Success(c, gin.H{
		"data":  views,
		"total": total,
	})
}

// GetDwell handles GET /api/v1/dwells/:id
func (h *DwellHandler) GetDwell(c *gin.Context) {
	d, err := h.service.GetDwell(c.Param("id"))
	switch {
	case errors.Is(err, service.ErrDwellNotFound):
		response.Error(c, http.StatusNotFound, "Dwell not found", nil)
	case err != nil:
		response.Error(c, http.StatusInternalServerError, "Failed to get dwell", err)
	default:
		response.Success(c, viewOf(*d))
	}
}

type venueOverrideRequest struct {
	Name string `json:"name" binding:"required"`
}

// OverrideVenue handles PUT /api/v1/dwells/:id/venue
func (h *DwellHandler) OverrideVenue(c *gin.Context) {
	var req venueOverrideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "Invalid venue override", err)
		return
	}

	err := h.service.OverrideVenue(c.Param("id"), req.Name)
	switch {
	case errors.Is(err, service.ErrDwellNotFound):
		response.Error(c, http.StatusNotFound, "Dwell not found", nil)
	case err != nil:
		response.Error(c, http.StatusInternalServerError, "Failed to override venue", err)
	default:
		response.Success(c, gin.H{"updated": true})
	}
}

type ratingRequest struct {
	Rating int    `json:"rating" binding:"min=0,max=5"`
	Note   string `json:"note"`
}

// RateDwell handles PUT /api/v1/dwells/:id/rating
func (h *DwellHandler) RateDwell(c *gin.Context) {
	var req ratingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "Invalid rating", err)
		return
	}

	err := h.service.RateDwell(c.Param("id"), req.Rating, req.Note)
	switch {
	case errors.Is(err, service.ErrDwellNotFound):
		response.Error(c, http.StatusNotFound, "Dwell not found", nil)
	case err != nil:
		response.Error(c, http.StatusInternalServerError, "Failed to rate dwell", err)
	default:
		response.Success(c, gin.H{"updated": true})
	}
}

// NearbyVenues handles GET /api/v1/dwells/:id/nearby-venues
func (h *DwellHandler) NearbyVenues(c *gin.Context) {
	venues, err := h.service.NearbyVenues(c.Request.Context(), c.Param("id"))
	switch {
	case errors.Is(err, service.ErrDwellNotFound):
		response.Error(c, http.StatusNotFound, "Dwell not found", nil)
	case err != nil:
		// Geocoder trouble surfaces as an empty suggestion list, not a
		// failure the client has to handle.
		response.Success(c, []models.VenueCandidate{})
	default:
		if venues == nil {
			venues = []models.VenueCandidate{}
		}
		response.Success(c, venues)
	}
}
