package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/citydwell/sessions-backend-go/internal/models"
	"github.com/citydwell/sessions-backend-go/internal/service"
	"github.com/citydwell/sessions-backend-go/internal/session"
	"github.com/citydwell/sessions-backend-go/pkg/response"
)

// SessionHandler handles HTTP requests for tracking sessions.
type SessionHandler struct {
	service *service.SessionService
}

// NewSessionHandler creates a new session handler
func NewSessionHandler(service *service.SessionService) *SessionHandler {
	return &SessionHandler{service: service}
}

type startSessionRequest struct {
	Label string `json:"label"`
}

// StartSession handles POST /api/v1/sessions
func (h *SessionHandler) StartSession(c *gin.Context) {
	var req startSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
		response.Error(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	record, err := h.service.StartSession(req.Label)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, "Failed to start session", err)
		return
	}

	response.Success(c, record)
}

type sampleRequest struct {
	Latitude         float64   `json:"latitude"`
	Longitude        float64   `json:"longitude"`
	Timestamp        time.Time `json:"timestamp" binding:"required"`
	Accuracy         float64   `json:"accuracy"`
	VerticalAccuracy float64   `json:"verticalAccuracy"`
	Speed            *float64  `json:"speed"` // omitted means unknown
}

func (r sampleRequest) toModel() models.LocationSample {
	speed := -1.0
	if r.Speed != nil {
		speed = *r.Speed
	}
	return models.LocationSample{
		Latitude:         r.Latitude,
		Longitude:        r.Longitude,
		Timestamp:        r.Timestamp,
		Accuracy:         r.Accuracy,
		VerticalAccuracy: r.VerticalAccuracy,
		Speed:            speed,
	}
}

// IngestSamples handles POST /api/v1/sessions/:id/samples. The body is
// a JSON array; samples are processed in array order, which must be
// arrival order.
func (h *SessionHandler) IngestSamples(c *gin.Context) {
	var reqs []sampleRequest
	if err := c.ShouldBindJSON(&reqs); err != nil {
		response.Error(c, http.StatusBadRequest, "Invalid sample batch", err)
		return
	}
	if len(reqs) == 0 {
		response.Error(c, http.StatusBadRequest, "Empty sample batch", nil)
		return
	}

	samples := make([]models.LocationSample, len(reqs))
	for i, r := range reqs {
		samples[i] = r.toModel()
	}

	err := h.service.IngestSamples(c.Param("id"), samples)
	switch {
	case errors.Is(err, service.ErrSessionNotFound):
		response.Error(c, http.StatusNotFound, "Session not found or not live", nil)
	case errors.Is(err, session.ErrSessionEnded):
		response.Error(c, http.StatusConflict, "Session has ended", nil)
	case err != nil:
		response.Error(c, http.StatusInternalServerError, "Failed to ingest samples", err)
	default:
		response.Success(c, gin.H{"accepted": len(samples)})
	}
}

type visitRequest struct {
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Arrival   time.Time `json:"arrival" binding:"required"`
	Departure time.Time `json:"departure" binding:"required"`
	Accuracy  float64   `json:"accuracy"`
}

// IngestVisit handles POST /api/v1/sessions/:id/visits
func (h *SessionHandler) IngestVisit(c *gin.Context) {
	var req visitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "Invalid visit event", err)
		return
	}

	event := models.VisitEvent{
		Latitude:  req.Latitude,
		Longitude: req.Longitude,
		Arrival:   req.Arrival,
		Departure: req.Departure,
		Accuracy:  req.Accuracy,
	}

	err := h.service.IngestVisit(c.Param("id"), event)
	switch {
	case errors.Is(err, service.ErrSessionNotFound):
		response.Error(c, http.StatusNotFound, "Session not found or not live", nil)
	case errors.Is(err, session.ErrSessionEnded):
		response.Error(c, http.StatusConflict, "Session has ended", nil)
	case err != nil:
		response.Error(c, http.StatusInternalServerError, "Failed to ingest visit", err)
	default:
		response.Success(c, gin.H{"accepted": true})
	}
}

// StopSession handles POST /api/v1/sessions/:id/stop
func (h *SessionHandler) StopSession(c *gin.Context) {
	snap, err := h.service.StopSession(c.Param("id"))
	switch {
	case errors.Is(err, service.ErrSessionNotFound):
		response.Error(c, http.StatusNotFound, "Session not found or not live", nil)
	case err != nil:
		response.Error(c, http.StatusInternalServerError, "Failed to stop session", err)
	default:
		response.Success(c, snap)
	}
}

// GetSession handles GET /api/v1/sessions/:id
func (h *SessionHandler) GetSession(c *gin.Context) {
	snap, err := h.service.GetSession(c.Param("id"))
	switch {
	case errors.Is(err, service.ErrSessionNotFound):
		response.Error(c, http.StatusNotFound, "Session not found", nil)
	case err != nil:
		response.Error(c, http.StatusInternalServerError, "Failed to get session", err)
	default:
		response.Success(c, snap)
	}
}

// ListSessions handles GET /api/v1/sessions
func (h *SessionHandler) ListSessions(c *gin.Context) {
	var filter models.SessionFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		response.Error(c, http.StatusBadRequest, "Invalid query parameters", err)
		return
	}

	sessions, total, err := h.service.ListSessions(filter)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, "Failed to list sessions", err)
		return
	}

	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize < 1 {
		filter.PageSize = 100
	}

	response.Success(c, gin.H{
		"data":     sessions,
		"total":    total,
		"page":     filter.Page,
		"pageSize": filter.PageSize,
	})
}
