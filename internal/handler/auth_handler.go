package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/citydwell/sessions-backend-go/internal/middleware"
	"github.com/citydwell/sessions-backend-go/pkg/response"
)

// AuthHandler issues device tokens. This is a single-user backend, so
// a device registers itself by name and gets a signed token.
type AuthHandler struct {
	secret string
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(secret string) *AuthHandler {
	return &AuthHandler{secret: secret}
}

type tokenRequest struct {
	DeviceID string `json:"deviceId" binding:"required"`
}

// IssueToken handles POST /api/v1/auth/token
func (h *AuthHandler) IssueToken(c *gin.Context) {
	var req tokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "Invalid token request", err)
		return
	}

	token, err := middleware.IssueToken(h.secret, req.DeviceID, 30*24*time.Hour)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, "Failed to issue token", err)
		return
	}

	response.Success(c, gin.H{"token": token})
}
