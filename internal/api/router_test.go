package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/citydwell/sessions-backend-go/internal/config"
	"github.com/citydwell/sessions-backend-go/internal/database"
	"github.com/citydwell/sessions-backend-go/internal/geocoding"
	"github.com/citydwell/sessions-backend-go/internal/notify"
	"github.com/citydwell/sessions-backend-go/internal/repository"
	"github.com/citydwell/sessions-backend-go/internal/service"
)

type apiFixture struct {
	router *gin.Engine
	token  string
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := database.Open(database.Config{Path: filepath.Join(t.TempDir(), "test.db")})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	cfg := &config.Config{
		JWTSecret:          "test-secret",
		VisitEventsEnabled: true,
		Detector: config.DetectorConfig{
			RadiusMeters:              25,
			MinDuration:               1200 * time.Second,
			MovementSpeedThreshold:    1.4,
			MaxAccuracyMeters:         100,
			MaxVerticalAccuracyMeters: 50,
			MaxSampleAge:              60 * time.Second,
			VisitMergeDistanceMeters:  50,
			RevisitDistanceMeters:     35,
		},
	}

	svc := service.NewSessionService(cfg,
		repository.NewSessionRepository(db),
		repository.NewDwellRepository(db),
		geocoding.Noop{}, notify.LogNotifier{})

	f := &apiFixture{router: SetupRouter(cfg, svc)}

	body := f.do(t, http.MethodPost, "/api/v1/auth/token", map[string]any{"deviceId": "test-device"}, "", http.StatusOK)
	f.token = body["data"].(map[string]any)["token"].(string)
	return f
}

// do sends a JSON request and decodes the envelope, asserting the
// status code.
func (f *apiFixture) do(t *testing.T, method, path string, payload any, token string, wantStatus int) map[string]any {
	t.Helper()

	var buf bytes.Buffer
	if payload != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(payload))
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	require.Equal(t, wantStatus, w.Code, "unexpected status for %s %s: %s", method, path, w.Body.String())

	var body map[string]any
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	}
	return body
}

func TestHealthEndpoint(t *testing.T) {
	f := newAPIFixture(t)

	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "ok")
}

func TestSessionEndpoints(t *testing.T) {
	f := newAPIFixture(t)

	// Mutations without a token are refused.
	f.do(t, http.MethodPost, "/api/v1/sessions", map[string]any{}, "", http.StatusUnauthorized)

	body := f.do(t, http.MethodPost, "/api/v1/sessions", map[string]any{"label": "errands"}, f.token, http.StatusOK)
	sessionID := body["data"].(map[string]any)["id"].(string)
	require.NotEmpty(t, sessionID)

	// A batch of two samples, one with no speed reading.
	samples := []map[string]any{
		{
			"latitude": 40.7128, "longitude": -74.0060,
			"timestamp": time.Now().UTC().Format(time.RFC3339),
			"accuracy":  10, "speed": 0,
		},
		{
			"latitude": 40.7129, "longitude": -74.0060,
			"timestamp": time.Now().UTC().Format(time.RFC3339),
			"accuracy": 12,
		},
	}
	body = f.do(t, http.MethodPost, fmt.Sprintf("/api/v1/sessions/%s/samples", sessionID), samples, f.token, http.StatusOK)
	assert.Equal(t, float64(2), body["data"].(map[string]any)["accepted"])

	// An empty batch is a client error.
	f.do(t, http.MethodPost, fmt.Sprintf("/api/v1/sessions/%s/samples", sessionID), []map[string]any{}, f.token, http.StatusBadRequest)

	// Visit event for an earlier stay.
	arrival := time.Now().Add(-2 * time.Hour).UTC()
	visit := map[string]any{
		"latitude": 40.7200, "longitude": -74.0060,
		"arrival":   arrival.Format(time.RFC3339),
		"departure": arrival.Add(30 * time.Minute).Format(time.RFC3339),
	}
	f.do(t, http.MethodPost, fmt.Sprintf("/api/v1/sessions/%s/visits", sessionID), visit, f.token, http.StatusOK)

	// Live session view.
	body = f.do(t, http.MethodGet, "/api/v1/sessions/"+sessionID, nil, "", http.StatusOK)
	data := body["data"].(map[string]any)
	assert.Len(t, data["dwells"], 1)
	assert.Len(t, data["route"], 2)

	// Stop, then confirm stored reads and terminal semantics.
	f.do(t, http.MethodPost, fmt.Sprintf("/api/v1/sessions/%s/stop", sessionID), nil, f.token, http.StatusOK)
	f.do(t, http.MethodPost, fmt.Sprintf("/api/v1/sessions/%s/stop", sessionID), nil, f.token, http.StatusNotFound)
	f.do(t, http.MethodPost, fmt.Sprintf("/api/v1/sessions/%s/samples", sessionID), samples, f.token, http.StatusNotFound)

	body = f.do(t, http.MethodGet, "/api/v1/sessions", nil, "", http.StatusOK)
	assert.Equal(t, float64(1), body["data"].(map[string]any)["total"])

	f.do(t, http.MethodGet, "/api/v1/sessions/unknown", nil, "", http.StatusNotFound)
}

func TestDwellEndpoints(t *testing.T) {
	f := newAPIFixture(t)

	body := f.do(t, http.MethodPost, "/api/v1/sessions", nil, f.token, http.StatusOK)
	sessionID := body["data"].(map[string]any)["id"].(string)

	arrival := time.Now().Add(-2 * time.Hour).UTC()
	f.do(t, http.MethodPost, fmt.Sprintf("/api/v1/sessions/%s/visits", sessionID), map[string]any{
		"latitude": 40.7200, "longitude": -74.0060,
		"arrival":   arrival.Format(time.RFC3339),
		"departure": arrival.Add(30 * time.Minute).Format(time.RFC3339),
	}, f.token, http.StatusOK)

	body = f.do(t, http.MethodGet, "/api/v1/dwells?sessionId="+sessionID, nil, "", http.StatusOK)
	list := body["data"].(map[string]any)["data"].([]any)
	require.Len(t, list, 1)
	dwell := list[0].(map[string]any)
	dwellID := dwell["id"].(string)

	// Derived view fields.
	assert.Equal(t, "VISIT", dwell["dwellType"])
	assert.Equal(t, float64(1800), dwell["durationSeconds"])
	assert.Equal(t, "ESTIMATED", dwell["confidence"])

	// Venue override and rating, then read back.
	f.do(t, http.MethodPut, fmt.Sprintf("/api/v1/dwells/%s/venue", dwellID), map[string]any{"name": "The Corner Cafe"}, f.token, http.StatusOK)
	f.do(t, http.MethodPut, fmt.Sprintf("/api/v1/dwells/%s/rating", dwellID), map[string]any{"rating": 4, "note": "busy"}, f.token, http.StatusOK)

	body = f.do(t, http.MethodGet, "/api/v1/dwells/"+dwellID, nil, "", http.StatusOK)
	got := body["data"].(map[string]any)
	assert.Equal(t, "The Corner Cafe", got["venueOverride"])
	assert.Equal(t, "The Corner Cafe", got["displayName"])
	assert.Equal(t, float64(4), got["rating"])

	// Rating outside the bounds is rejected by binding.
	f.do(t, http.MethodPut, fmt.Sprintf("/api/v1/dwells/%s/rating", dwellID), map[string]any{"rating": 9}, f.token, http.StatusBadRequest)

	// Unknown dwell and unauthenticated mutation.
	f.do(t, http.MethodGet, "/api/v1/dwells/unknown", nil, "", http.StatusNotFound)
	f.do(t, http.MethodPut, fmt.Sprintf("/api/v1/dwells/%s/venue", dwellID), map[string]any{"name": "x"}, "", http.StatusUnauthorized)

	// Nearby venues from the noop geocoder is an empty list, not an
	// error.
	body = f.do(t, http.MethodGet, fmt.Sprintf("/api/v1/dwells/%s/nearby-venues", dwellID), nil, "", http.StatusOK)
	assert.Empty(t, body["data"])
}
