package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func authRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/protected", Auth(testSecret), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"deviceId": c.GetString("deviceID")})
	})
	return r
}

func TestTokenRoundTrip(t *testing.T) {
	token, err := IssueToken(testSecret, "device-1", time.Hour)
	require.NoError(t, err)

	claims, err := ParseToken(testSecret, token)
	require.NoError(t, err)
	assert.Equal(t, "device-1", claims.DeviceID)
}

func TestParseTokenRejections(t *testing.T) {
	t.Run("wrong secret", func(t *testing.T) {
		token, err := IssueToken(testSecret, "device-1", time.Hour)
		require.NoError(t, err)

		_, err = ParseToken("other-secret", token)
		assert.Error(t, err)
	})

	t.Run("expired token", func(t *testing.T) {
		token, err := IssueToken(testSecret, "device-1", -time.Minute)
		require.NoError(t, err)

		_, err = ParseToken(testSecret, token)
		assert.Error(t, err)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := ParseToken(testSecret, "not.a.token")
		assert.Error(t, err)
	})
}

func TestAuthMiddleware(t *testing.T) {
	r := authRouter()

	t.Run("valid token passes and exposes the device", func(t *testing.T) {
		token, err := IssueToken(testSecret, "device-1", time.Hour)
		require.NoError(t, err)

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/protected", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		r.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), "device-1")
	})

	t.Run("missing header", func(t *testing.T) {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/protected", nil))
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("malformed header", func(t *testing.T) {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/protected", nil)
		req.Header.Set("Authorization", "Token abc")
		r.ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("invalid token", func(t *testing.T) {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/protected", nil)
		req.Header.Set("Authorization", "Bearer bogus")
		r.ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestRateLimiterAllow(t *testing.T) {
	rl := NewRateLimiter(3, time.Minute)

	for i := 0; i < 3; i++ {
		assert.True(t, rl.Allow("10.0.0.1"), "request %d should pass", i)
	}
	assert.False(t, rl.Allow("10.0.0.1"), "fourth request over the limit")

	// Other clients are tracked independently.
	assert.True(t, rl.Allow("10.0.0.2"))
}
