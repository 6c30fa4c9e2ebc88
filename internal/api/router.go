package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/citydwell/sessions-backend-go/internal/config"
	"github.com/citydwell/sessions-backend-go/internal/handler"
	"github.com/citydwell/sessions-backend-go/internal/middleware"
	"github.com/citydwell/sessions-backend-go/internal/service"
)

// SetupRouter wires the HTTP API.
func SetupRouter(cfg *config.Config, sessions *service.SessionService) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.Logger())

	// CORS
	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	})

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"message": "City stops API is running",
		})
	})

	sessionHandler := handler.NewSessionHandler(sessions)
	dwellHandler := handler.NewDwellHandler(sessions)
	authHandler := handler.NewAuthHandler(cfg.JWTSecret)

	api := r.Group("/api/v1")
	api.Use(middleware.RateLimit(600, time.Minute))
	{
		api.POST("/auth/token", authHandler.IssueToken)

		// Reads are open; mutations need a device token.
		api.GET("/sessions", sessionHandler.ListSessions)
		api.GET("/sessions/:id", sessionHandler.GetSession)
		api.GET("/dwells", dwellHandler.ListDwells)
		api.GET("/dwells/:id", dwellHandler.GetDwell)
		api.GET("/dwells/:id/nearby-venues", dwellHandler.NearbyVenues)

		authed := api.Group("")
		authed.Use(middleware.Auth(cfg.JWTSecret))
		{
			authed.POST("/sessions", sessionHandler.StartSession)
			authed.POST("/sessions/:id/samples", sessionHandler.IngestSamples)
			authed.POST("/sessions/:id/visits", sessionHandler.IngestVisit)
			authed.POST("/sessions/:id/stop", sessionHandler.StopSession)
			authed.PUT("/dwells/:id/venue", dwellHandler.OverrideVenue)
			authed.PUT("/dwells/:id/rating", dwellHandler.RateDwell)
		}
	}

	return r
}
