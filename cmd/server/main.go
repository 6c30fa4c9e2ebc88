package main

import (
	"log"

	"github.com/citydwell/sessions-backend-go/internal/api"
	"github.com/citydwell/sessions-backend-go/internal/config"
	"github.com/citydwell/sessions-backend-go/internal/database"
	"github.com/citydwell/sessions-backend-go/internal/geocoding"
	"github.com/citydwell/sessions-backend-go/internal/notify"
	"github.com/citydwell/sessions-backend-go/internal/repository"
	"github.com/citydwell/sessions-backend-go/internal/service"
)

func main() {
	cfg := config.Load()

	db, err := database.Open(database.Config{Path: cfg.DBPath})
	if err != nil {
		log.Fatal("Failed to initialize database:", err)
	}
	defer db.Close()

	var geocoder geocoding.Geocoder = geocoding.Noop{}
	if cfg.GeocoderURL != "" {
		geocoder = geocoding.NewHTTPGeocoder(cfg.GeocoderURL, cfg.GeocoderTimeout)
	}

	sessions := service.NewSessionService(
		cfg,
		repository.NewSessionRepository(db),
		repository.NewDwellRepository(db),
		geocoder,
		notify.LogNotifier{},
	)

	router := api.SetupRouter(cfg, sessions)

	log.Printf("Server starting on port %s", cfg.Port)
	if err := router.Run(cfg.Port); err != nil {
		log.Fatal("Failed to start server:", err)
	}
}
