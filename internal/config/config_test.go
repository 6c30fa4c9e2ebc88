package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, ":8080", cfg.Port)
	assert.Equal(t, "./data/sessions/sessions.db", cfg.DBPath)
	assert.Empty(t, cfg.GeocoderURL)
	assert.Equal(t, 5*time.Second, cfg.GeocoderTimeout)
	assert.True(t, cfg.VisitEventsEnabled)

	d := cfg.Detector
	assert.Equal(t, 25.0, d.RadiusMeters)
	assert.Equal(t, 1200*time.Second, d.MinDuration)
	assert.Equal(t, 1.4, d.MovementSpeedThreshold)
	assert.Equal(t, 100.0, d.MaxAccuracyMeters)
	assert.Equal(t, 50.0, d.MaxVerticalAccuracyMeters)
	assert.Equal(t, 60*time.Second, d.MaxSampleAge)
	assert.Equal(t, 50.0, d.VisitMergeDistanceMeters)
	assert.Equal(t, 35.0, d.RevisitDistanceMeters)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", ":9090")
	t.Setenv("DWELL_RADIUS_M", "40")
	t.Setenv("DWELL_MIN_DURATION_S", "600")
	t.Setenv("MOVE_SPEED_MPS", "2.5")
	t.Setenv("VISIT_EVENTS_ENABLED", "false")
	t.Setenv("GEOCODER_URL", "http://geocoder.local")

	cfg := Load()

	assert.Equal(t, ":9090", cfg.Port)
	assert.Equal(t, 40.0, cfg.Detector.RadiusMeters)
	assert.Equal(t, 600*time.Second, cfg.Detector.MinDuration)
	assert.Equal(t, 2.5, cfg.Detector.MovementSpeedThreshold)
	assert.False(t, cfg.VisitEventsEnabled)
	assert.Equal(t, "http://geocoder.local", cfg.GeocoderURL)
}

func TestLoadIgnoresMalformedValues(t *testing.T) {
	t.Setenv("DWELL_MIN_DURATION_S", "twenty minutes")
	t.Setenv("DWELL_RADIUS_M", "not-a-number")
	t.Setenv("VISIT_EVENTS_ENABLED", "maybe")

	cfg := Load()

	assert.Equal(t, 1200*time.Second, cfg.Detector.MinDuration)
	assert.Equal(t, 25.0, cfg.Detector.RadiusMeters)
	assert.True(t, cfg.VisitEventsEnabled)
}
