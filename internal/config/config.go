package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds application configuration
type Config struct {
	Port      string
	DBPath    string
	JWTSecret string

	GeocoderURL     string
	GeocoderTimeout time.Duration

	// Capability flag, resolved once at startup. When the platform
	// build has no visit service, visit ingestion becomes a no-op.
	VisitEventsEnabled bool

	Detector DetectorConfig
}

// DetectorConfig holds the tunable thresholds of the dwell pipeline.
// These are configuration values rather than literals so deployments
// can trade accuracy against battery on the client side.
type DetectorConfig struct {
	RadiusMeters           float64       // "still at the same place" tolerance
	MinDuration            time.Duration // candidate must persist this long
	MovementSpeedThreshold float64       // m/s, brisk-walk cutoff

	MaxAccuracyMeters         float64       // horizontal accuracy ceiling
	MaxVerticalAccuracyMeters float64       // vertical accuracy ceiling
	MaxSampleAge              time.Duration // freshness window

	VisitMergeDistanceMeters float64 // reconciler overlap distance
	RevisitDistanceMeters    float64 // revisit proximity threshold
}

// Load loads configuration from environment variables with defaults
func Load() *Config {
	return &Config{
		Port:      envString("PORT", ":8080"),
		DBPath:    envString("DB_PATH", "./data/sessions/sessions.db"),
		JWTSecret: envString("JWT_SECRET", "your-secret-key-change-in-production"),

		GeocoderURL:     envString("GEOCODER_URL", ""),
		GeocoderTimeout: time.Duration(envInt("GEOCODER_TIMEOUT_S", 5)) * time.Second,

		VisitEventsEnabled: envBool("VISIT_EVENTS_ENABLED", true),

		Detector: DetectorConfig{
			RadiusMeters:           envFloat("DWELL_RADIUS_M", 25),
			MinDuration:            time.Duration(envInt("DWELL_MIN_DURATION_S", 1200)) * time.Second,
			MovementSpeedThreshold: envFloat("MOVE_SPEED_MPS", 1.4),

			MaxAccuracyMeters:         envFloat("MAX_ACCURACY_M", 100),
			MaxVerticalAccuracyMeters: envFloat("MAX_VERTICAL_ACCURACY_M", 50),
			MaxSampleAge:              time.Duration(envInt("SAMPLE_MAX_AGE_S", 60)) * time.Second,

			VisitMergeDistanceMeters: envFloat("VISIT_MERGE_DISTANCE_M", 50),
			RevisitDistanceMeters:    envFloat("REVISIT_DISTANCE_M", 35),
		},
	}
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}
