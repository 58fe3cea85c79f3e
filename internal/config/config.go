package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"

	"reclaim/internal/domain"
)

type Config struct {
	Env           string
	ListenAddr    string
	DatabaseURL   string
	RedisAddr     string
	IngestWorkers int
	SweepInterval time.Duration
	Matching      Matching
}

// Matching holds every tunable of the scoring and lifecycle pipeline. It is
// immutable after Load; reconfiguration means constructing new services.
type Matching struct {
	LocationWeight float64
	VisualWeight   float64
	TextWeight     float64
	TemporalWeight float64

	// WeightTolerance bounds how far the four weights may drift from summing
	// to exactly 1.0 before construction is refused.
	WeightTolerance float64

	LocationDecayM     float64
	TemporalDecayHours float64
	VisualTagCutoff    float64

	MaxRadiusM      float64
	CandidateWindow time.Duration
	CandidateLimit  int

	AutoNotifyThreshold float64
	SurfaceThreshold    float64
	StoreThreshold      float64

	MatchTTL          time.Duration
	ClaimTTL          time.Duration
	MaxVerifyAttempts int
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		var out int
		if _, err := fmt.Sscanf(v, "%d", &out); err == nil {
			return out
		}
	}
	return def
}

func getenvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		var out float64
		if _, err := fmt.Sscanf(v, "%g", &out); err == nil {
			return out
		}
	}
	return def
}

func getenvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func Load() (Config, error) {
	// Local .env is optional; real deployments inject the environment.
	_ = godotenv.Load()

	cfg := Config{
		Env:           getenv("APP_ENV", "development"),
		ListenAddr:    getenv("LISTEN_ADDR", ":8080"),
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		RedisAddr:     getenv("REDIS_ADDR", "localhost:6379"),
		IngestWorkers: getenvInt("INGEST_WORKERS", 4),
		SweepInterval: getenvDuration("SWEEP_INTERVAL", time.Minute),
		Matching: Matching{
			LocationWeight:      getenvFloat("WEIGHT_LOCATION", 0.30),
			VisualWeight:        getenvFloat("WEIGHT_VISUAL", 0.30),
			TextWeight:          getenvFloat("WEIGHT_TEXT", 0.25),
			TemporalWeight:      getenvFloat("WEIGHT_TEMPORAL", 0.15),
			WeightTolerance:     0.01,
			LocationDecayM:      getenvFloat("LOCATION_DECAY_M", 500),
			TemporalDecayHours:  getenvFloat("TEMPORAL_DECAY_HOURS", 24),
			VisualTagCutoff:     getenvFloat("VISUAL_TAG_CUTOFF", 0.8),
			MaxRadiusM:          getenvFloat("MAX_RADIUS_M", 50000),
			CandidateWindow:     getenvDuration("CANDIDATE_WINDOW", 7*24*time.Hour),
			CandidateLimit:      getenvInt("CANDIDATE_LIMIT", 100),
			AutoNotifyThreshold: getenvFloat("THRESHOLD_AUTO_NOTIFY", 0.85),
			SurfaceThreshold:    getenvFloat("THRESHOLD_SURFACE", 0.70),
			StoreThreshold:      getenvFloat("THRESHOLD_STORE", 0.50),
			MatchTTL:            getenvDuration("MATCH_TTL", 7*24*time.Hour),
			ClaimTTL:            getenvDuration("CLAIM_TTL", 24*time.Hour),
			MaxVerifyAttempts:   getenvInt("MAX_VERIFY_ATTEMPTS", 3),
		},
	}
	if err := cfg.Matching.Validate(); err != nil {
		return cfg, err
	}
	if cfg.DatabaseURL == "" {
		// Not fatal for early local runs; warn via error value so callers can decide.
		return cfg, fmt.Errorf("DATABASE_URL not set")
	}
	return cfg, nil
}

// Validate rejects inconsistent tunables before anything is constructed from
// them. Weight-sum validation is repeated at engine construction so a config
// assembled by hand gets the same check.
func (m Matching) Validate() error {
	if m.StoreThreshold > m.SurfaceThreshold || m.SurfaceThreshold > m.AutoNotifyThreshold {
		return &domain.ConfigurationError{Reason: fmt.Sprintf(
			"thresholds must be ordered store <= surface <= auto-notify, got %.2f/%.2f/%.2f",
			m.StoreThreshold, m.SurfaceThreshold, m.AutoNotifyThreshold)}
	}
	if m.LocationDecayM <= 0 || m.TemporalDecayHours <= 0 {
		return &domain.ConfigurationError{Reason: "decay constants must be positive"}
	}
	if m.MaxRadiusM <= 0 {
		return &domain.ConfigurationError{Reason: "max radius must be positive"}
	}
	if m.CandidateLimit <= 0 {
		return &domain.ConfigurationError{Reason: "candidate limit must be positive"}
	}
	if m.MaxVerifyAttempts <= 0 {
		return &domain.ConfigurationError{Reason: "max verify attempts must be positive"}
	}
	return nil
}
