package config

import (
	_ "embed"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

type Config struct {
	Storage     StorageConfig
	Database    DatabaseConfig
	Membership  MembershipConfig
	FaceService FaceServiceConfig
	Worker      WorkerConfig
	Caption     CaptionConfig
	Matching    MatchingConfig
	Derivatives DerivativesConfig
}

type StorageConfig struct {
	Root string // root directory for originals and derivatives
}

type DatabaseConfig struct {
	URL          string // PostgreSQL connection URL
	MaxOpenConns int    // Maximum open connections (default 25)
	MaxIdleConns int    // Maximum idle connections (default 5)
}

// MembershipConfig points at the read-only replica of the organization
// management system. The reference snapshot (members, events, registrations)
// is refreshed from it; when DSN is empty the snapshot is loaded from the
// local reference tables only.
type MembershipConfig struct {
	DSN             string        // MySQL DSN, e.g. readonly:secret@tcp(members-db:3306)/club
	RefreshInterval time.Duration // how often the worker swaps in a new snapshot
}

type FaceServiceConfig struct {
	URL string // face detection/embedding service, defaults to http://localhost:8000
	Dim int    // embedding dimension, defaults to 512
}

type WorkerConfig struct {
	Concurrency  int           // parallel photo workers
	LeaseTTL     time.Duration // exclusive claim duration per photo
	MaxAttempts  int           // transient retries before manual review
	BackoffBase  time.Duration // first retry delay, doubled per attempt
	BackoffMax   time.Duration // ceiling for the retry delay
	PollInterval time.Duration // idle queue poll interval
}

type CaptionConfig struct {
	Provider    string // "openai", "gemini" or empty to disable
	OpenAIToken string
	GeminiKey   string
	Model       string
}

// MatchingConfig holds the tuning knobs for event and face matching. Defaults
// come from the embedded defaults.yaml; the thresholds can be overridden via
// environment variables.
type MatchingConfig struct {
	EventWindowHours         int     `yaml:"event_window_hours"`
	DefaultEventRadiusMeters float64 `yaml:"default_event_radius_meters"`
	DistanceEpsilonMeters    float64 `yaml:"distance_epsilon_meters"`
	FaceHighThreshold        float64 `yaml:"face_high_threshold"`
	FaceLowThreshold         float64 `yaml:"face_low_threshold"`
	RegistrantMargin         float64 `yaml:"registrant_margin"`
	NearDuplicateHamming     int     `yaml:"near_duplicate_hamming"`
	MaxExemplarsPerMember    int     `yaml:"max_exemplars_per_member"`
}

type DerivativesConfig struct {
	Tiers []TierConfig `yaml:"tiers"`
}

// TierConfig describes one display rendition. Width is fixed, height follows
// the aspect ratio.
type TierConfig struct {
	Name    string `yaml:"name"`
	Width   int    `yaml:"width"`
	Quality int    `yaml:"quality"`
}

type defaultsFile struct {
	Matching    MatchingConfig    `yaml:"matching"`
	Derivatives DerivativesConfig `yaml:"derivatives"`
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

// envFloat reads an environment variable as a float, falling back on parse errors.
func envFloat(key string, defaultVal float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f >= 0 {
		return f
	}
	return defaultVal
}

// envDuration reads an environment variable as a time.Duration ("30s", "5m").
func envDuration(key string, defaultVal time.Duration) time.Duration {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if d, err := time.ParseDuration(s); err == nil && d > 0 {
		return d
	}
	return defaultVal
}

func Load() *Config {
	var defaults defaultsFile
	if err := yaml.Unmarshal(defaultsYAML, &defaults); err != nil {
		// Embedded file, cannot fail in practice.
		panic("failed to unmarshal embedded defaults.yaml: " + err.Error())
	}

	matching := defaults.Matching
	matching.EventWindowHours = envInt("EVENT_WINDOW_HOURS", matching.EventWindowHours)
	matching.FaceHighThreshold = envFloat("FACE_HIGH_THRESHOLD", matching.FaceHighThreshold)
	matching.FaceLowThreshold = envFloat("FACE_LOW_THRESHOLD", matching.FaceLowThreshold)
	matching.RegistrantMargin = envFloat("FACE_REGISTRANT_MARGIN", matching.RegistrantMargin)
	matching.NearDuplicateHamming = envInt("NEAR_DUPLICATE_HAMMING", matching.NearDuplicateHamming)
	matching.MaxExemplarsPerMember = envInt("MAX_EXEMPLARS_PER_MEMBER", matching.MaxExemplarsPerMember)

	return &Config{
		Storage: StorageConfig{
			Root: envOr("PHOTO_STORAGE_ROOT", "./photos"),
		},
		Database: DatabaseConfig{
			URL:          os.Getenv("DATABASE_URL"),
			MaxOpenConns: envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns: envInt("DATABASE_MAX_IDLE_CONNS", 5),
		},
		Membership: MembershipConfig{
			DSN:             os.Getenv("MEMBERSHIP_DATABASE_DSN"),
			RefreshInterval: envDuration("SNAPSHOT_REFRESH_INTERVAL", 15*time.Minute),
		},
		FaceService: FaceServiceConfig{
			URL: os.Getenv("FACE_SERVICE_URL"),
			Dim: envInt("FACE_EMBEDDING_DIM", 512),
		},
		Worker: WorkerConfig{
			Concurrency:  envInt("WORKER_CONCURRENCY", 4),
			LeaseTTL:     envDuration("WORKER_LEASE_TTL", 5*time.Minute),
			MaxAttempts:  envInt("WORKER_MAX_ATTEMPTS", 3),
			BackoffBase:  envDuration("WORKER_BACKOFF_BASE", 30*time.Second),
			BackoffMax:   envDuration("WORKER_BACKOFF_MAX", 30*time.Minute),
			PollInterval: envDuration("WORKER_POLL_INTERVAL", 5*time.Second),
		},
		Caption: CaptionConfig{
			Provider:    os.Getenv("CAPTION_PROVIDER"),
			OpenAIToken: os.Getenv("OPENAI_TOKEN"),
			GeminiKey:   os.Getenv("GEMINI_API_KEY"),
			Model:       os.Getenv("CAPTION_MODEL"),
		},
		Matching:    matching,
		Derivatives: defaults.Derivatives,
	}
}

func envOr(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}
