package app

import "time"

// Config contains all runtime configuration loaded from environment variables.
type Config struct {
	HTTPAddr string
	LogLevel string

	ReadHeaderTimeout time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int

	DatabaseURL string
	DBMaxConns  int32
	DBMinConns  int32

	// If true, /readyz returns 503 unless the DB is configured and reachable.
	ReadinessRequireDB bool

	// Capability backends. Empty URLs fall back to local dev implementations.
	CoordinatorURL    string
	TranscriberURL    string
	SynthesizerURL    string
	CapabilityTimeout time.Duration
}

// LoadConfig loads Config from environment variables with defaults.
func LoadConfig() Config {
	return Config{
		HTTPAddr: EnvString("ARIA_HTTP_ADDR", "0.0.0.0:8080"),
		LogLevel: EnvString("ARIA_LOG_LEVEL", "info"),

		ReadHeaderTimeout: EnvDuration("ARIA_HTTP_READ_HEADER_TIMEOUT", 5*time.Second),
		ReadTimeout:       EnvDuration("ARIA_HTTP_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:      EnvDuration("ARIA_HTTP_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:       EnvDuration("ARIA_HTTP_IDLE_TIMEOUT", 60*time.Second),

		MaxHeaderBytes: EnvInt("ARIA_HTTP_MAX_HEADER_BYTES", 1<<20),

		DatabaseURL: EnvString("ARIA_DATABASE_URL", ""),
		DBMaxConns:  EnvInt32("ARIA_DB_MAX_CONNS", 10),
		DBMinConns:  EnvInt32("ARIA_DB_MIN_CONNS", 0),

		ReadinessRequireDB: EnvBool("ARIA_READINESS_REQUIRE_DB", false),

		CoordinatorURL:    EnvString("ARIA_COORDINATOR_URL", ""),
		TranscriberURL:    EnvString("ARIA_STT_URL", ""),
		SynthesizerURL:    EnvString("ARIA_TTS_URL", ""),
		CapabilityTimeout: EnvDuration("ARIA_CAPABILITY_TIMEOUT", 30*time.Second),
	}
}
