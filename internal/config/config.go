package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds all configuration for the ingest service
type Config struct {
	// Server configuration
	Port string `envconfig:"PORT" default:"8080"`

	// SQLite database path
	DBPath string `envconfig:"DB_PATH" default:"data/ingest.sqlite"`

	// Chunk storage configuration
	BlobBackend    string `envconfig:"BLOB_BACKEND" default:"disk"` // disk, azure
	AudioDir       string `envconfig:"AUDIO_DIR" default:"data/audio"`
	AzureConnStr   string `envconfig:"AZURE_STORAGE_CONNECTION_STRING" default:""`
	AzureContainer string `envconfig:"AZURE_STORAGE_CONTAINER" default:"chunks"`

	// Speech-to-text configuration
	STTBackend       string `envconfig:"STT_BACKEND" default:"openai"` // openai, deepgram
	OpenAIAPIKey     string `envconfig:"OPENAI_API_KEY" default:""`
	WhisperModel     string `envconfig:"WHISPER_MODEL" default:"whisper-1"`
	DeepgramAPIKey   string `envconfig:"DEEPGRAM_API_KEY" default:""`
	DeepgramModel    string `envconfig:"DEEPGRAM_MODEL" default:"nova-2"`
	DeepgramLanguage string `envconfig:"DEEPGRAM_LANGUAGE" default:"en"`

	// Summarization configuration
	SummaryModel string `envconfig:"SUMMARY_MODEL" default:"gpt-4o-mini"`

	// Chunk classification
	MinChunkBytes  int `envconfig:"MIN_CHUNK_BYTES" default:"1024"`    // below this a chunk is signal-only
	HeaderMaxBytes int `envconfig:"HEADER_MAX_BYTES" default:"512000"` // header chunks larger than this are not concatenated

	// Finalization heuristics
	MinTranscriptChars int `envconfig:"MIN_TRANSCRIPT_CHARS" default:"10"` // below this the transcript is "too short"
	SecondsPerChunk    int `envconfig:"SECONDS_PER_CHUNK" default:"30"`    // coarse duration estimate per real chunk

	// Recovery windows
	InactivitySeconds    int `envconfig:"INACTIVITY_SECONDS" default:"120"`     // auto-finalize after this much client silence
	StuckSeconds         int `envconfig:"STUCK_SECONDS" default:"600"`          // re-drive pending chunks after this
	JanitorPeriodSeconds int `envconfig:"JANITOR_PERIOD_SECONDS" default:"300"` // sweep interval

	// Worker pool
	WorkerCount  int `envconfig:"WORKER_COUNT" default:"4"`
	QueueBacklog int `envconfig:"QUEUE_BACKLOG" default:"256"`

	// Resilience configuration
	RetryMaxAttempts           int `envconfig:"RETRY_MAX_ATTEMPTS" default:"3"`             // Maximum transcription attempts per task run
	RetryInitialBackoff        int `envconfig:"RETRY_INITIAL_BACKOFF" default:"500"`        // Initial backoff in milliseconds
	CircuitBreakerMaxFailures  int `envconfig:"CIRCUIT_BREAKER_MAX_FAILURES" default:"5"`   // Failures before opening circuit
	CircuitBreakerResetTimeout int `envconfig:"CIRCUIT_BREAKER_RESET_TIMEOUT" default:"30"` // Seconds before attempting recovery

	// Observability configuration
	LogLevel       string `envconfig:"LOG_LEVEL" default:"info"`       // Log level: debug, info, warn, error
	LogPretty      bool   `envconfig:"LOG_PRETTY" default:"false"`     // Pretty print logs (for development)
	MetricsEnabled bool   `envconfig:"METRICS_ENABLED" default:"true"` // Enable Prometheus metrics
}

// Load reads configuration from environment variables.
// It first attempts to load from a .env file if one exists, then from the environment.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return LoadFromEnv()
}

// LoadFromEnv loads configuration directly from environment variables
// without attempting to load a .env file (useful for containerized deployments).
func LoadFromEnv() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.STTBackend {
	case "openai":
		if c.OpenAIAPIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY is required for the openai STT backend")
		}
	case "deepgram":
		if c.DeepgramAPIKey == "" {
			return fmt.Errorf("DEEPGRAM_API_KEY is required for the deepgram STT backend")
		}
	default:
		return fmt.Errorf("unknown STT backend %q", c.STTBackend)
	}

	switch c.BlobBackend {
	case "disk":
		// AudioDir is created on startup.
	case "azure":
		if c.AzureConnStr == "" {
			return fmt.Errorf("AZURE_STORAGE_CONNECTION_STRING is required for the azure blob backend")
		}
	default:
		return fmt.Errorf("unknown blob backend %q", c.BlobBackend)
	}

	// The summarizer always runs through OpenAI, even when Deepgram handles STT.
	if c.OpenAIAPIKey == "" {
		return fmt.Errorf("OPENAI_API_KEY is required for summarization")
	}

	if c.WorkerCount < 1 {
		return fmt.Errorf("WORKER_COUNT must be at least 1")
	}
	return nil
}

// InactivityWindow returns the auto-finalize window as a duration.
func (c *Config) InactivityWindow() time.Duration {
	return time.Duration(c.InactivitySeconds) * time.Second
}

// StuckWindow returns the stuck-session recovery window as a duration.
func (c *Config) StuckWindow() time.Duration {
	return time.Duration(c.StuckSeconds) * time.Second
}

// JanitorPeriod returns the sweep interval as a duration.
func (c *Config) JanitorPeriod() time.Duration {
	return time.Duration(c.JanitorPeriodSeconds) * time.Second
}

// GetEnv returns the value of an environment variable or a default value
func GetEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
