// Package config provides configuration loading from environment variables.
package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/sethvargo/go-envconfig"
)

// Static errors for configuration validation.
var (
	// ErrSynthBaseURLRequired is returned when SYNTH_BASE_URL is not set.
	ErrSynthBaseURLRequired = errors.New("config: SYNTH_BASE_URL is required")
	// ErrInvalidChunkSize is returned when MAX_LENGTH or MAX_CHUNK_SIZE is not positive.
	ErrInvalidChunkSize = errors.New("config: chunk sizes must be positive")
	// ErrInvalidConcurrency is returned when MAX_CONCURRENT_CHUNKS is not positive.
	ErrInvalidConcurrency = errors.New("config: MAX_CONCURRENT_CHUNKS must be positive")
)

// Config holds all configuration for the application.
type Config struct {
	// Server settings
	Host string `env:"HOST, default=0.0.0.0" json:"host"`
	Port int    `env:"PORT, default=8080" json:"port"`

	// Synthesis backend settings
	SynthBaseURL    string        `env:"SYNTH_BASE_URL, required" json:"synth_base_url"`
	SynthAPIKey     string        `env:"SYNTH_API_KEY" json:"-"` // Masked in JSON
	SynthTimeout    time.Duration `env:"SYNTH_TIMEOUT, default=10m" json:"synth_timeout"`
	SynthRatePerSec float64       `env:"SYNTH_RATE_PER_SEC, default=5" json:"synth_rate_per_sec"`
	SynthMaxRetries int           `env:"SYNTH_MAX_RETRIES, default=3" json:"synth_max_retries"`
	AudioCacheSize  int           `env:"AUDIO_CACHE_SIZE, default=256" json:"audio_cache_size"`

	// Text preparation settings
	MaxLength     int `env:"MAX_LENGTH, default=300" json:"max_length"`
	MaxChunkSize  int `env:"MAX_CHUNK_SIZE, default=1000" json:"max_chunk_size"`
	MaxTextLength int `env:"MAX_TEXT_LENGTH, default=100000" json:"max_text_length"`

	// Processing settings
	MaxConcurrentChunks int `env:"MAX_CONCURRENT_CHUNKS, default=2" json:"max_concurrent_chunks"`

	// Storage settings
	TempDir string `env:"TEMP_DIR, default=/tmp/chatterbox" json:"temp_dir"`

	// Optional S3 settings
	S3Bucket           string `env:"S3_BUCKET" json:"s3_bucket,omitempty"`
	S3Region           string `env:"S3_REGION" json:"s3_region,omitempty"`
	S3Endpoint         string `env:"S3_ENDPOINT" json:"s3_endpoint,omitempty"`
	AWSAccessKeyID     string `env:"AWS_ACCESS_KEY_ID" json:"-"`     // Masked in JSON
	AWSSecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY" json:"-"` // Masked in JSON

	// Logging settings
	LogFormat string `env:"LOG_FORMAT, default=text" json:"log_format"` // "json" or "text"
	LogLevel  string `env:"LOG_LEVEL, default=info" json:"log_level"`   // "debug", "info", "warn", "error"
}

// S3Enabled returns true if S3 configuration is provided.
func (c *Config) S3Enabled() bool {
	return c.S3Bucket != "" && c.S3Region != ""
}

// Addr returns the listen address for the HTTP server.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Load reads configuration from environment variables using go-envconfig
// and validates it.
func Load() (*Config, error) {
	return load(context.Background(), envconfig.OsLookuper())
}

func load(ctx context.Context, lookuper envconfig.Lookuper) (*Config, error) {
	cfg := &Config{}

	if err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   cfg,
		Lookuper: lookuper,
	}); err != nil {
		// Map envconfig errors to our domain errors for required fields
		if strings.Contains(err.Error(), "SYNTH_BASE_URL") && errors.Is(err, envconfig.ErrMissingRequired) {
			return nil, ErrSynthBaseURLRequired
		}
		return nil, fmt.Errorf("config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks required values and the positivity of chunk sizes.
func (c *Config) Validate() error {
	if c.SynthBaseURL == "" {
		return ErrSynthBaseURLRequired
	}
	if c.MaxLength <= 0 {
		return fmt.Errorf("%w: MAX_LENGTH=%d", ErrInvalidChunkSize, c.MaxLength)
	}
	if c.MaxChunkSize <= 0 {
		return fmt.Errorf("%w: MAX_CHUNK_SIZE=%d", ErrInvalidChunkSize, c.MaxChunkSize)
	}
	if c.MaxConcurrentChunks <= 0 {
		return ErrInvalidConcurrency
	}
	return nil
}

// NewLogger creates a structured logger based on the configuration.
// When LogFormat is "json", it outputs JSON logs suitable for production.
// Otherwise, it outputs human-readable text logs.
func (c *Config) NewLogger() *slog.Logger {
	level := parseLogLevel(c.LogLevel)

	var handler slog.Handler
	if strings.ToLower(c.LogFormat) == "json" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: level,
		})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: level,
		})
	}

	return slog.New(handler)
}

// String returns a string representation of the config with sensitive values masked.
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{Host: %s, Port: %d, SynthBaseURL: %s, MaxLength: %d, MaxChunkSize: %d, MaxConcurrentChunks: %d, TempDir: %s, S3Bucket: %s, S3Region: %s, LogFormat: %s, LogLevel: %s}",
		c.Host,
		c.Port,
		c.SynthBaseURL,
		c.MaxLength,
		c.MaxChunkSize,
		c.MaxConcurrentChunks,
		c.TempDir,
		c.S3Bucket,
		c.S3Region,
		c.LogFormat,
		c.LogLevel,
	)
}

// parseLogLevel converts a string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
