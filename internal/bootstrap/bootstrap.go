// Package bootstrap wires the service dependencies from configuration.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/maauso/chatterbox-tts-api/internal/config"
	"github.com/maauso/chatterbox-tts-api/internal/job"
	"github.com/maauso/chatterbox-tts-api/internal/metrics"
	"github.com/maauso/chatterbox-tts-api/internal/storage"
	"github.com/maauso/chatterbox-tts-api/internal/synth"
)

// Dependencies holds all initialized dependencies for the HTTP server.
type Dependencies struct {
	GenerationService *job.GenerationService
	Metrics           *metrics.Metrics
	Storage           storage.Storage
	Synthesizer       synth.Synthesizer
}

// NewDependencies creates and initializes all dependencies for the application.
func NewDependencies(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, error) {
	m := metrics.New()

	store, err := initStorage(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	synthesizer, err := initSynthesizer(cfg, m, logger)
	if err != nil {
		return nil, err
	}

	repo := job.NewMemoryRepository()

	svc := job.NewGenerationService(
		repo,
		synthesizer,
		store,
		logger,
		job.WithMaxConcurrentChunks(cfg.MaxConcurrentChunks),
		job.WithMaxChunkSize(cfg.MaxChunkSize),
		job.WithMaxTextLength(cfg.MaxTextLength),
		job.WithMetrics(m),
	)

	return &Dependencies{
		GenerationService: svc,
		Metrics:           m,
		Storage:           store,
		Synthesizer:       synthesizer,
	}, nil
}

func initSynthesizer(cfg *config.Config, m *metrics.Metrics, logger *slog.Logger) (synth.Synthesizer, error) {
	client, err := synth.NewClient(cfg.SynthBaseURL,
		synth.WithAPIKey(cfg.SynthAPIKey),
		synth.WithTimeout(cfg.SynthTimeout),
		synth.WithMaxRetries(cfg.SynthMaxRetries),
		synth.WithRateLimit(cfg.SynthRatePerSec),
		synth.WithMetrics(m),
		synth.WithLogger(logger),
	)
	if err != nil {
		return nil, fmt.Errorf("create synthesis client: %w", err)
	}

	if cfg.AudioCacheSize <= 0 {
		return client, nil
	}
	cached, err := synth.NewCachedSynthesizer(client, cfg.AudioCacheSize, m)
	if err != nil {
		return nil, fmt.Errorf("create audio cache: %w", err)
	}
	logger.Info("audio cache enabled", slog.Int("entries", cfg.AudioCacheSize))
	return cached, nil
}

// initStorage creates the appropriate storage backend based on configuration.
func initStorage(ctx context.Context, cfg *config.Config, logger *slog.Logger) (storage.Storage, error) {
	if cfg.S3Enabled() {
		s3Cfg := storage.S3Config{
			Bucket:          cfg.S3Bucket,
			Region:          cfg.S3Region,
			Endpoint:        cfg.S3Endpoint,
			AccessKeyID:     cfg.AWSAccessKeyID,
			SecretAccessKey: cfg.AWSSecretAccessKey,
		}
		s3Store, err := storage.NewS3Storage(ctx, cfg.TempDir, s3Cfg)
		if err != nil {
			return nil, fmt.Errorf("create S3 storage: %w", err)
		}
		logger.Info("S3 storage configured",
			slog.String("bucket", cfg.S3Bucket),
			slog.String("region", cfg.S3Region),
			slog.String("endpoint", cfg.S3Endpoint),
		)
		return s3Store, nil
	}

	localStore, err := storage.NewLocalStorage(cfg.TempDir)
	if err != nil {
		return nil, fmt.Errorf("create local storage: %w", err)
	}
	logger.Info("local storage configured",
		slog.String("temp_dir", localStore.TempDir()),
	)
	return localStore, nil
}
