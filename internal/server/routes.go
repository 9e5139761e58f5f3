package server

import (
	"log/slog"
	"net/http"
)

// Config contains server configuration options.
type Config struct {
	// AllowedOrigins is the list of allowed CORS origins.
	AllowedOrigins []string
	// MaxBodyBytes caps request bodies. Zero means no limit.
	MaxBodyBytes int64
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		AllowedOrigins: []string{"*"},
		MaxBodyBytes:   4 << 20,
	}
}

// NewRouter creates a new HTTP router with all routes configured.
func NewRouter(h *Handlers, logger *slog.Logger, cfg Config) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", h.Health)
	mux.HandleFunc("GET /metrics", h.Metrics)

	mux.HandleFunc("POST /v1/text/normalize", h.Normalize)
	mux.HandleFunc("POST /v1/text/chunks", h.Chunks)

	mux.HandleFunc("POST /v1/jobs", h.CreateJob)
	mux.HandleFunc("GET /v1/jobs", h.ListJobs)
	mux.HandleFunc("GET /v1/jobs/{id}", h.GetJob)
	mux.HandleFunc("DELETE /v1/jobs/{id}", h.DeleteJob)
	mux.HandleFunc("POST /v1/jobs/{id}/cancel", h.CancelJob)
	mux.HandleFunc("GET /v1/jobs/{id}/chunks/{index}/audio", h.ChunkAudio)

	chain := ChainMiddleware(
		RecoveryMiddleware(logger),
		LoggingMiddleware(logger),
		CORSMiddleware(cfg.AllowedOrigins),
		BodyLimitMiddleware(cfg.MaxBodyBytes),
		GzipMiddleware(),
	)

	return chain(mux)
}
