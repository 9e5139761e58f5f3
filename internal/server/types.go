// Package server provides the HTTP API for text preparation and long-form
// generation jobs. DTOs here are kept separate from domain types.
package server

import "time"

// NormalizeRequest is the request body for POST /v1/text/normalize.
type NormalizeRequest struct {
	// Text is the raw input. An empty string is valid; a missing field is not.
	Text *string `json:"text" validate:"required"`
}

// NormalizeResponse reports the normalized text and what changed.
type NormalizeResponse struct {
	Text                     string         `json:"text"`
	CharacterCount           int            `json:"character_count"`
	Changed                  bool           `json:"changed"`
	Substitutions            map[string]int `json:"substitutions"`
	RemovedControlCharacters int            `json:"removed_control_characters"`
	Unmapped                 []string       `json:"unmapped"`
}

// ChunksRequest is the request body for POST /v1/text/chunks.
type ChunksRequest struct {
	Text *string `json:"text" validate:"required"`
	// MaxLength overrides the server default when present.
	MaxLength *int `json:"max_length,omitempty"`
}

// ChunkDTO is one chunk of text in an HTTP response.
type ChunkDTO struct {
	Index          int    `json:"index"`
	Text           string `json:"text"`
	CharacterCount int    `json:"character_count"`
	ByteCount      int    `json:"byte_count"`
	Boundary       string `json:"boundary"`
}

// ChunksResponse lists the chunks of a normalized text.
type ChunksResponse struct {
	MaxLength      int        `json:"max_length"`
	CharacterCount int        `json:"character_count"`
	Count          int        `json:"count"`
	Chunks         []ChunkDTO `json:"chunks"`
}

// CreateJobRequest is the request body for POST /v1/jobs. Omitted voice
// settings take the synthesizer defaults; an explicit 0 is kept.
type CreateJobRequest struct {
	Text         string   `json:"text" validate:"required"`
	Voice        string   `json:"voice,omitempty" validate:"omitempty,max=128"`
	Exaggeration *float64 `json:"exaggeration,omitempty" validate:"omitempty,gte=0,lte=2"`
	CFGWeight    *float64 `json:"cfg_weight,omitempty" validate:"omitempty,gte=0,lte=1"`
	Temperature  *float64 `json:"temperature,omitempty" validate:"omitempty,gte=0,lte=5"`
	MaxChunkSize int      `json:"max_chunk_size,omitempty"`
	PushToS3     bool     `json:"push_to_s3"`
}

// CreateJobResponse is returned after a job is accepted.
type CreateJobResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Chunks int    `json:"chunks"`
}

// JobChunkDTO describes one chunk of a job.
type JobChunkDTO struct {
	Index          int    `json:"index"`
	Text           string `json:"text"`
	CharacterCount int    `json:"character_count"`
	Boundary       string `json:"boundary"`
	Status         string `json:"status"`
	AudioURL       string `json:"audio_url,omitempty"`
	AudioBytes     int    `json:"audio_bytes,omitempty"`
	Error          string `json:"error,omitempty"`
}

// JobResponse is the HTTP response for getting job details.
type JobResponse struct {
	ID             string        `json:"id"`
	Status         string        `json:"status"`
	Progress       int           `json:"progress"`
	Error          string        `json:"error,omitempty"`
	CharacterCount int           `json:"character_count"`
	MaxChunkSize   int           `json:"max_chunk_size"`
	Voice          string        `json:"voice,omitempty"`
	PushToS3       bool          `json:"push_to_s3"`
	Chunks         []JobChunkDTO `json:"chunks"`
	CreatedAt      time.Time     `json:"created_at"`
	StartedAt      *time.Time    `json:"started_at,omitempty"`
	CompletedAt    *time.Time    `json:"completed_at,omitempty"`
}

// JobSummary is one entry of GET /v1/jobs.
type JobSummary struct {
	ID        string    `json:"id"`
	Status    string    `json:"status"`
	Progress  int       `json:"progress"`
	Chunks    int       `json:"chunks"`
	CreatedAt time.Time `json:"created_at"`
}

// JobListResponse is the HTTP response for listing jobs.
type JobListResponse struct {
	Jobs []JobSummary `json:"jobs"`
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	// Error is the human-readable error message.
	Error string `json:"error"`
	// Code is the error code for programmatic handling.
	Code string `json:"code"`
}

// HealthResponse is the HTTP response for the health check endpoint.
type HealthResponse struct {
	Status string `json:"status"`
}
