package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"

	"github.com/maauso/chatterbox-tts-api/internal/job"
	"github.com/maauso/chatterbox-tts-api/internal/metrics"
	"github.com/maauso/chatterbox-tts-api/internal/textprep"
)

// Handlers contains the HTTP handlers for the API.
type Handlers struct {
	service            *job.GenerationService
	normalizer         *textprep.Normalizer
	metrics            *metrics.Metrics
	validator          *validator.Validate
	logger             *slog.Logger
	enableAsyncProcess bool
	maxLength          int
	maxTextLength      int
	s3Enabled          bool
}

// HandlerOption is a function that configures a Handlers instance.
type HandlerOption func(*Handlers)

// WithAsyncProcessing enables or disables background processing.
// When disabled, CreateJob only creates the job and returns immediately
// without starting background processing.
func WithAsyncProcessing(enabled bool) HandlerOption {
	return func(h *Handlers) {
		h.enableAsyncProcess = enabled
	}
}

// WithMaxLength sets the default chunk length for POST /v1/text/chunks.
func WithMaxLength(n int) HandlerOption {
	return func(h *Handlers) {
		h.maxLength = n
	}
}

// WithMaxTextLength rejects text endpoint inputs longer than n code points.
// Zero disables the check.
func WithMaxTextLength(n int) HandlerOption {
	return func(h *Handlers) {
		h.maxTextLength = n
	}
}

// WithMetrics records normalization and chunking statistics and serves them
// on GET /metrics.
func WithMetrics(m *metrics.Metrics) HandlerOption {
	return func(h *Handlers) {
		h.metrics = m
	}
}

// WithS3Enabled allows jobs to request push_to_s3.
func WithS3Enabled(enabled bool) HandlerOption {
	return func(h *Handlers) {
		h.s3Enabled = enabled
	}
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(service *job.GenerationService, logger *slog.Logger, opts ...HandlerOption) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handlers{
		service:            service,
		normalizer:         textprep.NewNormalizer(logger),
		validator:          validator.New(),
		logger:             logger,
		enableAsyncProcess: true,
		maxLength:          300,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Health handles GET /health requests.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// Metrics handles GET /metrics requests.
func (h *Handlers) Metrics(w http.ResponseWriter, r *http.Request) {
	if h.metrics == nil {
		writeError(w, http.StatusNotFound, "metrics are disabled", "METRICS_DISABLED")
		return
	}
	h.metrics.Handler().ServeHTTP(w, r)
}

// Normalize handles POST /v1/text/normalize requests.
func (h *Handlers) Normalize(w http.ResponseWriter, r *http.Request) {
	var req NormalizeRequest
	if !h.decode(w, r, &req) {
		return
	}
	if !h.checkTextLength(w, *req.Text) {
		return
	}

	res := h.normalizer.Normalize(*req.Text)
	h.metrics.ObserveNormalization(res)

	subs := make(map[string]int, len(res.Substitutions))
	for cp, n := range res.Substitutions {
		subs[fmt.Sprintf("U+%04X", cp)] = n
	}
	unmapped := make([]string, 0, len(res.Unmapped))
	for _, cp := range res.Unmapped {
		unmapped = append(unmapped, fmt.Sprintf("U+%04X", cp))
	}

	writeJSON(w, http.StatusOK, NormalizeResponse{
		Text:                     res.Text,
		CharacterCount:           utf8.RuneCountInString(res.Text),
		Changed:                  res.Changed(),
		Substitutions:            subs,
		RemovedControlCharacters: res.RemovedControl,
		Unmapped:                 unmapped,
	})
}

// Chunks handles POST /v1/text/chunks requests.
func (h *Handlers) Chunks(w http.ResponseWriter, r *http.Request) {
	var req ChunksRequest
	if !h.decode(w, r, &req) {
		return
	}
	if !h.checkTextLength(w, *req.Text) {
		return
	}

	maxLength := h.maxLength
	if req.MaxLength != nil {
		maxLength = *req.MaxLength
	}

	res := h.normalizer.Normalize(*req.Text)
	h.metrics.ObserveNormalization(res)

	chunks, err := textprep.SplitForLongGeneration(res.Text, maxLength)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.metrics.ObserveChunks(chunks)

	resp := ChunksResponse{
		MaxLength:      maxLength,
		CharacterCount: utf8.RuneCountInString(res.Text),
		Count:          len(chunks),
		Chunks:         make([]ChunkDTO, 0, len(chunks)),
	}
	for _, c := range chunks {
		resp.Chunks = append(resp.Chunks, ChunkDTO{
			Index:          c.SequenceIndex,
			Text:           c.Text,
			CharacterCount: c.CharacterCount,
			ByteCount:      c.ByteCount(),
			Boundary:       c.Boundary.String(),
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// CreateJob handles POST /v1/jobs requests.
func (h *Handlers) CreateJob(w http.ResponseWriter, r *http.Request) {
	var req CreateJobRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.PushToS3 && !h.s3Enabled {
		writeError(w, http.StatusBadRequest, "push_to_s3 requested but S3 is not configured", "S3_NOT_CONFIGURED")
		return
	}

	input := job.Input{
		Text: req.Text,
		Voice: job.Voice{
			Name:         req.Voice,
			Exaggeration: req.Exaggeration,
			CFGWeight:    req.CFGWeight,
			Temperature:  req.Temperature,
		},
		MaxChunkSize: req.MaxChunkSize,
		PushToS3:     req.PushToS3,
	}

	createdJob, err := h.service.CreateJob(r.Context(), input)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	// The request context ends with the response; processing must outlive it.
	if h.enableAsyncProcess {
		go func(ctx context.Context, jobID string) {
			if _, err := h.service.ProcessExistingJob(ctx, jobID); err != nil {
				h.logger.Error("background processing failed",
					slog.String("job_id", jobID),
					slog.String("error", err.Error()),
				)
			}
		}(context.WithoutCancel(r.Context()), createdJob.ID)
	}

	h.logger.Info("job created",
		slog.String("job_id", createdJob.ID),
		slog.Int("chunks", createdJob.ChunkCount()),
	)

	writeJSON(w, http.StatusAccepted, CreateJobResponse{
		ID:     createdJob.ID,
		Status: string(createdJob.Status),
		Chunks: createdJob.ChunkCount(),
	})
}

// ListJobs handles GET /v1/jobs requests.
func (h *Handlers) ListJobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := h.service.ListJobs(r.Context())
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	resp := JobListResponse{Jobs: make([]JobSummary, 0, len(jobs))}
	for _, j := range jobs {
		resp.Jobs = append(resp.Jobs, JobSummary{
			ID:        j.ID,
			Status:    string(j.Status),
			Progress:  j.Progress,
			Chunks:    len(j.Chunks),
			CreatedAt: j.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetJob handles GET /v1/jobs/{id} requests.
func (h *Handlers) GetJob(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")
	if jobID == "" {
		writeError(w, http.StatusBadRequest, "job ID is required", "MISSING_JOB_ID")
		return
	}

	foundJob, err := h.service.GetJob(r.Context(), jobID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toJobResponse(foundJob))
}

// CancelJob handles POST /v1/jobs/{id}/cancel requests.
func (h *Handlers) CancelJob(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")
	if err := h.service.CancelJob(r.Context(), jobID); err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"id": jobID, "status": "cancelling"})
}

// DeleteJob handles DELETE /v1/jobs/{id} requests.
func (h *Handlers) DeleteJob(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")
	if err := h.service.DeleteJob(r.Context(), jobID); err != nil {
		h.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ChunkAudio handles GET /v1/jobs/{id}/chunks/{index}/audio requests.
func (h *Handlers) ChunkAudio(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")
	index, err := strconv.Atoi(r.PathValue("index"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "chunk index must be an integer", "INVALID_CHUNK_INDEX")
		return
	}

	rc, chunk, err := h.service.OpenChunkAudio(r.Context(), jobID, index)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", chunk.ContentType)
	if chunk.AudioBytes > 0 {
		w.Header().Set("Content-Length", strconv.Itoa(chunk.AudioBytes))
	}
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, rc); err != nil {
		h.logger.Warn("failed to stream chunk audio",
			slog.String("job_id", jobID),
			slog.Int("index", index),
			slog.String("error", err.Error()),
		)
	}
}

func toJobResponse(j *job.Job) JobResponse {
	resp := JobResponse{
		ID:             j.ID,
		Status:         string(j.Status),
		Progress:       j.Progress,
		Error:          j.Error,
		CharacterCount: j.CharacterCount,
		MaxChunkSize:   j.MaxChunkSize,
		Voice:          j.Voice.Name,
		PushToS3:       j.PushToS3,
		Chunks:         make([]JobChunkDTO, 0, len(j.Chunks)),
		CreatedAt:      j.CreatedAt,
	}
	if !j.StartedAt.IsZero() {
		t := j.StartedAt
		resp.StartedAt = &t
	}
	if !j.CompletedAt.IsZero() {
		t := j.CompletedAt
		resp.CompletedAt = &t
	}

	for _, c := range j.Chunks {
		dto := JobChunkDTO{
			Index:          c.Index,
			Text:           c.Text,
			CharacterCount: c.CharacterCount,
			Boundary:       c.Boundary.String(),
			Status:         string(c.Status),
			AudioBytes:     c.AudioBytes,
			Error:          c.Error,
		}
		switch {
		case c.AudioURL != "":
			dto.AudioURL = c.AudioURL
		case c.Status == job.ChunkStatusCompleted:
			dto.AudioURL = fmt.Sprintf("/v1/jobs/%s/chunks/%d/audio", j.ID, c.Index)
		}
		resp.Chunks = append(resp.Chunks, dto)
	}
	return resp
}

// decode reads and validates a JSON body. It writes the error response and
// returns false on failure.
func (h *Handlers) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		h.logger.Warn("failed to decode request body",
			slog.String("error", err.Error()),
		)
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large", "BODY_TOO_LARGE")
			return false
		}
		writeError(w, http.StatusBadRequest, "invalid JSON body", "INVALID_JSON")
		return false
	}

	if err := h.validator.Struct(dst); err != nil {
		h.logger.Warn("request validation failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
		return false
	}
	return true
}

func (h *Handlers) checkTextLength(w http.ResponseWriter, text string) bool {
	if h.maxTextLength <= 0 {
		return true
	}
	if n := utf8.RuneCountInString(text); n > h.maxTextLength {
		writeError(w, http.StatusRequestEntityTooLarge,
			fmt.Sprintf("text has %d characters, limit is %d", n, h.maxTextLength), "TEXT_TOO_LONG")
		return false
	}
	return true
}

// writeServiceError maps domain errors to HTTP responses.
func (h *Handlers) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, job.ErrJobNotFound):
		writeError(w, http.StatusNotFound, "job not found", "JOB_NOT_FOUND")
	case errors.Is(err, job.ErrChunkNotFound):
		writeError(w, http.StatusNotFound, "chunk not found", "CHUNK_NOT_FOUND")
	case errors.Is(err, job.ErrAudioNotReady):
		writeError(w, http.StatusConflict, "chunk audio is not ready", "AUDIO_NOT_READY")
	case errors.Is(err, job.ErrInvalidTransition):
		writeError(w, http.StatusConflict, err.Error(), "INVALID_STATE")
	case errors.Is(err, job.ErrEmptyText):
		writeError(w, http.StatusBadRequest, "text is empty after normalization", "EMPTY_TEXT")
	case errors.Is(err, job.ErrTextTooLong):
		writeError(w, http.StatusRequestEntityTooLarge, err.Error(), "TEXT_TOO_LONG")
	case errors.Is(err, textprep.ErrInvalidConfiguration):
		writeError(w, http.StatusBadRequest, err.Error(), "INVALID_CONFIGURATION")
	default:
		h.logger.Error("request failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "internal server error", "INTERNAL_ERROR")
	}
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
	}
}

// writeError writes an error response in the standard format.
func writeError(w http.ResponseWriter, status int, message, code string) {
	writeJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}
