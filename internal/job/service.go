package job

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/dustin/go-humanize"
	"golang.org/x/sync/errgroup"

	"github.com/maauso/chatterbox-tts-api/internal/metrics"
	"github.com/maauso/chatterbox-tts-api/internal/storage"
	"github.com/maauso/chatterbox-tts-api/internal/synth"
	"github.com/maauso/chatterbox-tts-api/internal/textprep"
)

// Static errors for generation jobs.
var (
	// ErrEmptyText is returned when the text is empty after normalization.
	ErrEmptyText = errors.New("job: text is empty after normalization")
	// ErrTextTooLong is returned when the input exceeds the configured limit.
	ErrTextTooLong = errors.New("job: text exceeds maximum length")
	// ErrJobCancelled is returned by ProcessExistingJob when the job was
	// cancelled while running.
	ErrJobCancelled = errors.New("job: cancelled")
	// ErrChunkNotFound is returned when a chunk index is out of range.
	ErrChunkNotFound = errors.New("job: chunk not found")
	// ErrAudioNotReady is returned when a chunk has no stored audio yet.
	ErrAudioNotReady = errors.New("job: chunk audio not ready")
)

// Input contains the parameters of a generation job.
type Input struct {
	// Text is the raw document text. It is normalized before splitting.
	Text string
	// Voice holds the synthesis settings.
	Voice Voice
	// MaxChunkSize overrides the service default when positive.
	MaxChunkSize int
	// PushToS3 uploads every chunk's audio to object storage.
	PushToS3 bool
}

// GenerationService splits documents into chunks and synthesizes them in the
// background with bounded concurrency.
type GenerationService struct {
	repo       Repository
	synth      synth.Synthesizer
	storage    storage.Storage
	normalizer *textprep.Normalizer
	metrics    *metrics.Metrics
	logger     *slog.Logger

	maxConcurrentChunks int
	maxChunkSize        int
	maxTextLength       int

	// persistMu orders snapshots of in-flight jobs.
	persistMu sync.Mutex

	mu      sync.Mutex
	running map[string]*run
}

type run struct {
	cancel context.CancelCauseFunc
	done   chan struct{}
}

// ServiceOption configures a GenerationService.
type ServiceOption func(*GenerationService)

// WithMaxConcurrentChunks limits how many chunks of one job are synthesized
// at the same time. Values below 1 are ignored.
func WithMaxConcurrentChunks(n int) ServiceOption {
	return func(s *GenerationService) {
		if n > 0 {
			s.maxConcurrentChunks = n
		}
	}
}

// WithMaxChunkSize sets the default chunk size in code points. Values below 1
// are ignored.
func WithMaxChunkSize(n int) ServiceOption {
	return func(s *GenerationService) {
		if n > 0 {
			s.maxChunkSize = n
		}
	}
}

// WithMaxTextLength rejects inputs longer than n code points. Zero disables
// the check.
func WithMaxTextLength(n int) ServiceOption {
	return func(s *GenerationService) {
		s.maxTextLength = n
	}
}

// WithMetrics enables instrumentation.
func WithMetrics(m *metrics.Metrics) ServiceOption {
	return func(s *GenerationService) {
		s.metrics = m
	}
}

// NewGenerationService creates a GenerationService.
func NewGenerationService(repo Repository, synthesizer synth.Synthesizer, store storage.Storage, logger *slog.Logger, opts ...ServiceOption) *GenerationService {
	if logger == nil {
		logger = slog.Default()
	}
	s := &GenerationService{
		repo:                repo,
		synth:               synthesizer,
		storage:             store,
		normalizer:          textprep.NewNormalizer(logger),
		logger:              logger,
		maxConcurrentChunks: 2,
		maxChunkSize:        1000,
		running:             make(map[string]*run),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateJob normalizes and splits the input text and persists a job in
// IN_QUEUE status with one pending chunk per piece.
func (s *GenerationService) CreateJob(ctx context.Context, input Input) (*Job, error) {
	if s.maxTextLength > 0 {
		if n := utf8.RuneCountInString(input.Text); n > s.maxTextLength {
			return nil, fmt.Errorf("%w: %d > %d characters", ErrTextTooLong, n, s.maxTextLength)
		}
	}

	res := s.normalizer.Normalize(input.Text)
	s.metrics.ObserveNormalization(res)
	if res.Text == "" {
		return nil, ErrEmptyText
	}

	size := s.maxChunkSize
	if input.MaxChunkSize != 0 {
		size = input.MaxChunkSize
	}
	chunks, err := textprep.SplitForLongGeneration(res.Text, size)
	if err != nil {
		return nil, err
	}
	s.metrics.ObserveChunks(chunks)

	j := New()
	j.Voice = input.Voice
	j.MaxChunkSize = size
	j.PushToS3 = input.PushToS3
	j.SetChunks(chunks)

	s.logger.Info("creating new job",
		slog.String("job_id", j.ID),
		slog.Int("characters", j.CharacterCount),
		slog.Int("chunks", len(chunks)),
		slog.Int("max_chunk_size", size),
		slog.Bool("push_to_s3", input.PushToS3),
	)

	if err := s.repo.Save(ctx, j); err != nil {
		s.logger.Error("failed to save job",
			slog.String("job_id", j.ID),
			slog.String("error", err.Error()),
		)
		return nil, err
	}
	return j.Clone(), nil
}

// ProcessExistingJob synthesizes every chunk of a queued job and stores the
// audio. The first chunk failure cancels the remaining work and fails the
// job. The returned job is a snapshot of the final state.
func (s *GenerationService) ProcessExistingJob(ctx context.Context, jobID string) (*Job, error) {
	runCtx, cancel := context.WithCancelCause(ctx)
	j, r, err := s.begin(ctx, jobID, cancel)
	if err != nil {
		cancel(nil)
		return nil, err
	}
	defer s.unregister(jobID, r)
	s.metrics.JobStarted()

	start := time.Now()
	total := j.ChunkCount()
	var done atomic.Int64

	g, gctx := errgroup.WithContext(runCtx)
	g.SetLimit(s.maxConcurrentChunks)
	for i := 0; i < total; i++ {
		g.Go(func() error {
			if err := s.processChunk(gctx, j, i); err != nil {
				return err
			}
			n := done.Add(1)
			j.UpdateProgress(int(n * 100 / int64(total)))
			return s.persist(ctx, j)
		})
	}
	procErr, err := s.finish(ctx, runCtx, j, g.Wait())
	if err != nil {
		return nil, err
	}
	status := j.GetStatus()
	s.metrics.JobFinished(string(status))

	s.logger.Info("job finished",
		slog.String("job_id", jobID),
		slog.String("status", string(status)),
		slog.Int64("chunks_done", done.Load()),
		slog.Int("chunks_total", total),
		slog.Duration("elapsed", time.Since(start)),
	)
	return j.Clone(), procErr
}

func (s *GenerationService) processChunk(ctx context.Context, j *Job, index int) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	orig, _ := j.ChunkAt(index)
	c := orig
	c.Status = ChunkStatusProcessing
	c.StartedAt = time.Now()
	j.UpdateChunk(index, c)

	fail := func(err error) error {
		if ctx.Err() != nil {
			// Interrupted, not broken: leave the chunk as it was.
			j.UpdateChunk(index, orig)
			return err
		}
		c.Status = ChunkStatusFailed
		c.Error = err.Error()
		c.CompletedAt = time.Now()
		j.UpdateChunk(index, c)
		return fmt.Errorf("chunk %d: %w", index, err)
	}

	audio, err := s.synth.Synthesize(ctx, synth.Request{
		Text:         c.Text,
		Voice:        j.Voice.Name,
		Exaggeration: j.Voice.Exaggeration,
		CFGWeight:    j.Voice.CFGWeight,
		Temperature:  j.Voice.Temperature,
	})
	if err != nil {
		return fail(err)
	}

	ext := extensionFor(audio.ContentType)
	path, err := s.storage.SaveTemp(ctx, fmt.Sprintf("%s_%03d%s", j.ID, index, ext), bytes.NewReader(audio.Data))
	if err != nil {
		return fail(err)
	}
	c.AudioPath = path

	if j.PushToS3 {
		key := fmt.Sprintf("jobs/%s/%03d%s", j.ID, index, ext)
		url, err := s.storage.Upload(ctx, key, audio.ContentType, bytes.NewReader(audio.Data))
		if err != nil {
			return fail(err)
		}
		c.AudioKey = key
		c.AudioURL = url
	}

	c.Status = ChunkStatusCompleted
	c.ContentType = audio.ContentType
	c.AudioBytes = len(audio.Data)
	c.CompletedAt = time.Now()
	j.UpdateChunk(index, c)

	s.logger.Debug("chunk synthesized",
		slog.String("job_id", j.ID),
		slog.Int("index", index),
		slog.Int("characters", c.CharacterCount),
		slog.String("audio_size", humanize.Bytes(uint64(c.AudioBytes))),
		slog.Duration("elapsed", c.CompletedAt.Sub(c.StartedAt)),
	)
	return nil
}

// GetJob retrieves a job by ID.
func (s *GenerationService) GetJob(ctx context.Context, id string) (*Job, error) {
	return s.repo.FindByID(ctx, id)
}

// ListJobs returns all jobs, oldest first.
func (s *GenerationService) ListJobs(ctx context.Context) ([]*Job, error) {
	return s.repo.List(ctx)
}

// CancelJob cancels a queued or running job. A running job stops after its
// in-flight chunks return and ends up CANCELLED.
func (s *GenerationService) CancelJob(ctx context.Context, id string) error {
	// Held across the queued path so a job cannot start between the running
	// check and the CANCELLED write.
	s.mu.Lock()
	defer s.mu.Unlock()

	if r, ok := s.running[id]; ok {
		r.cancel(ErrJobCancelled)
		return nil
	}

	j, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if err := j.Cancel(); err != nil {
		return fmt.Errorf("cancel job %s (%s): %w", id, j.GetStatus(), err)
	}
	s.logger.Info("job cancelled", slog.String("job_id", id))
	return s.persist(ctx, j)
}

// DeleteJob cancels the job if it is running, waits for it to stop, deletes
// it and removes its stored audio.
func (s *GenerationService) DeleteJob(ctx context.Context, id string) error {
	for r := s.lookup(id); r != nil; r = s.lookup(id) {
		r.cancel(ErrJobCancelled)
		select {
		case <-r.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	j, err := s.remove(ctx, id)
	if err != nil {
		return err
	}

	if err := s.storage.CleanupTemp(ctx, j.AudioPaths()); err != nil {
		s.logger.Warn("failed to remove chunk audio", slog.String("job_id", id), slog.String("error", err.Error()))
	}
	if keys := j.AudioKeys(); len(keys) > 0 {
		if err := s.storage.DeleteUploads(ctx, keys); err != nil {
			s.logger.Warn("failed to delete uploaded audio", slog.String("job_id", id), slog.String("error", err.Error()))
		}
	}
	s.logger.Info("job deleted", slog.String("job_id", id))
	return nil
}

// OpenChunkAudio opens the stored audio of one chunk. The caller must close
// the returned reader.
func (s *GenerationService) OpenChunkAudio(ctx context.Context, id string, index int) (io.ReadCloser, Chunk, error) {
	j, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, Chunk{}, err
	}
	c, ok := j.ChunkAt(index)
	if !ok {
		return nil, Chunk{}, ErrChunkNotFound
	}
	if c.Status != ChunkStatusCompleted || c.AudioPath == "" {
		return nil, c, ErrAudioNotReady
	}
	rc, err := s.storage.LoadTemp(ctx, c.AudioPath)
	if err != nil {
		return nil, c, err
	}
	return rc, c, nil
}

func (s *GenerationService) persist(ctx context.Context, j *Job) error {
	s.persistMu.Lock()
	defer s.persistMu.Unlock()
	return s.repo.Save(ctx, j)
}

// begin moves a queued job to RUNNING and registers its run. The status check
// and the registration happen under s.mu, the lock CancelJob holds.
func (s *GenerationService) begin(ctx context.Context, id string, cancel context.CancelCauseFunc) (*Job, *run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.running[id]; busy {
		return nil, nil, fmt.Errorf("start job %s: %w", id, ErrInvalidTransition)
	}

	j, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if err := j.Start(); err != nil {
		return nil, nil, fmt.Errorf("start job %s (%s): %w", id, j.GetStatus(), err)
	}
	if err := s.persist(ctx, j); err != nil {
		return nil, nil, fmt.Errorf("start job %s: %w", id, err)
	}

	r := &run{cancel: cancel, done: make(chan struct{})}
	s.running[id] = r
	return j, r, nil
}

// finish settles the final status of a run and retires it under s.mu, so a
// concurrent CancelJob either reaches the run or finds a terminal job. A
// cancel that lands after the last chunk still wins.
func (s *GenerationService) finish(ctx, runCtx context.Context, j *Job, procErr error) (runErr, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.running, j.ID)

	switch {
	case errors.Is(context.Cause(runCtx), ErrJobCancelled):
		err = j.Cancel()
		procErr = ErrJobCancelled
	case procErr == nil:
		err = j.Complete()
	default:
		err = j.Fail(procErr.Error())
	}
	if err != nil {
		return procErr, err
	}
	return procErr, s.persist(ctx, j)
}

// remove deletes a job that is not running.
func (s *GenerationService) remove(ctx context.Context, id string) (*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.running[id]; busy {
		return nil, fmt.Errorf("delete job %s: %w", id, ErrInvalidTransition)
	}
	j, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return nil, err
	}
	return j, nil
}

func (s *GenerationService) unregister(id string, r *run) {
	s.mu.Lock()
	if s.running[id] == r {
		delete(s.running, id)
	}
	s.mu.Unlock()
	r.cancel(nil)
	close(r.done)
}

func (s *GenerationService) lookup(id string) *run {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running[id]
}

var audioExtensions = map[string]string{
	"audio/wav":   ".wav",
	"audio/wave":  ".wav",
	"audio/x-wav": ".wav",
	"audio/mpeg":  ".mp3",
	"audio/mp3":   ".mp3",
	"audio/ogg":   ".ogg",
	"audio/flac":  ".flac",
	"audio/aac":   ".aac",
}

func extensionFor(contentType string) string {
	mediaType, _, _ := strings.Cut(contentType, ";")
	if ext, ok := audioExtensions[strings.ToLower(strings.TrimSpace(mediaType))]; ok {
		return ext
	}
	return ".bin"
}
