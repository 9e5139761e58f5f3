// Package job provides the Job aggregate for long-form speech generation: a
// document split into ordered text chunks, each synthesized separately.
// It includes the status state machine, the repository port and the
// GenerationService that drives processing.
package job

import (
	"errors"
	"sync"
	"time"

	"github.com/maauso/chatterbox-tts-api/internal/job/id"
	"github.com/maauso/chatterbox-tts-api/internal/textprep"
)

// Status represents the current state of a Job.
type Status string

const (
	// StatusInQueue indicates the job is waiting to be processed.
	StatusInQueue Status = "IN_QUEUE"
	// StatusRunning indicates chunks are being synthesized.
	StatusRunning Status = "RUNNING"
	// StatusCompleted indicates every chunk has audio.
	StatusCompleted Status = "COMPLETED"
	// StatusFailed indicates a chunk could not be synthesized or stored.
	StatusFailed Status = "FAILED"
	// StatusCancelled indicates the job was cancelled by a caller.
	StatusCancelled Status = "CANCELLED"
)

// ErrInvalidTransition is returned when an invalid state transition is attempted.
var ErrInvalidTransition = errors.New("job: invalid state transition")

var validTransitions = map[Status][]Status{
	StatusInQueue:   {StatusRunning, StatusCancelled},
	StatusRunning:   {StatusCompleted, StatusFailed, StatusCancelled},
	StatusCompleted: {},
	StatusFailed:    {},
	StatusCancelled: {},
}

func canTransition(from, to Status) bool {
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// IsTerminal returns true if no further transition is possible.
func (s Status) IsTerminal() bool {
	allowed, ok := validTransitions[s]
	return ok && len(allowed) == 0
}

// ChunkStatus represents the status of a single text chunk.
type ChunkStatus string

const (
	// ChunkStatusPending indicates the chunk is waiting to be synthesized.
	ChunkStatusPending ChunkStatus = "PENDING"
	// ChunkStatusProcessing indicates the chunk is being synthesized.
	ChunkStatusProcessing ChunkStatus = "PROCESSING"
	// ChunkStatusCompleted indicates the chunk audio is stored.
	ChunkStatusCompleted ChunkStatus = "COMPLETED"
	// ChunkStatusFailed indicates synthesis or storage failed.
	ChunkStatusFailed ChunkStatus = "FAILED"
)

// Chunk is one piece of the job's text and the audio produced for it.
type Chunk struct {
	// Index is the position of this chunk in playback order.
	Index int
	// Text is the normalized chunk text.
	Text string
	// CharacterCount is the number of code points in Text.
	CharacterCount int
	// Boundary records how the chunker ended this chunk.
	Boundary textprep.Boundary
	// Status is the current processing status.
	Status ChunkStatus
	// AudioPath is the local file holding the chunk audio.
	AudioPath string
	// AudioKey is the object key when the audio was uploaded.
	AudioKey string
	// AudioURL is the object URL when the audio was uploaded.
	AudioURL string
	// ContentType is the audio media type reported by the backend.
	ContentType string
	// AudioBytes is the size of the stored audio.
	AudioBytes int
	// Error contains the failure message if processing failed.
	Error string
	// StartedAt is when synthesis of this chunk started.
	StartedAt time.Time
	// CompletedAt is when this chunk finished, successfully or not.
	CompletedAt time.Time
}

// Voice holds the synthesis settings applied to every chunk of a job. A nil
// setting leaves the synthesizer default in place. Settings are never
// modified after creation, so clones may share them.
type Voice struct {
	Name         string
	Exaggeration *float64
	CFGWeight    *float64
	Temperature  *float64
}

// Job represents a long-form generation job aggregate.
type Job struct {
	mu sync.RWMutex

	// ID is the unique identifier for this job.
	ID string
	// Status is the current job state.
	Status Status
	// Chunks holds the text chunks in playback order.
	Chunks []Chunk
	// Progress is the percentage of chunks completed (0-100).
	Progress int
	// Error contains the failure message if the job failed.
	Error string
	// Voice is the synthesis configuration.
	Voice Voice
	// MaxChunkSize is the chunk limit the text was split with.
	MaxChunkSize int
	// CharacterCount is the length of the normalized text in code points.
	CharacterCount int
	// PushToS3 indicates whether chunk audio is uploaded to object storage.
	PushToS3 bool
	// CreatedAt is when the job was created.
	CreatedAt time.Time
	// UpdatedAt is when the job was last updated.
	UpdatedAt time.Time
	// StartedAt is when processing started.
	StartedAt time.Time
	// CompletedAt is when processing finished.
	CompletedAt time.Time
}

// New creates a Job with a generated ID in IN_QUEUE status.
func New() *Job {
	return NewWithID(id.Generate())
}

// NewWithID creates a Job with the given ID in IN_QUEUE status.
func NewWithID(jobID string) *Job {
	now := time.Now()
	return &Job{
		ID:        jobID,
		Status:    StatusInQueue,
		Chunks:    make([]Chunk, 0),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// TransitionTo attempts to change the job status.
// Returns ErrInvalidTransition if the transition is not allowed.
func (j *Job) TransitionTo(status Status) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.transitionLocked(status)
}

func (j *Job) transitionLocked(status Status) error {
	if !canTransition(j.Status, status) {
		return ErrInvalidTransition
	}

	j.Status = status
	j.UpdatedAt = time.Now()

	switch status {
	case StatusRunning:
		j.StartedAt = j.UpdatedAt
	case StatusCompleted, StatusFailed, StatusCancelled:
		j.CompletedAt = j.UpdatedAt
	}
	return nil
}

// Start transitions the job from IN_QUEUE to RUNNING.
func (j *Job) Start() error {
	return j.TransitionTo(StatusRunning)
}

// Complete transitions the job to COMPLETED and sets progress to 100.
func (j *Job) Complete() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if err := j.transitionLocked(StatusCompleted); err != nil {
		return err
	}
	j.Progress = 100
	return nil
}

// Fail transitions the job to FAILED with an error message.
func (j *Job) Fail(errMsg string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if err := j.transitionLocked(StatusFailed); err != nil {
		return err
	}
	j.Error = errMsg
	return nil
}

// Cancel transitions the job to CANCELLED.
func (j *Job) Cancel() error {
	return j.TransitionTo(StatusCancelled)
}

// GetStatus returns the current job status.
func (j *Job) GetStatus() Status {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.Status
}

// IsTerminal returns true if the job is in a terminal state.
func (j *Job) IsTerminal() bool {
	return j.GetStatus().IsTerminal()
}

// SetChunks replaces the job's chunks with pending chunks built from the
// chunker output.
func (j *Job) SetChunks(chunks []textprep.Chunk) {
	out := make([]Chunk, len(chunks))
	total := 0
	for i, c := range chunks {
		out[i] = Chunk{
			Index:          c.SequenceIndex,
			Text:           c.Text,
			CharacterCount: c.CharacterCount,
			Boundary:       c.Boundary,
			Status:         ChunkStatusPending,
		}
		total += c.CharacterCount
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	j.Chunks = out
	j.CharacterCount = total
	j.UpdatedAt = time.Now()
}

// ChunkAt returns a copy of the chunk at index.
func (j *Job) ChunkAt(index int) (Chunk, bool) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	if index < 0 || index >= len(j.Chunks) {
		return Chunk{}, false
	}
	return j.Chunks[index], true
}

// ChunkCount returns the number of chunks.
func (j *Job) ChunkCount() int {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return len(j.Chunks)
}

// UpdateChunk replaces the chunk at index.
func (j *Job) UpdateChunk(index int, chunk Chunk) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if index >= 0 && index < len(j.Chunks) {
		j.Chunks[index] = chunk
		j.UpdatedAt = time.Now()
	}
}

// UpdateProgress sets the progress percentage, clamped to 0-100.
func (j *Job) UpdateProgress(progress int) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Progress = min(max(progress, 0), 100)
	j.UpdatedAt = time.Now()
}

// AudioPaths returns the local audio files of all chunks that have one.
func (j *Job) AudioPaths() []string {
	j.mu.RLock()
	defer j.mu.RUnlock()
	var paths []string
	for _, c := range j.Chunks {
		if c.AudioPath != "" {
			paths = append(paths, c.AudioPath)
		}
	}
	return paths
}

// AudioKeys returns the object keys of all uploaded chunk audio.
func (j *Job) AudioKeys() []string {
	j.mu.RLock()
	defer j.mu.RUnlock()
	var keys []string
	for _, c := range j.Chunks {
		if c.AudioKey != "" {
			keys = append(keys, c.AudioKey)
		}
	}
	return keys
}

// Clone creates a deep copy of the job for safe reads.
func (j *Job) Clone() *Job {
	j.mu.RLock()
	defer j.mu.RUnlock()

	chunks := make([]Chunk, len(j.Chunks))
	copy(chunks, j.Chunks)

	return &Job{
		ID:             j.ID,
		Status:         j.Status,
		Chunks:         chunks,
		Progress:       j.Progress,
		Error:          j.Error,
		Voice:          j.Voice,
		MaxChunkSize:   j.MaxChunkSize,
		CharacterCount: j.CharacterCount,
		PushToS3:       j.PushToS3,
		CreatedAt:      j.CreatedAt,
		UpdatedAt:      j.UpdatedAt,
		StartedAt:      j.StartedAt,
		CompletedAt:    j.CompletedAt,
	}
}
