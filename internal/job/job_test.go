package job

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maauso/chatterbox-tts-api/internal/synth"
	"github.com/maauso/chatterbox-tts-api/internal/textprep"
)

func TestNew(t *testing.T) {
	j := New()

	assert.NotEmpty(t, j.ID)
	assert.Equal(t, StatusInQueue, j.Status)
	assert.False(t, j.CreatedAt.IsZero())
	assert.False(t, j.UpdatedAt.IsZero())
	assert.NotNil(t, j.Chunks)
}

func TestNewWithID(t *testing.T) {
	j := NewWithID("test-job-123")

	assert.Equal(t, "test-job-123", j.ID)
	assert.Equal(t, StatusInQueue, j.Status)
}

func TestJob_Transitions(t *testing.T) {
	tests := []struct {
		name    string
		from    Status
		to      Status
		wantErr bool
	}{
		{"IN_QUEUE to RUNNING", StatusInQueue, StatusRunning, false},
		{"IN_QUEUE to CANCELLED", StatusInQueue, StatusCancelled, false},
		{"RUNNING to COMPLETED", StatusRunning, StatusCompleted, false},
		{"RUNNING to FAILED", StatusRunning, StatusFailed, false},
		{"RUNNING to CANCELLED", StatusRunning, StatusCancelled, false},
		{"IN_QUEUE to COMPLETED", StatusInQueue, StatusCompleted, true},
		{"IN_QUEUE to FAILED", StatusInQueue, StatusFailed, true},
		{"RUNNING to IN_QUEUE", StatusRunning, StatusInQueue, true},
		{"COMPLETED to RUNNING", StatusCompleted, StatusRunning, true},
		{"FAILED to COMPLETED", StatusFailed, StatusCompleted, true},
		{"CANCELLED to RUNNING", StatusCancelled, StatusRunning, true},
		{"unknown status", Status("PAUSED"), StatusRunning, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			j := NewWithID("test")
			j.Status = tt.from

			err := j.TransitionTo(tt.to)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidTransition)
				assert.Equal(t, tt.from, j.Status)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.to, j.Status)
		})
	}
}

func TestStatus_IsTerminal(t *testing.T) {
	assert.False(t, StatusInQueue.IsTerminal())
	assert.False(t, StatusRunning.IsTerminal())
	assert.True(t, StatusCompleted.IsTerminal())
	assert.True(t, StatusFailed.IsTerminal())
	assert.True(t, StatusCancelled.IsTerminal())
	assert.False(t, Status("UNKNOWN").IsTerminal())
}

func TestJob_Lifecycle(t *testing.T) {
	j := New()
	before := time.Now()

	require.NoError(t, j.Start())
	assert.Equal(t, StatusRunning, j.GetStatus())
	assert.False(t, j.StartedAt.Before(before))
	assert.False(t, j.IsTerminal())

	j.UpdateProgress(40)
	require.NoError(t, j.Complete())
	assert.Equal(t, StatusCompleted, j.GetStatus())
	assert.Equal(t, 100, j.Progress)
	assert.False(t, j.CompletedAt.IsZero())
	assert.True(t, j.IsTerminal())
}

func TestJob_Fail(t *testing.T) {
	j := New()
	require.NoError(t, j.Start())

	require.NoError(t, j.Fail("chunk 2: backend unavailable"))
	assert.Equal(t, StatusFailed, j.Status)
	assert.Equal(t, "chunk 2: backend unavailable", j.Error)

	// A rejected transition leaves the error untouched.
	assert.ErrorIs(t, j.Fail("other"), ErrInvalidTransition)
	assert.Equal(t, "chunk 2: backend unavailable", j.Error)
}

func TestJob_Cancel(t *testing.T) {
	j := New()
	require.NoError(t, j.Cancel())
	assert.Equal(t, StatusCancelled, j.Status)
	assert.ErrorIs(t, j.Start(), ErrInvalidTransition)
}

func TestJob_UpdateProgress_Clamps(t *testing.T) {
	j := New()

	j.UpdateProgress(-5)
	assert.Equal(t, 0, j.Progress)
	j.UpdateProgress(150)
	assert.Equal(t, 100, j.Progress)
	j.UpdateProgress(42)
	assert.Equal(t, 42, j.Progress)
}

func TestJob_SetChunks(t *testing.T) {
	j := New()
	j.SetChunks([]textprep.Chunk{
		{Text: "Hello there.", CharacterCount: 12, SequenceIndex: 0, Boundary: textprep.BoundarySentence},
		{Text: "Bye", CharacterCount: 3, SequenceIndex: 1, Boundary: textprep.BoundaryEnd},
	})

	require.Equal(t, 2, j.ChunkCount())
	assert.Equal(t, 15, j.CharacterCount)

	c, ok := j.ChunkAt(1)
	require.True(t, ok)
	assert.Equal(t, 1, c.Index)
	assert.Equal(t, "Bye", c.Text)
	assert.Equal(t, textprep.BoundaryEnd, c.Boundary)
	assert.Equal(t, ChunkStatusPending, c.Status)

	_, ok = j.ChunkAt(2)
	assert.False(t, ok)
	_, ok = j.ChunkAt(-1)
	assert.False(t, ok)
}

func TestJob_UpdateChunkAndAudio(t *testing.T) {
	j := New()
	j.SetChunks([]textprep.Chunk{{Text: "a", CharacterCount: 1}, {Text: "b", CharacterCount: 1, SequenceIndex: 1}})

	c, _ := j.ChunkAt(0)
	c.AudioPath = "/tmp/a.wav"
	c.AudioKey = "jobs/x/000.wav"
	j.UpdateChunk(0, c)
	j.UpdateChunk(5, Chunk{AudioPath: "ignored"})

	assert.Equal(t, []string{"/tmp/a.wav"}, j.AudioPaths())
	assert.Equal(t, []string{"jobs/x/000.wav"}, j.AudioKeys())
}

func TestJob_Clone(t *testing.T) {
	j := New()
	j.Voice = Voice{Name: "narrator", Temperature: synth.Float(0.7)}
	j.PushToS3 = true
	j.SetChunks([]textprep.Chunk{{Text: "x", CharacterCount: 1}})

	clone := j.Clone()
	assert.Equal(t, j.ID, clone.ID)
	assert.Equal(t, j.Voice, clone.Voice)
	assert.True(t, clone.PushToS3)
	assert.Equal(t, j.Chunks, clone.Chunks)

	clone.Chunks[0].Text = "changed"
	assert.Equal(t, "x", j.Chunks[0].Text)
}

func TestJob_ConcurrentAccess(t *testing.T) {
	j := New()
	j.SetChunks(make([]textprep.Chunk, 10))
	require.NoError(t, j.Start())

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c, _ := j.ChunkAt(i)
			c.Status = ChunkStatusCompleted
			j.UpdateChunk(i, c)
			j.UpdateProgress(i * 10)
			_ = j.Clone()
			_ = j.GetStatus()
		}(i)
	}
	wg.Wait()

	for i := 0; i < 10; i++ {
		c, _ := j.ChunkAt(i)
		assert.Equal(t, ChunkStatusCompleted, c.Status)
	}
}
