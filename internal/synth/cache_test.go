package synth

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockSynthesizer struct {
	mock.Mock
}

func (m *mockSynthesizer) Synthesize(ctx context.Context, req Request) (Audio, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(Audio), args.Error(1)
}

func TestCachedSynthesizer_Hit(t *testing.T) {
	next := new(mockSynthesizer)
	req := Request{Text: "Hello."}.WithDefaults()
	next.On("Synthesize", mock.Anything, req).Return(Audio{Data: []byte("a"), ContentType: "audio/wav"}, nil).Once()

	c, err := NewCachedSynthesizer(next, 8, nil)
	require.NoError(t, err)

	first, err := c.Synthesize(context.Background(), Request{Text: "Hello."})
	require.NoError(t, err)
	second, err := c.Synthesize(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, c.Len())
	next.AssertNumberOfCalls(t, "Synthesize", 1)
}

func TestCachedSynthesizer_KeyIncludesVoiceSettings(t *testing.T) {
	next := new(mockSynthesizer)
	next.On("Synthesize", mock.Anything, mock.Anything).Return(Audio{Data: []byte("a")}, nil)

	c, err := NewCachedSynthesizer(next, 8, nil)
	require.NoError(t, err)

	_, _ = c.Synthesize(context.Background(), Request{Text: "Hi", Voice: "a"})
	_, _ = c.Synthesize(context.Background(), Request{Text: "Hi", Voice: "b"})
	_, _ = c.Synthesize(context.Background(), Request{Text: "Hi", Voice: "a", Temperature: Float(0.2)})

	next.AssertNumberOfCalls(t, "Synthesize", 3)
	assert.Equal(t, 3, c.Len())
}

func TestCachedSynthesizer_ExplicitZeroIsNotDefault(t *testing.T) {
	next := new(mockSynthesizer)
	next.On("Synthesize", mock.Anything, mock.Anything).Return(Audio{Data: []byte("a")}, nil)

	c, err := NewCachedSynthesizer(next, 8, nil)
	require.NoError(t, err)

	_, _ = c.Synthesize(context.Background(), Request{Text: "Hi"})
	_, _ = c.Synthesize(context.Background(), Request{Text: "Hi", CFGWeight: Float(DefaultCFGWeight)})
	_, _ = c.Synthesize(context.Background(), Request{Text: "Hi", CFGWeight: Float(0)})

	next.AssertNumberOfCalls(t, "Synthesize", 2)
	assert.Equal(t, 2, c.Len())
	next.AssertCalled(t, "Synthesize", mock.Anything, mock.MatchedBy(func(r Request) bool {
		return r.CFGWeight != nil && *r.CFGWeight == 0
	}))
}

func TestRequest_WithDefaults(t *testing.T) {
	got := Request{Text: "Hi"}.WithDefaults()
	require.NotNil(t, got.Exaggeration)
	require.NotNil(t, got.CFGWeight)
	require.NotNil(t, got.Temperature)
	assert.InDelta(t, DefaultExaggeration, *got.Exaggeration, 0.0001)
	assert.InDelta(t, DefaultCFGWeight, *got.CFGWeight, 0.0001)
	assert.InDelta(t, DefaultTemperature, *got.Temperature, 0.0001)

	zero := Request{Text: "Hi", Exaggeration: Float(0), CFGWeight: Float(0), Temperature: Float(0)}.WithDefaults()
	assert.Zero(t, *zero.Exaggeration)
	assert.Zero(t, *zero.CFGWeight)
	assert.Zero(t, *zero.Temperature)
}

func TestCachedSynthesizer_ErrorsNotCached(t *testing.T) {
	next := new(mockSynthesizer)
	next.On("Synthesize", mock.Anything, mock.Anything).Return(Audio{}, errors.New("boom")).Once()
	next.On("Synthesize", mock.Anything, mock.Anything).Return(Audio{Data: []byte("ok")}, nil).Once()

	c, err := NewCachedSynthesizer(next, 8, nil)
	require.NoError(t, err)

	_, err = c.Synthesize(context.Background(), Request{Text: "flaky"})
	require.Error(t, err)

	audio, err := c.Synthesize(context.Background(), Request{Text: "flaky"})
	require.NoError(t, err)
	assert.Equal(t, []byte("ok"), audio.Data)
	next.AssertExpectations(t)
}

func TestCachedSynthesizer_Eviction(t *testing.T) {
	next := new(mockSynthesizer)
	next.On("Synthesize", mock.Anything, mock.Anything).Return(Audio{Data: []byte("a")}, nil)

	c, err := NewCachedSynthesizer(next, 1, nil)
	require.NoError(t, err)

	_, _ = c.Synthesize(context.Background(), Request{Text: "one"})
	_, _ = c.Synthesize(context.Background(), Request{Text: "two"})
	_, _ = c.Synthesize(context.Background(), Request{Text: "one"})

	next.AssertNumberOfCalls(t, "Synthesize", 3)
}

func TestNewCachedSynthesizer_InvalidSize(t *testing.T) {
	_, err := NewCachedSynthesizer(new(mockSynthesizer), 0, nil)
	assert.Error(t, err)
}
