package synth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/maauso/chatterbox-tts-api/internal/metrics"
)

// CachedSynthesizer decorates a Synthesizer with an in-memory LRU of recent
// results, so repeated chunks across jobs are synthesized once.
type CachedSynthesizer struct {
	next    Synthesizer
	cache   *lru.Cache[string, Audio]
	metrics *metrics.Metrics
}

// NewCachedSynthesizer wraps next with an LRU holding up to size entries.
func NewCachedSynthesizer(next Synthesizer, size int, m *metrics.Metrics) (*CachedSynthesizer, error) {
	if size <= 0 {
		return nil, fmt.Errorf("synth: cache size must be greater than zero, got %d", size)
	}
	cache, err := lru.New[string, Audio](size)
	if err != nil {
		return nil, fmt.Errorf("synth: init cache: %w", err)
	}
	return &CachedSynthesizer{next: next, cache: cache, metrics: m}, nil
}

// Synthesize returns a cached result when the same request was seen before.
// Failed calls are never cached.
func (c *CachedSynthesizer) Synthesize(ctx context.Context, req Request) (Audio, error) {
	req = req.WithDefaults()
	key := cacheKey(req)

	if audio, ok := c.cache.Get(key); ok {
		c.metrics.SynthesisCall(metrics.OutcomeCacheHit)
		return audio, nil
	}

	audio, err := c.next.Synthesize(ctx, req)
	if err != nil {
		return Audio{}, err
	}
	c.cache.Add(key, audio)
	return audio, nil
}

// Len returns the number of cached entries.
func (c *CachedSynthesizer) Len() int {
	return c.cache.Len()
}

func cacheKey(req Request) string {
	exaggeration, cfgWeight, temperature := req.settings()
	h := sha256.New()
	for _, part := range []string{
		req.Text,
		req.Voice,
		strconv.FormatFloat(exaggeration, 'g', -1, 64),
		strconv.FormatFloat(cfgWeight, 'g', -1, 64),
		strconv.FormatFloat(temperature, 'g', -1, 64),
	} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}
