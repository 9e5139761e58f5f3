package synth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/sethvargo/go-retry"
	"golang.org/x/time/rate"

	"github.com/maauso/chatterbox-tts-api/internal/metrics"
)

const defaultContentType = "audio/wav"

// HTTPClient is the HTTP implementation of Synthesizer.
type HTTPClient struct {
	baseURL     string
	apiKey      string
	httpClient  *http.Client
	maxRetries  uint64
	baseBackoff time.Duration
	limiter     *rate.Limiter
	metrics     *metrics.Metrics
	logger      *slog.Logger
}

// ClientOption is a function that configures an HTTPClient.
type ClientOption func(*HTTPClient)

// WithAPIKey sets the bearer token sent with every request.
func WithAPIKey(key string) ClientOption {
	return func(c *HTTPClient) {
		c.apiKey = key
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *HTTPClient) {
		c.httpClient = hc
	}
}

// WithTimeout sets the per-request timeout of the default HTTP client.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *HTTPClient) {
		c.httpClient = &http.Client{Timeout: d}
	}
}

// WithMaxRetries sets the maximum number of retries for transient failures.
func WithMaxRetries(n int) ClientOption {
	return func(c *HTTPClient) {
		if n < 0 {
			n = 0
		}
		c.maxRetries = uint64(n)
	}
}

// WithBaseBackoff sets the initial backoff duration for retries.
func WithBaseBackoff(d time.Duration) ClientOption {
	return func(c *HTTPClient) {
		c.baseBackoff = d
	}
}

// WithRateLimit caps outgoing requests per second. Zero or less disables the
// limit.
func WithRateLimit(perSecond float64) ClientOption {
	return func(c *HTTPClient) {
		if perSecond <= 0 {
			c.limiter = nil
			return
		}
		burst := int(perSecond)
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

// WithMetrics records every call outcome.
func WithMetrics(m *metrics.Metrics) ClientOption {
	return func(c *HTTPClient) {
		c.metrics = m
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) ClientOption {
	return func(c *HTTPClient) {
		c.logger = l
	}
}

// NewClient creates a new synthesis HTTP client for the backend at baseURL.
func NewClient(baseURL string, opts ...ClientOption) (*HTTPClient, error) {
	if baseURL == "" {
		return nil, ErrBaseURLRequired
	}

	c := &HTTPClient{
		baseURL:     strings.TrimRight(baseURL, "/"),
		httpClient:  &http.Client{Timeout: 10 * time.Minute},
		maxRetries:  3,
		baseBackoff: 500 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}

	return c, nil
}

type synthesizeRequest struct {
	Text         string  `json:"text"`
	Voice        string  `json:"voice,omitempty"`
	Exaggeration float64 `json:"exaggeration"`
	CFGWeight    float64 `json:"cfg_weight"`
	Temperature  float64 `json:"temperature"`
}

// Synthesize sends req to {base}/synthesize and returns the audio body.
func (c *HTTPClient) Synthesize(ctx context.Context, req Request) (Audio, error) {
	if strings.TrimSpace(req.Text) == "" {
		return Audio{}, ErrEmptyText
	}
	exaggeration, cfgWeight, temperature := req.settings()

	body, err := json.Marshal(synthesizeRequest{
		Text:         req.Text,
		Voice:        req.Voice,
		Exaggeration: exaggeration,
		CFGWeight:    cfgWeight,
		Temperature:  temperature,
	})
	if err != nil {
		return Audio{}, fmt.Errorf("synth: marshal request: %w", err)
	}

	start := time.Now()
	backoff := retry.WithMaxRetries(c.maxRetries, retry.NewExponential(c.baseBackoff))

	var audio Audio
	attempt := 0
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return fmt.Errorf("synth: rate limiter: %w", err)
			}
		}
		a, err := c.doRequest(ctx, body)
		if err != nil {
			if attempt <= int(c.maxRetries) {
				c.logger.Debug("retrying synthesis request",
					slog.Int("attempt", attempt),
					slog.String("error", err.Error()),
				)
			}
			return err
		}
		audio = a
		return nil
	})
	if err != nil {
		c.metrics.SynthesisCall(metrics.OutcomeError)
		return Audio{}, err
	}

	c.metrics.SynthesisCall(metrics.OutcomeSuccess)
	c.logger.Debug("synthesized chunk",
		slog.Int("characters", len([]rune(req.Text))),
		slog.String("audio_size", humanize.Bytes(uint64(len(audio.Data)))),
		slog.Int("attempts", attempt),
		slog.Duration("elapsed", time.Since(start)),
	)
	return audio, nil
}

// doRequest performs a single HTTP request. Transient failures are wrapped
// with retry.RetryableError.
func (c *HTTPClient) doRequest(ctx context.Context, body []byte) (Audio, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/synthesize", bytes.NewReader(body))
	if err != nil {
		return Audio{}, fmt.Errorf("synth: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return Audio{}, fmt.Errorf("synth: request cancelled: %w", ctx.Err())
		}
		return Audio{}, retry.RetryableError(fmt.Errorf("synth: request failed: %w", err))
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return Audio{}, retry.RetryableError(fmt.Errorf("synth: read response: %w", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// 5xx errors are retryable
		if resp.StatusCode >= 500 {
			return Audio{}, retry.RetryableError(fmt.Errorf("%w %d: %s", ErrServerError, resp.StatusCode, string(respBody)))
		}
		// 429 (rate limit) is retryable
		if resp.StatusCode == http.StatusTooManyRequests {
			return Audio{}, retry.RetryableError(fmt.Errorf("%w: %s", ErrRateLimited, string(respBody)))
		}
		return Audio{}, fmt.Errorf("%w with status %d: %s", ErrRequestFailed, resp.StatusCode, string(respBody))
	}

	if len(respBody) == 0 {
		return Audio{}, ErrEmptyAudio
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = defaultContentType
	}
	return Audio{Data: respBody, ContentType: contentType}, nil
}
