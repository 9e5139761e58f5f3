// Package synth provides clients for the speech synthesis backend that
// prepared text chunks are sent to.
package synth

import (
	"context"
	"errors"
)

// Static errors for synthesis operations.
var (
	// ErrBaseURLRequired is returned when the backend base URL is not provided.
	ErrBaseURLRequired = errors.New("synth: base URL is required")
	// ErrEmptyText is returned when a request carries no text.
	ErrEmptyText = errors.New("synth: text is empty")
	// ErrServerError is returned when the backend returns a 5xx status code.
	ErrServerError = errors.New("synth: server error")
	// ErrRateLimited is returned when the backend returns a 429 status code.
	ErrRateLimited = errors.New("synth: rate limited")
	// ErrRequestFailed is returned when the request fails with a non-2xx status code.
	ErrRequestFailed = errors.New("synth: request failed")
	// ErrEmptyAudio is returned when the backend answers 2xx with no body.
	ErrEmptyAudio = errors.New("synth: backend returned no audio")
)

// Default voice settings used when a request leaves them unset.
const (
	DefaultExaggeration = 0.5
	DefaultCFGWeight    = 0.5
	DefaultTemperature  = 0.8
)

// Request describes one synthesis call. Text should already be normalized and
// no longer than the backend's per-call limit. A nil voice setting means the
// default; zero is a valid explicit value.
type Request struct {
	Text         string
	Voice        string
	Exaggeration *float64
	CFGWeight    *float64
	Temperature  *float64
}

// WithDefaults returns a copy of r with unset voice settings replaced by the
// defaults.
func (r Request) WithDefaults() Request {
	if r.Exaggeration == nil {
		r.Exaggeration = Float(DefaultExaggeration)
	}
	if r.CFGWeight == nil {
		r.CFGWeight = Float(DefaultCFGWeight)
	}
	if r.Temperature == nil {
		r.Temperature = Float(DefaultTemperature)
	}
	return r
}

// settings returns the voice settings of r with defaults applied.
func (r Request) settings() (exaggeration, cfgWeight, temperature float64) {
	r = r.WithDefaults()
	return *r.Exaggeration, *r.CFGWeight, *r.Temperature
}

// Float returns a pointer to v.
func Float(v float64) *float64 {
	return &v
}

// Audio is the encoded audio returned by the backend.
type Audio struct {
	Data        []byte
	ContentType string
}

// Synthesizer turns a piece of text into audio.
type Synthesizer interface {
	Synthesize(ctx context.Context, req Request) (Audio, error)
}
