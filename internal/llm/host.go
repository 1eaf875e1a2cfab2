// Package llm drives local generative model hosts.
package llm

import (
	"context"
	"encoding/json"
	"iter"
)

// Host is a model host serving one configured model.
type Host interface {
	// Name returns the host kind, e.g. "ollama".
	Name() string
	// Model returns the configured model name.
	Model() string
	// Status probes the host. A nil error with Reachable false means the
	// host could not be contacted.
	Status(ctx context.Context) (Status, error)
	// Pull downloads the model. The sequence ends after a Done event or an error.
	Pull(ctx context.Context) iter.Seq2[PullProgress, error]
	// Complete runs one prompt and returns the raw response text.
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}

// Status is the result of a host probe.
type Status struct {
	Reachable    bool
	ModelPresent bool
	Pullable     bool // the host can download the model itself
}

// PullProgress is one event from a model download.
type PullProgress struct {
	Status    string
	Completed int64
	Total     int64
	Done      bool
}

// Percent returns the rounded download percentage, 0 when the total is unknown.
func (p PullProgress) Percent() int {
	if p.Done {
		return 100
	}
	if p.Total <= 0 {
		return 0
	}
	pct := int((p.Completed*100 + p.Total/2) / p.Total)
	if pct > 100 {
		pct = 100
	}
	return pct
}

// CompletionRequest is a single-shot prompt.
type CompletionRequest struct {
	System      string
	Prompt      string
	Schema      json.RawMessage // JSON schema for structured output, optional
	Temperature float64
	MaxTokens   int
}

// ErrNotSupported is returned when a host doesn't support an operation
type ErrNotSupported struct {
	Host      string
	Operation string
}

func (e ErrNotSupported) Error() string {
	return e.Host + " does not support " + e.Operation
}

// ErrUnavailable is returned when a host cannot serve requests
type ErrUnavailable struct {
	Host   string
	Reason string
}

func (e ErrUnavailable) Error() string {
	if e.Reason != "" {
		return e.Host + " is unavailable: " + e.Reason
	}
	return e.Host + " is unavailable"
}
