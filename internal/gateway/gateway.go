// Package gateway runs the interview's generation tasks against a local
// model host: availability, model activation and strict JSON completions.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/roelfdiedericks/gocoach/internal/bus"
	"github.com/roelfdiedericks/gocoach/internal/llm"
	. "github.com/roelfdiedericks/gocoach/internal/logging"
	. "github.com/roelfdiedericks/gocoach/internal/metrics"
	"github.com/roelfdiedericks/gocoach/internal/tokens"
)

var (
	// ErrGenerationUnavailable means no usable session exists or the host
	// cannot serve the model.
	ErrGenerationUnavailable = errors.New("gateway: generation unavailable")
	// ErrActivationRequiresUserGesture means a model download is needed and
	// must be started from a user action.
	ErrActivationRequiresUserGesture = errors.New("gateway: model download requires a user action")
	// ErrMalformedResponse means the model reply was not the task's JSON object.
	ErrMalformedResponse = errors.New("gateway: malformed generation response")
)

// Options configures a Gateway.
type Options struct {
	RequireUserActivation bool
	Temperature           float64
	MaxDescriptionTokens  int      // 0 disables truncation
	Bus                   *bus.Bus // optional, receives TopicDownload events
}

// CreateOptions are per-call options of Create.
type CreateOptions struct {
	UserActivated bool
	// Progress receives download events when a pull is needed. Sends block,
	// so the caller must drain it; Create never closes it.
	Progress chan<- DownloadEvent
}

// Gateway creates generation sessions on one host.
type Gateway struct {
	host  llm.Host
	opts  Options
	tasks map[Task]TaskOptions

	createMu  sync.Mutex // serializes activation and downloads
	mu        sync.Mutex
	activated bool
	sessions  map[Task]*Session
}

// New creates a gateway with the embedded task catalog.
func New(host llm.Host, opts Options) (*Gateway, error) {
	tasks, err := LoadTasks()
	if err != nil {
		return nil, err
	}
	return &Gateway{
		host:     host,
		opts:     opts,
		tasks:    tasks,
		sessions: make(map[Task]*Session),
	}, nil
}

// Host returns the underlying model host.
func (g *Gateway) Host() llm.Host { return g.host }

// Activated reports whether a Create has succeeded since the last reset.
func (g *Gateway) Activated() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.activated
}

// CheckAvailability probes the host.
func (g *Gateway) CheckAvailability(ctx context.Context) (Availability, error) {
	if g.host == nil {
		return AvailabilityUnavailable, nil
	}
	st, err := g.host.Status(ctx)
	if err != nil {
		L_warn("gateway: availability probe failed", "host", g.host.Name(), "error", err)
		MetricOutcome("gateway", "availability", "error")
		return AvailabilityCheckingError, err
	}
	a := availabilityOf(st)
	MetricOutcome("gateway", "availability", a.String())
	L_debug("gateway: availability", "host", g.host.Name(), "model", g.host.Model(), "availability", a)
	return a, nil
}

func availabilityOf(st llm.Status) Availability {
	switch {
	case !st.Reachable:
		return AvailabilityUnavailable
	case st.ModelPresent:
		return AvailabilityReady
	case st.Pullable:
		return AvailabilityNeedsDownload
	default:
		return AvailabilityUnavailable
	}
}

// Create returns the session for task, activating the model first if
// needed. Once activated, later calls skip the availability and download
// checks and reuse the cached session.
func (g *Gateway) Create(ctx context.Context, task Task, opts CreateOptions) (*Session, error) {
	taskOpts, ok := g.tasks[task]
	if !ok {
		return nil, fmt.Errorf("gateway: unknown task %q", task)
	}

	if s := g.cached(task); s != nil {
		return s, nil
	}

	g.createMu.Lock()
	defer g.createMu.Unlock()

	if !g.Activated() {
		if err := g.activate(ctx, opts); err != nil {
			return nil, err
		}
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if s := g.sessions[task]; s != nil && !s.closed.Load() {
		return s, nil
	}
	s := &Session{g: g, task: task, opts: taskOpts}
	g.sessions[task] = s
	L_debug("gateway: session created", "task", task)
	return s, nil
}

func (g *Gateway) cached(task Task) *Session {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.activated {
		return nil
	}
	if s := g.sessions[task]; s != nil && !s.closed.Load() {
		return s
	}
	return nil
}

func (g *Gateway) activate(ctx context.Context, opts CreateOptions) error {
	if g.host == nil {
		return ErrGenerationUnavailable
	}
	a, err := g.CheckAvailability(ctx)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrGenerationUnavailable, err)
	}
	switch a {
	case AvailabilityReady:
	case AvailabilityNeedsDownload:
		if g.opts.RequireUserActivation && !opts.UserActivated {
			L_debug("gateway: download deferred until user action", "model", g.host.Model())
			return ErrActivationRequiresUserGesture
		}
		if err := g.download(ctx, opts.Progress); err != nil {
			return err
		}
	default:
		return fmt.Errorf("%w: %s", ErrGenerationUnavailable, a.Label())
	}

	g.mu.Lock()
	g.activated = true
	g.mu.Unlock()
	L_info("gateway: generation activated", "host", g.host.Name(), "model", g.host.Model())
	return nil
}

func (g *Gateway) download(ctx context.Context, progress chan<- DownloadEvent) error {
	model := g.host.Model()
	timer := MetricStart("gateway", "download")
	defer MetricEnd(timer)

	last := -1
	done := false
	for p, err := range g.host.Pull(ctx) {
		if err != nil {
			MetricFailWithReason("gateway", "download", string(llm.Classify(err)))
			L_warn("gateway: model download failed", "model", model, "error", err)
			return fmt.Errorf("%w: download: %w", ErrGenerationUnavailable, err)
		}
		pct := max(last, p.Percent())
		if p.Done {
			pct = 100
		}
		// only forward changes, plus the final event
		if pct == last && !p.Done {
			continue
		}
		last = pct
		ev := DownloadEvent{Model: model, Status: p.Status, Percent: pct, Done: p.Done}
		if err := g.emit(ctx, progress, ev); err != nil {
			return err
		}
		if p.Done {
			done = true
			break
		}
	}
	if !done {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: download ended early", ErrGenerationUnavailable)
	}
	MetricSuccess("gateway", "download")
	return nil
}

func (g *Gateway) emit(ctx context.Context, progress chan<- DownloadEvent, ev DownloadEvent) error {
	if g.opts.Bus != nil {
		g.opts.Bus.Publish(TopicDownload, ev, "gateway")
	}
	if progress == nil {
		return nil
	}
	select {
	case progress <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Reset forgets the activation and closes cached sessions, so the next
// Create probes the host again.
func (g *Gateway) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, s := range g.sessions {
		s.closed.Store(true)
	}
	clear(g.sessions)
	g.activated = false
}

// Session is a generation handle bound to one task.
type Session struct {
	g      *Gateway
	task   Task
	opts   TaskOptions
	closed atomic.Bool
}

// Task returns the session's task.
func (s *Session) Task() Task { return s.task }

// Close releases the session; later Generate calls fail.
func (s *Session) Close() {
	if s != nil {
		s.closed.Store(true)
	}
}

// Generate submits prompt and decodes the cleaned reply into out, a pointer
// to the task's result struct.
func (s *Session) Generate(ctx context.Context, prompt string, out any) error {
	if s == nil || s.closed.Load() || s.g == nil || s.g.host == nil {
		return ErrGenerationUnavailable
	}
	schema, err := llm.SchemaOf(out)
	if err != nil {
		return fmt.Errorf("gateway: schema for %s: %w", s.task, err)
	}

	timer := MetricStart("gateway", string(s.task))
	raw, err := s.g.host.Complete(ctx, llm.CompletionRequest{
		System:      s.opts.SystemPrompt(),
		Prompt:      prompt,
		Schema:      schema,
		Temperature: s.g.opts.Temperature,
		MaxTokens:   s.opts.MaxTokens,
	})
	MetricEnd(timer)
	if err != nil {
		MetricFailWithReason("gateway", string(s.task), "host")
		if llm.IsUnavailable(err) {
			// model removed or host gone: probe again on the next Create
			s.g.Reset()
		}
		return fmt.Errorf("gateway: %s: %w", s.task, err)
	}

	cleaned := Clean(raw)
	if err := decodeStrict([]byte(cleaned), out); err != nil {
		MetricFailWithReason("gateway", string(s.task), "malformed")
		L_warn("gateway: malformed response", "task", s.task, "error", err, "raw", truncateForLog(raw))
		return fmt.Errorf("%w: %s: %v", ErrMalformedResponse, s.task, err)
	}
	MetricSuccess("gateway", string(s.task))
	L_trace("gateway: response", "task", s.task, "json", cleaned)
	return nil
}

// Generate is the typed form of Session.Generate.
func Generate[T any](ctx context.Context, s *Session, prompt string) (T, error) {
	var out T
	err := s.Generate(ctx, prompt, &out)
	return out, err
}

func truncateForLog(s string) string {
	const limit = 200
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "..."
}

func (s *Session) description(text string) string {
	if s.g.opts.MaxDescriptionTokens <= 0 {
		return text
	}
	out, truncated := tokens.Truncate(text, s.g.opts.MaxDescriptionTokens)
	if truncated {
		L_info("gateway: job description truncated", "maxTokens", s.g.opts.MaxDescriptionTokens)
	}
	return out
}
