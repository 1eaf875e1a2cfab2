// Package llmtest provides a scriptable llm.Host for tests.
package llmtest

import (
	"context"
	"fmt"
	"iter"
	"strings"
	"sync"

	"github.com/roelfdiedericks/gocoach/internal/llm"
)

// Responder answers one completion request.
type Responder func(ctx context.Context, req llm.CompletionRequest) (string, error)

type route struct {
	match string
	fn    Responder
}

// Host is an in-memory llm.Host. Requests are routed to the first responder
// whose match string occurs in the prompt.
type Host struct {
	mu        sync.Mutex
	status    llm.Status
	statusErr error
	pull      []llm.PullProgress
	pullErr   error
	routes    []route
	calls     []llm.CompletionRequest
	pulls     int
	probes    int
}

var _ llm.Host = (*Host)(nil)

// New returns a host whose model is installed.
func New() *Host {
	return &Host{status: llm.Status{Reachable: true, ModelPresent: true, Pullable: true}}
}

// SetStatus sets the probe result.
func (h *Host) SetStatus(st llm.Status, err error) *Host {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.status, h.statusErr = st, err
	return h
}

// SetPull scripts the download. A successful pull installs the model.
func (h *Host) SetPull(events []llm.PullProgress, err error) *Host {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.pull, h.pullErr = events, err
	return h
}

// On routes prompts containing match to fn.
func (h *Host) On(match string, fn Responder) *Host {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.routes = append(h.routes, route{match: match, fn: fn})
	return h
}

// Reply routes prompts containing match to a fixed reply.
func (h *Host) Reply(match, reply string) *Host {
	return h.On(match, func(context.Context, llm.CompletionRequest) (string, error) { return reply, nil })
}

// Fail routes prompts containing match to an error.
func (h *Host) Fail(match string, err error) *Host {
	return h.On(match, func(context.Context, llm.CompletionRequest) (string, error) { return "", err })
}

// Calls returns the completion requests seen so far.
func (h *Host) Calls() []llm.CompletionRequest {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]llm.CompletionRequest(nil), h.calls...)
}

// CallsMatching counts requests whose prompt contains match.
func (h *Host) CallsMatching(match string) int {
	n := 0
	for _, c := range h.Calls() {
		if strings.Contains(c.Prompt, match) {
			n++
		}
	}
	return n
}

// Pulls returns how many downloads were started.
func (h *Host) Pulls() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.pulls
}

// Probes returns how many times Status was called.
func (h *Host) Probes() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.probes
}

// Name implements llm.Host.
func (h *Host) Name() string { return "fake" }

// Model implements llm.Host.
func (h *Host) Model() string { return "fake-model" }

// Status implements llm.Host.
func (h *Host) Status(ctx context.Context) (llm.Status, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.probes++
	return h.status, h.statusErr
}

// Pull implements llm.Host.
func (h *Host) Pull(ctx context.Context) iter.Seq2[llm.PullProgress, error] {
	return func(yield func(llm.PullProgress, error) bool) {
		h.mu.Lock()
		h.pulls++
		events := append([]llm.PullProgress(nil), h.pull...)
		pullErr := h.pullErr
		h.mu.Unlock()

		for _, ev := range events {
			if ctx.Err() != nil {
				yield(llm.PullProgress{}, ctx.Err())
				return
			}
			if ev.Done {
				h.mu.Lock()
				h.status.ModelPresent = true
				h.mu.Unlock()
				yield(ev, nil)
				return
			}
			if !yield(ev, nil) {
				return
			}
		}
		if pullErr != nil {
			yield(llm.PullProgress{}, pullErr)
		}
	}
}

// Complete implements llm.Host.
func (h *Host) Complete(ctx context.Context, req llm.CompletionRequest) (string, error) {
	h.mu.Lock()
	h.calls = append(h.calls, req)
	var fn Responder
	for _, r := range h.routes {
		if strings.Contains(req.Prompt, r.match) {
			fn = r.fn
			break
		}
	}
	h.mu.Unlock()

	if fn == nil {
		return "", fmt.Errorf("llmtest: no responder for prompt %.60q", req.Prompt)
	}
	return fn(ctx, req)
}
