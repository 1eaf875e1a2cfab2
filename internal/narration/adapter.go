// Package narration reads interview questions aloud.
package narration

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	. "github.com/roelfdiedericks/gocoach/internal/logging"
	. "github.com/roelfdiedericks/gocoach/internal/metrics"
)

var (
	// ErrUnsupportedEnvironment means no speech synthesizer is available.
	ErrUnsupportedEnvironment = errors.New("narration: speech synthesis unsupported")
	// ErrCancelled is returned by Speak when the utterance was cut short.
	ErrCancelled = errors.New("narration: cancelled")
)

// Synthesizer speaks text and blocks until playback finishes or ctx is cancelled.
type Synthesizer interface {
	Name() string
	Available() error
	Speak(ctx context.Context, text string) error
}

// State is a copy of the adapter's observable state.
type State struct {
	Narrating bool
	Err       error
}

// Adapter plays one utterance at a time; a new Speak cancels the previous one.
type Adapter struct {
	synth Synthesizer

	mu        sync.Mutex
	narrating bool
	seq       uint64
	cancel    context.CancelFunc
	lastErr   error
	onChange  func(State)
}

// NewAdapter wraps synth. A nil synth behaves as an unsupported environment.
func NewAdapter(synth Synthesizer) *Adapter {
	return &Adapter{synth: synth}
}

// OnChange registers a callback for narrating/error changes.
func (a *Adapter) OnChange(fn func(State)) {
	a.mu.Lock()
	a.onChange = fn
	a.mu.Unlock()
}

// State returns the current state.
func (a *Adapter) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return State{Narrating: a.narrating, Err: a.lastErr}
}

// Narrating reports whether an utterance is playing.
func (a *Adapter) Narrating() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.narrating
}

func (a *Adapter) emitLocked() func() {
	fn := a.onChange
	s := State{Narrating: a.narrating, Err: a.lastErr}
	return func() {
		if fn != nil {
			fn(s)
		}
	}
}

// Speak plays text and blocks until it finishes. Empty text is a no-op.
func (a *Adapter) Speak(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	if a.synth == nil {
		return a.unsupported(errors.New("no synthesizer"))
	}
	if err := a.synth.Available(); err != nil {
		return a.unsupported(err)
	}

	a.mu.Lock()
	if a.cancel != nil {
		a.cancel()
	}
	a.seq++
	my := a.seq
	uctx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	a.narrating = true
	a.lastErr = nil
	notify := a.emitLocked()
	a.mu.Unlock()
	notify()

	timer := MetricStart("narration", a.synth.Name())
	err := a.synth.Speak(uctx, text)
	MetricEnd(timer)

	a.mu.Lock()
	superseded := my != a.seq
	cancelled := superseded || uctx.Err() != nil
	if !superseded {
		a.narrating = false
		a.cancel = nil
		if err != nil && !cancelled {
			a.lastErr = err
		}
	}
	notify = a.emitLocked()
	a.mu.Unlock()
	cancel()
	if !superseded {
		notify()
	}

	if cancelled {
		return fmt.Errorf("%w: %w", ErrCancelled, context.Canceled)
	}
	if err != nil {
		L_warn("narration: playback failed", "synth", a.synth.Name(), "error", err)
		MetricFailWithReason("narration", "speak", "playback")
		return fmt.Errorf("narration: playback: %w", err)
	}
	return nil
}

func (a *Adapter) unsupported(cause error) error {
	err := fmt.Errorf("%w: %v", ErrUnsupportedEnvironment, cause)
	a.mu.Lock()
	a.lastErr = err
	notify := a.emitLocked()
	a.mu.Unlock()
	notify()
	L_debug("narration: synthesizer unavailable", "error", cause)
	return err
}

// Cancel stops the active utterance immediately.
func (a *Adapter) Cancel() {
	a.mu.Lock()
	if a.cancel == nil && !a.narrating {
		a.mu.Unlock()
		return
	}
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
	a.seq++
	a.narrating = false
	notify := a.emitLocked()
	a.mu.Unlock()
	notify()
}
