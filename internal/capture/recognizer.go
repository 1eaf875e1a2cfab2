package capture

import (
	"context"
	"sync"
)

// EventType distinguishes recognizer events.
type EventType int

const (
	EventResult EventType = iota
	EventError
	EventEnd
)

// Result is one recognized phrase. Final phrases never change again.
type Result struct {
	Transcript string
	Final      bool
}

// Event is emitted by a Recognizer while running.
// For EventResult, Results holds every phrase of the run and ResultIndex is
// the first one that changed.
type Event struct {
	Type        EventType
	ResultIndex int
	Results     []Result
	Code        ErrorCode
}

// Recognizer performs continuous recognition with interim results.
type Recognizer interface {
	// Available reports why recognition cannot run here, or nil.
	Available() error
	// Start begins recognition and returns once it is running. Events are
	// delivered through emit until ctx is cancelled or an error/end event.
	Start(ctx context.Context, emit func(Event)) error
}

// TypedRecognizer turns typed text into recognition events. It backs the
// keyboard answer mode and doubles as a scripted recognizer in tests.
type TypedRecognizer struct {
	mu          sync.Mutex
	emit        func(Event)
	ctx         context.Context
	finals      []Result
	draft       string
	unavailable error
	startErr    error
	deny        bool
	starts      int
}

// NewTypedRecognizer creates a ready recognizer.
func NewTypedRecognizer() *TypedRecognizer {
	return &TypedRecognizer{}
}

// SetUnavailable makes Available return err (nil restores it).
func (t *TypedRecognizer) SetUnavailable(err error) {
	t.mu.Lock()
	t.unavailable = err
	t.mu.Unlock()
}

// FailNextStart makes the next Start return err.
func (t *TypedRecognizer) FailNextStart(err error) {
	t.mu.Lock()
	t.startErr = err
	t.mu.Unlock()
}

// DenyPermission makes Probe fail with ErrPermissionDenied.
func (t *TypedRecognizer) DenyPermission(deny bool) {
	t.mu.Lock()
	t.deny = deny
	t.mu.Unlock()
}

// Probe implements PermissionProber.
func (t *TypedRecognizer) Probe(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.deny {
		return ErrPermissionDenied
	}
	return nil
}

// Available implements Recognizer.
func (t *TypedRecognizer) Available() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.unavailable
}

// Start implements Recognizer.
func (t *TypedRecognizer) Start(ctx context.Context, emit func(Event)) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.startErr; err != nil {
		t.startErr = nil
		return err
	}
	t.starts++
	t.ctx = ctx
	t.emit = emit
	t.finals = nil
	t.draft = ""
	return nil
}

// Starts counts successful Start calls.
func (t *TypedRecognizer) Starts() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.starts
}

// Running reports whether a started run has not been cancelled.
func (t *TypedRecognizer) Running() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.ctx != nil && t.ctx.Err() == nil
}

// Type replaces the in-progress phrase (an interim result).
func (t *TypedRecognizer) Type(text string) {
	t.mu.Lock()
	t.draft = text
	ev := Event{
		Type:        EventResult,
		ResultIndex: len(t.finals),
		Results:     append(append([]Result(nil), t.finals...), Result{Transcript: text}),
	}
	emit := t.activeEmitLocked()
	t.mu.Unlock()
	if emit != nil {
		emit(ev)
	}
}

// Commit finalizes the in-progress phrase, or text if given.
func (t *TypedRecognizer) Commit(text string) {
	t.mu.Lock()
	if text == "" {
		text = t.draft
	}
	t.draft = ""
	t.finals = append(t.finals, Result{Transcript: text, Final: true})
	ev := Event{
		Type:        EventResult,
		ResultIndex: len(t.finals) - 1,
		Results:     append([]Result(nil), t.finals...),
	}
	emit := t.activeEmitLocked()
	t.mu.Unlock()
	if emit != nil {
		emit(ev)
	}
}

// Fail emits an error event.
func (t *TypedRecognizer) Fail(code ErrorCode) {
	t.send(Event{Type: EventError, Code: code})
}

// End emits a natural end event.
func (t *TypedRecognizer) End() {
	t.send(Event{Type: EventEnd})
}

// Emit delivers an arbitrary event, even after cancellation. Tests use it
// to simulate late events from a superseded run.
func (t *TypedRecognizer) Emit(e Event) {
	t.mu.Lock()
	emit := t.emit
	t.mu.Unlock()
	if emit != nil {
		emit(e)
	}
}

func (t *TypedRecognizer) send(e Event) {
	t.mu.Lock()
	emit := t.activeEmitLocked()
	t.mu.Unlock()
	if emit != nil {
		emit(e)
	}
}

func (t *TypedRecognizer) activeEmitLocked() func(Event) {
	if t.ctx == nil || t.ctx.Err() != nil {
		return nil
	}
	return t.emit
}
