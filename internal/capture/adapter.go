// Package capture keeps a live transcript of the candidate's speech.
//
// The Adapter owns permission, the listening flag and the final/interim
// transcript buffers. A Recognizer does the actual listening and reports
// result batches, errors and a natural end through Events.
package capture

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
	// ErrPermissionDenied means the host refused microphone access.
	ErrPermissionDenied = errors.New("capture: microphone permission denied")
	// ErrUnsupportedEnvironment means continuous recognition is not offered here.
	ErrUnsupportedEnvironment = errors.New("capture: speech recognition unsupported")
	// ErrRecognitionDropped is matched by every RecognitionError.
	ErrRecognitionDropped = errors.New("capture: recognition dropped")
)

// ErrorCode names why recognition stopped.
type ErrorCode string

const (
	CodeAudioCapture ErrorCode = "audio-capture"
	CodeNetwork      ErrorCode = "network"
	CodeNotAllowed   ErrorCode = "not-allowed"
	CodeNoSpeech     ErrorCode = "no-speech"
)

// RecognitionError reports a recognizer error event.
type RecognitionError struct {
	Code ErrorCode
}

func (e *RecognitionError) Error() string {
	return fmt.Sprintf("capture: recognition error: %s", e.Code)
}

// Is makes errors.Is(err, ErrRecognitionDropped) true.
func (e *RecognitionError) Is(target error) bool {
	return target == ErrRecognitionDropped
}

// State is a copy of the adapter's observable state.
type State struct {
	Permission bool
	Listening  bool
	Final      string
	Interim    string
	ErrorCode  ErrorCode
}

// Transcript is the displayed text: final and interim joined.
func (s State) Transcript() string {
	return strings.TrimSpace(s.Final + " " + s.Interim)
}

// PermissionProber asks the host for microphone access.
type PermissionProber interface {
	Probe(ctx context.Context) error
}

// Adapter wraps a Recognizer with transcript bookkeeping.
type Adapter struct {
	recognizer Recognizer
	prober     PermissionProber

	mu         sync.Mutex
	permission bool
	listening  bool
	final      string
	interim    string
	lastCode   ErrorCode
	run        uint64 // bumped on every start/stop; events from older runs are dropped
	cancel     context.CancelFunc

	subMu  sync.Mutex
	subs   map[int]func(State)
	nextID int
}

// NewAdapter creates an adapter. prober may be nil when the recognizer needs no permission.
func NewAdapter(r Recognizer, prober PermissionProber) *Adapter {
	return &Adapter{
		recognizer: r,
		prober:     prober,
		subs:       make(map[int]func(State)),
	}
}

// State returns the current state.
func (a *Adapter) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stateLocked()
}

func (a *Adapter) stateLocked() State {
	return State{
		Permission: a.permission,
		Listening:  a.listening,
		Final:      a.final,
		Interim:    a.interim,
		ErrorCode:  a.lastCode,
	}
}

// Subscribe registers fn for every state change and returns an unsubscribe func.
// fn runs on the goroutine that changed the state and must not block.
func (a *Adapter) Subscribe(fn func(State)) func() {
	a.subMu.Lock()
	id := a.nextID
	a.nextID++
	a.subs[id] = fn
	a.subMu.Unlock()

	return func() {
		a.subMu.Lock()
		delete(a.subs, id)
		a.subMu.Unlock()
	}
}

func (a *Adapter) notify(s State) {
	a.subMu.Lock()
	fns := make([]func(State), 0, len(a.subs))
	for _, fn := range a.subs {
		fns = append(fns, fn)
	}
	a.subMu.Unlock()

	for _, fn := range fns {
		fn(s)
	}
}

// RequestPermission asks the host for microphone access.
func (a *Adapter) RequestPermission(ctx context.Context) error {
	if a.prober != nil {
		if err := a.prober.Probe(ctx); err != nil {
			L_warn("capture: microphone permission not granted", "error", err)
			MetricFailWithReason("capture", "permission", "denied")
			if errors.Is(err, ErrPermissionDenied) || errors.Is(err, ErrUnsupportedEnvironment) {
				return err
			}
			return fmt.Errorf("%w: %v", ErrPermissionDenied, err)
		}
	}

	a.mu.Lock()
	a.permission = true
	s := a.stateLocked()
	a.mu.Unlock()

	MetricSuccess("capture", "permission")
	L_debug("capture: microphone permission granted")
	a.notify(s)
	return nil
}

// StartListening begins continuous recognition, requesting permission first if needed.
// Starting while already listening is a no-op.
func (a *Adapter) StartListening(ctx context.Context) error {
	a.mu.Lock()
	if a.listening {
		a.mu.Unlock()
		return nil
	}
	needPermission := !a.permission
	a.mu.Unlock()

	if needPermission {
		if err := a.RequestPermission(ctx); err != nil {
			return err
		}
	}

	if err := a.recognizer.Available(); err != nil {
		L_debug("capture: recognizer unavailable", "error", err)
		return fmt.Errorf("%w: %v", ErrUnsupportedEnvironment, err)
	}

	a.mu.Lock()
	if a.listening {
		a.mu.Unlock()
		return nil
	}
	a.run++
	run := a.run
	rctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel
	a.interim = ""
	a.lastCode = ""
	a.listening = true
	s := a.stateLocked()
	a.mu.Unlock()

	err := a.recognizer.Start(rctx, func(e Event) { a.handle(run, e) })
	if err != nil {
		cancel()
		a.mu.Lock()
		if a.run == run {
			a.listening = false
			a.cancel = nil
			s = a.stateLocked()
		}
		a.mu.Unlock()
		a.notify(s)
		MetricFailWithReason("capture", "start", "recognizer")
		return fmt.Errorf("capture: start recognition: %w", err)
	}

	L_debug("capture: listening", "run", run)
	a.notify(s)
	return nil
}

// StopListening stops recognition. Safe to call when not listening.
func (a *Adapter) StopListening() {
	a.mu.Lock()
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
	a.run++
	wasListening := a.listening
	a.listening = false
	s := a.stateLocked()
	a.mu.Unlock()

	if wasListening {
		L_trace("capture: stopped listening")
		a.notify(s)
	}
}

// ResetTranscript clears both buffers. Listening is untouched.
func (a *Adapter) ResetTranscript() {
	a.mu.Lock()
	a.final = ""
	a.interim = ""
	s := a.stateLocked()
	a.mu.Unlock()
	a.notify(s)
}

func (a *Adapter) handle(run uint64, e Event) {
	a.mu.Lock()
	if run != a.run || !a.listening {
		a.mu.Unlock()
		return
	}

	switch e.Type {
	case EventResult:
		var finals []string
		var interim strings.Builder
		for i := e.ResultIndex; i >= 0 && i < len(e.Results); i++ {
			r := e.Results[i]
			if r.Final {
				finals = append(finals, r.Transcript)
			} else {
				interim.WriteString(r.Transcript)
			}
		}
		if len(finals) > 0 {
			a.final = strings.TrimSpace(a.final + " " + strings.Join(finals, " "))
			a.interim = ""
		}
		if interim.Len() > 0 {
			a.interim = strings.TrimSpace(interim.String())
		}

	case EventError:
		L_warn("capture: recognition error", "code", e.Code)
		MetricInc("capture", "errors")
		a.lastCode = e.Code
		a.stopRunLocked()

	case EventEnd:
		L_debug("capture: recognition ended")
		a.stopRunLocked()
	}

	s := a.stateLocked()
	a.mu.Unlock()
	a.notify(s)
}

func (a *Adapter) stopRunLocked() {
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
	a.run++
	a.listening = false
}

// Err returns the last recognition error, if any.
func (a *Adapter) Err() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.lastCode == "" {
		return nil
	}
	return &RecognitionError{Code: a.lastCode}
}
