// Package interview runs a practice interview session: it owns the session
// phases, drives the microphone and narration handles and sequences the
// generation pipelines. All state lives behind one mutex; async work runs in
// tracked goroutines and re-checks the session token before touching state.
package interview

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/roelfdiedericks/gocoach/internal/bus"
	"github.com/roelfdiedericks/gocoach/internal/capture"
	"github.com/roelfdiedericks/gocoach/internal/config"
	"github.com/roelfdiedericks/gocoach/internal/gateway"
	. "github.com/roelfdiedericks/gocoach/internal/logging"
	"github.com/roelfdiedericks/gocoach/internal/narration"
)

// TopicSnapshot carries a Snapshot after every state change.
const TopicSnapshot = "interview.snapshot"

// Capture is the microphone handle.
type Capture interface {
	State() capture.State
	Subscribe(fn func(capture.State)) func()
	RequestPermission(ctx context.Context) error
	StartListening(ctx context.Context) error
	StopListening()
	ResetTranscript()
}

// Narrator is the speech synthesis handle.
type Narrator interface {
	Speak(ctx context.Context, text string) error
	Cancel()
	Narrating() bool
	OnChange(fn func(narration.State))
}

// Generator hands out generation sessions. *gateway.Gateway implements it.
type Generator interface {
	CheckAvailability(ctx context.Context) (gateway.Availability, error)
	Create(ctx context.Context, task gateway.Task, opts gateway.CreateOptions) (*gateway.Session, error)
}

// Importer fetches a job description from a URL.
type Importer interface {
	Import(ctx context.Context, rawURL string) (string, error)
}

// Settings is the session configuration.
type Settings struct {
	CandidateName  string `json:"candidateName"`
	QuestionCount  int    `json:"questionCount"`
	Difficulty     string `json:"difficulty"`
	JobDescription string `json:"jobDescription"`
}

// SettingsFrom builds session defaults from the config file.
func SettingsFrom(cfg *config.Config, description string) Settings {
	return Settings{
		CandidateName:  cfg.Interview.CandidateName,
		QuestionCount:  cfg.Interview.QuestionCount,
		Difficulty:     cfg.Interview.Difficulty,
		JobDescription: description,
	}
}

func (s Settings) normalized() Settings {
	s.QuestionCount = config.ClampQuestionCount(s.QuestionCount)
	s.Difficulty = strings.ToLower(strings.TrimSpace(s.Difficulty))
	if !config.ValidDifficulty(s.Difficulty) {
		s.Difficulty = "medium"
	}
	return s
}

// Options configures an Orchestrator.
type Options struct {
	Capture   Capture
	Narrator  Narrator
	Generator Generator
	Importer  Importer // optional
	Bus       *bus.Bus // optional, a private bus is used when nil
	Settings  Settings
	Ambient   bool
}

// Answer is one recorded response.
type Answer struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// Feedback is the review of one answer.
type Feedback struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
	Feedback string `json:"feedback"`
}

// Orchestrator is the interview state machine.
type Orchestrator struct {
	capture  Capture
	narrator Narrator
	gen      Generator
	importer Importer
	bus      *bus.Bus

	ctx    context.Context
	cancel context.CancelFunc
	unsub  func()

	// life guards closed and wg.Add so Close never races a late spawn.
	// It is taken after mu when spawn runs inside update.
	life   sync.Mutex
	wg     sync.WaitGroup
	closed bool

	mu       sync.Mutex
	version  uint64
	settings Settings
	descSeq  uint64 // bumped on every job description change or import
	phase    Phase
	turn     Turn
	token    uint64
	runID    string

	keywords       []string
	questions      []string
	index          int
	answers        []Answer
	feedback       []Feedback
	analysisFailed bool
	loaders        []Loader

	status       string
	errText      string
	errKind      ErrorKind
	narrationErr string

	narrationSeq uint64
	answerSeq    uint64
	recording    bool // answer capture is running

	availability      gateway.Availability
	downloadPct       int
	activationPending bool

	ambient         AmbientPhase
	ambientEnabled  bool
	ambientPaused   bool
	ambientStarting bool
	ambientRunning  bool
	ambientGen      uint64

	pubMu     sync.Mutex
	published uint64
}

// New creates an orchestrator. Call Start to begin the ambient loop.
func New(opts Options) (*Orchestrator, error) {
	if opts.Capture == nil || opts.Narrator == nil || opts.Generator == nil {
		return nil, errors.New("interview: capture, narrator and generator are required")
	}
	b := opts.Bus
	if b == nil {
		b = bus.New(16)
	}
	ctx, cancel := context.WithCancel(context.Background())
	o := &Orchestrator{
		capture:        opts.Capture,
		narrator:       opts.Narrator,
		gen:            opts.Generator,
		importer:       opts.Importer,
		bus:            b,
		ctx:            ctx,
		cancel:         cancel,
		settings:       opts.Settings.normalized(),
		ambientEnabled: opts.Ambient,
		availability:   gateway.AvailabilityChecking,
	}
	o.unsub = o.capture.Subscribe(func(capture.State) { o.spawn(o.syncCapture) })
	o.narrator.OnChange(func(narration.State) { o.spawn(func() { o.update(func() {}) }) })
	return o, nil
}

// Start requests microphone access, probes the model host and starts the
// ambient loop.
func (o *Orchestrator) Start() {
	L_info("interview: starting", "ambient", o.ambientEnabled)
	o.update(func() { o.refreshAmbientLocked(true) })
	o.RequestMicrophone()
	o.spawn(func() { o.checkGeneration(false) })
}

// Close ends any session and waits for background work.
func (o *Orchestrator) Close() {
	o.life.Lock()
	if o.closed {
		o.life.Unlock()
		return
	}
	o.closed = true
	o.life.Unlock()

	o.cancel()
	o.mu.Lock()
	o.token++
	o.narrator.Cancel()
	o.capture.StopListening()
	o.mu.Unlock()
	o.wg.Wait()
	if o.unsub != nil {
		o.unsub()
	}
	L_debug("interview: closed")
}

// Wait blocks until no background work is in flight.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

// Bus returns the bus snapshots are published on.
func (o *Orchestrator) Bus() *bus.Bus { return o.bus }

// Subscribe calls fn with every new snapshot, in order. fn runs on the
// publishing goroutine and must not block or call back into the orchestrator.
func (o *Orchestrator) Subscribe(fn func(Snapshot)) func() {
	id := o.bus.SubscribeSync(TopicSnapshot, func(e bus.Event) {
		if s, ok := e.Data.(Snapshot); ok {
			fn(s)
		}
	})
	return func() { o.bus.Unsubscribe(id) }
}

func (o *Orchestrator) spawn(fn func()) {
	o.life.Lock()
	defer o.life.Unlock()
	if o.closed {
		return
	}
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		fn()
	}()
}

// update runs fn under the lock and publishes the resulting snapshot.
func (o *Orchestrator) update(fn func()) {
	o.mu.Lock()
	fn()
	o.version++
	snap := o.snapshotLocked()
	o.mu.Unlock()
	o.publish(snap)
}

func (o *Orchestrator) publish(s Snapshot) {
	o.pubMu.Lock()
	defer o.pubMu.Unlock()
	if s.Version <= o.published {
		return
	}
	o.published = s.Version
	o.bus.Publish(TopicSnapshot, s, "interview")
}

func (o *Orchestrator) isCurrent(token uint64) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return token == o.token
}

// moveLocked changes phase along the transition table.
func (o *Orchestrator) moveLocked(next Phase) bool {
	if !o.phase.CanTransition(next) {
		L_warn("interview: illegal transition", "from", o.phase, "to", next, "run", o.runID)
		return false
	}
	if o.phase != next {
		L_debug("interview: phase", "from", o.phase, "to", next, "run", o.runID)
	}
	o.phase = next
	return true
}

func (o *Orchestrator) setErrorLocked(kind ErrorKind, text string) {
	o.errKind = kind
	o.errText = text
	o.status = text
}

func (o *Orchestrator) clearErrorLocked() {
	o.errKind = KindNone
	o.errText = ""
}

func (o *Orchestrator) clearSessionLocked() {
	o.keywords = nil
	o.questions = nil
	o.index = 0
	o.answers = nil
	o.feedback = nil
	o.analysisFailed = false
	o.loaders = nil
	o.turn = TurnNone
	o.recording = false
	o.narrationErr = ""
}

func (o *Orchestrator) startLoaderLocked(l Loader) {
	for _, cur := range o.loaders {
		if cur.ID == l.ID {
			return
		}
	}
	o.loaders = append(o.loaders, l)
}

func (o *Orchestrator) stopLoaderLocked(id string) {
	kept := o.loaders[:0]
	for _, l := range o.loaders {
		if l.ID != id {
			kept = append(kept, l)
		}
	}
	o.loaders = kept
}

// captureWantedLocked reports whether someone still expects the microphone on.
func (o *Orchestrator) captureWantedLocked() bool {
	if o.phase == PhaseQuestionActive && o.turn == TurnRecording {
		return true
	}
	return o.phase.Resting() && o.ambientRunning
}
