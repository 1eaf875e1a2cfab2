package capture

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTypedAdapter() (*Adapter, *TypedRecognizer) {
	r := NewTypedRecognizer()
	return NewAdapter(r, r), r
}

func TestStartListeningRequestsPermission(t *testing.T) {
	a, r := newTypedAdapter()
	ctx := context.Background()

	require.NoError(t, a.StartListening(ctx))
	s := a.State()
	assert.True(t, s.Permission)
	assert.True(t, s.Listening)

	// already listening: no second recognizer run
	require.NoError(t, a.StartListening(ctx))
	assert.Equal(t, 1, r.Starts())
}

func TestPermissionDenied(t *testing.T) {
	a, r := newTypedAdapter()
	r.DenyPermission(true)

	err := a.StartListening(context.Background())
	require.ErrorIs(t, err, ErrPermissionDenied)
	s := a.State()
	assert.False(t, s.Permission)
	assert.False(t, s.Listening)
	assert.Equal(t, 0, r.Starts())
}

func TestUnsupportedEnvironment(t *testing.T) {
	a, r := newTypedAdapter()
	r.SetUnavailable(errors.New("no recorder"))

	err := a.StartListening(context.Background())
	require.ErrorIs(t, err, ErrUnsupportedEnvironment)
	assert.False(t, a.State().Listening)
}

func TestStartFailureClearsListening(t *testing.T) {
	a, r := newTypedAdapter()
	r.FailNextStart(errors.New("device busy"))

	require.Error(t, a.StartListening(context.Background()))
	assert.False(t, a.State().Listening)

	require.NoError(t, a.StartListening(context.Background()))
	assert.True(t, a.State().Listening)
}

func TestResultPartitioning(t *testing.T) {
	a, r := newTypedAdapter()
	require.NoError(t, a.StartListening(context.Background()))

	r.Type("I built")
	s := a.State()
	assert.Equal(t, "", s.Final)
	assert.Equal(t, "I built", s.Interim)
	assert.Equal(t, "I built", s.Transcript())

	r.Commit("I built the ingestion pipeline")
	s = a.State()
	assert.Equal(t, "I built the ingestion pipeline", s.Final)
	assert.Equal(t, "", s.Interim)

	r.Type(" in Go ")
	s = a.State()
	assert.Equal(t, "in Go", s.Interim)
	assert.Equal(t, "I built the ingestion pipeline in Go", s.Transcript())
}

func TestResultIndexSkipsEarlierResults(t *testing.T) {
	a, r := newTypedAdapter()
	require.NoError(t, a.StartListening(context.Background()))

	r.Emit(Event{Type: EventResult, ResultIndex: 1, Results: []Result{
		{Transcript: "already counted", Final: true},
		{Transcript: "new phrase", Final: true},
		{Transcript: "still talking"},
	}})
	s := a.State()
	assert.Equal(t, "new phrase", s.Final)
	assert.Equal(t, "still talking", s.Interim)
}

func TestErrorEventStopsListening(t *testing.T) {
	a, r := newTypedAdapter()
	require.NoError(t, a.StartListening(context.Background()))
	r.Commit("kept")

	r.Fail(CodeNetwork)
	s := a.State()
	assert.False(t, s.Listening)
	assert.Equal(t, CodeNetwork, s.ErrorCode)
	assert.ErrorIs(t, a.Err(), ErrRecognitionDropped)
	assert.False(t, r.Running(), "recognizer run should be cancelled")

	// final text survives a restart, interim does not
	require.NoError(t, a.StartListening(context.Background()))
	s = a.State()
	assert.Equal(t, "kept", s.Final)
	assert.Empty(t, s.ErrorCode)
}

func TestEndEventIsNotAnError(t *testing.T) {
	a, r := newTypedAdapter()
	require.NoError(t, a.StartListening(context.Background()))

	r.End()
	assert.False(t, a.State().Listening)
	assert.NoError(t, a.Err())
}

func TestEventsAfterStopAreIgnored(t *testing.T) {
	a, r := newTypedAdapter()
	require.NoError(t, a.StartListening(context.Background()))

	a.StopListening()
	a.StopListening() // idempotent

	r.Emit(Event{Type: EventResult, Results: []Result{{Transcript: "late", Final: true}}})
	r.Emit(Event{Type: EventEnd})
	s := a.State()
	assert.Empty(t, s.Final)
	assert.False(t, s.Listening)
}

func TestResetTranscriptKeepsListening(t *testing.T) {
	a, r := newTypedAdapter()
	require.NoError(t, a.StartListening(context.Background()))
	r.Commit("hello")
	r.Type("wor")

	a.ResetTranscript()
	s := a.State()
	assert.Empty(t, s.Transcript())
	assert.True(t, s.Listening)
}

func TestSubscribeSeesChanges(t *testing.T) {
	a, r := newTypedAdapter()
	var mu sync.Mutex
	var seen []State
	unsub := a.Subscribe(func(s State) {
		mu.Lock()
		seen = append(seen, s)
		mu.Unlock()
	})

	require.NoError(t, a.StartListening(context.Background()))
	r.Type("hi")
	unsub()
	r.Type("ignored")

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, seen)
	assert.Equal(t, "hi", seen[len(seen)-1].Interim)
}

type scriptedRecorder struct{}

func (scriptedRecorder) Available() error { return nil }
func (scriptedRecorder) Record(ctx context.Context, path string, seconds int) error {
	return ctx.Err()
}

type scriptedProvider struct {
	mu    sync.Mutex
	texts []string
}

func (p *scriptedProvider) Transcribe(ctx context.Context, path string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.texts) == 0 {
		<-ctx.Done()
		return "", ctx.Err()
	}
	text := p.texts[0]
	p.texts = p.texts[1:]
	return text, nil
}
func (p *scriptedProvider) Name() string { return "scripted" }
func (p *scriptedProvider) Close() error { return nil }

func TestSegmentRecognizerUtterance(t *testing.T) {
	rec := &SegmentRecognizer{
		Recorder:        scriptedRecorder{},
		Provider:        &scriptedProvider{texts: []string{"I mentor", "junior engineers", "", ""}},
		SegmentSeconds:  1,
		SilenceSegments: 1,
		EndAfter:        time.Nanosecond,
		TempDir:         t.TempDir(),
	}
	a := NewAdapter(rec, nil)
	require.NoError(t, a.StartListening(context.Background()))

	require.Eventually(t, func() bool { return !a.State().Listening }, 5*time.Second, 10*time.Millisecond)
	s := a.State()
	assert.Equal(t, "I mentor junior engineers", s.Final)
	assert.Empty(t, s.Interim)
	assert.NoError(t, a.Err())
}

func TestSegmentRecognizerUnavailableWithoutProvider(t *testing.T) {
	rec := &SegmentRecognizer{Recorder: scriptedRecorder{}}
	a := NewAdapter(rec, nil)
	assert.ErrorIs(t, a.StartListening(context.Background()), ErrUnsupportedEnvironment)
}

func TestExecRecorderArgs(t *testing.T) {
	r := &ExecRecorder{Command: "arecord", Device: "hw:1", SampleRate: 16000}
	args, err := r.args("/tmp/x.wav", 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"-q", "-f", "S16_LE", "-c", "1", "-r", "16000", "-d", "3", "-D", "hw:1", "/tmp/x.wav"}, args)

	_, err = (&ExecRecorder{Command: "parecord"}).args("/tmp/x.wav", 3)
	assert.Error(t, err)
}
