package narration

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// blockingSynth holds each utterance until released or cancelled.
type blockingSynth struct {
	mu      sync.Mutex
	spoken  []string
	started chan string
	release chan error
	avail   error
}

func newBlockingSynth() *blockingSynth {
	return &blockingSynth{started: make(chan string, 10), release: make(chan error, 10)}
}

func (b *blockingSynth) Name() string     { return "blocking" }
func (b *blockingSynth) Available() error { return b.avail }
func (b *blockingSynth) Speak(ctx context.Context, text string) error {
	b.mu.Lock()
	b.spoken = append(b.spoken, text)
	b.mu.Unlock()
	b.started <- text
	select {
	case err := <-b.release:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func TestSpeakEmptyIsNoop(t *testing.T) {
	s := newBlockingSynth()
	a := NewAdapter(s)
	require.NoError(t, a.Speak(context.Background(), "   "))
	assert.Empty(t, s.spoken)
	assert.False(t, a.Narrating())
}

func TestSpeakUnsupported(t *testing.T) {
	a := NewAdapter(Disabled{})
	err := a.Speak(context.Background(), "Tell me about yourself.")
	require.ErrorIs(t, err, ErrUnsupportedEnvironment)
	assert.ErrorIs(t, a.State().Err, ErrUnsupportedEnvironment)
	assert.False(t, a.Narrating())

	assert.ErrorIs(t, NewAdapter(nil).Speak(context.Background(), "hi"), ErrUnsupportedEnvironment)
}

func TestSpeakCompletes(t *testing.T) {
	s := newBlockingSynth()
	a := NewAdapter(s)

	done := make(chan error, 1)
	go func() { done <- a.Speak(context.Background(), "Question one") }()

	<-s.started
	assert.True(t, a.Narrating())
	s.release <- nil

	require.NoError(t, <-done)
	assert.False(t, a.Narrating())
	assert.NoError(t, a.State().Err)
}

func TestPlaybackErrorRecorded(t *testing.T) {
	s := newBlockingSynth()
	a := NewAdapter(s)
	s.release <- errors.New("device lost")

	err := a.Speak(context.Background(), "Question one")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrCancelled)
	assert.Error(t, a.State().Err)
	assert.False(t, a.Narrating())
}

func TestCancelStopsUtterance(t *testing.T) {
	s := newBlockingSynth()
	a := NewAdapter(s)

	done := make(chan error, 1)
	go func() { done <- a.Speak(context.Background(), "Question one") }()
	<-s.started

	a.Cancel()
	err := <-done
	assert.ErrorIs(t, err, ErrCancelled)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NoError(t, a.State().Err, "cancellation must not record an error")
	assert.False(t, a.Narrating())
}

func TestLastCallWins(t *testing.T) {
	s := newBlockingSynth()
	a := NewAdapter(s)

	first := make(chan error, 1)
	go func() { first <- a.Speak(context.Background(), "first") }()
	<-s.started

	second := make(chan error, 1)
	go func() { second <- a.Speak(context.Background(), "second") }()

	assert.ErrorIs(t, <-first, ErrCancelled)
	select {
	case text := <-s.started:
		assert.Equal(t, "second", text)
	case <-time.After(2 * time.Second):
		t.Fatal("second utterance never started")
	}
	assert.True(t, a.Narrating())

	s.release <- nil
	require.NoError(t, <-second)
	assert.False(t, a.Narrating())
}

func TestCommandArgs(t *testing.T) {
	c := &CommandSynthesizer{Command: "espeak-ng", Voice: "en-us", Rate: 160}
	assert.Equal(t, []string{"-v", "en-us", "-s", "160", "--", "-Hi"}, c.args("-Hi"))

	c = &CommandSynthesizer{Command: "spd-say"}
	assert.Equal(t, []string{"-w", "Hi"}, c.args("- Hi"))
}
