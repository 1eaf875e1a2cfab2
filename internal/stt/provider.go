// Package stt transcribes recorded speech segments to text.
package stt

import (
	"context"
	"errors"
	"regexp"
	"strings"
)

// ErrNotConfigured is returned by New when no provider is selected.
var ErrNotConfigured = errors.New("stt: no provider configured")

// Provider is the interface for STT implementations.
type Provider interface {
	// Transcribe converts an audio file (WAV, OGG, ...) to text.
	// Silence yields "" and a nil error.
	Transcribe(ctx context.Context, filePath string) (string, error)

	// Name returns the provider name (e.g., "whispercpp", "openai")
	Name() string

	// Close releases any resources held by the provider.
	Close() error
}

// Whisper marks non-speech with bracketed or parenthesised tags.
var nonSpeechTag = regexp.MustCompile(`\[[^\]]*\]|\([^)]*\)`)

// CleanTranscript strips non-speech annotations ("[BLANK_AUDIO]", "(wind blowing)")
// and collapses whitespace.
func CleanTranscript(text string) string {
	text = nonSpeechTag.ReplaceAllString(text, " ")
	return strings.Join(strings.Fields(text), " ")
}
