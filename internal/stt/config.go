package stt

import (
	"fmt"

	. "github.com/roelfdiedericks/gocoach/internal/logging"
	"github.com/roelfdiedericks/gocoach/internal/paths"
)

// Config holds STT configuration.
type Config struct {
	Provider   string           `json:"provider" toml:"provider"`     // "whispercpp", "openai", "groq"
	WhisperCpp WhisperCppConfig `json:"whispercpp" toml:"whispercpp"` // Local whisper.cpp
	OpenAI     OpenAIConfig     `json:"openai" toml:"openai"`         // OpenAI-compatible transcription API
	Groq       GroqConfig       `json:"groq" toml:"groq"`             // Groq Whisper API
}

// OpenAIConfig holds OpenAI Whisper configuration.
// BaseURL points at any OpenAI-compatible server (e.g. a local faster-whisper).
type OpenAIConfig struct {
	APIKey  string `json:"apiKey,omitempty" toml:"apiKey,omitempty"`
	BaseURL string `json:"baseURL,omitempty" toml:"baseURL,omitempty"`
	Model   string `json:"model" toml:"model"` // "whisper-1"
}

// GroqConfig holds Groq Whisper configuration.
type GroqConfig struct {
	APIKey string `json:"apiKey,omitempty" toml:"apiKey,omitempty"`
	Model  string `json:"model" toml:"model"` // "whisper-large-v3", "whisper-large-v3-turbo"
}

// New builds the configured provider. Callers own the returned provider and must Close it.
func New(cfg Config) (Provider, error) {
	switch cfg.Provider {
	case "":
		return nil, ErrNotConfigured
	case "whispercpp":
		modelsDir, err := paths.ExpandTilde(cfg.WhisperCpp.ModelsDir)
		if err != nil {
			return nil, fmt.Errorf("stt: failed to expand models dir: %w", err)
		}
		if !IsModelDownloaded(modelsDir, cfg.WhisperCpp.Model) {
			return nil, fmt.Errorf("stt: model %s not found in %s (run 'gocoach models pull whisper')", cfg.WhisperCpp.Model, modelsDir)
		}
		wc := cfg.WhisperCpp
		wc.ModelsDir = modelsDir
		return NewWhisperCppProvider(wc)
	case "openai":
		return NewOpenAIProvider(cfg.OpenAI)
	case "groq":
		return NewGroqProvider(cfg.Groq)
	default:
		return nil, fmt.Errorf("stt: unknown provider: %s", cfg.Provider)
	}
}

// Describe is a one-line summary for `gocoach check`.
func Describe(cfg Config) string {
	switch cfg.Provider {
	case "whispercpp":
		return fmt.Sprintf("whisper.cpp (%s)", cfg.WhisperCpp.Model)
	case "openai":
		if cfg.OpenAI.BaseURL != "" {
			return fmt.Sprintf("openai-compatible (%s)", cfg.OpenAI.BaseURL)
		}
		return "openai"
	case "groq":
		return fmt.Sprintf("groq (%s)", cfg.Groq.Model)
	case "":
		L_debug("stt: no provider configured")
		return "disabled"
	}
	return cfg.Provider
}
