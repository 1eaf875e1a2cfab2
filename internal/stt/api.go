package stt

import (
	"context"
	"errors"
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	. "github.com/roelfdiedericks/gocoach/internal/logging"
)

const groqBaseURL = "https://api.groq.com/openai/v1"

// APIProvider transcribes through an OpenAI-compatible /audio/transcriptions endpoint.
// OpenAI, Groq and local Whisper servers all speak this API.
type APIProvider struct {
	name   string
	model  string
	client *openai.Client
}

// NewOpenAIProvider creates a provider for OpenAI or a compatible server.
func NewOpenAIProvider(cfg OpenAIConfig) (*APIProvider, error) {
	if cfg.APIKey == "" && cfg.BaseURL == "" {
		return nil, fmt.Errorf("openai API key not configured")
	}
	model := cfg.Model
	if model == "" {
		model = openai.Whisper1
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	L_debug("stt: openai provider initialized", "model", model, "baseURL", clientCfg.BaseURL)
	return &APIProvider{name: "openai", model: model, client: openai.NewClientWithConfig(clientCfg)}, nil
}

// NewGroqProvider creates a provider for Groq's Whisper API.
func NewGroqProvider(cfg GroqConfig) (*APIProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("groq API key not configured")
	}
	model := cfg.Model
	if model == "" {
		model = "whisper-large-v3"
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	clientCfg.BaseURL = groqBaseURL

	L_debug("stt: groq provider initialized", "model", model)
	return &APIProvider{name: "groq", model: model, client: openai.NewClientWithConfig(clientCfg)}, nil
}

// Transcribe uploads the file and returns the cleaned transcript.
func (p *APIProvider) Transcribe(ctx context.Context, filePath string) (string, error) {
	resp, err := p.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    p.model,
		FilePath: filePath,
	})
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) {
			L_warn("stt: transcription request failed", "provider", p.name, "status", apiErr.HTTPStatusCode, "message", apiErr.Message)
			return "", fmt.Errorf("%s API error: %s", p.name, apiErr.Message)
		}
		return "", fmt.Errorf("%s transcription: %w", p.name, err)
	}
	return CleanTranscript(resp.Text), nil
}

// Name returns the provider name.
func (p *APIProvider) Name() string {
	return p.name
}

// Close releases any resources (none for HTTP client).
func (p *APIProvider) Close() error {
	return nil
}
