package llm

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	. "github.com/roelfdiedericks/gocoach/internal/logging"
	. "github.com/roelfdiedericks/gocoach/internal/metrics"
)

// OpenAIHost drives an OpenAI-compatible server (llama.cpp server, LM Studio,
// vLLM, LocalAI). It cannot download models.
type OpenAIHost struct {
	client  *openai.Client
	model   string
	baseURL string
}

// NewOpenAIHost creates a driver for the /v1 API at baseURL.
// API key is optional for local servers.
func NewOpenAIHost(baseURL, apiKey, model string, timeout time.Duration) (*OpenAIHost, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("openai-compatible base URL not configured")
	}
	if model == "" {
		return nil, fmt.Errorf("openai-compatible model not configured")
	}
	if apiKey == "" {
		apiKey = "not-needed"
	}
	if timeout <= 0 {
		timeout = 120 * time.Second
	}

	baseURL = strings.TrimSuffix(baseURL, "/")
	if !strings.HasSuffix(baseURL, "/v1") {
		baseURL += "/v1"
	}

	cfg := openai.DefaultConfig(apiKey)
	cfg.BaseURL = baseURL
	cfg.HTTPClient = &http.Client{Timeout: timeout}

	L_debug("openai: host created", "baseURL", baseURL, "model", model)
	return &OpenAIHost{client: openai.NewClientWithConfig(cfg), model: model, baseURL: baseURL}, nil
}

// Name implements Host.
func (h *OpenAIHost) Name() string { return "openai" }

// Model implements Host.
func (h *OpenAIHost) Model() string { return h.model }

// Status implements Host.
func (h *OpenAIHost) Status(ctx context.Context) (Status, error) {
	models, err := h.client.ListModels(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return Status{}, ctx.Err()
		}
		var apiErr *openai.APIError
		var reqErr *openai.RequestError
		if errors.As(err, &apiErr) || errors.As(err, &reqErr) {
			return Status{Reachable: true}, fmt.Errorf("list models: %w", err)
		}
		L_debug("openai: host unreachable", "baseURL", h.baseURL, "error", err)
		return Status{}, nil
	}

	st := Status{Reachable: true}
	for _, m := range models.Models {
		if m.ID == h.model {
			st.ModelPresent = true
			break
		}
	}
	L_debug("openai: status", "model", h.model, "present", st.ModelPresent, "served", len(models.Models))
	return st, nil
}

// Pull implements Host.
func (h *OpenAIHost) Pull(ctx context.Context) iter.Seq2[PullProgress, error] {
	return func(yield func(PullProgress, error) bool) {
		yield(PullProgress{}, ErrNotSupported{Host: "openai", Operation: "model download"})
	}
}

// Complete implements Host. The schema is passed as an instruction only;
// the response is requested as a JSON object.
func (h *OpenAIHost) Complete(ctx context.Context, cr CompletionRequest) (string, error) {
	startTime := time.Now()

	system := cr.System
	if len(cr.Schema) > 0 {
		system = strings.TrimSpace(system + "\n\nReturn ONLY valid JSON matching this schema:\n" + string(cr.Schema))
	}

	var messages []openai.ChatCompletionMessage
	if system != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: system})
	}
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: cr.Prompt})

	req := openai.ChatCompletionRequest{
		Model:       h.model,
		Messages:    messages,
		Temperature: float32(cr.Temperature),
		MaxTokens:   cr.MaxTokens,
	}
	if len(cr.Schema) > 0 {
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject}
	}

	L_info("llm: request started", "host", "openai", "model", h.model, "chars", len(system)+len(cr.Prompt))
	timer := MetricStart("llm", "openai/chat")
	defer MetricEnd(timer)

	resp, err := h.client.CreateChatCompletion(ctx, req)
	if err != nil {
		MetricFailWithReason("llm", "openai/chat", string(ClassifyError(err.Error())))
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) {
			L_error("openai: request failed (APIError)", "status", apiErr.HTTPStatusCode, "message", apiErr.Message)
			return "", fmt.Errorf("openai: status %d: %w", apiErr.HTTPStatusCode, err)
		}
		var reqErr *openai.RequestError
		if !errors.As(err, &reqErr) {
			return "", ErrUnavailable{Host: "openai", Reason: err.Error()}
		}
		L_error("openai: request failed", "error", err)
		return "", fmt.Errorf("openai: %w", err)
	}
	if len(resp.Choices) == 0 {
		MetricFailWithReason("llm", "openai/chat", "empty")
		return "", errors.New("openai: response has no choices")
	}

	content := resp.Choices[0].Message.Content
	MetricSuccess("llm", "openai/chat")
	L_info("llm: request completed", "host", "openai", "duration", time.Since(startTime).Round(time.Millisecond), "responseChars", len(content))
	return content, nil
}
