package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"net/http"
	"strings"
	"sync"
	"time"

	. "github.com/roelfdiedericks/gocoach/internal/logging"
	. "github.com/roelfdiedericks/gocoach/internal/metrics"
	"github.com/roelfdiedericks/gocoach/internal/tokens"
)

// defaultReplyTokens is the output budget reserved in num_ctx when the
// request doesn't set MaxTokens.
const defaultReplyTokens = 1024

// OllamaHost talks to the Ollama HTTP API.
type OllamaHost struct {
	url    string
	model  string
	client *http.Client // request/response calls, with timeout
	stream *http.Client // pulls, bounded by ctx only

	mu            sync.RWMutex
	contextTokens int // model's context window from /api/show, 0 = unknown
	infoQueried   bool
}

// ollamaShowRequest is the request body for /api/show
type ollamaShowRequest struct {
	Model string `json:"model"`
}

// ollamaShowResponse is the response from /api/show (partial - we only need model_info)
type ollamaShowResponse struct {
	ModelInfo map[string]any `json:"model_info"`
}

// ollamaTagsResponse is the response from /api/tags
type ollamaTagsResponse struct {
	Models []struct {
		Name  string `json:"name"`
		Model string `json:"model"`
	} `json:"models"`
}

// ollamaPullRequest is the request body for /api/pull
type ollamaPullRequest struct {
	Model  string `json:"model"`
	Stream bool   `json:"stream"`
}

// ollamaPullEvent is one NDJSON line from /api/pull
type ollamaPullEvent struct {
	Status    string `json:"status"`
	Digest    string `json:"digest,omitempty"`
	Total     int64  `json:"total,omitempty"`
	Completed int64  `json:"completed,omitempty"`
	Error     string `json:"error,omitempty"`
}

// ollamaChatRequest is the request body for Ollama chat API
type ollamaChatRequest struct {
	Model    string              `json:"model"`
	Messages []ollamaChatMessage `json:"messages"`
	Stream   bool                `json:"stream"`
	Format   json.RawMessage     `json:"format,omitempty"`
	Options  *ollamaOptions      `json:"options,omitempty"`
}

// ollamaOptions contains model options like context size
type ollamaOptions struct {
	NumCtx      int      `json:"num_ctx,omitempty"`
	NumPredict  int      `json:"num_predict,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
}

// ollamaChatMessage represents a message in Ollama chat format
type ollamaChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ollamaChatResponse is the response from Ollama chat API
type ollamaChatResponse struct {
	Message ollamaChatMessage `json:"message"`
	Done    bool              `json:"done"`
	Error   string            `json:"error,omitempty"`
}

// ollamaErrorResponse is the body Ollama sends with non-200 statuses
type ollamaErrorResponse struct {
	Error string `json:"error"`
}

// NewOllamaHost creates a driver for the Ollama server at url.
func NewOllamaHost(url, model string, timeout time.Duration) (*OllamaHost, error) {
	if url == "" {
		return nil, fmt.Errorf("ollama URL not configured")
	}
	if model == "" {
		return nil, fmt.Errorf("ollama model not configured")
	}
	if timeout <= 0 {
		timeout = 120 * time.Second // large models can take minutes to load
	}

	h := &OllamaHost{
		url:    strings.TrimSuffix(url, "/"),
		model:  model,
		client: &http.Client{Timeout: timeout},
		stream: &http.Client{},
	}
	L_debug("ollama: host created", "url", h.url, "model", model, "timeout", timeout)
	return h, nil
}

// Name implements Host.
func (h *OllamaHost) Name() string { return "ollama" }

// Model implements Host.
func (h *OllamaHost) Model() string { return h.model }

// ContextTokens returns the model's context window, 0 if not known yet.
func (h *OllamaHost) ContextTokens() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.contextTokens
}

// normalizeModelName adds the implicit ":latest" tag.
func normalizeModelName(name string) string {
	if !strings.Contains(name, ":") {
		return name + ":latest"
	}
	return name
}

// Status implements Host. Ollama can pull any model, so a reachable host
// is always Pullable.
func (h *OllamaHost) Status(ctx context.Context) (Status, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.url+"/api/tags", nil)
	if err != nil {
		return Status{}, fmt.Errorf("create request: %w", err)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return Status{}, ctx.Err()
		}
		L_debug("ollama: host unreachable", "url", h.url, "error", err)
		return Status{}, nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Status{Reachable: true, Pullable: true}, h.statusError(resp)
	}

	var tags ollamaTagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return Status{Reachable: true, Pullable: true}, fmt.Errorf("decode tags: %w", err)
	}

	want := normalizeModelName(h.model)
	st := Status{Reachable: true, Pullable: true}
	for _, m := range tags.Models {
		name := m.Name
		if name == "" {
			name = m.Model
		}
		if normalizeModelName(name) == want {
			st.ModelPresent = true
			break
		}
	}
	L_debug("ollama: status", "model", h.model, "present", st.ModelPresent, "installed", len(tags.Models))
	return st, nil
}

// Pull implements Host. Layer progress is summed so the reported totals
// only ever grow.
func (h *OllamaHost) Pull(ctx context.Context) iter.Seq2[PullProgress, error] {
	return func(yield func(PullProgress, error) bool) {
		body, _ := json.Marshal(ollamaPullRequest{Model: h.model, Stream: true})
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.url+"/api/pull", bytes.NewReader(body))
		if err != nil {
			yield(PullProgress{}, fmt.Errorf("create request: %w", err))
			return
		}
		req.Header.Set("Content-Type", "application/json")

		L_info("ollama: pulling model", "model", h.model)
		timer := MetricStart("llm", "ollama/pull")
		defer MetricEnd(timer)

		resp, err := h.stream.Do(req)
		if err != nil {
			MetricFailWithReason("llm", "ollama/pull", "connect")
			yield(PullProgress{}, ErrUnavailable{Host: "ollama", Reason: err.Error()})
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			MetricFailWithReason("llm", "ollama/pull", "status")
			yield(PullProgress{}, h.statusError(resp))
			return
		}

		layers := map[string][2]int64{} // digest -> completed, total
		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := bytes.TrimSpace(scanner.Bytes())
			if len(line) == 0 {
				continue
			}
			var ev ollamaPullEvent
			if err := json.Unmarshal(line, &ev); err != nil {
				L_warn("ollama: bad pull event", "line", string(line), "error", err)
				continue
			}
			if ev.Error != "" {
				MetricFailWithReason("llm", "ollama/pull", "remote")
				yield(PullProgress{}, fmt.Errorf("ollama pull: %s", ev.Error))
				return
			}

			if ev.Digest != "" && ev.Total > 0 {
				prev := layers[ev.Digest]
				layers[ev.Digest] = [2]int64{max(prev[0], ev.Completed), max(prev[1], ev.Total)}
			}
			var p PullProgress
			p.Status = ev.Status
			for _, l := range layers {
				p.Completed += l[0]
				p.Total += l[1]
			}
			if ev.Status == "success" {
				p.Done = true
				p.Completed = p.Total
			}
			L_trace("ollama: pull progress", "status", ev.Status, "completed", p.Completed, "total", p.Total)
			if !yield(p, nil) || p.Done {
				if p.Done {
					MetricSuccess("llm", "ollama/pull")
					L_info("ollama: model pulled", "model", h.model)
				}
				return
			}
		}
		if err := scanner.Err(); err != nil {
			if ctx.Err() != nil {
				err = ctx.Err()
			}
			yield(PullProgress{}, fmt.Errorf("read pull stream: %w", err))
			return
		}
		yield(PullProgress{}, errors.New("ollama pull: stream ended before success"))
	}
}

// Complete implements Host. With a schema set the response is constrained
// through Ollama's structured output "format" field.
func (h *OllamaHost) Complete(ctx context.Context, cr CompletionRequest) (string, error) {
	startTime := time.Now()
	h.queryModelInfo(ctx)

	reply := cr.MaxTokens
	if reply <= 0 {
		reply = defaultReplyTokens
	}
	promptTokens := tokens.Estimate(cr.System) + tokens.Estimate(cr.Prompt)
	numCtx := tokens.ContextFor(promptTokens, reply, h.ContextTokens())

	messages := []ollamaChatMessage{}
	if cr.System != "" {
		messages = append(messages, ollamaChatMessage{Role: "system", Content: cr.System})
	}
	messages = append(messages, ollamaChatMessage{Role: "user", Content: cr.Prompt})

	opts := &ollamaOptions{NumCtx: numCtx, NumPredict: cr.MaxTokens}
	if cr.Temperature > 0 {
		t := cr.Temperature
		opts.Temperature = &t
	}
	reqBody := ollamaChatRequest{
		Model:    h.model,
		Messages: messages,
		Stream:   false,
		Format:   cr.Schema,
		Options:  opts,
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	L_info("llm: request started", "host", "ollama", "model", h.model, "promptTokens", promptTokens, "numCtx", numCtx)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.url+"/api/chat", bytes.NewReader(jsonData))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	timer := MetricStart("llm", "ollama/chat")
	defer MetricEnd(timer)

	resp, err := h.client.Do(req)
	if err != nil {
		MetricFailWithReason("llm", "ollama/chat", string(ClassifyError(err.Error())))
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		L_error("ollama: request failed", "error", err)
		return "", ErrUnavailable{Host: "ollama", Reason: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		err := h.statusError(resp)
		MetricFailWithReason("llm", "ollama/chat", string(ClassifyError(err.Error())))
		L_error("ollama: request failed", "status", resp.StatusCode, "error", err)
		return "", err
	}

	var result ollamaChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		MetricFailWithReason("llm", "ollama/chat", "decode")
		return "", fmt.Errorf("decode response: %w", err)
	}
	if result.Error != "" {
		MetricFailWithReason("llm", "ollama/chat", "remote")
		return "", fmt.Errorf("ollama: %s", result.Error)
	}

	MetricSuccess("llm", "ollama/chat")
	L_info("llm: request completed", "host", "ollama", "duration", time.Since(startTime).Round(time.Millisecond), "responseChars", len(result.Message.Content))
	return result.Message.Content, nil
}

// queryModelInfo fetches the context window once per host.
func (h *OllamaHost) queryModelInfo(ctx context.Context) {
	h.mu.Lock()
	if h.infoQueried {
		h.mu.Unlock()
		return
	}
	h.infoQueried = true
	h.mu.Unlock()

	body, _ := json.Marshal(ollamaShowRequest{Model: h.model})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.url+"/api/show", bytes.NewReader(body))
	if err != nil {
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		L_debug("ollama: /api/show failed", "error", err)
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		L_debug("ollama: /api/show status", "status", resp.StatusCode)
		return
	}

	var result ollamaShowResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		L_debug("ollama: failed to decode model info", "error", err)
		return
	}

	contextLength := 0
	for key, value := range result.ModelInfo {
		if strings.Contains(strings.ToLower(key), "context_length") {
			if v, ok := value.(float64); ok {
				contextLength = int(v)
				break
			}
		}
	}

	if contextLength > 0 {
		h.mu.Lock()
		h.contextTokens = contextLength
		h.mu.Unlock()
		L_debug("ollama: detected model context window", "model", h.model, "contextTokens", contextLength)
	} else {
		L_warn("ollama: could not detect context window", "model", h.model)
	}
}

func (h *OllamaHost) statusError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var e ollamaErrorResponse
	if json.Unmarshal(body, &e) == nil && e.Error != "" {
		return fmt.Errorf("ollama returned status %d: %s", resp.StatusCode, e.Error)
	}
	return fmt.Errorf("ollama returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
}
