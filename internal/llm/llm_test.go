package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func ollamaServer(t *testing.T, handler http.HandlerFunc) *OllamaHost {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	h, err := NewOllamaHost(srv.URL, "llama3.2", 5*time.Second)
	if err != nil {
		t.Fatalf("NewOllamaHost: %v", err)
	}
	return h
}

func TestOllamaStatus(t *testing.T) {
	tests := []struct {
		name    string
		models  string
		present bool
	}{
		{"implicit latest", `{"models":[{"name":"llama3.2:latest"}]}`, true},
		{"other model", `{"models":[{"name":"qwen2.5:0.5b"}]}`, false},
		{"none", `{"models":[]}`, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := ollamaServer(t, func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/api/tags" {
					t.Errorf("path = %s, want /api/tags", r.URL.Path)
				}
				io.WriteString(w, tt.models)
			})
			st, err := h.Status(context.Background())
			if err != nil {
				t.Fatalf("Status: %v", err)
			}
			if !st.Reachable || !st.Pullable {
				t.Errorf("status = %+v, want reachable and pullable", st)
			}
			if st.ModelPresent != tt.present {
				t.Errorf("ModelPresent = %v, want %v", st.ModelPresent, tt.present)
			}
		})
	}
}

func TestOllamaStatusUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	h, _ := NewOllamaHost(url, "llama3.2", time.Second)
	st, err := h.Status(context.Background())
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if st.Reachable {
		t.Errorf("Reachable = true for a closed server")
	}
}

func TestOllamaStatusServerError(t *testing.T) {
	h := ollamaServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		io.WriteString(w, `{"error":"boom"}`)
	})
	st, err := h.Status(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	if !st.Reachable {
		t.Errorf("Reachable = false, want true")
	}
	if !strings.Contains(err.Error(), "boom") {
		t.Errorf("error = %v, want it to carry the server message", err)
	}
}

func TestOllamaPull(t *testing.T) {
	h := ollamaServer(t, func(w http.ResponseWriter, r *http.Request) {
		var req ollamaPullRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.Model != "llama3.2" || !req.Stream {
			t.Errorf("pull request = %+v", req)
		}
		for _, line := range []string{
			`{"status":"pulling manifest"}`,
			`{"status":"pulling a","digest":"a","total":100,"completed":50}`,
			`{"status":"pulling b","digest":"b","total":100,"completed":0}`,
			`{"status":"pulling a","digest":"a","total":100,"completed":100}`,
			`{"status":"pulling b","digest":"b","total":100,"completed":100}`,
			`{"status":"verifying sha256 digest"}`,
			`{"status":"success"}`,
		} {
			fmt.Fprintln(w, line)
		}
	})

	var pcts []int
	var last PullProgress
	for p, err := range h.Pull(context.Background()) {
		if err != nil {
			t.Fatalf("pull: %v", err)
		}
		pcts = append(pcts, p.Percent())
		last = p
	}
	want := []int{0, 50, 25, 50, 100, 100, 100}
	if fmt.Sprint(pcts) != fmt.Sprint(want) {
		t.Errorf("percents = %v, want %v", pcts, want)
	}
	if !last.Done {
		t.Errorf("last event not Done: %+v", last)
	}
}

func TestOllamaPullError(t *testing.T) {
	h := ollamaServer(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, `{"status":"pulling manifest"}`)
		fmt.Fprintln(w, `{"error":"pull model manifest: file does not exist"}`)
	})
	var gotErr error
	for _, err := range h.Pull(context.Background()) {
		if err != nil {
			gotErr = err
		}
	}
	if gotErr == nil || !strings.Contains(gotErr.Error(), "file does not exist") {
		t.Errorf("err = %v, want pull error", gotErr)
	}
}

func TestOllamaPullTruncated(t *testing.T) {
	h := ollamaServer(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, `{"status":"pulling manifest"}`)
	})
	var gotErr error
	for _, err := range h.Pull(context.Background()) {
		if err != nil {
			gotErr = err
		}
	}
	if gotErr == nil {
		t.Error("expected error for a stream without success")
	}
}

func TestOllamaComplete(t *testing.T) {
	schema, err := SchemaFor[struct {
		Keywords []string `json:"keywords"`
	}]()
	if err != nil {
		t.Fatalf("SchemaFor: %v", err)
	}

	h := ollamaServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/show":
			io.WriteString(w, `{"model_info":{"llama.context_length":8192}}`)
		case "/api/chat":
			var req ollamaChatRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				t.Errorf("decode: %v", err)
				return
			}
			if req.Stream {
				t.Error("stream = true, want false")
			}
			if len(req.Messages) != 2 || req.Messages[0].Role != "system" || req.Messages[1].Content != "extract" {
				t.Errorf("messages = %+v", req.Messages)
			}
			if !strings.Contains(string(req.Format), `"keywords"`) {
				t.Errorf("format = %s, want schema", req.Format)
			}
			if req.Options == nil || req.Options.NumCtx < 2048 || req.Options.NumCtx > 8192 {
				t.Errorf("options = %+v", req.Options)
			}
			io.WriteString(w, `{"message":{"role":"assistant","content":"{\"keywords\":[\"Go\"]}"},"done":true}`)
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	})

	out, err := h.Complete(context.Background(), CompletionRequest{System: "be terse", Prompt: "extract", Schema: schema})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if out != `{"keywords":["Go"]}` {
		t.Errorf("out = %q", out)
	}
	if h.ContextTokens() != 8192 {
		t.Errorf("ContextTokens = %d, want 8192", h.ContextTokens())
	}
}

func TestOllamaCompleteModelMissing(t *testing.T) {
	h := ollamaServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		io.WriteString(w, `{"error":"model \"llama3.2\" not found, try pulling it first"}`)
	})
	_, err := h.Complete(context.Background(), CompletionRequest{Prompt: "hi"})
	if err == nil {
		t.Fatal("expected error")
	}
	if got := Classify(err); got != ErrorTypeModelNotFound {
		t.Errorf("Classify = %v, want %v", got, ErrorTypeModelNotFound)
	}
	if !IsUnavailable(err) {
		t.Error("IsUnavailable = false, want true")
	}
}

func TestOllamaCompleteUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	h, _ := NewOllamaHost(url, "llama3.2", time.Second)
	_, err := h.Complete(context.Background(), CompletionRequest{Prompt: "hi"})
	var unavailable ErrUnavailable
	if !errors.As(err, &unavailable) {
		t.Fatalf("err = %v, want ErrUnavailable", err)
	}
	if !IsUnavailable(err) {
		t.Error("IsUnavailable = false, want true")
	}
}

func openAIServer(t *testing.T, handler http.HandlerFunc) *OpenAIHost {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	h, err := NewOpenAIHost(srv.URL, "", "qwen2.5-3b", 5*time.Second)
	if err != nil {
		t.Fatalf("NewOpenAIHost: %v", err)
	}
	return h
}

func TestOpenAIStatus(t *testing.T) {
	h := openAIServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/models" {
			t.Errorf("path = %s, want /v1/models", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"object":"list","data":[{"id":"qwen2.5-3b","object":"model"}]}`)
	})
	st, err := h.Status(context.Background())
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if !st.Reachable || !st.ModelPresent || st.Pullable {
		t.Errorf("status = %+v, want reachable, present, not pullable", st)
	}
}

func TestOpenAIPullNotSupported(t *testing.T) {
	h, _ := NewOpenAIHost("http://127.0.0.1:1", "", "m", time.Second)
	for _, err := range h.Pull(context.Background()) {
		var ns ErrNotSupported
		if !errors.As(err, &ns) {
			t.Errorf("err = %v, want ErrNotSupported", err)
		}
	}
}

func TestOpenAIComplete(t *testing.T) {
	h := openAIServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("path = %s", r.URL.Path)
		}
		var req map[string]any
		json.NewDecoder(r.Body).Decode(&req)
		rf, _ := req["response_format"].(map[string]any)
		if rf["type"] != "json_object" {
			t.Errorf("response_format = %v, want json_object", req["response_format"])
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"id":"1","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"{\"result\":true}"},"finish_reason":"stop"}]}`)
	})
	out, err := h.Complete(context.Background(), CompletionRequest{Prompt: "check", Schema: json.RawMessage(`{"type":"object"}`)})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if out != `{"result":true}` {
		t.Errorf("out = %q", out)
	}
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		msg  string
		want ErrorType
	}{
		{"", ErrorTypeUnknown},
		{`ollama returned status 404: model "x" not found, try pulling it first`, ErrorTypeModelNotFound},
		{"dial tcp 127.0.0.1:11434: connect: connection refused", ErrorTypeUnreachable},
		{"context deadline exceeded", ErrorTypeTimeout},
		{"context size has been exceeded", ErrorTypeContextOverflow},
		{"server busy, please retry", ErrorTypeOverloaded},
		{"error, status code: 401, message: invalid api key", ErrorTypeAuth},
		{"something odd", ErrorTypeUnknown},
	}
	for _, tt := range tests {
		if got := ClassifyError(tt.msg); got != tt.want {
			t.Errorf("ClassifyError(%q) = %v, want %v", tt.msg, got, tt.want)
		}
	}
}

func TestPullProgressPercent(t *testing.T) {
	tests := []struct {
		p    PullProgress
		want int
	}{
		{PullProgress{}, 0},
		{PullProgress{Completed: 1, Total: 3}, 33},
		{PullProgress{Completed: 2, Total: 3}, 67},
		{PullProgress{Completed: 5, Total: 3}, 100},
		{PullProgress{Done: true}, 100},
	}
	for _, tt := range tests {
		if got := tt.p.Percent(); got != tt.want {
			t.Errorf("Percent(%+v) = %d, want %d", tt.p, got, tt.want)
		}
	}
}

func TestNewHost(t *testing.T) {
	h, err := New(Options{BaseURL: "http://127.0.0.1:11434", Model: "llama3.2"})
	if err != nil || h.Name() != "ollama" {
		t.Errorf("New default = %v, %v", h, err)
	}
	h, err = New(Options{Host: "openai", BaseURL: "http://127.0.0.1:8080", Model: "m"})
	if err != nil || h.Name() != "openai" {
		t.Errorf("New openai = %v, %v", h, err)
	}
	if _, err := New(Options{Host: "gemini"}); err == nil {
		t.Error("expected error for unknown host")
	}
}
