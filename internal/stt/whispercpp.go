package stt

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"sync"

	"github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	. "github.com/roelfdiedericks/gocoach/internal/logging"
)

// WhisperCppProvider implements STT using whisper.cpp.
type WhisperCppProvider struct {
	model  whisper.Model
	config WhisperCppConfig
	mu     sync.Mutex // one inference at a time per model
}

// WhisperCppConfig holds configuration for Whisper.cpp.
type WhisperCppConfig struct {
	ModelsDir string `json:"modelsDir" toml:"modelsDir"` // Directory containing whisper models
	Model     string `json:"model" toml:"model"`         // Model name (e.g., "ggml-base.en.bin")
	Language  string `json:"language" toml:"language"`   // Language code (e.g., "en", "auto" for detection)
	Threads   uint   `json:"threads,omitempty" toml:"threads,omitempty"`
}

// NewWhisperCppProvider loads the model from disk.
func NewWhisperCppProvider(cfg WhisperCppConfig) (*WhisperCppProvider, error) {
	if cfg.ModelsDir == "" {
		return nil, fmt.Errorf("whisper.cpp modelsDir not configured")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("whisper.cpp model not configured")
	}

	modelPath := filepath.Join(cfg.ModelsDir, cfg.Model)
	L_info("stt: loading whisper.cpp model", "path", modelPath)

	model, err := whisper.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("load whisper model: %w", err)
	}

	L_debug("stt: whisper.cpp model loaded", "multilingual", model.IsMultilingual())
	return &WhisperCppProvider{model: model, config: cfg}, nil
}

// Transcribe converts an audio file to text using Whisper.cpp.
func (w *WhisperCppProvider) Transcribe(ctx context.Context, filePath string) (string, error) {
	samples, err := ConvertToFloat32(ctx, filePath)
	if err != nil {
		return "", fmt.Errorf("convert audio: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	wctx, err := w.model.NewContext()
	if err != nil {
		return "", fmt.Errorf("create whisper context: %w", err)
	}

	if lang := w.config.Language; lang != "" {
		if err := wctx.SetLanguage(lang); err != nil {
			L_debug("stt: language not supported by model", "language", lang, "error", err)
		}
	}
	if w.config.Threads > 0 {
		wctx.SetThreads(w.config.Threads)
	}

	// whisper.cpp has no cancellation hook; abort between segments instead
	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		return "", fmt.Errorf("whisper process: %w", err)
	}

	var text strings.Builder
	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		segment, err := wctx.NextSegment()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("get segment: %w", err)
		}
		text.WriteString(segment.Text)
		text.WriteByte(' ')
	}

	result := CleanTranscript(text.String())
	L_trace("stt: whisper.cpp transcription complete", "samples", len(samples), "length", len(result))
	return result, nil
}

// Name returns the provider name.
func (w *WhisperCppProvider) Name() string {
	return "whispercpp"
}

// Close releases the whisper model.
func (w *WhisperCppProvider) Close() error {
	return w.model.Close()
}
