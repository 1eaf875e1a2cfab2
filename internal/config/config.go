// Package config loads, validates, saves and watches the gocoach configuration.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"dario.cat/mergo"
	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"

	. "github.com/roelfdiedericks/gocoach/internal/logging"
	"github.com/roelfdiedericks/gocoach/internal/paths"
	"github.com/roelfdiedericks/gocoach/internal/stt"
)

// Question count bounds for a session.
const (
	MinQuestionCount = 5
	MaxQuestionCount = 15
)

// Difficulties lists the accepted difficulty values.
var Difficulties = []string{"easy", "medium", "hard"}

// Config represents the merged gocoach configuration
type Config struct {
	Interview  InterviewConfig  `json:"interview" toml:"interview"`
	Generation GenerationConfig `json:"generation" toml:"generation"`
	Capture    CaptureConfig    `json:"capture" toml:"capture"`
	STT        stt.Config       `json:"stt" toml:"stt"`
	Narration  NarrationConfig  `json:"narration" toml:"narration"`
	Import     ImportConfig     `json:"import" toml:"import"`
	Web        WebConfig        `json:"web" toml:"web"`
	Logging    LoggingConfig    `json:"logging" toml:"logging"`

	// Path is where the config was loaded from ("" when built from defaults).
	Path string `json:"-" toml:"-"`
}

// InterviewConfig holds the session defaults shown in the setup form.
type InterviewConfig struct {
	CandidateName      string `json:"candidateName" toml:"candidateName"`
	QuestionCount      int    `json:"questionCount" toml:"questionCount"`
	Difficulty         string `json:"difficulty" toml:"difficulty"`
	JobDescriptionFile string `json:"jobDescriptionFile,omitempty" toml:"jobDescriptionFile,omitempty"`
	AmbientListening   *bool  `json:"ambientListening,omitempty" toml:"ambientListening,omitempty"`
}

// GenerationConfig selects the local model host.
type GenerationConfig struct {
	Host                  string  `json:"host" toml:"host"` // "ollama" or "openai"
	BaseURL               string  `json:"baseURL" toml:"baseURL"`
	Model                 string  `json:"model" toml:"model"`
	APIKey                string  `json:"apiKey,omitempty" toml:"apiKey,omitempty"`
	Temperature           float64 `json:"temperature,omitempty" toml:"temperature,omitempty"`
	TimeoutSeconds        int     `json:"timeoutSeconds" toml:"timeoutSeconds"`
	MaxDescriptionTokens  int     `json:"maxDescriptionTokens" toml:"maxDescriptionTokens"`
	RequireUserActivation *bool   `json:"requireUserActivation,omitempty" toml:"requireUserActivation,omitempty"`
}

// CaptureConfig configures the microphone side.
type CaptureConfig struct {
	Recognizer      string `json:"recognizer" toml:"recognizer"` // "segment" or "typed"
	Recorder        string `json:"recorder" toml:"recorder"`     // "arecord", "sox", "ffmpeg"
	Device          string `json:"device,omitempty" toml:"device,omitempty"`
	SampleRate      int    `json:"sampleRate" toml:"sampleRate"`
	SegmentSeconds  int    `json:"segmentSeconds" toml:"segmentSeconds"`
	SilenceSegments int    `json:"silenceSegments" toml:"silenceSegments"` // quiet segments before a result is final
	EndAfterSeconds int    `json:"endAfterSeconds" toml:"endAfterSeconds"` // silence before recognition ends
}

// NarrationConfig configures question playback.
type NarrationConfig struct {
	Engine  string                `json:"engine" toml:"engine"` // "command", "openai", "none"
	Command string                `json:"command,omitempty" toml:"command,omitempty"`
	Voice   string                `json:"voice,omitempty" toml:"voice,omitempty"`
	Rate    int                   `json:"rate,omitempty" toml:"rate,omitempty"`
	OpenAI  NarrationOpenAIConfig `json:"openai" toml:"openai"`
}

// NarrationOpenAIConfig configures an OpenAI-compatible speech endpoint.
type NarrationOpenAIConfig struct {
	APIKey  string `json:"apiKey,omitempty" toml:"apiKey,omitempty"`
	BaseURL string `json:"baseURL,omitempty" toml:"baseURL,omitempty"`
	Model   string `json:"model" toml:"model"`
	Voice   string `json:"voice" toml:"voice"`
	Player  string `json:"player,omitempty" toml:"player,omitempty"`
}

// ImportConfig configures job description import from a link.
type ImportConfig struct {
	Browser        string `json:"browser" toml:"browser"` // "auto", "always" or "never"
	BrowserBin     string `json:"browserBin,omitempty" toml:"browserBin,omitempty"`
	NoSandbox      bool   `json:"noSandbox,omitempty" toml:"noSandbox,omitempty"` // needed when running as root
	TimeoutSeconds int    `json:"timeoutSeconds" toml:"timeoutSeconds"`
}

// WebConfig configures the websocket surface.
type WebConfig struct {
	Listen string `json:"listen" toml:"listen"`
}

// LoggingConfig mirrors logging.LogConfig in file form.
type LoggingConfig struct {
	Level      string `json:"level" toml:"level"`
	TimeFormat string `json:"timeFormat,omitempty" toml:"timeFormat,omitempty"`
	ShowCaller bool   `json:"showCaller,omitempty" toml:"showCaller,omitempty"`
	File       string `json:"file,omitempty" toml:"file,omitempty"`
}

// Defaults returns the built-in configuration.
func Defaults() *Config {
	return &Config{
		Interview: InterviewConfig{
			QuestionCount:    MinQuestionCount,
			Difficulty:       "medium",
			AmbientListening: boolPtr(true),
		},
		Generation: GenerationConfig{
			Host:                  "ollama",
			BaseURL:               "http://127.0.0.1:11434",
			Model:                 "llama3.2:3b",
			TimeoutSeconds:        120,
			MaxDescriptionTokens:  3000,
			RequireUserActivation: boolPtr(true),
		},
		Capture: CaptureConfig{
			Recognizer:      "segment",
			Recorder:        "arecord",
			SampleRate:      16000,
			SegmentSeconds:  3,
			SilenceSegments: 1,
			EndAfterSeconds: 30,
		},
		STT: stt.Config{
			Provider: "whispercpp",
			WhisperCpp: stt.WhisperCppConfig{
				ModelsDir: "~/.gocoach/stt/whisper",
				Model:     "ggml-base.en.bin",
				Language:  "en",
			},
			OpenAI: stt.OpenAIConfig{Model: "whisper-1"},
			Groq:   stt.GroqConfig{Model: "whisper-large-v3-turbo"},
		},
		Narration: NarrationConfig{
			Engine: "command",
			OpenAI: NarrationOpenAIConfig{Model: "tts-1", Voice: "alloy"},
		},
		Import:  ImportConfig{Browser: "auto", TimeoutSeconds: 30},
		Web:     WebConfig{Listen: "127.0.0.1:3390"},
		Logging: LoggingConfig{Level: "info"},
	}
}

func boolPtr(b bool) *bool { return &b }

// AmbientEnabled reports whether the warm microphone loop is on.
func (c *Config) AmbientEnabled() bool {
	return c.Interview.AmbientListening == nil || *c.Interview.AmbientListening
}

// RequiresActivation reports whether model downloads need an explicit user action.
func (c *Config) RequiresActivation() bool {
	return c.Generation.RequireUserActivation == nil || *c.Generation.RequireUserActivation
}

// Load reads configuration with this priority:
// 1. ./gocoach.{json,toml} (current directory)
// 2. ~/.gocoach/gocoach.{json,toml}
// then fills unset fields from Defaults, applies environment overrides and validates.
// A missing config file is not an error.
func Load() (*Config, error) {
	loadDotEnv()

	path, err := paths.ConfigPath()
	if err != nil {
		return nil, err
	}
	return LoadFile(path)
}

// LoadFile loads a specific file ("" means defaults only).
func LoadFile(path string) (*Config, error) {
	cfg := &Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err := decode(path, data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", filepath.Base(path), err)
		}
		L_debug("config: loaded", "path", path)
	} else {
		L_debug("config: no config file, using defaults")
	}

	// WithoutDereference keeps an explicit false in *bool fields
	if err := mergo.Merge(cfg, Defaults(), mergo.WithoutDereference); err != nil {
		return nil, fmt.Errorf("failed to merge defaults: %w", err)
	}
	applyEnv(cfg)

	for _, w := range cfg.Validate() {
		L_warn("config: "+w, "path", path)
	}
	cfg.Path = path
	return cfg, nil
}

func decode(path string, data []byte, cfg *Config) error {
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		_, err := toml.Decode(string(data), cfg)
		return err
	}
	return json.Unmarshal(data, cfg)
}

// loadDotEnv loads ./.env and ~/.gocoach/.env. Existing variables win.
func loadDotEnv() {
	candidates := []string{".env"}
	if p, err := paths.DataPath(".env"); err == nil {
		candidates = append(candidates, p)
	}
	for _, p := range candidates {
		if err := godotenv.Load(p); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				L_warn("config: failed to load env file", "path", p, "error", err)
			}
			continue
		}
		L_debug("config: loaded env file", "path", p)
	}
}

// applyEnv overlays environment variables onto cfg.
func applyEnv(cfg *Config) {
	setString := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	setInt := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				L_warn("config: ignoring non-numeric env value", "key", key, "value", v)
				return
			}
			*dst = n
		}
	}

	setString("GOCOACH_CANDIDATE_NAME", &cfg.Interview.CandidateName)
	setInt("GOCOACH_QUESTION_COUNT", &cfg.Interview.QuestionCount)
	setString("GOCOACH_DIFFICULTY", &cfg.Interview.Difficulty)
	setString("GOCOACH_GENERATION_HOST", &cfg.Generation.Host)
	setString("GOCOACH_MODEL", &cfg.Generation.Model)
	setString("OLLAMA_HOST", &cfg.Generation.BaseURL)
	setString("GOCOACH_BASE_URL", &cfg.Generation.BaseURL)
	setString("GOCOACH_LOG_LEVEL", &cfg.Logging.Level)
	setString("GOCOACH_LISTEN", &cfg.Web.Listen)
	setString("OPENAI_API_KEY", &cfg.STT.OpenAI.APIKey)
	setString("OPENAI_API_KEY", &cfg.Narration.OpenAI.APIKey)
	setString("GROQ_API_KEY", &cfg.STT.Groq.APIKey)

	if cfg.Generation.Host == "ollama" && cfg.Generation.BaseURL != "" && !strings.Contains(cfg.Generation.BaseURL, "://") {
		// OLLAMA_HOST is commonly given as host:port
		cfg.Generation.BaseURL = "http://" + cfg.Generation.BaseURL
	}
}

// Validate clamps out-of-range values in place and returns a warning per fix.
func (c *Config) Validate() []string {
	var warnings []string

	if n := c.Interview.QuestionCount; n < MinQuestionCount || n > MaxQuestionCount {
		clamped := ClampQuestionCount(n)
		warnings = append(warnings, fmt.Sprintf("questionCount %d out of range, using %d", n, clamped))
		c.Interview.QuestionCount = clamped
	}

	c.Interview.Difficulty = strings.ToLower(strings.TrimSpace(c.Interview.Difficulty))
	if !ValidDifficulty(c.Interview.Difficulty) {
		warnings = append(warnings, fmt.Sprintf("unknown difficulty %q, using medium", c.Interview.Difficulty))
		c.Interview.Difficulty = "medium"
	}

	switch c.Generation.Host {
	case "ollama", "openai":
	default:
		warnings = append(warnings, fmt.Sprintf("unknown generation host %q, using ollama", c.Generation.Host))
		c.Generation.Host = "ollama"
	}

	switch c.Capture.Recognizer {
	case "segment", "typed":
	default:
		warnings = append(warnings, fmt.Sprintf("unknown recognizer %q, using segment", c.Capture.Recognizer))
		c.Capture.Recognizer = "segment"
	}

	switch c.Narration.Engine {
	case "command", "openai", "none":
	default:
		warnings = append(warnings, fmt.Sprintf("unknown narration engine %q, using command", c.Narration.Engine))
		c.Narration.Engine = "command"
	}

	switch c.Import.Browser {
	case "auto", "always", "never":
	default:
		warnings = append(warnings, fmt.Sprintf("unknown import browser mode %q, using auto", c.Import.Browser))
		c.Import.Browser = "auto"
	}

	if !validLevel(c.Logging.Level) {
		warnings = append(warnings, fmt.Sprintf("unknown log level %q, using info", c.Logging.Level))
		c.Logging.Level = "info"
	}

	return warnings
}

// ClampQuestionCount forces n into [MinQuestionCount, MaxQuestionCount].
func ClampQuestionCount(n int) int {
	if n < MinQuestionCount {
		return MinQuestionCount
	}
	if n > MaxQuestionCount {
		return MaxQuestionCount
	}
	return n
}

// ValidDifficulty reports whether d is one of Difficulties.
func ValidDifficulty(d string) bool {
	for _, v := range Difficulties {
		if v == d {
			return true
		}
	}
	return false
}

func validLevel(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace", "debug", "info", "warn", "warning", "error", "fatal":
		return true
	}
	return false
}

// LoggingSettings converts the file form into logging.LogConfig.
func (c *Config) LoggingSettings() *LogConfig {
	lc := DefaultConfig()
	lc.Level = ParseLevel(c.Logging.Level)
	if c.Logging.TimeFormat != "" {
		lc.TimeFormat = c.Logging.TimeFormat
	}
	lc.ShowCaller = c.Logging.ShowCaller
	return lc
}

// Save writes cfg to its Path (or the default location), keeping rotating backups.
// The on-disk format follows the file extension.
func Save(cfg *Config) (string, error) {
	path := cfg.Path
	if path == "" {
		p, err := paths.DefaultConfigPath()
		if err != nil {
			return "", err
		}
		path = p
	}

	var data []byte
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		var sb strings.Builder
		if err := toml.NewEncoder(&sb).Encode(cfg); err != nil {
			return "", fmt.Errorf("failed to encode toml: %w", err)
		}
		data = []byte(sb.String())
	} else {
		b, err := json.MarshalIndent(cfg, "", "  ")
		if err != nil {
			return "", fmt.Errorf("failed to marshal JSON: %w", err)
		}
		data = b
	}

	if err := BackupAndWrite(path, data, DefaultBackupCount); err != nil {
		return "", err
	}
	cfg.Path = path
	return path, nil
}
