// Package setup provides the interactive setup form for gocoach.
package setup

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/huh"

	"github.com/roelfdiedericks/gocoach/internal/config"
	. "github.com/roelfdiedericks/gocoach/internal/logging"
)

// ErrCancelled is returned when the user leaves the form without saving.
var ErrCancelled = errors.New("setup cancelled")

// isAbort checks if the error is a user abort (Escape pressed)
func isAbort(err error) bool {
	return errors.Is(err, huh.ErrUserAborted)
}

// answers holds the form's editable values.
type answers struct {
	Name          string
	QuestionCount int
	Difficulty    string
	Ambient       bool

	Host    string
	BaseURL string
	Model   string
	APIKey  string

	Recognizer string
	Recorder   string
	STT        string
	Narration  string

	Listen string
	Save   bool
}

func answersFrom(cfg *config.Config) *answers {
	return &answers{
		Name:          cfg.Interview.CandidateName,
		QuestionCount: config.ClampQuestionCount(cfg.Interview.QuestionCount),
		Difficulty:    cfg.Interview.Difficulty,
		Ambient:       cfg.AmbientEnabled(),
		Host:          cfg.Generation.Host,
		BaseURL:       cfg.Generation.BaseURL,
		Model:         cfg.Generation.Model,
		APIKey:        cfg.Generation.APIKey,
		Recognizer:    cfg.Capture.Recognizer,
		Recorder:      cfg.Capture.Recorder,
		STT:           cfg.STT.Provider,
		Narration:     cfg.Narration.Engine,
		Listen:        cfg.Web.Listen,
		Save:          true,
	}
}

// applyTo copies the answers into cfg and reports validation warnings.
func (a *answers) applyTo(cfg *config.Config) []string {
	ambient := a.Ambient
	cfg.Interview.CandidateName = strings.TrimSpace(a.Name)
	cfg.Interview.QuestionCount = a.QuestionCount
	cfg.Interview.Difficulty = a.Difficulty
	cfg.Interview.AmbientListening = &ambient
	cfg.Generation.Host = a.Host
	cfg.Generation.BaseURL = strings.TrimSpace(a.BaseURL)
	cfg.Generation.Model = strings.TrimSpace(a.Model)
	cfg.Generation.APIKey = strings.TrimSpace(a.APIKey)
	cfg.Capture.Recognizer = a.Recognizer
	cfg.Capture.Recorder = a.Recorder
	cfg.STT.Provider = a.STT
	cfg.Narration.Engine = a.Narration
	cfg.Web.Listen = strings.TrimSpace(a.Listen)
	return cfg.Validate()
}

func countOptions() []huh.Option[int] {
	opts := make([]huh.Option[int], 0, config.MaxQuestionCount-config.MinQuestionCount+1)
	for n := config.MinQuestionCount; n <= config.MaxQuestionCount; n++ {
		opts = append(opts, huh.NewOption(strconv.Itoa(n), n))
	}
	return opts
}

func notBlank(what string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%s is required", what)
		}
		return nil
	}
}

func (a *answers) form() *huh.Form {
	return huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Your name").
				Description("Used to personalise the first question").
				Value(&a.Name),
			huh.NewSelect[int]().
				Title("Questions per interview").
				Options(countOptions()...).
				Value(&a.QuestionCount),
			huh.NewSelect[string]().
				Title("Difficulty").
				Options(huh.NewOptions(config.Difficulties...)...).
				Value(&a.Difficulty),
			huh.NewConfirm().
				Title("Keep the microphone warm between interviews?").
				Value(&a.Ambient),
		).Title("Interview"),

		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Model host").
				Options(
					huh.NewOption("Ollama", "ollama"),
					huh.NewOption("OpenAI-compatible server (llama.cpp, LM Studio, vLLM)", "openai"),
				).
				Value(&a.Host),
			huh.NewInput().
				Title("Base URL").
				Placeholder("http://127.0.0.1:11434").
				Validate(notBlank("base URL")).
				Value(&a.BaseURL),
			huh.NewInput().
				Title("Model").
				Placeholder("llama3.2:3b").
				Validate(notBlank("model")).
				Value(&a.Model),
			huh.NewInput().
				Title("API key (optional)").
				EchoMode(huh.EchoModePassword).
				Value(&a.APIKey),
		).Title("Generation"),

		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Answers come from").
				Options(
					huh.NewOption("Microphone", "segment"),
					huh.NewOption("Keyboard", "typed"),
				).
				Value(&a.Recognizer),
			huh.NewSelect[string]().
				Title("Recorder").
				Options(huh.NewOptions("arecord", "sox", "ffmpeg")...).
				Value(&a.Recorder),
			huh.NewSelect[string]().
				Title("Speech to text").
				Options(
					huh.NewOption("whisper.cpp (on device)", "whispercpp"),
					huh.NewOption("OpenAI", "openai"),
					huh.NewOption("Groq", "groq"),
				).
				Value(&a.STT),
			huh.NewSelect[string]().
				Title("Read questions aloud with").
				Options(
					huh.NewOption("espeak / say", "command"),
					huh.NewOption("OpenAI speech", "openai"),
					huh.NewOption("Nothing (text only)", "none"),
				).
				Value(&a.Narration),
		).Title("Speech"),

		huh.NewGroup(
			huh.NewInput().
				Title("Web listen address").
				Description("Used by 'gocoach serve'").
				Value(&a.Listen),
			huh.NewConfirm().
				Title("Save configuration?").
				Value(&a.Save),
		).Title("Save"),
	)
}

// Run shows the setup form for cfg and saves the result. cfg is updated in
// place; the returned path is where it was written.
func Run(cfg *config.Config) (string, error) {
	a := answersFrom(cfg)
	if err := a.form().Run(); err != nil {
		if isAbort(err) {
			return "", ErrCancelled
		}
		return "", err
	}
	if !a.Save {
		return "", ErrCancelled
	}

	for _, w := range a.applyTo(cfg) {
		L_warn("setup: " + w)
	}
	path, err := config.Save(cfg)
	if err != nil {
		return "", fmt.Errorf("failed to save config: %w", err)
	}
	L_info("setup: config saved", "path", path)
	return path, nil
}
