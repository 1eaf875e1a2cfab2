package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/roelfdiedericks/gocoach/internal/bus"
	"github.com/roelfdiedericks/gocoach/internal/capture"
	"github.com/roelfdiedericks/gocoach/internal/config"
	"github.com/roelfdiedericks/gocoach/internal/gateway"
	"github.com/roelfdiedericks/gocoach/internal/interview"
	"github.com/roelfdiedericks/gocoach/internal/jobdesc"
	"github.com/roelfdiedericks/gocoach/internal/llm"
	. "github.com/roelfdiedericks/gocoach/internal/logging"
	"github.com/roelfdiedericks/gocoach/internal/narration"
	"github.com/roelfdiedericks/gocoach/internal/paths"
	"github.com/roelfdiedericks/gocoach/internal/stt"
)

// app is the assembled runtime: hosts, gateway and orchestrator on one bus.
type app struct {
	cfg      *config.Config
	bus      *bus.Bus
	host     llm.Host
	gateway  *gateway.Gateway
	orch     *interview.Orchestrator
	typed    *capture.TypedRecognizer // set when answers are typed
	provider stt.Provider
	importer *jobdesc.Importer
	watcher  *config.Watcher
}

// loadConfig reads the config named by the flag, or discovers one.
func loadConfig(g *Globals) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if g.Config != "" {
		path, perr := paths.ExpandTilde(g.Config)
		if perr != nil {
			return nil, perr
		}
		cfg, err = config.LoadFile(path)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}

	lc := cfg.LoggingSettings()
	if g.LogLevel != "" {
		lc.Level = ParseLevel(g.LogLevel)
	}
	Init(lc)
	return cfg, nil
}

// newHost builds the configured model host.
func newHost(cfg *config.Config) (llm.Host, error) {
	return llm.New(llm.Options{
		Host:    cfg.Generation.Host,
		BaseURL: cfg.Generation.BaseURL,
		Model:   cfg.Generation.Model,
		APIKey:  cfg.Generation.APIKey,
		Timeout: time.Duration(cfg.Generation.TimeoutSeconds) * time.Second,
	})
}

// newSynthesizer picks the narration engine, falling back to text only.
func newSynthesizer(cfg *config.Config) narration.Synthesizer {
	switch cfg.Narration.Engine {
	case "openai":
		return narration.NewOpenAISynthesizer(narration.OpenAIOptions{
			APIKey:  cfg.Narration.OpenAI.APIKey,
			BaseURL: cfg.Narration.OpenAI.BaseURL,
			Model:   cfg.Narration.OpenAI.Model,
			Voice:   cfg.Narration.OpenAI.Voice,
			Player:  cfg.Narration.OpenAI.Player,
		})
	case "command":
		cmd := cfg.Narration.Command
		if cmd == "" {
			cmd = narration.DetectCommand()
		}
		if cmd == "" {
			L_warn("app: no speech command found, questions will not be read aloud")
			return narration.Disabled{}
		}
		return &narration.CommandSynthesizer{Command: cmd, Voice: cfg.Narration.Voice, Rate: cfg.Narration.Rate}
	}
	return narration.Disabled{}
}

func newRecorder(cfg *config.Config) *capture.ExecRecorder {
	return &capture.ExecRecorder{
		Command:    cfg.Capture.Recorder,
		Device:     cfg.Capture.Device,
		SampleRate: cfg.Capture.SampleRate,
	}
}

// newCapture builds the microphone adapter. Without a working recorder or
// STT provider it falls back to typed answers.
func newCapture(cfg *config.Config, forceTyped bool) (*capture.Adapter, *capture.TypedRecognizer, stt.Provider) {
	if !forceTyped && cfg.Capture.Recognizer == "segment" {
		rec := newRecorder(cfg)
		provider, err := stt.New(cfg.STT)
		switch {
		case err != nil:
			L_warn("app: speech to text unavailable, using typed answers", "error", err)
		case rec.Available() != nil:
			L_warn("app: recorder unavailable, using typed answers", "recorder", rec.Command, "error", rec.Available())
			_ = provider.Close()
		default:
			seg := &capture.SegmentRecognizer{
				Recorder:        rec,
				Provider:        provider,
				SegmentSeconds:  cfg.Capture.SegmentSeconds,
				SilenceSegments: cfg.Capture.SilenceSegments,
				EndAfter:        time.Duration(cfg.Capture.EndAfterSeconds) * time.Second,
				TempDir:         os.TempDir(),
			}
			L_info("app: microphone capture", "recorder", rec.Command, "stt", provider.Name())
			return capture.NewAdapter(seg, rec), nil, provider
		}
	}
	typed := capture.NewTypedRecognizer()
	return capture.NewAdapter(typed, typed), typed, nil
}

// readDescription loads the configured job description file, if any.
func readDescription(cfg *config.Config, override string) string {
	path := override
	if path == "" {
		path = cfg.Interview.JobDescriptionFile
	}
	if path == "" {
		return ""
	}
	expanded, err := paths.ExpandTilde(path)
	if err != nil {
		L_warn("app: bad job description path", "path", path, "error", err)
		return ""
	}
	data, err := os.ReadFile(expanded)
	if err != nil {
		L_warn("app: failed to read job description", "path", expanded, "error", err)
		return ""
	}
	return strings.TrimSpace(string(data))
}

// newApp wires every component and starts the orchestrator.
func newApp(ctx context.Context, cfg *config.Config, opts runOptions) (*app, error) {
	b := bus.New(64)

	host, err := newHost(cfg)
	if err != nil {
		return nil, err
	}
	gw, err := gateway.New(host, gateway.Options{
		RequireUserActivation: cfg.RequiresActivation(),
		Temperature:           cfg.Generation.Temperature,
		MaxDescriptionTokens:  cfg.Generation.MaxDescriptionTokens,
		Bus:                   b,
	})
	if err != nil {
		return nil, err
	}

	adapter, typed, provider := newCapture(cfg, opts.typed)
	synth := newSynthesizer(cfg)
	if err := synth.Available(); err != nil {
		L_warn("app: narration unavailable, questions are shown as text", "engine", synth.Name(), "error", err)
	}
	narrator := narration.NewAdapter(synth)
	importer := jobdesc.New(jobdesc.Options{
		Timeout:   time.Duration(cfg.Import.TimeoutSeconds) * time.Second,
		MaxTokens: cfg.Generation.MaxDescriptionTokens,
		Browser:   cfg.Import.Browser,
		Renderer: &jobdesc.RodRenderer{
			Bin:       cfg.Import.BrowserBin,
			NoSandbox: cfg.Import.NoSandbox,
			Timeout:   time.Duration(cfg.Import.TimeoutSeconds) * time.Second,
		},
	})

	orch, err := interview.New(interview.Options{
		Capture:   adapter,
		Narrator:  narrator,
		Generator: gw,
		Importer:  importer,
		Bus:       b,
		Settings:  interview.SettingsFrom(cfg, readDescription(cfg, opts.description)),
		Ambient:   cfg.AmbientEnabled() && !opts.noAmbient,
	})
	if err != nil {
		if provider != nil {
			_ = provider.Close()
		}
		return nil, err
	}
	orch.RegisterCommands(b)

	a := &app{cfg: cfg, bus: b, host: host, gateway: gw, orch: orch, typed: typed, provider: provider, importer: importer}

	if cfg.Path != "" {
		w, err := config.NewWatcher(cfg.Path, b, func(c *config.Config) {
			if orch.ApplySettings(interview.SettingsFrom(c, "")) {
				L_info("app: settings reloaded from config")
			}
		})
		if err != nil {
			L_warn("app: config watcher unavailable", "error", err)
		} else if err := w.Start(ctx); err != nil {
			L_warn("app: config watcher failed to start", "error", err)
		} else {
			a.watcher = w
		}
	}

	orch.Start()
	L_info("app: ready", "host", host.Name(), "model", host.Model(), "typed", typed != nil)
	return a, nil
}

// Close stops the orchestrator and releases host handles.
func (a *app) Close() {
	if a.watcher != nil {
		a.watcher.Stop()
	}
	a.orch.Close()
	if err := a.importer.Close(); err != nil {
		L_debug("app: browser close failed", "error", err)
	}
	if a.provider != nil {
		if err := a.provider.Close(); err != nil {
			L_debug("app: stt close failed", "error", err)
		}
	}
}

func describeAvailability(av gateway.Availability, err error) string {
	if err != nil {
		return fmt.Sprintf("%s (%v)", av.Label(), err)
	}
	return av.Label()
}
