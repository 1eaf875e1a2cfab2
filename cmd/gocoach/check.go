package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/roelfdiedericks/gocoach/internal/config"
	"github.com/roelfdiedericks/gocoach/internal/gateway"
	"github.com/roelfdiedericks/gocoach/internal/paths"
	"github.com/roelfdiedericks/gocoach/internal/stt"
)

var (
	okStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	failStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	warnStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	nameStyle = lipgloss.NewStyle().Width(16)
)

// CheckCmd reports the readiness of each engine.
type CheckCmd struct {
	Timeout time.Duration `default:"10s" help:"How long to wait for the model host."`
	Probe   bool          `help:"Record a short clip to confirm microphone access."`
}

type checkRow struct {
	name   string
	ok     bool
	detail string
}

func (r checkRow) String() string {
	mark := okStyle.Render("ok  ")
	if !r.ok {
		mark = failStyle.Render("FAIL")
	}
	return fmt.Sprintf("%s %s %s", mark, nameStyle.Render(r.name), r.detail)
}

func (c *CheckCmd) Run(g *Globals) error {
	cfg, err := loadConfig(g)
	if err != nil {
		return err
	}
	if cfg.Path != "" {
		fmt.Println("Config: " + cfg.Path)
	} else {
		fmt.Println("Config: defaults (run 'gocoach setup' to save one)")
	}
	for _, w := range cfg.Validate() {
		fmt.Println(warnStyle.Render("warning: " + w))
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.Timeout)
	defer cancel()

	gen := checkGeneration(ctx, cfg)
	rows := []checkRow{
		gen,
		checkRecorder(ctx, cfg, c.Probe),
		checkSTT(cfg),
		checkNarration(cfg),
	}
	fmt.Println()
	for _, r := range rows {
		fmt.Println(r)
	}
	if !gen.ok {
		return errors.New("the generation engine is not ready")
	}
	return nil
}

func checkGeneration(ctx context.Context, cfg *config.Config) checkRow {
	row := checkRow{name: "generation"}
	host, err := newHost(cfg)
	if err != nil {
		row.detail = err.Error()
		return row
	}
	gw, err := gateway.New(host, gateway.Options{})
	if err != nil {
		row.detail = err.Error()
		return row
	}
	av, err := gw.CheckAvailability(ctx)
	row.ok = av.Usable()
	row.detail = fmt.Sprintf("%s %s: %s", host.Name(), host.Model(), describeAvailability(av, err))
	return row
}

func checkRecorder(ctx context.Context, cfg *config.Config, probe bool) checkRow {
	rec := newRecorder(cfg)
	row := checkRow{name: "recorder", detail: rec.Command}
	if cfg.Capture.Recognizer == "typed" {
		return checkRow{name: "recorder", ok: true, detail: "not used (typed answers)"}
	}
	if err := rec.Available(); err != nil {
		row.detail = err.Error()
		return row
	}
	if probe {
		if err := rec.Probe(ctx); err != nil {
			row.detail = fmt.Sprintf("%s: %v", rec.Command, err)
			return row
		}
		row.detail += " (microphone ok)"
	}
	row.ok = true
	return row
}

func checkSTT(cfg *config.Config) checkRow {
	row := checkRow{name: "speech to text", detail: stt.Describe(cfg.STT)}
	if cfg.Capture.Recognizer == "typed" {
		row.ok = true
		row.detail = "not used (typed answers)"
		return row
	}
	if cfg.STT.Provider == "whispercpp" {
		dir, err := paths.ExpandTilde(cfg.STT.WhisperCpp.ModelsDir)
		if err != nil || !stt.IsModelDownloaded(dir, cfg.STT.WhisperCpp.Model) {
			row.detail += ", model missing (run 'gocoach models pull whisper')"
			return row
		}
	}
	row.ok = cfg.STT.Provider != ""
	return row
}

func checkNarration(cfg *config.Config) checkRow {
	synth := newSynthesizer(cfg)
	row := checkRow{name: "narration", detail: synth.Name()}
	if err := synth.Available(); err != nil {
		row.detail = fmt.Sprintf("%s: %v (questions are shown as text)", synth.Name(), err)
		return row
	}
	row.ok = true
	return row
}
