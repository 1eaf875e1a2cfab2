package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/bubbles/progress"

	"github.com/roelfdiedericks/gocoach/internal/config"
	"github.com/roelfdiedericks/gocoach/internal/paths"
	"github.com/roelfdiedericks/gocoach/internal/stt"
)

// ModelsCmd groups the model subcommands.
type ModelsCmd struct {
	List ModelsListCmd `cmd:"" default:"1" help:"List speech and generation models."`
	Pull ModelsPullCmd `cmd:"" help:"Download a model."`
}

// ModelsListCmd prints the whisper catalog and the generation model status.
type ModelsListCmd struct{}

func (c *ModelsListCmd) Run(g *Globals) error {
	cfg, err := loadConfig(g)
	if err != nil {
		return err
	}
	dir, err := whisperDir(cfg)
	if err != nil {
		return err
	}

	fmt.Println("Speech to text (whisper.cpp) in " + dir)
	for _, opt := range stt.ModelOptions(dir) {
		mark := "  "
		if opt.Value == cfg.STT.WhisperCpp.Model {
			mark = "* "
		}
		fmt.Printf("%s%-28s %s\n", mark, opt.Value, opt.Label)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	fmt.Println()
	fmt.Println("Generation")
	fmt.Println("  " + checkGeneration(ctx, cfg).detail)
	return nil
}

// ModelsPullCmd downloads the whisper model or asks the host to pull the
// generation model.
type ModelsPullCmd struct {
	Kind string `arg:"" enum:"whisper,generation" help:"Which model to download (whisper, generation)."`
	Name string `arg:"" optional:"" help:"Whisper model file name (default: configured model)."`
}

func (c *ModelsPullCmd) Run(g *Globals) error {
	cfg, err := loadConfig(g)
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	bar := progress.New(progress.WithDefaultGradient(), progress.WithWidth(40))
	show := func(pct int) {
		fmt.Printf("\r%s %3d%%", bar.ViewAs(float64(pct)/100), pct)
	}

	if c.Kind == "generation" {
		return pullGeneration(ctx, cfg, show)
	}

	name := c.Name
	if name == "" {
		name = cfg.STT.WhisperCpp.Model
	}
	model := stt.GetModel(name)
	if model == nil {
		return fmt.Errorf("unknown whisper model %q (see 'gocoach models list')", name)
	}
	dir, err := whisperDir(cfg)
	if err != nil {
		return err
	}
	fmt.Printf("Downloading %s (%s)\n", model.Label, model.Size)
	last := -1
	path, err := stt.DownloadModel(ctx, model, dir, func(done, total int64) {
		if total <= 0 {
			total = model.SizeBytes
		}
		if total <= 0 {
			return
		}
		pct := int(done * 100 / total)
		if pct != last {
			last = pct
			show(pct)
		}
	})
	fmt.Println()
	if err != nil {
		return err
	}
	fmt.Println("Saved " + path)
	return nil
}

func pullGeneration(ctx context.Context, cfg *config.Config, show func(int)) error {
	host, err := newHost(cfg)
	if err != nil {
		return err
	}
	st, err := host.Status(ctx)
	if err != nil {
		return err
	}
	switch {
	case !st.Reachable:
		return fmt.Errorf("%s is not reachable at the configured address", host.Name())
	case st.ModelPresent:
		fmt.Printf("%s is already available\n", host.Model())
		return nil
	case !st.Pullable:
		return fmt.Errorf("%s cannot download models, fetch %s with the server's own tools", host.Name(), host.Model())
	}

	fmt.Printf("Pulling %s from %s\n", host.Model(), host.Name())
	for p, err := range host.Pull(ctx) {
		if err != nil {
			fmt.Println()
			return err
		}
		show(p.Percent())
		if p.Done {
			fmt.Println()
			fmt.Println("Done")
			return nil
		}
	}
	fmt.Println()
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return errors.New("download ended before completion")
}

func whisperDir(cfg *config.Config) (string, error) {
	dir := cfg.STT.WhisperCpp.ModelsDir
	if dir == "" {
		return paths.WhisperModelsDir()
	}
	return paths.ExpandTilde(dir)
}
