// Package main is the gocoach CLI entry point.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"
	"golang.org/x/term"

	"github.com/roelfdiedericks/gocoach/internal/channels/tui"
	"github.com/roelfdiedericks/gocoach/internal/channels/web"
	. "github.com/roelfdiedericks/gocoach/internal/logging"
	"github.com/roelfdiedericks/gocoach/internal/metrics"
	"github.com/roelfdiedericks/gocoach/internal/paths"
	"github.com/roelfdiedericks/gocoach/internal/setup"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

// Globals are flags shared by every command.
type Globals struct {
	Config   string `short:"c" help:"Config file (default: discovered)." type:"path"`
	LogLevel string `name:"log-level" help:"Override the log level (trace, debug, info, warn, error)."`
}

// CLI is the command tree.
type CLI struct {
	Globals

	Run     RunCmd     `cmd:"" default:"1" help:"Practice an interview in the terminal."`
	Serve   ServeCmd   `cmd:"" help:"Serve the browser surface."`
	Setup   SetupCmd   `cmd:"" help:"Edit the configuration interactively."`
	Check   CheckCmd   `cmd:"" help:"Report which engines are ready."`
	Models  ModelsCmd  `cmd:"" help:"List or download models."`
	Version VersionCmd `cmd:"" help:"Print the version."`
}

// runOptions are the per-command knobs newApp understands.
type runOptions struct {
	typed       bool
	noAmbient   bool
	description string
}

// RunCmd runs the terminal surface, or a line console when stdout is not a terminal.
type RunCmd struct {
	Typed       bool   `help:"Type answers instead of speaking them."`
	NoAmbient   bool   `name:"no-ambient" help:"Do not keep the microphone open between interviews."`
	Description string `short:"d" help:"Job description file." type:"path"`
	Plain       bool   `help:"Use the line console even on a terminal."`
}

func (c *RunCmd) Run(g *Globals) error {
	cfg, err := loadConfig(g)
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, runOptions{typed: c.Typed, noAmbient: c.NoAmbient, description: c.Description})
	if err != nil {
		return err
	}
	defer a.Close()
	defer logMetrics()

	if c.Plain || !term.IsTerminal(int(os.Stdout.Fd())) {
		return runConsole(ctx, a, os.Stdin, os.Stdout)
	}
	logFile := ""
	if cfg.Logging.File != "" {
		if logFile, err = paths.ExpandTilde(cfg.Logging.File); err != nil {
			return err
		}
	}
	return tui.Run(ctx, tui.Options{Bus: a.bus, Typed: a.typed, LogFile: logFile})
}

// ServeCmd serves the browser surface until interrupted.
type ServeCmd struct {
	Listen      string `short:"l" help:"Listen address (overrides config)."`
	Description string `short:"d" help:"Job description file." type:"path"`
	Typed       bool   `help:"Type answers instead of speaking them."`
}

func (c *ServeCmd) Run(g *Globals) error {
	cfg, err := loadConfig(g)
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, runOptions{typed: c.Typed, description: c.Description})
	if err != nil {
		return err
	}
	defer a.Close()
	defer logMetrics()

	listen := c.Listen
	if listen == "" {
		listen = cfg.Web.Listen
	}
	srv := web.NewServer(web.Config{Listen: listen}, a.bus)
	if err := srv.Start(); err != nil {
		return err
	}
	fmt.Printf("gocoach is listening on http://%s\n", srv.Addr())

	<-ctx.Done()
	L_info("serve: shutting down")
	SetShuttingDown()
	return srv.Stop()
}

// SetupCmd opens the setup form.
type SetupCmd struct{}

func (c *SetupCmd) Run(g *Globals) error {
	cfg, err := loadConfig(g)
	if err != nil {
		return err
	}
	path, err := setup.Run(cfg)
	if errors.Is(err, setup.ErrCancelled) {
		fmt.Println("Setup cancelled, nothing saved.")
		return nil
	}
	if err != nil {
		return err
	}
	fmt.Printf("Saved %s\n", path)
	return nil
}

// VersionCmd prints the build version.
type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	fmt.Println("gocoach " + version)
	return nil
}

func logMetrics() {
	for _, line := range metrics.Summary() {
		L_debug("metrics: " + line)
	}
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("gocoach"),
		kong.Description("Practice job interviews against a local language model."),
		kong.UsageOnError(),
	)
	if err := ctx.Run(&cli.Globals); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
