package tui

import (
	"context"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/roelfdiedericks/gocoach/internal/bus"
	"github.com/roelfdiedericks/gocoach/internal/capture"
	"github.com/roelfdiedericks/gocoach/internal/interview"
	. "github.com/roelfdiedericks/gocoach/internal/logging"
	"github.com/roelfdiedericks/gocoach/internal/paths"
)

// Options configures Run.
type Options struct {
	Bus   *bus.Bus
	Typed *capture.TypedRecognizer
	// LogFile receives logs while the TUI owns the terminal. Empty uses the
	// default log path.
	LogFile string
}

// Run takes over the terminal until the user quits or ctx is cancelled.
func Run(ctx context.Context, opts Options) error {
	logPath := opts.LogFile
	if logPath == "" {
		p, err := paths.LogFilePath()
		if err != nil {
			return err
		}
		logPath = p
	}
	if err := paths.EnsureParentDir(logPath); err != nil {
		return err
	}
	f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return err
	}
	SetOutput(f)
	defer func() {
		SetOutput(os.Stderr)
		_ = f.Close()
	}()
	L_info("tui: started", "log", logPath)

	p := tea.NewProgram(New(opts.Bus, opts.Typed), tea.WithAltScreen(), tea.WithContext(ctx))

	// Snapshot handlers run on the publisher's goroutine; hand off so the
	// orchestrator never waits on the renderer.
	sub := opts.Bus.SubscribeSync(interview.TopicSnapshot, func(e bus.Event) {
		if s, ok := e.Data.(interview.Snapshot); ok {
			go p.Send(snapshotMsg(s))
		}
	})
	defer opts.Bus.Unsubscribe(sub)

	_, err = p.Run()
	if err != nil && ctx.Err() != nil {
		return nil
	}
	return err
}
