package interview

import (
	"fmt"
	"strconv"

	"github.com/roelfdiedericks/gocoach/internal/bus"
	. "github.com/roelfdiedericks/gocoach/internal/logging"
)

// Component is the bus component name of the orchestrator.
const Component = "interview"

// Intent names accepted on the bus and by the web surface.
const (
	IntentSetName        = "set-name"
	IntentSetCount       = "set-count"
	IntentSetDifficulty  = "set-difficulty"
	IntentSetDescription = "set-description"
	IntentImport         = "import-description"
	IntentStart          = "start"
	IntentEnd            = "end"
	IntentPlay           = "play-question"
	IntentStartAnswer    = "start-answer"
	IntentRestartAnswer  = "restart-answer"
	IntentSubmit         = "submit-answer"
	IntentAnalyze        = "analyze"
	IntentActivate       = "activate"
	IntentMicrophone     = "request-microphone"
	IntentResumeAmbient  = "resume-ambient"
	IntentSetAmbient     = "set-ambient"
	IntentSnapshot       = "snapshot"
)

// RegisterCommands exposes every intent on b.
func (o *Orchestrator) RegisterCommands(b *bus.Bus) {
	text := func(fn func(string) error) bus.CommandHandler {
		return func(cmd bus.Command) bus.CommandResult {
			s, ok := cmd.Payload.(string)
			if !ok {
				return o.result(fmt.Errorf("interview: %s expects a string payload", cmd.Name))
			}
			return o.result(fn(s))
		}
	}
	plain := func(fn func()) bus.CommandHandler {
		return func(bus.Command) bus.CommandResult {
			fn()
			return o.result(nil)
		}
	}

	b.RegisterCommand(Component, IntentSetName, text(o.SetCandidateName))
	b.RegisterCommand(Component, IntentSetDifficulty, text(o.SetDifficulty))
	b.RegisterCommand(Component, IntentSetDescription, text(o.SetJobDescription))
	b.RegisterCommand(Component, IntentImport, text(o.ImportJobDescription))
	b.RegisterCommand(Component, IntentSetCount, func(cmd bus.Command) bus.CommandResult {
		n, err := payloadInt(cmd.Payload)
		if err != nil {
			return o.result(err)
		}
		return o.result(o.SetQuestionCount(n))
	})
	b.RegisterCommand(Component, IntentSetAmbient, func(cmd bus.Command) bus.CommandResult {
		on, ok := cmd.Payload.(bool)
		if !ok {
			return o.result(fmt.Errorf("interview: %s expects a bool payload", cmd.Name))
		}
		o.SetAmbientEnabled(on)
		return o.result(nil)
	})
	b.RegisterCommand(Component, IntentStart, func(bus.Command) bus.CommandResult {
		return o.result(o.StartInterview())
	})
	b.RegisterCommand(Component, IntentEnd, plain(o.EndInterview))
	b.RegisterCommand(Component, IntentPlay, plain(o.PlayQuestion))
	b.RegisterCommand(Component, IntentStartAnswer, plain(o.StartAnswer))
	b.RegisterCommand(Component, IntentRestartAnswer, plain(o.RestartAnswer))
	b.RegisterCommand(Component, IntentSubmit, plain(o.SubmitAnswer))
	b.RegisterCommand(Component, IntentAnalyze, plain(o.RunAnswerAnalysis))
	b.RegisterCommand(Component, IntentActivate, plain(o.ActivateGeneration))
	b.RegisterCommand(Component, IntentMicrophone, plain(o.RequestMicrophone))
	b.RegisterCommand(Component, IntentResumeAmbient, plain(o.ResumeAmbient))
	b.RegisterCommand(Component, IntentSnapshot, plain(func() {}))
}

// result answers a command. The raw error is logged and kept in Error for
// callers in process; Message only ever carries candidate copy.
func (o *Orchestrator) result(err error) bus.CommandResult {
	snap := o.Snapshot()
	if err != nil {
		L_debug("interview: command failed", "kind", Classify(err), "error", err)
		return bus.CommandResult{Success: false, Message: errorText(err), Error: err, Data: snap}
	}
	return bus.CommandResult{Success: true, Data: snap}
}

func payloadInt(v any) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		return int(n), nil
	case string:
		i, err := strconv.Atoi(n)
		if err != nil {
			return 0, fmt.Errorf("interview: invalid number %q", n)
		}
		return i, nil
	}
	return 0, fmt.Errorf("interview: expected a number, got %T", v)
}
