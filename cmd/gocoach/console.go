package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/roelfdiedericks/gocoach/internal/interview"
	. "github.com/roelfdiedericks/gocoach/internal/logging"
)

const consoleHelp = `Commands:
  /name NAME          set your name
  /count N            questions per interview (5-15)
  /difficulty LEVEL   easy, medium or hard
  /import URL         import a job description from a web page
  /start  /end        start or end the interview
  /play               read the question again
  /answer /restart    start or restart your answer
  /submit             submit what was heard
  /analyze            retry feedback
  /activate           load the generation model
  /mic                request microphone access
  /ambient on|off     keep the microphone open between interviews
  /quit
Any other line is submitted as your answer.`

// consoleCommands maps slash commands without arguments to intents.
var consoleCommands = map[string]string{
	"/start":    interview.IntentStart,
	"/end":      interview.IntentEnd,
	"/play":     interview.IntentPlay,
	"/answer":   interview.IntentStartAnswer,
	"/restart":  interview.IntentRestartAnswer,
	"/submit":   interview.IntentSubmit,
	"/analyze":  interview.IntentAnalyze,
	"/activate": interview.IntentActivate,
	"/mic":      interview.IntentMicrophone,
}

// printer writes snapshot changes as lines, skipping repeats.
type printer struct {
	w        io.Writer
	version  uint64
	status   string
	errText  string
	question string
	reviewed bool
}

func (p *printer) show(s interview.Snapshot) {
	if s.Version != 0 && s.Version <= p.version {
		return
	}
	p.version = s.Version
	if s.Status != "" && s.Status != p.status {
		fmt.Fprintln(p.w, "* "+s.Status)
	}
	p.status = s.Status
	if s.Error != "" && s.Error != p.errText {
		fmt.Fprintln(p.w, "! "+s.Error)
	}
	p.errText = s.Error
	if s.CurrentQuestion != "" && s.CurrentQuestion != p.question {
		fmt.Fprintf(p.w, "\nQuestion %d of %d: %s\n", s.QuestionIndex+1, s.TotalQuestions, s.CurrentQuestion)
	}
	p.question = s.CurrentQuestion
	if s.ReviewReady && !p.reviewed {
		fmt.Fprintln(p.w, "\nFeedback")
		for i, f := range s.Feedback {
			answer := f.Answer
			if answer == "" {
				answer = "(no answer)"
			}
			fmt.Fprintf(p.w, "\n%d. %s\n   You said: %s\n   %s\n", i+1, f.Question, answer, f.Feedback)
		}
	}
	p.reviewed = s.ReviewReady
}

// parseConsoleLine turns one input line into an intent and payload.
// Blank lines yield an empty intent.
func parseConsoleLine(line string) (intent string, payload any, quit bool, err error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return "", nil, false, nil
	}
	if !strings.HasPrefix(line, "/") {
		return interview.IntentSubmit, line, false, nil
	}
	name, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)
	if intent, ok := consoleCommands[name]; ok {
		return intent, nil, false, nil
	}
	switch name {
	case "/quit", "/exit":
		return "", nil, true, nil
	case "/name":
		return interview.IntentSetName, arg, false, nil
	case "/difficulty":
		return interview.IntentSetDifficulty, arg, false, nil
	case "/import":
		return interview.IntentImport, arg, false, nil
	case "/count":
		n, err := strconv.Atoi(arg)
		if err != nil {
			return "", nil, false, fmt.Errorf("count must be a number")
		}
		return interview.IntentSetCount, n, false, nil
	case "/ambient":
		switch arg {
		case "on":
			return interview.IntentSetAmbient, true, false, nil
		case "off":
			return interview.IntentSetAmbient, false, false, nil
		}
		return "", nil, false, fmt.Errorf("use /ambient on or /ambient off")
	}
	return "", nil, false, fmt.Errorf("unknown command %s", name)
}

// runConsole drives the orchestrator from line input.
func runConsole(ctx context.Context, a *app, in io.Reader, out io.Writer) error {
	snaps := make(chan interview.Snapshot, 64)
	unsub := a.orch.Subscribe(func(s interview.Snapshot) {
		select {
		case snaps <- s:
		default:
			L_debug("console: snapshot dropped", "version", s.Version)
		}
	})
	defer unsub()

	done := make(chan struct{})
	defer close(done)
	go func() {
		p := &printer{w: out}
		p.show(a.orch.Snapshot())
		for {
			select {
			case s := <-snaps:
				p.show(s)
			case <-done:
				return
			}
		}
	}()

	fmt.Fprintln(out, "gocoach console. Type /help for commands.")
	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if strings.TrimSpace(line) == "/help" {
				fmt.Fprintln(out, consoleHelp)
				continue
			}
			intent, payload, quit, err := parseConsoleLine(line)
			if quit {
				return nil
			}
			if err != nil {
				fmt.Fprintln(out, "! "+err.Error())
				continue
			}
			if intent == "" {
				continue
			}
			if intent == interview.IntentSubmit && payload != nil {
				if a.typed == nil {
					fmt.Fprintln(out, "! answers come from the microphone, use /submit")
					continue
				}
				a.typed.Commit(payload.(string))
				payload = nil
			}
			res := a.bus.Send(interview.Component, intent, payload, "console")
			if !res.Success {
				fmt.Fprintln(out, "! "+res.Message)
			}
		}
	}
}
