// Package tui provides the terminal interface for gocoach.
package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/roelfdiedericks/gocoach/internal/bus"
	"github.com/roelfdiedericks/gocoach/internal/capture"
	"github.com/roelfdiedericks/gocoach/internal/config"
	"github.com/roelfdiedericks/gocoach/internal/gateway"
	"github.com/roelfdiedericks/gocoach/internal/interview"
	. "github.com/roelfdiedericks/gocoach/internal/logging"
)

// field is the focused setup input.
type field int

const (
	fieldName field = iota
	fieldQuestions
	fieldDifficulty
	fieldDescription
	fieldURL
	numFields
)

// Message types
type snapshotMsg interview.Snapshot
type resultMsg struct {
	intent string
	err    string
}

// call is one intent sent over the bus.
type call struct {
	intent  string
	payload any
}

// Model is the main TUI model.
type Model struct {
	bus   *bus.Bus
	typed *capture.TypedRecognizer // nil when answers come from the microphone

	snap interview.Snapshot

	name        textinput.Model
	url         textinput.Model
	description textarea.Model
	answer      textarea.Model
	review      viewport.Model
	spin        spinner.Model
	bar         progress.Model

	focus   field
	lastErr string
	width   int
	height  int
	ready   bool
}

// New creates a model that drives the orchestrator registered on b. typed
// may be nil.
func New(b *bus.Bus, typed *capture.TypedRecognizer) Model {
	name := textinput.New()
	name.Placeholder = "Your name"
	name.CharLimit = 80
	name.Focus()

	url := textinput.New()
	url.Placeholder = "https://... (enter to import)"
	url.CharLimit = 2048

	desc := textarea.New()
	desc.Placeholder = "Paste the job description..."
	desc.CharLimit = 0
	desc.ShowLineNumbers = false
	desc.SetHeight(8)

	ans := textarea.New()
	ans.Placeholder = "Type your answer..."
	ans.CharLimit = 0
	ans.ShowLineNumbers = false
	ans.SetHeight(5)

	return Model{
		bus:         b,
		typed:       typed,
		name:        name,
		url:         url,
		description: desc,
		answer:      ans,
		review:      viewport.New(80, 12),
		spin:        spinner.New(spinner.WithSpinner(spinner.Dot)),
		bar:         progress.New(progress.WithDefaultGradient()),
		focus:       fieldName,
	}
}

// Init initializes the model
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		textinput.Blink,
		m.spin.Tick,
		m.dispatch(call{intent: interview.IntentSnapshot}),
	)
}

// dispatch sends calls in order on one goroutine and reports the first
// failure.
func (m Model) dispatch(calls ...call) tea.Cmd {
	if len(calls) == 0 {
		return nil
	}
	b := m.bus
	return func() tea.Msg {
		var last resultMsg
		for _, c := range calls {
			res := b.Send(interview.Component, c.intent, c.payload, "tui")
			last = resultMsg{intent: c.intent}
			if snap, ok := res.Data.(interview.Snapshot); ok && c.intent == interview.IntentSnapshot {
				return snapshotMsg(snap)
			}
			if !res.Success {
				last.err = res.Message
				L_debug("tui: intent failed", "intent", c.intent, "error", res.Message)
				return last
			}
		}
		return last
	}
}

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		next, cmd, handled := m.handleKey(msg)
		m = next
		if cmd != nil {
			cmds = append(cmds, cmd)
		}
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
		if handled {
			return m, tea.Batch(cmds...)
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.ready = true
		inner := max(msg.Width-6, 20)
		m.name.Width = inner - 16
		m.url.Width = inner - 16
		m.description.SetWidth(inner)
		m.answer.SetWidth(inner)
		m.review.Width = inner
		m.review.Height = max(msg.Height-16, 5)
		m.bar.Width = min(inner, 60)
		m.review.SetContent(m.reviewContent())

	case snapshotMsg:
		m = m.applySnapshot(interview.Snapshot(msg))
		return m, nil

	case resultMsg:
		m.lastErr = msg.err
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd
	}

	// Forward to the focused component
	var cmd tea.Cmd
	switch {
	case m.inSession():
		before := m.answer.Value()
		m.answer, cmd = m.answer.Update(msg)
		if m.typed != nil && m.snap.IsAnswering && m.answer.Value() != before {
			m.typed.Type(m.answer.Value())
		}
	case m.snap.Phase.Resting():
		switch m.focus {
		case fieldName:
			m.name, cmd = m.name.Update(msg)
		case fieldURL:
			m.url, cmd = m.url.Update(msg)
		case fieldDescription:
			m.description, cmd = m.description.Update(msg)
		}
	default:
		m.review, cmd = m.review.Update(msg)
	}
	cmds = append(cmds, cmd)

	return m, tea.Batch(cmds...)
}

func (m Model) inSession() bool {
	return m.snap.Phase == interview.PhaseQuestionActive
}

// handleKey maps keys to intents. handled means the key must not reach the
// focused input.
func (m Model) handleKey(msg tea.KeyMsg) (Model, tea.Cmd, bool) {
	var calls []call
	// Any key press counts as the user gesture model downloads wait for.
	if m.snap.ActivationPending {
		calls = append(calls, call{intent: interview.IntentActivate})
	}

	key := msg.String()
	handled := true
	switch {
	case key == "ctrl+c":
		return m, nil, true

	case key == "ctrl+e":
		calls = append(calls, call{intent: interview.IntentEnd})
		m.answer.Reset()

	case m.inSession():
		switch key {
		case "ctrl+p":
			calls = append(calls, call{intent: interview.IntentPlay})
		case "ctrl+a":
			m.answer.Reset()
			calls = append(calls, call{intent: interview.IntentStartAnswer})
		case "ctrl+r":
			m.answer.Reset()
			calls = append(calls, call{intent: interview.IntentRestartAnswer})
		case "enter":
			if m.typed != nil && m.snap.IsAnswering {
				m.typed.Commit(strings.TrimSpace(m.answer.Value()))
			}
			m.answer.Reset()
			calls = append(calls, call{intent: interview.IntentSubmit})
		default:
			handled = false
		}

	case m.snap.InterviewComplete:
		switch key {
		case "ctrl+a":
			calls = append(calls, call{intent: interview.IntentAnalyze})
		default:
			handled = false
		}

	case m.snap.Phase.Resting():
		var setup []call
		m, setup, handled = m.handleSetupKey(key)
		calls = append(calls, setup...)

	default:
		handled = false
	}

	return m, m.dispatch(calls...), handled
}

func (m Model) handleSetupKey(key string) (Model, []call, bool) {
	switch key {
	case "tab", "shift+tab":
		calls := m.flush()
		step := 1
		if key == "shift+tab" {
			step = int(numFields) - 1
		}
		m = m.focusField(field((int(m.focus) + step) % int(numFields)))
		return m, calls, true

	case "ctrl+s":
		calls := append(m.flush(), call{intent: interview.IntentStart})
		return m, calls, true

	case "ctrl+o":
		return m, []call{{intent: interview.IntentSetAmbient, payload: !m.snap.AmbientEnabled}}, true

	case "ctrl+g":
		if m.snap.Ambient == interview.AmbientPaused {
			return m, []call{{intent: interview.IntentResumeAmbient}}, true
		}
		return m, []call{{intent: interview.IntentMicrophone}}, true

	case "left", "right":
		delta := 1
		if key == "left" {
			delta = -1
		}
		switch m.focus {
		case fieldQuestions:
			n := m.snap.QuestionCount + delta
			if n < config.MinQuestionCount || n > config.MaxQuestionCount {
				return m, nil, true
			}
			m.snap.QuestionCount = n
			return m, []call{{intent: interview.IntentSetCount, payload: n}}, true
		case fieldDifficulty:
			d := cycle(config.Difficulties, m.snap.Difficulty, delta)
			m.snap.Difficulty = d
			return m, []call{{intent: interview.IntentSetDifficulty, payload: d}}, true
		}

	case "enter":
		switch m.focus {
		case fieldURL:
			u := strings.TrimSpace(m.url.Value())
			if u == "" {
				return m, nil, true
			}
			return m, []call{{intent: interview.IntentImport, payload: u}}, true
		case fieldName:
			return m, m.flush(), true
		}
	}
	return m, nil, false
}

// flush pushes the focused text field to the orchestrator if it changed.
func (m Model) flush() []call {
	switch m.focus {
	case fieldName:
		if v := strings.TrimSpace(m.name.Value()); v != m.snap.CandidateName {
			return []call{{intent: interview.IntentSetName, payload: v}}
		}
	case fieldDescription:
		if v := m.description.Value(); strings.TrimSpace(v) != strings.TrimSpace(m.snap.JobDescription) {
			return []call{{intent: interview.IntentSetDescription, payload: v}}
		}
	}
	return nil
}

func (m Model) focusField(f field) Model {
	m.name.Blur()
	m.url.Blur()
	m.description.Blur()
	m.focus = f
	switch f {
	case fieldName:
		m.name.Focus()
	case fieldURL:
		m.url.Focus()
	case fieldDescription:
		m.description.Focus()
	}
	return m
}

// applySnapshot adopts s unless an equal or newer one was already seen.
// Inputs the user is editing keep their text.
func (m Model) applySnapshot(s interview.Snapshot) Model {
	if s.Version != 0 && s.Version < m.snap.Version {
		return m
	}
	wasSession := m.inSession()
	prevIndex := m.snap.QuestionIndex
	m.snap = s

	if m.focus != fieldName {
		m.name.SetValue(s.CandidateName)
	}
	if m.focus != fieldDescription && m.description.Value() != s.JobDescription {
		m.description.SetValue(s.JobDescription)
	}

	if m.inSession() {
		if !wasSession || s.QuestionIndex != prevIndex {
			m.answer.Reset()
		}
		if m.snap.IsAnswering && !m.answer.Focused() {
			m.answer.Focus()
		}
		if m.typed == nil {
			m.answer.SetValue(s.Transcript)
		}
	} else {
		m.answer.Blur()
	}
	m.review.SetContent(m.reviewContent())
	return m
}

func cycle(values []string, current string, delta int) string {
	if len(values) == 0 {
		return current
	}
	i := 0
	for j, v := range values {
		if v == current {
			i = j
			break
		}
	}
	return values[(i+delta+len(values))%len(values)]
}

// View renders the TUI
func (m Model) View() string {
	if !m.ready {
		return "Initializing..."
	}

	var body string
	switch {
	case m.snap.Phase.Resting():
		body = m.setupView()
	case m.snap.Phase == interview.PhaseGeneratingSetup:
		body = m.loadersView()
	case m.inSession():
		body = m.sessionView()
	default:
		body = lipgloss.JoinVertical(lipgloss.Left, m.loadersView(), m.review.View())
	}

	panel := panelBorder.Width(max(m.width-2, 20)).Render(
		lipgloss.JoinVertical(lipgloss.Left,
			titleStyle.Render("gocoach")+"  "+m.availabilityView(),
			"",
			body,
			"",
			m.messagesView(),
		),
	)
	return lipgloss.JoinVertical(lipgloss.Left, panel, m.statusBar())
}

func (m Model) availabilityView() string {
	label := m.snap.AvailabilityLabel
	if label == "" {
		label = m.snap.Availability.Label()
	}
	if m.snap.Availability == gateway.AvailabilityDownloading {
		return label + " " + m.bar.ViewAs(float64(m.snap.DownloadPercent)/100)
	}
	if m.snap.Availability == gateway.AvailabilityReady {
		return readyStyle.Render(label)
	}
	if m.snap.ActivationPending {
		return helpStyle.Render(label + " (press any key)")
	}
	return helpStyle.Render(label)
}

func (m Model) label(f field, text string) string {
	if m.focus == f {
		return focusedLabelStyle.Render(text)
	}
	return labelStyle.Render(text)
}

func (m Model) setupView() string {
	rows := []string{
		m.label(fieldName, "Name") + m.name.View(),
		m.label(fieldQuestions, "Questions") + fmt.Sprintf("< %d >", m.snap.QuestionCount),
		m.label(fieldDifficulty, "Difficulty") + fmt.Sprintf("< %s >", m.snap.Difficulty),
		m.label(fieldDescription, "Description"),
		m.description.View(),
		m.label(fieldURL, "Import URL") + m.url.View(),
	}
	if m.snap.AmbientEnabled && m.snap.Transcript != "" {
		rows = append(rows, "", helpStyle.Render("Heard: ")+answerStyle.Render(m.snap.Transcript))
	}
	return lipgloss.JoinVertical(lipgloss.Left, rows...)
}

func (m Model) sessionView() string {
	turn := ""
	switch m.snap.Turn {
	case interview.TurnNarrating:
		turn = m.spin.View() + " reading the question"
	case interview.TurnRecording:
		turn = m.spin.View() + " recording"
	}
	return lipgloss.JoinVertical(lipgloss.Left,
		helpStyle.Render(fmt.Sprintf("Question %d of %d", m.snap.QuestionIndex+1, m.snap.TotalQuestions))+"  "+turn,
		questionStyle.Render(m.snap.CurrentQuestion),
		"",
		m.answer.View(),
	)
}

func (m Model) loadersView() string {
	if len(m.snap.Loaders) == 0 {
		return ""
	}
	lines := make([]string, 0, len(m.snap.Loaders)*2)
	for _, l := range m.snap.Loaders {
		lines = append(lines, m.spin.View()+" "+loaderStyle.Render(l.Title), helpStyle.Render("  "+l.Message))
	}
	return strings.Join(lines, "\n")
}

func (m Model) reviewContent() string {
	var sb strings.Builder
	if len(m.snap.Feedback) > 0 {
		for i, f := range m.snap.Feedback {
			answer := f.Answer
			if answer == "" {
				answer = "(no answer)"
			}
			fmt.Fprintf(&sb, "%s\n%s\n%s\n\n",
				questionStyle.Render(fmt.Sprintf("%d. %s", i+1, f.Question)),
				answerStyle.Render(answer),
				feedbackStyle.Render(f.Feedback))
		}
		return sb.String()
	}
	for i, a := range m.snap.Answers {
		answer := a.Answer
		if answer == "" {
			answer = "(no answer)"
		}
		fmt.Fprintf(&sb, "%s\n%s\n\n", questionStyle.Render(fmt.Sprintf("%d. %s", i+1, a.Question)), answerStyle.Render(answer))
	}
	return sb.String()
}

func (m Model) messagesView() string {
	lines := []string{m.snap.Status}
	if m.snap.Error != "" {
		lines = append(lines, errorStyle.Render(m.snap.Error))
	}
	if m.snap.NarrationError != "" {
		lines = append(lines, errorStyle.Render(m.snap.NarrationError))
	}
	if m.lastErr != "" && m.lastErr != m.snap.Error {
		lines = append(lines, errorStyle.Render(m.lastErr))
	}
	return strings.Join(lines, "\n")
}

func (m Model) statusBar() string {
	var help string
	switch {
	case m.inSession():
		help = "Ctrl+A: answer | Enter: submit | Ctrl+R: restart | Ctrl+P: replay | Ctrl+E: end"
	case m.snap.InterviewComplete:
		help = "Ctrl+A: analyse again | Ctrl+E: new interview | Ctrl+C: quit"
	case m.snap.Phase == interview.PhaseGeneratingSetup:
		help = "Ctrl+E: cancel | Ctrl+C: quit"
	default:
		help = "Tab: next field | ←/→: change | Ctrl+S: start | Ctrl+O: ambient | Ctrl+G: mic | Ctrl+C: quit"
	}
	left := statusBarStyle.Render(m.snap.Phase.String())
	right := statusBarStyle.Render(help)
	gap := max(m.width-lipgloss.Width(left)-lipgloss.Width(right), 0)
	return left + statusBarStyle.Render(strings.Repeat(" ", gap)) + right
}
