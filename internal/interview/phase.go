package interview

// Phase is the orchestrator's top-level state.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseAwaitingPrerequisites
	PhaseCapturingAmbient
	PhaseGeneratingSetup
	PhaseQuestionActive
	PhaseInterviewComplete
	PhaseAnalyzingAnswers
	PhaseReviewReady
)

var phaseNames = map[Phase]string{
	PhaseIdle:                  "idle",
	PhaseAwaitingPrerequisites: "awaiting-prerequisites",
	PhaseCapturingAmbient:      "capturing-ambient",
	PhaseGeneratingSetup:       "generating-setup",
	PhaseQuestionActive:        "question-active",
	PhaseInterviewComplete:     "interview-complete",
	PhaseAnalyzingAnswers:      "analyzing-answers",
	PhaseReviewReady:           "review-ready",
}

func (p Phase) String() string {
	if s, ok := phaseNames[p]; ok {
		return s
	}
	return "unknown"
}

// MarshalText encodes the phase by name.
func (p Phase) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

// resting phases have no session attached; the ambient loop owns them.
var resting = []Phase{PhaseIdle, PhaseAwaitingPrerequisites, PhaseCapturingAmbient}

// transitions lists the legal targets of each phase. Moving between resting
// phases and back to one from anywhere (end session) is always legal.
var transitions = map[Phase][]Phase{
	PhaseIdle:                  {PhaseGeneratingSetup},
	PhaseAwaitingPrerequisites: {PhaseGeneratingSetup},
	PhaseCapturingAmbient:      {PhaseGeneratingSetup},
	PhaseGeneratingSetup:       {PhaseGeneratingSetup, PhaseQuestionActive},
	PhaseQuestionActive:        {PhaseQuestionActive, PhaseInterviewComplete},
	PhaseInterviewComplete:     {PhaseAnalyzingAnswers},
	PhaseAnalyzingAnswers:      {PhaseInterviewComplete, PhaseReviewReady},
	PhaseReviewReady:           {PhaseAnalyzingAnswers},
}

// Resting reports whether no session is attached in p.
func (p Phase) Resting() bool {
	for _, r := range resting {
		if p == r {
			return true
		}
	}
	return false
}

// CanTransition reports whether moving from p to next is legal.
func (p Phase) CanTransition(next Phase) bool {
	if next.Resting() {
		return true
	}
	for _, t := range transitions[p] {
		if t == next {
			return true
		}
	}
	return false
}

// Turn is the sub-state of PhaseQuestionActive.
type Turn int

const (
	TurnNone Turn = iota
	TurnNarrating
	TurnAwaitingAnswer
	TurnRecording
)

func (t Turn) String() string {
	switch t {
	case TurnNarrating:
		return "narrating"
	case TurnAwaitingAnswer:
		return "awaiting-answer"
	case TurnRecording:
		return "recording"
	default:
		return ""
	}
}

// MarshalText encodes the turn by name.
func (t Turn) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

// AmbientPhase describes the warm-microphone loop while no session runs.
type AmbientPhase string

const (
	AmbientOff               AmbientPhase = ""
	AmbientRequestPermission AmbientPhase = "request-permission"
	AmbientPasteDescription  AmbientPhase = "paste-description"
	AmbientStartingListener  AmbientPhase = "starting-listener"
	AmbientListening         AmbientPhase = "listening"
	AmbientPaused            AmbientPhase = "paused"
)
