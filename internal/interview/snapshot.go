package interview

import (
	"slices"
	"strings"

	"github.com/roelfdiedericks/gocoach/internal/gateway"
)

// Snapshot is the read-only view presentation surfaces render.
type Snapshot struct {
	Version uint64       `json:"version"`
	RunID   string       `json:"runId,omitempty"`
	Phase   Phase        `json:"phase"`
	Turn    Turn         `json:"turn"`
	Ambient AmbientPhase `json:"ambientPhase"`

	Settings

	HasDescription    bool `json:"hasDescription"`
	IsInterviewActive bool `json:"isInterviewActive"`
	IsAnswering       bool `json:"isAnswering"`
	IsNarrating       bool `json:"isNarrating"`
	InterviewComplete bool `json:"interviewComplete"`
	IsAnalyzing       bool `json:"isAnalyzing"`
	ReviewReady       bool `json:"reviewReady"`

	CurrentQuestion string     `json:"currentQuestion,omitempty"`
	QuestionIndex   int        `json:"questionIndex"`
	TotalQuestions  int        `json:"totalQuestions"`
	Keywords        []string   `json:"keywords,omitempty"`
	Answers         []Answer   `json:"answers,omitempty"`
	Feedback        []Feedback `json:"feedback,omitempty"`
	AnalysisFailed  bool       `json:"analysisFailed"`

	Status         string    `json:"status"`
	Error          string    `json:"error,omitempty"`
	ErrorKind      ErrorKind `json:"errorKind,omitempty"`
	NarrationError string    `json:"narrationError,omitempty"`
	Loaders        []Loader  `json:"loaders,omitempty"`

	Transcript string `json:"transcript"`
	Listening  bool   `json:"listening"`
	Permission bool   `json:"permission"`

	Availability      gateway.Availability `json:"availability"`
	AvailabilityLabel string               `json:"availabilityLabel"`
	DownloadPercent   int                  `json:"downloadPercent"`
	ActivationPending bool                 `json:"activationPending"`
	AmbientEnabled    bool                 `json:"ambientEnabled"`
}

// Snapshot returns the current state.
func (o *Orchestrator) Snapshot() Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.snapshotLocked()
}

func (o *Orchestrator) snapshotLocked() Snapshot {
	cs := o.capture.State()
	s := Snapshot{
		Version:  o.version,
		RunID:    o.runID,
		Phase:    o.phase,
		Turn:     o.turn,
		Ambient:  o.ambient,
		Settings: o.settings,

		HasDescription:    strings.TrimSpace(o.settings.JobDescription) != "",
		IsInterviewActive: o.phase >= PhaseQuestionActive,
		IsAnswering:       o.phase == PhaseQuestionActive && o.turn == TurnRecording,
		IsNarrating:       o.narrator.Narrating(),
		InterviewComplete: o.phase >= PhaseInterviewComplete,
		IsAnalyzing:       o.phase == PhaseAnalyzingAnswers,
		ReviewReady:       o.phase == PhaseReviewReady,

		QuestionIndex:  o.index,
		TotalQuestions: len(o.questions),
		Keywords:       slices.Clone(o.keywords),
		Answers:        slices.Clone(o.answers),
		Feedback:       slices.Clone(o.feedback),
		AnalysisFailed: o.analysisFailed,

		Status:         o.status,
		Error:          o.errText,
		ErrorKind:      o.errKind,
		NarrationError: o.narrationErr,
		Loaders:        slices.Clone(o.loaders),

		Transcript: cs.Transcript(),
		Listening:  cs.Listening,
		Permission: cs.Permission,

		Availability:      o.availability,
		AvailabilityLabel: o.availability.Label(),
		DownloadPercent:   o.downloadPct,
		ActivationPending: o.activationPending,
		AmbientEnabled:    o.ambientEnabled,
	}
	if o.phase == PhaseQuestionActive && o.index < len(o.questions) {
		s.CurrentQuestion = o.questions[o.index]
	}
	return s
}
