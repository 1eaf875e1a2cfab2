package interview

import (
	"errors"
	"slices"
	"strings"

	"github.com/google/uuid"

	"github.com/roelfdiedericks/gocoach/internal/gateway"
	. "github.com/roelfdiedericks/gocoach/internal/logging"
	. "github.com/roelfdiedericks/gocoach/internal/metrics"
)

// StartInterview begins a session: the setup pipeline runs in the background
// and the outcome shows up in snapshots. A start while setup is still running
// discards the earlier attempt.
func (o *Orchestrator) StartInterview() error {
	var err error
	o.update(func() {
		switch {
		case !o.phase.CanTransition(PhaseGeneratingSetup):
			err = ErrSessionActive
		case strings.TrimSpace(o.settings.CandidateName) == "":
			err = ErrNameRequired
			o.setErrorLocked(KindNameRequired, ErrTextNameRequired)
		default:
			o.beginSetupLocked()
		}
	})
	return err
}

func (o *Orchestrator) beginSetupLocked() {
	o.token++
	o.runID = uuid.NewString()
	o.narrationSeq++
	o.answerSeq++
	o.narrator.Cancel()
	o.stopAmbientLocked()
	o.capture.ResetTranscript()
	o.clearSessionLocked()
	o.clearErrorLocked()
	o.ambient = AmbientOff
	o.moveLocked(PhaseGeneratingSetup)

	token, runID, settings := o.token, o.runID, o.settings
	MetricInc("interview", "sessions")
	L_info("interview: setup started", "run", runID, "count", settings.QuestionCount, "difficulty", settings.Difficulty)
	o.spawn(func() { o.runSetup(token, runID, settings) })
}

func (o *Orchestrator) runSetup(token uint64, runID string, s Settings) {
	timer := MetricStart("interview", "setup")
	defer MetricEnd(timer)

	if !o.ensureGeneration(token) {
		return
	}

	o.update(func() {
		if token == o.token {
			o.startLoaderLocked(loaderKeywords)
		}
	})

	sess, err := o.gen.Create(o.ctx, gateway.TaskRelevance, gateway.CreateOptions{UserActivated: true})
	relevant := false
	if err == nil {
		relevant, err = gateway.CheckRelevance(o.ctx, sess, s.JobDescription)
	}
	if !o.afterStep(token, err, ErrTextKeywordsUnavailable) {
		return
	}
	if !relevant {
		o.failSetup(token, ErrDescriptionInvalid, KindDescriptionInvalid, ErrTextDescriptionInvalid)
		return
	}

	sess, err = o.gen.Create(o.ctx, gateway.TaskKeywords, gateway.CreateOptions{UserActivated: true})
	var keywords []string
	if err == nil {
		keywords, err = gateway.ExtractKeywords(o.ctx, sess, s.JobDescription)
	}
	if !o.afterStep(token, err, ErrTextKeywordsUnavailable) {
		return
	}
	if len(keywords) == 0 {
		o.failSetup(token, ErrNoKeywordsFound, KindNoKeywordsFound, ErrTextNoKeywords)
		return
	}
	L_debug("interview: keywords", "run", runID, "keywords", keywords)

	o.update(func() {
		if token == o.token {
			o.stopLoaderLocked(loaderKeywords.ID)
			o.keywords = keywords
			o.startLoaderLocked(loaderQuestions)
		}
	})

	name := strings.TrimSpace(s.CandidateName)
	sess, err = o.gen.Create(o.ctx, gateway.TaskQuestions, gateway.CreateOptions{UserActivated: true})
	var questions []string
	if err == nil {
		questions, err = gateway.GenerateQuestions(o.ctx, sess, gateway.QuestionArgs{
			Keywords:      keywords,
			QuestionCount: s.QuestionCount,
			Difficulty:    s.Difficulty,
			CandidateName: name,
		})
	}
	if !o.afterStep(token, err, ErrTextQuestionsUnavailable) {
		return
	}
	if len(questions) == 0 {
		o.failSetup(token, ErrNoQuestionsReturned, KindNoQuestionsReturned, ErrTextNoQuestions)
		return
	}

	o.update(func() {
		if token != o.token {
			return
		}
		o.stopLoaderLocked(loaderQuestions.ID)
		o.questions = questions
		o.index = 0
		o.answers = nil
		o.status = preparingFirstQuestion(name)
		MetricSuccess("interview", "setup")
		L_info("interview: questions ready", "run", runID, "questions", len(questions))
	})
	o.update(func() {
		if token == o.token && o.phase == PhaseGeneratingSetup {
			o.presentLocked()
		}
	})
}

// afterStep reports whether the pipeline may continue after a generation step.
func (o *Orchestrator) afterStep(token uint64, err error, text string) bool {
	if err != nil {
		o.failSetup(token, err, generationKind(err), text)
		return false
	}
	return o.isCurrent(token)
}

func (o *Orchestrator) failSetup(token uint64, err error, kind ErrorKind, text string) {
	o.update(func() {
		if token != o.token {
			return
		}
		L_warn("interview: setup failed", "run", o.runID, "kind", kind, "error", err)
		MetricFailWithReason("interview", "setup", string(kind))
		if kind == KindActivationRequired {
			o.activationPending = true
			o.availability = gateway.AvailabilityNeedsDownload
		}
		o.loaders = nil
		o.keywords = nil
		o.phase = PhaseIdle
		o.setErrorLocked(kind, text)
		o.refreshAmbientLocked(false)
	})
}

// ensureGeneration checks availability and activates the model for a
// session start. An unusable host aborts the start without an error message.
func (o *Orchestrator) ensureGeneration(token uint64) bool {
	a, err := o.gen.CheckAvailability(o.ctx)
	usable := false
	o.update(func() {
		if token != o.token {
			return
		}
		o.setAvailabilityLocked(a, err)
		if !a.Usable() {
			L_info("interview: generation unavailable, start abandoned", "run", o.runID, "availability", a)
			o.phase = PhaseIdle
			o.refreshAmbientLocked(false)
			return
		}
		usable = true
	})
	if !usable {
		return false
	}
	if err := o.activate(true); err != nil {
		o.failSetup(token, err, generationKind(err), ErrTextKeywordsUnavailable)
		return false
	}
	return o.isCurrent(token)
}

// ActivateGeneration is called on a user gesture: it starts a pending model
// download.
func (o *Orchestrator) ActivateGeneration() {
	o.spawn(func() { o.checkGeneration(true) })
}

func (o *Orchestrator) checkGeneration(userActivated bool) {
	a, err := o.gen.CheckAvailability(o.ctx)
	o.update(func() { o.setAvailabilityLocked(a, err) })
	if !a.Usable() {
		return
	}
	if err := o.activate(userActivated); err != nil && !errors.Is(err, gateway.ErrActivationRequiresUserGesture) {
		L_warn("interview: generation activation failed", "error", err)
	}
}

// activate creates the first generation session, forwarding download progress
// into snapshots.
func (o *Orchestrator) activate(userActivated bool) error {
	progress := make(chan gateway.DownloadEvent)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for ev := range progress {
			o.update(func() {
				o.availability = gateway.AvailabilityDownloading
				o.downloadPct = max(o.downloadPct, ev.Percent)
			})
		}
	}()
	_, err := o.gen.Create(o.ctx, gateway.TaskRelevance, gateway.CreateOptions{
		UserActivated: userActivated,
		Progress:      progress,
	})
	close(progress)
	<-done

	o.update(func() {
		switch {
		case err == nil:
			o.availability = gateway.AvailabilityReady
			o.activationPending = false
		case errors.Is(err, gateway.ErrActivationRequiresUserGesture):
			o.availability = gateway.AvailabilityNeedsDownload
			o.activationPending = true
		default:
			o.availability = gateway.AvailabilityCheckingError
		}
	})
	return err
}

func (o *Orchestrator) setAvailabilityLocked(a gateway.Availability, err error) {
	if err != nil {
		a = gateway.AvailabilityCheckingError
	}
	if o.availability == gateway.AvailabilityDownloading && a == gateway.AvailabilityNeedsDownload {
		return
	}
	if a != gateway.AvailabilityDownloading {
		o.downloadPct = 0
	}
	if a == gateway.AvailabilityReady {
		o.downloadPct = 100
		o.activationPending = false
	}
	o.availability = a
}

// presentLocked shows the question at the current index, or completes the
// interview when the index is past the end.
func (o *Orchestrator) presentLocked() {
	o.recording = false
	o.answerSeq++
	o.capture.StopListening()
	o.capture.ResetTranscript()

	if o.index >= len(o.questions) {
		o.narrationSeq++
		o.narrator.Cancel()
		o.turn = TurnNone
		o.moveLocked(PhaseInterviewComplete)
		o.status = StatusInterviewComplete
		L_info("interview: complete", "run", o.runID, "answers", len(o.answers))
		o.maybeAnalyzeLocked()
		return
	}

	o.moveLocked(PhaseQuestionActive)
	o.status = questionProgress(o.index, len(o.questions))
	o.narrateLocked()
}

// maybeAnalyzeLocked starts the feedback pass once per completed interview.
func (o *Orchestrator) maybeAnalyzeLocked() {
	if o.phase != PhaseInterviewComplete || len(o.answers) == 0 || len(o.feedback) > 0 || o.analysisFailed {
		return
	}
	o.beginAnalysisLocked()
}

func (o *Orchestrator) beginAnalysisLocked() {
	if !o.moveLocked(PhaseAnalyzingAnswers) {
		return
	}
	o.analysisFailed = false
	o.feedback = nil
	o.startLoaderLocked(loaderAnalysis)
	token, runID, answers := o.token, o.runID, slices.Clone(o.answers)
	o.spawn(func() { o.runAnalysis(token, runID, answers) })
}

func (o *Orchestrator) runAnalysis(token uint64, runID string, answers []Answer) {
	timer := MetricStart("interview", "analysis")
	defer MetricEnd(timer)

	sess, err := o.gen.Create(o.ctx, gateway.TaskFeedback, gateway.CreateOptions{UserActivated: true})
	results := make([]Feedback, 0, len(answers))
	for _, a := range answers {
		if err != nil || !o.isCurrent(token) {
			break
		}
		var fb string
		fb, err = gateway.AnswerFeedback(o.ctx, sess, a.Question, a.Answer)
		if err == nil {
			results = append(results, Feedback{Question: a.Question, Answer: a.Answer, Feedback: fb})
		}
	}

	o.update(func() {
		if token != o.token || o.phase != PhaseAnalyzingAnswers {
			return
		}
		o.stopLoaderLocked(loaderAnalysis.ID)
		if err != nil {
			L_warn("interview: answer analysis failed", "run", runID, "error", err)
			MetricFailWithReason("interview", "analysis", string(generationKind(err)))
			o.analysisFailed = true
			o.feedback = nil
			o.moveLocked(PhaseInterviewComplete)
			o.errKind = KindAnswerAnalysisFailed
			o.errText = ErrTextAnalyzeAnswers
			return
		}
		o.feedback = results
		o.moveLocked(PhaseReviewReady)
		MetricSuccess("interview", "analysis")
		L_info("interview: review ready", "run", runID, "entries", len(results))
	})
}

// RunAnswerAnalysis retries the feedback pass after a failure, or runs it
// again on a finished review.
func (o *Orchestrator) RunAnswerAnalysis() {
	o.update(func() {
		if o.phase != PhaseInterviewComplete && o.phase != PhaseReviewReady {
			return
		}
		if len(o.answers) == 0 {
			return
		}
		o.clearErrorLocked()
		o.beginAnalysisLocked()
	})
}
