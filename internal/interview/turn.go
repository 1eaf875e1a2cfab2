package interview

import (
	"errors"
	"strings"

	. "github.com/roelfdiedericks/gocoach/internal/logging"
	. "github.com/roelfdiedericks/gocoach/internal/metrics"
	"github.com/roelfdiedericks/gocoach/internal/narration"
)

func (o *Orchestrator) narrateLocked() {
	if o.index >= len(o.questions) {
		return
	}
	o.turn = TurnNarrating
	o.narrationErr = ""
	o.narrationSeq++
	token, seq, question := o.token, o.narrationSeq, o.questions[o.index]

	o.spawn(func() {
		err := o.narrator.Speak(o.ctx, question)
		o.update(func() {
			if token != o.token || seq != o.narrationSeq {
				return
			}
			if o.turn == TurnNarrating {
				o.turn = TurnAwaitingAnswer
			}
			switch {
			case err == nil, errors.Is(err, narration.ErrCancelled):
			case errors.Is(err, narration.ErrUnsupportedEnvironment):
				o.narrationErr = ErrTextSynthesisUnsupported
			default:
				L_debug("interview: narration failed", "run", o.runID, "error", err)
				o.narrationErr = ErrTextPlayQuestion
			}
		})
	})
}

// PlayQuestion reads the current question aloud again. Ignored while the
// microphone is recording; a dropped recording no longer blocks it.
func (o *Orchestrator) PlayQuestion() {
	o.update(func() {
		if o.phase != PhaseQuestionActive || o.recording {
			return
		}
		o.narrateLocked()
	})
}

// StartAnswer cuts narration short and starts recording the answer.
func (o *Orchestrator) StartAnswer() {
	o.update(func() {
		if o.phase != PhaseQuestionActive || o.turn == TurnRecording {
			return
		}
		o.narrationSeq++
		o.narrator.Cancel()
		o.capture.ResetTranscript()
		o.turn = TurnAwaitingAnswer
		o.startAnswerCaptureLocked(StatusRecordingAnswer, ErrTextStartRecording)
	})
}

// RestartAnswer clears the transcript and makes sure capture is running.
func (o *Orchestrator) RestartAnswer() {
	o.update(func() {
		if o.phase != PhaseQuestionActive || o.turn != TurnRecording {
			return
		}
		o.capture.ResetTranscript()
		if o.recording && o.capture.State().Listening {
			o.clearErrorLocked()
			o.status = StatusRecordingRestarted
			return
		}
		o.startAnswerCaptureLocked(StatusRecordingRestarted, ErrTextRestartRecording)
	})
}

func (o *Orchestrator) startAnswerCaptureLocked(okText, failText string) {
	o.answerSeq++
	token, seq := o.token, o.answerSeq

	o.spawn(func() {
		err := o.capture.StartListening(o.ctx)
		o.update(func() {
			if token != o.token || seq != o.answerSeq || o.phase != PhaseQuestionActive {
				if err == nil && !o.captureWantedLocked() {
					o.capture.StopListening()
				}
				return
			}
			if err != nil {
				L_warn("interview: answer capture failed", "run", o.runID, "error", err)
				o.setErrorLocked(captureKind(err), captureText(err, failText))
				return
			}
			o.clearErrorLocked()
			o.turn = TurnRecording
			o.recording = true
			o.status = okText
		})
	})
}

// SubmitAnswer records the transcript (possibly empty) for the current
// question and moves to the next one.
func (o *Orchestrator) SubmitAnswer() {
	o.update(func() {
		if o.phase != PhaseQuestionActive || o.index >= len(o.questions) {
			return
		}
		answer := strings.TrimSpace(o.capture.State().Transcript())
		o.recording = false
		o.capture.StopListening()
		o.answers = append(o.answers, Answer{Question: o.questions[o.index], Answer: answer})
		o.index++
		o.turn = TurnNone
		MetricInc("interview", "answers")
		L_debug("interview: answer submitted", "run", o.runID, "index", o.index, "chars", len(answer))
		o.presentLocked()
	})
}

// EndInterview resets the session. The configuration is kept. Safe to call
// at any time, repeatedly.
func (o *Orchestrator) EndInterview() {
	o.update(func() {
		o.token++
		o.narrationSeq++
		o.answerSeq++
		o.narrator.Cancel()
		o.ambientRunning = false
		o.ambientGen++
		o.capture.StopListening()
		o.capture.ResetTranscript()
		if !o.phase.Resting() {
			L_info("interview: session ended", "run", o.runID, "phase", o.phase)
		}
		o.clearSessionLocked()
		o.clearErrorLocked()
		o.runID = ""
		o.ambientPaused = false
		o.phase = PhaseIdle
		o.status = StatusInterviewEnded
		o.refreshAmbientLocked(false)
	})
}

// syncCapture reacts to microphone changes: dropped recognition while
// answering leaves the turn paused; in the ambient loop a natural end
// restarts listening and an error pauses it.
func (o *Orchestrator) syncCapture() {
	o.update(func() {
		st := o.capture.State()
		switch {
		case o.phase == PhaseQuestionActive && o.recording && !st.Listening:
			o.recording = false
			if st.ErrorCode != "" {
				L_info("interview: recognition dropped while answering", "run", o.runID, "code", st.ErrorCode)
				o.setErrorLocked(KindRecognitionDropped, ErrTextRecognitionDropped)
			}
			o.status = StatusPaused
		case o.phase.Resting() && o.ambientRunning && !st.Listening:
			o.ambientRunning = false
			if st.ErrorCode != "" {
				L_info("interview: ambient recognition dropped", "code", st.ErrorCode)
				o.ambientPaused = true
				o.setErrorLocked(KindRecognitionDropped, ErrTextRecognitionDropped)
			}
			o.refreshAmbientLocked(true)
		}
	})
}
