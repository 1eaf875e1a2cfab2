package interview

import (
	"fmt"
	"strings"

	"github.com/roelfdiedericks/gocoach/internal/config"
	. "github.com/roelfdiedericks/gocoach/internal/logging"
)

// configure applies fn to the settings unless a session is active.
func (o *Orchestrator) configure(fn func(*Settings) error) error {
	var err error
	o.update(func() {
		if !o.phase.Resting() {
			err = ErrConfigurationFrozen
			return
		}
		next := o.settings
		if err = fn(&next); err != nil {
			return
		}
		o.settings = next
		o.refreshAmbientLocked(true)
	})
	return err
}

// SetCandidateName sets the name used in the intro question.
func (o *Orchestrator) SetCandidateName(name string) error {
	return o.configure(func(s *Settings) error {
		s.CandidateName = name
		return nil
	})
}

// SetQuestionCount sets how many questions the next session asks.
func (o *Orchestrator) SetQuestionCount(n int) error {
	return o.configure(func(s *Settings) error {
		if n < config.MinQuestionCount || n > config.MaxQuestionCount {
			return fmt.Errorf("%w: %d not in [%d, %d]", ErrQuestionCountOutOfRange, n, config.MinQuestionCount, config.MaxQuestionCount)
		}
		s.QuestionCount = n
		return nil
	})
}

// SetDifficulty sets easy, medium or hard.
func (o *Orchestrator) SetDifficulty(d string) error {
	d = strings.ToLower(strings.TrimSpace(d))
	return o.configure(func(s *Settings) error {
		if !config.ValidDifficulty(d) {
			return fmt.Errorf("%w: %q", ErrInvalidDifficulty, d)
		}
		s.Difficulty = d
		return nil
	})
}

// SetJobDescription replaces the job description text.
func (o *Orchestrator) SetJobDescription(text string) error {
	return o.configure(func(s *Settings) error {
		s.JobDescription = text
		o.descSeq++
		return nil
	})
}

// ImportJobDescription fetches the description from rawURL in the background.
// The result is dropped when the description changes before it arrives.
func (o *Orchestrator) ImportJobDescription(rawURL string) error {
	if o.importer == nil {
		return ErrNoImporter
	}
	var (
		err error
		seq uint64
	)
	o.update(func() {
		if !o.phase.Resting() {
			err = ErrConfigurationFrozen
			return
		}
		o.descSeq++
		seq = o.descSeq
		o.clearErrorLocked()
		o.status = StatusImporting
	})
	if err != nil {
		return err
	}

	o.spawn(func() {
		text, ierr := o.importer.Import(o.ctx, rawURL)
		o.update(func() {
			if !o.phase.Resting() {
				return
			}
			if seq != o.descSeq {
				L_debug("interview: stale job description import dropped", "url", rawURL)
				if o.status == StatusImporting {
					o.status = ""
				}
				return
			}
			if ierr != nil {
				L_warn("interview: job description import failed", "url", rawURL, "error", ierr)
				o.setErrorLocked(KindImportFailed, ErrTextImportFailed)
				return
			}
			o.settings.JobDescription = text
			o.status = StatusImported
			L_info("interview: job description imported", "url", rawURL, "chars", len(text))
			o.refreshAmbientLocked(false)
		})
	})
	return nil
}

// ApplySettings replaces the settings from a reloaded config file. Reloads
// are ignored while a session is active.
func (o *Orchestrator) ApplySettings(s Settings) bool {
	applied := false
	o.update(func() {
		if !o.phase.Resting() {
			L_info("interview: config reload deferred, session active")
			return
		}
		if s.JobDescription == "" {
			s.JobDescription = o.settings.JobDescription
		}
		if s.JobDescription != o.settings.JobDescription {
			o.descSeq++
		}
		o.settings = s.normalized()
		applied = true
		o.refreshAmbientLocked(true)
	})
	return applied
}

// RequestMicrophone asks for microphone access.
func (o *Orchestrator) RequestMicrophone() {
	o.spawn(func() {
		err := o.capture.RequestPermission(o.ctx)
		o.update(func() {
			if err != nil {
				o.setErrorLocked(captureKind(err), captureText(err, ErrTextMicrophoneAccess))
			} else {
				if o.errKind == KindPermissionDenied {
					o.clearErrorLocked()
				}
				o.ambientPaused = false
			}
			o.refreshAmbientLocked(err == nil)
		})
	})
}

// ResumeAmbient restarts a paused ambient loop.
func (o *Orchestrator) ResumeAmbient() {
	o.update(func() {
		if !o.phase.Resting() {
			return
		}
		o.ambientPaused = false
		o.clearErrorLocked()
		o.refreshAmbientLocked(true)
	})
}

// SetAmbientEnabled suspends or re-enables the ambient loop.
func (o *Orchestrator) SetAmbientEnabled(on bool) {
	o.update(func() {
		o.ambientEnabled = on
		o.refreshAmbientLocked(true)
	})
}

// refreshAmbientLocked recomputes the resting phase from the prerequisites
// and starts the listener when they are met.
func (o *Orchestrator) refreshAmbientLocked(setStatus bool) {
	if !o.phase.Resting() {
		return
	}
	st := o.capture.State()
	var (
		phase  Phase
		amb    AmbientPhase
		status string
	)
	switch {
	case !o.ambientEnabled:
		o.stopAmbientLocked()
		phase, amb = PhaseIdle, AmbientOff
	case !st.Permission:
		o.stopAmbientLocked()
		phase, amb, status = PhaseAwaitingPrerequisites, AmbientRequestPermission, StatusAllowMic
	case strings.TrimSpace(o.settings.CandidateName) == "":
		o.stopAmbientLocked()
		phase, amb, status = PhaseAwaitingPrerequisites, AmbientPasteDescription, StatusNameRequired
	case strings.TrimSpace(o.settings.JobDescription) == "":
		o.stopAmbientLocked()
		o.capture.ResetTranscript()
		phase, amb, status = PhaseAwaitingPrerequisites, AmbientPasteDescription, StatusDescriptionNeeded
	case o.ambientPaused:
		phase, amb, status = PhaseCapturingAmbient, AmbientPaused, StatusPaused
	case o.ambientRunning && st.Listening:
		phase, amb, status = PhaseCapturingAmbient, AmbientListening, StatusListening
	default:
		phase, amb, status = PhaseCapturingAmbient, AmbientStartingListener, StatusPreparingMic
		if !o.ambientStarting {
			o.startAmbientLocked()
		}
	}
	o.phase = phase
	o.ambient = amb
	if setStatus && status != "" {
		o.status = status
	}
}

func (o *Orchestrator) stopAmbientLocked() {
	o.ambientGen++
	if o.ambientRunning || o.capture.State().Listening {
		o.ambientRunning = false
		o.capture.StopListening()
	}
}

func (o *Orchestrator) startAmbientLocked() {
	o.ambientStarting = true
	gen := o.ambientGen

	o.spawn(func() {
		err := o.capture.StartListening(o.ctx)
		o.update(func() {
			o.ambientStarting = false
			if gen != o.ambientGen || !o.phase.Resting() {
				if err == nil && !o.captureWantedLocked() {
					o.capture.StopListening()
				}
				o.refreshAmbientLocked(false)
				return
			}
			if err != nil {
				L_info("interview: ambient listening paused", "error", err)
				o.ambientPaused = true
				o.setErrorLocked(captureKind(err), captureText(err, ErrTextMicrophoneAccess))
			} else {
				o.ambientRunning = true
			}
			o.refreshAmbientLocked(true)
		})
	})
}
