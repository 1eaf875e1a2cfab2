package interview

import (
	"errors"
	"fmt"

	"github.com/roelfdiedericks/gocoach/internal/config"
)

// Status copy shown to the candidate.
const (
	StatusAllowMic           = "Allow microphone access to begin."
	StatusSpeechUnsupported  = "Speech recognition is not supported on this host."
	StatusNameRequired       = "Add your name to personalise your interview."
	StatusDescriptionNeeded  = "Paste the job description to start voice capture."
	StatusPaused             = "Voice capture paused. Resume when you are ready."
	StatusListening          = "Listening. Your answers will be transcribed for the AI engine."
	StatusPreparingMic       = "Preparing microphone..."
	StatusInterviewEnded     = "Interview ended. Start again when you're ready."
	StatusRecordingAnswer    = "Recording your answer..."
	StatusRecordingRestarted = "Recording restarted. Speak when ready."
	StatusInterviewComplete  = "Interview complete. Review your answers below."
	StatusImporting          = "Importing the job description..."
	StatusImported           = "Job description imported."
)

// Error copy. Raw technical errors are logged, never shown.
const (
	ErrTextMicrophoneAccess     = "Unable to access your microphone right now."
	ErrTextSynthesisUnsupported = "Speech synthesis is not supported on this host."
	ErrTextPlayQuestion         = "Unable to play the question audio."
	ErrTextStartRecording       = "Unable to start recording your answer."
	ErrTextRestartRecording     = "Unable to restart recording."
	ErrTextAnalyzeAnswers       = "Unable to analyse your answers right now."
	ErrTextKeywordsUnavailable  = "Unable to generate keywords right now."
	ErrTextQuestionsUnavailable = "Unable to generate interview questions right now."
	ErrTextDescriptionInvalid   = "We couldn't recognise that job description. Try another one."
	ErrTextNoKeywords           = "No keywords found. Please refine the job description."
	ErrTextNoQuestions          = "No questions were returned. Try again later."
	ErrTextNameRequired         = "Please enter your name before starting the interview."
	ErrTextRecognitionDropped   = "Voice capture stopped unexpectedly. Resume when you are ready."
	ErrTextImportFailed         = "We couldn't import that job description. Paste it instead."
	ErrTextImportUnavailable    = "Importing from a link isn't available. Paste the job description instead."
	ErrTextSettingsFrozen       = "Settings can't change while an interview is running."
	ErrTextInvalidDifficulty    = "Choose easy, medium or hard."
	ErrTextSessionActive        = "An interview is already running."
	ErrTextPermissionDenied     = "Microphone access was denied."
	ErrTextRequestFailed        = "Something went wrong. Please try again."
)

var errTextQuestionCount = fmt.Sprintf("Choose between %d and %d questions.", config.MinQuestionCount, config.MaxQuestionCount)

// errorText is the candidate-facing copy for err.
func errorText(err error) string {
	switch {
	case errors.Is(err, ErrSessionActive):
		return ErrTextSessionActive
	case errors.Is(err, ErrNoImporter):
		return ErrTextImportUnavailable
	}
	switch Classify(err) {
	case KindNameRequired:
		return ErrTextNameRequired
	case KindDescriptionInvalid:
		return ErrTextDescriptionInvalid
	case KindNoKeywordsFound:
		return ErrTextNoKeywords
	case KindNoQuestionsReturned:
		return ErrTextNoQuestions
	case KindAnswerAnalysisFailed:
		return ErrTextAnalyzeAnswers
	case KindConfigurationFrozen:
		return ErrTextSettingsFrozen
	case KindQuestionCountOutOfRange:
		return errTextQuestionCount
	case KindInvalidDifficulty:
		return ErrTextInvalidDifficulty
	case KindPermissionDenied:
		return ErrTextPermissionDenied
	case KindUnsupportedEnvironment:
		return StatusSpeechUnsupported
	case KindRecognitionDropped:
		return ErrTextRecognitionDropped
	case KindMalformedResponse, KindGenerationUnavailable, KindActivationRequired:
		return ErrTextQuestionsUnavailable
	case KindImportFailed:
		return ErrTextImportFailed
	}
	return ErrTextRequestFailed
}

func questionProgress(i, n int) string {
	return fmt.Sprintf("Question %d of %d", i+1, n)
}

func preparingFirstQuestion(name string) string {
	return fmt.Sprintf("Preparing your first interview question, %s...", name)
}

// Loader is a progress indicator shown while a generation step runs.
type Loader struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Message string `json:"message"`
}

var (
	loaderKeywords = Loader{
		ID:      "keyword-extraction",
		Title:   "Analysing keywords",
		Message: "Extracting relevant keywords from the job description",
	}
	loaderQuestions = Loader{
		ID:      "question-generation",
		Title:   "Generating questions",
		Message: "Crafting tailored interview prompts",
	}
	loaderAnalysis = Loader{
		ID:      "answer-analysis",
		Title:   "Reviewing your answers",
		Message: "Highlighting improvement opportunities",
	}
)
