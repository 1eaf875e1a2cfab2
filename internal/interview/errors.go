package interview

import (
	"errors"

	"github.com/roelfdiedericks/gocoach/internal/capture"
	"github.com/roelfdiedericks/gocoach/internal/gateway"
	"github.com/roelfdiedericks/gocoach/internal/llm"
	"github.com/roelfdiedericks/gocoach/internal/narration"
)

var (
	ErrNameRequired            = errors.New("interview: candidate name required")
	ErrDescriptionInvalid      = errors.New("interview: job description not recognised")
	ErrNoKeywordsFound         = errors.New("interview: no keywords found")
	ErrNoQuestionsReturned     = errors.New("interview: no questions returned")
	ErrAnswerAnalysisFailed    = errors.New("interview: answer analysis failed")
	ErrConfigurationFrozen     = errors.New("interview: configuration is frozen while a session is active")
	ErrQuestionCountOutOfRange = errors.New("interview: question count out of range")
	ErrInvalidDifficulty       = errors.New("interview: invalid difficulty")
	ErrSessionActive           = errors.New("interview: a session is already active")
	ErrNoImporter              = errors.New("interview: job description import not configured")
)

// ErrorKind is the user-facing category of a failure.
type ErrorKind string

const (
	KindNone                    ErrorKind = ""
	KindPermissionDenied        ErrorKind = "permission-denied"
	KindUnsupportedEnvironment  ErrorKind = "unsupported-environment"
	KindRecognitionDropped      ErrorKind = "recognition-dropped"
	KindNameRequired            ErrorKind = "name-required"
	KindDescriptionInvalid      ErrorKind = "description-invalid"
	KindNoKeywordsFound         ErrorKind = "no-keywords-found"
	KindNoQuestionsReturned     ErrorKind = "no-questions-returned"
	KindActivationRequired      ErrorKind = "activation-requires-user-gesture"
	KindMalformedResponse       ErrorKind = "malformed-generation-response"
	KindGenerationUnavailable   ErrorKind = "generation-unavailable"
	KindAnswerAnalysisFailed    ErrorKind = "answer-analysis-failed"
	KindConfigurationFrozen     ErrorKind = "configuration-frozen"
	KindQuestionCountOutOfRange ErrorKind = "question-count-out-of-range"
	KindInvalidDifficulty       ErrorKind = "invalid-difficulty"
	KindImportFailed            ErrorKind = "import-failed"
	KindUnknown                 ErrorKind = "unknown"
)

// Classify maps an error from any layer to its ErrorKind.
func Classify(err error) ErrorKind {
	if err == nil {
		return KindNone
	}
	switch {
	case errors.Is(err, ErrNameRequired):
		return KindNameRequired
	case errors.Is(err, ErrDescriptionInvalid):
		return KindDescriptionInvalid
	case errors.Is(err, ErrNoKeywordsFound):
		return KindNoKeywordsFound
	case errors.Is(err, ErrNoQuestionsReturned):
		return KindNoQuestionsReturned
	case errors.Is(err, ErrAnswerAnalysisFailed):
		return KindAnswerAnalysisFailed
	case errors.Is(err, ErrConfigurationFrozen):
		return KindConfigurationFrozen
	case errors.Is(err, ErrQuestionCountOutOfRange):
		return KindQuestionCountOutOfRange
	case errors.Is(err, ErrInvalidDifficulty):
		return KindInvalidDifficulty
	case errors.Is(err, capture.ErrPermissionDenied):
		return KindPermissionDenied
	case errors.Is(err, capture.ErrUnsupportedEnvironment),
		errors.Is(err, narration.ErrUnsupportedEnvironment):
		return KindUnsupportedEnvironment
	case errors.Is(err, capture.ErrRecognitionDropped):
		return KindRecognitionDropped
	case errors.Is(err, gateway.ErrActivationRequiresUserGesture):
		return KindActivationRequired
	case errors.Is(err, gateway.ErrMalformedResponse):
		return KindMalformedResponse
	case errors.Is(err, gateway.ErrGenerationUnavailable), llm.IsUnavailable(err):
		return KindGenerationUnavailable
	}
	// any other model host failure still means generation is unavailable
	if llm.Classify(err) != llm.ErrorTypeUnknown {
		return KindGenerationUnavailable
	}
	return KindUnknown
}

// generationKind classifies a failed generation step: malformed output keeps
// its own kind, everything else reads as unavailability.
func generationKind(err error) ErrorKind {
	if k := Classify(err); k == KindMalformedResponse || k == KindActivationRequired {
		return k
	}
	return KindGenerationUnavailable
}

func captureKind(err error) ErrorKind {
	if k := Classify(err); k == KindPermissionDenied || k == KindUnsupportedEnvironment {
		return k
	}
	return KindRecognitionDropped
}

func captureText(err error, fallback string) string {
	if errors.Is(err, capture.ErrUnsupportedEnvironment) {
		return StatusSpeechUnsupported
	}
	if errors.Is(err, capture.ErrPermissionDenied) {
		return ErrTextMicrophoneAccess
	}
	return fallback
}
