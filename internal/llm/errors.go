package llm

import (
	"errors"
	"strings"
)

// ErrorType categorizes host errors for availability and user messaging decisions.
type ErrorType string

const (
	ErrorTypeUnknown         ErrorType = "unknown"
	ErrorTypeUnreachable     ErrorType = "unreachable"
	ErrorTypeModelNotFound   ErrorType = "model_not_found"
	ErrorTypeContextOverflow ErrorType = "context_overflow"
	ErrorTypeOverloaded      ErrorType = "overloaded"
	ErrorTypeAuth            ErrorType = "auth"
	ErrorTypeTimeout         ErrorType = "timeout"
)

// Classify determines the error type of err, looking at typed errors first.
func Classify(err error) ErrorType {
	if err == nil {
		return ErrorTypeUnknown
	}
	var unavailable ErrUnavailable
	if errors.As(err, &unavailable) {
		return ErrorTypeUnreachable
	}
	return ClassifyError(err.Error())
}

// ClassifyError determines the error type from an error message.
// Returns ErrorTypeUnknown if the error doesn't match any known pattern.
func ClassifyError(msg string) ErrorType {
	if msg == "" {
		return ErrorTypeUnknown
	}
	// Check in order of specificity
	if IsModelNotFoundMessage(msg) {
		return ErrorTypeModelNotFound
	}
	if IsContextOverflowMessage(msg) {
		return ErrorTypeContextOverflow
	}
	if IsUnreachableMessage(msg) {
		return ErrorTypeUnreachable
	}
	if IsOverloadedMessage(msg) {
		return ErrorTypeOverloaded
	}
	if IsAuthMessage(msg) {
		return ErrorTypeAuth
	}
	if IsTimeoutMessage(msg) {
		return ErrorTypeTimeout
	}
	return ErrorTypeUnknown
}

// IsUnavailable reports whether err means the host or model cannot serve
// requests at all, as opposed to a single failed call.
func IsUnavailable(err error) bool {
	switch Classify(err) {
	case ErrorTypeUnreachable, ErrorTypeModelNotFound, ErrorTypeAuth:
		return true
	}
	return false
}

// IsModelNotFoundMessage checks if a message indicates the model is not installed.
func IsModelNotFoundMessage(msg string) bool {
	lower := strings.ToLower(msg)

	// Ollama: `model "llama3.2:3b" not found, try pulling it first`
	if strings.Contains(lower, "model") && strings.Contains(lower, "not found") {
		return true
	}
	// OpenAI-compatible servers
	return strings.Contains(lower, "model_not_found") ||
		(strings.Contains(lower, "does not exist") && strings.Contains(lower, "model"))
}

// IsUnreachableMessage checks if a message indicates the host could not be contacted.
func IsUnreachableMessage(msg string) bool {
	lower := strings.ToLower(msg)
	return strings.Contains(lower, "connection refused") ||
		strings.Contains(lower, "no such host") ||
		strings.Contains(lower, "network is unreachable") ||
		strings.Contains(lower, "is unavailable")
}

// IsContextOverflowMessage checks if an error message indicates context overflow.
func IsContextOverflowMessage(msg string) bool {
	lower := strings.ToLower(msg)

	// LM Studio
	if strings.Contains(lower, "context size has been exceeded") {
		return true
	}

	// OpenAI-compatible
	if strings.Contains(lower, "context_length_exceeded") {
		return true
	}

	return strings.Contains(lower, "maximum context length") ||
		strings.Contains(lower, "prompt is too long") ||
		strings.Contains(lower, "exceeds model context window") ||
		strings.Contains(lower, "context overflow")
}

// IsOverloadedMessage checks if a message indicates the host is busy.
func IsOverloadedMessage(msg string) bool {
	lower := strings.ToLower(msg)

	// HTTP 503
	if strings.Contains(lower, "503") && (strings.Contains(lower, "service") || strings.Contains(lower, "unavailable")) {
		return true
	}

	return strings.Contains(lower, "overloaded") ||
		strings.Contains(lower, "server is busy") ||
		strings.Contains(lower, "server busy") ||
		strings.Contains(lower, "temporarily unavailable")
}

// IsAuthMessage checks if a message indicates authentication failure.
func IsAuthMessage(msg string) bool {
	lower := strings.ToLower(msg)

	// HTTP 401, 403
	if strings.Contains(lower, "status code: 401") || strings.Contains(lower, "status code: 403") ||
		strings.Contains(lower, "status 401") || strings.Contains(lower, "status 403") {
		return true
	}

	return strings.Contains(lower, "invalid api key") ||
		strings.Contains(lower, "invalid_api_key") ||
		strings.Contains(lower, "incorrect api key") ||
		strings.Contains(lower, "unauthorized")
}

// IsTimeoutMessage checks if a message indicates a timeout.
func IsTimeoutMessage(msg string) bool {
	lower := strings.ToLower(msg)
	return strings.Contains(lower, "timeout") ||
		strings.Contains(lower, "timed out") ||
		strings.Contains(lower, "deadline exceeded") ||
		strings.Contains(lower, "connection reset")
}
