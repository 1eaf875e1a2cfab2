// Package tokens estimates prompt sizes so job descriptions fit the model context.
package tokens

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"

	. "github.com/roelfdiedericks/gocoach/internal/logging"
)

// Estimator counts and trims tokens using tiktoken
type Estimator struct {
	encoding *tiktoken.Tiktoken
	mu       sync.RWMutex
}

// DefaultEncoding is cl100k_base. Local models tokenize differently, so counts are approximate.
const DefaultEncoding = "cl100k_base"

// charsPerToken is the fallback ratio when no encoding is loaded.
const charsPerToken = 4

var (
	globalEstimator     *Estimator
	globalEstimatorOnce sync.Once
)

// Get returns the global token estimator (singleton)
func Get() *Estimator {
	globalEstimatorOnce.Do(func() {
		var err error
		globalEstimator, err = New()
		if err != nil {
			L_warn("tokens: failed to load encoding, using char estimate", "error", err)
			globalEstimator = &Estimator{}
		}
	})
	return globalEstimator
}

// New creates a new token estimator
func New() (*Estimator, error) {
	enc, err := tiktoken.GetEncoding(DefaultEncoding)
	if err != nil {
		return nil, err
	}
	return &Estimator{encoding: enc}, nil
}

// Count returns the token count for a string.
// Falls back to chars/4 if tiktoken is unavailable.
func (e *Estimator) Count(text string) int {
	if e == nil || e.encoding == nil {
		return len(text) / charsPerToken
	}

	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.encoding.Encode(text, nil, nil))
}

// Truncate returns text cut to at most maxTokens tokens and whether it was cut.
// maxTokens <= 0 disables truncation.
func (e *Estimator) Truncate(text string, maxTokens int) (string, bool) {
	if maxTokens <= 0 || text == "" {
		return text, false
	}

	if e == nil || e.encoding == nil {
		limit := maxTokens * charsPerToken
		if len(text) <= limit {
			return text, false
		}
		return cutRunes(text, limit), true
	}

	e.mu.RLock()
	defer e.mu.RUnlock()
	ids := e.encoding.Encode(text, nil, nil)
	if len(ids) <= maxTokens {
		return text, false
	}
	return e.encoding.Decode(ids[:maxTokens]), true
}

// cutRunes trims to at most n bytes without splitting a UTF-8 sequence.
func cutRunes(s string, n int) string {
	if n >= len(s) {
		return s
	}
	for n > 0 && n < len(s) && s[n]&0xC0 == 0x80 {
		n--
	}
	return s[:n]
}

// Estimate is a convenience function using the global estimator.
func Estimate(text string) int {
	return Get().Count(text)
}

// Truncate trims text with the global estimator.
func Truncate(text string, maxTokens int) (string, bool) {
	return Get().Truncate(text, maxTokens)
}

// SafetyMargin accounts for tokenizer drift between cl100k_base and local models.
const SafetyMargin = 1.2

// ContextFor returns a context window large enough for the prompt plus the
// reply, capped at modelMax when the model reports one.
func ContextFor(promptTokens, replyTokens, modelMax int) int {
	need := int(float64(promptTokens)*SafetyMargin) + replyTokens
	if need < 2048 {
		need = 2048
	}
	if modelMax > 0 && need > modelMax {
		return modelMax
	}
	return need
}
