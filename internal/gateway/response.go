package gateway

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"
)

// RelevanceResult is the relevance check output.
type RelevanceResult struct {
	Result bool `json:"result"`
}

// KeywordResult is the keyword extraction output.
type KeywordResult struct {
	Keywords []string `json:"keywords"`
}

// QuestionResult is the question generation output.
type QuestionResult struct {
	Questions []string `json:"questions"`
}

// FeedbackResult is the answer feedback output.
type FeedbackResult struct {
	Feedback string `json:"feedback"`
}

// Clean strips code fences and any prose around the JSON object.
func Clean(raw string) string {
	s := strings.TrimSpace(raw)
	s = strings.ReplaceAll(s, "```", "")
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "json")
	s = strings.TrimPrefix(s, "JSON")
	s = strings.TrimSpace(s)

	if strings.HasPrefix(s, "{") && strings.HasSuffix(s, "}") {
		return s
	}
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start >= 0 && end > start {
		return s[start : end+1]
	}
	return s
}

// decodeStrict unmarshals data into out, which must point to a struct.
// Every field without omitempty must be present and non-null.
func decodeStrict(data []byte, out any) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	if fields == nil {
		return errors.New("response is null")
	}

	t := reflect.TypeOf(out)
	if t.Kind() != reflect.Pointer || t.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("decode target must be a struct pointer, got %s", t)
	}
	t = t.Elem()
	for i := 0; i < t.NumField(); i++ {
		name, opts, _ := strings.Cut(t.Field(i).Tag.Get("json"), ",")
		if name == "-" || !t.Field(i).IsExported() {
			continue
		}
		if name == "" {
			name = t.Field(i).Name
		}
		if strings.Contains(opts, "omitempty") {
			continue
		}
		v, ok := fields[name]
		if !ok || bytes.Equal(bytes.TrimSpace(v), []byte("null")) {
			return fmt.Errorf("missing field %q", name)
		}
	}
	return json.Unmarshal(data, out)
}

var numberingRe = regexp.MustCompile(`^\s*(?:(?:Q(?:uestion)?\s*)?\d+\s*[.):-]|[-*•])\s*`)

// NormalizeQuestions enforces the question ordering rules on model output:
// the fixed introduction first, a single fit question last, no duplicates,
// and at most count entries. An empty input stays empty.
func NormalizeQuestions(questions []string, name string, count int) []string {
	var cleaned []string
	for _, q := range questions {
		q = strings.TrimSpace(numberingRe.ReplaceAllString(q, ""))
		q = strings.Trim(q, `"`)
		if q != "" {
			cleaned = append(cleaned, q)
		}
	}
	if len(cleaned) == 0 {
		return []string{}
	}

	intro := IntroQuestion(name)
	seen := map[string]bool{questionKey(intro): true}
	closing := ""
	body := make([]string, 0, len(cleaned))
	for _, q := range cleaned {
		// the fixed introduction replaces any the model wrote
		if looksLikeIntro(q) {
			continue
		}
		key := questionKey(q)
		if seen[key] {
			continue
		}
		seen[key] = true
		body = append(body, q)
	}

	// The model's last fit question closes the interview wherever it was placed.
	for i := len(body) - 1; i >= 0; i-- {
		if looksLikeFit(body[i]) {
			closing = body[i]
			body = append(body[:i], body[i+1:]...)
			break
		}
	}
	if closing == "" {
		closing = FitQuestion
	}

	if count > 0 {
		if count < 2 {
			return []string{intro}
		}
		if len(body) > count-2 {
			body = body[:count-2]
		}
	}

	out := make([]string, 0, len(body)+2)
	out = append(out, intro)
	out = append(out, body...)
	return append(out, closing)
}

func questionKey(q string) string {
	return strings.ToLower(strings.TrimRight(q, "?.! "))
}

func looksLikeIntro(q string) bool {
	lower := strings.ToLower(q)
	return strings.HasPrefix(lower, "hi ") || strings.HasPrefix(lower, "hi,") ||
		strings.HasPrefix(lower, "hello") ||
		strings.Contains(lower, "walk me through your background") ||
		strings.Contains(lower, "tell me about yourself") ||
		strings.Contains(lower, "introduce yourself")
}

var fitRe = regexp.MustCompile(`(?i)\bfit\b|motivat|why do you want|why are you interested|why this role|why should we hire|excites you about this role`)

func looksLikeFit(q string) bool {
	return fitRe.MatchString(q)
}
