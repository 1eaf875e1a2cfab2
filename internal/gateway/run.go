package gateway

import (
	"context"
	"fmt"
	"strings"
)

// CheckRelevance reports whether description reads as a technical job description.
func CheckRelevance(ctx context.Context, s *Session, description string) (bool, error) {
	if err := s.expect(TaskRelevance); err != nil {
		return false, err
	}
	res, err := Generate[RelevanceResult](ctx, s, RelevancePrompt(s.description(description)))
	if err != nil {
		return false, err
	}
	return res.Result, nil
}

// ExtractKeywords returns the technical keywords of description, possibly none.
func ExtractKeywords(ctx context.Context, s *Session, description string) ([]string, error) {
	if err := s.expect(TaskKeywords); err != nil {
		return nil, err
	}
	res, err := Generate[KeywordResult](ctx, s, KeywordPrompt(s.description(description)))
	if err != nil {
		return nil, err
	}
	keywords := make([]string, 0, len(res.Keywords))
	for _, k := range res.Keywords {
		if k = strings.TrimSpace(k); k != "" {
			keywords = append(keywords, k)
		}
	}
	return keywords, nil
}

// GenerateQuestions returns the normalized question list. No keywords means
// no questions, without calling the model.
func GenerateQuestions(ctx context.Context, s *Session, args QuestionArgs) ([]string, error) {
	if len(args.Keywords) == 0 {
		return []string{}, nil
	}
	if err := s.expect(TaskQuestions); err != nil {
		return nil, err
	}
	res, err := Generate[QuestionResult](ctx, s, QuestionPrompt(args))
	if err != nil {
		return nil, err
	}
	return NormalizeQuestions(res.Questions, args.CandidateName, args.QuestionCount), nil
}

// AnswerFeedback returns feedback on one answer; a blank answer is reviewed
// as "No answer provided."
func AnswerFeedback(ctx context.Context, s *Session, question, answer string) (string, error) {
	if err := s.expect(TaskFeedback); err != nil {
		return "", err
	}
	res, err := Generate[FeedbackResult](ctx, s, FeedbackPrompt(question, answer))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(res.Feedback), nil
}

func (s *Session) expect(task Task) error {
	if s == nil || s.closed.Load() {
		return ErrGenerationUnavailable
	}
	if s.task != task {
		return fmt.Errorf("gateway: session for %s used for %s", s.task, task)
	}
	return nil
}
