package setup

import (
	"testing"

	"github.com/roelfdiedericks/gocoach/internal/config"
)

func TestAnswersRoundTrip(t *testing.T) {
	cfg := config.Defaults()
	cfg.Interview.CandidateName = "Dana"

	a := answersFrom(cfg)
	if a.Name != "Dana" || a.QuestionCount != config.MinQuestionCount || !a.Ambient {
		t.Fatalf("answersFrom() = %+v", a)
	}

	a.Name = "  Lee  "
	a.QuestionCount = 9
	a.Difficulty = "hard"
	a.Ambient = false
	a.Recognizer = "typed"
	a.Model = " qwen2.5:7b "

	if warnings := a.applyTo(cfg); len(warnings) != 0 {
		t.Errorf("applyTo() warnings = %v, want none", warnings)
	}
	if cfg.Interview.CandidateName != "Lee" {
		t.Errorf("CandidateName = %q, want %q", cfg.Interview.CandidateName, "Lee")
	}
	if cfg.Interview.QuestionCount != 9 {
		t.Errorf("QuestionCount = %d, want 9", cfg.Interview.QuestionCount)
	}
	if cfg.AmbientEnabled() {
		t.Error("AmbientEnabled() = true, want false")
	}
	if cfg.Capture.Recognizer != "typed" {
		t.Errorf("Recognizer = %q, want typed", cfg.Capture.Recognizer)
	}
	if cfg.Generation.Model != "qwen2.5:7b" {
		t.Errorf("Model = %q, want trimmed", cfg.Generation.Model)
	}
}

func TestApplyValidates(t *testing.T) {
	tests := []struct {
		name       string
		edit       func(*answers)
		wantCount  int
		wantDiff   string
		wantWarned bool
	}{
		{"clean", func(*answers) {}, config.MinQuestionCount, "medium", false},
		{"count too high", func(a *answers) { a.QuestionCount = 40 }, config.MaxQuestionCount, "medium", true},
		{"unknown difficulty", func(a *answers) { a.Difficulty = "brutal" }, config.MinQuestionCount, "medium", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Defaults()
			a := answersFrom(cfg)
			tt.edit(a)
			warnings := a.applyTo(cfg)
			if got := len(warnings) > 0; got != tt.wantWarned {
				t.Errorf("warned = %v, want %v (%v)", got, tt.wantWarned, warnings)
			}
			if cfg.Interview.QuestionCount != tt.wantCount {
				t.Errorf("QuestionCount = %d, want %d", cfg.Interview.QuestionCount, tt.wantCount)
			}
			if cfg.Interview.Difficulty != tt.wantDiff {
				t.Errorf("Difficulty = %q, want %q", cfg.Interview.Difficulty, tt.wantDiff)
			}
		})
	}
}

func TestCountOptions(t *testing.T) {
	opts := countOptions()
	if len(opts) != config.MaxQuestionCount-config.MinQuestionCount+1 {
		t.Fatalf("len(countOptions()) = %d", len(opts))
	}
	if opts[0].Value != config.MinQuestionCount || opts[len(opts)-1].Value != config.MaxQuestionCount {
		t.Errorf("countOptions() range = %d..%d", opts[0].Value, opts[len(opts)-1].Value)
	}
}
