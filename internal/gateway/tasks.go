package gateway

import (
	_ "embed"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Task identifies one of the prompt templates.
type Task string

const (
	TaskRelevance Task = "relevance-check"
	TaskKeywords  Task = "keyword-extraction"
	TaskQuestions Task = "question-generation"
	TaskFeedback  Task = "answer-feedback"
)

// Tasks lists every task in pipeline order.
var Tasks = []Task{TaskRelevance, TaskKeywords, TaskQuestions, TaskFeedback}

// TaskOptions shape the session a task runs in.
type TaskOptions struct {
	SharedContext string `yaml:"sharedContext"`
	Tone          string `yaml:"tone"`   // formal, neutral, casual
	Format        string `yaml:"format"` // plain-text, markdown
	Length        string `yaml:"length"` // short, medium, long
	MaxTokens     int    `yaml:"maxTokens"`
}

// SystemPrompt renders the options as the session's system message.
func (o TaskOptions) SystemPrompt() string {
	var b strings.Builder
	b.WriteString(strings.TrimSpace(o.SharedContext))
	if !strings.HasSuffix(b.String(), ".") {
		b.WriteString(".")
	}
	fmt.Fprintf(&b, "\nWrite in a %s tone, as %s, with %s length.", o.Tone, o.Format, o.Length)
	return b.String()
}

//go:embed tasks.yaml
var tasksYAML []byte

// LoadTasks parses the embedded task catalog.
func LoadTasks() (map[Task]TaskOptions, error) {
	return parseTasks(tasksYAML)
}

func parseTasks(data []byte) (map[Task]TaskOptions, error) {
	var raw map[string]TaskOptions
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse task catalog: %w", err)
	}
	out := make(map[Task]TaskOptions, len(raw))
	for _, t := range Tasks {
		opts, ok := raw[string(t)]
		if !ok {
			return nil, fmt.Errorf("task catalog: missing %s", t)
		}
		if opts.SharedContext == "" {
			return nil, fmt.Errorf("task catalog: %s has no sharedContext", t)
		}
		out[t] = opts
	}
	return out, nil
}
