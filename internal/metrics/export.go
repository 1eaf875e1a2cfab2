package metrics

import (
	"encoding/json"
	"fmt"
	"io"
	"time"
)

// Global functions for dot-import usage

// MetricStart begins timing an operation
func MetricStart(topic, function string) string {
	return GetInstance().StartTiming(topic, function)
}

// MetricEnd completes timing an operation
func MetricEnd(key string) {
	GetInstance().EndTiming(key)
}

// MetricDuration records a duration directly
func MetricDuration(topic, function string, duration time.Duration) {
	GetInstance().RecordDuration(topic, function, duration)
}

// MetricInc increments a counter by 1
func MetricInc(topic, function string) {
	GetInstance().AddCounter(topic, function, 1)
}

// MetricSuccess records a successful operation
func MetricSuccess(topic, operation string) {
	GetInstance().RecordSuccess(topic, operation)
}

// MetricFailWithReason records a failed operation with a specific reason
func MetricFailWithReason(topic, operation, reason string) {
	GetInstance().RecordFailure(topic, operation, reason)
}

// MetricOutcome records a specific outcome
func MetricOutcome(topic, operation, outcome string) {
	GetInstance().RecordOutcome(topic, operation, outcome)
}

// WriteJSON writes the current snapshot as indented JSON.
func WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(GetInstance().Snapshot())
}

// Summary renders one line per metric, for debug logs on exit.
func Summary() []string {
	snaps := GetInstance().Snapshot()
	lines := make([]string, 0, len(snaps))
	for _, s := range snaps {
		switch d := s.Data.(type) {
		case TimingSnapshot:
			lines = append(lines, fmt.Sprintf("%s: n=%d avg=%.0fms max=%.0fms", s.Path, d.Count, d.AvgMs, d.MaxMs))
		case CounterSnapshot:
			lines = append(lines, fmt.Sprintf("%s: %d", s.Path, d.Value))
		case SuccessFailSnapshot:
			lines = append(lines, fmt.Sprintf("%s: ok=%d fail=%d", s.Path, d.Success, d.Failures))
		case OutcomeSnapshot:
			lines = append(lines, fmt.Sprintf("%s: %v", s.Path, d.Outcomes))
		}
	}
	return lines
}
