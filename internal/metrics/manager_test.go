package metrics

import (
	"testing"
	"time"
)

func TestTimingSnapshot(t *testing.T) {
	m := NewManager()
	m.RecordDuration("gateway", "keywords", 10*time.Millisecond)
	m.RecordDuration("gateway", "keywords", 30*time.Millisecond)

	snaps := m.Snapshot()
	if len(snaps) != 1 {
		t.Fatalf("got %d snapshots, want 1", len(snaps))
	}
	if snaps[0].Path != "gateway/keywords" || snaps[0].Type != TypeTiming {
		t.Errorf("snapshot = %+v, want gateway/keywords timing", snaps[0])
	}
	ts := snaps[0].Data.(TimingSnapshot)
	if ts.Count != 2 || ts.AvgMs != 20 || ts.MinMs != 10 || ts.MaxMs != 30 || ts.LastMs != 30 {
		t.Errorf("timing = %+v", ts)
	}
}

func TestStartEndTiming(t *testing.T) {
	m := NewManager()
	key := m.StartTiming("pipeline", "setup")
	m.EndTiming(key)
	m.EndTiming(key) // second end is ignored

	ts := m.Snapshot()[0].Data.(TimingSnapshot)
	if ts.Count != 1 {
		t.Errorf("count = %d, want 1", ts.Count)
	}
}

func TestSuccessFailAndOutcome(t *testing.T) {
	m := NewManager()
	m.RecordSuccess("gateway", "feedback")
	m.RecordFailure("gateway", "feedback", "malformed")
	m.RecordFailure("gateway", "feedback", "malformed")
	m.RecordOutcome("pipeline", "setup", "ready")
	m.RecordOutcome("pipeline", "setup", "description_invalid")
	m.AddCounter("capture", "errors", 3)

	var sf SuccessFailSnapshot
	var oc OutcomeSnapshot
	var ct CounterSnapshot
	for _, s := range m.Snapshot() {
		switch d := s.Data.(type) {
		case SuccessFailSnapshot:
			sf = d
		case OutcomeSnapshot:
			oc = d
		case CounterSnapshot:
			ct = d
		}
	}

	if sf.Success != 1 || sf.Failures != 2 || sf.FailureReasons["malformed"] != 2 {
		t.Errorf("success/fail = %+v", sf)
	}
	if oc.Total != 2 || oc.Last != "description_invalid" || oc.Outcomes["ready"] != 1 {
		t.Errorf("outcome = %+v", oc)
	}
	if ct.Value != 3 {
		t.Errorf("counter = %d, want 3", ct.Value)
	}

	m.Reset()
	if n := len(m.Snapshot()); n != 0 {
		t.Errorf("after Reset got %d metrics, want 0", n)
	}
}
