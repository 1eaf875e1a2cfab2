package metrics

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

const (
	maxSamples = 500 // Keep last 500 samples for percentile calculations
)

// Manager holds every metric recorded by the process.
type Manager struct {
	mu          sync.RWMutex
	timings     map[string]*TimingMetric
	counters    map[string]*CounterMetric
	successFail map[string]*SuccessFailMetric
	outcomes    map[string]*OutcomeMetric
	active      map[string]time.Time // For tracking active timings
	keyCounter  uint64               // For generating unique timer keys
}

var (
	instance *Manager
	once     sync.Once
)

// NewManager returns an empty manager (tests use their own).
func NewManager() *Manager {
	return &Manager{
		timings:     make(map[string]*TimingMetric),
		counters:    make(map[string]*CounterMetric),
		successFail: make(map[string]*SuccessFailMetric),
		outcomes:    make(map[string]*OutcomeMetric),
		active:      make(map[string]time.Time),
	}
}

// GetInstance returns the singleton metrics manager
func GetInstance() *Manager {
	once.Do(func() {
		instance = NewManager()
	})
	return instance
}

// buildPath creates a normalized path from topic and function
func buildPath(topic, function string) string {
	if function == "" {
		return topic
	}
	return fmt.Sprintf("%s/%s", topic, function)
}

// StartTiming begins timing an operation and returns the key to end it with.
func (m *Manager) StartTiming(topic, function string) string {
	path := buildPath(topic, function)
	counter := atomic.AddUint64(&m.keyCounter, 1)
	key := fmt.Sprintf("%s#%d", path, counter)

	m.mu.Lock()
	m.active[key] = time.Now()
	m.mu.Unlock()

	return key
}

// EndTiming completes timing an operation
func (m *Manager) EndTiming(key string) {
	m.mu.Lock()
	startTime, exists := m.active[key]
	if !exists {
		m.mu.Unlock()
		return
	}
	delete(m.active, key)
	m.mu.Unlock()

	path := key
	if idx := strings.LastIndex(key, "#"); idx >= 0 {
		path = key[:idx]
	}
	m.RecordDuration(path, "", time.Since(startTime))
}

// RecordDuration records a duration directly
func (m *Manager) RecordDuration(topic, function string, duration time.Duration) {
	path := buildPath(topic, function)

	m.mu.Lock()
	metric, exists := m.timings[path]
	if !exists {
		metric = &TimingMetric{
			samples: make([]time.Duration, 0, maxSamples),
			Min:     duration,
			Max:     duration,
		}
		m.timings[path] = metric
	}
	m.mu.Unlock()

	metric.mu.Lock()
	defer metric.mu.Unlock()

	metric.Count++
	metric.Total += duration
	metric.Last = duration
	if duration < metric.Min {
		metric.Min = duration
	}
	if duration > metric.Max {
		metric.Max = duration
	}

	if len(metric.samples) < maxSamples {
		metric.samples = append(metric.samples, duration)
	} else {
		metric.samples[metric.sampleIdx] = duration
		metric.sampleIdx = (metric.sampleIdx + 1) % maxSamples
	}
}

// AddCounter adds to a counter
func (m *Manager) AddCounter(topic, function string, delta int64) {
	path := buildPath(topic, function)

	m.mu.Lock()
	metric, exists := m.counters[path]
	if !exists {
		metric = &CounterMetric{}
		m.counters[path] = metric
	}
	m.mu.Unlock()

	metric.mu.Lock()
	defer metric.mu.Unlock()
	metric.Value += delta
	metric.Last = time.Now()
}

func (m *Manager) successFailMetric(path string) *SuccessFailMetric {
	m.mu.Lock()
	defer m.mu.Unlock()
	metric, exists := m.successFail[path]
	if !exists {
		metric = &SuccessFailMetric{FailureReasons: make(map[string]int64)}
		m.successFail[path] = metric
	}
	return metric
}

// RecordSuccess records a successful operation
func (m *Manager) RecordSuccess(topic, function string) {
	metric := m.successFailMetric(buildPath(topic, function))

	metric.mu.Lock()
	defer metric.mu.Unlock()
	metric.Success++
	metric.LastSuccess = time.Now()
}

// RecordFailure records a failed operation
func (m *Manager) RecordFailure(topic, function, reason string) {
	metric := m.successFailMetric(buildPath(topic, function))

	metric.mu.Lock()
	defer metric.mu.Unlock()
	metric.Failures++
	metric.LastFailure = time.Now()
	if reason != "" {
		metric.FailureReasons[reason]++
	}
}

// RecordOutcome records a specific outcome
func (m *Manager) RecordOutcome(topic, function, outcome string) {
	path := buildPath(topic, function)

	m.mu.Lock()
	metric, exists := m.outcomes[path]
	if !exists {
		metric = &OutcomeMetric{Outcomes: make(map[string]int64)}
		m.outcomes[path] = metric
	}
	m.mu.Unlock()

	metric.mu.Lock()
	defer metric.mu.Unlock()
	metric.Outcomes[outcome]++
	metric.Total++
	metric.LastOutcome = outcome
	metric.LastTime = time.Now()
}

// Snapshot returns every metric, sorted by path.
func (m *Manager) Snapshot() []MetricSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []MetricSnapshot
	for path, t := range m.timings {
		out = append(out, MetricSnapshot{Path: path, Type: TypeTiming, Data: t.snapshot()})
	}
	for path, c := range m.counters {
		c.mu.RLock()
		out = append(out, MetricSnapshot{Path: path, Type: TypeCounter, Data: CounterSnapshot{Value: c.Value}})
		c.mu.RUnlock()
	}
	for path, sf := range m.successFail {
		out = append(out, MetricSnapshot{Path: path, Type: TypeSuccessFail, Data: sf.snapshot()})
	}
	for path, o := range m.outcomes {
		out = append(out, MetricSnapshot{Path: path, Type: TypeOutcome, Data: o.snapshot()})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Path == out[j].Path {
			return out[i].Type < out[j].Type
		}
		return out[i].Path < out[j].Path
	})
	return out
}

// Reset drops all recorded metrics.
func (m *Manager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.timings = make(map[string]*TimingMetric)
	m.counters = make(map[string]*CounterMetric)
	m.successFail = make(map[string]*SuccessFailMetric)
	m.outcomes = make(map[string]*OutcomeMetric)
	m.active = make(map[string]time.Time)
}

func (t *TimingMetric) snapshot() TimingSnapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()

	s := TimingSnapshot{
		Count:  t.Count,
		MinMs:  ms(t.Min),
		MaxMs:  ms(t.Max),
		LastMs: ms(t.Last),
	}
	if t.Count > 0 {
		s.AvgMs = ms(t.Total / time.Duration(t.Count))
	}
	if len(t.samples) >= 20 {
		sorted := make([]time.Duration, len(t.samples))
		copy(sorted, t.samples)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
		s.P95Ms = ms(sorted[len(sorted)*95/100])
	}
	return s
}

func (sf *SuccessFailMetric) snapshot() SuccessFailSnapshot {
	sf.mu.RLock()
	defer sf.mu.RUnlock()

	s := SuccessFailSnapshot{Success: sf.Success, Failures: sf.Failures}
	if total := sf.Success + sf.Failures; total > 0 {
		s.SuccessRate = float64(sf.Success) / float64(total)
	}
	if len(sf.FailureReasons) > 0 {
		s.FailureReasons = make(map[string]int64, len(sf.FailureReasons))
		for k, v := range sf.FailureReasons {
			s.FailureReasons[k] = v
		}
	}
	return s
}

func (o *OutcomeMetric) snapshot() OutcomeSnapshot {
	o.mu.RLock()
	defer o.mu.RUnlock()

	s := OutcomeSnapshot{Outcomes: make(map[string]int64, len(o.Outcomes)), Total: o.Total, Last: o.LastOutcome}
	for k, v := range o.Outcomes {
		s.Outcomes[k] = v
	}
	return s
}

func ms(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
