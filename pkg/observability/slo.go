package observability

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// SLOTarget defines a latency/success objective for one pipeline stage.
type SLOTarget struct {
	SLOID       string        `json:"sloId"`
	Stage       string        `json:"stage"`
	LatencyP99  time.Duration `json:"latencyP99"`
	SuccessRate float64       `json:"successRate"` // 0..1
	WindowHours int           `json:"windowHours"`
}

// SLOObservation is a single stage execution.
type SLOObservation struct {
	Stage     string        `json:"stage"`
	Latency   time.Duration `json:"latency"`
	Success   bool          `json:"success"`
	Timestamp time.Time     `json:"timestamp"`
}

// SLOStatus reports current compliance for a stage.
type SLOStatus struct {
	SLOID            string  `json:"sloId"`
	Stage            string  `json:"stage"`
	CurrentP99       float64 `json:"currentP99Ms"`
	CurrentSuccess   float64 `json:"currentSuccessRate"`
	InCompliance     bool    `json:"inCompliance"`
	BurnRate         float64 `json:"burnRate"`        // >1 burns faster than budget allows
	ErrorBudgetLeft  float64 `json:"errorBudgetLeft"` // percent remaining
	ObservationCount int     `json:"observationCount"`
}

// SLOTracker monitors stage objectives over a sliding window.
type SLOTracker struct {
	mu           sync.Mutex
	targets      map[string]*SLOTarget
	observations map[string][]SLOObservation
	clock        func() time.Time
}

// NewSLOTracker creates an empty tracker.
func NewSLOTracker() *SLOTracker {
	return &SLOTracker{
		targets:      make(map[string]*SLOTarget),
		observations: make(map[string][]SLOObservation),
		clock:        time.Now,
	}
}

// WithClock overrides the clock for testing.
func (t *SLOTracker) WithClock(clock func() time.Time) *SLOTracker {
	t.clock = clock
	return t
}

// DefaultTargets covers the external-facing pipeline stages. OCR and
// analysis carry provider latency; selection and calibration are local.
func DefaultTargets() []*SLOTarget {
	return []*SLOTarget{
		{SLOID: "slo-ocr", Stage: StageOCR, LatencyP99: 30 * time.Second, SuccessRate: 0.99, WindowHours: 24},
		{SLOID: "slo-selection", Stage: StageSelection, LatencyP99: 100 * time.Millisecond, SuccessRate: 0.999, WindowHours: 24},
		{SLOID: "slo-calibration", Stage: StageCalibration, LatencyP99: 50 * time.Millisecond, SuccessRate: 0.999, WindowHours: 24},
		{SLOID: "slo-analysis", Stage: StageAnalysis, LatencyP99: 60 * time.Second, SuccessRate: 0.98, WindowHours: 24},
	}
}

// SetTarget registers or replaces the target for a stage.
func (t *SLOTracker) SetTarget(target *SLOTarget) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.targets[target.Stage] = target
}

// Record stores an observation.
func (t *SLOTracker) Record(obs SLOObservation) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if obs.Timestamp.IsZero() {
		obs.Timestamp = t.clock()
	}
	t.observations[obs.Stage] = append(t.observations[obs.Stage], obs)
}

// Status computes compliance for a stage within its window.
func (t *SLOTracker) Status(stage string) (*SLOStatus, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	target, ok := t.targets[stage]
	if !ok {
		return nil, fmt.Errorf("observability: no SLO target for stage %q", stage)
	}

	now := t.clock()
	windowStart := now.Add(-time.Duration(target.WindowHours) * time.Hour)

	var windowed []SLOObservation
	for _, obs := range t.observations[stage] {
		if obs.Timestamp.After(windowStart) {
			windowed = append(windowed, obs)
		}
	}

	if len(windowed) == 0 {
		return &SLOStatus{
			SLOID:           target.SLOID,
			Stage:           stage,
			InCompliance:    true,
			ErrorBudgetLeft: 100.0,
		}, nil
	}

	successCount := 0
	latencies := make([]float64, len(windowed))
	for i, obs := range windowed {
		if obs.Success {
			successCount++
		}
		latencies[i] = float64(obs.Latency.Milliseconds())
	}
	successRate := float64(successCount) / float64(len(windowed))

	sort.Float64s(latencies)
	p99Index := int(float64(len(latencies)) * 0.99)
	if p99Index >= len(latencies) {
		p99Index = len(latencies) - 1
	}
	p99 := latencies[p99Index]

	inCompliance := p99 <= float64(target.LatencyP99.Milliseconds()) &&
		successRate >= target.SuccessRate

	errorBudget := 1.0 - target.SuccessRate
	errorRate := 1.0 - successRate
	var burnRate, budgetLeft float64
	if errorBudget > 0 {
		burnRate = errorRate / errorBudget
		budgetLeft = 100.0 * (1.0 - burnRate)
		if budgetLeft < 0 {
			budgetLeft = 0
		}
	}

	return &SLOStatus{
		SLOID:            target.SLOID,
		Stage:            stage,
		CurrentP99:       p99,
		CurrentSuccess:   successRate,
		InCompliance:     inCompliance,
		BurnRate:         burnRate,
		ErrorBudgetLeft:  budgetLeft,
		ObservationCount: len(windowed),
	}, nil
}
