package resiliency

import "sync"

// Upstream names with process-wide breakers.
const (
	UpstreamOCR = "ocr"
	UpstreamLLM = "llm"
)

// BreakerSet holds one breaker per named upstream, created on first use.
// The pipeline shares a single set so every adapter call counts against the
// same state.
type BreakerSet struct {
	cfg BreakerConfig

	mu       sync.Mutex
	breakers map[string]*CircuitBreaker
}

// NewBreakerSet creates a set whose breakers share cfg.
func NewBreakerSet(cfg BreakerConfig) *BreakerSet {
	return &BreakerSet{
		cfg:      cfg,
		breakers: make(map[string]*CircuitBreaker),
	}
}

// For returns the breaker for an upstream, creating it when absent.
func (s *BreakerSet) For(upstream string) *CircuitBreaker {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cb, ok := s.breakers[upstream]; ok {
		return cb
	}
	cb := NewCircuitBreaker(upstream, s.cfg)
	s.breakers[upstream] = cb
	return cb
}

// ResetAll force-closes every breaker in the set.
func (s *BreakerSet) ResetAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, cb := range s.breakers {
		cb.Reset()
	}
}
