package observability

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Mindburn-Labs/jobproof/pkg/canonicalize"
)

// TimelineEntryType categorizes pipeline timeline entries.
type TimelineEntryType string

const (
	EntryTypeStage    TimelineEntryType = "STAGE"
	EntryTypeDecision TimelineEntryType = "DECISION"
	EntryTypeArtifact TimelineEntryType = "ARTIFACT"
	EntryTypeError    TimelineEntryType = "ERROR"
)

// TimelineEntry is one recorded pipeline event. ContentHash covers Details
// so a stored timeline can be checked for tampering.
type TimelineEntry struct {
	EntryID       string            `json:"entryId"`
	EntryType     TimelineEntryType `json:"entryType"`
	CorrelationID string            `json:"correlationId"`
	DocumentID    string            `json:"documentId,omitempty"`
	Stage         string            `json:"stage,omitempty"`
	Timestamp     time.Time         `json:"timestamp"`
	Summary       string            `json:"summary"`
	ContentHash   string            `json:"contentHash"`
	Details       map[string]any    `json:"details,omitempty"`
}

// TimelineQuery filters timeline entries.
type TimelineQuery struct {
	CorrelationID string
	EntryType     *TimelineEntryType
	After         *time.Time
	Before        *time.Time
	Limit         int
}

// PipelineTimeline collects per-document pipeline events, queryable by
// correlation id. It is process-local and bounded only by process lifetime;
// durable audit history lives in the artifact store.
type PipelineTimeline struct {
	mu      sync.RWMutex
	entries []TimelineEntry
	index   map[string][]int // correlationID -> entry indices
	seq     int64
	clock   func() time.Time
}

// NewPipelineTimeline creates an empty timeline.
func NewPipelineTimeline() *PipelineTimeline {
	return &PipelineTimeline{
		index: make(map[string][]int),
		clock: time.Now,
	}
}

// WithClock overrides the clock for testing.
func (t *PipelineTimeline) WithClock(clock func() time.Time) *PipelineTimeline {
	t.clock = clock
	return t
}

// Record adds an entry, stamping id, timestamp, and content hash.
func (t *PipelineTimeline) Record(entry TimelineEntry) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.seq++
	if entry.EntryID == "" {
		entry.EntryID = fmt.Sprintf("tl-%d", t.seq)
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = t.clock()
	}

	data, err := json.Marshal(entry.Details)
	if err != nil {
		return fmt.Errorf("observability: marshal timeline details: %w", err)
	}
	entry.ContentHash = "sha256:" + canonicalize.HashBytes(data)

	idx := len(t.entries)
	t.entries = append(t.entries, entry)
	if entry.CorrelationID != "" {
		t.index[entry.CorrelationID] = append(t.index[entry.CorrelationID], idx)
	}
	return nil
}

// Query returns matching entries sorted by timestamp.
func (t *PipelineTimeline) Query(q TimelineQuery) []TimelineEntry {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var candidates []TimelineEntry
	if q.CorrelationID != "" {
		indices, ok := t.index[q.CorrelationID]
		if !ok {
			return nil
		}
		for _, i := range indices {
			candidates = append(candidates, t.entries[i])
		}
	} else {
		candidates = make([]TimelineEntry, len(t.entries))
		copy(candidates, t.entries)
	}

	var results []TimelineEntry
	for _, e := range candidates {
		if q.EntryType != nil && e.EntryType != *q.EntryType {
			continue
		}
		if q.After != nil && e.Timestamp.Before(*q.After) {
			continue
		}
		if q.Before != nil && e.Timestamp.After(*q.Before) {
			continue
		}
		results = append(results, e)
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].Timestamp.Before(results[j].Timestamp)
	})

	if q.Limit > 0 && len(results) > q.Limit {
		results = results[:q.Limit]
	}
	return results
}

// Count returns the total number of entries.
func (t *PipelineTimeline) Count() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}
