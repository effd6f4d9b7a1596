// Package dlq holds jobs that failed during pipeline processing so they can
// be inspected and retried. The queue is an in-process bounded store:
// oldest entries are evicted on overflow and everything ages out after a
// configurable horizon.
//
// Writes are best-effort by contract: a caller reporting a failure must
// never let a DLQ problem mask the original error.
package dlq

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Stage identifies where in the pipeline a job failed.
type Stage string

const (
	StageUpload   Stage = "upload"
	StageOCR      Stage = "ocr"
	StageAnalysis Stage = "analysis"
	StageStorage  Stage = "storage"
)

// JobError is the failure recorded with a job.
type JobError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// FailedJob is one dead-lettered unit of work.
type FailedJob struct {
	ID            string            `json:"id"`
	DocumentID    string            `json:"documentId"`
	CorrelationID string            `json:"correlationId,omitempty"`
	Stage         Stage             `json:"stage"`
	Error         JobError          `json:"error"`
	Attempts      int               `json:"attempts"`
	MaxAttempts   int               `json:"maxAttempts"`
	LastAttemptAt time.Time         `json:"lastAttemptAt"`
	CreatedAt     time.Time         `json:"createdAt"`
	Metadata      map[string]string `json:"metadata,omitempty"`
	Recoverable   bool              `json:"recoverable"`
}

// Stats summarizes queue contents.
type Stats struct {
	Total       int           `json:"total"`
	Recoverable int           `json:"recoverable"`
	ByStage     map[Stage]int `json:"byStage"`
	Oldest      time.Time     `json:"oldest,omitempty"`
}

// ErrNotFound is returned when no job has the requested id.
var ErrNotFound = errors.New("dlq: job not found")

// DefaultCapacity bounds the queue unless overridden.
const DefaultCapacity = 1000

// DefaultMaxAttempts is used when Add receives a job without one.
const DefaultMaxAttempts = 3

// transientPatterns classify an error as recoverable: the failure looks like
// something a later retry could clear. Substring match, case-insensitive.
var transientPatterns = []string{
	"connection reset",
	"econnreset",
	"timeout",
	"etimedout",
	"no such host",
	"enotfound",
	"eai_again",
	"rate limit",
	"rate_limit",
	"429",
	"500",
	"502",
	"503",
	"504",
	"circuit breaker",
	"temporary failure",
}

// IsRecoverable classifies an error message against the transient set.
func IsRecoverable(message, code string) bool {
	s := strings.ToLower(message + " " + code)
	for _, p := range transientPatterns {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}

// Queue is a thread-safe bounded dead-letter store preserving insertion
// order.
type Queue struct {
	mu       sync.Mutex
	capacity int
	order    []string
	jobs     map[string]*FailedJob
	now      func() time.Time
}

// New creates a queue with the given capacity; zero or negative means
// DefaultCapacity.
func New(capacity int) *Queue {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Queue{
		capacity: capacity,
		jobs:     make(map[string]*FailedJob),
		now:      time.Now,
	}
}

// WithClock overrides the queue's clock for tests.
func (q *Queue) WithClock(now func() time.Time) *Queue {
	q.now = now
	return q
}

// AddRequest carries the inputs for one dead-letter entry.
type AddRequest struct {
	DocumentID    string
	CorrelationID string
	Stage         Stage
	Error         JobError
	MaxAttempts   int
	Metadata      map[string]string
}

// Add records a failed job, classifying recoverability from its error, and
// returns the stored entry. On overflow the oldest entry is evicted.
func (q *Queue) Add(req AddRequest) *FailedJob {
	now := q.now().UTC()
	maxAttempts := req.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	job := &FailedJob{
		ID:            uuid.NewString(),
		DocumentID:    req.DocumentID,
		CorrelationID: req.CorrelationID,
		Stage:         req.Stage,
		Error:         req.Error,
		Attempts:      1,
		MaxAttempts:   maxAttempts,
		LastAttemptAt: now,
		CreatedAt:     now,
		Metadata:      req.Metadata,
		Recoverable:   IsRecoverable(req.Error.Message, req.Error.Code),
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.order) >= q.capacity {
		oldest := q.order[0]
		q.order = q.order[1:]
		delete(q.jobs, oldest)
	}
	q.order = append(q.order, job.ID)
	q.jobs[job.ID] = job
	return job.clone()
}

// Get returns the job with the given id.
func (q *Queue) Get(id string) (*FailedJob, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	job, ok := q.jobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return job.clone(), nil
}

// ListByStage returns jobs for one stage in insertion order.
func (q *Queue) ListByStage(stage Stage) []*FailedJob {
	return q.list(func(j *FailedJob) bool { return j.Stage == stage })
}

// ListByDocument returns jobs for one document in insertion order.
func (q *Queue) ListByDocument(documentID string) []*FailedJob {
	return q.list(func(j *FailedJob) bool { return j.DocumentID == documentID })
}

// ListRecoverable returns jobs still eligible for retry in insertion order.
func (q *Queue) ListRecoverable() []*FailedJob {
	return q.list(func(j *FailedJob) bool { return j.Recoverable })
}

func (q *Queue) list(keep func(*FailedJob) bool) []*FailedJob {
	q.mu.Lock()
	defer q.mu.Unlock()
	var out []*FailedJob
	for _, id := range q.order {
		if j := q.jobs[id]; keep(j) {
			out = append(out, j.clone())
		}
	}
	return out
}

// IncrementAttempts records one more retry of a job. Once attempts reach
// MaxAttempts the job is marked unrecoverable.
func (q *Queue) IncrementAttempts(id string) (*FailedJob, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	job, ok := q.jobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	job.Attempts++
	job.LastAttemptAt = q.now().UTC()
	if job.Attempts >= job.MaxAttempts {
		job.Recoverable = false
	}
	return job.clone(), nil
}

// MarkRecovered removes a successfully retried job from the queue.
func (q *Queue) MarkRecovered(id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.jobs[id]; !ok {
		return ErrNotFound
	}
	delete(q.jobs, id)
	for i, oid := range q.order {
		if oid == id {
			q.order = append(q.order[:i], q.order[i+1:]...)
			break
		}
	}
	return nil
}

// Stats summarizes the queue.
func (q *Queue) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()
	s := Stats{ByStage: make(map[Stage]int)}
	for _, id := range q.order {
		j := q.jobs[id]
		s.Total++
		if j.Recoverable {
			s.Recoverable++
		}
		s.ByStage[j.Stage]++
		if s.Oldest.IsZero() || j.CreatedAt.Before(s.Oldest) {
			s.Oldest = j.CreatedAt
		}
	}
	return s
}

// PurgeOlderThan drops entries created more than the given number of hours
// ago and returns how many were removed.
func (q *Queue) PurgeOlderThan(hours int) int {
	cutoff := q.now().UTC().Add(-time.Duration(hours) * time.Hour)
	q.mu.Lock()
	defer q.mu.Unlock()
	var kept []string
	removed := 0
	for _, id := range q.order {
		if q.jobs[id].CreatedAt.Before(cutoff) {
			delete(q.jobs, id)
			removed++
			continue
		}
		kept = append(kept, id)
	}
	q.order = kept
	return removed
}

func (j *FailedJob) clone() *FailedJob {
	c := *j
	if j.Metadata != nil {
		c.Metadata = make(map[string]string, len(j.Metadata))
		for k, v := range j.Metadata {
			c.Metadata[k] = v
		}
	}
	return &c
}
