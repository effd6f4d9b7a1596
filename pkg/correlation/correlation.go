// Package correlation carries per-operation identity through the pipeline.
// A Correlation travels inside context.Context so async child work inherits
// it without explicit parameter threading.
package correlation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

type ctxKey struct{}

// Correlation identifies one logical operation. CorrelationID spans the
// whole user-visible request; RequestID is unique per unit of work.
type Correlation struct {
	CorrelationID string
	RequestID     string
	UserID        string
	StartTime     time.Time

	mu       sync.Mutex
	metadata map[string]string
}

// New creates a Correlation. An empty correlationID gets a fresh random id;
// a caller-supplied one is kept verbatim so ids can cross process borders.
func New(correlationID string) *Correlation {
	if correlationID == "" {
		correlationID = fmt.Sprintf("corr-%s", uuid.NewString())
	}
	return &Correlation{
		CorrelationID: correlationID,
		RequestID:     fmt.Sprintf("req-%s", uuid.NewString()),
		StartTime:     time.Now(),
		metadata:      make(map[string]string),
	}
}

// Child derives a correlation for async child work: same CorrelationID and
// UserID, fresh RequestID and StartTime, empty metadata.
func (c *Correlation) Child() *Correlation {
	child := New(c.CorrelationID)
	child.UserID = c.UserID
	return child
}

// AddMetadata attaches a key/value pair. Safe for concurrent use.
func (c *Correlation) AddMetadata(key, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.metadata[key] = value
}

// Metadata returns a copy of the attached metadata.
func (c *Correlation) Metadata() map[string]string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]string, len(c.metadata))
	for k, v := range c.metadata {
		out[k] = v
	}
	return out
}

// Elapsed returns the time since the operation started.
func (c *Correlation) Elapsed() time.Duration {
	return time.Since(c.StartTime)
}

// Into returns a context carrying c.
func Into(ctx context.Context, c *Correlation) context.Context {
	return context.WithValue(ctx, ctxKey{}, c)
}

// From extracts the Correlation from ctx, if any.
func From(ctx context.Context) (*Correlation, bool) {
	c, ok := ctx.Value(ctxKey{}).(*Correlation)
	return c, ok
}

// ID returns the correlation id carried by ctx, or "".
func ID(ctx context.Context) string {
	if c, ok := From(ctx); ok {
		return c.CorrelationID
	}
	return ""
}

// Run executes fn inside a context carrying a new Correlation. When ctx
// already carries one, the new correlation is its child; otherwise a root
// correlation is created (with correlationID when non-empty).
func Run(ctx context.Context, correlationID string, fn func(ctx context.Context) error) error {
	var c *Correlation
	if parent, ok := From(ctx); ok && correlationID == "" {
		c = parent.Child()
	} else {
		c = New(correlationID)
	}
	return fn(Into(ctx, c))
}
