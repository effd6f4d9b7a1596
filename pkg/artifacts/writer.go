package artifacts

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Mindburn-Labs/jobproof/pkg/canonicalize"
	"github.com/Mindburn-Labs/jobproof/pkg/correlation"
	"github.com/Mindburn-Labs/jobproof/pkg/safelog"
)

// Writer persists enveloped artifacts under canonical keys. Writes are
// best-effort from the pipeline's point of view: the caller decides whether
// a write failure is fatal.
type Writer struct {
	store BlobStore
	log   *safelog.Logger
	now   func() time.Time
}

// WriterOption configures a Writer.
type WriterOption func(*Writer)

// WithWriterLogger overrides the default logger.
func WithWriterLogger(log *safelog.Logger) WriterOption {
	return func(w *Writer) { w.log = log }
}

// WithWriterClock overrides the timestamp source.
func WithWriterClock(now func() time.Time) WriterOption {
	return func(w *Writer) { w.now = now }
}

// NewWriter creates a Writer over the given store.
func NewWriter(store BlobStore, opts ...WriterOption) *Writer {
	w := &Writer{store: store, now: time.Now}
	for _, opt := range opts {
		opt(w)
	}
	if w.log == nil {
		w.log = safelog.New("artifacts")
	}
	return w
}

// WriteSelectionTrace persists a selection trace and returns its key:
// artifacts/selection/selection_trace_<docId>_<ms>.json
func (w *Writer) WriteSelectionTrace(ctx context.Context, documentID string, trace any) (string, error) {
	ts := w.now()
	key := fmt.Sprintf("artifacts/selection/selection_trace_%s_%d.json",
		safeID(documentID), ts.UnixMilli())
	return key, w.write(ctx, KindSelectionTrace, key, trace, ts)
}

// WriteActivationReport persists an activation report and returns its key:
// artifacts/activation/activation_report_<versionId>_<ms>.json
func (w *Writer) WriteActivationReport(ctx context.Context, versionID string, report any) (string, error) {
	ts := w.now()
	key := fmt.Sprintf("artifacts/activation/activation_report_%s_%d.json",
		safeID(versionID), ts.UnixMilli())
	return key, w.write(ctx, KindActivationReport, key, report, ts)
}

// WriteInsights persists an advisory insights artifact and returns its key:
// artifacts/insights/insights_<corrId>.json
func (w *Writer) WriteInsights(ctx context.Context, insights any) (string, error) {
	corrID := correlation.ID(ctx)
	if corrID == "" {
		corrID = "uncorrelated"
	}
	key := fmt.Sprintf("artifacts/insights/insights_%s.json", safeID(corrID))
	return key, w.write(ctx, KindInsights, key, insights, w.now())
}

// WriteAuditReport persists the canonical audit report and returns its key:
// artifacts/audit/audit_report_<docId>.json
func (w *Writer) WriteAuditReport(ctx context.Context, documentID string, report any) (string, error) {
	key := fmt.Sprintf("artifacts/audit/audit_report_%s.json", safeID(documentID))
	return key, w.write(ctx, KindAuditReport, key, report, w.now())
}

// Read loads and integrity-checks an envelope by key.
func (w *Writer) Read(ctx context.Context, key string) (*Envelope, error) {
	data, err := w.store.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	env, err := DecodeEnvelope(data)
	if err != nil {
		return nil, err
	}
	if reasons := env.Verify(); len(reasons) > 0 {
		return nil, fmt.Errorf("artifacts: envelope %s failed verification: %s",
			key, strings.Join(reasons, "; "))
	}
	return env, nil
}

func (w *Writer) write(ctx context.Context, kind, key string, payload any, ts time.Time) error {
	env, err := NewEnvelope(kind, correlation.ID(ctx), payload, ts)
	if err != nil {
		return err
	}
	// Canonical serialization keeps artifact bytes stable across runs.
	data, err := canonicalize.JCS(env)
	if err != nil {
		return fmt.Errorf("artifacts: serialize envelope: %w", err)
	}
	if err := w.store.Put(ctx, key, data); err != nil {
		return err
	}
	w.log.Debug(ctx, "artifact written", map[string]any{
		"kind": kind, "key": key, "payloadHash": env.PayloadHash,
	})
	return nil
}

// safeID keeps ids filename-safe. Anything outside [A-Za-z0-9._-] becomes
// an underscore.
func safeID(id string) string {
	if id == "" {
		return "unknown"
	}
	var b strings.Builder
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9',
			r == '.', r == '_', r == '-':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}
