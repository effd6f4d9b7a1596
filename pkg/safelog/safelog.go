// Package safelog is the pipeline's logging surface. Every record passes
// through forbidden-field filtering, long-field truncation, and PII
// redaction before it reaches the sink, and each record carries the
// correlation id found in its context.
//
// The handler implements log/slog.Handler, so both the pipeline's Logger
// and any slog-based caller share the same safety guarantees.
package safelog

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/Mindburn-Labs/jobproof/pkg/correlation"
	"github.com/Mindburn-Labs/jobproof/pkg/privacy"
)

// Entry is the wire shape of one log line.
type Entry struct {
	Timestamp     time.Time      `json:"timestamp"`
	Level         string         `json:"level"`
	CorrelationID string         `json:"correlationId,omitempty"`
	Service       string         `json:"service"`
	Message       string         `json:"message"`
	Data          map[string]any `json:"data,omitempty"`
}

// Handler is a slog.Handler that sanitizes and emits Entry JSON lines.
type Handler struct {
	mu       *sync.Mutex
	w        io.Writer
	level    slog.Leveler
	service  string
	redactor *privacy.Redactor
	attrs    []slog.Attr
}

// NewHandler creates a sanitizing handler writing to w.
func NewHandler(w io.Writer, service string, level slog.Leveler, redactor *privacy.Redactor) *Handler {
	if w == nil {
		w = os.Stdout
	}
	if level == nil {
		level = slog.LevelInfo
	}
	if redactor == nil {
		redactor = privacy.New()
	}
	return &Handler{
		mu:       &sync.Mutex{},
		w:        w,
		level:    level,
		service:  service,
		redactor: redactor,
	}
}

// Enabled implements slog.Handler.
func (h *Handler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

// Handle implements slog.Handler. Attrs named "data" holding a map are
// merged into the entry's data; any other attr becomes one data key.
func (h *Handler) Handle(ctx context.Context, rec slog.Record) error {
	data := make(map[string]any)
	for _, a := range h.attrs {
		collectAttr(data, a)
	}
	rec.Attrs(func(a slog.Attr) bool {
		collectAttr(data, a)
		return true
	})

	data = Sanitize(data, h.redactor)
	if len(data) == 0 {
		data = nil
	}

	ts := rec.Time
	if ts.IsZero() {
		ts = time.Now()
	}

	e := Entry{
		Timestamp:     ts.UTC(),
		Level:         levelName(rec.Level),
		CorrelationID: correlation.ID(ctx),
		Service:       h.service,
		Message:       rec.Message,
		Data:          data,
	}

	b, err := json.Marshal(e)
	if err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err = h.w.Write(append(b, '\n'))
	return err
}

// WithAttrs implements slog.Handler.
func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	nh := *h
	nh.attrs = append(append([]slog.Attr{}, h.attrs...), attrs...)
	return &nh
}

// WithGroup implements slog.Handler. Groups are flattened: the pipeline's
// wire shape has a single data object.
func (h *Handler) WithGroup(string) slog.Handler { return h }

func collectAttr(data map[string]any, a slog.Attr) {
	v := a.Value.Resolve()
	if a.Key == "data" {
		if m, ok := v.Any().(map[string]any); ok {
			for k, val := range m {
				data[k] = val
			}
			return
		}
	}
	if v.Kind() == slog.KindGroup {
		inner := make(map[string]any)
		for _, ga := range v.Group() {
			collectAttr(inner, ga)
		}
		data[a.Key] = inner
		return
	}
	data[a.Key] = v.Any()
}

func levelName(l slog.Level) string {
	switch {
	case l >= slog.LevelError:
		return "error"
	case l >= slog.LevelWarn:
		return "warn"
	case l >= slog.LevelInfo:
		return "info"
	default:
		return "debug"
	}
}

// LevelFromEnv resolves LOG_LEVEL into a slog.Level, defaulting to info.
func LevelFromEnv() slog.Level {
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Logger is the convenience front over the handler.
type Logger struct {
	s *slog.Logger
}

// Option configures a Logger.
type Option func(*options)

type options struct {
	w        io.Writer
	level    slog.Leveler
	redactor *privacy.Redactor
}

// WithWriter directs output to w (tests inject a buffer).
func WithWriter(w io.Writer) Option { return func(o *options) { o.w = w } }

// WithLevel sets the minimum level.
func WithLevel(l slog.Leveler) Option { return func(o *options) { o.level = l } }

// WithRedactor overrides the PII redactor.
func WithRedactor(r *privacy.Redactor) Option { return func(o *options) { o.redactor = r } }

// New creates a Logger for the named service writing to stdout unless
// overridden. Level defaults to LOG_LEVEL.
func New(service string, opts ...Option) *Logger {
	o := &options{level: LevelFromEnv()}
	for _, opt := range opts {
		opt(o)
	}
	h := NewHandler(o.w, service, o.level, o.redactor)
	return &Logger{s: slog.New(h)}
}

// Slog exposes the underlying slog.Logger for callers that prefer it.
func (l *Logger) Slog() *slog.Logger { return l.s }

func (l *Logger) log(ctx context.Context, level slog.Level, msg string, data map[string]any) {
	if data == nil {
		l.s.LogAttrs(ctx, level, msg)
		return
	}
	l.s.LogAttrs(ctx, level, msg, slog.Any("data", data))
}

// Debug logs at debug level.
func (l *Logger) Debug(ctx context.Context, msg string, data map[string]any) {
	l.log(ctx, slog.LevelDebug, msg, data)
}

// Info logs at info level.
func (l *Logger) Info(ctx context.Context, msg string, data map[string]any) {
	l.log(ctx, slog.LevelInfo, msg, data)
}

// Warn logs at warn level.
func (l *Logger) Warn(ctx context.Context, msg string, data map[string]any) {
	l.log(ctx, slog.LevelWarn, msg, data)
}

// Error logs at error level.
func (l *Logger) Error(ctx context.Context, msg string, data map[string]any) {
	l.log(ctx, slog.LevelError, msg, data)
}
