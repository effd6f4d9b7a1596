// Package analyzer turns a template spec and extracted document text into
// the canonical audit report. Two code paths produce the same schema: a
// JSON-schema-constrained LLM call when a model is configured, and a
// deterministic rule-based fallback otherwise. The fallback is deliberately
// lenient: a document with real content passes unless strict fallback is
// enabled, because a false FAIL from a heuristic is worse than routing to a
// human.
package analyzer

import (
	"context"
	"strings"
	"time"

	"github.com/Mindburn-Labs/jobproof/pkg/calibration"
	"github.com/Mindburn-Labs/jobproof/pkg/contracts"
	"github.com/Mindburn-Labs/jobproof/pkg/correlation"
	"github.com/Mindburn-Labs/jobproof/pkg/dlq"
	"github.com/Mindburn-Labs/jobproof/pkg/privacy"
	"github.com/Mindburn-Labs/jobproof/pkg/resiliency"
	"github.com/Mindburn-Labs/jobproof/pkg/safelog"
)

// Input is everything the analyzer needs for one document.
type Input struct {
	Spec        *contracts.TemplateSpec
	Text        string
	PageCount   int
	Calibration *calibration.Result
	DocumentID  string
}

// Analyzer produces canonical audit reports.
type Analyzer struct {
	client         Client
	breaker        *resiliency.CircuitBreaker
	retry          resiliency.RetryOptions
	queue          *dlq.Queue
	redactor       *privacy.Redactor
	log            *safelog.Logger
	strictFallback bool
	now            func() time.Time
}

// AnalyzerOption configures an Analyzer.
type AnalyzerOption func(*Analyzer)

// WithClient sets the LLM client. A nil client means rule-based fallback
// only.
func WithClient(c Client) AnalyzerOption { return func(a *Analyzer) { a.client = c } }

// WithBreaker sets the shared LLM circuit breaker.
func WithBreaker(b *resiliency.CircuitBreaker) AnalyzerOption {
	return func(a *Analyzer) { a.breaker = b }
}

// WithRetry overrides the retry options for the LLM path.
func WithRetry(r resiliency.RetryOptions) AnalyzerOption { return func(a *Analyzer) { a.retry = r } }

// WithDLQ sets the dead-letter queue for breaker-open failures.
func WithDLQ(q *dlq.Queue) AnalyzerOption { return func(a *Analyzer) { a.queue = q } }

// WithRedactor redacts PII from finding snippets before they are reported.
func WithRedactor(r *privacy.Redactor) AnalyzerOption { return func(a *Analyzer) { a.redactor = r } }

// WithLogger overrides the analyzer logger.
func WithLogger(l *safelog.Logger) AnalyzerOption { return func(a *Analyzer) { a.log = l } }

// WithStrictFallback makes the rule-based fallback derive the overall
// result from finding severities instead of content presence.
func WithStrictFallback(strict bool) AnalyzerOption {
	return func(a *Analyzer) { a.strictFallback = strict }
}

// WithClock overrides the clock for tests.
func WithClock(now func() time.Time) AnalyzerOption { return func(a *Analyzer) { a.now = now } }

// New builds an analyzer. Without options it runs the rule-based fallback
// only.
func New(opts ...AnalyzerOption) *Analyzer {
	a := &Analyzer{
		retry: resiliency.DefaultRetryOptions(),
		log:   safelog.New("analyzer"),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Analyze produces the canonical audit report for one document. It never
// returns an error: every failure mode is expressed through the report's
// overall result and error code, so the pipeline has exactly one shape to
// handle.
func (a *Analyzer) Analyze(ctx context.Context, in Input) *contracts.AuditReport {
	start := a.now()

	var report *contracts.AuditReport
	if a.client != nil {
		report = a.analyzeLLM(ctx, in)
	} else {
		report = a.fallback(in)
	}

	a.finalize(report, in, start)
	if report.CorrelationID == "" {
		report.CorrelationID = correlation.ID(ctx)
	}
	return report
}

func (a *Analyzer) analyzeLLM(ctx context.Context, in Input) *contracts.AuditReport {
	attempts := 0
	retry := a.retry
	retry.OnRetry = func(attempt int, err error, delay time.Duration) {
		attempts = attempt
		a.log.Warn(ctx, "analyzer retry scheduled", map[string]any{
			"attempt": attempt,
			"delayMs": delay.Milliseconds(),
			"error":   err.Error(),
		})
	}

	var report *contracts.AuditReport
	err := resiliency.WithResiliency(ctx, a.breaker, retry, func(ctx context.Context) error {
		r, err := a.client.Analyze(ctx, in.Spec, in.Text)
		if err != nil {
			return err
		}
		report = r
		return nil
	})

	if err != nil {
		code := resiliency.CodeProcessingError
		if resiliency.IsCircuitOpen(err) {
			code = resiliency.CodeCircuitOpen
			a.deadLetter(ctx, in.DocumentID, err)
		}
		return a.errorReport(code, err.Error(), attempts)
	}
	report.RetryAttempts = attempts
	return report
}

// errorReport is the uniform failure shape: review queue, zero score, one
// pipeline-error finding.
func (a *Analyzer) errorReport(code, message string, attempts int) *contracts.AuditReport {
	return &contracts.AuditReport{
		OverallResult: contracts.ResultReviewQueue,
		Score:         0,
		Findings: []contracts.Finding{{
			RuleID:       "pipeline",
			FieldName:    "",
			Severity:     contracts.SeverityS1,
			ReasonCode:   contracts.ReasonPipelineError,
			Confidence:   100,
			WhyItMatters: "the analysis step failed; the document was not audited",
			SuggestedFix: "retry the document or inspect the dead letter queue",
		}},
		ExtractedFields: map[string]string{},
		Summary:         "analysis failed: " + message,
		ErrorCode:       code,
		RetryAttempts:   attempts,
	}
}

func (a *Analyzer) deadLetter(ctx context.Context, documentID string, cause error) {
	if a.queue == nil || documentID == "" {
		return
	}
	job := a.queue.Add(dlq.AddRequest{
		DocumentID:    documentID,
		CorrelationID: correlation.ID(ctx),
		Stage:         dlq.StageAnalysis,
		Error:         dlq.JobError{Message: cause.Error(), Code: resiliency.CodeOf(cause)},
	})
	a.log.Warn(ctx, "analysis dead lettered", map[string]any{
		"documentId": documentID, "jobId": job.ID,
	})
}

// finalize applies the invariants shared by both paths: canonical finding
// order, closed reason codes, optional PII redaction, timing, model, and
// correlation stamps.
func (a *Analyzer) finalize(report *contracts.AuditReport, in Input, start time.Time) {
	for i := range report.Findings {
		if !contracts.IsReasonCode(report.Findings[i].ReasonCode) {
			// The enum is closed; anything a model invents is a gap in the
			// spec, not a new category.
			report.Findings[i].ReasonCode = contracts.ReasonSpecGap
		}
		if a.redactor != nil {
			report.Findings[i].RawSnippet = a.redactor.RedactText(report.Findings[i].RawSnippet)
			report.Findings[i].NormalisedSnippet = a.redactor.RedactText(report.Findings[i].NormalisedSnippet)
		}
	}
	contracts.SortFindings(report.Findings)

	if report.ExtractedFields == nil {
		report.ExtractedFields = map[string]string{}
	}
	if report.Model == "" {
		if a.client != nil {
			report.Model = a.client.Model()
		} else {
			report.Model = "rule-based"
		}
	}
	report.ProcessingMs = a.now().Sub(start).Milliseconds()
}

func wordCount(text string) int {
	return len(strings.Fields(text))
}
