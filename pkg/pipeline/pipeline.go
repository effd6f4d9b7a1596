// Package pipeline orchestrates the per-document audit flow: OCR, template
// selection, heuristic field extraction, calibration with guardrails, the
// analyzer verdict, and the optional advisory interpreter. Adapter failures
// never escape Process for audit-time work; every failure mode becomes an
// AuditReport with a stable error code, so callers handle exactly one shape.
package pipeline

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/Mindburn-Labs/jobproof/pkg/analyzer"
	"github.com/Mindburn-Labs/jobproof/pkg/artifacts"
	"github.com/Mindburn-Labs/jobproof/pkg/calibration"
	"github.com/Mindburn-Labs/jobproof/pkg/contracts"
	"github.com/Mindburn-Labs/jobproof/pkg/correlation"
	"github.com/Mindburn-Labs/jobproof/pkg/interpreter"
	"github.com/Mindburn-Labs/jobproof/pkg/observability"
	"github.com/Mindburn-Labs/jobproof/pkg/ocr"
	"github.com/Mindburn-Labs/jobproof/pkg/ratelimit"
	"github.com/Mindburn-Labs/jobproof/pkg/registry"
	"github.com/Mindburn-Labs/jobproof/pkg/resiliency"
	"github.com/Mindburn-Labs/jobproof/pkg/safelog"
	"github.com/Mindburn-Labs/jobproof/pkg/selector"
)

// CodeTemplateNotSelected marks a report produced by the hybrid review path
// when no template matched confidently. Stable.
const CodeTemplateNotSelected = "TEMPLATE_NOT_SELECTED"

// ServiceBundle is every collaborator the orchestrator needs. Registry,
// OCR, Analyzer, and Selector are required; the rest are optional and a nil
// value disables the corresponding concern.
type ServiceBundle struct {
	Registry    *registry.Registry
	OCR         ocr.Client
	Analyzer    *analyzer.Analyzer
	Interpreter interpreter.Interpreter
	Selector    *selector.Selector
	Limiter     *ratelimit.Limiter
	Artifacts   *artifacts.Writer
	Observer    *observability.Provider
	Timeline    *observability.PipelineTimeline
	Log         *safelog.Logger
}

// Options tunes one pipeline instance.
type Options struct {
	CalibrationLevel     calibration.ThresholdLevel
	CalibrationOverrides calibration.ProfileOverrides
	// UseDefaultOnWeakSelection proceeds with the built-in default template
	// instead of routing weak selections to the hybrid review path.
	UseDefaultOnWeakSelection bool
	// EnableInsights runs the advisory interpreter after the audit.
	EnableInsights bool
	// IncludeRawOcr forwards raw OCR text to the interpreter; still gated by
	// the process-level flag.
	IncludeRawOcr bool
	PageLimit     int
}

// Outcome is everything Process produces for one document. Report is always
// set; the rest depends on how far the document got.
type Outcome struct {
	Report      *contracts.AuditReport
	Insights    *contracts.InsightsArtifact
	Trace       *contracts.SelectionTrace
	Calibration *calibration.Result
	Guardrails  *calibration.Evaluation

	OCRRetryAttempts int
	OCRProcessingMs  int64
	// ArtifactKeys lists every artifact written for this document, in write
	// order.
	ArtifactKeys []string
}

// Pipeline runs documents through the audit flow. Safe for concurrent use:
// all mutable state lives in the collaborators, which guard themselves.
type Pipeline struct {
	services ServiceBundle
	opts     Options
	log      *safelog.Logger
	now      func() time.Time
}

// New builds a pipeline over the given services.
func New(services ServiceBundle, opts Options) *Pipeline {
	p := &Pipeline{
		services: services,
		opts:     opts,
		log:      services.Log,
		now:      time.Now,
	}
	if p.log == nil {
		p.log = safelog.New("pipeline")
	}
	return p
}

// WithClock overrides the clock for tests.
func (p *Pipeline) WithClock(now func() time.Time) *Pipeline {
	p.now = now
	return p
}

// Process audits one document. The returned error is non-nil only for
// configuration-level failures (no active templates in strict SSOT mode);
// every audit-time failure is expressed through the Outcome's report.
func (p *Pipeline) Process(ctx context.Context, doc contracts.Document) (*Outcome, error) {
	if _, ok := correlation.From(ctx); !ok {
		ctx = correlation.Into(ctx, correlation.New(""))
	}
	out := &Outcome{}

	if p.services.Observer != nil {
		p.services.Observer.RecordDocument(ctx,
			observability.DocumentAttrs(doc.ID, correlation.ID(ctx))...)
	}

	if report := p.checkIntake(ctx, doc); report != nil {
		return p.finish(ctx, doc, out, report), nil
	}

	if err := p.services.Registry.EnsureTemplatesReady(ctx); err != nil {
		p.log.Error(ctx, "templates not ready", map[string]any{
			"documentId": doc.ID, "error": err.Error(),
		})
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return p.finish(ctx, doc, out, p.failureReport(resiliency.CodeCancelled,
			"processing cancelled before ocr")), nil
	}

	text, ocrResult, failed := p.runOCR(ctx, doc, out)
	if failed != nil {
		return p.finish(ctx, doc, out, failed), nil
	}

	if err := ctx.Err(); err != nil {
		return p.finish(ctx, doc, out, p.failureReport(resiliency.CodeCancelled,
			"processing cancelled after ocr")), nil
	}

	active, err := p.services.Registry.ActiveVersions(ctx)
	if err != nil {
		return p.finish(ctx, doc, out, p.failureReport(resiliency.CodeProcessingError,
			"failed to load active templates: "+err.Error())), nil
	}
	sel := p.runSelection(ctx, doc, text, active, out)

	spec, templateID := p.resolveSpec(ctx, sel, active)
	if spec == nil {
		report, cal := p.reviewAssessment(ctx, text, sel)
		out.Calibration = cal
		p.recordDecision(ctx, doc, "routed to hybrid review", map[string]any{
			"blockReason": sel.BlockReason,
		})
		if p.opts.EnableInsights && p.services.Interpreter != nil {
			// The advisory triage summary lives in its own artifact; the
			// review report stays interpreter-independent.
			out.Insights = p.runInterpreter(ctx, doc, report, text, out)
		}
		return p.finish(ctx, doc, out, report), nil
	}

	if err := ctx.Err(); err != nil {
		return p.finish(ctx, doc, out, p.failureReport(resiliency.CodeCancelled,
			"processing cancelled before calibration")), nil
	}

	ctxCal, doneCal := p.track(ctx, observability.StageCalibration, doc)
	fields := Extract(spec, text)
	profile := calibration.NewProfileWithOverrides(spec, p.opts.CalibrationLevel, p.opts.CalibrationOverrides)
	cal := profile.Calibrate(spec, fields)
	ev := profile.EvaluateGuardrails(cal)
	doneCal(nil)
	out.Calibration = cal
	out.Guardrails = &ev

	if ev.ShouldStop && ev.OverallBehavior == calibration.StopImmediately {
		p.recordDecision(ctx, doc, "guardrail stop", map[string]any{
			"stopReason": ev.StopReason,
		})
		return p.finish(ctx, doc, out, p.stopReport(cal, ev)), nil
	}

	ctxAn, doneAn := p.track(ctxCal, observability.StageAnalysis, doc)
	report := p.services.Analyzer.Analyze(ctxAn, analyzer.Input{
		Spec:        spec,
		Text:        text,
		PageCount:   ocrResult.TotalPages,
		Calibration: cal,
		DocumentID:  doc.ID,
	})
	doneAn(nil)

	if ev.OverallBehavior == calibration.ReviewQueue && report.OverallResult == contracts.ResultPass {
		report.OverallResult = contracts.ResultReviewQueue
		report.Summary = fmt.Sprintf("%s; guardrails %s routed the document to review",
			report.Summary, ev.StopReason)
	}

	p.log.Info(ctx, "document audited", map[string]any{
		"documentId": doc.ID,
		"templateId": templateID,
		"result":     string(report.OverallResult),
		"score":      report.Score,
		"findings":   len(report.Findings),
	})

	if p.opts.EnableInsights && p.services.Interpreter != nil {
		out.Insights = p.runInterpreter(ctx, doc, report, text, out)
	}

	return p.finish(ctx, doc, out, report), nil
}

// checkIntake applies the processing-bucket rate limit. Fail-open: a
// limiter store error logs and admits the document.
func (p *Pipeline) checkIntake(ctx context.Context, doc contracts.Document) *contracts.AuditReport {
	if p.services.Limiter == nil {
		return nil
	}
	decision, err := p.services.Limiter.Check(ctx, ratelimit.BucketProcessing, "pipeline")
	if err != nil {
		p.log.Warn(ctx, "rate limit check failed", map[string]any{
			"documentId": doc.ID, "error": err.Error(),
		})
		return nil
	}
	if decision.Allowed {
		return nil
	}
	p.recordDecision(ctx, doc, "intake throttled", map[string]any{
		"retryAfterSec": decision.RetryAfter,
	})
	return p.failureReport(resiliency.CodeRateLimit,
		fmt.Sprintf("processing rate limit reached; retry after %ds", decision.RetryAfter))
}

// runOCR extracts text from the document. A nil failure report means text
// is usable; Success with zero pages still flows forward so downstream
// guardrails judge the empty document.
func (p *Pipeline) runOCR(ctx context.Context, doc contracts.Document, out *Outcome) (string, *ocr.Result, *contracts.AuditReport) {
	ctxOCR, done := p.track(ctx, observability.StageOCR, doc)
	res, err := p.services.OCR.ExtractFromBase64(ctxOCR,
		base64.StdEncoding.EncodeToString(doc.Content), doc.ContentType,
		ocr.Options{PageLimit: p.opts.PageLimit, JobSheetID: doc.ID})
	done(err)

	if err != nil {
		if ctx.Err() != nil {
			return "", nil, p.failureReport(resiliency.CodeCancelled, "processing cancelled during ocr")
		}
		code := resiliency.CodeOf(err)
		if code == "" {
			code = resiliency.CodeProcessingError
		}
		p.recordError(ctx, doc, observability.StageOCR, err.Error())
		return "", nil, p.failureReport(code, "ocr failed: "+err.Error())
	}

	out.OCRRetryAttempts = res.RetryAttempts
	out.OCRProcessingMs = res.ProcessingMs

	if !res.Success {
		code := res.ErrorCode
		if code == "" {
			code = resiliency.CodeProcessingError
		}
		p.recordError(ctx, doc, observability.StageOCR, res.Error)
		report := p.failureReport(code, "ocr failed: "+res.Error)
		report.RetryAttempts = res.RetryAttempts
		return "", nil, report
	}

	p.recordStage(ctx, doc, observability.StageOCR, "ocr complete", map[string]any{
		"pages": res.TotalPages, "retryAttempts": res.RetryAttempts,
	})
	return res.Text(), res, nil
}

// runSelection scores the document against the active versions and writes
// the selection trace, selected or not.
func (p *Pipeline) runSelection(ctx context.Context, doc contracts.Document, text string, active []registry.ActiveVersion, out *Outcome) contracts.SelectionResult {
	candidates := make([]selector.Candidate, 0, len(active))
	for _, av := range active {
		candidates = append(candidates, selector.Candidate{
			TemplateID: av.Template.TemplateID,
			VersionID:  av.Version.VersionID,
			Config:     av.Version.Selection,
			IsDefault:  av.Template.IsDefault,
		})
	}

	ctxSel, done := p.track(ctx, observability.StageSelection, doc)
	sel := p.services.Selector.Select(text, candidates)
	trace := p.services.Selector.BuildTrace(doc.ID, text, sel)
	done(nil)
	out.Trace = &trace

	p.writeArtifact(ctxSel, doc, out, func() (string, error) {
		return p.services.Artifacts.WriteSelectionTrace(ctxSel, doc.ID, trace)
	})
	p.recordStage(ctx, doc, observability.StageSelection, "selection decided", map[string]any{
		"selected":    sel.Selected(),
		"band":        string(sel.Band),
		"topScore":    sel.TopScore,
		"ambiguous":   sel.Ambiguous,
		"blockReason": sel.BlockReason,
	})
	return sel
}

// resolveSpec picks the template spec the audit runs against. A nil spec
// routes the document to hybrid review.
func (p *Pipeline) resolveSpec(ctx context.Context, sel contracts.SelectionResult, active []registry.ActiveVersion) (*contracts.TemplateSpec, string) {
	weak := !sel.Selected() || sel.Band == contracts.BandLow || sel.Ambiguous
	if !weak {
		for _, av := range active {
			if av.Version.VersionID == sel.SelectedVersionID {
				return av.Version.Spec, av.Template.TemplateID
			}
		}
		p.log.Warn(ctx, "selected version missing from active set", map[string]any{
			"versionId": sel.SelectedVersionID,
		})
		return nil, ""
	}
	if !p.opts.UseDefaultOnWeakSelection {
		return nil, ""
	}
	for _, av := range active {
		if av.Template.IsDefault {
			return av.Version.Spec, av.Template.TemplateID
		}
	}
	// No default registered; the built-in spec still gives the audit a
	// field vocabulary to work with.
	return registry.DefaultTemplateSpec(), "tpl-default"
}

// runInterpreter produces the advisory insights artifact. Strictly
// best-effort: any failure logs and returns nil without touching the report.
func (p *Pipeline) runInterpreter(ctx context.Context, doc contracts.Document, report *contracts.AuditReport, text string, out *Outcome) *contracts.InsightsArtifact {
	input := interpreter.Input{
		AuditReport: &interpreter.AuditReportInput{
			Findings:        report.Findings,
			ValidatedFields: report.ExtractedFields,
		},
		ExtractedFields: report.ExtractedFields,
	}
	if p.opts.IncludeRawOcr && interpreter.RawOcrPermitted() {
		input.RawOcrText = text
	}

	ctxIns, done := p.track(ctx, observability.StageInsights, doc)
	result, err := p.services.Interpreter.Interpret(ctxIns, input, interpreter.Options{
		IncludeRawOcr: p.opts.IncludeRawOcr,
	})
	done(err)

	if err != nil || result == nil || !result.Success {
		detail := "interpreter returned failure"
		if err != nil {
			detail = err.Error()
		} else if result != nil && result.Error != "" {
			detail = result.Error
		}
		p.log.Warn(ctx, "insights generation failed", map[string]any{
			"documentId": doc.ID, "error": detail,
		})
		return nil
	}

	artifact := p.services.Interpreter.GenerateArtifact(result, out.ArtifactKeys)
	p.writeArtifact(ctx, doc, out, func() (string, error) {
		return p.services.Artifacts.WriteInsights(ctx, artifact)
	})
	return &artifact
}

// finish stamps the report, persists it, and records the final decision.
func (p *Pipeline) finish(ctx context.Context, doc contracts.Document, out *Outcome, report *contracts.AuditReport) *Outcome {
	if report.CorrelationID == "" {
		report.CorrelationID = correlation.ID(ctx)
	}
	out.Report = report

	p.writeArtifact(ctx, doc, out, func() (string, error) {
		return p.services.Artifacts.WriteAuditReport(ctx, doc.ID, report)
	})
	p.recordDecision(ctx, doc, "audit complete", map[string]any{
		"result":    string(report.OverallResult),
		"score":     report.Score,
		"errorCode": report.ErrorCode,
	})
	if p.services.Observer != nil {
		observability.AddSpanEvent(ctx, "audit.complete",
			observability.AuditAttrs(string(report.OverallResult), report.Score, report.ErrorCode)...)
	}
	return out
}

// failureReport is the uniform audit-time failure shape required by the
// error-handling contract: review queue, one S1 system finding.
func (p *Pipeline) failureReport(code, summary string) *contracts.AuditReport {
	return &contracts.AuditReport{
		OverallResult: contracts.ResultReviewQueue,
		Score:         0,
		Findings: []contracts.Finding{{
			RuleID:       "pipeline",
			FieldName:    "Analysis Pipeline",
			Severity:     contracts.SeverityS1,
			ReasonCode:   contracts.ReasonPipelineError,
			Confidence:   100,
			WhyItMatters: "the document was not audited",
			SuggestedFix: "retry the document or inspect the dead letter queue",
		}},
		ExtractedFields: map[string]string{},
		Summary:         summary,
		Model:           "pipeline",
		ErrorCode:       code,
	}
}

// stopReport converts a STOP_IMMEDIATELY guardrail evaluation into a FAIL
// verdict. Not an error shape: the document genuinely failed the audit.
func (p *Pipeline) stopReport(cal *calibration.Result, ev calibration.Evaluation) *contracts.AuditReport {
	var findings []contracts.Finding
	for _, r := range ev.Results {
		if r.Passed {
			continue
		}
		findings = append(findings, contracts.Finding{
			RuleID:       r.ID,
			Severity:     r.Severity,
			ReasonCode:   contracts.ReasonIncompleteEvidence,
			Confidence:   100,
			WhyItMatters: r.Detail,
			SuggestedFix: "rescan the document or register a matching template",
		})
	}
	contracts.SortFindings(findings)

	return &contracts.AuditReport{
		OverallResult:   contracts.ResultFail,
		Score:           0,
		Findings:        findings,
		ExtractedFields: cal.AcceptedFields(),
		Summary:         "guardrails stopped processing: " + ev.StopReason,
		Model:           "rule-based",
	}
}

// writeArtifact runs one artifact write best-effort and tracks its key.
func (p *Pipeline) writeArtifact(ctx context.Context, doc contracts.Document, out *Outcome, write func() (string, error)) {
	if p.services.Artifacts == nil {
		return
	}
	key, err := write()
	if err != nil {
		p.log.Warn(ctx, "artifact write failed", map[string]any{
			"documentId": doc.ID, "key": key, "error": err.Error(),
		})
		p.recordError(ctx, doc, observability.StageArtifacts, err.Error())
		return
	}
	out.ArtifactKeys = append(out.ArtifactKeys, key)
}

func (p *Pipeline) track(ctx context.Context, stage string, doc contracts.Document) (context.Context, func(error)) {
	if p.services.Observer == nil {
		return ctx, func(error) {}
	}
	return p.services.Observer.TrackStage(ctx, stage,
		observability.DocumentAttrs(doc.ID, correlation.ID(ctx))...)
}

func (p *Pipeline) recordStage(ctx context.Context, doc contracts.Document, stage, summary string, details map[string]any) {
	p.recordTimeline(ctx, doc, observability.EntryTypeStage, stage, summary, details)
}

func (p *Pipeline) recordDecision(ctx context.Context, doc contracts.Document, summary string, details map[string]any) {
	p.recordTimeline(ctx, doc, observability.EntryTypeDecision, "", summary, details)
}

func (p *Pipeline) recordError(ctx context.Context, doc contracts.Document, stage, detail string) {
	p.recordTimeline(ctx, doc, observability.EntryTypeError, stage, detail, nil)
}

func (p *Pipeline) recordTimeline(ctx context.Context, doc contracts.Document, kind observability.TimelineEntryType, stage, summary string, details map[string]any) {
	if p.services.Timeline == nil {
		return
	}
	err := p.services.Timeline.Record(observability.TimelineEntry{
		EntryType:     kind,
		CorrelationID: correlation.ID(ctx),
		DocumentID:    doc.ID,
		Stage:         stage,
		Summary:       summary,
		Details:       details,
	})
	if err != nil {
		p.log.Warn(ctx, "timeline record failed", map[string]any{"error": err.Error()})
	}
}
