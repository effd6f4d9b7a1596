package pipeline

import (
	"context"
	"fmt"

	"github.com/Mindburn-Labs/jobproof/pkg/calibration"
	"github.com/Mindburn-Labs/jobproof/pkg/contracts"
	"github.com/Mindburn-Labs/jobproof/pkg/registry"
)

// reviewAssessment is the hybrid path for documents no template claimed
// confidently. It extracts what it can against the built-in field
// vocabulary and hands the reviewer a REVIEW_QUEUE report with that
// evidence attached; the document is never silently dropped. Any LLM
// commentary stays in the advisory insights artifact, not here.
func (p *Pipeline) reviewAssessment(ctx context.Context, text string, sel contracts.SelectionResult) (*contracts.AuditReport, *calibration.Result) {
	spec := registry.DefaultTemplateSpec()
	fields := Extract(spec, text)
	profile := calibration.NewProfileWithOverrides(spec, p.opts.CalibrationLevel, p.opts.CalibrationOverrides)
	cal := profile.Calibrate(spec, fields)
	accepted := cal.AcceptedFields()

	reason := sel.BlockReason
	if reason == "" {
		reason = "no template selected"
	}

	report := &contracts.AuditReport{
		OverallResult: contracts.ResultReviewQueue,
		Score:         cal.Quality.Score,
		Findings: []contracts.Finding{{
			RuleID:       "selection",
			Severity:     contracts.SeverityS1,
			ReasonCode:   contracts.ReasonLowConfidence,
			Confidence:   100,
			WhyItMatters: "no template matched confidently: " + reason,
			SuggestedFix: "register a template for this layout or review the document manually",
		}},
		ExtractedFields: accepted,
		Summary: fmt.Sprintf("template selection blocked (%s); heuristic extraction accepted %d of %d fields for review",
			reason, len(accepted), len(spec.Fields)),
		Model:     "hybrid-review",
		ErrorCode: CodeTemplateNotSelected,
	}

	p.log.Info(ctx, "hybrid review assessment", map[string]any{
		"blockReason": reason,
		"accepted":    len(accepted),
	})
	return report, cal
}
