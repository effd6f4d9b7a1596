// Package interpreter adapts advisory LLM providers behind one contract.
// Interpreter output is strictly advisory: it is written to its own
// artifact and never merged into the canonical audit report, so swapping
// providers or disabling the interpreter entirely leaves the report
// byte-identical.
package interpreter

import (
	"context"
	"os"
	"sort"
	"time"

	"github.com/Mindburn-Labs/jobproof/pkg/contracts"
)

// AuditReportInput is the canonical material handed to the interpreter.
type AuditReportInput struct {
	Findings        []contracts.Finding `json:"findings"`
	ValidatedFields map[string]string   `json:"validatedFields"`
}

// Input is what the interpreter may see. RawOcrText is only forwarded
// upstream when the call opts in AND the process-level flag permits it.
type Input struct {
	AuditReport     *AuditReportInput `json:"auditReport,omitempty"`
	ExtractedFields map[string]string `json:"extractedFields,omitempty"`
	RawOcrText      string            `json:"rawOcrText,omitempty"`
}

// Options tunes one interpretation call.
type Options struct {
	// IncludeRawOcr requests raw-text forwarding; it is still gated by
	// RawOcrPermitted.
	IncludeRawOcr bool
	MaxInsights   int
	MinConfidence float64
	SkipRetry     bool
}

// Result is the outcome of one interpretation call.
type Result struct {
	Success       bool                `json:"success"`
	Insights      []contracts.Insight `json:"insights"`
	Summary       string              `json:"summary,omitempty"`
	Model         string              `json:"model"`
	CorrelationID string              `json:"correlationId,omitempty"`
	ProcessingMs  int64               `json:"processingMs"`
	Error         string              `json:"error,omitempty"`
	ErrorCode     string              `json:"errorCode,omitempty"`
	RetryAttempts int                 `json:"retryAttempts,omitempty"`
}

// KeyValidation is the outcome of an API key check.
type KeyValidation struct {
	Valid bool   `json:"valid"`
	Error string `json:"error,omitempty"`
}

// Interpreter is the capability contract over an advisory LLM provider.
type Interpreter interface {
	Interpret(ctx context.Context, input Input, opts Options) (*Result, error)
	ValidateAPIKey(ctx context.Context) KeyValidation
	GenerateArtifact(result *Result, inputArtifacts []string) contracts.InsightsArtifact
}

// RawOcrPermitted reports whether the process allows raw OCR text to reach
// the interpreter at all. ENABLE_RAW_OCR_INSIGHTS must be explicitly "true".
func RawOcrPermitted() bool {
	return os.Getenv("ENABLE_RAW_OCR_INSIGHTS") == "true"
}

// DefaultMaxInsights clamps the insight list unless the caller asks for
// fewer.
const DefaultMaxInsights = 10

// filterInsights applies the minimum-confidence floor and the max-insights
// clamp, keeping the highest-confidence insights in a deterministic order.
func filterInsights(insights []contracts.Insight, opts Options) []contracts.Insight {
	var kept []contracts.Insight
	for _, in := range insights {
		if in.Confidence >= opts.MinConfidence {
			kept = append(kept, in)
		}
	}
	sort.SliceStable(kept, func(i, j int) bool {
		if kept[i].Confidence != kept[j].Confidence {
			return kept[i].Confidence > kept[j].Confidence
		}
		return kept[i].Category < kept[j].Category
	})
	maxN := opts.MaxInsights
	if maxN <= 0 {
		maxN = DefaultMaxInsights
	}
	if len(kept) > maxN {
		kept = kept[:maxN]
	}
	return kept
}

// buildArtifact is the shared artifact shape. IsAdvisoryOnly is always true.
func buildArtifact(result *Result, inputArtifacts []string, now time.Time) contracts.InsightsArtifact {
	insights := result.Insights
	if insights == nil {
		insights = []contracts.Insight{}
	}
	if inputArtifacts == nil {
		inputArtifacts = []string{}
	}
	return contracts.InsightsArtifact{
		Version:        contracts.InsightsArtifactVersion,
		GeneratedAt:    now.UTC(),
		CorrelationID:  result.CorrelationID,
		Model:          result.Model,
		IsAdvisoryOnly: true,
		Insights:       insights,
		Summary:        result.Summary,
		Metadata: contracts.InsightsMetadata{
			ProcessingMs:   result.ProcessingMs,
			InputArtifacts: inputArtifacts,
		},
	}
}
