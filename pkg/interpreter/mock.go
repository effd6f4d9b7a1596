package interpreter

import (
	"context"
	"fmt"
	"time"

	"github.com/Mindburn-Labs/jobproof/pkg/contracts"
	"github.com/Mindburn-Labs/jobproof/pkg/correlation"
)

// MockInterpreter produces deterministic advisory insights without any
// network call. It derives one insight per finding category present in the
// input, which makes invariance tests meaningful: the mock actually reads
// the canonical material.
type MockInterpreter struct {
	// Insights overrides derivation when non-nil.
	Insights []contracts.Insight
	// Fail forces a failed result with this error code.
	Fail string

	now func() time.Time
}

// NewMockInterpreter creates the mock.
func NewMockInterpreter() *MockInterpreter {
	return &MockInterpreter{now: time.Now}
}

// Interpret implements Interpreter.
func (m *MockInterpreter) Interpret(ctx context.Context, input Input, opts Options) (*Result, error) {
	if m.Fail != "" {
		return &Result{
			Success:       false,
			Model:         "mock-interpreter",
			CorrelationID: correlation.ID(ctx),
			Error:         "mock failure",
			ErrorCode:     m.Fail,
		}, nil
	}

	insights := m.Insights
	if insights == nil {
		seen := map[string]bool{}
		if input.AuditReport != nil {
			for _, f := range input.AuditReport.Findings {
				if seen[f.ReasonCode] {
					continue
				}
				seen[f.ReasonCode] = true
				insights = append(insights, contracts.Insight{
					Category:      "finding-pattern",
					Summary:       fmt.Sprintf("document raised %s on %s", f.ReasonCode, f.FieldName),
					Confidence:    70,
					RelatedFields: []string{f.FieldName},
				})
			}
		}
		if len(insights) == 0 {
			insights = append(insights, contracts.Insight{
				Category:   "completeness",
				Summary:    "no findings were raised; extraction looks complete",
				Confidence: 80,
			})
		}
	}

	return &Result{
		Success:       true,
		Insights:      filterInsights(insights, opts),
		Summary:       "advisory review generated by mock interpreter",
		Model:         "mock-interpreter",
		CorrelationID: correlation.ID(ctx),
	}, nil
}

// ValidateAPIKey implements Interpreter.
func (m *MockInterpreter) ValidateAPIKey(context.Context) KeyValidation {
	return KeyValidation{Valid: true}
}

// GenerateArtifact implements Interpreter.
func (m *MockInterpreter) GenerateArtifact(result *Result, inputArtifacts []string) contracts.InsightsArtifact {
	now := time.Now
	if m.now != nil {
		now = m.now
	}
	return buildArtifact(result, inputArtifacts, now())
}
