package analyzer

import (
	"context"

	"github.com/Mindburn-Labs/jobproof/pkg/contracts"
)

// MockClient is a deterministic LLM stand-in for tests and offline runs.
type MockClient struct {
	// Report is returned verbatim when set.
	Report *contracts.AuditReport
	// Err is returned on every call when set, before Report is consulted.
	Err error
	// Calls counts Analyze invocations.
	Calls int
}

func (m *MockClient) Analyze(_ context.Context, spec *contracts.TemplateSpec, text string) (*contracts.AuditReport, error) {
	m.Calls++
	if m.Err != nil {
		return nil, m.Err
	}
	if m.Report != nil {
		cp := *m.Report
		return &cp, nil
	}
	// Default: echo a clean pass derived from the spec.
	fields := map[string]string{}
	for _, f := range spec.Fields {
		fields[f.ID] = ""
	}
	return &contracts.AuditReport{
		OverallResult:   contracts.ResultPass,
		Score:           90,
		Findings:        nil,
		ExtractedFields: fields,
		Summary:         "mock analysis",
		Model:           m.Model(),
	}, nil
}

func (m *MockClient) Model() string { return "mock-analyzer" }
