package analyzer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mindburn-Labs/jobproof/pkg/calibration"
	"github.com/Mindburn-Labs/jobproof/pkg/contracts"
	"github.com/Mindburn-Labs/jobproof/pkg/dlq"
	"github.com/Mindburn-Labs/jobproof/pkg/registry"
	"github.com/Mindburn-Labs/jobproof/pkg/resiliency"
)

const sampleJobSheet = `Maintenance Job Sheet
Job Number: JOB-123456
Date of Service: 2026-01-02
Asset ID: AC-0042
Serial Number: SN-12345-AB
Technician Name: Sam Rivera
Work Description: replaced the air filter, cleaned the condenser coils
and confirmed refrigerant pressure within expected limits
Parts Used: air filter
Time In: 09:15  Time Out: 11:40
Customer: Lakeside Foods
Engineer Signature: S. Rivera`

type noSleep struct{}

func (noSleep) Sleep(context.Context, time.Duration) error { return nil }

func fastRetry(retries int) resiliency.RetryOptions {
	if retries == 0 {
		retries = -1
	}
	return resiliency.RetryOptions{MaxRetries: retries, Sleeper: noSleep{}}
}

func TestFallbackEmptyDocumentFails(t *testing.T) {
	a := New()
	report := a.Analyze(context.Background(), Input{
		Spec: registry.DefaultTemplateSpec(),
		Text: "   \n  ",
	})

	assert.Equal(t, contracts.ResultFail, report.OverallResult)
	assert.Zero(t, report.Score)
	require.Len(t, report.Findings, 1)
	assert.Equal(t, contracts.ReasonOCRFailure, report.Findings[0].ReasonCode)
	assert.Equal(t, contracts.SeverityS0, report.Findings[0].Severity)
	assert.Equal(t, "rule-based", report.Model)
}

func TestFallbackLenientPassesWithContent(t *testing.T) {
	a := New()
	report := a.Analyze(context.Background(), Input{
		Spec: registry.DefaultTemplateSpec(),
		Text: sampleJobSheet,
	})

	assert.Equal(t, contracts.ResultPass, report.OverallResult)
	assert.Greater(t, report.Score, 50.0)
	assert.Contains(t, report.Summary, "rule-based audit")
}

func TestFallbackThinContentRoutesToReview(t *testing.T) {
	a := New()
	report := a.Analyze(context.Background(), Input{
		Spec: registry.DefaultTemplateSpec(),
		Text: "short scan fragment",
	})
	assert.Equal(t, contracts.ResultReviewQueue, report.OverallResult)
}

func TestFallbackFlagsInvalidSerialFormat(t *testing.T) {
	a := New()
	report := a.fallback(Input{
		Spec: registry.DefaultTemplateSpec(),
		Text: sampleJobSheet,
	})
	// The document text carries a valid serial, so the format rule is
	// clean; now corrupt the accepted value.
	report2 := a.fallback(Input{
		Spec:        registry.DefaultTemplateSpec(),
		Text:        sampleJobSheet,
		Calibration: acceptedOnly(map[string]string{"serialNumber": "SN-12-AB"}),
	})

	assert.NotContains(t, reasonCodes(report.Findings), contracts.ReasonInvalidFormat)
	assert.Contains(t, reasonCodes(report2.Findings), contracts.ReasonInvalidFormat)
}

// acceptedOnly builds a calibration result whose accepted set is exactly
// the given values.
func acceptedOnly(values map[string]string) *calibration.Result {
	res := &calibration.Result{}
	for id, v := range values {
		res.Fields = append(res.Fields, calibration.FieldResult{
			Field:    contracts.ExtractedField{FieldID: id, Value: v, Extracted: true},
			Decision: calibration.DecisionAccepted,
		})
	}
	return res
}

func reasonCodes(findings []contracts.Finding) []string {
	var out []string
	for _, f := range findings {
		out = append(out, f.ReasonCode)
	}
	return out
}

func TestStrictFallbackDerivesVerdictFromFindings(t *testing.T) {
	a := New(WithStrictFallback(true))
	// Text with content but no signature or technician: required critical
	// rule R-001 fails at S0.
	text := `Maintenance record with plenty of descriptive content about the
site visit. Job Number JOB-123456 Date of Service 2026-01-02 Asset ID AC-1
Serial Number SN-12345-AB Work Description replaced filter and cleaned coils
Parts Used one filter Customer Lakeside`
	report := a.Analyze(context.Background(), Input{
		Spec: registry.DefaultTemplateSpec(),
		Text: text,
	})

	assert.Equal(t, contracts.ResultFail, report.OverallResult)
	assert.Contains(t, reasonCodes(report.Findings), contracts.ReasonMissingField)
}

func TestCustomRuleCEL(t *testing.T) {
	spec := &contracts.TemplateSpec{
		Fields: []contracts.FieldSpec{
			{ID: "timeIn", Label: "Time In", Type: contracts.FieldTypeString},
			{ID: "timeOut", Label: "Time Out", Type: contracts.FieldTypeString},
		},
		Rules: []contracts.RuleSpec{{
			RuleID: "R-100", Field: "timeOut", Type: contracts.RuleTypeCustom,
			Severity:   contracts.RuleSeverityMajor,
			Expression: `value == "" || fields["timeIn"] == "" || value > fields["timeIn"]`,
			Enabled:    true,
		}},
		Metadata: contracts.SpecMetadata{Name: "times"},
	}

	t.Run("satisfied", func(t *testing.T) {
		findings := evaluateRules(spec, "Time In Time Out recorded", map[string]string{
			"timeIn": "09:15", "timeOut": "11:40",
		})
		assert.Empty(t, findings)
	})

	t.Run("violated", func(t *testing.T) {
		findings := evaluateRules(spec, "Time In Time Out recorded", map[string]string{
			"timeIn": "11:40", "timeOut": "09:15",
		})
		require.Len(t, findings, 1)
		assert.Equal(t, contracts.ReasonOutOfPolicy, findings[0].ReasonCode)
		assert.Equal(t, "R-100", findings[0].RuleID)
	})

	t.Run("broken expression reports spec gap", func(t *testing.T) {
		bad := *spec
		bad.Rules = []contracts.RuleSpec{{
			RuleID: "R-101", Field: "timeOut", Type: contracts.RuleTypeCustom,
			Severity: contracts.RuleSeverityMinor, Expression: `value +`, Enabled: true,
		}}
		findings := evaluateRules(&bad, "Time Out recorded", map[string]string{"timeOut": "09:15"})
		require.Len(t, findings, 1)
		assert.Equal(t, contracts.ReasonSpecGap, findings[0].ReasonCode)
	})
}

func TestFindingsSortedCanonically(t *testing.T) {
	client := &MockClient{Report: &contracts.AuditReport{
		OverallResult: contracts.ResultFail,
		Score:         20,
		Findings: []contracts.Finding{
			{RuleID: "c", FieldName: "zeta", Severity: contracts.SeverityS2, ReasonCode: contracts.ReasonLowConfidence},
			{RuleID: "a", FieldName: "alpha", Severity: contracts.SeverityS0, ReasonCode: contracts.ReasonMissingField},
			{RuleID: "b", FieldName: "beta", Severity: contracts.SeverityS0, ReasonCode: contracts.ReasonInvalidFormat},
		},
		Summary: "mock",
	}}
	a := New(WithClient(client), WithRetry(fastRetry(0)))
	report := a.Analyze(context.Background(), Input{Spec: registry.DefaultTemplateSpec(), Text: sampleJobSheet})

	require.Len(t, report.Findings, 3)
	assert.Equal(t, "beta", report.Findings[0].FieldName)  // S0, INVALID_FORMAT
	assert.Equal(t, "alpha", report.Findings[1].FieldName) // S0, MISSING_FIELD
	assert.Equal(t, "zeta", report.Findings[2].FieldName)  // S2
}

func TestUnknownReasonCodeMappedToSpecGap(t *testing.T) {
	client := &MockClient{Report: &contracts.AuditReport{
		OverallResult: contracts.ResultPass,
		Score:         80,
		Findings:      []contracts.Finding{{RuleID: "x", Severity: contracts.SeverityS3, ReasonCode: "MADE_UP_CODE"}},
		Summary:       "mock",
	}}
	a := New(WithClient(client), WithRetry(fastRetry(0)))
	report := a.Analyze(context.Background(), Input{Spec: registry.DefaultTemplateSpec(), Text: sampleJobSheet})

	require.Len(t, report.Findings, 1)
	assert.Equal(t, contracts.ReasonSpecGap, report.Findings[0].ReasonCode)
}

func TestLLMFailureAfterRetriesReturnsProcessingError(t *testing.T) {
	client := &MockClient{Err: resiliency.NewHTTPError(503, "upstream down")}
	a := New(WithClient(client), WithRetry(fastRetry(2)))
	report := a.Analyze(context.Background(), Input{
		Spec: registry.DefaultTemplateSpec(), Text: sampleJobSheet, DocumentID: "doc-1",
	})

	assert.Equal(t, contracts.ResultReviewQueue, report.OverallResult)
	assert.Zero(t, report.Score)
	assert.Equal(t, resiliency.CodeProcessingError, report.ErrorCode)
	assert.Equal(t, 2, report.RetryAttempts)
	assert.Equal(t, 3, client.Calls)
	require.Len(t, report.Findings, 1)
	assert.Equal(t, contracts.ReasonPipelineError, report.Findings[0].ReasonCode)
}

func TestBreakerOpenDeadLettersAndReportsCode(t *testing.T) {
	breaker := resiliency.NewCircuitBreaker("llm", resiliency.BreakerConfig{
		FailureThreshold: 1, ResetTimeout: time.Minute,
	})
	// Trip the breaker.
	_ = breaker.Execute(context.Background(), func(context.Context) error {
		return errors.New("boom")
	})

	queue := dlq.New(10)
	client := &MockClient{Report: &contracts.AuditReport{OverallResult: contracts.ResultPass, Summary: "unused"}}
	a := New(WithClient(client), WithBreaker(breaker), WithDLQ(queue), WithRetry(fastRetry(0)))

	report := a.Analyze(context.Background(), Input{
		Spec: registry.DefaultTemplateSpec(), Text: sampleJobSheet, DocumentID: "doc-9",
	})

	assert.Equal(t, resiliency.CodeCircuitOpen, report.ErrorCode)
	assert.Equal(t, contracts.ResultReviewQueue, report.OverallResult)
	assert.Zero(t, client.Calls, "breaker must reject before the client is called")

	jobs := queue.ListByStage(dlq.StageAnalysis)
	require.Len(t, jobs, 1)
	assert.Equal(t, "doc-9", jobs[0].DocumentID)
	assert.True(t, jobs[0].Recoverable)
}

func TestTerminalClientReportNotRetried(t *testing.T) {
	terminal := terminalReport(resiliency.HTTPCode(422), "bad request")
	client := &MockClient{Report: terminal}
	a := New(WithClient(client), WithRetry(fastRetry(3)))

	report := a.Analyze(context.Background(), Input{Spec: registry.DefaultTemplateSpec(), Text: sampleJobSheet})

	assert.Equal(t, "HTTP_422", report.ErrorCode)
	assert.Equal(t, 1, client.Calls)
	assert.Zero(t, report.RetryAttempts)
}
