package calibration

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mindburn-Labs/jobproof/pkg/contracts"
)

func testSpec() *contracts.TemplateSpec {
	return &contracts.TemplateSpec{
		Fields: []contracts.FieldSpec{
			{ID: "jobReference", Label: "Job No", Type: contracts.FieldTypeString, Required: true},
			{ID: "serialNumber", Label: "Serial", Type: contracts.FieldTypeString, Required: true},
			{ID: "engineerSignOff", Label: "Signature", Type: contracts.FieldTypeString, Required: true},
			{ID: "partsUsed", Label: "Parts", Type: contracts.FieldTypeList},
		},
		Rules: []contracts.RuleSpec{
			{RuleID: "R-003", Field: "serialNumber", Type: contracts.RuleTypeFormat,
				Severity: contracts.RuleSeverityMajor, Pattern: `^SN-\d{5}-[A-Z]{2}$`, Enabled: true},
		},
		Metadata: contracts.SpecMetadata{Name: "test"},
	}
}

func field(id, value string, conf float64, src contracts.FieldSource) contracts.ExtractedField {
	return contracts.ExtractedField{FieldID: id, Value: value, Confidence: conf, Source: src, Extracted: true}
}

func TestLevelsMonotone(t *testing.T) {
	strict, std, lenient := ThresholdsFor(LevelStrict), ThresholdsFor(LevelStandard), ThresholdsFor(LevelLenient)
	assert.Greater(t, strict.GlobalMinConfidence, std.GlobalMinConfidence)
	assert.Greater(t, std.GlobalMinConfidence, lenient.GlobalMinConfidence)
	assert.Greater(t, strict.CriticalFieldMinConfidence, std.CriticalFieldMinConfidence)
	assert.Greater(t, std.CriticalFieldMinConfidence, lenient.CriticalFieldMinConfidence)
	assert.Greater(t, strict.ReviewThreshold, std.ReviewThreshold)
	assert.Greater(t, std.ReviewThreshold, lenient.ReviewThreshold)
}

func TestAlwaysCriticalUnioned(t *testing.T) {
	p := NewProfile(testSpec(), LevelStandard)
	// Critical via the always-critical set even though partsUsed is not
	// required.
	assert.True(t, p.Fields["engineerSignOff"].IsCritical)
	assert.True(t, p.Fields["jobReference"].IsCritical)
	// Required in spec.
	assert.True(t, p.Fields["serialNumber"].IsCritical)
	assert.False(t, p.Fields["partsUsed"].IsCritical)
}

func TestCalibratePenalties(t *testing.T) {
	p := NewProfile(testSpec(), LevelStandard)

	t.Run("accepted clean", func(t *testing.T) {
		r := p.CalibrateField(field("serialNumber", "SN-12345-AB", 95, contracts.SourceOCR))
		assert.Equal(t, DecisionAccepted, r.Decision)
		assert.Equal(t, 95.0, r.AdjustedConfidence)
		assert.Empty(t, r.Notes)
	})

	t.Run("pattern mismatch penalized", func(t *testing.T) {
		r := p.CalibrateField(field("serialNumber", "SN-12-AB", 95, contracts.SourceOCR))
		assert.Equal(t, 75.0, r.AdjustedConfidence)
		assert.Equal(t, DecisionNeedsReview, r.Decision)
		require.Len(t, r.Notes, 1)
		assert.Contains(t, r.Notes[0], "validation pattern")
	})

	t.Run("roi mismatch penalized for critical field", func(t *testing.T) {
		f := field("engineerSignOff", "J.Doe", 85, contracts.SourceOCR)
		noMatch := false
		f.ROIMatch = &noMatch
		r := p.CalibrateField(f)
		assert.Equal(t, 75.0, r.AdjustedConfidence)
		assert.Equal(t, DecisionNeedsReview, r.Decision)
	})

	t.Run("rejected below review threshold", func(t *testing.T) {
		r := p.CalibrateField(field("serialNumber", "SN-12345-AB", 30, contracts.SourceOCR))
		assert.Equal(t, DecisionRejected, r.Decision)
	})

	t.Run("penalties floor at zero", func(t *testing.T) {
		f := field("serialNumber", "garbage", 10, contracts.SourceOCR)
		noMatch := false
		f.ROIMatch = &noMatch
		r := p.CalibrateField(f)
		assert.GreaterOrEqual(t, r.AdjustedConfidence, 0.0)
	})
}

func TestQualityGatesFailOnMissingCritical(t *testing.T) {
	p := NewProfile(testSpec(), LevelStandard)
	res := p.Calibrate(testSpec(), []contracts.ExtractedField{
		field("serialNumber", "SN-12345-AB", 90, contracts.SourceOCR),
		// jobReference and engineerSignOff never extracted.
	})
	assert.False(t, res.Quality.PassedQualityGates)
	assert.NotEmpty(t, res.Quality.Recommendations)
}

func TestQualityGradeHappyPath(t *testing.T) {
	p := NewProfile(testSpec(), LevelStandard)
	res := p.Calibrate(testSpec(), []contracts.ExtractedField{
		field("jobReference", "JOB-123456", 95, contracts.SourceRegex),
		field("serialNumber", "SN-12345-AB", 92, contracts.SourceRegex),
		field("engineerSignOff", "J.Doe", 90, contracts.SourceOCR),
		field("partsUsed", "filter", 85, contracts.SourceOCR),
	})
	assert.True(t, res.Quality.PassedQualityGates)
	assert.Equal(t, "A", res.Quality.Grade)
	assert.False(t, res.Quality.AnomalyDetected)
	accepted := res.AcceptedFields()
	assert.Equal(t, "JOB-123456", accepted["jobReference"])
}

func TestGuardrailG001FailsOnEmptyExtraction(t *testing.T) {
	p := NewProfile(testSpec(), LevelStandard)
	res := p.Calibrate(testSpec(), nil)
	ev := p.EvaluateGuardrails(res)

	assert.True(t, ev.ShouldStop)
	assert.Equal(t, StopImmediately, ev.OverallBehavior)
	assert.Contains(t, ev.StopReason, GuardrailAnyField)
}

func TestGuardrailG002WeakCritical(t *testing.T) {
	p := NewProfile(testSpec(), LevelStandard)
	res := p.Calibrate(testSpec(), []contracts.ExtractedField{
		field("jobReference", "JOB-123456", 95, contracts.SourceRegex),
		field("serialNumber", "SN-12345-AB", 95, contracts.SourceRegex),
		field("engineerSignOff", "J.Doe", 40, contracts.SourceOCR),
	})
	ev := p.EvaluateGuardrails(res)
	assert.Equal(t, ReviewQueue, ev.OverallBehavior)
	assert.True(t, ev.ShouldStop)
	assert.Contains(t, ev.StopReason, GuardrailCriticalConf)
}

func TestGuardrailG002IgnoresUnextractedCriticals(t *testing.T) {
	p := NewProfile(testSpec(), LevelStandard)
	// engineerSignOff was never found: its zero confidence is a missing-field
	// problem, not a weak-extraction problem, so G002 must stay quiet.
	res := p.Calibrate(testSpec(), []contracts.ExtractedField{
		field("jobReference", "JOB-123456", 95, contracts.SourceRegex),
		field("serialNumber", "SN-12345-AB", 95, contracts.SourceRegex),
		{FieldID: "engineerSignOff"},
	})
	ev := p.EvaluateGuardrails(res)

	for _, g := range ev.Results {
		if g.ID == GuardrailCriticalConf {
			assert.True(t, g.Passed)
		}
	}
	assert.NotContains(t, ev.StopReason, GuardrailCriticalConf)
}

func TestGuardrailG003Duplicates(t *testing.T) {
	p := NewProfile(testSpec(), LevelStandard)
	res := p.Calibrate(testSpec(), []contracts.ExtractedField{
		field("jobReference", "JOB-123456", 95, contracts.SourceRegex),
		field("jobReference", "JOB-999999", 80, contracts.SourceOCR),
		field("serialNumber", "SN-12345-AB", 95, contracts.SourceRegex),
		field("engineerSignOff", "J.Doe", 90, contracts.SourceOCR),
	})
	ev := p.EvaluateGuardrails(res)
	var g003 *GuardrailResult
	for i := range ev.Results {
		if ev.Results[i].ID == GuardrailNoDuplicates {
			g003 = &ev.Results[i]
		}
	}
	require.NotNil(t, g003)
	assert.False(t, g003.Passed)
	assert.Equal(t, ContinueFlagged, g003.Behavior)
	// S2 failures flag but do not stop.
	assert.False(t, ev.ShouldStop)
}

func TestSeverityMappingTotal(t *testing.T) {
	assert.Equal(t, StopImmediately, BehaviorForSeverity(contracts.SeverityS0))
	assert.Equal(t, ReviewQueue, BehaviorForSeverity(contracts.SeverityS1))
	assert.Equal(t, ContinueFlagged, BehaviorForSeverity(contracts.SeverityS2))
	assert.Equal(t, Continue, BehaviorForSeverity(contracts.SeverityS3))
	assert.Equal(t, Continue, BehaviorForSeverity(contracts.Severity("S9")))
}

func TestEvaluateStopReasonSorted(t *testing.T) {
	ev := Evaluate([]GuardrailResult{
		{ID: "G004", Severity: contracts.SeverityS2, Behavior: ContinueFlagged, Passed: false},
		{ID: "G001", Severity: contracts.SeverityS0, Behavior: StopImmediately, Passed: false},
		{ID: "G002", Severity: contracts.SeverityS1, Behavior: ReviewQueue, Passed: true},
	})
	assert.Equal(t, "G001,G004", ev.StopReason)
	assert.Equal(t, StopImmediately, ev.OverallBehavior)
	assert.True(t, ev.ShouldStop)
}

func TestParseLevel(t *testing.T) {
	lvl, err := ParseLevel("")
	require.NoError(t, err)
	assert.Equal(t, LevelStandard, lvl)
	_, err = ParseLevel("extreme")
	assert.Error(t, err)
}
