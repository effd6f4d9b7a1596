package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mindburn-Labs/jobproof/pkg/contracts"
)

func TestPackHashIgnoresCaseOrder(t *testing.T) {
	a := contracts.FixtureCase{CaseID: "a", InputText: "alpha", ExpectedOutcome: "pass"}
	b := contracts.FixtureCase{CaseID: "b", InputText: "beta", ExpectedOutcome: "fail"}

	h1 := PackHash([]contracts.FixtureCase{a, b})
	h2 := PackHash([]contracts.FixtureCase{b, a})
	assert.Equal(t, h1, h2)
	assert.Len(t, h1, 64)

	b.InputText = "changed"
	h3 := PackHash([]contracts.FixtureCase{a, b})
	assert.NotEqual(t, h1, h3)
}

func TestMockMatchOutcomes(t *testing.T) {
	spec := DefaultTemplateSpec()

	t.Run("empty text fails with ocr failure", func(t *testing.T) {
		outcome, codes := mockMatch(spec, "   \n ")
		assert.Equal(t, contracts.FixtureOutcomeFail, outcome)
		assert.Equal(t, []string{contracts.ReasonOCRFailure}, codes)
	})

	t.Run("all required labels present passes", func(t *testing.T) {
		outcome, codes := mockMatch(spec, happyJobSheet)
		assert.Equal(t, contracts.FixtureOutcomePass, outcome)
		assert.Empty(t, codes)
	})

	t.Run("few missing fields routes to review", func(t *testing.T) {
		// Drop the signature and technician lines: 2 of 5 required fields
		// missing, still at most half.
		partial := `Job Number JOB-123456 Date of Service 2026-01-02 Asset ID AC-1
Serial Number SN-12345-AB Work Description replaced filter`
		outcome, codes := mockMatch(spec, partial)
		assert.Equal(t, contracts.FixtureOutcomeReviewQueue, outcome)
		assert.Equal(t, []string{contracts.ReasonMissingField}, codes)
	})

	t.Run("mostly missing fields fails", func(t *testing.T) {
		outcome, codes := mockMatch(spec, "unrelated grocery list with apples and oranges")
		assert.Equal(t, contracts.FixtureOutcomeFail, outcome)
		assert.Contains(t, codes, contracts.ReasonMissingField)
	})
}

func TestRunFixturesRequiredFailures(t *testing.T) {
	spec := DefaultTemplateSpec()
	pack := &contracts.FixturePack{
		Cases: []contracts.FixtureCase{
			{CaseID: "good", InputText: happyJobSheet, ExpectedOutcome: contracts.FixtureOutcomePass, Required: true},
			{CaseID: "wrong-required", InputText: happyJobSheet, ExpectedOutcome: contracts.FixtureOutcomeFail, Required: true},
			{CaseID: "wrong-optional", InputText: happyJobSheet, ExpectedOutcome: contracts.FixtureOutcomeFail, Required: false},
		},
	}
	report := RunFixtures(spec, pack)

	assert.Equal(t, 3, report.Total)
	assert.Equal(t, 1, report.Passed)
	assert.Equal(t, 2, report.Failed)
	assert.Equal(t, 1, report.RequiredFailed)
	assert.False(t, report.Pass())

	// Only required failures block; with the required case fixed the pack
	// passes despite the optional failure.
	pack.Cases[1].ExpectedOutcome = contracts.FixtureOutcomePass
	report = RunFixtures(spec, pack)
	assert.Equal(t, 0, report.RequiredFailed)
	assert.True(t, report.Pass())
}

func TestRunFixturesExpectedCodesMustBeSubset(t *testing.T) {
	spec := DefaultTemplateSpec()
	pack := &contracts.FixturePack{
		Cases: []contracts.FixtureCase{{
			CaseID:              "expects-extra-code",
			InputText:           happyJobSheet,
			ExpectedOutcome:     contracts.FixtureOutcomePass,
			ExpectedReasonCodes: []string{contracts.ReasonLowConfidence},
			Required:            true,
		}},
	}
	report := RunFixtures(spec, pack)
	require.Len(t, report.Cases, 1)
	assert.False(t, report.Cases[0].Passed)
}
