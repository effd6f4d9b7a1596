package registry

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"

	"github.com/Mindburn-Labs/jobproof/pkg/canonicalize"
	"github.com/Mindburn-Labs/jobproof/pkg/contracts"
	"github.com/Mindburn-Labs/jobproof/pkg/selector"
)

// PackHash computes the fixture pack hash over the case-id-sorted
// canonical JSON of the cases, so the hash is stable under case
// reordering.
func PackHash(cases []contracts.FixtureCase) string {
	sorted := make([]contracts.FixtureCase, len(cases))
	copy(sorted, cases)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].CaseID < sorted[j].CaseID })

	canonical, err := canonicalize.JCS(sorted)
	if err != nil {
		// Fixture cases are plain data; canonicalization only fails on
		// values json.Marshal rejects, which the schema excludes.
		return ""
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:])
}

// CaseResult is one fixture case's outcome under the mock matcher.
type CaseResult struct {
	CaseID           string   `json:"caseId"`
	Required         bool     `json:"required"`
	PredictedOutcome string   `json:"predictedOutcome"`
	ReasonCodes      []string `json:"reasonCodes,omitempty"`
	Passed           bool     `json:"passed"`
}

// FixtureReport summarizes one fixture pack run.
type FixtureReport struct {
	Total          int          `json:"total"`
	Passed         int          `json:"passed"`
	Failed         int          `json:"failed"`
	RequiredFailed int          `json:"requiredFailed"`
	Cases          []CaseResult `json:"cases"`
}

// Pass reports the overall fixture verdict: no required case failed.
func (r FixtureReport) Pass() bool { return r.RequiredFailed == 0 }

// RunFixtures evaluates every case of a pack against the spec using the
// deterministic mock matcher. The matcher is deliberately simpler than the
// real analyzer: it only checks field-label containment, so fixture runs
// are fast, hermetic, and reproducible at activation time.
func RunFixtures(spec *contracts.TemplateSpec, pack *contracts.FixturePack) FixtureReport {
	var report FixtureReport
	if pack == nil {
		return report
	}
	for _, c := range pack.Cases {
		outcome, codes := mockMatch(spec, c.InputText)
		passed := outcome == c.ExpectedOutcome && subset(c.ExpectedReasonCodes, codes)
		report.Total++
		if passed {
			report.Passed++
		} else {
			report.Failed++
			if c.Required {
				report.RequiredFailed++
			}
		}
		report.Cases = append(report.Cases, CaseResult{
			CaseID:           c.CaseID,
			Required:         c.Required,
			PredictedOutcome: outcome,
			ReasonCodes:      codes,
			Passed:           passed,
		})
	}
	return report
}

// mockMatch predicts an audit outcome by token containment: a field counts
// as detected when every token of its id, label, or one alias appears in
// the normalized input text.
func mockMatch(spec *contracts.TemplateSpec, text string) (string, []string) {
	if strings.TrimSpace(text) == "" {
		return contracts.FixtureOutcomeFail, []string{contracts.ReasonOCRFailure}
	}
	tokens := selector.TokenSet(selector.Tokenize(text))

	var codes []string
	required, missing := 0, 0
	for _, f := range spec.Fields {
		if !f.Required {
			continue
		}
		required++
		if !fieldDetected(tokens, f) {
			missing++
			codes = append(codes, contracts.ReasonMissingField)
		}
	}
	codes = dedupSorted(codes)

	switch {
	case missing == 0:
		return contracts.FixtureOutcomePass, codes
	case required > 0 && missing*2 <= required:
		return contracts.FixtureOutcomeReviewQueue, codes
	default:
		return contracts.FixtureOutcomeFail, codes
	}
}

func fieldDetected(tokens map[string]bool, f contracts.FieldSpec) bool {
	names := append([]string{f.ID, f.Label}, f.Aliases...)
	for _, name := range names {
		parts := selector.Tokenize(name)
		if len(parts) == 0 {
			continue
		}
		all := true
		for _, p := range parts {
			if !tokens[p] {
				all = false
				break
			}
		}
		if all {
			return true
		}
	}
	return false
}

func subset(expected, observed []string) bool {
	set := make(map[string]bool, len(observed))
	for _, c := range observed {
		set[c] = true
	}
	for _, c := range expected {
		if !set[c] {
			return false
		}
	}
	return true
}

func dedupSorted(codes []string) []string {
	if len(codes) == 0 {
		return nil
	}
	set := make(map[string]bool, len(codes))
	var out []string
	for _, c := range codes {
		if !set[c] {
			set[c] = true
			out = append(out, c)
		}
	}
	sort.Strings(out)
	return out
}
