package analyzer

import (
	"fmt"
	"strings"

	"github.com/Mindburn-Labs/jobproof/pkg/contracts"
	"github.com/Mindburn-Labs/jobproof/pkg/selector"
)

// Content floors below which a document is treated as an OCR failure
// rather than audited.
const (
	minContentChars = 50
	minContentWords = 10
)

// fallback is the deterministic rule-based path. Lenient by default: a
// document with real content passes and the findings ride along for a
// reviewer; strict fallback derives the verdict from finding severities.
func (a *Analyzer) fallback(in Input) *contracts.AuditReport {
	text := strings.TrimSpace(in.Text)
	if text == "" {
		return &contracts.AuditReport{
			OverallResult: contracts.ResultFail,
			Score:         0,
			Findings: []contracts.Finding{{
				RuleID:       "content",
				Severity:     contracts.SeverityS0,
				ReasonCode:   contracts.ReasonOCRFailure,
				Confidence:   100,
				WhyItMatters: "no text could be read from the document",
				SuggestedFix: "rescan the document at higher quality",
			}},
			ExtractedFields: map[string]string{},
			Summary:         "the document produced no readable text",
		}
	}

	fields := map[string]string{}
	if in.Calibration != nil {
		fields = in.Calibration.AcceptedFields()
	}
	findings := evaluateRules(in.Spec, text, fields)

	words := wordCount(text)
	cov := fieldCoverage(in.Spec, text, fields)
	score := fallbackScore(cov, words)

	var result contracts.OverallResult
	switch {
	case len(text) < minContentChars || words < minContentWords:
		result = contracts.ResultReviewQueue
	case a.strictFallback:
		result = strictVerdict(findings)
	default:
		result = contracts.ResultPass
	}

	return &contracts.AuditReport{
		OverallResult:   result,
		Score:           score,
		Findings:        findings,
		ExtractedFields: fields,
		Summary: fmt.Sprintf("rule-based audit: %d of %d expected fields detected, %d finding(s), %d words of text",
			cov.detected(), cov.total(), len(findings), words),
	}
}

// strictVerdict maps finding severities onto the overall result: any S0
// fails the document, any S1 routes it to review.
func strictVerdict(findings []contracts.Finding) contracts.OverallResult {
	worst := contracts.ResultPass
	for _, f := range findings {
		switch f.Severity {
		case contracts.SeverityS0:
			return contracts.ResultFail
		case contracts.SeverityS1:
			worst = contracts.ResultReviewQueue
		}
	}
	return worst
}

// coverage splits field detection by requiredness so the score can weigh
// required fields much more heavily than optional ones.
type coverage struct {
	reqDetected, reqTotal int
	optDetected, optTotal int
}

func (c coverage) detected() int { return c.reqDetected + c.optDetected }
func (c coverage) total() int    { return c.reqTotal + c.optTotal }

func fieldCoverage(spec *contracts.TemplateSpec, text string, fields map[string]string) coverage {
	var c coverage
	tokens := selector.TokenSet(selector.Tokenize(text))
	for _, f := range spec.Fields {
		hit := fields[f.ID] != "" || labelDetected(tokens, f)
		if f.Required {
			c.reqTotal++
			if hit {
				c.reqDetected++
			}
		} else {
			c.optTotal++
			if hit {
				c.optDetected++
			}
		}
	}
	return c
}

// fallbackScore blends field coverage with content volume: 70 points for
// detecting every required field, 20 for the optional ones, 10 for content
// volume (saturating at 100 words). A terse sheet that carries all of its
// required fields still clears the passing band.
func fallbackScore(c coverage, words int) float64 {
	reqDetected, reqTotal := c.reqDetected, c.reqTotal
	if reqTotal == 0 {
		// Specs with no required fields are scored on whatever they declare.
		reqDetected, reqTotal = c.optDetected, c.optTotal
	}
	var reqRatio float64
	if reqTotal > 0 {
		reqRatio = float64(reqDetected) / float64(reqTotal)
	}
	optRatio := 1.0
	if c.optTotal > 0 && c.reqTotal > 0 {
		optRatio = float64(c.optDetected) / float64(c.optTotal)
	}
	volume := float64(words) / 100
	if volume > 1 {
		volume = 1
	}
	return 70*reqRatio + 20*optRatio + 10*volume
}
