package calibration

import (
	"fmt"
	"sort"

	"github.com/Mindburn-Labs/jobproof/pkg/contracts"
)

// Quality aggregates per-field calibration into a document-level
// assessment.
type Quality struct {
	Score              float64  `json:"score"`
	Grade              string   `json:"grade"`
	Issues             []string `json:"issues,omitempty"`
	AnomalyDetected    bool     `json:"anomalyDetected"`
	PassedQualityGates bool     `json:"passedQualityGates"`
	Recommendations    []string `json:"recommendations,omitempty"`
}

// Anomaly thresholds: exceeding either flips AnomalyDetected.
const (
	anomalyMaxRejected   = 3
	anomalyMaxDuplicates = 1
	anomalyMaxZeroConf   = 2
)

func gradeFor(score float64) string {
	switch {
	case score >= 90:
		return "A"
	case score >= 80:
		return "B"
	case score >= 70:
		return "C"
	case score >= 60:
		return "D"
	default:
		return "F"
	}
}

// assessQuality computes the aggregate quality of one calibrated document.
// Score is the mean adjusted confidence weighted down by rejections;
// quality gates fail when any critical field is missing.
func (p *Profile) assessQuality(spec *contracts.TemplateSpec, fields []FieldResult) Quality {
	q := Quality{PassedQualityGates: true}

	extracted := make(map[string]FieldResult)
	duplicates := 0
	zeroConf := 0
	rejected := 0
	var confSum float64
	for _, f := range fields {
		if _, ok := extracted[f.Field.FieldID]; ok {
			duplicates++
		}
		extracted[f.Field.FieldID] = f
		confSum += f.AdjustedConfidence
		if f.AdjustedConfidence == 0 {
			zeroConf++
		}
		switch f.Decision {
		case DecisionRejected:
			rejected++
			q.Issues = append(q.Issues, fmt.Sprintf("field %s rejected at %.0f confidence", f.Field.FieldID, f.AdjustedConfidence))
		case DecisionNeedsReview:
			q.Issues = append(q.Issues, fmt.Sprintf("field %s needs review at %.0f confidence", f.Field.FieldID, f.AdjustedConfidence))
		}
	}

	var missingCritical []string
	for _, id := range p.CriticalFieldIDs(spec) {
		f, ok := extracted[id]
		if !ok || !f.Field.Extracted {
			missingCritical = append(missingCritical, id)
		}
	}
	sort.Strings(missingCritical)
	if len(missingCritical) > 0 {
		q.PassedQualityGates = false
		for _, id := range missingCritical {
			q.Issues = append(q.Issues, fmt.Sprintf("critical field %s missing", id))
			q.Recommendations = append(q.Recommendations, fmt.Sprintf("re-scan or manually supply critical field %s", id))
		}
	}

	if len(fields) > 0 {
		q.Score = confSum / float64(len(fields))
	}
	// Rejections drag the score beyond their confidence contribution.
	q.Score -= float64(rejected) * 5
	if q.Score < 0 {
		q.Score = 0
	}
	q.Grade = gradeFor(q.Score)

	q.AnomalyDetected = rejected > anomalyMaxRejected ||
		duplicates > anomalyMaxDuplicates ||
		zeroConf > anomalyMaxZeroConf
	if q.AnomalyDetected {
		q.Recommendations = append(q.Recommendations, "extraction anomaly detected; route document to manual review")
	}
	if rejected > 0 && len(missingCritical) == 0 {
		q.Recommendations = append(q.Recommendations, "review rejected fields before accepting the audit")
	}
	return q
}

// DuplicateFieldIDs returns ids extracted more than once, sorted.
func DuplicateFieldIDs(fields []contracts.ExtractedField) []string {
	counts := make(map[string]int)
	for _, f := range fields {
		counts[f.FieldID]++
	}
	var out []string
	for id, n := range counts {
		if n > 1 {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}
