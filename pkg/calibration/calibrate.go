package calibration

import (
	"fmt"
	"regexp"

	"github.com/Mindburn-Labs/jobproof/pkg/contracts"
)

// Decision is the calibrated verdict for one field.
type Decision string

const (
	DecisionAccepted    Decision = "accepted"
	DecisionNeedsReview Decision = "needs_review"
	DecisionRejected    Decision = "rejected"
)

// Confidence penalties. Each applied penalty is recorded in the result's
// notes so the audit trail explains every point deducted.
const (
	penaltyDisallowedMethod = 15.0
	penaltyPatternMismatch  = 20.0
	penaltyMissingROI       = 10.0
)

// FieldResult is the calibrated outcome for one extracted field.
type FieldResult struct {
	Field              contracts.ExtractedField `json:"field"`
	Calibration        FieldCalibration         `json:"-"`
	AdjustedConfidence float64                  `json:"adjustedConfidence"`
	Decision           Decision                 `json:"decision"`
	Notes              []string                 `json:"notes,omitempty"`
}

// Result is the calibrated outcome for one document.
type Result struct {
	Level   ThresholdLevel `json:"level"`
	Fields  []FieldResult  `json:"fields"`
	Quality Quality        `json:"quality"`
}

// CalibrateField applies the profile's penalties to one extraction and
// decides acceptance.
func (p *Profile) CalibrateField(f contracts.ExtractedField) FieldResult {
	cal := p.Calibration(f.FieldID)
	adjusted := f.Confidence
	var notes []string

	if len(cal.AllowedMethods) > 0 && !methodAllowed(cal.AllowedMethods, f.Source) {
		adjusted -= penaltyDisallowedMethod
		notes = append(notes, fmt.Sprintf("source %q not in allowed methods (-%.0f)", f.Source, penaltyDisallowedMethod))
	}
	if cal.ValidationPattern != "" && f.Extracted {
		if re, err := regexp.Compile(cal.ValidationPattern); err == nil && !re.MatchString(f.Value) {
			adjusted -= penaltyPatternMismatch
			notes = append(notes, fmt.Sprintf("value does not match validation pattern (-%.0f)", penaltyPatternMismatch))
		}
	}
	roiRequired := cal.IsCritical && p.Thresholds.RequireRoiForCriticalFields
	if cal.IsCritical && f.ROIMatch != nil && !*f.ROIMatch {
		adjusted -= penaltyMissingROI
		notes = append(notes, fmt.Sprintf("critical field found outside its region (-%.0f)", penaltyMissingROI))
	} else if roiRequired && f.ROIMatch == nil {
		adjusted -= penaltyMissingROI
		notes = append(notes, fmt.Sprintf("critical field has no region evidence (-%.0f)", penaltyMissingROI))
	}

	if adjusted < 0 {
		adjusted = 0
	}
	if adjusted > 100 {
		adjusted = 100
	}

	var decision Decision
	switch {
	case adjusted >= cal.MinConfidence:
		decision = DecisionAccepted
	case adjusted >= cal.ReviewThreshold:
		decision = DecisionNeedsReview
	default:
		decision = DecisionRejected
	}

	return FieldResult{
		Field:              f,
		Calibration:        cal,
		AdjustedConfidence: adjusted,
		Decision:           decision,
		Notes:              notes,
	}
}

// Calibrate runs every extracted field through the profile and aggregates
// document quality.
func (p *Profile) Calibrate(spec *contracts.TemplateSpec, fields []contracts.ExtractedField) *Result {
	res := &Result{Level: p.Level}
	for _, f := range fields {
		res.Fields = append(res.Fields, p.CalibrateField(f))
	}
	res.Quality = p.assessQuality(spec, res.Fields)
	return res
}

func methodAllowed(allowed []contracts.FieldSource, src contracts.FieldSource) bool {
	for _, a := range allowed {
		if a == src {
			return true
		}
	}
	return false
}

// AcceptedFields returns the values that passed calibration, keyed by
// field id.
func (r *Result) AcceptedFields() map[string]string {
	out := make(map[string]string)
	for _, f := range r.Fields {
		if f.Decision == DecisionAccepted {
			out[f.Field.FieldID] = f.Field.Value
		}
	}
	return out
}
