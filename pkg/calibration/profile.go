// Package calibration decides which extracted field values can be trusted.
// A profile derived from the template spec assigns every field a minimum
// confidence, a review band, and extraction-method constraints; guardrails
// then judge the document-level result and map failures onto deterministic
// stop behavior.
package calibration

import (
	"fmt"

	"github.com/Mindburn-Labs/jobproof/pkg/contracts"
)

// ThresholdLevel selects how demanding calibration is.
type ThresholdLevel string

const (
	LevelStrict   ThresholdLevel = "strict"
	LevelStandard ThresholdLevel = "standard"
	LevelLenient  ThresholdLevel = "lenient"
)

// LevelThresholds are the numeric knobs of one threshold level.
type LevelThresholds struct {
	GlobalMinConfidence         float64 `yaml:"globalMinConfidence"`
	CriticalFieldMinConfidence  float64 `yaml:"criticalFieldMinConfidence"`
	ReviewThreshold             float64 `yaml:"reviewThreshold"`
	RequireRoiForCriticalFields bool    `yaml:"requireRoiForCriticalFields"`
}

// levelDefaults is monotone: strict > standard > lenient on every numeric
// knob.
var levelDefaults = map[ThresholdLevel]LevelThresholds{
	LevelStrict:   {GlobalMinConfidence: 80, CriticalFieldMinConfidence: 90, ReviewThreshold: 65, RequireRoiForCriticalFields: true},
	LevelStandard: {GlobalMinConfidence: 70, CriticalFieldMinConfidence: 80, ReviewThreshold: 50, RequireRoiForCriticalFields: false},
	LevelLenient:  {GlobalMinConfidence: 55, CriticalFieldMinConfidence: 70, ReviewThreshold: 40, RequireRoiForCriticalFields: false},
}

// ThresholdsFor returns the numeric knobs of a level; unknown levels get
// standard.
func ThresholdsFor(level ThresholdLevel) LevelThresholds {
	if t, ok := levelDefaults[level]; ok {
		return t
	}
	return levelDefaults[LevelStandard]
}

// AlwaysCriticalFields are critical whatever the spec says: a job sheet
// without them cannot be audited.
func AlwaysCriticalFields() []string {
	return []string{"engineerSignOff", "date", "jobReference", "assetId"}
}

// FieldCalibration is the per-field decision input.
type FieldCalibration struct {
	FieldID           string                  `yaml:"fieldId"`
	MinConfidence     float64                 `yaml:"minConfidence"`
	ReviewThreshold   float64                 `yaml:"reviewThreshold"`
	IsCritical        bool                    `yaml:"isCritical"`
	AllowedMethods    []contracts.FieldSource `yaml:"allowedMethods"`
	ValidationPattern string                  `yaml:"validationPattern,omitempty"`
	MaxRetries        int                     `yaml:"maxRetries"`
}

// Profile holds every field's calibration plus the level knobs it was
// derived from.
type Profile struct {
	Level      ThresholdLevel
	Thresholds LevelThresholds
	Fields     map[string]FieldCalibration
}

// defaultAllowedMethods accepts every extraction source; specs narrow this
// per field via extraction hints in future revisions.
func defaultAllowedMethods() []contracts.FieldSource {
	return []contracts.FieldSource{contracts.SourceOCR, contracts.SourceRegex, contracts.SourceInference, contracts.SourceImageQA}
}

// ProfileOverrides adjust profile derivation from a loaded calibration
// profile file. The always-critical floor can be extended, never shrunk.
type ProfileOverrides struct {
	Thresholds         *LevelThresholds
	AdditionalCritical []string
}

// NewProfile derives a calibration profile from a template spec at the
// given threshold level. Fields in the always-critical set are critical
// regardless of the spec.
func NewProfile(spec *contracts.TemplateSpec, level ThresholdLevel) *Profile {
	return NewProfileWithOverrides(spec, level, ProfileOverrides{})
}

// NewProfileWithOverrides derives a profile with explicit overrides applied
// on top of the level defaults.
func NewProfileWithOverrides(spec *contracts.TemplateSpec, level ThresholdLevel, ov ProfileOverrides) *Profile {
	th := ThresholdsFor(level)
	if ov.Thresholds != nil {
		th = *ov.Thresholds
	}

	critical := make(map[string]bool)
	for _, f := range AlwaysCriticalFields() {
		critical[f] = true
	}
	for _, f := range ov.AdditionalCritical {
		critical[f] = true
	}
	for _, f := range spec.Fields {
		if f.Required {
			critical[f.ID] = true
		}
	}

	patterns := make(map[string]string)
	for _, r := range spec.Rules {
		if !r.Enabled || r.Pattern == "" {
			continue
		}
		if r.Type == contracts.RuleTypeFormat || r.Type == contracts.RuleTypePattern {
			patterns[r.Field] = r.Pattern
		}
	}

	p := &Profile{Level: level, Thresholds: th, Fields: make(map[string]FieldCalibration, len(spec.Fields))}
	for _, f := range spec.Fields {
		minConf := th.GlobalMinConfidence
		if critical[f.ID] {
			minConf = th.CriticalFieldMinConfidence
		}
		p.Fields[f.ID] = FieldCalibration{
			FieldID:           f.ID,
			MinConfidence:     minConf,
			ReviewThreshold:   th.ReviewThreshold,
			IsCritical:        critical[f.ID],
			AllowedMethods:    defaultAllowedMethods(),
			ValidationPattern: patterns[f.ID],
			MaxRetries:        2,
		}
	}
	return p
}

// Calibration returns the per-field calibration, or a synthesized default
// for fields the spec does not declare.
func (p *Profile) Calibration(fieldID string) FieldCalibration {
	if c, ok := p.Fields[fieldID]; ok {
		return c
	}
	return FieldCalibration{
		FieldID:         fieldID,
		MinConfidence:   p.Thresholds.GlobalMinConfidence,
		ReviewThreshold: p.Thresholds.ReviewThreshold,
		AllowedMethods:  defaultAllowedMethods(),
		MaxRetries:      2,
	}
}

// CriticalFieldIDs lists the profile's critical fields in spec order.
func (p *Profile) CriticalFieldIDs(spec *contracts.TemplateSpec) []string {
	var out []string
	for _, f := range spec.Fields {
		if p.Fields[f.ID].IsCritical {
			out = append(out, f.ID)
		}
	}
	return out
}

// ParseLevel validates a configured threshold level string.
func ParseLevel(s string) (ThresholdLevel, error) {
	switch ThresholdLevel(s) {
	case LevelStrict, LevelStandard, LevelLenient:
		return ThresholdLevel(s), nil
	case "":
		return LevelStandard, nil
	default:
		return "", fmt.Errorf("calibration: unknown threshold level %q", s)
	}
}
