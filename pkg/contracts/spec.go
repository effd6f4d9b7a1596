package contracts

import "fmt"

// FieldType enumerates the value types a template field may declare.
type FieldType string

const (
	FieldTypeString   FieldType = "string"
	FieldTypeNumber   FieldType = "number"
	FieldTypeDate     FieldType = "date"
	FieldTypeBoolean  FieldType = "boolean"
	FieldTypeCurrency FieldType = "currency"
	FieldTypeList     FieldType = "list"
)

// RuleType enumerates the validation rule kinds.
type RuleType string

const (
	RuleTypeRequired RuleType = "required"
	RuleTypeFormat   RuleType = "format"
	RuleTypeRange    RuleType = "range"
	RuleTypePattern  RuleType = "pattern"
	RuleTypeCustom   RuleType = "custom"
)

// RuleSeverity is the author-facing severity of a template rule. It maps onto
// the canonical finding severity (S0..S3) at evaluation time.
type RuleSeverity string

const (
	RuleSeverityCritical RuleSeverity = "critical"
	RuleSeverityMajor    RuleSeverity = "major"
	RuleSeverityMinor    RuleSeverity = "minor"
	RuleSeverityInfo     RuleSeverity = "info"
)

// FieldSpec declares one extractable field of a job sheet.
type FieldSpec struct {
	ID              string    `json:"id"`
	Label           string    `json:"label"`
	Type            FieldType `json:"type"`
	Required        bool      `json:"required"`
	ExtractionHints []string  `json:"extractionHints,omitempty"`
	Aliases         []string  `json:"aliases,omitempty"`
}

// RuleRange bounds a numeric field. Nil ends are unbounded.
type RuleRange struct {
	Min *float64 `json:"min,omitempty"`
	Max *float64 `json:"max,omitempty"`
}

// RuleSpec declares one validation rule. Every rule MUST reference a field
// declared in the same spec; Validate enforces this.
type RuleSpec struct {
	RuleID   string       `json:"ruleId"`
	Field    string       `json:"field"`
	Type     RuleType     `json:"type"`
	Severity RuleSeverity `json:"severity"`
	Pattern  string       `json:"pattern,omitempty"`
	Range    *RuleRange   `json:"range,omitempty"`
	// Expression is a CEL program evaluated for rules of type "custom".
	// It is bound to the variables `value` (string) and `fields`
	// (map[string]string of all extracted values).
	Expression string   `json:"expression,omitempty"`
	Enabled    bool     `json:"enabled"`
	Tags       []string `json:"tags,omitempty"`
}

// SpecMetadata carries document-class metadata attached to a template spec.
type SpecMetadata struct {
	Name         string `json:"name"`
	Description  string `json:"description,omitempty"`
	DocumentKind string `json:"documentKind,omitempty"`
}

// TemplateSpec is the machine-readable field and rule specification attached
// to a template version. It is data, not code: validated against a stored
// JSON Schema at load time, then worked with as typed structs.
type TemplateSpec struct {
	Fields   []FieldSpec  `json:"fields"`
	Rules    []RuleSpec   `json:"rules"`
	Metadata SpecMetadata `json:"metadata"`
}

// Validate checks referential integrity beyond what the JSON Schema can
// express: every rule must reference a declared field and rule ids must be
// unique.
func (s *TemplateSpec) Validate() error {
	fieldIDs := make(map[string]bool, len(s.Fields))
	for _, f := range s.Fields {
		if f.ID == "" {
			return fmt.Errorf("spec: field with empty id (label %q)", f.Label)
		}
		if fieldIDs[f.ID] {
			return fmt.Errorf("spec: duplicate field id %q", f.ID)
		}
		fieldIDs[f.ID] = true
	}
	ruleIDs := make(map[string]bool, len(s.Rules))
	for _, r := range s.Rules {
		if ruleIDs[r.RuleID] {
			return fmt.Errorf("spec: duplicate rule id %q", r.RuleID)
		}
		ruleIDs[r.RuleID] = true
		if !fieldIDs[r.Field] {
			return fmt.Errorf("spec: rule %q references undeclared field %q", r.RuleID, r.Field)
		}
		if r.Type == RuleTypeCustom && r.Expression == "" {
			return fmt.Errorf("spec: custom rule %q has no expression", r.RuleID)
		}
	}
	return nil
}

// Field returns the declared field with the given id, or nil.
func (s *TemplateSpec) Field(id string) *FieldSpec {
	for i := range s.Fields {
		if s.Fields[i].ID == id {
			return &s.Fields[i]
		}
	}
	return nil
}
