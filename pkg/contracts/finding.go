package contracts

import "sort"

// Severity is the canonical finding severity, S0 most urgent.
type Severity string

const (
	SeverityS0 Severity = "S0" // blocker
	SeverityS1 Severity = "S1" // must review
	SeverityS2 Severity = "S2" // flagged, processing continues
	SeverityS3 Severity = "S3" // informational
)

// SeverityRank orders severities for sorting, S0 first. Unknown severities
// sort last.
func SeverityRank(s Severity) int {
	switch s {
	case SeverityS0:
		return 0
	case SeverityS1:
		return 1
	case SeverityS2:
		return 2
	case SeverityS3:
		return 3
	default:
		return 4
	}
}

// SeverityFromRule maps an author-facing rule severity onto the canonical
// scale. Total: unknown values land on S2.
func SeverityFromRule(s RuleSeverity) Severity {
	switch s {
	case RuleSeverityCritical:
		return SeverityS0
	case RuleSeverityMajor:
		return SeverityS1
	case RuleSeverityMinor:
		return SeverityS2
	case RuleSeverityInfo:
		return SeverityS3
	default:
		return SeverityS2
	}
}

// Reason codes are stable identifiers explaining why a finding was raised.
// Closed enum: they MUST NOT change between releases.
const (
	ReasonMissingField       = "MISSING_FIELD"
	ReasonUnreadableField    = "UNREADABLE_FIELD"
	ReasonLowConfidence      = "LOW_CONFIDENCE"
	ReasonInvalidFormat      = "INVALID_FORMAT"
	ReasonConflict           = "CONFLICT"
	ReasonOutOfPolicy        = "OUT_OF_POLICY"
	ReasonIncompleteEvidence = "INCOMPLETE_EVIDENCE"
	ReasonOCRFailure         = "OCR_FAILURE"
	ReasonPipelineError      = "PIPELINE_ERROR"
	ReasonSpecGap            = "SPEC_GAP"
	ReasonSecurityRisk       = "SECURITY_RISK"
)

// AllReasonCodes returns the full closed set of reason codes.
func AllReasonCodes() []string {
	return []string{
		ReasonMissingField,
		ReasonUnreadableField,
		ReasonLowConfidence,
		ReasonInvalidFormat,
		ReasonConflict,
		ReasonOutOfPolicy,
		ReasonIncompleteEvidence,
		ReasonOCRFailure,
		ReasonPipelineError,
		ReasonSpecGap,
		ReasonSecurityRisk,
	}
}

// IsReasonCode reports whether code belongs to the closed enum.
func IsReasonCode(code string) bool {
	for _, c := range AllReasonCodes() {
		if c == code {
			return true
		}
	}
	return false
}

// BoundingBox locates a snippet on a page in normalized coordinates.
type BoundingBox struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// Finding is one rule-evaluation outcome in the canonical audit report.
type Finding struct {
	RuleID            string       `json:"ruleId"`
	FieldName         string       `json:"fieldName"`
	Severity          Severity     `json:"severity"`
	ReasonCode        string       `json:"reasonCode"`
	RawSnippet        string       `json:"rawSnippet,omitempty"`
	NormalisedSnippet string       `json:"normalisedSnippet,omitempty"`
	Confidence        float64      `json:"confidence"`
	PageNumber        int          `json:"pageNumber"`
	BoundingBox       *BoundingBox `json:"boundingBox,omitempty"`
	WhyItMatters      string       `json:"whyItMatters,omitempty"`
	SuggestedFix      string       `json:"suggestedFix,omitempty"`
}

// SortFindings orders findings canonically: severity ascending (S0 first),
// then reason code, then field name. Emission order never depends on
// evaluation order.
func SortFindings(findings []Finding) {
	sort.SliceStable(findings, func(i, j int) bool {
		a, b := findings[i], findings[j]
		if ra, rb := SeverityRank(a.Severity), SeverityRank(b.Severity); ra != rb {
			return ra < rb
		}
		if a.ReasonCode != b.ReasonCode {
			return a.ReasonCode < b.ReasonCode
		}
		return a.FieldName < b.FieldName
	})
}
