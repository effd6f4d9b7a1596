package contracts

import "time"

// InsightsArtifactVersion is the wire version of the insights artifact.
const InsightsArtifactVersion = "1.0.0"

// Insight is one advisory observation from the interpreter.
type Insight struct {
	Category      string   `json:"category"`
	Summary       string   `json:"summary"`
	Detail        string   `json:"detail,omitempty"`
	Confidence    float64  `json:"confidence"`
	RelatedFields []string `json:"relatedFields,omitempty"`
}

// InsightsMetadata carries provenance for an insights artifact.
type InsightsMetadata struct {
	ProcessingMs   int64    `json:"processingMs"`
	InputArtifacts []string `json:"inputArtifacts"`
}

// InsightsArtifact is the advisory output of the LLM interpreter.
// IsAdvisoryOnly is invariantly true: the artifact is never merged into an
// AuditReport and never affects overallResult, score, or findings.
type InsightsArtifact struct {
	Version        string           `json:"version"`
	GeneratedAt    time.Time        `json:"generatedAt"`
	CorrelationID  string           `json:"correlationId,omitempty"`
	Model          string           `json:"model"`
	IsAdvisoryOnly bool             `json:"isAdvisoryOnly"`
	Insights       []Insight        `json:"insights"`
	Summary        string           `json:"summary,omitempty"`
	Metadata       InsightsMetadata `json:"metadata"`
}
