package contracts

import "time"

// ConfidenceBand discretizes a selection score.
type ConfidenceBand string

const (
	BandHigh   ConfidenceBand = "HIGH"
	BandMedium ConfidenceBand = "MEDIUM"
	BandLow    ConfidenceBand = "LOW"
)

// SelectionTraceVersion is the wire version of the selection trace artifact.
const SelectionTraceVersion = "1.0.0"

// SelectionScore is one candidate's score against a document.
type SelectionScore struct {
	TemplateID      string         `json:"templateId"`
	VersionID       string         `json:"versionId"`
	Score           float64        `json:"score"`
	MatchedTokens   []string       `json:"matchedTokens"`
	MissingRequired []string       `json:"missingRequired"`
	ConfidenceBand  ConfidenceBand `json:"confidenceBand"`
}

// SignalWeights is the versioned weight set used to combine selection
// signals. Pure data, never environment-dependent at request time; traces
// record the set verbatim.
type SignalWeights struct {
	Version            string  `json:"version"`
	EffectiveAt        string  `json:"effectiveAt"`
	TokenWeight        float64 `json:"tokenWeight"`
	LayoutWeight       float64 `json:"layoutWeight"`
	ROIWeight          float64 `json:"roiWeight"`
	PlausibilityWeight float64 `json:"plausibilityWeight"`
}

// SelectionResult is the selector's decision for one document.
// Candidates are sorted by score descending, then template id ascending.
type SelectionResult struct {
	SelectedTemplateID    string           `json:"selectedTemplateId,omitempty"`
	SelectedVersionID     string           `json:"selectedVersionId,omitempty"`
	Band                  ConfidenceBand   `json:"band"`
	TopScore              float64          `json:"topScore"`
	RunnerUpScore         float64          `json:"runnerUpScore"`
	Gap                   float64          `json:"gap"`
	Candidates            []SelectionScore `json:"candidates"`
	Ambiguous             bool             `json:"ambiguous"`
	AutoProcessingAllowed bool             `json:"autoProcessingAllowed"`
	BlockReason           string           `json:"blockReason,omitempty"`
}

// Selected reports whether any template was chosen.
func (r SelectionResult) Selected() bool { return r.SelectedVersionID != "" }

// TraceInputSignals summarizes the document-side inputs to a selection.
// TokenSample holds at most the first 20 tokens; raw text never appears.
type TraceInputSignals struct {
	TokenCount     int      `json:"tokenCount"`
	TokenSample    []string `json:"tokenSample"`
	DocumentLength int      `json:"documentLength"`
}

// SelectionTrace is the artifact written after every selection decision,
// selected or not.
type SelectionTrace struct {
	ArtifactVersion string            `json:"artifactVersion"`
	Timestamp       time.Time         `json:"timestamp"`
	DocumentID      string            `json:"documentId"`
	InputSignals    TraceInputSignals `json:"inputSignals"`
	Outcome         SelectionResult   `json:"outcome"`
	Candidates      []SelectionScore  `json:"candidates"`
	WeightsUsed     SignalWeights     `json:"weightsUsed"`
}
