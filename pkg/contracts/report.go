package contracts

// OverallResult is the canonical verdict of an audit.
type OverallResult string

const (
	ResultPass        OverallResult = "PASS"
	ResultFail        OverallResult = "FAIL"
	ResultReviewQueue OverallResult = "REVIEW_QUEUE"
)

// AuditReport is the canonical output of the pipeline for one document.
// Advisory insights never appear here; swapping the interpreter on or off
// yields a byte-identical report.
type AuditReport struct {
	OverallResult   OverallResult     `json:"overallResult"`
	Score           float64           `json:"score"`
	Findings        []Finding         `json:"findings"`
	ExtractedFields map[string]string `json:"extractedFields"`
	Summary         string            `json:"summary"`
	ProcessingMs    int64             `json:"processingMs"`
	Model           string            `json:"model"`
	CorrelationID   string            `json:"correlationId,omitempty"`
	RetryAttempts   int               `json:"retryAttempts"`
	ErrorCode       string            `json:"errorCode,omitempty"`
}
