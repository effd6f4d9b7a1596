package contracts

// Fixture case outcomes. Lowercase on the wire; they map onto the canonical
// report result during fixture runs.
const (
	FixtureOutcomePass        = "pass"
	FixtureOutcomeFail        = "fail"
	FixtureOutcomeReviewQueue = "review_queue"
)

// FixtureCase is one labeled input attached to a template version.
type FixtureCase struct {
	CaseID              string            `json:"caseId"`
	Description         string            `json:"description,omitempty"`
	InputText           string            `json:"inputText"`
	ExpectedOutcome     string            `json:"expectedOutcome"`
	ExpectedReasonCodes []string          `json:"expectedReasonCodes,omitempty"`
	ExpectedFields      map[string]string `json:"expectedFields,omitempty"`
	Required            bool              `json:"required"`
}

// FixturePack is the labeled test set a version must pass before activation.
// HashSHA256 is computed over the case-id-sorted canonical JSON of Cases, so
// it is independent of case ordering.
type FixturePack struct {
	PackVersion string        `json:"packVersion"`
	HashSHA256  string        `json:"hashSha256"`
	Cases       []FixtureCase `json:"cases"`
}
