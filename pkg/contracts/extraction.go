package contracts

// FieldSource identifies how a field value was obtained.
type FieldSource string

const (
	SourceOCR       FieldSource = "ocr"
	SourceRegex     FieldSource = "regex"
	SourceInference FieldSource = "inference"
	SourceImageQA   FieldSource = "image_qa"
)

// ExtractedField is one field value pulled out of a document, before
// calibration. Confidence is the extractor's own estimate in [0,100];
// calibration adjusts it and decides acceptance.
type ExtractedField struct {
	FieldID    string      `json:"fieldId"`
	Value      string      `json:"value"`
	Confidence float64     `json:"confidence"`
	Source     FieldSource `json:"source"`
	Extracted  bool        `json:"extracted"`
	// ROIMatch is nil when no region layout applies, true/false when the
	// value was or was not found inside the field's configured region.
	ROIMatch *bool `json:"roiMatch,omitempty"`
}
