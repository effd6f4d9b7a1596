package ocr

import (
	"context"
	"time"

	"github.com/Mindburn-Labs/jobproof/pkg/correlation"
)

// MockClient is the in-process OCR provider for tests and offline runs.
// Callers seed it with page text keyed by document URL or base64 payload;
// unknown inputs return Text as a single page.
type MockClient struct {
	// Text is the fallback page content for any input.
	Text string
	// ByKey maps a URL or base64 payload to specific page contents.
	ByKey map[string][]string
	// Fail forces every call to return a failed result with this code.
	Fail string

	now func() time.Time
}

// NewMockClient creates a mock returning text as one page.
func NewMockClient(text string) *MockClient {
	return &MockClient{Text: text, now: time.Now}
}

func (m *MockClient) result(ctx context.Context, key string) *Result {
	if m.Fail != "" {
		return &Result{
			Success:       false,
			Model:         "mock-ocr",
			CorrelationID: correlation.ID(ctx),
			Error:         "mock failure",
			ErrorCode:     m.Fail,
		}
	}
	texts := []string{m.Text}
	if m.ByKey != nil {
		if t, ok := m.ByKey[key]; ok {
			texts = t
		}
	}
	r := &Result{
		Success:       true,
		Model:         "mock-ocr",
		TotalPages:    len(texts),
		CorrelationID: correlation.ID(ctx),
	}
	for i, t := range texts {
		r.Pages = append(r.Pages, Page{PageNumber: i + 1, Markdown: t})
	}
	return r
}

// ExtractFromURL implements Client.
func (m *MockClient) ExtractFromURL(ctx context.Context, url string, _ Options) (*Result, error) {
	return m.result(ctx, url), nil
}

// ExtractFromBase64 implements Client.
func (m *MockClient) ExtractFromBase64(ctx context.Context, data, _ string, _ Options) (*Result, error) {
	return m.result(ctx, data), nil
}

// ValidateAPIKey implements Client.
func (m *MockClient) ValidateAPIKey(context.Context) KeyValidation {
	return KeyValidation{Valid: true}
}

// GetProviderArtifact implements Client.
func (m *MockClient) GetProviderArtifact(result *Result, opts Options) ProviderArtifact {
	now := time.Now
	if m.now != nil {
		now = m.now
	}
	return ProviderArtifact{
		Provider:      "mock",
		Model:         result.Model,
		Timestamp:     now().UTC(),
		CorrelationID: result.CorrelationID,
		RequestMetadata: RequestMetadata{
			DocumentType: "job_sheet",
			PageLimit:    opts.PageLimit,
			ImageLimit:   opts.ImageLimit,
		},
		ResponseMetadata: ResponseMetadata{
			StatusCode:     200,
			PagesProcessed: result.TotalPages,
		},
	}
}
