// Package ocr adapts remote OCR providers behind one contract. The pipeline
// depends only on the Client interface; the concrete provider is chosen once
// at process start from configuration, never per call.
//
// Adapter behavior on upstream failure is part of the contract: 5xx and 429
// responses surface as retryable errors so the resiliency wrapper re-attempts
// them, other 4xx responses come back as a failed OCRResult with
// errorCode=HTTP_<status> and are never retried, and a breaker rejection
// records a dead-letter entry when the caller attributed the job.
package ocr

import (
	"context"
	"time"
)

// PageDimensions is the pixel size of a processed page.
type PageDimensions struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// PageImage locates an embedded image on a page.
type PageImage struct {
	ID   string  `json:"id"`
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
	W    float64 `json:"w"`
	H    float64 `json:"h"`
	Data string  `json:"data,omitempty"`
}

// Page is one page of extracted text.
type Page struct {
	PageNumber int             `json:"pageNumber"`
	Markdown   string          `json:"markdown"`
	Images     []PageImage     `json:"images,omitempty"`
	Dimensions *PageDimensions `json:"dimensions,omitempty"`
}

// UsageInfo is the provider's own accounting of the call.
type UsageInfo struct {
	PagesProcessed int `json:"pagesProcessed"`
	DocSizeTokens  int `json:"docSizeTokens,omitempty"`
}

// Result is the outcome of one extraction call.
type Result struct {
	Success       bool       `json:"success"`
	Pages         []Page     `json:"pages,omitempty"`
	TotalPages    int        `json:"totalPages"`
	Model         string     `json:"model"`
	CorrelationID string     `json:"correlationId,omitempty"`
	ProcessingMs  int64      `json:"processingTimeMs,omitempty"`
	UsageInfo     *UsageInfo `json:"usageInfo,omitempty"`
	Error         string     `json:"error,omitempty"`
	ErrorCode     string     `json:"errorCode,omitempty"`
	RetryAttempts int        `json:"retryAttempts,omitempty"`
}

// Text concatenates all page markdown in page order.
func (r *Result) Text() string {
	out := ""
	for i, p := range r.Pages {
		if i > 0 {
			out += "\n\n"
		}
		out += p.Markdown
	}
	return out
}

// Options tunes one extraction call.
type Options struct {
	IncludeImageLocations bool
	ImageLimit            int
	PageLimit             int
	// JobSheetID attributes dead-letter entries to a document.
	JobSheetID string
	// SkipRetry disables the retry loop; the breaker still applies.
	SkipRetry bool
	// RedactPII redacts page text before the result is returned.
	RedactPII bool
}

// KeyValidation is the outcome of an API key check.
type KeyValidation struct {
	Valid bool   `json:"valid"`
	Error string `json:"error,omitempty"`
}

// RequestMetadata describes an extraction request without its content.
type RequestMetadata struct {
	DocumentType string `json:"documentType"`
	PageLimit    int    `json:"pageLimit,omitempty"`
	ImageLimit   int    `json:"imageLimit,omitempty"`
}

// ResponseMetadata describes the provider response without its content.
type ResponseMetadata struct {
	StatusCode       int   `json:"statusCode"`
	ProcessingTimeMs int64 `json:"processingTimeMs"`
	PagesProcessed   int   `json:"pagesProcessed"`
	TokensGenerated  int   `json:"tokensGenerated,omitempty"`
}

// ProviderArtifact records one provider interaction for the audit trail.
// Metadata only: OCR text never appears here.
type ProviderArtifact struct {
	Provider         string           `json:"provider"`
	Model            string           `json:"model"`
	Timestamp        time.Time        `json:"timestamp"`
	CorrelationID    string           `json:"correlationId,omitempty"`
	RequestMetadata  RequestMetadata  `json:"requestMetadata"`
	ResponseMetadata ResponseMetadata `json:"responseMetadata"`
}

// Client is the capability contract over an OCR provider.
type Client interface {
	ExtractFromURL(ctx context.Context, url string, opts Options) (*Result, error)
	ExtractFromBase64(ctx context.Context, data, mimeType string, opts Options) (*Result, error)
	ValidateAPIKey(ctx context.Context) KeyValidation
	GetProviderArtifact(result *Result, opts Options) ProviderArtifact
}
