package ocr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/Mindburn-Labs/jobproof/pkg/correlation"
	"github.com/Mindburn-Labs/jobproof/pkg/dlq"
	"github.com/Mindburn-Labs/jobproof/pkg/privacy"
	"github.com/Mindburn-Labs/jobproof/pkg/resiliency"
	"github.com/Mindburn-Labs/jobproof/pkg/safelog"
)

const (
	// DefaultMistralEndpoint is the provider's OCR endpoint.
	DefaultMistralEndpoint = "https://api.mistral.ai/v1/ocr"
	// DefaultMistralModel is used unless configured otherwise.
	DefaultMistralModel = "mistral-ocr-latest"
	// AttemptTimeout bounds a single HTTP attempt; the retry loop bounds the
	// whole call.
	AttemptTimeout = 30 * time.Second
)

// MistralConfig configures the Mistral adapter.
type MistralConfig struct {
	APIKey   string
	Endpoint string
	Model    string
	// Pacer optionally throttles outbound calls below provider quota.
	Pacer *rate.Limiter
	Retry resiliency.RetryOptions
}

// MistralClient is the production OCR adapter.
type MistralClient struct {
	cfg      MistralConfig
	http     *http.Client
	breaker  *resiliency.CircuitBreaker
	queue    *dlq.Queue
	redactor *privacy.Redactor
	log      *safelog.Logger
	now      func() time.Time
}

// NewMistralClient creates the adapter. breaker and queue are shared
// process-wide state owned by the service bundle; queue may be nil when no
// dead-lettering is wanted.
func NewMistralClient(cfg MistralConfig, breaker *resiliency.CircuitBreaker, queue *dlq.Queue, log *safelog.Logger) *MistralClient {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultMistralEndpoint
	}
	if cfg.Model == "" {
		cfg.Model = DefaultMistralModel
	}
	if cfg.Retry.MaxRetries == 0 && cfg.Retry.Sleeper == nil {
		cfg.Retry = resiliency.DefaultRetryOptions()
	}
	if log == nil {
		log = safelog.New("ocr")
	}
	return &MistralClient{
		cfg:      cfg,
		http:     &http.Client{Timeout: AttemptTimeout},
		breaker:  breaker,
		queue:    queue,
		redactor: privacy.New(),
		log:      log,
		now:      time.Now,
	}
}

// wire shapes for the provider API.

type mistralDocument struct {
	Type        string `json:"type"`
	DocumentURL string `json:"document_url,omitempty"`
	Base64      string `json:"base64,omitempty"`
	MimeType    string `json:"mime_type,omitempty"`
}

type mistralRequest struct {
	Model              string          `json:"model"`
	Document           mistralDocument `json:"document"`
	PageLimit          int             `json:"page_limit,omitempty"`
	ImageLimit         int             `json:"image_limit,omitempty"`
	IncludeImageBase64 bool            `json:"include_image_base64,omitempty"`
}

type mistralPage struct {
	Index      int             `json:"index"`
	Markdown   string          `json:"markdown"`
	Images     []PageImage     `json:"images,omitempty"`
	Dimensions *PageDimensions `json:"dimensions,omitempty"`
}

type mistralResponse struct {
	Model     string        `json:"model"`
	Pages     []mistralPage `json:"pages"`
	UsageInfo *struct {
		PagesProcessed int `json:"pages_processed"`
		DocSizeTokens  int `json:"doc_size_tokens"`
	} `json:"usage_info"`
}

// ExtractFromURL implements Client.
func (c *MistralClient) ExtractFromURL(ctx context.Context, url string, opts Options) (*Result, error) {
	doc := mistralDocument{Type: "document_url", DocumentURL: url}
	return c.extract(ctx, doc, opts)
}

// ExtractFromBase64 implements Client.
func (c *MistralClient) ExtractFromBase64(ctx context.Context, data, mimeType string, opts Options) (*Result, error) {
	doc := mistralDocument{Type: "base64", Base64: data, MimeType: mimeType}
	return c.extract(ctx, doc, opts)
}

func (c *MistralClient) extract(ctx context.Context, doc mistralDocument, opts Options) (*Result, error) {
	start := c.now()

	if c.cfg.Pacer != nil {
		if err := c.cfg.Pacer.Wait(ctx); err != nil {
			return nil, err
		}
	}

	retry := c.cfg.Retry
	if opts.SkipRetry {
		retry.MaxRetries = 0
	}
	attempts := 0
	prevOnRetry := retry.OnRetry
	retry.OnRetry = func(attempt int, err error, delay time.Duration) {
		attempts = attempt
		c.log.Warn(ctx, "ocr retry scheduled", map[string]any{
			"attempt": attempt,
			"delayMs": delay.Milliseconds(),
			"error":   err.Error(),
		})
		if prevOnRetry != nil {
			prevOnRetry(attempt, err, delay)
		}
	}

	var result *Result
	err := resiliency.WithResiliency(ctx, c.breaker, retry, func(ctx context.Context) error {
		r, err := c.attempt(ctx, doc, opts)
		if err != nil {
			return err
		}
		result = r
		return nil
	})

	if err != nil {
		if resiliency.IsCircuitOpen(err) {
			c.deadLetter(ctx, opts, err)
			return &Result{
				Success:       false,
				Model:         c.cfg.Model,
				CorrelationID: correlation.ID(ctx),
				Error:         err.Error(),
				ErrorCode:     resiliency.CodeCircuitOpen,
				RetryAttempts: attempts,
			}, nil
		}
		return nil, err
	}

	result.Model = c.cfg.Model
	result.CorrelationID = correlation.ID(ctx)
	result.ProcessingMs = c.now().Sub(start).Milliseconds()
	result.RetryAttempts = attempts
	if opts.RedactPII && result.Success {
		for i := range result.Pages {
			result.Pages[i].Markdown = c.redactor.RedactText(result.Pages[i].Markdown)
		}
	}
	return result, nil
}

// attempt performs one HTTP round trip. Retryable failures come back as
// errors; client errors (4xx except 429) come back as a failed Result.
func (c *MistralClient) attempt(ctx context.Context, doc mistralDocument, opts Options) (*Result, error) {
	body, err := json.Marshal(mistralRequest{
		Model:              c.cfg.Model,
		Document:           doc,
		PageLimit:          opts.PageLimit,
		ImageLimit:         opts.ImageLimit,
		IncludeImageBase64: opts.IncludeImageLocations,
	})
	if err != nil {
		return nil, fmt.Errorf("ocr: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("ocr: create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")
	if cid := correlation.ID(ctx); cid != "" {
		req.Header.Set("X-Correlation-ID", cid)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ocr: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusOK:
		// fall through to decode
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		// Retryable by contract; the error code carries the status so the
		// retry matcher recognizes it.
		return nil, resiliency.NewHTTPError(resp.StatusCode, "ocr upstream failure")
	default:
		// Client error: terminal, never retried, never a breaker failure.
		return &Result{
			Success:   false,
			Error:     fmt.Sprintf("ocr upstream rejected request with status %d", resp.StatusCode),
			ErrorCode: resiliency.HTTPCode(resp.StatusCode),
		}, nil
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("ocr: read response: %w", err)
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return &Result{
			Success:   false,
			Error:     "ocr upstream returned an empty response",
			ErrorCode: resiliency.CodeEmptyResponse,
		}, nil
	}

	var mr mistralResponse
	if err := json.Unmarshal(raw, &mr); err != nil {
		return &Result{
			Success:   false,
			Error:     "ocr upstream returned invalid JSON: " + err.Error(),
			ErrorCode: resiliency.CodeInvalidJSON,
		}, nil
	}

	result := &Result{Success: true, TotalPages: len(mr.Pages)}
	for i, p := range mr.Pages {
		n := p.Index
		if n == 0 {
			n = i + 1
		}
		result.Pages = append(result.Pages, Page{
			PageNumber: n,
			Markdown:   p.Markdown,
			Images:     p.Images,
			Dimensions: p.Dimensions,
		})
	}
	if mr.UsageInfo != nil {
		result.UsageInfo = &UsageInfo{
			PagesProcessed: mr.UsageInfo.PagesProcessed,
			DocSizeTokens:  mr.UsageInfo.DocSizeTokens,
		}
	}
	return result, nil
}

// deadLetter records a breaker rejection. Best-effort: failures here never
// mask the original error.
func (c *MistralClient) deadLetter(ctx context.Context, opts Options, cause error) {
	if c.queue == nil || opts.JobSheetID == "" {
		return
	}
	c.queue.Add(dlq.AddRequest{
		DocumentID:    opts.JobSheetID,
		CorrelationID: correlation.ID(ctx),
		Stage:         dlq.StageOCR,
		Error:         dlq.JobError{Message: cause.Error(), Code: resiliency.CodeCircuitOpen},
	})
}

// ValidateAPIKey implements Client by probing the provider's model listing.
func (c *MistralClient) ValidateAPIKey(ctx context.Context) KeyValidation {
	if c.cfg.APIKey == "" {
		return KeyValidation{Valid: false, Error: "api key not configured"}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "https://api.mistral.ai/v1/models", nil)
	if err != nil {
		return KeyValidation{Valid: false, Error: err.Error()}
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	resp, err := c.http.Do(req)
	if err != nil {
		return KeyValidation{Valid: false, Error: err.Error()}
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return KeyValidation{Valid: false, Error: fmt.Sprintf("status %d", resp.StatusCode)}
	}
	return KeyValidation{Valid: true}
}

// GetProviderArtifact implements Client. Metadata only by contract.
func (c *MistralClient) GetProviderArtifact(result *Result, opts Options) ProviderArtifact {
	statusCode := http.StatusOK
	if !result.Success {
		statusCode = 0
	}
	pages := result.TotalPages
	tokens := 0
	if result.UsageInfo != nil {
		pages = result.UsageInfo.PagesProcessed
		tokens = result.UsageInfo.DocSizeTokens
	}
	return ProviderArtifact{
		Provider:      "mistral",
		Model:         result.Model,
		Timestamp:     c.now().UTC(),
		CorrelationID: result.CorrelationID,
		RequestMetadata: RequestMetadata{
			DocumentType: "job_sheet",
			PageLimit:    opts.PageLimit,
			ImageLimit:   opts.ImageLimit,
		},
		ResponseMetadata: ResponseMetadata{
			StatusCode:       statusCode,
			ProcessingTimeMs: result.ProcessingMs,
			PagesProcessed:   pages,
			TokensGenerated:  tokens,
		},
	}
}
