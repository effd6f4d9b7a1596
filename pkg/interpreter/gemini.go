package interpreter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/Mindburn-Labs/jobproof/pkg/contracts"
	"github.com/Mindburn-Labs/jobproof/pkg/correlation"
	"github.com/Mindburn-Labs/jobproof/pkg/resiliency"
	"github.com/Mindburn-Labs/jobproof/pkg/safelog"
)

const (
	// DefaultGeminiModel is used unless configured otherwise.
	DefaultGeminiModel = "gemini-2.0-flash"
	// DefaultGeminiEndpoint is the generateContent URL prefix; the model
	// name and key are appended per call.
	DefaultGeminiEndpoint = "https://generativelanguage.googleapis.com/v1beta/models"

	geminiAttemptTimeout = 45 * time.Second
)

// GeminiConfig configures the Gemini adapter.
type GeminiConfig struct {
	APIKey   string
	Endpoint string
	Model    string
	Pacer    *rate.Limiter
	Retry    resiliency.RetryOptions
}

// GeminiClient is the production interpreter adapter.
type GeminiClient struct {
	cfg     GeminiConfig
	http    *http.Client
	breaker *resiliency.CircuitBreaker
	log     *safelog.Logger
	now     func() time.Time
}

// NewGeminiClient creates the adapter over a shared breaker.
func NewGeminiClient(cfg GeminiConfig, breaker *resiliency.CircuitBreaker, log *safelog.Logger) *GeminiClient {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultGeminiEndpoint
	}
	if cfg.Model == "" {
		cfg.Model = DefaultGeminiModel
	}
	if cfg.Retry.MaxRetries == 0 && cfg.Retry.Sleeper == nil {
		cfg.Retry = resiliency.DefaultRetryOptions()
	}
	if log == nil {
		log = safelog.New("interpreter")
	}
	return &GeminiClient{
		cfg:     cfg,
		http:    &http.Client{Timeout: geminiAttemptTimeout},
		breaker: breaker,
		log:     log,
		now:     time.Now,
	}
}

// insightsSchema constrains the response to {insights[], summary}. The
// provider enforces it server-side via responseSchema.
var insightsSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"insights": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"category":      map[string]any{"type": "string"},
					"summary":       map[string]any{"type": "string"},
					"detail":        map[string]any{"type": "string"},
					"confidence":    map[string]any{"type": "number"},
					"relatedFields": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
				},
				"required": []string{"category", "summary", "confidence"},
			},
		},
		"summary": map[string]any{"type": "string"},
	},
	"required": []string{"insights"},
}

type geminiRequest struct {
	Contents []struct {
		Parts []struct {
			Text string `json:"text"`
		} `json:"parts"`
	} `json:"contents"`
	GenerationConfig struct {
		ResponseMimeType string         `json:"response_mime_type"`
		ResponseSchema   map[string]any `json:"response_schema"`
		Temperature      float64        `json:"temperature"`
	} `json:"generationConfig"`
}

type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

type insightsPayload struct {
	Insights []contracts.Insight `json:"insights"`
	Summary  string              `json:"summary"`
}

// Interpret implements Interpreter.
func (c *GeminiClient) Interpret(ctx context.Context, input Input, opts Options) (*Result, error) {
	start := c.now()

	if c.cfg.Pacer != nil {
		if err := c.cfg.Pacer.Wait(ctx); err != nil {
			return nil, err
		}
	}

	prompt := c.buildPrompt(input, opts)

	retry := c.cfg.Retry
	if opts.SkipRetry {
		retry.MaxRetries = 0
	}
	attempts := 0
	retry.OnRetry = func(attempt int, err error, delay time.Duration) {
		attempts = attempt
		c.log.Warn(ctx, "interpreter retry scheduled", map[string]any{
			"attempt": attempt,
			"delayMs": delay.Milliseconds(),
			"error":   err.Error(),
		})
	}

	var payload *insightsPayload
	var terminal *Result
	err := resiliency.WithResiliency(ctx, c.breaker, retry, func(ctx context.Context) error {
		p, t, err := c.attempt(ctx, prompt)
		if err != nil {
			return err
		}
		payload, terminal = p, t
		return nil
	})

	if err != nil {
		if resiliency.IsCircuitOpen(err) {
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
	if terminal != nil {
		terminal.Model = c.cfg.Model
		terminal.CorrelationID = correlation.ID(ctx)
		terminal.RetryAttempts = attempts
		return terminal, nil
	}

	return &Result{
		Success:       true,
		Insights:      filterInsights(payload.Insights, opts),
		Summary:       payload.Summary,
		Model:         c.cfg.Model,
		CorrelationID: correlation.ID(ctx),
		ProcessingMs:  c.now().Sub(start).Milliseconds(),
		RetryAttempts: attempts,
	}, nil
}

// buildPrompt serializes only permitted material. Raw OCR text requires both
// the call option and the process flag.
func (c *GeminiClient) buildPrompt(input Input, opts Options) string {
	var b strings.Builder
	b.WriteString("You are reviewing the audit of a maintenance job sheet. ")
	b.WriteString("Produce advisory insights about data quality, completeness, and anything a human reviewer should double-check. ")
	b.WriteString("Respond with JSON only.\n\n")

	if input.AuditReport != nil {
		enc, _ := json.Marshal(input.AuditReport)
		b.WriteString("Canonical audit findings and validated fields:\n")
		b.Write(enc)
		b.WriteString("\n\n")
	}
	if len(input.ExtractedFields) > 0 {
		enc, _ := json.Marshal(input.ExtractedFields)
		b.WriteString("Extracted fields:\n")
		b.Write(enc)
		b.WriteString("\n\n")
	}
	if input.RawOcrText != "" && opts.IncludeRawOcr && RawOcrPermitted() {
		b.WriteString("Raw document text:\n")
		b.WriteString(input.RawOcrText)
		b.WriteString("\n")
	}
	return b.String()
}

func (c *GeminiClient) attempt(ctx context.Context, prompt string) (*insightsPayload, *Result, error) {
	var req geminiRequest
	req.Contents = make([]struct {
		Parts []struct {
			Text string `json:"text"`
		} `json:"parts"`
	}, 1)
	req.Contents[0].Parts = []struct {
		Text string `json:"text"`
	}{{Text: prompt}}
	req.GenerationConfig.ResponseMimeType = "application/json"
	req.GenerationConfig.ResponseSchema = insightsSchema

	body, err := json.Marshal(req)
	if err != nil {
		return nil, nil, fmt.Errorf("interpreter: marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/%s:generateContent?key=%s", c.cfg.Endpoint, c.cfg.Model, c.cfg.APIKey)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, nil, fmt.Errorf("interpreter: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if cid := correlation.ID(ctx); cid != "" {
		httpReq.Header.Set("X-Correlation-ID", cid)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, nil, fmt.Errorf("interpreter: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, nil, resiliency.NewHTTPError(resp.StatusCode, "interpreter upstream failure")
	default:
		return nil, &Result{
			Success:   false,
			Error:     fmt.Sprintf("interpreter upstream rejected request with status %d", resp.StatusCode),
			ErrorCode: resiliency.HTTPCode(resp.StatusCode),
		}, nil
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("interpreter: read response: %w", err)
	}

	var gr geminiResponse
	if err := json.Unmarshal(raw, &gr); err != nil {
		return nil, &Result{
			Success:   false,
			Error:     "interpreter upstream returned invalid JSON: " + err.Error(),
			ErrorCode: resiliency.CodeInvalidJSON,
		}, nil
	}
	if len(gr.Candidates) == 0 || len(gr.Candidates[0].Content.Parts) == 0 {
		return nil, &Result{
			Success:   false,
			Error:     "interpreter upstream returned no candidates",
			ErrorCode: resiliency.CodeEmptyResponse,
		}, nil
	}

	var payload insightsPayload
	if err := json.Unmarshal([]byte(gr.Candidates[0].Content.Parts[0].Text), &payload); err != nil {
		return nil, &Result{
			Success:   false,
			Error:     "interpreter response failed schema parse: " + err.Error(),
			ErrorCode: resiliency.CodeInvalidJSON,
		}, nil
	}
	return &payload, nil, nil
}

// ValidateAPIKey implements Interpreter by listing models.
func (c *GeminiClient) ValidateAPIKey(ctx context.Context) KeyValidation {
	if c.cfg.APIKey == "" {
		return KeyValidation{Valid: false, Error: "api key not configured"}
	}
	url := fmt.Sprintf("%s?key=%s", c.cfg.Endpoint, c.cfg.APIKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return KeyValidation{Valid: false, Error: err.Error()}
	}
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

// GenerateArtifact implements Interpreter.
func (c *GeminiClient) GenerateArtifact(result *Result, inputArtifacts []string) contracts.InsightsArtifact {
	return buildArtifact(result, inputArtifacts, c.now())
}
