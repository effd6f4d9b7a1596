package analyzer

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
)

// Client is the LLM analysis adapter. Implementations return a terminal
// error report (nil error) for non-retryable upstream rejections, and a
// coded error for transient failures so the resiliency wrapper can retry.
type Client interface {
	Analyze(ctx context.Context, spec *contracts.TemplateSpec, text string) (*contracts.AuditReport, error)
	Model() string
}

const (
	// DefaultGeminiModel is used unless configured otherwise.
	DefaultGeminiModel = "gemini-2.0-flash"
	// DefaultGeminiEndpoint is the generateContent URL prefix.
	DefaultGeminiEndpoint = "https://generativelanguage.googleapis.com/v1beta/models"

	geminiAttemptTimeout = 60 * time.Second
)

// GeminiConfig configures the Gemini analysis adapter.
type GeminiConfig struct {
	APIKey   string
	Endpoint string
	Model    string
	Pacer    *rate.Limiter
}

// GeminiClient runs the schema-constrained audit call against Gemini.
type GeminiClient struct {
	cfg  GeminiConfig
	http *http.Client
}

// NewGeminiClient creates the adapter. Retry and breaker wrapping happen in
// the Analyzer, not here: one attempt per call.
func NewGeminiClient(cfg GeminiConfig) *GeminiClient {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultGeminiEndpoint
	}
	if cfg.Model == "" {
		cfg.Model = DefaultGeminiModel
	}
	return &GeminiClient{
		cfg:  cfg,
		http: &http.Client{Timeout: geminiAttemptTimeout},
	}
}

func (c *GeminiClient) Model() string { return c.cfg.Model }

// auditSchema constrains the response to the canonical report shape. The
// provider enforces it server-side via responseSchema.
var auditSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"overallResult": map[string]any{"type": "string", "enum": []string{"PASS", "FAIL", "REVIEW_QUEUE"}},
		"score":         map[string]any{"type": "number"},
		"findings": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"ruleId":       map[string]any{"type": "string"},
					"fieldName":    map[string]any{"type": "string"},
					"severity":     map[string]any{"type": "string", "enum": []string{"S0", "S1", "S2", "S3"}},
					"reasonCode":   map[string]any{"type": "string", "enum": contracts.AllReasonCodes()},
					"rawSnippet":   map[string]any{"type": "string"},
					"confidence":   map[string]any{"type": "number"},
					"whyItMatters": map[string]any{"type": "string"},
					"suggestedFix": map[string]any{"type": "string"},
				},
				"required": []string{"ruleId", "fieldName", "severity", "reasonCode"},
			},
		},
		"extractedFields": map[string]any{"type": "object"},
		"summary":         map[string]any{"type": "string"},
	},
	"required": []string{"overallResult", "score", "findings", "summary"},
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

type auditPayload struct {
	OverallResult   string              `json:"overallResult"`
	Score           float64             `json:"score"`
	Findings        []contracts.Finding `json:"findings"`
	ExtractedFields map[string]string   `json:"extractedFields"`
	Summary         string              `json:"summary"`
}

// Analyze implements Client.
func (c *GeminiClient) Analyze(ctx context.Context, spec *contracts.TemplateSpec, text string) (*contracts.AuditReport, error) {
	if c.cfg.Pacer != nil {
		if err := c.cfg.Pacer.Wait(ctx); err != nil {
			return nil, err
		}
	}

	var req geminiRequest
	req.Contents = make([]struct {
		Parts []struct {
			Text string `json:"text"`
		} `json:"parts"`
	}, 1)
	req.Contents[0].Parts = []struct {
		Text string `json:"text"`
	}{{Text: c.buildPrompt(spec, text)}}
	req.GenerationConfig.ResponseMimeType = "application/json"
	req.GenerationConfig.ResponseSchema = auditSchema

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("analyzer: marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/%s:generateContent?key=%s", c.cfg.Endpoint, c.cfg.Model, c.cfg.APIKey)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("analyzer: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if cid := correlation.ID(ctx); cid != "" {
		httpReq.Header.Set("X-Correlation-ID", cid)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("analyzer: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, resiliency.NewHTTPError(resp.StatusCode, "analyzer upstream failure")
	default:
		return terminalReport(resiliency.HTTPCode(resp.StatusCode),
			fmt.Sprintf("analyzer upstream rejected request with status %d", resp.StatusCode)), nil
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("analyzer: read response: %w", err)
	}

	var gr geminiResponse
	if err := json.Unmarshal(raw, &gr); err != nil {
		return terminalReport(resiliency.CodeInvalidJSON,
			"analyzer upstream returned invalid JSON: "+err.Error()), nil
	}
	if len(gr.Candidates) == 0 || len(gr.Candidates[0].Content.Parts) == 0 {
		return terminalReport(resiliency.CodeEmptyResponse,
			"analyzer upstream returned no candidates"), nil
	}

	var payload auditPayload
	if err := json.Unmarshal([]byte(gr.Candidates[0].Content.Parts[0].Text), &payload); err != nil {
		return terminalReport(resiliency.CodeInvalidJSON,
			"analyzer response failed schema parse: "+err.Error()), nil
	}

	return &contracts.AuditReport{
		OverallResult:   contracts.OverallResult(payload.OverallResult),
		Score:           clampScore(payload.Score),
		Findings:        payload.Findings,
		ExtractedFields: payload.ExtractedFields,
		Summary:         payload.Summary,
		Model:           c.cfg.Model,
	}, nil
}

func (c *GeminiClient) buildPrompt(spec *contracts.TemplateSpec, text string) string {
	var b strings.Builder
	b.WriteString("You audit maintenance job sheets against a machine-readable template. ")
	b.WriteString("Evaluate every rule, extract the declared fields, and respond with JSON only.\n\n")
	b.WriteString("Template spec:\n")
	enc, _ := json.Marshal(spec)
	b.Write(enc)
	b.WriteString("\n\nDocument text:\n")
	b.WriteString(text)
	return b.String()
}

// terminalReport is a non-retryable upstream rejection expressed as a
// report, so the resiliency wrapper neither retries it nor trips the
// breaker.
func terminalReport(code, message string) *contracts.AuditReport {
	return &contracts.AuditReport{
		OverallResult: contracts.ResultReviewQueue,
		Score:         0,
		Findings: []contracts.Finding{{
			RuleID:       "pipeline",
			Severity:     contracts.SeverityS1,
			ReasonCode:   contracts.ReasonPipelineError,
			Confidence:   100,
			WhyItMatters: "the analysis call was rejected by the upstream model",
			SuggestedFix: "check the analyzer configuration and credentials",
		}},
		ExtractedFields: map[string]string{},
		Summary:         message,
		ErrorCode:       code,
	}
}

func clampScore(s float64) float64 {
	if s < 0 {
		return 0
	}
	if s > 100 {
		return 100
	}
	return s
}
