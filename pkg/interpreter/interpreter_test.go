package interpreter

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mindburn-Labs/jobproof/pkg/contracts"
	"github.com/Mindburn-Labs/jobproof/pkg/resiliency"
)

type noSleep struct{}

func (noSleep) Sleep(context.Context, time.Duration) error { return nil }

func geminiOK(t *testing.T, payload insightsPayload) http.HandlerFunc {
	t.Helper()
	return func(w http.ResponseWriter, r *http.Request) {
		text, err := json.Marshal(payload)
		require.NoError(t, err)
		resp := map[string]any{
			"candidates": []map[string]any{
				{"content": map[string]any{"parts": []map[string]any{{"text": string(text)}}}},
			},
		}
		_ = json.NewEncoder(w).Encode(resp)
	}
}

func newGemini(t *testing.T, handler http.HandlerFunc) *GeminiClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewGeminiClient(GeminiConfig{
		APIKey:   "test-key",
		Endpoint: srv.URL,
		Retry:    resiliency.RetryOptions{MaxRetries: 2, BaseDelay: time.Millisecond, Sleeper: noSleep{}},
	}, nil, nil)
}

func TestInterpretFiltersAndClamps(t *testing.T) {
	payload := insightsPayload{
		Insights: []contracts.Insight{
			{Category: "a", Summary: "low", Confidence: 20},
			{Category: "b", Summary: "mid", Confidence: 60},
			{Category: "c", Summary: "high", Confidence: 90},
			{Category: "d", Summary: "also high", Confidence: 85},
		},
		Summary: "overall",
	}
	c := newGemini(t, geminiOK(t, payload))

	res, err := c.Interpret(context.Background(), Input{}, Options{MinConfidence: 50, MaxInsights: 2})
	require.NoError(t, err)
	require.True(t, res.Success)
	require.Len(t, res.Insights, 2)
	assert.Equal(t, "c", res.Insights[0].Category)
	assert.Equal(t, "d", res.Insights[1].Category)
	assert.Equal(t, "overall", res.Summary)
}

func TestInterpretInvalidJSONIsTerminal(t *testing.T) {
	calls := 0
	c := newGemini(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		resp := map[string]any{
			"candidates": []map[string]any{
				{"content": map[string]any{"parts": []map[string]any{{"text": "{broken"}}}},
			},
		}
		_ = json.NewEncoder(w).Encode(resp)
	})

	res, err := c.Interpret(context.Background(), Input{}, Options{})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, resiliency.CodeInvalidJSON, res.ErrorCode)
	assert.Equal(t, 1, calls, "contract errors are not retried")
}

func TestInterpretServerErrorRetries(t *testing.T) {
	calls := 0
	c := newGemini(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		geminiOK(t, insightsPayload{Insights: []contracts.Insight{{Category: "x", Summary: "s", Confidence: 80}}})(w, r)
	})

	res, err := c.Interpret(context.Background(), Input{}, Options{})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 1, res.RetryAttempts)
}

func TestRawOcrGatedByProcessFlag(t *testing.T) {
	var sawRaw bool
	c := newGemini(t, func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		_ = json.NewDecoder(r.Body).Decode(&req)
		b, _ := json.Marshal(req)
		sawRaw = strings.Contains(string(b), "TOP-SECRET-RAW-TEXT")
		geminiOK(t, insightsPayload{Insights: []contracts.Insight{}})(w, r)
	})

	input := Input{RawOcrText: "TOP-SECRET-RAW-TEXT"}

	t.Run("flag off", func(t *testing.T) {
		t.Setenv("ENABLE_RAW_OCR_INSIGHTS", "")
		_, err := c.Interpret(context.Background(), input, Options{IncludeRawOcr: true})
		require.NoError(t, err)
		assert.False(t, sawRaw, "raw text must not be forwarded without the process flag")
	})

	t.Run("flag on but option off", func(t *testing.T) {
		t.Setenv("ENABLE_RAW_OCR_INSIGHTS", "true")
		_, err := c.Interpret(context.Background(), input, Options{IncludeRawOcr: false})
		require.NoError(t, err)
		assert.False(t, sawRaw)
	})

	t.Run("flag on and option on", func(t *testing.T) {
		t.Setenv("ENABLE_RAW_OCR_INSIGHTS", "true")
		_, err := c.Interpret(context.Background(), input, Options{IncludeRawOcr: true})
		require.NoError(t, err)
		assert.True(t, sawRaw)
	})
}

func TestGenerateArtifactIsAdvisoryOnly(t *testing.T) {
	m := NewMockInterpreter()
	res, err := m.Interpret(context.Background(), Input{}, Options{})
	require.NoError(t, err)

	art := m.GenerateArtifact(res, []string{"selection_trace_x.json"})
	assert.True(t, art.IsAdvisoryOnly)
	assert.Equal(t, contracts.InsightsArtifactVersion, art.Version)
	assert.Equal(t, []string{"selection_trace_x.json"}, art.Metadata.InputArtifacts)
	assert.NotNil(t, art.Insights)
}

func TestMockDeterministicForSameInput(t *testing.T) {
	m := NewMockInterpreter()
	input := Input{AuditReport: &AuditReportInput{Findings: []contracts.Finding{
		{RuleID: "R-003", FieldName: "Serial Number", ReasonCode: contracts.ReasonInvalidFormat, Severity: contracts.SeverityS1},
	}}}

	a, err := m.Interpret(context.Background(), input, Options{})
	require.NoError(t, err)
	b, err := m.Interpret(context.Background(), input, Options{})
	require.NoError(t, err)
	assert.Equal(t, a.Insights, b.Insights)
}
