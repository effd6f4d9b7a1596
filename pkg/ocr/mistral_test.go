package ocr

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mindburn-Labs/jobproof/pkg/dlq"
	"github.com/Mindburn-Labs/jobproof/pkg/resiliency"
)

type noSleep struct{}

func (noSleep) Sleep(context.Context, time.Duration) error { return nil }

func fastRetry(maxRetries int) resiliency.RetryOptions {
	if maxRetries == 0 {
		maxRetries = -1 // normalized to zero retries
	}
	return resiliency.RetryOptions{
		MaxRetries: maxRetries,
		BaseDelay:  time.Millisecond,
		Sleeper:    noSleep{},
	}
}

func newTestClient(t *testing.T, handler http.HandlerFunc, breaker *resiliency.CircuitBreaker, queue *dlq.Queue, retries int) *MistralClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewMistralClient(MistralConfig{
		APIKey:   "test-key",
		Endpoint: srv.URL,
		Retry:    fastRetry(retries),
	}, breaker, queue, nil)
}

func okResponse(pages ...string) []byte {
	type page struct {
		Index    int    `json:"index"`
		Markdown string `json:"markdown"`
	}
	var ps []page
	for i, p := range pages {
		ps = append(ps, page{Index: i + 1, Markdown: p})
	}
	b, _ := json.Marshal(map[string]any{
		"model": "mistral-ocr-latest",
		"pages": ps,
		"usage_info": map[string]int{
			"pages_processed": len(pages),
			"doc_size_tokens": 42,
		},
	})
	return b
}

func TestExtractRetriesServerErrorsThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	handler := func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		if calls.Add(1) <= 2 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write(okResponse("page one", "page two"))
	}
	breaker := resiliency.NewCircuitBreaker("ocr", resiliency.BreakerConfig{FailureThreshold: 5})
	c := newTestClient(t, handler, breaker, nil, 3)

	res, err := c.ExtractFromURL(context.Background(), "https://example.com/sheet.pdf", Options{})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 2, res.TotalPages)
	assert.Equal(t, 2, res.RetryAttempts)
	assert.Equal(t, resiliency.StateClosed, breaker.State())
	assert.Equal(t, "page one\n\npage two", res.Text())
}

func TestExtractClientErrorIsTerminal(t *testing.T) {
	var calls atomic.Int32
	handler := func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnprocessableEntity)
	}
	c := newTestClient(t, handler, nil, nil, 3)

	res, err := c.ExtractFromURL(context.Background(), "https://example.com/sheet.pdf", Options{})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, "HTTP_422", res.ErrorCode)
	assert.Equal(t, int32(1), calls.Load(), "4xx is never retried")
}

func TestExtractPersistentFailureOpensBreakerAndDeadLetters(t *testing.T) {
	handler := func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}
	breaker := resiliency.NewCircuitBreaker("ocr", resiliency.BreakerConfig{FailureThreshold: 2, ResetTimeout: time.Minute})
	queue := dlq.New(10)
	c := newTestClient(t, handler, breaker, queue, 0)
	ctx := context.Background()

	// Two failing calls trip the breaker.
	for i := 0; i < 2; i++ {
		_, err := c.ExtractFromURL(ctx, "https://example.com/sheet.pdf", Options{JobSheetID: "doc-1"})
		require.Error(t, err)
	}
	assert.Equal(t, resiliency.StateOpen, breaker.State())

	res, err := c.ExtractFromURL(ctx, "https://example.com/sheet.pdf", Options{JobSheetID: "doc-1"})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, resiliency.CodeCircuitOpen, res.ErrorCode)

	jobs := queue.ListByStage(dlq.StageOCR)
	require.Len(t, jobs, 1)
	assert.Equal(t, "doc-1", jobs[0].DocumentID)
	assert.True(t, jobs[0].Recoverable)
}

func TestExtractEmptyAndInvalidResponses(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {}, nil, nil, 0)
		res, err := c.ExtractFromURL(context.Background(), "u", Options{})
		require.NoError(t, err)
		assert.False(t, res.Success)
		assert.Equal(t, resiliency.CodeEmptyResponse, res.ErrorCode)
	})
	t.Run("invalid json", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("{broken"))
		}, nil, nil, 0)
		res, err := c.ExtractFromURL(context.Background(), "u", Options{})
		require.NoError(t, err)
		assert.False(t, res.Success)
		assert.Equal(t, resiliency.CodeInvalidJSON, res.ErrorCode)
	})
}

func TestExtractRedactPII(t *testing.T) {
	handler := func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(okResponse("Contact: tech@example.com for access"))
	}
	c := newTestClient(t, handler, nil, nil, 0)

	res, err := c.ExtractFromURL(context.Background(), "u", Options{RedactPII: true})
	require.NoError(t, err)
	require.True(t, res.Success)
	assert.NotContains(t, res.Pages[0].Markdown, "tech@example.com")
	assert.Contains(t, res.Pages[0].Markdown, "[REDACTED:EMAIL]")
}

func TestProviderArtifactCarriesNoText(t *testing.T) {
	handler := func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(okResponse("secret page body"))
	}
	c := newTestClient(t, handler, nil, nil, 0)

	res, err := c.ExtractFromURL(context.Background(), "u", Options{PageLimit: 5})
	require.NoError(t, err)

	art := c.GetProviderArtifact(res, Options{PageLimit: 5})
	assert.Equal(t, "mistral", art.Provider)
	assert.Equal(t, 5, art.RequestMetadata.PageLimit)
	assert.Equal(t, 1, art.ResponseMetadata.PagesProcessed)
	assert.Equal(t, 42, art.ResponseMetadata.TokensGenerated)

	b, err := json.Marshal(art)
	require.NoError(t, err)
	assert.NotContains(t, string(b), "secret page body")
}

func TestValidateAPIKeyMissing(t *testing.T) {
	c := NewMistralClient(MistralConfig{}, nil, nil, nil)
	v := c.ValidateAPIKey(context.Background())
	assert.False(t, v.Valid)
	assert.NotEmpty(t, v.Error)
}
