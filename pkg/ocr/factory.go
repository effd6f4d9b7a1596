package ocr

import (
	"fmt"
	"os"

	"github.com/Mindburn-Labs/jobproof/pkg/dlq"
	"github.com/Mindburn-Labs/jobproof/pkg/resiliency"
	"github.com/Mindburn-Labs/jobproof/pkg/safelog"
)

// NewClientFromEnv selects the OCR provider once at process start.
//
// Environment variables:
//   - OCR_PROVIDER: "mistral" (default) or "mock"
//   - MISTRAL_API_KEY: required for the mistral provider
//   - MISTRAL_OCR_ENDPOINT, MISTRAL_OCR_MODEL: optional overrides
func NewClientFromEnv(breakers *resiliency.BreakerSet, queue *dlq.Queue, log *safelog.Logger) (Client, error) {
	provider := os.Getenv("OCR_PROVIDER")
	if provider == "" {
		provider = "mistral"
	}
	switch provider {
	case "mock":
		return NewMockClient(""), nil
	case "mistral":
		key := os.Getenv("MISTRAL_API_KEY")
		if key == "" {
			return nil, fmt.Errorf("ocr: MISTRAL_API_KEY is required for the mistral provider")
		}
		cfg := MistralConfig{
			APIKey:   key,
			Endpoint: os.Getenv("MISTRAL_OCR_ENDPOINT"),
			Model:    os.Getenv("MISTRAL_OCR_MODEL"),
		}
		return NewMistralClient(cfg, breakers.For(resiliency.UpstreamOCR), queue, log), nil
	default:
		return nil, fmt.Errorf("ocr: unsupported provider %q", provider)
	}
}
