package interpreter

import (
	"fmt"
	"os"

	"github.com/Mindburn-Labs/jobproof/pkg/resiliency"
	"github.com/Mindburn-Labs/jobproof/pkg/safelog"
)

// NewFromEnv selects the interpreter provider once at process start.
//
// Environment variables:
//   - INTERPRETER_PROVIDER: "gemini" (default), "mock", or "off"
//   - GEMINI_API_KEY: required for the gemini provider
//   - GEMINI_MODEL, GEMINI_ENDPOINT: optional overrides
//
// "off" returns nil: the pipeline runs without advisory insights.
func NewFromEnv(breakers *resiliency.BreakerSet, log *safelog.Logger) (Interpreter, error) {
	provider := os.Getenv("INTERPRETER_PROVIDER")
	if provider == "" {
		provider = "gemini"
	}
	switch provider {
	case "off":
		return nil, nil
	case "mock":
		return NewMockInterpreter(), nil
	case "gemini":
		key := os.Getenv("GEMINI_API_KEY")
		if key == "" {
			return nil, fmt.Errorf("interpreter: GEMINI_API_KEY is required for the gemini provider")
		}
		cfg := GeminiConfig{
			APIKey:   key,
			Endpoint: os.Getenv("GEMINI_ENDPOINT"),
			Model:    os.Getenv("GEMINI_MODEL"),
		}
		return NewGeminiClient(cfg, breakers.For(resiliency.UpstreamLLM), log), nil
	default:
		return nil, fmt.Errorf("interpreter: unsupported provider %q", provider)
	}
}
