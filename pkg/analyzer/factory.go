package analyzer

import (
	"fmt"
	"os"
)

// Providers selectable via ANALYZER_PROVIDER.
const (
	ProviderGemini = "gemini"
	ProviderMock   = "mock"
	ProviderOff    = "off"
)

// NewClientFromEnv builds the LLM client named by ANALYZER_PROVIDER. With
// no provider set, Gemini is used when GEMINI_API_KEY is present and the
// rule-based fallback (nil client) otherwise.
func NewClientFromEnv() (Client, error) {
	provider := os.Getenv("ANALYZER_PROVIDER")
	key := os.Getenv("GEMINI_API_KEY")

	switch provider {
	case ProviderOff:
		return nil, nil
	case ProviderMock:
		return &MockClient{}, nil
	case ProviderGemini:
		if key == "" {
			return nil, fmt.Errorf("analyzer: ANALYZER_PROVIDER=gemini needs GEMINI_API_KEY")
		}
		return NewGeminiClient(GeminiConfig{APIKey: key, Model: os.Getenv("GEMINI_MODEL")}), nil
	case "":
		if key == "" {
			return nil, nil
		}
		return NewGeminiClient(GeminiConfig{APIKey: key, Model: os.Getenv("GEMINI_MODEL")}), nil
	default:
		return nil, fmt.Errorf("analyzer: unknown ANALYZER_PROVIDER %q", provider)
	}
}
