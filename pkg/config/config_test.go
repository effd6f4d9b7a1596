package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{
		"APP_ENV", "NODE_ENV", "LOG_LEVEL", "TEMPLATE_SSOT_MODE",
		"OCR_PROVIDER", "ANALYZER_STRICT_FALLBACK", "ENABLE_RAW_OCR_INSIGHTS",
		"DATA_DIR",
	} {
		t.Setenv(key, "")
	}

	cfg := Load()
	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, "INFO", cfg.LogLevel)
	assert.Equal(t, "data", cfg.DataDir)
	assert.False(t, cfg.AnalyzerStrictFallback)
	assert.False(t, cfg.EnableRawOCRInsights)
	assert.False(t, cfg.IsFailClosed())
}

func TestLoadEnvironmentFallback(t *testing.T) {
	t.Setenv("APP_ENV", "")
	t.Setenv("NODE_ENV", "staging")

	cfg := Load()
	assert.Equal(t, "staging", cfg.Environment)
	assert.True(t, cfg.IsFailClosed())

	t.Setenv("APP_ENV", "production")
	cfg = Load()
	assert.Equal(t, "production", cfg.Environment, "APP_ENV wins over NODE_ENV")
	assert.True(t, cfg.IsFailClosed())
}

func TestBooleanFlagsRequireExplicitTrue(t *testing.T) {
	t.Setenv("ENABLE_RAW_OCR_INSIGHTS", "1")
	t.Setenv("ANALYZER_STRICT_FALLBACK", "yes")

	cfg := Load()
	assert.False(t, cfg.EnableRawOCRInsights)
	assert.False(t, cfg.AnalyzerStrictFallback)

	t.Setenv("ENABLE_RAW_OCR_INSIGHTS", "true")
	cfg = Load()
	assert.True(t, cfg.EnableRawOCRInsights)
}

func TestLoadProviderFlags(t *testing.T) {
	t.Setenv("OCR_PROVIDER", "mock")
	t.Setenv("INTERPRETER_PROVIDER", "gemini")
	t.Setenv("ANALYZER_PROVIDER", "off")
	t.Setenv("REGISTRY_STORE", "sqlite")
	t.Setenv("ARTIFACT_STORAGE_TYPE", "s3")

	cfg := Load()
	assert.Equal(t, "mock", cfg.OCRProvider)
	assert.Equal(t, "gemini", cfg.InterpreterProvider)
	assert.Equal(t, "off", cfg.AnalyzerProvider)
	assert.Equal(t, "sqlite", cfg.RegistryStore)
	assert.Equal(t, "s3", cfg.ArtifactStorageType)
}

func TestLoadNeverFails(t *testing.T) {
	// Validation happens in the factories that consume the values.
	t.Setenv("OCR_PROVIDER", "nonsense")
	cfg := Load()
	require.NotNil(t, cfg)
	assert.Equal(t, "nonsense", cfg.OCRProvider)
}
