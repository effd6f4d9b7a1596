// Package config collects the environment flags the pipeline recognizes at
// its boundary, plus the YAML calibration profile loader.
package config

import "os"

// Config is the resolved environment configuration.
type Config struct {
	// Environment is APP_ENV, falling back to NODE_ENV, defaulting to
	// "development". Production and staging force fail-closed behavior.
	Environment string
	LogLevel    string

	// TEMPLATE_SSOT_MODE: "strict" or "permissive"; ignored in prod/staging.
	SSOTMode string

	// Provider selection.
	OCRProvider         string // OCR_PROVIDER: mistral|mock
	InterpreterProvider string // INTERPRETER_PROVIDER: gemini|mock|off
	AnalyzerProvider    string // ANALYZER_PROVIDER: gemini|mock|off

	// ANALYZER_STRICT_FALLBACK: derive the fallback verdict from finding
	// severities instead of passing leniently.
	AnalyzerStrictFallback bool
	// ENABLE_RAW_OCR_INSIGHTS must be explicitly "true" before raw OCR text
	// may be forwarded to the interpreter.
	EnableRawOCRInsights bool

	// Calibration.
	CalibrationLevel       string // CALIBRATION_LEVEL: strict|standard|lenient
	CalibrationProfilePath string // CALIBRATION_PROFILE_PATH: optional YAML
	ActivationPolicyPath   string // ACTIVATION_POLICY_PATH: optional YAML

	// Storage.
	RegistryStore       string // REGISTRY_STORE: memory|sqlite|postgres
	ArtifactStorageType string // ARTIFACT_STORAGE_TYPE: fs|s3|gcs
	DataDir             string // DATA_DIR: base dir for fs artifacts
}

// Load reads configuration from the environment.
func Load() *Config {
	return &Config{
		Environment:            envOr("APP_ENV", envOr("NODE_ENV", "development")),
		LogLevel:               envOr("LOG_LEVEL", "INFO"),
		SSOTMode:               os.Getenv("TEMPLATE_SSOT_MODE"),
		OCRProvider:            os.Getenv("OCR_PROVIDER"),
		InterpreterProvider:    os.Getenv("INTERPRETER_PROVIDER"),
		AnalyzerProvider:       os.Getenv("ANALYZER_PROVIDER"),
		AnalyzerStrictFallback: os.Getenv("ANALYZER_STRICT_FALLBACK") == "true",
		EnableRawOCRInsights:   os.Getenv("ENABLE_RAW_OCR_INSIGHTS") == "true",
		CalibrationLevel:       os.Getenv("CALIBRATION_LEVEL"),
		CalibrationProfilePath: os.Getenv("CALIBRATION_PROFILE_PATH"),
		ActivationPolicyPath:   os.Getenv("ACTIVATION_POLICY_PATH"),
		RegistryStore:          os.Getenv("REGISTRY_STORE"),
		ArtifactStorageType:    os.Getenv("ARTIFACT_STORAGE_TYPE"),
		DataDir:                envOr("DATA_DIR", "data"),
	}
}

// IsFailClosed reports whether the environment forces strict SSOT mode.
func (c *Config) IsFailClosed() bool {
	return c.Environment == "production" || c.Environment == "staging"
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
