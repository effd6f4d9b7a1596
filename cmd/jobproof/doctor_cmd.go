package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"
)

// runDoctorCmd checks the wiring a deployment depends on: configuration,
// the registry store, the artifact store, and provider credentials. Each
// check prints a verdict; any failure flips the exit code.
func runDoctorCmd(stdout, stderr io.Writer) int {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	svc, err := buildServices(ctx)
	if err != nil {
		fmt.Fprintf(stderr, "Error wiring services: %v\n", err)
		return 2
	}
	defer svc.Close()

	fmt.Fprintf(stdout, "\n%sjobproof doctor%s\n\n", ColorBold+ColorBlue, ColorReset)
	fmt.Fprintf(stdout, "  Environment:      %s\n", svc.cfg.Environment)
	fmt.Fprintf(stdout, "  SSOT mode:        %s\n", svc.registry.Mode())
	fmt.Fprintf(stdout, "  Registry store:   %s\n", orDefault(svc.cfg.RegistryStore, "memory"))
	fmt.Fprintf(stdout, "  Artifact store:   %s\n", orDefault(svc.cfg.ArtifactStorageType, "fs"))
	fmt.Fprintf(stdout, "  OCR provider:     %s\n", orDefault(svc.cfg.OCRProvider, "mock"))
	fmt.Fprintf(stdout, "  Interpreter:      %s\n", orDefault(svc.cfg.InterpreterProvider, "off"))
	fmt.Fprintf(stdout, "  Analyzer:         %s\n", orDefault(svc.cfg.AnalyzerProvider, "rule-based"))
	fmt.Fprintf(stdout, "  Calibration:      %s\n", orDefault(svc.cfg.CalibrationLevel, "standard"))
	fmt.Fprintln(stdout, "")

	failed := 0
	check := func(name string, err error) {
		if err != nil {
			failed++
			fmt.Fprintf(stdout, "  %s✗%s %-28s %v\n", ColorBold, ColorReset, name, err)
			return
		}
		fmt.Fprintf(stdout, "  %s✓%s %s\n", ColorGreen, ColorReset, name)
	}

	check("registry store reachable", func() error {
		_, err := svc.registry.ListTemplates(ctx)
		return err
	}())

	check("artifact store writable", func() error {
		key := fmt.Sprintf("artifacts/doctor/probe_%d.json", time.Now().UnixMilli())
		if err := svc.blobs.Put(ctx, key, []byte(`{"probe":true}`)); err != nil {
			return err
		}
		return svc.blobs.Delete(ctx, key)
	}())

	check("OCR credentials", func() error {
		if svc.cfg.OCRProvider == "mistral" && os.Getenv("MISTRAL_API_KEY") == "" {
			return fmt.Errorf("OCR_PROVIDER=mistral but MISTRAL_API_KEY is not set")
		}
		return nil
	}())

	check("interpreter credentials", func() error {
		if svc.cfg.InterpreterProvider == "gemini" && os.Getenv("GEMINI_API_KEY") == "" {
			return fmt.Errorf("INTERPRETER_PROVIDER=gemini but GEMINI_API_KEY is not set")
		}
		return nil
	}())

	check("analyzer credentials", func() error {
		if svc.cfg.AnalyzerProvider == "gemini" && os.Getenv("GEMINI_API_KEY") == "" {
			return fmt.Errorf("ANALYZER_PROVIDER=gemini but GEMINI_API_KEY is not set")
		}
		return nil
	}())

	stats := svc.queue.Stats()
	fmt.Fprintf(stdout, "\n  Dead letter queue: %d job(s), %d recoverable\n", stats.Total, stats.Recoverable)

	if failed > 0 {
		fmt.Fprintf(stdout, "\n%s%d check(s) failed%s\n\n", ColorBold, failed, ColorReset)
		return 1
	}
	fmt.Fprintf(stdout, "\n%sAll checks passed%s\n\n", ColorGreen, ColorReset)
	return 0
}

func orDefault(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
