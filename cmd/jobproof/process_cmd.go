package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/Mindburn-Labs/jobproof/pkg/contracts"
)

func runProcessCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("process", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		filePath   string
		useDefault bool
		pageLimit  int
		timeout    time.Duration
		jsonOutput bool
	)
	cmd.StringVar(&filePath, "file", "", "Path to the job sheet document (REQUIRED)")
	cmd.BoolVar(&useDefault, "use-default", false, "Audit against the default template when selection is weak")
	cmd.IntVar(&pageLimit, "page-limit", 0, "Maximum pages to OCR (0 = provider default)")
	cmd.DurationVar(&timeout, "timeout", 5*time.Minute, "Total processing deadline")
	cmd.BoolVar(&jsonOutput, "json", false, "Output the full outcome as JSON")

	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if filePath == "" {
		fmt.Fprintln(stderr, "Error: --file is required")
		cmd.Usage()
		return 2
	}

	content, err := os.ReadFile(filePath)
	if err != nil {
		fmt.Fprintf(stderr, "Error reading document: %v\n", err)
		return 2
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	svc, err := buildServices(ctx)
	if err != nil {
		fmt.Fprintf(stderr, "Error wiring services: %v\n", err)
		return 2
	}
	defer svc.Close()

	pipe, err := buildPipeline(svc, useDefault, pageLimit)
	if err != nil {
		fmt.Fprintf(stderr, "Error wiring pipeline: %v\n", err)
		return 2
	}

	doc := contracts.NewDocument(filepath.Base(filePath), contentTypeFor(filePath), content, time.Now())

	out, err := pipe.Process(ctx, doc)
	if err != nil {
		fmt.Fprintf(stderr, "Processing refused: %v\n", err)
		return 1
	}

	if jsonOutput {
		data, _ := json.MarshalIndent(map[string]any{
			"report":       out.Report,
			"insights":     out.Insights,
			"trace":        out.Trace,
			"artifactKeys": out.ArtifactKeys,
		}, "", "  ")
		fmt.Fprintln(stdout, string(data))
	} else {
		printReport(stdout, doc, out.Report, out.ArtifactKeys)
	}

	if out.Report.OverallResult == contracts.ResultFail {
		return 1
	}
	return 0
}

func printReport(w io.Writer, doc contracts.Document, report *contracts.AuditReport, keys []string) {
	badge := map[contracts.OverallResult]string{
		contracts.ResultPass:        ColorGreen + "PASS" + ColorReset,
		contracts.ResultFail:        ColorBold + "FAIL" + ColorReset,
		contracts.ResultReviewQueue: ColorCyan + "REVIEW_QUEUE" + ColorReset,
	}[report.OverallResult]

	fmt.Fprintf(w, "\n%sAudit%s %s  score %.1f  (%s)\n", ColorBold, ColorReset, badge, report.Score, report.Model)
	fmt.Fprintf(w, "  Document:    %s (%s)\n", doc.Filename, doc.ID[:12])
	fmt.Fprintf(w, "  Correlation: %s\n", report.CorrelationID)
	if report.ErrorCode != "" {
		fmt.Fprintf(w, "  Error code:  %s\n", report.ErrorCode)
	}
	fmt.Fprintf(w, "  Summary:     %s\n", report.Summary)

	if len(report.Findings) > 0 {
		fmt.Fprintf(w, "\n%sFindings (%d):%s\n", ColorBold, len(report.Findings), ColorReset)
		for _, f := range report.Findings {
			field := f.FieldName
			if field == "" {
				field = f.RuleID
			}
			fmt.Fprintf(w, "  [%s] %-18s %s\n", f.Severity, field, f.ReasonCode)
		}
	}
	if len(keys) > 0 {
		fmt.Fprintf(w, "\n%sArtifacts:%s\n", ColorBold, ColorReset)
		for _, key := range keys {
			fmt.Fprintf(w, "  %s\n", key)
		}
	}
	fmt.Fprintln(w, "")
}

func contentTypeFor(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		return "application/pdf"
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".tif", ".tiff":
		return "image/tiff"
	default:
		return "application/octet-stream"
	}
}
