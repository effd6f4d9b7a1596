package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/Mindburn-Labs/jobproof/pkg/contracts"
	"github.com/Mindburn-Labs/jobproof/pkg/registry"
	"github.com/Mindburn-Labs/jobproof/pkg/schema"
)

func runRegistryCmd(args []string, stdout, stderr io.Writer) int {
	switch args[0] {
	case "list":
		return runRegistryList(args[1:], stdout, stderr)
	case "create":
		return runRegistryCreate(args[1:], stdout, stderr)
	case "add-version":
		return runRegistryAddVersion(args[1:], stdout, stderr)
	case "activate":
		return runRegistryActivate(args[1:], stdout, stderr)
	case "deprecate":
		return runRegistryDeprecate(args[1:], stdout, stderr)
	case "fixtures":
		return runRegistryFixtures(args[1:], stdout, stderr)
	case "export":
		return runRegistryExport(args[1:], stdout, stderr)
	default:
		fmt.Fprintf(stderr, "Unknown registry command: %s\n", args[0])
		fmt.Fprintln(stderr, "Usage: jobproof registry <list|create|add-version|activate|deprecate|fixtures|export>")
		return 2
	}
}

func registryContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 30*time.Second)
}

func runRegistryList(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("registry list", flag.ContinueOnError)
	cmd.SetOutput(stderr)
	jsonOutput := cmd.Bool("json", false, "Output as JSON")
	if err := cmd.Parse(args); err != nil {
		return 2
	}

	ctx, cancel := registryContext()
	defer cancel()

	svc, err := buildServices(ctx)
	if err != nil {
		fmt.Fprintf(stderr, "Error wiring services: %v\n", err)
		return 2
	}
	defer svc.Close()

	templates, err := svc.registry.ListTemplates(ctx)
	if err != nil {
		fmt.Fprintf(stderr, "Error listing templates: %v\n", err)
		return 1
	}

	type listing struct {
		Template *registry.Template          `json:"template"`
		Versions []*registry.TemplateVersion `json:"versions"`
	}
	var listings []listing
	for _, t := range templates {
		versions, err := svc.registry.ListVersions(ctx, t.TemplateID)
		if err != nil {
			fmt.Fprintf(stderr, "Error listing versions of %s: %v\n", t.Slug, err)
			return 1
		}
		listings = append(listings, listing{Template: t, Versions: versions})
	}

	if *jsonOutput {
		data, _ := json.MarshalIndent(listings, "", "  ")
		fmt.Fprintln(stdout, string(data))
		return 0
	}

	if len(listings) == 0 {
		fmt.Fprintln(stdout, "No templates registered.")
		return 0
	}
	for _, l := range listings {
		marker := ""
		if l.Template.IsDefault {
			marker = ColorGray + " (default)" + ColorReset
		}
		fmt.Fprintf(stdout, "\n%s%s%s%s  %s\n", ColorBold, l.Template.Slug, ColorReset, marker, l.Template.Name)
		for _, v := range l.Versions {
			badge := string(v.Status)
			if v.Status == registry.StatusActive {
				badge = ColorGreen + badge + ColorReset
			}
			fmt.Fprintf(stdout, "  %-12s %s  fields=%d rules=%d\n", v.Version, badge,
				len(v.Spec.Fields), len(v.Spec.Rules))
		}
	}
	fmt.Fprintln(stdout, "")
	return 0
}

func runRegistryCreate(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("registry create", flag.ContinueOnError)
	cmd.SetOutput(stderr)
	slug := cmd.String("slug", "", "Template slug (REQUIRED)")
	name := cmd.String("name", "", "Human-readable template name (REQUIRED)")
	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if *slug == "" || *name == "" {
		fmt.Fprintln(stderr, "Error: --slug and --name are required")
		cmd.Usage()
		return 2
	}

	ctx, cancel := registryContext()
	defer cancel()

	svc, err := buildServices(ctx)
	if err != nil {
		fmt.Fprintf(stderr, "Error wiring services: %v\n", err)
		return 2
	}
	defer svc.Close()

	t, err := svc.registry.CreateTemplate(ctx, *slug, *name)
	if err != nil {
		fmt.Fprintf(stderr, "Error creating template: %v\n", err)
		return 1
	}
	fmt.Fprintf(stdout, "Created template %s%s%s (%s)\n", ColorBold, t.Slug, ColorReset, t.TemplateID)
	return 0
}

func runRegistryAddVersion(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("registry add-version", flag.ContinueOnError)
	cmd.SetOutput(stderr)
	slug := cmd.String("slug", "", "Template slug (REQUIRED)")
	version := cmd.String("version", "", "Semver version string (REQUIRED)")
	specPath := cmd.String("spec", "", "Path to the template spec JSON (REQUIRED)")
	selPath := cmd.String("selection", "", "Path to the selection config JSON")
	roiPath := cmd.String("roi", "", "Path to the region layout JSON")
	fixturesPath := cmd.String("fixtures", "", "Path to the fixture pack JSON")
	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if *slug == "" || *version == "" || *specPath == "" {
		fmt.Fprintln(stderr, "Error: --slug, --version, and --spec are required")
		cmd.Usage()
		return 2
	}

	raw, err := os.ReadFile(*specPath)
	if err != nil {
		fmt.Fprintf(stderr, "Error reading spec: %v\n", err)
		return 2
	}
	spec, err := schema.ParseTemplateSpec(raw)
	if err != nil {
		fmt.Fprintf(stderr, "Spec rejected: %v\n", err)
		return 1
	}

	var sel contracts.SelectionConfig
	if *selPath != "" {
		raw, err := os.ReadFile(*selPath)
		if err != nil {
			fmt.Fprintf(stderr, "Error reading selection config: %v\n", err)
			return 2
		}
		if err := json.Unmarshal(raw, &sel); err != nil {
			fmt.Fprintf(stderr, "Selection config rejected: %v\n", err)
			return 1
		}
	}

	var roi *contracts.RoiConfig
	if *roiPath != "" {
		raw, err := os.ReadFile(*roiPath)
		if err != nil {
			fmt.Fprintf(stderr, "Error reading region layout: %v\n", err)
			return 2
		}
		roi = &contracts.RoiConfig{}
		if err := json.Unmarshal(raw, roi); err != nil {
			fmt.Fprintf(stderr, "Region layout rejected: %v\n", err)
			return 1
		}
	}

	var pack *contracts.FixturePack
	if *fixturesPath != "" {
		raw, err := os.ReadFile(*fixturesPath)
		if err != nil {
			fmt.Fprintf(stderr, "Error reading fixture pack: %v\n", err)
			return 2
		}
		pack, err = schema.ParseFixturePack(raw)
		if err != nil {
			fmt.Fprintf(stderr, "Fixture pack rejected: %v\n", err)
			return 1
		}
	}

	ctx, cancel := registryContext()
	defer cancel()

	svc, err := buildServices(ctx)
	if err != nil {
		fmt.Fprintf(stderr, "Error wiring services: %v\n", err)
		return 2
	}
	defer svc.Close()

	t, err := svc.registry.GetTemplateBySlug(ctx, *slug)
	if err != nil {
		fmt.Fprintf(stderr, "Error resolving template: %v\n", err)
		return 1
	}
	tv, err := svc.registry.AddVersion(ctx, t.TemplateID, *version, spec, sel, roi, pack)
	if err != nil {
		fmt.Fprintf(stderr, "Error adding version: %v\n", err)
		return 1
	}
	fmt.Fprintf(stdout, "Added %s%s@%s%s as draft (%s)\n", ColorBold, *slug, tv.Version, ColorReset, tv.VersionID)
	return 0
}

func runRegistryActivate(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("registry activate", flag.ContinueOnError)
	cmd.SetOutput(stderr)
	slug := cmd.String("slug", "", "Template slug (REQUIRED)")
	version := cmd.String("version", "", "Version to activate (REQUIRED)")
	override := cmd.Bool("override", false, "Activate even when gates fail")
	jsonOutput := cmd.Bool("json", false, "Output the activation report as JSON")
	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if *slug == "" || *version == "" {
		fmt.Fprintln(stderr, "Error: --slug and --version are required")
		cmd.Usage()
		return 2
	}

	ctx, cancel := registryContext()
	defer cancel()

	svc, err := buildServices(ctx)
	if err != nil {
		fmt.Fprintf(stderr, "Error wiring services: %v\n", err)
		return 2
	}
	defer svc.Close()

	report, actErr := svc.registry.Activate(ctx, *slug, *version, *override)
	if report != nil {
		// Every activation attempt leaves an artifact, blocked ones included.
		if t, err := svc.registry.GetTemplateBySlug(ctx, *slug); err == nil {
			if tv, err := svc.registry.GetVersion(ctx, t.TemplateID, *version); err == nil {
				if key, werr := svc.writer.WriteActivationReport(ctx, tv.VersionID, report); werr == nil {
					fmt.Fprintf(stdout, "Activation report: %s\n", key)
				}
			}
		}
	}

	if *jsonOutput && report != nil {
		data, _ := json.MarshalIndent(report, "", "  ")
		fmt.Fprintln(stdout, string(data))
	} else if report != nil {
		printActivationReport(stdout, report)
	}

	if actErr != nil {
		fmt.Fprintf(stderr, "Activation failed: %v\n", actErr)
		return 1
	}
	return 0
}

func runRegistryDeprecate(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("registry deprecate", flag.ContinueOnError)
	cmd.SetOutput(stderr)
	slug := cmd.String("slug", "", "Template slug (REQUIRED)")
	version := cmd.String("version", "", "Version to deprecate (REQUIRED)")
	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if *slug == "" || *version == "" {
		fmt.Fprintln(stderr, "Error: --slug and --version are required")
		cmd.Usage()
		return 2
	}

	ctx, cancel := registryContext()
	defer cancel()

	svc, err := buildServices(ctx)
	if err != nil {
		fmt.Fprintf(stderr, "Error wiring services: %v\n", err)
		return 2
	}
	defer svc.Close()

	tv, err := svc.registry.Deprecate(ctx, *slug, *version)
	if err != nil {
		fmt.Fprintf(stderr, "Error deprecating version: %v\n", err)
		return 1
	}
	fmt.Fprintf(stdout, "Deprecated %s%s@%s%s; the version stays listed but is no longer matched\n",
		ColorBold, *slug, tv.Version, ColorReset)
	return 0
}

func printActivationReport(w io.Writer, report *registry.ActivationReport) {
	verdict := ColorBold + "BLOCKED" + ColorReset
	if report.Activated {
		verdict = ColorGreen + "ACTIVATED" + ColorReset
	}
	fmt.Fprintf(w, "\n%s@%s %s", report.Slug, report.Version, verdict)
	if report.Override {
		fmt.Fprintf(w, " %s(override)%s", ColorGray, ColorReset)
	}
	fmt.Fprintln(w, "")

	for _, g := range report.Gates {
		mark := ColorGreen + "✓" + ColorReset
		if !g.Pass {
			mark = ColorBold + "✗" + ColorReset
		}
		fmt.Fprintf(w, "  %s %s %s\n", mark, g.GateID, g.Name)
		for _, reason := range g.Reasons {
			fmt.Fprintf(w, "      %s\n", reason)
		}
		if !g.Pass && g.FixPath != "" {
			fmt.Fprintf(w, "      fix: %s\n", g.FixPath)
		}
	}
	if report.Fixtures != nil {
		fmt.Fprintf(w, "  Fixtures: %d/%d passed (%d required failed)\n",
			report.Fixtures.Passed, report.Fixtures.Total, report.Fixtures.RequiredFailed)
	}
	fmt.Fprintln(w, "")
}

func runRegistryFixtures(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("registry fixtures", flag.ContinueOnError)
	cmd.SetOutput(stderr)
	slug := cmd.String("slug", "", "Template slug (REQUIRED)")
	version := cmd.String("version", "", "Version whose fixture pack to run (REQUIRED)")
	jsonOutput := cmd.Bool("json", false, "Output the fixture report as JSON")
	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if *slug == "" || *version == "" {
		fmt.Fprintln(stderr, "Error: --slug and --version are required")
		cmd.Usage()
		return 2
	}

	ctx, cancel := registryContext()
	defer cancel()

	svc, err := buildServices(ctx)
	if err != nil {
		fmt.Fprintf(stderr, "Error wiring services: %v\n", err)
		return 2
	}
	defer svc.Close()

	t, err := svc.registry.GetTemplateBySlug(ctx, *slug)
	if err != nil {
		fmt.Fprintf(stderr, "Error resolving template: %v\n", err)
		return 1
	}
	tv, err := svc.registry.GetVersion(ctx, t.TemplateID, *version)
	if err != nil {
		fmt.Fprintf(stderr, "Error resolving version: %v\n", err)
		return 1
	}
	if tv.Fixtures == nil || len(tv.Fixtures.Cases) == 0 {
		fmt.Fprintf(stderr, "No fixture pack attached to %s@%s\n", *slug, *version)
		return 1
	}

	report := registry.RunFixtures(tv.Spec, tv.Fixtures)

	if *jsonOutput {
		data, _ := json.MarshalIndent(report, "", "  ")
		fmt.Fprintln(stdout, string(data))
	} else {
		fmt.Fprintf(stdout, "\nFixture pack for %s@%s: %d/%d passed\n", *slug, *version, report.Passed, report.Total)
		for _, c := range report.Cases {
			mark := ColorGreen + "✓" + ColorReset
			if !c.Passed {
				mark = ColorBold + "✗" + ColorReset
			}
			req := ""
			if c.Required {
				req = " (required)"
			}
			fmt.Fprintf(stdout, "  %s %-24s %s%s\n", mark, c.CaseID, c.PredictedOutcome, req)
		}
		fmt.Fprintln(stdout, "")
	}

	if !report.Pass() {
		return 1
	}
	return 0
}

func runRegistryExport(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("registry export", flag.ContinueOnError)
	cmd.SetOutput(stderr)
	outPath := cmd.String("out", "", "Write the export to a file instead of stdout")
	if err := cmd.Parse(args); err != nil {
		return 2
	}

	ctx, cancel := registryContext()
	defer cancel()

	svc, err := buildServices(ctx)
	if err != nil {
		fmt.Fprintf(stderr, "Error wiring services: %v\n", err)
		return 2
	}
	defer svc.Close()

	export, err := svc.registry.ExportState(ctx)
	if err != nil {
		fmt.Fprintf(stderr, "Error exporting state: %v\n", err)
		return 1
	}
	data, err := json.MarshalIndent(export, "", "  ")
	if err != nil {
		fmt.Fprintf(stderr, "Error encoding export: %v\n", err)
		return 1
	}

	if *outPath != "" {
		if err := os.WriteFile(*outPath, append(data, '\n'), 0o644); err != nil {
			fmt.Fprintf(stderr, "Error writing export: %v\n", err)
			return 1
		}
		fmt.Fprintf(stdout, "Exported %d template(s), %d version(s) to %s (hash %s)\n",
			len(export.Templates), len(export.Versions), *outPath, export.Hash[:12])
		return 0
	}
	fmt.Fprintln(stdout, string(data))
	return 0
}
