package main

import (
	"fmt"
	"io"
	"os"
)

// Version of the jobproof CLI.
const Version = "1.0.0"

// Dispatcher
func main() {
	os.Exit(Run(os.Args, os.Stdout, os.Stderr))
}

// Run is the entrypoint, separated for testing.
func Run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 2 {
		printUsage(stdout)
		return 2
	}

	switch args[1] {
	case "process":
		return runProcessCmd(args[2:], stdout, stderr)
	case "registry":
		if len(args) < 3 {
			fmt.Fprintln(stderr, "Usage: jobproof registry <list|create|add-version|activate|fixtures|export>")
			return 2
		}
		return runRegistryCmd(args[2:], stdout, stderr)
	case "doctor":
		return runDoctorCmd(stdout, stderr)
	case "version", "--version":
		fmt.Fprintf(stdout, "jobproof %s\n", Version)
		return 0
	case "help", "--help", "-h":
		printUsage(stdout)
		return 0
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n", args[1])
		printUsage(stderr)
		return 2
	}
}

// ANSI Colors
const (
	ColorReset = "\033[0m"
	ColorBold  = "\033[1m"
	ColorGreen = "\033[32m"
	ColorBlue  = "\033[34m"
	ColorCyan  = "\033[36m"
	ColorGray  = "\033[37m"
)

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "")
	fmt.Fprintf(w, "%sjobproof %s%s\n", ColorBold+ColorBlue, "v"+Version, ColorReset)
	fmt.Fprintf(w, "%sJob sheets in. Audited evidence out.%s\n", ColorGray, ColorReset)
	fmt.Fprintln(w, "")
	fmt.Fprintf(w, "%sUSAGE:%s\n", ColorBold, ColorReset)
	fmt.Fprintln(w, "  jobproof <command> [flags]")
	fmt.Fprintln(w, "")

	printSection(w, "PIPELINE")
	printCommand(w, "process", "Audit one document (--file, --use-default, --json)")
	printCommand(w, "doctor", "Check configuration and provider readiness")

	printSection(w, "TEMPLATE REGISTRY")
	printCommand(w, "registry list", "List templates and versions")
	printCommand(w, "registry create", "Register a template (--slug, --name)")
	printCommand(w, "registry add-version", "Attach a draft version (--slug, --version, --spec)")
	printCommand(w, "registry activate", "Run activation gates (--slug, --version, --override)")
	printCommand(w, "registry deprecate", "Retire an active version without deleting it (--slug, --version)")
	printCommand(w, "registry fixtures", "Run a version's fixture pack (--slug, --version)")
	printCommand(w, "registry export", "Export registry state as JSON")

	printSection(w, "UTILITIES")
	printCommand(w, "version", "Show version information")
	printCommand(w, "help", "Show this help")
	fmt.Fprintln(w, "")
}

func printSection(w io.Writer, title string) {
	fmt.Fprintf(w, "%s%s:%s\n", ColorBold+ColorCyan, title, ColorReset)
}

func printCommand(w io.Writer, name, desc string) {
	fmt.Fprintf(w, "  %s%-22s%s %s\n", ColorGreen, name, ColorReset, desc)
}
