package pipeline

import (
	"regexp"
	"strings"

	"github.com/Mindburn-Labs/jobproof/pkg/contracts"
)

// Extraction confidences. Label-anchored values outrank pattern-only hits;
// a value that contradicts its format rule keeps the evidence but loses
// trust, so calibration can route it to review instead of discarding it.
const (
	confLabelPattern    = 90.0
	confLabelOnly       = 85.0
	confPatternMismatch = 60.0
	confPatternSearch   = 65.0
)

// Extract pulls field values out of OCR text using the spec's labels,
// aliases, and extraction hints, falling back to a pattern search for
// fields with a format rule. Deterministic and offline. Every spec field
// appears exactly once in the output; fields not found carry
// Extracted=false so guardrails see the full picture.
func Extract(spec *contracts.TemplateSpec, text string) []contracts.ExtractedField {
	lines := cleanLines(text)
	patterns := fieldPatterns(spec)

	out := make([]contracts.ExtractedField, 0, len(spec.Fields))
	for _, f := range spec.Fields {
		out = append(out, extractField(f, patterns[f.ID], lines, text))
	}
	return out
}

func extractField(f contracts.FieldSpec, pattern string, lines []string, text string) contracts.ExtractedField {
	field := contracts.ExtractedField{FieldID: f.ID}

	labels := make([]string, 0, 1+len(f.Aliases)+len(f.ExtractionHints))
	labels = append(labels, f.Label)
	labels = append(labels, f.Aliases...)
	labels = append(labels, f.ExtractionHints...)

	for _, label := range labels {
		value, ok := valueAfterLabel(lines, label)
		if !ok {
			continue
		}
		field.Value = value
		field.Extracted = true
		field.Source = contracts.SourceOCR
		switch {
		case pattern == "":
			field.Confidence = confLabelOnly
		case matchValue(pattern, value):
			field.Confidence = confLabelPattern
		default:
			field.Confidence = confPatternMismatch
		}
		return field
	}

	if pattern != "" {
		if hit := findInText(pattern, text); hit != "" {
			field.Value = hit
			field.Extracted = true
			field.Source = contracts.SourceRegex
			field.Confidence = confPatternSearch
		}
	}
	return field
}

// valueAfterLabel finds the first line carrying the label and returns the
// rest of that line as the value. Case-insensitive; an empty remainder does
// not count as a hit.
func valueAfterLabel(lines []string, label string) (string, bool) {
	if label == "" {
		return "", false
	}
	lower := strings.ToLower(label)
	for _, line := range lines {
		idx := strings.Index(strings.ToLower(line), lower)
		if idx < 0 {
			continue
		}
		rest := line[idx+len(label):]
		rest = strings.TrimLeft(rest, " \t:-")
		rest = strings.TrimSpace(rest)
		if rest != "" {
			return rest, true
		}
	}
	return "", false
}

// cleanLines splits OCR markdown into lines stripped of markdown
// decoration, dropping blanks.
func cleanLines(text string) []string {
	raw := strings.Split(text, "\n")
	out := make([]string, 0, len(raw))
	for _, line := range raw {
		line = strings.ReplaceAll(line, "**", "")
		line = strings.Trim(line, "#*|> \t")
		line = strings.TrimSpace(line)
		if line != "" {
			out = append(out, line)
		}
	}
	return out
}

// fieldPatterns maps field ids onto their enabled format/pattern rule.
func fieldPatterns(spec *contracts.TemplateSpec) map[string]string {
	out := make(map[string]string)
	for _, r := range spec.Rules {
		if !r.Enabled || r.Pattern == "" {
			continue
		}
		if r.Type == contracts.RuleTypeFormat || r.Type == contracts.RuleTypePattern {
			out[r.Field] = r.Pattern
		}
	}
	return out
}

// matchValue checks a whole value against an (often anchored) pattern.
func matchValue(pattern, value string) bool {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return false
	}
	return re.MatchString(value)
}

// findInText searches running text with the pattern's anchors stripped,
// since anchored field patterns never match mid-document.
func findInText(pattern, text string) string {
	unanchored := strings.TrimSuffix(strings.TrimPrefix(pattern, "^"), "$")
	re, err := regexp.Compile(unanchored)
	if err != nil {
		return ""
	}
	return re.FindString(text)
}
