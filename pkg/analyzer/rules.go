package analyzer

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/Mindburn-Labs/jobproof/pkg/contracts"
	"github.com/Mindburn-Labs/jobproof/pkg/selector"
)

// evaluateRules runs every enabled rule against the document. Fields whose
// values calibration accepted are matched by value; everything else falls
// back to label-containment over the normalized text.
func evaluateRules(spec *contracts.TemplateSpec, text string, fields map[string]string) []contracts.Finding {
	tokens := selector.TokenSet(selector.Tokenize(text))

	var findings []contracts.Finding
	for _, rule := range spec.Rules {
		if !rule.Enabled {
			continue
		}
		field := spec.Field(rule.Field)
		if field == nil {
			continue
		}
		if f := evaluateRule(rule, *field, tokens, text, fields); f != nil {
			findings = append(findings, *f)
		}
	}
	return findings
}

func evaluateRule(rule contracts.RuleSpec, field contracts.FieldSpec,
	tokens map[string]bool, text string, fields map[string]string) *contracts.Finding {

	value := fields[field.ID]
	detected := value != "" || labelDetected(tokens, field)

	switch rule.Type {
	case contracts.RuleTypeRequired:
		if !detected {
			return finding(rule, field, contracts.ReasonMissingField,
				fmt.Sprintf("the %s field was not found in the document", field.Label),
				"add or rescan the "+field.Label+" section")
		}

	case contracts.RuleTypeFormat, contracts.RuleTypePattern:
		if rule.Pattern == "" {
			return nil
		}
		re, err := regexp.Compile(rule.Pattern)
		if err != nil {
			return finding(rule, field, contracts.ReasonSpecGap,
				"the rule's pattern does not compile", "fix the rule pattern in the template spec")
		}
		switch {
		case value != "" && !re.MatchString(value):
			f := finding(rule, field, contracts.ReasonInvalidFormat,
				fmt.Sprintf("the %s value does not match its required format", field.Label),
				"correct the "+field.Label+" value")
			f.RawSnippet = value
			return f
		case value == "" && detected && !searchText(rule.Pattern, text):
			f := finding(rule, field, contracts.ReasonInvalidFormat,
				fmt.Sprintf("no correctly formatted %s appears anywhere in the document", field.Label),
				"verify the "+field.Label+" value")
			f.Confidence = 60
			return f
		}

	case contracts.RuleTypeRange:
		if value == "" || rule.Range == nil {
			return nil
		}
		n, err := strconv.ParseFloat(value, 64)
		if err != nil {
			f := finding(rule, field, contracts.ReasonInvalidFormat,
				fmt.Sprintf("the %s value is not numeric", field.Label),
				"correct the "+field.Label+" value")
			f.RawSnippet = value
			return f
		}
		if (rule.Range.Min != nil && n < *rule.Range.Min) || (rule.Range.Max != nil && n > *rule.Range.Max) {
			f := finding(rule, field, contracts.ReasonOutOfPolicy,
				fmt.Sprintf("the %s value is outside its allowed range", field.Label),
				"verify the "+field.Label+" reading")
			f.RawSnippet = value
			return f
		}

	case contracts.RuleTypeCustom:
		ok, err := evalExpression(rule.Expression, value, fields)
		if err != nil {
			return finding(rule, field, contracts.ReasonSpecGap,
				"the rule's expression failed to evaluate: "+err.Error(),
				"fix the rule expression in the template spec")
		}
		if !ok {
			f := finding(rule, field, contracts.ReasonOutOfPolicy,
				fmt.Sprintf("the %s value violates rule %s", field.Label, rule.RuleID),
				"review the "+field.Label+" value against site policy")
			f.RawSnippet = value
			return f
		}
	}
	return nil
}

// searchText looks for a pattern match anywhere in the document. Authored
// patterns anchor the whole field value; the anchors are stripped so they
// can still hit inside running text.
func searchText(pattern, text string) bool {
	unanchored := strings.TrimSuffix(strings.TrimPrefix(pattern, "^"), "$")
	re, err := regexp.Compile(unanchored)
	if err != nil {
		return false
	}
	return re.FindString(text) != ""
}

func labelDetected(tokens map[string]bool, field contracts.FieldSpec) bool {
	names := append([]string{field.ID, field.Label}, field.Aliases...)
	for _, name := range names {
		parts := selector.Tokenize(name)
		if len(parts) == 0 {
			continue
		}
		all := true
		for _, p := range parts {
			if !tokens[p] {
				all = false
				break
			}
		}
		if all {
			return true
		}
	}
	return false
}

func finding(rule contracts.RuleSpec, field contracts.FieldSpec, reason, why, fix string) *contracts.Finding {
	return &contracts.Finding{
		RuleID:       rule.RuleID,
		FieldName:    field.ID,
		Severity:     contracts.SeverityFromRule(rule.Severity),
		ReasonCode:   reason,
		Confidence:   90,
		WhyItMatters: why,
		SuggestedFix: fix,
	}
}
