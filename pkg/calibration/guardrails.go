package calibration

import (
	"fmt"
	"sort"
	"strings"

	"github.com/Mindburn-Labs/jobproof/pkg/contracts"
)

// StopBehavior is what the pipeline does when a guardrail fails.
type StopBehavior string

const (
	StopImmediately StopBehavior = "STOP_IMMEDIATELY"
	ReviewQueue     StopBehavior = "REVIEW_QUEUE"
	ContinueFlagged StopBehavior = "CONTINUE_FLAGGED"
	Continue        StopBehavior = "CONTINUE"
)

// BehaviorForSeverity is the total, constant severity→stop mapping.
// Unknown severities degrade to Continue, keeping the function total.
func BehaviorForSeverity(s contracts.Severity) StopBehavior {
	switch s {
	case contracts.SeverityS0:
		return StopImmediately
	case contracts.SeverityS1:
		return ReviewQueue
	case contracts.SeverityS2:
		return ContinueFlagged
	default:
		return Continue
	}
}

// behaviorPrecedence orders stop behaviors from most to least severe for
// the evaluator's fold.
func behaviorPrecedence(b StopBehavior) int {
	switch b {
	case StopImmediately:
		return 0
	case ReviewQueue:
		return 1
	case ContinueFlagged:
		return 2
	default:
		return 3
	}
}

// Guardrail identifiers. Stable: they appear in stop reasons and findings.
const (
	GuardrailAnyField     = "G001"
	GuardrailCriticalConf = "G002"
	GuardrailNoDuplicates = "G003"
	GuardrailAnomalyScore = "G004"
)

// GuardrailResult is one guardrail's verdict.
type GuardrailResult struct {
	ID       string             `json:"id"`
	Severity contracts.Severity `json:"severity"`
	Behavior StopBehavior       `json:"behavior"`
	Passed   bool               `json:"passed"`
	Detail   string             `json:"detail,omitempty"`
}

// Evaluation folds all guardrail results into one pipeline decision.
type Evaluation struct {
	Results         []GuardrailResult `json:"results"`
	ShouldStop      bool              `json:"shouldStop"`
	OverallBehavior StopBehavior      `json:"overallBehavior"`
	// StopReason lists failed guardrail ids, sorted, joined by commas.
	StopReason string `json:"stopReason,omitempty"`
}

// EvaluateGuardrails runs G001–G004 over a calibrated document.
func (p *Profile) EvaluateGuardrails(res *Result) Evaluation {
	var results []GuardrailResult

	extractedAny := false
	for _, f := range res.Fields {
		if f.Field.Extracted {
			extractedAny = true
			break
		}
	}
	results = append(results, guardrail(GuardrailAnyField, contracts.SeverityS0, extractedAny,
		"no field was extracted from the document"))

	// Only extracted values are judged here: absent critical fields are
	// the required rules' and G001's concern, not a confidence problem.
	criticalOK := true
	var weakCritical []string
	for _, f := range res.Fields {
		if f.Field.Extracted && f.Calibration.IsCritical && f.AdjustedConfidence < p.Thresholds.CriticalFieldMinConfidence {
			criticalOK = false
			weakCritical = append(weakCritical, f.Field.FieldID)
		}
	}
	sort.Strings(weakCritical)
	results = append(results, guardrail(GuardrailCriticalConf, contracts.SeverityS1, criticalOK,
		fmt.Sprintf("critical fields below confidence floor: %s", strings.Join(weakCritical, ", "))))

	var raw []contracts.ExtractedField
	for _, f := range res.Fields {
		raw = append(raw, f.Field)
	}
	dups := DuplicateFieldIDs(raw)
	results = append(results, guardrail(GuardrailNoDuplicates, contracts.SeverityS2, len(dups) == 0,
		fmt.Sprintf("conflicting extractions for: %s", strings.Join(dups, ", "))))

	results = append(results, guardrail(GuardrailAnomalyScore, contracts.SeverityS2, !res.Quality.AnomalyDetected,
		"extraction anomaly score above threshold"))

	return Evaluate(results)
}

func guardrail(id string, sev contracts.Severity, passed bool, failDetail string) GuardrailResult {
	g := GuardrailResult{ID: id, Severity: sev, Behavior: BehaviorForSeverity(sev), Passed: passed}
	if !passed {
		g.Detail = failDetail
	}
	return g
}

// Evaluate folds guardrail results, taking the most severe stop behavior
// among failures. The stop reason is the sorted list of failed ids, so it
// is stable across evaluation orders.
func Evaluate(results []GuardrailResult) Evaluation {
	ev := Evaluation{Results: results, OverallBehavior: Continue}
	var failed []string
	for _, r := range results {
		if r.Passed {
			continue
		}
		failed = append(failed, r.ID)
		if behaviorPrecedence(r.Behavior) < behaviorPrecedence(ev.OverallBehavior) {
			ev.OverallBehavior = r.Behavior
		}
	}
	if len(failed) > 0 {
		sort.Strings(failed)
		ev.StopReason = strings.Join(failed, ",")
		ev.ShouldStop = ev.OverallBehavior == StopImmediately || ev.OverallBehavior == ReviewQueue
	}
	return ev
}
