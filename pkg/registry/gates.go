package registry

import (
	"fmt"
	"strings"
)

// Gate is one activation check. Gates are enumerated and run in a fixed
// order; each failure carries a machine-readable fix path so tooling can
// point authors at the exact artifact to change.
type Gate interface {
	// ID returns the stable gate identifier (e.g. "A1").
	ID() string

	// Name returns a human-readable name.
	Name() string

	// Run evaluates the gate against a candidate version. It must not
	// panic; failures are expressed through the result.
	Run(v *TemplateVersion, policy ActivationPolicy) GateResult
}

// GateResult is one gate's verdict.
type GateResult struct {
	GateID  string   `json:"gateId"`
	Name    string   `json:"name"`
	Pass    bool     `json:"pass"`
	Reasons []string `json:"reasons,omitempty"`
	// FixPath names the artifact an author must change to clear the gate.
	FixPath string `json:"fixPath,omitempty"`
}

// ActivationReport is the artifact written for every activation attempt,
// pass or fail.
type ActivationReport struct {
	TemplateID string `json:"templateId"`
	Slug       string `json:"slug"`
	Version    string `json:"version"`

	Gates     []GateResult `json:"gates"`
	Passed    bool         `json:"passed"`
	Override  bool         `json:"override,omitempty"`
	Activated bool         `json:"activated"`

	Fixtures  *FixtureReport `json:"fixtures,omitempty"`
	Roi       RoiPresence    `json:"roi"`
	Selection struct {
		HasRequiredTokens bool `json:"hasRequiredTokens"`
		HasFormCodeRegex  bool `json:"hasFormCodeRegex"`
		TokenCount        int  `json:"tokenCount"`
	} `json:"selection"`
}

func (r *ActivationReport) failedGateIDs() string {
	var failed []string
	for _, g := range r.Gates {
		if !g.Pass {
			failed = append(failed, g.GateID)
		}
	}
	return strings.Join(failed, ",")
}

// activationGates enumerates the gates in evaluation order.
func activationGates() []Gate {
	return []Gate{
		selectionConfigGate{},
		criticalFieldsGate{},
		rulesPresentGate{},
		fixturePackGate{},
		fixturePassGate{},
		criticalRoisGate{},
		tokenFloorGate{},
	}
}

// runGates evaluates every activation gate and assembles the report.
func (r *Registry) runGates(v *TemplateVersion) *ActivationReport {
	report := &ActivationReport{Passed: true}
	for _, g := range activationGates() {
		res := g.Run(v, r.policy)
		res.GateID = g.ID()
		res.Name = g.Name()
		if !res.Pass {
			report.Passed = false
		}
		report.Gates = append(report.Gates, res)
	}

	if v.Fixtures != nil {
		fr := RunFixtures(v.Spec, v.Fixtures)
		report.Fixtures = &fr
	}
	report.Roi = CheckRoiPresence(v.Roi, r.policy)
	report.Selection.HasRequiredTokens = len(v.Selection.RequiredTokensAll) > 0 || len(v.Selection.RequiredTokensAny) > 0
	report.Selection.HasFormCodeRegex = v.Selection.FormCodeRegex != ""
	report.Selection.TokenCount = v.Selection.TokenCount()
	return report
}

// selectionConfigGate: the selection config must carry at least one
// matching signal, or the version could never be selected.
type selectionConfigGate struct{}

func (selectionConfigGate) ID() string   { return "A1" }
func (selectionConfigGate) Name() string { return "selection config non-empty" }
func (selectionConfigGate) Run(v *TemplateVersion, _ ActivationPolicy) GateResult {
	if v.Selection.IsEmpty() {
		return fail("selection config has no required tokens and no form code regex",
			"selection.requiredTokensAll | selection.requiredTokensAny | selection.formCodeRegex")
	}
	return pass()
}

// criticalFieldsGate: the audit cannot run without the fields every job
// sheet must carry.
type criticalFieldsGate struct{}

func (criticalFieldsGate) ID() string   { return "A2" }
func (criticalFieldsGate) Name() string { return "critical fields present" }
func (criticalFieldsGate) Run(v *TemplateVersion, _ ActivationPolicy) GateResult {
	var missing []string
	for _, id := range CriticalRoiFields() {
		if v.Spec.Field(id) == nil {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		return fail(fmt.Sprintf("spec is missing critical fields: %s", strings.Join(missing, ", ")),
			"spec.fields")
	}
	return pass()
}

type rulesPresentGate struct{}

func (rulesPresentGate) ID() string   { return "A3" }
func (rulesPresentGate) Name() string { return "at least one validation rule" }
func (rulesPresentGate) Run(v *TemplateVersion, _ ActivationPolicy) GateResult {
	if len(v.Spec.Rules) == 0 {
		return fail("spec declares no validation rules", "spec.rules")
	}
	return pass()
}

type fixturePackGate struct{}

func (fixturePackGate) ID() string   { return "A4" }
func (fixturePackGate) Name() string { return "fixture pack exists" }
func (fixturePackGate) Run(v *TemplateVersion, _ ActivationPolicy) GateResult {
	if v.Fixtures == nil || len(v.Fixtures.Cases) == 0 {
		return fail("no fixture pack attached to this version", "fixtures.cases")
	}
	return pass()
}

type fixturePassGate struct{}

func (fixturePassGate) ID() string   { return "A5" }
func (fixturePassGate) Name() string { return "fixture pack passes" }
func (fixturePassGate) Run(v *TemplateVersion, _ ActivationPolicy) GateResult {
	if v.Fixtures == nil || len(v.Fixtures.Cases) == 0 {
		// A4 already reports the missing pack; this gate has nothing to
		// run against.
		return fail("no fixture pack to run", "fixtures.cases")
	}
	report := RunFixtures(v.Spec, v.Fixtures)
	if !report.Pass() {
		var failedIDs []string
		for _, c := range report.Cases {
			if c.Required && !c.Passed {
				failedIDs = append(failedIDs, c.CaseID)
			}
		}
		return fail(fmt.Sprintf("%d required fixture case(s) failed: %s",
			report.RequiredFailed, strings.Join(failedIDs, ", ")), "fixtures.cases")
	}
	return pass()
}

type criticalRoisGate struct{}

func (criticalRoisGate) ID() string   { return "A6" }
func (criticalRoisGate) Name() string { return "critical regions present" }
func (criticalRoisGate) Run(v *TemplateVersion, policy ActivationPolicy) GateResult {
	if !policy.RequireCriticalRois {
		return pass()
	}
	presence := CheckRoiPresence(v.Roi, policy)
	if len(presence.Missing) > 0 {
		return fail(fmt.Sprintf("critical fields without regions: %s", strings.Join(presence.Missing, ", ")),
			"roi.regions")
	}
	if validation := ValidateRoi(v.Roi); !validation.Valid() {
		return fail(fmt.Sprintf("region layout invalid: %s", strings.Join(validation.Errors, "; ")),
			"roi.regions")
	}
	return pass()
}

type tokenFloorGate struct{}

func (tokenFloorGate) ID() string   { return "A7" }
func (tokenFloorGate) Name() string { return "selection token floor" }
func (tokenFloorGate) Run(v *TemplateVersion, policy ActivationPolicy) GateResult {
	min := policy.MinSelectionTokens
	if min < 1 {
		min = 1
	}
	if v.Selection.TokenCount() < min {
		return fail(fmt.Sprintf("selection config has %d token(s), floor is %d",
			v.Selection.TokenCount(), min), "selection")
	}
	return pass()
}

func pass() GateResult { return GateResult{Pass: true} }

func fail(reason, fixPath string) GateResult {
	return GateResult{Pass: false, Reasons: []string{reason}, FixPath: fixPath}
}
