package registry

import (
	"fmt"
	"sort"

	"github.com/Mindburn-Labs/jobproof/pkg/contracts"
)

// edgeTolerance absorbs float rounding when a region touches the page
// edge.
const edgeTolerance = 0.001

// CriticalRoiFields are the fields whose regions gate six checks when the
// policy requires critical regions.
func CriticalRoiFields() []string {
	return []string{"engineerSignOff", "date", "jobReference", "assetId"}
}

// standardRegionNames is the vocabulary of well-known region names.
// Anything else is legal but flagged so typos surface at activation.
var standardRegionNames = map[string]bool{
	"jobReference": true, "date": true, "assetId": true, "engineerSignOff": true,
	"serialNumber": true, "technician": true, "workDescription": true,
	"partsUsed": true, "timeIn": true, "timeOut": true, "customer": true,
	"header": true, "footer": true, "logo": true,
}

// RoiValidation is the outcome of validating one region layout. Errors
// make the layout unusable; warnings are surfaced but do not block.
type RoiValidation struct {
	Errors   []string `json:"errors,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

// Valid reports whether the layout carries no errors.
func (v RoiValidation) Valid() bool { return len(v.Errors) == 0 }

// ValidateRoi checks a region layout for geometric and naming problems.
// A nil config validates clean: regions are optional.
func ValidateRoi(cfg *contracts.RoiConfig) RoiValidation {
	var v RoiValidation
	if cfg == nil {
		return v
	}

	seen := make(map[string]bool)
	for _, r := range cfg.Regions {
		if r.Page < 1 {
			v.Errors = append(v.Errors, fmt.Sprintf("region %q: page %d is not 1-based", r.Name, r.Page))
		}
		if !inUnit(r.X) || !inUnit(r.Y) || !inUnit(r.W) || !inUnit(r.H) {
			v.Errors = append(v.Errors, fmt.Sprintf("region %q: coordinates must be normalized to [0,1]", r.Name))
		}
		if r.W == 0 || r.H == 0 {
			v.Errors = append(v.Errors, fmt.Sprintf("region %q: zero area", r.Name))
		}
		if r.X+r.W > 1+edgeTolerance {
			v.Warnings = append(v.Warnings, fmt.Sprintf("region %q: extends past the right page edge", r.Name))
		}
		if r.Y+r.H > 1+edgeTolerance {
			v.Warnings = append(v.Warnings, fmt.Sprintf("region %q: extends past the bottom page edge", r.Name))
		}
		if seen[r.Name] {
			v.Warnings = append(v.Warnings, fmt.Sprintf("region %q: duplicate name", r.Name))
		}
		seen[r.Name] = true
		if !standardRegionNames[r.Name] {
			v.Warnings = append(v.Warnings, fmt.Sprintf("region %q: non-standard name", r.Name))
		}
	}

	for i := 0; i < len(cfg.Regions); i++ {
		for j := i + 1; j < len(cfg.Regions); j++ {
			a, b := cfg.Regions[i], cfg.Regions[j]
			if a.Overlaps(b) {
				v.Warnings = append(v.Warnings,
					fmt.Sprintf("regions %q and %q overlap on page %d", a.Name, b.Name, a.Page))
			}
		}
	}
	return v
}

// RoiPresence reports which critical fields have regions, which are
// missing, and which missing ones the policy allows.
type RoiPresence struct {
	Present        []string `json:"present,omitempty"`
	Missing        []string `json:"missing,omitempty"`
	AllowedMissing []string `json:"allowedMissing,omitempty"`
}

// CheckRoiPresence splits the critical fields by region presence under the
// given policy. A nil config counts every critical field as absent.
func CheckRoiPresence(cfg *contracts.RoiConfig, policy ActivationPolicy) RoiPresence {
	var p RoiPresence
	for _, f := range CriticalRoiFields() {
		switch {
		case cfg != nil && cfg.Region(f) != nil:
			p.Present = append(p.Present, f)
		case policy.allowsMissingRoi(f):
			p.AllowedMissing = append(p.AllowedMissing, f)
		default:
			p.Missing = append(p.Missing, f)
		}
	}
	sort.Strings(p.Present)
	sort.Strings(p.Missing)
	sort.Strings(p.AllowedMissing)
	return p
}

func inUnit(f float64) bool { return f >= 0 && f <= 1 }
