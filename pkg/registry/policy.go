package registry

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ActivationPolicy tunes the activation gates per deployment. It is loaded
// from YAML alongside the calibration profile so operations can relax
// individual gates without a code change.
type ActivationPolicy struct {
	// RequireCriticalRois turns gate seven's region presence check on.
	RequireCriticalRois bool `yaml:"requireCriticalRois"`
	// AllowedMissingRois exempts individual critical fields from the
	// region presence check. Exemptions are logged, never silent.
	AllowedMissingRois []string `yaml:"allowedMissingRois"`
	// MinSelectionTokens is the floor on the selection config token count.
	MinSelectionTokens int `yaml:"minSelectionTokens"`
}

// DefaultActivationPolicy matches the documented gate defaults.
func DefaultActivationPolicy() ActivationPolicy {
	return ActivationPolicy{
		RequireCriticalRois: false,
		MinSelectionTokens:  1,
	}
}

// LoadActivationPolicy reads a policy from a YAML file, filling unset
// fields from the defaults.
func LoadActivationPolicy(path string) (ActivationPolicy, error) {
	p := DefaultActivationPolicy()
	raw, err := os.ReadFile(path)
	if err != nil {
		return p, fmt.Errorf("registry: read activation policy: %w", err)
	}
	if err := yaml.Unmarshal(raw, &p); err != nil {
		return p, fmt.Errorf("registry: parse activation policy: %w", err)
	}
	if p.MinSelectionTokens < 1 {
		p.MinSelectionTokens = 1
	}
	return p, nil
}

// allowsMissingRoi reports whether the policy exempts a field from the
// region presence gate.
func (p ActivationPolicy) allowsMissingRoi(fieldID string) bool {
	for _, f := range p.AllowedMissingRois {
		if f == fieldID {
			return true
		}
	}
	return false
}
