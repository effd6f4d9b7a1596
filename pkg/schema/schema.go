// Package schema validates template specs and fixture packs against their
// embedded JSON Schemas before anything is decoded into typed structs.
// Ill-formed input is rejected at load time with precise error paths; code
// further down the pipeline never sees a spec that failed validation.
package schema

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/Mindburn-Labs/jobproof/pkg/contracts"
)

//go:embed template_spec.schema.json fixture_pack.schema.json
var schemaFS embed.FS

var (
	templateSpecSchema = mustCompile("template_spec.schema.json")
	fixturePackSchema  = mustCompile("fixture_pack.schema.json")
)

func mustCompile(name string) *jsonschema.Schema {
	raw, err := schemaFS.ReadFile(name)
	if err != nil {
		panic(fmt.Sprintf("schema: embedded %s missing: %v", name, err))
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource(name, bytes.NewReader(raw)); err != nil {
		panic(fmt.Sprintf("schema: add %s: %v", name, err))
	}
	return c.MustCompile(name)
}

// ValidationError reports one schema violation with its instance path.
type ValidationError struct {
	Path    string
	Message string
}

func (e ValidationError) String() string {
	if e.Path == "" {
		return e.Message
	}
	return e.Path + ": " + e.Message
}

// Error aggregates every violation found in one document.
type Error struct {
	Subject    string
	Violations []ValidationError
}

func (e *Error) Error() string {
	parts := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		parts[i] = v.String()
	}
	return fmt.Sprintf("%s failed schema validation: %s", e.Subject, strings.Join(parts, "; "))
}

// validate runs raw JSON through a compiled schema and flattens the
// violation tree into leaf paths.
func validate(subject string, s *jsonschema.Schema, raw []byte) error {
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return &Error{Subject: subject, Violations: []ValidationError{{Message: "invalid JSON: " + err.Error()}}}
	}
	if err := s.Validate(doc); err != nil {
		ve, ok := err.(*jsonschema.ValidationError)
		if !ok {
			return fmt.Errorf("%s schema validation: %w", subject, err)
		}
		return &Error{Subject: subject, Violations: flatten(ve)}
	}
	return nil
}

// flatten walks to the leaves of the validation tree; inner nodes repeat
// what their children say with less precision.
func flatten(ve *jsonschema.ValidationError) []ValidationError {
	if len(ve.Causes) == 0 {
		return []ValidationError{{Path: ve.InstanceLocation, Message: ve.Message}}
	}
	var out []ValidationError
	for _, c := range ve.Causes {
		out = append(out, flatten(c)...)
	}
	return out
}

// ParseTemplateSpec validates raw JSON against the template-spec schema and
// the spec's own referential-integrity rules, then returns the typed spec.
func ParseTemplateSpec(raw []byte) (*contracts.TemplateSpec, error) {
	if err := validate("template spec", templateSpecSchema, raw); err != nil {
		return nil, err
	}
	var spec contracts.TemplateSpec
	if err := json.Unmarshal(raw, &spec); err != nil {
		return nil, fmt.Errorf("template spec decode: %w", err)
	}
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	return &spec, nil
}

// ParseFixturePack validates raw JSON against the fixture-pack schema and
// returns the typed pack. The pack hash is not verified here; the registry
// recomputes it on storage.
func ParseFixturePack(raw []byte) (*contracts.FixturePack, error) {
	if err := validate("fixture pack", fixturePackSchema, raw); err != nil {
		return nil, err
	}
	var pack contracts.FixturePack
	if err := json.Unmarshal(raw, &pack); err != nil {
		return nil, fmt.Errorf("fixture pack decode: %w", err)
	}
	return &pack, nil
}
