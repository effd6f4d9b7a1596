//go:build property
// +build property

package privacy

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// TestRedactionIdempotence verifies redact(redact(s)) == redact(s) for
// arbitrary strings, the core safety property of the redactor.
func TestRedactionIdempotence(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	r := New()

	properties.Property("redaction is idempotent", prop.ForAll(
		func(s string) bool {
			once := r.RedactText(s)
			return r.RedactText(once) == once
		},
		gen.AnyString(),
	))

	properties.Property("redaction with pseudonyms is idempotent", prop.ForAll(
		func(s string) bool {
			rp := New(WithPseudonyms([]byte("property-secret")))
			once := rp.RedactText(s)
			return rp.RedactText(once) == once
		},
		gen.AnyString(),
	))

	properties.TestingRun(t)
}

// TestRedactionDeterminism verifies equal inputs always redact equally.
func TestRedactionDeterminism(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	r := New()

	properties.Property("redaction is deterministic", prop.ForAll(
		func(s string) bool {
			return r.RedactText(s) == r.RedactText(s)
		},
		gen.AnyString(),
	))

	properties.TestingRun(t)
}
