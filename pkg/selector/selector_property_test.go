//go:build property
// +build property

package selector

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/Mindburn-Labs/jobproof/pkg/contracts"
)

// TestScoreBounds verifies selector.score(D, T) stays in [0,100] for
// arbitrary documents and token configurations.
func TestScoreBounds(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 300
	properties := gopter.NewProperties(parameters)

	properties.Property("score in [0,100]", prop.ForAll(
		func(text string, required []string, optional []string, weight float64) bool {
			var opts []contracts.WeightedToken
			for _, o := range optional {
				opts = append(opts, contracts.WeightedToken{Token: o, Weight: weight})
			}
			c := Candidate{
				TemplateID: "t",
				VersionID:  "t-v1",
				Config: contracts.SelectionConfig{
					RequiredTokensAll: required,
					OptionalTokens:    opts,
					FormCodeRegex:     `JOB-\d{6}`,
				},
			}
			s := ScoreCandidate(TokenSet(Tokenize(text)), text, c)
			return s.Score >= 0 && s.Score <= 100
		},
		gen.AnyString(),
		gen.SliceOf(gen.AlphaString()),
		gen.SliceOf(gen.AlphaString()),
		gen.Float64Range(-5, 5),
	))

	properties.TestingRun(t)
}

// TestSelectDeterminism verifies the full selection result, candidate order
// included, is a pure function of its inputs.
func TestSelectDeterminism(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	s := New()

	properties.Property("selection is deterministic", prop.ForAll(
		func(text string, ids []string) bool {
			var cands []Candidate
			for _, id := range ids {
				cands = append(cands, Candidate{
					TemplateID: id,
					VersionID:  id + "-v1",
					Config: contracts.SelectionConfig{
						RequiredTokensAny: []string{"job", id},
					},
				})
			}
			a := s.Select(text, cands)
			b := s.Select(text, cands)
			if len(a.Candidates) != len(b.Candidates) {
				return false
			}
			for i := range a.Candidates {
				if a.Candidates[i].TemplateID != b.Candidates[i].TemplateID ||
					a.Candidates[i].Score != b.Candidates[i].Score {
					return false
				}
			}
			return a.SelectedVersionID == b.SelectedVersionID && a.Band == b.Band
		},
		gen.AnyString(),
		gen.SliceOf(gen.Identifier()),
	))

	properties.TestingRun(t)
}
