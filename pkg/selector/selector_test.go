package selector

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mindburn-Labs/jobproof/pkg/contracts"
)

const happyText = "Job No: JOB-123456\nSerial: SN-12345-AB\nDate: 01/01/2026\n" +
	"Time In: 08:00\nTime Out: 09:00\nTechnician: J. Doe\nCustomer: ACME\nSignature: J.Doe"

func jobSheetCandidate(id string) Candidate {
	return Candidate{
		TemplateID: id,
		VersionID:  id + "-v1",
		Config: contracts.SelectionConfig{
			RequiredTokensAll: []string{"job"},
			OptionalTokens: []contracts.WeightedToken{
				{Token: "serial", Weight: 2},
				{Token: "technician", Weight: 1},
				{Token: "customer", Weight: 1},
				{Token: "signature", Weight: 2},
			},
			FormCodeRegex: `JOB-\d{6}`,
		},
	}
}

func TestTokenize(t *testing.T) {
	tokens := Tokenize("Job No: JOB-123456, job sheet! Réf—Nº 42abc")
	// Lowercased, deduplicated, short tokens dropped, insertion order kept.
	assert.Equal(t, []string{"job", "123456", "sheet", "réf", "42abc"}, tokens)
}

func TestTokenizeNFKCFold(t *testing.T) {
	// Fullwidth and composed forms normalize to plain tokens.
	tokens := Tokenize("ＪＯＢ ﬁeld")
	assert.Contains(t, tokens, "job")
	assert.Contains(t, tokens, "field")
}

func TestHappyPathScoresHigh(t *testing.T) {
	s := New()
	res := s.Select(happyText, []Candidate{jobSheetCandidate("job-sheet")})

	assert.True(t, res.Selected())
	assert.Equal(t, contracts.BandHigh, res.Band)
	assert.GreaterOrEqual(t, res.TopScore, 80.0)
	assert.True(t, res.AutoProcessingAllowed)
	assert.False(t, res.Ambiguous)
}

func TestMissingRequiredFailsClosed(t *testing.T) {
	c := Candidate{
		TemplateID: "strict",
		VersionID:  "strict-v1",
		Config: contracts.SelectionConfig{
			RequiredTokensAll: []string{"inspection", "certificate"},
			OptionalTokens:    []contracts.WeightedToken{{Token: "job", Weight: 1}},
		},
	}
	score := ScoreCandidate(TokenSet(Tokenize(happyText)), happyText, c)
	assert.Zero(t, score.Score)
	assert.ElementsMatch(t, []string{"inspection", "certificate"}, score.MissingRequired)
}

func TestRequiredAnyUnsatisfiedFailsClosed(t *testing.T) {
	c := Candidate{
		TemplateID: "any",
		VersionID:  "any-v1",
		Config: contracts.SelectionConfig{
			RequiredTokensAny: []string{"boiler", "hvac"},
		},
	}
	score := ScoreCandidate(TokenSet(Tokenize(happyText)), happyText, c)
	assert.Zero(t, score.Score)
}

func TestAmbiguousSelectionBlocksAutoProcessing(t *testing.T) {
	a := jobSheetCandidate("alpha")
	// beta's optional list is a subset but still fully matched, so both
	// candidates land on the same score.
	b := jobSheetCandidate("beta")
	b.Config.OptionalTokens = b.Config.OptionalTokens[:3]

	s := New()
	res := s.Select(happyText, []Candidate{a, b})

	require.Len(t, res.Candidates, 2)
	assert.Less(t, res.Gap, AmbiguityGap)
	assert.True(t, res.Ambiguous)
	assert.False(t, res.AutoProcessingAllowed)
	assert.Equal(t, "ambiguous", res.BlockReason)
}

func TestCandidateOrderingDeterministic(t *testing.T) {
	a := jobSheetCandidate("zeta")
	b := jobSheetCandidate("alpha") // identical config, identical score
	s := New()

	res := s.Select(happyText, []Candidate{a, b})
	require.Len(t, res.Candidates, 2)
	// Equal scores tie-break on template id ascending, first place included.
	assert.Equal(t, "alpha", res.Candidates[0].TemplateID)
	assert.Equal(t, "alpha", res.SelectedTemplateID)
}

func TestDefaultTemplateLosesTies(t *testing.T) {
	user := jobSheetCandidate("workshop-sheet")
	builtin := jobSheetCandidate("a-default")
	builtin.IsDefault = true

	s := New()
	res := s.Select(happyText, []Candidate{builtin, user})
	assert.Equal(t, "workshop-sheet", res.SelectedTemplateID,
		"user template wins a tie even with a lexically smaller default id")
}

func TestNoCandidates(t *testing.T) {
	s := New()
	res := s.Select(happyText, nil)
	assert.False(t, res.Selected())
	assert.Equal(t, "no active templates", res.BlockReason)
	assert.Empty(t, res.Candidates)
}

func TestNoMatchYieldsUnselected(t *testing.T) {
	c := Candidate{
		TemplateID: "gas-cert",
		VersionID:  "gas-cert-v1",
		Config:     contracts.SelectionConfig{RequiredTokensAll: []string{"flue"}},
	}
	s := New()
	res := s.Select(happyText, []Candidate{c})
	assert.False(t, res.Selected())
	assert.Equal(t, "no candidate matched", res.BlockReason)
	require.Len(t, res.Candidates, 1, "trace still lists the zero-score candidate")
}

func TestBuildTrace(t *testing.T) {
	fixed := time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC)
	s := New().WithClock(func() time.Time { return fixed })

	res := s.Select(happyText, []Candidate{jobSheetCandidate("job-sheet")})
	trace := s.BuildTrace("doc-abc", happyText, res)

	assert.Equal(t, contracts.SelectionTraceVersion, trace.ArtifactVersion)
	assert.Equal(t, fixed, trace.Timestamp)
	assert.Equal(t, "doc-abc", trace.DocumentID)
	assert.LessOrEqual(t, len(trace.InputSignals.TokenSample), 20)
	assert.Equal(t, len(happyText), trace.InputSignals.DocumentLength)
	assert.Equal(t, SignalWeightsVersion, trace.WeightsUsed.Version)
	assert.Equal(t, res.Candidates, trace.Candidates)
}

func TestCombineSignalsRenormalizes(t *testing.T) {
	w := DefaultSignalWeights()
	// Token-only run spans the full range.
	assert.InDelta(t, 90.0, CombineSignals([]Signal{{Name: SignalToken, Score: 90}}, w), 0.001)
	// Full signal set is the plain weighted sum.
	full := CombineSignals([]Signal{
		{Name: SignalToken, Score: 100},
		{Name: SignalLayout, Score: 50},
		{Name: SignalROI, Score: 80},
		{Name: SignalPlausibility, Score: 60},
	}, w)
	assert.InDelta(t, 0.40*100+0.20*50+0.25*80+0.15*60, full, 0.001)
	assert.Zero(t, CombineSignals(nil, w))
}
