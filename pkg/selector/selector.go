// Package selector scores a document against the active template versions
// and decides which template, if any, may drive automated processing.
// Scoring is pure and deterministic: the same document and candidate set
// always produce the same result and the same trace, whatever the thread
// scheduling.
package selector

import (
	"regexp"
	"sort"
	"time"

	"github.com/Mindburn-Labs/jobproof/pkg/contracts"
)

// Scoring constants. Together they cap the token signal at 100:
// required-gate contribution + optional-token share + form-code bonus.
const (
	requiredContribution = 40.0
	optionalContribution = 30.0
	formCodeBonus        = 30.0
)

// Band thresholds and the ambiguity gap.
const (
	highThreshold   = 80.0
	mediumThreshold = 60.0
	// AmbiguityGap is the minimum lead the top candidate needs over the
	// runner-up before auto-processing is considered.
	AmbiguityGap = 10.0
)

// Candidate is one active template version offered for selection.
type Candidate struct {
	TemplateID string
	VersionID  string
	Config     contracts.SelectionConfig
	// IsDefault marks the built-in fallback template; it loses ties against
	// user-registered templates.
	IsDefault bool
}

// Selector scores documents against candidates.
type Selector struct {
	weights contracts.SignalWeights
	now     func() time.Time
}

// New creates a Selector with the default signal weights.
func New() *Selector {
	return &Selector{weights: DefaultSignalWeights(), now: time.Now}
}

// WithClock overrides the trace timestamp clock for tests.
func (s *Selector) WithClock(now func() time.Time) *Selector {
	s.now = now
	return s
}

// Weights returns the weight set in force.
func (s *Selector) Weights() contracts.SignalWeights { return s.weights }

// ScoreCandidate computes the token-signal score for one candidate.
// Fail-closed: a missing required-all token or an unsatisfied required-any
// list zeroes the score regardless of everything else.
func ScoreCandidate(tokens map[string]bool, text string, c Candidate) contracts.SelectionScore {
	score := contracts.SelectionScore{
		TemplateID:      c.TemplateID,
		VersionID:       c.VersionID,
		MatchedTokens:   []string{},
		MissingRequired: []string{},
	}

	for _, req := range c.Config.RequiredTokensAll {
		if tokens[normalizeToken(req)] {
			score.MatchedTokens = append(score.MatchedTokens, req)
		} else {
			score.MissingRequired = append(score.MissingRequired, req)
		}
	}
	if len(score.MissingRequired) > 0 {
		score.Score = 0
		score.ConfidenceBand = contracts.BandLow
		return score
	}

	anySatisfied := len(c.Config.RequiredTokensAny) == 0
	for _, req := range c.Config.RequiredTokensAny {
		if tokens[normalizeToken(req)] {
			score.MatchedTokens = append(score.MatchedTokens, req)
			anySatisfied = true
		}
	}
	if !anySatisfied {
		score.Score = 0
		score.ConfidenceBand = contracts.BandLow
		score.MissingRequired = append(score.MissingRequired, c.Config.RequiredTokensAny...)
		return score
	}

	var total float64
	if len(c.Config.RequiredTokensAll) > 0 || len(c.Config.RequiredTokensAny) > 0 {
		total += requiredContribution
	}

	var optTotal, optMatched float64
	for _, opt := range c.Config.OptionalTokens {
		w := opt.Weight
		if w <= 0 {
			w = 1
		}
		optTotal += w
		if tokens[normalizeToken(opt.Token)] {
			optMatched += w
			score.MatchedTokens = append(score.MatchedTokens, opt.Token)
		}
	}
	if optTotal > 0 {
		total += optionalContribution * (optMatched / optTotal)
	}

	if c.Config.FormCodeRegex != "" {
		if re, err := regexp.Compile(c.Config.FormCodeRegex); err == nil && re.MatchString(text) {
			total += formCodeBonus
			score.MatchedTokens = append(score.MatchedTokens, "form-code")
		}
	}

	score.Score = clampScore(total)
	score.ConfidenceBand = bandFor(score.Score, AmbiguityGap) // per-candidate band assumes no rival
	return score
}

// bandFor discretizes a score given the lead over the runner-up.
func bandFor(score, gap float64) contracts.ConfidenceBand {
	switch {
	case score >= highThreshold:
		return contracts.BandHigh
	case score >= mediumThreshold && gap >= AmbiguityGap:
		return contracts.BandMedium
	default:
		return contracts.BandLow
	}
}

// Select scores the document text against every candidate and produces the
// selection decision. Candidates come back sorted by score descending, the
// built-in default losing ties, then template id ascending; the ordering
// applies to the first-place slot too.
func (s *Selector) Select(text string, candidates []Candidate) contracts.SelectionResult {
	tokens := TokenSet(Tokenize(text))

	type scored struct {
		score     contracts.SelectionScore
		isDefault bool
	}
	all := make([]scored, 0, len(candidates))
	for _, c := range candidates {
		tokenScore := ScoreCandidate(tokens, text, c)
		tokenScore.Score = CombineSignals([]Signal{{Name: SignalToken, Score: tokenScore.Score}}, s.weights)
		all = append(all, scored{score: tokenScore, isDefault: c.IsDefault})
	}

	sort.SliceStable(all, func(i, j int) bool {
		a, b := all[i], all[j]
		if a.score.Score != b.score.Score {
			return a.score.Score > b.score.Score
		}
		if a.isDefault != b.isDefault {
			return !a.isDefault
		}
		return a.score.TemplateID < b.score.TemplateID
	})

	result := contracts.SelectionResult{
		Band:       contracts.BandLow,
		Candidates: make([]contracts.SelectionScore, 0, len(all)),
	}
	for _, sc := range all {
		result.Candidates = append(result.Candidates, sc.score)
	}
	if len(all) == 0 {
		result.BlockReason = "no active templates"
		return result
	}

	top := all[0].score
	result.TopScore = top.Score
	if len(all) > 1 {
		result.RunnerUpScore = all[1].score.Score
	}
	result.Gap = result.TopScore - result.RunnerUpScore
	if len(all) == 1 {
		result.Gap = result.TopScore
	}

	result.Ambiguous = len(all) > 1 && result.Gap < AmbiguityGap
	result.Band = bandFor(result.TopScore, result.Gap)

	if top.Score <= 0 {
		result.BlockReason = "no candidate matched"
		return result
	}

	result.SelectedTemplateID = top.TemplateID
	result.SelectedVersionID = top.VersionID
	for i := range result.Candidates {
		result.Candidates[i].ConfidenceBand = bandFor(result.Candidates[i].Score, result.Gap)
	}

	switch {
	case result.Ambiguous:
		result.BlockReason = "ambiguous"
	case result.Band != contracts.BandHigh:
		result.BlockReason = "confidence below auto-processing threshold"
	default:
		result.AutoProcessingAllowed = true
	}
	return result
}

// traceTokenSample caps how many tokens a trace records.
const traceTokenSample = 20

// BuildTrace assembles the selection trace artifact for one decision.
// Written whether or not a template was selected.
func (s *Selector) BuildTrace(documentID, text string, result contracts.SelectionResult) contracts.SelectionTrace {
	tokens := Tokenize(text)
	sample := tokens
	if len(sample) > traceTokenSample {
		sample = sample[:traceTokenSample]
	}
	sampleCopy := make([]string, len(sample))
	copy(sampleCopy, sample)

	return contracts.SelectionTrace{
		ArtifactVersion: contracts.SelectionTraceVersion,
		Timestamp:       s.now().UTC(),
		DocumentID:      documentID,
		InputSignals: contracts.TraceInputSignals{
			TokenCount:     len(tokens),
			TokenSample:    sampleCopy,
			DocumentLength: len(text),
		},
		Outcome:     result,
		Candidates:  result.Candidates,
		WeightsUsed: s.weights,
	}
}
