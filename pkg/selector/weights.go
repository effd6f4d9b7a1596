package selector

import "github.com/Mindburn-Labs/jobproof/pkg/contracts"

// SignalWeightsVersion tags the current weight set. Bump it whenever a
// weight changes so traces remain interpretable after the fact.
const SignalWeightsVersion = "1.0.0"

// signalWeightsEffectiveAt is when the current weight set took effect.
const signalWeightsEffectiveAt = "2026-01-01T00:00:00Z"

// DefaultSignalWeights returns the versioned weight set used to combine
// selection signals. Pure data: never derived from the environment at
// request time.
func DefaultSignalWeights() contracts.SignalWeights {
	return contracts.SignalWeights{
		Version:            SignalWeightsVersion,
		EffectiveAt:        signalWeightsEffectiveAt,
		TokenWeight:        0.40,
		LayoutWeight:       0.20,
		ROIWeight:          0.25,
		PlausibilityWeight: 0.15,
	}
}

// Signal is one scored selection signal in [0,100].
type Signal struct {
	Name  string
	Score float64
}

// Signal names recognized by CombineSignals.
const (
	SignalToken        = "token"
	SignalLayout       = "layout"
	SignalROI          = "roi"
	SignalPlausibility = "plausibility"
)

// CombineSignals folds the available signals into one score using the
// versioned weights, renormalized over the signals actually present so a
// token-only run still spans [0,100]. Returns 0 when no signal is given.
func CombineSignals(signals []Signal, w contracts.SignalWeights) float64 {
	weightOf := func(name string) float64 {
		switch name {
		case SignalToken:
			return w.TokenWeight
		case SignalLayout:
			return w.LayoutWeight
		case SignalROI:
			return w.ROIWeight
		case SignalPlausibility:
			return w.PlausibilityWeight
		default:
			return 0
		}
	}

	var sum, total float64
	for _, s := range signals {
		wt := weightOf(s.Name)
		sum += wt * s.Score
		total += wt
	}
	if total == 0 {
		return 0
	}
	return clampScore(sum / total)
}

func clampScore(s float64) float64 {
	if s < 0 {
		return 0
	}
	if s > 100 {
		return 100
	}
	return s
}
