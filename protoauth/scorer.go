package protoauth

// Breakdown itemizes how a confidence score was computed, for audit.
type Breakdown struct {
	RankCorrelation float64 `json:"rank_correlation"`
	LengthPenalty   float64 `json:"length_penalty"`
	TrustBonus      float64 `json:"trust_bonus"`
	CommonSteps     int     `json:"common_steps"`
	ExtraSteps      int     `json:"extra_steps"`
	MissingSteps    int     `json:"missing_steps"`
}

// Scorer computes the similarity between a presented order and the expected
// one. The formula is a pluggable strategy so thresholds and weightings can
// be tuned without touching the authentication state machine.
type Scorer interface {
	Score(presented, expected []string, trustLevel float64, interactionCount int) (confidence float64, breakdown Breakdown)
}

// KendallScorer is the default scorer: a Kendall-tau rank correlation over
// the steps present in both orders, rescaled to [0,1], minus a penalty
// proportional to extra and missing steps, plus a trust bonus capped so a
// brand-new relationship cannot reach acceptance through the bonus alone.
type KendallScorer struct {
	// LengthPenaltyWeight scales the penalty per unmatched step relative to
	// the expected length.
	LengthPenaltyWeight float64

	// MaxTrustBonus caps the leniency granted to established relationships.
	MaxTrustBonus float64

	// BonusRampInteractions is the interaction count at which the trust
	// bonus reaches its full value.
	BonusRampInteractions int
}

// DefaultScorer returns the stock scoring strategy.
func DefaultScorer() *KendallScorer {
	return &KendallScorer{
		LengthPenaltyWeight:   0.5,
		MaxTrustBonus:         0.08,
		BonusRampInteractions: 10,
	}
}

// Score implements Scorer.
func (s *KendallScorer) Score(presented, expected []string, trustLevel float64, interactionCount int) (float64, Breakdown) {
	presentedRank := rankOf(presented)
	expectedRank := rankOf(expected)

	// Steps present in both, in presented order. Duplicate presentations
	// count once here and as extra steps below.
	var common []string
	seen := make(map[string]bool, len(presented))
	for _, name := range presented {
		if seen[name] {
			continue
		}
		seen[name] = true
		if _, ok := expectedRank[name]; ok {
			common = append(common, name)
		}
	}

	breakdown := Breakdown{
		CommonSteps:  len(common),
		ExtraSteps:   len(presented) - len(common),
		MissingSteps: len(expected) - len(common),
	}

	breakdown.RankCorrelation = rescaledKendallTau(common, presentedRank, expectedRank)

	expectedLen := len(expected)
	if expectedLen == 0 {
		expectedLen = 1
	}
	breakdown.LengthPenalty = s.LengthPenaltyWeight *
		float64(breakdown.ExtraSteps+breakdown.MissingSteps) / float64(expectedLen)

	bonus := s.MaxTrustBonus * trustLevel
	if ramp := s.BonusRampInteractions; ramp > 0 && interactionCount < ramp {
		bonus *= float64(interactionCount) / float64(ramp)
	}
	breakdown.TrustBonus = bonus

	confidence := breakdown.RankCorrelation - breakdown.LengthPenalty + breakdown.TrustBonus
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}
	return confidence, breakdown
}

// rankOf maps each step name to its first position. Duplicates keep the
// first occurrence; later duplicates count as extra steps.
func rankOf(order []string) map[string]int {
	ranks := make(map[string]int, len(order))
	for i, name := range order {
		if _, ok := ranks[name]; !ok {
			ranks[name] = i
		}
	}
	return ranks
}

// rescaledKendallTau computes (tau+1)/2 over the common steps: 1 for
// identical relative order, 0 for fully reversed, 0.5 for uncorrelated.
// Fewer than two common steps carry no ordering signal and score 0.
func rescaledKendallTau(common []string, presentedRank, expectedRank map[string]int) float64 {
	if len(common) < 2 {
		return 0
	}

	var concordant, discordant int
	for i := 0; i < len(common); i++ {
		for j := i + 1; j < len(common); j++ {
			dp := presentedRank[common[i]] - presentedRank[common[j]]
			de := expectedRank[common[i]] - expectedRank[common[j]]
			if dp*de > 0 {
				concordant++
			} else if dp*de < 0 {
				discordant++
			}
		}
	}

	pairs := concordant + discordant
	if pairs == 0 {
		return 0.5
	}
	tau := float64(concordant-discordant) / float64(pairs)
	return (tau + 1) / 2
}
