package protoauth

import (
	"errors"
	"time"
)

// ErrUnknownContext indicates an unrecognized context was failed closed to
// normal handling.
var ErrUnknownContext = errors.New("unrecognized protocol context")

// EvolutionPressure combines interactions since the last evolution and
// elapsed time into a saturating [0,1] pressure. When it crosses the
// configured threshold the stored base pattern mutates, so long-lived
// relationships drift and captured orders age out of validity.
func EvolutionPressure(interactionsSinceEvolve int, elapsed time.Duration, saturateInteractions int, saturateWindow time.Duration) float64 {
	var ip, tp float64

	if saturateInteractions > 0 {
		ip = float64(interactionsSinceEvolve) / float64(saturateInteractions)
		if ip > 1 {
			ip = 1
		}
	}
	if saturateWindow > 0 {
		tp = float64(elapsed) / float64(saturateWindow)
		if tp > 1 {
			tp = 1
		}
	}

	return (ip + tp) / 2
}

// maybeEvolveLocked checks evolution pressure and, when it crosses the
// threshold, applies one bounded mutation to the stored base pattern.
// Caller holds rel.mu. Returns whether a mutation fired.
func (a *Authenticator) maybeEvolveLocked(rel *Relationship, now time.Time) bool {
	pressure := EvolutionPressure(
		rel.InteractionCount-rel.interactionsAtEvolve,
		now.Sub(rel.LastEvolution),
		a.config.EvolutionInteractions,
		a.config.EvolutionWindow,
	)
	if pressure < a.config.EvolutionThreshold {
		return false
	}

	a.mutatePattern(rel)
	rel.State = StateEvolving
	rel.EvolutionCount++
	rel.LastEvolution = now
	rel.interactionsAtEvolve = rel.InteractionCount

	a.log.Info().
		Str("agent_a", rel.AgentA).
		Str("agent_b", rel.AgentB).
		Float64("pressure", pressure).
		Int("evolution_count", rel.EvolutionCount).
		Msg("relationship pattern evolved")
	return true
}

// mutatePattern applies one bounded random perturbation to the stored base
// pattern: swap two adjacent non-critical steps, insert one absent optional
// step, or drop one present optional step. A chosen perturbation with
// nothing to act on falls through to one that applies, so every evolution
// changes the pattern. Caller holds rel.mu.
func (a *Authenticator) mutatePattern(rel *Relationship) {
	a.rngMu.Lock()
	defer a.rngMu.Unlock()

	switch a.rng.Intn(3) {
	case 0:
		if swapAdjacentNonCritical(rel.BasePattern, a.rng.Intn(len(rel.BasePattern))) {
			return
		}
	case 1:
		if a.insertOptionalLocked(rel) {
			return
		}
	case 2:
		if a.dropOptionalLocked(rel) {
			return
		}
	}

	if !a.insertOptionalLocked(rel) {
		a.dropOptionalLocked(rel)
	}
}

// insertOptionalLocked inserts one absent optional step at a non-leading
// position. False when every optional step is already present. Caller holds
// rel.mu and a.rngMu.
func (a *Authenticator) insertOptionalLocked(rel *Relationship) bool {
	absent := absentOptionalSteps(rel.BasePattern)
	if len(absent) == 0 {
		return false
	}
	step := absent[a.rng.Intn(len(absent))]
	pos := 1 + a.rng.Intn(len(rel.BasePattern)-1)
	rel.BasePattern = insertStep(rel.BasePattern, pos, step)
	return true
}

// dropOptionalLocked removes one optional step from the pattern. False when
// none is present. Caller holds rel.mu and a.rngMu.
func (a *Authenticator) dropOptionalLocked(rel *Relationship) bool {
	var present []int
	for i, s := range rel.BasePattern {
		if s.Optional {
			present = append(present, i)
		}
	}
	if len(present) == 0 {
		return false
	}
	i := present[a.rng.Intn(len(present))]
	rel.BasePattern = append(rel.BasePattern[:i:i], rel.BasePattern[i+1:]...)
	return true
}

// swapAdjacentNonCritical swaps the first adjacent pair of non-critical
// steps found scanning from the given offset, wrapping around.
func swapAdjacentNonCritical(pattern []Step, from int) bool {
	n := len(pattern)
	for off := 0; off < n-1; off++ {
		i := (from + off) % (n - 1)
		if !pattern[i].Critical && !pattern[i+1].Critical {
			pattern[i], pattern[i+1] = pattern[i+1], pattern[i]
			return true
		}
	}
	return false
}

func absentOptionalSteps(pattern []Step) []Step {
	present := make(map[string]bool, len(pattern))
	for _, s := range pattern {
		present[s.Name] = true
	}

	var absent []Step
	for _, s := range optionalSteps {
		if !present[s.Name] {
			absent = append(absent, s)
		}
	}
	return absent
}
