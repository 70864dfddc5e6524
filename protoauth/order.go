package protoauth

import (
	"math/rand"

	"github.com/ScrappinR/MWRASP-Quantum-Defense-sub011/crypto"
)

// Context is the operational situation an interaction happens under. The
// context deterministically transforms the expected step order.
type Context string

const (
	ContextNormal       Context = "normal"
	ContextUnderAttack  Context = "under_attack"
	ContextStealth      Context = "stealth"
	ContextEmergency    Context = "emergency"
	ContextHighSecurity Context = "high_security"
)

// KnownContext reports whether c is one of the defined contexts.
func KnownContext(c Context) bool {
	switch c {
	case ContextNormal, ContextUnderAttack, ContextStealth, ContextEmergency, ContextHighSecurity:
		return true
	}
	return false
}

// Step is one abstract protocol step. Critical steps anchor the sequence:
// transforms and evolution never move or drop them relative to each other.
// Optional steps are the ones emergency handling strips.
type Step struct {
	Name     string
	Critical bool
	Optional bool
}

// The mandatory skeleton every pair pattern is built on, in canonical order.
var skeletonSteps = []Step{
	{Name: "handshake", Critical: true},
	{Name: "capability_exchange"},
	{Name: "auth_request", Critical: true},
	{Name: "data_transfer", Critical: true},
	{Name: "terminate", Critical: true},
}

// Optional steps a pair pattern may weave in between skeleton steps.
var optionalSteps = []Step{
	{Name: "key_confirm", Optional: true},
	{Name: "status_report", Optional: true},
	{Name: "route_probe", Optional: true},
	{Name: "cover_traffic", Optional: true},
	{Name: "heartbeat", Optional: true},
}

// Verification steps prepended under hostile contexts.
var verificationSteps = []Step{
	{Name: "challenge_verify", Critical: true},
	{Name: "integrity_check", Critical: true},
}

// SynthesizeBasePattern builds a pair's base step order from its
// deterministic seed: the mandatory skeleton with one to three optional
// steps inserted at seed-chosen non-leading positions. The RNG is seeded
// with ordering key material expanded from the pair seed, so the same seed
// always yields the same pattern and synthesis is domain-separated from
// other uses of the seed.
func SynthesizeBasePattern(seed int64) []Step {
	rng := rand.New(rand.NewSource(crypto.OrderingSeed(seed, "base-pattern")))

	pattern := append([]Step(nil), skeletonSteps...)

	nOptional := 1 + rng.Intn(3)
	perm := rng.Perm(len(optionalSteps))
	for _, oi := range perm[:nOptional] {
		// Never before handshake, never after terminate.
		pos := 1 + rng.Intn(len(pattern)-1)
		pattern = insertStep(pattern, pos, optionalSteps[oi])
	}

	return pattern
}

// TransformForContext applies the context's fixed transformation rules to a
// base pattern. Pure: no state is read or written, so the same
// (base, context) always yields the same expected order.
//
// Rules:
//   - normal: the base pattern unchanged.
//   - under_attack: mandatory verification steps are prepended and the
//     non-critical steps are reversed among themselves (critical anchors
//     keep their positions).
//   - stealth: optional steps are dropped and remaining non-critical steps
//     are deferred to just before terminate.
//   - emergency: everything marked optional is stripped.
//   - high_security: challenge_verify is inserted before auth_request and
//     integrity_check before data_transfer.
func TransformForContext(base []Step, context Context) []Step {
	switch context {
	case ContextUnderAttack:
		out := append([]Step(nil), verificationSteps...)
		return append(out, reverseNonCritical(base)...)

	case ContextStealth:
		kept := dropOptional(base)
		return deferNonCritical(kept)

	case ContextEmergency:
		return dropOptional(base)

	case ContextHighSecurity:
		out := insertBefore(base, "auth_request", verificationSteps[0])
		return insertBefore(out, "data_transfer", verificationSteps[1])

	default: // ContextNormal
		return append([]Step(nil), base...)
	}
}

// StepNames flattens a step sequence to its names.
func StepNames(steps []Step) []string {
	names := make([]string, len(steps))
	for i, s := range steps {
		names[i] = s.Name
	}
	return names
}

func insertStep(steps []Step, pos int, s Step) []Step {
	out := make([]Step, 0, len(steps)+1)
	out = append(out, steps[:pos]...)
	out = append(out, s)
	return append(out, steps[pos:]...)
}

func insertBefore(steps []Step, name string, s Step) []Step {
	for i, existing := range steps {
		if existing.Name == name {
			return insertStep(steps, i, s)
		}
	}
	return append(append([]Step(nil), steps...), s)
}

func dropOptional(steps []Step) []Step {
	out := make([]Step, 0, len(steps))
	for _, s := range steps {
		if !s.Optional {
			out = append(out, s)
		}
	}
	return out
}

// reverseNonCritical reverses the order of non-critical steps among
// themselves while critical steps keep their positions.
func reverseNonCritical(steps []Step) []Step {
	out := append([]Step(nil), steps...)

	var idx []int
	for i, s := range out {
		if !s.Critical {
			idx = append(idx, i)
		}
	}
	for i, j := 0, len(idx)-1; i < j; i, j = i+1, j-1 {
		out[idx[i]], out[idx[j]] = out[idx[j]], out[idx[i]]
	}
	return out
}

// deferNonCritical moves all non-critical steps, order preserved, to just
// before the final step.
func deferNonCritical(steps []Step) []Step {
	if len(steps) == 0 {
		return nil
	}

	var critical, deferred []Step
	for _, s := range steps {
		if s.Critical {
			critical = append(critical, s)
		} else {
			deferred = append(deferred, s)
		}
	}

	out := make([]Step, 0, len(steps))
	out = append(out, critical[:len(critical)-1]...)
	out = append(out, deferred...)
	return append(out, critical[len(critical)-1])
}
