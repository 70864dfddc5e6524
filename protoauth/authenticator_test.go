package protoauth

import (
	"context"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func testAuthenticator(t *testing.T, config Config, opts ...Option) (*Authenticator, clockwork.FakeClock) {
	t.Helper()

	clock := clockwork.NewFakeClock()
	store := NewMemoryRelationshipStore()
	opts = append([]Option{WithRand(rand.New(rand.NewSource(7)))}, opts...)
	return NewAuthenticator(config, store, clock, zerolog.Nop(), opts...), clock
}

func TestExpectedOrderIsDeterministicAndSymmetric(t *testing.T) {
	auth, _ := testAuthenticator(t, DefaultConfig())

	ab, err := auth.GetExpectedOrder("alpha", "bravo", ContextNormal)
	require.NoError(t, err)
	require.NotEmpty(t, ab)

	ba, err := auth.GetExpectedOrder("bravo", "alpha", ContextNormal)
	require.NoError(t, err)
	require.Equal(t, ab, ba, "either party must derive the same expectation")

	again, err := auth.GetExpectedOrder("alpha", "bravo", ContextNormal)
	require.NoError(t, err)
	require.Equal(t, ab, again)

	other, err := auth.GetExpectedOrder("alpha", "charlie", ContextNormal)
	require.NoError(t, err)
	require.NotEqual(t, ab, other, "distinct pairs should have distinct patterns")
}

func TestContextTransforms(t *testing.T) {
	seed := int64(1234)
	base := SynthesizeBasePattern(seed)

	t.Run("normal is identity", func(t *testing.T) {
		require.Equal(t, StepNames(base), StepNames(TransformForContext(base, ContextNormal)))
	})

	t.Run("under_attack prepends verification", func(t *testing.T) {
		names := StepNames(TransformForContext(base, ContextUnderAttack))
		require.Equal(t, "challenge_verify", names[0])
		require.Equal(t, "integrity_check", names[1])
		require.Len(t, names, len(base)+2)
	})

	t.Run("emergency strips optional steps", func(t *testing.T) {
		for _, s := range TransformForContext(base, ContextEmergency) {
			require.False(t, s.Optional, "optional step %q survived emergency transform", s.Name)
		}
	})

	t.Run("stealth drops optional and keeps terminate last", func(t *testing.T) {
		steps := TransformForContext(base, ContextStealth)
		for _, s := range steps {
			require.False(t, s.Optional)
		}
		require.Equal(t, "terminate", steps[len(steps)-1].Name)
	})

	t.Run("high_security inserts checks before anchors", func(t *testing.T) {
		names := StepNames(TransformForContext(base, ContextHighSecurity))
		require.Less(t, indexOf(names, "challenge_verify"), indexOf(names, "auth_request"))
		require.Less(t, indexOf(names, "integrity_check"), indexOf(names, "data_transfer"))
	})

	t.Run("transforms are pure", func(t *testing.T) {
		before := StepNames(base)
		TransformForContext(base, ContextUnderAttack)
		TransformForContext(base, ContextStealth)
		require.Equal(t, before, StepNames(base), "transform must not mutate the base pattern")
	})
}

func TestExactOrderIsAccepted(t *testing.T) {
	auth, _ := testAuthenticator(t, DefaultConfig())

	expected, err := auth.GetExpectedOrder("alpha", "bravo", ContextNormal)
	require.NoError(t, err)

	decision := auth.Authenticate("alpha", "bravo", expected, ContextNormal)
	require.True(t, decision.Accepted)
	require.GreaterOrEqual(t, decision.Confidence, DefaultThreshold)
}

func TestShuffledOrderScoresMateriallyLower(t *testing.T) {
	auth, _ := testAuthenticator(t, DefaultConfig())

	expected, err := auth.GetExpectedOrder("alpha", "bravo", ContextNormal)
	require.NoError(t, err)

	exact := auth.Authenticate("alpha", "bravo", expected, ContextNormal)
	require.True(t, exact.Accepted)

	// Seeded shuffles keep this stable run to run.
	rng := rand.New(rand.NewSource(99))
	var sum float64
	accepted := 0
	const trials = 100
	for i := 0; i < trials; i++ {
		shuffled := append([]string(nil), expected...)
		rng.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })

		d := auth.Authenticate("alpha", "bravo", shuffled, ContextNormal)
		sum += d.Confidence
		if d.Accepted {
			accepted++
		}
	}

	mean := sum / trials
	require.Less(t, mean, exact.Confidence-0.2, "shuffled mean %f vs exact %f", mean, exact.Confidence)
	require.Less(t, mean, DefaultThreshold-0.1)
	// A near-identity shuffle can clear the threshold occasionally; the
	// documented tolerance is that such passes stay rare.
	require.Less(t, accepted, trials/5, "%d of %d shuffles accepted", accepted, trials)
}

func TestMalformedOrdersNeverError(t *testing.T) {
	auth, _ := testAuthenticator(t, DefaultConfig())

	for _, presented := range [][]string{
		nil,
		{},
		{"garbage"},
		{"zzz", "yyy", "xxx", "www"},
		{"handshake", "handshake", "handshake"},
	} {
		d := auth.Authenticate("alpha", "bravo", presented, ContextNormal)
		require.False(t, d.Accepted, "presented %v", presented)
		require.Less(t, d.Confidence, DefaultThreshold)
	}
}

func TestUnknownContextFailsClosed(t *testing.T) {
	auth, _ := testAuthenticator(t, DefaultConfig())

	normal, err := auth.GetExpectedOrder("alpha", "bravo", ContextNormal)
	require.NoError(t, err)

	weird, err := auth.GetExpectedOrder("alpha", "bravo", Context("quantum_mode"))
	require.ErrorIs(t, err, ErrUnknownContext)
	require.Equal(t, normal, weird, "unknown context must be treated as normal")

	// Even a perfect presentation under an undefined context is no bypass.
	d := auth.Authenticate("alpha", "bravo", normal, Context("quantum_mode"))
	require.False(t, d.Accepted)
	require.NotEmpty(t, d.Anomaly)
}

func TestTrustEvolvesWithOutcomes(t *testing.T) {
	auth, _ := testAuthenticator(t, DefaultConfig())

	expected, err := auth.GetExpectedOrder("alpha", "bravo", ContextNormal)
	require.NoError(t, err)

	info, ok := auth.Relationship("alpha", "bravo")
	require.True(t, ok)
	start := info.TrustLevel
	require.Equal(t, StateUnestablished, info.State)

	for i := 0; i < 5; i++ {
		auth.Authenticate("alpha", "bravo", expected, ContextNormal)
	}
	info, _ = auth.Relationship("alpha", "bravo")
	require.Greater(t, info.TrustLevel, start)
	require.Equal(t, StateEstablished, info.State)
	require.Equal(t, 5, info.InteractionCount)

	raised := info.TrustLevel
	auth.Authenticate("alpha", "bravo", []string{"garbage"}, ContextNormal)
	info, _ = auth.Relationship("alpha", "bravo")
	require.Less(t, info.TrustLevel, raised)
}

func TestTrustBonusCannotCarryAnImpostor(t *testing.T) {
	// A brand-new relationship gets no leniency: even with the bonus, an
	// uncorrelated presentation stays far from the threshold.
	scorer := DefaultScorer()
	conf, breakdown := scorer.Score(
		[]string{"terminate", "auth_request", "handshake"},
		[]string{"handshake", "capability_exchange", "auth_request", "data_transfer", "terminate"},
		1.0, // even at maximum trust
		0,   // but zero interactions
	)
	require.Zero(t, breakdown.TrustBonus)
	require.Less(t, conf, DefaultThreshold)
}

func TestEvolutionDriftAndRecognition(t *testing.T) {
	config := DefaultConfig()
	config.EvolutionInteractions = 1
	config.EvolutionWindow = time.Second
	auth, clock := testAuthenticator(t, config)

	initial, err := auth.GetExpectedOrder("alpha", "bravo", ContextNormal)
	require.NoError(t, err)

	// Drive successful interactions with time passing; the pattern must
	// drift and the pre-evolution capture must eventually stop working,
	// while replaying the *current* pattern always works.
	rejectedOld := false
	for i := 0; i < 500 && !rejectedOld; i++ {
		clock.Advance(2 * time.Second)

		current, err := auth.GetExpectedOrder("alpha", "bravo", ContextNormal)
		require.NoError(t, err)

		d := auth.Authenticate("alpha", "bravo", current, ContextNormal)
		require.True(t, d.Accepted, "current pattern must always authenticate (iteration %d)", i)

		scorer := DefaultScorer()
		info, _ := auth.Relationship("alpha", "bravo")
		now, _ := auth.GetExpectedOrder("alpha", "bravo", ContextNormal)
		conf, _ := scorer.Score(initial, now, info.TrustLevel, info.InteractionCount)
		if conf < config.Threshold {
			rejectedOld = true
		}
	}

	drifted, err := auth.GetExpectedOrder("alpha", "bravo", ContextNormal)
	require.NoError(t, err)
	require.NotEqual(t, initial, drifted, "pattern must drift under evolution pressure")
	require.True(t, rejectedOld, "pre-evolution capture must age out of validity")

	info, ok := auth.Relationship("alpha", "bravo")
	require.True(t, ok)
	require.Equal(t, StateEvolving, info.State)
	require.Greater(t, info.EvolutionCount, 0)

	// The aged capture is rejected through the real path too.
	d := auth.Authenticate("alpha", "bravo", initial, ContextNormal)
	require.False(t, d.Accepted)
}

func TestEveryEvolutionChangesThePattern(t *testing.T) {
	config := DefaultConfig()
	config.EvolutionInteractions = 1
	config.EvolutionWindow = time.Second
	auth, clock := testAuthenticator(t, config)

	evolutions := 0
	for i := 0; i < 60; i++ {
		clock.Advance(2 * time.Second)

		before, err := auth.GetExpectedOrder("alpha", "bravo", ContextNormal)
		require.NoError(t, err)
		beforeInfo, _ := auth.Relationship("alpha", "bravo")

		auth.Authenticate("alpha", "bravo", before, ContextNormal)

		info, _ := auth.Relationship("alpha", "bravo")
		if info.EvolutionCount > beforeInfo.EvolutionCount {
			after, err := auth.GetExpectedOrder("alpha", "bravo", ContextNormal)
			require.NoError(t, err)
			require.NotEqual(t, before, after, "evolution %d left the pattern unchanged", info.EvolutionCount)
			evolutions++
		}
	}
	require.Greater(t, evolutions, 10)
}

func TestHistoryRingIsBounded(t *testing.T) {
	auth, _ := testAuthenticator(t, DefaultConfig())

	for i := 0; i < historyCapacity+10; i++ {
		auth.Authenticate("alpha", "bravo", []string{"handshake"}, ContextNormal)
	}

	stored, ok := auth.store.Get("alpha", "bravo")
	require.True(t, ok)
	history := stored.History()
	require.Len(t, history, historyCapacity)
}

type recordingSink struct {
	mu     sync.Mutex
	events []AuthEvent
}

func (r *recordingSink) RecordAuthEvent(_ context.Context, ev AuthEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func TestAuditSinkReceivesRejections(t *testing.T) {
	sink := &recordingSink{}
	auth, _ := testAuthenticator(t, DefaultConfig(), WithAuditSink(sink))

	expected, err := auth.GetExpectedOrder("alpha", "bravo", ContextNormal)
	require.NoError(t, err)

	auth.Authenticate("alpha", "bravo", expected, ContextNormal)
	auth.Authenticate("alpha", "bravo", []string{"junk"}, ContextNormal)

	require.Len(t, sink.events, 2)
	require.True(t, sink.events[0].Accepted)
	require.False(t, sink.events[1].Accepted)
	require.NotZero(t, sink.events[1].Confidence >= 0)
	require.Equal(t, []string{"junk"}, sink.events[1].Presented)
}

func TestScorerBasics(t *testing.T) {
	scorer := DefaultScorer()
	expected := []string{"a", "b", "c", "d", "e"}

	t.Run("identical order scores 1", func(t *testing.T) {
		conf, bd := scorer.Score(expected, expected, 0.5, 0)
		require.InDelta(t, 1.0, conf, 1e-9)
		require.Equal(t, 5, bd.CommonSteps)
		require.Zero(t, bd.ExtraSteps)
		require.Zero(t, bd.MissingSteps)
	})

	t.Run("reversed order scores near zero correlation", func(t *testing.T) {
		reversed := []string{"e", "d", "c", "b", "a"}
		_, bd := scorer.Score(reversed, expected, 0.5, 0)
		require.InDelta(t, 0.0, bd.RankCorrelation, 1e-9)
	})

	t.Run("extra and missing steps are penalized", func(t *testing.T) {
		conf, bd := scorer.Score([]string{"a", "b", "x", "y"}, expected, 0.5, 0)
		require.Equal(t, 2, bd.CommonSteps)
		require.Equal(t, 2, bd.ExtraSteps)
		require.Equal(t, 3, bd.MissingSteps)
		require.Greater(t, bd.LengthPenalty, 0.0)
		require.Less(t, conf, 0.6)
	})

	t.Run("single common step has no ordering signal", func(t *testing.T) {
		_, bd := scorer.Score([]string{"a"}, expected, 0.5, 0)
		require.Zero(t, bd.RankCorrelation)
	})
}

func indexOf(names []string, name string) int {
	for i, n := range names {
		if n == name {
			return i
		}
	}
	return -1
}
