package protoauth

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
)

// DefaultThreshold is the stock acceptance threshold. A tunable policy
// constant, not derived from anything physical.
const DefaultThreshold = 0.8

// Decision is the outcome of one authentication attempt. Rejections carry
// their confidence too, for audit.
type Decision struct {
	Accepted   bool      `json:"accepted"`
	Confidence float64   `json:"confidence"`
	Breakdown  Breakdown `json:"breakdown"`
	Context    Context   `json:"context"`

	// Anomaly is set when the attempt itself was irregular, e.g. an
	// unrecognized context that was failed closed to normal.
	Anomaly string `json:"anomaly,omitempty"`
}

// AuthEvent is the forensic record of one authentication decision.
type AuthEvent struct {
	AgentA     string    `json:"agent_a"`
	AgentB     string    `json:"agent_b"`
	Context    Context   `json:"context"`
	Presented  []string  `json:"presented"`
	Accepted   bool      `json:"accepted"`
	Confidence float64   `json:"confidence"`
	Anomaly    string    `json:"anomaly,omitempty"`
	At         time.Time `json:"at"`
}

// AuditSink receives every authentication decision. The authentication
// design depends on historical pattern evolution, so nothing is silently
// swallowed: rejected attempts are recorded with full context.
type AuditSink interface {
	RecordAuthEvent(ctx context.Context, event AuthEvent) error
}

// Config tunes the authenticator.
type Config struct {
	// Threshold is the minimum confidence for acceptance.
	Threshold float64 `json:"threshold" yaml:"threshold"`

	// EvolutionInteractions is the interaction count at which interaction
	// pressure alone saturates.
	EvolutionInteractions int `json:"evolution_interactions" yaml:"evolution_interactions"`

	// EvolutionWindow is the elapsed time at which time pressure alone
	// saturates.
	EvolutionWindow time.Duration `json:"evolution_window" yaml:"evolution_window"`

	// EvolutionThreshold is the pressure at which the stored pattern mutates.
	EvolutionThreshold float64 `json:"evolution_threshold" yaml:"evolution_threshold"`
}

// DefaultConfig returns the stock authenticator policy.
func DefaultConfig() Config {
	return Config{
		Threshold:             DefaultThreshold,
		EvolutionInteractions: 12,
		EvolutionWindow:       24 * time.Hour,
		EvolutionThreshold:    0.7,
	}
}

// Authenticator maintains pair relationships and authenticates presented
// step orders against each pair's evolving expectation.
type Authenticator struct {
	config Config
	store  RelationshipStore
	scorer Scorer
	clock  clockwork.Clock
	audit  AuditSink
	log    zerolog.Logger

	// rng drives evolution mutations; injected and seeded so drift is
	// reproducible under test.
	rngMu sync.Mutex
	rng   *rand.Rand
}

// Option configures an Authenticator.
type Option func(*Authenticator)

// WithScorer replaces the default scoring strategy.
func WithScorer(s Scorer) Option {
	return func(a *Authenticator) { a.scorer = s }
}

// WithRand injects the evolution RNG.
func WithRand(rng *rand.Rand) Option {
	return func(a *Authenticator) { a.rng = rng }
}

// WithAuditSink attaches a forensic sink for authentication decisions.
func WithAuditSink(sink AuditSink) Option {
	return func(a *Authenticator) { a.audit = sink }
}

// NewAuthenticator creates an authenticator over the given relationship
// store and clock.
func NewAuthenticator(config Config, store RelationshipStore, clock clockwork.Clock, log zerolog.Logger, opts ...Option) *Authenticator {
	a := &Authenticator{
		config: config,
		store:  store,
		scorer: DefaultScorer(),
		clock:  clock,
		log:    log.With().Str("component", "protoauth").Logger(),
		rng:    rand.New(rand.NewSource(clock.Now().UnixNano())),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// GetExpectedOrder returns the step names the pair is expected to present
// under the given context. The first call for a pair creates its
// relationship and synthesizes the base pattern from the deterministic pair
// seed. An unrecognized context fails closed: the order for normal is
// returned along with ErrUnknownContext, and the anomaly is logged.
func (a *Authenticator) GetExpectedOrder(agentA, agentB string, ctx Context) ([]string, error) {
	rel := a.store.GetOrCreate(agentA, agentB, a.clock.Now())

	var err error
	if !KnownContext(ctx) {
		a.log.Warn().
			Str("agent_a", agentA).
			Str("agent_b", agentB).
			Str("context", string(ctx)).
			Msg("unrecognized context, failing closed to normal")
		ctx = ContextNormal
		err = ErrUnknownContext
	}

	rel.mu.Lock()
	expected := TransformForContext(rel.BasePattern, ctx)
	rel.mu.Unlock()

	return StepNames(expected), err
}

// Authenticate scores a presented step order for the pair under the given
// context. It never fails on malformed input: an empty or garbage order
// simply scores low and is rejected. Side effects: the attempt is appended
// to the pair's history, trust is nudged, and the pattern may evolve.
func (a *Authenticator) Authenticate(agentA, agentB string, presented []string, ctx Context) Decision {
	now := a.clock.Now()
	rel := a.store.GetOrCreate(agentA, agentB, now)

	anomaly := ""
	effectiveCtx := ctx
	if !KnownContext(ctx) {
		// Fail closed: score against the normal expectation, never bypass.
		anomaly = "unrecognized context " + string(ctx)
		effectiveCtx = ContextNormal
	}

	rel.mu.Lock()

	expected := StepNames(TransformForContext(rel.BasePattern, effectiveCtx))
	confidence, breakdown := a.scorer.Score(presented, expected, rel.TrustLevel, rel.InteractionCount)
	accepted := confidence >= a.config.Threshold && anomaly == ""

	rel.recordInteraction(presented, effectiveCtx, now)
	rel.nudgeTrust(accepted)
	if accepted && rel.State == StateUnestablished {
		rel.State = StateEstablished
	}

	evolved := a.maybeEvolveLocked(rel, now)
	rel.mu.Unlock()

	decision := Decision{
		Accepted:   accepted,
		Confidence: confidence,
		Breakdown:  breakdown,
		Context:    effectiveCtx,
		Anomaly:    anomaly,
	}

	event := a.log.Info()
	if !accepted {
		event = a.log.Warn()
	}
	event.
		Str("agent_a", agentA).
		Str("agent_b", agentB).
		Str("context", string(effectiveCtx)).
		Bool("accepted", accepted).
		Float64("confidence", confidence).
		Int("common_steps", breakdown.CommonSteps).
		Bool("evolved", evolved).
		Str("anomaly", anomaly).
		Time("at", now).
		Msg("authentication decision")

	if a.audit != nil {
		ev := AuthEvent{
			AgentA:     agentA,
			AgentB:     agentB,
			Context:    effectiveCtx,
			Presented:  presented,
			Accepted:   accepted,
			Confidence: confidence,
			Anomaly:    anomaly,
			At:         now,
		}
		if err := a.audit.RecordAuthEvent(context.Background(), ev); err != nil {
			a.log.Error().Err(err).Msg("audit sink rejected auth event")
		}
	}

	return decision
}

// Relationship returns a read-only view of a pair's relationship.
func (a *Authenticator) Relationship(agentA, agentB string) (RelationshipInfo, bool) {
	rel, ok := a.store.Get(agentA, agentB)
	if !ok {
		return RelationshipInfo{}, false
	}
	return rel.Snapshot(), true
}

// Relationships returns views of all known relationships.
func (a *Authenticator) Relationships() []RelationshipInfo {
	return a.store.All()
}
