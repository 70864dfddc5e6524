package services

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/ScrappinR/MWRASP-Quantum-Defense-sub011/fragment"
	"github.com/ScrappinR/MWRASP-Quantum-Defense-sub011/geo"
	"github.com/ScrappinR/MWRASP-Quantum-Defense-sub011/protoauth"
	"github.com/ScrappinR/MWRASP-Quantum-Defense-sub011/transport"
)

// Platform is the assembled core: fragmentation, transport, authentication
// and reconstruction behind one facade. All operations the HTTP adapter and
// the daemon expose go through here.
type Platform struct {
	config  Config
	clock   clockwork.Clock
	log     zerolog.Logger
	metrics *Metrics
	audit   AuditStore

	store       *fragment.MemoryStore
	engine      *fragment.Engine
	recon       *fragment.ReconstructionEngine
	agents      transport.AgentStore
	coordinator *transport.Coordinator
	auth        *protoauth.Authenticator
}

// PlatformOption configures a Platform.
type PlatformOption func(*platformDeps)

type platformDeps struct {
	metrics *Metrics
	audit   AuditStore
}

// WithMetrics attaches a metrics registry.
func WithMetrics(m *Metrics) PlatformOption {
	return func(d *platformDeps) { d.metrics = m }
}

// WithAuditStore attaches a forensic audit store.
func WithAuditStore(a AuditStore) PlatformOption {
	return func(d *platformDeps) { d.audit = a }
}

// NewPlatform wires the core components. The seed from the config drives
// both destination selection and pattern evolution; zero seeds from the
// clock.
func NewPlatform(config Config, clock clockwork.Clock, log zerolog.Logger, opts ...PlatformOption) *Platform {
	var deps platformDeps
	for _, opt := range opts {
		opt(&deps)
	}
	if deps.metrics == nil {
		deps.metrics = NewMetrics()
	}

	seed := config.Seed
	if seed == 0 {
		seed = clock.Now().UnixNano()
	}

	store := fragment.NewMemoryStore()
	engine := fragment.NewEngine(config.Fragmentation, store, clock, log)
	recon := fragment.NewReconstructionEngine(store, clock, log)

	authOpts := []protoauth.Option{
		protoauth.WithRand(rand.New(rand.NewSource(seed))),
	}
	if deps.audit != nil {
		authOpts = append(authOpts, protoauth.WithAuditSink(deps.audit))
	}
	auth := protoauth.NewAuthenticator(config.Authentication, protoauth.NewMemoryRelationshipStore(), clock, log, authOpts...)

	agents := transport.NewMemoryAgentStore()
	coordinator := transport.NewCoordinator(
		config.Transport,
		agents,
		engine,
		auth,
		clock,
		rand.New(rand.NewSource(seed+1)),
		log,
	)

	return &Platform{
		config:      config,
		clock:       clock,
		log:         log.With().Str("component", "platform").Logger(),
		metrics:     deps.metrics,
		audit:       deps.audit,
		store:       store,
		engine:      engine,
		recon:       recon,
		agents:      agents,
		coordinator: coordinator,
		auth:        auth,
	}
}

// Metrics returns the platform's metrics registry.
func (p *Platform) Metrics() *Metrics { return p.metrics }

// CreateFragmentSet splits a message into n time-boxed fragments of which
// any k reconstruct it.
func (p *Platform) CreateFragmentSet(message []byte, k, n int, ttl time.Duration) (fragment.FragmentSet, error) {
	set, err := p.engine.Create(message, k, n, ttl)
	if err != nil {
		return fragment.FragmentSet{}, err
	}

	p.metrics.FragmentSets.Inc()
	p.metrics.FragmentsCreated.Add(float64(set.TotalCount))
	p.recordFragmentEvent(FragmentEvent{
		OriginID: set.OriginID,
		Event:    "created",
		Detail:   fmt.Sprintf("k=%d n=%d", set.RequiredCount, set.TotalCount),
		At:       p.clock.Now(),
	})
	return *set, nil
}

// FragmentSetStatus returns the live counts for a fragment set.
func (p *Platform) FragmentSetStatus(originID uuid.UUID) (fragment.SetStatus, error) {
	return p.engine.Status(originID)
}

// FragmentDestination returns the assigned destination of a fragment.
func (p *Platform) FragmentDestination(fragmentID uuid.UUID) (geo.Location, bool, error) {
	meta, err := p.store.FragmentMeta(fragmentID)
	if err != nil {
		return geo.Location{}, false, err
	}
	return meta.Destination, meta.HasDestination, nil
}

// CreateMission opens a transport mission for the origin's fragments.
func (p *Platform) CreateMission(originID uuid.UUID, candidateAgentIDs []string, site geo.Location) (transport.MissionInfo, error) {
	info, err := p.coordinator.CreateMission(originID, candidateAgentIDs, site)
	if err != nil {
		return transport.MissionInfo{}, err
	}
	p.metrics.Missions.WithLabelValues("created").Inc()
	return info, nil
}

// AdvanceMission applies a progress event from an agent.
func (p *Platform) AdvanceMission(missionID uuid.UUID, agentID string, event transport.Event) (transport.MissionInfo, error) {
	info, err := p.coordinator.Advance(missionID, agentID, event)
	if err == nil && event.Type == transport.EventCompromise {
		p.recordFragmentEvent(FragmentEvent{
			OriginID: info.OriginID,
			Event:    "compromised",
			Detail:   "carrier " + agentID,
			At:       p.clock.Now(),
		})
	}
	if err == nil && info.Status == transport.MissionCompleted {
		p.metrics.Missions.WithLabelValues("completed").Inc()
	}
	return info, err
}

// CancelMission aborts a mission and force-expires its undelivered fragments.
func (p *Platform) CancelMission(missionID uuid.UUID) (transport.MissionInfo, error) {
	info, err := p.coordinator.Cancel(missionID)
	if err != nil {
		return info, err
	}
	p.metrics.Missions.WithLabelValues("expired").Inc()
	p.recordFragmentEvent(FragmentEvent{
		OriginID: info.OriginID,
		Event:    "cancelled",
		At:       p.clock.Now(),
	})
	return info, nil
}

// Mission returns a read-only mission view.
func (p *Platform) Mission(missionID uuid.UUID) (transport.MissionInfo, error) {
	return p.coordinator.Mission(missionID)
}

// Missions returns views of all missions.
func (p *Platform) Missions() []transport.MissionInfo {
	return p.coordinator.Missions()
}

// Authenticate scores a presented protocol order for the pair.
func (p *Platform) Authenticate(agentA, agentB string, presented []string, ctx protoauth.Context) protoauth.Decision {
	decision := p.auth.Authenticate(agentA, agentB, presented, ctx)

	outcome := "rejected"
	if decision.Accepted {
		outcome = "accepted"
	}
	p.metrics.AuthDecisions.WithLabelValues(outcome).Inc()
	return decision
}

// ExpectedOrder returns the expected protocol order for a pair and context.
func (p *Platform) ExpectedOrder(agentA, agentB string, ctx protoauth.Context) ([]string, error) {
	return p.auth.GetExpectedOrder(agentA, agentB, ctx)
}

// Relationships returns views of all pair relationships.
func (p *Platform) Relationships() []protoauth.RelationshipInfo {
	return p.auth.Relationships()
}

// Reconstruct reassembles the original message from the origin's surviving
// fragments and consumes them.
func (p *Platform) Reconstruct(originID uuid.UUID) ([]byte, error) {
	message, err := p.recon.Reconstruct(originID)

	switch {
	case err == nil:
		p.metrics.Reconstructions.WithLabelValues("ok").Inc()
		p.recordFragmentEvent(FragmentEvent{
			OriginID: originID,
			Event:    "consumed",
			At:       p.clock.Now(),
		})
	case errors.Is(err, fragment.ErrIntegrityViolation):
		p.metrics.Reconstructions.WithLabelValues("integrity").Inc()
	case errors.Is(err, fragment.ErrUnrecoverable):
		p.metrics.Reconstructions.WithLabelValues("unrecoverable").Inc()
	case errors.Is(err, fragment.ErrInsufficientFragments):
		p.metrics.Reconstructions.WithLabelValues("insufficient").Inc()
	}
	return message, err
}

// RegisterAgent adds a transport agent to the registry.
func (p *Platform) RegisterAgent(id string, location geo.Location, maxSpeedKmh float64) (transport.AgentInfo, error) {
	if id == "" {
		return transport.AgentInfo{}, fmt.Errorf("empty agent id")
	}
	agent := transport.NewAgent(id, location, maxSpeedKmh)
	if err := p.agents.Register(agent); err != nil {
		return transport.AgentInfo{}, err
	}
	return agent.Info(), nil
}

// Agents returns views of all registered agents.
func (p *Platform) Agents() []transport.AgentInfo {
	return p.agents.List()
}

// Close stops the schedulers and the audit store.
func (p *Platform) Close() {
	p.coordinator.Stop()
	p.engine.Stop()
	if p.audit != nil {
		if err := p.audit.Close(); err != nil {
			p.log.Error().Err(err).Msg("closing audit store")
		}
	}
}

// recordFragmentEvent writes to the audit store when one is configured.
// Audit failures are logged, never propagated into the data path.
func (p *Platform) recordFragmentEvent(event FragmentEvent) {
	if p.audit == nil {
		return
	}
	if err := p.audit.RecordFragmentEvent(context.Background(), event); err != nil {
		p.log.Error().Err(err).Str("event", event.Event).Msg("audit store rejected fragment event")
	}
}
