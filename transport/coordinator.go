package transport

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/ScrappinR/MWRASP-Quantum-Defense-sub011/fragment"
	"github.com/ScrappinR/MWRASP-Quantum-Defense-sub011/geo"
	"github.com/ScrappinR/MWRASP-Quantum-Defense-sub011/protoauth"
)

// FragmentControl is the slice of the fragmentation engine the coordinator
// drives: it reads set records, checks availability and payload integrity,
// binds destinations, and force-expires fragments on compromise or
// cancellation.
type FragmentControl interface {
	Set(originID uuid.UUID) (fragment.FragmentSet, error)
	IsAvailable(fragmentID uuid.UUID) bool
	Expire(fragmentID uuid.UUID) error
	AssignDestination(fragmentID uuid.UUID, dest geo.Location) error
	UnassignDestination(fragmentID uuid.UUID) error
	VerifyIntegrity(fragmentID uuid.UUID) error
}

// HandoffAuthenticator gates delivery handoffs.
type HandoffAuthenticator interface {
	Authenticate(agentA, agentB string, presented []string, ctx protoauth.Context) protoauth.Decision
}

// CoordinatorConfig tunes mission creation and progression.
type CoordinatorConfig struct {
	// GeoPolicy constrains destination placement.
	GeoPolicy geo.Policy `json:"geo_policy" yaml:"geo_policy"`

	// DestinationPool is the set of candidate fragment destinations.
	DestinationPool []geo.Location `json:"destination_pool" yaml:"destination_pool"`

	// GracePeriod pads the mission deadline beyond the slowest estimated
	// travel time.
	GracePeriod time.Duration `json:"grace_period" yaml:"grace_period"`

	// ArrivalRadiusKm is the acceptance radius around an assigned
	// destination for delivery reports.
	ArrivalRadiusKm float64 `json:"arrival_radius_km" yaml:"arrival_radius_km"`

	// DefaultAgentSpeedKmh is used for agents that report no max speed.
	DefaultAgentSpeedKmh float64 `json:"default_agent_speed_kmh" yaml:"default_agent_speed_kmh"`

	// GatewayID is the identity the reconstruction site presents in
	// delivery handoff authentication.
	GatewayID string `json:"gateway_id" yaml:"gateway_id"`
}

// DefaultCoordinatorConfig returns the stock coordinator policy.
func DefaultCoordinatorConfig() CoordinatorConfig {
	return CoordinatorConfig{
		GeoPolicy:            geo.DefaultPolicy(),
		GracePeriod:          30 * time.Second,
		ArrivalRadiusKm:      25,
		DefaultAgentSpeedKmh: 800,
		GatewayID:            "reconstruction-gateway",
	}
}

// Coordinator assigns fragments to carrier agents and drives missions to a
// terminal status. Each mission's deadline watcher is a scheduled
// continuation on the injected clock.
type Coordinator struct {
	config    CoordinatorConfig
	agents    AgentStore
	fragments FragmentControl
	auth      HandoffAuthenticator
	clock     clockwork.Clock
	log       zerolog.Logger

	rngMu sync.Mutex
	rng   *rand.Rand

	mu       sync.RWMutex
	missions map[uuid.UUID]*Mission

	done    chan struct{}
	stopped sync.Once
	wg      sync.WaitGroup
}

// NewCoordinator creates a transport coordinator. The RNG drives destination
// selection and is injected so placement is reproducible under test.
func NewCoordinator(config CoordinatorConfig, agents AgentStore, fragments FragmentControl, auth HandoffAuthenticator, clock clockwork.Clock, rng *rand.Rand, log zerolog.Logger) *Coordinator {
	if rng == nil {
		rng = rand.New(rand.NewSource(clock.Now().UnixNano()))
	}
	return &Coordinator{
		config:    config,
		agents:    agents,
		fragments: fragments,
		auth:      auth,
		clock:     clock,
		log:       log.With().Str("component", "transport").Logger(),
		rng:       rng,
		missions:  make(map[uuid.UUID]*Mission),
		done:      make(chan struct{}),
	}
}

// CreateMission assigns every available fragment of the origin to an idle
// candidate agent, places destinations from the pool under the geo policy,
// and opens the mission with a deadline of the slowest estimated travel time
// plus the grace period.
func (c *Coordinator) CreateMission(originID uuid.UUID, candidateAgentIDs []string, site geo.Location) (MissionInfo, error) {
	set, err := c.fragments.Set(originID)
	if err != nil {
		return MissionInfo{}, err
	}

	now := c.clock.Now()

	var pending []uuid.UUID
	for _, fragID := range set.FragmentIDs {
		if c.fragments.IsAvailable(fragID) {
			pending = append(pending, fragID)
		}
	}
	if len(pending) == 0 {
		return MissionInfo{}, fmt.Errorf("origin %s has no available fragments: %w", originID, fragment.ErrExpired)
	}

	if len(candidateAgentIDs) < len(pending) {
		return MissionInfo{}, fmt.Errorf("%d candidates for %d fragments: %w", len(candidateAgentIDs), len(pending), ErrInsufficientAgents)
	}

	destinations, err := c.selectDestinations(len(pending))
	if err != nil {
		return MissionInfo{}, err
	}
	if result := geo.ValidateConstraintSet(destinations, set.Deadline.Sub(now), c.config.GeoPolicy); !result.OK {
		return MissionInfo{}, fmt.Errorf("%s: %w", result.Violations[0].Detail, ErrConstraintViolated)
	}

	mission := &Mission{
		ID:                 uuid.New(),
		OriginID:           originID,
		ReconstructionSite: site,
		StartTime:          now,
		status:             MissionActive,
		assignments:        make(map[uuid.UUID]*assignment, len(pending)),
		byAgent:            make(map[string]uuid.UUID, len(pending)),
		requiredCount:      set.RequiredCount,
	}

	// Claim agents first: every claim is one Idle -> Carrying CAS, so a
	// concurrent mission creation can never hold the same agent.
	claimed := make([]*Agent, 0, len(pending))
	rollback := func() {
		for _, agent := range claimed {
			agent.clearCargo()
			agent.transition(AgentCarrying, AgentIdle)
		}
	}

	candidate := 0
	var maxTravel time.Duration
	for i, fragID := range pending {
		var agent *Agent
		for candidate < len(candidateAgentIDs) {
			id := candidateAgentIDs[candidate]
			candidate++

			a, ok := c.agents.Get(id)
			if !ok {
				rollback()
				return MissionInfo{}, fmt.Errorf("candidate %s: %w", id, ErrUnknownAgent)
			}
			if a.transition(AgentIdle, AgentCarrying) {
				agent = a
				break
			}
		}
		if agent == nil {
			rollback()
			return MissionInfo{}, fmt.Errorf("idle candidates exhausted: %w", ErrInsufficientAgents)
		}

		if _, loaded := agent.carriedFragment(); loaded {
			// Idle with cargo cannot happen; treat as the invariant
			// violation it is rather than limping on.
			rollback()
			return MissionInfo{}, fmt.Errorf("agent %s idle with cargo: %w", agent.ID, ErrAgentConflict)
		}

		agent.setCargo(fragID)
		claimed = append(claimed, agent)

		speed := agent.MaxSpeedKmh
		if speed <= 0 {
			speed = c.config.DefaultAgentSpeedKmh
		}
		travel := geo.FeasibleTravelTime(agent.Location(), destinations[i], speed)
		if travel > maxTravel {
			maxTravel = travel
		}

		mission.assignments[fragID] = &assignment{
			fragmentID:  fragID,
			agentID:     agent.ID,
			destination: destinations[i],
			travelTime:  travel,
		}
		mission.byAgent[agent.ID] = fragID
	}

	assigned := make([]uuid.UUID, 0, len(mission.assignments))
	for fragID, as := range mission.assignments {
		if err := c.fragments.AssignDestination(fragID, as.destination); err != nil {
			// Unbind what was already assigned: a failed creation must leave
			// the origin open to a later attempt.
			for _, id := range assigned {
				if uerr := c.fragments.UnassignDestination(id); uerr != nil {
					c.log.Error().Err(uerr).Stringer("fragment_id", id).Msg("unassign destination on rollback")
				}
			}
			rollback()
			return MissionInfo{}, fmt.Errorf("assign destination for %s: %w", fragID, err)
		}
		assigned = append(assigned, fragID)
	}

	mission.Deadline = now.Add(maxTravel + c.config.GracePeriod)

	c.mu.Lock()
	c.missions[mission.ID] = mission
	c.mu.Unlock()

	c.watchDeadline(mission)

	c.log.Info().
		Stringer("mission_id", mission.ID).
		Stringer("origin_id", originID).
		Int("fragments", len(pending)).
		Int("required", set.RequiredCount).
		Time("deadline", mission.Deadline).
		Msg("mission created")

	return mission.Info(), nil
}

// Advance applies a progress event from an agent to its mission.
func (c *Coordinator) Advance(missionID uuid.UUID, agentID string, event Event) (MissionInfo, error) {
	mission, err := c.mission(missionID)
	if err != nil {
		return MissionInfo{}, err
	}
	agent, ok := c.agents.Get(agentID)
	if !ok {
		return MissionInfo{}, fmt.Errorf("agent %s: %w", agentID, ErrUnknownAgent)
	}

	mission.mu.Lock()
	defer mission.mu.Unlock()

	if mission.status != MissionActive {
		return mission.infoLocked(), fmt.Errorf("mission %s is %s: %w", missionID, mission.status, ErrMissionClosed)
	}

	fragID, ok := mission.byAgent[agentID]
	if !ok {
		return mission.infoLocked(), fmt.Errorf("agent %s in mission %s: %w", agentID, missionID, ErrNoFragmentAssigned)
	}
	as := mission.assignments[fragID]

	switch event.Type {
	case EventDepart:
		if !agent.transition(AgentCarrying, AgentEnRoute) {
			return mission.infoLocked(), fmt.Errorf("depart from %s: %w", agent.State(), ErrInvalidTransition)
		}
		c.log.Debug().Stringer("mission_id", missionID).Str("agent_id", agentID).Msg("agent en route")

	case EventArrive:
		if err := c.deliverLocked(mission, agent, as, event); err != nil {
			return mission.infoLocked(), err
		}

	case EventCompromise:
		agent.state.Store(int32(AgentCompromised))
		agent.adjustReliability(false)
		if err := c.fragments.Expire(fragID); err != nil {
			c.log.Error().Err(err).Stringer("fragment_id", fragID).Msg("expire compromised fragment")
		}
		c.log.Warn().
			Stringer("mission_id", missionID).
			Str("agent_id", agentID).
			Stringer("fragment_id", fragID).
			Msg("agent compromised, fragment force-expired")

	default:
		return mission.infoLocked(), fmt.Errorf("event %q: %w", event.Type, ErrInvalidTransition)
	}

	return mission.infoLocked(), nil
}

// deliverLocked handles an arrival report. Caller holds mission.mu.
func (c *Coordinator) deliverLocked(mission *Mission, agent *Agent, as *assignment, event Event) error {
	if agent.State() != AgentEnRoute {
		return fmt.Errorf("arrive from %s: %w", agent.State(), ErrInvalidTransition)
	}

	if d := geo.Distance(event.ReportedLocation, as.destination); d > c.config.ArrivalRadiusKm {
		return fmt.Errorf("reported position %.0f km from destination: %w", d, ErrNotAtDestination)
	}

	// Hard timeout: an expired fragment is never delivered, and nothing may
	// catch this and retry past the deadline.
	if !c.fragments.IsAvailable(as.fragmentID) {
		c.log.Warn().
			Stringer("mission_id", mission.ID).
			Stringer("fragment_id", as.fragmentID).
			Str("agent_id", agent.ID).
			Time("at", c.clock.Now()).
			Msg("delivery of expired fragment refused")
		return fmt.Errorf("fragment %s: %w", as.fragmentID, fragment.ErrExpired)
	}

	// The sealed payload must still match the tag recorded at creation; a
	// tampered fragment is never accepted at the site.
	if err := c.fragments.VerifyIntegrity(as.fragmentID); err != nil {
		c.log.Error().
			Stringer("mission_id", mission.ID).
			Stringer("fragment_id", as.fragmentID).
			Str("agent_id", agent.ID).
			Err(err).
			Msg("fragment failed transport integrity check")
		return err
	}

	decision := c.auth.Authenticate(agent.ID, c.config.GatewayID, event.PresentedOrder, event.Context)
	if !decision.Accepted {
		agent.transition(AgentEnRoute, AgentCompromised)
		agent.adjustReliability(false)
		c.log.Warn().
			Stringer("mission_id", mission.ID).
			Str("agent_id", agent.ID).
			Float64("confidence", decision.Confidence).
			Str("context", string(decision.Context)).
			Time("at", c.clock.Now()).
			Msg("handoff authentication rejected, agent compromised")
		return fmt.Errorf("confidence %.3f: %w", decision.Confidence, ErrAuthenticationFailed)
	}

	if !agent.transition(AgentEnRoute, AgentDelivered) {
		return fmt.Errorf("arrive from %s: %w", agent.State(), ErrInvalidTransition)
	}
	agent.SetLocation(event.ReportedLocation)
	agent.adjustReliability(true)

	as.delivered = true
	mission.deliveredN++

	c.log.Info().
		Stringer("mission_id", mission.ID).
		Str("agent_id", agent.ID).
		Stringer("fragment_id", as.fragmentID).
		Int("delivered", mission.deliveredN).
		Int("required", mission.requiredCount).
		Msg("fragment delivered")

	// Completion mirrors the fragmentation engine's k-of-n contract: the
	// mission succeeds exactly when the set's RequiredCount is reachable at
	// the reconstruction site.
	if mission.deliveredN >= mission.requiredCount {
		mission.status = MissionCompleted
		c.releaseAgentsLocked(mission)
		c.log.Info().Stringer("mission_id", mission.ID).Msg("mission completed")
	}
	return nil
}

// Cancel aborts a mission: its undelivered fragments are force-expired
// immediately rather than left to time out naturally.
func (c *Coordinator) Cancel(missionID uuid.UUID) (MissionInfo, error) {
	mission, err := c.mission(missionID)
	if err != nil {
		return MissionInfo{}, err
	}

	mission.mu.Lock()
	defer mission.mu.Unlock()

	if mission.status != MissionActive {
		return mission.infoLocked(), fmt.Errorf("mission %s is %s: %w", missionID, mission.status, ErrMissionClosed)
	}

	mission.status = MissionExpired
	for _, as := range mission.assignments {
		if as.delivered {
			continue
		}
		if err := c.fragments.Expire(as.fragmentID); err != nil {
			c.log.Error().Err(err).Stringer("fragment_id", as.fragmentID).Msg("expire cancelled fragment")
		}
	}
	c.releaseAgentsLocked(mission)

	c.log.Info().Stringer("mission_id", missionID).Msg("mission cancelled")
	return mission.infoLocked(), nil
}

// Mission returns a read-only view of a mission.
func (c *Coordinator) Mission(missionID uuid.UUID) (MissionInfo, error) {
	mission, err := c.mission(missionID)
	if err != nil {
		return MissionInfo{}, err
	}
	return mission.Info(), nil
}

// Missions returns views of all missions.
func (c *Coordinator) Missions() []MissionInfo {
	c.mu.RLock()
	missions := make([]*Mission, 0, len(c.missions))
	for _, m := range c.missions {
		missions = append(missions, m)
	}
	c.mu.RUnlock()

	infos := make([]MissionInfo, 0, len(missions))
	for _, m := range missions {
		infos = append(infos, m.Info())
	}
	return infos
}

// Stop cancels all deadline watchers and waits for them.
func (c *Coordinator) Stop() {
	c.stopped.Do(func() { close(c.done) })
	c.wg.Wait()
}

func (c *Coordinator) mission(missionID uuid.UUID) (*Mission, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	mission, ok := c.missions[missionID]
	if !ok {
		return nil, fmt.Errorf("mission %s: %w", missionID, ErrUnknownMission)
	}
	return mission, nil
}

// watchDeadline schedules the mission's hard deadline on the clock.
func (c *Coordinator) watchDeadline(mission *Mission) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()

		select {
		case <-c.done:
			return
		case <-c.clock.After(mission.Deadline.Sub(c.clock.Now())):
		}

		mission.mu.Lock()
		defer mission.mu.Unlock()
		if mission.status != MissionActive {
			return
		}

		mission.status = MissionFailed
		c.releaseAgentsLocked(mission)
		c.log.Warn().
			Stringer("mission_id", mission.ID).
			Int("delivered", mission.deliveredN).
			Int("required", mission.requiredCount).
			Msg("mission deadline passed")
	}()
}

// releaseAgentsLocked returns the mission's agents to the idle pool.
// Compromised agents stay compromised. Caller holds mission.mu.
func (c *Coordinator) releaseAgentsLocked(mission *Mission) {
	for _, as := range mission.assignments {
		agent, ok := c.agents.Get(as.agentID)
		if !ok {
			continue
		}
		agent.clearCargo()
		agent.transition(AgentDelivered, AgentIdle)
		agent.transition(AgentEnRoute, AgentIdle)
		agent.transition(AgentCarrying, AgentIdle)
	}
}

// selectDestinations picks count destinations from the pool, greedily
// maximizing the minimum pairwise separation from a seeded random start.
func (c *Coordinator) selectDestinations(count int) ([]geo.Location, error) {
	pool := c.config.DestinationPool
	if len(pool) < count {
		return nil, fmt.Errorf("destination pool holds %d of %d required locations: %w", len(pool), count, ErrConstraintViolated)
	}

	c.rngMu.Lock()
	start := c.rng.Intn(len(pool))
	c.rngMu.Unlock()

	chosen := []geo.Location{pool[start]}
	used := map[int]bool{start: true}

	for len(chosen) < count {
		bestIdx := -1
		bestMin := -1.0
		for i, loc := range pool {
			if used[i] {
				continue
			}
			minD := geo.MinPairwiseSeparation(append(append([]geo.Location(nil), chosen...), loc))
			if minD > bestMin {
				bestMin = minD
				bestIdx = i
			}
		}
		used[bestIdx] = true
		chosen = append(chosen, pool[bestIdx])
	}
	return chosen, nil
}

// infoLocked builds a view with mission.mu already held.
func (m *Mission) infoLocked() MissionInfo {
	info := MissionInfo{
		ID:             m.ID,
		OriginID:       m.OriginID,
		Status:         m.status,
		StartTime:      m.StartTime,
		Deadline:       m.Deadline,
		RequiredCount:  m.requiredCount,
		AssignedCount:  len(m.assignments),
		DeliveredCount: m.deliveredN,
		Assignments:    make(map[string]string, len(m.assignments)),
	}
	for fragID, as := range m.assignments {
		info.Assignments[fragID.String()] = as.agentID
	}
	return info
}
