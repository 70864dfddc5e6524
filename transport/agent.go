package transport

import (
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/atomic"

	"github.com/ScrappinR/MWRASP-Quantum-Defense-sub011/geo"
)

// AgentState is a transport agent's lifecycle state.
type AgentState int32

const (
	AgentIdle AgentState = iota
	AgentCarrying
	AgentEnRoute
	AgentDelivered
	AgentCompromised
)

func (s AgentState) String() string {
	switch s {
	case AgentIdle:
		return "idle"
	case AgentCarrying:
		return "carrying"
	case AgentEnRoute:
		return "en_route"
	case AgentDelivered:
		return "delivered"
	case AgentCompromised:
		return "compromised"
	default:
		return "unknown"
	}
}

// Agent is one transport carrier. State transitions are single
// compare-and-swap operations; position and cargo are guarded by mu.
type Agent struct {
	ID          string
	MaxSpeedKmh float64

	state atomic.Int32

	mu          sync.Mutex
	location    geo.Location
	reliability float64
	carried     uuid.UUID
	hasCargo    bool
}

// NewAgent creates an idle agent at the given location.
func NewAgent(id string, location geo.Location, maxSpeedKmh float64) *Agent {
	a := &Agent{
		ID:          id,
		MaxSpeedKmh: maxSpeedKmh,
	}
	a.location = location
	a.reliability = 0.5
	return a
}

// State returns the agent's current state.
func (a *Agent) State() AgentState {
	return AgentState(a.state.Load())
}

// transition atomically moves the agent from one state to another. Returns
// false when the agent was not in the expected state, which means another
// mission or event got there first.
func (a *Agent) transition(from, to AgentState) bool {
	return a.state.CompareAndSwap(int32(from), int32(to))
}

// Location returns the agent's last reported position.
func (a *Agent) Location() geo.Location {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.location
}

// SetLocation updates the agent's reported position.
func (a *Agent) SetLocation(loc geo.Location) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.location = loc
}

// Reliability returns the agent's reliability score in [0,1].
func (a *Agent) Reliability() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.reliability
}

// adjustReliability nudges reliability toward 1 on delivered missions and
// toward 0 on failures, bounded.
func (a *Agent) adjustReliability(success bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if success {
		a.reliability += 0.05 * (1 - a.reliability)
	} else {
		a.reliability -= 0.15 * a.reliability
	}
}

// carriedFragment returns the fragment the agent holds, if any.
func (a *Agent) carriedFragment() (uuid.UUID, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.carried, a.hasCargo
}

func (a *Agent) setCargo(fragmentID uuid.UUID) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.carried = fragmentID
	a.hasCargo = true
}

func (a *Agent) clearCargo() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.carried = uuid.UUID{}
	a.hasCargo = false
}

// AgentInfo is a read-only view of an agent.
type AgentInfo struct {
	ID          string       `json:"id"`
	State       string       `json:"state"`
	Location    geo.Location `json:"location"`
	MaxSpeedKmh float64      `json:"max_speed_kmh"`
	Reliability float64      `json:"reliability"`
}

// Info returns a read-only view of the agent.
func (a *Agent) Info() AgentInfo {
	a.mu.Lock()
	defer a.mu.Unlock()
	return AgentInfo{
		ID:          a.ID,
		State:       AgentState(a.state.Load()).String(),
		Location:    a.location,
		MaxSpeedKmh: a.MaxSpeedKmh,
		Reliability: a.reliability,
	}
}

// AgentStore is the registry of known transport agents.
type AgentStore interface {
	Register(agent *Agent) error
	Get(id string) (*Agent, bool)
	List() []AgentInfo
}

// MemoryAgentStore is the in-memory AgentStore. The map lock guards lookups
// only; agent state is CAS-driven and never held under it.
type MemoryAgentStore struct {
	mu     sync.RWMutex
	agents map[string]*Agent
}

// NewMemoryAgentStore creates an empty agent registry.
func NewMemoryAgentStore() *MemoryAgentStore {
	return &MemoryAgentStore{agents: make(map[string]*Agent)}
}

// Register adds an agent to the registry.
func (s *MemoryAgentStore) Register(agent *Agent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.agents[agent.ID]; exists {
		return fmt.Errorf("agent %s already registered", agent.ID)
	}
	s.agents[agent.ID] = agent
	return nil
}

// Get returns the agent if registered.
func (s *MemoryAgentStore) Get(id string) (*Agent, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	agent, ok := s.agents[id]
	return agent, ok
}

// List returns views of all registered agents, sorted by id.
func (s *MemoryAgentStore) List() []AgentInfo {
	s.mu.RLock()
	agents := make([]*Agent, 0, len(s.agents))
	for _, a := range s.agents {
		agents = append(agents, a)
	}
	s.mu.RUnlock()

	infos := make([]AgentInfo, 0, len(agents))
	for _, a := range agents {
		infos = append(infos, a.Info())
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].ID < infos[j].ID })
	return infos
}
