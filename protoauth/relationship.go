package protoauth

import (
	"sort"
	"sync"
	"time"

	"github.com/ScrappinR/MWRASP-Quantum-Defense-sub011/crypto"
)

// RelationshipState is the lifecycle of a pair relationship. There is no
// terminal or error state: anomalies lower trust but the relationship
// persists for forensic replay.
type RelationshipState string

const (
	// StateUnestablished means the pair has been seen but no interaction has
	// succeeded yet.
	StateUnestablished RelationshipState = "unestablished"

	// StateEstablished means at least one successful interaction occurred.
	StateEstablished RelationshipState = "established"

	// StateEvolving means the stored base pattern has drifted at least once.
	StateEvolving RelationshipState = "evolving"
)

// historyCapacity bounds the per-relationship interaction history ring.
const historyCapacity = 64

// HistoryEntry is one past interaction: the order that was presented, under
// which context, and when.
type HistoryEntry struct {
	Order   []string
	Context Context
	At      time.Time
}

// Relationship is the behavioral state shared by one unordered agent pair.
// All fields are guarded by mu; relationships for different pairs never
// block each other.
type Relationship struct {
	mu sync.Mutex

	AgentA string // sorted: AgentA < AgentB
	AgentB string

	Seed  int64
	State RelationshipState

	// BasePattern is the stored pattern evolution mutates. The per-call
	// expected order is derived from it, never stored.
	BasePattern []Step

	InteractionCount int
	TrustLevel       float64

	CreatedAt       time.Time
	LastInteraction time.Time

	// Evolution bookkeeping.
	EvolutionCount       int
	LastEvolution        time.Time
	interactionsAtEvolve int

	history []HistoryEntry
	histPos int
}

// PairKey returns the canonical unordered key for an agent pair.
func PairKey(agentA, agentB string) (string, string) {
	if agentB < agentA {
		return agentB, agentA
	}
	return agentA, agentB
}

func newRelationship(agentA, agentB string, now time.Time) *Relationship {
	a, b := PairKey(agentA, agentB)
	seed := crypto.PairSeed(a, b)

	return &Relationship{
		AgentA:        a,
		AgentB:        b,
		Seed:          seed,
		State:         StateUnestablished,
		BasePattern:   SynthesizeBasePattern(seed),
		TrustLevel:    0.5,
		CreatedAt:     now,
		LastEvolution: now,
		history:       make([]HistoryEntry, 0, historyCapacity),
	}
}

// recordInteraction appends to the bounded history ring and updates counters.
// Caller holds mu.
func (r *Relationship) recordInteraction(order []string, context Context, now time.Time) {
	entry := HistoryEntry{
		Order:   append([]string(nil), order...),
		Context: context,
		At:      now,
	}
	if len(r.history) < historyCapacity {
		r.history = append(r.history, entry)
	} else {
		r.history[r.histPos] = entry
		r.histPos = (r.histPos + 1) % historyCapacity
	}

	r.InteractionCount++
	r.LastInteraction = now
}

// nudgeTrust moves trust toward 1 on success and toward 0 on failure,
// asymptotically and bounded.
func (r *Relationship) nudgeTrust(success bool) {
	if success {
		r.TrustLevel += 0.05 * (1 - r.TrustLevel)
	} else {
		r.TrustLevel -= 0.10 * r.TrustLevel
	}
	if r.TrustLevel < 0 {
		r.TrustLevel = 0
	}
	if r.TrustLevel > 1 {
		r.TrustLevel = 1
	}
}

// History returns a copy of the interaction history, oldest first.
func (r *Relationship) History() []HistoryEntry {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]HistoryEntry, 0, len(r.history))
	if len(r.history) < historyCapacity {
		out = append(out, r.history...)
	} else {
		out = append(out, r.history[r.histPos:]...)
		out = append(out, r.history[:r.histPos]...)
	}
	return out
}

// Snapshot returns a copy of the relationship's observable state.
func (r *Relationship) Snapshot() RelationshipInfo {
	r.mu.Lock()
	defer r.mu.Unlock()

	return RelationshipInfo{
		AgentA:           r.AgentA,
		AgentB:           r.AgentB,
		State:            r.State,
		InteractionCount: r.InteractionCount,
		TrustLevel:       r.TrustLevel,
		EvolutionCount:   r.EvolutionCount,
		CreatedAt:        r.CreatedAt,
		LastInteraction:  r.LastInteraction,
	}
}

// RelationshipInfo is a read-only view of a relationship.
type RelationshipInfo struct {
	AgentA           string            `json:"agent_a"`
	AgentB           string            `json:"agent_b"`
	State            RelationshipState `json:"state"`
	InteractionCount int               `json:"interaction_count"`
	TrustLevel       float64           `json:"trust_level"`
	EvolutionCount   int               `json:"evolution_count"`
	CreatedAt        time.Time         `json:"created_at"`
	LastInteraction  time.Time         `json:"last_interaction"`
}

// RelationshipStore holds pair relationships. Relationships are created
// lazily on first contact and never deleted, only aged.
type RelationshipStore interface {
	// GetOrCreate returns the relationship for the unordered pair, creating
	// it on first contact.
	GetOrCreate(agentA, agentB string, now time.Time) *Relationship

	// Get returns the relationship if it exists.
	Get(agentA, agentB string) (*Relationship, bool)

	// All returns snapshots of every relationship, sorted by pair key.
	All() []RelationshipInfo
}

// MemoryRelationshipStore is the in-memory RelationshipStore. The map lock
// only guards lookups; per-relationship state has its own mutex.
type MemoryRelationshipStore struct {
	mu    sync.RWMutex
	pairs map[[2]string]*Relationship
}

// NewMemoryRelationshipStore creates an empty relationship store.
func NewMemoryRelationshipStore() *MemoryRelationshipStore {
	return &MemoryRelationshipStore{pairs: make(map[[2]string]*Relationship)}
}

// GetOrCreate returns the relationship for the pair, creating it lazily.
func (s *MemoryRelationshipStore) GetOrCreate(agentA, agentB string, now time.Time) *Relationship {
	a, b := PairKey(agentA, agentB)
	key := [2]string{a, b}

	s.mu.RLock()
	rel, ok := s.pairs[key]
	s.mu.RUnlock()
	if ok {
		return rel
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if rel, ok := s.pairs[key]; ok {
		return rel
	}
	rel = newRelationship(a, b, now)
	s.pairs[key] = rel
	return rel
}

// Get returns the relationship if it exists.
func (s *MemoryRelationshipStore) Get(agentA, agentB string) (*Relationship, bool) {
	a, b := PairKey(agentA, agentB)

	s.mu.RLock()
	defer s.mu.RUnlock()
	rel, ok := s.pairs[[2]string{a, b}]
	return rel, ok
}

// All returns snapshots of every relationship, sorted by pair key.
func (s *MemoryRelationshipStore) All() []RelationshipInfo {
	s.mu.RLock()
	rels := make([]*Relationship, 0, len(s.pairs))
	for _, rel := range s.pairs {
		rels = append(rels, rel)
	}
	s.mu.RUnlock()

	infos := make([]RelationshipInfo, 0, len(rels))
	for _, rel := range rels {
		infos = append(infos, rel.Snapshot())
	}
	sort.Slice(infos, func(i, j int) bool {
		if infos[i].AgentA != infos[j].AgentA {
			return infos[i].AgentA < infos[j].AgentA
		}
		return infos[i].AgentB < infos[j].AgentB
	})
	return infos
}
