package transport

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ScrappinR/MWRASP-Quantum-Defense-sub011/geo"
	"github.com/ScrappinR/MWRASP-Quantum-Defense-sub011/protoauth"
)

// MissionStatus is a mission's lifecycle status.
type MissionStatus string

const (
	// MissionActive means the mission is in progress.
	MissionActive MissionStatus = "active"

	// MissionCompleted means at least RequiredCount fragments were delivered
	// before the deadline.
	MissionCompleted MissionStatus = "completed"

	// MissionFailed means the deadline passed first.
	MissionFailed MissionStatus = "failed"

	// MissionExpired means the mission was cancelled and its undelivered
	// fragments force-expired.
	MissionExpired MissionStatus = "expired"
)

// assignment binds one fragment to its carrier and destination.
type assignment struct {
	fragmentID  uuid.UUID
	agentID     string
	destination geo.Location
	travelTime  time.Duration
	delivered   bool
}

// Mission is the bounded-time effort to deliver one fragment set to its
// reconstruction site. requiredCount mirrors the fragment set's k; the
// mission never stores a threshold of its own beyond this copy taken from
// the single source of truth at creation.
type Mission struct {
	ID       uuid.UUID
	OriginID uuid.UUID

	ReconstructionSite geo.Location
	StartTime          time.Time
	Deadline           time.Time

	mu            sync.Mutex
	status        MissionStatus
	assignments   map[uuid.UUID]*assignment // keyed by fragment id
	byAgent       map[string]uuid.UUID
	requiredCount int
	deliveredN    int
}

// EventType classifies a mission progress report.
type EventType string

const (
	// EventDepart reports the carrier leaving with its fragment:
	// Carrying -> EnRoute.
	EventDepart EventType = "depart"

	// EventArrive reports arrival at the assigned destination:
	// EnRoute -> Delivered, gated by authentication, fragment availability
	// and the arrival radius.
	EventArrive EventType = "arrive"

	// EventCompromise reports the carrier as compromised; its fragment is
	// force-expired.
	EventCompromise EventType = "compromise"
)

// Event is one mission progress report from an agent.
type Event struct {
	Type EventType `json:"type"`

	// ReportedLocation is required for arrivals.
	ReportedLocation geo.Location `json:"reported_location"`

	// PresentedOrder and Context feed the delivery handoff authentication.
	PresentedOrder []string          `json:"presented_order,omitempty"`
	Context        protoauth.Context `json:"context,omitempty"`
}

// MissionInfo is a read-only view of a mission.
type MissionInfo struct {
	ID             uuid.UUID     `json:"id"`
	OriginID       uuid.UUID     `json:"origin_id"`
	Status         MissionStatus `json:"status"`
	StartTime      time.Time     `json:"start_time"`
	Deadline       time.Time     `json:"deadline"`
	RequiredCount  int           `json:"required_count"`
	AssignedCount  int           `json:"assigned_count"`
	DeliveredCount int           `json:"delivered_count"`

	Assignments map[string]string `json:"assignments"` // fragment id -> agent id
}

// Info returns a read-only view of the mission.
func (m *Mission) Info() MissionInfo {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.infoLocked()
}

// Status returns the mission's current status.
func (m *Mission) Status() MissionStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}
