package fragment

import (
	"time"

	"github.com/google/uuid"

	"github.com/ScrappinR/MWRASP-Quantum-Defense-sub011/crypto"
	"github.com/ScrappinR/MWRASP-Quantum-Defense-sub011/geo"
)

// State is a fragment's lifecycle state. A fragment is created Active and
// makes exactly one transition, to Expired or to Consumed.
type State int

const (
	// StateActive means the fragment payload is held and readable.
	StateActive State = iota

	// StateExpired means the ttl elapsed (or an explicit expiry fired) and
	// the payload and key were securely erased.
	StateExpired

	// StateConsumed means a successful reconstruction used this fragment;
	// the payload and key were securely erased.
	StateConsumed
)

func (s State) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateExpired:
		return "expired"
	case StateConsumed:
		return "consumed"
	default:
		return "unknown"
	}
}

// Fragment is one encrypted, time-boxed piece of a split message. Fragments
// are read-only after creation, except for the single state transition and
// the one-time destination assignment made by the transport coordinator.
type Fragment struct {
	ID         uuid.UUID
	OriginID   uuid.UUID
	Index      int
	TotalCount int

	CreatedAt time.Time
	ExpiresAt time.Time

	// OriginHash is the hash of the original message, shared by every
	// fragment of the set.
	OriginHash [crypto.HashSize]byte

	// Destination is assigned once by the transport coordinator.
	Destination    geo.Location
	HasDestination bool

	// TransportKey is this fragment's own fresh encryption key. Never derived
	// from a shared secret.
	TransportKey crypto.FragmentKey

	// Sealed is the encrypted window payload.
	Sealed *crypto.SealedPayload

	// IntegrityTag covers the sealed payload bytes; verifiable without the key.
	IntegrityTag [crypto.HashSize]byte

	// WindowStart and WindowLen describe the wrapping plaintext window this
	// fragment carries.
	WindowStart int
	WindowLen   int

	state State
}

// State returns the fragment's current lifecycle state.
func (f *Fragment) State() State { return f.state }

// FragmentSet is the handle for one fragmented message. RequiredCount is the
// single source of truth for k: missions reference it and never carry a
// threshold of their own.
type FragmentSet struct {
	OriginID      uuid.UUID
	FragmentIDs   []uuid.UUID
	RequiredCount int
	TotalCount    int
	Deadline      time.Time
	CreatedAt     time.Time

	MessageLen int
	Stride     int
	OriginHash [crypto.HashSize]byte
}

// SetStatus summarizes the live state of a fragment set.
type SetStatus struct {
	OriginID       uuid.UUID `json:"origin_id"`
	AvailableCount int       `json:"available_count"`
	ExpiredCount   int       `json:"expired_count"`
	ConsumedCount  int       `json:"consumed_count"`
	RequiredCount  int       `json:"required_count"`
	TotalCount     int       `json:"total_count"`
	Deadline       time.Time `json:"deadline"`
}
