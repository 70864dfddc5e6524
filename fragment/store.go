package fragment

import (
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/ScrappinR/MWRASP-Quantum-Defense-sub011/crypto"
	"github.com/ScrappinR/MWRASP-Quantum-Defense-sub011/geo"
)

// WindowPayload is a reconstruction-ready copy of one available fragment:
// the sealed bytes and key are copied out under the origin lock so the
// caller never touches store-owned memory that expiry might be zeroing.
type WindowPayload struct {
	FragmentID  uuid.UUID
	Index       int
	WindowStart int
	WindowLen   int
	Key         crypto.FragmentKey
	Sealed      *crypto.SealedPayload
}

// Store is the persistence contract for fragment records. The core needs
// create/read semantics plus update-with-secure-wipe for the two terminal
// transitions. All operations on fragments of one origin are serialized by
// the implementation; distinct origins never block each other.
type Store interface {
	// InsertSet atomically stores a set and its fragments.
	InsertSet(set *FragmentSet, fragments []*Fragment) error

	// GetSet returns a copy of the set record.
	GetSet(originID uuid.UUID) (FragmentSet, error)

	// Expire transitions a fragment to Expired, zeroing its payload and key
	// in place first. Idempotent: expiring an Expired or Consumed fragment is
	// a no-op.
	Expire(fragmentID uuid.UUID) error

	// ExpireOrigin expires every non-terminal fragment of an origin.
	ExpireOrigin(originID uuid.UUID) error

	// IsAvailable reports whether the fragment is neither expired nor
	// consumed. The check is made under the origin lock, so an expiry racing
	// with it is observed as already done.
	IsAvailable(fragmentID uuid.UUID) bool

	// AssignDestination sets a fragment's destination exactly once.
	AssignDestination(fragmentID uuid.UUID, dest geo.Location) error

	// UnassignDestination clears a fragment's destination binding, so a
	// failed mission creation does not block later attempts for the origin.
	UnassignDestination(fragmentID uuid.UUID) error

	// VerifyIntegrity recomputes the transport tag over the sealed payload
	// and compares it to the tag recorded at creation. A mismatch is
	// ErrIntegrityViolation.
	VerifyIntegrity(fragmentID uuid.UUID) error

	// FragmentMeta returns a metadata copy (no payload, no key).
	FragmentMeta(fragmentID uuid.UUID) (Fragment, error)

	// Status summarizes the set's live counts.
	Status(originID uuid.UUID) (SetStatus, error)

	// ReadAvailable copies out every available fragment of the origin for
	// reconstruction, under the origin lock.
	ReadAvailable(originID uuid.UUID) (FragmentSet, []WindowPayload, error)

	// Consume transitions the listed fragments to Consumed, taking the same
	// secure-erase path as expiry. Fragments already terminal are skipped.
	Consume(originID uuid.UUID, fragmentIDs []uuid.UUID) error
}

// originRecord owns all fragments of one origin. Its mutex serializes
// expiry, reads and consumption for that origin only.
type originRecord struct {
	mu        sync.Mutex
	set       FragmentSet
	fragments map[uuid.UUID]*Fragment
}

// MemoryStore is the in-memory Store implementation. The top-level lock only
// guards the maps; all per-fragment state is guarded by the origin lock, so
// operations on different origins proceed in parallel.
type MemoryStore struct {
	mu      sync.RWMutex
	origins map[uuid.UUID]*originRecord
	byFrag  map[uuid.UUID]*originRecord
}

// NewMemoryStore creates an empty in-memory fragment store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		origins: make(map[uuid.UUID]*originRecord),
		byFrag:  make(map[uuid.UUID]*originRecord),
	}
}

// InsertSet atomically stores a set and its fragments.
func (s *MemoryStore) InsertSet(set *FragmentSet, fragments []*Fragment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.origins[set.OriginID]; exists {
		return fmt.Errorf("origin %s already stored", set.OriginID)
	}

	rec := &originRecord{
		set:       *set,
		fragments: make(map[uuid.UUID]*Fragment, len(fragments)),
	}
	for _, f := range fragments {
		rec.fragments[f.ID] = f
	}

	s.origins[set.OriginID] = rec
	for _, f := range fragments {
		s.byFrag[f.ID] = rec
	}
	return nil
}

// GetSet returns a copy of the set record.
func (s *MemoryStore) GetSet(originID uuid.UUID) (FragmentSet, error) {
	rec, err := s.origin(originID)
	if err != nil {
		return FragmentSet{}, err
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	return rec.set, nil
}

// Expire transitions a fragment to Expired after zeroing its payload in place.
func (s *MemoryStore) Expire(fragmentID uuid.UUID) error {
	rec, frag, err := s.fragmentRecord(fragmentID)
	if err != nil {
		return err
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	eraseFragment(frag, StateExpired)
	return nil
}

// ExpireOrigin expires every non-terminal fragment of an origin.
func (s *MemoryStore) ExpireOrigin(originID uuid.UUID) error {
	rec, err := s.origin(originID)
	if err != nil {
		return err
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	for _, frag := range rec.fragments {
		eraseFragment(frag, StateExpired)
	}
	return nil
}

// IsAvailable reports whether the fragment is neither expired nor consumed.
func (s *MemoryStore) IsAvailable(fragmentID uuid.UUID) bool {
	rec, frag, err := s.fragmentRecord(fragmentID)
	if err != nil {
		return false
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	return frag.state == StateActive
}

// AssignDestination sets a fragment's destination exactly once.
func (s *MemoryStore) AssignDestination(fragmentID uuid.UUID, dest geo.Location) error {
	rec, frag, err := s.fragmentRecord(fragmentID)
	if err != nil {
		return err
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()

	switch frag.state {
	case StateExpired:
		return ErrExpired
	case StateConsumed:
		return ErrConsumed
	}
	if frag.HasDestination {
		return ErrAlreadyAssigned
	}

	frag.Destination = dest
	frag.HasDestination = true
	return nil
}

// UnassignDestination clears a fragment's destination binding.
func (s *MemoryStore) UnassignDestination(fragmentID uuid.UUID) error {
	rec, frag, err := s.fragmentRecord(fragmentID)
	if err != nil {
		return err
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()

	frag.Destination = geo.Location{}
	frag.HasDestination = false
	return nil
}

// VerifyIntegrity recomputes the transport tag over the sealed payload.
func (s *MemoryStore) VerifyIntegrity(fragmentID uuid.UUID) error {
	rec, frag, err := s.fragmentRecord(fragmentID)
	if err != nil {
		return err
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()

	switch frag.state {
	case StateExpired:
		return ErrExpired
	case StateConsumed:
		return ErrConsumed
	}
	if crypto.IntegrityTag(frag.Sealed.Bytes()) != frag.IntegrityTag {
		return fmt.Errorf("fragment %s: %w", fragmentID, ErrIntegrityViolation)
	}
	return nil
}

// FragmentMeta returns a metadata copy without payload or key material.
func (s *MemoryStore) FragmentMeta(fragmentID uuid.UUID) (Fragment, error) {
	rec, frag, err := s.fragmentRecord(fragmentID)
	if err != nil {
		return Fragment{}, err
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()

	meta := *frag
	meta.TransportKey = nil
	meta.Sealed = nil
	return meta, nil
}

// Status summarizes the set's live counts.
func (s *MemoryStore) Status(originID uuid.UUID) (SetStatus, error) {
	rec, err := s.origin(originID)
	if err != nil {
		return SetStatus{}, err
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()

	status := SetStatus{
		OriginID:      rec.set.OriginID,
		RequiredCount: rec.set.RequiredCount,
		TotalCount:    rec.set.TotalCount,
		Deadline:      rec.set.Deadline,
	}
	for _, frag := range rec.fragments {
		switch frag.state {
		case StateActive:
			status.AvailableCount++
		case StateExpired:
			status.ExpiredCount++
		case StateConsumed:
			status.ConsumedCount++
		}
	}
	return status, nil
}

// ReadAvailable copies out every available fragment of the origin.
func (s *MemoryStore) ReadAvailable(originID uuid.UUID) (FragmentSet, []WindowPayload, error) {
	rec, err := s.origin(originID)
	if err != nil {
		return FragmentSet{}, nil, err
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()

	payloads := make([]WindowPayload, 0, len(rec.fragments))
	for _, frag := range rec.fragments {
		if frag.state != StateActive {
			continue
		}
		payloads = append(payloads, WindowPayload{
			FragmentID:  frag.ID,
			Index:       frag.Index,
			WindowStart: frag.WindowStart,
			WindowLen:   frag.WindowLen,
			Key:         append(crypto.FragmentKey(nil), frag.TransportKey...),
			Sealed: &crypto.SealedPayload{
				Nonce:      append([]byte(nil), frag.Sealed.Nonce...),
				Ciphertext: append([]byte(nil), frag.Sealed.Ciphertext...),
			},
		})
	}
	return rec.set, payloads, nil
}

// Consume transitions the listed fragments to Consumed with secure erase.
func (s *MemoryStore) Consume(originID uuid.UUID, fragmentIDs []uuid.UUID) error {
	rec, err := s.origin(originID)
	if err != nil {
		return err
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	for _, id := range fragmentIDs {
		if frag, ok := rec.fragments[id]; ok {
			eraseFragment(frag, StateConsumed)
		}
	}
	return nil
}

func (s *MemoryStore) origin(originID uuid.UUID) (*originRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.origins[originID]
	if !ok {
		return nil, fmt.Errorf("origin %s: %w", originID, ErrNotFound)
	}
	return rec, nil
}

func (s *MemoryStore) fragmentRecord(fragmentID uuid.UUID) (*originRecord, *Fragment, error) {
	s.mu.RLock()
	rec, ok := s.byFrag[fragmentID]
	s.mu.RUnlock()
	if !ok {
		return nil, nil, fmt.Errorf("fragment %s: %w", fragmentID, ErrNotFound)
	}
	return rec, rec.fragments[fragmentID], nil
}

// eraseFragment zeroes payload and key in place, then records the terminal
// state. Must be called with the origin lock held. The zeroing happens
// strictly before the state becomes visible to any other reader of the same
// origin, and terminal fragments are never erased twice.
func eraseFragment(frag *Fragment, terminal State) {
	if frag.state != StateActive {
		return
	}
	if frag.Sealed != nil {
		crypto.Wipe(frag.Sealed.Ciphertext)
		crypto.Wipe(frag.Sealed.Nonce)
		frag.Sealed = nil
	}
	crypto.WipeKey(frag.TransportKey)
	frag.TransportKey = nil
	frag.state = terminal
}
