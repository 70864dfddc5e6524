package fragment

import (
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/ScrappinR/MWRASP-Quantum-Defense-sub011/crypto"
)

// ReconstructionEngine rebuilds original messages from surviving fragments.
// Reconstructions of different origins run concurrently; the store's origin
// lock serializes each one against the expiry path of its own fragments.
type ReconstructionEngine struct {
	store Store
	clock clockwork.Clock
	log   zerolog.Logger
}

// NewReconstructionEngine creates a reconstruction engine over the store.
func NewReconstructionEngine(store Store, clock clockwork.Clock, log zerolog.Logger) *ReconstructionEngine {
	return &ReconstructionEngine{
		store: store,
		clock: clock,
		log:   log.With().Str("component", "reconstruction").Logger(),
	}
}

// Reconstruct gathers all available fragments for the origin, requires at
// least the set's RequiredCount, reassembles the coverage windows in index
// order and verifies the result against the shared origin hash. On success
// the used fragments are consumed (securely erased) and the original bytes
// are returned exactly.
//
// Failure taxonomy: ErrInsufficientFragments is retryable while enough
// fragments could still become available before the deadline;
// ErrUnrecoverable is terminal (the set can never reach RequiredCount
// again); ErrIntegrityViolation is terminal and distinct, so callers can
// tell "not enough pieces" from "pieces don't agree".
func (r *ReconstructionEngine) Reconstruct(originID uuid.UUID) ([]byte, error) {
	set, payloads, err := r.store.ReadAvailable(originID)
	if err != nil {
		return nil, err
	}

	if len(payloads) < set.RequiredCount {
		status, serr := r.store.Status(originID)
		if serr != nil {
			return nil, serr
		}

		err := ErrInsufficientFragments
		if r.clock.Now().After(set.Deadline) || set.TotalCount-status.ExpiredCount-status.ConsumedCount < set.RequiredCount {
			err = ErrUnrecoverable
		}
		r.log.Warn().
			Stringer("origin_id", originID).
			Int("available", len(payloads)).
			Int("required", set.RequiredCount).
			Time("deadline", set.Deadline).
			Msg("reconstruction refused: " + err.Error())
		return nil, fmt.Errorf("%d of %d fragments available: %w", len(payloads), set.RequiredCount, err)
	}

	sort.Slice(payloads, func(i, j int) bool { return payloads[i].Index < payloads[j].Index })

	// Decrypt each window and lay it into the message buffer; overlapping
	// regions are simply rewritten with identical bytes, which strips the
	// configured overlap deterministically.
	buf := make([]byte, set.MessageLen)
	covered := make([]bool, set.MessageLen)
	used := make([]uuid.UUID, 0, len(payloads))

	for _, p := range payloads {
		chunk, err := crypto.Open(p.Key, p.Sealed, crypto.FragmentAAD(set.OriginHash, p.Index, set.TotalCount))
		crypto.WipeKey(p.Key)
		if err != nil {
			r.log.Error().
				Stringer("origin_id", originID).
				Int("index", p.Index).
				Err(err).
				Msg("fragment payload failed authentication")
			return nil, fmt.Errorf("fragment %d: %w", p.Index, ErrIntegrityViolation)
		}

		for i := 0; i < p.WindowLen; i++ {
			pos := (p.WindowStart + i) % set.MessageLen
			buf[pos] = chunk[i]
			covered[pos] = true
		}
		crypto.Wipe(chunk)
		used = append(used, p.FragmentID)
	}

	for pos, ok := range covered {
		if !ok {
			return nil, fmt.Errorf("byte %d uncovered by surviving fragments: %w", pos, ErrInsufficientFragments)
		}
	}

	if crypto.OriginHash(buf) != set.OriginHash {
		r.log.Error().Stringer("origin_id", originID).Msg("reassembled bytes do not match origin hash")
		return nil, fmt.Errorf("origin hash mismatch: %w", ErrIntegrityViolation)
	}

	if err := r.store.Consume(originID, used); err != nil {
		return nil, fmt.Errorf("consume fragments: %w", err)
	}

	r.log.Info().
		Stringer("origin_id", originID).
		Int("fragments_used", len(used)).
		Msg("message reconstructed")
	return buf, nil
}
