package fragment

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/ScrappinR/MWRASP-Quantum-Defense-sub011/crypto"
	"github.com/ScrappinR/MWRASP-Quantum-Defense-sub011/geo"
)

const (
	// MinFragments and MaxFragments bound n.
	MinFragments = 3
	MaxFragments = 64

	// MaxTTL bounds how long a fragment may live. Policy knob, not a hard
	// physical law.
	MaxTTL = 24 * time.Hour
)

// EngineConfig tunes the fragmentation engine.
type EngineConfig struct {
	// ExtraOverlap is the overlap margin added on top of the coverage windows
	// required for k-of-n recovery, as a fraction of the stride.
	ExtraOverlap float64 `json:"extra_overlap" yaml:"extra_overlap"`
}

// DefaultEngineConfig returns the stock engine configuration.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{ExtraOverlap: 0.15}
}

// Engine splits messages into redundant, encrypted, time-boxed fragments.
// It owns FragmentSet records; transport and reconstruction reference them.
type Engine struct {
	config EngineConfig
	store  Store
	clock  clockwork.Clock
	expiry *ExpiryScheduler
	log    zerolog.Logger
}

// NewEngine creates a fragmentation engine on the given store and clock. The
// scheduler drives per-fragment expiry; the engine owns its lifecycle.
func NewEngine(config EngineConfig, store Store, clock clockwork.Clock, log zerolog.Logger) *Engine {
	return &Engine{
		config: config,
		store:  store,
		clock:  clock,
		expiry: NewExpiryScheduler(store, clock, log),
		log:    log.With().Str("component", "fragmentation").Logger(),
	}
}

// Create splits message into n fragments of which any k reconstruct the
// original, each sealed under its own fresh key, all expiring after ttl.
func (e *Engine) Create(message []byte, k, n int, ttl time.Duration) (*FragmentSet, error) {
	if err := validateParams(message, k, n, ttl); err != nil {
		return nil, err
	}

	now := e.clock.Now()
	originID := uuid.New()
	originHash := crypto.OriginHash(message)

	stride := (len(message) + n - 1) / n
	windowLen := coverageWindowLen(len(message), stride, k, n, e.config.ExtraOverlap)

	set := &FragmentSet{
		OriginID:      originID,
		FragmentIDs:   make([]uuid.UUID, 0, n),
		RequiredCount: k,
		TotalCount:    n,
		Deadline:      now.Add(ttl),
		CreatedAt:     now,
		MessageLen:    len(message),
		Stride:        stride,
		OriginHash:    originHash,
	}

	fragments := make([]*Fragment, 0, n)
	for i := 0; i < n; i++ {
		start := (i * stride) % len(message)
		chunk := wrappingWindow(message, start, windowLen)

		key, err := crypto.NewFragmentKey()
		if err != nil {
			return nil, fmt.Errorf("fragment %d: %w", i, err)
		}

		sealed, err := crypto.Seal(key, chunk, crypto.FragmentAAD(originHash, i, n))
		if err != nil {
			return nil, fmt.Errorf("fragment %d: %w", i, err)
		}
		crypto.Wipe(chunk)

		frag := &Fragment{
			ID:           uuid.New(),
			OriginID:     originID,
			Index:        i,
			TotalCount:   n,
			CreatedAt:    now,
			ExpiresAt:    now.Add(ttl),
			OriginHash:   originHash,
			TransportKey: key,
			Sealed:       sealed,
			IntegrityTag: crypto.IntegrityTag(sealed.Bytes()),
			WindowStart:  start,
			WindowLen:    windowLen,
			state:        StateActive,
		}
		fragments = append(fragments, frag)
		set.FragmentIDs = append(set.FragmentIDs, frag.ID)
	}

	if err := e.store.InsertSet(set, fragments); err != nil {
		return nil, fmt.Errorf("store fragment set: %w", err)
	}

	for _, frag := range fragments {
		e.expiry.Schedule(frag.ID, frag.ExpiresAt)
	}

	e.log.Info().
		Stringer("origin_id", originID).
		Int("k", k).
		Int("n", n).
		Dur("ttl", ttl).
		Int("message_len", len(message)).
		Msg("fragment set created")

	setCopy := *set
	return &setCopy, nil
}

// Expire forces a fragment to Expired immediately. Idempotent.
func (e *Engine) Expire(fragmentID uuid.UUID) error {
	return e.store.Expire(fragmentID)
}

// ExpireOrigin forces every non-terminal fragment of a set to Expired.
// Used by mission cancellation: aborted fragments must not linger until
// their natural timeout.
func (e *Engine) ExpireOrigin(originID uuid.UUID) error {
	return e.store.ExpireOrigin(originID)
}

// IsAvailable reports whether a fragment is neither expired nor consumed.
func (e *Engine) IsAvailable(fragmentID uuid.UUID) bool {
	return e.store.IsAvailable(fragmentID)
}

// AssignDestination binds a fragment to its transport destination. A
// fragment is assigned at most once; terminal fragments refuse assignment.
func (e *Engine) AssignDestination(fragmentID uuid.UUID, dest geo.Location) error {
	return e.store.AssignDestination(fragmentID, dest)
}

// UnassignDestination clears a fragment's destination binding. Used when a
// mission creation fails after some assignments were already made.
func (e *Engine) UnassignDestination(fragmentID uuid.UUID) error {
	return e.store.UnassignDestination(fragmentID)
}

// VerifyIntegrity checks a fragment's sealed payload against the transport
// tag recorded at creation, without touching the fragment key.
func (e *Engine) VerifyIntegrity(fragmentID uuid.UUID) error {
	return e.store.VerifyIntegrity(fragmentID)
}

// Status returns the live counts for a fragment set.
func (e *Engine) Status(originID uuid.UUID) (SetStatus, error) {
	return e.store.Status(originID)
}

// Set returns a copy of the fragment set record.
func (e *Engine) Set(originID uuid.UUID) (FragmentSet, error) {
	return e.store.GetSet(originID)
}

// Stop cancels all pending expiry tasks and waits for them to finish.
func (e *Engine) Stop() {
	e.expiry.Stop()
}

func validateParams(message []byte, k, n int, ttl time.Duration) error {
	switch {
	case len(message) == 0:
		return fmt.Errorf("%w: empty message", ErrInvalidParameters)
	case n < MinFragments || n > MaxFragments:
		return fmt.Errorf("%w: n=%d outside [%d,%d]", ErrInvalidParameters, n, MinFragments, MaxFragments)
	case k < 1 || k > n:
		return fmt.Errorf("%w: k=%d outside [1,%d]", ErrInvalidParameters, k, n)
	case ttl <= 0:
		return fmt.Errorf("%w: non-positive ttl", ErrInvalidParameters)
	case ttl > MaxTTL:
		return fmt.Errorf("%w: ttl %s exceeds maximum %s", ErrInvalidParameters, ttl, MaxTTL)
	}
	return nil
}

// coverageWindowLen returns the per-fragment window length placing every
// message byte in at least n-k+1 fragments, plus the extra overlap margin,
// capped at the message length.
func coverageWindowLen(msgLen, stride, k, n int, extraOverlap float64) int {
	length := stride*(n-k+1) + int(math.Ceil(extraOverlap*float64(stride)))
	if length > msgLen {
		length = msgLen
	}
	return length
}

// wrappingWindow copies length bytes starting at start, wrapping around the
// end of the message.
func wrappingWindow(message []byte, start, length int) []byte {
	out := make([]byte, length)
	for i := 0; i < length; i++ {
		out[i] = message[(start+i)%len(message)]
	}
	return out
}
