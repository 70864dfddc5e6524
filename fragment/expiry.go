package fragment

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
)

// ExpiryScheduler runs one scheduled task per fragment that fires the
// fragment's secure erase at its deadline. Tasks wait on the injected clock,
// so tests advance virtual time instead of sleeping. Firing and any
// concurrent read of the same fragment are serialized by the store's origin
// lock; an explicit Expire racing a scheduled one is harmless because the
// store transition is idempotent.
type ExpiryScheduler struct {
	store Store
	clock clockwork.Clock
	log   zerolog.Logger

	mu      sync.Mutex
	stopped bool
	done    chan struct{}
	wg      sync.WaitGroup
}

// NewExpiryScheduler creates a scheduler over the given store and clock.
func NewExpiryScheduler(store Store, clock clockwork.Clock, log zerolog.Logger) *ExpiryScheduler {
	return &ExpiryScheduler{
		store: store,
		clock: clock,
		log:   log.With().Str("component", "expiry").Logger(),
		done:  make(chan struct{}),
	}
}

// Schedule arranges for the fragment to be expired at the given instant.
func (s *ExpiryScheduler) Schedule(fragmentID uuid.UUID, at time.Time) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()

		select {
		case <-s.done:
			return
		case <-s.clock.After(at.Sub(s.clock.Now())):
		}

		if err := s.store.Expire(fragmentID); err != nil {
			s.log.Warn().Err(err).Stringer("fragment_id", fragmentID).Msg("expiry task failed")
			return
		}
		s.log.Debug().Stringer("fragment_id", fragmentID).Time("deadline", at).Msg("fragment expired")
	}()
}

// Stop cancels all pending tasks and waits for them to exit. Fragments not
// yet expired keep their records; callers that need immediate erasure use
// the store's expire paths directly.
func (s *ExpiryScheduler) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	close(s.done)
	s.mu.Unlock()

	s.wg.Wait()
}
