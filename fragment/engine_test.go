package fragment

import (
	"crypto/rand"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/ScrappinR/MWRASP-Quantum-Defense-sub011/crypto"
)

func testEngine(t *testing.T) (*Engine, *ReconstructionEngine, *MemoryStore, clockwork.FakeClock) {
	t.Helper()

	clock := clockwork.NewFakeClock()
	store := NewMemoryStore()
	engine := NewEngine(DefaultEngineConfig(), store, clock, zerolog.Nop())
	t.Cleanup(engine.Stop)

	recon := NewReconstructionEngine(store, clock, zerolog.Nop())
	return engine, recon, store, clock
}

func randomMessage(t *testing.T, size int) []byte {
	t.Helper()
	msg := make([]byte, size)
	_, err := rand.Read(msg)
	require.NoError(t, err)
	return msg
}

func TestCreateValidatesParameters(t *testing.T) {
	engine, _, _, _ := testEngine(t)
	msg := []byte("some message content")

	cases := []struct {
		name string
		msg  []byte
		k, n int
		ttl  time.Duration
	}{
		{"empty message", nil, 3, 5, time.Minute},
		{"n too small", msg, 1, 2, time.Minute},
		{"n too large", msg, 3, 65, time.Minute},
		{"k zero", msg, 0, 5, time.Minute},
		{"k above n", msg, 6, 5, time.Minute},
		{"zero ttl", msg, 3, 5, 0},
		{"negative ttl", msg, 3, 5, -time.Second},
		{"absurd ttl", msg, 3, 5, 25 * time.Hour},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := engine.Create(tc.msg, tc.k, tc.n, tc.ttl)
			require.ErrorIs(t, err, ErrInvalidParameters)
		})
	}
}

func TestRoundTripAllFragments(t *testing.T) {
	engine, recon, _, _ := testEngine(t)
	msg := randomMessage(t, 10*1024)

	set, err := engine.Create(msg, 3, 5, 5*time.Second)
	require.NoError(t, err)
	require.Len(t, set.FragmentIDs, 5)
	require.Equal(t, 3, set.RequiredCount)

	out, err := recon.Reconstruct(set.OriginID)
	require.NoError(t, err)
	require.Equal(t, msg, out)
}

func TestAnyKOfNSubsetsReconstruct(t *testing.T) {
	const k, n = 3, 5
	msg := randomMessage(t, 4096)

	subsets := chooseIndexSubsets(n, k)
	require.Len(t, subsets, 10)

	for _, keep := range subsets {
		engine, recon, _, _ := testEngine(t)

		set, err := engine.Create(msg, k, n, time.Minute)
		require.NoError(t, err)

		keepSet := make(map[int]bool, k)
		for _, idx := range keep {
			keepSet[idx] = true
		}
		for i, id := range set.FragmentIDs {
			if !keepSet[i] {
				require.NoError(t, engine.Expire(id))
			}
		}

		out, err := recon.Reconstruct(set.OriginID)
		require.NoError(t, err, "subset %v must reconstruct", keep)
		require.Equal(t, msg, out, "subset %v produced wrong bytes", keep)
	}
}

func TestFewerThanKFailsDeterministically(t *testing.T) {
	engine, recon, _, _ := testEngine(t)
	msg := randomMessage(t, 2048)

	set, err := engine.Create(msg, 3, 5, time.Minute)
	require.NoError(t, err)

	// Expire three fragments: only two remain, and with n-expired < k the
	// set can never recover, so the failure is terminal.
	for _, id := range set.FragmentIDs[:3] {
		require.NoError(t, engine.Expire(id))
	}

	_, err = recon.Reconstruct(set.OriginID)
	require.ErrorIs(t, err, ErrUnrecoverable)
}

func TestConsumedFragmentsCannotBeReused(t *testing.T) {
	engine, recon, _, _ := testEngine(t)
	msg := randomMessage(t, 1024)

	set, err := engine.Create(msg, 3, 5, time.Minute)
	require.NoError(t, err)

	_, err = recon.Reconstruct(set.OriginID)
	require.NoError(t, err)

	// All five were available and consumed; nothing is left to read.
	_, err = recon.Reconstruct(set.OriginID)
	require.ErrorIs(t, err, ErrUnrecoverable)

	for _, id := range set.FragmentIDs {
		require.False(t, engine.IsAvailable(id))
	}
}

func TestExpiryFinality(t *testing.T) {
	engine, recon, store, clock := testEngine(t)
	msg := randomMessage(t, 10*1024)

	set, err := engine.Create(msg, 3, 5, 5*time.Second)
	require.NoError(t, err)

	// All five expiry tasks must be parked on the fake clock before advancing.
	clock.BlockUntil(5)
	clock.Advance(6 * time.Second)

	require.Eventually(t, func() bool {
		status, err := store.Status(set.OriginID)
		return err == nil && status.ExpiredCount == 5
	}, 5*time.Second, 10*time.Millisecond)

	_, err = recon.Reconstruct(set.OriginID)
	require.ErrorIs(t, err, ErrUnrecoverable)

	// is_available is monotonically non-increasing: once expired, never again.
	for _, id := range set.FragmentIDs {
		require.False(t, engine.IsAvailable(id))
	}
}

func TestScenarioPartialSurvivalWithinTTL(t *testing.T) {
	// 10 KB blob, k=3, n=5, ttl=5s: wait 2s, reconstruct with 4 of 5
	// fragments present, succeed byte-exact.
	engine, recon, _, clock := testEngine(t)
	msg := randomMessage(t, 10*1024)

	set, err := engine.Create(msg, 3, 5, 5*time.Second)
	require.NoError(t, err)

	clock.BlockUntil(5)
	clock.Advance(2 * time.Second)

	require.NoError(t, engine.Expire(set.FragmentIDs[1]))

	out, err := recon.Reconstruct(set.OriginID)
	require.NoError(t, err)
	require.Equal(t, msg, out)
}

func TestExpireIsIdempotent(t *testing.T) {
	engine, _, store, _ := testEngine(t)

	set, err := engine.Create(randomMessage(t, 512), 3, 5, time.Minute)
	require.NoError(t, err)

	id := set.FragmentIDs[0]
	require.NoError(t, engine.Expire(id))
	require.NoError(t, engine.Expire(id))

	status, err := store.Status(set.OriginID)
	require.NoError(t, err)
	require.Equal(t, 1, status.ExpiredCount)
	require.Equal(t, 4, status.AvailableCount)
}

func TestSecureEraseOnExpiry(t *testing.T) {
	engine, _, store, _ := testEngine(t)

	set, err := engine.Create(randomMessage(t, 512), 3, 5, time.Minute)
	require.NoError(t, err)

	id := set.FragmentIDs[0]
	require.NoError(t, engine.Expire(id))

	meta, err := store.FragmentMeta(id)
	require.NoError(t, err)
	require.Equal(t, StateExpired, meta.State())

	// Payload and key are gone from the record, not just hidden.
	_, payloads, err := store.ReadAvailable(set.OriginID)
	require.NoError(t, err)
	for _, p := range payloads {
		require.NotEqual(t, id, p.FragmentID)
	}
}

func TestExpiryWinsOverConcurrentReads(t *testing.T) {
	// Hammer ReadAvailable while fragments expire underneath it. Every
	// payload a reader observes must still authenticate: a reader must never
	// see a half-zeroed buffer.
	engine, _, store, _ := testEngine(t)
	msg := randomMessage(t, 8192)

	set, err := engine.Create(msg, 3, 5, time.Minute)
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for _, id := range set.FragmentIDs {
			_ = engine.Expire(id)
		}
	}()

	for {
		readSet, payloads, err := store.ReadAvailable(set.OriginID)
		require.NoError(t, err)
		for _, p := range payloads {
			chunk, err := cryptoOpen(readSet, p)
			require.NoError(t, err, "reader observed corrupt payload for index %d", p.Index)
			require.Len(t, chunk, p.WindowLen)
		}
		select {
		case <-done:
			_, payloads, err := store.ReadAvailable(set.OriginID)
			require.NoError(t, err)
			require.Empty(t, payloads)
			return
		default:
		}
	}
}

func TestStatusCounts(t *testing.T) {
	engine, recon, store, _ := testEngine(t)

	set, err := engine.Create(randomMessage(t, 2048), 2, 4, time.Minute)
	require.NoError(t, err)

	require.NoError(t, engine.Expire(set.FragmentIDs[0]))

	status, err := store.Status(set.OriginID)
	require.NoError(t, err)
	require.Equal(t, 3, status.AvailableCount)
	require.Equal(t, 1, status.ExpiredCount)
	require.Equal(t, 0, status.ConsumedCount)
	require.Equal(t, 2, status.RequiredCount)

	_, err = recon.Reconstruct(set.OriginID)
	require.NoError(t, err)

	status, err = store.Status(set.OriginID)
	require.NoError(t, err)
	require.Equal(t, 0, status.AvailableCount)
	require.Equal(t, 3, status.ConsumedCount)
}

func TestUnknownOrigin(t *testing.T) {
	_, recon, store, _ := testEngine(t)

	_, err := recon.Reconstruct(uuid.New())
	require.ErrorIs(t, err, ErrNotFound)

	_, err = store.Status(uuid.New())
	require.ErrorIs(t, err, ErrNotFound)
}

func cryptoOpen(set FragmentSet, p WindowPayload) ([]byte, error) {
	return crypto.Open(p.Key, p.Sealed, crypto.FragmentAAD(set.OriginHash, p.Index, set.TotalCount))
}

// chooseIndexSubsets enumerates all k-element subsets of {0..n-1}.
func chooseIndexSubsets(n, k int) [][]int {
	var out [][]int
	var walk func(start int, current []int)
	walk = func(start int, current []int) {
		if len(current) == k {
			out = append(out, append([]int(nil), current...))
			return
		}
		for i := start; i < n; i++ {
			walk(i+1, append(current, i))
		}
	}
	walk(0, nil)
	return out
}
