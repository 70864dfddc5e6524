package crypto

import (
	"bytes"
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSealOpenRoundTrip(t *testing.T) {
	key, err := NewFragmentKey()
	require.NoError(t, err)

	plaintext := make([]byte, 1024)
	_, err = rand.Read(plaintext)
	require.NoError(t, err)

	origin := OriginHash(plaintext)
	aad := FragmentAAD(origin, 2, 5)

	sealed, err := Seal(key, plaintext, aad)
	require.NoError(t, err)
	require.NotEqual(t, plaintext, sealed.Ciphertext)

	recovered, err := Open(key, sealed, aad)
	require.NoError(t, err)
	require.Equal(t, plaintext, recovered)
}

func TestOpenRejectsWrongPosition(t *testing.T) {
	key, err := NewFragmentKey()
	require.NoError(t, err)

	plaintext := []byte("chunk data")
	origin := OriginHash(plaintext)

	sealed, err := Seal(key, plaintext, FragmentAAD(origin, 2, 5))
	require.NoError(t, err)

	// Same key, different slot: authentication must fail.
	_, err = Open(key, sealed, FragmentAAD(origin, 3, 5))
	require.Error(t, err)
}

func TestFreshKeysAreIndependent(t *testing.T) {
	k1, err := NewFragmentKey()
	require.NoError(t, err)
	k2, err := NewFragmentKey()
	require.NoError(t, err)
	require.False(t, bytes.Equal(k1, k2))

	plaintext := []byte("same chunk sealed twice")
	origin := OriginHash(plaintext)
	aad := FragmentAAD(origin, 0, 3)

	sealed, err := Seal(k1, plaintext, aad)
	require.NoError(t, err)

	_, err = Open(k2, sealed, aad)
	require.Error(t, err, "one fragment's key must not open another's payload")
}

func TestSealedPayloadSerialization(t *testing.T) {
	key, err := NewFragmentKey()
	require.NoError(t, err)

	sealed, err := Seal(key, []byte("payload"), nil)
	require.NoError(t, err)

	parsed, err := ParseSealedPayload(sealed.Bytes())
	require.NoError(t, err)
	require.Equal(t, sealed.Nonce, parsed.Nonce)
	require.Equal(t, sealed.Ciphertext, parsed.Ciphertext)

	_, err = ParseSealedPayload([]byte{1, 2, 3})
	require.Error(t, err)
}

func TestPairSeedIsSymmetric(t *testing.T) {
	require.Equal(t, PairSeed("agent-7", "agent-3"), PairSeed("agent-3", "agent-7"))
	require.NotEqual(t, PairSeed("agent-3", "agent-7"), PairSeed("agent-3", "agent-8"))
}

func TestExpandPairKeyDeterministic(t *testing.T) {
	k1, err := ExpandPairKey(42, "normal", 64)
	require.NoError(t, err)
	k2, err := ExpandPairKey(42, "normal", 64)
	require.NoError(t, err)
	require.Equal(t, k1, k2)

	k3, err := ExpandPairKey(42, "stealth", 64)
	require.NoError(t, err)
	require.NotEqual(t, k1, k3)
}

func TestOrderingSeedIsDeterministicAndLabelSeparated(t *testing.T) {
	require.Equal(t, OrderingSeed(42, "base-pattern"), OrderingSeed(42, "base-pattern"))
	require.NotEqual(t, OrderingSeed(42, "base-pattern"), OrderingSeed(42, "evolution"))
	require.NotEqual(t, OrderingSeed(42, "base-pattern"), OrderingSeed(43, "base-pattern"))
}

func TestWipe(t *testing.T) {
	buf := []byte{1, 2, 3, 4}
	Wipe(buf)
	require.Equal(t, []byte{0, 0, 0, 0}, buf)
}
