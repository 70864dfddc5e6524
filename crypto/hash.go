package crypto

import (
	"encoding/binary"
	"fmt"
	"io"
	"sort"

	"golang.org/x/crypto/hkdf"
	"golang.org/x/crypto/sha3"
)

// HashSize is the size of all digests produced by this package.
const HashSize = 32

// OriginHash computes the content hash of an original, unfragmented message.
// All fragments of one set carry the same origin hash so each can be verified
// against the reassembled result independently.
func OriginHash(message []byte) [HashSize]byte {
	return domainHash("mwrasp-origin-v1", message)
}

// IntegrityTag computes the transport-level tag over a fragment's sealed
// payload bytes. Carriers can verify the tag without holding the fragment key.
func IntegrityTag(sealed []byte) [HashSize]byte {
	return domainHash("mwrasp-fragment-tag-v1", sealed)
}

// FragmentAAD builds the additional data binding a sealed payload to its
// position within a fragment set.
func FragmentAAD(originHash [HashSize]byte, index, total int) []byte {
	aad := make([]byte, 0, HashSize+8)
	aad = append(aad, originHash[:]...)
	aad = binary.BigEndian.AppendUint32(aad, uint32(index))
	aad = binary.BigEndian.AppendUint32(aad, uint32(total))
	return aad
}

// PairSeed derives the deterministic seed for an unordered agent pair. Both
// parties compute the same seed independently, without a shared live channel,
// because the identities are sorted before hashing.
func PairSeed(agentA, agentB string) int64 {
	ids := []string{agentA, agentB}
	sort.Strings(ids)

	h := sha3.New256()
	h.Write([]byte("mwrasp-pair-seed-v1"))
	h.Write([]byte(ids[0]))
	h.Write([]byte{0})
	h.Write([]byte(ids[1]))
	sum := h.Sum(nil)

	return int64(binary.BigEndian.Uint64(sum[:8]))
}

// ExpandPairKey stretches a pair seed into keyLen bytes of ordering key
// material for the given context label via HKDF-SHA3.
func ExpandPairKey(seed int64, contextLabel string, keyLen int) ([]byte, error) {
	secret := binary.BigEndian.AppendUint64(nil, uint64(seed))
	r := hkdf.New(sha3.New256, secret, []byte("mwrasp-order-v1"), []byte(contextLabel))

	key := make([]byte, keyLen)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("expand pair key: %w", err)
	}
	return key, nil
}

// OrderingSeed reduces a pair seed to the RNG seed for protocol order
// synthesis under the given label, via ExpandPairKey. Distinct labels yield
// independent orderings from one pair seed.
func OrderingSeed(seed int64, label string) int64 {
	key, err := ExpandPairKey(seed, label, 8)
	if err != nil {
		// An HKDF read only fails past the expansion limit, far beyond 8 bytes.
		panic(err)
	}
	return int64(binary.BigEndian.Uint64(key))
}

func domainHash(domain string, data []byte) [HashSize]byte {
	h := sha3.New256()
	h.Write([]byte(domain))
	h.Write(data)

	var out [HashSize]byte
	copy(out[:], h.Sum(nil))
	return out
}
