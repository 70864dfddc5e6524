package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
)

// FragmentKeySize is the size of a per-fragment transport key in bytes.
const FragmentKeySize = 32

// FragmentKey is a single-use AES-256 key protecting exactly one fragment.
type FragmentKey []byte

// NewFragmentKey generates a fresh random fragment key.
func NewFragmentKey() (FragmentKey, error) {
	key := make(FragmentKey, FragmentKeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("generate fragment key: %w", err)
	}
	return key, nil
}

// SealedPayload contains an AES-GCM-encrypted fragment payload.
// Format: nonce (12 bytes) || ciphertext+tag
type SealedPayload struct {
	Nonce      []byte
	Ciphertext []byte
}

// Seal encrypts a fragment chunk under its transport key using AES-256-GCM.
// The additional data binds the ciphertext to its fragment set and position,
// so a payload cannot be replayed into a different slot.
func Seal(key FragmentKey, plaintext, additionalData []byte) (*SealedPayload, error) {
	if len(key) != FragmentKeySize {
		return nil, errors.New("invalid fragment key size")
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create GCM: %w", err)
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}

	ciphertext := gcm.Seal(nil, nonce, plaintext, additionalData)

	return &SealedPayload{
		Nonce:      nonce,
		Ciphertext: ciphertext,
	}, nil
}

// Open decrypts a sealed fragment payload. The same additional data passed to
// Seal must be supplied, otherwise authentication fails.
func Open(key FragmentKey, sealed *SealedPayload, additionalData []byte) ([]byte, error) {
	if len(key) != FragmentKeySize {
		return nil, errors.New("invalid fragment key size")
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create GCM: %w", err)
	}

	if len(sealed.Nonce) != gcm.NonceSize() {
		return nil, errors.New("invalid nonce size")
	}

	plaintext, err := gcm.Open(nil, sealed.Nonce, sealed.Ciphertext, additionalData)
	if err != nil {
		return nil, fmt.Errorf("decrypt: %w", err)
	}

	return plaintext, nil
}

// Bytes serializes a sealed payload.
func (s *SealedPayload) Bytes() []byte {
	result := make([]byte, 0, len(s.Nonce)+len(s.Ciphertext))
	result = append(result, s.Nonce...)
	result = append(result, s.Ciphertext...)
	return result
}

// ParseSealedPayload deserializes a sealed payload.
func ParseSealedPayload(data []byte) (*SealedPayload, error) {
	const nonceLen = 12
	minLen := nonceLen + 16 // 16 is minimum ciphertext (just auth tag)

	if len(data) < minLen {
		return nil, errors.New("sealed payload too short")
	}

	return &SealedPayload{
		Nonce:      data[:nonceLen],
		Ciphertext: data[nonceLen:],
	}, nil
}
