package fragment

import "errors"

var (
	// ErrInvalidParameters indicates a rejected k/n/ttl/message combination.
	ErrInvalidParameters = errors.New("invalid fragmentation parameters")

	// ErrExpired indicates access to a fragment after its deadline. Fatal for
	// that fragment; never retried.
	ErrExpired = errors.New("fragment expired")

	// ErrNotFound indicates an unknown fragment or origin id.
	ErrNotFound = errors.New("fragment not found")

	// ErrInsufficientFragments indicates fewer than RequiredCount fragments
	// are currently available. Retryable while the set deadline has not
	// passed and enough fragments could still be delivered.
	ErrInsufficientFragments = errors.New("insufficient fragments")

	// ErrUnrecoverable indicates the set can never again reach RequiredCount
	// available fragments. Terminal; callers must not retry.
	ErrUnrecoverable = errors.New("fragment set unrecoverable")

	// ErrIntegrityViolation indicates reassembled bytes that do not match the
	// set's origin hash, or a fragment payload that fails authentication.
	// Terminal, and deliberately distinct from ErrInsufficientFragments so
	// audit can tell "not enough pieces" from "pieces don't agree".
	ErrIntegrityViolation = errors.New("integrity violation")

	// ErrConsumed indicates a fragment already used by a successful
	// reconstruction.
	ErrConsumed = errors.New("fragment consumed")

	// ErrAlreadyAssigned indicates a destination assignment to a fragment
	// that already has one.
	ErrAlreadyAssigned = errors.New("fragment destination already assigned")
)
