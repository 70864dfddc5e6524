// Package crypto provides the cryptographic primitives used by the
// fragmentation core: per-fragment authenticated encryption under fresh
// random keys, SHA3-256 content hashing, deterministic pair-seed derivation
// for behavioral authentication, and secure in-place erasure of key and
// payload material.
//
// Every fragment is sealed under its own independently generated 256-bit key.
// Key material is never derived from a shared master secret, so compromising
// one fragment's key reveals nothing about any other fragment of the same set.
package crypto
