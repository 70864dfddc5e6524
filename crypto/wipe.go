package crypto

// Wipe overwrites the buffer with zeros in place. Used on fragment payloads
// and transport keys at expiry or consumption so the plaintext cannot be
// recovered from a later read of the same allocation.
func Wipe(buf []byte) {
	for i := range buf {
		buf[i] = 0
	}
}

// WipeKey zeroes a fragment key in place.
func WipeKey(key FragmentKey) {
	Wipe(key)
}
