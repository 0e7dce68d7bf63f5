// Package crypto collects the symmetric primitives plumCore builds
// everything else on: Blake2s used both as an unkeyed PRF (short-ID
// and channel-ID derivation) and as a keyed PRF/MAC (the pbuf SIV
// construction), plus a ChaCha20-Poly1305 AEAD helper for the
// crypto-prim component's second named primitive.
//
// A single implementation is used everywhere Blake2s appears, per
// SPEC_FULL.md's Design Notes: callers never reach for
// golang.org/x/crypto/blake2s directly.
package crypto

import "golang.org/x/crypto/blake2s"

// Hash computes the unkeyed Blake2s-256 digest of data and truncates
// it to n bytes (1..32). This is the "Blake2s(X, n bytes)" notation
// used throughout spec.md for short-ID and channel-ID derivation.
func Hash(data []byte, n int) []byte {
	if n < 1 || n > blake2s.Size {
		panic("crypto: Hash output length out of range")
	}

	sum := blake2s.Sum256(data)

	out := make([]byte, n)
	copy(out, sum[:n])

	return out
}

// Keyed computes the Blake2s-256 MAC of data under key, truncated to
// n bytes. key may be up to 32 bytes. This is "Blake2s_keyed(K, X, n
// bytes)" in spec.md §4.1.
func Keyed(key, data []byte, n int) []byte {
	if n < 1 || n > blake2s.Size {
		panic("crypto: Keyed output length out of range")
	}

	h, err := blake2s.New256(key)
	if err != nil {
		// Only possible cause is a key longer than 32 bytes, which
		// is a programmer error in this codebase, not a runtime
		// condition callers need to handle.
		panic("crypto: " + err.Error())
	}

	h.Write(data) //nolint:errcheck // hash.Hash.Write never errors

	sum := h.Sum(nil)

	return sum[:n]
}
