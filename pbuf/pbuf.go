// Package pbuf implements the length-agnostic, symmetric-key
// authenticated framing used by both NBUS (over the concatenated
// reassembled payload, with an 8-byte wire SIV) and rMAC (over its
// fixed tagged record). See spec.md §4.1.
package pbuf

import (
	"crypto/subtle"
	"encoding/binary"
	"fmt"

	"github.com/plumcore/plumcore/crypto"
	"github.com/plumcore/plumcore/perr"
)

// Universe key size ceiling, RMAC_UNIVERSE_KEY_MAX in spec.md §6.
const MaxKeySize = 32

// SIVSize is the SIV/tag length. rMAC seals with it, and NBUS's
// trailing frame carries a tag of this length (8 bytes) — see
// SPEC_FULL.md §E.
const SIVSize = 8

// Keys holds the two sub-keys derived from one operator-supplied
// universe key, per spec.md §4.1: Ke for the keystream, Km for the
// SIV/MAC.
type Keys struct {
	Ke [16]byte
	Km [16]byte
}

// DeriveKeys splits a universe key K of arbitrary non-zero length
// into (Ke, Km) = Blake2s(K, 32 bytes), Ke the first 16 bytes, Km the
// last 16.
func DeriveKeys(universeKey []byte) (Keys, error) {
	if len(universeKey) == 0 {
		return Keys{}, fmt.Errorf("pbuf: %w: empty universe key", perr.BadArg)
	}

	full := crypto.Hash(universeKey, 32)

	var k Keys
	copy(k.Ke[:], full[:16])
	copy(k.Km[:], full[16:32])

	return k, nil
}

// Seal produces SIV || C for plaintext P under keys k: SIV =
// Blake2s_keyed(Km, P, sivLen), C = P XOR keystream(Ke, SIV).
func Seal(k Keys, plaintext []byte, sivLen int) []byte {
	siv := crypto.Keyed(k.Km[:], plaintext, sivLen)

	ks := make([]byte, len(plaintext))
	keystreamFill(k.Ke, siv, ks)

	ciphertext := make([]byte, len(plaintext))
	for i := range plaintext {
		ciphertext[i] = plaintext[i] ^ ks[i]
	}

	out := make([]byte, 0, sivLen+len(ciphertext))
	out = append(out, siv...)
	out = append(out, ciphertext...)

	return out
}

// Tag computes the bare SIV over plaintext, with no keystream
// encryption step. NBUS channels send their payload in the clear
// across data fragments and carry only this tag in the trailing
// frame, per spec.md §4.1's wire packet shape; rMAC instead uses the
// full Seal/Open pair so the radio never carries cleartext.
func Tag(k Keys, plaintext []byte, tagLen int) []byte {
	return crypto.Keyed(k.Km[:], plaintext, tagLen)
}

// VerifyTag recomputes Tag over plaintext and compares it to tag in
// constant time.
func VerifyTag(k Keys, plaintext, tag []byte) bool {
	check := crypto.Keyed(k.Km[:], plaintext, len(tag))
	return subtle.ConstantTimeCompare(check, tag) == 1
}

// keystreamFill writes exactly len(out) keystream bytes derived from
// (ke, siv) into out.
func keystreamFill(ke [16]byte, siv []byte, out []byte) {
	for offset := 0; offset < len(out); offset += 32 {
		var block [4]byte
		binary.BigEndian.PutUint32(block[:], uint32(offset/32)) //nolint:gosec // bounded by packet MTU

		input := make([]byte, 0, len(siv)+4)
		input = append(input, siv...)
		input = append(input, block[:]...)

		cs := crypto.Keyed(ke[:], input, 32)

		copy(out[offset:], cs)
	}
}

// Open reverses Seal: recomputes the keystream from the received SIV,
// recovers P, recomputes the MAC over P and compares it to the
// received SIV in constant time. If sealed is shorter than sivLen+1
// it returns nil and a wrapped perr.BadArg; on a MAC failure it
// returns a zeroed buffer of the attempted plaintext length and a
// wrapped perr.Mac, per spec.md §4.1/§7.
func Open(k Keys, sealed []byte, sivLen int) ([]byte, error) {
	if len(sealed) < sivLen+1 {
		return nil, fmt.Errorf("pbuf: %w: ciphertext shorter than siv+1", perr.BadArg)
	}

	siv := sealed[:sivLen]
	ciphertext := sealed[sivLen:]

	ks := make([]byte, len(ciphertext))
	keystreamFill(k.Ke, siv, ks)

	plaintext := make([]byte, len(ciphertext))
	for i := range ciphertext {
		plaintext[i] = ciphertext[i] ^ ks[i]
	}

	check := crypto.Keyed(k.Km[:], plaintext, sivLen)

	if subtle.ConstantTimeCompare(check, siv) != 1 {
		for i := range plaintext {
			plaintext[i] = 0
		}

		return plaintext, fmt.Errorf("pbuf: %w", perr.Mac)
	}

	return plaintext, nil
}
