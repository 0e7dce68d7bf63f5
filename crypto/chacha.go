package crypto

import (
	"crypto/rand"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

// SealChaCha encrypts and authenticates plaintext under a 32-byte key,
// generating a fresh random nonce and prepending it to the returned
// ciphertext. It is the crypto-prim component's ChaCha20/Poly1305
// primitive (spec.md §2); unlike pbuf's Blake2s-SIV construction it is
// not used by NBUS or rMAC's wire formats, which fix on Blake2s-SIV
// throughout, but it is available to adapters needing a standard AEAD
// (e.g. protecting a diagnostics export).
func SealChaCha(key, plaintext, additionalData []byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, fmt.Errorf("crypto: chacha20poly1305 key: %w", err)
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("crypto: nonce: %w", err)
	}

	out := aead.Seal(nonce, nonce, plaintext, additionalData)

	return out, nil
}

// OpenChaCha reverses SealChaCha.
func OpenChaCha(key, sealed, additionalData []byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, fmt.Errorf("crypto: chacha20poly1305 key: %w", err)
	}

	if len(sealed) < aead.NonceSize() {
		return nil, fmt.Errorf("crypto: sealed data shorter than nonce")
	}

	nonce, ct := sealed[:aead.NonceSize()], sealed[aead.NonceSize():]

	pt, err := aead.Open(nil, nonce, ct, additionalData)
	if err != nil {
		return nil, fmt.Errorf("crypto: open: %w", err)
	}

	return pt, nil
}
