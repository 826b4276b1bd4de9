// Package crypto encrypts bank context payloads before they are handed to
// the remote context store. AES-256-CTR with a fresh random IV per call; the
// IV travels alongside the ciphertext, both hex-encoded, so the same key can
// decrypt on the way back.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// Envelope is the wire form of one encrypted payload.
type Envelope struct {
	IV      string `json:"iv"`
	Content string `json:"content"`
}

// Encrypt seals plaintext under a 32-byte key. Two calls with identical
// input produce different envelopes because the IV is random.
func Encrypt(key, plaintext []byte) (Envelope, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return Envelope{}, fmt.Errorf("crypto: creating cipher: %w", err)
	}

	iv := make([]byte, aes.BlockSize)
	if _, err := rand.Read(iv); err != nil {
		return Envelope{}, fmt.Errorf("crypto: generating iv: %w", err)
	}

	ciphertext := make([]byte, len(plaintext))
	cipher.NewCTR(block, iv).XORKeyStream(ciphertext, plaintext)

	return Envelope{
		IV:      hex.EncodeToString(iv),
		Content: hex.EncodeToString(ciphertext),
	}, nil
}

// Decrypt opens an envelope produced by Encrypt under the same key.
func Decrypt(key []byte, env Envelope) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("crypto: creating cipher: %w", err)
	}

	iv, err := hex.DecodeString(env.IV)
	if err != nil {
		return nil, fmt.Errorf("crypto: decoding iv: %w", err)
	}
	if len(iv) != aes.BlockSize {
		return nil, fmt.Errorf("crypto: iv must be %d bytes, got %d", aes.BlockSize, len(iv))
	}

	ciphertext, err := hex.DecodeString(env.Content)
	if err != nil {
		return nil, fmt.Errorf("crypto: decoding content: %w", err)
	}

	plaintext := make([]byte, len(ciphertext))
	cipher.NewCTR(block, iv).XORKeyStream(plaintext, ciphertext)

	return plaintext, nil
}
