// Package crypto provides the AEAD, key-exchange, and signing primitives
// used to secure SafeClaw's channel to the TEE.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"

	"github.com/A3S-Lab/SafeClaw-sub000/internal/scerr"
)

const (
	// KeySize is the AES-256 key length in bytes.
	KeySize = 32
	// NonceSize is the GCM nonce length in bytes.
	NonceSize = 12
)

// Encrypt seals plaintext under key using AES-256-GCM. The returned
// ciphertext is the random nonce prepended to the sealed output.
func Encrypt(key, plaintext []byte) ([]byte, error) {
	if len(key) != KeySize {
		return nil, scerr.Crypto("key must be 32 bytes")
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, scerr.Crypto("failed to create AES cipher")
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, scerr.Crypto("failed to create GCM")
	}

	nonce := make([]byte, NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, scerr.Crypto("failed to generate nonce")
	}

	ciphertext := gcm.Seal(nil, nonce, plaintext, nil)
	return append(nonce, ciphertext...), nil
}

// Decrypt opens a ciphertext produced by Encrypt.
func Decrypt(key, ciphertext []byte) ([]byte, error) {
	if len(key) != KeySize {
		return nil, scerr.Crypto("key must be 32 bytes")
	}
	if len(ciphertext) < NonceSize {
		return nil, scerr.Crypto("ciphertext too short")
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, scerr.Crypto("failed to create AES cipher")
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, scerr.Crypto("failed to create GCM")
	}

	nonce, sealed := ciphertext[:NonceSize], ciphertext[NonceSize:]
	plaintext, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, scerr.Crypto("decryption failed")
	}
	return plaintext, nil
}

// GenerateKey returns a fresh random AES-256 key.
func GenerateKey() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, scerr.Crypto("failed to generate key")
	}
	return key, nil
}

// Zero overwrites every byte of b with zero. Go has no destructors, so
// callers must invoke this explicitly at every point the key material's
// lifetime ends — mirroring the Rust reference's ZeroizeOnDrop.
func Zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
