package crypto

import (
	"crypto/ed25519"
	"crypto/rand"

	"github.com/A3S-Lab/SafeClaw-sub000/internal/scerr"
	"golang.org/x/crypto/curve25519"
)

// PublicKey is an X25519 public key.
type PublicKey struct {
	bytes [32]byte
}

// PublicKeyFromBytes wraps a raw 32-byte X25519 public key.
func PublicKeyFromBytes(b [32]byte) PublicKey {
	return PublicKey{bytes: b}
}

// Bytes returns the raw public key bytes.
func (p PublicKey) Bytes() [32]byte {
	return p.bytes
}

// SharedSecret is an X25519 Diffie-Hellman output. Callers must call Zero
// once the secret has been consumed by key derivation.
type SharedSecret struct {
	bytes [32]byte
}

// Bytes returns the raw shared-secret bytes.
func (s SharedSecret) Bytes() [32]byte {
	return s.bytes
}

// Zero overwrites the shared secret's backing bytes.
func (s *SharedSecret) Zero() {
	for i := range s.bytes {
		s.bytes[i] = 0
	}
}

// EphemeralKeyPair is a one-shot X25519 key pair. DiffieHellman consumes the
// private scalar; a second call fails with a "key already consumed" error,
// matching the Rust reference's move-based forward-secrecy guarantee.
type EphemeralKeyPair struct {
	secret   *[32]byte
	public   PublicKey
	consumed bool
}

// GenerateEphemeralKeyPair creates a fresh X25519 ephemeral key pair.
func GenerateEphemeralKeyPair() (*EphemeralKeyPair, error) {
	var secret [32]byte
	if _, err := rand.Read(secret[:]); err != nil {
		return nil, scerr.Crypto("failed to generate ephemeral key")
	}

	var public [32]byte
	pub, err := curve25519.X25519(secret[:], curve25519.Basepoint)
	if err != nil {
		return nil, scerr.Crypto("failed to derive ephemeral public key")
	}
	copy(public[:], pub)

	return &EphemeralKeyPair{
		secret: &secret,
		public: PublicKeyFromBytes(public),
	}, nil
}

// PublicKeyOf returns the public half of the pair.
func (e *EphemeralKeyPair) PublicKeyOf() PublicKey {
	return e.public
}

// DiffieHellman performs X25519 key exchange, consuming the private scalar.
// Calling it a second time returns an error — the secret has already been
// taken, matching the Rust reference's `.take().ok_or(...)` pattern.
func (e *EphemeralKeyPair) DiffieHellman(their PublicKey) (SharedSecret, error) {
	if e.consumed || e.secret == nil {
		return SharedSecret{}, scerr.Crypto("ephemeral key already consumed")
	}

	theirBytes := their.Bytes()
	shared, err := curve25519.X25519(e.secret[:], theirBytes[:])
	if err != nil {
		return SharedSecret{}, scerr.Crypto("diffie-hellman failed")
	}

	Zero(e.secret[:])
	e.secret = nil
	e.consumed = true

	var out [32]byte
	copy(out[:], shared)
	return SharedSecret{bytes: out}, nil
}

// KeyPair is an Ed25519 signing key pair.
type KeyPair struct {
	signing ed25519.PrivateKey
}

// GenerateKeyPair creates a fresh Ed25519 signing key pair.
func GenerateKeyPair() (*KeyPair, error) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, scerr.Crypto("failed to generate signing key")
	}
	return &KeyPair{signing: priv}, nil
}

// Sign produces a 64-byte Ed25519 signature over message.
func (k *KeyPair) Sign(message []byte) []byte {
	return ed25519.Sign(k.signing, message)
}

// VerifyingKey returns the Ed25519 public key.
func (k *KeyPair) VerifyingKey() ed25519.PublicKey {
	return k.signing.Public().(ed25519.PublicKey)
}

// VerifyingKeyBytes returns the raw public key bytes.
func (k *KeyPair) VerifyingKeyBytes() []byte {
	return []byte(k.VerifyingKey())
}
