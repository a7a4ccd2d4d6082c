package crypto

import (
	"crypto/ed25519"
	"testing"
)

func TestDiffieHellmanAgreement(t *testing.T) {
	a, err := GenerateEphemeralKeyPair()
	if err != nil {
		t.Fatalf("generate a: %v", err)
	}
	b, err := GenerateEphemeralKeyPair()
	if err != nil {
		t.Fatalf("generate b: %v", err)
	}

	sharedA, err := a.DiffieHellman(b.PublicKeyOf())
	if err != nil {
		t.Fatalf("dh a: %v", err)
	}
	sharedB, err := b.DiffieHellman(a.PublicKeyOf())
	if err != nil {
		t.Fatalf("dh b: %v", err)
	}

	if sharedA.Bytes() != sharedB.Bytes() {
		t.Fatal("shared secrets do not match")
	}
}

func TestEphemeralSecretConsumedOnce(t *testing.T) {
	a, _ := GenerateEphemeralKeyPair()
	b, _ := GenerateEphemeralKeyPair()

	if _, err := a.DiffieHellman(b.PublicKeyOf()); err != nil {
		t.Fatalf("first dh: %v", err)
	}
	if _, err := a.DiffieHellman(b.PublicKeyOf()); err == nil {
		t.Fatal("expected second diffie-hellman to fail (secret already consumed)")
	}
}

func TestSigningRoundTrip(t *testing.T) {
	kp, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("generate signing key: %v", err)
	}

	msg := []byte("attest me")
	sig := kp.Sign(msg)
	if len(sig) != 64 {
		t.Fatalf("expected 64-byte signature, got %d", len(sig))
	}

	if !ed25519.Verify(kp.VerifyingKey(), msg, sig) {
		t.Fatal("signature failed to verify")
	}
}

func TestPublicKeyRoundTrip(t *testing.T) {
	kp, _ := GenerateEphemeralKeyPair()
	bytes := kp.PublicKeyOf().Bytes()
	roundTripped := PublicKeyFromBytes(bytes)
	if roundTripped.Bytes() != bytes {
		t.Fatal("public key roundtrip mismatch")
	}
}
