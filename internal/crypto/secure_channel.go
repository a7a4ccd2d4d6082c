package crypto

import (
	"crypto/sha256"
	"fmt"
	"io"
	"sync"

	"github.com/A3S-Lab/SafeClaw-sub000/internal/scerr"
	"golang.org/x/crypto/hkdf"
)

// protocolVersion is bound into the HKDF info string to prevent
// cross-version key reuse.
const protocolVersion = "safeclaw-session-v1"

// ChannelState is the secure channel's handshake state.
type ChannelState int

const (
	// StateInitial is the state before any handshake has started.
	StateInitial ChannelState = iota
	// StateHandshaking means the local side has sent its public key.
	StateHandshaking
	// StateEstablished means a session key has been derived.
	StateEstablished
	// StateClosed means the channel has been torn down.
	StateClosed
)

func (s ChannelState) String() string {
	switch s {
	case StateInitial:
		return "initial"
	case StateHandshaking:
		return "handshaking"
	case StateEstablished:
		return "established"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// HandshakeInit is returned by StartHandshake for transmission to the peer.
type HandshakeInit struct {
	ChannelID string
	PublicKey []byte
}

// SecureChannel is a forward-secret encrypted channel atop an X25519
// ephemeral handshake and AES-256-GCM. Session keys are zeroized on close.
type SecureChannel struct {
	mu             sync.RWMutex
	state          ChannelState
	sessionKey     []byte
	localEphemeral *EphemeralKeyPair
	localPublicKey [32]byte
	channelID      string
}

// NewSecureChannel creates a channel with a fresh ephemeral key pair.
func NewSecureChannel(channelID string) (*SecureChannel, error) {
	ephemeral, err := GenerateEphemeralKeyPair()
	if err != nil {
		return nil, err
	}

	return &SecureChannel{
		state:          StateInitial,
		localEphemeral: ephemeral,
		localPublicKey: ephemeral.PublicKeyOf().Bytes(),
		channelID:      channelID,
	}, nil
}

// ChannelID returns the channel identifier.
func (c *SecureChannel) ChannelID() string {
	return c.channelID
}

// LocalPublicKey returns the local ephemeral public key.
func (c *SecureChannel) LocalPublicKey() PublicKey {
	return PublicKeyFromBytes(c.localPublicKey)
}

// State returns the current channel state.
func (c *SecureChannel) State() ChannelState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// StartHandshake transitions Initial -> Handshaking and returns the local
// public key to send to the peer. A second call fails.
func (c *SecureChannel) StartHandshake() (HandshakeInit, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateInitial {
		return HandshakeInit{}, scerr.Crypto("channel not in initial state")
	}
	c.state = StateHandshaking

	return HandshakeInit{
		ChannelID: c.channelID,
		PublicKey: append([]byte(nil), c.localPublicKey[:]...),
	}, nil
}

// CompleteHandshake performs the X25519 exchange against the peer's public
// key, derives the session key via HKDF-SHA256, and transitions to
// Established. The local ephemeral secret is consumed (forward secrecy).
func (c *SecureChannel) CompleteHandshake(remotePublicKey [32]byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateHandshaking {
		return scerr.Crypto("channel not in handshaking state")
	}
	if c.localEphemeral == nil {
		return scerr.Crypto("ephemeral key already consumed")
	}

	shared, err := c.localEphemeral.DiffieHellman(PublicKeyFromBytes(remotePublicKey))
	if err != nil {
		return err
	}

	sessionKey := deriveSessionKey(shared, c.localPublicKey, remotePublicKey, c.channelID)
	shared.Zero()

	c.sessionKey = sessionKey
	c.localEphemeral = nil
	c.state = StateEstablished

	return nil
}

// Encrypt seals plaintext under the established session key.
func (c *SecureChannel) Encrypt(plaintext []byte) ([]byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.state != StateEstablished {
		return nil, scerr.Crypto("channel not established")
	}
	if c.sessionKey == nil {
		return nil, scerr.Crypto("no session key")
	}
	return Encrypt(c.sessionKey, plaintext)
}

// Decrypt opens ciphertext under the established session key.
func (c *SecureChannel) Decrypt(ciphertext []byte) ([]byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.state != StateEstablished {
		return nil, scerr.Crypto("channel not established")
	}
	if c.sessionKey == nil {
		return nil, scerr.Crypto("no session key")
	}
	return Decrypt(c.sessionKey, ciphertext)
}

// Close zeroizes the session key and transitions to Closed.
func (c *SecureChannel) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.state = StateClosed
	if c.sessionKey != nil {
		Zero(c.sessionKey)
		c.sessionKey = nil
	}
}

// SecureChannelBuilder constructs a SecureChannel, requiring a channel ID.
type SecureChannelBuilder struct {
	channelID string
	hasID     bool
}

// NewSecureChannelBuilder returns an empty builder.
func NewSecureChannelBuilder() *SecureChannelBuilder {
	return &SecureChannelBuilder{}
}

// ChannelID sets the channel identifier.
func (b *SecureChannelBuilder) ChannelID(id string) *SecureChannelBuilder {
	b.channelID = id
	b.hasID = true
	return b
}

// Build constructs the SecureChannel, failing if no channel ID was set.
func (b *SecureChannelBuilder) Build() (*SecureChannel, error) {
	if !b.hasID {
		return nil, scerr.Crypto("channel ID required")
	}
	return NewSecureChannel(b.channelID)
}

// deriveSessionKey derives a 32-byte session key via HKDF-SHA256 (RFC 5869).
//
//   - IKM: the X25519 shared secret
//   - Salt: sorted concatenation of both public keys, so both sides derive
//     the same salt regardless of which one is "local"
//   - Info: protocol version + channel ID, binding the key to this session
func deriveSessionKey(shared SharedSecret, localPub, remotePub [32]byte, channelID string) []byte {
	var salt []byte
	if lessBytes(localPub[:], remotePub[:]) {
		salt = append(append([]byte(nil), localPub[:]...), remotePub[:]...)
	} else {
		salt = append(append([]byte(nil), remotePub[:]...), localPub[:]...)
	}

	secretBytes := shared.Bytes()
	info := fmt.Sprintf("%s:%s", protocolVersion, channelID)

	reader := hkdf.New(sha256.New, secretBytes[:], salt, []byte(info))
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(reader, key); err != nil {
		// HKDF expand can only fail if the output is too long for the
		// underlying hash, which never happens at a fixed 32-byte output.
		panic("hkdf expand failed: invalid output length")
	}
	return key
}

func lessBytes(a, b []byte) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}
