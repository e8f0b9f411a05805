package protocol

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"github.com/google/uuid"
)

// Identity is the Ed25519 keypair a Core or Broker generates once at
// startup; it backs the node's self-signed TLS certificate and offers
// Sign/Verify helpers. The cmd/ processes do not sign their
// CMD_REG_FED / CMD_REG_BROKER messages, and parents do not verify a
// signature before admitting a child.
type Identity struct {
	Public  ed25519.PublicKey
	private ed25519.PrivateKey
}

// GenerateIdentity creates a fresh Ed25519 keypair.
func GenerateIdentity() (Identity, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return Identity{}, NewError(SystemFailure, "generating node identity", err)
	}
	return Identity{Public: pub, private: priv}, nil
}

// Sign signs an arbitrary registration payload (the ActionMessage's
// encoded body, typically) with the node's private key.
func (id Identity) Sign(payload []byte) []byte {
	return ed25519.Sign(id.private, payload)
}

// Verify checks a signature produced by Sign against a public key
// encoded the way EncodePublicKey produces.
func Verify(pubKeyB64 string, payload, signature []byte) bool {
	pub, err := DecodePublicKey(pubKeyB64)
	if err != nil {
		return false
	}
	return ed25519.Verify(pub, payload, signature)
}

// EncodePublicKey encodes a public key to base64 for transport inside
// an ActionMessage's StringData.
func EncodePublicKey(pub ed25519.PublicKey) string {
	return base64.StdEncoding.EncodeToString(pub)
}

// DecodePublicKey decodes a base64-encoded Ed25519 public key.
func DecodePublicKey(encoded string) (ed25519.PublicKey, error) {
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("invalid public key encoding: %w", err)
	}
	if len(data) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("invalid public key size: got %d, want %d", len(data), ed25519.PublicKeySize)
	}
	return ed25519.PublicKey(data), nil
}

// EncodeSignature base64-encodes a raw Ed25519 signature for transport
// inside an ActionMessage's StringData.
func EncodeSignature(sig []byte) string {
	return base64.StdEncoding.EncodeToString(sig)
}

// DecodeSignature reverses EncodeSignature.
func DecodeSignature(encoded string) ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("invalid signature encoding: %w", err)
	}
	return data, nil
}

// NewNonce generates a collision-resistant token; internal/query uses
// it as the correlation id returned for §6 global_flush. A plain time.Now().UnixNano() nonce, as the reference
// transport used, collides when many federates join in the same
// nanosecond tick during a large federation's simultaneous startup.
func NewNonce() string {
	return uuid.NewString()
}
