// Package identity manages the long-lived Ed25519 keypairs used by
// gateways, nodes, and validators to sign and verify canonical payloads.
package identity

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"strings"
)

// Identity is a long-lived asymmetric keypair. Public is the stable
// 32-byte public key; external interfaces always carry its base64 form.
type Identity struct {
	Public  ed25519.PublicKey
	Private ed25519.PrivateKey
}

// Generate creates a fresh random keypair.
func Generate() (*Identity, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("identity: generate: %w", err)
	}
	return &Identity{Public: pub, Private: priv}, nil
}

// LoadOrCreate reads a base64-encoded private key from path, or creates one
// with owner-only (0600) permissions if the file does not exist. The file
// holds a single line: base64 of the 32-byte ed25519 seed.
func LoadOrCreate(path string) (*Identity, error) {
	b, err := os.ReadFile(path)
	if err == nil {
		seed, decErr := base64.StdEncoding.DecodeString(strings.TrimSpace(string(b)))
		if decErr != nil {
			return nil, fmt.Errorf("%w: decode %s: %v", ErrInvalidKey, path, decErr)
		}
		if len(seed) != ed25519.SeedSize {
			return nil, fmt.Errorf("%w: %s: expected %d-byte seed, got %d", ErrInvalidKey, path, ed25519.SeedSize, len(seed))
		}
		priv := ed25519.NewKeyFromSeed(seed)
		return &Identity{Public: priv.Public().(ed25519.PublicKey), Private: priv}, nil
	}
	if !os.IsNotExist(err) {
		return nil, fmt.Errorf("identity: read %s: %w", path, err)
	}

	id, genErr := Generate()
	if genErr != nil {
		return nil, genErr
	}
	seed := id.Private.Seed()
	line := base64.StdEncoding.EncodeToString(seed) + "\n"
	if err := os.WriteFile(path, []byte(line), 0o600); err != nil {
		return nil, fmt.Errorf("identity: write %s: %w", path, err)
	}
	return id, nil
}

// Sign signs msg and returns the base64-encoded signature.
func (id *Identity) Sign(msg []byte) string {
	sig := ed25519.Sign(id.Private, msg)
	return base64.StdEncoding.EncodeToString(sig)
}

// PublicKeyB64 returns the base64 form of the public key for wire use.
func (id *Identity) PublicKeyB64() string {
	return base64.StdEncoding.EncodeToString(id.Public)
}

// DerivePublic returns the base64-encoded public key derived from a
// private key.
func DerivePublic(priv ed25519.PrivateKey) string {
	return base64.StdEncoding.EncodeToString(priv.Public().(ed25519.PublicKey))
}

// Sign signs msg with a raw private key and returns a base64 signature.
func Sign(priv ed25519.PrivateKey, msg []byte) string {
	return base64.StdEncoding.EncodeToString(ed25519.Sign(priv, msg))
}

// Verify checks a base64-encoded public key and signature against msg.
func Verify(pubB64 string, msg []byte, sigB64 string) bool {
	pub, err := base64.StdEncoding.DecodeString(pubB64)
	if err != nil || len(pub) != ed25519.PublicKeySize {
		return false
	}
	sig, err := base64.StdEncoding.DecodeString(sigB64)
	if err != nil || len(sig) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(pub), msg, sig)
}

// ErrInvalidKey is returned when a base64 key fails to decode to the
// expected Ed25519 size.
var ErrInvalidKey = errors.New("identity: invalid key encoding")
