// Package identity generates key material and assigns client addresses.
// Everything here is pure computation; persistence belongs to the store.
package identity

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"golang.org/x/crypto/curve25519"
)

// KeyPair is a curve25519 keypair in the base64 form the tunnel tools use.
type KeyPair struct {
	PrivateKey string
	PublicKey  string
}

// GenerateKeyPair generates a fresh keypair. The private key is clamped per
// the WireGuard key format before the public key is derived.
func GenerateKeyPair() (KeyPair, error) {
	var priv [32]byte
	if _, err := rand.Read(priv[:]); err != nil {
		return KeyPair{}, fmt.Errorf("reading random key material: %w", err)
	}

	priv[0] &= 248
	priv[31] &= 127
	priv[31] |= 64

	var pub [32]byte
	curve25519.ScalarBaseMult(&pub, &priv)

	return KeyPair{
		PrivateKey: base64.StdEncoding.EncodeToString(priv[:]),
		PublicKey:  base64.StdEncoding.EncodeToString(pub[:]),
	}, nil
}

// GeneratePresharedKey generates a random preshared key. Unlike the keypair
// there is no structure to it, just 32 random bytes.
func GeneratePresharedKey() (string, error) {
	var psk [32]byte
	if _, err := rand.Read(psk[:]); err != nil {
		return "", fmt.Errorf("reading random key material: %w", err)
	}
	return base64.StdEncoding.EncodeToString(psk[:]), nil
}
