// Package crypto provides the X25519 key material the secure transport
// layer needs to establish its shared Noise-IK tunnel.
//
// Example:
//
//	priv, err := crypto.ParseBase64Key(cfg.Root.PrivateKey)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	kp, err := crypto.FromPrivateKey(priv)
package crypto

import (
	"encoding/base64"
	"errors"
	"fmt"

	"golang.org/x/crypto/curve25519"
)

// ErrInvalidKeyLength is returned when a decoded key is not 32 bytes.
var ErrInvalidKeyLength = errors.New("crypto: key must be 32 bytes")

// ErrZeroKey is returned when a key consists entirely of zero bytes.
var ErrZeroKey = errors.New("crypto: key is all zeros")

// KeyPair is an X25519 static keypair.
type KeyPair struct {
	Private [32]byte
	Public  [32]byte
}

// ParseBase64Key decodes a base64-encoded 32-byte key, as used for
// root.privateKey and root.peerPublicKey in the configuration surface.
func ParseBase64Key(s string) ([32]byte, error) {
	var out [32]byte
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return out, fmt.Errorf("crypto: decode base64 key: %w", err)
	}
	if len(raw) != 32 {
		return out, ErrInvalidKeyLength
	}
	copy(out[:], raw)
	return out, nil
}

// FromPrivateKey derives the full keypair (including the public half)
// from a 32-byte X25519 private key.
func FromPrivateKey(private [32]byte) (*KeyPair, error) {
	if isZeroKey(private) {
		return nil, ErrZeroKey
	}

	var public [32]byte
	pub, err := curve25519.X25519(private[:], curve25519.Basepoint)
	if err != nil {
		return nil, fmt.Errorf("crypto: derive public key: %w", err)
	}
	copy(public[:], pub)

	return &KeyPair{Private: private, Public: public}, nil
}

func isZeroKey(key [32]byte) bool {
	for _, b := range key {
		if b != 0 {
			return false
		}
	}
	return true
}
