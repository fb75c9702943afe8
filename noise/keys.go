package noise

import (
	"crypto/rand"
	"errors"
	"fmt"

	"golang.org/x/crypto/curve25519"
)

// ErrInvalidKey indicates a private key that cannot be used for Curve25519.
var ErrInvalidKey = errors.New("invalid private key")

// KeyPair is a Curve25519 static key pair.
type KeyPair struct {
	Public  [32]byte
	Private [32]byte
}

// GenerateKeyPair creates a new random key pair.
func GenerateKeyPair() (*KeyPair, error) {
	var private [32]byte
	if _, err := rand.Read(private[:]); err != nil {
		return nil, fmt.Errorf("failed to read random key: %w", err)
	}
	kp, err := KeyPairFromPrivate(private)
	ZeroBytes(private[:])
	return kp, err
}

// KeyPairFromPrivate derives the public key for an existing private key.
func KeyPairFromPrivate(private [32]byte) (*KeyPair, error) {
	if isZeroKey(private) {
		return nil, fmt.Errorf("%w: all zeros", ErrInvalidKey)
	}

	public, err := curve25519.X25519(private[:], curve25519.Basepoint)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}

	kp := &KeyPair{Private: private}
	copy(kp.Public[:], public)
	return kp, nil
}

// ZeroBytes overwrites b with zeros.
func ZeroBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

func isZeroKey(key [32]byte) bool {
	for _, b := range key {
		if b != 0 {
			return false
		}
	}
	return true
}
