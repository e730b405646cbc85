package eth

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"
)

var ErrInvalidPrivateKey = errors.New("eth: invalid private key")

// ParsePrivateKeyHex parses a secp256k1 private key given as 32 bytes of hex, 0x prefix optional.
// Errors never include key material.
func ParsePrivateKeyHex(s string) (*ecdsa.PrivateKey, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "0x")
	if s == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidPrivateKey)
	}
	key, err := crypto.HexToECDSA(s)
	if err != nil {
		return nil, ErrInvalidPrivateKey
	}
	return key, nil
}

// LoadSigner returns the signer for the hex key raw. name only labels errors, typically the
// secret or variable the key came from.
func LoadSigner(name, raw string) (*LocalSigner, error) {
	key, err := ParsePrivateKeyHex(raw)
	if err != nil {
		return nil, fmt.Errorf("key %s: %w", name, err)
	}
	return NewLocalSigner(key), nil
}
