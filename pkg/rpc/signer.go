package rpc

import (
	"crypto/ed25519"
	"encoding/hex"
	"fmt"
	"strings"
)

// KeySigner signs submissions with an ed25519 key derived from a hex seed.
type KeySigner struct {
	address string
	key     ed25519.PrivateKey
}

func NewKeySigner(address, hexSeed string) (*KeySigner, error) {
	if address == "" {
		return nil, fmt.Errorf("signer address is required")
	}
	seed := strings.TrimPrefix(strings.TrimSpace(hexSeed), "0x")
	raw, err := hex.DecodeString(seed)
	if err != nil {
		return nil, fmt.Errorf("decode signer seed: %w", err)
	}
	if len(raw) != ed25519.SeedSize {
		return nil, fmt.Errorf("signer seed must be %d bytes, got %d", ed25519.SeedSize, len(raw))
	}
	return &KeySigner{address: address, key: ed25519.NewKeyFromSeed(raw)}, nil
}

func (s *KeySigner) Address() string { return s.address }

func (s *KeySigner) Sign(payload []byte) ([]byte, error) {
	return ed25519.Sign(s.key, payload), nil
}
