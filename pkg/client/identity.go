package client

import (
	"crypto/ecdsa"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ethereum/go-ethereum/crypto"
)

// GenerateKey creates a new account key.
func GenerateKey() (*ecdsa.PrivateKey, error) {
	return crypto.GenerateKey()
}

// LoadKey reads a hex-encoded account key written by SaveKey.
//
//	key, err := client.LoadKey(os.ExpandEnv("$HOME/.social/key.hex"))
func LoadKey(path string) (*ecdsa.PrivateKey, error) {
	key, err := crypto.LoadECDSA(path)
	if err != nil {
		return nil, fmt.Errorf("load key %q: %w", path, err)
	}
	return key, nil
}

// SaveKey writes key hex-encoded to path with owner-only permissions.
func SaveKey(path string, key *ecdsa.PrivateKey) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create key dir: %w", err)
	}
	if err := crypto.SaveECDSA(path, key); err != nil {
		return fmt.Errorf("save key %q: %w", path, err)
	}
	return nil
}

// Address returns the checksummed account address of key.
func Address(key *ecdsa.PrivateKey) string {
	return crypto.PubkeyToAddress(key.PublicKey).Hex()
}
