package identity

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
	"path/filepath"
)

const (
	sessionKeyFile = "session.key"
	sessionKeyBits = 2048
)

// KeyManager manages the RSA key that signs session tokens. The key is
// created on first run and reloaded on later starts, so sessions survive a
// node restart.
type KeyManager struct {
	dir string
	key *rsa.PrivateKey
}

// NewKeyManager returns a KeyManager that stores its key in dir.
func NewKeyManager(dir string) *KeyManager {
	return &KeyManager{dir: dir}
}

// LoadOrCreate loads the key from disk if it exists; creates a new one otherwise.
func (m *KeyManager) LoadOrCreate() error {
	if err := m.Load(); err == nil {
		return nil
	}
	return m.Create()
}

// Load reads an existing key from the configured directory.
func (m *KeyManager) Load() error {
	keyPEM, err := os.ReadFile(filepath.Join(m.dir, sessionKeyFile))
	if err != nil {
		return fmt.Errorf("read session key: %w", err)
	}
	block, _ := pem.Decode(keyPEM)
	if block == nil {
		return fmt.Errorf("session key: no PEM block")
	}
	key, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	if err != nil {
		return fmt.Errorf("parse session key: %w", err)
	}
	m.key = key
	return nil
}

// Create generates a new key, saves it to disk, and activates it.
func (m *KeyManager) Create() error {
	if err := os.MkdirAll(m.dir, 0o700); err != nil {
		return fmt.Errorf("create key dir %q: %w", m.dir, err)
	}
	key, err := rsa.GenerateKey(rand.Reader, sessionKeyBits)
	if err != nil {
		return fmt.Errorf("generate session key: %w", err)
	}
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})
	if err := os.WriteFile(filepath.Join(m.dir, sessionKeyFile), keyPEM, 0o600); err != nil {
		return fmt.Errorf("write session key: %w", err)
	}
	m.key = key
	return nil
}

// Key returns the active key, or nil before Load/Create.
func (m *KeyManager) Key() *rsa.PrivateKey { return m.key }
