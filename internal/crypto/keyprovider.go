package crypto

import (
	"os"
	"strings"
)

// KeyProviderType identifies the key storage backend.
type KeyProviderType string

const (
	// KeyProviderTypeSoftware uses PEM key files on disk.
	KeyProviderTypeSoftware KeyProviderType = "software"

	// KeyProviderTypePKCS11 uses a PKCS#11 token.
	KeyProviderTypePKCS11 KeyProviderType = "pkcs11"
)

// KeyStorageConfig holds configuration for key storage and retrieval for
// both backends.
type KeyStorageConfig struct {
	// Type selects the backend ("software" or "pkcs11").
	Type KeyProviderType

	// Software key storage
	KeyPath    string
	Passphrase string

	// PKCS#11 token storage
	PKCS11Lib      string
	PKCS11Token    string
	PKCS11Pin      string
	PKCS11KeyLabel string
	PKCS11KeyID    string
}

// KeyProvider is the unified interface over key storage backends. The
// provider handle is acquired by the command layer, passed into the
// generation pipeline, and released with Close on every exit path.
type KeyProvider interface {
	// Load finds an existing signing key. For software keys this reads a
	// PEM file; for tokens it opens a session and looks the key up by
	// label.
	Load(cfg KeyStorageConfig) (Signer, error)

	// Generate creates a new key, stores it, and returns a Signer.
	Generate(alg AlgorithmID, cfg KeyStorageConfig) (Signer, error)

	// Close releases sessions and other backend resources.
	Close() error
}

// NewKeyProvider creates a KeyProvider for the configured backend. An empty
// type defaults to software storage.
func NewKeyProvider(cfg KeyStorageConfig) KeyProvider {
	switch cfg.Type {
	case KeyProviderTypePKCS11:
		return NewPKCS11KeyProvider()
	default:
		return NewSoftwareKeyProvider()
	}
}

// ResolvePassphrase resolves a passphrase that may use "env:VAR_NAME"
// indirection, so secrets can stay out of argv.
func ResolvePassphrase(passphrase string) []byte {
	if passphrase == "" {
		return nil
	}
	if rest, ok := strings.CutPrefix(passphrase, "env:"); ok {
		return []byte(os.Getenv(rest))
	}
	return []byte(passphrase)
}
