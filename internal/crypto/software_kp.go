package crypto

import (
	"fmt"
)

// SoftwareKeyProvider implements KeyProvider for keys stored as PEM files on
// disk.
type SoftwareKeyProvider struct{}

// Ensure SoftwareKeyProvider implements KeyProvider.
var _ KeyProvider = (*SoftwareKeyProvider)(nil)

// NewSoftwareKeyProvider creates a new SoftwareKeyProvider.
func NewSoftwareKeyProvider() *SoftwareKeyProvider {
	return &SoftwareKeyProvider{}
}

// Load loads a private key from disk and returns a Signer.
func (m *SoftwareKeyProvider) Load(cfg KeyStorageConfig) (Signer, error) {
	if cfg.Type != KeyProviderTypeSoftware && cfg.Type != "" {
		return nil, fmt.Errorf("software key provider cannot load %s keys", cfg.Type)
	}
	if cfg.KeyPath == "" {
		return nil, fmt.Errorf("key path is required for software key storage")
	}

	return LoadPrivateKey(cfg.KeyPath, ResolvePassphrase(cfg.Passphrase))
}

// Generate generates a new key pair, saves it to disk, and returns a Signer.
func (m *SoftwareKeyProvider) Generate(alg AlgorithmID, cfg KeyStorageConfig) (Signer, error) {
	if cfg.Type != KeyProviderTypeSoftware && cfg.Type != "" {
		return nil, fmt.Errorf("software key provider cannot generate %s keys", cfg.Type)
	}
	if cfg.KeyPath == "" {
		return nil, fmt.Errorf("key path is required for software key storage")
	}

	signer, err := GenerateSoftwareSigner(alg)
	if err != nil {
		return nil, fmt.Errorf("failed to generate %s key: %w", alg, err)
	}

	if err := signer.SavePrivateKey(cfg.KeyPath, ResolvePassphrase(cfg.Passphrase)); err != nil {
		return nil, fmt.Errorf("failed to save private key: %w", err)
	}

	return signer, nil
}

// Close is a no-op for software keys.
func (m *SoftwareKeyProvider) Close() error {
	return nil
}
