//go:build !cgo

// Package crypto provides cryptographic primitives for certificate
// generation. This file provides stub implementations when CGO is not
// available; PKCS#11 token support requires CGO.
package crypto

import (
	"crypto"
	"fmt"
	"io"
)

// errNoCGO is returned when PKCS#11 operations are attempted without CGO.
var errNoCGO = fmt.Errorf("token support requires CGO (build with CGO_ENABLED=1)")

// PKCS11Signer implements Signer backed by a PKCS#11 token. This stub is
// used when CGO is not available.
type PKCS11Signer struct{}

// Ensure PKCS11Signer implements Signer.
var _ Signer = (*PKCS11Signer)(nil)

// Algorithm returns the algorithm used by this signer.
func (s *PKCS11Signer) Algorithm() AlgorithmID {
	return ""
}

// Public returns the public key.
func (s *PKCS11Signer) Public() crypto.PublicKey {
	return nil
}

// Sign always fails without CGO.
func (s *PKCS11Signer) Sign(_ io.Reader, _ []byte, _ crypto.SignerOpts) ([]byte, error) {
	return nil, errNoCGO
}

// PKCS11KeyProvider implements KeyProvider for PKCS#11 tokens. This stub is
// used when CGO is not available.
type PKCS11KeyProvider struct{}

// Ensure PKCS11KeyProvider implements KeyProvider.
var _ KeyProvider = (*PKCS11KeyProvider)(nil)

// NewPKCS11KeyProvider creates a new PKCS11KeyProvider.
func NewPKCS11KeyProvider() *PKCS11KeyProvider {
	return &PKCS11KeyProvider{}
}

// Load always fails without CGO.
func (p *PKCS11KeyProvider) Load(_ KeyStorageConfig) (Signer, error) {
	return nil, errNoCGO
}

// Generate always fails without CGO.
func (p *PKCS11KeyProvider) Generate(_ AlgorithmID, _ KeyStorageConfig) (Signer, error) {
	return nil, errNoCGO
}

// Close is a no-op without CGO.
func (p *PKCS11KeyProvider) Close() error {
	return nil
}
