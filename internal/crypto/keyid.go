package crypto

import (
	"crypto"
	"crypto/sha1" //nolint:gosec // Key IDs are SHA-1 by convention, not a security boundary.
	"crypto/x509"
	"fmt"
)

// KeyID computes the key hash linking certificates in a chain: a SHA-1
// digest over the DER-encoded SubjectPublicKeyInfo. The result is the bare
// hash; extension builders add their own OCTET STRING or SEQUENCE wrappers.
func KeyID(spkiDER []byte) []byte {
	sum := sha1.Sum(spkiDER)
	return sum[:]
}

// EncodePublicKey DER-encodes a public key as SubjectPublicKeyInfo.
func EncodePublicKey(pub crypto.PublicKey) ([]byte, error) {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return nil, fmt.Errorf("failed to encode public key: %w", err)
	}
	return der, nil
}
