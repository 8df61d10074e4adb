// Package crypto provides the cryptographic provider for certificate
// generation: key pairs, signers, key storage backends (software PEM files
// and PKCS#11 tokens) and key hashing.
package crypto

import (
	"crypto"
	"encoding/asn1"
	"fmt"
)

// AlgorithmID identifies a key algorithm.
type AlgorithmID string

// Supported key algorithms. EFI binary signing is RSA with SHA-256; only the
// key size varies.
const (
	AlgRSA2048 AlgorithmID = "rsa-2048"
	AlgRSA4096 AlgorithmID = "rsa-4096"
)

// DefaultAlgorithm is used when no algorithm is requested.
const DefaultAlgorithm = AlgRSA2048

// algorithmInfo holds metadata about an algorithm.
type algorithmInfo struct {
	KeySizeBits  int
	SignatureOID asn1.ObjectIdentifier
	Hash         crypto.Hash
	Description  string
}

// oidSHA256WithRSA is the sha256WithRSAEncryption signature OID.
var oidSHA256WithRSA = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 1, 11}

// algorithms maps AlgorithmID to its metadata.
var algorithms = map[AlgorithmID]algorithmInfo{
	AlgRSA2048: {
		KeySizeBits:  2048,
		SignatureOID: oidSHA256WithRSA,
		Hash:         crypto.SHA256,
		Description:  "RSA 2048-bit with SHA-256",
	},
	AlgRSA4096: {
		KeySizeBits:  4096,
		SignatureOID: oidSHA256WithRSA,
		Hash:         crypto.SHA256,
		Description:  "RSA 4096-bit with SHA-256",
	},
}

// ParseAlgorithm parses an algorithm name.
func ParseAlgorithm(s string) (AlgorithmID, error) {
	alg := AlgorithmID(s)
	if !alg.IsValid() {
		return "", fmt.Errorf("unknown algorithm: %q (supported: rsa-2048, rsa-4096)", s)
	}
	return alg, nil
}

// IsValid reports whether the algorithm is supported.
func (a AlgorithmID) IsValid() bool {
	_, ok := algorithms[a]
	return ok
}

// KeySizeBits returns the modulus size in bits.
func (a AlgorithmID) KeySizeBits() int {
	return algorithms[a].KeySizeBits
}

// SignatureOID returns the OID of the signature scheme for this key type.
func (a AlgorithmID) SignatureOID() asn1.ObjectIdentifier {
	return algorithms[a].SignatureOID
}

// Hash returns the digest used by the signature scheme.
func (a AlgorithmID) Hash() crypto.Hash {
	return algorithms[a].Hash
}

// Description returns a human-readable description.
func (a AlgorithmID) Description() string {
	if info, ok := algorithms[a]; ok {
		return info.Description
	}
	return string(a)
}
