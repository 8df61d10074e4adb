package crypto

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"io"
	"os"
)

// SoftwareSigner implements Signer using an in-memory RSA private key that
// can be serialized to and from PEM files.
type SoftwareSigner struct {
	alg  AlgorithmID
	priv *rsa.PrivateKey
}

// Ensure SoftwareSigner implements Signer.
var _ Signer = (*SoftwareSigner)(nil)

// NewSoftwareSigner creates a SoftwareSigner from a key pair.
func NewSoftwareSigner(kp *KeyPair) (*SoftwareSigner, error) {
	if kp == nil {
		return nil, fmt.Errorf("key pair is nil")
	}
	priv, ok := kp.PrivateKey.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("unsupported private key type: %T", kp.PrivateKey)
	}
	return &SoftwareSigner{alg: kp.Algorithm, priv: priv}, nil
}

// GenerateSoftwareSigner generates a new key pair and returns a SoftwareSigner.
func GenerateSoftwareSigner(alg AlgorithmID) (*SoftwareSigner, error) {
	kp, err := GenerateKeyPair(alg)
	if err != nil {
		return nil, err
	}
	return NewSoftwareSigner(kp)
}

// Algorithm returns the algorithm used by this signer.
func (s *SoftwareSigner) Algorithm() AlgorithmID {
	return s.alg
}

// Public returns the public key.
func (s *SoftwareSigner) Public() crypto.PublicKey {
	return s.priv.Public()
}

// PrivateKey returns the underlying private key, for key export.
func (s *SoftwareSigner) PrivateKey() crypto.PrivateKey {
	return s.priv
}

// Sign signs a digest with the private key using PKCS#1 v1.5.
func (s *SoftwareSigner) Sign(random io.Reader, digest []byte, opts crypto.SignerOpts) ([]byte, error) {
	hash := crypto.SHA256
	if opts != nil {
		hash = opts.HashFunc()
	}
	return rsa.SignPKCS1v15(random, s.priv, hash, digest)
}

// SavePrivateKey writes the private key to a PEM file with mode 0600.
// A non-empty passphrase encrypts the PEM block with AES-256.
func (s *SoftwareSigner) SavePrivateKey(path string, passphrase []byte) error {
	keyBytes, err := x509.MarshalPKCS8PrivateKey(s.priv)
	if err != nil {
		return fmt.Errorf("failed to marshal private key: %w", err)
	}

	block := &pem.Block{Type: "PRIVATE KEY", Bytes: keyBytes}
	if len(passphrase) > 0 {
		block, err = x509.EncryptPEMBlock(rand.Reader, block.Type, block.Bytes, passphrase, x509.PEMCipherAES256) //nolint:staticcheck // Deprecated but still used
		if err != nil {
			return fmt.Errorf("failed to encrypt private key: %w", err)
		}
	}

	if err := os.WriteFile(path, pem.EncodeToMemory(block), 0600); err != nil {
		return fmt.Errorf("failed to write private key: %w", err)
	}
	return nil
}

// LoadPrivateKey loads an RSA private key from a PEM file.
func LoadPrivateKey(path string, passphrase []byte) (*SoftwareSigner, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read key file: %w", err)
	}

	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("no PEM block found in %s", path)
	}

	keyBytes := block.Bytes
	if x509.IsEncryptedPEMBlock(block) { //nolint:staticcheck
		keyBytes, err = x509.DecryptPEMBlock(block, passphrase) //nolint:staticcheck
		if err != nil {
			return nil, fmt.Errorf("failed to decrypt private key: %w", err)
		}
	}

	priv, err := parseRSAPrivateKey(block.Type, keyBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}

	return &SoftwareSigner{alg: algorithmForKey(priv), priv: priv}, nil
}

// parseRSAPrivateKey handles both PKCS#8 and legacy PKCS#1 blocks.
func parseRSAPrivateKey(pemType string, keyBytes []byte) (*rsa.PrivateKey, error) {
	switch pemType {
	case "RSA PRIVATE KEY":
		return x509.ParsePKCS1PrivateKey(keyBytes)
	default:
		key, err := x509.ParsePKCS8PrivateKey(keyBytes)
		if err != nil {
			return nil, err
		}
		priv, ok := key.(*rsa.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("unsupported key type %T (only RSA keys can sign EFI certificates)", key)
		}
		return priv, nil
	}
}

// algorithmForKey maps a key's modulus size to the closest AlgorithmID.
func algorithmForKey(priv *rsa.PrivateKey) AlgorithmID {
	if priv.N.BitLen() > 3072 {
		return AlgRSA4096
	}
	return AlgRSA2048
}

// LoadPublicKey reads a DER-encoded SubjectPublicKeyInfo from a file. Both
// raw DER and PEM ("PUBLIC KEY") files are accepted.
func LoadPublicKey(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read public key file: %w", err)
	}

	if block, _ := pem.Decode(data); block != nil {
		if block.Type != "PUBLIC KEY" {
			return nil, fmt.Errorf("unexpected PEM type %q in %s, want PUBLIC KEY", block.Type, path)
		}
		data = block.Bytes
	}

	// Round-trip through the parser so malformed input fails here, with the
	// file name, rather than deep in certificate assembly.
	if _, err := x509.ParsePKIXPublicKey(data); err != nil {
		return nil, fmt.Errorf("invalid public key in %s: %w", path, err)
	}

	return data, nil
}
