// Package cli holds small file helpers shared by the command layer.
package cli

import (
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
)

// LoadCertFromPath loads a certificate from a PEM or DER file.
func LoadCertFromPath(path string) (*x509.Certificate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read certificate file: %w", err)
	}

	der := data
	if block, _ := pem.Decode(data); block != nil {
		if block.Type != "CERTIFICATE" {
			return nil, fmt.Errorf("unexpected PEM type %q in %s, want CERTIFICATE", block.Type, path)
		}
		der = block.Bytes
	}

	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, fmt.Errorf("failed to parse certificate: %w", err)
	}

	return cert, nil
}

// WriteFileOrRemove writes data to path with the given mode. If the write
// fails, the partially written file is removed before the error is
// returned, so a failed run never leaves a truncated artifact behind.
func WriteFileOrRemove(path string, data []byte, mode os.FileMode) error {
	if err := os.WriteFile(path, data, mode); err != nil {
		_ = os.Remove(path)
		return fmt.Errorf("could not write to %s: %w", path, err)
	}
	return nil
}
