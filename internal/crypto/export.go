package crypto

import (
	"crypto/x509"
	"fmt"
	"os"

	"software.sslmate.com/src/go-pkcs12"
)

// ExportPKCS12 writes the private key and its certificate as a PKCS#12
// bundle with mode 0600. Only software keys can be exported; token keys
// never leave the token.
func ExportPKCS12(path string, signer Signer, certDER []byte, password string) error {
	soft, ok := signer.(*SoftwareSigner)
	if !ok {
		return fmt.Errorf("only software keys can be exported (token keys are not extractable)")
	}

	cert, err := x509.ParseCertificate(certDER)
	if err != nil {
		return fmt.Errorf("failed to parse certificate for export: %w", err)
	}

	data, err := pkcs12.Modern.Encode(soft.PrivateKey(), cert, nil, password)
	if err != nil {
		return fmt.Errorf("failed to encode PKCS#12 bundle: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write PKCS#12 bundle: %w", err)
	}
	return nil
}
