package main

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"software.sslmate.com/src/go-pkcs12"

	"github.com/efisign/efikeygen/internal/crypto"
)

// loadCertDER parses the DER certificate the command wrote.
func loadCertDER(t *testing.T, path string) *x509.Certificate {
	t.Helper()
	der, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read certificate: %v", err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		t.Fatalf("output certificate does not parse: %v", err)
	}
	return cert
}

// createTestCA runs the command once to produce a CA certificate and key.
func createTestCA(t *testing.T, dir string) (certPath, keyPath string) {
	t.Helper()
	resetGenerateFlags()

	certPath = filepath.Join(dir, "ca.cer")
	keyPath = filepath.Join(dir, "ca.key")
	_, err := executeCommand(rootCmd,
		"--ca", "--common-name", "Test EFI CA", "--serial", "1",
		"--keyout", keyPath, "--output", certPath)
	if err != nil {
		t.Fatalf("failed to create test CA: %v", err)
	}
	return certPath, keyPath
}

func TestGenerate_SelfSignedCA(t *testing.T) {
	resetGenerateFlags()
	dir := t.TempDir()
	certPath := filepath.Join(dir, "ca.cer")
	keyPath := filepath.Join(dir, "ca.key")

	// No --self-sign: a CA without an issuer signs itself.
	out, err := executeCommand(rootCmd,
		"--ca", "--common-name", "Test EFI CA", "--serial", "1",
		"--keyout", keyPath, "--output", certPath)
	if err != nil {
		t.Fatalf("command failed: %v", err)
	}
	if !strings.Contains(out, "Certificate written to") {
		t.Errorf("output missing confirmation: %q", out)
	}

	cert := loadCertDER(t, certPath)
	if !cert.IsCA {
		t.Error("certificate is not a CA")
	}
	if cert.Subject.CommonName != "Test EFI CA" {
		t.Errorf("CN = %q", cert.Subject.CommonName)
	}
	if cert.SerialNumber.Cmp(big.NewInt(1)) != 0 {
		t.Errorf("serial = %s, want 1", cert.SerialNumber)
	}
	if err := cert.CheckSignature(x509.SHA256WithRSA, cert.RawTBSCertificate, cert.Signature); err != nil {
		t.Errorf("self-signature does not verify: %v", err)
	}

	if _, err := crypto.LoadPrivateKey(keyPath, nil); err != nil {
		t.Errorf("saved key does not load: %v", err)
	}
}

func TestGenerate_IssuedCertificate(t *testing.T) {
	dir := t.TempDir()
	caCert, caKey := createTestCA(t, dir)

	resetGenerateFlags()
	leafPath := filepath.Join(dir, "leaf.cer")
	leafKey := filepath.Join(dir, "leaf.key")
	_, err := executeCommand(rootCmd,
		"--common-name", "Kernel signing key", "--serial", "2",
		"--url", "https://example.com/ca.cer",
		"--signer-cert", caCert, "--signer-key", caKey,
		"--keyout", leafKey, "--output", leafPath)
	if err != nil {
		t.Fatalf("command failed: %v", err)
	}

	leaf := loadCertDER(t, leafPath)
	ca := loadCertDER(t, caCert)

	if err := leaf.CheckSignatureFrom(ca); err != nil {
		t.Errorf("leaf signature does not verify against the CA: %v", err)
	}
	if leaf.IsCA {
		t.Error("leaf must not be a CA")
	}
	if leaf.Issuer.CommonName != "Test EFI CA" {
		t.Errorf("leaf issuer = %q", leaf.Issuer.CommonName)
	}
	if len(leaf.IssuingCertificateURL) != 1 || leaf.IssuingCertificateURL[0] != "https://example.com/ca.cer" {
		t.Errorf("issuing certificate URL = %v", leaf.IssuingCertificateURL)
	}
	if len(leaf.ExtKeyUsage) != 1 || leaf.ExtKeyUsage[0] != x509.ExtKeyUsageCodeSigning {
		t.Errorf("extended key usage = %v, want [CodeSigning]", leaf.ExtKeyUsage)
	}

	if _, err := crypto.LoadPrivateKey(leafKey, nil); err != nil {
		t.Errorf("saved leaf key does not load: %v", err)
	}
}

func TestGenerate_CertifyExistingPublicKey(t *testing.T) {
	dir := t.TempDir()
	caCert, caKey := createTestCA(t, dir)

	signer, err := crypto.GenerateSoftwareSigner(crypto.AlgRSA2048)
	if err != nil {
		t.Fatalf("failed to generate subject key: %v", err)
	}
	spki, err := crypto.EncodePublicKey(signer.Public())
	if err != nil {
		t.Fatalf("failed to encode subject key: %v", err)
	}
	pubPath := filepath.Join(dir, "subject.pub")
	pemData := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: spki})
	if err := os.WriteFile(pubPath, pemData, 0644); err != nil {
		t.Fatalf("failed to write public key: %v", err)
	}

	resetGenerateFlags()
	leafPath := filepath.Join(dir, "leaf.cer")
	_, err = executeCommand(rootCmd,
		"--common-name", "External key", "--serial", "3",
		"--signer-cert", caCert, "--signer-key", caKey,
		"--pubkey", pubPath, "--output", leafPath)
	if err != nil {
		t.Fatalf("command failed: %v", err)
	}

	leaf := loadCertDER(t, leafPath)
	leafPub, ok := leaf.PublicKey.(*rsa.PublicKey)
	if !ok {
		t.Fatalf("leaf public key type = %T", leaf.PublicKey)
	}
	if leafPub.N.Cmp(signer.Public().(*rsa.PublicKey).N) != 0 {
		t.Error("certified key differs from the supplied public key")
	}
}

func TestGenerate_PKCS12Export(t *testing.T) {
	resetGenerateFlags()
	dir := t.TempDir()
	certPath := filepath.Join(dir, "ca.cer")
	p12Path := filepath.Join(dir, "ca.p12")

	t.Setenv("TEST_P12_PASS", "secret")
	out, err := executeCommand(rootCmd,
		"--ca", "--common-name", "Export CA", "--serial", "1",
		"--privkey", p12Path, "--p12-password", "env:TEST_P12_PASS",
		"--output", certPath)
	if err != nil {
		t.Fatalf("command failed: %v", err)
	}
	if !strings.Contains(out, "PKCS#12 bundle written to") {
		t.Errorf("output missing bundle confirmation: %q", out)
	}

	data, err := os.ReadFile(p12Path)
	if err != nil {
		t.Fatalf("bundle missing: %v", err)
	}
	key, bundledCert, err := pkcs12.Decode(data, "secret")
	if err != nil {
		t.Fatalf("bundle does not decode: %v", err)
	}
	if bundledCert.Subject.CommonName != "Export CA" {
		t.Errorf("bundled CN = %q", bundledCert.Subject.CommonName)
	}
	if _, ok := key.(*rsa.PrivateKey); !ok {
		t.Errorf("bundled key type = %T, want *rsa.PrivateKey", key)
	}
}

func TestGenerate_SerialFormats(t *testing.T) {
	tests := []struct {
		serial string
		want   int64
	}{
		{serial: "10", want: 10},
		{serial: "0x10", want: 16},
		{serial: "010", want: 8},
	}

	for _, tt := range tests {
		t.Run(tt.serial, func(t *testing.T) {
			resetGenerateFlags()
			dir := t.TempDir()
			certPath := filepath.Join(dir, "ca.cer")

			_, err := executeCommand(rootCmd,
				"--ca", "--common-name", "Serial CA", "--serial", tt.serial,
				"--output", certPath)
			if err != nil {
				t.Fatalf("command failed: %v", err)
			}

			cert := loadCertDER(t, certPath)
			if cert.SerialNumber.Cmp(big.NewInt(tt.want)) != 0 {
				t.Errorf("serial = %s, want %d", cert.SerialNumber, tt.want)
			}
		})
	}
}

func TestGenerate_FlagValidation(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{
			name:    "missing common name",
			args:    []string{"--ca"},
			wantErr: "common name",
		},
		{
			name:    "self-sign with signer cert",
			args:    []string{"--self-sign", "--common-name", "X", "--signer-cert", "ca.cer"},
			wantErr: "--self-sign and --signer-cert",
		},
		{
			name:    "self-sign with pubkey",
			args:    []string{"--self-sign", "--common-name", "X", "--pubkey", "key.pub"},
			wantErr: "--self-sign and --pubkey",
		},
		{
			name:    "issued without signer cert",
			args:    []string{"--common-name", "X"},
			wantErr: "--signer-cert is required",
		},
		{
			name:    "issued without signing key",
			args:    []string{"--common-name", "X", "--signer-cert", "ca.cer"},
			wantErr: "signing key is required",
		},
		{
			name:    "token config without label",
			args:    []string{"--ca", "--common-name", "X", "--token-config", "token.yaml"},
			wantErr: "--signer is required",
		},
		{
			name:    "privkey with pubkey",
			args:    []string{"--common-name", "X", "--signer-cert", "ca.cer", "--signer-key", "ca.key", "--pubkey", "key.pub", "--privkey", "out.p12"},
			wantErr: "--privkey cannot be combined",
		},
		{
			name:    "invalid serial",
			args:    []string{"--ca", "--common-name", "X", "--serial", "tuesday"},
			wantErr: "invalid serial number",
		},
		{
			name:    "invalid algorithm",
			args:    []string{"--ca", "--common-name", "X", "--algorithm", "dsa-1024"},
			wantErr: "unknown algorithm",
		},
		{
			name:    "positional argument",
			args:    []string{"--ca", "--common-name", "X", "extra"},
			wantErr: "unexpected argument",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resetGenerateFlags()

			args := append([]string{"--output", filepath.Join(dir, "out.cer")}, tt.args...)
			_, err := executeCommand(rootCmd, args...)
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %q, want it to mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestGenerate_RemovesOutputOnFailure(t *testing.T) {
	resetGenerateFlags()
	certPath := filepath.Join(t.TempDir(), "missing-dir", "out.cer")

	_, err := executeCommand(rootCmd,
		"--ca", "--common-name", "Test CA", "--serial", "1",
		"--output", certPath)
	if err == nil {
		t.Fatal("expected error writing into a missing directory")
	}
	if _, statErr := os.Stat(certPath); !os.IsNotExist(statErr) {
		t.Error("no partial output should remain after a failed write")
	}
}
