package cli

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// makeTestCert issues a throwaway self-signed certificate.
func makeTestCert(t *testing.T) []byte {
	t.Helper()

	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}

	template := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "utils test"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, priv.Public(), priv)
	if err != nil {
		t.Fatalf("failed to create certificate: %v", err)
	}
	return der
}

func TestLoadCertFromPath(t *testing.T) {
	der := makeTestCert(t)
	dir := t.TempDir()

	derPath := filepath.Join(dir, "cert.der")
	if err := os.WriteFile(derPath, der, 0644); err != nil {
		t.Fatalf("failed to write DER file: %v", err)
	}

	pemPath := filepath.Join(dir, "cert.pem")
	pemData := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	if err := os.WriteFile(pemPath, pemData, 0644); err != nil {
		t.Fatalf("failed to write PEM file: %v", err)
	}

	for _, path := range []string{derPath, pemPath} {
		cert, err := LoadCertFromPath(path)
		if err != nil {
			t.Errorf("LoadCertFromPath(%s) failed: %v", path, err)
			continue
		}
		if cert.Subject.CommonName != "utils test" {
			t.Errorf("LoadCertFromPath(%s): CN = %q", path, cert.Subject.CommonName)
		}
	}
}

func TestLoadCertFromPath_WrongPEMType(t *testing.T) {
	path := filepath.Join(t.TempDir(), "key.pem")
	pemData := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: []byte{0x30, 0x00}})
	if err := os.WriteFile(path, pemData, 0644); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}

	if _, err := LoadCertFromPath(path); err == nil {
		t.Error("expected error for a non-certificate PEM block")
	}
}

func TestLoadCertFromPath_Missing(t *testing.T) {
	if _, err := LoadCertFromPath(filepath.Join(t.TempDir(), "nope.cer")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestLoadCertFromPath_Garbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "junk.cer")
	if err := os.WriteFile(path, []byte("not a certificate"), 0644); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}

	if _, err := LoadCertFromPath(path); err == nil {
		t.Error("expected error for unparseable data")
	}
}

func TestWriteFileOrRemove(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.cer")

	if err := WriteFileOrRemove(path, []byte("payload"), 0600); err != nil {
		t.Fatalf("WriteFileOrRemove failed: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("output missing: %v", err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("output mode = %v, want 0600", info.Mode().Perm())
	}

	data, err := os.ReadFile(path)
	if err != nil || string(data) != "payload" {
		t.Errorf("output content = %q, err = %v", data, err)
	}
}

func TestWriteFileOrRemove_Failure(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing-dir", "out.cer")

	if err := WriteFileOrRemove(path, []byte("payload"), 0600); err == nil {
		t.Fatal("expected error writing into a missing directory")
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("no partial output should remain after a failed write")
	}
}
