// Command efikeygen generates signing certificates for EFI binaries.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Build-time variables (injected by the release pipeline)
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "efikeygen: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "efikeygen",
	Short: "Generate signing certificates for EFI binaries",
	Long: `efikeygen generates an X.509 certificate suitable for signing EFI binaries,
either self-signed or issued by a signing CA, and writes it as DER.

The signing key lives either in a PEM file on disk or in a PKCS#11 token
described by a YAML config file. When no existing key is given, a fresh RSA
key pair is generated.

Examples:
  # Create a self-signed CA for EFI signing
  efikeygen --ca --self-sign --common-name "My EFI CA" --serial 1 \
      --keyout ca.key --output ca.cer

  # Issue a code-signing certificate from that CA, exporting the new key
  efikeygen --common-name "Kernel signing key" --serial 2 \
      --signer-cert ca.cer --signer-key ca.key \
      --privkey kernel.p12 --p12-password env:P12_PASS --output kernel.cer

  # Certify an existing public key
  efikeygen --common-name "Kernel signing key" --serial 3 \
      --signer-cert ca.cer --signer-key ca.key \
      --pubkey kernel.pub --output kernel.cer

  # Sign with a key held in a PKCS#11 token
  efikeygen --ca --self-sign --common-name "HSM CA" --serial 1 \
      --token-config ./token.yaml --signer "efi-ca" --output ca.cer`,
	Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runGenerate,
}

var (
	genIsCA        bool
	genSelfSign    bool
	genCommonName  string
	genIssuerURL   string
	genSerial      string
	genOutput      string
	genPubkeyFile  string
	genAlgorithm   string
	genKeyOut      string
	genPrivkeyOut  string
	genP12Password string

	genSignerCert  string
	genSignerKey   string
	genPassphrase  string
	genTokenConfig string
	genSignerLabel string
)

func init() {
	flags := rootCmd.Flags()

	flags.BoolVarP(&genIsCA, "ca", "C", false, "Generate a CA certificate")
	flags.BoolVarP(&genSelfSign, "self-sign", "S", false, "Generate a self-signed certificate")
	flags.StringVarP(&genCommonName, "common-name", "n", "", "Common Name for the generated certificate (required)")
	flags.StringVarP(&genIssuerURL, "url", "u", "", "Issuer URL, published in the authority-info-access extension")
	flags.StringVarP(&genSerial, "serial", "s", "0", "Serial number (decimal, 0x hex or 0 octal prefix)")
	flags.StringVarP(&genOutput, "output", "o", "signed.cer", "Certificate output file name")
	flags.StringVarP(&genPubkeyFile, "pubkey", "p", "", "Certify the public key from this file instead of generating one")
	flags.StringVarP(&genAlgorithm, "algorithm", "a", string(defaultAlgorithm), "Key algorithm when generating a key (rsa-2048, rsa-4096)")
	flags.StringVar(&genKeyOut, "keyout", "", "Where to save a newly generated private key (PEM)")
	flags.StringVarP(&genPrivkeyOut, "privkey", "P", "", "Private key output file name (PKCS#12)")
	flags.StringVar(&genP12Password, "p12-password", "", "PKCS#12 password (literal or env:VAR)")

	flags.StringVar(&genSignerCert, "signer-cert", "", "Signing certificate file (PEM or DER)")
	flags.StringVar(&genSignerKey, "signer-key", "", "Signing key file (PEM)")
	flags.StringVar(&genPassphrase, "passphrase", "", "Passphrase for the signing key (literal or env:VAR)")
	flags.StringVarP(&genTokenConfig, "token-config", "t", "", "PKCS#11 token config holding the signing key (YAML)")
	flags.StringVarP(&genSignerLabel, "signer", "c", "", "Label of the signing key in the token")
}
