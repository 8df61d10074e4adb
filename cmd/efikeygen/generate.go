package main

import (
	"encoding/asn1"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/efisign/efikeygen/internal/cli"
	"github.com/efisign/efikeygen/internal/crypto"
	"github.com/efisign/efikeygen/internal/x509util"
)

var defaultAlgorithm = crypto.DefaultAlgorithm

// subjectKey is the key being certified: its SubjectPublicKeyInfo, plus the
// private half when this run loaded or created it. The signer is nil when an
// existing public key is certified with --pubkey.
type subjectKey struct {
	spki   []byte
	signer crypto.Signer
}

func runGenerate(cmd *cobra.Command, args []string) error {
	if len(args) > 0 {
		return fmt.Errorf("unexpected argument: %q", args[0])
	}

	// A CA certificate with no issuer certificate signs itself, unless the
	// user said otherwise.
	if !cmd.Flags().Changed("self-sign") {
		genSelfSign = genIsCA && genSignerCert == ""
	}

	if err := validateOptions(); err != nil {
		return err
	}

	serial, err := strconv.ParseUint(genSerial, 0, 64)
	if err != nil {
		return fmt.Errorf("invalid serial number %q", genSerial)
	}

	alg, err := crypto.ParseAlgorithm(genAlgorithm)
	if err != nil {
		return err
	}

	provider, cfg, err := resolveProvider()
	if err != nil {
		return err
	}
	defer func() { _ = provider.Close() }()

	signingKey, err := resolveSigningKey(cmd, provider, cfg, alg)
	if err != nil {
		return err
	}

	subject, err := resolveSubject(cmd, signingKey, alg)
	if err != nil {
		return err
	}

	profile := x509util.Profile{
		CommonName:       genCommonName,
		IsCA:             genIsCA,
		IsSelfSigned:     genSelfSign,
		IssuerURL:        genIssuerURL,
		Serial:           serial,
		SubjectPublicKey: subject.spki,
	}
	if !genSelfSign {
		signerCert, err := cli.LoadCertFromPath(genSignerCert)
		if err != nil {
			return fmt.Errorf("could not load the signing certificate: %w", err)
		}
		profile.IssuerPublicKey = signerCert.RawSubjectPublicKeyInfo
		profile.IssuerRawSubject = signerCert.RawSubject
	}

	certDER, err := x509util.CreateSignedCertificate(profile, func(tbs []byte) ([]byte, asn1.ObjectIdentifier, error) {
		return crypto.SignData(signingKey, tbs)
	})
	if err != nil {
		return err
	}

	if err := cli.WriteFileOrRemove(genOutput, certDER, 0600); err != nil {
		return err
	}
	cmd.Printf("Certificate written to: %s\n", genOutput)

	if genPrivkeyOut != "" {
		password := string(crypto.ResolvePassphrase(genP12Password))
		if err := crypto.ExportPKCS12(genPrivkeyOut, subject.signer, certDER, password); err != nil {
			return err
		}
		cmd.Printf("PKCS#12 bundle written to: %s\n", genPrivkeyOut)
	}

	return nil
}

// validateOptions rejects flag combinations before any key material is
// touched.
func validateOptions() error {
	if genCommonName == "" {
		return fmt.Errorf("a common name must be specified (--common-name)")
	}
	if genSelfSign {
		if genSignerCert != "" {
			return fmt.Errorf("--self-sign and --signer-cert cannot be used at the same time")
		}
		if genPubkeyFile != "" {
			return fmt.Errorf("--self-sign and --pubkey cannot be used at the same time")
		}
	} else {
		if genSignerCert == "" {
			return fmt.Errorf("--signer-cert is required unless the certificate is self-signed")
		}
		if genSignerKey == "" && genTokenConfig == "" {
			return fmt.Errorf("a signing key is required (--signer-key or --token-config)")
		}
	}
	if genSignerKey != "" && genTokenConfig != "" {
		return fmt.Errorf("--signer-key and --token-config cannot be used at the same time")
	}
	if genTokenConfig != "" && genSignerLabel == "" {
		return fmt.Errorf("--signer is required with --token-config")
	}
	if genPrivkeyOut != "" && genPubkeyFile != "" {
		return fmt.Errorf("--privkey cannot be combined with --pubkey: there is no private key to export")
	}
	return nil
}

// resolveProvider picks the key storage backend. A token config file selects
// the PKCS#11 backend; everything else runs on PEM files.
func resolveProvider() (crypto.KeyProvider, crypto.KeyStorageConfig, error) {
	if genTokenConfig != "" {
		tokenCfg, err := crypto.LoadTokenConfig(genTokenConfig)
		if err != nil {
			return nil, crypto.KeyStorageConfig{}, err
		}
		cfg, err := tokenCfg.ToKeyStorageConfig(genSignerLabel)
		if err != nil {
			return nil, crypto.KeyStorageConfig{}, err
		}
		return crypto.NewKeyProvider(cfg), cfg, nil
	}

	cfg := crypto.KeyStorageConfig{
		Type:       crypto.KeyProviderTypeSoftware,
		KeyPath:    genSignerKey,
		Passphrase: genPassphrase,
	}
	return crypto.NewKeyProvider(cfg), cfg, nil
}

// resolveSigningKey finds or creates the key that signs the certificate. For
// issued certificates this is the CA key and must already exist; a
// self-signed certificate may generate its key on the spot.
func resolveSigningKey(cmd *cobra.Command, provider crypto.KeyProvider, cfg crypto.KeyStorageConfig, alg crypto.AlgorithmID) (crypto.Signer, error) {
	if genTokenConfig != "" {
		signer, err := provider.Load(cfg)
		if err == nil {
			return signer, nil
		}
		if !genSelfSign {
			return nil, fmt.Errorf("could not find the signing key: %w", err)
		}
		// A self-signed run may mint its key pair on the token when none
		// exists under the label yet.
		signer, genErr := provider.Generate(alg, cfg)
		if genErr != nil {
			return nil, fmt.Errorf("could not find the signing key: %w", err)
		}
		cmd.Printf("Key pair generated on token under label: %s\n", cfg.PKCS11KeyLabel)
		return signer, nil
	}

	if genSignerKey != "" {
		signer, err := provider.Load(cfg)
		if err != nil {
			return nil, fmt.Errorf("could not find the signing key: %w", err)
		}
		return signer, nil
	}

	// Self-signed with no key on hand: mint one, saving it when asked to.
	if genKeyOut != "" {
		keyCfg := cfg
		keyCfg.KeyPath = genKeyOut
		signer, err := provider.Generate(alg, keyCfg)
		if err != nil {
			return nil, err
		}
		cmd.Printf("Private key written to: %s\n", genKeyOut)
		return signer, nil
	}
	return crypto.GenerateSoftwareSigner(alg)
}

// resolveSubject determines the key being certified. Self-signed
// certificates certify their own signing key; issued certificates certify
// either the --pubkey file or a freshly generated key pair.
func resolveSubject(cmd *cobra.Command, signingKey crypto.Signer, alg crypto.AlgorithmID) (subjectKey, error) {
	if genPubkeyFile != "" {
		spki, err := crypto.LoadPublicKey(genPubkeyFile)
		if err != nil {
			return subjectKey{}, err
		}
		return subjectKey{spki: spki}, nil
	}

	if genSelfSign {
		spki, err := crypto.EncodePublicKey(signingKey.Public())
		if err != nil {
			return subjectKey{}, err
		}
		return subjectKey{spki: spki, signer: signingKey}, nil
	}

	signer, err := crypto.GenerateSoftwareSigner(alg)
	if err != nil {
		return subjectKey{}, err
	}
	if genKeyOut != "" {
		if err := signer.SavePrivateKey(genKeyOut, nil); err != nil {
			return subjectKey{}, err
		}
		cmd.Printf("Private key written to: %s\n", genKeyOut)
	}
	spki, err := crypto.EncodePublicKey(signer.Public())
	if err != nil {
		return subjectKey{}, err
	}
	return subjectKey{spki: spki, signer: signer}, nil
}
