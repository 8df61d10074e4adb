package x509util

import (
	"crypto/x509/pkix"
	"encoding/asn1"
	"fmt"

	"github.com/efisign/efikeygen/internal/crypto"
)

// keyUsageCAValue is the literal key usage extension value used for CA
// certificates: a DER BIT STRING with one unused bit and content 0x86,
// i.e. digitalSignature, keyCertSign and cRLSign.
//
// The upstream tool carries this exact byte pattern rather than deriving it
// from named usage flags; it is preserved verbatim so issued CA certificates
// stay byte-compatible.
var keyUsageCAValue = []byte{0x03, 0x02, 0x01, 0x86}

// authorityKeyID is the AuthorityKeyIdentifier extension value.
//
//	AuthorityKeyIdentifier ::= SEQUENCE {
//	    keyIdentifier [0] IMPLICIT KeyIdentifier OPTIONAL
//	}
type authorityKeyID struct {
	KeyID []byte `asn1:"optional,tag:0"`
}

// basicConstraints is the BasicConstraints extension value. The path length
// field is omitted: CA certificates issued here are unconstrained.
type basicConstraints struct {
	IsCA bool `asn1:"optional"`
}

// accessDescription is a single AuthorityInfoAccess accessor entry.
type accessDescription struct {
	Method   asn1.ObjectIdentifier
	Location asn1.RawValue
}

// BuildExtensions produces the complete extension set for a certificate
// profile. It is a pure function of the profile: no encoding state is shared
// with the request assembly, and the returned slice is in the canonical
// order subject-key-id, [basic-constraints, key-usage when CA],
// extended-key-usage, authority-key-id, authority-info-access.
func BuildExtensions(p Profile) ([]pkix.Extension, error) {
	exts := make([]pkix.Extension, 0, 6)

	skid, err := subjectKeyIDExtension(p.SubjectPublicKey)
	if err != nil {
		return nil, &ExtensionError{Extension: "subject key id", Err: err}
	}
	exts = append(exts, skid)

	if p.IsCA {
		bc, err := basicConstraintsExtension()
		if err != nil {
			return nil, &ExtensionError{Extension: "basic constraints", Err: err}
		}
		exts = append(exts, bc)

		exts = append(exts, keyUsageExtension())
	}

	eku, err := extendedKeyUsageExtension()
	if err != nil {
		return nil, &ExtensionError{Extension: "extended key usage", Err: err}
	}
	exts = append(exts, eku)

	issuerKey := p.IssuerPublicKey
	if p.IsSelfSigned {
		issuerKey = p.SubjectPublicKey
	}
	akid, err := authorityKeyIDExtension(issuerKey)
	if err != nil {
		return nil, &ExtensionError{Extension: "CA key id", Err: err}
	}
	exts = append(exts, akid)

	if p.IssuerURL != "" {
		aia, err := authorityInfoAccessExtension(p.IssuerURL)
		if err != nil {
			return nil, &ExtensionError{Extension: "authority information access", Err: err}
		}
		exts = append(exts, aia)
	}

	return exts, nil
}

// subjectKeyIDExtension hashes the subject's DER-encoded public key and wraps
// the hash as an OCTET STRING. The raw key hash omits this outer wrapper, so
// the wrapping here is required for a well-formed extension value.
func subjectKeyIDExtension(subjectPublicKey []byte) (pkix.Extension, error) {
	if len(subjectPublicKey) == 0 {
		return pkix.Extension{}, fmt.Errorf("subject public key is empty")
	}

	keyID := crypto.KeyID(subjectPublicKey)
	value, err := asn1.Marshal(keyID)
	if err != nil {
		return pkix.Extension{}, fmt.Errorf("failed to wrap key id: %w", err)
	}

	return pkix.Extension{
		Id:       OIDExtSubjectKeyId,
		Critical: false,
		Value:    value,
	}, nil
}

// authorityKeyIDExtension hashes the issuer's DER-encoded public key and
// wraps it in the context-specific [0] keyIdentifier inside a SEQUENCE.
func authorityKeyIDExtension(issuerPublicKey []byte) (pkix.Extension, error) {
	if len(issuerPublicKey) == 0 {
		return pkix.Extension{}, fmt.Errorf("issuer public key is empty")
	}

	value, err := asn1.Marshal(authorityKeyID{KeyID: crypto.KeyID(issuerPublicKey)})
	if err != nil {
		return pkix.Extension{}, fmt.Errorf("failed to wrap key id: %w", err)
	}

	return pkix.Extension{
		Id:       OIDExtAuthorityKeyId,
		Critical: false,
		Value:    value,
	}, nil
}

// keyUsageExtension returns the critical, CA-only key usage extension with
// the fixed certificate-signing bit pattern.
func keyUsageExtension() pkix.Extension {
	value := make([]byte, len(keyUsageCAValue))
	copy(value, keyUsageCAValue)

	return pkix.Extension{
		Id:       OIDExtKeyUsage,
		Critical: true,
		Value:    value,
	}
}

// basicConstraintsExtension returns the critical, CA-only basic constraints
// extension with isCA asserted and no path length constraint.
func basicConstraintsExtension() (pkix.Extension, error) {
	value, err := asn1.Marshal(basicConstraints{IsCA: true})
	if err != nil {
		return pkix.Extension{}, fmt.Errorf("failed to marshal basic constraints: %w", err)
	}

	return pkix.Extension{
		Id:       OIDExtBasicConstraints,
		Critical: true,
		Value:    value,
	}, nil
}

// extendedKeyUsageExtension restricts the certificate to the code-signing
// purpose.
func extendedKeyUsageExtension() (pkix.Extension, error) {
	value, err := asn1.Marshal([]asn1.ObjectIdentifier{OIDExtKeyUsageCodeSigning})
	if err != nil {
		return pkix.Extension{}, fmt.Errorf("failed to marshal extended key usage: %w", err)
	}

	return pkix.Extension{
		Id:       OIDExtExtKeyUsage,
		Critical: false,
		Value:    value,
	}, nil
}

// authorityInfoAccessExtension carries the issuer URL as a caIssuers
// accessor with a URI general name.
func authorityInfoAccessExtension(url string) (pkix.Extension, error) {
	value, err := asn1.Marshal([]accessDescription{{
		Method: OIDAccessCAIssuers,
		Location: asn1.RawValue{
			Class: asn1.ClassContextSpecific,
			Tag:   6, // uniformResourceIdentifier
			Bytes: []byte(url),
		},
	}})
	if err != nil {
		return pkix.Extension{}, fmt.Errorf("failed to marshal access description: %w", err)
	}

	return pkix.Extension{
		Id:       OIDExtAuthorityInfoAccess,
		Critical: false,
		Value:    value,
	}, nil
}
