package x509util

import (
	"crypto/x509/pkix"
	"encoding/asn1"
	"fmt"
	"math/big"
	"time"
)

// Profile describes the certificate to generate. It is constructed once from
// validated CLI inputs and is not modified afterwards.
type Profile struct {
	// CommonName becomes the subject CN. Required.
	CommonName string

	// IsCA selects the CA extension profile (basic constraints + key usage).
	IsCA bool

	// IsSelfSigned indicates the subject key is also the issuing key.
	IsSelfSigned bool

	// IssuerURL, when non-empty, is published in the authority-info-access
	// extension.
	IssuerURL string

	// Serial is the certificate serial number.
	Serial uint64

	// SubjectPublicKey is the DER-encoded SubjectPublicKeyInfo of the
	// certified key. Required.
	SubjectPublicKey []byte

	// IssuerPublicKey is the DER-encoded SubjectPublicKeyInfo of the signing
	// key. Ignored when IsSelfSigned is set (the subject key is used).
	IssuerPublicKey []byte

	// IssuerRawSubject is the DER-encoded subject name of the signing
	// certificate. When empty the subject name is used, which is the
	// self-signed case.
	IssuerRawSubject []byte
}

// certificateLifetime is how long generated certificates are valid.
// Signing certificates are long-lived; revocation happens through the
// platform's key databases, not through expiry.
const certificateLifetime = 10 * 365 * 24 * time.Hour

// Validate checks the profile invariants that must hold before any encoding
// work starts.
func (p Profile) Validate() error {
	if p.CommonName == "" {
		return fmt.Errorf("common name must not be empty")
	}
	if len(p.SubjectPublicKey) == 0 {
		return fmt.Errorf("subject public key must not be empty")
	}
	if p.IsSelfSigned && len(p.IssuerRawSubject) != 0 {
		return fmt.Errorf("self-signed profile cannot name a distinct issuer")
	}
	if !p.IsSelfSigned && len(p.IssuerPublicKey) == 0 {
		return fmt.Errorf("issuer public key is required unless self-signing")
	}
	return nil
}

// pkcs10Attribute is a PKCS#10 attribute: an OID with a SET of values.
type pkcs10Attribute struct {
	Type   asn1.ObjectIdentifier
	Values []asn1.RawValue `asn1:"set"`
}

// certificationRequestInfo is the request body the extension set is staged
// in. The extension set travels as a PKCS#9 extensionRequest attribute, the
// same shape a certificate request would put on the wire.
type certificationRequestInfo struct {
	Version    int
	Subject    asn1.RawValue
	PublicKey  asn1.RawValue
	Attributes []pkcs10Attribute `asn1:"tag:0"`
}

// validity is the TBSCertificate validity window.
type validity struct {
	NotBefore, NotAfter time.Time
}

// tbsCertificate is the to-be-signed certificate body.
type tbsCertificate struct {
	Version            int `asn1:"optional,explicit,default:0,tag:0"`
	SerialNumber       *big.Int
	SignatureAlgorithm pkix.AlgorithmIdentifier
	Issuer             asn1.RawValue
	Validity           validity
	Subject            asn1.RawValue
	PublicKey          asn1.RawValue
	Extensions         []pkix.Extension `asn1:"omitempty,optional,explicit,tag:3"`
}

// BuildCertificate assembles the DER-encoded to-be-signed certificate body
// for the profile. The extension set is built first, staged in a certificate
// request as a PKCS#9 extensionRequest attribute, then transferred into the
// certificate body. The returned bytes are what gets signed; no signing or
// output happens here.
func BuildCertificate(p Profile) ([]byte, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	exts, err := BuildExtensions(p)
	if err != nil {
		return nil, err
	}

	subject, err := marshalName(p.CommonName)
	if err != nil {
		return nil, &EncodingError{Step: "subject name", Err: err}
	}

	request, err := buildCertificationRequest(subject, p.SubjectPublicKey, exts)
	if err != nil {
		return nil, &EncodingError{Step: "certificate request", Err: err}
	}

	requested, err := extensionsFromRequest(request)
	if err != nil {
		return nil, &EncodingError{Step: "extension request", Err: err}
	}

	issuer := subject
	if len(p.IssuerRawSubject) != 0 {
		issuer = append([]byte(nil), p.IssuerRawSubject...)
	}

	notBefore := time.Now().UTC().Truncate(time.Second)
	tbs := tbsCertificate{
		Version:      2, // X.509 v3
		SerialNumber: new(big.Int).SetUint64(p.Serial),
		SignatureAlgorithm: pkix.AlgorithmIdentifier{
			Algorithm:  OIDSignatureSHA256WithRSA,
			Parameters: asn1.NullRawValue,
		},
		Issuer:     asn1.RawValue{FullBytes: issuer},
		Validity:   validity{NotBefore: notBefore, NotAfter: notBefore.Add(certificateLifetime)},
		Subject:    asn1.RawValue{FullBytes: subject},
		PublicKey:  asn1.RawValue{FullBytes: p.SubjectPublicKey},
		Extensions: requested,
	}

	der, err := asn1.Marshal(tbs)
	if err != nil {
		return nil, &EncodingError{Step: "certificate body", Err: err}
	}
	return der, nil
}

// marshalName encodes a subject name consisting of a single CN.
func marshalName(commonName string) ([]byte, error) {
	name := pkix.Name{CommonName: commonName}
	return asn1.Marshal(name.ToRDNSequence())
}

// buildCertificationRequest stages the extension set in a certificate
// request body under the PKCS#9 extensionRequest attribute.
func buildCertificationRequest(subject, publicKey []byte, exts []pkix.Extension) ([]byte, error) {
	extsDER, err := asn1.Marshal(exts)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal extension sequence: %w", err)
	}

	// Reject malformed key bytes here rather than letting them surface as
	// an unparseable certificate later.
	var spki asn1.RawValue
	if _, err := asn1.Unmarshal(publicKey, &spki); err != nil {
		return nil, fmt.Errorf("subject public key is not valid DER: %w", err)
	}

	req := certificationRequestInfo{
		Version:   0,
		Subject:   asn1.RawValue{FullBytes: subject},
		PublicKey: asn1.RawValue{FullBytes: publicKey},
		Attributes: []pkcs10Attribute{{
			Type:   OIDExtensionRequest,
			Values: []asn1.RawValue{{FullBytes: extsDER}},
		}},
	}

	return asn1.Marshal(req)
}

// extensionsFromRequest locates the extensionRequest attribute in an encoded
// certificate request and decodes the extension set it carries.
func extensionsFromRequest(requestDER []byte) ([]pkix.Extension, error) {
	var req certificationRequestInfo
	rest, err := asn1.Unmarshal(requestDER, &req)
	if err != nil {
		return nil, fmt.Errorf("failed to parse certificate request: %w", err)
	}
	if len(rest) > 0 {
		return nil, fmt.Errorf("trailing data after certificate request")
	}

	for _, attr := range req.Attributes {
		if !OIDEqual(attr.Type, OIDExtensionRequest) {
			continue
		}
		if len(attr.Values) != 1 {
			return nil, fmt.Errorf("extension request attribute has %d values, want 1", len(attr.Values))
		}

		var exts []pkix.Extension
		rest, err := asn1.Unmarshal(attr.Values[0].FullBytes, &exts)
		if err != nil {
			return nil, fmt.Errorf("failed to decode certificate extensions: %w", err)
		}
		if len(rest) > 0 {
			return nil, fmt.Errorf("trailing data after certificate extensions")
		}
		return exts, nil
	}

	return nil, fmt.Errorf("could not find extension request")
}
