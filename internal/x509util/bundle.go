package x509util

import (
	"bytes"
	"crypto/x509/pkix"
	"encoding/asn1"
	"fmt"

	"golang.org/x/crypto/cryptobyte"
	cryptobyte_asn1 "golang.org/x/crypto/cryptobyte/asn1"
)

// signedCertificate is the envelope written to the output file:
//
//	SEQUENCE {
//	    tbsCertificate      ANY,       -- carried opaque, byte for byte
//	    signatureAlgorithm  AlgorithmIdentifier,
//	    signature           BIT STRING
//	}
//
// The to-be-signed field stays an opaque blob on purpose: the bytes that
// were signed are the bytes that get written, with no re-encoding in
// between.
type signedCertificate struct {
	TBSCertificate     asn1.RawValue
	SignatureAlgorithm pkix.AlgorithmIdentifier
	SignatureValue     asn1.BitString
}

// BundleSignature wraps the to-be-signed bytes and the raw signature into the
// final signed-certificate DER. The signature is encoded as a BIT STRING with
// a zero unused-bits octet, which the raw signing primitive does not supply.
//
// The result is deterministic for identical inputs, and neither input slice
// is mutated or retained.
func BundleSignature(tbs []byte, algorithm asn1.ObjectIdentifier, signature []byte) ([]byte, error) {
	if len(tbs) == 0 {
		return nil, &SignatureEncodingError{Err: fmt.Errorf("to-be-signed data is empty")}
	}
	if len(signature) == 0 {
		return nil, &SignatureEncodingError{Err: fmt.Errorf("signature is empty")}
	}

	algID, err := algorithmIdentifier(algorithm)
	if err != nil {
		return nil, &SignatureEncodingError{Err: err}
	}

	sig := make([]byte, len(signature))
	copy(sig, signature)

	cert := signedCertificate{
		TBSCertificate:     asn1.RawValue{FullBytes: append([]byte(nil), tbs...)},
		SignatureAlgorithm: algID,
		SignatureValue: asn1.BitString{
			Bytes:     sig,
			BitLength: len(sig) * 8,
		},
	}

	der, err := asn1.Marshal(cert)
	if err != nil {
		return nil, &SignatureEncodingError{Err: fmt.Errorf("failed to marshal envelope: %w", err)}
	}

	if err := checkSignatureEncoding(der, tbs, signature); err != nil {
		return nil, &SignatureEncodingError{Err: err}
	}

	return der, nil
}

// algorithmIdentifier resolves the AlgorithmIdentifier for the signature OID.
// Only SHA-256 with RSA encryption is supported; its parameters field is an
// explicit ASN.1 NULL.
func algorithmIdentifier(oid asn1.ObjectIdentifier) (pkix.AlgorithmIdentifier, error) {
	if !OIDEqual(oid, OIDSignatureSHA256WithRSA) {
		return pkix.AlgorithmIdentifier{}, fmt.Errorf("unsupported signature algorithm: %s", oid)
	}
	return pkix.AlgorithmIdentifier{
		Algorithm:  oid,
		Parameters: asn1.NullRawValue,
	}, nil
}

// checkSignatureEncoding re-walks the encoded envelope and verifies the
// layout instead of trusting a fixed byte offset: the first element must be
// the to-be-signed bytes unchanged, and the third must be a BIT STRING whose
// unused-bits octet is zero and whose content is the raw signature.
func checkSignatureEncoding(der, tbs, signature []byte) error {
	input := cryptobyte.String(der)

	var envelope cryptobyte.String
	if !input.ReadASN1(&envelope, cryptobyte_asn1.SEQUENCE) || !input.Empty() {
		return fmt.Errorf("envelope is not a single SEQUENCE")
	}

	var tbsElem cryptobyte.String
	var tbsTag cryptobyte_asn1.Tag
	if !envelope.ReadAnyASN1Element(&tbsElem, &tbsTag) {
		return fmt.Errorf("envelope is missing the to-be-signed element")
	}
	if !bytes.Equal(tbsElem, tbs) {
		return fmt.Errorf("to-be-signed bytes were altered during encoding")
	}

	var algElem cryptobyte.String
	if !envelope.ReadASN1Element(&algElem, cryptobyte_asn1.SEQUENCE) {
		return fmt.Errorf("envelope is missing the algorithm identifier")
	}

	var sig asn1.BitString
	if !envelope.ReadASN1BitString(&sig) {
		return fmt.Errorf("signature element does not carry the BIT STRING tag")
	}
	if !envelope.Empty() {
		return fmt.Errorf("trailing data after signature")
	}
	if sig.BitLength%8 != 0 {
		return fmt.Errorf("signature BIT STRING has %d unused bits, want 0", 8-sig.BitLength%8)
	}
	if !bytes.Equal(sig.Bytes, signature) {
		return fmt.Errorf("signature bytes were altered during encoding")
	}

	return nil
}
