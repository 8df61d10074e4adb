package x509util

import (
	"encoding/asn1"
)

// SignFunc obtains a raw signature over the to-be-signed bytes from the
// cryptographic provider. It returns the bare signature (no BIT STRING
// framing) and the OID of the scheme that produced it.
type SignFunc func(tbs []byte) (signature []byte, algorithm asn1.ObjectIdentifier, err error)

// CreateSignedCertificate runs the full pipeline for a profile: assemble the
// to-be-signed certificate body, obtain a signature through sign, and bundle
// both into the final DER envelope. Any failure aborts the pipeline; no
// partial certificate is ever returned.
func CreateSignedCertificate(p Profile, sign SignFunc) ([]byte, error) {
	tbs, err := BuildCertificate(p)
	if err != nil {
		return nil, err
	}

	signature, algorithm, err := sign(tbs)
	if err != nil {
		return nil, err
	}

	return BundleSignature(tbs, algorithm, signature)
}
