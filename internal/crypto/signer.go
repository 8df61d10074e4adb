package crypto

import (
	"crypto"
	"crypto/rand"
	"encoding/asn1"
	"fmt"
)

// Signer extends crypto.Signer with algorithm metadata. Both the software
// and PKCS#11 backends return one.
type Signer interface {
	crypto.Signer

	// Algorithm returns the algorithm identifier for this signer.
	Algorithm() AlgorithmID
}

// SignData hashes data with the signer's digest and signs it, returning the
// raw signature and the OID of the signature scheme. The signature comes
// back bare: BIT STRING framing is the envelope encoder's job.
func SignData(signer Signer, data []byte) ([]byte, asn1.ObjectIdentifier, error) {
	alg := signer.Algorithm()
	if !alg.IsValid() {
		return nil, nil, fmt.Errorf("signer has unknown algorithm %q", alg)
	}

	hash := alg.Hash()
	h := hash.New()
	h.Write(data)

	signature, err := signer.Sign(rand.Reader, h.Sum(nil), hash)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to sign data: %w", err)
	}

	return signature, alg.SignatureOID(), nil
}
