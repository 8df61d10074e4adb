//go:build cgo

// Package crypto provides cryptographic primitives for certificate
// generation. This file implements the PKCS#11 token backend.
package crypto

import (
	"crypto"
	"crypto/rsa"
	"encoding/hex"
	"fmt"
	"io"
	"math/big"
	"sync"

	"github.com/miekg/pkcs11"
)

// sha256DigestInfo is the DER prefix for a SHA-256 DigestInfo. CKM_RSA_PKCS
// signs raw input, so the DigestInfo framing that CKM_SHA256_RSA_PKCS would
// add has to be supplied by us.
var sha256DigestInfo = []byte{
	0x30, 0x31, 0x30, 0x0d, 0x06, 0x09, 0x60, 0x86, 0x48, 0x01,
	0x65, 0x03, 0x04, 0x02, 0x01, 0x05, 0x00, 0x04, 0x20,
}

// PKCS11Signer implements Signer backed by a private key on a PKCS#11 token.
// The key never leaves the token; only signing requests cross the boundary.
type PKCS11Signer struct {
	ctx     *pkcs11.Ctx
	session pkcs11.SessionHandle
	key     pkcs11.ObjectHandle
	alg     AlgorithmID
	pub     crypto.PublicKey

	// The PKCS#11 sign operation is stateful (SignInit + Sign), so calls
	// must not interleave on one session.
	mu sync.Mutex
}

// Ensure PKCS11Signer implements Signer.
var _ Signer = (*PKCS11Signer)(nil)

// Algorithm returns the algorithm used by this signer.
func (s *PKCS11Signer) Algorithm() AlgorithmID {
	return s.alg
}

// Public returns the public key, read from the token at load time.
func (s *PKCS11Signer) Public() crypto.PublicKey {
	return s.pub
}

// Sign signs a SHA-256 digest with CKM_RSA_PKCS, supplying the DigestInfo
// framing to match PKCS#1 v1.5.
func (s *PKCS11Signer) Sign(_ io.Reader, digest []byte, opts crypto.SignerOpts) ([]byte, error) {
	if opts != nil && opts.HashFunc() != crypto.SHA256 {
		return nil, fmt.Errorf("token signing supports SHA-256 only, got %v", opts.HashFunc())
	}
	if len(digest) != crypto.SHA256.Size() {
		return nil, fmt.Errorf("digest has %d bytes, want %d", len(digest), crypto.SHA256.Size())
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	mech := []*pkcs11.Mechanism{pkcs11.NewMechanism(pkcs11.CKM_RSA_PKCS, nil)}
	if err := s.ctx.SignInit(s.session, mech, s.key); err != nil {
		return nil, fmt.Errorf("failed to initialize token signing: %w", err)
	}

	info := make([]byte, 0, len(sha256DigestInfo)+len(digest))
	info = append(info, sha256DigestInfo...)
	info = append(info, digest...)

	signature, err := s.ctx.Sign(s.session, info)
	if err != nil {
		return nil, fmt.Errorf("failed to sign on token: %w", err)
	}
	return signature, nil
}

// close releases the signer's session and module.
func (s *PKCS11Signer) close() error {
	if s.ctx == nil {
		return nil
	}
	_ = s.ctx.Logout(s.session)
	_ = s.ctx.CloseSession(s.session)
	err := s.ctx.Finalize()
	s.ctx.Destroy()
	s.ctx = nil
	return err
}

// PKCS11KeyProvider implements KeyProvider for PKCS#11 tokens. It owns the
// sessions of every signer it hands out and releases them on Close.
type PKCS11KeyProvider struct {
	mu      sync.Mutex
	signers []*PKCS11Signer
}

// Ensure PKCS11KeyProvider implements KeyProvider.
var _ KeyProvider = (*PKCS11KeyProvider)(nil)

// NewPKCS11KeyProvider creates a new PKCS11KeyProvider.
func NewPKCS11KeyProvider() *PKCS11KeyProvider {
	return &PKCS11KeyProvider{}
}

// Load opens a session on the configured token and finds the signing key by
// label.
func (p *PKCS11KeyProvider) Load(cfg KeyStorageConfig) (Signer, error) {
	ctx, session, err := openTokenSession(cfg)
	if err != nil {
		return nil, err
	}

	signer, err := newTokenSigner(ctx, session, cfg.PKCS11KeyLabel)
	if err != nil {
		_ = ctx.CloseSession(session)
		_ = ctx.Finalize()
		ctx.Destroy()
		return nil, err
	}

	p.track(signer)
	return signer, nil
}

// Generate creates an RSA key pair on the token under the configured label.
func (p *PKCS11KeyProvider) Generate(alg AlgorithmID, cfg KeyStorageConfig) (Signer, error) {
	if !alg.IsValid() {
		return nil, fmt.Errorf("unsupported algorithm: %s", alg)
	}

	ctx, session, err := openTokenSession(cfg)
	if err != nil {
		return nil, err
	}

	if err := generateTokenKeyPair(ctx, session, alg, cfg.PKCS11KeyLabel, cfg.PKCS11KeyID); err != nil {
		_ = ctx.CloseSession(session)
		_ = ctx.Finalize()
		ctx.Destroy()
		return nil, err
	}

	signer, err := newTokenSigner(ctx, session, cfg.PKCS11KeyLabel)
	if err != nil {
		_ = ctx.CloseSession(session)
		_ = ctx.Finalize()
		ctx.Destroy()
		return nil, err
	}

	p.track(signer)
	return signer, nil
}

// Close releases every session this provider opened.
func (p *PKCS11KeyProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var firstErr error
	for _, s := range p.signers {
		if err := s.close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	p.signers = nil
	return firstErr
}

func (p *PKCS11KeyProvider) track(s *PKCS11Signer) {
	p.mu.Lock()
	p.signers = append(p.signers, s)
	p.mu.Unlock()
}

// openTokenSession initializes the module, locates the token by label, and
// opens a logged-in read-write session.
func openTokenSession(cfg KeyStorageConfig) (*pkcs11.Ctx, pkcs11.SessionHandle, error) {
	if cfg.PKCS11Lib == "" {
		return nil, 0, fmt.Errorf("pkcs11 library path is required")
	}
	if cfg.PKCS11KeyLabel == "" {
		return nil, 0, fmt.Errorf("pkcs11 key label is required")
	}

	ctx := pkcs11.New(cfg.PKCS11Lib)
	if ctx == nil {
		return nil, 0, fmt.Errorf("failed to load PKCS#11 module %s", cfg.PKCS11Lib)
	}

	if err := ctx.Initialize(); err != nil {
		ctx.Destroy()
		return nil, 0, fmt.Errorf("failed to initialize PKCS#11 module: %w", err)
	}

	slot, err := findTokenSlot(ctx, cfg.PKCS11Token)
	if err != nil {
		_ = ctx.Finalize()
		ctx.Destroy()
		return nil, 0, err
	}

	session, err := ctx.OpenSession(slot, pkcs11.CKF_SERIAL_SESSION|pkcs11.CKF_RW_SESSION)
	if err != nil {
		_ = ctx.Finalize()
		ctx.Destroy()
		return nil, 0, fmt.Errorf("failed to open token session: %w", err)
	}

	if err := ctx.Login(session, pkcs11.CKU_USER, cfg.PKCS11Pin); err != nil && err != pkcs11.Error(pkcs11.CKR_USER_ALREADY_LOGGED_IN) {
		_ = ctx.CloseSession(session)
		_ = ctx.Finalize()
		ctx.Destroy()
		return nil, 0, fmt.Errorf("failed to log in to token: %w", err)
	}

	return ctx, session, nil
}

// findTokenSlot locates the slot whose token label matches.
func findTokenSlot(ctx *pkcs11.Ctx, tokenLabel string) (uint, error) {
	slots, err := ctx.GetSlotList(true)
	if err != nil {
		return 0, fmt.Errorf("failed to list slots: %w", err)
	}

	for _, slot := range slots {
		info, err := ctx.GetTokenInfo(slot)
		if err != nil {
			continue
		}
		if info.Label == tokenLabel {
			return slot, nil
		}
	}

	return 0, fmt.Errorf("token %q not found", tokenLabel)
}

// newTokenSigner finds the key pair by label and reads the public half.
func newTokenSigner(ctx *pkcs11.Ctx, session pkcs11.SessionHandle, label string) (*PKCS11Signer, error) {
	key, err := findObject(ctx, session, pkcs11.CKO_PRIVATE_KEY, label)
	if err != nil {
		return nil, fmt.Errorf("failed to find private key %q: %w", label, err)
	}

	pubHandle, err := findObject(ctx, session, pkcs11.CKO_PUBLIC_KEY, label)
	if err != nil {
		return nil, fmt.Errorf("failed to find public key %q: %w", label, err)
	}

	pub, err := readRSAPublicKey(ctx, session, pubHandle)
	if err != nil {
		return nil, err
	}

	alg := AlgRSA2048
	if pub.N.BitLen() > 3072 {
		alg = AlgRSA4096
	}

	return &PKCS11Signer{ctx: ctx, session: session, key: key, alg: alg, pub: pub}, nil
}

// findObject finds exactly one object of the given class and label.
func findObject(ctx *pkcs11.Ctx, session pkcs11.SessionHandle, class uint, label string) (pkcs11.ObjectHandle, error) {
	template := []*pkcs11.Attribute{
		pkcs11.NewAttribute(pkcs11.CKA_CLASS, class),
		pkcs11.NewAttribute(pkcs11.CKA_LABEL, label),
	}

	if err := ctx.FindObjectsInit(session, template); err != nil {
		return 0, fmt.Errorf("failed to start object search: %w", err)
	}
	handles, _, err := ctx.FindObjects(session, 2)
	finalizeErr := ctx.FindObjectsFinal(session)
	if err != nil {
		return 0, fmt.Errorf("failed to search objects: %w", err)
	}
	if finalizeErr != nil {
		return 0, fmt.Errorf("failed to finish object search: %w", finalizeErr)
	}

	switch len(handles) {
	case 0:
		return 0, fmt.Errorf("not found")
	case 1:
		return handles[0], nil
	default:
		return 0, fmt.Errorf("label is ambiguous (%d matches)", len(handles))
	}
}

// readRSAPublicKey reconstructs the RSA public key from token attributes.
func readRSAPublicKey(ctx *pkcs11.Ctx, session pkcs11.SessionHandle, handle pkcs11.ObjectHandle) (*rsa.PublicKey, error) {
	template := []*pkcs11.Attribute{
		pkcs11.NewAttribute(pkcs11.CKA_MODULUS, nil),
		pkcs11.NewAttribute(pkcs11.CKA_PUBLIC_EXPONENT, nil),
	}

	attrs, err := ctx.GetAttributeValue(session, handle, template)
	if err != nil {
		return nil, fmt.Errorf("failed to read public key attributes: %w", err)
	}

	pub := &rsa.PublicKey{}
	for _, attr := range attrs {
		switch attr.Type {
		case pkcs11.CKA_MODULUS:
			pub.N = new(big.Int).SetBytes(attr.Value)
		case pkcs11.CKA_PUBLIC_EXPONENT:
			pub.E = int(new(big.Int).SetBytes(attr.Value).Int64())
		}
	}
	if pub.N == nil || pub.E == 0 {
		return nil, fmt.Errorf("token returned incomplete public key")
	}

	return pub, nil
}

// generateTokenKeyPair creates a token-resident RSA key pair.
func generateTokenKeyPair(ctx *pkcs11.Ctx, session pkcs11.SessionHandle, alg AlgorithmID, label, keyID string) error {
	id, err := decodeKeyID(keyID)
	if err != nil {
		return err
	}

	mech := []*pkcs11.Mechanism{pkcs11.NewMechanism(pkcs11.CKM_RSA_PKCS_KEY_PAIR_GEN, nil)}

	publicTemplate := []*pkcs11.Attribute{
		pkcs11.NewAttribute(pkcs11.CKA_TOKEN, true),
		pkcs11.NewAttribute(pkcs11.CKA_VERIFY, true),
		pkcs11.NewAttribute(pkcs11.CKA_MODULUS_BITS, alg.KeySizeBits()),
		pkcs11.NewAttribute(pkcs11.CKA_PUBLIC_EXPONENT, []byte{0x01, 0x00, 0x01}),
		pkcs11.NewAttribute(pkcs11.CKA_LABEL, label),
	}
	privateTemplate := []*pkcs11.Attribute{
		pkcs11.NewAttribute(pkcs11.CKA_TOKEN, true),
		pkcs11.NewAttribute(pkcs11.CKA_PRIVATE, true),
		pkcs11.NewAttribute(pkcs11.CKA_SENSITIVE, true),
		pkcs11.NewAttribute(pkcs11.CKA_SIGN, true),
		pkcs11.NewAttribute(pkcs11.CKA_LABEL, label),
	}
	if len(id) > 0 {
		publicTemplate = append(publicTemplate, pkcs11.NewAttribute(pkcs11.CKA_ID, id))
		privateTemplate = append(privateTemplate, pkcs11.NewAttribute(pkcs11.CKA_ID, id))
	}

	if _, _, err := ctx.GenerateKeyPair(session, mech, publicTemplate, privateTemplate); err != nil {
		return fmt.Errorf("failed to generate key pair on token: %w", err)
	}
	return nil
}

// decodeKeyID decodes an optional hex CKA_ID.
func decodeKeyID(keyID string) ([]byte, error) {
	if keyID == "" {
		return nil, nil
	}
	id, err := hex.DecodeString(keyID)
	if err != nil {
		return nil, fmt.Errorf("key id must be hex: %w", err)
	}
	return id, nil
}
