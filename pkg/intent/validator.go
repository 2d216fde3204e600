package intent

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/certen/anchorsvc/pkg/canonical"
	"github.com/certen/anchorsvc/pkg/sigverify"
)

// NonceChecker answers whether a (pubkey, nonce) pair has already been
// admitted. It must be read-only: actual insertion happens inside the job
// store's transactional Admit(), not here.
type NonceChecker interface {
	NonceSeen(ctx context.Context, pubkey, nonce string) (bool, error)
}

// SignerLookup resolves whether a public key is a registered, active signer.
type SignerLookup interface {
	IsActiveSigner(ctx context.Context, pubkey string) (bool, error)
}

// Validator runs the ordered admission pipeline of §4.3: structural schema,
// timestamp skew, nonce uniqueness, canonicalization + hash, signature
// verification, signer registry lookup. It is side-effect-free: a caller
// receives a Result and decides whether to admit the job.
type Validator struct {
	skewSeconds int
	nonces      NonceChecker
	signers     SignerLookup
	now         func() time.Time
}

// NewValidator constructs a Validator. skewSeconds is the single configurable
// knob bounding |now - record.timestamp|.
func NewValidator(skewSeconds int, nonces NonceChecker, signers SignerLookup) *Validator {
	return &Validator{
		skewSeconds: skewSeconds,
		nonces:      nonces,
		signers:     signers,
		now:         time.Now,
	}
}

// Result is the outcome of a successful validation: everything the job store
// needs to admit the job in a single transaction.
type Result struct {
	RecordID        string
	CanonicalBody   []byte
	RecordHash      string
	SignerPublicKey string
	Nonce           string
}

// Validate runs all six ordered checks against a raw envelope. The first
// failing check short-circuits the rest and returns a *ValidationError.
func (v *Validator) Validate(ctx context.Context, raw []byte) (*Result, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, newValidationError(ErrorInvalidSchema, fmt.Sprintf("malformed envelope: %v", err))
	}
	if err := validateEnvelopeShape(env); err != nil {
		return nil, err
	}

	var rec Record
	if err := json.Unmarshal(env.Record, &rec); err != nil {
		return nil, newValidationError(ErrorInvalidSchema, fmt.Sprintf("malformed record: %v", err))
	}
	if err := validateRecordShape(rec); err != nil {
		return nil, err
	}

	// 2. Timestamp skew.
	now := v.now().Unix()
	skew := now - rec.Timestamp
	if skew < 0 {
		skew = -skew
	}
	if skew > int64(v.skewSeconds) {
		return nil, newValidationError(ErrorStaleTimestamp,
			fmt.Sprintf("timestamp %d outside %ds skew of now %d", rec.Timestamp, v.skewSeconds, now))
	}

	// 3. Nonce uniqueness.
	seen, err := v.nonces.NonceSeen(ctx, env.SignerRaw.PublicKey, rec.Nonce)
	if err != nil {
		return nil, fmt.Errorf("intent: nonce lookup: %w", err)
	}
	if seen {
		return nil, newValidationError(ErrorReplayDetected,
			fmt.Sprintf("nonce %q already used by signer %s", rec.Nonce, env.SignerRaw.PublicKey))
	}

	// 4. Canonicalize + hash.
	canonicalBody, hash, err := canonical.HashRecord(env.Record)
	if err != nil {
		return nil, newValidationError(ErrorInvalidSchema, fmt.Sprintf("canonicalization failed: %v", err))
	}

	// 5. Signature verification over the 32-byte record hash.
	hashBytes, err := decodeHexHash(hash)
	if err != nil {
		return nil, fmt.Errorf("intent: internal hash decode: %w", err)
	}
	sigBytes, err := decodeHexSig(env.Signature.Sig)
	if err != nil {
		return nil, newValidationError(ErrorInvalidSignature, fmt.Sprintf("malformed signature encoding: %v", err))
	}
	valid, err := sigverify.Verify(env.SignerRaw.PublicKey, hashBytes, sigBytes)
	if err != nil {
		return nil, newValidationError(ErrorInvalidSignature, fmt.Sprintf("signature malformed: %v", err))
	}
	if !valid {
		return nil, newValidationError(ErrorInvalidSignature, "signature does not verify against record hash")
	}

	// 6. Signer registry lookup.
	active, err := v.signers.IsActiveSigner(ctx, env.SignerRaw.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("intent: signer lookup: %w", err)
	}
	if !active {
		return nil, newValidationError(ErrorUnknownSigner,
			fmt.Sprintf("signer %s is not registered or not active", env.SignerRaw.PublicKey))
	}

	return &Result{
		RecordID:        rec.RecordID,
		CanonicalBody:   canonicalBody,
		RecordHash:      hash,
		SignerPublicKey: env.SignerRaw.PublicKey,
		Nonce:           rec.Nonce,
	}, nil
}

// validateEnvelopeShape performs the structural schema check (step 1) over
// the outer envelope. The spec normalizes on the structured {signer,
// signature} form; the flatter {publickey, signature, nonce, record} form
// seen elsewhere in the ecosystem is rejected rather than silently accepted.
func validateEnvelopeShape(env Envelope) error {
	if env.Protocol != ProtocolTag {
		return newValidationError(ErrorInvalidSchema, fmt.Sprintf("unexpected protocol tag %q", env.Protocol))
	}
	if env.Version != ProtocolVersion {
		return newValidationError(ErrorInvalidSchema, fmt.Sprintf("unsupported version %d", env.Version))
	}
	if len(env.Record) == 0 {
		return newValidationError(ErrorInvalidSchema, "missing record")
	}
	if env.SignerRaw.PublicKey == "" {
		return newValidationError(ErrorInvalidSchema, "missing signer.pubkey")
	}
	if env.Signature.Alg == "" || env.Signature.HashName == "" || env.Signature.Sig == "" {
		return newValidationError(ErrorInvalidSchema, "missing signature fields")
	}
	if env.Signature.Alg != "ecdsa-secp256k1" {
		return newValidationError(ErrorInvalidSchema, fmt.Sprintf("unsupported signature algorithm %q", env.Signature.Alg))
	}
	if env.Signature.HashName != "sha256" {
		return newValidationError(ErrorInvalidSchema, fmt.Sprintf("unsupported hash %q", env.Signature.HashName))
	}
	return nil
}

func validateRecordShape(rec Record) error {
	if rec.RecordID == "" {
		return newValidationError(ErrorInvalidSchema, "missing record.recordId")
	}
	switch rec.Kind {
	case EventRegister, EventUpdate, EventAssign, EventSplitChange:
	default:
		return newValidationError(ErrorInvalidSchema, fmt.Sprintf("unknown record.kind %q", rec.Kind))
	}
	if rec.AssetType == "" {
		return newValidationError(ErrorInvalidSchema, "missing record.assetType")
	}
	if rec.Nonce == "" {
		return newValidationError(ErrorInvalidSchema, "missing record.nonce")
	}
	if rec.Timestamp <= 0 {
		return newValidationError(ErrorInvalidSchema, "missing or invalid record.timestamp")
	}
	if len(rec.Owners) == 0 {
		return newValidationError(ErrorInvalidSchema, "record.owners must be non-empty")
	}
	total := 0
	for _, o := range rec.Owners {
		if o.PartyID == "" || o.Role == "" {
			return newValidationError(ErrorInvalidSchema, "owner missing partyId or role")
		}
		if o.Share < 0 || o.Share > 10000 {
			return newValidationError(ErrorInvalidSchema, "owner share out of basis-point range")
		}
		total += o.Share
	}
	if total != 10000 {
		return newValidationError(ErrorInvalidSchema, fmt.Sprintf("owner shares sum to %d, expected 10000", total))
	}
	return nil
}
