package intent

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"testing"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"

	"github.com/certen/anchorsvc/pkg/canonical"
	"github.com/certen/anchorsvc/pkg/sigverify"
)

type fakeNonces struct {
	seen map[string]bool
}

func (f *fakeNonces) NonceSeen(ctx context.Context, pubkey, nonce string) (bool, error) {
	return f.seen[pubkey+"|"+nonce], nil
}

type fakeSigners struct {
	active map[string]bool
}

func (f *fakeSigners) IsActiveSigner(ctx context.Context, pubkey string) (bool, error) {
	return f.active[pubkey], nil
}

func buildEnvelope(t *testing.T, priv *btcec.PrivateKey, recordID, nonce string, timestamp int64) []byte {
	t.Helper()

	rec := Record{
		RecordID:  recordID,
		Kind:      EventRegister,
		AssetType: "image",
		Owners:    []Owner{{PartyID: "p1", Role: "author", Share: 10000}},
		Terms:     Terms{Territory: "US", Rights: []string{"reproduce"}},
		Timestamp: timestamp,
		Nonce:     nonce,
	}
	recBytes, err := json.Marshal(rec)
	if err != nil {
		t.Fatalf("marshal record: %v", err)
	}

	_, hash, err := canonical.HashRecord(recBytes)
	if err != nil {
		t.Fatalf("hash record: %v", err)
	}
	hashBytes, err := hex.DecodeString(hash)
	if err != nil {
		t.Fatalf("decode hash: %v", err)
	}
	sig, err := sigverify.Sign(priv, hashBytes)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	env := Envelope{
		Protocol: ProtocolTag,
		Version:  ProtocolVersion,
		Record:   json.RawMessage(recBytes),
		SignerRaw: Signer{
			PublicKey: hex.EncodeToString(priv.PubKey().SerializeCompressed()),
		},
		Signature: Signature{
			Alg:      "ecdsa-secp256k1",
			HashName: "sha256",
			Sig:      hex.EncodeToString(sig),
		},
	}
	envBytes, err := json.Marshal(env)
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}
	return envBytes
}

func TestValidate_AcceptsFreshValidIntent(t *testing.T) {
	priv, _ := btcec.NewPrivateKey()
	pubHex := hex.EncodeToString(priv.PubKey().SerializeCompressed())

	raw := buildEnvelope(t, priv, "REC-1", "n1", time.Now().Unix())

	v := NewValidator(600, &fakeNonces{seen: map[string]bool{}}, &fakeSigners{active: map[string]bool{pubHex: true}})

	result, err := v.Validate(context.Background(), raw)
	if err != nil {
		t.Fatalf("expected success, got error: %v", err)
	}
	if result.RecordID != "REC-1" {
		t.Fatalf("unexpected recordId: %s", result.RecordID)
	}
	if len(result.RecordHash) != 64 {
		t.Fatalf("unexpected hash length: %d", len(result.RecordHash))
	}
}

func TestValidate_RejectsStaleTimestamp(t *testing.T) {
	priv, _ := btcec.NewPrivateKey()
	pubHex := hex.EncodeToString(priv.PubKey().SerializeCompressed())
	raw := buildEnvelope(t, priv, "REC-1", "n1", time.Now().Add(-601*time.Second).Unix())

	v := NewValidator(600, &fakeNonces{seen: map[string]bool{}}, &fakeSigners{active: map[string]bool{pubHex: true}})

	_, err := v.Validate(context.Background(), raw)
	ve, ok := err.(*ValidationError)
	if !ok {
		t.Fatalf("expected *ValidationError, got %T: %v", err, err)
	}
	if ve.Kind != ErrorStaleTimestamp {
		t.Fatalf("expected StaleTimestamp, got %s", ve.Kind)
	}
}

func TestValidate_RejectsReplayedNonce(t *testing.T) {
	priv, _ := btcec.NewPrivateKey()
	pubHex := hex.EncodeToString(priv.PubKey().SerializeCompressed())
	raw := buildEnvelope(t, priv, "REC-1", "n1", time.Now().Unix())

	v := NewValidator(600,
		&fakeNonces{seen: map[string]bool{pubHex + "|n1": true}},
		&fakeSigners{active: map[string]bool{pubHex: true}})

	_, err := v.Validate(context.Background(), raw)
	ve, ok := err.(*ValidationError)
	if !ok {
		t.Fatalf("expected *ValidationError, got %T: %v", err, err)
	}
	if ve.Kind != ErrorReplayDetected {
		t.Fatalf("expected ReplayDetected, got %s", ve.Kind)
	}
}

func TestValidate_RejectsUnknownSigner(t *testing.T) {
	priv, _ := btcec.NewPrivateKey()
	raw := buildEnvelope(t, priv, "REC-1", "n1", time.Now().Unix())

	v := NewValidator(600, &fakeNonces{seen: map[string]bool{}}, &fakeSigners{active: map[string]bool{}})

	_, err := v.Validate(context.Background(), raw)
	ve, ok := err.(*ValidationError)
	if !ok {
		t.Fatalf("expected *ValidationError, got %T: %v", err, err)
	}
	if ve.Kind != ErrorUnknownSigner {
		t.Fatalf("expected UnknownSigner, got %s", ve.Kind)
	}
}

func TestValidate_RejectsBadSignature(t *testing.T) {
	priv, _ := btcec.NewPrivateKey()
	pubHex := hex.EncodeToString(priv.PubKey().SerializeCompressed())
	raw := buildEnvelope(t, priv, "REC-1", "n1", time.Now().Unix())

	// Keep the original signature but re-marshal the envelope with a tampered
	// record, so the signature no longer matches the record's hash.
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	var rec Record
	json.Unmarshal(env.Record, &rec)
	rec.AssetType = "tampered"
	tamperedRecBytes, _ := json.Marshal(rec)
	env.Record = tamperedRecBytes
	tamperedRaw, _ := json.Marshal(env)

	v := NewValidator(600, &fakeNonces{seen: map[string]bool{}}, &fakeSigners{active: map[string]bool{pubHex: true}})

	_, err := v.Validate(context.Background(), tamperedRaw)
	ve, ok := err.(*ValidationError)
	if !ok {
		t.Fatalf("expected *ValidationError, got %T: %v", err, err)
	}
	if ve.Kind != ErrorInvalidSignature {
		t.Fatalf("expected InvalidSignature, got %s", ve.Kind)
	}
}
