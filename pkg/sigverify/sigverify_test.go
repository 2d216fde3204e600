package sigverify

import (
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
)

func TestVerify_ValidSignatureAccepted(t *testing.T) {
	priv, err := btcec.NewPrivateKey()
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}
	pubHex := hex.EncodeToString(priv.PubKey().SerializeCompressed())

	hash := sha256.Sum256([]byte("record bytes"))

	sig, err := Sign(priv, hash[:])
	if err != nil {
		t.Fatalf("Sign error: %v", err)
	}

	ok, err := Verify(pubHex, hash[:], sig)
	if err != nil {
		t.Fatalf("Verify error: %v", err)
	}
	if !ok {
		t.Fatal("expected signature to verify")
	}
}

func TestVerify_WrongKeyRejected(t *testing.T) {
	priv, _ := btcec.NewPrivateKey()
	other, _ := btcec.NewPrivateKey()
	otherPubHex := hex.EncodeToString(other.PubKey().SerializeCompressed())

	hash := sha256.Sum256([]byte("record bytes"))
	sig, err := Sign(priv, hash[:])
	if err != nil {
		t.Fatalf("Sign error: %v", err)
	}

	ok, err := Verify(otherPubHex, hash[:], sig)
	if err != nil {
		t.Fatalf("Verify error: %v", err)
	}
	if ok {
		t.Fatal("expected signature to be rejected for wrong key")
	}
}

func TestVerify_MalformedPublicKeyReturnsError(t *testing.T) {
	hash := sha256.Sum256([]byte("x"))
	_, err := Verify("not-hex", hash[:], []byte{0x30, 0x00})
	if err == nil {
		t.Fatal("expected error for malformed public key")
	}
}

func TestVerify_MalformedSignatureReturnsError(t *testing.T) {
	priv, _ := btcec.NewPrivateKey()
	pubHex := hex.EncodeToString(priv.PubKey().SerializeCompressed())
	hash := sha256.Sum256([]byte("x"))

	_, err := Verify(pubHex, hash[:], []byte{0xff, 0xff, 0xff})
	if err == nil {
		t.Fatal("expected error for malformed signature")
	}
}

func TestVerify_WrongHashLengthReturnsError(t *testing.T) {
	priv, _ := btcec.NewPrivateKey()
	pubHex := hex.EncodeToString(priv.PubKey().SerializeCompressed())

	_, err := Verify(pubHex, []byte{1, 2, 3}, []byte{0x30, 0x00})
	if err == nil {
		t.Fatal("expected error for wrong hash length")
	}
}
