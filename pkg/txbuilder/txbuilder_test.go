package txbuilder

import (
	"strings"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"

	"github.com/certen/anchorsvc/pkg/pool"
)

func testUTXO(t *testing.T, priv *btcec.PrivateKey) *pool.UTXO {
	t.Helper()

	addr, err := btcutil.NewAddressPubKeyHash(btcutil.Hash160(priv.PubKey().SerializeCompressed()), &chaincfg.MainNetParams)
	if err != nil {
		t.Fatalf("new address: %v", err)
	}
	script, err := txscript.PayToAddrScript(addr)
	if err != nil {
		t.Fatalf("pay to addr script: %v", err)
	}

	return &pool.UTXO{
		ID:            1,
		TxID:          strings.Repeat("ab", 32),
		Vout:          0,
		Satoshis:      1000,
		LockingScript: script,
		Address:       addr.EncodeAddress(),
	}
}

func TestBuild_ProducesOneInputOneDataOutputOneChangeOutput(t *testing.T) {
	priv, _ := btcec.NewPrivateKey()
	utxo := testUTXO(t, priv)

	changeAddr, err := btcutil.NewAddressPubKeyHash(btcutil.Hash160(priv.PubKey().SerializeCompressed()), &chaincfg.MainNetParams)
	if err != nil {
		t.Fatalf("change address: %v", err)
	}

	var hash [32]byte
	copy(hash[:], []byte(strings.Repeat("h", 32)))

	built, err := Build(utxo, hash, changeAddr, priv, 100)
	if err != nil {
		t.Fatalf("Build error: %v", err)
	}
	if len(built.RawTx) == 0 {
		t.Fatal("expected non-empty raw transaction")
	}
	if built.FeeSats <= 0 {
		t.Fatalf("expected positive fee, got %d", built.FeeSats)
	}
	if built.TxID == "" {
		t.Fatal("expected non-empty txid")
	}
}

func TestBuild_RejectsFeeExceedingInputValue(t *testing.T) {
	priv, _ := btcec.NewPrivateKey()
	utxo := testUTXO(t, priv)
	utxo.Satoshis = 1 // too small to cover any realistic fee

	changeAddr, _ := btcutil.NewAddressPubKeyHash(btcutil.Hash160(priv.PubKey().SerializeCompressed()), &chaincfg.MainNetParams)

	var hash [32]byte
	_, err := Build(utxo, hash, changeAddr, priv, 100000)
	if err == nil {
		t.Fatal("expected error when fee exceeds input value")
	}
}
