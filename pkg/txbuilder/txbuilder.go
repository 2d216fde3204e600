// Copyright 2025 Certen Protocol
//
// Package txbuilder assembles and signs the one-input, one-data-output,
// one-change-output transaction that anchors a record hash to the ledger.

package txbuilder

import (
	"bytes"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"

	"github.com/certen/anchorsvc/pkg/pool"
)

// payload is the on-ledger, bit-exact contract of §6: an object canonicalized
// per the canonicalization rules, embedding the protocol tag, version, and
// record hash.
type payload struct {
	Protocol string `json:"p"`
	Version  int    `json:"v"`
	Hash     string `json:"hash"`
}

// BuiltTX is the output of Build: serialized raw bytes ready for broadcast,
// plus the sizing/fee bookkeeping the caller needs for logging and retries.
type BuiltTX struct {
	RawTx    []byte
	TxID     string
	VSize    int64
	FeeSats  int64
}

// Build assembles a transaction spending the reserved UTXO into a zero-value
// data-carrier output (the canonical payload embedding recordHash) and a
// change output, signs the input with signingKey, and returns the serialized
// bytes. Fee is computed from estimated virtual size × feeRateSatsPerKB.
func Build(utxo *pool.UTXO, recordHash [32]byte, changeAddr btcutil.Address, signingKey *btcec.PrivateKey, feeRateSatsPerKB int64) (*BuiltTX, error) {
	if utxo == nil {
		return nil, fmt.Errorf("txbuilder: utxo is nil")
	}

	prevTxHash, err := chainhash.NewHashFromStr(utxo.TxID)
	if err != nil {
		return nil, fmt.Errorf("txbuilder: invalid prior txid %q: %w", utxo.TxID, err)
	}
	prevOut := wire.NewOutPoint(prevTxHash, uint32(utxo.Vout))

	dataScript, err := dataCarrierScript(recordHash)
	if err != nil {
		return nil, fmt.Errorf("txbuilder: build data-carrier script: %w", err)
	}

	changeScript, err := txscript.PayToAddrScript(changeAddr)
	if err != nil {
		return nil, fmt.Errorf("txbuilder: build change script: %w", err)
	}

	tx := wire.NewMsgTx(wire.TxVersion)
	tx.AddTxIn(wire.NewTxIn(prevOut, nil, nil))
	tx.AddTxOut(wire.NewTxOut(0, dataScript))

	vsize := estimatedVSize(tx)
	feeSats := (vsize * feeRateSatsPerKB) / 1000
	changeValue := utxo.Satoshis - feeSats
	if changeValue < 0 {
		return nil, fmt.Errorf("txbuilder: fee %d sats exceeds input value %d sats", feeSats, utxo.Satoshis)
	}
	tx.AddTxOut(wire.NewTxOut(changeValue, changeScript))

	sigScript, err := txscript.SignatureScript(tx, 0, utxo.LockingScript, txscript.SigHashAll, signingKey, true)
	if err != nil {
		return nil, fmt.Errorf("txbuilder: sign input: %w", err)
	}
	tx.TxIn[0].SignatureScript = sigScript

	var buf bytes.Buffer
	if err := tx.Serialize(&buf); err != nil {
		return nil, fmt.Errorf("txbuilder: serialize: %w", err)
	}

	return &BuiltTX{
		RawTx:   buf.Bytes(),
		TxID:    tx.TxHash().String(),
		VSize:   int64(tx.SerializeSize()),
		FeeSats: feeSats,
	}, nil
}

// dataCarrierScript builds a zero-value, unspendable OP_RETURN-style output
// carrying the canonical payload bytes {"hash":"<hex>","p":"sl-drm","v":1}.
func dataCarrierScript(recordHash [32]byte) ([]byte, error) {
	p := payload{Protocol: "sl-drm", Version: 1, Hash: fmt.Sprintf("%x", recordHash)}
	raw, err := marshalCanonicalPayload(p)
	if err != nil {
		return nil, err
	}
	return txscript.NullDataScript(raw)
}

// estimatedVSize serializes the transaction as-is (pre-signature-script
// sizing is close enough for fee estimation since the server-controlled
// signature scheme has a fixed DER-ish size bound) to compute fee.
func estimatedVSize(tx *wire.MsgTx) int64 {
	return int64(tx.SerializeSize())
}

// ChainParams is exposed so callers can pick the appropriate network for
// address decoding (mainnet/testnet/regtest) without this package importing
// a runtime config dependency cycle.
var ChainParams = &chaincfg.MainNetParams
