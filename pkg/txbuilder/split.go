package txbuilder

import (
	"bytes"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"

	"github.com/certen/anchorsvc/pkg/database"
)

// BuildSplit assembles the replenisher's one-input, K-output maintenance
// transaction: k outputs of unitValueSatoshis (future publish inputs) plus
// one change output, spending a single funding/change input. Fee is
// computed the same way as Build.
func BuildSplit(input *database.UTXO, k int, unitValueSatoshis int64, changeAddr btcutil.Address, signingKey *btcec.PrivateKey, feeRateSatsPerKB int64) (*BuiltTX, error) {
	if input == nil {
		return nil, fmt.Errorf("txbuilder: split input is nil")
	}
	if k <= 0 {
		return nil, fmt.Errorf("txbuilder: split count must be positive, got %d", k)
	}

	prevTxHash, err := chainhash.NewHashFromStr(input.TxID)
	if err != nil {
		return nil, fmt.Errorf("txbuilder: invalid prior txid %q: %w", input.TxID, err)
	}
	prevOut := wire.NewOutPoint(prevTxHash, uint32(input.Vout))

	changeScript, err := txscript.PayToAddrScript(changeAddr)
	if err != nil {
		return nil, fmt.Errorf("txbuilder: build change script: %w", err)
	}
	// Split outputs pay the same address as the change output; the
	// replenisher's only goal is to mint more unit-value publish inputs, not
	// to redirect funds to a distinct destination.
	splitScript := changeScript

	tx := wire.NewMsgTx(wire.TxVersion)
	tx.AddTxIn(wire.NewTxIn(prevOut, nil, nil))
	for i := 0; i < k; i++ {
		tx.AddTxOut(wire.NewTxOut(unitValueSatoshis, splitScript))
	}

	vsize := estimatedVSize(tx)
	feeSats := (vsize * feeRateSatsPerKB) / 1000
	spent := unitValueSatoshis*int64(k) + feeSats
	changeValue := input.Satoshis - spent
	if changeValue < 0 {
		return nil, fmt.Errorf("txbuilder: split of %d x %d sats plus fee %d exceeds input value %d sats", k, unitValueSatoshis, feeSats, input.Satoshis)
	}
	tx.AddTxOut(wire.NewTxOut(changeValue, changeScript))

	sigScript, err := txscript.SignatureScript(tx, 0, input.LockingScript, txscript.SigHashAll, signingKey, true)
	if err != nil {
		return nil, fmt.Errorf("txbuilder: sign split input: %w", err)
	}
	tx.TxIn[0].SignatureScript = sigScript

	var buf bytes.Buffer
	if err := tx.Serialize(&buf); err != nil {
		return nil, fmt.Errorf("txbuilder: serialize split: %w", err)
	}

	return &BuiltTX{
		RawTx:   buf.Bytes(),
		TxID:    tx.TxHash().String(),
		VSize:   int64(tx.SerializeSize()),
		FeeSats: feeSats,
	}, nil
}
