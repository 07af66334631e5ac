// Package validate holds the chain's acceptance rules: what makes a
// transaction or a block legal to apply.
package validate

import (
	"math/big"

	"github.com/chainkit/ledger/pkg/chaintypes"
	"github.com/chainkit/ledger/pkg/script"
	"github.com/chainkit/ledger/pkg/txpool"
	"github.com/chainkit/ledger/pkg/utxoset"
	"github.com/chainkit/ledger/pkg/wallet"
)

// Validator checks transactions and blocks against a UTXO set.
// It holds no mutable state of its own; every call reads the set it's
// given.
type Validator struct {
	UTXOs *utxoset.Set
}

// New creates a Validator over a UTXO set.
func New(utxos *utxoset.Set) *Validator {
	return &Validator{UTXOs: utxos}
}

// CalculateFees sums the fee field recorded on each tx.
func CalculateFees(txs []chaintypes.Tx) int64 {
	var total int64
	for _, tx := range txs {
		total += tx.Fee
	}
	return total
}

func basicShapeOK(tx chaintypes.Tx) bool {
	return len(tx.TxIn) > 0 && len(tx.TxOut) > 0
}

// doubleSpendsPool reports whether tx is already pooled, or shares a
// spent outpoint with anything that is.
func doubleSpendsPool(tx chaintypes.Tx, pool *txpool.MemPool) bool {
	if pool.Has(tx.ID()) {
		return true
	}
	return pool.SpendsDouble(tx)
}

// ValidateTx checks tx against the UTXO set and mempool, exactly the
// way the reference node's verify_tx does: shape, then double-spend,
// then per-input ownership and signature, then that inputs cover
// outputs. A tx naming a UTXO the set doesn't have yet is dropped into
// orphans instead of rejected outright.
func (v *Validator) ValidateTx(tx chaintypes.Tx, pool *txpool.MemPool, orphans *txpool.OrphanPool) bool {
	if !basicShapeOK(tx) {
		return false
	}
	if doubleSpendsPool(tx, pool) {
		return false
	}

	var available int64
	for _, vin := range tx.TxIn {
		utxo, ok := v.UTXOs.Get(vin.ToSpend)
		if !ok {
			orphans.Add(tx)
			return false
		}

		message := wallet.CreateSigMessage(vin.Pubkey, vin.ToSpend, tx.TxOut)
		engine := script.NewEngine(message)
		tokens := append([]interface{}{vin.Signature, vin.Pubkey}, lockScriptTokens(utxo.Vout)...)
		result, err := engine.Run(tokens)
		if err != nil {
			return false
		}
		ok2, isBool := result.(bool)
		if !isBool || !ok2 {
			return false
		}

		available += utxo.Vout.Value
	}

	var wanted int64
	for _, vout := range tx.TxOut {
		wanted += vout.Value
	}
	return available >= wanted
}

func lockScriptTokens(vout chaintypes.Vout) []interface{} {
	ops := vout.PubkeyScript()
	tokens := make([]interface{}, len(ops))
	for i, s := range ops {
		tokens[i] = s
	}
	return tokens
}

// ValidateCoinbase reports whether tx is a well-formed coinbase paying
// exactly reward.
func ValidateCoinbase(tx chaintypes.Tx, reward int64) bool {
	if !tx.IsCoinbase() {
		return false
	}
	return len(tx.TxOut) == 1 && tx.TxOut[0].Value == reward
}

// CalculateTarget returns the PoW target for a given difficulty-bits
// setting: a block hash, read as an integer, must fall below it.
func CalculateTarget(bits int) *big.Int {
	target := big.NewInt(1)
	return target.Lsh(target, uint(256-bits))
}

// ValidateBlockBasic checks a block's proof of work.
func ValidateBlockBasic(block chaintypes.Block) bool {
	hashInt, ok := new(big.Int).SetString(block.Hash(), 16)
	if !ok {
		return false
	}
	return hashInt.Cmp(CalculateTarget(block.Bits)) < 0
}

// ValidateBlockTxs checks a block carries at least a coinbase and one
// other transaction, and that the coinbase pays exactly reward.
func ValidateBlockTxs(block chaintypes.Block, reward int64) bool {
	if len(block.Txs) < 2 {
		return false
	}
	return ValidateCoinbase(block.Txs[0], reward)
}

// DoubleSpendsWithinBlock reports whether any two transactions in txs
// (excluding the coinbase, which the caller should already have
// stripped) spend the same outpoint.
func DoubleSpendsWithinBlock(txs []chaintypes.Tx) bool {
	seen := make(map[chaintypes.Pointer]bool)
	for _, tx := range txs {
		for _, vin := range tx.TxIn {
			if seen[vin.ToSpend] {
				return true
			}
			seen[vin.ToSpend] = true
		}
	}
	return false
}

// ValidateBlock checks a whole block: proof of work, coinbase reward
// against the block's fees, no intra-block double spend, and every
// non-coinbase transaction against the UTXO set.
func (v *Validator) ValidateBlock(block chaintypes.Block, fixedReward int64) bool {
	if !ValidateBlockBasic(block) || len(block.Txs) == 0 {
		return false
	}
	rest := block.Txs[1:]
	reward := fixedReward + CalculateFees(rest)
	if !ValidateBlockTxs(block, reward) {
		return false
	}
	if DoubleSpendsWithinBlock(rest) {
		return false
	}
	emptyPool := txpool.NewMemPool()
	emptyOrphans := txpool.NewOrphanPool()
	for _, tx := range rest {
		if !v.ValidateTx(tx, emptyPool, emptyOrphans) {
			return false
		}
	}
	return true
}
