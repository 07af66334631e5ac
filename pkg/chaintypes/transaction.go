package chaintypes

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/chainkit/ledger/pkg/hashutil"
)

// Vin spends a prior output, proving ownership with a signature over the
// pubkey, the outpoint being spent, and the new transaction's outputs.
type Vin struct {
	ToSpend   Pointer `json:"to_spend"`
	Signature []byte  `json:"signature"`
	Pubkey    []byte  `json:"pubkey"`
}

// SigScript is the concatenation pushed onto the script stack ahead of a
// Vout's pubkey script: signature followed by pubkey.
func (v Vin) SigScript() []byte {
	out := make([]byte, 0, len(v.Signature)+len(v.Pubkey))
	out = append(out, v.Signature...)
	out = append(out, v.Pubkey...)
	return out
}

func (v Vin) CanonicalString() string {
	return fmt.Sprintf("Vin(to_spend:%s, signature:%s, pubkey:%s)",
		v.ToSpend.CanonicalString(), hexOrEmpty(v.Signature), hexOrEmpty(v.Pubkey))
}

func hexOrEmpty(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	return hex.EncodeToString(b)
}

// Vout pays an amount to an address. PubkeyScript is the script a
// spending Vin's SigScript must satisfy.
type Vout struct {
	ToAddr string `json:"to_addr"`
	Value  int64  `json:"value"`
}

// PubkeyScript is the locking script attached to every Vout: prove you
// hold the address's key, then check the signature against it.
func (v Vout) PubkeyScript() []string {
	return []string{"OP_DUP", "OP_ADDR", v.ToAddr, "OP_EQ", "OP_CHECKSIG"}
}

func (v Vout) CanonicalString() string {
	return fmt.Sprintf("Vout(to_addr:%s, value:%d)", v.ToAddr, v.Value)
}

// Tx is a transaction: inputs spending prior outputs, new outputs, a
// flat fee, and a locktime carried through unused by validation today.
type Tx struct {
	TxIn     []Vin  `json:"tx_in"`
	TxOut    []Vout `json:"tx_out"`
	Fee      int64  `json:"fee"`
	Locktime int64  `json:"locktime"`
}

// IsCoinbase reports whether tx is a block-reward transaction: exactly
// one input, spending the zero pointer.
func (t Tx) IsCoinbase() bool {
	return len(t.TxIn) == 1 && t.TxIn[0].ToSpend.IsZero()
}

// NewCoinbase builds the reward transaction a miner prepends to a
// candidate block. seed should be unique per block (the nonce
// search runs after this, so a block hash based seed is unavailable
// here; callers pass random bytes instead).
func NewCoinbase(payToAddr string, value int64, seed []byte) Tx {
	return Tx{
		TxIn: []Vin{{
			ToSpend:   ZeroPointer,
			Signature: seed,
			Pubkey:    nil,
		}},
		TxOut: []Vout{{ToAddr: payToAddr, Value: value}},
	}
}

// ToString is the canonical textual encoding hashed into the Tx's ID
// and into the signature message covering its outputs.
func (t Tx) ToString() string {
	var in, out strings.Builder
	in.WriteByte('[')
	for i, v := range t.TxIn {
		if i > 0 {
			in.WriteString(", ")
		}
		in.WriteString(v.CanonicalString())
	}
	in.WriteByte(']')
	out.WriteByte('[')
	for i, v := range t.TxOut {
		if i > 0 {
			out.WriteString(", ")
		}
		out.WriteString(v.CanonicalString())
	}
	out.WriteByte(']')
	return fmt.Sprintf("%s%s%d", in.String(), out.String(), t.Locktime)
}

// ID is the transaction's identity hash, Sha256d of ToString().
func (t Tx) ID() string {
	return hashutil.Sha256d(t.ToString())
}

func (t Tx) CanonicalString() string { return t.ToString() }
