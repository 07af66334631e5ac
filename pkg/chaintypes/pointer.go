// Package chaintypes holds the ledger's core data records: the pieces a
// transaction, a block and a spendable output are built from.
package chaintypes

import "fmt"

// Pointer identifies a single output of a transaction: the outpoint a
// Vin consumes.
type Pointer struct {
	TxID string `json:"tx_id"`
	N    int    `json:"n"`
}

// CanonicalString is the textual form hashed into a Tx ID and signature
// message. Its shape must stay stable: anything that changes it changes
// every derived hash and every existing signature.
func (p Pointer) CanonicalString() string {
	return fmt.Sprintf("Pointer(tx_id:%s, n:%d)", p.TxID, p.N)
}

func (p Pointer) String() string { return p.CanonicalString() }

// ZeroPointer is the Pointer used by a coinbase Vin, which spends
// nothing.
var ZeroPointer = Pointer{TxID: "", N: -1}

// IsZero reports whether p is the coinbase sentinel pointer.
func (p Pointer) IsZero() bool { return p == ZeroPointer }
