package chaintypes

import "fmt"

// UTXO is a single unspent output tracked by the UTXO set: the output
// itself, the pointer that names it, and whether it has cleared a
// confirming block yet.
type UTXO struct {
	Pointer   Pointer `json:"pointer"`
	Vout      Vout    `json:"vout"`
	Unspent   bool    `json:"unspent"`
	Confirmed bool    `json:"confirmed"`
}

func (u UTXO) CanonicalString() string {
	return fmt.Sprintf("UTXO(pointer:%s, vout:%s, unspent:%t, confirmed:%t)",
		u.Pointer.CanonicalString(), u.Vout.CanonicalString(), u.Unspent, u.Confirmed)
}
