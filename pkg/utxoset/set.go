// Package utxoset tracks every unspent transaction output the chain
// manager, mempool and node orchestrator share.
package utxoset

import (
	"sync"

	"github.com/chainkit/ledger/pkg/chaintypes"
)

// Set is the UTXO set: every output keyed by the pointer that names it.
type Set struct {
	mu    sync.RWMutex
	utxos map[chaintypes.Pointer]chaintypes.UTXO
}

// New creates an empty set.
func New() *Set {
	return &Set{utxos: make(map[chaintypes.Pointer]chaintypes.UTXO)}
}

// Get returns the UTXO at pointer, if any.
func (s *Set) Get(p chaintypes.Pointer) (chaintypes.UTXO, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.utxos[p]
	return u, ok
}

// All returns a snapshot slice of every UTXO currently tracked.
func (s *Set) All() []chaintypes.UTXO {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]chaintypes.UTXO, 0, len(s.utxos))
	for _, u := range s.utxos {
		out = append(out, u)
	}
	return out
}

// Insert adds or overwrites utxos by their pointer.
func (s *Set) Insert(utxos []chaintypes.UTXO) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range utxos {
		s.utxos[u.Pointer] = u
	}
}

// Remove deletes a single pointer, if present.
func (s *Set) Remove(p chaintypes.Pointer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.utxos, p)
}

// RemoveMany deletes every pointer present in pointers, ignoring misses
// — the way the reference rollback path silently skips pointers already
// gone from the set.
func (s *Set) RemoveMany(pointers []chaintypes.Pointer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range pointers {
		delete(s.utxos, p)
	}
}

// Confirm marks the UTXO at p as confirmed (it cleared a block).
func (s *Set) Confirm(p chaintypes.Pointer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.utxos[p]; ok {
		u.Confirmed = true
		s.utxos[p] = u
	}
}

// SignFromTx marks every UTXO tx.TxIn spends as no longer unspent —
// reserving it against double-spend before the tx confirms.
func (s *Set) SignFromTx(tx chaintypes.Tx) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, vin := range tx.TxIn {
		if u, ok := s.utxos[vin.ToSpend]; ok {
			u.Unspent = false
			s.utxos[vin.ToSpend] = u
		}
	}
}

// UTXOsOfAddresses returns every unspent UTXO paying one of addrs.
func (s *Set) UTXOsOfAddresses(addrs []string) []chaintypes.UTXO {
	want := make(map[string]bool, len(addrs))
	for _, a := range addrs {
		want[a] = true
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []chaintypes.UTXO
	for _, u := range s.utxos {
		if want[u.Vout.ToAddr] && u.Unspent {
			out = append(out, u)
		}
	}
	return out
}

// Balance sums the value of every unspent UTXO paying one of addrs.
func (s *Set) Balance(addrs []string) int64 {
	var total int64
	for _, u := range s.UTXOsOfAddresses(addrs) {
		total += u.Vout.Value
	}
	return total
}

func utxosFromTx(tx chaintypes.Tx, confirmed bool) []chaintypes.UTXO {
	out := make([]chaintypes.UTXO, len(tx.TxOut))
	for i, vout := range tx.TxOut {
		out[i] = chaintypes.UTXO{
			Pointer:   chaintypes.Pointer{TxID: tx.ID(), N: i},
			Vout:      vout,
			Unspent:   true,
			Confirmed: confirmed,
		}
	}
	return out
}

// AddFromTx inserts a mempool transaction's outputs as unconfirmed
// UTXOs — the mempool's speculative spend chain.
func (s *Set) AddFromTx(tx chaintypes.Tx) {
	s.Insert(utxosFromTx(tx, false))
}

// RemoveSpentFromTxs deletes the UTXO each tx in txs spends and returns
// the deleted records, so a caller can restore them on rollback.
func (s *Set) RemoveSpentFromTxs(txs []chaintypes.Tx) []chaintypes.UTXO {
	s.mu.Lock()
	defer s.mu.Unlock()
	var removed []chaintypes.UTXO
	for _, tx := range txs {
		for _, vin := range tx.TxIn {
			if u, ok := s.utxos[vin.ToSpend]; ok {
				removed = append(removed, u)
				delete(s.utxos, vin.ToSpend)
			}
		}
	}
	return removed
}

// ConfirmFromTxs inserts confirmed UTXOs for every output in txs (the
// transactions of a block just applied). When allowFromPool is true,
// the coinbase's outputs are confirmed fresh but every other tx's
// outputs were likely already sitting in the set as unconfirmed mempool
// UTXOs — this simply overwrites them as confirmed and returns the
// unconfirmed copies it displaced so a rollback can restore them.
// When allowFromPool is false every output is inserted confirmed with
// no prior copy to preserve.
func (s *Set) ConfirmFromTxs(txs []chaintypes.Tx, allowFromPool bool) (pointers []chaintypes.Pointer, priorUnconfirmed []chaintypes.UTXO) {
	for _, tx := range txs {
		for i := range tx.TxOut {
			pointers = append(pointers, chaintypes.Pointer{TxID: tx.ID(), N: i})
		}
	}

	if allowFromPool {
		s.mu.RLock()
		for _, p := range pointers {
			if u, ok := s.utxos[p]; ok {
				priorUnconfirmed = append(priorUnconfirmed, u)
			}
		}
		s.mu.RUnlock()
		s.Insert(flattenUTXOs(txs, true))
		return pointers, priorUnconfirmed
	}

	s.Insert(flattenUTXOs(txs, true))
	return pointers, nil
}

func flattenUTXOs(txs []chaintypes.Tx, confirmed bool) []chaintypes.UTXO {
	var out []chaintypes.UTXO
	for _, tx := range txs {
		out = append(out, utxosFromTx(tx, confirmed)...)
	}
	return out
}
