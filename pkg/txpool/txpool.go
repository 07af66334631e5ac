// Package txpool holds transactions waiting to be mined (MemPool) and
// transactions waiting on a UTXO that hasn't arrived yet (OrphanPool).
package txpool

import (
	"sync"

	"github.com/chainkit/ledger/pkg/chaintypes"
)

// MemPool is the set of transactions a node is willing to mine,
// keyed by transaction ID.
type MemPool struct {
	mu  sync.RWMutex
	txs map[string]chaintypes.Tx
}

// NewMemPool creates an empty mempool.
func NewMemPool() *MemPool {
	return &MemPool{txs: make(map[string]chaintypes.Tx)}
}

// Add inserts tx, keyed by its own ID.
func (p *MemPool) Add(tx chaintypes.Tx) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.txs[tx.ID()] = tx
}

// Has reports whether a transaction with this ID is already pooled.
func (p *MemPool) Has(id string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.txs[id]
	return ok
}

// All returns every pooled transaction, order unspecified.
func (p *MemPool) All() []chaintypes.Tx {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]chaintypes.Tx, 0, len(p.txs))
	for _, tx := range p.txs {
		out = append(out, tx)
	}
	return out
}

// RemoveTxs deletes every transaction in txs that is present in the
// pool and returns the removed set, keyed by ID, so a chain reorg can
// restore them.
func (p *MemPool) RemoveTxs(txs []chaintypes.Tx) map[string]chaintypes.Tx {
	p.mu.Lock()
	defer p.mu.Unlock()
	removed := make(map[string]chaintypes.Tx)
	for _, tx := range txs {
		id := tx.ID()
		if _, ok := p.txs[id]; ok {
			removed[id] = p.txs[id]
			delete(p.txs, id)
		}
	}
	return removed
}

// Restore re-inserts a set of previously removed transactions — the
// rollback counterpart to RemoveTxs.
func (p *MemPool) Restore(txs map[string]chaintypes.Tx) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for id, tx := range txs {
		p.txs[id] = tx
	}
}

// SpendsDouble reports whether tx shares a spent outpoint with any
// transaction already in the pool.
func (p *MemPool) SpendsDouble(tx chaintypes.Tx) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	spent := make(map[chaintypes.Pointer]bool)
	for _, other := range p.txs {
		for _, vin := range other.TxIn {
			spent[vin.ToSpend] = true
		}
	}
	for _, vin := range tx.TxIn {
		if spent[vin.ToSpend] {
			return true
		}
	}
	return false
}

// OrphanPool holds transactions that named a UTXO the node doesn't
// have yet — most often because the transaction that creates it hasn't
// arrived or confirmed.
type OrphanPool struct {
	mu  sync.RWMutex
	txs map[string]chaintypes.Tx
}

// NewOrphanPool creates an empty orphan pool.
func NewOrphanPool() *OrphanPool {
	return &OrphanPool{txs: make(map[string]chaintypes.Tx)}
}

// Add inserts tx into the orphan pool.
func (p *OrphanPool) Add(tx chaintypes.Tx) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.txs[tx.ID()] = tx
}

// Remove deletes the transaction with the given ID.
func (p *OrphanPool) Remove(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.txs, id)
}

// Snapshot returns a point-in-time copy of every orphaned transaction —
// the reference implementation re-sweeps this copy so a transaction
// that resolves mid-sweep doesn't retrigger itself.
func (p *OrphanPool) Snapshot() []chaintypes.Tx {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]chaintypes.Tx, 0, len(p.txs))
	for _, tx := range p.txs {
		out = append(out, tx)
	}
	return out
}

// Len reports how many transactions are currently orphaned.
func (p *OrphanPool) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.txs)
}
