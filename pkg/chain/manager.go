// Package chain owns the append-only chain of blocks, the one-deep
// reorg the ledger supports, and the bookkeeping that lets a reorg be
// rolled back cleanly.
package chain

import (
	"math/big"
	"sync"

	"github.com/chainkit/ledger/pkg/chaintypes"
	"github.com/chainkit/ledger/pkg/txpool"
	"github.com/chainkit/ledger/pkg/utxoset"
	"github.com/chainkit/ledger/pkg/validate"
)

// Manager owns the chain, the UTXO set and the mempool/orphan pools,
// and applies the rules a received block or transaction must satisfy
// before being folded in.
type Manager struct {
	mu sync.Mutex

	UTXOs     *utxoset.Set
	Pool      *txpool.MemPool
	Orphans   *txpool.OrphanPool
	Validator *validate.Validator

	Reward            int64
	AllowUTXOFromPool bool

	chain        []chaintypes.Block
	orphanBlocks []chaintypes.Block

	backup rollbackBackup

	// OnReorg, if set, is called whenever ReceiveBlock wins a one-deep
	// fork against the current tip instead of simply extending it.
	OnReorg func()
}

type rollbackBackup struct {
	removedUTXOs      []chaintypes.UTXO
	confirmedPointers []chaintypes.Pointer
	priorUnconfirmed  []chaintypes.UTXO
	removedTxs        map[string]chaintypes.Tx
}

// New builds a Manager over an empty chain.
func New(utxos *utxoset.Set, pool *txpool.MemPool, orphans *txpool.OrphanPool, reward int64, allowUTXOFromPool bool) *Manager {
	return &Manager{
		UTXOs:             utxos,
		Pool:              pool,
		Orphans:           orphans,
		Validator:         validate.New(utxos),
		Reward:            reward,
		AllowUTXOFromPool: allowUTXOFromPool,
	}
}

// Chain returns a snapshot of the current best chain.
func (m *Manager) Chain() []chaintypes.Block {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]chaintypes.Block, len(m.chain))
	copy(out, m.chain)
	return out
}

// Tip returns the chain's last block.
func (m *Manager) Tip() (chaintypes.Block, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.chain) == 0 {
		return chaintypes.Block{}, false
	}
	return m.chain[len(m.chain)-1], true
}

// Height returns the number of blocks in the chain.
func (m *Manager) Height() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.chain)
}

// OrphanBlocks returns a snapshot of blocks parked waiting on a parent
// that hasn't arrived yet.
func (m *Manager) OrphanBlocks() []chaintypes.Block {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]chaintypes.Block, len(m.orphanBlocks))
	copy(out, m.orphanBlocks)
	return out
}

// LoadOrphanBlocks replaces the parked orphan-block set wholesale —
// used when restoring from a persisted snapshot.
func (m *Manager) LoadOrphanBlocks(blocks []chaintypes.Block) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orphanBlocks = append([]chaintypes.Block{}, blocks...)
}

// LoadChain replaces the chain wholesale — used when restoring from a
// persisted snapshot. It does not re-derive the UTXO set; the caller is
// expected to load that separately from the same snapshot.
func (m *Manager) LoadChain(blocks []chaintypes.Block) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.chain = append([]chaintypes.Block{}, blocks...)
}

// SetGenesis installs block as the chain's first block and confirms its
// outputs into the UTXO set directly, bypassing mempool bookkeeping —
// there is nothing to roll back a genesis block into.
func (m *Manager) SetGenesis(block chaintypes.Block) {
	m.mu.Lock()
	m.chain = []chaintypes.Block{block}
	m.mu.Unlock()
	m.UTXOs.Insert(utxosFromGenesis(block))
}

func utxosFromGenesis(block chaintypes.Block) []chaintypes.UTXO {
	var out []chaintypes.UTXO
	for _, tx := range block.Txs {
		for i, vout := range tx.TxOut {
			out = append(out, chaintypes.UTXO{
				Pointer:   chaintypes.Pointer{TxID: tx.ID(), N: i},
				Vout:      vout,
				Unspent:   true,
				Confirmed: true,
			})
		}
	}
	return out
}

func locateBlockByHash(chainBlocks []chaintypes.Block, prevHash string) int {
	for height, b := range chainBlocks {
		if b.Hash() == prevHash {
			return height + 1
		}
	}
	return -1
}

// AddTxToPool pools tx, and — when AllowUTXOFromPool is set — makes its
// outputs spendable immediately as unconfirmed UTXOs, the same
// optimistic-spend policy the reference node runs under by default.
func (m *Manager) AddTxToPool(tx chaintypes.Tx) {
	m.Pool.Add(tx)
	if m.AllowUTXOFromPool {
		m.UTXOs.AddFromTx(tx)
	}
}

// resweepOrphans re-validates every orphaned transaction once against
// the current UTXO set, over a stable snapshot so a transaction that
// clears mid-sweep can't immediately re-trigger itself.
func (m *Manager) resweepOrphans() {
	for _, tx := range m.Orphans.Snapshot() {
		if !m.Validator.ValidateTx(tx, m.Pool, m.Orphans) {
			continue
		}
		m.AddTxToPool(tx)
		m.Orphans.Remove(tx.ID())
	}
}

// applyBlock folds block's transactions into the UTXO set and drains
// them out of the mempool, capturing enough state that a subsequent
// reorg can call rollBack to undo exactly this application.
func (m *Manager) applyBlock(block chaintypes.Block) {
	removed := m.UTXOs.RemoveSpentFromTxs(block.Txs)
	pointers, priorUnconfirmed := m.UTXOs.ConfirmFromTxs(block.Txs, m.AllowUTXOFromPool)
	removedTxs := m.Pool.RemoveTxs(block.Txs)

	m.backup = rollbackBackup{
		removedUTXOs:      removed,
		confirmedPointers: pointers,
		priorUnconfirmed:  priorUnconfirmed,
		removedTxs:        removedTxs,
	}
}

// rollBack undoes the most recent applyBlock: restores the mempool
// entries it drained, puts back the UTXOs it spent, drops the
// confirmed outputs it created, and restores whatever unconfirmed
// copies those outputs displaced.
func (m *Manager) rollBack() {
	m.Pool.Restore(m.backup.removedTxs)
	m.UTXOs.Insert(m.backup.removedUTXOs)
	m.UTXOs.RemoveMany(m.backup.confirmedPointers)
	m.UTXOs.Insert(m.backup.priorUnconfirmed)
	m.backup = rollbackBackup{}
}

// ReceiveBlock validates block and, if it extends the tip or wins a
// one-deep fork against the tip, applies it. It reports whether the
// block was accepted.
func (m *Manager) ReceiveBlock(block chaintypes.Block) bool {
	if m.Orphans.Len() > 0 {
		m.resweepOrphans()
	}
	if !m.Validator.ValidateBlock(block, m.Reward) {
		return false
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	height := locateBlockByHash(m.chain, block.PrevBlockHash)
	switch {
	case height == -1:
		m.orphanBlocks = append(m.orphanBlocks, block)
		return false

	case height == len(m.chain):
		m.chain = append(m.chain, block)
		m.applyBlock(block)
		return true

	case height == len(m.chain)-1:
		tipHash, _ := new(big.Int).SetString(m.chain[len(m.chain)-1].Hash(), 16)
		newHash, _ := new(big.Int).SetString(block.Hash(), 16)
		if tipHash.Cmp(newHash) < 0 {
			return false
		}
		m.chain = m.chain[:len(m.chain)-1]
		m.chain = append(m.chain, block)
		m.rollBack()
		m.applyBlock(block)
		if m.OnReorg != nil {
			m.OnReorg()
		}
		return true

	default:
		return false
	}
}

// RescanOrphanBlocks retries every block parked as an orphan, in the
// order they arrived, after some other block extended the chain.
// Returns the number that were accepted.
func (m *Manager) RescanOrphanBlocks() int {
	m.mu.Lock()
	pending := m.orphanBlocks
	m.orphanBlocks = nil
	m.mu.Unlock()

	accepted := 0
	for _, b := range pending {
		if m.ReceiveBlock(b) {
			accepted++
		}
	}
	return accepted
}
