// Package metrics collects the counters a running node exposes about its
// own progress: blocks and transactions accepted, pool and UTXO set size,
// and the peer count the gossip layer currently sees.
package metrics

import (
	"sync/atomic"
)

// Metrics is a node's running counters. Every field is updated with
// atomics so callers on the P2P receive loop, the mining loop and the
// orchestrator can all write concurrently without a lock.
type Metrics struct {
	blocksAccepted uint64
	blocksRejected uint64
	txsAccepted    uint64
	txsRejected    uint64
	reorgCount     uint64

	peerCount    int32
	mempoolSize  int32
	orphanTxSize int32
	utxoSetSize  uint64
}

// New creates an empty counter set.
func New() *Metrics {
	return &Metrics{}
}

func (m *Metrics) RecordBlockAccepted() { atomic.AddUint64(&m.blocksAccepted, 1) }
func (m *Metrics) RecordBlockRejected() { atomic.AddUint64(&m.blocksRejected, 1) }
func (m *Metrics) RecordTxAccepted()    { atomic.AddUint64(&m.txsAccepted, 1) }
func (m *Metrics) RecordTxRejected()    { atomic.AddUint64(&m.txsRejected, 1) }
func (m *Metrics) RecordReorg()         { atomic.AddUint64(&m.reorgCount, 1) }

func (m *Metrics) SetPeerCount(n int)    { atomic.StoreInt32(&m.peerCount, int32(n)) }
func (m *Metrics) SetMempoolSize(n int)  { atomic.StoreInt32(&m.mempoolSize, int32(n)) }
func (m *Metrics) SetOrphanTxSize(n int) { atomic.StoreInt32(&m.orphanTxSize, int32(n)) }
func (m *Metrics) SetUTXOSetSize(n int)  { atomic.StoreUint64(&m.utxoSetSize, uint64(n)) }

// Snapshot is a point-in-time read of every counter, for logging or a
// status command.
type Snapshot struct {
	BlocksAccepted uint64
	BlocksRejected uint64
	TxsAccepted    uint64
	TxsRejected    uint64
	ReorgCount     uint64
	PeerCount      int
	MempoolSize    int
	OrphanTxSize   int
	UTXOSetSize    int
}

func (m *Metrics) Snapshot() Snapshot {
	return Snapshot{
		BlocksAccepted: atomic.LoadUint64(&m.blocksAccepted),
		BlocksRejected: atomic.LoadUint64(&m.blocksRejected),
		TxsAccepted:    atomic.LoadUint64(&m.txsAccepted),
		TxsRejected:    atomic.LoadUint64(&m.txsRejected),
		ReorgCount:     atomic.LoadUint64(&m.reorgCount),
		PeerCount:      int(atomic.LoadInt32(&m.peerCount)),
		MempoolSize:    int(atomic.LoadInt32(&m.mempoolSize)),
		OrphanTxSize:   int(atomic.LoadInt32(&m.orphanTxSize)),
		UTXOSetSize:    int(atomic.LoadUint64(&m.utxoSetSize)),
	}
}

func (s Snapshot) Fields() map[string]interface{} {
	return map[string]interface{}{
		"blocks_accepted": s.BlocksAccepted,
		"blocks_rejected": s.BlocksRejected,
		"txs_accepted":    s.TxsAccepted,
		"txs_rejected":    s.TxsRejected,
		"reorg_count":     s.ReorgCount,
		"peer_count":      s.PeerCount,
		"mempool_size":    s.MempoolSize,
		"orphan_tx_size":  s.OrphanTxSize,
		"utxo_set_size":   s.UTXOSetSize,
	}
}
