// Package persist snapshots a node's full state — chain, mempool,
// orphan pools, UTXO set, wallet and peer list — into a LevelDB
// database, one key per section, so a restart can resume without a
// full chain resync.
package persist

import (
	"encoding/json"
	"fmt"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"

	"github.com/chainkit/ledger/pkg/chaintypes"
)

var sectionKeys = []string{
	"chain",
	"outbox_txs",
	"mempool_txs",
	"utxo_set",
	"peer_nodes",
	"candidate_block",
	"orphan_txs",
	"orphan_blocks",
	"wallet",
}

// Snapshot is every piece of state a node persists between restarts.
// Field order matches the reference implementation's save_data/
// load_data NDJSON section order, now keyed individually instead of
// written as consecutive lines.
type Snapshot struct {
	Chain          []chaintypes.Block `json:"chain"`
	OutboxTxs      []chaintypes.Tx    `json:"outbox_txs"`
	MempoolTxs     []chaintypes.Tx    `json:"mempool_txs"`
	UTXOs          []chaintypes.UTXO  `json:"utxo_set"`
	PeerNodes      []string           `json:"peer_nodes"`
	CandidateBlock *chaintypes.Block  `json:"candidate_block"`
	OrphanTxs      []chaintypes.Tx    `json:"orphan_txs"`
	OrphanBlocks   []chaintypes.Block `json:"orphan_blocks"`
	WalletHex      []byte             `json:"wallet"`
}

// Store wraps a LevelDB database opened over a node's data directory.
type Store struct {
	db *leveldb.DB
}

// Open opens or creates the snapshot database at path.
func Open(path string) (*Store, error) {
	db, err := leveldb.OpenFile(path, &opt.Options{Compression: opt.SnappyCompression})
	if err != nil {
		return nil, fmt.Errorf("persist: open database: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Save writes every section of snap as its own key, in one atomic
// batch.
func (s *Store) Save(snap Snapshot) error {
	batch := new(leveldb.Batch)

	sections := map[string]interface{}{
		"chain":           snap.Chain,
		"outbox_txs":      snap.OutboxTxs,
		"mempool_txs":     snap.MempoolTxs,
		"utxo_set":        snap.UTXOs,
		"peer_nodes":      snap.PeerNodes,
		"candidate_block": snap.CandidateBlock,
		"orphan_txs":      snap.OrphanTxs,
		"orphan_blocks":   snap.OrphanBlocks,
		"wallet":          snap.WalletHex,
	}

	for _, key := range sectionKeys {
		raw, err := json.Marshal(sections[key])
		if err != nil {
			return fmt.Errorf("persist: encode section %s: %w", key, err)
		}
		batch.Put([]byte(key), raw)
	}

	return s.db.Write(batch, nil)
}

// Load reads every section back into a Snapshot. A key with no value
// yet (fresh database) leaves the corresponding field at its zero
// value instead of erroring.
func (s *Store) Load() (Snapshot, error) {
	var snap Snapshot

	targets := map[string]interface{}{
		"chain":           &snap.Chain,
		"outbox_txs":      &snap.OutboxTxs,
		"mempool_txs":     &snap.MempoolTxs,
		"utxo_set":        &snap.UTXOs,
		"peer_nodes":      &snap.PeerNodes,
		"candidate_block": &snap.CandidateBlock,
		"orphan_txs":      &snap.OrphanTxs,
		"orphan_blocks":   &snap.OrphanBlocks,
		"wallet":          &snap.WalletHex,
	}

	for _, key := range sectionKeys {
		raw, err := s.db.Get([]byte(key), nil)
		if err == leveldb.ErrNotFound {
			continue
		}
		if err != nil {
			return Snapshot{}, fmt.Errorf("persist: read section %s: %w", key, err)
		}
		if err := json.Unmarshal(raw, targets[key]); err != nil {
			return Snapshot{}, fmt.Errorf("persist: decode section %s: %w", key, err)
		}
	}

	return snap, nil
}
