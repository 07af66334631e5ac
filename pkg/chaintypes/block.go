package chaintypes

import (
	"fmt"
	"strings"

	"github.com/chainkit/ledger/pkg/hashutil"
)

// Block is one link of the chain: a header over a set of transactions,
// the first of which is always the coinbase.
type Block struct {
	Version         int    `json:"version"`
	Timestamp       int64  `json:"timestamp"`
	Bits            int    `json:"bits"`
	Nonce           int64  `json:"nonce"`
	PrevBlockHash   string `json:"prev_hash"`
	MerkleRootHash  string `json:"merkle_root"`
	Txs             []Tx   `json:"txs"`
}

// Header is the canonical string hashed into a block's identity. When
// nonce is non-nil it overrides b.Nonce, the way a miner probes
// candidate nonces without mutating the block between attempts.
func (b Block) Header(nonce *int64, merkleRoot *string) string {
	n := b.Nonce
	if nonce != nil {
		n = *nonce
	}
	root := b.MerkleRootHash
	if merkleRoot != nil {
		root = *merkleRoot
	}
	return fmt.Sprintf("%d%s%d%d%s%d", b.Version, b.PrevBlockHash, b.Timestamp, b.Bits, root, n)
}

// Hash is the block's identity: Sha256d of its canonical header.
func (b Block) Hash() string {
	return hashutil.Sha256d(b.Header(nil, nil))
}

func (b Block) CanonicalString() string {
	return fmt.Sprintf("Block(hash:%s)", b.Hash())
}

// TxIDs returns the IDs of every transaction in the block, in order —
// the leaves fed to the Merkle tree.
func (b Block) TxIDs() []string {
	ids := make([]string, len(b.Txs))
	for i, tx := range b.Txs {
		ids[i] = tx.ID()
	}
	return ids
}

func (b Block) String() string {
	var sb strings.Builder
	sb.WriteString(b.CanonicalString())
	return sb.String()
}
