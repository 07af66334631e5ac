// Package node wires a wallet, a chain manager and the P2P gossip layer
// into a single running participant: it creates and receives
// transactions, mines and receives blocks, and gossips both to the
// peer mesh.
package node

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/chainkit/ledger/pkg/chain"
	"github.com/chainkit/ledger/pkg/chaintypes"
	"github.com/chainkit/ledger/pkg/config"
	"github.com/chainkit/ledger/pkg/logging"
	"github.com/chainkit/ledger/pkg/merkle"
	"github.com/chainkit/ledger/pkg/metrics"
	"github.com/chainkit/ledger/pkg/mining"
	"github.com/chainkit/ledger/pkg/p2p"
	"github.com/chainkit/ledger/pkg/persist"
	"github.com/chainkit/ledger/pkg/txpool"
	"github.com/chainkit/ledger/pkg/utxoset"
	"github.com/chainkit/ledger/pkg/validate"
	"github.com/chainkit/ledger/pkg/wallet"
)

// Node is one participant: it owns a wallet, the chain and its pools,
// and an outbox of transactions created but not yet broadcast. All of
// its mutable state beyond the chain manager's own bookkeeping is
// guarded by a single coarse lock, the way the reference peer guards
// its whole instance with one lock rather than one per collection.
type Node struct {
	mu sync.Mutex

	Wallet  *wallet.Wallet
	Address string

	Chain   *chain.Manager
	Metrics *metrics.Metrics

	cfg *config.Config
	log *logging.Logger
	p2p *p2p.Node

	outbox    []chaintypes.Tx
	candidate *chaintypes.Block

	longestPeerChain map[string]int
}

// New creates a node with a freshly generated keypair and an empty
// chain, ready to have a genesis block installed.
func New(cfg *config.Config, log *logging.Logger) (*Node, error) {
	w := wallet.New()
	addr, err := w.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("node: generate wallet key: %w", err)
	}

	utxos := utxoset.New()
	pool := txpool.NewMemPool()
	orphans := txpool.NewOrphanPool()
	mgr := chain.New(utxos, pool, orphans, cfg.FixedReward, cfg.AllowUTXOFromPool)

	n := &Node{
		Wallet:           w,
		Address:          addr,
		Chain:            mgr,
		Metrics:          metrics.New(),
		cfg:              cfg,
		log:              log,
		longestPeerChain: make(map[string]int),
	}
	mgr.OnReorg = func() { n.Metrics.RecordReorg() }
	return n, nil
}

// Restore rebuilds a node from a persisted snapshot instead of starting
// from an empty chain.
func Restore(cfg *config.Config, log *logging.Logger, snap persist.Snapshot) (*Node, error) {
	w, err := wallet.LoadHex(snap.WalletHex)
	if err != nil {
		return nil, fmt.Errorf("node: restore wallet: %w", err)
	}
	addrs := w.Addresses()
	if len(addrs) == 0 {
		return nil, fmt.Errorf("node: restored wallet has no keys")
	}

	utxos := utxoset.New()
	utxos.Insert(snap.UTXOs)
	pool := txpool.NewMemPool()
	for _, tx := range snap.MempoolTxs {
		pool.Add(tx)
	}
	orphans := txpool.NewOrphanPool()
	for _, tx := range snap.OrphanTxs {
		orphans.Add(tx)
	}

	mgr := chain.New(utxos, pool, orphans, cfg.FixedReward, cfg.AllowUTXOFromPool)
	mgr.LoadChain(snap.Chain)
	mgr.LoadOrphanBlocks(snap.OrphanBlocks)

	n := &Node{
		Wallet:           w,
		Address:          addrs[0],
		Chain:            mgr,
		Metrics:          metrics.New(),
		cfg:              cfg,
		log:              log,
		outbox:           append([]chaintypes.Tx{}, snap.OutboxTxs...),
		candidate:        snap.CandidateBlock,
		longestPeerChain: make(map[string]int),
	}
	mgr.OnReorg = func() { n.Metrics.RecordReorg() }
	return n, nil
}

// AttachP2P wires the gossip/discovery layer into the node. Called once,
// after the p2p.Node is constructed with this Node as its Observer.
func (n *Node) AttachP2P(p *p2p.Node) {
	n.p2p = p
}

// Snapshot captures every piece of state the node needs to resume
// after a restart.
func (n *Node) Snapshot() (persist.Snapshot, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	walletHex, err := n.Wallet.SaveHex()
	if err != nil {
		return persist.Snapshot{}, fmt.Errorf("node: save wallet: %w", err)
	}

	var peers []string
	if n.p2p != nil {
		peers = n.p2p.Peers()
	}

	return persist.Snapshot{
		Chain:          n.Chain.Chain(),
		OutboxTxs:      append([]chaintypes.Tx{}, n.outbox...),
		MempoolTxs:     n.Chain.Pool.All(),
		UTXOs:          n.Chain.UTXOs.All(),
		PeerNodes:      peers,
		CandidateBlock: n.candidate,
		OrphanTxs:      n.Chain.Orphans.Snapshot(),
		OrphanBlocks:   n.Chain.OrphanBlocks(),
		WalletHex:      walletHex,
	}, nil
}

// --- p2p.Observer ---

// ChainLength reports how many blocks this node's chain holds, answering
// a peer's heartbeat request.
func (n *Node) ChainLength() int {
	return n.Chain.Height()
}

// NotifyNewPeers is called when the mesh introduces a new peer.
func (n *Node) NotifyNewPeers() {
	if n.p2p != nil {
		n.Metrics.SetPeerCount(len(n.p2p.Peers()))
	}
	n.log.Debug("node: peer introduced")
}

// UpdateLongestChain records a peer's reported chain length. The
// reference node only uses this to decide who to ask for blocks over a
// request/response HTTP API that sits outside this gossip protocol;
// here it is tracked and logged as a signal that a fuller sync is
// needed, without pulling blocks over the wire itself.
func (n *Node) UpdateLongestChain(peerLen int, addr string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.longestPeerChain[addr] = peerLen
	if peerLen > n.Chain.Height() {
		n.log.Warn("node: peer reports a longer chain", "peer", addr, "peer_height", peerLen, "our_height", n.Chain.Height())
	}
}

// --- p2p.Gossip ---

// HandleTx decodes and processes a transaction relayed by a peer.
func (n *Node) HandleTx(raw json.RawMessage) {
	var tx chaintypes.Tx
	if err := json.Unmarshal(raw, &tx); err != nil {
		n.log.Warn("node: malformed gossiped transaction", "error", err)
		return
	}
	if n.ReceiveTransaction(tx) {
		n.log.Debug("node: accepted gossiped transaction", "tx_id", tx.ID())
	}
}

// HandleBlock decodes and processes a block relayed by a peer.
func (n *Node) HandleBlock(raw json.RawMessage) {
	var block chaintypes.Block
	if err := json.Unmarshal(raw, &block); err != nil {
		n.log.Warn("node: malformed gossiped block", "error", err)
		return
	}
	if n.ReceiveBlock(block) {
		n.log.Info("node: accepted gossiped block", "hash", block.Hash())
	}
}

// CreateTransaction spends the node's own UTXOs to pay value to toAddr,
// smallest output first, adding a change output back to the node's own
// address when the selected inputs overshoot. The flat configured fee
// is subtracted from the payment output. The built transaction is
// queued in the outbox, not yet broadcast or pooled.
func (n *Node) CreateTransaction(toAddr string, value int64) (chaintypes.Tx, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()

	utxos := n.Chain.UTXOs.UTXOsOfAddresses([]string{n.Address})
	sort.Slice(utxos, func(i, j int) bool { return utxos[i].Vout.Value < utxos[j].Vout.Value })

	var balance int64
	for _, u := range utxos {
		balance += u.Vout.Value
	}
	if balance < value {
		return chaintypes.Tx{}, false
	}

	priv, ok := n.Wallet.Key(n.Address)
	if !ok {
		return chaintypes.Tx{}, false
	}
	pubkey := priv.PublicKey().Bytes()

	var spend []chaintypes.UTXO
	var needToSpend int64
	for _, u := range utxos {
		spend = append(spend, u)
		needToSpend += u.Vout.Value
		if needToSpend >= value {
			break
		}
	}

	fee := n.cfg.DefaultFee
	txOut := []chaintypes.Vout{{ToAddr: toAddr, Value: value - fee}}
	if needToSpend > value {
		txOut = append(txOut, chaintypes.Vout{ToAddr: n.Address, Value: needToSpend - value})
	}

	txIn := make([]chaintypes.Vin, 0, len(spend))
	for _, u := range spend {
		message := wallet.CreateSigMessage(pubkey, u.Pointer, txOut)
		sig, err := n.Wallet.Sign(n.Address, message)
		if err != nil {
			return chaintypes.Tx{}, false
		}
		txIn = append(txIn, chaintypes.Vin{ToSpend: u.Pointer, Signature: sig, Pubkey: pubkey})
	}

	tx := chaintypes.Tx{TxIn: txIn, TxOut: txOut, Fee: fee}
	n.outbox = append(n.outbox, tx)
	return tx, true
}

// ReceiveTransaction validates tx against the current UTXO set and
// mempool and, if it passes, reserves its inputs and pools it.
func (n *Node) ReceiveTransaction(tx chaintypes.Tx) bool {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.Chain.Pool.Has(tx.ID()) {
		return false
	}
	if !n.Chain.Validator.ValidateTx(tx, n.Chain.Pool, n.Chain.Orphans) {
		n.Metrics.RecordTxRejected()
		return false
	}

	n.Chain.UTXOs.SignFromTx(tx)
	n.Chain.AddTxToPool(tx)
	n.Metrics.RecordTxAccepted()
	n.Metrics.SetMempoolSize(len(n.Chain.Pool.All()))
	return true
}

// BroadcastTxs pools and gossips every transaction sitting in the
// outbox, then clears it. It is a no-op with nothing queued or no
// peers to send to, mirroring the reference node's broadcast_txs.
func (n *Node) BroadcastTxs() bool {
	n.mu.Lock()
	if n.p2p == nil || len(n.p2p.Peers()) == 0 || len(n.outbox) == 0 {
		n.mu.Unlock()
		return false
	}
	txs := n.outbox
	n.outbox = nil
	for _, tx := range txs {
		n.Chain.UTXOs.SignFromTx(tx)
		n.Chain.AddTxToPool(tx)
	}
	n.Metrics.SetMempoolSize(len(n.Chain.Pool.All()))
	n.mu.Unlock()

	for _, tx := range txs {
		raw, err := json.Marshal(tx)
		if err != nil {
			continue
		}
		n.p2p.Broadcast(p2p.Message{Type: p2p.ActionTx, Data: raw})
	}
	return true
}

// CreateCandidateBlock builds a block over every transaction currently
// pooled, behind a coinbase paying the node's own address the fixed
// reward plus the pooled fees. While a candidate is already pending it
// leaves that candidate in place and returns false.
func (n *Node) CreateCandidateBlock() bool {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.candidate != nil {
		return false
	}

	var prevHash string
	if tip, ok := n.Chain.Tip(); ok {
		prevHash = tip.Hash()
	}

	txs := n.Chain.Pool.All()
	reward := n.cfg.FixedReward + validate.CalculateFees(txs)

	seed := make([]byte, 8)
	_, _ = rand.Read(seed)
	coinbase := chaintypes.NewCoinbase(n.Address, reward, seed)
	allTxs := append([]chaintypes.Tx{coinbase}, txs...)

	block := chaintypes.Block{
		Version:        1,
		Timestamp:      time.Now().Unix(),
		Bits:           n.cfg.DifficultyBits,
		PrevBlockHash:  prevHash,
		MerkleRootHash: merkle.Root(txIDs(allTxs)),
		Txs:            allTxs,
	}
	n.candidate = &block
	return true
}

func txIDs(txs []chaintypes.Tx) []string {
	ids := make([]string, len(txs))
	for i, tx := range txs {
		ids[i] = tx.ID()
	}
	return ids
}

// Consensus ensures a candidate block exists and searches for a nonce
// that satisfies its proof-of-work target, cancellable through ctx the
// moment a competing block makes the search moot.
func (n *Node) Consensus(ctx context.Context) bool {
	n.mu.Lock()
	if n.candidate == nil {
		n.mu.Unlock()
		if !n.CreateCandidateBlock() {
			return false
		}
		n.mu.Lock()
	}
	block := *n.candidate
	n.mu.Unlock()

	nonce, ok := mining.Mine(ctx, block)
	if !ok {
		return false
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	if n.candidate == nil {
		return false
	}
	n.candidate.Nonce = nonce
	return true
}

// BroadcastBlock gossips the mined candidate to every peer, applies it
// to this node's own chain, and clears the candidate slot.
func (n *Node) BroadcastBlock() bool {
	n.mu.Lock()
	if n.candidate == nil {
		n.mu.Unlock()
		return false
	}
	block := *n.candidate
	n.candidate = nil
	n.mu.Unlock()

	if n.p2p != nil {
		if raw, err := json.Marshal(block); err == nil {
			n.p2p.Broadcast(p2p.Message{Type: p2p.ActionBlock, Data: raw})
		}
	}
	return n.ReceiveBlock(block)
}

// ReceiveBlock validates and applies block, whether it arrived from the
// network or was just mined locally, rescanning parked orphan blocks
// once it's accepted.
func (n *Node) ReceiveBlock(block chaintypes.Block) bool {
	accepted := n.Chain.ReceiveBlock(block)
	if !accepted {
		n.Metrics.RecordBlockRejected()
		return false
	}

	n.Metrics.RecordBlockAccepted()
	n.Metrics.SetUTXOSetSize(len(n.Chain.UTXOs.All()))
	n.Metrics.SetMempoolSize(len(n.Chain.Pool.All()))

	if rescanned := n.Chain.RescanOrphanBlocks(); rescanned > 0 {
		n.log.Info("node: rescanned orphan blocks", "accepted", rescanned)
	}
	return true
}

// Balance reports the node's own spendable balance.
func (n *Node) Balance() int64 {
	return n.Chain.UTXOs.Balance([]string{n.Address})
}
