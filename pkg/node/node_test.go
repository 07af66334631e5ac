package node

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chainkit/ledger/pkg/chaintypes"
	"github.com/chainkit/ledger/pkg/config"
	"github.com/chainkit/ledger/pkg/logging"
	"github.com/chainkit/ledger/pkg/merkle"
)

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.DifficultyBits = 1
	cfg.DefaultFee = 0
	return cfg
}

func silentLogger() *logging.Logger {
	return logging.New(logging.ERROR)
}

func setGenesisForNode(t *testing.T, n *Node, value int64) chaintypes.Tx {
	t.Helper()
	genesisTx := chaintypes.NewCoinbase(n.Address, value, []byte("genesis"))
	genesis := chaintypes.Block{MerkleRootHash: merkle.Root([]string{genesisTx.ID()}), Bits: 0, Txs: []chaintypes.Tx{genesisTx}}
	n.Chain.SetGenesis(genesis)
	return genesisTx
}

func TestNewGeneratesWalletAndEmptyChain(t *testing.T) {
	n, err := New(testConfig(), silentLogger())
	require.NoError(t, err)
	assert.NotEmpty(t, n.Address)
	assert.Equal(t, 0, n.Chain.Height())
	assert.Equal(t, int64(0), n.Balance())
}

func TestCreateTransactionQueuesOutboxAndFailsWithoutFunds(t *testing.T) {
	n, err := New(testConfig(), silentLogger())
	require.NoError(t, err)

	_, ok := n.CreateTransaction("somewhere", 100)
	assert.False(t, ok)

	setGenesisForNode(t, n, 1000)
	tx, ok := n.CreateTransaction("recipient", 400)
	require.True(t, ok)
	assert.Equal(t, int64(400), tx.TxOut[0].Value)
	assert.Equal(t, int64(600), tx.TxOut[1].Value)

	snap, err := n.Snapshot()
	require.NoError(t, err)
	assert.Len(t, snap.OutboxTxs, 1)
}

func TestReceiveTransactionPoolsAndRejectsDuplicate(t *testing.T) {
	n, err := New(testConfig(), silentLogger())
	require.NoError(t, err)
	setGenesisForNode(t, n, 1000)

	tx, ok := n.CreateTransaction("recipient", 400)
	require.True(t, ok)

	assert.True(t, n.ReceiveTransaction(tx))
	assert.False(t, n.ReceiveTransaction(tx))

	snap, err := n.Snapshot()
	require.NoError(t, err)
	assert.Len(t, snap.MempoolTxs, 1)
}

func TestConsensusMinesAndBroadcastBlockAppliesLocally(t *testing.T) {
	n, err := New(testConfig(), silentLogger())
	require.NoError(t, err)
	setGenesisForNode(t, n, 1000)

	tx, ok := n.CreateTransaction("recipient", 400)
	require.True(t, ok)
	require.True(t, n.ReceiveTransaction(tx))

	require.True(t, n.CreateCandidateBlock())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.True(t, n.Consensus(ctx))

	require.True(t, n.BroadcastBlock())

	assert.Equal(t, 2, n.Chain.Height())
	assert.Equal(t, int64(1100), n.Balance())

	snap := n.Metrics.Snapshot()
	assert.Equal(t, uint64(1), snap.BlocksAccepted)
	assert.Equal(t, uint64(1), snap.TxsAccepted)
}

func TestHandleTxAndHandleBlockDispatchFromGossipPayloads(t *testing.T) {
	n, err := New(testConfig(), silentLogger())
	require.NoError(t, err)
	setGenesisForNode(t, n, 1000)

	tx, ok := n.CreateTransaction("recipient", 250)
	require.True(t, ok)
	raw, err := json.Marshal(tx)
	require.NoError(t, err)

	n.HandleTx(raw)
	snap, err := n.Snapshot()
	require.NoError(t, err)
	assert.Len(t, snap.MempoolTxs, 1)

	require.True(t, n.CreateCandidateBlock())
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.True(t, n.Consensus(ctx))

	blockSnap, err := n.Snapshot()
	require.NoError(t, err)
	rawBlock, err := json.Marshal(blockSnap.CandidateBlock)
	require.NoError(t, err)

	n.HandleBlock(rawBlock)
	assert.Equal(t, 2, n.Chain.Height())
}

func TestSnapshotAndRestoreRoundTrip(t *testing.T) {
	n, err := New(testConfig(), silentLogger())
	require.NoError(t, err)
	setGenesisForNode(t, n, 1000)

	tx, ok := n.CreateTransaction("recipient", 300)
	require.True(t, ok)
	require.True(t, n.ReceiveTransaction(tx))

	snap, err := n.Snapshot()
	require.NoError(t, err)

	restored, err := Restore(testConfig(), silentLogger(), snap)
	require.NoError(t, err)

	assert.Equal(t, n.Address, restored.Address)
	assert.Equal(t, n.Chain.Height(), restored.Chain.Height())
	assert.Equal(t, n.Balance(), restored.Balance())
	assert.Equal(t, len(snap.MempoolTxs), len(restored.Chain.Pool.All()))
}

func TestUpdateLongestChainLogsWithoutPullingBlocks(t *testing.T) {
	n, err := New(testConfig(), silentLogger())
	require.NoError(t, err)
	n.UpdateLongestChain(5, "127.0.0.1:6000")
	assert.Equal(t, 0, n.Chain.Height())
}
