package chain

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chainkit/ledger/pkg/chaintypes"
	"github.com/chainkit/ledger/pkg/merkle"
	"github.com/chainkit/ledger/pkg/txpool"
	"github.com/chainkit/ledger/pkg/utxoset"
	"github.com/chainkit/ledger/pkg/wallet"
	"github.com/chainkit/ledger/pkg/walletkey"
)

func newManager(t *testing.T) *Manager {
	t.Helper()
	return New(utxoset.New(), txpool.NewMemPool(), txpool.NewOrphanPool(), 500, true)
}

func blockWith(prevHash string, txs []chaintypes.Tx, nonce int64) chaintypes.Block {
	ids := make([]string, len(txs))
	for i, tx := range txs {
		ids[i] = tx.ID()
	}
	return chaintypes.Block{
		PrevBlockHash:  prevHash,
		MerkleRootHash: merkle.Root(ids),
		Bits:           0,
		Nonce:          nonce,
		Txs:            txs,
	}
}

func hashInt(b chaintypes.Block) *big.Int {
	n, _ := new(big.Int).SetString(b.Hash(), 16)
	return n
}

func signedSpendTx(t *testing.T, priv *walletkey.PrivateKey, spend chaintypes.Pointer, out []chaintypes.Vout) chaintypes.Tx {
	t.Helper()
	pub := priv.PublicKey().Bytes()
	message := wallet.CreateSigMessage(pub, spend, out)
	return chaintypes.Tx{
		TxIn:  []chaintypes.Vin{{ToSpend: spend, Signature: priv.Sign(message), Pubkey: pub}},
		TxOut: out,
	}
}

// fundedChain builds a manager with a genesis block paying owner 1000,
// and a block A spending it in full to a fresh recipient key, plus a
// 500 coinbase to "miner".
func fundedChain(t *testing.T) (mgr *Manager, genesis, blockA chaintypes.Block, recipientPriv *walletkey.PrivateKey) {
	t.Helper()
	mgr = newManager(t)

	ownerPriv, err := walletkey.GeneratePrivateKey()
	require.NoError(t, err)
	ownerAddr := ownerPriv.PublicKey().Address()

	genesisTx := chaintypes.NewCoinbase(ownerAddr, 1000, []byte("genesis"))
	genesis = blockWith("", []chaintypes.Tx{genesisTx}, 0)
	mgr.SetGenesis(genesis)

	recipientPriv, err = walletkey.GeneratePrivateKey()
	require.NoError(t, err)
	recipientAddr := recipientPriv.PublicKey().Address()

	spendTx := signedSpendTx(t, ownerPriv, chaintypes.Pointer{TxID: genesisTx.ID(), N: 0}, []chaintypes.Vout{{ToAddr: recipientAddr, Value: 1000}})
	coinbase := chaintypes.NewCoinbase("miner", 500, []byte("blockA"))

	blockA = blockWith(genesis.Hash(), []chaintypes.Tx{coinbase, spendTx}, 0)
	return mgr, genesis, blockA, recipientPriv
}

func TestReceiveBlockExtendsChain(t *testing.T) {
	mgr, _, blockA, recipientPriv := fundedChain(t)
	assert.True(t, mgr.ReceiveBlock(blockA))
	assert.Equal(t, 2, mgr.Height())

	tip, ok := mgr.Tip()
	require.True(t, ok)
	assert.Equal(t, blockA.Hash(), tip.Hash())

	balance := mgr.UTXOs.Balance([]string{recipientPriv.PublicKey().Address()})
	assert.Equal(t, int64(1000), balance)
}

func TestReceiveBlockParksOrphanForUnknownParent(t *testing.T) {
	mgr, _, blockA, _ := fundedChain(t)
	orphan := blockWith("not-a-real-hash", blockA.Txs, 0)

	assert.False(t, mgr.ReceiveBlock(orphan))
	assert.Len(t, mgr.OrphanBlocks(), 1)
	assert.Equal(t, 1, mgr.Height())
}

func TestReceiveBlockReorgsOnLowerHash(t *testing.T) {
	mgr, genesis, blockA, recipientPriv := fundedChain(t)
	require.True(t, mgr.ReceiveBlock(blockA))

	reorgCount := 0
	mgr.OnReorg = func() { reorgCount++ }

	tipHash := hashInt(blockA)
	var winner chaintypes.Block
	found := false
	for nonce := int64(1); nonce < 2000; nonce++ {
		candidate := blockWith(genesis.Hash(), blockA.Txs, nonce)
		if hashInt(candidate).Cmp(tipHash) < 0 {
			winner = candidate
			found = true
			break
		}
	}
	require.True(t, found, "expected to find a competing block with a lower hash")

	assert.True(t, mgr.ReceiveBlock(winner))
	assert.Equal(t, 1, reorgCount)
	assert.Equal(t, 2, mgr.Height())

	tip, _ := mgr.Tip()
	assert.Equal(t, winner.Hash(), tip.Hash())
	assert.Equal(t, int64(1000), mgr.UTXOs.Balance([]string{recipientPriv.PublicKey().Address()}))
}

func TestReceiveBlockRejectsLoserFork(t *testing.T) {
	mgr, genesis, blockA, _ := fundedChain(t)
	require.True(t, mgr.ReceiveBlock(blockA))

	tipHash := hashInt(blockA)
	var loser chaintypes.Block
	found := false
	for nonce := int64(1); nonce < 2000; nonce++ {
		candidate := blockWith(genesis.Hash(), blockA.Txs, nonce)
		if hashInt(candidate).Cmp(tipHash) > 0 {
			loser = candidate
			found = true
			break
		}
	}
	require.True(t, found, "expected to find a competing block with a higher hash")

	assert.False(t, mgr.ReceiveBlock(loser))
	assert.Equal(t, 2, mgr.Height())
	tip, _ := mgr.Tip()
	assert.Equal(t, blockA.Hash(), tip.Hash())
}

func TestRescanOrphanBlocksAcceptsOnceParentArrives(t *testing.T) {
	mgr, _, blockA, _ := fundedChain(t)

	poolPriv, err := walletkey.GeneratePrivateKey()
	require.NoError(t, err)
	poolAddr := poolPriv.PublicKey().Address()

	fundingTx := chaintypes.Tx{
		TxIn:  []chaintypes.Vin{{ToSpend: chaintypes.Pointer{TxID: "external", N: 0}}},
		TxOut: []chaintypes.Vout{{ToAddr: poolAddr, Value: 300}},
	}
	mgr.AddTxToPool(fundingTx)

	spendTx := signedSpendTx(t, poolPriv, chaintypes.Pointer{TxID: fundingTx.ID(), N: 0}, []chaintypes.Vout{{ToAddr: "someone", Value: 300}})
	coinbase := chaintypes.NewCoinbase("miner2", 500, []byte("blockB"))
	blockB := blockWith(blockA.Hash(), []chaintypes.Tx{coinbase, spendTx}, 0)

	assert.False(t, mgr.ReceiveBlock(blockB))
	assert.Len(t, mgr.OrphanBlocks(), 1)

	require.True(t, mgr.ReceiveBlock(blockA))
	accepted := mgr.RescanOrphanBlocks()
	assert.Equal(t, 1, accepted)
	assert.Equal(t, 3, mgr.Height())
	assert.Empty(t, mgr.OrphanBlocks())
}
