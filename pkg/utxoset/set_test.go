package utxoset

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/chainkit/ledger/pkg/chaintypes"
)

func TestInsertGetRemove(t *testing.T) {
	s := New()
	p := chaintypes.Pointer{TxID: "tx1", N: 0}
	u := chaintypes.UTXO{Pointer: p, Vout: chaintypes.Vout{ToAddr: "addr1", Value: 10}, Unspent: true}
	s.Insert([]chaintypes.UTXO{u})

	got, ok := s.Get(p)
	assert.True(t, ok)
	assert.Equal(t, u, got)

	s.Remove(p)
	_, ok = s.Get(p)
	assert.False(t, ok)
}

func TestUTXOsOfAddressesOnlyUnspent(t *testing.T) {
	s := New()
	spent := chaintypes.UTXO{Pointer: chaintypes.Pointer{TxID: "a", N: 0}, Vout: chaintypes.Vout{ToAddr: "addr1", Value: 5}, Unspent: false}
	unspent := chaintypes.UTXO{Pointer: chaintypes.Pointer{TxID: "b", N: 0}, Vout: chaintypes.Vout{ToAddr: "addr1", Value: 7}, Unspent: true}
	s.Insert([]chaintypes.UTXO{spent, unspent})

	out := s.UTXOsOfAddresses([]string{"addr1"})
	assert.Len(t, out, 1)
	assert.Equal(t, unspent.Pointer, out[0].Pointer)
	assert.Equal(t, int64(7), s.Balance([]string{"addr1"}))
}

func TestSignFromTxMarksSpent(t *testing.T) {
	s := New()
	p := chaintypes.Pointer{TxID: "a", N: 0}
	s.Insert([]chaintypes.UTXO{{Pointer: p, Vout: chaintypes.Vout{ToAddr: "addr1", Value: 5}, Unspent: true}})

	tx := chaintypes.Tx{TxIn: []chaintypes.Vin{{ToSpend: p}}, TxOut: []chaintypes.Vout{{ToAddr: "addr2", Value: 5}}}
	s.SignFromTx(tx)

	u, ok := s.Get(p)
	assert.True(t, ok)
	assert.False(t, u.Unspent)
}

func TestConfirmFromTxsWithAllowFromPool(t *testing.T) {
	s := New()
	coinbase := chaintypes.NewCoinbase("miner", 500, []byte("seed"))
	spender := chaintypes.Tx{
		TxIn:  []chaintypes.Vin{{ToSpend: chaintypes.Pointer{TxID: "prior", N: 0}}},
		TxOut: []chaintypes.Vout{{ToAddr: "addr1", Value: 20}},
	}
	// the mempool already inserted spender's output unconfirmed
	s.AddFromTx(spender)

	pointers, priorUnconfirmed := s.ConfirmFromTxs([]chaintypes.Tx{coinbase, spender}, true)
	assert.Len(t, pointers, 2)
	assert.Len(t, priorUnconfirmed, 1)

	confirmedPointer := chaintypes.Pointer{TxID: spender.ID(), N: 0}
	u, ok := s.Get(confirmedPointer)
	assert.True(t, ok)
	assert.True(t, u.Confirmed)
}

func TestRemoveSpentFromTxsReturnsRemoved(t *testing.T) {
	s := New()
	p := chaintypes.Pointer{TxID: "a", N: 0}
	u := chaintypes.UTXO{Pointer: p, Vout: chaintypes.Vout{ToAddr: "addr1", Value: 5}, Unspent: true}
	s.Insert([]chaintypes.UTXO{u})

	tx := chaintypes.Tx{TxIn: []chaintypes.Vin{{ToSpend: p}}, TxOut: []chaintypes.Vout{{ToAddr: "addr2", Value: 5}}}
	removed := s.RemoveSpentFromTxs([]chaintypes.Tx{tx})

	assert.Len(t, removed, 1)
	assert.Equal(t, u, removed[0])
	_, ok := s.Get(p)
	assert.False(t, ok)
}
