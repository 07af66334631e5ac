// Package wallet manages the ledger participant's keypairs and
// addresses: generation, signing, and hex persistence.
package wallet

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/chainkit/ledger/pkg/chaintypes"
	"github.com/chainkit/ledger/pkg/hashutil"
	"github.com/chainkit/ledger/pkg/walletkey"
)

// Wallet holds a set of keypairs, indexed by the address they derive.
type Wallet struct {
	mu   sync.RWMutex
	keys map[string]*walletkey.PrivateKey
}

// New creates an empty wallet.
func New() *Wallet {
	return &Wallet{keys: make(map[string]*walletkey.PrivateKey)}
}

// GenerateKey creates a fresh keypair and returns its address.
func (w *Wallet) GenerateKey() (string, error) {
	priv, err := walletkey.GeneratePrivateKey()
	if err != nil {
		return "", err
	}
	addr := priv.PublicKey().Address()

	w.mu.Lock()
	defer w.mu.Unlock()
	w.keys[addr] = priv
	return addr, nil
}

// Key returns the private key registered for addr.
func (w *Wallet) Key(addr string) (*walletkey.PrivateKey, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	k, ok := w.keys[addr]
	return k, ok
}

// Addresses lists every address the wallet holds a key for.
func (w *Wallet) Addresses() []string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	addrs := make([]string, 0, len(w.keys))
	for a := range w.keys {
		addrs = append(addrs, a)
	}
	return addrs
}

// CreateSigMessage builds the message an input's signature must cover:
// the outpoint it spends, the spender's pubkey, and the transaction's
// new outputs. This mirrors Vin/Vout's own CanonicalString shape so a
// validator can rebuild the exact same bytes independently.
func CreateSigMessage(pubkey []byte, toSpend chaintypes.Pointer, txOut []chaintypes.Vout) []byte {
	var outStr string
	for i, v := range txOut {
		if i > 0 {
			outStr += ", "
		}
		outStr += v.CanonicalString()
	}
	plain := fmt.Sprintf("%s%x[%s]", toSpend.CanonicalString(), pubkey, outStr)
	return hashutil.BuildMessage(plain)
}

// Sign signs message with the key registered for addr.
func (w *Wallet) Sign(addr string, message []byte) ([]byte, error) {
	key, ok := w.Key(addr)
	if !ok {
		return nil, fmt.Errorf("wallet: no key for address %s", addr)
	}
	return key.Sign(message), nil
}

type persistedKey struct {
	Address    string `json:"address"`
	PrivateHex string `json:"private_hex"`
}

// SaveHex serializes every keypair as a JSON array of
// {address, private_hex} records.
func (w *Wallet) SaveHex() ([]byte, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make([]persistedKey, 0, len(w.keys))
	for addr, key := range w.keys {
		out = append(out, persistedKey{Address: addr, PrivateHex: key.Hex()})
	}
	return json.Marshal(out)
}

// LoadHex builds a new wallet holding the keys of a wallet previously
// serialized by SaveHex.
func LoadHex(data []byte) (*Wallet, error) {
	var records []persistedKey
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("wallet: decode saved keys: %w", err)
	}
	w := New()
	for _, r := range records {
		priv, err := walletkey.PrivateKeyFromHex(r.PrivateHex)
		if err != nil {
			return nil, fmt.Errorf("wallet: restore key for %s: %w", r.Address, err)
		}
		if priv.PublicKey().Address() != r.Address {
			return nil, fmt.Errorf("wallet: address mismatch restoring %s", r.Address)
		}
		w.keys[r.Address] = priv
	}
	return w, nil
}
