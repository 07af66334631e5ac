// Package mining implements the ledger's proof-of-work search: a plain
// incrementing nonce probe, cancellable so a node can abandon a
// candidate block the moment a competing block arrives.
package mining

import (
	"context"
	"math/big"

	"github.com/chainkit/ledger/pkg/chaintypes"
	"github.com/chainkit/ledger/pkg/hashutil"
	"github.com/chainkit/ledger/pkg/validate"
)

// Mine searches nonces starting at 0 until the block's header hashes
// below the difficulty target, or ctx is cancelled. It never mutates
// block; the winning nonce is returned for the caller to apply.
func Mine(ctx context.Context, block chaintypes.Block) (nonce int64, ok bool) {
	target := validate.CalculateTarget(block.Bits)
	n := int64(0)
	for {
		select {
		case <-ctx.Done():
			return 0, false
		default:
		}

		header := block.Header(&n, nil)
		hashInt, valid := new(big.Int).SetString(hashutil.Sha256d(header), 16)
		if valid && hashInt.Cmp(target) < 0 {
			return n, true
		}
		n++
	}
}
