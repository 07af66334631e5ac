package merkle

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/chainkit/ledger/pkg/hashutil"
)

func TestRootOfSingleLeaf(t *testing.T) {
	assert.Equal(t, "leaf", Root([]string{"leaf"}))
}

func TestRootCarriesOddElementUnchanged(t *testing.T) {
	leaves := []string{"a", "b", "c"}
	want := hashutil.Sha256d(hashutil.Sha256d("a"+"b") + "c")
	assert.Equal(t, want, Root(leaves))
}

func TestRootEmpty(t *testing.T) {
	assert.Equal(t, "", Root(nil))
}

func TestProofVerifiesForEveryLeaf(t *testing.T) {
	leaves := []string{"a", "b", "c", "d", "e"}
	root := Root(leaves)
	for i := range leaves {
		proof := Proof(leaves, i)
		assert.True(t, Verify(proof, root), "leaf %d should verify", i)
	}
}

func TestProofRejectsWrongRoot(t *testing.T) {
	leaves := []string{"a", "b", "c"}
	proof := Proof(leaves, 0)
	assert.False(t, Verify(proof, "not-the-root"))
}

func TestProofOutOfRange(t *testing.T) {
	assert.Nil(t, Proof([]string{"a"}, 5))
}
