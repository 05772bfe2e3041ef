package bridgetree

import (
	"fmt"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLeaves(n int) []common.Hash {
	leaves := make([]common.Hash, n)
	for i := range leaves {
		leaves[i] = LeafHash(
			big.NewInt(int64(i+1)),
			common.HexToAddress(fmt.Sprintf("0x%040x", i+1)),
			common.HexToHash(fmt.Sprintf("0x%064x", i+100)),
			uint64(i+1),
		)
	}
	return leaves
}

func TestMerkleTreeEmpty(t *testing.T) {
	_, err := NewMerkleTree(nil)
	require.Error(t, err)
}

func TestMerkleTreeSingleLeaf(t *testing.T) {
	leaves := testLeaves(1)
	mt, err := NewMerkleTree(leaves)
	require.NoError(t, err)

	// single-leaf root is the leaf itself
	assert.Equal(t, leaves[0], mt.Root())
	assert.Equal(t, 1, mt.Count())

	proof, err := mt.Proof(0)
	require.NoError(t, err)
	// empty but non-nil, so storage can tell it apart from a missing proof
	assert.NotNil(t, proof)
	assert.Empty(t, proof)
	assert.True(t, VerifyProof(leaves[0], proof, mt.Root()))
}

func TestMerkleTreeProofs(t *testing.T) {
	for _, n := range []int{2, 3, 5, 8, 13} {
		t.Run(fmt.Sprintf("%d leaves", n), func(t *testing.T) {
			leaves := testLeaves(n)
			mt, err := NewMerkleTree(leaves)
			require.NoError(t, err)
			require.Equal(t, n, mt.Count())

			for i, leaf := range leaves {
				proof, err := mt.Proof(i)
				require.NoError(t, err)
				assert.True(t, VerifyProof(leaf, proof, mt.Root()), "leaf %d", i)

				// a proof must not verify for a different leaf
				other := leaves[(i+1)%n]
				assert.False(t, VerifyProof(other, proof, mt.Root()), "leaf %d with neighbour's proof", i)
			}
		})
	}
}

func TestMerkleTreeProofOutOfRange(t *testing.T) {
	mt, err := NewMerkleTree(testLeaves(3))
	require.NoError(t, err)

	_, err = mt.Proof(-1)
	assert.Error(t, err)
	_, err = mt.Proof(3)
	assert.Error(t, err)
}

func TestMerkleTreeTamperedProof(t *testing.T) {
	leaves := testLeaves(4)
	mt, err := NewMerkleTree(leaves)
	require.NoError(t, err)

	proof, err := mt.Proof(2)
	require.NoError(t, err)
	require.NotEmpty(t, proof)

	proof[0] = common.HexToHash("0xbad")
	assert.False(t, VerifyProof(leaves[2], proof, mt.Root()))
}

func TestPairHashSorted(t *testing.T) {
	a := common.HexToHash("0x01")
	b := common.HexToHash("0x02")
	// sorted-pair hashing makes sibling order irrelevant
	assert.Equal(t, pairHash(a, b), pairHash(b, a))
	assert.NotEqual(t, pairHash(a, b), pairHash(a, a))
}

func TestLockHashDeterministic(t *testing.T) {
	assetID := big.NewInt(7)
	owner := common.HexToAddress("0x11")
	recipient := common.HexToAddress("0x22")
	vaultAddr := common.HexToAddress("0x33")

	h1 := LockHash(assetID, owner, recipient, 5, vaultAddr, 0)
	h2 := LockHash(assetID, owner, recipient, 5, vaultAddr, 0)
	assert.Equal(t, h1, h2)

	// every input participates in the hash
	assert.NotEqual(t, h1, LockHash(big.NewInt(8), owner, recipient, 5, vaultAddr, 0))
	assert.NotEqual(t, h1, LockHash(assetID, recipient, owner, 5, vaultAddr, 0))
	assert.NotEqual(t, h1, LockHash(assetID, owner, recipient, 6, vaultAddr, 0))
	assert.NotEqual(t, h1, LockHash(assetID, owner, recipient, 5, owner, 0))
	assert.NotEqual(t, h1, LockHash(assetID, owner, recipient, 5, vaultAddr, 1))
}

func TestLeafHashBindsRecipient(t *testing.T) {
	assetID := big.NewInt(7)
	lockHash := common.HexToHash("0xaa")

	h1 := LeafHash(assetID, common.HexToAddress("0x22"), lockHash, 5)
	h2 := LeafHash(assetID, common.HexToAddress("0x23"), lockHash, 5)
	assert.NotEqual(t, h1, h2)
}
