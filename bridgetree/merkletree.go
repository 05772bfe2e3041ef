package bridgetree

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// MerkleTree is the commitment tree over the locks of a single block. Blocks
// hold few locks, so the whole tree is built in memory from the leaves and is
// reproducible from storage at any time.
type MerkleTree struct {
	// levels[0] are the leaves, levels[len-1] holds only the root
	levels [][]common.Hash
}

// NewMerkleTree builds the canonical binary tree for the given leaves.
// Children are sorted before hashing (see pairHash) and an unpaired node is
// promoted to the next level unchanged. A single-leaf tree's root is the leaf
// itself.
func NewMerkleTree(leaves []common.Hash) (*MerkleTree, error) {
	if len(leaves) == 0 {
		return nil, fmt.Errorf("cannot build a merkle tree without leaves")
	}

	levels := [][]common.Hash{leaves}
	cur := leaves
	for len(cur) > 1 {
		next := make([]common.Hash, 0, (len(cur)+1)/2)
		for i := 0; i < len(cur); i += 2 {
			if i+1 == len(cur) {
				next = append(next, cur[i])
				continue
			}
			next = append(next, pairHash(cur[i], cur[i+1]))
		}
		levels = append(levels, next)
		cur = next
	}

	return &MerkleTree{levels: levels}, nil
}

// Root returns the tree root.
func (mt *MerkleTree) Root() common.Hash {
	top := mt.levels[len(mt.levels)-1]
	return top[0]
}

// Count returns the number of leaves.
func (mt *MerkleTree) Count() int {
	return len(mt.levels[0])
}

// Proof returns the ordered sibling hashes for the leaf at index, bottom-up.
// The proof is empty for a single-leaf tree. A level where the node was
// promoted without a pair contributes no sibling.
func (mt *MerkleTree) Proof(index int) ([]common.Hash, error) {
	if index < 0 || index >= len(mt.levels[0]) {
		return nil, fmt.Errorf("leaf index %d out of range [0, %d)", index, len(mt.levels[0]))
	}

	// proof stays non-nil so an empty proof is distinguishable from a
	// missing one at the storage layer
	proof := make([]common.Hash, 0, len(mt.levels)-1)
	for h := 0; h < len(mt.levels)-1; h++ {
		level := mt.levels[h]
		sibling := index ^ 1
		if sibling < len(level) {
			proof = append(proof, level[sibling])
		}
		index /= 2 //nolint:gomnd
	}
	return proof, nil
}

// VerifyProof folds the sibling hashes left to right against the leaf using
// the same sorted-pair rule used at construction and compares the result with
// root. This is the same computation the vault performs on-ledger.
func VerifyProof(leaf common.Hash, proof []common.Hash, root common.Hash) bool {
	cur := leaf
	for _, sibling := range proof {
		cur = pairHash(cur, sibling)
	}
	return cur == root
}
