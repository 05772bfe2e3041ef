package models

import (
	"github.com/ethereum/go-ethereum/common"
)

// BlockCommitment is the merkle root summarizing every lock of one block on
// the source network, destined for the peer vault. The natural key is
// (BlockNumber, SourceNetwork, DestNetwork); rows are never deleted and the
// root never changes once set.
type BlockCommitment struct {
	BlockNumber      uint64
	SourceNetwork    uint
	DestNetwork      uint
	Root             common.Hash
	LockCount        uint
	Submitted        bool
	SubmissionTxHash common.Hash
}

// ProofRecord holds the sibling path for one lock, one-to-one with its
// LockRecord. An empty Siblings slice is a valid proof when the block's tree
// had a single leaf (root == leaf); it must not be read as "missing".
type ProofRecord struct {
	LockHash    common.Hash
	Siblings    []common.Hash
	Root        common.Hash
	BlockNumber uint64
}
