package vault

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// LockRequest is one entry of a (batch) lock call.
type LockRequest struct {
	AssetID   *big.Int
	Recipient common.Address
}

// UnlockRequest is one entry of a (batch) unlock call.
type UnlockRequest struct {
	AssetID     *big.Int
	Recipient   common.Address
	LockHash    common.Hash
	BlockNumber uint64
	Proof       []common.Hash
}

// CommitmentRecord is the lock detail the submitter commits alongside a root.
// Unlock calls are cross-checked against it so proof verification never has
// to trust the unlock caller's arguments.
type CommitmentRecord struct {
	AssetID     *big.Int
	Recipient   common.Address
	LockHash    common.Hash
	BlockNumber uint64
}

// LockNotification is emitted when an asset is locked; the indexer consumes it.
type LockNotification struct {
	AssetID     *big.Int
	SourceOwner common.Address
	Recipient   common.Address
	LockHash    common.Hash
	BlockNumber uint64
	TxHash      common.Hash
}

// UnlockNotification is emitted when a proof is consumed; Minted tells a
// first arrival apart from a round-trip release.
type UnlockNotification struct {
	AssetID     *big.Int
	Recipient   common.Address
	LockHash    common.Hash
	BlockNumber uint64
	Minted      bool
	TxHash      common.Hash
}
