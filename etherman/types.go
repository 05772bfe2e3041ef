package etherman

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// EventOrder identifies an event kind inside a block's ordered event stream
type EventOrder string

const (
	// LocksOrder identifies a lock event
	LocksOrder EventOrder = "Locks"
	// UnlocksOrder identifies an unlock event
	UnlocksOrder EventOrder = "Unlocks"
)

// Order contains the event order to let the synchronizer store the
// information in the same order it was read from the ledger
type Order struct {
	Name EventOrder
	Pos  int
}

// Block struct holds every bridge event read from one ledger block
type Block struct {
	ID          uint64
	BlockNumber uint64
	BlockHash   common.Hash
	ParentHash  common.Hash
	NetworkID   uint
	ReceivedAt  time.Time
	Locks       []LockEvent
	Unlocks     []UnlockEvent
}

// LockEvent is the lock notification emitted by the vault
type LockEvent struct {
	AssetID     *big.Int
	SourceOwner common.Address
	Recipient   common.Address
	LockHash    common.Hash
	BlockNumber uint64
	TxHash      common.Hash
}

// UnlockEvent is the unlock notification emitted by the vault
type UnlockEvent struct {
	AssetID     *big.Int
	Recipient   common.Address
	LockHash    common.Hash
	BlockNumber uint64
	Minted      bool
	TxHash      common.Hash
}

// CommitmentCall is a submit-commitment invocation against the vault
type CommitmentCall struct {
	BlockNumber uint64
	Root        common.Hash
	LockCount   uint
	Records     []CommitmentRecord
}

// CommitmentRecord is one committed lock detail inside a CommitmentCall
type CommitmentRecord struct {
	AssetID     *big.Int
	Recipient   common.Address
	LockHash    common.Hash
	BlockNumber uint64
}

// UnlockCall is an unlock-with-proof invocation against the vault
type UnlockCall struct {
	AssetID     *big.Int
	Recipient   common.Address
	LockHash    common.Hash
	BlockNumber uint64
	Proof       []common.Hash
}
