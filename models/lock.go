package models

import (
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// LockStatus is the lifecycle status of a LockRecord. Statuses only move
// forward through the transition table; anything else is rejected.
type LockStatus string

const (
	// StatusPending means the lock event was observed and recorded
	StatusPending = LockStatus("pending")
	// StatusProofGenerated means the block commitment and the lock's proof are persisted
	StatusProofGenerated = LockStatus("proof_generated")
	// StatusRootSubmitted means the block root is confirmed on the destination vault
	StatusRootSubmitted = LockStatus("root_submitted")
	// StatusUnlocked means the destination vault consumed the proof and released/minted the asset
	StatusUnlocked = LockStatus("unlocked")
	// StatusFailed means the record was excluded from automated processing pending manual review
	StatusFailed = LockStatus("failed")
)

// String returns a string representation of the status
func (s LockStatus) String() string {
	return string(s)
}

// validTransitions is the closed set of allowed forward transitions.
var validTransitions = map[LockStatus][]LockStatus{
	StatusPending:        {StatusProofGenerated, StatusUnlocked, StatusFailed},
	StatusProofGenerated: {StatusRootSubmitted, StatusUnlocked, StatusFailed},
	StatusRootSubmitted:  {StatusUnlocked, StatusFailed},
	StatusUnlocked:       {},
	StatusFailed:         {},
}

// CanTransition reports whether moving from to next is in the transition table.
// pending and proof_generated may jump straight to unlocked because the
// destination synchronizer can observe the unlock before the relay marks the
// intermediate steps.
func (s LockStatus) CanTransition(next LockStatus) bool {
	for _, allowed := range validTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// CheckTransition returns a descriptive error when the transition is not allowed.
func (s LockStatus) CheckTransition(next LockStatus) error {
	if !s.CanTransition(next) {
		return fmt.Errorf("lock status transition %s -> %s is not allowed", s, next)
	}
	return nil
}

// LockRecord represents one lock of an asset observed on one of the two
// networks. Immutable once created except for Status.
type LockRecord struct {
	ID          uint64
	NetworkID   uint
	AssetID     *big.Int
	SourceOwner common.Address
	Recipient   common.Address
	BlockNumber uint64
	LockHash    common.Hash
	TxHash      common.Hash
	Status      LockStatus
	ReceivedAt  time.Time
}

// UnlockRecord represents the consumption of a lock proof on the destination
// network, closing the bridge round for that lock.
type UnlockRecord struct {
	ID          uint64
	NetworkID   uint
	AssetID     *big.Int
	Recipient   common.Address
	LockHash    common.Hash
	BlockNumber uint64
	TxHash      common.Hash
	ReceivedAt  time.Time
}
