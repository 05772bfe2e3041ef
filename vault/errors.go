package vault

import "errors"

// Revert reasons. Every rejection is synchronous and leaves no partial state.
var (
	// ErrPaused is returned while the vault is halted; locks and unlocks
	// are stopped uniformly
	ErrPaused = errors.New("vault is paused")
	// ErrZeroRecipient is returned when the recipient address is empty
	ErrZeroRecipient = errors.New("recipient is the zero address")
	// ErrUnknownAsset is returned when the asset is not held by this vault's collection
	ErrUnknownAsset = errors.New("unknown asset")
	// ErrNotOwner is returned when the caller does not own the asset
	ErrNotOwner = errors.New("caller does not own the asset")
	// ErrAlreadyLocked is returned when the asset is locked already
	ErrAlreadyLocked = errors.New("asset already locked")
	// ErrNotAdmin is returned when an administrative call comes from a non-admin
	ErrNotAdmin = errors.New("caller is not the admin")
	// ErrNotSubmitter is returned when submitCommitment comes from a non-submitter
	ErrNotSubmitter = errors.New("caller is not the root submitter")
	// ErrPeerNotSet is returned when roots arrive before the peer verifier
	// identity is linked
	ErrPeerNotSet = errors.New("peer verifier not linked")
	// ErrRootAlreadySet is returned when a root already exists for the block (write-once)
	ErrRootAlreadySet = errors.New("root already submitted for this block")
	// ErrLockCountMismatch is returned when records length disagrees with lockCount
	ErrLockCountMismatch = errors.New("record count does not match lock count")
	// ErrBlockNumberMismatch is returned when a record's block disagrees with the argument
	ErrBlockNumberMismatch = errors.New("record block number mismatch")
	// ErrRootNotSet is returned when no root exists for the block
	ErrRootNotSet = errors.New("root not set for this block")
	// ErrAlreadyProcessed is the replay guard: the lock hash was consumed before
	ErrAlreadyProcessed = errors.New("lock already processed")
	// ErrUnknownRecord is returned when the submitter never committed this lock hash
	ErrUnknownRecord = errors.New("no committed record for this lock hash")
	// ErrRecordMismatch is returned when the caller's arguments disagree with the committed record
	ErrRecordMismatch = errors.New("arguments do not match the committed record")
	// ErrInvalidProof is returned when the merkle inclusion check fails
	ErrInvalidProof = errors.New("invalid merkle proof")
	// ErrRootConsumed is returned when clearing a root that an unlock already relied on
	ErrRootConsumed = errors.New("root already consumed")
	// ErrAssetNotLocked is returned when an unlock targets an asset the vault
	// holds but never locked
	ErrAssetNotLocked = errors.New("asset present but not locked")
)
