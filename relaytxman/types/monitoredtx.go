package types

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// MonitoredTxStatus represents the status of a monitored relay tx
type MonitoredTxStatus string

// String returns a string representation of the status
func (s MonitoredTxStatus) String() string {
	return string(s)
}

const (
	// MonitoredTxStatusCreated means the tx was persisted and awaits sending
	MonitoredTxStatusCreated = MonitoredTxStatus("created")
	// MonitoredTxStatusConfirmed means the tx was mined successfully, or the
	// vault reported the work already done by another actor
	MonitoredTxStatusConfirmed = MonitoredTxStatus("confirmed")
	// MonitoredTxStatusFailed means the vault rejected the tx deterministically
	// or the retry budget ran out; the tx needs manual review
	MonitoredTxStatusFailed = MonitoredTxStatus("failed")
)

// TxPurpose identifies which vault call a monitored tx performs
type TxPurpose string

const (
	// PurposeSubmitRoot is a submitCommitment call on the destination vault
	PurposeSubmitRoot = TxPurpose("submit_root")
	// PurposeUnlock is an unlockWithProof call on the destination vault
	PurposeUnlock = TxPurpose("unlock")
)

// MonitoredTx represents one vault call whose lifecycle the relay tracks:
// created until mined or deterministically rejected, then confirmed or failed.
type MonitoredTx struct {
	// ID is the storage identifier
	ID uint64

	// NetworkID is the destination network the call targets
	NetworkID uint

	// Purpose selects submitCommitment or unlockWithProof
	Purpose TxPurpose

	// BlockNumber is the source block the call refers to
	BlockNumber uint64

	// LockHash identifies the lock for unlock calls; zero for root submissions
	LockHash common.Hash

	// Status of this monitoring
	Status MonitoredTxStatus

	// History holds every tx hash sent for this call
	History map[common.Hash]bool

	// NumRetries counts transient failures so far
	NumRetries uint

	// LastError keeps the latest failure for operators
	LastError string

	// CreatedAt date time it was created
	CreatedAt time.Time

	// UpdatedAt last date time it was updated
	UpdatedAt time.Time
}

// AddHistory registers a sent tx hash.
func (m *MonitoredTx) AddHistory(txHash common.Hash) {
	if m.History == nil {
		m.History = make(map[common.Hash]bool)
	}
	m.History[txHash] = true
}

// HistoryHashes returns the sent hashes as a slice for storage.
func (m *MonitoredTx) HistoryHashes() [][]byte {
	hashes := make([][]byte, 0, len(m.History))
	for hash := range m.History {
		hashes = append(hashes, hash.Bytes())
	}
	return hashes
}

// FailedTx is the terminal record of a monitored tx the relay gave up on.
type FailedTx struct {
	ID          uint64
	NetworkID   uint
	Purpose     TxPurpose
	BlockNumber uint64
	LockHash    common.Hash
	Reason      string
	CreatedAt   time.Time
}
