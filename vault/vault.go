// Package vault models the on-ledger commitment verifier: one instance per
// chain, holding lock/unlock custody state and the merkle roots submitted by
// the root-submitter role. It is the only component that can irreversibly
// change asset custody, and every state change is guarded by the checks a
// deployed verifier contract would perform.
package vault

import (
	"math/big"
	"sync"

	"github.com/badbunnzcorporation-lgtm/nft-bridge/bridgetree"
	"github.com/ethereum/go-ethereum/common"
)

// Vault is a commitment verifier instance. Per-asset state machine:
// Free -> Locked -> Free on the outgoing side, Unminted -> Active <-> Locked
// on the incoming side. All operations are synchronous and atomic: a
// rejection returns a typed error and changes nothing.
type Vault struct {
	mu sync.Mutex

	// address identifies this verifier; it salts every lock hash so the two
	// vaults never derive colliding hashes for the same asset
	address   common.Address
	admin     common.Address
	submitter common.Address
	// peer is the other verifier's identity, linked post-construction
	peer   common.Address
	paused bool

	// height is the ledger block height locks are recorded at
	height uint64

	owners          map[string]common.Address
	locked          map[string]bool
	everBridgedHere map[string]bool

	// roots are write-once per block; consumed roots can no longer be cleared
	roots        map[uint64]common.Hash
	rootConsumed map[uint64]bool
	records      map[common.Hash]CommitmentRecord
	// processed is the replay guard: lock hashes consumed by an unlock
	processed map[common.Hash]bool

	lockEvents   map[uint64][]LockNotification
	unlockEvents map[uint64][]UnlockNotification
}

// New creates a vault administered by admin. The submitter and the peer
// identity are linked afterwards with SetSubmitter/SetPeer.
func New(address, admin common.Address) *Vault {
	return &Vault{
		address:         address,
		admin:           admin,
		height:          1,
		owners:          make(map[string]common.Address),
		locked:          make(map[string]bool),
		everBridgedHere: make(map[string]bool),
		roots:           make(map[uint64]common.Hash),
		rootConsumed:    make(map[uint64]bool),
		records:         make(map[common.Hash]CommitmentRecord),
		processed:       make(map[common.Hash]bool),
		lockEvents:      make(map[uint64][]LockNotification),
		unlockEvents:    make(map[uint64][]UnlockNotification),
	}
}

// Address returns the verifier identity.
func (v *Vault) Address() common.Address {
	return v.address
}

func assetKey(assetID *big.Int) string {
	return assetID.String()
}

// SetSubmitter designates the root submitter role.
func (v *Vault) SetSubmitter(caller, submitter common.Address) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if caller != v.admin {
		return ErrNotAdmin
	}
	v.submitter = submitter
	return nil
}

// SetPeer links the other verifier's identity. The two instances are deployed
// independently and linked post-construction; until then SubmitCommitment
// rejects every root.
func (v *Vault) SetPeer(caller, peer common.Address) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if caller != v.admin {
		return ErrNotAdmin
	}
	v.peer = peer
	return nil
}

// Pause halts new locks and new unlocks uniformly.
func (v *Vault) Pause(caller common.Address) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if caller != v.admin {
		return ErrNotAdmin
	}
	v.paused = true
	return nil
}

// Unpause resumes operation.
func (v *Vault) Unpause(caller common.Address) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if caller != v.admin {
		return ErrNotAdmin
	}
	v.paused = false
	return nil
}

// RegisterAsset seeds custody of a native asset, modelling the collection
// contract handing the token to the vault's custody tracking.
func (v *Vault) RegisterAsset(caller common.Address, assetID *big.Int, owner common.Address) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if caller != v.admin {
		return ErrNotAdmin
	}
	v.owners[assetKey(assetID)] = owner
	return nil
}

// AdvanceBlock moves the modelled ledger height forward and returns the new
// height. Lock notifications are grouped per height.
func (v *Vault) AdvanceBlock() uint64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.height++
	return v.height
}

// Height returns the current modelled ledger height.
func (v *Vault) Height() uint64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.height
}

// Lock takes custody of one asset for bridging to the peer ledger.
func (v *Vault) Lock(caller common.Address, assetID *big.Int, recipient common.Address) (common.Hash, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	hashes, err := v.lockBatch(caller, []LockRequest{{AssetID: assetID, Recipient: recipient}})
	if err != nil {
		return common.Hash{}, err
	}
	return hashes[0], nil
}

// LockBatch locks several assets in one call. Each entry is checked
// independently but the call is all-or-nothing; the batch index salts each
// lock hash so hashes stay unique within the call.
func (v *Vault) LockBatch(caller common.Address, reqs []LockRequest) ([]common.Hash, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.lockBatch(caller, reqs)
}

func (v *Vault) lockBatch(caller common.Address, reqs []LockRequest) ([]common.Hash, error) {
	if v.paused {
		return nil, ErrPaused
	}
	seen := make(map[string]bool, len(reqs))
	for _, req := range reqs {
		if req.Recipient == (common.Address{}) {
			return nil, ErrZeroRecipient
		}
		if seen[assetKey(req.AssetID)] {
			return nil, ErrAlreadyLocked
		}
		seen[assetKey(req.AssetID)] = true
		owner, exists := v.owners[assetKey(req.AssetID)]
		if !exists {
			return nil, ErrUnknownAsset
		}
		if owner != caller {
			return nil, ErrNotOwner
		}
		if v.locked[assetKey(req.AssetID)] {
			return nil, ErrAlreadyLocked
		}
	}

	hashes := make([]common.Hash, 0, len(reqs))
	for i, req := range reqs {
		lockHash := bridgetree.LockHash(req.AssetID, caller, req.Recipient, v.height, v.address, uint32(i))
		key := assetKey(req.AssetID)
		v.locked[key] = true
		v.owners[key] = v.address
		notification := LockNotification{
			AssetID:     new(big.Int).Set(req.AssetID),
			SourceOwner: caller,
			Recipient:   req.Recipient,
			LockHash:    lockHash,
			BlockNumber: v.height,
			TxHash:      lockHash, // the model has no real transactions
		}
		v.lockEvents[v.height] = append(v.lockEvents[v.height], notification)
		hashes = append(hashes, lockHash)
	}
	return hashes, nil
}

// SubmitCommitment stores the merkle root for one source block together with
// the committed lock records. Roots describe the peer ledger, so none are
// accepted until SetPeer linked the other verifier's identity. Roots are
// write-once per block; the separation
// from UnlockWithProof means proof verification re-checks the caller's
// arguments against what the submitter committed instead of trusting them.
func (v *Vault) SubmitCommitment(caller common.Address, blockNumber uint64, root common.Hash, lockCount uint, records []CommitmentRecord) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if caller != v.submitter {
		return ErrNotSubmitter
	}
	if v.peer == (common.Address{}) {
		return ErrPeerNotSet
	}
	if _, exists := v.roots[blockNumber]; exists {
		return ErrRootAlreadySet
	}
	if uint(len(records)) != lockCount {
		return ErrLockCountMismatch
	}
	for _, record := range records {
		if record.BlockNumber != blockNumber {
			return ErrBlockNumberMismatch
		}
	}

	v.roots[blockNumber] = root
	for _, record := range records {
		v.records[record.LockHash] = record
	}
	return nil
}

// GetRoot returns the stored root for a block, or the zero hash when unset.
func (v *Vault) GetRoot(blockNumber uint64) common.Hash {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.roots[blockNumber]
}

// ClearRoot removes a mistaken root. Only permitted before the root's first
// use: once an unlock relied on it, it can never be swapped.
func (v *Vault) ClearRoot(caller common.Address, blockNumber uint64) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if caller != v.admin {
		return ErrNotAdmin
	}
	if _, exists := v.roots[blockNumber]; !exists {
		return ErrRootNotSet
	}
	if v.rootConsumed[blockNumber] {
		return ErrRootConsumed
	}
	delete(v.roots, blockNumber)
	return nil
}

// IsProcessed reports whether a lock hash was already consumed.
func (v *Vault) IsProcessed(lockHash common.Hash) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.processed[lockHash]
}

// OwnerOf returns the recorded owner of an asset.
func (v *Vault) OwnerOf(assetID *big.Int) (common.Address, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	owner, exists := v.owners[assetKey(assetID)]
	return owner, exists
}

// IsLocked reports whether the vault currently holds the asset for bridging.
func (v *Vault) IsLocked(assetID *big.Int) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.locked[assetKey(assetID)]
}

// EverBridgedHere reports whether the asset ever arrived on this ledger.
func (v *Vault) EverBridgedHere(assetID *big.Int) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.everBridgedHere[assetKey(assetID)]
}

// UnlockWithProof verifies one lock's inclusion in the stored root and flips
// custody: mint on first arrival, release on a round trip.
func (v *Vault) UnlockWithProof(assetID *big.Int, recipient common.Address, lockHash common.Hash, blockNumber uint64, proof []common.Hash) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.unlockBatch([]UnlockRequest{{
		AssetID:     assetID,
		Recipient:   recipient,
		LockHash:    lockHash,
		BlockNumber: blockNumber,
		Proof:       proof,
	}})
}

// UnlockBatch applies UnlockWithProof to every element atomically: if any
// element's checks fail, the whole call fails and nothing changes.
func (v *Vault) UnlockBatch(reqs []UnlockRequest) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.unlockBatch(reqs)
}

func (v *Vault) unlockBatch(reqs []UnlockRequest) error {
	if v.paused {
		return ErrPaused
	}

	// validate everything before touching state
	seen := make(map[common.Hash]bool, len(reqs))
	for _, req := range reqs {
		if err := v.checkUnlock(req); err != nil {
			return err
		}
		if seen[req.LockHash] {
			return ErrAlreadyProcessed
		}
		seen[req.LockHash] = true
	}

	for _, req := range reqs {
		v.applyUnlock(req)
	}
	return nil
}

func (v *Vault) checkUnlock(req UnlockRequest) error {
	if v.processed[req.LockHash] {
		return ErrAlreadyProcessed
	}
	root, exists := v.roots[req.BlockNumber]
	if !exists || root == (common.Hash{}) {
		return ErrRootNotSet
	}
	record, exists := v.records[req.LockHash]
	if !exists {
		return ErrUnknownRecord
	}
	// defends against a submitter committing one set of records and a caller
	// supplying mismatched arguments
	if record.AssetID.Cmp(req.AssetID) != 0 || record.Recipient != req.Recipient || record.BlockNumber != req.BlockNumber {
		return ErrRecordMismatch
	}

	leaf := bridgetree.LeafHash(req.AssetID, req.Recipient, req.LockHash, req.BlockNumber)
	if !bridgetree.VerifyProof(leaf, req.Proof, root) {
		return ErrInvalidProof
	}

	key := assetKey(req.AssetID)
	if _, exists := v.owners[key]; exists && !v.locked[key] {
		// the asset sits here unlocked; consuming a proof for it would fork custody
		return ErrAssetNotLocked
	}
	return nil
}

func (v *Vault) applyUnlock(req UnlockRequest) {
	key := assetKey(req.AssetID)
	v.processed[req.LockHash] = true
	v.rootConsumed[req.BlockNumber] = true

	minted := false
	if _, exists := v.owners[key]; !exists {
		// first arrival on this ledger: mint the representative token
		minted = true
		v.everBridgedHere[key] = true
	}
	// round trip: release custody of the previously locked token
	v.locked[key] = false
	v.owners[key] = req.Recipient

	v.unlockEvents[v.height] = append(v.unlockEvents[v.height], UnlockNotification{
		AssetID:     new(big.Int).Set(req.AssetID),
		Recipient:   req.Recipient,
		LockHash:    req.LockHash,
		BlockNumber: v.height,
		Minted:      minted,
		TxHash:      req.LockHash,
	})
}

// LockEventsAt returns the lock notifications recorded at the given height.
func (v *Vault) LockEventsAt(blockNumber uint64) []LockNotification {
	v.mu.Lock()
	defer v.mu.Unlock()
	events := make([]LockNotification, len(v.lockEvents[blockNumber]))
	copy(events, v.lockEvents[blockNumber])
	return events
}

// UnlockEventsAt returns the unlock notifications recorded at the given height.
func (v *Vault) UnlockEventsAt(blockNumber uint64) []UnlockNotification {
	v.mu.Lock()
	defer v.mu.Unlock()
	events := make([]UnlockNotification, len(v.unlockEvents[blockNumber]))
	copy(events, v.unlockEvents[blockNumber])
	return events
}
