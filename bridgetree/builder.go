package bridgetree

import (
	"context"
	"sync"
	"time"

	"github.com/badbunnzcorporation-lgtm/nft-bridge/gerror"
	"github.com/badbunnzcorporation-lgtm/nft-bridge/log"
	"github.com/badbunnzcorporation-lgtm/nft-bridge/metrics"
	"github.com/badbunnzcorporation-lgtm/nft-bridge/models"
	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v4"
)

type buildKey struct {
	networkID   uint
	blockNumber uint64
}

// BuildRequest asks the builder to commit one (network, block) pair.
type BuildRequest struct {
	NetworkID   uint
	BlockNumber uint64
}

// Builder converts the recorded locks of one block into a merkle commitment
// and one proof per lock. At most one build per (network, block) key runs at
// a time within this process; the storage upserts keep duplicate builds
// harmless under multi-process deployment.
type Builder struct {
	cfg     Config
	storage builderStorage
	alert   alerter
	// peers maps each source network to its destination network
	peers map[uint]uint

	mu       sync.Mutex
	inFlight map[buildKey]struct{}

	chBuild chan BuildRequest
}

// NewBuilder creates a Builder for the given network pairing.
func NewBuilder(cfg Config, storage builderStorage, alert alerter, peers map[uint]uint) *Builder {
	if cfg.Workers == 0 {
		cfg.Workers = 1
	}
	return &Builder{
		cfg:      cfg,
		storage:  storage,
		alert:    alert,
		peers:    peers,
		inFlight: make(map[buildKey]struct{}),
		chBuild:  make(chan BuildRequest, 512), //nolint:gomnd
	}
}

// TriggerBuild enqueues a build without blocking the caller. Dropping the
// request is safe: the sweep loop recovers any block with locks but no
// commitment from storage.
func (b *Builder) TriggerBuild(networkID uint, blockNumber uint64) {
	select {
	case b.chBuild <- BuildRequest{NetworkID: networkID, BlockNumber: blockNumber}:
	default:
		log.Warnf("networkID: %d, build queue full, dropping trigger for block %d (sweep will recover it)", networkID, blockNumber)
	}
}

// Start runs the build workers and the recovery sweep until ctx is done.
func (b *Builder) Start(ctx context.Context) {
	sem := make(chan struct{}, b.cfg.Workers)
	ticker := time.NewTicker(b.cfg.SweepInterval.Duration)
	defer ticker.Stop()

	run := func(req BuildRequest) {
		sem <- struct{}{}
		go func() {
			defer func() { <-sem }()
			if err := b.Build(ctx, req.NetworkID, req.BlockNumber); err != nil {
				log.Errorf("networkID: %d, error building commitment for block %d: %v", req.NetworkID, req.BlockNumber, err)
			}
		}()
	}

	for {
		select {
		case <-ctx.Done():
			return
		case req := <-b.chBuild:
			run(req)
		case <-ticker.C:
			for networkID := range b.peers {
				blocks, err := b.storage.GetPendingCommitmentBlocks(ctx, networkID, b.cfg.SweepLimit, nil)
				if err != nil {
					log.Errorf("networkID: %d, error sweeping pending commitment blocks: %v", networkID, err)
					continue
				}
				for _, blockNumber := range blocks {
					run(BuildRequest{NetworkID: networkID, BlockNumber: blockNumber})
				}
			}
		}
	}
}

// Build computes the commitment for every lock recorded in the block and
// persists the proofs. A second request for a key already building is dropped
// with a warning, not queued; the first build's result serves all callers.
func (b *Builder) Build(ctx context.Context, networkID uint, blockNumber uint64) error {
	key := buildKey{networkID: networkID, blockNumber: blockNumber}
	b.mu.Lock()
	if _, busy := b.inFlight[key]; busy {
		b.mu.Unlock()
		log.Warnf("networkID: %d, build already in flight for block %d, dropping request", networkID, blockNumber)
		return nil
	}
	b.inFlight[key] = struct{}{}
	b.mu.Unlock()
	defer func() {
		b.mu.Lock()
		delete(b.inFlight, key)
		b.mu.Unlock()
	}()

	destNetwork, found := b.peers[networkID]
	if !found {
		return gerror.ErrNetworkNotRegister
	}

	locks, err := b.storage.GetLocksByBlock(ctx, networkID, blockNumber, nil)
	if err != nil {
		return err
	}
	if len(locks) == 0 {
		log.Debugf("networkID: %d, no locks in block %d, nothing to commit", networkID, blockNumber)
		return nil
	}

	leaves := make([]common.Hash, 0, len(locks))
	for _, lock := range locks {
		if lock.BlockNumber != blockNumber {
			// storage-layer invariant violation: exclude the record and alert
			b.failLock(ctx, lock, blockNumber)
			continue
		}
		leaves = append(leaves, LeafHash(lock.AssetID, lock.Recipient, lock.LockHash, lock.BlockNumber))
	}
	if len(leaves) == 0 {
		return nil
	}

	mt, err := NewMerkleTree(leaves)
	if err != nil {
		return err
	}
	root := mt.Root()
	log.Infof("networkID: %d, block %d committed to root %s with %d locks", networkID, blockNumber, root.String(), mt.Count())

	dbTx, err := b.storage.BeginDBTransaction(ctx)
	if err != nil {
		return err
	}
	err = b.persist(ctx, mt, root, locks, networkID, destNetwork, blockNumber, dbTx)
	if err != nil {
		rollbackErr := b.storage.Rollback(ctx, dbTx)
		if rollbackErr != nil {
			log.Errorf("networkID: %d, error rolling back commitment for block %d. RollbackErr: %v, err: %s", networkID, blockNumber, rollbackErr, err.Error())
			return rollbackErr
		}
		return err
	}
	if err := b.storage.Commit(ctx, dbTx); err != nil {
		return err
	}
	metrics.RecordCommitmentBuilt(networkID)
	return nil
}

func (b *Builder) persist(ctx context.Context, mt *MerkleTree, root common.Hash, locks []*models.LockRecord, networkID, destNetwork uint, blockNumber uint64, dbTx pgx.Tx) error {
	err := b.storage.AddBlockCommitment(ctx, &models.BlockCommitment{
		BlockNumber:   blockNumber,
		SourceNetwork: networkID,
		DestNetwork:   destNetwork,
		Root:          root,
		LockCount:     uint(mt.Count()),
	}, dbTx)
	if err != nil {
		return err
	}

	leafIndex := 0
	for _, lock := range locks {
		if lock.BlockNumber != blockNumber {
			continue
		}
		siblings, err := mt.Proof(leafIndex)
		if err != nil {
			return err
		}
		leafIndex++
		err = b.storage.SetProof(ctx, &models.ProofRecord{
			LockHash:    lock.LockHash,
			Siblings:    siblings,
			Root:        root,
			BlockNumber: blockNumber,
		}, dbTx)
		if err != nil {
			return err
		}
		err = b.storage.UpdateLockStatus(ctx, networkID, lock.LockHash, models.StatusProofGenerated, dbTx)
		if err != nil {
			return err
		}
	}
	return nil
}

// GetProof returns the stored proof for a lock hash. A record with an empty
// sibling list is a valid single-leaf proof, not a missing one; only an
// absent record is an error.
func (b *Builder) GetProof(ctx context.Context, lockHash common.Hash) (*models.ProofRecord, error) {
	return b.storage.GetProof(ctx, lockHash, nil)
}

func (b *Builder) failLock(ctx context.Context, lock *models.LockRecord, expectedBlock uint64) {
	log.Errorf("networkID: %d, lock %s references block %d but was returned for block %d, marking failed",
		lock.NetworkID, lock.LockHash.String(), lock.BlockNumber, expectedBlock)
	if err := b.storage.UpdateLockStatus(ctx, lock.NetworkID, lock.LockHash, models.StatusFailed, nil); err != nil {
		log.Errorf("networkID: %d, error marking lock %s failed: %v", lock.NetworkID, lock.LockHash.String(), err)
	}
	if b.alert != nil {
		b.alert.SendAlert(ctx, "lock excluded from commitment",
			"lock "+lock.LockHash.String()+" disagrees with its block commitment and needs manual review", "critical")
	}
}
