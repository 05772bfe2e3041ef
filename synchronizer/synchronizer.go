package synchronizer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/badbunnzcorporation-lgtm/nft-bridge/etherman"
	"github.com/badbunnzcorporation-lgtm/nft-bridge/gerror"
	"github.com/badbunnzcorporation-lgtm/nft-bridge/log"
	"github.com/badbunnzcorporation-lgtm/nft-bridge/metrics"
	"github.com/badbunnzcorporation-lgtm/nft-bridge/models"
	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v4"
)

// Synchronizer indexes one ledger's vault events into storage
type Synchronizer interface {
	Sync() error
	Stop()
}

// ClientSynchronizer tails one network's vault, recording lock and unlock
// events block by block. Each block commits atomically, so a crash resumes
// from the last committed block and replays events into idempotent writes.
type ClientSynchronizer struct {
	etherMan       ethermanInterface
	builder        builderInterface
	storage        storageInterface
	ctx            context.Context
	cancelCtx      context.CancelFunc
	genBlockNumber uint64
	cfg            Config
	networkID      uint
	// peerNetworkID is the network whose locks this network's unlocks consume
	peerNetworkID uint
	chSynced      chan uint
	synced        bool
	waitDuration  time.Duration
}

// NewSynchronizer creates and initializes an instance of Synchronizer
func NewSynchronizer(
	storage storageInterface,
	builder builderInterface,
	ethMan ethermanInterface,
	genBlockNumber uint64,
	peerNetworkID uint,
	chSynced chan uint,
	cfg Config) (Synchronizer, error) {
	ctx, cancel := context.WithCancel(context.Background())
	networkID, err := ethMan.GetNetworkID(ctx)
	if err != nil {
		cancel()
		log.Errorf("error getting networkID. Error: %v", err)
		return nil, err
	}
	return &ClientSynchronizer{
		builder:        builder,
		storage:        storage,
		etherMan:       ethMan,
		ctx:            ctx,
		cancelCtx:      cancel,
		genBlockNumber: genBlockNumber,
		cfg:            cfg,
		networkID:      networkID,
		peerNetworkID:  peerNetworkID,
		chSynced:       chSynced,
	}, nil
}

// Sync reads the last block synced and tails the ledger from that point.
func (s *ClientSynchronizer) Sync() error {
	log.Infof("NetworkID: %d, synchronization started", s.networkID)
	lastBlockSynced, err := s.storage.GetLastBlock(s.ctx, s.networkID, nil)
	if err != nil {
		if errors.Is(err, gerror.ErrStorageNotFound) {
			lastBlockSynced, err = s.initialBlock()
			if err != nil {
				log.Errorf("networkID: %d, error getting the initial block. Error: %s", s.networkID, err.Error())
				return err
			}
		} else {
			log.Errorf("networkID: %d, unexpected error getting the latest block. Error: %s", s.networkID, err.Error())
			return err
		}
	}
	log.Debugf("NetworkID: %d, initial lastBlockSynced: %+v", s.networkID, lastBlockSynced)
	for {
		select {
		case <-s.ctx.Done():
			log.Debugf("NetworkID: %d, synchronizer ctx done", s.networkID)
			return nil
		case <-time.After(s.waitDuration):
			log.Debugf("NetworkID: %d, syncing...", s.networkID)
			if lastBlockSynced, err = s.syncBlocks(lastBlockSynced); err != nil {
				log.Warnf("networkID: %d, error syncing blocks: %v", s.networkID, err)
				lastBlockSynced, err = s.storage.GetLastBlock(s.ctx, s.networkID, nil)
				if err != nil {
					if !errors.Is(err, gerror.ErrStorageNotFound) {
						log.Errorf("networkID: %d, error getting lastBlockSynced to resume the synchronization. Error: %v", s.networkID, err)
						return err
					}
					lastBlockSynced, err = s.initialBlock()
					if err != nil {
						log.Warnf("networkID: %d, error getting the initial block to resume the synchronization. Error: %v", s.networkID, err)
						continue
					}
				}
				if s.ctx.Err() != nil {
					continue
				}
			}
			if !s.synced {
				header, err := s.etherMan.HeaderByNumber(s.ctx, nil)
				if err != nil {
					log.Warnf("networkID: %d, error getting latest block. Error: %s", s.networkID, err.Error())
					continue
				}
				lastKnownBlock := header.Number.Uint64()
				if lastBlockSynced.BlockNumber >= lastKnownBlock {
					s.setSynced()
				}
			}
		}
	}
}

// Stop function stops the synchronizer
func (s *ClientSynchronizer) Stop() {
	s.cancelCtx()
}

func (s *ClientSynchronizer) setSynced() {
	if !s.synced {
		log.Infof("NetworkID %d synced!", s.networkID)
		s.waitDuration = s.cfg.SyncInterval.Duration
		s.synced = true
		if s.chSynced != nil {
			s.chSynced <- s.networkID
		}
	}
}

// syncBlocks reads events from the block after the last synced one to the
// ledger head, one chunk at a time.
// initialBlock picks the checkpoint for a network with no stored block: the
// current chain head, so a fresh database never backfills history. The vault
// deployment block caps it from below for chains shorter than that.
func (s *ClientSynchronizer) initialBlock() (*etherman.Block, error) {
	header, err := s.etherMan.HeaderByNumber(s.ctx, nil)
	if err != nil {
		return nil, err
	}
	blockNumber := header.Number.Uint64()
	if blockNumber < s.genBlockNumber {
		blockNumber = s.genBlockNumber
	}
	blockHash, err := s.etherMan.BlockHashByNumber(s.ctx, blockNumber)
	if err != nil {
		return nil, err
	}
	log.Warnf("networkID: %d, no synced block stored. Starting from the current head: %d", s.networkID, blockNumber)
	return &etherman.Block{
		BlockNumber: blockNumber,
		BlockHash:   blockHash,
		NetworkID:   s.networkID,
	}, nil
}

func (s *ClientSynchronizer) syncBlocks(lastBlockSynced *etherman.Block) (*etherman.Block, error) {
	block, err := s.checkReorg(lastBlockSynced)
	if err != nil {
		log.Errorf("networkID: %d, error checking reorgs. Retrying... Err: %s", s.networkID, err.Error())
		return lastBlockSynced, fmt.Errorf("networkID: %d, error checking reorgs", s.networkID)
	}
	if block != nil {
		err = s.resetState(block.BlockNumber)
		if err != nil {
			log.Errorf("networkID: %d, error resetting the state to a previous block. Retrying... Error: %s", s.networkID, err.Error())
			return lastBlockSynced, fmt.Errorf("networkID: %d, error resetting the state to a previous block", s.networkID)
		}
		return block, nil
	}

	header, err := s.etherMan.HeaderByNumber(s.ctx, nil)
	if err != nil {
		return lastBlockSynced, err
	}
	lastKnownBlock := header.Number.Uint64()

	var fromBlock uint64
	if lastBlockSynced.BlockNumber > 0 {
		fromBlock = lastBlockSynced.BlockNumber + 1
	}
	if fromBlock > lastKnownBlock {
		s.setSynced()
		return lastBlockSynced, nil
	}

	for {
		toBlock := fromBlock + s.cfg.SyncChunkSize
		if toBlock > lastKnownBlock {
			toBlock = lastKnownBlock
		}

		log.Debugf("NetworkID: %d, getting bridge info from block %d to block %d", s.networkID, fromBlock, toBlock)
		blocks, order, err := s.etherMan.GetBridgeEventsByBlockRange(s.ctx, s.networkID, fromBlock, &toBlock)
		if err != nil {
			return lastBlockSynced, err
		}
		err = s.processBlockRange(blocks, order)
		if err != nil {
			return lastBlockSynced, err
		}
		if len(blocks) > 0 {
			lastBlockSynced = &blocks[len(blocks)-1]
			for i := range blocks {
				log.Debug("NetworkID: ", s.networkID, ", Position: ", i, ". BlockNumber: ", blocks[i].BlockNumber, ". BlockHash: ", blocks[i].BlockHash)
			}
		}

		if toBlock >= lastKnownBlock {
			// record the chunk boundary so the checkpoint advances through
			// event-free ranges
			if lastBlockSynced.BlockNumber < toBlock {
				emptyBlock, err := s.checkpointBlock(toBlock)
				if err != nil {
					return lastBlockSynced, err
				}
				lastBlockSynced = emptyBlock
			}
			s.setSynced()
			break
		}
		fromBlock = toBlock + 1
	}

	return lastBlockSynced, nil
}

// checkpointBlock stores an event-free block as the new sync checkpoint.
func (s *ClientSynchronizer) checkpointBlock(blockNumber uint64) (*etherman.Block, error) {
	blockHash, err := s.etherMan.BlockHashByNumber(s.ctx, blockNumber)
	if err != nil {
		return nil, err
	}
	block := &etherman.Block{
		BlockNumber: blockNumber,
		BlockHash:   blockHash,
		NetworkID:   s.networkID,
		ReceivedAt:  time.Now(),
	}
	err = s.processBlockRange([]etherman.Block{*block}, nil)
	if err != nil {
		return nil, err
	}
	log.Debugf("NetworkID: %d, storing empty block. BlockNumber: %d. BlockHash: %s",
		s.networkID, block.BlockNumber, block.BlockHash.String())
	return block, nil
}

func (s *ClientSynchronizer) processBlockRange(blocks []etherman.Block, order map[common.Hash][]etherman.Order) error {
	for i := range blocks {
		dbTx, err := s.storage.BeginDBTransaction(s.ctx)
		if err != nil {
			log.Errorf("networkID: %d, error creating db transaction to store block. BlockNumber: %d. Error: %v",
				s.networkID, blocks[i].BlockNumber, err)
			return err
		}
		blocks[i].NetworkID = s.networkID
		log.Infof("NetworkID: %d. Syncing block: %d", s.networkID, blocks[i].BlockNumber)
		blockID, err := s.storage.AddBlock(s.ctx, &blocks[i], dbTx)
		if err != nil {
			log.Errorf("networkID: %d, error storing block. BlockNumber: %d, error: %v", s.networkID, blocks[i].BlockNumber, err)
			rollbackErr := s.storage.Rollback(s.ctx, dbTx)
			if rollbackErr != nil {
				log.Errorf("networkID: %d, error rolling back state to store block. BlockNumber: %d, rollbackErr: %v, err: %s",
					s.networkID, blocks[i].BlockNumber, rollbackErr, err.Error())
				return rollbackErr
			}
			return err
		}
		for _, element := range order[blocks[i].BlockHash] {
			switch element.Name {
			case etherman.LocksOrder:
				err = s.processLock(blocks[i].Locks[element.Pos], blockID, dbTx)
				if err != nil {
					return err
				}
			case etherman.UnlocksOrder:
				err = s.processUnlock(blocks[i].Unlocks[element.Pos], blockID, dbTx)
				if err != nil {
					return err
				}
			}
		}
		err = s.storage.Commit(s.ctx, dbTx)
		if err != nil {
			log.Errorf("networkID: %d, error committing state to store block. BlockNumber: %d, err: %v",
				s.networkID, blocks[i].BlockNumber, err)
			rollbackErr := s.storage.Rollback(s.ctx, dbTx)
			if rollbackErr != nil {
				log.Errorf("networkID: %d, error rolling back state. BlockNumber: %d, rollbackErr: %v, err: %s",
					s.networkID, blocks[i].BlockNumber, rollbackErr, err.Error())
				return rollbackErr
			}
			return err
		}
		metrics.SetLastSyncedBlock(s.networkID, blocks[i].BlockNumber)
		// the block is durable; ask the builder for its commitment
		if len(blocks[i].Locks) > 0 && s.builder != nil {
			s.builder.TriggerBuild(s.networkID, blocks[i].BlockNumber)
		}
	}
	return nil
}

// resetState resets the sync state until a specific block
func (s *ClientSynchronizer) resetState(blockNumber uint64) error {
	log.Infof("NetworkID: %d. Reverting synchronization to block: %d", s.networkID, blockNumber)
	dbTx, err := s.storage.BeginDBTransaction(s.ctx)
	if err != nil {
		log.Errorf("networkID: %d, error starting a db transaction to reset the state. Error: %v", s.networkID, err)
		return err
	}
	err = s.storage.Reset(s.ctx, blockNumber, s.networkID, dbTx)
	if err != nil {
		log.Errorf("networkID: %d, error resetting the state. Error: %v", s.networkID, err)
		rollbackErr := s.storage.Rollback(s.ctx, dbTx)
		if rollbackErr != nil {
			log.Errorf("networkID: %d, error rolling back state. BlockNumber: %d, rollbackErr: %v, error : %s",
				s.networkID, blockNumber, rollbackErr, err.Error())
			return rollbackErr
		}
		return err
	}
	return s.storage.Commit(s.ctx, dbTx)
}

// checkReorg compares the stored chain against the ledger. When the stored
// hash of the last synced block no longer matches, it walks back through the
// stored blocks until a matching one is found and returns it; sync resumes
// from there.
func (s *ClientSynchronizer) checkReorg(latestBlock *etherman.Block) (*etherman.Block, error) {
	latestBlockSynced := *latestBlock
	var depth uint64
	for {
		blockHash, err := s.etherMan.BlockHashByNumber(s.ctx, latestBlock.BlockNumber)
		if err != nil {
			log.Errorf("networkID: %d, error getting latest block synced from blockchain. Block: %d, error: %v",
				s.networkID, latestBlock.BlockNumber, err)
			return nil, err
		}
		if blockHash != latestBlock.BlockHash && latestBlock.BlockNumber > s.genBlockNumber {
			depth++
			log.Info("NetworkID: ", s.networkID, ", REORG: looking for the latest correct block. Depth: ", depth)
			latestBlock, err = s.storage.GetPreviousBlock(s.ctx, s.networkID, depth, nil)
			if errors.Is(err, gerror.ErrStorageNotFound) {
				log.Warnf("networkID: %d, error checking reorg: previous block not found in db: %v", s.networkID, err)
				return &etherman.Block{}, nil
			} else if err != nil {
				log.Errorf("networkID: %d, error detected getting previous block: %v", s.networkID, err)
				return nil, err
			}
		} else {
			break
		}
	}
	if latestBlockSynced.BlockHash != latestBlock.BlockHash {
		log.Infof("NetworkID: %d, reorg detected in block: %d", s.networkID, latestBlockSynced.BlockNumber)
		return latestBlock, nil
	}
	log.Debugf("NetworkID: %d, no reorg detected", s.networkID)
	return nil, nil
}

func (s *ClientSynchronizer) processLock(lock etherman.LockEvent, blockID uint64, dbTx pgx.Tx) error {
	record := &models.LockRecord{
		NetworkID:   s.networkID,
		AssetID:     lock.AssetID,
		SourceOwner: lock.SourceOwner,
		Recipient:   lock.Recipient,
		BlockNumber: lock.BlockNumber,
		LockHash:    lock.LockHash,
		TxHash:      lock.TxHash,
		Status:      models.StatusPending,
		ReceivedAt:  time.Now(),
	}
	err := s.storage.AddLock(s.ctx, record, blockID, dbTx)
	if err != nil {
		log.Errorf("networkID: %d, failed to store new lock, BlockNumber: %d, LockHash: %s, err: %v",
			s.networkID, lock.BlockNumber, lock.LockHash.String(), err)
		rollbackErr := s.storage.Rollback(s.ctx, dbTx)
		if rollbackErr != nil {
			log.Errorf("networkID: %d, error rolling back state to store block. BlockNumber: %v, rollbackErr: %v, err: %s",
				s.networkID, lock.BlockNumber, rollbackErr, err.Error())
			return rollbackErr
		}
		return err
	}
	metrics.RecordLock(s.networkID)
	return nil
}

// processUnlock stores the unlock and closes the originating lock's round:
// the lock lives on the peer network, whose record moves to unlocked no
// matter which intermediate status it was in.
func (s *ClientSynchronizer) processUnlock(unlock etherman.UnlockEvent, blockID uint64, dbTx pgx.Tx) error {
	record := &models.UnlockRecord{
		NetworkID:   s.networkID,
		AssetID:     unlock.AssetID,
		Recipient:   unlock.Recipient,
		LockHash:    unlock.LockHash,
		BlockNumber: unlock.BlockNumber,
		TxHash:      unlock.TxHash,
		ReceivedAt:  time.Now(),
	}
	err := s.storage.AddUnlock(s.ctx, record, blockID, dbTx)
	if err != nil {
		log.Errorf("networkID: %d, failed to store new unlock, LockHash: %s, err: %v",
			s.networkID, unlock.LockHash.String(), err)
		rollbackErr := s.storage.Rollback(s.ctx, dbTx)
		if rollbackErr != nil {
			log.Errorf("networkID: %d, error rolling back state. LockHash: %v, rollbackErr: %v, err: %s",
				s.networkID, unlock.LockHash.String(), rollbackErr, err.Error())
			return rollbackErr
		}
		return err
	}
	err = s.storage.UpdateLockStatus(s.ctx, s.peerNetworkID, unlock.LockHash, models.StatusUnlocked, dbTx)
	if err != nil {
		if errors.Is(err, gerror.ErrStorageNotFound) {
			// an unlock with no recorded lock should not wedge the sync loop
			log.Warnf("networkID: %d, unlock observed for unknown lock %s on network %d",
				s.networkID, unlock.LockHash.String(), s.peerNetworkID)
			return nil
		}
		log.Errorf("networkID: %d, failed to close lock %s on network %d, err: %v",
			s.networkID, unlock.LockHash.String(), s.peerNetworkID, err)
		rollbackErr := s.storage.Rollback(s.ctx, dbTx)
		if rollbackErr != nil {
			log.Errorf("networkID: %d, error rolling back state. LockHash: %v, rollbackErr: %v, err: %s",
				s.networkID, unlock.LockHash.String(), rollbackErr, err.Error())
			return rollbackErr
		}
		return err
	}
	metrics.RecordUnlock(s.networkID)
	return nil
}
