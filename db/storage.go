package db

import (
	"context"

	"github.com/badbunnzcorporation-lgtm/nft-bridge/db/pgstorage"
	"github.com/badbunnzcorporation-lgtm/nft-bridge/etherman"
	"github.com/badbunnzcorporation-lgtm/nft-bridge/gerror"
	"github.com/badbunnzcorporation-lgtm/nft-bridge/models"
	rtmtypes "github.com/badbunnzcorporation-lgtm/nft-bridge/relaytxman/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v4"
)

// Storage is the full persistence surface of the bridge.
type Storage interface {
	BeginDBTransaction(ctx context.Context) (pgx.Tx, error)
	Commit(ctx context.Context, dbTx pgx.Tx) error
	Rollback(ctx context.Context, dbTx pgx.Tx) error

	GetLastBlock(ctx context.Context, networkID uint, dbTx pgx.Tx) (*etherman.Block, error)
	GetPreviousBlock(ctx context.Context, networkID uint, offset uint64, dbTx pgx.Tx) (*etherman.Block, error)
	AddBlock(ctx context.Context, block *etherman.Block, dbTx pgx.Tx) (uint64, error)
	Reset(ctx context.Context, blockNumber uint64, networkID uint, dbTx pgx.Tx) error

	AddLock(ctx context.Context, lock *models.LockRecord, blockID uint64, dbTx pgx.Tx) error
	GetLock(ctx context.Context, networkID uint, lockHash common.Hash, dbTx pgx.Tx) (*models.LockRecord, error)
	GetLocksByBlock(ctx context.Context, networkID uint, blockNumber uint64, dbTx pgx.Tx) ([]*models.LockRecord, error)
	GetLocksByStatus(ctx context.Context, networkID uint, status models.LockStatus, limit uint, dbTx pgx.Tx) ([]*models.LockRecord, error)
	UpdateLockStatus(ctx context.Context, networkID uint, lockHash common.Hash, status models.LockStatus, dbTx pgx.Tx) error
	AddUnlock(ctx context.Context, unlock *models.UnlockRecord, blockID uint64, dbTx pgx.Tx) error
	GetUnlock(ctx context.Context, networkID uint, lockHash common.Hash, dbTx pgx.Tx) (*models.UnlockRecord, error)

	AddBlockCommitment(ctx context.Context, commitment *models.BlockCommitment, dbTx pgx.Tx) error
	GetBlockCommitment(ctx context.Context, sourceNetwork uint, blockNumber uint64, dbTx pgx.Tx) (*models.BlockCommitment, error)
	GetUnsubmittedCommitments(ctx context.Context, sourceNetwork uint, limit uint, dbTx pgx.Tx) ([]*models.BlockCommitment, error)
	SetCommitmentSubmitted(ctx context.Context, sourceNetwork uint, blockNumber uint64, txHash common.Hash, dbTx pgx.Tx) error
	GetPendingCommitmentBlocks(ctx context.Context, networkID uint, limit uint, dbTx pgx.Tx) ([]uint64, error)

	SetProof(ctx context.Context, proof *models.ProofRecord, dbTx pgx.Tx) error
	GetProof(ctx context.Context, lockHash common.Hash, dbTx pgx.Tx) (*models.ProofRecord, error)

	AddMonitoredTx(ctx context.Context, mTx *rtmtypes.MonitoredTx, dbTx pgx.Tx) error
	UpdateMonitoredTx(ctx context.Context, mTx *rtmtypes.MonitoredTx, dbTx pgx.Tx) error
	GetMonitoredTxsByStatus(ctx context.Context, networkID uint, statuses []rtmtypes.MonitoredTxStatus, limit uint, dbTx pgx.Tx) ([]rtmtypes.MonitoredTx, error)
	AddFailedTx(ctx context.Context, failedTx *rtmtypes.FailedTx, dbTx pgx.Tx) error
	GetFailedTxs(ctx context.Context, networkID uint, limit uint, dbTx pgx.Tx) ([]rtmtypes.FailedTx, error)
}

// NewStorage creates a new Storage
func NewStorage(cfg Config) (Storage, error) {
	if cfg.Database == "postgres" {
		return pgstorage.NewPostgresStorage(pgstorage.Config{
			Name:     cfg.Name,
			User:     cfg.User,
			Password: cfg.Password,
			Host:     cfg.Host,
			Port:     cfg.Port,
			MaxConns: cfg.MaxConns,
		})
	}
	return nil, gerror.ErrStorageNotRegister
}

// RunMigrations will execute pending migrations if needed to keep
// the database updated with the latest changes
func RunMigrations(cfg Config) error {
	return pgstorage.RunMigrations(pgstorage.Config{
		Name:     cfg.Name,
		User:     cfg.User,
		Password: cfg.Password,
		Host:     cfg.Host,
		Port:     cfg.Port,
	})
}
