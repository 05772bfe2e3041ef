package relaytxman

import (
	"context"
	"math/big"
	"time"

	"github.com/badbunnzcorporation-lgtm/nft-bridge/etherman"
	"github.com/badbunnzcorporation-lgtm/nft-bridge/models"
	rtmtypes "github.com/badbunnzcorporation-lgtm/nft-bridge/relaytxman/types"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	coretypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/jackc/pgx/v4"
)

// BalanceReader is the chain surface needed to watch a wallet balance.
type BalanceReader interface {
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
}

type chainInterface interface {
	GetRoot(ctx context.Context, blockNumber uint64) (common.Hash, error)
	IsProcessed(ctx context.Context, lockHash common.Hash) (bool, error)
	SubmitCommitment(ctx context.Context, auth *bind.TransactOpts, call etherman.CommitmentCall) (*coretypes.Transaction, error)
	UnlockWithProof(ctx context.Context, auth *bind.TransactOpts, call etherman.UnlockCall) (*coretypes.Transaction, error)
	WaitConfirmations(ctx context.Context, txHash common.Hash, depth uint64, interval, timeout time.Duration) error
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
}

type storageInterface interface {
	BeginDBTransaction(ctx context.Context) (pgx.Tx, error)
	Commit(ctx context.Context, dbTx pgx.Tx) error
	Rollback(ctx context.Context, dbTx pgx.Tx) error

	GetLock(ctx context.Context, networkID uint, lockHash common.Hash, dbTx pgx.Tx) (*models.LockRecord, error)
	GetLocksByBlock(ctx context.Context, networkID uint, blockNumber uint64, dbTx pgx.Tx) ([]*models.LockRecord, error)
	GetLocksByStatus(ctx context.Context, networkID uint, status models.LockStatus, limit uint, dbTx pgx.Tx) ([]*models.LockRecord, error)
	UpdateLockStatus(ctx context.Context, networkID uint, lockHash common.Hash, status models.LockStatus, dbTx pgx.Tx) error

	GetBlockCommitment(ctx context.Context, sourceNetwork uint, blockNumber uint64, dbTx pgx.Tx) (*models.BlockCommitment, error)
	GetUnsubmittedCommitments(ctx context.Context, sourceNetwork uint, limit uint, dbTx pgx.Tx) ([]*models.BlockCommitment, error)
	SetCommitmentSubmitted(ctx context.Context, sourceNetwork uint, blockNumber uint64, txHash common.Hash, dbTx pgx.Tx) error
	GetProof(ctx context.Context, lockHash common.Hash, dbTx pgx.Tx) (*models.ProofRecord, error)

	AddMonitoredTx(ctx context.Context, mTx *rtmtypes.MonitoredTx, dbTx pgx.Tx) error
	UpdateMonitoredTx(ctx context.Context, mTx *rtmtypes.MonitoredTx, dbTx pgx.Tx) error
	GetMonitoredTxsByStatus(ctx context.Context, networkID uint, statuses []rtmtypes.MonitoredTxStatus, limit uint, dbTx pgx.Tx) ([]rtmtypes.MonitoredTx, error)
	AddFailedTx(ctx context.Context, failedTx *rtmtypes.FailedTx, dbTx pgx.Tx) error
}

type alerterInterface interface {
	SendAlert(ctx context.Context, title, message, severity string)
}
