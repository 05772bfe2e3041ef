package synchronizer

import (
	"context"
	"math/big"

	"github.com/badbunnzcorporation-lgtm/nft-bridge/etherman"
	"github.com/badbunnzcorporation-lgtm/nft-bridge/models"
	"github.com/ethereum/go-ethereum/common"
	coretypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/jackc/pgx/v4"
)

type ethermanInterface interface {
	GetNetworkID(ctx context.Context) (uint, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*coretypes.Header, error)
	BlockHashByNumber(ctx context.Context, blockNumber uint64) (common.Hash, error)
	GetBridgeEventsByBlockRange(ctx context.Context, networkID uint, fromBlock uint64, toBlock *uint64) ([]etherman.Block, map[common.Hash][]etherman.Order, error)
}

type storageInterface interface {
	BeginDBTransaction(ctx context.Context) (pgx.Tx, error)
	Commit(ctx context.Context, dbTx pgx.Tx) error
	Rollback(ctx context.Context, dbTx pgx.Tx) error
	GetLastBlock(ctx context.Context, networkID uint, dbTx pgx.Tx) (*etherman.Block, error)
	GetPreviousBlock(ctx context.Context, networkID uint, offset uint64, dbTx pgx.Tx) (*etherman.Block, error)
	AddBlock(ctx context.Context, block *etherman.Block, dbTx pgx.Tx) (uint64, error)
	Reset(ctx context.Context, blockNumber uint64, networkID uint, dbTx pgx.Tx) error
	AddLock(ctx context.Context, lock *models.LockRecord, blockID uint64, dbTx pgx.Tx) error
	AddUnlock(ctx context.Context, unlock *models.UnlockRecord, blockID uint64, dbTx pgx.Tx) error
	UpdateLockStatus(ctx context.Context, networkID uint, lockHash common.Hash, status models.LockStatus, dbTx pgx.Tx) error
}

type builderInterface interface {
	TriggerBuild(networkID uint, blockNumber uint64)
}
