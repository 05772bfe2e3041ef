package bridgetree

import (
	"context"

	"github.com/badbunnzcorporation-lgtm/nft-bridge/models"
	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v4"
)

type builderStorage interface {
	BeginDBTransaction(ctx context.Context) (pgx.Tx, error)
	Commit(ctx context.Context, dbTx pgx.Tx) error
	Rollback(ctx context.Context, dbTx pgx.Tx) error
	GetLocksByBlock(ctx context.Context, networkID uint, blockNumber uint64, dbTx pgx.Tx) ([]*models.LockRecord, error)
	AddBlockCommitment(ctx context.Context, commitment *models.BlockCommitment, dbTx pgx.Tx) error
	SetProof(ctx context.Context, proof *models.ProofRecord, dbTx pgx.Tx) error
	UpdateLockStatus(ctx context.Context, networkID uint, lockHash common.Hash, status models.LockStatus, dbTx pgx.Tx) error
	GetProof(ctx context.Context, lockHash common.Hash, dbTx pgx.Tx) (*models.ProofRecord, error)
	GetPendingCommitmentBlocks(ctx context.Context, networkID uint, limit uint, dbTx pgx.Tx) ([]uint64, error)
}

type alerter interface {
	SendAlert(ctx context.Context, title, message, severity string)
}
