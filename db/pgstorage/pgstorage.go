package pgstorage

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/badbunnzcorporation-lgtm/nft-bridge/etherman"
	"github.com/badbunnzcorporation-lgtm/nft-bridge/gerror"
	"github.com/badbunnzcorporation-lgtm/nft-bridge/log"
	"github.com/badbunnzcorporation-lgtm/nft-bridge/models"
	rtmtypes "github.com/badbunnzcorporation-lgtm/nft-bridge/relaytxman/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/lib/pq"
)

// parseAssetID decodes the decimal asset_id column. A row that does not
// parse is corrupt and surfaces as an error instead of a nil AssetID.
func parseAssetID(raw string) (*big.Int, error) {
	assetID, ok := new(big.Int).SetString(raw, 10) //nolint:gomnd
	if !ok {
		return nil, fmt.Errorf("malformed asset_id %q", raw)
	}
	return assetID, nil
}

// execQuerier is the common surface of the pool and a pgx transaction.
type execQuerier interface {
	Exec(ctx context.Context, sql string, arguments ...interface{}) (commandTag pgconn.CommandTag, err error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

// PostgresStorage implements the Storage interface
type PostgresStorage struct {
	*pgxpool.Pool
}

// NewPostgresStorage creates a new Storage DB
func NewPostgresStorage(cfg Config) (*PostgresStorage, error) {
	config, err := pgxpool.ParseConfig(fmt.Sprintf("postgres://%s:%s@%s:%s/%s?pool_max_conns=%d", cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.Name, cfg.MaxConns))
	if err != nil {
		log.Errorf("unable to parse DB config: %v", err)
		return nil, err
	}
	db, err := pgxpool.ConnectConfig(context.Background(), config)
	if err != nil {
		log.Errorf("unable to connect to database: %v", err)
		return nil, err
	}
	return &PostgresStorage{db}, nil
}

// getExecQuerier determines which execQuerier to use, dbTx or the main pgxpool
func (p *PostgresStorage) getExecQuerier(dbTx pgx.Tx) execQuerier {
	if dbTx != nil {
		return dbTx
	}
	return p
}

// BeginDBTransaction starts a transaction block.
func (p *PostgresStorage) BeginDBTransaction(ctx context.Context) (pgx.Tx, error) {
	return p.Begin(ctx)
}

// Commit commits a db transaction.
func (p *PostgresStorage) Commit(ctx context.Context, dbTx pgx.Tx) error {
	if dbTx != nil {
		return dbTx.Commit(ctx)
	}
	return gerror.ErrNilDBTransaction
}

// Rollback rollbacks a db transaction.
func (p *PostgresStorage) Rollback(ctx context.Context, dbTx pgx.Tx) error {
	if dbTx != nil {
		return dbTx.Rollback(ctx)
	}
	return gerror.ErrNilDBTransaction
}

// GetLastBlock gets the last processed block per network.
func (p *PostgresStorage) GetLastBlock(ctx context.Context, networkID uint, dbTx pgx.Tx) (*etherman.Block, error) {
	var block etherman.Block
	const getLastBlockSQL = "SELECT id, block_num, block_hash, parent_hash, network_id, received_at FROM sync.block WHERE network_id = $1 ORDER BY block_num DESC LIMIT 1"
	e := p.getExecQuerier(dbTx)
	err := e.QueryRow(ctx, getLastBlockSQL, networkID).Scan(&block.ID, &block.BlockNumber, &block.BlockHash, &block.ParentHash, &block.NetworkID, &block.ReceivedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, gerror.ErrStorageNotFound
	} else if err != nil {
		return nil, err
	}
	return &block, nil
}

// GetPreviousBlock gets the offset previous block respect to latest.
func (p *PostgresStorage) GetPreviousBlock(ctx context.Context, networkID uint, offset uint64, dbTx pgx.Tx) (*etherman.Block, error) {
	var block etherman.Block
	const getPreviousBlockSQL = "SELECT id, block_num, block_hash, parent_hash, network_id, received_at FROM sync.block WHERE network_id = $1 ORDER BY block_num DESC LIMIT 1 OFFSET $2"
	e := p.getExecQuerier(dbTx)
	err := e.QueryRow(ctx, getPreviousBlockSQL, networkID, offset).Scan(&block.ID, &block.BlockNumber, &block.BlockHash, &block.ParentHash, &block.NetworkID, &block.ReceivedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, gerror.ErrStorageNotFound
	} else if err != nil {
		return nil, err
	}
	return &block, nil
}

// AddBlock adds a new block to the storage. Re-adding the same block is a
// no-op returning the existing row id, so re-synced ranges stay idempotent.
func (p *PostgresStorage) AddBlock(ctx context.Context, block *etherman.Block, dbTx pgx.Tx) (uint64, error) {
	var blockID uint64
	const addBlockSQL = `INSERT INTO sync.block (block_num, block_hash, parent_hash, network_id, received_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (network_id, block_num) DO UPDATE SET block_hash = EXCLUDED.block_hash
		RETURNING id`
	e := p.getExecQuerier(dbTx)
	err := e.QueryRow(ctx, addBlockSQL, block.BlockNumber, block.BlockHash, block.ParentHash, block.NetworkID, block.ReceivedAt).Scan(&blockID)
	return blockID, err
}

// Reset resets the state to a block for the given network, dropping every
// lock and unlock recorded above it.
func (p *PostgresStorage) Reset(ctx context.Context, blockNumber uint64, networkID uint, dbTx pgx.Tx) error {
	const resetSQL = "DELETE FROM sync.block WHERE block_num > $1 AND network_id = $2"
	e := p.getExecQuerier(dbTx)
	_, err := e.Exec(ctx, resetSQL, blockNumber, networkID)
	return err
}

// AddLock stores one observed lock. Replayed events hit the
// (network_id, lock_hash) key and change nothing.
func (p *PostgresStorage) AddLock(ctx context.Context, lock *models.LockRecord, blockID uint64, dbTx pgx.Tx) error {
	const addLockSQL = `INSERT INTO sync.lock (network_id, asset_id, source_owner, recipient, block_num, lock_hash, tx_hash, status, block_id, received_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (network_id, lock_hash) DO NOTHING`
	e := p.getExecQuerier(dbTx)
	_, err := e.Exec(ctx, addLockSQL, lock.NetworkID, lock.AssetID.String(), lock.SourceOwner, lock.Recipient, lock.BlockNumber, lock.LockHash, lock.TxHash, lock.Status, blockID, lock.ReceivedAt)
	return err
}

const lockColumns = "id, network_id, asset_id, source_owner, recipient, block_num, lock_hash, tx_hash, status, received_at"

func scanLock(row pgx.Row) (*models.LockRecord, error) {
	var (
		lock    models.LockRecord
		assetID string
	)
	err := row.Scan(&lock.ID, &lock.NetworkID, &assetID, &lock.SourceOwner, &lock.Recipient, &lock.BlockNumber, &lock.LockHash, &lock.TxHash, &lock.Status, &lock.ReceivedAt)
	if err != nil {
		return nil, err
	}
	lock.AssetID, err = parseAssetID(assetID)
	if err != nil {
		return nil, err
	}
	return &lock, nil
}

// GetLock gets one lock by its hash.
func (p *PostgresStorage) GetLock(ctx context.Context, networkID uint, lockHash common.Hash, dbTx pgx.Tx) (*models.LockRecord, error) {
	const getLockSQL = "SELECT " + lockColumns + " FROM sync.lock WHERE network_id = $1 AND lock_hash = $2"
	e := p.getExecQuerier(dbTx)
	lock, err := scanLock(e.QueryRow(ctx, getLockSQL, networkID, lockHash))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, gerror.ErrStorageNotFound
	}
	return lock, err
}

// GetLocksByBlock gets every lock of one block in event order.
func (p *PostgresStorage) GetLocksByBlock(ctx context.Context, networkID uint, blockNumber uint64, dbTx pgx.Tx) ([]*models.LockRecord, error) {
	const getLocksSQL = "SELECT " + lockColumns + " FROM sync.lock WHERE network_id = $1 AND block_num = $2 ORDER BY id"
	e := p.getExecQuerier(dbTx)
	rows, err := e.Query(ctx, getLocksSQL, networkID, blockNumber)
	if err != nil {
		return nil, err
	}
	return scanLocks(rows)
}

// GetLocksByStatus gets locks in one status, oldest first.
func (p *PostgresStorage) GetLocksByStatus(ctx context.Context, networkID uint, status models.LockStatus, limit uint, dbTx pgx.Tx) ([]*models.LockRecord, error) {
	const getLocksSQL = "SELECT " + lockColumns + " FROM sync.lock WHERE network_id = $1 AND status = $2 ORDER BY id LIMIT $3"
	e := p.getExecQuerier(dbTx)
	rows, err := e.Query(ctx, getLocksSQL, networkID, status, limit)
	if err != nil {
		return nil, err
	}
	return scanLocks(rows)
}

func scanLocks(rows pgx.Rows) ([]*models.LockRecord, error) {
	defer rows.Close()
	locks := make([]*models.LockRecord, 0, len(rows.RawValues()))
	for rows.Next() {
		lock, err := scanLock(rows)
		if err != nil {
			return nil, err
		}
		locks = append(locks, lock)
	}
	return locks, rows.Err()
}

// UpdateLockStatus moves one lock through the status table. Setting the
// status it already has is a no-op, so retried pipeline stages stay
// idempotent; a backward move is rejected.
func (p *PostgresStorage) UpdateLockStatus(ctx context.Context, networkID uint, lockHash common.Hash, status models.LockStatus, dbTx pgx.Tx) error {
	lock, err := p.GetLock(ctx, networkID, lockHash, dbTx)
	if err != nil {
		return err
	}
	if lock.Status == status {
		return nil
	}
	if err := lock.Status.CheckTransition(status); err != nil {
		return fmt.Errorf("%w: lock %s: %s", gerror.ErrInvalidStatusTransition, lockHash.String(), err.Error())
	}
	const updateLockStatusSQL = "UPDATE sync.lock SET status = $3 WHERE network_id = $1 AND lock_hash = $2"
	e := p.getExecQuerier(dbTx)
	_, err = e.Exec(ctx, updateLockStatusSQL, networkID, lockHash, status)
	return err
}

// AddUnlock stores one observed unlock; replays change nothing.
func (p *PostgresStorage) AddUnlock(ctx context.Context, unlock *models.UnlockRecord, blockID uint64, dbTx pgx.Tx) error {
	const addUnlockSQL = `INSERT INTO sync.unlock (network_id, asset_id, recipient, lock_hash, block_num, tx_hash, block_id, received_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (network_id, lock_hash) DO NOTHING`
	e := p.getExecQuerier(dbTx)
	_, err := e.Exec(ctx, addUnlockSQL, unlock.NetworkID, unlock.AssetID.String(), unlock.Recipient, unlock.LockHash, unlock.BlockNumber, unlock.TxHash, blockID, unlock.ReceivedAt)
	return err
}

// GetUnlock gets one unlock by the lock hash it consumed.
func (p *PostgresStorage) GetUnlock(ctx context.Context, networkID uint, lockHash common.Hash, dbTx pgx.Tx) (*models.UnlockRecord, error) {
	var (
		unlock  models.UnlockRecord
		assetID string
	)
	const getUnlockSQL = "SELECT id, network_id, asset_id, recipient, lock_hash, block_num, tx_hash, received_at FROM sync.unlock WHERE network_id = $1 AND lock_hash = $2"
	e := p.getExecQuerier(dbTx)
	err := e.QueryRow(ctx, getUnlockSQL, networkID, lockHash).Scan(&unlock.ID, &unlock.NetworkID, &assetID, &unlock.Recipient, &unlock.LockHash, &unlock.BlockNumber, &unlock.TxHash, &unlock.ReceivedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, gerror.ErrStorageNotFound
	} else if err != nil {
		return nil, err
	}
	unlock.AssetID, err = parseAssetID(assetID)
	if err != nil {
		return nil, err
	}
	return &unlock, nil
}

// AddBlockCommitment stores the root for one (block, source network) pair.
// Rebuilds of the same block recompute the identical root, so the conflict
// no-op keeps the write-once rule without failing the retry.
func (p *PostgresStorage) AddBlockCommitment(ctx context.Context, commitment *models.BlockCommitment, dbTx pgx.Tx) error {
	const addCommitmentSQL = `INSERT INTO sync.block_commitment (block_num, source_network, dest_network, root, lock_count)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (source_network, block_num) DO NOTHING`
	e := p.getExecQuerier(dbTx)
	_, err := e.Exec(ctx, addCommitmentSQL, commitment.BlockNumber, commitment.SourceNetwork, commitment.DestNetwork, commitment.Root, commitment.LockCount)
	return err
}

const commitmentColumns = "block_num, source_network, dest_network, root, lock_count, submitted, coalesce(submission_tx_hash, '\\x0000000000000000000000000000000000000000000000000000000000000000')"

// GetBlockCommitment gets the commitment of one block.
func (p *PostgresStorage) GetBlockCommitment(ctx context.Context, sourceNetwork uint, blockNumber uint64, dbTx pgx.Tx) (*models.BlockCommitment, error) {
	var commitment models.BlockCommitment
	const getCommitmentSQL = "SELECT " + commitmentColumns + " FROM sync.block_commitment WHERE source_network = $1 AND block_num = $2"
	e := p.getExecQuerier(dbTx)
	err := e.QueryRow(ctx, getCommitmentSQL, sourceNetwork, blockNumber).Scan(&commitment.BlockNumber, &commitment.SourceNetwork, &commitment.DestNetwork, &commitment.Root, &commitment.LockCount, &commitment.Submitted, &commitment.SubmissionTxHash)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, gerror.ErrStorageNotFound
	} else if err != nil {
		return nil, err
	}
	return &commitment, nil
}

// GetUnsubmittedCommitments gets commitments not yet confirmed on the
// destination vault, oldest block first.
func (p *PostgresStorage) GetUnsubmittedCommitments(ctx context.Context, sourceNetwork uint, limit uint, dbTx pgx.Tx) ([]*models.BlockCommitment, error) {
	const getUnsubmittedSQL = "SELECT " + commitmentColumns + " FROM sync.block_commitment WHERE source_network = $1 AND submitted = FALSE ORDER BY block_num LIMIT $2"
	e := p.getExecQuerier(dbTx)
	rows, err := e.Query(ctx, getUnsubmittedSQL, sourceNetwork, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	commitments := make([]*models.BlockCommitment, 0, len(rows.RawValues()))
	for rows.Next() {
		var commitment models.BlockCommitment
		err = rows.Scan(&commitment.BlockNumber, &commitment.SourceNetwork, &commitment.DestNetwork, &commitment.Root, &commitment.LockCount, &commitment.Submitted, &commitment.SubmissionTxHash)
		if err != nil {
			return nil, err
		}
		commitments = append(commitments, &commitment)
	}
	return commitments, rows.Err()
}

// SetCommitmentSubmitted marks the root as confirmed on the destination vault.
func (p *PostgresStorage) SetCommitmentSubmitted(ctx context.Context, sourceNetwork uint, blockNumber uint64, txHash common.Hash, dbTx pgx.Tx) error {
	const setSubmittedSQL = "UPDATE sync.block_commitment SET submitted = TRUE, submission_tx_hash = $3 WHERE source_network = $1 AND block_num = $2"
	e := p.getExecQuerier(dbTx)
	_, err := e.Exec(ctx, setSubmittedSQL, sourceNetwork, blockNumber, txHash)
	return err
}

// GetPendingCommitmentBlocks gets blocks holding pending locks without a
// commitment yet; the builder sweep re-queues them.
func (p *PostgresStorage) GetPendingCommitmentBlocks(ctx context.Context, networkID uint, limit uint, dbTx pgx.Tx) ([]uint64, error) {
	const getPendingSQL = `SELECT DISTINCT l.block_num FROM sync.lock l
		WHERE l.network_id = $1 AND l.status = 'pending'
		AND NOT EXISTS (SELECT 1 FROM sync.block_commitment c WHERE c.source_network = l.network_id AND c.block_num = l.block_num)
		ORDER BY l.block_num LIMIT $2`
	e := p.getExecQuerier(dbTx)
	rows, err := e.Query(ctx, getPendingSQL, networkID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	blocks := make([]uint64, 0, len(rows.RawValues()))
	for rows.Next() {
		var blockNumber uint64
		if err := rows.Scan(&blockNumber); err != nil {
			return nil, err
		}
		blocks = append(blocks, blockNumber)
	}
	return blocks, rows.Err()
}

// SetProof upserts the sibling path of one lock. An empty sibling array is a
// valid single-leaf proof.
func (p *PostgresStorage) SetProof(ctx context.Context, proof *models.ProofRecord, dbTx pgx.Tx) error {
	siblings := make([][]byte, 0, len(proof.Siblings))
	for _, sibling := range proof.Siblings {
		siblings = append(siblings, sibling.Bytes())
	}
	const setProofSQL = `INSERT INTO sync.proof (lock_hash, siblings, root, block_num)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (lock_hash) DO UPDATE SET siblings = EXCLUDED.siblings, root = EXCLUDED.root, block_num = EXCLUDED.block_num`
	e := p.getExecQuerier(dbTx)
	_, err := e.Exec(ctx, setProofSQL, proof.LockHash, pq.Array(siblings), proof.Root, proof.BlockNumber)
	return err
}

// GetProof gets the sibling path of one lock. Only an absent row is an
// error; a present row with zero siblings is the single-leaf proof.
func (p *PostgresStorage) GetProof(ctx context.Context, lockHash common.Hash, dbTx pgx.Tx) (*models.ProofRecord, error) {
	var (
		proof    models.ProofRecord
		siblings [][]byte
	)
	const getProofSQL = "SELECT lock_hash, siblings, root, block_num FROM sync.proof WHERE lock_hash = $1"
	e := p.getExecQuerier(dbTx)
	err := e.QueryRow(ctx, getProofSQL, lockHash).Scan(&proof.LockHash, pq.Array(&siblings), &proof.Root, &proof.BlockNumber)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, gerror.ErrProofNotFound
	} else if err != nil {
		return nil, err
	}
	proof.Siblings = make([]common.Hash, 0, len(siblings))
	for _, sibling := range siblings {
		proof.Siblings = append(proof.Siblings, common.BytesToHash(sibling))
	}
	return &proof, nil
}

// AddMonitoredTx persists one relay call to track. A second actor creating
// the same call hits the purpose key and changes nothing.
func (p *PostgresStorage) AddMonitoredTx(ctx context.Context, mTx *rtmtypes.MonitoredTx, dbTx pgx.Tx) error {
	const addMonitoredTxSQL = `INSERT INTO sync.monitored_txs (network_id, purpose, block_num, lock_hash, status, history, num_retries, last_error, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (network_id, purpose, block_num, lock_hash) DO NOTHING`
	e := p.getExecQuerier(dbTx)
	_, err := e.Exec(ctx, addMonitoredTxSQL, mTx.NetworkID, mTx.Purpose, mTx.BlockNumber, mTx.LockHash, mTx.Status, pq.Array(mTx.HistoryHashes()), mTx.NumRetries, mTx.LastError, mTx.CreatedAt, mTx.UpdatedAt)
	return err
}

// UpdateMonitoredTx stores lifecycle changes of one monitored tx.
func (p *PostgresStorage) UpdateMonitoredTx(ctx context.Context, mTx *rtmtypes.MonitoredTx, dbTx pgx.Tx) error {
	const updateMonitoredTxSQL = `UPDATE sync.monitored_txs
		SET status = $2, history = $3, num_retries = $4, last_error = $5, updated_at = $6
		WHERE id = $1`
	e := p.getExecQuerier(dbTx)
	_, err := e.Exec(ctx, updateMonitoredTxSQL, mTx.ID, mTx.Status, pq.Array(mTx.HistoryHashes()), mTx.NumRetries, mTx.LastError, mTx.UpdatedAt)
	return err
}

// GetMonitoredTxsByStatus gets monitored txs in the given statuses, oldest
// first.
func (p *PostgresStorage) GetMonitoredTxsByStatus(ctx context.Context, networkID uint, statuses []rtmtypes.MonitoredTxStatus, limit uint, dbTx pgx.Tx) ([]rtmtypes.MonitoredTx, error) {
	const getMonitoredTxsSQL = `SELECT id, network_id, purpose, block_num, lock_hash, status, history, num_retries, last_error, created_at, updated_at
		FROM sync.monitored_txs WHERE network_id = $1 AND status = ANY($2) ORDER BY id LIMIT $3`
	statusStrings := make([]string, 0, len(statuses))
	for _, status := range statuses {
		statusStrings = append(statusStrings, status.String())
	}
	e := p.getExecQuerier(dbTx)
	rows, err := e.Query(ctx, getMonitoredTxsSQL, networkID, pq.Array(statusStrings), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	mTxs := make([]rtmtypes.MonitoredTx, 0, len(rows.RawValues()))
	for rows.Next() {
		var (
			mTx     rtmtypes.MonitoredTx
			history [][]byte
		)
		err = rows.Scan(&mTx.ID, &mTx.NetworkID, &mTx.Purpose, &mTx.BlockNumber, &mTx.LockHash, &mTx.Status, pq.Array(&history), &mTx.NumRetries, &mTx.LastError, &mTx.CreatedAt, &mTx.UpdatedAt)
		if err != nil {
			return nil, err
		}
		mTx.History = make(map[common.Hash]bool)
		for _, h := range history {
			mTx.History[common.BytesToHash(h)] = true
		}
		mTxs = append(mTxs, mTx)
	}
	return mTxs, rows.Err()
}

// AddFailedTx records a relay call given up on, for manual review.
func (p *PostgresStorage) AddFailedTx(ctx context.Context, failedTx *rtmtypes.FailedTx, dbTx pgx.Tx) error {
	const addFailedTxSQL = `INSERT INTO sync.failed_txs (network_id, purpose, block_num, lock_hash, reason, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`
	e := p.getExecQuerier(dbTx)
	_, err := e.Exec(ctx, addFailedTxSQL, failedTx.NetworkID, failedTx.Purpose, failedTx.BlockNumber, failedTx.LockHash, failedTx.Reason, failedTx.CreatedAt)
	return err
}

// GetFailedTxs lists the relay calls given up on, newest first.
func (p *PostgresStorage) GetFailedTxs(ctx context.Context, networkID uint, limit uint, dbTx pgx.Tx) ([]rtmtypes.FailedTx, error) {
	const getFailedTxsSQL = "SELECT id, network_id, purpose, block_num, lock_hash, reason, created_at FROM sync.failed_txs WHERE network_id = $1 ORDER BY id DESC LIMIT $2"
	e := p.getExecQuerier(dbTx)
	rows, err := e.Query(ctx, getFailedTxsSQL, networkID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	failed := make([]rtmtypes.FailedTx, 0, len(rows.RawValues()))
	for rows.Next() {
		var failedTx rtmtypes.FailedTx
		err = rows.Scan(&failedTx.ID, &failedTx.NetworkID, &failedTx.Purpose, &failedTx.BlockNumber, &failedTx.LockHash, &failedTx.Reason, &failedTx.CreatedAt)
		if err != nil {
			return nil, err
		}
		failed = append(failed, failedTx)
	}
	return failed, rows.Err()
}
