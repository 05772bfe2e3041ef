package relaytxman

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"testing"
	"time"

	"github.com/badbunnzcorporation-lgtm/nft-bridge/config/types"
	"github.com/badbunnzcorporation-lgtm/nft-bridge/etherman"
	"github.com/badbunnzcorporation-lgtm/nft-bridge/gerror"
	"github.com/badbunnzcorporation-lgtm/nft-bridge/models"
	rtmtypes "github.com/badbunnzcorporation-lgtm/nft-bridge/relaytxman/types"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	coretypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/jackc/pgx/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type chainMock struct {
	roots     map[uint64]common.Hash
	processed map[common.Hash]bool

	submitErr error
	unlockErr error
	waitErr   error
	balance   *big.Int

	submitted []etherman.CommitmentCall
	unlocked  []etherman.UnlockCall
	nonce     uint64
}

func newChainMock() *chainMock {
	return &chainMock{
		roots:     make(map[uint64]common.Hash),
		processed: make(map[common.Hash]bool),
	}
}

func (c *chainMock) GetRoot(ctx context.Context, blockNumber uint64) (common.Hash, error) {
	return c.roots[blockNumber], nil
}

func (c *chainMock) IsProcessed(ctx context.Context, lockHash common.Hash) (bool, error) {
	return c.processed[lockHash], nil
}

func (c *chainMock) mineTx() *coretypes.Transaction {
	c.nonce++
	return coretypes.NewTx(&coretypes.LegacyTx{Nonce: c.nonce})
}

func (c *chainMock) SubmitCommitment(ctx context.Context, auth *bind.TransactOpts, call etherman.CommitmentCall) (*coretypes.Transaction, error) {
	if c.submitErr != nil {
		return nil, c.submitErr
	}
	c.submitted = append(c.submitted, call)
	c.roots[call.BlockNumber] = call.Root
	return c.mineTx(), nil
}

func (c *chainMock) UnlockWithProof(ctx context.Context, auth *bind.TransactOpts, call etherman.UnlockCall) (*coretypes.Transaction, error) {
	if c.unlockErr != nil {
		return nil, c.unlockErr
	}
	c.unlocked = append(c.unlocked, call)
	c.processed[call.LockHash] = true
	return c.mineTx(), nil
}

func (c *chainMock) WaitConfirmations(ctx context.Context, txHash common.Hash, depth uint64, interval, timeout time.Duration) error {
	return c.waitErr
}

func (c *chainMock) BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error) {
	if c.balance != nil {
		return c.balance, nil
	}
	return big.NewInt(1e18), nil
}

type relayStorageMock struct {
	locks       map[common.Hash]*models.LockRecord
	commitments map[uint64]*models.BlockCommitment
	proofs      map[common.Hash]*models.ProofRecord
	monitored   []*rtmtypes.MonitoredTx
	failed      []*rtmtypes.FailedTx
	nextID      uint64
}

func newRelayStorageMock() *relayStorageMock {
	return &relayStorageMock{
		locks:       make(map[common.Hash]*models.LockRecord),
		commitments: make(map[uint64]*models.BlockCommitment),
		proofs:      make(map[common.Hash]*models.ProofRecord),
	}
}

func (m *relayStorageMock) BeginDBTransaction(ctx context.Context) (pgx.Tx, error) { return nil, nil }
func (m *relayStorageMock) Commit(ctx context.Context, dbTx pgx.Tx) error          { return nil }
func (m *relayStorageMock) Rollback(ctx context.Context, dbTx pgx.Tx) error        { return nil }

func (m *relayStorageMock) GetLock(ctx context.Context, networkID uint, lockHash common.Hash, dbTx pgx.Tx) (*models.LockRecord, error) {
	lock, found := m.locks[lockHash]
	if !found {
		return nil, gerror.ErrStorageNotFound
	}
	return lock, nil
}

func (m *relayStorageMock) GetLocksByBlock(ctx context.Context, networkID uint, blockNumber uint64, dbTx pgx.Tx) ([]*models.LockRecord, error) {
	var locks []*models.LockRecord
	for _, lock := range m.locks {
		if lock.NetworkID == networkID && lock.BlockNumber == blockNumber {
			locks = append(locks, lock)
		}
	}
	return locks, nil
}

func (m *relayStorageMock) GetLocksByStatus(ctx context.Context, networkID uint, status models.LockStatus, limit uint, dbTx pgx.Tx) ([]*models.LockRecord, error) {
	var locks []*models.LockRecord
	for _, lock := range m.locks {
		if lock.NetworkID == networkID && lock.Status == status {
			locks = append(locks, lock)
		}
	}
	return locks, nil
}

func (m *relayStorageMock) UpdateLockStatus(ctx context.Context, networkID uint, lockHash common.Hash, status models.LockStatus, dbTx pgx.Tx) error {
	lock, found := m.locks[lockHash]
	if !found {
		return gerror.ErrStorageNotFound
	}
	if lock.Status == status {
		return nil
	}
	if err := lock.Status.CheckTransition(status); err != nil {
		return err
	}
	lock.Status = status
	return nil
}

func (m *relayStorageMock) GetBlockCommitment(ctx context.Context, sourceNetwork uint, blockNumber uint64, dbTx pgx.Tx) (*models.BlockCommitment, error) {
	commitment, found := m.commitments[blockNumber]
	if !found {
		return nil, gerror.ErrStorageNotFound
	}
	return commitment, nil
}

func (m *relayStorageMock) GetUnsubmittedCommitments(ctx context.Context, sourceNetwork uint, limit uint, dbTx pgx.Tx) ([]*models.BlockCommitment, error) {
	var commitments []*models.BlockCommitment
	for _, commitment := range m.commitments {
		if !commitment.Submitted {
			commitments = append(commitments, commitment)
		}
	}
	return commitments, nil
}

func (m *relayStorageMock) SetCommitmentSubmitted(ctx context.Context, sourceNetwork uint, blockNumber uint64, txHash common.Hash, dbTx pgx.Tx) error {
	commitment, found := m.commitments[blockNumber]
	if !found {
		return gerror.ErrStorageNotFound
	}
	commitment.Submitted = true
	commitment.SubmissionTxHash = txHash
	return nil
}

func (m *relayStorageMock) GetProof(ctx context.Context, lockHash common.Hash, dbTx pgx.Tx) (*models.ProofRecord, error) {
	proof, found := m.proofs[lockHash]
	if !found {
		return nil, gerror.ErrProofNotFound
	}
	return proof, nil
}

func (m *relayStorageMock) AddMonitoredTx(ctx context.Context, mTx *rtmtypes.MonitoredTx, dbTx pgx.Tx) error {
	for _, existing := range m.monitored {
		if existing.NetworkID == mTx.NetworkID && existing.Purpose == mTx.Purpose &&
			existing.BlockNumber == mTx.BlockNumber && existing.LockHash == mTx.LockHash {
			// same dedup the unique key enforces in postgres
			return nil
		}
	}
	m.nextID++
	mTx.ID = m.nextID
	cp := *mTx
	m.monitored = append(m.monitored, &cp)
	return nil
}

func (m *relayStorageMock) UpdateMonitoredTx(ctx context.Context, mTx *rtmtypes.MonitoredTx, dbTx pgx.Tx) error {
	for i, existing := range m.monitored {
		if existing.ID == mTx.ID {
			cp := *mTx
			m.monitored[i] = &cp
			return nil
		}
	}
	return gerror.ErrStorageNotFound
}

func (m *relayStorageMock) GetMonitoredTxsByStatus(ctx context.Context, networkID uint, statuses []rtmtypes.MonitoredTxStatus, limit uint, dbTx pgx.Tx) ([]rtmtypes.MonitoredTx, error) {
	var mTxs []rtmtypes.MonitoredTx
	for _, mTx := range m.monitored {
		if mTx.NetworkID != networkID {
			continue
		}
		for _, status := range statuses {
			if mTx.Status == status {
				mTxs = append(mTxs, *mTx)
				break
			}
		}
	}
	return mTxs, nil
}

func (m *relayStorageMock) AddFailedTx(ctx context.Context, failedTx *rtmtypes.FailedTx, dbTx pgx.Tx) error {
	m.failed = append(m.failed, failedTx)
	return nil
}

func (m *relayStorageMock) monitoredByID(id uint64) *rtmtypes.MonitoredTx {
	for _, mTx := range m.monitored {
		if mTx.ID == id {
			return mTx
		}
	}
	return nil
}

type relayAlerterMock struct {
	titles   []string
	messages []string
}

func (a *relayAlerterMock) SendAlert(ctx context.Context, title, message, severity string) {
	a.titles = append(a.titles, title)
	a.messages = append(a.messages, message)
}

func testRelayConfig() Config {
	return Config{
		Enabled:               true,
		FrequencyToMonitorTxs: types.NewDuration(time.Second),
		RetryInterval:         types.NewDuration(time.Millisecond),
		RetryNumber:           3,
		ConfirmationDepth:     1,
		ConfirmationTimeout:   types.NewDuration(time.Second),
		BatchSize:             16,
	}
}

func newTestRelay(t *testing.T, storage *relayStorageMock, chain *chainMock, alert *relayAlerterMock) *RelayTxManager {
	t.Helper()
	auth := &bind.TransactOpts{From: common.HexToAddress("0x99")}
	tm, err := NewRelayTxManager(testRelayConfig(), storage, chain, alert, auth, 0, 1, nil)
	require.NoError(t, err)
	t.Cleanup(tm.Stop)
	return tm
}

func seedCommitment(storage *relayStorageMock, blockNumber uint64, lockHashes ...common.Hash) *models.BlockCommitment {
	commitment := &models.BlockCommitment{
		BlockNumber:   blockNumber,
		SourceNetwork: 0,
		DestNetwork:   1,
		Root:          common.BigToHash(big.NewInt(int64(blockNumber) + 5000)),
		LockCount:     uint(len(lockHashes)),
	}
	storage.commitments[blockNumber] = commitment
	for i, lockHash := range lockHashes {
		storage.locks[lockHash] = &models.LockRecord{
			NetworkID:   0,
			AssetID:     big.NewInt(int64(i + 1)),
			Recipient:   common.HexToAddress("0x22"),
			BlockNumber: blockNumber,
			LockHash:    lockHash,
			Status:      models.StatusProofGenerated,
		}
		storage.proofs[lockHash] = &models.ProofRecord{
			LockHash:    lockHash,
			Siblings:    []common.Hash{},
			Root:        commitment.Root,
			BlockNumber: blockNumber,
		}
	}
	return commitment
}

func TestSubmissionLifecycle(t *testing.T) {
	storage := newRelayStorageMock()
	chain := newChainMock()
	lockHash := common.HexToHash("0xa1")
	seedCommitment(storage, 5, lockHash)
	tm := newTestRelay(t, storage, chain, nil)
	ctx := context.Background()

	require.NoError(t, tm.enqueueSubmissions(ctx))
	require.Len(t, storage.monitored, 1)
	// a second enqueue does not duplicate
	require.NoError(t, tm.enqueueSubmissions(ctx))
	require.Len(t, storage.monitored, 1)

	require.NoError(t, tm.monitorTxs(ctx))

	require.Len(t, chain.submitted, 1)
	assert.Equal(t, uint64(5), chain.submitted[0].BlockNumber)
	assert.Equal(t, uint(1), chain.submitted[0].LockCount)
	assert.True(t, storage.commitments[5].Submitted)
	assert.Equal(t, models.StatusRootSubmitted, storage.locks[lockHash].Status)
	assert.Equal(t, rtmtypes.MonitoredTxStatusConfirmed, storage.monitored[0].Status)

	// a submitted commitment is no longer enqueued
	require.NoError(t, tm.enqueueSubmissions(ctx))
	require.Len(t, storage.monitored, 1)
}

func TestSubmissionSkipsFailedLocks(t *testing.T) {
	storage := newRelayStorageMock()
	chain := newChainMock()
	good := common.HexToHash("0xa1")
	bad := common.HexToHash("0xa2")
	seedCommitment(storage, 5, good)
	storage.locks[bad] = &models.LockRecord{
		NetworkID:   0,
		AssetID:     big.NewInt(9),
		BlockNumber: 5,
		LockHash:    bad,
		Status:      models.StatusFailed,
	}
	tm := newTestRelay(t, storage, chain, nil)
	ctx := context.Background()

	require.NoError(t, tm.enqueueSubmissions(ctx))
	require.NoError(t, tm.monitorTxs(ctx))

	require.Len(t, chain.submitted, 1)
	require.Len(t, chain.submitted[0].Records, 1)
	assert.Equal(t, good, chain.submitted[0].Records[0].LockHash)
	assert.Equal(t, models.StatusFailed, storage.locks[bad].Status)
}

func TestSubmissionAlreadyOnVault(t *testing.T) {
	storage := newRelayStorageMock()
	chain := newChainMock()
	lockHash := common.HexToHash("0xa1")
	commitment := seedCommitment(storage, 5, lockHash)
	// another relay got there first
	chain.roots[5] = commitment.Root
	tm := newTestRelay(t, storage, chain, nil)
	ctx := context.Background()

	require.NoError(t, tm.enqueueSubmissions(ctx))
	require.NoError(t, tm.monitorTxs(ctx))

	assert.Empty(t, chain.submitted)
	assert.True(t, storage.commitments[5].Submitted)
	assert.Equal(t, rtmtypes.MonitoredTxStatusConfirmed, storage.monitored[0].Status)
}

func TestSubmissionRootMismatch(t *testing.T) {
	storage := newRelayStorageMock()
	chain := newChainMock()
	lockHash := common.HexToHash("0xa1")
	seedCommitment(storage, 5, lockHash)
	chain.roots[5] = common.HexToHash("0xdead")
	alert := &relayAlerterMock{}
	tm := newTestRelay(t, storage, chain, alert)
	ctx := context.Background()

	require.NoError(t, tm.enqueueSubmissions(ctx))
	require.NoError(t, tm.monitorTxs(ctx))

	assert.Empty(t, chain.submitted)
	assert.Equal(t, rtmtypes.MonitoredTxStatusFailed, storage.monitored[0].Status)
	require.Len(t, storage.failed, 1)
	require.Len(t, alert.titles, 1)
	assert.Equal(t, "commitment root mismatch", alert.titles[0])
}

func TestSubmissionRaceTreatedAsSuccess(t *testing.T) {
	storage := newRelayStorageMock()
	chain := newChainMock()
	lockHash := common.HexToHash("0xa1")
	seedCommitment(storage, 5, lockHash)
	chain.submitErr = fmt.Errorf("execution reverted: root already submitted for this block")
	tm := newTestRelay(t, storage, chain, nil)
	ctx := context.Background()

	require.NoError(t, tm.enqueueSubmissions(ctx))
	require.NoError(t, tm.monitorTxs(ctx))

	assert.True(t, storage.commitments[5].Submitted)
	assert.Equal(t, rtmtypes.MonitoredTxStatusConfirmed, storage.monitored[0].Status)
	assert.Empty(t, storage.failed)
}

func TestSubmissionRetryBudget(t *testing.T) {
	storage := newRelayStorageMock()
	chain := newChainMock()
	lockHash := common.HexToHash("0xa1")
	seedCommitment(storage, 5, lockHash)
	chain.submitErr = errors.New("connection refused")
	alert := &relayAlerterMock{}
	tm := newTestRelay(t, storage, chain, alert)
	ctx := context.Background()

	require.NoError(t, tm.enqueueSubmissions(ctx))
	for i := 0; i < 3; i++ {
		require.NoError(t, tm.monitorTxs(ctx))
		// skip past the retry backoff
		if mTx := storage.monitoredByID(1); mTx != nil {
			mTx.UpdatedAt = mTx.UpdatedAt.Add(-time.Hour)
		}
	}

	mTx := storage.monitoredByID(1)
	require.NotNil(t, mTx)
	assert.Equal(t, rtmtypes.MonitoredTxStatusFailed, mTx.Status)
	require.Len(t, storage.failed, 1)
	assert.Contains(t, alert.titles, "relay tx retry budget exhausted")

	// failed txs are not processed again
	require.NoError(t, tm.monitorTxs(ctx))
	require.Len(t, storage.failed, 1)
}

func TestTransientRetryWaitsForBackoff(t *testing.T) {
	storage := newRelayStorageMock()
	chain := newChainMock()
	lockHash := common.HexToHash("0xa1")
	seedCommitment(storage, 5, lockHash)
	chain.submitErr = errors.New("connection refused")
	cfg := testRelayConfig()
	cfg.RetryInterval = types.NewDuration(time.Hour)
	auth := &bind.TransactOpts{From: common.HexToAddress("0x99")}
	tm, err := NewRelayTxManager(cfg, storage, chain, nil, auth, 0, 1, nil)
	require.NoError(t, err)
	t.Cleanup(tm.Stop)
	ctx := context.Background()

	assert.Equal(t, time.Duration(0), tm.retryBackoff(0))
	assert.Equal(t, time.Hour, tm.retryBackoff(1))
	assert.Equal(t, 4*time.Hour, tm.retryBackoff(3))

	require.NoError(t, tm.enqueueSubmissions(ctx))
	require.NoError(t, tm.monitorTxs(ctx))
	mTx := storage.monitoredByID(1)
	require.NotNil(t, mTx)
	require.Equal(t, uint(1), mTx.NumRetries)

	// the rpc recovers immediately, but the tx stays parked until its
	// backoff window elapses
	chain.submitErr = nil
	require.NoError(t, tm.monitorTxs(ctx))
	require.Empty(t, chain.submitted)
	assert.Equal(t, uint(1), storage.monitoredByID(1).NumRetries)

	mTx.UpdatedAt = time.Now().Add(-2 * time.Hour)
	require.NoError(t, tm.monitorTxs(ctx))
	require.Len(t, chain.submitted, 1)
	assert.Equal(t, rtmtypes.MonitoredTxStatusConfirmed, storage.monitoredByID(1).Status)
}

func TestLowBalanceAlertCoversBothChains(t *testing.T) {
	storage := newRelayStorageMock()
	destChain := newChainMock()
	sourceChain := newChainMock()
	sourceChain.balance = big.NewInt(5)
	alert := &relayAlerterMock{}
	cfg := testRelayConfig()
	cfg.LowBalanceThreshold = "1000"
	auth := &bind.TransactOpts{From: common.HexToAddress("0x99")}
	tm, err := NewRelayTxManager(cfg, storage, destChain, alert, auth, 0, 1, nil)
	require.NoError(t, err)
	t.Cleanup(tm.Stop)
	sourceAccount := common.HexToAddress("0x88")
	tm.WatchBalance(sourceChain, sourceAccount)

	tm.checkBalance(context.Background())

	// the destination wallet is healthy; only the source wallet alerts
	require.Len(t, alert.titles, 1)
	assert.Equal(t, "submitter balance low", alert.titles[0])
	assert.Contains(t, alert.messages[0], sourceAccount.String())
}

func TestUnlockLifecycle(t *testing.T) {
	storage := newRelayStorageMock()
	chain := newChainMock()
	lockHash := common.HexToHash("0xa1")
	commitment := seedCommitment(storage, 5, lockHash)
	commitment.Submitted = true
	storage.locks[lockHash].Status = models.StatusRootSubmitted
	chain.roots[5] = commitment.Root
	tm := newTestRelay(t, storage, chain, nil)
	ctx := context.Background()

	require.NoError(t, tm.enqueueUnlocks(ctx))
	require.Len(t, storage.monitored, 1)
	assert.Equal(t, rtmtypes.PurposeUnlock, storage.monitored[0].Purpose)

	require.NoError(t, tm.monitorTxs(ctx))

	require.Len(t, chain.unlocked, 1)
	assert.Equal(t, lockHash, chain.unlocked[0].LockHash)
	assert.Equal(t, models.StatusUnlocked, storage.locks[lockHash].Status)
	assert.Equal(t, rtmtypes.MonitoredTxStatusConfirmed, storage.monitored[0].Status)
}

func TestUnlockAlreadyProcessedOnVault(t *testing.T) {
	storage := newRelayStorageMock()
	chain := newChainMock()
	lockHash := common.HexToHash("0xa1")
	seedCommitment(storage, 5, lockHash)
	storage.locks[lockHash].Status = models.StatusRootSubmitted
	// the destination synchronizer raced us, or another relay unlocked
	chain.processed[lockHash] = true
	tm := newTestRelay(t, storage, chain, nil)
	ctx := context.Background()

	require.NoError(t, tm.enqueueUnlocks(ctx))
	require.NoError(t, tm.monitorTxs(ctx))

	assert.Empty(t, chain.unlocked)
	assert.Equal(t, models.StatusUnlocked, storage.locks[lockHash].Status)
	assert.Equal(t, rtmtypes.MonitoredTxStatusConfirmed, storage.monitored[0].Status)
}

func TestUnlockRevertMarksLockFailed(t *testing.T) {
	storage := newRelayStorageMock()
	chain := newChainMock()
	lockHash := common.HexToHash("0xa1")
	seedCommitment(storage, 5, lockHash)
	storage.locks[lockHash].Status = models.StatusRootSubmitted
	chain.unlockErr = errors.New("execution reverted: invalid merkle proof")
	alert := &relayAlerterMock{}
	tm := newTestRelay(t, storage, chain, alert)
	ctx := context.Background()

	require.NoError(t, tm.enqueueUnlocks(ctx))
	require.NoError(t, tm.monitorTxs(ctx))

	assert.Equal(t, rtmtypes.MonitoredTxStatusFailed, storage.monitored[0].Status)
	assert.Equal(t, models.StatusFailed, storage.locks[lockHash].Status)
	require.Len(t, storage.failed, 1)
	assert.Equal(t, rtmtypes.PurposeUnlock, storage.failed[0].Purpose)
	assert.Contains(t, alert.titles, "unlock reverted")
}
