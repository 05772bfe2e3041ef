package bridgetree

import (
	"context"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/badbunnzcorporation-lgtm/nft-bridge/gerror"
	"github.com/badbunnzcorporation-lgtm/nft-bridge/models"
	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type builderStorageMock struct {
	mu          sync.Mutex
	locks       map[uint]map[uint64][]*models.LockRecord
	commitments []*models.BlockCommitment
	proofs      map[common.Hash]*models.ProofRecord
	statuses    map[common.Hash]models.LockStatus

	// gate, when set, blocks GetLocksByBlock until released
	gate      chan struct{}
	getCalls  int
	committed int
	rolledOut int
}

func newBuilderStorageMock() *builderStorageMock {
	return &builderStorageMock{
		locks:    make(map[uint]map[uint64][]*models.LockRecord),
		proofs:   make(map[common.Hash]*models.ProofRecord),
		statuses: make(map[common.Hash]models.LockStatus),
	}
}

func (m *builderStorageMock) addLock(lock *models.LockRecord) {
	if m.locks[lock.NetworkID] == nil {
		m.locks[lock.NetworkID] = make(map[uint64][]*models.LockRecord)
	}
	m.locks[lock.NetworkID][lock.BlockNumber] = append(m.locks[lock.NetworkID][lock.BlockNumber], lock)
}

func (m *builderStorageMock) BeginDBTransaction(ctx context.Context) (pgx.Tx, error) {
	return nil, nil
}

func (m *builderStorageMock) Commit(ctx context.Context, dbTx pgx.Tx) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.committed++
	return nil
}

func (m *builderStorageMock) Rollback(ctx context.Context, dbTx pgx.Tx) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rolledOut++
	return nil
}

func (m *builderStorageMock) GetLocksByBlock(ctx context.Context, networkID uint, blockNumber uint64, dbTx pgx.Tx) ([]*models.LockRecord, error) {
	m.mu.Lock()
	m.getCalls++
	gate := m.gate
	m.mu.Unlock()
	if gate != nil {
		<-gate
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.locks[networkID][blockNumber], nil
}

func (m *builderStorageMock) AddBlockCommitment(ctx context.Context, commitment *models.BlockCommitment, dbTx pgx.Tx) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.commitments = append(m.commitments, commitment)
	return nil
}

func (m *builderStorageMock) SetProof(ctx context.Context, proof *models.ProofRecord, dbTx pgx.Tx) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.proofs[proof.LockHash] = proof
	return nil
}

func (m *builderStorageMock) UpdateLockStatus(ctx context.Context, networkID uint, lockHash common.Hash, status models.LockStatus, dbTx pgx.Tx) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statuses[lockHash] = status
	return nil
}

func (m *builderStorageMock) GetProof(ctx context.Context, lockHash common.Hash, dbTx pgx.Tx) (*models.ProofRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	proof, found := m.proofs[lockHash]
	if !found {
		return nil, gerror.ErrProofNotFound
	}
	return proof, nil
}

func (m *builderStorageMock) GetPendingCommitmentBlocks(ctx context.Context, networkID uint, limit uint, dbTx pgx.Tx) ([]uint64, error) {
	return nil, nil
}

type alerterMock struct {
	mu     sync.Mutex
	titles []string
}

func (a *alerterMock) SendAlert(ctx context.Context, title, message, severity string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.titles = append(a.titles, title)
}

func testLock(networkID uint, blockNumber uint64, assetID int64) *models.LockRecord {
	return &models.LockRecord{
		NetworkID:   networkID,
		AssetID:     big.NewInt(assetID),
		SourceOwner: common.HexToAddress("0x11"),
		Recipient:   common.HexToAddress("0x22"),
		BlockNumber: blockNumber,
		LockHash:    common.BigToHash(big.NewInt(assetID + 1000)),
		Status:      models.StatusPending,
	}
}

func TestBuildCommitsBlock(t *testing.T) {
	storage := newBuilderStorageMock()
	locks := []*models.LockRecord{
		testLock(0, 5, 1),
		testLock(0, 5, 2),
		testLock(0, 5, 3),
	}
	for _, lock := range locks {
		storage.addLock(lock)
	}
	b := NewBuilder(Config{Workers: 1}, storage, nil, map[uint]uint{0: 1, 1: 0})

	require.NoError(t, b.Build(context.Background(), 0, 5))

	require.Len(t, storage.commitments, 1)
	commitment := storage.commitments[0]
	assert.Equal(t, uint64(5), commitment.BlockNumber)
	assert.Equal(t, uint(0), commitment.SourceNetwork)
	assert.Equal(t, uint(1), commitment.DestNetwork)
	assert.Equal(t, uint(3), commitment.LockCount)
	assert.Equal(t, 1, storage.committed)

	// every proof must verify against the committed root
	for _, lock := range locks {
		proof, err := b.GetProof(context.Background(), lock.LockHash)
		require.NoError(t, err)
		leaf := LeafHash(lock.AssetID, lock.Recipient, lock.LockHash, lock.BlockNumber)
		assert.True(t, VerifyProof(leaf, proof.Siblings, commitment.Root))
		assert.Equal(t, models.StatusProofGenerated, storage.statuses[lock.LockHash])
	}
}

func TestBuildEmptyBlock(t *testing.T) {
	storage := newBuilderStorageMock()
	b := NewBuilder(Config{Workers: 1}, storage, nil, map[uint]uint{0: 1})

	require.NoError(t, b.Build(context.Background(), 0, 5))
	assert.Empty(t, storage.commitments)
	assert.Equal(t, 0, storage.committed)
}

func TestBuildUnknownNetwork(t *testing.T) {
	storage := newBuilderStorageMock()
	b := NewBuilder(Config{Workers: 1}, storage, nil, map[uint]uint{0: 1})

	err := b.Build(context.Background(), 7, 5)
	assert.ErrorIs(t, err, gerror.ErrNetworkNotRegister)
}

func TestBuildExcludesMismatchedLock(t *testing.T) {
	storage := newBuilderStorageMock()
	good := testLock(0, 5, 1)
	bad := testLock(0, 9, 2)
	storage.addLock(good)
	// the mock returns the bad lock for block 5 even though its record says 9
	storage.locks[0][5] = append(storage.locks[0][5], bad)

	alert := &alerterMock{}
	b := NewBuilder(Config{Workers: 1}, storage, alert, map[uint]uint{0: 1})

	require.NoError(t, b.Build(context.Background(), 0, 5))

	require.Len(t, storage.commitments, 1)
	assert.Equal(t, uint(1), storage.commitments[0].LockCount)
	assert.Equal(t, models.StatusProofGenerated, storage.statuses[good.LockHash])
	assert.Equal(t, models.StatusFailed, storage.statuses[bad.LockHash])
	require.Len(t, alert.titles, 1)
	assert.Equal(t, "lock excluded from commitment", alert.titles[0])
}

func TestBuildInFlightDedup(t *testing.T) {
	storage := newBuilderStorageMock()
	storage.addLock(testLock(0, 5, 1))
	storage.gate = make(chan struct{})
	b := NewBuilder(Config{Workers: 2}, storage, nil, map[uint]uint{0: 1})

	done := make(chan error, 1)
	go func() {
		done <- b.Build(context.Background(), 0, 5)
	}()

	// wait for the first build to reach storage and hold it there
	require.Eventually(t, func() bool {
		storage.mu.Lock()
		defer storage.mu.Unlock()
		return storage.getCalls == 1
	}, time.Second, time.Millisecond)

	// the duplicate is dropped without touching storage
	require.NoError(t, b.Build(context.Background(), 0, 5))
	storage.mu.Lock()
	assert.Equal(t, 1, storage.getCalls)
	storage.mu.Unlock()

	close(storage.gate)
	require.NoError(t, <-done)
	require.Len(t, storage.commitments, 1)
}
