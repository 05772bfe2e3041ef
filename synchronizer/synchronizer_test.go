package synchronizer

import (
	"context"
	"math/big"
	"testing"

	"github.com/badbunnzcorporation-lgtm/nft-bridge/bridgetree"
	"github.com/badbunnzcorporation-lgtm/nft-bridge/config/types"
	"github.com/badbunnzcorporation-lgtm/nft-bridge/etherman"
	"github.com/badbunnzcorporation-lgtm/nft-bridge/gerror"
	"github.com/badbunnzcorporation-lgtm/nft-bridge/models"
	"github.com/badbunnzcorporation-lgtm/nft-bridge/vault"
	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testVaultAddr     = common.HexToAddress("0x1000000000000000000000000000000000000001")
	testPeerVaultAddr = common.HexToAddress("0x1000000000000000000000000000000000000002")
	testAdmin         = common.HexToAddress("0x2000000000000000000000000000000000000002")
	testOwner         = common.HexToAddress("0x4000000000000000000000000000000000000004")
	testRecipient     = common.HexToAddress("0x5000000000000000000000000000000000000005")
)

type syncStorageMock struct {
	blocks  map[uint][]*etherman.Block
	locks   map[common.Hash]*models.LockRecord
	unlocks []*models.UnlockRecord
	nextID  uint64
	resets  []uint64
}

func newSyncStorageMock() *syncStorageMock {
	return &syncStorageMock{
		blocks: make(map[uint][]*etherman.Block),
		locks:  make(map[common.Hash]*models.LockRecord),
	}
}

func (m *syncStorageMock) BeginDBTransaction(ctx context.Context) (pgx.Tx, error) { return nil, nil }
func (m *syncStorageMock) Commit(ctx context.Context, dbTx pgx.Tx) error          { return nil }
func (m *syncStorageMock) Rollback(ctx context.Context, dbTx pgx.Tx) error        { return nil }

func (m *syncStorageMock) GetLastBlock(ctx context.Context, networkID uint, dbTx pgx.Tx) (*etherman.Block, error) {
	blocks := m.blocks[networkID]
	if len(blocks) == 0 {
		return nil, gerror.ErrStorageNotFound
	}
	return blocks[len(blocks)-1], nil
}

func (m *syncStorageMock) GetPreviousBlock(ctx context.Context, networkID uint, offset uint64, dbTx pgx.Tx) (*etherman.Block, error) {
	blocks := m.blocks[networkID]
	index := len(blocks) - 1 - int(offset)
	if index < 0 {
		return nil, gerror.ErrStorageNotFound
	}
	return blocks[index], nil
}

func (m *syncStorageMock) AddBlock(ctx context.Context, block *etherman.Block, dbTx pgx.Tx) (uint64, error) {
	m.nextID++
	cp := *block
	cp.ID = m.nextID
	m.blocks[block.NetworkID] = append(m.blocks[block.NetworkID], &cp)
	return m.nextID, nil
}

func (m *syncStorageMock) Reset(ctx context.Context, blockNumber uint64, networkID uint, dbTx pgx.Tx) error {
	m.resets = append(m.resets, blockNumber)
	blocks := m.blocks[networkID]
	kept := blocks[:0]
	for _, block := range blocks {
		if block.BlockNumber <= blockNumber {
			kept = append(kept, block)
		}
	}
	m.blocks[networkID] = kept
	return nil
}

func (m *syncStorageMock) AddLock(ctx context.Context, lock *models.LockRecord, blockID uint64, dbTx pgx.Tx) error {
	if _, exists := m.locks[lock.LockHash]; exists {
		// mirrors the on-conflict-do-nothing insert
		return nil
	}
	cp := *lock
	m.locks[lock.LockHash] = &cp
	return nil
}

func (m *syncStorageMock) AddUnlock(ctx context.Context, unlock *models.UnlockRecord, blockID uint64, dbTx pgx.Tx) error {
	cp := *unlock
	m.unlocks = append(m.unlocks, &cp)
	return nil
}

func (m *syncStorageMock) UpdateLockStatus(ctx context.Context, networkID uint, lockHash common.Hash, status models.LockStatus, dbTx pgx.Tx) error {
	lock, found := m.locks[lockHash]
	if !found || lock.NetworkID != networkID {
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

type builderMock struct {
	triggers []BuildRequestKey
}

// BuildRequestKey records one TriggerBuild call.
type BuildRequestKey struct {
	NetworkID   uint
	BlockNumber uint64
}

func (b *builderMock) TriggerBuild(networkID uint, blockNumber uint64) {
	b.triggers = append(b.triggers, BuildRequestKey{NetworkID: networkID, BlockNumber: blockNumber})
}

func newTestSync(t *testing.T, storage *syncStorageMock, builder *builderMock, client *etherman.SimulatedClient, peerNetworkID uint) *ClientSynchronizer {
	t.Helper()
	cfg := Config{
		SyncInterval:  types.NewDuration(0),
		SyncChunkSize: 10,
	}
	sy, err := NewSynchronizer(storage, builder, client, 1, peerNetworkID, nil, cfg)
	require.NoError(t, err)
	t.Cleanup(sy.Stop)
	cs, ok := sy.(*ClientSynchronizer)
	require.True(t, ok)
	return cs
}

func lockOnVault(t *testing.T, v *vault.Vault, assetID int64) common.Hash {
	t.Helper()
	id := big.NewInt(assetID)
	require.NoError(t, v.RegisterAsset(testAdmin, id, testOwner))
	lockHash, err := v.Lock(testOwner, id, testRecipient)
	require.NoError(t, err)
	return lockHash
}

func TestSyncRecordsLocks(t *testing.T) {
	v := vault.New(testVaultAddr, testAdmin)
	client := etherman.NewSimulatedClient(v, 0)
	storage := newSyncStorageMock()
	builder := &builderMock{}
	sy := newTestSync(t, storage, builder, client, 1)

	v.AdvanceBlock()
	lockHash := lockOnVault(t, v, 7)
	blockNumber := v.Height()
	v.AdvanceBlock()

	last, err := sy.syncBlocks(&etherman.Block{BlockNumber: 1, NetworkID: 0})
	require.NoError(t, err)
	assert.Equal(t, v.Height(), last.BlockNumber)

	lock, found := storage.locks[lockHash]
	require.True(t, found)
	assert.Equal(t, models.StatusPending, lock.Status)
	assert.Equal(t, uint(0), lock.NetworkID)
	assert.Equal(t, blockNumber, lock.BlockNumber)
	assert.Equal(t, big.NewInt(7), lock.AssetID)
	assert.Equal(t, testRecipient, lock.Recipient)

	require.Len(t, builder.triggers, 1)
	assert.Equal(t, BuildRequestKey{NetworkID: 0, BlockNumber: blockNumber}, builder.triggers[0])
	assert.True(t, sy.synced)
}

func TestSyncIsIdempotent(t *testing.T) {
	v := vault.New(testVaultAddr, testAdmin)
	client := etherman.NewSimulatedClient(v, 0)
	storage := newSyncStorageMock()
	sy := newTestSync(t, storage, &builderMock{}, client, 1)

	v.AdvanceBlock()
	lockOnVault(t, v, 7)
	v.AdvanceBlock()

	last, err := sy.syncBlocks(&etherman.Block{BlockNumber: 1, NetworkID: 0})
	require.NoError(t, err)
	require.Len(t, storage.locks, 1)

	// replaying the same range changes nothing
	_, err = sy.syncBlocks(&etherman.Block{BlockNumber: 1, NetworkID: 0})
	require.NoError(t, err)
	assert.Len(t, storage.locks, 1)

	// continuing from the checkpoint with no new blocks is a no-op
	_, err = sy.syncBlocks(last)
	require.NoError(t, err)
	assert.Len(t, storage.locks, 1)
}

func TestSyncClosesPeerLockOnUnlock(t *testing.T) {
	// the destination vault, observed by the network 1 synchronizer
	v := vault.New(testVaultAddr, testAdmin)
	require.NoError(t, v.SetSubmitter(testAdmin, testAdmin))
	require.NoError(t, v.SetPeer(testAdmin, testPeerVaultAddr))
	client := etherman.NewSimulatedClient(v, 1)
	storage := newSyncStorageMock()
	sy := newTestSync(t, storage, &builderMock{}, client, 0)

	// the lock was recorded on the peer network (0) by its own synchronizer
	assetID := big.NewInt(7)
	lockHash := common.HexToHash("0xabc1")
	sourceBlock := uint64(3)
	storage.locks[lockHash] = &models.LockRecord{
		NetworkID:   0,
		AssetID:     assetID,
		Recipient:   testRecipient,
		BlockNumber: sourceBlock,
		LockHash:    lockHash,
		Status:      models.StatusRootSubmitted,
	}

	// replay the commitment and the unlock on the destination vault
	leaf := bridgetree.LeafHash(assetID, testRecipient, lockHash, sourceBlock)
	record := vault.CommitmentRecord{AssetID: assetID, Recipient: testRecipient, LockHash: lockHash, BlockNumber: sourceBlock}
	require.NoError(t, v.SubmitCommitment(testAdmin, sourceBlock, leaf, 1, []vault.CommitmentRecord{record}))
	v.AdvanceBlock()
	require.NoError(t, v.UnlockWithProof(assetID, testRecipient, lockHash, sourceBlock, []common.Hash{}))

	_, err := sy.syncBlocks(&etherman.Block{BlockNumber: 1, NetworkID: 1})
	require.NoError(t, err)

	require.Len(t, storage.unlocks, 1)
	assert.Equal(t, uint(1), storage.unlocks[0].NetworkID)
	assert.Equal(t, lockHash, storage.unlocks[0].LockHash)
	// the peer network's lock record is closed
	assert.Equal(t, models.StatusUnlocked, storage.locks[lockHash].Status)
}

func TestSyncToleratesUnknownUnlock(t *testing.T) {
	v := vault.New(testVaultAddr, testAdmin)
	require.NoError(t, v.SetSubmitter(testAdmin, testAdmin))
	require.NoError(t, v.SetPeer(testAdmin, testPeerVaultAddr))
	client := etherman.NewSimulatedClient(v, 1)
	storage := newSyncStorageMock()
	sy := newTestSync(t, storage, &builderMock{}, client, 0)

	// an unlock whose lock was never recorded locally
	assetID := big.NewInt(7)
	lockHash := common.HexToHash("0xabc1")
	leaf := bridgetree.LeafHash(assetID, testRecipient, lockHash, 3)
	record := vault.CommitmentRecord{AssetID: assetID, Recipient: testRecipient, LockHash: lockHash, BlockNumber: 3}
	require.NoError(t, v.SubmitCommitment(testAdmin, 3, leaf, 1, []vault.CommitmentRecord{record}))
	v.AdvanceBlock()
	require.NoError(t, v.UnlockWithProof(assetID, testRecipient, lockHash, 3, []common.Hash{}))

	_, err := sy.syncBlocks(&etherman.Block{BlockNumber: 1, NetworkID: 1})
	require.NoError(t, err)
	require.Len(t, storage.unlocks, 1)
}

func TestSyncDetectsReorg(t *testing.T) {
	v := vault.New(testVaultAddr, testAdmin)
	client := etherman.NewSimulatedClient(v, 0)
	storage := newSyncStorageMock()
	sy := newTestSync(t, storage, &builderMock{}, client, 1)

	// block 2: hash as the chain reports it
	goodHash, err := client.BlockHashByNumber(context.Background(), 2)
	require.NoError(t, err)
	_, err = storage.AddBlock(context.Background(), &etherman.Block{BlockNumber: 2, BlockHash: goodHash, NetworkID: 0}, nil)
	require.NoError(t, err)
	// block 3: stored under a hash the chain no longer reports
	_, err = storage.AddBlock(context.Background(), &etherman.Block{BlockNumber: 3, BlockHash: common.HexToHash("0xdeadbeef"), NetworkID: 0}, nil)
	require.NoError(t, err)
	v.AdvanceBlock()
	v.AdvanceBlock()

	last, err := sy.syncBlocks(&etherman.Block{BlockNumber: 3, BlockHash: common.HexToHash("0xdeadbeef"), NetworkID: 0})
	require.NoError(t, err)

	// sync rewound to the last matching block and dropped what followed
	assert.Equal(t, uint64(2), last.BlockNumber)
	require.Len(t, storage.resets, 1)
	assert.Equal(t, uint64(2), storage.resets[0])
}

func TestSyncStartsAtHeadWithoutBackfill(t *testing.T) {
	v := vault.New(testVaultAddr, testAdmin)
	v.AdvanceBlock()
	// a lock recorded before the service ever ran
	lockOnVault(t, v, 1)
	v.AdvanceBlock()
	v.AdvanceBlock()

	storage := newSyncStorageMock()
	builder := &builderMock{}
	sy := newTestSync(t, storage, builder, etherman.NewSimulatedClient(v, 0), 1)

	initial, err := sy.initialBlock()
	require.NoError(t, err)
	assert.Equal(t, v.Height(), initial.BlockNumber)

	// tailing from that point sees no history
	last, err := sy.syncBlocks(initial)
	require.NoError(t, err)
	assert.Equal(t, v.Height(), last.BlockNumber)
	assert.Empty(t, storage.locks)
	assert.Empty(t, builder.triggers)
}
