package etherman

import (
	"context"
	"math/big"
	"sync"
	"time"

	"github.com/badbunnzcorporation-lgtm/nft-bridge/vault"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	coretypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// SimulatedClient exposes a vault instance through the same surface as the
// rpc Client, so the synchronizer and the relay run unchanged against an
// in-process ledger in tests and local runs.
type SimulatedClient struct {
	mu        sync.Mutex
	vault     *vault.Vault
	networkID uint
	// receipts records every transaction the simulation accepted so mined
	// checks behave like a one-block-confirmation chain
	receipts map[common.Hash]*coretypes.Receipt
	nonce    uint64
}

// NewSimulatedClient wraps a vault as network networkID.
func NewSimulatedClient(v *vault.Vault, networkID uint) *SimulatedClient {
	return &SimulatedClient{
		vault:     v,
		networkID: networkID,
		receipts:  make(map[common.Hash]*coretypes.Receipt),
	}
}

// NewSimulatedPair builds the two in-process clients of a local bridge, with
// both vaults ready to accept traffic: submitter designates the account that
// signs the relay calls on each side, and the peer identities are linked
// crosswise.
func NewSimulatedPair(vaultAddr1, vaultAddr2, admin, submitter common.Address, networkID1, networkID2 uint) (*SimulatedClient, *SimulatedClient, error) {
	v1 := vault.New(vaultAddr1, admin)
	v2 := vault.New(vaultAddr2, admin)
	if err := v1.SetSubmitter(admin, submitter); err != nil {
		return nil, nil, err
	}
	if err := v2.SetSubmitter(admin, submitter); err != nil {
		return nil, nil, err
	}
	if err := v1.SetPeer(admin, vaultAddr2); err != nil {
		return nil, nil, err
	}
	if err := v2.SetPeer(admin, vaultAddr1); err != nil {
		return nil, nil, err
	}
	return NewSimulatedClient(v1, networkID1), NewSimulatedClient(v2, networkID2), nil
}

// Vault returns the underlying verifier, for test setup.
func (c *SimulatedClient) Vault() *vault.Vault {
	return c.vault
}

// GetNetworkID returns the configured network identifier.
func (c *SimulatedClient) GetNetworkID(ctx context.Context) (uint, error) {
	return c.networkID, nil
}

// simBlockHash derives a deterministic per-network block hash so reorg checks
// are stable across restarts.
func (c *SimulatedClient) simBlockHash(blockNumber uint64) common.Hash {
	payload := make([]byte, 16)
	big.NewInt(int64(c.networkID)).FillBytes(payload[:8])
	new(big.Int).SetUint64(blockNumber).FillBytes(payload[8:])
	return crypto.Keccak256Hash(payload)
}

// HeaderByNumber returns the header at number, or the head when number is nil.
func (c *SimulatedClient) HeaderByNumber(ctx context.Context, number *big.Int) (*coretypes.Header, error) {
	height := c.vault.Height()
	if number != nil {
		if number.Uint64() > height {
			return nil, ErrNotFound
		}
		height = number.Uint64()
	}
	return &coretypes.Header{
		Number:     new(big.Int).SetUint64(height),
		ParentHash: c.simBlockHash(height - 1),
		Time:       uint64(time.Now().Unix()),
	}, nil
}

// BlockHashByNumber returns the deterministic hash at blockNumber.
func (c *SimulatedClient) BlockHashByNumber(ctx context.Context, blockNumber uint64) (common.Hash, error) {
	if blockNumber > c.vault.Height() {
		return common.Hash{}, ErrNotFound
	}
	return c.simBlockHash(blockNumber), nil
}

// GetBridgeEventsByBlockRange collects the vault notifications recorded
// between fromBlock and toBlock, grouped per block and ordered as emitted.
func (c *SimulatedClient) GetBridgeEventsByBlockRange(ctx context.Context, networkID uint, fromBlock uint64, toBlock *uint64) ([]Block, map[common.Hash][]Order, error) {
	last := c.vault.Height()
	if toBlock != nil && *toBlock < last {
		last = *toBlock
	}

	var blocks []Block
	order := make(map[common.Hash][]Order)
	for number := fromBlock; number <= last; number++ {
		locks := c.vault.LockEventsAt(number)
		unlocks := c.vault.UnlockEventsAt(number)
		if len(locks) == 0 && len(unlocks) == 0 {
			continue
		}
		block := Block{
			BlockNumber: number,
			BlockHash:   c.simBlockHash(number),
			ParentHash:  c.simBlockHash(number - 1),
			NetworkID:   networkID,
			ReceivedAt:  time.Now(),
		}
		for _, lock := range locks {
			block.Locks = append(block.Locks, LockEvent{
				AssetID:     lock.AssetID,
				SourceOwner: lock.SourceOwner,
				Recipient:   lock.Recipient,
				LockHash:    lock.LockHash,
				BlockNumber: lock.BlockNumber,
				TxHash:      lock.TxHash,
			})
			order[block.BlockHash] = append(order[block.BlockHash], Order{Name: LocksOrder, Pos: len(block.Locks) - 1})
		}
		for _, unlock := range unlocks {
			block.Unlocks = append(block.Unlocks, UnlockEvent{
				AssetID:     unlock.AssetID,
				Recipient:   unlock.Recipient,
				LockHash:    unlock.LockHash,
				BlockNumber: unlock.BlockNumber,
				Minted:      unlock.Minted,
				TxHash:      unlock.TxHash,
			})
			order[block.BlockHash] = append(order[block.BlockHash], Order{Name: UnlocksOrder, Pos: len(block.Unlocks) - 1})
		}
		blocks = append(blocks, block)
	}
	return blocks, order, nil
}

// GetRoot reads the stored root for a block; the zero hash means unset.
func (c *SimulatedClient) GetRoot(ctx context.Context, blockNumber uint64) (common.Hash, error) {
	return c.vault.GetRoot(blockNumber), nil
}

// IsProcessed reads the replay guard for a lock hash.
func (c *SimulatedClient) IsProcessed(ctx context.Context, lockHash common.Hash) (bool, error) {
	return c.vault.IsProcessed(lockHash), nil
}

// SubmitCommitment applies the commitment synchronously and fabricates the
// mined transaction for it.
func (c *SimulatedClient) SubmitCommitment(ctx context.Context, auth *bind.TransactOpts, call CommitmentCall) (*coretypes.Transaction, error) {
	records := make([]vault.CommitmentRecord, 0, len(call.Records))
	for _, record := range call.Records {
		records = append(records, vault.CommitmentRecord{
			AssetID:     record.AssetID,
			Recipient:   record.Recipient,
			LockHash:    record.LockHash,
			BlockNumber: record.BlockNumber,
		})
	}
	err := c.vault.SubmitCommitment(auth.From, call.BlockNumber, call.Root, call.LockCount, records)
	if err != nil {
		return nil, err
	}
	return c.mineTx(), nil
}

// UnlockWithProof applies the unlock synchronously and fabricates the mined
// transaction for it.
func (c *SimulatedClient) UnlockWithProof(ctx context.Context, auth *bind.TransactOpts, call UnlockCall) (*coretypes.Transaction, error) {
	err := c.vault.UnlockWithProof(call.AssetID, call.Recipient, call.LockHash, call.BlockNumber, call.Proof)
	if err != nil {
		return nil, err
	}
	return c.mineTx(), nil
}

func (c *SimulatedClient) mineTx() *coretypes.Transaction {
	c.mu.Lock()
	defer c.mu.Unlock()
	tx := coretypes.NewTx(&coretypes.LegacyTx{
		Nonce:    c.nonce,
		To:       &common.Address{},
		Gas:      21000,
		GasPrice: big.NewInt(1),
	})
	c.nonce++
	c.receipts[tx.Hash()] = &coretypes.Receipt{
		Status:      coretypes.ReceiptStatusSuccessful,
		TxHash:      tx.Hash(),
		BlockNumber: new(big.Int).SetUint64(c.vault.Height()),
	}
	return tx
}

// CheckTxWasMined reports whether the simulation accepted the transaction.
func (c *SimulatedClient) CheckTxWasMined(ctx context.Context, txHash common.Hash) (bool, *coretypes.Receipt, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	receipt, exists := c.receipts[txHash]
	if !exists {
		return false, nil, ErrNotFound
	}
	return true, receipt, nil
}

// WaitConfirmations is immediate: every simulated transaction is final.
func (c *SimulatedClient) WaitConfirmations(ctx context.Context, txHash common.Hash, depth uint64, interval, timeout time.Duration) error {
	_, _, err := c.CheckTxWasMined(ctx, txHash)
	return err
}

// BalanceAt reports a fixed funded balance; the simulation never runs dry.
func (c *SimulatedClient) BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error) {
	return new(big.Int).Mul(big.NewInt(1000), big.NewInt(1e18)), nil
}
