package etherman

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"time"

	"github.com/badbunnzcorporation-lgtm/nft-bridge/log"
	"github.com/badbunnzcorporation-lgtm/nft-bridge/utils"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	coretypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

var (
	lockEventSignatureHash   = crypto.Keccak256Hash([]byte("AssetLocked(uint256,address,address,bytes32,uint64)"))
	unlockEventSignatureHash = crypto.Keccak256Hash([]byte("AssetUnlocked(uint256,address,bytes32,uint64,bool)"))

	// ErrNotFound is used when the object is not found
	ErrNotFound = errors.New("not found")
	// ErrExecutionReverted is the deterministic on-ledger rejection; never retried
	ErrExecutionReverted = errors.New("execution reverted")
)

const vaultABIJSON = `[
	{"type":"event","name":"AssetLocked","inputs":[
		{"name":"assetId","type":"uint256","indexed":true},
		{"name":"sourceOwner","type":"address","indexed":false},
		{"name":"recipient","type":"address","indexed":false},
		{"name":"lockHash","type":"bytes32","indexed":true},
		{"name":"blockNumber","type":"uint64","indexed":false}]},
	{"type":"event","name":"AssetUnlocked","inputs":[
		{"name":"assetId","type":"uint256","indexed":true},
		{"name":"recipient","type":"address","indexed":false},
		{"name":"lockHash","type":"bytes32","indexed":true},
		{"name":"blockNumber","type":"uint64","indexed":false},
		{"name":"minted","type":"bool","indexed":false}]},
	{"type":"function","name":"submitCommitment","stateMutability":"nonpayable","inputs":[
		{"name":"blockNumber","type":"uint64"},
		{"name":"root","type":"bytes32"},
		{"name":"lockCount","type":"uint32"},
		{"name":"records","type":"tuple[]","components":[
			{"name":"assetId","type":"uint256"},
			{"name":"recipient","type":"address"},
			{"name":"lockHash","type":"bytes32"},
			{"name":"blockNumber","type":"uint64"}]}],"outputs":[]},
	{"type":"function","name":"unlockWithProof","stateMutability":"nonpayable","inputs":[
		{"name":"assetId","type":"uint256"},
		{"name":"recipient","type":"address"},
		{"name":"lockHash","type":"bytes32"},
		{"name":"blockNumber","type":"uint64"},
		{"name":"proof","type":"bytes32[]"}],"outputs":[]},
	{"type":"function","name":"getRoot","stateMutability":"view","inputs":[
		{"name":"blockNumber","type":"uint64"}],"outputs":[{"name":"","type":"bytes32"}]},
	{"type":"function","name":"isProcessed","stateMutability":"view","inputs":[
		{"name":"lockHash","type":"bytes32"}],"outputs":[{"name":"","type":"bool"}]},
	{"type":"function","name":"networkID","stateMutability":"view","inputs":[],
		"outputs":[{"name":"","type":"uint32"}]}
]`

// abiCommitmentRecord mirrors the records tuple of submitCommitment
type abiCommitmentRecord struct {
	AssetId     *big.Int //nolint:revive,stylecheck
	Recipient   common.Address
	LockHash    [32]byte
	BlockNumber uint64
}

// Client is the rpc-facing access to one chain's deployed vault.
type Client struct {
	*utils.Client
	VaultAddr common.Address
	vaultABI  abi.ABI
	contract  *bind.BoundContract
}

// NewClient creates a chain client bound to the vault at vaultAddr.
func NewClient(ctx context.Context, nodeURL string, vaultAddr common.Address) (*Client, error) {
	client, err := utils.NewClient(ctx, nodeURL)
	if err != nil {
		log.Errorf("error connecting to %s: %+v", nodeURL, err)
		return nil, err
	}
	parsed, err := abi.JSON(strings.NewReader(vaultABIJSON))
	if err != nil {
		return nil, err
	}
	contract := bind.NewBoundContract(vaultAddr, parsed, client, client, client)
	return &Client{
		Client:    client,
		VaultAddr: vaultAddr,
		vaultABI:  parsed,
		contract:  contract,
	}, nil
}

// GetNetworkID returns the vault's configured network identifier.
func (c *Client) GetNetworkID(ctx context.Context) (uint, error) {
	var out []interface{}
	err := c.contract.Call(&bind.CallOpts{Context: ctx}, &out, "networkID")
	if err != nil {
		return 0, err
	}
	return uint(out[0].(uint32)), nil
}

// BlockHashByNumber returns the canonical hash at blockNumber.
func (c *Client) BlockHashByNumber(ctx context.Context, blockNumber uint64) (common.Hash, error) {
	header, err := c.HeaderByNumber(ctx, new(big.Int).SetUint64(blockNumber))
	if err != nil {
		return common.Hash{}, err
	}
	return header.Hash(), nil
}

// GetBridgeEventsByBlockRange reads every lock/unlock event the vault emitted
// between fromBlock and toBlock, grouped per block and ordered as read.
func (c *Client) GetBridgeEventsByBlockRange(ctx context.Context, networkID uint, fromBlock uint64, toBlock *uint64) ([]Block, map[common.Hash][]Order, error) {
	query := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(fromBlock),
		Addresses: []common.Address{c.VaultAddr},
	}
	if toBlock != nil {
		query.ToBlock = new(big.Int).SetUint64(*toBlock)
	}
	logs, err := c.FilterLogs(ctx, query)
	if err != nil {
		return nil, nil, err
	}

	blocks := make(map[common.Hash]*Block)
	order := make(map[common.Hash][]Order)
	var blockKeys []common.Hash

	for _, vLog := range logs {
		block, exists := blocks[vLog.BlockHash]
		if !exists {
			header, err := c.HeaderByHash(ctx, vLog.BlockHash)
			if err != nil {
				return nil, nil, err
			}
			block = &Block{
				BlockNumber: vLog.BlockNumber,
				BlockHash:   vLog.BlockHash,
				ParentHash:  header.ParentHash,
				NetworkID:   networkID,
				ReceivedAt:  time.Unix(int64(header.Time), 0),
			}
			blocks[vLog.BlockHash] = block
			blockKeys = append(blockKeys, vLog.BlockHash)
		}
		switch vLog.Topics[0] {
		case lockEventSignatureHash:
			event, err := c.decodeLockEvent(vLog)
			if err != nil {
				return nil, nil, err
			}
			block.Locks = append(block.Locks, *event)
			order[vLog.BlockHash] = append(order[vLog.BlockHash], Order{Name: LocksOrder, Pos: len(block.Locks) - 1})
		case unlockEventSignatureHash:
			event, err := c.decodeUnlockEvent(vLog)
			if err != nil {
				return nil, nil, err
			}
			block.Unlocks = append(block.Unlocks, *event)
			order[vLog.BlockHash] = append(order[vLog.BlockHash], Order{Name: UnlocksOrder, Pos: len(block.Unlocks) - 1})
		default:
			log.Debugf("unhandled vault event %s in tx %s", vLog.Topics[0].String(), vLog.TxHash.String())
		}
	}

	result := make([]Block, 0, len(blockKeys))
	for _, key := range blockKeys {
		result = append(result, *blocks[key])
	}
	return result, order, nil
}

func (c *Client) decodeLockEvent(vLog coretypes.Log) (*LockEvent, error) {
	data, err := c.vaultABI.Unpack("AssetLocked", vLog.Data)
	if err != nil {
		return nil, err
	}
	return &LockEvent{
		AssetID:     new(big.Int).SetBytes(vLog.Topics[1][:]),
		SourceOwner: data[0].(common.Address),
		Recipient:   data[1].(common.Address),
		LockHash:    vLog.Topics[2],
		BlockNumber: data[2].(uint64),
		TxHash:      vLog.TxHash,
	}, nil
}

func (c *Client) decodeUnlockEvent(vLog coretypes.Log) (*UnlockEvent, error) {
	data, err := c.vaultABI.Unpack("AssetUnlocked", vLog.Data)
	if err != nil {
		return nil, err
	}
	return &UnlockEvent{
		AssetID:     new(big.Int).SetBytes(vLog.Topics[1][:]),
		Recipient:   data[0].(common.Address),
		LockHash:    vLog.Topics[2],
		BlockNumber: data[1].(uint64),
		Minted:      data[2].(bool),
		TxHash:      vLog.TxHash,
	}, nil
}

// GetRoot reads the stored root for a block; the zero hash means unset.
func (c *Client) GetRoot(ctx context.Context, blockNumber uint64) (common.Hash, error) {
	var out []interface{}
	err := c.contract.Call(&bind.CallOpts{Context: ctx}, &out, "getRoot", blockNumber)
	if err != nil {
		return common.Hash{}, err
	}
	return common.Hash(out[0].([32]byte)), nil
}

// IsProcessed reads the replay guard for a lock hash.
func (c *Client) IsProcessed(ctx context.Context, lockHash common.Hash) (bool, error) {
	var out []interface{}
	err := c.contract.Call(&bind.CallOpts{Context: ctx}, &out, "isProcessed", lockHash)
	if err != nil {
		return false, err
	}
	return out[0].(bool), nil
}

// SubmitCommitment sends the submitCommitment transaction.
func (c *Client) SubmitCommitment(ctx context.Context, auth *bind.TransactOpts, call CommitmentCall) (*coretypes.Transaction, error) {
	records := make([]abiCommitmentRecord, 0, len(call.Records))
	for _, record := range call.Records {
		records = append(records, abiCommitmentRecord{
			AssetId:     record.AssetID,
			Recipient:   record.Recipient,
			LockHash:    [32]byte(record.LockHash),
			BlockNumber: record.BlockNumber,
		})
	}
	return c.transactWithMargin(ctx, auth, "submitCommitment", call.BlockNumber, call.Root, uint32(call.LockCount), records)
}

// UnlockWithProof sends the unlockWithProof transaction.
func (c *Client) UnlockWithProof(ctx context.Context, auth *bind.TransactOpts, call UnlockCall) (*coretypes.Transaction, error) {
	proof := make([][32]byte, 0, len(call.Proof))
	for _, sibling := range call.Proof {
		proof = append(proof, [32]byte(sibling))
	}
	return c.transactWithMargin(ctx, auth, "unlockWithProof", call.AssetID, call.Recipient, call.LockHash, call.BlockNumber, proof)
}

// transactWithMargin packs the call, estimates its gas with the safety margin
// applied and sends it with that explicit gas limit.
func (c *Client) transactWithMargin(ctx context.Context, auth *bind.TransactOpts, method string, args ...interface{}) (*coretypes.Transaction, error) {
	input, err := c.vaultABI.Pack(method, args...)
	if err != nil {
		return nil, err
	}
	gas, err := utils.EstimateGasWithMargin(ctx, c.Client, ethereum.CallMsg{
		From: auth.From,
		To:   &c.VaultAddr,
		Data: input,
	})
	if err != nil {
		return nil, err
	}
	opts := *auth
	opts.Context = ctx
	opts.GasLimit = gas
	return c.contract.RawTransact(&opts, input)
}

// IsAlreadySubmittedError reports whether err is the expected race where the
// root is already on the vault; callers reconcile instead of failing.
func IsAlreadySubmittedError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "already submitted")
}

// IsAlreadyProcessedError reports whether err is the replay rejection; the
// unlock driver treats it as success.
func IsAlreadyProcessedError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "already processed")
}

// IsRevertError reports whether err is a deterministic on-ledger rejection.
func IsRevertError(err error) bool {
	return err != nil && strings.Contains(err.Error(), ErrExecutionReverted.Error())
}
