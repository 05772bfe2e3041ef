package utils

import (
	"context"
	"errors"
	"math/big"
	"os"
	"path/filepath"
	"time"

	"github.com/badbunnzcorporation-lgtm/nft-bridge/config/types"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
	coretypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
)

// gasMarginFactor is the safety margin applied on top of the gas estimation
const gasMarginFactor = 1.2

// Client is the utility client wrapping the raw rpc client
type Client struct {
	// Client ethclient
	*ethclient.Client
}

// NewClient creates a client.
func NewClient(ctx context.Context, nodeURL string) (*Client, error) {
	client, err := ethclient.Dial(nodeURL)
	if err != nil {
		return nil, err
	}
	return &Client{Client: client}, nil
}

// GetSignerFromKeystore returns a transaction signer from the keystore file.
func (c *Client) GetSignerFromKeystore(ctx context.Context, ks types.KeystoreFileConfig) (*bind.TransactOpts, error) {
	keystoreEncrypted, err := os.ReadFile(filepath.Clean(ks.Path))
	if err != nil {
		return nil, err
	}
	key, err := keystore.DecryptKey(keystoreEncrypted, ks.Password)
	if err != nil {
		return nil, err
	}
	chainID, err := c.NetworkID(ctx)
	if err != nil {
		return nil, err
	}
	return bind.NewKeyedTransactorWithChainID(key.PrivateKey, chainID)
}

// CheckTxWasMined check if a tx was already mined
func (c *Client) CheckTxWasMined(ctx context.Context, txHash common.Hash) (bool, *coretypes.Receipt, error) {
	receipt, err := c.TransactionReceipt(ctx, txHash)
	if errors.Is(err, ethereum.NotFound) {
		return false, nil, nil
	} else if err != nil {
		return false, nil, err
	}
	return true, receipt, nil
}

// GasEstimator is the chain surface needed to estimate a call.
type GasEstimator interface {
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
}

// EstimateGasWithMargin estimates the gas for the call and adds the safety
// margin, so a slightly off estimation does not turn into an out-of-gas
// revert.
func EstimateGasWithMargin(ctx context.Context, estimator GasEstimator, msg ethereum.CallMsg) (uint64, error) {
	gas, err := estimator.EstimateGas(ctx, msg)
	if err != nil {
		return 0, err
	}
	return uint64(float64(gas) * gasMarginFactor), nil
}

// WaitConfirmations blocks until the mined tx sits at least depth blocks below
// the chain head, polling on interval.
func (c *Client) WaitConfirmations(ctx context.Context, txHash common.Hash, depth uint64, interval, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	for {
		mined, receipt, err := c.CheckTxWasMined(ctx, txHash)
		if err != nil {
			return err
		}
		if mined {
			header, err := c.HeaderByNumber(ctx, nil)
			if err != nil {
				return err
			}
			confirmations := new(big.Int).Sub(header.Number, receipt.BlockNumber)
			if confirmations.Cmp(new(big.Int).SetUint64(depth)) >= 0 {
				return nil
			}
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}
	}
}
