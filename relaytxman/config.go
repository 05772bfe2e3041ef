package relaytxman

import (
	"github.com/badbunnzcorporation-lgtm/nft-bridge/config/types"
)

// Config is configuration for the root submission and unlock tx manager
type Config struct {
	// Enabled whether to enable this module
	Enabled bool `mapstructure:"Enabled"`
	// FrequencyToMonitorTxs frequency of processing and resending pending txs
	FrequencyToMonitorTxs types.Duration `mapstructure:"FrequencyToMonitorTxs"`
	// PrivateKey defines the key store file that is going
	// to be read in order to provide the private key to sign the relay txs
	PrivateKey types.KeystoreFileConfig `mapstructure:"PrivateKey"`
	// RetryInterval is time between each retry
	RetryInterval types.Duration `mapstructure:"RetryInterval"`
	// RetryNumber is the number of retries before giving up
	RetryNumber int `mapstructure:"RetryNumber"`
	// ConfirmationDepth is how many blocks below the head a tx must sit
	// before the relay treats it as final
	ConfirmationDepth uint64 `mapstructure:"ConfirmationDepth"`
	// ConfirmationTimeout bounds the wait for confirmations of one tx
	ConfirmationTimeout types.Duration `mapstructure:"ConfirmationTimeout"`
	// BatchSize is the maximum number of items handled per cycle
	BatchSize uint `mapstructure:"BatchSize"`
	// LowBalanceThreshold alerts when the submitter account drops below this
	// amount of wei; empty or "0" disables the check
	LowBalanceThreshold string `mapstructure:"LowBalanceThreshold"`
}
