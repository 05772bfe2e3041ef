package config

import (
	"github.com/badbunnzcorporation-lgtm/nft-bridge/log"
	"github.com/ethereum/go-ethereum/common"
)

// NetworkConfig is the configuration struct for the different environments
type NetworkConfig struct {
	// Simulated runs both ledgers in-process instead of dialing rpc nodes
	Simulated bool

	// L1NetworkID and L2NetworkID identify the two ledgers
	L1NetworkID uint
	L2NetworkID uint

	// GenBlockNumberL1/L2 are the blocks the vault contracts were deployed
	// at; sync never goes below them
	GenBlockNumberL1 uint64
	GenBlockNumberL2 uint64

	// L1VaultAddr and L2VaultAddr are the vault contract addresses
	L1VaultAddr common.Address
	L2VaultAddr common.Address

	// L1ChainID of the origin chain
	L1ChainID uint64
	// L2ChainID of the destination chain
	L2ChainID uint64
}

const (
	testnet = "testnet"
	local   = "local"
)

//nolint:gomnd
var (
	mainnetConfig = NetworkConfig{
		L1NetworkID:      0,
		L2NetworkID:      1,
		GenBlockNumberL1: 19041226,
		GenBlockNumberL2: 1,
		L1VaultAddr:      common.HexToAddress("0x1b3F46a79b6a2a99Bb95c2De7fF9A37233cF655D"),
		L2VaultAddr:      common.HexToAddress("0x9D5b180b17dBa8e23A2E91a7A1Be26c2F42194e1"),
		L1ChainID:        1,
		L2ChainID:        1101,
	}
	testnetConfig = NetworkConfig{
		L1NetworkID:      0,
		L2NetworkID:      1,
		GenBlockNumberL1: 4789186,
		GenBlockNumberL2: 1,
		L1VaultAddr:      common.HexToAddress("0x528e26b25a34a4A5d0dbDa1d57D318153d2ED582"),
		L2VaultAddr:      common.HexToAddress("0xF6BEEeBB578e214CA9E23B0e9683454Ff88Ed2A7"),
		L1ChainID:        11155111,
		L2ChainID:        2442,
	}
	localConfig = NetworkConfig{
		Simulated:        true,
		L1NetworkID:      0,
		L2NetworkID:      1,
		GenBlockNumberL1: 1,
		GenBlockNumberL2: 1,
		L1VaultAddr:      common.HexToAddress("0x0165878A594ca255338adfa4d48449f69242Eb8F"),
		L2VaultAddr:      common.HexToAddress("0x9d98deabc42dd696deb9e40b4f1cab7ddbf55988"),
		L1ChainID:        1337,
		L2ChainID:        1338,
	}
)

func (cfg *Config) loadNetworkConfig(network string) {
	switch network {
	case testnet:
		log.Debug("Testnet network selected")
		cfg.NetworkConfig = testnetConfig
	case local:
		log.Debug("Local network selected")
		cfg.NetworkConfig = localConfig
	default:
		log.Debug("Mainnet network selected")
		cfg.NetworkConfig = mainnetConfig
	}
}
