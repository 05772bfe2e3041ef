package main

import (
	"context"
	"math/big"
	"os"
	"os/signal"
	"time"

	"github.com/badbunnzcorporation-lgtm/nft-bridge/alerting"
	"github.com/badbunnzcorporation-lgtm/nft-bridge/bridgetree"
	"github.com/badbunnzcorporation-lgtm/nft-bridge/config"
	"github.com/badbunnzcorporation-lgtm/nft-bridge/db"
	"github.com/badbunnzcorporation-lgtm/nft-bridge/etherman"
	"github.com/badbunnzcorporation-lgtm/nft-bridge/log"
	"github.com/badbunnzcorporation-lgtm/nft-bridge/metrics"
	"github.com/badbunnzcorporation-lgtm/nft-bridge/redisstorage"
	"github.com/badbunnzcorporation-lgtm/nft-bridge/relaytxman"
	"github.com/badbunnzcorporation-lgtm/nft-bridge/synchronizer"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	coretypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/urfave/cli/v2"
)

// bridgeClient is the surface shared by the rpc client and the in-process
// simulated client.
type bridgeClient interface {
	GetNetworkID(ctx context.Context) (uint, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*coretypes.Header, error)
	BlockHashByNumber(ctx context.Context, blockNumber uint64) (common.Hash, error)
	GetBridgeEventsByBlockRange(ctx context.Context, networkID uint, fromBlock uint64, toBlock *uint64) ([]etherman.Block, map[common.Hash][]etherman.Order, error)
	GetRoot(ctx context.Context, blockNumber uint64) (common.Hash, error)
	IsProcessed(ctx context.Context, lockHash common.Hash) (bool, error)
	SubmitCommitment(ctx context.Context, auth *bind.TransactOpts, call etherman.CommitmentCall) (*coretypes.Transaction, error)
	UnlockWithProof(ctx context.Context, auth *bind.TransactOpts, call etherman.UnlockCall) (*coretypes.Transaction, error)
	WaitConfirmations(ctx context.Context, txHash common.Hash, depth uint64, interval, timeout time.Duration) error
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
}

func start(ctx *cli.Context) error {
	configFilePath := ctx.String(flagCfg)
	network := ctx.String(flagNetwork)
	c, err := config.Load(configFilePath, network)
	if err != nil {
		return err
	}
	setupLog(c.Log)
	err = db.RunMigrations(c.SyncDB)
	if err != nil {
		log.Error(err)
		return err
	}
	storage, err := db.NewStorage(c.SyncDB)
	if err != nil {
		log.Error(err)
		return err
	}

	alerter, err := newAlerter(*c)
	if err != nil {
		log.Error(err)
		return err
	}

	bgCtx := context.Background()
	peers := map[uint]uint{
		c.L1NetworkID: c.L2NetworkID,
		c.L2NetworkID: c.L1NetworkID,
	}
	builder := bridgetree.NewBuilder(c.BridgeBuilder, storage, alerter, peers)
	go builder.Start(bgCtx)

	chSyncedL1 := make(chan uint, 1)
	chSyncedL2 := make(chan uint, 1)

	if c.NetworkConfig.Simulated {
		admin := common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")
		auth := &bind.TransactOpts{From: admin}
		l1Client, l2Client, err := etherman.NewSimulatedPair(c.L1VaultAddr, c.L2VaultAddr, admin, auth.From, c.L1NetworkID, c.L2NetworkID)
		if err != nil {
			log.Error(err)
			return err
		}

		go runSynchronizer(storage, builder, l1Client, c.GenBlockNumberL1, c.L2NetworkID, chSyncedL1, c.SynchronizerL1)
		go runSynchronizer(storage, builder, l2Client, c.GenBlockNumberL2, c.L1NetworkID, chSyncedL2, c.SynchronizerL2)
		runRelay(c.RelayTxManagerL1, storage, l2Client, alerter, auth, c.L1NetworkID, c.L2NetworkID, l1Client, auth.From, chSyncedL1)
		runRelay(c.RelayTxManagerL2, storage, l1Client, alerter, auth, c.L2NetworkID, c.L1NetworkID, l2Client, auth.From, chSyncedL2)
	} else {
		l1Client, err := etherman.NewClient(bgCtx, c.Etherman.L1URL, c.L1VaultAddr)
		if err != nil {
			log.Error(err)
			return err
		}
		l2Client, err := etherman.NewClient(bgCtx, c.Etherman.L2URL, c.L2VaultAddr)
		if err != nil {
			log.Error(err)
			return err
		}
		authL1, err := l1Client.GetSignerFromKeystore(bgCtx, c.RelayTxManagerL2.PrivateKey)
		if err != nil {
			log.Error(err)
			return err
		}
		authL2, err := l2Client.GetSignerFromKeystore(bgCtx, c.RelayTxManagerL1.PrivateKey)
		if err != nil {
			log.Error(err)
			return err
		}

		go runSynchronizer(storage, builder, l1Client, c.GenBlockNumberL1, c.L2NetworkID, chSyncedL1, c.SynchronizerL1)
		go runSynchronizer(storage, builder, l2Client, c.GenBlockNumberL2, c.L1NetworkID, chSyncedL2, c.SynchronizerL2)
		runRelay(c.RelayTxManagerL1, storage, l2Client, alerter, authL2, c.L1NetworkID, c.L2NetworkID, l1Client, authL1.From, chSyncedL1)
		runRelay(c.RelayTxManagerL2, storage, l1Client, alerter, authL1, c.L2NetworkID, c.L1NetworkID, l2Client, authL2.From, chSyncedL2)
	}

	if c.Metrics.Enabled {
		go metrics.StartMetricsHTTPServer(c.Metrics)
	}

	// Wait for an in interrupt.
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, os.Interrupt)
	<-ch

	return nil
}

func setupLog(c log.Config) {
	log.Init(c)
}

func newAlerter(c config.Config) (*alerting.Alerter, error) {
	alertCfg := c.Alerting
	if !alertCfg.Enabled {
		alertCfg.UseFakeProducer = true
	}
	producer, err := alerting.NewKafkaProducer(alertCfg)
	if err != nil {
		return nil, err
	}
	var dedup redisstorage.RedisStorage
	if c.Redis.Enabled {
		dedup, err = redisstorage.NewRedisStorage(c.Redis)
		if err != nil {
			return nil, err
		}
	}
	return alerting.NewAlerter(alertCfg, producer, dedup), nil
}

func runSynchronizer(storage db.Storage, builder *bridgetree.Builder, client bridgeClient,
	genBlockNumber uint64, peerNetworkID uint, chSynced chan uint, cfg synchronizer.Config) {
	sy, err := synchronizer.NewSynchronizer(storage, builder, client, genBlockNumber, peerNetworkID, chSynced, cfg)
	if err != nil {
		log.Fatal(err)
	}
	if err := sy.Sync(); err != nil {
		log.Fatal(err)
	}
}

func runRelay(cfg relaytxman.Config, storage db.Storage, chain bridgeClient, alerter *alerting.Alerter,
	auth *bind.TransactOpts, sourceNetworkID, destNetworkID uint,
	sourceChain relaytxman.BalanceReader, sourceAccount common.Address, chSynced chan uint) {
	if !cfg.Enabled {
		log.Infof("relay for networkID %d disabled", sourceNetworkID)
		return
	}
	tm, err := relaytxman.NewRelayTxManager(cfg, storage, chain, alerter, auth, sourceNetworkID, destNetworkID, chSynced)
	if err != nil {
		log.Fatal(err)
	}
	tm.WatchBalance(sourceChain, sourceAccount)
	go tm.Start()
}
