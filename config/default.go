package config

// DefaultValues is the default configuration
const DefaultValues = `
[Log]
Level = "debug"
Outputs = ["stdout"]

[SyncDB]
Database = "postgres"
User = "test_user"
Password = "test_password"
Name = "test_db"
Host = "nft-bridge-db"
Port = "5432"
MaxConns = 20

[Etherman]
L1URL = "http://localhost:8545"
L2URL = "http://localhost:8123"

[SynchronizerL1]
SyncInterval = "2s"
SyncChunkSize = 100

[SynchronizerL2]
SyncInterval = "1s"
SyncChunkSize = 100

[BridgeBuilder]
Workers = 4
SweepInterval = "30s"
SweepLimit = 64

[RelayTxManagerL1]
Enabled = true
FrequencyToMonitorTxs = "5s"
RetryInterval = "10s"
RetryNumber = 5
ConfirmationDepth = 2
ConfirmationTimeout = "2m"
BatchSize = 64
LowBalanceThreshold = "100000000000000000"
	[RelayTxManagerL1.PrivateKey]
	Path = "./test/test.keystore"
	Password = "testonly"

[RelayTxManagerL2]
Enabled = true
FrequencyToMonitorTxs = "5s"
RetryInterval = "10s"
RetryNumber = 5
ConfirmationDepth = 2
ConfirmationTimeout = "2m"
BatchSize = 64
LowBalanceThreshold = "100000000000000000"
	[RelayTxManagerL2.PrivateKey]
	Path = "./test/test.keystore"
	Password = "testonly"

[Metrics]
Enabled = false
Port = "9090"
Endpoint = "/metrics"

[Alerting]
Enabled = false
UseFakeProducer = true
Brokers = ["localhost:9092"]
Topic = "nft_bridge_alerts"
DedupWindow = "10m"

[Redis]
Enabled = false
IsClusterMode = false
Addrs = ["localhost:6379"]
DB = 0
`
