package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/badbunnzcorporation-lgtm/nft-bridge/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	prefix                 = "nft_bridge_"
	defaultMetricsEndpoint = "/metrics"

	labelNetworkID = "network_id"
	labelPurpose   = "purpose"
	labelStatus    = "status"
)

var (
	lockCount = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: prefix + "lock_count",
		Help: "Number of lock events indexed per network",
	}, []string{labelNetworkID})

	unlockCount = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: prefix + "unlock_count",
		Help: "Number of unlock events indexed per network",
	}, []string{labelNetworkID})

	commitmentCount = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: prefix + "commitment_count",
		Help: "Number of block commitments built per source network",
	}, []string{labelNetworkID})

	monitoredTxResultCount = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: prefix + "monitored_txs_result_count",
		Help: "Terminal results of monitored relay txs",
	}, []string{labelNetworkID, labelPurpose, labelStatus})

	lastSyncedBlock = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: prefix + "last_synced_block_num",
		Help: "Last ledger block committed by the synchronizer",
	}, []string{labelNetworkID})
)

func networkLabel(networkID uint) prometheus.Labels {
	return prometheus.Labels{labelNetworkID: strconv.FormatUint(uint64(networkID), 10)}
}

// RecordLock counts one indexed lock event.
func RecordLock(networkID uint) {
	lockCount.With(networkLabel(networkID)).Inc()
}

// RecordUnlock counts one indexed unlock event.
func RecordUnlock(networkID uint) {
	unlockCount.With(networkLabel(networkID)).Inc()
}

// RecordCommitmentBuilt counts one built block commitment.
func RecordCommitmentBuilt(networkID uint) {
	commitmentCount.With(networkLabel(networkID)).Inc()
}

// RecordMonitoredTxResult counts one terminal monitored tx result.
func RecordMonitoredTxResult(networkID uint, purpose, status string) {
	monitoredTxResultCount.With(prometheus.Labels{
		labelNetworkID: strconv.FormatUint(uint64(networkID), 10),
		labelPurpose:   purpose,
		labelStatus:    status,
	}).Inc()
}

// SetLastSyncedBlock publishes the sync checkpoint.
func SetLastSyncedBlock(networkID uint, blockNumber uint64) {
	lastSyncedBlock.With(networkLabel(networkID)).Set(float64(blockNumber))
}

// StartMetricsHTTPServer starts the prometheus metrics HTTP server. It blocks
// until the server stops.
func StartMetricsHTTPServer(c Config) {
	if !c.Enabled {
		return
	}
	endpoint := c.Endpoint
	if endpoint == "" {
		endpoint = defaultMetricsEndpoint
	}

	mux := http.NewServeMux()
	mux.Handle(endpoint, promhttp.Handler())
	srv := &http.Server{
		Addr:        ":" + c.Port,
		Handler:     mux,
		ReadTimeout: 5 * time.Second, //nolint:gomnd
	}
	log.Infof("metrics server listening on port %s", c.Port)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Errorf("serve metrics http server error: %v", err)
	}
}
