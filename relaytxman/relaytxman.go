package relaytxman

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/badbunnzcorporation-lgtm/nft-bridge/etherman"
	"github.com/badbunnzcorporation-lgtm/nft-bridge/log"
	"github.com/badbunnzcorporation-lgtm/nft-bridge/metrics"
	"github.com/badbunnzcorporation-lgtm/nft-bridge/models"
	rtmtypes "github.com/badbunnzcorporation-lgtm/nft-bridge/relaytxman/types"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v4"
	"github.com/pkg/errors"
)

// RelayTxManager drives one bridge direction: it submits block commitment
// roots from the source network to the destination vault and then consumes
// the proofs with unlock calls. Every call is tracked as a monitored tx, so
// crash recovery re-reads the vault instead of resending blindly.
type RelayTxManager struct {
	ctx    context.Context
	cancel context.CancelFunc

	cfg     Config
	storage storageInterface
	chain   chainInterface
	alert   alerterInterface
	auth    *bind.TransactOpts

	// sourceNetworkID is the network whose locks this relay forwards
	sourceNetworkID uint
	// destNetworkID is the network whose vault receives the calls
	destNetworkID uint

	lowBalance *big.Int
	// balances lists every wallet checked each cycle; the relay's own wallet
	// on the destination chain is always first
	balances []balanceWatch

	chSynced chan uint
	synced   bool
}

type balanceWatch struct {
	chain   BalanceReader
	account common.Address
}

// NewRelayTxManager creates a relay for the source -> dest direction.
func NewRelayTxManager(cfg Config, storage storageInterface, chain chainInterface, alert alerterInterface,
	auth *bind.TransactOpts, sourceNetworkID, destNetworkID uint, chSynced chan uint) (*RelayTxManager, error) {
	if cfg.BatchSize == 0 {
		cfg.BatchSize = 64
	}
	lowBalance := new(big.Int)
	if cfg.LowBalanceThreshold != "" {
		if _, ok := lowBalance.SetString(cfg.LowBalanceThreshold, 10); !ok {
			return nil, fmt.Errorf("invalid LowBalanceThreshold: %q", cfg.LowBalanceThreshold)
		}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &RelayTxManager{
		ctx:             ctx,
		cancel:          cancel,
		cfg:             cfg,
		storage:         storage,
		chain:           chain,
		alert:           alert,
		auth:            auth,
		sourceNetworkID: sourceNetworkID,
		destNetworkID:   destNetworkID,
		lowBalance:      lowBalance,
		balances:        []balanceWatch{{chain: chain, account: auth.From}},
		chSynced:        chSynced,
	}, nil
}

// WatchBalance registers an additional wallet whose balance is checked each
// cycle. The relay only signs on the destination chain, so the caller hands
// it the source-chain wallet to cover both sides of the bridge.
func (tm *RelayTxManager) WatchBalance(chain BalanceReader, account common.Address) {
	tm.balances = append(tm.balances, balanceWatch{chain: chain, account: account})
}

// Start runs the relay cycle until Stop is called. Processing waits for the
// source network to be synced first, so the relay never submits a partial
// view of a block.
func (tm *RelayTxManager) Start() {
	ticker := time.NewTicker(tm.cfg.FrequencyToMonitorTxs.Duration)
	defer ticker.Stop()
	for {
		select {
		case <-tm.ctx.Done():
			return
		case networkID := <-tm.chSynced:
			if networkID == tm.sourceNetworkID && !tm.synced {
				log.Infof("networkID: %d, relay active for destination %d", tm.sourceNetworkID, tm.destNetworkID)
				tm.synced = true
			}
		case <-ticker.C:
			if !tm.synced {
				continue
			}
			if err := tm.enqueueSubmissions(tm.ctx); err != nil {
				log.Errorf("networkID: %d, error enqueueing root submissions: %v", tm.sourceNetworkID, err)
			}
			if err := tm.enqueueUnlocks(tm.ctx); err != nil {
				log.Errorf("networkID: %d, error enqueueing unlocks: %v", tm.sourceNetworkID, err)
			}
			if err := tm.monitorTxs(tm.ctx); err != nil {
				log.Errorf("networkID: %d, error monitoring relay txs: %v", tm.sourceNetworkID, err)
			}
			tm.checkBalance(tm.ctx)
		}
	}
}

// Stop stops the relay.
func (tm *RelayTxManager) Stop() {
	tm.cancel()
}

// enqueueSubmissions creates one monitored tx per commitment not yet
// confirmed on the destination vault. The purpose key dedupes recreation.
func (tm *RelayTxManager) enqueueSubmissions(ctx context.Context) error {
	commitments, err := tm.storage.GetUnsubmittedCommitments(ctx, tm.sourceNetworkID, tm.cfg.BatchSize, nil)
	if err != nil {
		return err
	}
	for _, commitment := range commitments {
		now := time.Now()
		mTx := &rtmtypes.MonitoredTx{
			NetworkID:   tm.destNetworkID,
			Purpose:     rtmtypes.PurposeSubmitRoot,
			BlockNumber: commitment.BlockNumber,
			Status:      rtmtypes.MonitoredTxStatusCreated,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := tm.storage.AddMonitoredTx(ctx, mTx, nil); err != nil {
			return err
		}
	}
	return nil
}

// enqueueUnlocks creates one monitored tx per lock whose root is confirmed on
// the destination vault.
func (tm *RelayTxManager) enqueueUnlocks(ctx context.Context) error {
	locks, err := tm.storage.GetLocksByStatus(ctx, tm.sourceNetworkID, models.StatusRootSubmitted, tm.cfg.BatchSize, nil)
	if err != nil {
		return err
	}
	for _, lock := range locks {
		now := time.Now()
		mTx := &rtmtypes.MonitoredTx{
			NetworkID:   tm.destNetworkID,
			Purpose:     rtmtypes.PurposeUnlock,
			BlockNumber: lock.BlockNumber,
			LockHash:    lock.LockHash,
			Status:      rtmtypes.MonitoredTxStatusCreated,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := tm.storage.AddMonitoredTx(ctx, mTx, nil); err != nil {
			return err
		}
	}
	return nil
}

// monitorTxs processes every created monitored tx once within one db
// transaction.
func (tm *RelayTxManager) monitorTxs(ctx context.Context) error {
	dbTx, err := tm.storage.BeginDBTransaction(ctx)
	if err != nil {
		return err
	}

	statusesFilter := []rtmtypes.MonitoredTxStatus{rtmtypes.MonitoredTxStatusCreated}
	mTxs, err := tm.storage.GetMonitoredTxsByStatus(ctx, tm.destNetworkID, statusesFilter, tm.cfg.BatchSize, dbTx)
	if err != nil {
		log.Errorf("networkID: %d, failed to get created monitored txs: %v", tm.destNetworkID, err)
		rollbackErr := tm.storage.Rollback(ctx, dbTx)
		if rollbackErr != nil {
			log.Errorf("networkID: %d, error rolling back state. RollbackErr: %s, err: %v", tm.destNetworkID, rollbackErr.Error(), err)
			return rollbackErr
		}
		return errors.Wrap(err, "failed to get created monitored txs")
	}

	if len(mTxs) > 0 {
		log.Infof("networkID: %d, found %v monitored txs to process", tm.destNetworkID, len(mTxs))
	}
	for i := range mTxs {
		mTx := mTxs[i]
		mTxLog := log.WithFields("monitoredTx", mTx.ID, "purpose", string(mTx.Purpose))
		if wait := tm.retryBackoff(mTx.NumRetries); wait > 0 && time.Since(mTx.UpdatedAt) < wait {
			mTxLog.Debugf("in retry backoff (%d retries), next attempt after %v", mTx.NumRetries, mTx.UpdatedAt.Add(wait))
			continue
		}
		var processErr error
		switch mTx.Purpose {
		case rtmtypes.PurposeSubmitRoot:
			processErr = tm.processSubmission(ctx, &mTx, mTxLog, dbTx)
		case rtmtypes.PurposeUnlock:
			processErr = tm.processUnlock(ctx, &mTx, mTxLog, dbTx)
		default:
			processErr = tm.markFailed(ctx, &mTx, fmt.Sprintf("unknown purpose %q", mTx.Purpose), dbTx)
		}
		if processErr != nil {
			mTxLog.Errorf("error processing monitored tx: %v", processErr)
			rollbackErr := tm.storage.Rollback(ctx, dbTx)
			if rollbackErr != nil {
				log.Errorf("networkID: %d, error rolling back state. RollbackErr: %s, err: %v", tm.destNetworkID, rollbackErr.Error(), processErr)
				return rollbackErr
			}
			return processErr
		}
	}

	return tm.storage.Commit(ctx, dbTx)
}

// processSubmission drives one submitCommitment call. The vault is read
// first: a root already present means the work is done no matter who did it,
// and it must match the stored commitment.
func (tm *RelayTxManager) processSubmission(ctx context.Context, mTx *rtmtypes.MonitoredTx, mTxLog *log.Logger, dbTx pgx.Tx) error {
	commitment, err := tm.storage.GetBlockCommitment(ctx, tm.sourceNetworkID, mTx.BlockNumber, dbTx)
	if err != nil {
		return err
	}

	onVault, err := tm.chain.GetRoot(ctx, mTx.BlockNumber)
	if err != nil {
		return tm.transientFailure(ctx, mTx, fmt.Sprintf("reading root for block %d: %v", mTx.BlockNumber, err), dbTx)
	}
	if onVault != (common.Hash{}) {
		if onVault != commitment.Root {
			// the vault holds a different root for this block; nothing
			// automated can fix that
			tm.sendAlert(ctx, "commitment root mismatch",
				fmt.Sprintf("block %d: vault root %s disagrees with computed root %s", mTx.BlockNumber, onVault.String(), commitment.Root.String()), "critical")
			return tm.markFailed(ctx, mTx, "vault root disagrees with computed root", dbTx)
		}
		mTxLog.Infof("root for block %d already on the vault", mTx.BlockNumber)
		return tm.confirmSubmission(ctx, mTx, common.Hash{}, dbTx)
	}

	call, err := tm.buildCommitmentCall(ctx, commitment, dbTx)
	if err != nil {
		return err
	}
	tx, err := tm.chain.SubmitCommitment(ctx, tm.auth, *call)
	if err != nil {
		if etherman.IsAlreadySubmittedError(err) {
			mTxLog.Infof("root for block %d submitted by another actor", mTx.BlockNumber)
			return tm.confirmSubmission(ctx, mTx, common.Hash{}, dbTx)
		}
		if etherman.IsRevertError(err) {
			tm.sendAlert(ctx, "root submission reverted",
				fmt.Sprintf("block %d: %v", mTx.BlockNumber, err), "critical")
			return tm.markFailed(ctx, mTx, err.Error(), dbTx)
		}
		return tm.transientFailure(ctx, mTx, err.Error(), dbTx)
	}

	mTx.AddHistory(tx.Hash())
	mTxLog.Infof("submitted root for block %d in tx %s", mTx.BlockNumber, tx.Hash().String())
	err = tm.chain.WaitConfirmations(ctx, tx.Hash(), tm.cfg.ConfirmationDepth, tm.cfg.RetryInterval.Duration, tm.cfg.ConfirmationTimeout.Duration)
	if err != nil {
		// the tx may still confirm later; the next cycle re-reads the vault
		return tm.transientFailure(ctx, mTx, fmt.Sprintf("waiting confirmations for %s: %v", tx.Hash().String(), err), dbTx)
	}
	return tm.confirmSubmission(ctx, mTx, tx.Hash(), dbTx)
}

func (tm *RelayTxManager) buildCommitmentCall(ctx context.Context, commitment *models.BlockCommitment, dbTx pgx.Tx) (*etherman.CommitmentCall, error) {
	locks, err := tm.storage.GetLocksByBlock(ctx, tm.sourceNetworkID, commitment.BlockNumber, dbTx)
	if err != nil {
		return nil, err
	}
	records := make([]etherman.CommitmentRecord, 0, len(locks))
	for _, lock := range locks {
		if lock.Status == models.StatusFailed {
			continue
		}
		records = append(records, etherman.CommitmentRecord{
			AssetID:     lock.AssetID,
			Recipient:   lock.Recipient,
			LockHash:    lock.LockHash,
			BlockNumber: lock.BlockNumber,
		})
	}
	if uint(len(records)) != commitment.LockCount {
		return nil, fmt.Errorf("block %d: %d eligible locks but commitment covers %d", commitment.BlockNumber, len(records), commitment.LockCount)
	}
	return &etherman.CommitmentCall{
		BlockNumber: commitment.BlockNumber,
		Root:        commitment.Root,
		LockCount:   commitment.LockCount,
		Records:     records,
	}, nil
}

// confirmSubmission marks the commitment submitted and moves its locks to
// root_submitted so the unlock driver picks them up.
func (tm *RelayTxManager) confirmSubmission(ctx context.Context, mTx *rtmtypes.MonitoredTx, txHash common.Hash, dbTx pgx.Tx) error {
	err := tm.storage.SetCommitmentSubmitted(ctx, tm.sourceNetworkID, mTx.BlockNumber, txHash, dbTx)
	if err != nil {
		return err
	}
	locks, err := tm.storage.GetLocksByBlock(ctx, tm.sourceNetworkID, mTx.BlockNumber, dbTx)
	if err != nil {
		return err
	}
	for _, lock := range locks {
		if lock.Status != models.StatusProofGenerated {
			continue
		}
		err = tm.storage.UpdateLockStatus(ctx, tm.sourceNetworkID, lock.LockHash, models.StatusRootSubmitted, dbTx)
		if err != nil {
			return err
		}
	}
	return tm.markConfirmed(ctx, mTx, dbTx)
}

// processUnlock drives one unlockWithProof call. The replay guard is read
// first: a processed lock hash is success, not an error.
func (tm *RelayTxManager) processUnlock(ctx context.Context, mTx *rtmtypes.MonitoredTx, mTxLog *log.Logger, dbTx pgx.Tx) error {
	processed, err := tm.chain.IsProcessed(ctx, mTx.LockHash)
	if err != nil {
		return tm.transientFailure(ctx, mTx, fmt.Sprintf("reading replay guard for %s: %v", mTx.LockHash.String(), err), dbTx)
	}
	if processed {
		mTxLog.Infof("lock %s already processed on the vault", mTx.LockHash.String())
		return tm.confirmUnlock(ctx, mTx, dbTx)
	}

	lock, err := tm.storage.GetLock(ctx, tm.sourceNetworkID, mTx.LockHash, dbTx)
	if err != nil {
		return err
	}
	proof, err := tm.storage.GetProof(ctx, mTx.LockHash, dbTx)
	if err != nil {
		return tm.transientFailure(ctx, mTx, fmt.Sprintf("proof not available for %s: %v", mTx.LockHash.String(), err), dbTx)
	}

	tx, err := tm.chain.UnlockWithProof(ctx, tm.auth, etherman.UnlockCall{
		AssetID:     lock.AssetID,
		Recipient:   lock.Recipient,
		LockHash:    lock.LockHash,
		BlockNumber: lock.BlockNumber,
		Proof:       proof.Siblings,
	})
	if err != nil {
		if etherman.IsAlreadyProcessedError(err) {
			mTxLog.Infof("lock %s unlocked by another actor", mTx.LockHash.String())
			return tm.confirmUnlock(ctx, mTx, dbTx)
		}
		if etherman.IsRevertError(err) {
			tm.sendAlert(ctx, "unlock reverted",
				fmt.Sprintf("lock %s: %v", mTx.LockHash.String(), err), "critical")
			return tm.markFailed(ctx, mTx, err.Error(), dbTx)
		}
		return tm.transientFailure(ctx, mTx, err.Error(), dbTx)
	}

	mTx.AddHistory(tx.Hash())
	mTxLog.Infof("unlock for %s sent in tx %s", mTx.LockHash.String(), tx.Hash().String())
	err = tm.chain.WaitConfirmations(ctx, tx.Hash(), tm.cfg.ConfirmationDepth, tm.cfg.RetryInterval.Duration, tm.cfg.ConfirmationTimeout.Duration)
	if err != nil {
		return tm.transientFailure(ctx, mTx, fmt.Sprintf("waiting confirmations for %s: %v", tx.Hash().String(), err), dbTx)
	}
	return tm.confirmUnlock(ctx, mTx, dbTx)
}

func (tm *RelayTxManager) confirmUnlock(ctx context.Context, mTx *rtmtypes.MonitoredTx, dbTx pgx.Tx) error {
	err := tm.storage.UpdateLockStatus(ctx, tm.sourceNetworkID, mTx.LockHash, models.StatusUnlocked, dbTx)
	if err != nil {
		return err
	}
	return tm.markConfirmed(ctx, mTx, dbTx)
}

func (tm *RelayTxManager) markConfirmed(ctx context.Context, mTx *rtmtypes.MonitoredTx, dbTx pgx.Tx) error {
	mTx.Status = rtmtypes.MonitoredTxStatusConfirmed
	mTx.LastError = ""
	mTx.UpdatedAt = time.Now()
	if err := tm.storage.UpdateMonitoredTx(ctx, mTx, dbTx); err != nil {
		return err
	}
	metrics.RecordMonitoredTxResult(tm.destNetworkID, string(mTx.Purpose), mTx.Status.String())
	return nil
}

func (tm *RelayTxManager) markFailed(ctx context.Context, mTx *rtmtypes.MonitoredTx, reason string, dbTx pgx.Tx) error {
	mTx.Status = rtmtypes.MonitoredTxStatusFailed
	mTx.LastError = reason
	mTx.UpdatedAt = time.Now()
	if err := tm.storage.UpdateMonitoredTx(ctx, mTx, dbTx); err != nil {
		return err
	}
	err := tm.storage.AddFailedTx(ctx, &rtmtypes.FailedTx{
		NetworkID:   mTx.NetworkID,
		Purpose:     mTx.Purpose,
		BlockNumber: mTx.BlockNumber,
		LockHash:    mTx.LockHash,
		Reason:      reason,
		CreatedAt:   time.Now(),
	}, dbTx)
	if err != nil {
		return err
	}
	if mTx.Purpose == rtmtypes.PurposeUnlock {
		// the lock leaves the automated pipeline with it
		err = tm.storage.UpdateLockStatus(ctx, tm.sourceNetworkID, mTx.LockHash, models.StatusFailed, dbTx)
		if err != nil {
			return err
		}
	}
	metrics.RecordMonitoredTxResult(tm.destNetworkID, string(mTx.Purpose), mTx.Status.String())
	return nil
}

// retryBackoff returns the wait imposed after numRetries transient failures,
// doubling from RetryInterval on each one. Zero retries means no wait.
func (tm *RelayTxManager) retryBackoff(numRetries uint) time.Duration {
	if numRetries == 0 {
		return 0
	}
	backoff := tm.cfg.RetryInterval.Duration
	for i := uint(1); i < numRetries; i++ {
		backoff *= 2
	}
	return backoff
}

// transientFailure counts one retriable failure; the retry budget turns the
// tx failed once exhausted.
func (tm *RelayTxManager) transientFailure(ctx context.Context, mTx *rtmtypes.MonitoredTx, reason string, dbTx pgx.Tx) error {
	mTx.NumRetries++
	mTx.LastError = reason
	mTx.UpdatedAt = time.Now()
	log.Warnf("networkID: %d, monitored tx %d transient failure (%d/%d): %s",
		tm.destNetworkID, mTx.ID, mTx.NumRetries, tm.cfg.RetryNumber, reason)
	if tm.cfg.RetryNumber > 0 && mTx.NumRetries >= uint(tm.cfg.RetryNumber) {
		tm.sendAlert(ctx, "relay tx retry budget exhausted",
			fmt.Sprintf("monitored tx %d (%s) gave up after %d retries: %s", mTx.ID, mTx.Purpose, mTx.NumRetries, reason), "critical")
		return tm.markFailed(ctx, mTx, fmt.Sprintf("retry budget exhausted: %s", reason), dbTx)
	}
	return tm.storage.UpdateMonitoredTx(ctx, mTx, dbTx)
}

func (tm *RelayTxManager) checkBalance(ctx context.Context) {
	if tm.lowBalance.Sign() == 0 {
		return
	}
	for _, watch := range tm.balances {
		balance, err := watch.chain.BalanceAt(ctx, watch.account, nil)
		if err != nil {
			log.Warnf("networkID: %d, error reading balance of %s: %v", tm.destNetworkID, watch.account.String(), err)
			continue
		}
		if balance.Cmp(tm.lowBalance) < 0 {
			tm.sendAlert(ctx, "submitter balance low",
				fmt.Sprintf("account %s holds %s wei, below threshold %s", watch.account.String(), balance.String(), tm.lowBalance.String()), "warning")
		}
	}
}

func (tm *RelayTxManager) sendAlert(ctx context.Context, title, message, severity string) {
	if tm.alert != nil {
		tm.alert.SendAlert(ctx, title, message, severity)
	}
}
