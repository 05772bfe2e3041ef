package alerting

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/badbunnzcorporation-lgtm/nft-bridge/log"
	"github.com/badbunnzcorporation-lgtm/nft-bridge/redisstorage"
)

const serviceName = "nft-bridge"

// Alerter publishes operator alerts through kafka, collapsing repeats within
// the dedup window. A nil dedup cache means every alert is sent.
type Alerter struct {
	producer    KafkaProducer
	dedup       redisstorage.RedisStorage
	dedupWindow time.Duration
}

// NewAlerter creates an Alerter.
func NewAlerter(cfg Config, producer KafkaProducer, dedup redisstorage.RedisStorage) *Alerter {
	return &Alerter{
		producer:    producer,
		dedup:       dedup,
		dedupWindow: cfg.DedupWindow.Duration,
	}
}

// SendAlert publishes one alert. Failures are logged, never propagated:
// alerting must not take the pipeline down with it.
func (a *Alerter) SendAlert(ctx context.Context, title, message, severity string) {
	if a == nil || a.producer == nil {
		return
	}
	if a.dedup != nil && a.dedupWindow > 0 {
		fresh, err := a.dedup.MarkAlert(ctx, alertKey(title, message), a.dedupWindow)
		if err != nil {
			log.Warnf("alert dedup check failed, sending anyway: %v", err)
		} else if !fresh {
			log.Debugf("alert suppressed by dedup window: %s", title)
			return
		}
	}
	err := a.producer.Produce(&AlertMessage{
		Service:  serviceName,
		Severity: severity,
		Title:    title,
		Message:  message,
		Time:     time.Now().UnixMilli(),
	})
	if err != nil {
		log.Errorf("error producing alert %q: %v", title, err)
	}
}

func alertKey(title, message string) string {
	sum := sha256.Sum256([]byte(title + "|" + message))
	return hex.EncodeToString(sum[:])
}
