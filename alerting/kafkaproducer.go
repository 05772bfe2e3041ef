package alerting

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"os"

	"github.com/IBM/sarama"
	"github.com/badbunnzcorporation-lgtm/nft-bridge/log"
	"github.com/pkg/errors"
)

// KafkaProducer publishes alert messages to the alert topic
type KafkaProducer interface {
	Produce(msg *AlertMessage) error
	Close() error

	// GetFakeMessages returns the messages from the fake producer
	// Not available for real kafka producer
	GetFakeMessages() []*AlertMessage
}

type kafkaProducerImpl struct {
	producer sarama.SyncProducer
	topic    string
}

// NewKafkaProducer creates the alert producer from the config.
func NewKafkaProducer(cfg Config) (KafkaProducer, error) {
	if cfg.UseFakeProducer {
		log.Infof("start to init fake kafka alert producer")
		return newFakeProducer(), nil
	}
	log.Infof("start to init kafka alert producer")
	config := sarama.NewConfig()
	config.Producer.Return.Successes = true

	// Enable SASL authentication
	if cfg.Username != "" && cfg.Password != "" && cfg.RootCAPath != "" {
		config.Net.SASL.Enable = true
		config.Net.SASL.User = cfg.Username
		config.Net.SASL.Password = cfg.Password

		rootCA, err := os.ReadFile(cfg.RootCAPath)
		if err != nil {
			return nil, errors.Wrap(err, "NewKafkaProducer read root CA cert fail")
		}
		caCertPool := x509.NewCertPool()
		if ok := caCertPool.AppendCertsFromPEM(rootCA); !ok {
			return nil, errors.New("NewKafkaProducer caCertPool.AppendCertsFromPEM")
		}
		config.Net.TLS.Enable = true
		config.Net.TLS.Config = &tls.Config{RootCAs: caCertPool, InsecureSkipVerify: true} // #nosec
	}

	producer, err := sarama.NewSyncProducer(cfg.Brokers, config)
	if err != nil {
		return nil, errors.Wrap(err, "NewKafkaProducer: NewSyncProducer error")
	}
	return &kafkaProducerImpl{
		producer: producer,
		topic:    cfg.Topic,
	}, nil
}

func (p *kafkaProducerImpl) Produce(msg *AlertMessage) error {
	b, err := json.Marshal(msg)
	if err != nil {
		return errors.Wrap(err, "alert produce: JSON marshal error")
	}
	partition, offset, err := p.producer.SendMessage(&sarama.ProducerMessage{
		Topic: p.topic,
		Value: sarama.ByteEncoder(b),
	})
	if err != nil {
		return errors.Wrap(err, "alert produce: SendMessage error")
	}
	log.Debugf("alert produced to topic[%v] partition[%v] offset[%v]", p.topic, partition, offset)
	return nil
}

func (p *kafkaProducerImpl) Close() error {
	return p.producer.Close()
}

func (p *kafkaProducerImpl) GetFakeMessages() []*AlertMessage {
	log.Errorf("GetFakeMessages is not supported by the real kafka producer")
	return nil
}
