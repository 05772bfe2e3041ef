package alerting

import (
	"sync"

	"github.com/badbunnzcorporation-lgtm/nft-bridge/log"
)

const fakeMessageLimit = 100

type fakeProducer struct {
	mu       sync.Mutex
	messages []*AlertMessage
}

func newFakeProducer() KafkaProducer {
	return &fakeProducer{}
}

func (p *fakeProducer) Produce(msg *AlertMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = append(p.messages, msg)
	// Keep the latest messages only
	if len(p.messages) > fakeMessageLimit {
		p.messages = p.messages[1:]
	}
	log.Debugf("produced to fake alert producer: title[%v] severity[%v]", msg.Title, msg.Severity)
	return nil
}

func (p *fakeProducer) Close() error {
	return nil
}

// GetFakeMessages returns and clears the collected messages
func (p *fakeProducer) GetFakeMessages() []*AlertMessage {
	p.mu.Lock()
	defer p.mu.Unlock()
	allMsg := p.messages
	p.messages = nil
	return allMsg
}
