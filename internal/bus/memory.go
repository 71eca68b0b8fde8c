package bus

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"notehub/pkg/logger"
)

const subscriberQueueSize = 64

// Exchange is the process-wide fabric shared by all in-process viewer
// instances. Each instance connects to it and gets its own Bus.
type Exchange struct {
	mu     sync.Mutex
	topics map[string]map[*subscriber]struct{}
}

func NewExchange() *Exchange {
	return &Exchange{topics: make(map[string]map[*subscriber]struct{})}
}

// Connect returns a new Bus attached to the exchange. Each Bus is a distinct
// publisher identity for sender exclusion.
func (x *Exchange) Connect() *MemoryBus {
	return &MemoryBus{exch: x, id: uuid.NewString()}
}

type subscriber struct {
	owner   string
	channel string
	queue   chan []byte
	off     sync.Once
}

// MemoryBus is the in-process Bus implementation. Delivery is asynchronous:
// each subscriber drains its own buffered queue on a dedicated goroutine, so
// Publish returns before any handler runs.
type MemoryBus struct {
	exch *Exchange
	id   string

	mu     sync.Mutex
	unsubs []func()
}

var _ Bus = (*MemoryBus)(nil)

func (b *MemoryBus) Publish(channel string, msg any) error {
	raw, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message for %s: %w", channel, err)
	}

	b.exch.mu.Lock()
	defer b.exch.mu.Unlock()
	for sub := range b.exch.topics[channel] {
		if sub.owner == b.id {
			continue // the publisher never hears its own message
		}
		select {
		case sub.queue <- raw:
		default:
			// A subscriber that stopped draining loses messages rather than
			// blocking every publisher on the channel.
			logger.Sugar.Warnf("Subscriber on %s is lagging, dropping message", channel)
		}
	}
	return nil
}

func (b *MemoryBus) Subscribe(channel string, h Handler) (func(), error) {
	sub := &subscriber{
		owner:   b.id,
		channel: channel,
		queue:   make(chan []byte, subscriberQueueSize),
	}

	b.exch.mu.Lock()
	if b.exch.topics[channel] == nil {
		b.exch.topics[channel] = make(map[*subscriber]struct{})
	}
	b.exch.topics[channel][sub] = struct{}{}
	b.exch.mu.Unlock()

	go func() {
		for raw := range sub.queue {
			h(raw)
		}
	}()

	unsub := func() {
		sub.off.Do(func() {
			b.exch.mu.Lock()
			delete(b.exch.topics[channel], sub)
			if len(b.exch.topics[channel]) == 0 {
				delete(b.exch.topics, channel)
			}
			b.exch.mu.Unlock()
			close(sub.queue)
		})
	}

	b.mu.Lock()
	b.unsubs = append(b.unsubs, unsub)
	b.mu.Unlock()

	return unsub, nil
}

func (b *MemoryBus) Close() error {
	b.mu.Lock()
	unsubs := b.unsubs
	b.unsubs = nil
	b.mu.Unlock()

	for _, off := range unsubs {
		off()
	}
	return nil
}
