package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"notehub/pkg/logger"
)

const redisChannelPrefix = "notehub:"

// envelope wraps every published message with the publishing instance id so
// subscribers can filter their own traffic; Redis pub/sub itself echoes
// messages back to a subscribed publisher.
type envelope struct {
	Sender  string          `json:"sender"`
	Payload json.RawMessage `json:"payload"`
}

// RedisBus carries bus traffic over Redis pub/sub so viewer instances in
// separate processes share one logical session.
type RedisBus struct {
	client     *redis.Client
	id         string
	ownsClient bool

	mu     sync.Mutex
	unsubs []func()
}

var _ Bus = (*RedisBus)(nil)

func NewRedisBus(redisURL string) (*RedisBus, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	b := NewRedisBusWithClient(client)
	b.ownsClient = true
	return b, nil
}

// NewRedisBusWithClient builds a bus over an existing client. The caller keeps
// ownership of the client.
func NewRedisBusWithClient(client *redis.Client) *RedisBus {
	return &RedisBus{client: client, id: uuid.NewString()}
}

func (b *RedisBus) Publish(channel string, msg any) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message for %s: %w", channel, err)
	}
	raw, err := json.Marshal(envelope{Sender: b.id, Payload: payload})
	if err != nil {
		return fmt.Errorf("marshal envelope for %s: %w", channel, err)
	}
	if err := b.client.Publish(context.Background(), redisChannelPrefix+channel, raw).Err(); err != nil {
		return fmt.Errorf("publish to %s: %w", channel, err)
	}
	return nil
}

func (b *RedisBus) Subscribe(channel string, h Handler) (func(), error) {
	ps := b.client.Subscribe(context.Background(), redisChannelPrefix+channel)
	// Force the subscription onto the wire before returning so a publish that
	// follows Subscribe is not missed.
	if _, err := ps.Receive(context.Background()); err != nil {
		ps.Close()
		return nil, fmt.Errorf("subscribe to %s: %w", channel, err)
	}

	go func() {
		for m := range ps.Channel() {
			var env envelope
			if err := json.Unmarshal([]byte(m.Payload), &env); err != nil {
				logger.Sugar.Warnf("Dropping malformed message on %s: %v", channel, err)
				continue
			}
			if env.Sender == b.id {
				continue
			}
			h(env.Payload)
		}
	}()

	var off sync.Once
	unsub := func() {
		off.Do(func() {
			if err := ps.Close(); err != nil {
				logger.Sugar.Warnf("Failed to close subscription on %s: %v", channel, err)
			}
		})
	}

	b.mu.Lock()
	b.unsubs = append(b.unsubs, unsub)
	b.mu.Unlock()

	return unsub, nil
}

func (b *RedisBus) Close() error {
	b.mu.Lock()
	unsubs := b.unsubs
	b.unsubs = nil
	b.mu.Unlock()

	for _, off := range unsubs {
		off()
	}
	if b.ownsClient {
		return b.client.Close()
	}
	return nil
}
