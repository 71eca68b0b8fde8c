// Package bus is the change-broadcast transport between viewer instances:
// named channels, fan-out to every subscriber except the publisher itself.
package bus

// Handler receives the raw JSON of one published message.
type Handler func(raw []byte)

// Bus is one viewer instance's connection to the broadcast fabric. Messages
// published through a Bus are delivered to every other instance subscribed to
// the channel, never back to the publisher's own subscribers; the sync layer
// relies on that guarantee.
type Bus interface {
	Publish(channel string, msg any) error
	// Subscribe registers a handler invoked once per published message, in
	// publish order per channel. The returned teardown is safe to call more
	// than once and removes exactly the handler it registered.
	Subscribe(channel string, h Handler) (func(), error)
	// Close tears down every subscription made through this Bus.
	Close() error
}
