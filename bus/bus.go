// Package bus carries fleet monitoring events to downstream consumers.
//
// The engine publishes connection transitions, decisions, and incidents
// as discrete subjects. The MessageBus interface has an in-memory
// implementation for tests and single-process use, and a NATS one for
// distributed deployments.
package bus

import "errors"

// Common errors.
var (
	ErrClosed         = errors.New("bus closed")
	ErrInvalidSubject = errors.New("invalid subject")
)

// Message is one event received from the bus.
type Message struct {
	// Subject the message was published to.
	Subject string

	// Data is the JSON-encoded event payload.
	Data []byte
}

// MessageBus provides publish/subscribe messaging.
type MessageBus interface {
	// Publish sends a message to all subscribers of a subject.
	Publish(subject string, data []byte) error

	// Subscribe creates a subscription to a subject.
	Subscribe(subject string) (Subscription, error)

	// Close shuts down the bus connection.
	Close() error
}

// Subscription is an active subscription.
type Subscription interface {
	// Messages returns the channel for incoming messages.
	// The channel is closed when the subscription ends.
	Messages() <-chan *Message

	// Unsubscribe cancels the subscription.
	Unsubscribe() error
}

// Config holds common bus configuration.
type Config struct {
	// BufferSize for subscription channels. Default: 256.
	BufferSize int
}

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig() Config {
	return Config{BufferSize: 256}
}

// ValidateSubject checks if a subject is valid.
func ValidateSubject(subject string) error {
	if subject == "" {
		return ErrInvalidSubject
	}
	return nil
}
