// Package publisher defines the topic publisher abstraction used to fan
// notification events out to message brokers.
package publisher

import "context"

// Publisher sends payload to topic and returns a broker-assigned message ID when
// the broker provides one.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Attributer is implemented by payloads that carry broker message attributes.
type Attributer interface {
	Attributes() map[string]string
}
