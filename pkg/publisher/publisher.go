// Package publisher is the broker-agnostic event publish contract the
// sender and the transaction runners depend on. Concrete brokers (RabbitMQ,
// or any other) live in subpackages implementing Publisher.
package publisher

import "context"

// Message is one staged event ready to leave the process.
type Message struct {
	Topic string
	// Key is an optional ordering/partition key; brokers without a notion
	// of partitioning may ignore it.
	Key        string
	Data       []byte
	Attributes map[string]string
}

// Publisher sends a Message to the broker. Publish returning nil means the
// broker has durably accepted the message (for brokers with publisher
// confirms, Publish blocks until the confirm arrives); callers never delete
// an outbox row before Publish returns successfully.
type Publisher interface {
	Publish(ctx context.Context, msg Message) error
	// Flush blocks until any buffered/in-flight publishes are confirmed.
	// Implementations without internal buffering may make this a no-op.
	Flush(ctx context.Context) error
}
