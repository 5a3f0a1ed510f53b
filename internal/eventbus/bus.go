// Package eventbus implements the Event Bus contract (spec.md §4.6):
// at-least-once publish/subscribe with subject-addressed subscriptions, no
// ordering guarantees across subjects, best-effort ordering within one.
package eventbus

import "context"

// Message is one delivered event: Subject is the address it was published
// under, Payload is the caller-supplied bytes, ID is transport-assigned and
// only meaningful to Ack.
type Message struct {
	ID      string
	Subject string
	Payload []byte
}

// Subscription delivers Messages for one subject until Close is called or
// its context is canceled.
type Subscription interface {
	Messages() <-chan Message
	// Ack confirms delivery of a message previously received from
	// Messages(), so an at-least-once transport does not redeliver it to
	// this consumer group.
	Ack(ctx context.Context, id string) error
	Close() error
}

// Bus is the Event Bus contract.
type Bus interface {
	Publish(ctx context.Context, subject string, payload []byte) error
	Subscribe(ctx context.Context, subject string) (Subscription, error)
}
