// Package bus is the thin pub/sub layer between producers, detectors and the
// anomaly subscribers. The broker gives at-least-once delivery within a
// process group; each subscriber is expected to be idempotent on redelivery.
package bus

import "context"

// Handler processes one raw message. Within a single subscription messages
// are delivered sequentially; separate subscriptions run concurrently.
type Handler func(ctx context.Context, payload []byte)

// Bus publishes JSON-encoded events to a topic and fans them out to every
// subscriber of that topic.
type Bus interface {
	Publish(ctx context.Context, topic string, v any) error
	Subscribe(ctx context.Context, topic string, h Handler) error
	Close() error
}
