// Package bus abstracts the pub/sub transport connecting all server
// processes. The production implementation sits on NATS; an in-process
// implementation serves single-node deployments and tests.
package bus

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrClosed is returned when the bus connection is permanently gone.
	ErrClosed = errors.New("bus: connection closed")

	// ErrNoResponders is returned by Request when nobody answered in time.
	ErrNoResponders = errors.New("bus: no response")
)

// Message is one delivery from a subscription. Reply carries the subject
// a responder should publish its answer to; it is empty for plain
// publishes.
type Message struct {
	Subject string
	Reply   string
	Data    []byte
}

// Subscription is one open subject subscription. Messages delivers in
// arrival order until Unsubscribe closes the channel. Consumers run their
// own goroutine over the channel; the bus never invokes callbacks.
type Subscription interface {
	Messages() <-chan Message
	Unsubscribe() error
}

// Bus is the transport the backplane publishes through. Publish is
// fire-and-forget: success means the local client accepted the message,
// not that any remote process received it.
type Bus interface {
	Publish(subject string, data []byte) error
	Subscribe(subject string) (Subscription, error)

	// Request publishes and waits for the first reply, bounded by
	// timeout and ctx.
	Request(ctx context.Context, subject string, data []byte, timeout time.Duration) ([]byte, error)

	// IsClosed reports the connection permanently gone; IsReconnecting
	// reports a temporary outage the client is still recovering from.
	IsClosed() bool
	IsReconnecting() bool

	Flush() error
}
