package bus

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
)

// natsBus adapts a *nats.Conn to the Bus interface.
type natsBus struct {
	nc *nats.Conn
}

// ConnectNATS dials the NATS server at url. The client keeps reconnecting
// on its own; callers observe outages through IsReconnecting.
func ConnectNATS(url string, opts ...nats.Option) (Bus, error) {
	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	return &natsBus{nc: nc}, nil
}

// WrapNATS wraps an already established NATS connection.
func WrapNATS(nc *nats.Conn) Bus {
	return &natsBus{nc: nc}
}

func (b *natsBus) Publish(subject string, data []byte) error {
	if err := b.nc.Publish(subject, data); err != nil {
		if errors.Is(err, nats.ErrConnectionClosed) {
			return ErrClosed
		}
		return err
	}
	return nil
}

func (b *natsBus) Subscribe(subject string) (Subscription, error) {
	in := make(chan *nats.Msg, 256)
	sub, err := b.nc.ChanSubscribe(subject, in)
	if err != nil {
		return nil, fmt.Errorf("nats subscribe %q: %w", subject, err)
	}
	s := &natsSubscription{
		sub:  sub,
		out:  make(chan Message, 256),
		done: make(chan struct{}),
	}
	go s.pump(in)
	return s, nil
}

func (b *natsBus) Request(ctx context.Context, subject string, data []byte, timeout time.Duration) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	msg, err := b.nc.RequestWithContext(ctx, subject, data)
	if err != nil {
		switch {
		case errors.Is(err, nats.ErrConnectionClosed):
			return nil, ErrClosed
		case errors.Is(err, nats.ErrNoResponders), errors.Is(err, context.DeadlineExceeded):
			return nil, ErrNoResponders
		}
		return nil, err
	}
	return msg.Data, nil
}

func (b *natsBus) IsClosed() bool       { return b.nc.IsClosed() }
func (b *natsBus) IsReconnecting() bool { return b.nc.IsReconnecting() }
func (b *natsBus) Flush() error         { return b.nc.Flush() }

type natsSubscription struct {
	sub  *nats.Subscription
	out  chan Message
	done chan struct{}
	once sync.Once
}

func (s *natsSubscription) Messages() <-chan Message { return s.out }

func (s *natsSubscription) Unsubscribe() error {
	err := s.sub.Unsubscribe()
	s.once.Do(func() { close(s.done) })
	if err != nil && !errors.Is(err, nats.ErrConnectionClosed) {
		return err
	}
	return nil
}

// pump forwards NATS deliveries onto the typed channel until Unsubscribe.
func (s *natsSubscription) pump(in <-chan *nats.Msg) {
	defer close(s.out)
	for {
		select {
		case <-s.done:
			return
		case m, ok := <-in:
			if !ok {
				return
			}
			msg := Message{Subject: m.Subject, Reply: m.Reply, Data: m.Data}
			select {
			case s.out <- msg:
			case <-s.done:
				return
			}
		}
	}
}
