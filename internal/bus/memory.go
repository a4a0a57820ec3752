package bus

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryBus is an in-process Bus for single-node deployments and tests.
// Every subscriber on a subject gets its own buffered channel; a
// subscriber that stops draining its channel loses messages, matching
// the at-most-once semantics of the real transport.
type MemoryBus struct {
	mu     sync.RWMutex
	subs   map[string][]*memorySub
	closed bool
}

func NewMemoryBus() *MemoryBus {
	return &MemoryBus{subs: make(map[string][]*memorySub)}
}

func (b *MemoryBus) Publish(subject string, data []byte) error {
	return b.publish(Message{Subject: subject, Data: data})
}

func (b *MemoryBus) publish(msg Message) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrClosed
	}
	for _, s := range b.subs[msg.Subject] {
		select {
		case s.ch <- msg:
		default:
			// subscriber too slow, drop
		}
	}
	return nil
}

func (b *MemoryBus) Subscribe(subject string) (Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrClosed
	}
	s := &memorySub{bus: b, subject: subject, ch: make(chan Message, 256)}
	b.subs[subject] = append(b.subs[subject], s)
	return s, nil
}

func (b *MemoryBus) Request(ctx context.Context, subject string, data []byte, timeout time.Duration) ([]byte, error) {
	inbox := "_inbox." + uuid.NewString()
	sub, err := b.Subscribe(inbox)
	if err != nil {
		return nil, err
	}
	defer sub.Unsubscribe()

	if err := b.publish(Message{Subject: subject, Reply: inbox, Data: data}); err != nil {
		return nil, err
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case msg, ok := <-sub.Messages():
		if !ok {
			return nil, ErrClosed
		}
		return msg.Data, nil
	case <-timer.C:
		return nil, ErrNoResponders
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (b *MemoryBus) IsClosed() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.closed
}

func (b *MemoryBus) IsReconnecting() bool { return false }

func (b *MemoryBus) Flush() error {
	if b.IsClosed() {
		return ErrClosed
	}
	return nil
}

// Close shuts the bus down; all subscription channels are closed.
func (b *MemoryBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for _, list := range b.subs {
		for _, s := range list {
			close(s.ch)
		}
	}
	b.subs = make(map[string][]*memorySub)
}

type memorySub struct {
	bus     *MemoryBus
	subject string
	ch      chan Message
}

func (s *memorySub) Messages() <-chan Message { return s.ch }

func (s *memorySub) Unsubscribe() error {
	b := s.bus
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	list := b.subs[s.subject]
	for i, cur := range list {
		if cur == s {
			b.subs[s.subject] = append(list[:i:i], list[i+1:]...)
			close(s.ch)
			break
		}
	}
	if len(b.subs[s.subject]) == 0 {
		delete(b.subs, s.subject)
	}
	return nil
}
