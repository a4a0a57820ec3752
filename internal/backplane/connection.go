package backplane

import (
	"context"
	"sync"
)

// Connection is the contract the connection framework satisfies. The
// framework owns the connection's lifetime; the coordinator only observes
// it between OnConnected and OnDisconnected and never keeps a reference
// past OnDisconnected returning.
type Connection interface {
	// ID is the caller-assigned unique connection identifier.
	ID() string

	// UserID is the authenticated user, empty when there is none.
	UserID() string

	// Context is done once the connection is going away. A connection
	// whose context is already done is never subscribed anywhere.
	Context() context.Context

	// Deliver invokes a client method on the connection.
	Deliver(ctx context.Context, method string, args []any) error
}

// tracked wraps a Connection with the group membership the coordinator
// owns. Membership is touched by concurrent group operations, so it sits
// behind its own lock.
type tracked struct {
	Connection

	mu     sync.Mutex
	groups map[string]struct{}
}

func newTracked(conn Connection) *tracked {
	return &tracked{Connection: conn, groups: make(map[string]struct{})}
}

func (t *tracked) aborted() bool {
	select {
	case <-t.Context().Done():
		return true
	default:
		return false
	}
}

func (t *tracked) addGroup(name string) {
	t.mu.Lock()
	t.groups[name] = struct{}{}
	t.mu.Unlock()
}

func (t *tracked) removeGroup(name string) {
	t.mu.Lock()
	delete(t.groups, name)
	t.mu.Unlock()
}

func (t *tracked) groupSnapshot() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, 0, len(t.groups))
	for name := range t.groups {
		out = append(out, name)
	}
	return out
}
