package bus_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/fathima-sithara/realtime-backplane/internal/bus"
)

func TestMemoryBusPublishSubscribe(t *testing.T) {
	b := bus.NewMemoryBus()
	defer b.Close()

	sub, err := b.Subscribe("chat.group.x")
	require.NoError(t, err)

	require.NoError(t, b.Publish("chat.group.x", []byte("one")))
	require.NoError(t, b.Publish("chat.group.y", []byte("other subject")))

	select {
	case msg := <-sub.Messages():
		require.Equal(t, "chat.group.x", msg.Subject)
		require.Equal(t, []byte("one"), msg.Data)
	case <-time.After(time.Second):
		t.Fatal("no delivery")
	}

	select {
	case msg := <-sub.Messages():
		t.Fatalf("unexpected delivery: %q", msg.Data)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestMemoryBusUnsubscribeClosesChannel(t *testing.T) {
	b := bus.NewMemoryBus()
	defer b.Close()

	sub, err := b.Subscribe("s")
	require.NoError(t, err)
	require.NoError(t, sub.Unsubscribe())

	_, ok := <-sub.Messages()
	require.False(t, ok)

	// publishing to a subject with no subscribers is fine
	require.NoError(t, b.Publish("s", []byte("gone")))
}

func TestMemoryBusRequestReply(t *testing.T) {
	b := bus.NewMemoryBus()
	defer b.Close()

	sub, err := b.Subscribe("svc")
	require.NoError(t, err)
	go func() {
		for msg := range sub.Messages() {
			if msg.Reply != "" {
				_ = b.Publish(msg.Reply, append([]byte("re:"), msg.Data...))
			}
		}
	}()

	reply, err := b.Request(context.Background(), "svc", []byte("ping"), time.Second)
	require.NoError(t, err)
	require.Equal(t, []byte("re:ping"), reply)
}

func TestMemoryBusRequestTimeout(t *testing.T) {
	b := bus.NewMemoryBus()
	defer b.Close()

	_, err := b.Request(context.Background(), "nobody.home", nil, 50*time.Millisecond)
	require.ErrorIs(t, err, bus.ErrNoResponders)
}

func TestMemoryBusClose(t *testing.T) {
	b := bus.NewMemoryBus()
	sub, err := b.Subscribe("s")
	require.NoError(t, err)

	b.Close()
	require.True(t, b.IsClosed())

	_, ok := <-sub.Messages()
	require.False(t, ok)
	require.ErrorIs(t, b.Publish("s", nil), bus.ErrClosed)
	_, err = b.Subscribe("s")
	require.ErrorIs(t, err, bus.ErrClosed)
}
