package backplane

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDirectoryAddRemove(t *testing.T) {
	d := newDirectory()

	tab1 := newTracked(&fakeConn{id: "c1", user: "alice", ctx: context.Background()})
	tab2 := newTracked(&fakeConn{id: "c2", user: "alice", ctx: context.Background()})
	anon := newTracked(&fakeConn{id: "c3", ctx: context.Background()})

	d.add(tab1)
	d.add(tab2)
	d.add(anon)

	require.Equal(t, 3, d.count())
	require.Same(t, tab1, d.get("c1"))
	require.Same(t, anon, d.get("c3"))
	require.Len(t, d.byUser["alice"], 2)

	require.Same(t, tab1, d.remove("c1"))
	require.Nil(t, d.get("c1"))
	require.Len(t, d.byUser["alice"], 1, "the user's other tab stays indexed")

	require.Same(t, tab2, d.remove("c2"))
	_, ok := d.byUser["alice"]
	require.False(t, ok, "empty user entries are dropped")

	require.Nil(t, d.remove("never-added"))
	require.Same(t, anon, d.remove("c3"))
	require.Equal(t, 0, d.count())
}
