package wire_test

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/fathima-sithara/realtime-backplane/internal/wire"
)

func TestInvocationRoundTrip(t *testing.T) {
	in := &wire.Invocation{
		MethodName:            "ping",
		Args:                  []any{"hello", int64(3)},
		ExcludedConnectionIDs: []string{"c2"},
	}
	b, err := wire.EncodeInvocation(in)
	require.NoError(t, err)

	out, err := wire.DecodeInvocation(b)
	require.NoError(t, err)
	require.Equal(t, "ping", out.MethodName)
	require.Len(t, out.Args, 2)
	require.Equal(t, []string{"c2"}, out.ExcludedConnectionIDs)
	require.Empty(t, out.InvocationID)
}

func TestGroupCommandRoundTrip(t *testing.T) {
	in := &wire.GroupCommand{
		ID:           7,
		ServerName:   "host_abc",
		Action:       wire.GroupRemove,
		GroupName:    "room",
		ConnectionID: "c1",
	}
	b, err := wire.EncodeGroupCommand(in)
	require.NoError(t, err)

	out, err := wire.DecodeGroupCommand(b)
	require.NoError(t, err)
	require.Equal(t, in, out)
}

// Older processes must be able to decode records written by newer ones
// that carry extra fields.
func TestDecodeIgnoresUnknownFields(t *testing.T) {
	b, err := msgpack.Marshal(map[string]any{
		"method_name":  "ping",
		"args":         []any{},
		"some_new_one": true,
	})
	require.NoError(t, err)

	out, err := wire.DecodeInvocation(b)
	require.NoError(t, err)
	require.Equal(t, "ping", out.MethodName)
}

func TestDecodeMalformed(t *testing.T) {
	_, err := wire.DecodeInvocation([]byte{0xc1, 0x00})
	require.Error(t, err)
	_, err = wire.DecodeGroupCommand([]byte{0xc1})
	require.Error(t, err)
}
