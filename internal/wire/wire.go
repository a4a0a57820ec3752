// Package wire defines the records exchanged over the bus.
//
// Records are encoded with msgpack so fields can be added without
// breaking older processes; unknown fields are ignored on decode.
// Nothing here is ever persisted.
package wire

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// GroupAction says what a GroupCommand does to the membership.
type GroupAction int

const (
	GroupAdd    GroupAction = 0
	GroupRemove GroupAction = 1
)

func (a GroupAction) String() string {
	switch a {
	case GroupAdd:
		return "add"
	case GroupRemove:
		return "remove"
	default:
		return fmt.Sprintf("action(%d)", int(a))
	}
}

// Invocation is a method call fanned out to connections.
type Invocation struct {
	InvocationID          string   `msgpack:"invocation_id,omitempty"`
	MethodName            string   `msgpack:"method_name"`
	Args                  []any    `msgpack:"args"`
	ExcludedConnectionIDs []string `msgpack:"excluded_connection_ids,omitempty"`

	// ReturnChannel is reserved for client results; the send variants
	// never set it.
	ReturnChannel string `msgpack:"return_channel,omitempty"`
}

// GroupCommand replicates a membership change to whichever process owns
// the connection. ID correlates the ack reply with the request on the
// originating process only; it is not unique across processes.
type GroupCommand struct {
	ID           uint32      `msgpack:"id"`
	ServerName   string      `msgpack:"server_name"`
	Action       GroupAction `msgpack:"action"`
	GroupName    string      `msgpack:"group_name"`
	ConnectionID string      `msgpack:"connection_id"`
}

// EncodeInvocation serializes an Invocation for the bus.
func EncodeInvocation(inv *Invocation) ([]byte, error) {
	b, err := msgpack.Marshal(inv)
	if err != nil {
		return nil, fmt.Errorf("encode invocation: %w", err)
	}
	return b, nil
}

// DecodeInvocation deserializes a bus payload into an Invocation.
func DecodeInvocation(data []byte) (*Invocation, error) {
	var inv Invocation
	if err := msgpack.Unmarshal(data, &inv); err != nil {
		return nil, fmt.Errorf("decode invocation: %w", err)
	}
	return &inv, nil
}

// EncodeGroupCommand serializes a GroupCommand for the bus.
func EncodeGroupCommand(cmd *GroupCommand) ([]byte, error) {
	b, err := msgpack.Marshal(cmd)
	if err != nil {
		return nil, fmt.Errorf("encode group command: %w", err)
	}
	return b, nil
}

// DecodeGroupCommand deserializes a bus payload into a GroupCommand.
func DecodeGroupCommand(data []byte) (*GroupCommand, error) {
	var cmd GroupCommand
	if err := msgpack.Unmarshal(data, &cmd); err != nil {
		return nil, fmt.Errorf("decode group command: %w", err)
	}
	return &cmd, nil
}
