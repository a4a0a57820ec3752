package backplane

import "errors"

var (
	// ErrBusClosed means the bus connection is permanently gone; the
	// operation cannot be retried on this coordinator.
	ErrBusClosed = errors.New("backplane: bus connection closed")

	// ErrBusReconnectTimeout means the bus was still reconnecting after
	// the configured wait.
	ErrBusReconnectTimeout = errors.New("backplane: timed out waiting for bus reconnect")
)
