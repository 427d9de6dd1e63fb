package bridge

import "github.com/roomlink/realtime/src/types"

// Bridge relays room broadcasts between server instances, the extension
// point for running the realtime layer on more than one node. A single
// process remains the authority over its own connection state; the bridge
// only fans events out.
type Bridge interface {
	// Publish sends a room event to all other instances.
	Publish(room string, ev types.ServerEvent) error

	// Start begins listening for events from other instances.
	Start() error

	// Stop shuts down the bridge connection.
	Stop() error

	// Available reports whether the bridge is connected and operational.
	Available() bool
}

// BroadcastTarget is implemented by the room index to receive events
// relayed from other instances.
type BroadcastTarget interface {
	DeliverLocal(room string, ev types.ServerEvent)
}
