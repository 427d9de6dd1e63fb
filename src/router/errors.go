package router

import "errors"

var (
	// ErrHandshakeTimeout is returned when a connection stays
	// unauthenticated past the handshake window.
	ErrHandshakeTimeout = errors.New("handshake not completed in time")

	// ErrUnknownKind is returned for an unrecognized inbound event kind.
	ErrUnknownKind = errors.New("unknown event kind")

	// ErrValidation is returned for a malformed or incomplete payload.
	ErrValidation = errors.New("invalid payload")

	// ErrConnectionClosed is returned when the transport closes before the
	// handshake completes.
	ErrConnectionClosed = errors.New("connection closed")
)
