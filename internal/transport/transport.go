// Package transport defines the peer-to-peer message bus boundary: how
// a deje.Owner sends and receives JSON-shaped messages by peer
// address. The wire protocol itself (message shapes, dispatch table)
// lives in internal/protocol; this package only moves bytes, standing
// in for the EJTP bus the original implementation used.
package transport

import "context"

// Transport sends and receives raw JSON messages addressed by peer
// location string (the same "location" an Identity carries).
type Transport interface {
	// Send delivers msg to address. Per-recipient failures are the
	// caller's to log and continue past — Send itself should not be
	// used to fan out a single broadcast to many peers.
	Send(ctx context.Context, address string, msg []byte) error

	// Listen starts receiving messages, invoking onMessage with the
	// sender's address and the raw message body for each one. Listen
	// blocks until ctx is cancelled.
	Listen(ctx context.Context, onMessage func(from string, raw []byte)) error
}
