// Package handler defines the policy-interpreter boundary: the hooks
// the core calls out to on every write, read, and resource mutation.
// spec.md treats the handler as a resource scripted in a user-supplied
// language (Lua in the original); per DESIGN NOTES §9 this Go port
// treats it as a pluggable capability object instead, with at least one
// built-in (internal/handler/delta) that needs no interpreter runtime
// at all. Binding an actual scripting engine is explicitly optional and
// orthogonal — no core operation depends on one existing.
package handler

import (
	"context"
	"encoding/json"

	"deje/internal/identity"
)

// Handler is implemented by whatever decides a document's policy: who
// may read, who may write, who participates in voting, and what a
// valid mutation looks like. All hooks must be side-effect-free
// relative to the document except EventApply and OnResourceUpdate,
// which are the only two allowed to mutate resources.
type Handler interface {
	// EventTest reports whether content is a valid mutation proposed by author.
	EventTest(ctx context.Context, content json.RawMessage, author string) (bool, error)

	// EventApply mutates the document's resources to reflect content.
	EventApply(ctx context.Context, content json.RawMessage, author string) error

	// OnResourceUpdate fires whenever any Resource field changes.
	// oldPath is only meaningful when propName == "path".
	OnResourceUpdate(ctx context.Context, path, propName, oldPath string) error

	// QuorumParticipants returns the identities allowed to sign write
	// quorums, in a stable order.
	QuorumParticipants(ctx context.Context) ([]identity.Identity, error)

	// QuorumThresholds returns the signature counts required to
	// complete a quorum, keyed by "read"/"write".
	QuorumThresholds(ctx context.Context) (map[string]int, error)

	// RequestProtocols lists the read-subscription protocols this
	// document's handler understands.
	RequestProtocols(ctx context.Context) ([]string, error)

	// CanRead/CanWrite gate local and remote read/write attempts.
	CanRead(ctx context.Context, who identity.Identity) (bool, error)
	CanWrite(ctx context.Context, who identity.Identity) (bool, error)

	// HostRequest is an opaque, handler-controlled RPC surface; the
	// core never interprets args or the return value.
	HostRequest(ctx context.Context, callback string, args []any) (any, error)
}
