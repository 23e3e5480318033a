// Package delta is deje's built-in handler: an ahead-of-time-defined
// policy (static participants/subscribers/thresholds) plus a generic
// "delta list" event language, per spec.md DESIGN NOTES §9. Each event
// is a list of {path, property, value} operations; EventApply just
// calls Resource.SetProperty for each one, in order.
package delta

import (
	"context"
	"encoding/json"
	"fmt"

	"deje/internal/errs"
	"deje/internal/identity"
	"deje/internal/resource"
)

// ResourceHost is the slice of Document the delta handler needs to
// apply a mutation: resource lookup by path. Document implements this
// implicitly.
type ResourceHost interface {
	GetResource(path string) (*resource.Resource, bool)
}

// Op is a single delta operation: set `property` on the resource at
// `path` to `value`.
type Op struct {
	Path     string `json:"path"`
	Property string `json:"property"`
	Value    []byte `json:"value"`
}

// Policy is the static configuration the delta handler enforces.
type Policy struct {
	// Participants may sign write quorums, in the stable order given here.
	Participants []identity.Identity
	// Subscribers may additionally read (beyond Participants, who can
	// always read and write per Writers).
	Subscribers []identity.Identity
	// Writers maps a participant name to whether it may write. A
	// participant absent from this map may read (if a participant) but
	// not write.
	Writers map[string]bool
	// Thresholds keyed by "read"/"write".
	Thresholds map[string]int
}

// Handler implements handler.Handler over a static Policy.
type Handler struct {
	policy Policy
	host   ResourceHost
}

// New creates a delta Handler bound to host for resource lookups. host
// may be nil at construction time and supplied later via SetHost, since
// the Document a Handler serves is itself built from that Handler.
func New(policy Policy, host ResourceHost) *Handler {
	return &Handler{policy: policy, host: host}
}

// SetHost binds (or rebinds) the resource host, for callers that must
// construct the Handler before the Document that will own it exists.
func (h *Handler) SetHost(host ResourceHost) {
	h.host = host
}

// EventTest decodes content as a []Op and validates every op names an
// existing resource and a recognized property before any op is
// applied — this is an all-or-nothing check, not a best-effort one.
func (h *Handler) EventTest(_ context.Context, content json.RawMessage, _ string) (bool, error) {
	ops, err := decodeOps(content)
	if err != nil {
		return false, nil
	}
	for _, op := range ops {
		if _, ok := h.host.GetResource(op.Path); !ok {
			return false, nil
		}
		switch op.Property {
		case "path", "type", "content", "comment":
		default:
			return false, nil
		}
	}
	return true, nil
}

// EventApply applies every op in order. Callers must have already run
// EventTest — EventApply does not re-validate.
func (h *Handler) EventApply(_ context.Context, content json.RawMessage, _ string) error {
	ops, err := decodeOps(content)
	if err != nil {
		return fmt.Errorf("decode delta ops: %w", err)
	}
	for _, op := range ops {
		res, ok := h.host.GetResource(op.Path)
		if !ok {
			return fmt.Errorf("%w: %s", errs.ErrResourceNotFound, op.Path)
		}
		if err := res.SetProperty(op.Property, op.Value); err != nil {
			return err
		}
	}
	return nil
}

// OnResourceUpdate is a no-op in the built-in policy: it has no
// notification surface of its own to forward to.
func (h *Handler) OnResourceUpdate(context.Context, string, string, string) error {
	return nil
}

// QuorumParticipants returns Policy.Participants, unmodified — the
// order given at construction is the stable order the spec requires.
func (h *Handler) QuorumParticipants(context.Context) ([]identity.Identity, error) {
	return h.policy.Participants, nil
}

// QuorumThresholds returns Policy.Thresholds.
func (h *Handler) QuorumThresholds(context.Context) (map[string]int, error) {
	return h.policy.Thresholds, nil
}

// RequestProtocols — the delta handler only understands plain subscription.
func (h *Handler) RequestProtocols(context.Context) ([]string, error) {
	return []string{"deje-subscribe"}, nil
}

// CanRead allows participants and subscribers.
func (h *Handler) CanRead(_ context.Context, who identity.Identity) (bool, error) {
	for _, p := range h.policy.Participants {
		if p.Equal(who) {
			return true, nil
		}
	}
	for _, s := range h.policy.Subscribers {
		if s.Equal(who) {
			return true, nil
		}
	}
	return false, nil
}

// CanWrite allows any identity whose name maps to true in
// Policy.Writers; participant membership is not checked here.
func (h *Handler) CanWrite(_ context.Context, who identity.Identity) (bool, error) {
	return h.policy.Writers[who.Name], nil
}

// HostRequest — the built-in policy exposes no opaque RPC surface;
// that's a policy-author concern, not something the delta-list
// language needs.
func (h *Handler) HostRequest(context.Context, string, []any) (any, error) {
	return nil, errs.ErrUnsupported
}

func decodeOps(content json.RawMessage) ([]Op, error) {
	var ops []Op
	if err := json.Unmarshal(content, &ops); err != nil {
		return nil, err
	}
	return ops, nil
}
