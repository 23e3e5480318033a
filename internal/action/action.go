// Package action implements the two Action kinds a Document can
// propose and vote on: Event (a write) and ReadRequest (a subscribe),
// per spec.md §4.1/§4.2. Both satisfy quorum.Parent structurally, so
// this package never imports quorum, and quorum never imports action.
package action

import (
	"context"
	"encoding/json"

	"deje/internal/canon"
)

// Action is the common surface of Event and ReadRequest: something a
// Quorum can accumulate signatures for, and a Document can enact once
// that quorum completes.
type Action interface {
	// Type is the wire discriminator: "event" or "get_version".
	Type() string

	// AuthorName is the proposing identity's name.
	AuthorName() string

	// HashContent is the canonical encoding of the action's hashable
	// form (every field but signatures) — see quorum.Quorum.Hash.
	HashContent() ([]byte, error)

	// ThresholdType is "read" or "write".
	ThresholdType() string

	// ProposedVersion is the document version this action was
	// proposed against, or nil if the action doesn't age with document
	// progress (ReadRequest).
	ProposedVersion() *uint64

	// Serialize returns the wire/file representation used in
	// deje-lock-acquire content and block records.
	Serialize() map[string]any
}

// ContentHashOf is the content hash of a's hashable form, used outside
// a live Quorum (e.g. verifying a remote block's signatures).
func ContentHashOf(a Action) (string, error) {
	data, err := a.HashContent()
	if err != nil {
		return "", err
	}
	return canon.ContentHash(canon.Raw(data))
}

// Host is the slice of Document an Action needs in order to test
// itself against current state and, once its quorum completes, enact
// itself. Document implements this implicitly.
type Host interface {
	TestEvent(ctx context.Context, author string, content json.RawMessage) (bool, error)
	ApplyEvent(ctx context.Context, author string, content json.RawMessage) error
	AppendEvent(e *Event)
	HasEvent(e *Event) bool
	AddSubscriber(name string)
}
