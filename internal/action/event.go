package action

import (
	"context"
	"encoding/json"
	"fmt"

	"deje/internal/canon"
)

// Event is a proposed write: an opaque content blob a document's
// handler interprets (EventTest/EventApply), proposed against a known
// version so it can be recognized as outdated once the document moves
// past it. Grounded on original_source/deje/event.py, renamed from
// that file's "Checkpoint" lineage to match the terminology used
// throughout this port.
type Event struct {
	Author  string
	Content json.RawMessage
	Version uint64

	enacted bool
}

// NewEvent creates an Event proposed by author against version.
func NewEvent(author string, content json.RawMessage, version uint64) *Event {
	return &Event{Author: author, Content: content, Version: version}
}

func (e *Event) Type() string       { return "event" }
func (e *Event) AuthorName() string { return e.Author }
func (e *Event) ThresholdType() string { return "write" }

func (e *Event) ProposedVersion() *uint64 {
	v := e.Version
	return &v
}

// HashContent canonicalizes every field but signatures, matching the
// Python Event.items property.
func (e *Event) HashContent() ([]byte, error) {
	return canon.Marshal(struct {
		Type    string          `json:"type"`
		Author  string          `json:"author"`
		Content json.RawMessage `json:"content"`
		Version uint64          `json:"version"`
	}{e.Type(), e.Author, e.Content, e.Version})
}

func (e *Event) Serialize() map[string]any {
	return map[string]any{
		"type":    e.Type(),
		"author":  e.Author,
		"content": e.Content,
		"version": e.Version,
	}
}

// IsDone reports whether host has already appended this Event.
func (e *Event) IsDone(host Host) bool {
	return host.HasEvent(e)
}

// Test checks e.Content against host's handler without applying it.
func (e *Event) Test(ctx context.Context, host Host) (bool, error) {
	return host.TestEvent(ctx, e.Author, e.Content)
}

// Enact appends e to host's history and applies it to resource state.
// Grounded on Event.enact: add_event then apply, in that order, so a
// failed apply still leaves the event recorded (matching the Python
// behavior of never rolling back a logged event).
func (e *Event) Enact(ctx context.Context, host Host) error {
	if e.enacted {
		return nil
	}
	host.AppendEvent(e)
	e.enacted = true
	if err := host.ApplyEvent(ctx, e.Author, e.Content); err != nil {
		return fmt.Errorf("apply event: %w", err)
	}
	return nil
}
