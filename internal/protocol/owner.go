// Package protocol implements the Owner: the per-peer message router
// that dispatches inbound wire messages to the right Document and
// Quorum, drives the three-phase lock-acquire/lock-acquired/
// lock-complete vote, and answers version/block catch-up queries.
// Grounded on original_source/deje/owner.py's on_ejtp dispatch table
// and _on_deje_* handlers.
package protocol

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"

	"deje/internal/document"
	"deje/internal/errs"
	"deje/internal/identity"
	"deje/internal/transport"
)

// Error codes for deje-error, matching spec.md §7's kinds.
const (
	codeNotDict     = 1
	codeNoType      = 2
	codeUnknownType = 3
)

// inboundMessage is one raw message queued for single-threaded processing.
type inboundMessage struct {
	from string
	raw  []byte
}

// Owner manages one peer's documents, identities, and transport —
// the network-facing counterpart of a bare Document.
type Owner struct {
	self       identity.Identity
	identities *identity.Cache
	transport  transport.Transport

	mu        sync.RWMutex
	documents map[string]*document.Document

	inbox   chan inboundMessage
	pending sync.Map // string -> chan any, one-shot recv-version/recv-block-N callbacks
}

// New creates an Owner acting as self, using identities for peer
// lookups and tr to reach the network.
func New(self identity.Identity, identities *identity.Cache, tr transport.Transport) *Owner {
	return &Owner{
		self:       self,
		identities: identities,
		transport:  tr,
		documents:  make(map[string]*document.Document),
		inbox:      make(chan inboundMessage, 256),
	}
}

// AddDocument registers doc under its own name, making it reachable by
// inbound docname-addressed messages.
func (o *Owner) AddDocument(doc *document.Document) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.documents[doc.Name()] = doc
}

// Document looks up a registered document by name.
func (o *Owner) Document(name string) (*document.Document, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	d, ok := o.documents[name]
	return d, ok
}

// Enqueue is the Transport-facing entrypoint: it queues a raw inbound
// message for serialized processing by Run, rather than processing it
// on the transport's own goroutine. A full inbox drops the message and
// logs — back-pressure here would stall the transport's listener.
func (o *Owner) Enqueue(from string, raw []byte) {
	select {
	case o.inbox <- inboundMessage{from: from, raw: raw}:
	default:
		log.Printf("protocol: inbox full, dropping message from %s", from)
	}
}

// Run drains the inbox on a single goroutine until ctx is cancelled,
// so inbound messages are processed one at a time. Local calls on a
// Document do not pass through the inbox. Grounded on the teacher's "only one
// writer can write at a time" invariant in store.go, generalized from
// a mutex to a channel because ordering must hold across a Document
// and its QuorumSpace together, not one structure at a time.
func (o *Owner) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-o.inbox:
			if err := o.Dispatch(ctx, msg.raw, msg.from); err != nil {
				log.Printf("protocol: dispatch from %s: %v", msg.from, err)
			}
		}
	}
}

// Dispatch processes one inbound message synchronously: validates
// shape, extracts type and docname, and routes to the matching
// handler. Safe to call directly (bypassing Run/Enqueue) from tests or
// from a transport that already guarantees serialized delivery.
func (o *Owner) Dispatch(ctx context.Context, raw []byte, fromAddr string) error {
	var content map[string]json.RawMessage
	if err := json.Unmarshal(raw, &content); err != nil {
		o.sendError(ctx, []string{fromAddr}, codeNotDict, "message is not a JSON object", nil)
		return fmt.Errorf("%w: %v", errs.ErrMalformedMessage, err)
	}

	typeField, ok := content["type"]
	if !ok {
		o.sendError(ctx, []string{fromAddr}, codeNoType, "message has no type", nil)
		return errs.ErrMalformedMessage
	}
	var mtype string
	if err := json.Unmarshal(typeField, &mtype); err != nil {
		return fmt.Errorf("%w: type is not a string", errs.ErrMalformedMessage)
	}

	var docName string
	if raw, ok := content["docname"]; ok {
		_ = json.Unmarshal(raw, &docName)
	}
	doc, _ := o.Document(docName)

	switch mtype {
	case "deje-lock-acquire":
		return o.onLockAcquire(ctx, content, doc)
	case "deje-lock-acquired":
		return o.onLockAcquired(ctx, content, doc)
	case "deje-lock-complete":
		return o.onLockComplete(ctx, content, doc)
	case "deje-get-version":
		return o.onGetVersion(ctx, doc, fromAddr)
	case "deje-doc-version":
		return o.onDocVersion(content, doc, fromAddr)
	case "deje-get-block":
		return o.onGetBlock(ctx, content, doc, fromAddr)
	case "deje-doc-block":
		return o.onDocBlock(content, doc, fromAddr)
	case "deje-error":
		return o.onError(content)
	default:
		o.sendError(ctx, []string{fromAddr}, codeUnknownType, fmt.Sprintf("unknown type %q", mtype), nil)
		return fmt.Errorf("%w: %q", errs.ErrUnknownMessageType, mtype)
	}
}

// isParticipant reports whether name is currently a participant of doc.
func isParticipant(doc *document.Document, name string) bool {
	participants, err := doc.Participants()
	if err != nil {
		return false
	}
	for _, p := range participants {
		if p.Name == name {
			return true
		}
	}
	return false
}

func (o *Owner) identityFor(name string) identity.Identity {
	if id, ok := o.identities.FindByName(name); ok {
		return id
	}
	return identity.NewPublic(name, "", nil)
}
