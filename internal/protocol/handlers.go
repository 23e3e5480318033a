package protocol

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"deje/internal/action"
	"deje/internal/document"
	"deje/internal/identity"
	"deje/internal/quorum"
)

func getString(content map[string]json.RawMessage, key string) (string, bool) {
	raw, ok := content[key]
	if !ok {
		return "", false
	}
	var v string
	if err := json.Unmarshal(raw, &v); err != nil {
		return "", false
	}
	return v, true
}

func getUint64(content map[string]json.RawMessage, key string) (uint64, bool) {
	raw, ok := content[key]
	if !ok {
		return 0, false
	}
	var v uint64
	if err := json.Unmarshal(raw, &v); err != nil {
		return 0, false
	}
	return v, true
}

// onLockAcquire handles an inbound deje-lock-acquire: extract the
// inner action, validate it against handler policy, and sign it on this
// replica's behalf. For an event, a deje-lock-acquired carrying only our
// own signature goes back out; a subscribe request gets no such reply.
func (o *Owner) onLockAcquire(ctx context.Context, content map[string]json.RawMessage, doc *document.Document) error {
	if doc == nil {
		log.Printf("protocol: deje-lock-acquire for unknown document, dropping")
		return nil
	}

	var inner map[string]json.RawMessage
	if err := json.Unmarshal(content["content"], &inner); err != nil {
		return fmt.Errorf("decode lock-acquire content: %w", err)
	}
	ltype, _ := getString(inner, "type")

	switch ltype {
	case "event":
		author, _ := getString(inner, "author")
		version, _ := getUint64(inner, "version")
		evContent, ok := inner["content"]
		if !ok {
			return fmt.Errorf("lock-acquire: missing event content")
		}
		_, q, err := doc.ExternalEvent(ctx, author, evContent, version)
		if err != nil {
			log.Printf("protocol: external event from %s rejected: %v", author, err)
			return nil
		}
		return q.Transmit([]string{o.self.Name})

	case "get_version":
		author, _ := getString(inner, "author")
		unique, _ := getUint64(inner, "unique")
		if _, _, err := doc.ExternalSubscribe(ctx, author, uint32(unique)); err != nil {
			log.Printf("protocol: external subscribe from %s rejected: %v", author, err)
		}
		return nil

	default:
		log.Printf("protocol: lock-acquire with unrecognized inner type %q, dropping", ltype)
		return nil
	}
}

// onLockAcquired incorporates one signer's signature into the quorum
// named by content-hash; if that completes the quorum and we are the
// proposer, enacts locally and broadcasts deje-lock-complete.
func (o *Owner) onLockAcquired(ctx context.Context, content map[string]json.RawMessage, doc *document.Document) error {
	if doc == nil {
		return nil
	}
	hash, _ := getString(content, "content-hash")
	signer, _ := getString(content, "signer")
	sig, _ := getString(content, "signature")

	q, ok := doc.QuorumByHash(hash)
	if !ok {
		log.Printf("protocol: lock-acquired for unknown quorum %s, dropping", hash)
		return nil
	}
	if err := q.Sign(o.identityFor(signer), sig); err != nil {
		log.Printf("protocol: signature from %s rejected: %v", signer, err)
		return nil
	}
	if !q.Done() || q.Parent().AuthorName() != o.self.Name {
		return nil
	}
	return o.completeLocally(ctx, doc, q)
}

// onLockComplete incorporates a full signature set and enacts locally
// — every recipient of lock-complete applies and, for Events, advances
// its own copy of the document.
func (o *Owner) onLockComplete(ctx context.Context, content map[string]json.RawMessage, doc *document.Document) error {
	if doc == nil {
		return nil
	}
	hash, _ := getString(content, "content-hash")
	var sigs map[string]string
	if err := json.Unmarshal(content["signatures"], &sigs); err != nil {
		return fmt.Errorf("decode lock-complete signatures: %w", err)
	}

	q, ok := doc.QuorumByHash(hash)
	if !ok {
		log.Printf("protocol: lock-complete for unknown quorum %s, dropping", hash)
		return nil
	}
	for signer, sig := range sigs {
		if err := q.Sign(o.identityFor(signer), sig); err != nil {
			log.Printf("protocol: lock-complete signature from %s rejected: %v", signer, err)
		}
	}
	return o.enactQuorum(ctx, doc, q)
}

// completeLocally is reached only by the proposer, once its own
// quorum has completed: enact, then broadcast lock-complete.
func (o *Owner) completeLocally(ctx context.Context, doc *document.Document, q *quorum.Quorum) error {
	if err := o.enactQuorum(ctx, doc, q); err != nil {
		return err
	}
	return q.TransmitComplete()
}

func (o *Owner) enactQuorum(ctx context.Context, doc *document.Document, q *quorum.Quorum) error {
	switch parent := q.Parent().(type) {
	case *action.Event:
		return doc.EnactComplete(ctx, parent, q.SignaturesMap())
	case *action.ReadRequest:
		return parent.Enact(doc)
	default:
		return fmt.Errorf("enact: unrecognized action type %T", parent)
	}
}

func (o *Owner) onGetVersion(ctx context.Context, doc *document.Document, fromAddr string) error {
	if doc == nil {
		return nil
	}
	sender := o.senderIdentity(fromAddr)
	can, err := doc.CanRead(ctx, sender)
	if err != nil {
		return err
	}
	if !can {
		log.Printf("protocol: %s denied read on %s", sender.Name, doc.Name())
		return nil
	}
	return o.reply(ctx, doc, "deje-doc-version", map[string]any{"version": doc.Version()}, fromAddr)
}

func (o *Owner) onDocVersion(content map[string]json.RawMessage, doc *document.Document, fromAddr string) error {
	if doc == nil {
		return nil
	}
	sender := o.senderIdentity(fromAddr)
	if !isParticipant(doc, sender.Name) {
		log.Printf("protocol: version information from non-participant %s, ignoring", sender.Name)
		return nil
	}
	version, ok := getUint64(content, "version")
	if !ok {
		return fmt.Errorf("decode doc-version: missing version")
	}
	o.deliver(doc.Name()+"/recv-version", version)
	return nil
}

func (o *Owner) onGetBlock(ctx context.Context, content map[string]json.RawMessage, doc *document.Document, fromAddr string) error {
	if doc == nil {
		return nil
	}
	sender := o.senderIdentity(fromAddr)
	can, err := doc.CanRead(ctx, sender)
	if err != nil {
		return err
	}
	if !can {
		log.Printf("protocol: %s denied read on %s", sender.Name, doc.Name())
		return nil
	}
	version, ok := getUint64(content, "version")
	if !ok {
		return fmt.Errorf("decode get-block: missing version")
	}
	block, err := doc.GetBlock(version)
	if err != nil {
		return err
	}
	return o.reply(ctx, doc, "deje-doc-block", map[string]any{"block": block}, fromAddr)
}

func (o *Owner) onDocBlock(content map[string]json.RawMessage, doc *document.Document, fromAddr string) error {
	if doc == nil {
		return nil
	}
	sender := o.senderIdentity(fromAddr)
	if !isParticipant(doc, sender.Name) {
		log.Printf("protocol: block information from non-participant %s, ignoring", sender.Name)
		return nil
	}
	var block document.Block
	if err := json.Unmarshal(content["block"], &block); err != nil {
		return fmt.Errorf("decode doc-block: %w", err)
	}
	o.deliver(fmt.Sprintf("%s/recv-block-%d", doc.Name(), block.Version), block)
	return nil
}

func (o *Owner) onError(content map[string]json.RawMessage) error {
	code, _ := getUint64(content, "code")
	explanation, _ := getString(content, "explanation")
	log.Printf("protocol: received deje-error %d: %s", code, explanation)
	return nil
}

// senderIdentity resolves fromAddr to a known Identity, falling back
// to an anonymous public identity with no verifiable key when the
// address isn't in the cache (it will simply fail any policy check
// that requires a known participant).
func (o *Owner) senderIdentity(fromAddr string) identity.Identity {
	if id, ok := o.identities.FindByLocation(fromAddr); ok {
		return id
	}
	return identity.NewPublic("unknown", fromAddr, nil)
}
