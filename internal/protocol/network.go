package protocol

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"deje/internal/document"
)

// Transmit implements document.Broadcaster: it resolves targets (plus
// every current participant, if includeParticipants, plus every
// subscriber, always) to transport addresses and sends mtype+properties
// to each, skipping ourselves. Grounded on owner.py's Owner.transmit.
func (o *Owner) Transmit(docName, mtype string, properties map[string]any, targets []string, includeParticipants bool) error {
	doc, _ := o.Document(docName)

	// Participant identities carry their own Location (handler policy
	// configures them directly), so they're resolved without touching
	// the shared cache; plain name targets and subscribers fall back to
	// the cache, matching owner.py's two address-resolution paths
	// (target.location vs. identities.find_by_name(target).location).
	addresses := make(map[string]string)
	addName := func(name string) {
		if _, ok := addresses[name]; ok {
			return
		}
		if id, ok := o.identities.FindByName(name); ok {
			addresses[name] = id.Location
		} else {
			addresses[name] = ""
		}
	}

	for _, t := range targets {
		addName(t)
	}
	if includeParticipants && doc != nil {
		participants, err := doc.Participants()
		if err != nil {
			return err
		}
		for _, p := range participants {
			addresses[p.Name] = p.Location
		}
	}
	if doc != nil {
		for _, s := range doc.Subscribers() {
			addName(s)
		}
	}

	message := map[string]any{"type": mtype, "docname": docName}
	for k, v := range properties {
		message[k] = v
	}
	raw, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", mtype, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	for name, addr := range addresses {
		if addr == "" {
			log.Printf("protocol: no known address for %q, skipping", name)
			continue
		}
		if addr == o.self.Location {
			continue
		}
		if err := o.transport.Send(ctx, addr, raw); err != nil {
			log.Printf("protocol: send %s to %s failed: %v", mtype, name, err)
		}
	}
	return nil
}

// reply sends mtype+properties to a single raw address — used for
// request/response pairs (deje-get-version/deje-get-block) where the
// requester's name may not be in our identity cache yet.
func (o *Owner) reply(ctx context.Context, doc *document.Document, mtype string, properties map[string]any, toAddr string) error {
	message := map[string]any{"type": mtype, "docname": doc.Name()}
	for k, v := range properties {
		message[k] = v
	}
	raw, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", mtype, err)
	}
	return o.transport.Send(ctx, toAddr, raw)
}

// sendError sends a deje-error to each of targets, logging (not
// failing) any individual send error — malformed/unknown-type input
// must never abort the caller.
func (o *Owner) sendError(ctx context.Context, targets []string, code int, explanation string, data any) {
	message := map[string]any{
		"type":        "deje-error",
		"code":        code,
		"explanation": explanation,
		"data":        data,
	}
	raw, err := json.Marshal(message)
	if err != nil {
		log.Printf("protocol: marshal deje-error: %v", err)
		return
	}
	for _, target := range targets {
		if err := o.transport.Send(ctx, target, raw); err != nil {
			log.Printf("protocol: send deje-error to %s failed: %v", target, err)
		}
	}
}

// deliver fulfills a pending one-shot callback registered under key,
// if one is waiting; otherwise the value is dropped (no one asked).
func (o *Owner) deliver(key string, value any) {
	if ch, ok := o.pending.Load(key); ok {
		select {
		case ch.(chan any) <- value:
		default:
		}
	}
}

// GetVersion sends deje-get-version to every participant and blocks
// for the first deje-doc-version reply, or until ctx is done.
func (o *Owner) GetVersion(ctx context.Context, doc *document.Document) (uint64, error) {
	key := doc.Name() + "/recv-version"
	ch := make(chan any, 1)
	o.pending.Store(key, ch)
	defer o.pending.Delete(key)

	if err := o.Transmit(doc.Name(), "deje-get-version", nil, nil, true); err != nil {
		return 0, err
	}
	select {
	case v := <-ch:
		return v.(uint64), nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// GetBlock sends deje-get-block for version and blocks for the
// matching deje-doc-block reply, or until ctx is done.
func (o *Owner) GetBlock(ctx context.Context, doc *document.Document, version uint64) (document.Block, error) {
	key := fmt.Sprintf("%s/recv-block-%d", doc.Name(), version)
	ch := make(chan any, 1)
	o.pending.Store(key, ch)
	defer o.pending.Delete(key)

	if err := o.Transmit(doc.Name(), "deje-get-block", map[string]any{"version": version}, nil, true); err != nil {
		return document.Block{}, err
	}
	select {
	case v := <-ch:
		return v.(document.Block), nil
	case <-ctx.Done():
		return document.Block{}, ctx.Err()
	}
}

// Sync catches doc up to the network's current version using GetVersion/GetBlock.
func (o *Owner) Sync(ctx context.Context, doc *document.Document) error {
	return doc.Sync(ctx,
		func(ctx context.Context) (uint64, error) { return o.GetVersion(ctx, doc) },
		func(ctx context.Context, v uint64) (document.Block, error) { return o.GetBlock(ctx, doc, v) },
	)
}
