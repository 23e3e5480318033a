// Package document implements the Document: a named resource map, an
// ordered event log (the "blockchain"), a handler-derived policy, and
// the QuorumSpace coordinating in-flight proposals over that log. See
// original_source/deje/document.py for the original layout; this port
// unifies the original's several overlapping history models onto the
// flat _blockchain + initial-snapshot model the original itself favors
// in its protocol and doctest coverage (see DESIGN.md, Open Questions).
package document

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"deje/internal/action"
	"deje/internal/errs"
	"deje/internal/handler"
	"deje/internal/handler/delta"
	"deje/internal/identity"
	"deje/internal/quorum"
	"deje/internal/resource"
)

// Broadcaster is the slice of Owner a Document needs to reach the
// network: a named-document broadcast primitive. internal/protocol's
// Owner implements this implicitly; a Document with no Broadcaster is
// a standalone single-replica document (writes enact immediately, no
// wire traffic), matching the original's "if self.owner: ... else:
// enact directly" branch.
type Broadcaster interface {
	Transmit(docName, mtype string, properties map[string]any, targets []string, includeParticipants bool) error
}

// Block is a serialized, quorum-signed Event at a specific log index.
type Block struct {
	Author     string            `json:"author"`
	Content    json.RawMessage   `json:"content"`
	Version    uint64            `json:"version"`
	Signatures map[string]string `json:"signatures"`
}

// File is the on-disk/wire document format from spec.md §6.
type File struct {
	Original struct {
		Hash      *string                        `json:"hash"`
		Resources map[string]resource.Serialized `json:"resources"`
	} `json:"original"`
	Events []struct {
		Content json.RawMessage `json:"content"`
		Author  string          `json:"author"`
		Version uint64          `json:"version"`
	} `json:"events"`
}

// Document is a single cooperatively-edited document.
type Document struct {
	mu sync.RWMutex

	name        string
	self        identity.Identity
	identities  *identity.Cache
	handler     handler.Handler
	owner       Broadcaster
	space       *quorum.QuorumSpace
	resources   map[string]*resource.Resource
	initial     map[string]resource.Serialized // last-freeze (or construction) snapshot; see Serialize/Freeze
	events      []*action.Event
	blocks      []Block
	subscribers map[string]bool

	pendingSignatures map[string]string
}

// Config collects the fixed inputs to New.
type Config struct {
	Name       string
	Self       identity.Identity
	Identities *identity.Cache
	Handler    handler.Handler
	Owner      Broadcaster // nil for a standalone, unreplicated document
}

// New creates an empty Document.
func New(cfg Config) *Document {
	d := &Document{
		name:        cfg.Name,
		self:        cfg.Self,
		identities:  cfg.Identities,
		handler:     cfg.Handler,
		owner:       cfg.Owner,
		resources:   make(map[string]*resource.Resource),
		initial:     make(map[string]resource.Serialized),
		subscribers: make(map[string]bool),
	}
	d.space = quorum.NewSpace()
	return d
}

func (d *Document) Name() string { return d.name }

// Version is the number of applied events, per spec.md's definition.
func (d *Document) Version() uint64 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return uint64(len(d.events))
}

// Identity returns the identity this replica acts as locally.
func (d *Document) Identity() identity.Identity { return d.self }

// Resource management

// AddResource inserts res, notifying the handler and binding res back
// to d so its setters can notify on future mutation. Because this is a
// direct host-level mutation rather than a logged event, it also
// updates the initial snapshot Serialize emits — only EventApply
// (invoked through the log) is allowed to diverge resources from
// initial.
func (d *Document) AddResource(ctx context.Context, res *resource.Resource) error {
	d.mu.Lock()
	d.resources[res.Path()] = res
	d.initial[res.Path()] = res.Serialize()
	d.mu.Unlock()
	res.SetDocument(d)
	return d.handler.OnResourceUpdate(ctx, res.Path(), "add", res.Path())
}

// GetResource implements handler/delta.ResourceHost.
func (d *Document) GetResource(path string) (*resource.Resource, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	res, ok := d.resources[path]
	return res, ok
}

// DelResource removes the resource at path, notifying the handler
// first. Like AddResource, this is a direct host-level mutation and
// keeps the initial snapshot in lockstep with resources.
func (d *Document) DelResource(ctx context.Context, path string) error {
	if err := d.handler.OnResourceUpdate(ctx, path, "delete", path); err != nil {
		return err
	}
	d.mu.Lock()
	delete(d.resources, path)
	delete(d.initial, path)
	d.mu.Unlock()
	return nil
}

// Resources returns a snapshot copy of the resource map.
func (d *Document) Resources() map[string]*resource.Resource {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make(map[string]*resource.Resource, len(d.resources))
	for k, v := range d.resources {
		out[k] = v
	}
	return out
}

// OnResourceUpdate implements resource.ChangeNotifier. A path change
// re-keys the resource map under the new path before the handler is told.
func (d *Document) OnResourceUpdate(path, propName, oldPath string) error {
	if propName == "path" && oldPath != path {
		d.mu.Lock()
		if res, ok := d.resources[oldPath]; ok {
			delete(d.resources, oldPath)
			d.resources[path] = res
		}
		d.mu.Unlock()
	}
	return d.handler.OnResourceUpdate(context.Background(), path, propName, oldPath)
}

// Handler-derived properties

func (d *Document) Participants() ([]identity.Identity, error) {
	return d.handler.QuorumParticipants(context.Background())
}

func (d *Document) Thresholds() (map[string]int, error) {
	return d.handler.QuorumThresholds(context.Background())
}

func (d *Document) RequestProtocols(ctx context.Context) ([]string, error) {
	return d.handler.RequestProtocols(ctx)
}

func (d *Document) CanRead(ctx context.Context, who identity.Identity) (bool, error) {
	return d.handler.CanRead(ctx, who)
}

func (d *Document) CanWrite(ctx context.Context, who identity.Identity) (bool, error) {
	return d.handler.CanWrite(ctx, who)
}

// Subscribers

// AddSubscriber implements action.Host.
func (d *Document) AddSubscriber(name string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.subscribers[name] = true
}

// Subscribers returns the names of every current subscriber.
func (d *Document) Subscribers() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]string, 0, len(d.subscribers))
	for name := range d.subscribers {
		out = append(out, name)
	}
	return out
}

// Transmit implements quorum.DocumentContext and is how Document
// reaches the network, via its Broadcaster. A standalone document (no
// owner) silently drops broadcasts — there is no one to send to.
func (d *Document) Transmit(mtype string, properties map[string]any, targets []string, includeParticipants bool) error {
	if d.owner == nil {
		return nil
	}
	return d.owner.Transmit(d.name, mtype, properties, targets, includeParticipants)
}

// Events / blockchain

// TestEvent implements action.Host by delegating to the handler.
func (d *Document) TestEvent(ctx context.Context, author string, content json.RawMessage) (bool, error) {
	return d.handler.EventTest(ctx, content, author)
}

// ApplyEvent implements action.Host by delegating to the handler.
func (d *Document) ApplyEvent(ctx context.Context, author string, content json.RawMessage) error {
	return d.handler.EventApply(ctx, content, author)
}

// HasEvent implements action.Host: e is already part of the log.
func (d *Document) HasEvent(e *action.Event) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, existing := range d.events {
		if existing == e {
			return true
		}
	}
	return false
}

// AppendEvent implements action.Host: appends e and the signatures
// most recently staged via enact, producing one new Block.
func (d *Document) AppendEvent(e *action.Event) {
	d.mu.Lock()
	defer d.mu.Unlock()
	sigs := d.pendingSignatures
	d.pendingSignatures = nil
	d.events = append(d.events, e)
	d.blocks = append(d.blocks, Block{
		Author:     e.Author,
		Content:    e.Content,
		Version:    e.Version,
		Signatures: sigs,
	})
}

// enact stages sigs (the quorum's valid signatures, or nil for a
// solo/unreplicated apply) and enacts ev, producing a Block.
func (d *Document) enact(ctx context.Context, ev *action.Event, sigs map[string]string) error {
	d.mu.Lock()
	d.pendingSignatures = sigs
	d.mu.Unlock()
	return ev.Enact(ctx, d)
}

// GetBlock returns the serialized block at version, for deje-get-block
// responses and for operator export tooling.
func (d *Document) GetBlock(version uint64) (Block, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if version >= uint64(len(d.blocks)) {
		return Block{}, fmt.Errorf("block %d: out of range (version %d)", version, len(d.blocks))
	}
	return d.blocks[version], nil
}

// Quorum wiring

// NewQuorum creates a Quorum over parent, registered in d's QuorumSpace.
func (d *Document) NewQuorum(parent quorum.Parent) *quorum.Quorum {
	return quorum.New(parent, d, d.space)
}

// QuorumByHash locates a still-registered Quorum by its parent's
// content hash, for routing deje-lock-acquired/-complete messages.
func (d *Document) QuorumByHash(hash string) (*quorum.Quorum, bool) {
	return d.space.ByHash(hash)
}

// Competing lists every Quorum in d's space that is neither done nor
// outdated.
func (d *Document) Competing() []*quorum.Quorum {
	return d.space.Competing()
}

// ProposeEvent is the local write entrypoint (Document.event in the
// original): validates write permission and content, then either
// enacts immediately (no owner — a standalone replica) or signs
// locally and broadcasts deje-lock-acquire for the others to
// countersign.
func (d *Document) ProposeEvent(ctx context.Context, content json.RawMessage) (*action.Event, *quorum.Quorum, error) {
	can, err := d.CanWrite(ctx, d.self)
	if err != nil {
		return nil, nil, err
	}
	if !can {
		return nil, nil, errs.ErrPermissionDenied
	}

	ev := action.NewEvent(d.self.Name, content, d.Version())
	ok, err := ev.Test(ctx, d)
	if err != nil {
		return nil, nil, err
	}
	if !ok {
		return nil, nil, errs.ErrInvalidAction
	}

	q := d.NewQuorum(ev)

	if d.owner == nil {
		if err := d.enact(ctx, ev, nil); err != nil {
			return nil, nil, err
		}
		return ev, q, nil
	}

	if err := q.Sign(d.self, ""); err != nil {
		return nil, nil, err
	}

	if q.Done() {
		if err := d.enact(ctx, ev, q.SignaturesMap()); err != nil {
			return nil, nil, err
		}
		if err := q.TransmitComplete(); err != nil {
			return nil, nil, err
		}
		return ev, q, nil
	}

	err = d.Transmit("deje-lock-acquire", map[string]any{"content": ev.Serialize()}, nil, true)
	return ev, q, err
}

// ExternalEvent handles an inbound deje-lock-acquire whose inner
// content is a proposed Event: validates write permission and content
// against the live handler, then signs locally on behalf of this
// replica (the caller is responsible for transmitting the resulting
// deje-lock-acquired back to the proposer).
func (d *Document) ExternalEvent(ctx context.Context, author string, content json.RawMessage, version uint64) (*action.Event, *quorum.Quorum, error) {
	who, ok := d.identities.FindByName(author)
	if !ok {
		who = identity.NewPublic(author, "", nil)
	}
	can, err := d.CanWrite(ctx, who)
	if err != nil {
		return nil, nil, err
	}
	if !can {
		return nil, nil, errs.ErrPermissionDenied
	}

	ev := action.NewEvent(author, content, version)
	ok2, err := ev.Test(ctx, d)
	if err != nil {
		return nil, nil, err
	}
	if !ok2 {
		return nil, nil, errs.ErrInvalidAction
	}

	q := d.NewQuorum(ev)
	if err := q.Sign(d.self, ""); err != nil {
		return nil, nil, err
	}
	return ev, q, nil
}

// EnactComplete applies ev using the full signature set carried by a
// deje-lock-complete message (or by a locally-completed Quorum).
func (d *Document) EnactComplete(ctx context.Context, ev *action.Event, sigs map[string]string) error {
	if ev.IsDone(d) {
		return nil
	}
	return d.enact(ctx, ev, sigs)
}

// Subscribe is the local read entrypoint (Document.subscribe in the
// original).
func (d *Document) Subscribe(ctx context.Context) (*action.ReadRequest, *quorum.Quorum, error) {
	can, err := d.CanRead(ctx, d.self)
	if err != nil {
		return nil, nil, err
	}
	if !can {
		return nil, nil, errs.ErrPermissionDenied
	}

	rr := action.NewReadRequest(d.self.Name)
	q := d.NewQuorum(rr)

	if d.owner == nil {
		if err := rr.Enact(d); err != nil {
			return nil, nil, err
		}
		return rr, q, nil
	}

	if err := q.Sign(d.self, ""); err != nil {
		return nil, nil, err
	}
	if q.Done() {
		if err := rr.Enact(d); err != nil {
			return nil, nil, err
		}
		if err := q.TransmitComplete(); err != nil {
			return nil, nil, err
		}
		return rr, q, nil
	}

	err = d.Transmit("deje-lock-acquire", map[string]any{"content": rr.Serialize()}, nil, true)
	return rr, q, err
}

// ExternalSubscribe handles an inbound deje-lock-acquire whose inner
// content is a subscribe request from subscriberName. unique is the
// proposer's request nonce, carried over the wire — reusing it here is
// what lets this replica's reconstructed ReadRequest hash identically
// to the proposer's, so the two sides' Quorums (looked up by content
// hash) are the same logical vote. Mirrors the original's
// "rr.sign(self.identity); rr.update()": signing locally and, when
// that alone reaches the read threshold (the common case — read
// thresholds are usually 1 and the acceptor is always a participant),
// enacting immediately rather than waiting on a round trip.
func (d *Document) ExternalSubscribe(ctx context.Context, subscriberName string, unique uint32) (*action.ReadRequest, *quorum.Quorum, error) {
	who, ok := d.identities.FindByName(subscriberName)
	if !ok {
		who = identity.NewPublic(subscriberName, "", nil)
	}
	can, err := d.CanRead(ctx, who)
	if err != nil {
		return nil, nil, err
	}
	if !can {
		return nil, nil, errs.ErrPermissionDenied
	}

	rr := action.NewReadRequestUnique(subscriberName, unique)
	q := d.NewQuorum(rr)
	if err := q.Sign(d.self, ""); err != nil {
		return nil, nil, err
	}
	if q.Done() {
		if err := rr.Enact(d); err != nil {
			return nil, nil, err
		}
		if err := q.TransmitComplete(); err != nil {
			return nil, nil, err
		}
	}
	return rr, q, nil
}

// Freeze replaces the initial snapshot with a deep copy of current
// resources and discards the event log, per spec.md's freeze law.
// After Freeze, Version() == 0, and Serialize's "original" block is
// this new snapshot rather than the one from construction/load.
func (d *Document) Freeze() {
	d.mu.Lock()
	defer d.mu.Unlock()
	initial := make(map[string]resource.Serialized, len(d.resources))
	for path, res := range d.resources {
		initial[path] = res.Serialize()
	}
	d.initial = initial
	d.events = nil
	d.blocks = nil
}

// Sync resolves the current remote version via getVersion, then
// applies every missing block in order via getBlock. Each block is
// independently re-verified before it is enacted: each signature is
// checked under its claimed identity's known public key and the block's
// recomputed content hash, and the signatures that verify must reach
// the write threshold (others are not counted). A block that fails verification aborts Sync
// immediately rather than applying a partial, out-of-order suffix.
func (d *Document) Sync(
	ctx context.Context,
	getVersion func(context.Context) (uint64, error),
	getBlock func(context.Context, uint64) (Block, error),
) error {
	remote, err := getVersion(ctx)
	if err != nil {
		return fmt.Errorf("sync get-version: %w", err)
	}

	for v := d.Version(); v < remote; v++ {
		block, err := getBlock(ctx, v)
		if err != nil {
			return fmt.Errorf("sync get-block %d: %w", v, err)
		}
		if err := d.applyVerifiedBlock(ctx, block); err != nil {
			return fmt.Errorf("sync verify block %d: %w", v, err)
		}
	}
	return nil
}

// applyVerifiedBlock re-verifies block's signatures before enacting
// it, per the catch-up verify-then-apply decision in DESIGN.md.
func (d *Document) applyVerifiedBlock(ctx context.Context, block Block) error {
	ev := action.NewEvent(block.Author, block.Content, block.Version)
	hash, err := action.ContentHashOf(ev)
	if err != nil {
		return err
	}

	valid := 0
	for signer, sig := range block.Signatures {
		who, ok := d.identities.FindByName(signer)
		if !ok {
			continue
		}
		if quorum.VerifySignature(who, hash, sig) {
			valid++
		}
	}

	thresholds, err := d.Thresholds()
	if err != nil {
		return err
	}
	if valid < thresholds["write"] {
		return errs.ErrBlockVerificationFailed
	}

	return d.enact(ctx, ev, block.Signatures)
}

// Serialize produces the wire/file form from spec.md §6: the frozen
// initial snapshot (as of construction, load, or the last Freeze —
// never current, post-replay state) plus the events applied since.
func (d *Document) Serialize() File {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var f File
	f.Original.Resources = make(map[string]resource.Serialized, len(d.initial))
	for path, s := range d.initial {
		f.Original.Resources[path] = s
	}
	f.Events = make([]struct {
		Content json.RawMessage `json:"content"`
		Author  string          `json:"author"`
		Version uint64          `json:"version"`
	}, len(d.events))
	for i, e := range d.events {
		f.Events[i].Content = e.Content
		f.Events[i].Author = e.Author
		f.Events[i].Version = e.Version
	}
	return f
}

// Load reconstructs resources and replays events from f into a fresh
// Document built from cfg. Replay goes through the handler's
// EventApply directly (not through quorum verification — a
// locally-loaded file is implicitly trusted, unlike a network block).
// A *delta.Handler in cfg is bound to the new Document before replay.
func Load(ctx context.Context, cfg Config, f File) (*Document, error) {
	d := New(cfg)
	if dh, ok := cfg.Handler.(*delta.Handler); ok {
		dh.SetHost(d)
	}
	for path, s := range f.Original.Resources {
		res, err := resource.FromSerialized(s)
		if err != nil {
			return nil, fmt.Errorf("load resource %s: %w", path, err)
		}
		if err := d.AddResource(ctx, res); err != nil {
			return nil, fmt.Errorf("add resource %s: %w", path, err)
		}
	}
	for _, ev := range f.Events {
		e := action.NewEvent(ev.Author, ev.Content, ev.Version)
		if err := d.enact(ctx, e, nil); err != nil {
			return nil, fmt.Errorf("replay event at version %d: %w", ev.Version, err)
		}
	}
	return d, nil
}
