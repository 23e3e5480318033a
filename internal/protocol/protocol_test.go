package protocol

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"deje/internal/document"
	"deje/internal/handler/delta"
	"deje/internal/identity"
	"deje/internal/resource"
)

// hub is an in-memory switchboard: Send on a boundTransport looks up
// the destination's registered onMessage callback and invokes it
// synchronously, so a test can drive a full handshake without a
// background Run loop or timing assumptions.
type hub struct {
	mu        sync.Mutex
	listeners map[string]func(from string, raw []byte)
}

func newHub() *hub { return &hub{listeners: make(map[string]func(from string, raw []byte))} }

type boundTransport struct {
	self string
	hub  *hub
}

func (b *boundTransport) Send(_ context.Context, address string, msg []byte) error {
	b.hub.mu.Lock()
	fn, ok := b.hub.listeners[address]
	b.hub.mu.Unlock()
	if !ok {
		return nil
	}
	fn(b.self, msg)
	return nil
}

func (b *boundTransport) Listen(ctx context.Context, onMessage func(from string, raw []byte)) error {
	b.hub.mu.Lock()
	b.hub.listeners[b.self] = onMessage
	b.hub.mu.Unlock()
	<-ctx.Done()
	return ctx.Err()
}

// wirePeer builds an Owner at addr, directly dispatching every message
// the hub delivers to it (bypassing Enqueue/Run's goroutine, for
// deterministic synchronous tests).
func wirePeer(self identity.Identity, cache *identity.Cache, h *hub) *Owner {
	addr := self.Location
	tr := &boundTransport{self: addr, hub: h}
	owner := New(self, cache, tr)
	h.mu.Lock()
	h.listeners[addr] = func(from string, raw []byte) {
		_ = owner.Dispatch(context.Background(), raw, from)
	}
	h.mu.Unlock()
	return owner
}

func TestDispatchRejectsMalformedMessage(t *testing.T) {
	self, err := identity.New("alice", "addr-alice")
	require.NoError(t, err)
	owner := wirePeer(self, identity.NewCache(), newHub())
	err = owner.Dispatch(context.Background(), []byte("not json"), "addr-bob")
	require.Error(t, err)
}

func TestDispatchRejectsUnknownType(t *testing.T) {
	self, err := identity.New("alice", "addr-alice")
	require.NoError(t, err)
	owner := wirePeer(self, identity.NewCache(), newHub())
	err = owner.Dispatch(context.Background(), []byte(`{"type":"deje-bogus"}`), "addr-bob")
	require.Error(t, err)
}

func TestTwoPartyWriteQuorumHandshake(t *testing.T) {
	ctx := context.Background()
	h := newHub()

	alice, err := identity.New("alice", "addr-alice")
	require.NoError(t, err)
	bob, err := identity.New("bob", "addr-bob")
	require.NoError(t, err)

	aliceCache := identity.NewCache()
	aliceCache.Put(alice)
	aliceCache.Put(bob)
	bobCache := identity.NewCache()
	bobCache.Put(alice)
	bobCache.Put(bob)

	aliceOwner := wirePeer(alice, aliceCache, h)
	bobOwner := wirePeer(bob, bobCache, h)

	policy := delta.Policy{
		Participants: []identity.Identity{alice, bob},
		Writers:      map[string]bool{"alice": true, "bob": true},
		Thresholds:   map[string]int{"read": 1, "write": 2},
	}

	aliceHandler := delta.New(policy, nil)
	aliceDoc := document.New(document.Config{
		Name: "notes", Self: alice, Identities: aliceCache, Handler: aliceHandler, Owner: aliceOwner,
	})
	aliceHandler.SetHost(aliceDoc)
	aliceOwner.AddDocument(aliceDoc)

	bobHandler := delta.New(policy, nil)
	bobDoc := document.New(document.Config{
		Name: "notes", Self: bob, Identities: bobCache, Handler: bobHandler, Owner: bobOwner,
	})
	bobHandler.SetHost(bobDoc)
	bobOwner.AddDocument(bobDoc)

	res, err := resource.New("/notes", "text/plain", []byte("hi"), nil)
	require.NoError(t, err)
	require.NoError(t, aliceDoc.AddResource(ctx, res))
	res2, err := resource.New("/notes", "text/plain", []byte("hi"), nil)
	require.NoError(t, err)
	require.NoError(t, bobDoc.AddResource(ctx, res2))

	content, err := json.Marshal([]delta.Op{{Path: "/notes", Property: "content", Value: []byte("updated")}})
	require.NoError(t, err)

	ev, q, err := aliceDoc.ProposeEvent(ctx, content)
	require.NoError(t, err)
	require.NotNil(t, ev)
	require.NotNil(t, q)

	require.Eventually(t, func() bool {
		return aliceDoc.Version() == 1 && bobDoc.Version() == 1
	}, time.Second, time.Millisecond)

	aliceRes, _ := aliceDoc.GetResource("/notes")
	bobRes, _ := bobDoc.GetResource("/notes")
	require.Equal(t, []byte("updated"), aliceRes.Content())
	require.Equal(t, []byte("updated"), bobRes.Content())

	remoteVersion, err := aliceOwner.GetVersion(ctx, aliceDoc)
	require.NoError(t, err)
	require.Equal(t, uint64(1), remoteVersion)

	block, err := aliceOwner.GetBlock(ctx, aliceDoc, 0)
	require.NoError(t, err)
	require.Equal(t, "alice", block.Author)
}

// TestSubscribeHandshakeAddsSubscriberOnAcceptor drives a read quorum
// across the wire: carol is a registered subscriber (read access) but
// not a participant, so her own signature never counts toward the read
// threshold (Quorum.sigValid requires participancy) and her Subscribe
// call must transmit deje-lock-acquire rather than complete locally.
// bob, the sole participant, receives it via onLockAcquire ->
// ExternalSubscribe, signs himself, and — since that alone meets the
// read threshold of 1 — must enact locally, adding carol to his
// subscriber set without any further round trip.
func TestSubscribeHandshakeAddsSubscriberOnAcceptor(t *testing.T) {
	ctx := context.Background()
	h := newHub()

	carol, err := identity.New("carol", "addr-carol")
	require.NoError(t, err)
	bob, err := identity.New("bob", "addr-bob")
	require.NoError(t, err)

	carolCache := identity.NewCache()
	carolCache.Put(carol)
	carolCache.Put(bob)
	bobCache := identity.NewCache()
	bobCache.Put(carol)
	bobCache.Put(bob)

	carolOwner := wirePeer(carol, carolCache, h)
	bobOwner := wirePeer(bob, bobCache, h)

	policy := delta.Policy{
		Participants: []identity.Identity{bob},
		Subscribers:  []identity.Identity{carol},
		Writers:      map[string]bool{"bob": true},
		Thresholds:   map[string]int{"read": 1, "write": 1},
	}

	carolHandler := delta.New(policy, nil)
	carolDoc := document.New(document.Config{
		Name: "notes", Self: carol, Identities: carolCache, Handler: carolHandler, Owner: carolOwner,
	})
	carolHandler.SetHost(carolDoc)
	carolOwner.AddDocument(carolDoc)

	bobHandler := delta.New(policy, nil)
	bobDoc := document.New(document.Config{
		Name: "notes", Self: bob, Identities: bobCache, Handler: bobHandler, Owner: bobOwner,
	})
	bobHandler.SetHost(bobDoc)
	bobOwner.AddDocument(bobDoc)

	_, _, err = carolDoc.Subscribe(ctx)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		for _, name := range bobDoc.Subscribers() {
			if name == "carol" {
				return true
			}
		}
		return false
	}, time.Second, time.Millisecond)
}
