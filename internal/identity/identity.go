// Package identity is the crypto/identity adapter: it wraps ed25519
// signing and verification behind the small surface the rest of deje
// needs (sign, verify, equality-by-name), and keeps a process-wide
// cache of known peers the way the teacher's internal/cluster keeps a
// Membership map keyed by node ID.
package identity

import (
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
	"sync"
)

// Identity is an opaque principal: a unique name, a transport address,
// and a public key. Two Identities are equal iff their names match —
// that equality is what QuorumSpace and participant-membership checks
// rely on.
type Identity struct {
	Name      string
	Location  string
	PublicKey ed25519.PublicKey

	privateKey ed25519.PrivateKey // nil for identities known only by public key
}

// New creates an Identity that can both sign and verify.
func New(name, location string) (Identity, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return Identity{}, fmt.Errorf("generate identity key: %w", err)
	}
	return Identity{Name: name, Location: location, PublicKey: pub, privateKey: priv}, nil
}

// NewPublic creates an Identity that can only verify, not sign — the
// shape every peer other than "ourselves" takes.
func NewPublic(name, location string, pub ed25519.PublicKey) Identity {
	return Identity{Name: name, Location: location, PublicKey: pub}
}

// CanSign reports whether the private half of the key is present.
func (id Identity) CanSign() bool {
	return id.privateKey != nil
}

// Sign produces a raw ed25519 signature over data. It fails if this
// Identity has no private key — i.e. it's a peer, not us.
func (id Identity) Sign(data []byte) ([]byte, error) {
	if !id.CanSign() {
		return nil, fmt.Errorf("identity %q has no private key", id.Name)
	}
	return ed25519.Sign(id.privateKey, data), nil
}

// Verify checks a raw signature over data under this Identity's public key.
func (id Identity) Verify(data, sig []byte) bool {
	if len(id.PublicKey) == 0 {
		return false
	}
	return ed25519.Verify(id.PublicKey, data, sig)
}

// Equal compares by name, per spec.
func (id Identity) Equal(other Identity) bool {
	return id.Name == other.Name
}

// Cache is a read-mostly, shared-per-Owner directory of known peer
// identities, analogous to the teacher's Membership but keyed by
// participant name rather than node ID — a document's handler names
// participants by name, and the core must resolve a name to a
// transport address before it can send anything.
type Cache struct {
	mu   sync.RWMutex
	byName map[string]Identity
}

// NewCache creates an empty Cache.
func NewCache() *Cache {
	return &Cache{byName: make(map[string]Identity)}
}

// Put adds or replaces an Identity, keyed by name.
func (c *Cache) Put(id Identity) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.byName[id.Name] = id
}

// FindByName looks up a cached Identity.
func (c *Cache) FindByName(name string) (Identity, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	id, ok := c.byName[name]
	return id, ok
}

// FindByLocation does a linear scan for the Identity at a transport
// address. Caches here are small (one per document's participant
// set), so this doesn't need an index.
func (c *Cache) FindByLocation(location string) (Identity, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, id := range c.byName {
		if id.Location == location {
			return id, true
		}
	}
	return Identity{}, false
}

// All returns a snapshot of every cached Identity.
func (c *Cache) All() []Identity {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Identity, 0, len(c.byName))
	for _, id := range c.byName {
		out = append(out, id)
	}
	return out
}
