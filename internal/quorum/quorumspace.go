package quorum

import (
	"fmt"
	"sync"

	"deje/internal/errs"
	"deje/internal/identity"
)

// QuorumSpace enforces spec.md §4.4's single rule: no identity may hold
// a live signature on more than one competing Quorum at once. It also
// keeps every Quorum it has ever seen, searchable by content hash, so inbound
// deje-lock-acquire/-acquired/-complete messages (which carry only a
// hash) can be routed to the right in-memory Quorum.
//
// Grounded on original_source/deje/quorumspace.py's QuorumSpace/
// QSTransaction, generalized from a single-document free function into
// a type so that register/transaction can be called without a package-
// level document singleton.
type QuorumSpace struct {
	mu sync.Mutex

	byAuthor map[string]*Quorum // identity name -> quorum currently held
	all      []*Quorum          // every quorum ever registered, for hash lookup
}

// NewSpace creates an empty QuorumSpace.
func NewSpace() *QuorumSpace {
	return &QuorumSpace{byAuthor: make(map[string]*Quorum)}
}

// register records q as known to the space, making it reachable via
// ByHash. Called once, by New, at Quorum construction.
func (qs *QuorumSpace) register(q *Quorum) {
	qs.mu.Lock()
	defer qs.mu.Unlock()
	qs.all = append(qs.all, q)
}

// ByHash returns the registered Quorum whose parent currently hashes to
// hash, whether or not it is still competing (a done Quorum must stay
// reachable for the lock-complete that follows). Later registrations
// are preferred over earlier ones sharing the same hash.
func (qs *QuorumSpace) ByHash(hash string) (*Quorum, bool) {
	qs.mu.Lock()
	candidates := append([]*Quorum(nil), qs.all...)
	qs.mu.Unlock()

	for i := len(candidates) - 1; i >= 0; i-- {
		q := candidates[i]
		h, err := q.Hash()
		if err != nil {
			continue
		}
		if h == hash {
			return q, true
		}
	}
	return nil, false
}

// Competing returns every registered Quorum that is neither done nor
// outdated.
func (qs *QuorumSpace) Competing() []*Quorum {
	qs.mu.Lock()
	candidates := append([]*Quorum(nil), qs.all...)
	qs.mu.Unlock()

	out := make([]*Quorum, 0, len(candidates))
	for _, q := range candidates {
		if q.Competing() {
			out = append(out, q)
		}
	}
	return out
}

// isFree reports whether id holds no live signature on a still-
// competing quorum. An id that has never signed, or whose held quorum
// has since resolved (Done or Outdated), is free again.
func (qs *QuorumSpace) isFree(id identity.Identity) bool {
	held, ok := qs.byAuthor[id.Name]
	if !ok {
		return true
	}
	return !held.Competing()
}

// assertFree returns ErrDoubleSigning if id is not free.
func (qs *QuorumSpace) assertFree(id identity.Identity) error {
	if !qs.isFree(id) {
		return fmt.Errorf("%w: %s", errs.ErrDoubleSigning, id.Name)
	}
	return nil
}

// transaction is the Go equivalent of QSTransaction: it asserts id is
// free, runs store, and — only if store succeeds — records q as the
// quorum id now holds. Grounded on QSTransaction's __enter__/__exit__
// pairing, collapsed into a single call since Go has no context-manager
// protocol.
func (qs *QuorumSpace) transaction(id identity.Identity, q *Quorum, store func() error) error {
	qs.mu.Lock()
	defer qs.mu.Unlock()

	if err := qs.assertFree(id); err != nil {
		return err
	}
	if err := store(); err != nil {
		return err
	}
	qs.byAuthor[id.Name] = q
	return nil
}
