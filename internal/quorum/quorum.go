// Package quorum implements the signature accumulator for one Action
// (Quorum) and the per-document index that enforces one active quorum
// per signer (QuorumSpace), per spec.md §4.3-§4.4.
package quorum

import (
	"fmt"

	"deje/internal/canon"
	"deje/internal/identity"
)

// Parent is the slice of an Action a Quorum needs: its canonical
// hashable content, its author, its threshold type, and — for Events
// only — the version it was proposed against (nil for ReadRequest,
// which is never outdated by document progress). internal/action's
// Event and ReadRequest satisfy this implicitly; quorum never imports
// action, which is what keeps the two packages from cycling (see
// DESIGN.md, "Cycles").
type Parent interface {
	HashContent() ([]byte, error)
	AuthorName() string
	ThresholdType() string
	ProposedVersion() *uint64
}

// DocumentContext is the slice of Document a Quorum needs: its
// current version (for outdated checks), its handler-derived
// thresholds/participants, and a way to broadcast. Document implements
// this implicitly.
type DocumentContext interface {
	Version() uint64
	Thresholds() (map[string]int, error)
	Participants() ([]identity.Identity, error)
	Transmit(mtype string, properties map[string]any, targets []string, includeParticipants bool) error
}

type sigEntry struct {
	identity  identity.Identity
	signature string
}

// Quorum accumulates signatures over one Action (its parent).
type Quorum struct {
	parent     Parent
	document   DocumentContext
	threshType string
	signatures map[string]sigEntry
	space      *QuorumSpace

	transmittedComplete bool
}

// New creates a Quorum for parent and registers it with doc's
// QuorumSpace, matching the Python constructor's self-registration.
func New(parent Parent, doc DocumentContext, space *QuorumSpace) *Quorum {
	q := &Quorum{
		parent:     parent,
		document:   doc,
		threshType: parent.ThresholdType(),
		signatures: make(map[string]sigEntry),
		space:      space,
	}
	space.register(q)
	return q
}

// Hash is the content hash of the parent Action.
func (q *Quorum) Hash() (string, error) {
	content, err := q.parent.HashContent()
	if err != nil {
		return "", fmt.Errorf("hash content: %w", err)
	}
	return canon.ContentHash(canon.Raw(content))
}

// Sign validates and stores a signature for identity. If signature is
// empty and identity can sign, one is generated over (expiry ‖ hash).
// Re-signing with a later expiry is allowed — stored signatures are
// simply overwritten. A read-type quorum, or a re-sign by an identity
// that already holds a valid signature here, bypasses QuorumSpace
// coordination entirely (no collision is possible); any other write
// sign goes through a QuorumSpace transaction that rejects it with
// ErrDoubleSigning if the identity already holds a live signature on a
// different competing Quorum.
func (q *Quorum) Sign(id identity.Identity, signature string) error {
	hash, err := q.Hash()
	if err != nil {
		return err
	}

	sig := signature
	if sig == "" {
		sig, err = generateSignature(id, hash, defaultDuration)
		if err != nil {
			return err
		}
	}
	if err := assertValidSignature(id, hash, sig); err != nil {
		return err
	}

	store := func() error {
		q.signatures[id.Name] = sigEntry{identity: id, signature: sig}
		return nil
	}

	if q.sigValid(id.Name) || q.threshType == "read" {
		return store()
	}
	return q.space.transaction(id, q, store)
}

// Clear drops all signatures.
func (q *Quorum) Clear() {
	q.signatures = make(map[string]sigEntry)
}

// sigValid reports whether the stored signature for author still
// verifies — i.e. the signer is a current participant and the
// signature hasn't expired.
func (q *Quorum) sigValid(author string) bool {
	entry, ok := q.signatures[author]
	if !ok {
		return false
	}
	participants, err := q.document.Participants()
	if err != nil {
		return false
	}
	isParticipant := false
	for _, p := range participants {
		if p.Name == author {
			isParticipant = true
			break
		}
	}
	if !isParticipant {
		return false
	}
	hash, err := q.Hash()
	if err != nil {
		return false
	}
	return validateSignature(entry.identity, hash, entry.signature)
}

// ValidSignatures returns the names of signers whose stored signature
// currently verifies.
func (q *Quorum) ValidSignatures() []string {
	names := make([]string, 0, len(q.signatures))
	for name := range q.signatures {
		if q.sigValid(name) {
			names = append(names, name)
		}
	}
	return names
}

// Completion is the number of valid signatures.
func (q *Quorum) Completion() int {
	return len(q.ValidSignatures())
}

// Threshold is the signature count required for q's threshold type.
func (q *Quorum) Threshold() (int, error) {
	thresholds, err := q.document.Thresholds()
	if err != nil {
		return 0, err
	}
	return thresholds[q.threshType], nil
}

// Done reports whether completion has reached the threshold.
func (q *Quorum) Done() bool {
	threshold, err := q.Threshold()
	if err != nil {
		return false
	}
	return q.Completion() >= threshold
}

// Outdated reports whether the parent's proposed version has been
// superseded by document progress. ReadRequests (nil version) are
// never outdated.
func (q *Quorum) Outdated() bool {
	version := q.parent.ProposedVersion()
	if version == nil {
		return false
	}
	return q.document.Version() > *version
}

// Competing reports whether this quorum is still live: neither done
// nor outdated.
func (q *Quorum) Competing() bool {
	return !q.Done() && !q.Outdated()
}

// Parent returns the Action this Quorum accumulates signatures for.
func (q *Quorum) Parent() Parent { return q.parent }

// ThreshType returns "read" or "write".
func (q *Quorum) ThreshType() string { return q.threshType }

// Transmit sends one deje-lock-acquired per named signer (or every
// currently-valid signer, if signers is nil) to the parent's author
// plus all participants.
func (q *Quorum) Transmit(signers []string) error {
	if signers == nil {
		signers = q.ValidSignatures()
	}
	hash, err := q.Hash()
	if err != nil {
		return err
	}
	for _, signer := range signers {
		entry, ok := q.signatures[signer]
		if !ok {
			continue
		}
		err := q.document.Transmit(
			"deje-lock-acquired",
			map[string]any{
				"signer":       signer,
				"content-hash": hash,
				"signature":    entry.signature,
			},
			[]string{q.parent.AuthorName()},
			true,
		)
		if err != nil {
			return err
		}
	}
	return nil
}

// TransmitComplete sends a single deje-lock-complete with every valid
// signature. Idempotent: subsequent calls are no-ops.
func (q *Quorum) TransmitComplete() error {
	if q.transmittedComplete {
		return nil
	}
	q.transmittedComplete = true

	hash, err := q.Hash()
	if err != nil {
		return err
	}
	return q.document.Transmit(
		"deje-lock-complete",
		map[string]any{
			"signatures":   q.sigsMap(),
			"content-hash": hash,
		},
		[]string{q.parent.AuthorName()},
		true,
	)
}

// SignaturesMap returns signer name -> signature blob for every
// currently-valid signature, for callers that need to persist a
// completed quorum's signatures alongside an enacted block.
func (q *Quorum) SignaturesMap() map[string]string {
	return q.sigsMap()
}

func (q *Quorum) sigsMap() map[string]string {
	out := make(map[string]string)
	for _, signer := range q.ValidSignatures() {
		out[signer] = q.signatures[signer].signature
	}
	return out
}
