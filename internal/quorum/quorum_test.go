package quorum

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"deje/internal/errs"
	"deje/internal/identity"
)

type fakeParent struct {
	author     string
	threshType string
	version    *uint64
	content    string
}

func (p *fakeParent) HashContent() ([]byte, error) { return []byte(p.content), nil }
func (p *fakeParent) AuthorName() string           { return p.author }
func (p *fakeParent) ThresholdType() string        { return p.threshType }
func (p *fakeParent) ProposedVersion() *uint64      { return p.version }

type fakeDoc struct {
	version      uint64
	thresholds   map[string]int
	participants []identity.Identity
	transmitted  []string
}

func (d *fakeDoc) Version() uint64                              { return d.version }
func (d *fakeDoc) Thresholds() (map[string]int, error)          { return d.thresholds, nil }
func (d *fakeDoc) Participants() ([]identity.Identity, error)   { return d.participants, nil }
func (d *fakeDoc) Transmit(mtype string, _ map[string]any, _ []string, _ bool) error {
	d.transmitted = append(d.transmitted, mtype)
	return nil
}

func newTestDoc(participants ...identity.Identity) *fakeDoc {
	return &fakeDoc{
		thresholds:   map[string]int{"read": 1, "write": 2},
		participants: participants,
	}
}

func TestSignAccumulatesUntilThreshold(t *testing.T) {
	alice, err := identity.New("alice", "loc1")
	require.NoError(t, err)
	bob, err := identity.New("bob", "loc2")
	require.NoError(t, err)

	doc := newTestDoc(alice, bob)
	space := NewSpace()
	parent := &fakeParent{author: "alice", threshType: "write", content: "x"}
	q := New(parent, doc, space)

	require.False(t, q.Done())
	require.NoError(t, q.Sign(alice, ""))
	require.False(t, q.Done())
	require.NoError(t, q.Sign(bob, ""))
	require.True(t, q.Done())
}

func TestSignRejectsBadSignature(t *testing.T) {
	alice, err := identity.New("alice", "loc1")
	require.NoError(t, err)
	doc := newTestDoc(alice)
	space := NewSpace()
	q := New(&fakeParent{author: "alice", threshType: "write", content: "x"}, doc, space)

	err = q.Sign(alice, "not-a-valid-blob")
	require.ErrorIs(t, err, errs.ErrBadSignatureFormat)
}

func TestDoubleSigningAcrossCompetingQuorums(t *testing.T) {
	alice, err := identity.New("alice", "loc1")
	require.NoError(t, err)
	doc := newTestDoc(alice)
	space := NewSpace()

	q1 := New(&fakeParent{author: "alice", threshType: "write", content: "a"}, doc, space)
	q2 := New(&fakeParent{author: "alice", threshType: "write", content: "b"}, doc, space)

	require.NoError(t, q1.Sign(alice, ""))
	err = q2.Sign(alice, "")
	require.True(t, errors.Is(err, errs.ErrDoubleSigning))
}

func TestOutdatedByDocumentVersion(t *testing.T) {
	alice, err := identity.New("alice", "loc1")
	require.NoError(t, err)
	doc := newTestDoc(alice)
	space := NewSpace()
	v := uint64(0)
	q := New(&fakeParent{author: "alice", threshType: "write", content: "x", version: &v}, doc, space)

	require.False(t, q.Outdated())
	doc.version = 1
	require.True(t, q.Outdated())
	require.False(t, q.Competing())
}

func TestByHashFindsRegisteredQuorum(t *testing.T) {
	alice, err := identity.New("alice", "loc1")
	require.NoError(t, err)
	doc := newTestDoc(alice)
	space := NewSpace()
	q := New(&fakeParent{author: "alice", threshType: "write", content: "findme"}, doc, space)

	hash, err := q.Hash()
	require.NoError(t, err)

	found, ok := space.ByHash(hash)
	require.True(t, ok)
	require.Same(t, q, found)
}

func TestTransmitCompleteIsIdempotent(t *testing.T) {
	alice, err := identity.New("alice", "loc1")
	require.NoError(t, err)
	doc := newTestDoc(alice)
	space := NewSpace()
	q := New(&fakeParent{author: "alice", threshType: "write", content: "x"}, doc, space)

	require.NoError(t, q.TransmitComplete())
	require.NoError(t, q.TransmitComplete())
	require.Len(t, doc.transmitted, 1)
}
