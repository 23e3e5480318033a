package action

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"deje/internal/canon"
)

type fakeHost struct {
	events      []*Event
	subscribers []string
	testResult  bool
	testErr     error
	applyErr    error
	applied     []json.RawMessage
}

func (h *fakeHost) TestEvent(context.Context, string, json.RawMessage) (bool, error) {
	return h.testResult, h.testErr
}

func (h *fakeHost) ApplyEvent(_ context.Context, _ string, content json.RawMessage) error {
	if h.applyErr != nil {
		return h.applyErr
	}
	h.applied = append(h.applied, content)
	return nil
}

func (h *fakeHost) AppendEvent(e *Event) { h.events = append(h.events, e) }

func (h *fakeHost) HasEvent(e *Event) bool {
	for _, existing := range h.events {
		if existing == e {
			return true
		}
	}
	return false
}

func (h *fakeHost) AddSubscriber(name string) { h.subscribers = append(h.subscribers, name) }

func TestEventHashContentIsStableUnderFieldOrder(t *testing.T) {
	ev := NewEvent("alice", json.RawMessage(`{"b":1,"a":2}`), 3)
	reordered := NewEvent("alice", json.RawMessage(`{"a":2,"b":1}`), 3)
	h1, err := ev.HashContent()
	require.NoError(t, err)
	h2, err := reordered.HashContent()
	require.NoError(t, err)
	require.Equal(t, h1, h2)
}

func TestEventTestDelegatesToHost(t *testing.T) {
	host := &fakeHost{testResult: true}
	ev := NewEvent("alice", json.RawMessage(`{}`), 0)
	ok, err := ev.Test(context.Background(), host)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestEventEnactAppendsThenApplies(t *testing.T) {
	host := &fakeHost{}
	ev := NewEvent("alice", json.RawMessage(`{"x":1}`), 0)

	require.NoError(t, ev.Enact(context.Background(), host))
	require.Len(t, host.events, 1)
	require.Len(t, host.applied, 1)
	require.True(t, ev.IsDone(host))
}

func TestEventEnactIsIdempotent(t *testing.T) {
	host := &fakeHost{}
	ev := NewEvent("alice", json.RawMessage(`{}`), 0)

	require.NoError(t, ev.Enact(context.Background(), host))
	require.NoError(t, ev.Enact(context.Background(), host))
	require.Len(t, host.events, 1)
}

func TestEventEnactAppendsEvenWhenApplyFails(t *testing.T) {
	host := &fakeHost{applyErr: require.AnError}
	ev := NewEvent("alice", json.RawMessage(`{}`), 0)

	err := ev.Enact(context.Background(), host)
	require.Error(t, err)
	require.Len(t, host.events, 1)
}

func TestContentHashOfMatchesDirectHash(t *testing.T) {
	ev := NewEvent("alice", json.RawMessage(`{"a":1}`), 0)
	hash, err := ContentHashOf(ev)
	require.NoError(t, err)
	require.Len(t, hash, 40)

	data, err := ev.HashContent()
	require.NoError(t, err)
	direct, err := canon.ContentHash(canon.Raw(data))
	require.NoError(t, err)
	require.Equal(t, direct, hash)
}

func TestReadRequestTestAlwaysTrue(t *testing.T) {
	rr := NewReadRequest("bob")
	ok, err := rr.Test(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
}

func TestReadRequestEnactAddsSubscriberOnce(t *testing.T) {
	host := &fakeHost{}
	rr := NewReadRequest("bob")

	require.NoError(t, rr.Enact(host))
	require.NoError(t, rr.Enact(host))
	require.Equal(t, []string{"bob"}, host.subscribers)
	require.True(t, rr.IsDone())
}

func TestReadRequestProposedVersionIsNil(t *testing.T) {
	rr := NewReadRequest("bob")
	require.Nil(t, rr.ProposedVersion())
}
