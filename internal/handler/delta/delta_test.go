package delta

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"deje/internal/identity"
	"deje/internal/resource"
)

type fakeHost struct {
	resources map[string]*resource.Resource
}

func (h *fakeHost) GetResource(path string) (*resource.Resource, bool) {
	r, ok := h.resources[path]
	return r, ok
}

func newHandler(t *testing.T, policy Policy) (*Handler, *fakeHost) {
	t.Helper()
	host := &fakeHost{resources: make(map[string]*resource.Resource)}
	r, err := resource.New("/notes", "text/plain", []byte("hi"), nil)
	require.NoError(t, err)
	host.resources["/notes"] = r
	return New(policy, host), host
}

func opsJSON(t *testing.T, ops []Op) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(ops)
	require.NoError(t, err)
	return data
}

func TestEventTestRejectsUnknownResource(t *testing.T) {
	h, _ := newHandler(t, Policy{})
	ok, err := h.EventTest(context.Background(), opsJSON(t, []Op{{Path: "/missing", Property: "content"}}), "alice")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestEventTestRejectsUnknownProperty(t *testing.T) {
	h, _ := newHandler(t, Policy{})
	ok, err := h.EventTest(context.Background(), opsJSON(t, []Op{{Path: "/notes", Property: "bogus"}}), "alice")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestEventApplySetsResourceProperty(t *testing.T) {
	h, host := newHandler(t, Policy{})
	ops := []Op{{Path: "/notes", Property: "content", Value: []byte("updated")}}
	require.NoError(t, h.EventApply(context.Background(), opsJSON(t, ops), "alice"))
	require.Equal(t, []byte("updated"), host.resources["/notes"].Content())
}

func TestCanReadCanWrite(t *testing.T) {
	alice := identity.NewPublic("alice", "loc1", nil)
	bob := identity.NewPublic("bob", "loc2", nil)
	carol := identity.NewPublic("carol", "loc3", nil)

	h, _ := newHandler(t, Policy{
		Participants: []identity.Identity{alice, bob},
		Subscribers:  []identity.Identity{carol},
		Writers:      map[string]bool{"alice": true},
		Thresholds:   map[string]int{"read": 1, "write": 2},
	})

	canRead, _ := h.CanRead(context.Background(), carol)
	require.True(t, canRead)

	canWrite, _ := h.CanWrite(context.Background(), bob)
	require.False(t, canWrite)

	canWrite, _ = h.CanWrite(context.Background(), alice)
	require.True(t, canWrite)

	thresholds, err := h.QuorumThresholds(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, thresholds["write"])
}
