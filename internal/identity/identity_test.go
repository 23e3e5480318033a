package identity

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSignVerifyRoundTrip(t *testing.T) {
	id, err := New("alice", "localhost:9001")
	require.NoError(t, err)

	sig, err := id.Sign([]byte("hello"))
	require.NoError(t, err)
	require.True(t, id.Verify([]byte("hello"), sig))
	require.False(t, id.Verify([]byte("tampered"), sig))
}

func TestPublicIdentityCannotSign(t *testing.T) {
	id, err := New("alice", "localhost:9001")
	require.NoError(t, err)

	pub := NewPublic(id.Name, id.Location, id.PublicKey)
	require.False(t, pub.CanSign())

	_, err = pub.Sign([]byte("hello"))
	require.Error(t, err)

	sig, err := id.Sign([]byte("hello"))
	require.NoError(t, err)
	require.True(t, pub.Verify([]byte("hello"), sig))
}

func TestEqualByName(t *testing.T) {
	a := NewPublic("alice", "loc1", nil)
	b := NewPublic("alice", "loc2", nil)
	c := NewPublic("bob", "loc1", nil)

	require.True(t, a.Equal(b))
	require.False(t, a.Equal(c))
}

func TestCacheLookups(t *testing.T) {
	cache := NewCache()
	alice := NewPublic("alice", "localhost:9001", nil)
	bob := NewPublic("bob", "localhost:9002", nil)
	cache.Put(alice)
	cache.Put(bob)

	found, ok := cache.FindByName("alice")
	require.True(t, ok)
	require.Equal(t, "localhost:9001", found.Location)

	found, ok = cache.FindByLocation("localhost:9002")
	require.True(t, ok)
	require.Equal(t, "bob", found.Name)

	_, ok = cache.FindByName("carol")
	require.False(t, ok)

	require.Len(t, cache.All(), 2)
}
