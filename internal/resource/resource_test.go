package resource

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeNotifier struct {
	calls []string
}

func (f *fakeNotifier) OnResourceUpdate(path, propName, oldPath string) error {
	f.calls = append(f.calls, path+"/"+propName+"/"+oldPath)
	return nil
}

func TestNewRequiresLeadingSlash(t *testing.T) {
	_, err := New("notes", "text/plain", nil, nil)
	require.Error(t, err)

	r, err := New("/notes", "text/plain", []byte("hi"), nil)
	require.NoError(t, err)
	require.Equal(t, "/notes", r.Path())
}

func TestSettersNotifyDocument(t *testing.T) {
	r, err := New("/notes", "text/plain", []byte("hi"), nil)
	require.NoError(t, err)

	notifier := &fakeNotifier{}
	r.SetDocument(notifier)

	require.NoError(t, r.SetContent([]byte("bye")))
	require.Equal(t, []byte("bye"), r.Content())
	require.NoError(t, r.SetPath("/renamed"))
	require.Equal(t, "/renamed", r.Path())

	require.Equal(t, []string{
		"/notes/content//notes",
		"/renamed/path//notes",
	}, notifier.calls)
}

func TestSetPropertyWhitelist(t *testing.T) {
	r, err := New("/notes", "text/plain", nil, nil)
	require.NoError(t, err)

	require.NoError(t, r.SetProperty("comment", []byte("note")))
	require.Equal(t, []byte("note"), r.Comment())

	err = r.SetProperty("bogus", []byte("x"))
	require.Error(t, err)
}

func TestSerializeRoundTrip(t *testing.T) {
	r, err := New("/notes", "text/plain", []byte("hi"), []byte("c"))
	require.NoError(t, err)

	s := r.Serialize()
	require.Equal(t, "/notes", s.Path)

	r2, err := FromSerialized(s)
	require.NoError(t, err)
	require.Equal(t, r.Content(), r2.Content())
}
