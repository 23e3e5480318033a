package dexter

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStoreSetGetRoundTrip(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.Set([]string{"a"}, `{}`))
	require.NoError(t, s.Set([]string{"a", "b"}, `{"x":1}`))

	got, err := s.Get([]string{"a", "b", "x"})
	require.NoError(t, err)
	require.Equal(t, "1", got)
}

func TestStoreSetArrayIndex(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.Set([]string{"list"}, `[1,2,3]`))
	require.NoError(t, s.Set([]string{"list", "1"}, `99`))

	got, err := s.Get([]string{"list"})
	require.NoError(t, err)
	require.JSONEq(t, `[1,99,3]`, got)
}

func TestStoreDeleteMapKey(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.Set([]string{"a"}, `1`))
	require.NoError(t, s.Set([]string{"b"}, `2`))
	require.NoError(t, s.Delete([]string{"a"}))

	_, err := s.Get([]string{"a"})
	require.Error(t, err)
	got, err := s.Get([]string{"b"})
	require.NoError(t, err)
	require.Equal(t, "2", got)
}

func TestStoreDeleteArrayElementShrinksInPlace(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.Set([]string{"holder"}, `{}`))
	require.NoError(t, s.Set([]string{"holder", "list"}, `[10,20,30]`))
	require.NoError(t, s.Delete([]string{"holder", "list", "1"}))

	got, err := s.Get([]string{"holder", "list"})
	require.NoError(t, err)
	require.JSONEq(t, `[10,30]`, got)
}

func TestStoreDeleteRootArrayElement(t *testing.T) {
	s := NewStore()
	s.SetRoot([]any{"a", "b", "c"})
	require.NoError(t, s.Delete([]string{"1"}))

	got, err := s.Get(nil)
	require.NoError(t, err)
	require.JSONEq(t, `["a","c"]`, got)
}

func TestStoreCloneCopiesWithoutDisturbingSource(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.Set([]string{"src"}, `{"n":1}`))
	require.NoError(t, s.Clone([]string{"src"}, []string{"dst"}))

	src, err := s.Get([]string{"src"})
	require.NoError(t, err)
	dst, err := s.Get([]string{"dst"})
	require.NoError(t, err)
	require.JSONEq(t, src, dst)
}

func TestStoreTraverseUnknownKeyFails(t *testing.T) {
	s := NewStore()
	_, err := s.Get([]string{"nope"})
	require.Error(t, err)
}

func TestStoreSaveLoadRoundTrip(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.Set([]string{"doc"}, `{"title":"hi"}`))

	file := filepath.Join(t.TempDir(), "snapshot.json")
	require.NoError(t, s.Save(file, []string{"doc"}))

	loaded := NewStore()
	require.NoError(t, loaded.Load(file, []string{"restored"}))

	got, err := loaded.Get([]string{"restored", "title"})
	require.NoError(t, err)
	require.Equal(t, `"hi"`, got)

	data, err := os.ReadFile(file)
	require.NoError(t, err)
	var roundTrip map[string]any
	require.NoError(t, json.Unmarshal(data, &roundTrip))
	require.Equal(t, "hi", roundTrip["title"])
}

func TestDinitRequiresIdcacheAndIdentity(t *testing.T) {
	iface := New()
	_, err := iface.Dinit()
	require.Error(t, err)
}

func TestDinitBuildsOwnerForKnownIdentity(t *testing.T) {
	iface := New()
	idcache := `[{"name":"alice","location":"addr-alice","pubkey":""},{"name":"bob","location":"addr-bob","pubkey":""}]`
	require.NoError(t, iface.Store.Set([]string{"idcache"}, mustJSONString(t, idcache)))
	require.NoError(t, iface.Store.Set([]string{"identity"}, `"alice"`))

	msg, err := iface.Dinit()
	require.NoError(t, err)
	require.Equal(t, "DEJE initialized", msg)
	require.Equal(t, "alice", iface.self.Name)
}

func TestDinitRejectsUnknownSelfName(t *testing.T) {
	iface := New()
	idcache := `[{"name":"alice","location":"addr-alice","pubkey":""}]`
	require.NoError(t, iface.Store.Set([]string{"idcache"}, mustJSONString(t, idcache)))
	require.NoError(t, iface.Store.Set([]string{"identity"}, `"carol"`))

	_, err := iface.Dinit()
	require.Error(t, err)
}

func TestAddDocumentRequiresDinitFirst(t *testing.T) {
	iface := New()
	_, err := iface.AddDocument("notes", nil)
	require.Error(t, err)
}

func TestHelpWithNoArgsReturnsBanner(t *testing.T) {
	lines := Help(nil)
	require.Len(t, lines, 4)
}

func TestHelpWithArgsDescribesKnownAndUnknownCommands(t *testing.T) {
	lines := Help([]string{"vget", "bogus"})
	require.Contains(t, lines, "vget :: "+Descriptions["vget"])
	require.Contains(t, lines, "bogus :: No such command.")
}

func TestCommandsListIsAlphabeticalAndComplete(t *testing.T) {
	lines := CommandsList()
	require.Len(t, lines, len(Descriptions))
	require.Equal(t, "commands :: "+Descriptions["commands"], lines[0])
}

func TestSplitPath(t *testing.T) {
	path, rest := SplitPath([]string{"a", "b", `"v"`})
	require.Equal(t, []string{"a", "b"}, path)
	require.Equal(t, `"v"`, rest)
}

// mustJSONString encodes s itself as a JSON string literal, since
// Store.Set expects a JSON-encoded value (idcache is stored as a raw
// JSON string the way dinit's varString expects to read it back).
func mustJSONString(t *testing.T, s string) string {
	t.Helper()
	data, err := json.Marshal(s)
	require.NoError(t, err)
	return string(data)
}
