package dexter

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"deje/internal/document"
	"deje/internal/errs"
	"deje/internal/handler"
	"deje/internal/handler/delta"
	"deje/internal/identity"
	"deje/internal/protocol"
	"deje/internal/transport/httptransport"
)

// Descriptions is the one-line-per-command catalog "commands" prints,
// grounded on the do_* docstrings in vars.py and deje.py.
var Descriptions = map[string]string{
	"commands":    "List all available commands.",
	"devent":      "Propose a change to the document.",
	"dexport":     "Serialize the current document to disk.",
	"dget_latest": "Get the latest version number of the doc.",
	"dinit":       "Initialize DEJE interactivity.",
	"dvexport":    "Serialize the current document to variable storage.",
	"fread":       "Read contents of a file as a series of commands.",
	"fwrite":      "Write contents of a view to a file.",
	"help":        "A simple little help message.",
	"quit":        "Exit the program.",
	"vclone":      "Copy variable data from one location to another.",
	"vdel":        "Delete a value from variable storage.",
	"vget":        "Print a value in variable storage.",
	"view":        "List views, or select one.",
	"vload":       "Load a variable value from disk.",
	"vsave":       "Save a variable value to disk.",
	"vset":        "Set a value in variable storage.",
}

// Commands returns the command list sorted the way "commands" prints it.
func Commands() []string {
	names := make([]string, 0, len(Descriptions))
	for name := range Descriptions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Interface is the stateful backend behind the dexter CLI: a variable
// store plus, once "dinit" runs, a live Owner and Documents — the Go
// analog of deje.py's DexterCommandsDEJE mixed into the REPL's shared
// interface object.
type Interface struct {
	Store *Store

	self       identity.Identity
	identities *identity.Cache
	owner      *protocol.Owner
	documents  map[string]*document.Document
}

// New returns a fresh Interface with an empty variable store.
func New() *Interface {
	return &Interface{
		Store:     NewStore(),
		documents: make(map[string]*document.Document),
	}
}

// Vget implements "vget": print the JSON at path.
func (i *Interface) Vget(path []string) (string, error) {
	return i.Store.Get(path)
}

// Vset implements "vset": path[:-1] is the traversal, the last element
// is the JSON payload, EXCEPT when exactly one argument is given, in
// which case it sets the whole root — matching vars.py's do_vset
// argument split (args[:-2], args[-2:-1], args[-1]).
func (i *Interface) Vset(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("vset: expected at least 1 argument")
	}
	value := args[len(args)-1]
	path := args[:len(args)-1]
	return i.Store.Set(path, value)
}

// Vdel implements "vdel".
func (i *Interface) Vdel(path []string) error {
	return i.Store.Delete(path)
}

// Vclone implements "vclone": copy src to dst.
func (i *Interface) Vclone(src, dst []string) error {
	return i.Store.Clone(src, dst)
}

// Vsave implements "vsave": serialize the value at path to filename.
func (i *Interface) Vsave(filename string, path []string) error {
	return i.Store.Save(filename, path)
}

// Vload implements "vload": deserialize filename into path (or root).
func (i *Interface) Vload(filename string, path []string) error {
	return i.Store.Load(filename, path)
}

// varString fetches a top-level variable-store entry as a raw string,
// used by Dinit to pull "idcache"/"identity" the way deje.py's
// get_params does.
func (i *Interface) varString(name string) (string, error) {
	root, ok := i.Store.Root().(map[string]any)
	if !ok {
		return "", fmt.Errorf("%w: variable storage root is not an object", errs.ErrTraversal)
	}
	v, ok := root[name]
	if !ok {
		return "", fmt.Errorf("need to set variable %q", name)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("variable %q is not a string", name)
	}
	return s, nil
}

// Dinit implements "dinit": read idcache/identity from variable
// storage and (re)build the Owner, matching deje.py's do_dinit. idcache
// holds a JSON array of public identities; identity names which one of
// them is this process's own.
func (i *Interface) Dinit() (string, error) {
	idcacheJSON, err := i.varString("idcache")
	if err != nil {
		return "", err
	}
	selfName, err := i.varString("identity")
	if err != nil {
		return "", err
	}

	var entries []struct {
		Name     string `json:"name"`
		Location string `json:"location"`
		PubKey   string `json:"pubkey"`
	}
	if err := json.Unmarshal([]byte(idcacheJSON), &entries); err != nil {
		return "", fmt.Errorf("could not deserialize data in idcache: %w", err)
	}

	cache := identity.NewCache()
	var self identity.Identity
	var found bool
	for _, e := range entries {
		var pub []byte
		if e.PubKey != "" {
			pub = []byte(e.PubKey)
		}
		id := identity.NewPublic(e.Name, e.Location, pub)
		cache.Put(id)
		if e.Name == selfName {
			self, found = id, true
		}
	}
	if !found {
		return "", fmt.Errorf("no identity in cache for %q", selfName)
	}

	i.self = self
	i.identities = cache
	i.owner = protocol.New(self, cache, httptransport.New(self.Location))
	return "DEJE initialized", nil
}

func (i *Interface) requireOwner() error {
	if i.owner == nil {
		return fmt.Errorf("dinit must be run before any d* command")
	}
	return nil
}

// AddDocument registers a document under name, reachable to subsequent
// d* commands once dinit has run. If h is a *delta.Handler, it is
// bound to the new document via SetHost, since a delta.Handler's
// resource lookups need the very Document it is about to police.
func (i *Interface) AddDocument(name string, h handler.Handler) (*document.Document, error) {
	if err := i.requireOwner(); err != nil {
		return nil, err
	}
	doc := document.New(document.Config{
		Name:       name,
		Self:       i.self,
		Identities: i.identities,
		Handler:    h,
		Owner:      i.owner,
	})
	if dh, ok := h.(*delta.Handler); ok {
		dh.SetHost(doc)
	}
	i.owner.AddDocument(doc)
	i.documents[name] = doc
	return doc, nil
}

func (i *Interface) document(name string) (*document.Document, error) {
	if err := i.requireOwner(); err != nil {
		return nil, err
	}
	doc, ok := i.documents[name]
	if !ok {
		return nil, fmt.Errorf("no such document %q", name)
	}
	return doc, nil
}

// Devent implements "devent": propose contentJSON as a change to doc.
func (i *Interface) Devent(docName, contentJSON string) error {
	doc, err := i.document(docName)
	if err != nil {
		return err
	}
	_, _, err = doc.ProposeEvent(context.Background(), json.RawMessage(contentJSON))
	return err
}

// Dexport implements "dexport": serialize doc and write it to filename.
func (i *Interface) Dexport(docName, filename string) error {
	doc, err := i.document(docName)
	if err != nil {
		return err
	}
	data, err := json.Marshal(doc.Serialize())
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}
	return saveBytes(filename, data)
}

// Dvexport implements "dvexport": serialize doc into variable storage at path.
func (i *Interface) Dvexport(docName string, path []string) error {
	doc, err := i.document(docName)
	if err != nil {
		return err
	}
	data, err := json.Marshal(doc.Serialize())
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}
	return i.Store.Set(path, string(data))
}

// DgetLatest implements "dget_latest": the document's local version number.
func (i *Interface) DgetLatest(docName string) (uint64, error) {
	doc, err := i.document(docName)
	if err != nil {
		return 0, err
	}
	return doc.Version(), nil
}

// Help implements "help": with no arguments, the banner; with
// arguments, the "help" and "commands" lines (separated by a blank
// line) followed by one description line per other named command.
func Help(args []string) []string {
	if len(args) == 0 {
		return []string{
			`Dexter is a low-level DEJE client.`,
			`It's perfect for low-level management of documents.`,
			`Type "commands" to see the list of available commands.`,
			`Type "help somecommand" to see more about a command.`,
		}
	}
	lines := make([]string, 0, len(args)+2)
	lines = append(lines, "help :: "+Descriptions["help"])
	lines = append(lines, "")
	lines = append(lines, "commands :: "+Descriptions["commands"])
	for _, a := range args {
		if a == "help" || a == "commands" {
			continue
		}
		if desc, ok := Descriptions[a]; ok {
			lines = append(lines, a+" :: "+desc)
		} else {
			lines = append(lines, a+" :: No such command.")
		}
	}
	return lines
}

// CommandsList implements "commands": one "name :: description" line per
// known command, alphabetically.
func CommandsList() []string {
	names := Commands()
	lines := make([]string, 0, len(names))
	for _, n := range names {
		lines = append(lines, n+" :: "+Descriptions[n])
	}
	return lines
}

// SplitPath is the shared arg-splitting helper for d*/v* commands whose
// last token is JSON and the rest are path segments.
func SplitPath(args []string) (path []string, rest string) {
	if len(args) == 0 {
		return nil, ""
	}
	return args[:len(args)-1], args[len(args)-1]
}
