// Package resource implements the named blob inside a Document: a
// (path, MIME type, content, comment) tuple whose setters notify the
// owning document's handler on every mutation, per spec.md §4.2.
package resource

import (
	"fmt"
	"strings"

	"deje/internal/errs"
)

// ChangeNotifier is the small slice of Document a Resource needs: a
// place to report field mutations so the handler's on_resource_update
// hook can run. Document implements this implicitly — resource never
// imports the document package, which is what keeps the two from
// forming an import cycle (see DESIGN.md, "Cycles").
type ChangeNotifier interface {
	OnResourceUpdate(path, propName, oldPath string) error
}

// Resource is a tuple owned by exactly one Document.
type Resource struct {
	path    string
	mime    string
	content []byte
	comment []byte

	document ChangeNotifier
}

// New creates a Resource. path must begin with "/".
func New(path, mime string, content, comment []byte) (*Resource, error) {
	if !strings.HasPrefix(path, "/") {
		return nil, fmt.Errorf("resource path %q must begin with /", path)
	}
	return &Resource{path: path, mime: mime, content: content, comment: comment}, nil
}

// SetDocument binds the Resource to its owning Document. Called by
// Document.AddResource; not meant for general use.
func (r *Resource) SetDocument(d ChangeNotifier) {
	r.document = d
}

// Path, Type, Content, Comment are read-only accessors; mutation only
// happens through the Set* setters or SetProperty, both of which
// notify the document.

func (r *Resource) Path() string       { return r.path }
func (r *Resource) Type() string       { return r.mime }
func (r *Resource) Content() []byte    { return r.content }
func (r *Resource) Comment() []byte    { return r.comment }

// SetPath changes the path, notifying with the old path so the
// document can re-key its resource map.
func (r *Resource) SetPath(newPath string) error {
	if !strings.HasPrefix(newPath, "/") {
		return fmt.Errorf("resource path %q must begin with /", newPath)
	}
	oldPath := r.path
	r.path = newPath
	return r.notify("path", oldPath)
}

func (r *Resource) SetType(newType string) error {
	r.mime = newType
	return r.notify("type", r.path)
}

func (r *Resource) SetContent(newContent []byte) error {
	r.content = newContent
	return r.notify("content", r.path)
}

func (r *Resource) SetComment(newComment []byte) error {
	r.comment = newComment
	return r.notify("comment", r.path)
}

// SetProperty gates changes to the four known field names, matching
// the Python Resource.set_property whitelist: anything else is an
// error rather than a silently-ignored no-op.
func (r *Resource) SetProperty(name string, value []byte) error {
	switch name {
	case "path":
		return r.SetPath(string(value))
	case "type":
		return r.SetType(string(value))
	case "content":
		return r.SetContent(value)
	case "comment":
		return r.SetComment(value)
	default:
		return fmt.Errorf("%w: %q", errs.ErrUnknownProperty, name)
	}
}

func (r *Resource) notify(propName, oldPath string) error {
	if r.document == nil {
		return nil
	}
	return r.document.OnResourceUpdate(r.path, propName, oldPath)
}

// Serialized is the wire/file form of a Resource, per spec.md §6.
type Serialized struct {
	Path    string `json:"path"`
	Type    string `json:"type"`
	Content []byte `json:"content"`
	Comment []byte `json:"comment"`
}

// Serialize returns the file/wire representation.
func (r *Resource) Serialize() Serialized {
	return Serialized{Path: r.path, Type: r.mime, Content: r.content, Comment: r.comment}
}

// FromSerialized reconstructs a detached Resource (SetDocument must
// still be called by whoever attaches it to a Document).
func FromSerialized(s Serialized) (*Resource, error) {
	return New(s.Path, s.Type, s.Content, s.Comment)
}
