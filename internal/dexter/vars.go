// Package dexter is the variable-store and command backend for the
// dexter CLI: a JSON-tree of arbitrary data (vget/vset/vdel/vclone),
// with vsave/vload persistence to disk. Grounded on
// original_source/deje/dexter/commands/vars.py's DexterCommandsVars.
package dexter

import (
	"encoding/json"
	"fmt"
	"strconv"

	"deje/internal/errs"
)

// Store holds the JSON-compatible tree addressed by vget/vset/vdel, plus
// whatever else dexter commands stash there (idcache, identity, document
// exports) — vars.py treats all of these the same way, as paths into one
// big tree.
type Store struct {
	data any
}

// NewStore returns an empty store rooted at an object.
func NewStore() *Store {
	return &Store{data: map[string]any{}}
}

// Root returns the whole tree.
func (s *Store) Root() any {
	return s.data
}

// SetRoot replaces the whole tree.
func (s *Store) SetRoot(v any) {
	s.data = v
}

// normalizeKey casts key to the right type for indexing obj: ints for
// slices, strings for maps. Anything else can't be traversed.
func normalizeKey(obj any, key string) (any, error) {
	switch obj.(type) {
	case []any:
		n, err := strconv.Atoi(key)
		if err != nil {
			return nil, fmt.Errorf("%w: index %q is not an integer", errs.ErrTraversal, key)
		}
		return n, nil
	case map[string]any:
		return key, nil
	default:
		return nil, fmt.Errorf("%w: cannot inspect properties of %T", errs.ErrTraversal, obj)
	}
}

// traverse walks keys from the store root and returns the value found.
func (s *Store) traverse(keys []string) (any, error) {
	obj := s.data
	for _, key := range keys {
		nk, err := normalizeKey(obj, key)
		if err != nil {
			return nil, err
		}
		switch k := nk.(type) {
		case int:
			arr, ok := obj.([]any)
			if !ok || k < 0 || k >= len(arr) {
				return nil, fmt.Errorf("%w: failed to find key %v", errs.ErrTraversal, nk)
			}
			obj = arr[k]
		case string:
			m := obj.(map[string]any)
			v, ok := m[k]
			if !ok {
				return nil, fmt.Errorf("%w: failed to find key %v", errs.ErrTraversal, nk)
			}
			obj = v
		}
	}
	return obj, nil
}

// Get returns the JSON-encoded value at path, indent-pretty-printed with
// sorted keys the way json.Marshal already sorts Go map keys.
func (s *Store) Get(path []string) (string, error) {
	obj, err := s.traverse(path)
	if err != nil {
		return "", err
	}
	out, err := json.MarshalIndent(obj, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode value: %w", err)
	}
	return string(out), nil
}

// Set stores newValueJSON (parsed as JSON) at path, or replaces the root
// if path is empty.
func (s *Store) Set(path []string, newValueJSON string) error {
	var newValue any
	if err := json.Unmarshal([]byte(newValueJSON), &newValue); err != nil {
		return fmt.Errorf("decode value: %w", err)
	}
	if len(path) == 0 {
		s.data = newValue
		return nil
	}
	obj, err := s.traverse(path[:len(path)-1])
	if err != nil {
		return err
	}
	last, err := normalizeKey(obj, path[len(path)-1])
	if err != nil {
		return err
	}
	switch k := last.(type) {
	case int:
		arr, ok := obj.([]any)
		if !ok || k < 0 || k >= len(arr) {
			return fmt.Errorf("%w: failed to find key %v", errs.ErrTraversal, last)
		}
		arr[k] = newValue
	case string:
		obj.(map[string]any)[k] = newValue
	}
	return nil
}

// Delete removes the value at path, or resets the whole store to an
// empty object if path is empty.
func (s *Store) Delete(path []string) error {
	if len(path) == 0 {
		s.data = map[string]any{}
		return nil
	}
	obj, err := s.traverse(path[:len(path)-1])
	if err != nil {
		return err
	}
	last, err := normalizeKey(obj, path[len(path)-1])
	if err != nil {
		return err
	}
	switch k := last.(type) {
	case int:
		arr, ok := obj.([]any)
		if !ok || k < 0 || k >= len(arr) {
			return fmt.Errorf("%w: failed to find key %v", errs.ErrTraversal, last)
		}
		// Go slices aren't addressable through an interface{} in
		// place, so the shrunk slice has to be written back through
		// whatever actually holds this array — the store root, or its
		// own parent container one level further up.
		shrunk := append(arr[:k:k], arr[k+1:]...)
		if len(path) == 1 {
			s.data = shrunk
			return nil
		}
		grandparent, err := s.traverse(path[:len(path)-2])
		if err != nil {
			return err
		}
		holderKey, err := normalizeKey(grandparent, path[len(path)-2])
		if err != nil {
			return err
		}
		switch hk := holderKey.(type) {
		case string:
			grandparent.(map[string]any)[hk] = shrunk
		case int:
			grandparent.([]any)[hk] = shrunk
		}
	case string:
		m := obj.(map[string]any)
		if _, ok := m[k]; !ok {
			return fmt.Errorf("%w: failed to find key %v", errs.ErrTraversal, last)
		}
		delete(m, k)
	}
	return nil
}

// Clone copies the value at src to dst, leaving src untouched — dexter's
// vclone, for duplicating variable-store data without a round trip
// through vget/vset.
func (s *Store) Clone(src, dst []string) error {
	val, err := s.traverse(src)
	if err != nil {
		return err
	}
	encoded, err := json.Marshal(val)
	if err != nil {
		return fmt.Errorf("encode value: %w", err)
	}
	return s.Set(dst, string(encoded))
}
