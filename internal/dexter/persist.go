package dexter

import (
	"encoding/json"
	"fmt"
	"os"
)

// Save serializes the value at path (or the whole store, if path is
// empty) and atomically writes it to filename — temp file plus rename,
// same pattern as the teacher's store.SnapshotManager.Save, so a crash
// mid-write never leaves a half-written file at filename.
func (s *Store) Save(filename string, path []string) error {
	obj, err := s.traverse(path)
	if err != nil {
		return err
	}
	data, err := json.Marshal(obj)
	if err != nil {
		return fmt.Errorf("encode value: %w", err)
	}
	return saveBytes(filename, data)
}

// saveBytes atomically writes already-encoded data to filename, for
// callers (like Dexport) that have JSON bytes in hand rather than a
// store path to serialize.
func saveBytes(filename string, data []byte) error {
	tmp := filename + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, filename); err != nil {
		return fmt.Errorf("rename %s to %s: %w", tmp, filename, err)
	}
	return nil
}

// Load reads filename and decodes it as JSON, storing the result at
// path (or replacing the whole store, if path is empty).
func (s *Store) Load(filename string, path []string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("read %s: %w", filename, err)
	}
	var decoded any
	if err := json.Unmarshal(data, &decoded); err != nil {
		return fmt.Errorf("decode %s: %w", filename, err)
	}
	if len(path) == 0 {
		s.data = decoded
		return nil
	}
	encoded, err := json.Marshal(decoded)
	if err != nil {
		return fmt.Errorf("re-encode loaded value: %w", err)
	}
	return s.Set(path, string(encoded))
}
