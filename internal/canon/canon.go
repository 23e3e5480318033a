// Package canon produces the canonical encoding deje signs and hashes
// over: JSON with sorted object keys and no insignificant whitespace,
// per spec.md §6.
//
// encoding/json sorts map[string]V keys and never emits whitespace with
// plain Marshal, but it writes struct fields in declaration order and
// embeds json.RawMessage values with their own key order. Marshal
// therefore encodes v, decodes the result into generic maps and slices,
// and encodes that again, so objects at every depth come out sorted. No
// canonical-JSON library turned up anywhere in the retrieved example
// pack, so this package is a thin, deliberately-stdlib-only wrapper —
// see DESIGN.md for why that's the right call rather than a gap.
package canon

import (
	"bytes"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// Marshal returns the canonical JSON encoding of v.
func Marshal(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("canonical marshal: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var generic any
	if err := dec.Decode(&generic); err != nil {
		return nil, fmt.Errorf("canonical marshal: %w", err)
	}
	data, err = json.Marshal(generic)
	if err != nil {
		return nil, fmt.Errorf("canonical marshal: %w", err)
	}
	return data, nil
}

// ContentHash returns the lowercase hex SHA-1 of the canonical JSON
// encoding of v — the "content hash" referenced throughout the quorum
// and quorumspace design.
func ContentHash(v any) (string, error) {
	data, err := Marshal(v)
	if err != nil {
		return "", err
	}
	sum := sha1.Sum(data)
	return hex.EncodeToString(sum[:]), nil
}

// Raw wraps already-encoded JSON so ContentHash can hash it directly —
// useful when the caller already has an action's HashContent() output
// and just needs its hash. Canonical input passes through Marshal
// unchanged.
type Raw []byte

func (r Raw) MarshalJSON() ([]byte, error) { return []byte(r), nil }
