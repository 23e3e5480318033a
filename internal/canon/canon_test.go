package canon

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMarshalSortsKeys(t *testing.T) {
	data, err := Marshal(map[string]any{"b": 1, "a": 2})
	require.NoError(t, err)
	require.Equal(t, `{"a":2,"b":1}`, string(data))
}

func TestContentHashIsDeterministic(t *testing.T) {
	h1, err := ContentHash(map[string]any{"x": 1, "y": "z"})
	require.NoError(t, err)
	h2, err := ContentHash(map[string]any{"y": "z", "x": 1})
	require.NoError(t, err)
	require.Equal(t, h1, h2)
	require.Len(t, h1, 40) // hex-encoded SHA-1
}

func TestRawHashesBytesAsIs(t *testing.T) {
	direct, err := ContentHash(map[string]any{"a": 1})
	require.NoError(t, err)

	encoded, err := Marshal(map[string]any{"a": 1})
	require.NoError(t, err)

	viaRaw, err := ContentHash(Raw(encoded))
	require.NoError(t, err)

	require.Equal(t, direct, viaRaw)
}
