package id

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerate_Unique(t *testing.T) {
	seen := make(map[string]bool)
	for range 500 {
		id, err := Generate(PrefixStreamClient)
		require.NoError(t, err)
		require.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	}
}

func TestGenerate_Format(t *testing.T) {
	id, err := Generate(PrefixStreamClient)
	require.NoError(t, err)

	suffix, ok := strings.CutPrefix(id, "sse-")
	require.True(t, ok, "id %q lacks prefix", id)
	assert.Len(t, suffix, 21)

	for _, c := range suffix {
		urlSafe := (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9') || c == '_' || c == '-'
		assert.True(t, urlSafe, "character %q is not URL-safe", c)
	}
}
