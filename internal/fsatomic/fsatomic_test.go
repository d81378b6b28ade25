package fsatomic

import (
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteFile_NoTempLeftBehind(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.json")

	require.NoError(t, WriteFile(path, []byte(`{"a":1}`)))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "out.json", entries[0].Name())
}

func TestWriteJSON_ReadJSON_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "msg.json")

	type payload struct {
		Type string `json:"type"`
		N    int    `json:"n"`
	}
	in := payload{Type: "message", N: 7}
	require.NoError(t, WriteJSON(path, in))

	var out payload
	require.NoError(t, ReadJSON(path, &out))
	assert.Equal(t, in, out)
}

func TestMonotonicName_SortOrderMatchesCreationOrder(t *testing.T) {
	names := make([]string, 0, 50)
	for i := 0; i < 50; i++ {
		names = append(names, MonotonicName())
	}

	sorted := append([]string(nil), names...)
	sort.Strings(sorted)
	assert.Equal(t, names, sorted, "monotonic names must sort lexicographically in creation order")
}

func TestMonotonicName_NoCollisions(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 500; i++ {
		n := MonotonicName()
		assert.False(t, seen[n], "collision on %s", n)
		seen[n] = true
	}
}

func TestIsTempName(t *testing.T) {
	assert.True(t, IsTempName("foo.json.tmp"))
	assert.False(t, IsTempName("foo.json"))
	assert.False(t, IsTempName("_close"))
}
