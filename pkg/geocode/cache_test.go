package geocode

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/routelab/routeplan-cli/internal/model"
)

func tempCachePath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "geocache.jsonl")
}

func TestCache_RoundTrip(t *testing.T) {
	path := tempCachePath(t)

	c, err := OpenCache(path)
	require.NoError(t, err)

	coord := model.Coordinate{Lat: 40.4155, Lon: -3.7074}
	c.Insert("plaza mayor madrid", coord, "nominatim")
	require.NoError(t, c.Flush())

	// Cold lookup from a fresh open must be bit-identical.
	c2, err := OpenCache(path)
	require.NoError(t, err)
	got, ok := c2.Lookup("plaza mayor madrid")
	require.True(t, ok)
	assert.Equal(t, coord, got)
	assert.Equal(t, 1, c2.Len())
}

func TestCache_MissingFileStartsEmpty(t *testing.T) {
	c, err := OpenCache(tempCachePath(t))
	require.NoError(t, err)
	assert.Equal(t, 0, c.Len())
}

func TestCache_UnrecognizedVersionTreatedAsEmpty(t *testing.T) {
	path := tempCachePath(t)
	require.NoError(t, os.WriteFile(path, []byte("geocache/v99\n{\"address\":\"x\"}\n"), 0o644))

	c, err := OpenCache(path)
	require.NoError(t, err)
	assert.Equal(t, 0, c.Len())

	// The old file must survive until the next flush.
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "geocache/v99"))
}

func TestCache_EntriesNeverMutate(t *testing.T) {
	c, err := OpenCache(tempCachePath(t))
	require.NoError(t, err)

	first := model.Coordinate{Lat: 1, Lon: 2}
	c.Insert("somewhere", first, "nominatim")
	c.Insert("somewhere", model.Coordinate{Lat: 9, Lon: 9}, "google")

	got, ok := c.Lookup("somewhere")
	require.True(t, ok)
	assert.Equal(t, first, got)
}

func TestCache_FlushIsAtomicAndSorted(t *testing.T) {
	path := tempCachePath(t)
	c, err := OpenCache(path)
	require.NoError(t, err)

	c.Insert("bbb", model.Coordinate{Lat: 2, Lon: 2}, "nominatim")
	c.Insert("aaa", model.Coordinate{Lat: 1, Lon: 1}, "nominatim")
	require.NoError(t, c.Flush())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, cacheVersion, lines[0])

	// No temp files left behind.
	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	require.Len(t, entries, 1)

	// Two flushes of identical content are byte-identical.
	require.NoError(t, c.Flush())
	data2, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, data, data2)
}

func TestCache_RebuildDropsBadLines(t *testing.T) {
	path := tempCachePath(t)
	content := cacheVersion + "\n" +
		`{"address":"plaza mayor madrid","lat":40.4155,"lon":-3.7074,"provider":"nominatim","resolved_at":"2026-01-02T03:04:05Z"}` + "\n" +
		"not json at all\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	c, err := OpenCache(path)
	require.NoError(t, err)
	require.NoError(t, c.Rebuild())
	assert.Equal(t, 1, c.Len())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "not json")
}

func TestCache_UnreadableAndUnwritable(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("permission checks do not apply to root")
	}

	dir := t.TempDir()
	path := filepath.Join(dir, "geocache.jsonl")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
	require.NoError(t, os.Chmod(path, 0o000))
	t.Cleanup(func() { _ = os.Chmod(path, 0o644) })

	_, err := OpenCache(path)
	require.Error(t, err)
	var pe *model.PipelineError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, model.KindCacheUnavailable, pe.Kind)
}

func TestCache_LookupCollisionGuard(t *testing.T) {
	c, err := OpenCache(tempCachePath(t))
	require.NoError(t, err)
	c.Insert("address one", model.Coordinate{Lat: 1, Lon: 1}, "nominatim")

	_, ok := c.Lookup("address two")
	assert.False(t, ok)
}
