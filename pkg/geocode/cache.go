package geocode

import (
	"bufio"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/routelab/routeplan-cli/internal/model"
)

// cacheVersion tags the on-disk format. A file with any other first line is
// treated as empty; the old content is preserved until the next flush.
const cacheVersion = "routeplan-geocache/v1"

// CacheEntry is one resolved address. Entries never mutate once written.
type CacheEntry struct {
	Address    string    `json:"address"` // normalized; guards against hash collisions
	Lat        float64   `json:"lat"`
	Lon        float64   `json:"lon"`
	Provider   string    `json:"provider"`
	ResolvedAt time.Time `json:"resolved_at"`
}

// Cache is the persistent address → coordinate mapping. Reads go through an
// immutable snapshot and take no lock; writes are serialized under a single
// mutex and become visible by swapping the snapshot.
type Cache struct {
	path string

	mu   sync.Mutex // guards inserts and flushes
	snap atomic.Pointer[map[string]CacheEntry]
}

// cacheKey returns the stable on-disk key: SHA-256 hex of the normalized
// address.
func cacheKey(normalized string) string {
	h := sha256.Sum256([]byte(normalized))
	return fmt.Sprintf("%x", h)
}

// OpenCache loads the cache file at path, creating an empty cache when the
// file does not exist. It fails with a CacheUnavailable error only when the
// file is both unreadable and unwritable.
func OpenCache(path string) (*Cache, error) {
	c := &Cache{path: path}

	entries, err := loadEntries(path)
	if err != nil {
		if !canWrite(path) {
			return nil, model.NewError(model.KindCacheUnavailable, path, err)
		}
		zap.L().Warn("geocode cache unreadable, starting empty",
			zap.String("path", path),
			zap.Error(err),
		)
		entries = map[string]CacheEntry{}
	}

	c.snap.Store(&entries)
	return c, nil
}

func loadEntries(path string) (map[string]CacheEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]CacheEntry{}, nil
		}
		return nil, eris.Wrap(err, "cache: open")
	}
	defer f.Close() //nolint:errcheck

	entries := map[string]CacheEntry{}
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	if !scanner.Scan() {
		// Empty file: usable, starts empty.
		return entries, scanner.Err()
	}
	if scanner.Text() != cacheVersion {
		zap.L().Warn("geocode cache has unrecognized version, treating as empty",
			zap.String("path", path),
			zap.String("version", scanner.Text()),
		)
		return entries, nil
	}

	line := 1
	for scanner.Scan() {
		line++
		var entry CacheEntry
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			zap.L().Warn("geocode cache: skipping unparseable line",
				zap.String("path", path),
				zap.Int("line", line),
			)
			continue
		}
		entries[cacheKey(entry.Address)] = entry
	}
	if err := scanner.Err(); err != nil {
		return nil, eris.Wrap(err, "cache: scan")
	}

	return entries, nil
}

func canWrite(path string) bool {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return false
	}
	_ = f.Close()
	return true
}

// Lookup returns the cached coordinate for a normalized address. It reads
// the current snapshot without locking and may trail an in-flight insert.
func (c *Cache) Lookup(normalized string) (model.Coordinate, bool) {
	entries := *c.snap.Load()
	entry, ok := entries[cacheKey(normalized)]
	if !ok {
		return model.Coordinate{}, false
	}
	// Hash collisions are treated as misses.
	if entry.Address != normalized {
		return model.Coordinate{}, false
	}
	return model.Coordinate{Lat: entry.Lat, Lon: entry.Lon}, true
}

// Insert records a resolved address. Existing entries are kept as-is: the
// first resolution wins and entries never mutate.
func (c *Cache) Insert(normalized string, coord model.Coordinate, provider string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	old := *c.snap.Load()
	key := cacheKey(normalized)
	if existing, ok := old[key]; ok && existing.Address == normalized {
		return
	}

	next := make(map[string]CacheEntry, len(old)+1)
	for k, v := range old {
		next[k] = v
	}
	next[key] = CacheEntry{
		Address:    normalized,
		Lat:        coord.Lat,
		Lon:        coord.Lon,
		Provider:   provider,
		ResolvedAt: time.Now().UTC(),
	}
	c.snap.Store(&next)
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	return len(*c.snap.Load())
}

// Flush writes the full cache to disk atomically (temp file + rename), so a
// crash mid-write never leaves a half-written cache.
func (c *Cache) Flush() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	entries := *c.snap.Load()

	dir := filepath.Dir(c.path)
	tmp, err := os.CreateTemp(dir, ".geocache-*")
	if err != nil {
		return model.NewError(model.KindCacheUnavailable, c.path, eris.Wrap(err, "cache: create temp"))
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck

	w := bufio.NewWriter(tmp)
	fmt.Fprintln(w, cacheVersion)

	// Deterministic line order keeps flushes diffable.
	keys := make([]string, 0, len(entries))
	for k := range entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		data, err := json.Marshal(entries[k])
		if err != nil {
			tmp.Close() //nolint:errcheck
			return eris.Wrap(err, "cache: marshal entry")
		}
		w.Write(data)     //nolint:errcheck
		w.WriteByte('\n') //nolint:errcheck
	}

	if err := w.Flush(); err != nil {
		tmp.Close() //nolint:errcheck
		return model.NewError(model.KindCacheUnavailable, c.path, eris.Wrap(err, "cache: write"))
	}
	if err := tmp.Close(); err != nil {
		return model.NewError(model.KindCacheUnavailable, c.path, eris.Wrap(err, "cache: close temp"))
	}
	if err := os.Rename(tmp.Name(), c.path); err != nil {
		return model.NewError(model.KindCacheUnavailable, c.path, eris.Wrap(err, "cache: rename"))
	}

	zap.L().Debug("geocode cache flushed",
		zap.String("path", c.path),
		zap.Int("entries", len(entries)),
	)
	return nil
}

// Rebuild reloads the cache from disk, dropping unparseable lines, and
// flushes the cleaned result back.
func (c *Cache) Rebuild() error {
	entries, err := loadEntries(c.path)
	if err != nil {
		return model.NewError(model.KindCacheUnavailable, c.path, err)
	}
	c.mu.Lock()
	c.snap.Store(&entries)
	c.mu.Unlock()
	return c.Flush()
}
