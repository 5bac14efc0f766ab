// Package cache provides the on-disk entity cache that makes harvester
// runs idempotent and incremental. Two shapes are supported: whole-object
// JSON documents (market metadata, aggregation results) and append-only
// line-delimited record logs (raw trade pages).
//
// Reads self-heal: a document that fails to parse is treated as absent and
// forces a re-fetch. Writes are advisory: they return errors for callers
// to log, but a failed cache write must never abort the fetch that
// produced the data.
package cache

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

const (
	filePerm = 0o644
	dirPerm  = 0o755
)

// Cache is a key-addressed store rooted at a single directory. Keys are
// caller-qualified (e.g. "gamma_<marketID>", "agg_<conditionID>") so the
// distinct identifier namespaces never collide.
type Cache struct {
	dir string
}

// New creates the cache directory if needed and returns a Cache over it.
func New(dir string) (*Cache, error) {
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return nil, fmt.Errorf("cache: create dir %s: %w", dir, err)
	}
	return &Cache{dir: dir}, nil
}

// Dir returns the cache root directory.
func (c *Cache) Dir() string {
	return c.dir
}

func (c *Cache) objectPath(key string) string {
	return filepath.Join(c.dir, key+".json")
}

// Get reads the whole-object document stored under key into out. It
// returns false when the document is absent or does not parse; corruption
// is indistinguishable from a miss so the caller simply re-fetches.
func (c *Cache) Get(key string, out any) bool {
	data, err := os.ReadFile(c.objectPath(key))
	if err != nil {
		return false
	}
	if err := json.Unmarshal(data, out); err != nil {
		return false
	}
	return true
}

// Put stores v as the whole-object document for key, writing to a
// temporary file and renaming so readers never observe a torn document.
// The returned error is advisory.
func (c *Cache) Put(key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("cache: marshal %s: %w", key, err)
	}
	path := c.objectPath(key)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, filePerm); err != nil {
		return fmt.Errorf("cache: write %s: %w", key, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("cache: rename %s: %w", key, err)
	}
	return nil
}
