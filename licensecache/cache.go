// Package licensecache stores canonical license text in a two-tier cache: an
// in-process map for the lifetime of the run, mirrored by one file per license
// identifier under a user-scoped directory. The disk tier is best effort; any
// I/O failure is logged and treated as a miss so a corrupted cache can never
// fail resolution, only force a re-fetch.
package licensecache

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

// FallbackPrefix marks license text that was produced in place of a failed
// download. Entries carrying it are kept in memory, so repeated lookups in one
// run short-circuit, but are never written to disk.
const FallbackPrefix = "!!! License text"

// maxAge is how long a cached file is trusted before it is purged and
// re-fetched.
const maxAge = 30 * 24 * time.Hour

// Cache is a two-tier license text store. Safe for concurrent use.
type Cache struct {
	dir    string
	logger *log.Logger
	maxAge time.Duration

	mu     sync.Mutex
	memory map[string]string
}

// DefaultDir returns the user-scoped cache root.
func DefaultDir() (string, error) {
	base, err := os.UserCacheDir()
	if err != nil {
		return "", fmt.Errorf("locating user cache dir: %w", err)
	}
	return filepath.Join(base, "licensescan", "licenses"), nil
}

// New creates a cache rooted at dir, creating the directory if needed. An
// empty dir selects the default user-scoped location. A nil logger uses the
// package default.
func New(dir string, logger *log.Logger) (*Cache, error) {
	if dir == "" {
		var err error
		if dir, err = DefaultDir(); err != nil {
			return nil, err
		}
	}
	if logger == nil {
		logger = log.Default()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating cache directory: %w", err)
	}
	return &Cache{
		dir:    dir,
		logger: logger,
		maxAge: maxAge,
		memory: make(map[string]string),
	}, nil
}

// Get returns the cached text for a license identifier. The in-memory tier is
// checked first; on a miss a fresh-enough disk entry is loaded back into
// memory. Expired files are deleted and reported as absent.
func (c *Cache) Get(identifier string) (string, bool) {
	c.mu.Lock()
	text, ok := c.memory[identifier]
	c.mu.Unlock()
	if ok {
		return text, true
	}

	path := c.path(identifier)
	info, err := os.Stat(path)
	if err != nil {
		return "", false
	}
	if time.Since(info.ModTime()) > c.maxAge {
		if err := os.Remove(path); err != nil {
			c.logger.Warn("removing expired cache file", "identifier", identifier, "error", err)
		}
		return "", false
	}

	data, err := os.ReadFile(path)
	if err != nil {
		c.logger.Warn("reading cache file", "identifier", identifier, "error", err)
		return "", false
	}
	text = string(data)

	c.mu.Lock()
	c.memory[identifier] = text
	c.mu.Unlock()
	return text, true
}

// Put stores text in memory and, unless it is failed-fetch fallback text,
// mirrors it to disk. Disk write failures are logged and ignored.
func (c *Cache) Put(identifier, text string) {
	c.mu.Lock()
	c.memory[identifier] = text
	c.mu.Unlock()

	if strings.HasPrefix(text, FallbackPrefix) {
		return
	}

	path := c.path(identifier)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(text), 0o644); err != nil {
		c.logger.Warn("writing cache file", "identifier", identifier, "error", err)
		return
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		c.logger.Warn("saving cache file", "identifier", identifier, "error", err)
	}
}

// Clear deletes all cached files and empties the in-memory tier. Per-file
// failures are logged and skipped.
func (c *Cache) Clear() {
	c.mu.Lock()
	c.memory = make(map[string]string)
	c.mu.Unlock()

	entries, err := os.ReadDir(c.dir)
	if err != nil {
		c.logger.Warn("reading cache directory", "dir", c.dir, "error", err)
		return
	}

	deleted := 0
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".txt") {
			continue
		}
		if err := os.Remove(filepath.Join(c.dir, entry.Name())); err != nil {
			c.logger.Warn("deleting cache file", "file", entry.Name(), "error", err)
			continue
		}
		deleted++
	}
	c.logger.Info("cleared license cache", "dir", c.dir, "deleted", deleted)
}

// Dir returns the cache root directory.
func (c *Cache) Dir() string { return c.dir }

var fileNameSanitizer = strings.NewReplacer("/", "_", "\\", "_", ":", "_")

func (c *Cache) path(identifier string) string {
	return filepath.Join(c.dir, fileNameSanitizer.Replace(identifier)+".txt")
}
