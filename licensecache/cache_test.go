package licensecache

import (
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/charmbracelet/log"
)

func newTestCache(t *testing.T) *Cache {
	t.Helper()
	c, err := New(t.TempDir(), log.New(io.Discard))
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	return c
}

func TestRoundTrip(t *testing.T) {
	c := newTestCache(t)

	if _, ok := c.Get("MIT"); ok {
		t.Fatal("Get on empty cache reported a hit")
	}

	c.Put("MIT", "MIT License text")
	got, ok := c.Get("MIT")
	if !ok || got != "MIT License text" {
		t.Errorf("Get(MIT) = %q, %v", got, ok)
	}

	// The entry must also be on disk.
	data, err := os.ReadFile(filepath.Join(c.Dir(), "MIT.txt"))
	if err != nil {
		t.Fatalf("reading cache file: %v", err)
	}
	if string(data) != "MIT License text" {
		t.Errorf("disk content = %q", data)
	}
}

func TestDiskTierRepopulatesMemory(t *testing.T) {
	dir := t.TempDir()
	logger := log.New(io.Discard)

	first, err := New(dir, logger)
	if err != nil {
		t.Fatal(err)
	}
	first.Put("Apache-2.0", "Apache License text")

	// A fresh cache over the same directory has a cold memory tier.
	second, err := New(dir, logger)
	if err != nil {
		t.Fatal(err)
	}
	got, ok := second.Get("Apache-2.0")
	if !ok || got != "Apache License text" {
		t.Fatalf("Get from disk = %q, %v", got, ok)
	}

	// Now served from memory even if the file disappears.
	os.Remove(filepath.Join(dir, "Apache-2.0.txt"))
	if got, ok := second.Get("Apache-2.0"); !ok || got != "Apache License text" {
		t.Errorf("memory tier lookup = %q, %v", got, ok)
	}
}

func TestExpiredFileTreatedAsAbsentAndDeleted(t *testing.T) {
	c := newTestCache(t)
	c.Put("BSD-3-Clause", "BSD text")

	path := filepath.Join(c.Dir(), "BSD-3-Clause.txt")
	old := time.Now().Add(-31 * 24 * time.Hour)
	if err := os.Chtimes(path, old, old); err != nil {
		t.Fatal(err)
	}

	// Fresh cache so the memory tier cannot answer.
	stale, err := New(c.Dir(), log.New(io.Discard))
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := stale.Get("BSD-3-Clause"); ok {
		t.Error("expired entry reported as a hit")
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("expired file was not deleted")
	}
	if _, ok := stale.Get("BSD-3-Clause"); ok {
		t.Error("second Get after expiry reported a hit")
	}
}

func TestFallbackTextNeverPersisted(t *testing.T) {
	c := newTestCache(t)
	sentinel := FallbackPrefix + " for 'GPL-3.0' could not be retrieved. !!!"
	c.Put("GPL-3.0", sentinel)

	// Retrievable in-process so repeated lookups short-circuit.
	got, ok := c.Get("GPL-3.0")
	if !ok || got != sentinel {
		t.Errorf("Get = %q, %v", got, ok)
	}

	if _, err := os.Stat(filepath.Join(c.Dir(), "GPL-3.0.txt")); !os.IsNotExist(err) {
		t.Error("fallback text was written to disk")
	}
}

func TestClear(t *testing.T) {
	c := newTestCache(t)
	c.Put("MIT", "text a")
	c.Put("ISC", "text b")

	c.Clear()

	entries, err := os.ReadDir(c.Dir())
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("%d files left after Clear", len(entries))
	}
	if _, ok := c.Get("MIT"); ok {
		t.Error("memory tier survived Clear")
	}
}

func TestIdentifierSanitizedForFileName(t *testing.T) {
	c := newTestCache(t)
	c.Put("weird/id:name", "text")
	if _, ok := c.Get("weird/id:name"); !ok {
		t.Error("sanitized identifier round-trip failed")
	}
	if _, err := os.Stat(filepath.Join(c.Dir(), "weird_id_name.txt")); err != nil {
		t.Errorf("expected sanitized file name: %v", err)
	}
}

func TestCorruptDiskEntryIsAMiss(t *testing.T) {
	c := newTestCache(t)
	// A directory where a file is expected: Stat succeeds, ReadFile fails.
	if err := os.Mkdir(filepath.Join(c.Dir(), "Zlib.txt"), 0o755); err != nil {
		t.Fatal(err)
	}
	if _, ok := c.Get("Zlib"); ok {
		t.Error("unreadable entry reported as a hit")
	}
}
