// Package buildcache decides whether a benchmark package needs rebuilding.
// It keys on provider, benchmark, and runtime flavor, and compares
// content hashes of the source tree and the build artifact tree against the
// values recorded after the last successful build.
package buildcache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// Entry records the hashes observed right after a successful build.
type Entry struct {
	SourceHash   string `json:"source_hash"`
	ArtifactHash string `json:"artifact_hash"`
}

// Cache is the persisted build cache. All methods are safe for concurrent
// use.
type Cache struct {
	path    string
	mu      sync.Mutex
	entries map[string]Entry
}

// Open loads the cache file at path, or starts empty if it does not exist.
func Open(path string) (*Cache, error) {
	c := &Cache{path: path, entries: map[string]Entry{}}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return c, nil
		}
		return nil, fmt.Errorf("reading build cache: %w", err)
	}
	if err := json.Unmarshal(data, &c.entries); err != nil {
		// A corrupt cache file only costs us rebuilds.
		c.entries = map[string]Entry{}
	}
	return c, nil
}

// ShouldBuild reports whether the package identified by provider, benchmark,
// and native flag must be rebuilt. A rebuild is needed unless both the
// source hash and the artifact hash match the recorded entry.
func (c *Cache) ShouldBuild(provider, benchmark string, native bool, sourceHash, artifactHash string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key(provider, benchmark, native)]
	if !ok {
		return true
	}
	return entry.SourceHash != sourceHash || entry.ArtifactHash != artifactHash
}

// RecordBuild stores the hashes of a successful build and persists the
// cache file.
func (c *Cache) RecordBuild(provider, benchmark string, native bool, sourceHash, artifactHash string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key(provider, benchmark, native)] = Entry{
		SourceHash:   sourceHash,
		ArtifactHash: artifactHash,
	}
	return c.persist()
}

// Clear removes all entries and deletes the cache file.
func (c *Cache) Clear() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = map[string]Entry{}
	if err := os.Remove(c.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing build cache: %w", err)
	}
	return nil
}

// Entries returns a copy of the current cache contents, keyed by
// "<provider>/<benchmark>/<flavor>".
func (c *Cache) Entries() map[string]Entry {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make(map[string]Entry, len(c.entries))
	for k, v := range c.entries {
		out[k] = v
	}
	return out
}

func (c *Cache) persist() error {
	if err := os.MkdirAll(filepath.Dir(c.path), 0755); err != nil {
		return fmt.Errorf("creating cache directory: %w", err)
	}
	data, err := json.MarshalIndent(c.entries, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling build cache: %w", err)
	}
	if err := os.WriteFile(c.path, data, 0644); err != nil {
		return fmt.Errorf("writing build cache: %w", err)
	}
	return nil
}

func key(provider, benchmark string, native bool) string {
	flavor := "jvm"
	if native {
		flavor = "native"
	}
	return provider + "/" + benchmark + "/" + flavor
}

// HashTree computes a content hash over every regular file under dir. Paths
// are hashed in sorted order together with file contents, so the hash is
// independent of directory walk order but sensitive to renames. A missing
// directory hashes to the empty string with a nil error, which never matches
// a recorded entry.
func HashTree(dir string) (string, error) {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return "", nil
	}

	var files []string
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("walking %s: %w", dir, err)
	}
	sort.Strings(files)

	h := sha256.New()
	for _, path := range files {
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return "", err
		}
		// Null byte delimiters keep path and content boundaries from
		// colliding.
		if err := writeString(h, filepath.ToSlash(rel)); err != nil {
			return "", err
		}
		if err := hashFile(h, path); err != nil {
			return "", fmt.Errorf("hashing %s: %w", rel, err)
		}
		if err := writeString(h, ""); err != nil {
			return "", err
		}
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func writeString(w io.Writer, s string) error {
	_, err := w.Write([]byte(s + "\x00"))
	return err
}

func hashFile(h io.Writer, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close() //nolint:errcheck

	if _, err := io.Copy(h, f); err != nil {
		return err
	}
	return nil
}
