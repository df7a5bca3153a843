// Package ircache persists a lowered module to disk, keyed by a
// caller-supplied content digest, so a later run against unchanged
// source can skip re-lowering entirely.
package ircache

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"parlower/internal/ir"
)

// schemaVersion guards against decoding a payload written by an
// earlier, incompatible layout of ir.Snapshot. Bump it whenever
// Snapshot's shape changes.
const schemaVersion uint16 = 1

// Digest identifies one cached module by the hash of whatever the
// caller considers its input (source bytes, a manifest digest).
type Digest = [sha256.Size]byte

// Sum returns the digest of data, the key Put/Get index entries under.
func Sum(data []byte) Digest {
	return sha256.Sum256(data)
}

// payload is the on-disk envelope: a schema tag plus the snapshot
// itself, so a version bump can be detected before msgpack even
// attempts to decode fields that no longer exist.
type payload struct {
	Schema uint16
	Module *ir.Snapshot
}

// Cache stores lowered modules on disk, keyed by Digest. Safe for
// concurrent use.
type Cache struct {
	mu  sync.RWMutex
	dir string
}

// Open initializes a cache rooted at the standard per-app cache
// directory ($XDG_CACHE_HOME, falling back to ~/.cache), creating it
// if necessary.
func Open(app string) (*Cache, error) {
	base := os.Getenv("XDG_CACHE_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}
		base = filepath.Join(home, ".cache")
	}
	dir := filepath.Join(base, app)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &Cache{dir: dir}, nil
}

func (c *Cache) pathFor(key Digest) string {
	return filepath.Join(c.dir, "modules", hex.EncodeToString(key[:])+".mp")
}

// Put serializes m and writes it to disk under key, atomically: it
// writes to a temp file in the same directory and renames over the
// final path, so a reader never observes a partially written file.
func (c *Cache) Put(key Digest, m *ir.Module) error {
	if c == nil || m == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	p := c.pathFor(key)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}

	f, err := os.CreateTemp(filepath.Dir(p), "tmp-*")
	if err != nil {
		return err
	}
	removed := false
	defer func() {
		if !removed {
			_ = os.Remove(f.Name())
		}
	}()

	pl := payload{Schema: schemaVersion, Module: m.Export()}
	if err := msgpack.NewEncoder(f).Encode(&pl); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}

	if err := os.Rename(f.Name(), p); err != nil {
		return err
	}
	removed = true
	return nil
}

// Get reads and deserializes the module stored under key. ok is false
// (with a nil error) when nothing is cached for key, or when the
// cached entry was written by an incompatible schema version.
func (c *Cache) Get(key Digest) (m *ir.Module, ok bool, err error) {
	if c == nil {
		return nil, false, nil
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	p := c.pathFor(key)
	f, err := os.Open(p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, err
	}
	defer func() { _ = f.Close() }()

	var pl payload
	if err := msgpack.NewDecoder(f).Decode(&pl); err != nil {
		return nil, false, err
	}
	if pl.Schema != schemaVersion {
		return nil, false, nil
	}

	return ir.Restore(pl.Module), true, nil
}

// DropAll invalidates the entire cache: the directory is renamed aside
// and removed, so a writer racing with the rename either lands in the
// old directory (harmless, about to be deleted) or the fresh one.
func (c *Cache) DropAll() error {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	old := c.dir + ".old-" + time.Now().Format("20060102150405")
	if err := os.Rename(c.dir, old); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("ircache: drop: %w", err)
	}
	return os.RemoveAll(old)
}
