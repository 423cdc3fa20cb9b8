package compiler

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	_ "modernc.org/sqlite"

	"github.com/funvibe/gobridge/internal/signature"
	"github.com/funvibe/gobridge/internal/trampoline"
)

// Cache stores bridged plugins under a key derived from the unit source,
// so an unchanged unit skips compilation and discovery. Plugin files live
// in the cache directory; their metadata lives in a sqlite index.
type Cache struct {
	dir string
	db  *sql.DB
}

// Entry is one cached artifact.
type Entry struct {
	Key       string
	Name      string
	Path      string
	Functions []signature.Function
	Classes   []signature.Class
	Created   time.Time
	Hits      int
}

// Artifact returns the cached plugin as a workspace-less artifact.
func (e *Entry) Artifact() *Artifact {
	return &Artifact{Name: e.Name, Path: e.Path}
}

const schema = `
CREATE TABLE IF NOT EXISTS artifacts (
	key        TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	path       TEXT NOT NULL,
	functions  TEXT NOT NULL,
	classes    TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	hits       INTEGER NOT NULL DEFAULT 0
)`

// OpenCache opens or creates the cache in dir.
func OpenCache(ctx context.Context, dir string) (*Cache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating cache dir: %w", err)
	}
	db, err := sql.Open("sqlite", filepath.Join(dir, "index.db"))
	if err != nil {
		return nil, fmt.Errorf("opening cache index: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating cache index: %w", err)
	}
	return &Cache{dir: dir, db: db}, nil
}

// Dir returns the cache directory.
func (c *Cache) Dir() string { return c.dir }

// Close closes the index.
func (c *Cache) Close() error { return c.db.Close() }

// Key computes the cache key of a unit. toolchain is the GOVERSION string
// of the go command; plugins only load into binaries built by the same one.
func Key(code []byte, modulePath, toolchain string) string {
	h := sha256.New()
	h.Write(code)
	for _, part := range []string{runtime.GOOS, runtime.GOARCH, toolchain, modulePath, trampoline.Version} {
		h.Write([]byte("\x00"))
		h.Write([]byte(part))
	}
	return hex.EncodeToString(h.Sum(nil))[:16]
}

// Lookup returns the entry for key. Entries whose plugin file has gone
// missing are dropped and reported as misses.
func (c *Cache) Lookup(ctx context.Context, key string) (*Entry, bool, error) {
	row := c.db.QueryRowContext(ctx,
		`SELECT name, path, functions, classes, created_at, hits FROM artifacts WHERE key = ?`, key)

	e := &Entry{Key: key}
	var fns, classes string
	var created int64
	if err := row.Scan(&e.Name, &e.Path, &fns, &classes, &created, &e.Hits); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("reading cache index: %w", err)
	}

	if info, err := os.Stat(e.Path); err != nil || info.Size() == 0 {
		if _, err := c.db.ExecContext(ctx, `DELETE FROM artifacts WHERE key = ?`, key); err != nil {
			return nil, false, fmt.Errorf("pruning cache index: %w", err)
		}
		return nil, false, nil
	}

	if err := json.Unmarshal([]byte(fns), &e.Functions); err != nil {
		return nil, false, fmt.Errorf("decoding cached functions: %w", err)
	}
	if err := json.Unmarshal([]byte(classes), &e.Classes); err != nil {
		return nil, false, fmt.Errorf("decoding cached classes: %w", err)
	}
	e.Created = time.Unix(created, 0)

	if _, err := c.db.ExecContext(ctx, `UPDATE artifacts SET hits = hits + 1 WHERE key = ?`, key); err != nil {
		return nil, false, fmt.Errorf("updating cache index: %w", err)
	}
	e.Hits++
	return e, true, nil
}

// Store copies the plugin of art into the cache and records it.
func (c *Cache) Store(ctx context.Context, key string, art *Artifact, fns []signature.Function, classes []signature.Class) (*Entry, error) {
	data, err := os.ReadFile(art.Path)
	if err != nil {
		return nil, fmt.Errorf("reading plugin: %w", err)
	}
	cached := filepath.Join(c.dir, art.Name+"-"+key+".so")
	if err := os.WriteFile(cached, data, 0o755); err != nil {
		return nil, fmt.Errorf("writing cache: %w", err)
	}

	fnJSON, err := json.Marshal(fns)
	if err != nil {
		return nil, fmt.Errorf("encoding functions: %w", err)
	}
	classJSON, err := json.Marshal(classes)
	if err != nil {
		return nil, fmt.Errorf("encoding classes: %w", err)
	}

	now := time.Now()
	_, err = c.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO artifacts (key, name, path, functions, classes, created_at, hits)
		 VALUES (?, ?, ?, ?, ?, ?, 0)`,
		key, art.Name, cached, string(fnJSON), string(classJSON), now.Unix())
	if err != nil {
		return nil, fmt.Errorf("writing cache index: %w", err)
	}
	return &Entry{Key: key, Name: art.Name, Path: cached, Functions: fns, Classes: classes, Created: time.Unix(now.Unix(), 0)}, nil
}

// List returns every entry, newest first, without function lists.
func (c *Cache) List(ctx context.Context) ([]Entry, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT key, name, path, created_at, hits FROM artifacts ORDER BY created_at DESC, key`)
	if err != nil {
		return nil, fmt.Errorf("listing cache: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var created int64
		if err := rows.Scan(&e.Key, &e.Name, &e.Path, &created, &e.Hits); err != nil {
			return nil, fmt.Errorf("listing cache: %w", err)
		}
		e.Created = time.Unix(created, 0)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Clean removes every cached plugin and index row.
func (c *Cache) Clean(ctx context.Context) error {
	entries, err := c.List(ctx)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if err := os.Remove(e.Path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("removing %s: %w", e.Path, err)
		}
	}
	if _, err := c.db.ExecContext(ctx, `DELETE FROM artifacts`); err != nil {
		return fmt.Errorf("clearing cache index: %w", err)
	}
	return nil
}
