// Package buildcache is a local, content-addressed cache from a source
// file's hash to its already-generated instruction text, backed by SQLite.
// It exists so that repeated builds of an unchanged source file (e.g. a
// watch loop re-invoking the generator) skip lowering entirely, grounded
// in the teacher's internal/database driver-registration idiom.
package buildcache

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
	_ "modernc.org/sqlite"
)

// Cache wraps a single SQLite database file holding one row per distinct
// source hash seen so far.
type Cache struct {
	db    *sql.DB
	group singleflight.Group
}

// Open creates (if necessary) and opens the cache database at path.
func Open(path string) (*Cache, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("buildcache: open %s: %w", path, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("buildcache: ping %s: %w", path, err)
	}
	const schema = `
CREATE TABLE IF NOT EXISTS builds (
	source_hash TEXT PRIMARY KEY,
	build_id    TEXT NOT NULL,
	instructions TEXT NOT NULL,
	created_at  DATETIME NOT NULL
);`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("buildcache: create schema: %w", err)
	}
	return &Cache{db: db}, nil
}

func (c *Cache) Close() error {
	return c.db.Close()
}

// Hash returns the cache key for a source file's contents.
func Hash(source []byte) string {
	sum := sha256.Sum256(source)
	return hex.EncodeToString(sum[:])
}

// Entry is one cached build's record, returned by Lookup on a hit. Store
// returns only the build ID.
type Entry struct {
	BuildID      string
	Instructions string
	Hit          bool
}

// Lookup returns the cached entry for hash, if any. A miss is not an
// error: ok is false and err is nil.
func (c *Cache) Lookup(ctx context.Context, hash string) (entry Entry, ok bool, err error) {
	row := c.db.QueryRowContext(ctx, `SELECT build_id, instructions FROM builds WHERE source_hash = ?`, hash)
	var e Entry
	if err := row.Scan(&e.BuildID, &e.Instructions); err != nil {
		if err == sql.ErrNoRows {
			return Entry{}, false, nil
		}
		return Entry{}, false, fmt.Errorf("buildcache: lookup %s: %w", hash, err)
	}
	e.Hit = true
	return e, true, nil
}

// Store records a freshly generated build under hash, returning the new
// build ID. Concurrent Stores for the same hash (e.g. a watcher racing a
// manual rebuild) are coalesced: only one write reaches the database and
// every caller observes the same build ID.
func (c *Cache) Store(ctx context.Context, hash, instructions string) (string, error) {
	v, err, _ := c.group.Do(hash, func() (interface{}, error) {
		if entry, ok, err := c.Lookup(ctx, hash); err == nil && ok {
			return entry.BuildID, nil
		}
		id := uuid.NewString()
		_, err = c.db.ExecContext(ctx,
			`INSERT OR REPLACE INTO builds (source_hash, build_id, instructions, created_at) VALUES (?, ?, ?, ?)`,
			hash, id, instructions, time.Now().UTC())
		if err != nil {
			return nil, fmt.Errorf("buildcache: store %s: %w", hash, err)
		}
		return id, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}
