// Package cache implements the local content-addressed store backing the
// fetch layer.
//
// Entries come in three kinds: Blob (a whole logical payload), Chunk (one
// range of a larger payload, tied to its base key), and Kv (small
// caller-owned values). The backing store is a single sqlite database; the
// schema version is recorded and checked on open, and an incompatible
// database is dropped and recreated rather than migrated. Cache contents are
// a best-effort accelerator, never authoritative.
package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/quay/zlog"
	"golang.org/x/time/rate"
	_ "modernc.org/sqlite" // register the sqlite driver

	"github.com/hydrographs/gridstream"
)

// Schema version. Bump on any incompatible change to the entry table.
const schemaVersion = "2"

// EntryKind discriminates the three concrete entry shapes.
type EntryKind int

const (
	KindBlob EntryKind = iota
	KindChunk
	KindKv
)

// Meta is the metadata record stored alongside every entry.
type Meta struct {
	URL        string
	Source     string
	Dataset    string
	Format     string
	Kind       EntryKind
	Size       int64
	Created    time.Time
	Accessed   time.Time
	BaseKey    string
	ChunkIndex int
	RangeStart int64
	RangeEnd   int64
}

// Limits are the resource bounds of a Store.
type Limits struct {
	// MaxTotal bounds the sum of all entry sizes.
	MaxTotal int64
	// MaxEntry bounds a single entry.
	MaxEntry int64
	// MaxAge makes older entries unreachable and eligible for cleanup.
	MaxAge time.Duration
	// CleanupInterval rate-limits cleanup passes.
	CleanupInterval time.Duration
}

// DefaultLimits mirror the documented environment-knob defaults.
func DefaultLimits() Limits {
	return Limits{
		MaxTotal:        2 << 30,
		MaxEntry:        500 << 20,
		MaxAge:          7 * 24 * time.Hour,
		CleanupInterval: time.Hour,
	}
}

// Store is the sqlite-backed cache. Safe for concurrent use.
type Store struct {
	db      *sql.DB
	lim     Limits
	cleanup *rate.Limiter
	metrics *storeMetrics
}

const schema = `
CREATE TABLE IF NOT EXISTS entry (
	key         TEXT PRIMARY KEY,
	kind        INTEGER NOT NULL,
	data        BLOB NOT NULL,
	url         TEXT NOT NULL DEFAULT '',
	source      TEXT NOT NULL DEFAULT '',
	dataset     TEXT NOT NULL DEFAULT '',
	format      TEXT NOT NULL DEFAULT '',
	size        INTEGER NOT NULL,
	created     INTEGER NOT NULL,
	accessed    INTEGER NOT NULL,
	base_key    TEXT NOT NULL DEFAULT '',
	chunk_index INTEGER NOT NULL DEFAULT 0,
	range_start INTEGER NOT NULL DEFAULT 0,
	range_end   INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS entry_base_idx ON entry(base_key) WHERE base_key <> '';
CREATE INDEX IF NOT EXISTS entry_accessed_idx ON entry(accessed);
CREATE TABLE IF NOT EXISTS meta (
	k TEXT PRIMARY KEY,
	v TEXT NOT NULL
);
`

// Open opens or creates the store at path. An on-disk schema version other
// than the current one reinitializes the database.
func Open(ctx context.Context, path string, lim Limits) (*Store, error) {
	ctx = zlog.ContextWithValues(ctx, "component", "internal/cache/Open")
	db, err := openDB(path)
	if err != nil {
		return nil, err
	}
	ok, err := checkVersion(ctx, db)
	if err != nil {
		db.Close()
		return nil, err
	}
	if !ok {
		zlog.Info(ctx).Str("path", path).Msg("cache schema mismatch, reinitializing")
		db.Close()
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("cache: unable to remove stale database: %w", err)
		}
		if db, err = openDB(path); err != nil {
			return nil, err
		}
		if _, err := checkVersion(ctx, db); err != nil {
			db.Close()
			return nil, err
		}
	}
	s := &Store{
		db:      db,
		lim:     lim,
		cleanup: rate.NewLimiter(rate.Every(lim.CleanupInterval), 1),
		metrics: newStoreMetrics(),
	}
	return s, nil
}

func openDB(path string) (*sql.DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("cache: unable to create directory: %w", err)
	}
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("cache: unable to open database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("cache: unable to create schema: %w", err)
	}
	return db, nil
}

// CheckVersion reports whether the on-disk schema version matches, recording
// the current version on a fresh database.
func checkVersion(ctx context.Context, db *sql.DB) (bool, error) {
	var v string
	err := db.QueryRowContext(ctx, `SELECT v FROM meta WHERE k = 'schema_version'`).Scan(&v)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		_, err := db.ExecContext(ctx,
			`INSERT INTO meta (k, v) VALUES ('schema_version', ?)`, schemaVersion)
		if err != nil {
			return false, fmt.Errorf("cache: unable to record schema version: %w", err)
		}
		return true, nil
	case err != nil:
		return false, &gridstream.Error{Kind: gridstream.ErrCacheCorrupt, Inner: err}
	}
	return v == schemaVersion, nil
}

// Close releases the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Get returns the bytes and metadata for key.
//
// A fresh Blob or Kv entry is returned directly. Otherwise Get attempts
// chunk assembly: all Chunk entries whose base key equals key, concatenated
// in ascending chunk index. Entries older than MaxAge are treated as absent.
func (s *Store) Get(ctx context.Context, key string) ([]byte, *Meta, error) {
	cutoff := time.Now().Add(-s.lim.MaxAge).Unix()
	var (
		data []byte
		m    Meta
		kind int
		cr   int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT data, kind, url, source, dataset, format, size, created, base_key, chunk_index, range_start, range_end
		FROM entry WHERE key = ? AND created > ?`, key, cutoff).
		Scan(&data, &kind, &m.URL, &m.Source, &m.Dataset, &m.Format, &m.Size, &cr,
			&m.BaseKey, &m.ChunkIndex, &m.RangeStart, &m.RangeEnd)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		b, m, aerr := s.assemble(ctx, key, cutoff)
		if aerr != nil || b == nil {
			s.metrics.misses.Inc()
			return nil, nil, aerr
		}
		s.metrics.hits.Inc()
		return b, m, nil
	case err != nil:
		return nil, nil, &gridstream.Error{Kind: gridstream.ErrCacheCorrupt, Inner: err}
	}
	m.Kind = EntryKind(kind)
	m.Created = time.Unix(cr, 0)
	s.touch(ctx, key)
	s.metrics.hits.Inc()
	return data, &m, nil
}

// Assemble concatenates chunk entries sharing the base key. The SELECT reads
// a consistent snapshot, so a concurrent writer adding chunks is invisible.
func (s *Store) assemble(ctx context.Context, baseKey string, cutoff int64) ([]byte, *Meta, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT data, chunk_index, url, source, dataset, format
		FROM entry WHERE base_key = ? AND kind = ? AND created > ?
		ORDER BY chunk_index ASC`, baseKey, KindChunk, cutoff)
	if err != nil {
		return nil, nil, &gridstream.Error{Kind: gridstream.ErrCacheCorrupt, Inner: err}
	}
	defer rows.Close()
	var (
		out  []byte
		m    Meta
		next int
	)
	for rows.Next() {
		var (
			b   []byte
			idx int
		)
		if err := rows.Scan(&b, &idx, &m.URL, &m.Source, &m.Dataset, &m.Format); err != nil {
			return nil, nil, &gridstream.Error{Kind: gridstream.ErrCacheCorrupt, Inner: err}
		}
		if idx != next {
			// A gap means the download never finished; not assemblable.
			return nil, nil, nil
		}
		next++
		out = append(out, b...)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, &gridstream.Error{Kind: gridstream.ErrCacheCorrupt, Inner: err}
	}
	if next == 0 {
		return nil, nil, nil
	}
	m.Kind = KindBlob
	m.BaseKey = baseKey
	m.Size = int64(len(out))
	return out, &m, nil
}

// ChunkIndices reports which chunk indexes are already stored for baseKey,
// in ascending order.
func (s *Store) ChunkIndices(ctx context.Context, baseKey string) ([]int, error) {
	cutoff := time.Now().Add(-s.lim.MaxAge).Unix()
	rows, err := s.db.QueryContext(ctx, `
		SELECT chunk_index FROM entry
		WHERE base_key = ? AND kind = ? AND created > ?
		ORDER BY chunk_index ASC`, baseKey, KindChunk, cutoff)
	if err != nil {
		return nil, &gridstream.Error{Kind: gridstream.ErrCacheCorrupt, Inner: err}
	}
	defer rows.Close()
	var out []int
	for rows.Next() {
		var i int
		if err := rows.Scan(&i); err != nil {
			return nil, &gridstream.Error{Kind: gridstream.ErrCacheCorrupt, Inner: err}
		}
		out = append(out, i)
	}
	return out, rows.Err()
}

// Put stores a Blob (or Kv) entry. Entries larger than MaxEntry are refused.
func (s *Store) Put(ctx context.Context, key string, data []byte, m Meta) error {
	if int64(len(data)) > s.lim.MaxEntry {
		return &gridstream.Error{
			Kind:    gridstream.ErrCacheFull,
			Message: fmt.Sprintf("entry of %d bytes exceeds per-entry limit %d", len(data), s.lim.MaxEntry),
		}
	}
	s.CleanupIfDue(ctx)
	now := time.Now().Unix()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO entry (key, kind, data, url, source, dataset, format, size, created, accessed, base_key, chunk_index, range_start, range_end)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (key) DO UPDATE SET
			kind = excluded.kind, data = excluded.data, url = excluded.url,
			source = excluded.source, dataset = excluded.dataset, format = excluded.format,
			size = excluded.size, created = excluded.created, accessed = excluded.accessed,
			base_key = excluded.base_key, chunk_index = excluded.chunk_index,
			range_start = excluded.range_start, range_end = excluded.range_end`,
		key, m.Kind, data, m.URL, m.Source, m.Dataset, m.Format,
		len(data), now, now, m.BaseKey, m.ChunkIndex, m.RangeStart, m.RangeEnd)
	if err != nil {
		return &gridstream.Error{Kind: gridstream.ErrCacheCorrupt, Inner: err}
	}
	return nil
}

// PutChunk stores one chunk of the logical payload identified by baseKey.
func (s *Store) PutChunk(ctx context.Context, baseKey string, idx int, data []byte, m Meta) error {
	m.Kind = KindChunk
	m.BaseKey = baseKey
	m.ChunkIndex = idx
	return s.Put(ctx, ChunkKey(baseKey, idx), data, m)
}

// PutChunked splits data into chunkSize pieces and stores them as Chunk
// entries. No Blob entry is written; Get serves the payload via assembly.
func (s *Store) PutChunked(ctx context.Context, baseKey string, data []byte, m Meta, chunkSize int64) error {
	for i, off := 0, int64(0); off < int64(len(data)); i, off = i+1, off+chunkSize {
		end := min(off+chunkSize, int64(len(data)))
		cm := m
		cm.RangeStart, cm.RangeEnd = off, end-1
		if err := s.PutChunk(ctx, baseKey, i, data[off:end], cm); err != nil {
			return err
		}
	}
	return nil
}

// KvPut stores a small caller-owned value under a caller-owned key.
func (s *Store) KvPut(ctx context.Context, key string, value []byte) error {
	return s.Put(ctx, "kv|"+key, value, Meta{Kind: KindKv})
}

// KvGet returns a value stored with KvPut, nil when absent.
func (s *Store) KvGet(ctx context.Context, key string) ([]byte, error) {
	b, _, err := s.Get(ctx, "kv|"+key)
	return b, err
}

// ChunkKey is the storage key of one chunk of a logical payload.
func ChunkKey(baseKey string, idx int) string {
	return fmt.Sprintf("%s/chunk-%d", baseKey, idx)
}

// Delete removes the entry stored under key. It does not follow base keys.
func (s *Store) Delete(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM entry WHERE key = ?`, key)
	if err != nil {
		return &gridstream.Error{Kind: gridstream.ErrCacheCorrupt, Inner: err}
	}
	return nil
}

// DeleteChunks removes all chunk entries belonging to baseKey.
func (s *Store) DeleteChunks(ctx context.Context, baseKey string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM entry WHERE base_key = ? AND kind = ?`, baseKey, KindChunk)
	if err != nil {
		return &gridstream.Error{Kind: gridstream.ErrCacheCorrupt, Inner: err}
	}
	return nil
}

// Clear removes every entry.
func (s *Store) Clear(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM entry`)
	if err != nil {
		return &gridstream.Error{Kind: gridstream.ErrCacheCorrupt, Inner: err}
	}
	return nil
}

// Touch advances last-accessed. Failures only log; a stale access time costs
// an early eviction at worst.
func (s *Store) touch(ctx context.Context, key string) {
	_, err := s.db.ExecContext(ctx,
		`UPDATE entry SET accessed = ? WHERE key = ?`, time.Now().Unix(), key)
	if err != nil {
		zlog.Warn(ctx).Str("key", key).Err(err).Msg("unable to update access time")
	}
}

// CleanupIfDue runs a cleanup pass if one hasn't run within the configured
// interval: stale entries first, then least-recently-accessed entries until
// the total size is within budget.
func (s *Store) CleanupIfDue(ctx context.Context) {
	if !s.cleanup.Allow() {
		return
	}
	ctx = zlog.ContextWithValues(ctx, "component", "internal/cache/Store.CleanupIfDue")
	cutoff := time.Now().Add(-s.lim.MaxAge).Unix()
	res, err := s.db.ExecContext(ctx, `DELETE FROM entry WHERE created <= ?`, cutoff)
	if err != nil {
		zlog.Warn(ctx).Err(err).Msg("stale-entry sweep failed")
		return
	}
	if n, err := res.RowsAffected(); err == nil && n > 0 {
		s.metrics.evictions.Add(float64(n))
		zlog.Debug(ctx).Int64("removed", n).Msg("removed stale entries")
	}

	for {
		var total int64
		if err := s.db.QueryRowContext(ctx,
			`SELECT COALESCE(SUM(size), 0) FROM entry`).Scan(&total); err != nil {
			zlog.Warn(ctx).Err(err).Msg("size query failed")
			return
		}
		if total <= s.lim.MaxTotal {
			return
		}
		// Evict in one batch of the least recently used entries.
		res, err := s.db.ExecContext(ctx, `
			DELETE FROM entry WHERE key IN (
				SELECT key FROM entry ORDER BY accessed ASC LIMIT 16
			)`)
		if err != nil {
			zlog.Warn(ctx).Err(err).Msg("eviction failed")
			return
		}
		n, err := res.RowsAffected()
		if err != nil || n == 0 {
			return
		}
		s.metrics.evictions.Add(float64(n))
	}
}

// Stats is a point-in-time summary of the store.
type Stats struct {
	Entries    int64
	Chunks     int64
	TotalBytes int64
}

// Stats reports entry counts and total resident size.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COALESCE(SUM(CASE WHEN kind = ? THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(size), 0)
		FROM entry`, KindChunk).
		Scan(&st.Entries, &st.Chunks, &st.TotalBytes)
	if err != nil {
		return Stats{}, &gridstream.Error{Kind: gridstream.ErrCacheCorrupt, Inner: err}
	}
	return st, nil
}

// ListEntry is one row of List output.
type ListEntry struct {
	Key      string
	Kind     EntryKind
	Size     int64
	Created  time.Time
	Accessed time.Time
	URL      string
}

// List enumerates entries, most recently created first.
func (s *Store) List(ctx context.Context) ([]ListEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT key, kind, size, created, accessed, url
		FROM entry ORDER BY created DESC`)
	if err != nil {
		return nil, &gridstream.Error{Kind: gridstream.ErrCacheCorrupt, Inner: err}
	}
	defer rows.Close()
	var out []ListEntry
	for rows.Next() {
		var (
			e       ListEntry
			kind    int
			cr, acc int64
		)
		if err := rows.Scan(&e.Key, &kind, &e.Size, &cr, &acc, &e.URL); err != nil {
			return nil, &gridstream.Error{Kind: gridstream.ErrCacheCorrupt, Inner: err}
		}
		e.Kind = EntryKind(kind)
		e.Created = time.Unix(cr, 0)
		e.Accessed = time.Unix(acc, 0)
		out = append(out, e)
	}
	return out, rows.Err()
}
