package cache

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/quay/zlog"

	"github.com/hydrographs/gridstream"
)

func testStore(t *testing.T, lim Limits) (context.Context, *Store) {
	t.Helper()
	ctx := zlog.Test(context.Background(), t)
	s, err := Open(ctx, filepath.Join(t.TempDir(), "cache.db"), lim)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return ctx, s
}

func TestPutGet(t *testing.T) {
	ctx, s := testStore(t, DefaultLimits())
	data := []byte("grib bytes")
	m := Meta{
		URL:    "https://example.com/file.grib2",
		Source: "hrrr",
		Format: "grib2",
		Kind:   KindBlob,
	}
	if err := s.Put(ctx, "k1", data, m); err != nil {
		t.Fatal(err)
	}
	got, gm, err := s.Get(ctx, "k1")
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, data) {
		t.Errorf("data: got %q", got)
	}
	if gm.URL != m.URL || gm.Source != "hrrr" || gm.Format != "grib2" || gm.Kind != KindBlob {
		t.Errorf("meta: got %+v", gm)
	}

	// Overwrite under the same key.
	if err := s.Put(ctx, "k1", []byte("newer"), m); err != nil {
		t.Fatal(err)
	}
	got, _, err = s.Get(ctx, "k1")
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "newer" {
		t.Errorf("after overwrite: got %q", got)
	}
}

func TestGetMiss(t *testing.T) {
	ctx, s := testStore(t, DefaultLimits())
	b, m, err := s.Get(ctx, "nothing")
	if err != nil || b != nil || m != nil {
		t.Errorf("miss: got %v, %v, %v", b, m, err)
	}
}

func TestMaxEntry(t *testing.T) {
	lim := DefaultLimits()
	lim.MaxEntry = 8
	ctx, s := testStore(t, lim)
	err := s.Put(ctx, "big", make([]byte, 9), Meta{})
	if !errors.Is(err, gridstream.ErrCacheFull) {
		t.Errorf("oversize entry: got %v, want CacheFull", err)
	}
}

func TestTTLExpiry(t *testing.T) {
	lim := DefaultLimits()
	lim.MaxAge = time.Nanosecond
	ctx, s := testStore(t, lim)
	if err := s.Put(ctx, "k", []byte("x"), Meta{}); err != nil {
		t.Fatal(err)
	}
	b, _, err := s.Get(ctx, "k")
	if err != nil {
		t.Fatal(err)
	}
	if b != nil {
		t.Error("entry past MaxAge should be absent")
	}
}

func TestChunkAssembly(t *testing.T) {
	ctx, s := testStore(t, DefaultLimits())
	m := Meta{Source: "threedep", Format: "geotiff"}
	for i, part := range []string{"aaaa", "bbbb", "cc"} {
		if err := s.PutChunk(ctx, "base", i, []byte(part), m); err != nil {
			t.Fatal(err)
		}
	}
	got, gm, err := s.Get(ctx, "base")
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "aaaabbbbcc" {
		t.Errorf("assembled: got %q", got)
	}
	if gm.Kind != KindBlob || gm.Size != 10 {
		t.Errorf("assembled meta: got %+v", gm)
	}

	idx, err := s.ChunkIndices(ctx, "base")
	if err != nil {
		t.Fatal(err)
	}
	if len(idx) != 3 || idx[0] != 0 || idx[2] != 2 {
		t.Errorf("indices: got %v", idx)
	}
}

func TestChunkGap(t *testing.T) {
	ctx, s := testStore(t, DefaultLimits())
	m := Meta{}
	if err := s.PutChunk(ctx, "base", 0, []byte("aa"), m); err != nil {
		t.Fatal(err)
	}
	if err := s.PutChunk(ctx, "base", 2, []byte("cc"), m); err != nil {
		t.Fatal(err)
	}
	b, _, err := s.Get(ctx, "base")
	if err != nil {
		t.Fatal(err)
	}
	if b != nil {
		t.Error("incomplete chunk set should not assemble")
	}
}

func TestPutChunked(t *testing.T) {
	ctx, s := testStore(t, DefaultLimits())
	data := []byte("0123456789")
	if err := s.PutChunked(ctx, "base", data, Meta{}, 4); err != nil {
		t.Fatal(err)
	}
	idx, err := s.ChunkIndices(ctx, "base")
	if err != nil {
		t.Fatal(err)
	}
	if len(idx) != 3 {
		t.Fatalf("got %d chunks, want 3", len(idx))
	}
	got, _, err := s.Get(ctx, "base")
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, data) {
		t.Errorf("round-trip: got %q", got)
	}

	if err := s.DeleteChunks(ctx, "base"); err != nil {
		t.Fatal(err)
	}
	if b, _, _ := s.Get(ctx, "base"); b != nil {
		t.Error("chunks should be gone after DeleteChunks")
	}
}

func TestEviction(t *testing.T) {
	lim := DefaultLimits()
	lim.MaxTotal = 150
	lim.CleanupInterval = time.Nanosecond
	ctx, s := testStore(t, lim)
	for _, k := range []string{"a", "b", "c"} {
		if err := s.Put(ctx, k, make([]byte, 100), Meta{}); err != nil {
			t.Fatal(err)
		}
	}
	s.CleanupIfDue(ctx)
	st, err := s.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if st.TotalBytes > lim.MaxTotal {
		t.Errorf("total %d bytes after cleanup, budget %d", st.TotalBytes, lim.MaxTotal)
	}
}

func TestKv(t *testing.T) {
	ctx, s := testStore(t, DefaultLimits())
	if err := s.KvPut(ctx, "marker", []byte("v1")); err != nil {
		t.Fatal(err)
	}
	b, err := s.KvGet(ctx, "marker")
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != "v1" {
		t.Errorf("got %q", b)
	}
	b, err = s.KvGet(ctx, "absent")
	if err != nil || b != nil {
		t.Errorf("missing kv: got %q, %v", b, err)
	}
}

func TestStatsAndList(t *testing.T) {
	ctx, s := testStore(t, DefaultLimits())
	if err := s.Put(ctx, "blob", []byte("abcd"), Meta{URL: "https://example.com/a"}); err != nil {
		t.Fatal(err)
	}
	if err := s.PutChunk(ctx, "base", 0, []byte("ef"), Meta{}); err != nil {
		t.Fatal(err)
	}
	st, err := s.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if st.Entries != 2 || st.Chunks != 1 || st.TotalBytes != 6 {
		t.Errorf("stats: got %+v", st)
	}
	ls, err := s.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(ls) != 2 {
		t.Fatalf("got %d entries", len(ls))
	}

	if err := s.Clear(ctx); err != nil {
		t.Fatal(err)
	}
	st, err = s.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if st.Entries != 0 {
		t.Errorf("after clear: %+v", st)
	}
}

func TestSchemaReinit(t *testing.T) {
	ctx := zlog.Test(context.Background(), t)
	path := filepath.Join(t.TempDir(), "cache.db")
	s, err := Open(ctx, path, DefaultLimits())
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Put(ctx, "k", []byte("v"), Meta{}); err != nil {
		t.Fatal(err)
	}
	if _, err := s.db.ExecContext(ctx,
		`UPDATE meta SET v = 'stale' WHERE k = 'schema_version'`); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	s, err = Open(ctx, path, DefaultLimits())
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	if b, _, _ := s.Get(ctx, "k"); b != nil {
		t.Error("reinitialized database should be empty")
	}
}
