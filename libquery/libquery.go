// Package libquery is the public face of the module: it wires the adapter
// registry, fetch orchestrator, cache, and decoders into the point, grid,
// and time-series operations callers use.
package libquery

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/quay/zlog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/hydrographs/gridstream/driver"
	"github.com/hydrographs/gridstream/internal/cache"
	"github.com/hydrographs/gridstream/internal/fetch"
	"github.com/hydrographs/gridstream/internal/httputil"
)

// DefaultParallelism bounds the fan-out of time-series and multi-point
// operations.
const DefaultParallelism = 4

// Options are the construction parameters of a Lib. The zero value plus an
// adapter set is usable; environment knobs override individual fields.
type Options struct {
	// Adapters is the source registry. Required.
	Adapters driver.AdapterSet
	// CacheDir holds the sqlite cache; empty selects a per-user directory.
	CacheDir string
	// DisableCache runs without any persistent store.
	DisableCache bool

	Limits      cache.Limits
	HTTPTimeout time.Duration
	Proxies     httputil.ProxyList
	ChunkSize   int64
	MaxChunks   int
	Parallelism int
}

// Lib is the top-level handle. Safe for concurrent use.
type Lib struct {
	set      driver.AdapterSet
	fc       *fetch.Client
	store    *cache.Store
	parallel int
	tracer   trace.Tracer
}

// New constructs a Lib from opts overlaid with the environment knobs:
// MAX_TOTAL_CACHE_BYTES, MAX_ENTRY_BYTES, MAX_AGE_SECONDS,
// CLEANUP_INTERVAL_SECONDS, HTTP_TIMEOUT_SECONDS, CHUNK_SIZE_BYTES,
// MAX_CHUNKS_PER_RESOURCE, FETCH_PARALLELISM, PROXY_LIST.
func New(ctx context.Context, opts Options) (*Lib, error) {
	ctx = zlog.ContextWithValues(ctx, "component", "libquery/New")
	fromEnv(&opts)

	l := &Lib{
		set:      opts.Adapters,
		parallel: opts.Parallelism,
		tracer:   otel.Tracer("github.com/hydrographs/gridstream/libquery"),
	}
	if l.parallel <= 0 {
		l.parallel = DefaultParallelism
	}

	if !opts.DisableCache {
		dir := opts.CacheDir
		if dir == "" {
			base, err := os.UserCacheDir()
			if err != nil {
				return nil, fmt.Errorf("libquery: no cache dir: %w", err)
			}
			dir = filepath.Join(base, "gridstream")
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("libquery: cache dir: %w", err)
		}
		lim, def := opts.Limits, cache.DefaultLimits()
		if lim.MaxTotal == 0 {
			lim.MaxTotal = def.MaxTotal
		}
		if lim.MaxEntry == 0 {
			lim.MaxEntry = def.MaxEntry
		}
		if lim.MaxAge == 0 {
			lim.MaxAge = def.MaxAge
		}
		if lim.CleanupInterval == 0 {
			lim.CleanupInterval = def.CleanupInterval
		}
		s, err := cache.Open(ctx, filepath.Join(dir, "cache.db"), lim)
		if err != nil {
			return nil, err
		}
		l.store = s
	}

	l.fc = fetch.New(fetch.Config{
		HTTP:      httputil.New(nil, opts.HTTPTimeout),
		Store:     l.store,
		Proxies:   opts.Proxies,
		ChunkSize: opts.ChunkSize,
		MaxChunks: opts.MaxChunks,
	})
	zlog.Info(ctx).
		Int("adapters", len(opts.Adapters.Adapters())).
		Bool("cache", l.store != nil).
		Msg("initialized")
	return l, nil
}

// Close releases the cache handle. The Lib is unusable afterwards.
func (l *Lib) Close(_ context.Context) error {
	if l.store != nil {
		return l.store.Close()
	}
	return nil
}

// Sources lists the registered source identifiers.
func (l *Lib) Sources() []string {
	as := l.set.Adapters()
	out := make([]string, len(as))
	for i, a := range as {
		out[i] = a.Name()
	}
	return out
}

// CacheStats reports the cache's resident entries and bytes.
func (l *Lib) CacheStats(ctx context.Context) (cache.Stats, error) {
	if l.store == nil {
		return cache.Stats{}, nil
	}
	return l.store.Stats(ctx)
}

// CacheList enumerates the cache's entries.
func (l *Lib) CacheList(ctx context.Context) ([]cache.ListEntry, error) {
	if l.store == nil {
		return nil, nil
	}
	return l.store.List(ctx)
}

// CacheClear removes every cache entry.
func (l *Lib) CacheClear(ctx context.Context) error {
	if l.store == nil {
		return nil
	}
	return l.store.Clear(ctx)
}

// FromEnv overlays the documented environment knobs onto opts. Malformed
// values are ignored; a knob that cannot be parsed keeps the programmed
// default rather than failing startup.
func fromEnv(opts *Options) {
	if v, ok := envInt64("MAX_TOTAL_CACHE_BYTES"); ok {
		opts.Limits.MaxTotal = v
	}
	if v, ok := envInt64("MAX_ENTRY_BYTES"); ok {
		opts.Limits.MaxEntry = v
	}
	if v, ok := envInt64("MAX_AGE_SECONDS"); ok {
		opts.Limits.MaxAge = time.Duration(v) * time.Second
	}
	if v, ok := envInt64("CLEANUP_INTERVAL_SECONDS"); ok {
		opts.Limits.CleanupInterval = time.Duration(v) * time.Second
	}
	if v, ok := envInt64("HTTP_TIMEOUT_SECONDS"); ok {
		opts.HTTPTimeout = time.Duration(v) * time.Second
	}
	if v, ok := envInt64("CHUNK_SIZE_BYTES"); ok {
		opts.ChunkSize = v
	}
	if v, ok := envInt64("MAX_CHUNKS_PER_RESOURCE"); ok {
		opts.MaxChunks = int(v)
	}
	if v, ok := envInt64("FETCH_PARALLELISM"); ok {
		opts.Parallelism = int(v)
	}
	if s := os.Getenv("PROXY_LIST"); s != "" {
		opts.Proxies = httputil.ParseProxyList(s)
	}
}

func envInt64(name string) (int64, bool) {
	s := os.Getenv(name)
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
