// Package fetch implements the retrieval orchestrator: it decides between
// direct, proxied, and chunked transport, consults the cache, and
// deduplicates concurrent fetches of the same logical payload.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/quay/zlog"
	"golang.org/x/sync/singleflight"

	"github.com/hydrographs/gridstream"
	"github.com/hydrographs/gridstream/internal/cache"
	"github.com/hydrographs/gridstream/internal/httputil"
)

// Defaults for the orchestrator knobs.
const (
	DefaultChunkSize      = 100 << 20
	DefaultChunkThreshold = 100 << 20
	DefaultMaxChunks      = 1000
	DefaultRetryDelay     = 2 * time.Second
)

// Client coordinates transport, proxies, and the cache. Safe for concurrent
// use; concurrent fetches of the same key collapse into one download.
type Client struct {
	hc      *httputil.Client
	store   *cache.Store
	proxies httputil.ProxyList
	sf      singleflight.Group

	chunkSize      int64
	chunkThreshold int64
	maxChunks      int
	retryDelay     time.Duration
}

// Config are the construction parameters for a Client.
type Config struct {
	HTTP    *httputil.Client
	Store   *cache.Store
	Proxies httputil.ProxyList

	ChunkSize      int64
	ChunkThreshold int64
	MaxChunks      int
	RetryDelay     time.Duration
}

// New returns a configured Client. Zero values in cfg select the defaults.
func New(cfg Config) *Client {
	c := &Client{
		hc:             cfg.HTTP,
		store:          cfg.Store,
		proxies:        cfg.Proxies,
		chunkSize:      cfg.ChunkSize,
		chunkThreshold: cfg.ChunkThreshold,
		maxChunks:      cfg.MaxChunks,
		retryDelay:     cfg.RetryDelay,
	}
	if c.hc == nil {
		c.hc = httputil.New(nil, 0)
	}
	if c.proxies == nil {
		c.proxies = httputil.DefaultProxies()
	}
	if c.chunkSize == 0 {
		c.chunkSize = DefaultChunkSize
	}
	if c.chunkThreshold == 0 {
		c.chunkThreshold = DefaultChunkThreshold
	}
	if c.maxChunks == 0 {
		c.maxChunks = DefaultMaxChunks
	}
	if c.retryDelay == 0 {
		c.retryDelay = DefaultRetryDelay
	}
	return c
}

// Options describe one fetch. Key is the logical cache key; it is derived
// from the request, never from the URL actually contacted.
type Options struct {
	Key     string
	Source  string
	Dataset string
	Format  string

	NoCache bool
	// NeedsProxy skips the direct attempt entirely.
	NeedsProxy bool
	// ForceChunked selects the range downloader regardless of size.
	ForceChunked bool
	// NoChunk excludes the payload from chunking (JSON/XML endpoints, Zarr
	// chunk and metadata files).
	NoChunk bool
	// SkipSizeProbe avoids HEAD against servers known to reject it.
	SkipSizeProbe bool
}

// Fetch returns the payload at url, via cache, direct download, proxy
// fallthrough, or the chunked downloader as appropriate.
func (c *Client) Fetch(ctx context.Context, url string, opts Options) ([]byte, error) {
	ctx = zlog.ContextWithValues(ctx,
		"component", "internal/fetch/Client.Fetch",
		"url", url)
	key := opts.Key
	if key == "" {
		key = cache.URLKey(opts.Source, url)
	}

	if c.store != nil && !opts.NoCache {
		b, _, err := c.store.Get(ctx, key)
		switch {
		case err != nil:
			// A broken cache read is a miss, not a failure.
			zlog.Warn(ctx).Err(err).Msg("cache get failed, treating as miss")
		case b != nil:
			zlog.Debug(ctx).Str("key", key).Int("size", len(b)).Msg("cache hit")
			return b, nil
		}
	}

	v, err, _ := c.sf.Do(key, func() (interface{}, error) {
		return c.download(ctx, url, key, opts)
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

func (c *Client) download(ctx context.Context, url, key string, opts Options) ([]byte, error) {
	chunked := !opts.NoChunk &&
		(opts.ForceChunked || c.probeSaysChunk(ctx, url, opts))
	if chunked {
		return c.downloadChunked(ctx, url, key, opts)
	}

	body, err := c.withProxies(ctx, url, opts, func(ctx context.Context, u string) ([]byte, error) {
		resp, err := c.hc.Get(ctx, u)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		b, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, &gridstream.Error{Kind: gridstream.ErrTransport, URL: u, Inner: err}
		}
		return b, nil
	})
	if err != nil {
		return nil, err
	}
	if c.store != nil && !opts.NoCache {
		m := cache.Meta{URL: url, Source: opts.Source, Dataset: opts.Dataset, Format: opts.Format}
		if err := c.store.Put(ctx, key, body, m); err != nil {
			zlog.Warn(ctx).Err(err).Str("key", key).Msg("cache put failed")
		}
	}
	return body, nil
}

// ProbeSaysChunk checks the advertised content length against the chunking
// threshold. Probe failures simply select the direct path.
func (c *Client) probeSaysChunk(ctx context.Context, url string, opts Options) bool {
	if opts.SkipSizeProbe {
		return false
	}
	resp, err := c.hc.Head(ctx, url)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.ContentLength > c.chunkThreshold
}

// WithProxies runs fn against the URL directly and then through each proxy
// in order, until one succeeds. A 429 gets one delayed retry per attempt.
// The final error is the last one observed, annotated with the attempts.
func (c *Client) withProxies(ctx context.Context, url string, opts Options, fn func(context.Context, string) ([]byte, error)) ([]byte, error) {
	attempts := make([]string, 0, len(c.proxies)+1)
	var lastErr error

	try := func(label, u string) ([]byte, bool) {
		b, err := fn(ctx, u)
		if err == nil {
			return b, true
		}
		if errors.Is(err, gridstream.ErrRateLimited) {
			zlog.Debug(ctx).Str("attempt", label).Msg("rate limited, retrying once")
			select {
			case <-time.After(c.retryDelay):
			case <-ctx.Done():
				lastErr = &gridstream.Error{Kind: gridstream.ErrCancelled, URL: url, Inner: context.Cause(ctx)}
				attempts = append(attempts, label)
				return nil, false
			}
			if b, err = fn(ctx, u); err == nil {
				return b, true
			}
		}
		if errors.Is(err, gridstream.ErrCancelled) || errors.Is(err, context.Canceled) ||
			errors.Is(err, httputil.ErrRangeExhausted) {
			// Terminal conditions: not worth another proxy.
			lastErr = err
			attempts = append(attempts, label)
			return nil, false
		}
		zlog.Debug(ctx).Str("attempt", label).Err(err).Msg("attempt failed")
		lastErr = err
		attempts = append(attempts, label)
		return nil, true
	}

	if !opts.NeedsProxy {
		if b, ok := try("direct", url); b != nil {
			return b, nil
		} else if !ok {
			return nil, lastErr
		}
	}
	for _, p := range c.proxies {
		if err := ctx.Err(); err != nil {
			return nil, &gridstream.Error{Kind: gridstream.ErrCancelled, URL: url, Inner: context.Cause(ctx)}
		}
		if b, ok := try(p.Prefix, p.Rewrite(url)); b != nil {
			return b, nil
		} else if !ok {
			return nil, lastErr
		}
	}
	return nil, &gridstream.Error{
		Kind:    gridstream.ErrAllProxiesFailed,
		Source:  opts.Source,
		URL:     url,
		Message: fmt.Sprintf("attempts: %s", strings.Join(attempts, ", ")),
		Inner:   lastErr,
	}
}
