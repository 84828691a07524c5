// Package httputil implements the raw HTTP transport: request execution with
// deadlines, range requests, HEAD probes, and the typed status-code error
// taxonomy shared by the fetch layer.
package httputil

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/quay/zlog"

	"github.com/hydrographs/gridstream"
)

// DefaultTimeout is the per-request deadline when none is configured.
const DefaultTimeout = 60 * time.Second

// ErrRangeExhausted is the terminal condition of an open-ended range walk:
// the server reported 416 Range Not Satisfiable. It is not a failure.
var ErrRangeExhausted = errors.New("httputil: requested range beyond end of resource")

// Client executes individual HTTP requests. It is safe for concurrent use.
type Client struct {
	c       *http.Client
	timeout time.Duration
}

// New returns a Client wrapping hc. A nil hc uses a fresh [http.Client];
// a zero timeout uses [DefaultTimeout].
func New(hc *http.Client, timeout time.Duration) *Client {
	if hc == nil {
		hc = &http.Client{}
	}
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	return &Client{c: hc, timeout: timeout}
}

// Get issues a GET for the URL. Non-2xx statuses are mapped into the
// transport error taxonomy; the caller owns the response body on success.
func (c *Client) Get(ctx context.Context, url string) (*http.Response, error) {
	return c.do(ctx, http.MethodGet, url, -1, -1)
}

// Head issues a HEAD for the URL.
func (c *Client) Head(ctx context.Context, url string) (*http.Response, error) {
	return c.do(ctx, http.MethodHead, url, -1, -1)
}

// GetRange issues a GET with a bytes=start-end header. A 206 is the expected
// success; a 416 returns [ErrRangeExhausted]. Servers that ignore the header
// and answer 200 are tolerated, the caller must notice the full body.
func (c *Client) GetRange(ctx context.Context, url string, start, end int64) (*http.Response, error) {
	return c.do(ctx, http.MethodGet, url, start, end)
}

func (c *Client) do(ctx context.Context, method, url string, start, end int64) (*http.Response, error) {
	ctx, done := context.WithTimeout(ctx, c.timeout)
	// The cancel function must survive the return of a live body; tie it to
	// the body's Close instead of deferring it.
	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		done()
		return nil, &gridstream.Error{Kind: gridstream.ErrTransport, URL: url, Inner: err}
	}
	if start >= 0 {
		req.Header.Set("range", fmt.Sprintf("bytes=%d-%d", start, end))
	}
	resp, err := c.c.Do(req)
	if err != nil {
		done()
		return nil, mapTransportErr(ctx, url, err)
	}
	resp.Body = &cancelBody{ReadCloser: resp.Body, done: done}
	switch {
	case resp.StatusCode == http.StatusOK, resp.StatusCode == http.StatusPartialContent:
		return resp, nil
	case resp.StatusCode == http.StatusRequestedRangeNotSatisfiable:
		resp.Body.Close()
		return nil, ErrRangeExhausted
	default:
		defer resp.Body.Close()
		return nil, statusError(resp, url)
	}
}

// CancelBody ties a context cancel function to the response body so that
// sockets are released when the caller is done reading.
type cancelBody struct {
	io.ReadCloser
	done context.CancelFunc
}

func (b *cancelBody) Close() error {
	err := b.ReadCloser.Close()
	b.done()
	return err
}

func mapTransportErr(ctx context.Context, url string, err error) error {
	kind := gridstream.ErrTransport
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		kind = gridstream.ErrTimeout
	case errors.Is(err, context.Canceled):
		kind = gridstream.ErrCancelled
	}
	zlog.Debug(ctx).Str("url", url).Err(err).Msg("request failed")
	return &gridstream.Error{Kind: kind, URL: url, Inner: err}
}

// StatusError maps a non-2xx response into the error taxonomy. The response
// body may indicate what's going on, so include some of it in the error
// message. Capped at 256 bytes in order to not flood the log.
func statusError(resp *http.Response, url string) error {
	var kind gridstream.ErrorKind
	switch resp.StatusCode {
	case http.StatusNotFound:
		kind = gridstream.ErrNotFound
	case http.StatusForbidden:
		kind = gridstream.ErrForbidden
	case http.StatusTooManyRequests:
		kind = gridstream.ErrRateLimited
	default:
		kind = gridstream.ErrTransport
	}
	msg := fmt.Sprintf("unexpected status code: %s", resp.Status)
	if bodyStart, err := io.ReadAll(io.LimitReader(resp.Body, 256)); err == nil && len(bodyStart) > 0 {
		msg = fmt.Sprintf("unexpected status code: %s (body starts: %q)", resp.Status, bodyStart)
	}
	return &gridstream.Error{Kind: kind, URL: url, Message: msg}
}

// ContentRangeTotal parses the total length out of a Content-Range header of
// the form "bytes start-end/total". A "*" total reports -1, nil.
func ContentRangeTotal(h string) (int64, error) {
	if h == "" {
		return -1, fmt.Errorf("httputil: empty content-range")
	}
	rest, ok := strings.CutPrefix(h, "bytes ")
	if !ok {
		return -1, fmt.Errorf("httputil: malformed content-range %q", h)
	}
	_, tot, ok := strings.Cut(rest, "/")
	if !ok {
		return -1, fmt.Errorf("httputil: malformed content-range %q", h)
	}
	if tot == "*" {
		return -1, nil
	}
	n, err := strconv.ParseInt(tot, 10, 64)
	if err != nil {
		return -1, fmt.Errorf("httputil: malformed content-range %q: %w", h, err)
	}
	return n, nil
}
