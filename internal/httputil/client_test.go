package httputil

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/quay/zlog"

	"github.com/hydrographs/gridstream"
)

func TestStatusMapping(t *testing.T) {
	tt := []struct {
		status int
		want   gridstream.ErrorKind
	}{
		{http.StatusNotFound, gridstream.ErrNotFound},
		{http.StatusForbidden, gridstream.ErrForbidden},
		{http.StatusTooManyRequests, gridstream.ErrRateLimited},
		{http.StatusInternalServerError, gridstream.ErrTransport},
		{http.StatusBadGateway, gridstream.ErrTransport},
	}
	for _, tc := range tt {
		t.Run(http.StatusText(tc.status), func(t *testing.T) {
			ctx := zlog.Test(context.Background(), t)
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				http.Error(w, "nope", tc.status)
			}))
			defer srv.Close()
			c := New(srv.Client(), 0)
			_, err := c.Get(ctx, srv.URL)
			if !errors.Is(err, tc.want) {
				t.Errorf("got %v, want %v", err, tc.want)
			}
		})
	}
}

func TestGet(t *testing.T) {
	ctx := zlog.Test(context.Background(), t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		io.WriteString(w, "payload")
	}))
	defer srv.Close()
	c := New(srv.Client(), 0)
	resp, err := c.Get(ctx, srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != "payload" {
		t.Errorf("body: got %q", b)
	}
}

func TestGetRange(t *testing.T) {
	ctx := zlog.Test(context.Background(), t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("range"); got != "bytes=0-3" {
			t.Errorf("range header: got %q", got)
		}
		w.Header().Set("content-range", "bytes 0-3/100")
		w.WriteHeader(http.StatusPartialContent)
		io.WriteString(w, "abcd")
	}))
	defer srv.Close()
	c := New(srv.Client(), 0)
	resp, err := c.GetRange(ctx, srv.URL, 0, 3)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusPartialContent {
		t.Errorf("status: got %d", resp.StatusCode)
	}
}

func TestGetRangeExhausted(t *testing.T) {
	ctx := zlog.Test(context.Background(), t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusRequestedRangeNotSatisfiable)
	}))
	defer srv.Close()
	c := New(srv.Client(), 0)
	_, err := c.GetRange(ctx, srv.URL, 1000, 2000)
	if !errors.Is(err, ErrRangeExhausted) {
		t.Errorf("got %v, want ErrRangeExhausted", err)
	}
}

func TestTimeout(t *testing.T) {
	ctx := zlog.Test(context.Background(), t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	}))
	defer srv.Close()
	c := New(srv.Client(), 50*time.Millisecond)
	_, err := c.Get(ctx, srv.URL)
	if !errors.Is(err, gridstream.ErrTimeout) {
		t.Errorf("got %v, want Timeout", err)
	}
}

func TestCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(zlog.Test(context.Background(), t))
	cancel()
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	defer srv.Close()
	c := New(srv.Client(), 0)
	_, err := c.Get(ctx, srv.URL)
	if !errors.Is(err, gridstream.ErrCancelled) {
		t.Errorf("got %v, want Cancelled", err)
	}
}

func TestContentRangeTotal(t *testing.T) {
	tt := []struct {
		h       string
		want    int64
		wantErr bool
	}{
		{"bytes 0-99/1000", 1000, false},
		{"bytes 0-99/*", -1, false},
		{"", -1, true},
		{"items 0-99/1000", -1, true},
		{"bytes 0-99", -1, true},
		{"bytes 0-99/ten", -1, true},
	}
	for _, tc := range tt {
		got, err := ContentRangeTotal(tc.h)
		if (err != nil) != tc.wantErr {
			t.Errorf("ContentRangeTotal(%q): err %v", tc.h, err)
			continue
		}
		if got != tc.want {
			t.Errorf("ContentRangeTotal(%q): got %d, want %d", tc.h, got, tc.want)
		}
	}
}

func TestProxyRewrite(t *testing.T) {
	target := "https://mrms.ncep.noaa.gov/data/2D?a=b"
	esc := Proxy{Prefix: "http://localhost:8080/proxy?url=", QueryEscape: true}
	if got := esc.Rewrite(target); got != "http://localhost:8080/proxy?url=https%3A%2F%2Fmrms.ncep.noaa.gov%2Fdata%2F2D%3Fa%3Db" {
		t.Errorf("escaped rewrite: got %q", got)
	}
	bare := Proxy{Prefix: "https://corsproxy.io/?"}
	if got := bare.Rewrite(target); got != "https://corsproxy.io/?"+target {
		t.Errorf("bare rewrite: got %q", got)
	}
}

func TestParseProxyList(t *testing.T) {
	l := ParseProxyList("http://a/?url=, https://b/ ,")
	if len(l) != 2 {
		t.Fatalf("got %d proxies, want 2", len(l))
	}
	if !l[0].QueryEscape {
		t.Error("?url= prefix should query-escape")
	}
	if l[1].QueryEscape {
		t.Error("bare prefix should not query-escape")
	}
	if len(ParseProxyList("")) != 0 {
		t.Error("empty list should parse to nothing")
	}
}
