package test

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
)

// RangeServer serves one payload with RFC 7233 range support: 206 with
// Content-Range inside the resource, 416 past its end. Request counting
// lets cache tests assert "zero HTTP requests on a hit".
type RangeServer struct {
	*httptest.Server
	// Payload is the whole resource.
	Payload []byte
	// RejectHead makes HEAD return 405, forcing the 0-0 probe.
	RejectHead bool
	// HideLength omits Content-Range totals, forcing open-ended mode.
	HideLength bool

	gets  atomic.Int64
	heads atomic.Int64
}

// NewRangeServer starts the server; it is torn down with the test.
func NewRangeServer(t *testing.T, payload []byte) *RangeServer {
	t.Helper()
	s := &RangeServer{Payload: payload}
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	t.Cleanup(s.Close)
	return s
}

// Gets reports the GET count so far.
func (s *RangeServer) Gets() int64 { return s.gets.Load() }

// Heads reports the HEAD count so far.
func (s *RangeServer) Heads() int64 { return s.heads.Load() }

func (s *RangeServer) handle(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodHead:
		s.heads.Add(1)
		if s.RejectHead {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		w.Header().Set("Content-Length", strconv.Itoa(len(s.Payload)))
		return
	case http.MethodGet:
		s.gets.Add(1)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	rng := r.Header.Get("Range")
	if rng == "" {
		w.Write(s.Payload)
		return
	}
	var start, end int64
	if _, err := fmt.Sscanf(strings.TrimSpace(rng), "bytes=%d-%d", &start, &end); err != nil {
		http.Error(w, "bad range", http.StatusBadRequest)
		return
	}
	total := int64(len(s.Payload))
	if start >= total {
		w.WriteHeader(http.StatusRequestedRangeNotSatisfiable)
		return
	}
	if end >= total {
		end = total - 1
	}
	if s.HideLength {
		w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/*", start, end))
	} else {
		w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, end, total))
	}
	w.WriteHeader(http.StatusPartialContent)
	w.Write(s.Payload[start : end+1])
}

// FileServer serves a path-keyed set of blobs, the shape of a Zarr store
// or an object-store prefix. Missing paths 404.
type FileServer struct {
	*httptest.Server
	Files map[string][]byte

	gets atomic.Int64
}

// NewFileServer starts the server over files; keys are rooted paths
// without the leading slash.
func NewFileServer(t *testing.T, files map[string][]byte) *FileServer {
	t.Helper()
	s := &FileServer{Files: files}
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	t.Cleanup(s.Close)
	return s
}

// Gets reports the GET count so far.
func (s *FileServer) Gets() int64 { return s.gets.Load() }

func (s *FileServer) handle(w http.ResponseWriter, r *http.Request) {
	s.gets.Add(1)
	b, ok := s.Files[strings.TrimPrefix(r.URL.Path, "/")]
	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Write(b)
}
