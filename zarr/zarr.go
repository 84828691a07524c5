// Package zarr implements a reader for Zarr V2 array stores: the .zarray
// and .zattrs JSON sidecars, chunk-path arithmetic, and typed chunk
// decoding. Only C-order arrays are supported; every store in the wild that
// this module talks to declares them.
package zarr

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/hydrographs/gridstream"
	"github.com/hydrographs/gridstream/internal/zreader"
)

// Compressor is the compressor stanza of a .zarray document.
type Compressor struct {
	ID    string `json:"id"`
	CName string `json:"cname,omitempty"`
	// Blosc extras, unused but tolerated.
	CLevel  int `json:"clevel,omitempty"`
	Shuffle int `json:"shuffle,omitempty"`
}

// ArrayMeta is a parsed .zarray document.
type ArrayMeta struct {
	Shape      []int           `json:"shape"`
	Chunks     []int           `json:"chunks"`
	DType      string          `json:"dtype"`
	Order      string          `json:"order"`
	Compressor *Compressor     `json:"compressor"`
	FillValue  json.RawMessage `json:"fill_value"`
	ZarrFormat int             `json:"zarr_format"`
}

// ParseArrayMeta decodes a .zarray document.
func ParseArrayMeta(b []byte) (*ArrayMeta, error) {
	var m ArrayMeta
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, parseErr("bad .zarray: %v", err)
	}
	if m.ZarrFormat != 0 && m.ZarrFormat != 2 {
		return nil, parseErr("unsupported zarr_format %d", m.ZarrFormat)
	}
	if m.Order != "" && m.Order != "C" {
		return nil, parseErr("unsupported array order %q", m.Order)
	}
	if len(m.Shape) != len(m.Chunks) {
		return nil, parseErr("shape rank %d vs chunk rank %d", len(m.Shape), len(m.Chunks))
	}
	return &m, nil
}

// Fill reports the array's fill value, NaN when null or unparseable.
func (m *ArrayMeta) Fill() float64 {
	s := strings.TrimSpace(string(m.FillValue))
	if s == "" || s == "null" {
		return math.NaN()
	}
	if s == `"NaN"` {
		return math.NaN()
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return math.NaN()
}

// ChunkLen reports the element count of one full chunk.
func (m *ArrayMeta) ChunkLen() int {
	n := 1
	for _, c := range m.Chunks {
		n *= c
	}
	return n
}

// Attrs is a parsed .zattrs document. Scale and fill metadata is read from
// here in preference to static configuration, since it varies by dataset
// version.
type Attrs map[string]interface{}

// ParseAttrs decodes a .zattrs document.
func ParseAttrs(b []byte) (Attrs, error) {
	var a Attrs
	if err := json.Unmarshal(b, &a); err != nil {
		return nil, parseErr("bad .zattrs: %v", err)
	}
	return a, nil
}

// Float reports a numeric attribute.
func (a Attrs) Float(name string) (float64, bool) {
	v, ok := a[name]
	if !ok {
		return 0, false
	}
	f, ok := v.(float64)
	return f, ok
}

// ChunkCoord locates a global index tuple: which chunk holds it and where
// within that chunk.
func (m *ArrayMeta) ChunkCoord(idx []int) (chunk, within []int, err error) {
	if len(idx) != len(m.Shape) {
		return nil, nil, parseErr("index rank %d against array rank %d", len(idx), len(m.Shape))
	}
	chunk = make([]int, len(idx))
	within = make([]int, len(idx))
	for d, i := range idx {
		if i < 0 || i >= m.Shape[d] {
			return nil, nil, parseErr("index %d outside dimension %d of %d", i, d, m.Shape[d])
		}
		chunk[d] = i / m.Chunks[d]
		within[d] = i % m.Chunks[d]
	}
	return chunk, within, nil
}

// ChunkKey builds the store-relative path of a chunk file:
// variable/idx.idx.idx.
func ChunkKey(variable string, chunk []int) string {
	parts := make([]string, len(chunk))
	for i, c := range chunk {
		parts[i] = strconv.Itoa(c)
	}
	return variable + "/" + strings.Join(parts, ".")
}

// Offset flattens a within-chunk coordinate to the element offset in
// C-order.
func (m *ArrayMeta) Offset(within []int) int {
	off := 0
	for d, w := range within {
		off = off*m.Chunks[d] + w
	}
	return off
}

// DecodeChunk decompresses and decodes one chunk file into float64s laid
// out in C-order of the chunk shape.
func DecodeChunk(b []byte, m *ArrayMeta) ([]float64, error) {
	raw, err := zreader.Decompress(b)
	if err != nil {
		return nil, err
	}
	return decodeTyped(raw, m.DType, m.ChunkLen())
}

// DecodeTyped interprets raw bytes per a Zarr dtype string. The leading
// character selects endianness, then a type letter and byte size:
// "<f4", ">i2", "|u1", and friends.
func decodeTyped(raw []byte, dtype string, n int) ([]float64, error) {
	if len(dtype) < 3 {
		return nil, parseErr("bad dtype %q", dtype)
	}
	var ord binary.ByteOrder = binary.LittleEndian
	switch dtype[0] {
	case '<', '|':
	case '>':
		ord = binary.BigEndian
	default:
		return nil, parseErr("bad dtype byte-order %q", dtype)
	}
	kind := dtype[1]
	size, err := strconv.Atoi(dtype[2:])
	if err != nil {
		return nil, parseErr("bad dtype %q", dtype)
	}
	if len(raw) < n*size {
		return nil, &gridstream.Error{
			Kind:    gridstream.ErrDataIntegrity,
			Message: fmt.Sprintf("zarr: chunk holds %d bytes, dtype %q needs %d", len(raw), dtype, n*size),
		}
	}
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		b := raw[i*size:]
		switch {
		case kind == 'f' && size == 4:
			out[i] = float64(math.Float32frombits(ord.Uint32(b)))
		case kind == 'f' && size == 8:
			out[i] = math.Float64frombits(ord.Uint64(b))
		case kind == 'i' && size == 1:
			out[i] = float64(int8(b[0]))
		case kind == 'i' && size == 2:
			out[i] = float64(int16(ord.Uint16(b)))
		case kind == 'i' && size == 4:
			out[i] = float64(int32(ord.Uint32(b)))
		case kind == 'i' && size == 8:
			out[i] = float64(int64(ord.Uint64(b)))
		case kind == 'u' && size == 1:
			out[i] = float64(b[0])
		case kind == 'u' && size == 2:
			out[i] = float64(ord.Uint16(b))
		case kind == 'u' && size == 4:
			out[i] = float64(ord.Uint32(b))
		default:
			return nil, parseErr("unsupported dtype %q", dtype)
		}
	}
	return out, nil
}

func parseErr(format string, args ...interface{}) error {
	return &gridstream.Error{
		Kind:    gridstream.ErrFormatParse,
		Message: fmt.Sprintf("zarr: "+format, args...),
	}
}
