package test

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"

	"github.com/klauspost/compress/gzip"
)

// ZarrOpts parameterizes a synthetic single-variable Zarr V2 store.
type ZarrOpts struct {
	Variable string
	Shape    []int // (time, lat, lon)
	Chunks   []int
	// Scale, Offset, and Fill become .zattrs scale_factor/add_offset/
	// _FillValue when Scale is non-zero.
	Scale  float64
	Offset float64
	Fill   float64
	Units  string

	// Cells maps flat C-order global indexes to raw int16 values; unset
	// cells are zero.
	Cells map[int]int16
}

// BuildZarrStore lays the store out as path-keyed files: the .zarray and
// .zattrs documents plus every chunk, gzip-compressed little-endian int16.
func BuildZarrStore(o ZarrOpts) map[string][]byte {
	var fill interface{}
	if !math.IsNaN(o.Fill) {
		fill = o.Fill
	}
	meta := map[string]interface{}{
		"zarr_format": 2,
		"shape":       o.Shape,
		"chunks":      o.Chunks,
		"dtype":       "<i2",
		"order":       "C",
		"compressor":  map[string]interface{}{"id": "gzip", "level": 1},
		"fill_value":  fill,
	}
	mb, err := json.Marshal(meta)
	if err != nil {
		panic(err)
	}
	out := map[string][]byte{o.Variable + "/.zarray": mb}

	attrs := map[string]interface{}{}
	if o.Scale != 0 {
		attrs["scale_factor"] = o.Scale
		attrs["add_offset"] = o.Offset
		attrs["_FillValue"] = o.Fill
	}
	if o.Units != "" {
		attrs["units"] = o.Units
	}
	ab, err := json.Marshal(attrs)
	if err != nil {
		panic(err)
	}
	out[o.Variable+"/.zattrs"] = ab

	nChunks := make([]int, len(o.Shape))
	for d := range o.Shape {
		nChunks[d] = (o.Shape[d] + o.Chunks[d] - 1) / o.Chunks[d]
	}
	chunkLen := 1
	for _, c := range o.Chunks {
		chunkLen *= c
	}

	// Materialize every chunk, then overlay the set cells.
	raw := map[string][]int16{}
	for idx, v := range o.Cells {
		g := unflatten(idx, o.Shape)
		chunk := make([]int, len(g))
		within := make([]int, len(g))
		for d := range g {
			chunk[d] = g[d] / o.Chunks[d]
			within[d] = g[d] % o.Chunks[d]
		}
		key := chunkPath(o.Variable, chunk)
		vals, ok := raw[key]
		if !ok {
			vals = make([]int16, chunkLen)
			raw[key] = vals
		}
		off := 0
		for d := range within {
			off = off*o.Chunks[d] + within[d]
		}
		vals[off] = v
	}
	// Ensure the chunk covering index 0 exists even with no cells set.
	zero := make([]int, len(o.Shape))
	if _, ok := raw[chunkPath(o.Variable, zero)]; !ok {
		raw[chunkPath(o.Variable, zero)] = make([]int16, chunkLen)
	}

	for key, vals := range raw {
		b := make([]byte, 2*len(vals))
		for i, v := range vals {
			binary.LittleEndian.PutUint16(b[2*i:], uint16(v))
		}
		out[key] = gzipBytes(b)
	}
	return out
}

// PackCell computes the raw int16 a cooked value packs to under the given
// scale and offset.
func PackCell(cooked, scale, offset float64) int16 {
	return int16(math.Round((cooked - offset) / scale))
}

func chunkPath(variable string, chunk []int) string {
	s := variable + "/"
	for i, c := range chunk {
		if i > 0 {
			s += "."
		}
		s += fmt.Sprintf("%d", c)
	}
	return s
}

func unflatten(idx int, shape []int) []int {
	out := make([]int, len(shape))
	for d := len(shape) - 1; d >= 0; d-- {
		out[d] = idx % shape[d]
		idx /= shape[d]
	}
	return out
}

func gzipBytes(b []byte) []byte {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(b); err != nil {
		panic(err)
	}
	if err := zw.Close(); err != nil {
		panic(err)
	}
	return buf.Bytes()
}
