package test

import (
	"archive/zip"
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
)

// TiffOpts parameterizes a synthetic single-strip float32 GeoTIFF.
type TiffOpts struct {
	Width, Height int
	// OriginX/OriginY pin the top-left corner in model space.
	OriginX, OriginY float64
	ScaleX, ScaleY   float64
	EPSG             int
	NoData           float64
	// Values in row-major order, top row first.
	Values []float64
}

// BuildGeoTIFF encodes a little-endian classic TIFF with one uncompressed
// strip, float32 samples, and the GeoKey directory naming the EPSG code.
func BuildGeoTIFF(o TiffOpts) []byte {
	data := make([]byte, 4*len(o.Values))
	for i, v := range o.Values {
		binary.LittleEndian.PutUint32(data[4*i:], math.Float32bits(float32(v)))
	}

	type entry struct {
		tag, typ, count int
		val             uint32 // inline value or payload offset, patched later
		payload         []byte
	}
	le := binary.LittleEndian

	doubles := func(vs ...float64) []byte {
		b := make([]byte, 8*len(vs))
		for i, v := range vs {
			le.PutUint64(b[8*i:], math.Float64bits(v))
		}
		return b
	}
	shorts := func(vs ...uint16) []byte {
		b := make([]byte, 2*len(vs))
		for i, v := range vs {
			le.PutUint16(b[2*i:], v)
		}
		return b
	}

	geoKeys := shorts(
		1, 1, 0, 2, // header: version, revision, minor, 2 keys
		1024, 0, 1, 2, // GTModelType: projected when EPSG is projected
		3072, 0, 1, uint16(o.EPSG), // ProjectedCSType
	)
	nodata := append([]byte(fmt.Sprintf("%g", o.NoData)), 0)

	entries := []entry{
		{tag: 256, typ: 3, count: 1, val: uint32(o.Width)},
		{tag: 257, typ: 3, count: 1, val: uint32(o.Height)},
		{tag: 258, typ: 3, count: 1, val: 32},
		{tag: 259, typ: 3, count: 1, val: 1},
		{tag: 273, typ: 4, count: 1, payload: data},
		{tag: 277, typ: 3, count: 1, val: 1},
		{tag: 278, typ: 3, count: 1, val: uint32(o.Height)},
		{tag: 279, typ: 4, count: 1, val: uint32(len(data))},
		{tag: 339, typ: 3, count: 1, val: 3},
		{tag: 33550, typ: 12, count: 3, payload: doubles(o.ScaleX, o.ScaleY, 0)},
		{tag: 33922, typ: 12, count: 6, payload: doubles(0, 0, 0, o.OriginX, o.OriginY, 0)},
		{tag: 34735, typ: 3, count: len(geoKeys) / 2, payload: geoKeys},
		{tag: 42113, typ: 2, count: len(nodata), payload: nodata},
	}

	// Layout: header, IFD, payloads.
	ifdOff := uint32(8)
	ifdSize := uint32(2 + 12*len(entries) + 4)
	off := ifdOff + ifdSize
	for i := range entries {
		e := &entries[i]
		if e.payload == nil {
			continue
		}
		if e.tag == 273 {
			// Strip offset points at the sample data itself.
			e.val = off
		} else if len(e.payload) > 4 {
			e.val = off
		}
		off += uint32(len(e.payload))
	}

	var buf bytes.Buffer
	buf.WriteString("II")
	hdr := make([]byte, 6)
	le.PutUint16(hdr[0:2], 42)
	le.PutUint32(hdr[2:6], ifdOff)
	buf.Write(hdr)

	cnt := make([]byte, 2)
	le.PutUint16(cnt, uint16(len(entries)))
	buf.Write(cnt)
	for _, e := range entries {
		b := make([]byte, 12)
		le.PutUint16(b[0:2], uint16(e.tag))
		le.PutUint16(b[2:4], uint16(e.typ))
		le.PutUint32(b[4:8], uint32(e.count))
		if e.payload != nil && len(e.payload) <= 4 && e.tag != 273 {
			copy(b[8:12], e.payload)
		} else {
			le.PutUint32(b[8:12], e.val)
		}
		buf.Write(b)
	}
	buf.Write([]byte{0, 0, 0, 0}) // no next IFD
	for _, e := range entries {
		buf.Write(e.payload)
	}
	return buf.Bytes()
}

// BilOpts parameterizes a synthetic BIL delivery.
type BilOpts struct {
	Rows, Cols     int
	ULX, ULY       float64
	XDim, YDim     float64
	NoData         float64
	Values         []float64 // row-major, north row first
	BaseName       string    // archive member basename
	IncludeSidecar bool      // .prj alongside .hdr
}

// BuildPRISMZip packs a float32 BIL raster and its .hdr sidecar the way
// PRISM deliveries arrive.
func BuildPRISMZip(o BilOpts) []byte {
	if o.BaseName == "" {
		o.BaseName = "PRISM_ppt_stable_4kmD2_20240510"
	}
	data := make([]byte, 4*len(o.Values))
	for i, v := range o.Values {
		binary.LittleEndian.PutUint32(data[4*i:], math.Float32bits(float32(v)))
	}
	hdr := fmt.Sprintf(
		"BYTEORDER I\nLAYOUT BIL\nNROWS %d\nNCOLS %d\nNBANDS 1\nNBITS 32\nPIXELTYPE FLOAT\n"+
			"ULXMAP %g\nULYMAP %g\nXDIM %g\nYDIM %g\nNODATA %g\n",
		o.Rows, o.Cols, o.ULX, o.ULY, o.XDim, o.YDim, o.NoData)

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	add := func(name string, b []byte) {
		w, err := zw.Create(name)
		if err != nil {
			panic(err)
		}
		if _, err := w.Write(b); err != nil {
			panic(err)
		}
	}
	add(o.BaseName+".bil", data)
	add(o.BaseName+".hdr", []byte(hdr))
	if o.IncludeSidecar {
		add(o.BaseName+".prj", []byte("GEOGCS[\"NAD83\"]"))
	}
	if err := zw.Close(); err != nil {
		panic(err)
	}
	return buf.Bytes()
}
