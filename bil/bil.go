// Package bil reads band-interleaved-by-line rasters with ESRI-style .hdr
// sidecars, the delivery format of PRISM climate normals.
package bil

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/hydrographs/gridstream"
)

// Header is a parsed .hdr sidecar.
type Header struct {
	Rows      int
	Cols      int
	Bits      int
	PixelType string // UNSIGNEDINT, SIGNEDINT, FLOAT
	ULXMap    float64
	ULYMap    float64
	XDim      float64
	YDim      float64
	NoData    float64
	ByteOrder string
}

// ParseHeader reads the keyword-value lines of a .hdr sidecar. Unknown
// keywords are ignored.
func ParseHeader(b []byte) (*Header, error) {
	h := &Header{
		Bits:      32,
		PixelType: "FLOAT",
		XDim:      1,
		YDim:      1,
		NoData:    math.NaN(),
		ByteOrder: "I",
	}
	sc := bufio.NewScanner(strings.NewReader(string(b)))
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) < 2 {
			continue
		}
		key, val := strings.ToUpper(fields[0]), fields[1]
		var err error
		switch key {
		case "NROWS":
			h.Rows, err = strconv.Atoi(val)
		case "NCOLS":
			h.Cols, err = strconv.Atoi(val)
		case "NBITS":
			h.Bits, err = strconv.Atoi(val)
		case "PIXELTYPE":
			h.PixelType = strings.ToUpper(val)
		case "ULXMAP":
			h.ULXMap, err = strconv.ParseFloat(val, 64)
		case "ULYMAP":
			h.ULYMap, err = strconv.ParseFloat(val, 64)
		case "XDIM":
			h.XDim, err = strconv.ParseFloat(val, 64)
		case "YDIM":
			h.YDim, err = strconv.ParseFloat(val, 64)
		case "NODATA":
			h.NoData, err = strconv.ParseFloat(val, 64)
		case "BYTEORDER":
			h.ByteOrder = strings.ToUpper(val)
		}
		if err != nil {
			return nil, parseErr("bad %s value %q: %v", key, val, err)
		}
	}
	if h.Rows == 0 || h.Cols == 0 {
		return nil, parseErr("header missing NROWS/NCOLS")
	}
	return h, nil
}

// Raster is a decoded BIL file.
type Raster struct {
	Header *Header
	Values []float64 // row-major, north row first
}

// Open decodes the raster data against its header.
func Open(data []byte, h *Header) (*Raster, error) {
	size := h.Bits / 8
	need := h.Rows * h.Cols * size
	if len(data) < need {
		return nil, &gridstream.Error{
			Kind:    gridstream.ErrDataIntegrity,
			Message: fmt.Sprintf("bil: %d bytes for %dx%d %d-bit raster, need %d", len(data), h.Cols, h.Rows, h.Bits, need),
		}
	}
	var ord binary.ByteOrder = binary.LittleEndian
	if h.ByteOrder == "M" {
		ord = binary.BigEndian
	}
	vals := make([]float64, h.Rows*h.Cols)
	for i := range vals {
		b := data[i*size:]
		switch {
		case h.PixelType == "FLOAT" && h.Bits == 32:
			vals[i] = float64(math.Float32frombits(ord.Uint32(b)))
		case h.PixelType == "FLOAT" && h.Bits == 64:
			vals[i] = math.Float64frombits(ord.Uint64(b))
		case h.PixelType == "SIGNEDINT" && h.Bits == 16:
			vals[i] = float64(int16(ord.Uint16(b)))
		case h.PixelType == "SIGNEDINT" && h.Bits == 32:
			vals[i] = float64(int32(ord.Uint32(b)))
		case h.PixelType == "UNSIGNEDINT" && h.Bits == 8:
			vals[i] = float64(b[0])
		case h.PixelType == "UNSIGNEDINT" && h.Bits == 16:
			vals[i] = float64(ord.Uint16(b))
		case h.PixelType == "UNSIGNEDINT" && h.Bits == 32:
			vals[i] = float64(ord.Uint32(b))
		default:
			return nil, parseErr("unsupported pixel type %s/%d", h.PixelType, h.Bits)
		}
		if !math.IsNaN(h.NoData) && vals[i] == h.NoData {
			vals[i] = math.NaN()
		}
	}
	return &Raster{Header: h, Values: vals}, nil
}

// Bounds reports the raster extent.
func (r *Raster) Bounds() gridstream.BBox {
	h := r.Header
	return gridstream.BBox{
		West:  h.ULXMap - h.XDim/2,
		North: h.ULYMap + h.YDim/2,
		East:  h.ULXMap + (float64(h.Cols)-0.5)*h.XDim,
		South: h.ULYMap - (float64(h.Rows)-0.5)*h.YDim,
	}
}

// ValueAt returns the sample nearest (lat, lon), NaN for no-data.
func (r *Raster) ValueAt(lat, lon float64) (float64, error) {
	h := r.Header
	col := int(math.Round((lon - h.ULXMap) / h.XDim))
	row := int(math.Round((h.ULYMap - lat) / h.YDim))
	if col < 0 || col >= h.Cols || row < 0 || row >= h.Rows {
		return 0, &gridstream.Error{
			Kind:    gridstream.ErrOutOfDomain,
			Message: fmt.Sprintf("bil: (%f,%f) outside raster", lat, lon),
		}
	}
	return r.Values[row*h.Cols+col], nil
}

func parseErr(format string, args ...interface{}) error {
	return &gridstream.Error{
		Kind:    gridstream.ErrFormatParse,
		Message: fmt.Sprintf("bil: "+format, args...),
	}
}
