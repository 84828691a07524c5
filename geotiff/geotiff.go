// Package geotiff implements a read-only GeoTIFF decoder: TIFF 6.0 with
// strip or tile layouts, LZW, Deflate, and PackBits compression, and the
// GeoKey metadata needed to place pixels in a coordinate system.
//
// Decoding is windowed: only the strips or tiles covering the requested
// pixels are decompressed, so pulling one value out of a continent-sized
// elevation model stays cheap.
package geotiff

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/klauspost/compress/zlib"
	"golang.org/x/image/tiff/lzw"

	"github.com/hydrographs/gridstream"
)

// TIFF tags consumed by the decoder.
const (
	tagImageWidth      = 256
	tagImageLength     = 257
	tagBitsPerSample   = 258
	tagCompression     = 259
	tagStripOffsets    = 273
	tagSamplesPerPixel = 277
	tagRowsPerStrip    = 278
	tagStripByteCounts = 279
	tagPredictor       = 317
	tagTileWidth       = 322
	tagTileLength      = 323
	tagTileOffsets     = 324
	tagTileByteCounts  = 325
	tagSampleFormat    = 339
	tagModelPixelScale = 33550
	tagModelTiepoint   = 33922
	tagGeoKeyDirectory = 34735
	tagGDALNoData      = 42113
)

// Compression codes.
const (
	cmpNone     = 1
	cmpLZW      = 5
	cmpDeflate  = 8
	cmpPackBits = 32773
)

// Sample formats.
const (
	fmtUint  = 1
	fmtInt   = 2
	fmtFloat = 3
)

// GeoKey IDs.
const (
	keyGTModelType     = 1024
	keyGeographicType  = 2048
	keyProjectedCSType = 3072
)

// Image is a parsed GeoTIFF.
type Image struct {
	Width, Height int
	BitsPerSample int
	SampleFormat  int
	SamplesPerPix int
	Compression   int
	Predictor     int
	EPSG          int
	NoData        float64
	PixelScaleX   float64
	PixelScaleY   float64
	OriginX       float64
	OriginY       float64

	order binary.ByteOrder
	b     []byte

	rowsPerStrip int
	stripOffsets []int64
	stripCounts  []int64

	tileWidth  int
	tileLength int
	tileOffs   []int64
	tileCounts []int64

	// One decoded block cache; windowed reads walk blocks sequentially.
	blockIdx  int
	blockData []byte
}

// Tiled reports whether the image uses a tile layout.
func (im *Image) Tiled() bool { return im.tileWidth > 0 }

// Bounds reports the image extent in its native coordinate system,
// reusing the geographic box shape for projected systems (West=MinX, ...).
func (im *Image) Bounds() gridstream.BBox {
	return gridstream.BBox{
		West:  im.OriginX,
		North: im.OriginY,
		East:  im.OriginX + float64(im.Width)*im.PixelScaleX,
		South: im.OriginY - float64(im.Height)*im.PixelScaleY,
	}
}

type ifdEntry struct {
	tag    int
	typ    int
	count  int
	valOff []byte
}

// Open parses the IFD of a classic TIFF.
func Open(b []byte) (*Image, error) {
	if len(b) < 8 {
		return nil, parseErr("short file: %d bytes", len(b))
	}
	var order binary.ByteOrder
	switch string(b[:2]) {
	case "II":
		order = binary.LittleEndian
	case "MM":
		order = binary.BigEndian
	default:
		return nil, parseErr("bad byte-order mark %q", b[:2])
	}
	if order.Uint16(b[2:4]) != 42 {
		return nil, parseErr("not a classic TIFF (magic %d)", order.Uint16(b[2:4]))
	}
	im := &Image{
		order:         order,
		b:             b,
		NoData:        math.NaN(),
		SampleFormat:  fmtUint,
		SamplesPerPix: 1,
		Predictor:     1,
		Compression:   cmpNone,
		blockIdx:      -1,
	}
	ifdOff := int64(order.Uint32(b[4:8]))
	if ifdOff+2 > int64(len(b)) {
		return nil, parseErr("IFD offset %d outside file", ifdOff)
	}
	n := int(order.Uint16(b[ifdOff : ifdOff+2]))
	pos := ifdOff + 2
	for i := 0; i < n; i++ {
		if pos+12 > int64(len(b)) {
			return nil, parseErr("truncated IFD entry %d", i)
		}
		e := ifdEntry{
			tag:    int(order.Uint16(b[pos : pos+2])),
			typ:    int(order.Uint16(b[pos+2 : pos+4])),
			count:  int(order.Uint32(b[pos+4 : pos+8])),
			valOff: b[pos+8 : pos+12],
		}
		if err := im.applyEntry(e); err != nil {
			return nil, err
		}
		pos += 12
	}
	if im.Width == 0 || im.Height == 0 {
		return nil, parseErr("missing image dimensions")
	}
	if !im.Tiled() && len(im.stripOffsets) == 0 {
		return nil, parseErr("no strip or tile layout")
	}
	return im, nil
}

func fieldSize(typ int) int {
	switch typ {
	case 1, 2, 6, 7: // byte, ascii, sbyte, undefined
		return 1
	case 3, 8: // short, sshort
		return 2
	case 4, 9, 11: // long, slong, float
		return 4
	case 5, 10, 12: // rational, srational, double
		return 8
	}
	return 0
}

// Values dereferences an IFD entry's payload.
func (im *Image) values(e ifdEntry) ([]byte, error) {
	size := fieldSize(e.typ) * e.count
	if size == 0 {
		return nil, parseErr("tag %d: unsupported field type %d", e.tag, e.typ)
	}
	if size <= 4 {
		return e.valOff[:size], nil
	}
	off := int64(im.order.Uint32(e.valOff))
	if off+int64(size) > int64(len(im.b)) {
		return nil, parseErr("tag %d: payload outside file", e.tag)
	}
	return im.b[off : off+int64(size)], nil
}

func (im *Image) intValues(e ifdEntry) ([]int64, error) {
	raw, err := im.values(e)
	if err != nil {
		return nil, err
	}
	sz := fieldSize(e.typ)
	out := make([]int64, 0, e.count)
	for i := 0; i+sz <= len(raw); i += sz {
		switch sz {
		case 1:
			out = append(out, int64(raw[i]))
		case 2:
			out = append(out, int64(im.order.Uint16(raw[i:])))
		case 4:
			out = append(out, int64(im.order.Uint32(raw[i:])))
		}
	}
	return out, nil
}

func (im *Image) doubleValues(e ifdEntry) ([]float64, error) {
	raw, err := im.values(e)
	if err != nil {
		return nil, err
	}
	out := make([]float64, 0, e.count)
	for i := 0; i+8 <= len(raw); i += 8 {
		out = append(out, math.Float64frombits(im.order.Uint64(raw[i:])))
	}
	return out, nil
}

func (im *Image) applyEntry(e ifdEntry) error {
	switch e.tag {
	case tagImageWidth, tagImageLength, tagBitsPerSample, tagCompression,
		tagSamplesPerPixel, tagRowsPerStrip, tagPredictor,
		tagTileWidth, tagTileLength, tagSampleFormat:
		vs, err := im.intValues(e)
		if err != nil {
			return err
		}
		if len(vs) == 0 {
			return parseErr("tag %d: empty", e.tag)
		}
		v := int(vs[0])
		switch e.tag {
		case tagImageWidth:
			im.Width = v
		case tagImageLength:
			im.Height = v
		case tagBitsPerSample:
			im.BitsPerSample = v
		case tagCompression:
			im.Compression = v
		case tagSamplesPerPixel:
			im.SamplesPerPix = v
		case tagRowsPerStrip:
			im.rowsPerStrip = v
		case tagPredictor:
			im.Predictor = v
		case tagTileWidth:
			im.tileWidth = v
		case tagTileLength:
			im.tileLength = v
		case tagSampleFormat:
			im.SampleFormat = v
		}
	case tagStripOffsets, tagStripByteCounts, tagTileOffsets, tagTileByteCounts:
		vs, err := im.intValues(e)
		if err != nil {
			return err
		}
		switch e.tag {
		case tagStripOffsets:
			im.stripOffsets = vs
		case tagStripByteCounts:
			im.stripCounts = vs
		case tagTileOffsets:
			im.tileOffs = vs
		case tagTileByteCounts:
			im.tileCounts = vs
		}
	case tagModelPixelScale:
		vs, err := im.doubleValues(e)
		if err != nil {
			return err
		}
		if len(vs) >= 2 {
			im.PixelScaleX, im.PixelScaleY = vs[0], vs[1]
		}
	case tagModelTiepoint:
		vs, err := im.doubleValues(e)
		if err != nil {
			return err
		}
		// I,J,K,X,Y,Z: pixel (I,J) pins to model (X,Y). Only the common
		// (0,0) tiepoint form is handled.
		if len(vs) >= 5 {
			im.OriginX = vs[3] - vs[0]*im.PixelScaleX
			im.OriginY = vs[4] + vs[1]*im.PixelScaleY
		}
	case tagGeoKeyDirectory:
		vs, err := im.intValues(e)
		if err != nil {
			return err
		}
		im.parseGeoKeys(vs)
	case tagGDALNoData:
		raw, err := im.values(e)
		if err != nil {
			return err
		}
		s := strings.TrimRight(string(raw), "\x00 ")
		if f, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
			im.NoData = f
		}
	}
	return nil
}

// ParseGeoKeys walks the GeoKeyDirectory header and pulls the CS code.
// Projected CS wins over geographic when both appear.
func (im *Image) parseGeoKeys(vs []int64) {
	if len(vs) < 4 {
		return
	}
	n := int(vs[3])
	for i := 0; i < n; i++ {
		base := 4 + i*4
		if base+4 > len(vs) {
			return
		}
		key, loc, val := int(vs[base]), int(vs[base+1]), int(vs[base+3])
		if loc != 0 {
			continue
		}
		switch key {
		case keyGeographicType:
			if im.EPSG == 0 {
				im.EPSG = val
			}
		case keyProjectedCSType:
			im.EPSG = val
		case keyGTModelType:
		}
	}
}

func parseErr(format string, args ...interface{}) error {
	return &gridstream.Error{
		Kind:    gridstream.ErrFormatParse,
		Message: fmt.Sprintf("geotiff: "+format, args...),
	}
}

// Decompress inflates one strip or tile payload.
func (im *Image) decompress(raw []byte) ([]byte, error) {
	switch im.Compression {
	case cmpNone:
		return raw, nil
	case cmpLZW:
		r := lzw.NewReader(bytes.NewReader(raw), lzw.MSB, 8)
		defer r.Close()
		out, err := io.ReadAll(r)
		if err != nil && len(out) == 0 {
			return nil, decompErr("lzw", err)
		}
		return out, nil
	case cmpDeflate:
		r, err := zlib.NewReader(bytes.NewReader(raw))
		if err != nil {
			return nil, decompErr("deflate", err)
		}
		defer r.Close()
		out, err := io.ReadAll(r)
		if err != nil {
			return nil, decompErr("deflate", err)
		}
		return out, nil
	case cmpPackBits:
		return unpackBits(raw), nil
	}
	return nil, parseErr("unsupported compression %d", im.Compression)
}

func decompErr(codec string, err error) error {
	return &gridstream.Error{
		Kind:    gridstream.ErrDecompression,
		Message: "geotiff: " + codec,
		Inner:   err,
	}
}

// UnpackBits decodes the PackBits run-length scheme.
func unpackBits(b []byte) []byte {
	var out []byte
	for i := 0; i < len(b); {
		n := int8(b[i])
		i++
		switch {
		case n >= 0:
			end := i + int(n) + 1
			if end > len(b) {
				end = len(b)
			}
			out = append(out, b[i:end]...)
			i = end
		case n == -128:
		default:
			if i < len(b) {
				for j := 0; j < 1-int(n); j++ {
					out = append(out, b[i])
				}
				i++
			}
		}
	}
	return out
}
