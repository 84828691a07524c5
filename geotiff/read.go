package geotiff

import (
	"math"

	"github.com/hydrographs/gridstream"
)

// Block reads one decoded strip or tile, caching the most recent.
func (im *Image) block(idx int) ([]byte, error) {
	if idx == im.blockIdx {
		return im.blockData, nil
	}
	var off, count int64
	if im.Tiled() {
		if idx >= len(im.tileOffs) || idx >= len(im.tileCounts) {
			return nil, parseErr("tile %d outside layout", idx)
		}
		off, count = im.tileOffs[idx], im.tileCounts[idx]
	} else {
		if idx >= len(im.stripOffsets) || idx >= len(im.stripCounts) {
			return nil, parseErr("strip %d outside layout", idx)
		}
		off, count = im.stripOffsets[idx], im.stripCounts[idx]
	}
	if off+count > int64(len(im.b)) {
		return nil, parseErr("block %d data outside file", idx)
	}
	data, err := im.decompress(im.b[off : off+count])
	if err != nil {
		return nil, err
	}
	if im.Predictor == 2 {
		im.undoPredictor(data, idx)
	}
	im.blockIdx, im.blockData = idx, data
	return data, nil
}

// UndoPredictor reverses horizontal differencing in place, row by row.
func (im *Image) undoPredictor(data []byte, idx int) {
	rowWidth := im.Width
	if im.Tiled() {
		rowWidth = im.tileWidth
	}
	bpp := im.BitsPerSample / 8 * im.SamplesPerPix
	rowBytes := rowWidth * bpp
	if bpp == 0 || rowBytes == 0 {
		return
	}
	for row := 0; row+rowBytes <= len(data); row += rowBytes {
		for i := bpp; i < rowBytes; i++ {
			data[row+i] += data[row+i-bpp]
		}
	}
}

// Sample reads the first sample of the pixel at (x, y).
func (im *Image) Sample(x, y int) (float64, error) {
	if x < 0 || x >= im.Width || y < 0 || y >= im.Height {
		return 0, parseErr("pixel (%d,%d) outside %dx%d image", x, y, im.Width, im.Height)
	}
	var (
		idx       int
		bx, by    int
		blockWide int
	)
	if im.Tiled() {
		across := (im.Width + im.tileWidth - 1) / im.tileWidth
		idx = (y/im.tileLength)*across + x/im.tileWidth
		bx, by = x%im.tileWidth, y%im.tileLength
		blockWide = im.tileWidth
	} else {
		rps := im.rowsPerStrip
		if rps == 0 {
			rps = im.Height
		}
		idx = y / rps
		bx, by = x, y%rps
		blockWide = im.Width
	}
	data, err := im.block(idx)
	if err != nil {
		return 0, err
	}
	bpp := im.BitsPerSample / 8
	pos := (by*blockWide + bx) * bpp * im.SamplesPerPix
	if pos+bpp > len(data) {
		return 0, parseErr("pixel (%d,%d) outside decoded block", x, y)
	}
	return im.decodeSample(data[pos : pos+bpp])
}

func (im *Image) decodeSample(b []byte) (float64, error) {
	switch {
	case im.SampleFormat == fmtFloat && im.BitsPerSample == 32:
		return float64(math.Float32frombits(im.order.Uint32(b))), nil
	case im.SampleFormat == fmtFloat && im.BitsPerSample == 64:
		return math.Float64frombits(im.order.Uint64(b)), nil
	case im.SampleFormat == fmtInt && im.BitsPerSample == 16:
		return float64(int16(im.order.Uint16(b))), nil
	case im.SampleFormat == fmtInt && im.BitsPerSample == 32:
		return float64(int32(im.order.Uint32(b))), nil
	case im.SampleFormat == fmtUint && im.BitsPerSample == 8:
		return float64(b[0]), nil
	case im.SampleFormat == fmtUint && im.BitsPerSample == 16:
		return float64(im.order.Uint16(b)), nil
	case im.SampleFormat == fmtUint && im.BitsPerSample == 32:
		return float64(im.order.Uint32(b)), nil
	}
	return 0, parseErr("unsupported sample: format %d, %d bits", im.SampleFormat, im.BitsPerSample)
}

// ValueAt returns the raw sample at native coordinates (x, y), converting
// through the image's origin and pixel scale. NoData samples come back NaN.
func (im *Image) ValueAt(x, y float64) (float64, error) {
	b := im.Bounds()
	px := int((x - b.West) / (b.East - b.West) * float64(im.Width))
	py := int((b.North - y) / (b.North - b.South) * float64(im.Height))
	px = clamp(px, 0, im.Width-1)
	py = clamp(py, 0, im.Height-1)
	v, err := im.Sample(px, py)
	if err != nil {
		return 0, err
	}
	if !math.IsNaN(im.NoData) && v == im.NoData {
		return math.NaN(), nil
	}
	return v, nil
}

// ReadWindow clips the box to the image bounds and returns the raster with
// its realized coordinate axes. Axis order matches the canonical window:
// rows north to south become ascending latitude entries.
func (im *Image) ReadWindow(box gridstream.BBox) (*gridstream.GridWindow, error) {
	b := im.Bounds()
	if !box.Intersects(b) {
		return nil, &gridstream.Error{
			Kind:    gridstream.ErrOutOfDomain,
			Message: "geotiff: window " + box.String() + " outside image " + b.String(),
		}
	}
	x0 := clamp(int((box.West-b.West)/im.PixelScaleX), 0, im.Width-1)
	x1 := clamp(int((box.East-b.West)/im.PixelScaleX), 0, im.Width-1)
	y0 := clamp(int((b.North-box.North)/im.PixelScaleY), 0, im.Height-1)
	y1 := clamp(int((b.North-box.South)/im.PixelScaleY), 0, im.Height-1)

	out := &gridstream.GridWindow{
		BBox:       box,
		Aggregated: gridstream.Absent,
	}
	for y := y0; y <= y1; y++ {
		row := make([]float64, 0, x1-x0+1)
		for x := x0; x <= x1; x++ {
			v, err := im.Sample(x, y)
			if err != nil {
				return nil, err
			}
			if !math.IsNaN(im.NoData) && v == im.NoData {
				v = gridstream.Absent
			}
			row = append(row, v)
		}
		out.Values = append(out.Values, row)
		out.Latitudes = append(out.Latitudes, b.North-(float64(y)+0.5)*im.PixelScaleY)
	}
	for x := x0; x <= x1; x++ {
		out.Longitudes = append(out.Longitudes, b.West+(float64(x)+0.5)*im.PixelScaleX)
	}
	return out, nil
}

func clamp(v, lo, hi int) int {
	switch {
	case v < lo:
		return lo
	case v > hi:
		return hi
	}
	return v
}
