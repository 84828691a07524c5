package grib

import (
	"bytes"
	"image"
	"image/png"
	"math"

	"github.com/hydrographs/gridstream"
)

// Values unpacks and returns the message's data values in grid scan order.
// Points masked out by the bitmap are NaN. The result is memoized.
func (m *Message) Values() ([]float64, error) {
	if m.values != nil {
		return m.values, nil
	}
	var (
		raw []float64
		err error
	)
	switch m.drs.template {
	case 0:
		raw, err = m.unpackSimple()
	case 2, 3:
		raw, err = m.unpackComplex()
	case 41:
		raw, err = m.unpackPNG()
	default:
		err = parseErr("unsupported data representation template 5.%d", m.drs.template)
	}
	if err != nil {
		return nil, err
	}
	m.values = m.applyBitmap(raw)
	return m.values, nil
}

// Scale converts a packed integer to a physical value per the Data
// Representation: (R + X*2^E) / 10^D.
func (d *dataRepr) scale(x float64) float64 {
	return (d.refValue + x*math.Pow(2, float64(d.binScale))) / math.Pow10(d.decScale)
}

func (m *Message) unpackSimple() ([]float64, error) {
	d := &m.drs
	if d.bits == 0 {
		// All points equal the reference value.
		out := make([]float64, d.numPoints)
		v := d.scale(0)
		for i := range out {
			out[i] = v
		}
		return out, nil
	}
	br := newBitReader(m.data)
	out := make([]float64, d.numPoints)
	for i := range out {
		x, err := br.read(d.bits)
		if err != nil {
			return nil, parseErr("simple packing: %v", err)
		}
		out[i] = d.scale(float64(x))
	}
	return out, nil
}

func (m *Message) unpackComplex() ([]float64, error) {
	d := &m.drs
	if d.missingMgmt != 0 {
		return nil, parseErr("complex packing: missing value management %d unsupported", d.missingMgmt)
	}
	br := newBitReader(m.data)

	// Spatial differencing prefixes the data with the initial value(s) and
	// the overall minimum, each in spatialOctets bytes.
	var ival1, ival2, gmin int64
	if d.template == 3 {
		if d.spatialOrder < 1 || d.spatialOrder > 2 {
			return nil, parseErr("complex packing: spatial differencing order %d unsupported", d.spatialOrder)
		}
		ob := d.spatialOctets * 8
		v, err := br.read(ob)
		if err != nil {
			return nil, parseErr("complex packing: %v", err)
		}
		ival1 = signMagnitude(v, ob)
		if d.spatialOrder == 2 {
			if v, err = br.read(ob); err != nil {
				return nil, parseErr("complex packing: %v", err)
			}
			ival2 = signMagnitude(v, ob)
		}
		if v, err = br.read(ob); err != nil {
			return nil, parseErr("complex packing: %v", err)
		}
		gmin = signMagnitude(v, ob)
	}

	ng := d.numGroups
	refs := make([]uint64, ng)
	for i := range refs {
		v, err := br.read(d.bits)
		if err != nil {
			return nil, parseErr("complex packing: group refs: %v", err)
		}
		refs[i] = v
	}
	br.align()
	widths := make([]int, ng)
	for i := range widths {
		v, err := br.read(d.groupWidthBits)
		if err != nil {
			return nil, parseErr("complex packing: group widths: %v", err)
		}
		widths[i] = d.groupWidthRef + int(v)
	}
	br.align()
	lengths := make([]int, ng)
	for i := range lengths {
		v, err := br.read(d.groupLenBits)
		if err != nil {
			return nil, parseErr("complex packing: group lengths: %v", err)
		}
		lengths[i] = d.groupLenRef + int(v)*d.groupLenInc
	}
	if ng > 0 {
		lengths[ng-1] = d.lastGroupLen
	}
	br.align()

	ints := make([]int64, 0, d.numPoints)
	for g := 0; g < ng; g++ {
		for j := 0; j < lengths[g]; j++ {
			var x uint64
			if widths[g] > 0 {
				v, err := br.read(widths[g])
				if err != nil {
					return nil, parseErr("complex packing: group %d: %v", g, err)
				}
				x = v
			}
			ints = append(ints, int64(refs[g])+int64(x))
		}
	}
	if len(ints) < d.numPoints {
		return nil, parseErr("complex packing: %d of %d points decoded", len(ints), d.numPoints)
	}
	ints = ints[:d.numPoints]

	if d.template == 3 {
		for i := range ints {
			ints[i] += gmin
		}
		switch d.spatialOrder {
		case 1:
			ints[0] = ival1
			for i := 1; i < len(ints); i++ {
				ints[i] += ints[i-1]
			}
		case 2:
			ints[0] = ival1
			if len(ints) > 1 {
				ints[1] = ival2
			}
			for i := 2; i < len(ints); i++ {
				ints[i] += 2*ints[i-1] - ints[i-2]
			}
		}
	}

	out := make([]float64, len(ints))
	for i, x := range ints {
		out[i] = d.scale(float64(x))
	}
	return out, nil
}

func (m *Message) unpackPNG() ([]float64, error) {
	d := &m.drs
	img, err := png.Decode(bytes.NewReader(m.data))
	if err != nil {
		return nil, &gridstream.Error{
			Kind:    gridstream.ErrDecompression,
			Message: "grib: PNG-packed data",
			Inner:   err,
		}
	}
	b := img.Bounds()
	out := make([]float64, 0, b.Dx()*b.Dy())
	switch im := img.(type) {
	case *image.Gray:
		for y := b.Min.Y; y < b.Max.Y; y++ {
			for x := b.Min.X; x < b.Max.X; x++ {
				out = append(out, d.scale(float64(im.GrayAt(x, y).Y)))
			}
		}
	case *image.Gray16:
		for y := b.Min.Y; y < b.Max.Y; y++ {
			for x := b.Min.X; x < b.Max.X; x++ {
				out = append(out, d.scale(float64(im.Gray16At(x, y).Y)))
			}
		}
	default:
		// Fall back on the generic accessor; 16-bit channel values.
		for y := b.Min.Y; y < b.Max.Y; y++ {
			for x := b.Min.X; x < b.Max.X; x++ {
				r, _, _, _ := img.At(x, y).RGBA()
				out = append(out, d.scale(float64(r)))
			}
		}
	}
	if len(out) < d.numPoints {
		return nil, parseErr("PNG packing: %d of %d points decoded", len(out), d.numPoints)
	}
	return out[:d.numPoints], nil
}

// ApplyBitmap expands packed values onto the full grid, NaN where the bitmap
// masks a point out.
func (m *Message) applyBitmap(raw []float64) []float64 {
	if m.bitmap == nil {
		return raw
	}
	out := make([]float64, len(m.bitmap))
	j := 0
	for i, present := range m.bitmap {
		if present && j < len(raw) {
			out[i] = raw[j]
			j++
			continue
		}
		out[i] = math.NaN()
	}
	return out
}

// SignMagnitude interprets an n-bit sign-magnitude value.
func signMagnitude(v uint64, bits int) int64 {
	sign := uint64(1) << (bits - 1)
	if v&sign != 0 {
		return -int64(v &^ sign)
	}
	return int64(v)
}

// BitReader reads big-endian bit fields out of a byte slice.
type bitReader struct {
	b   []byte
	pos int // bit position
}

func newBitReader(b []byte) *bitReader {
	return &bitReader{b: b}
}

func (r *bitReader) read(bits int) (uint64, error) {
	if bits == 0 {
		return 0, nil
	}
	if bits > 64 {
		return 0, parseErr("bit field of %d bits", bits)
	}
	var v uint64
	for i := 0; i < bits; i++ {
		byteIdx := r.pos / 8
		if byteIdx >= len(r.b) {
			return 0, parseErr("read past end of data at bit %d", r.pos)
		}
		bit := (r.b[byteIdx] >> (7 - r.pos%8)) & 1
		v = v<<1 | uint64(bit)
		r.pos++
	}
	return v, nil
}

// Align advances to the next octet boundary.
func (r *bitReader) align() {
	if rem := r.pos % 8; rem != 0 {
		r.pos += 8 - rem
	}
}
