// Package netcdf implements a read-only decoder for NetCDF classic and
// 64-bit offset files.
//
// The header (dimensions, variables, attributes) parses eagerly; variable
// data reads lazily as whole arrays or hyperslabs, always widened to
// float64. NetCDF-4/HDF5 containers are out of scope; sources needing them
// deliver through Zarr mirrors instead.
package netcdf

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/hydrographs/gridstream"
)

// Type codes of the classic format.
const (
	typeByte   = 1
	typeChar   = 2
	typeShort  = 3
	typeInt    = 4
	typeFloat  = 5
	typeDouble = 6
)

// Tags of the header lists.
const (
	tagDimension = 0x0A
	tagVariable  = 0x0B
	tagAttribute = 0x0C
)

// Dim is one dimension. A Length of zero marks the record dimension.
type Dim struct {
	Name   string
	Length int
}

// Var is one variable's header entry.
type Var struct {
	Name  string
	Dims  []string
	Shape []int
	Type  int
	Attrs map[string]interface{}

	begin    int64
	vsize    int64
	isRecord bool
}

// ScaleFactor reports the variable's scale_factor attribute, 1 if absent.
func (v *Var) ScaleFactor() float64 { return v.floatAttr("scale_factor", 1) }

// AddOffset reports the variable's add_offset attribute, 0 if absent.
func (v *Var) AddOffset() float64 { return v.floatAttr("add_offset", 0) }

// FillValue reports _FillValue, falling back to missing_value, NaN if
// neither is present.
func (v *Var) FillValue() float64 {
	if f, ok := v.Attrs["_FillValue"]; ok {
		return toFloat(f)
	}
	return v.floatAttr("missing_value", math.NaN())
}

// Units reports the units attribute.
func (v *Var) Units() string {
	s, _ := v.Attrs["units"].(string)
	return s
}

func (v *Var) floatAttr(name string, def float64) float64 {
	a, ok := v.Attrs[name]
	if !ok {
		return def
	}
	return toFloat(a)
}

func toFloat(a interface{}) float64 {
	switch x := a.(type) {
	case float64:
		return x
	case []float64:
		if len(x) > 0 {
			return x[0]
		}
	}
	return math.NaN()
}

// File is a parsed NetCDF file.
type File struct {
	Dimensions  []Dim
	Variables   map[string]*Var
	GlobalAttrs map[string]interface{}

	b        []byte
	version  int
	numRecs  int
	recSize  int64
	varOrder []string
}

type reader struct {
	b   []byte
	off int
}

func (r *reader) need(n int) error {
	if r.off+n > len(r.b) {
		return parseErr("truncated header at offset %d", r.off)
	}
	return nil
}

func (r *reader) u32() (uint32, error) {
	if err := r.need(4); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint32(r.b[r.off:])
	r.off += 4
	return v, nil
}

func (r *reader) u64() (uint64, error) {
	if err := r.need(8); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint64(r.b[r.off:])
	r.off += 8
	return v, nil
}

func (r *reader) name() (string, error) {
	n, err := r.u32()
	if err != nil {
		return "", err
	}
	if err := r.need(pad4(int(n))); err != nil {
		return "", err
	}
	s := string(r.b[r.off : r.off+int(n)])
	r.off += pad4(int(n))
	return s, nil
}

func pad4(n int) int {
	if rem := n % 4; rem != 0 {
		return n + 4 - rem
	}
	return n
}

// Open parses the header of a classic or 64-bit offset NetCDF file.
func Open(b []byte) (*File, error) {
	if len(b) < 8 || string(b[:3]) != "CDF" {
		return nil, parseErr("not a NetCDF classic file")
	}
	version := int(b[3])
	if version != 1 && version != 2 {
		return nil, parseErr("unsupported NetCDF version byte %d", version)
	}
	f := &File{
		Variables:   make(map[string]*Var),
		GlobalAttrs: make(map[string]interface{}),
		b:           b,
		version:     version,
	}
	r := &reader{b: b, off: 4}
	nr, err := r.u32()
	if err != nil {
		return nil, err
	}
	f.numRecs = int(nr)

	if err := f.parseDims(r); err != nil {
		return nil, err
	}
	if f.GlobalAttrs, err = parseAttrs(r); err != nil {
		return nil, err
	}
	if err := f.parseVars(r); err != nil {
		return nil, err
	}
	for _, name := range f.varOrder {
		if v := f.Variables[name]; v.isRecord {
			f.recSize += v.vsize
		}
	}
	return f, nil
}

func (f *File) parseDims(r *reader) error {
	tag, err := r.u32()
	if err != nil {
		return err
	}
	n, err := r.u32()
	if err != nil {
		return err
	}
	if tag == 0 && n == 0 {
		return nil
	}
	if tag != tagDimension {
		return parseErr("expected dimension list, got tag %#x", tag)
	}
	for i := 0; i < int(n); i++ {
		name, err := r.name()
		if err != nil {
			return err
		}
		l, err := r.u32()
		if err != nil {
			return err
		}
		f.Dimensions = append(f.Dimensions, Dim{Name: name, Length: int(l)})
	}
	return nil
}

func parseAttrs(r *reader) (map[string]interface{}, error) {
	out := make(map[string]interface{})
	tag, err := r.u32()
	if err != nil {
		return nil, err
	}
	n, err := r.u32()
	if err != nil {
		return nil, err
	}
	if tag == 0 && n == 0 {
		return out, nil
	}
	if tag != tagAttribute {
		return nil, parseErr("expected attribute list, got tag %#x", tag)
	}
	for i := 0; i < int(n); i++ {
		name, err := r.name()
		if err != nil {
			return nil, err
		}
		typ, err := r.u32()
		if err != nil {
			return nil, err
		}
		count, err := r.u32()
		if err != nil {
			return nil, err
		}
		size := typeSize(int(typ)) * int(count)
		if err := r.need(pad4(size)); err != nil {
			return nil, err
		}
		raw := r.b[r.off : r.off+size]
		r.off += pad4(size)
		if typ == typeChar {
			out[name] = string(raw)
			continue
		}
		vals := decodeValues(raw, int(typ), int(count))
		if len(vals) == 1 {
			out[name] = vals[0]
		} else {
			out[name] = vals
		}
	}
	return out, nil
}

func (f *File) parseVars(r *reader) error {
	tag, err := r.u32()
	if err != nil {
		return err
	}
	n, err := r.u32()
	if err != nil {
		return err
	}
	if tag == 0 && n == 0 {
		return nil
	}
	if tag != tagVariable {
		return parseErr("expected variable list, got tag %#x", tag)
	}
	for i := 0; i < int(n); i++ {
		v := &Var{Attrs: make(map[string]interface{})}
		name, err := r.name()
		if err != nil {
			return err
		}
		v.Name = name
		nd, err := r.u32()
		if err != nil {
			return err
		}
		for d := 0; d < int(nd); d++ {
			id, err := r.u32()
			if err != nil {
				return err
			}
			if int(id) >= len(f.Dimensions) {
				return parseErr("variable %q references dimension %d of %d", name, id, len(f.Dimensions))
			}
			dim := f.Dimensions[id]
			v.Dims = append(v.Dims, dim.Name)
			if dim.Length == 0 {
				v.isRecord = true
				v.Shape = append(v.Shape, f.numRecs)
			} else {
				v.Shape = append(v.Shape, dim.Length)
			}
		}
		if v.Attrs, err = parseAttrs(r); err != nil {
			return err
		}
		typ, err := r.u32()
		if err != nil {
			return err
		}
		v.Type = int(typ)
		vs, err := r.u32()
		if err != nil {
			return err
		}
		v.vsize = int64(vs)
		if f.version == 2 {
			begin, err := r.u64()
			if err != nil {
				return err
			}
			v.begin = int64(begin)
		} else {
			begin, err := r.u32()
			if err != nil {
				return err
			}
			v.begin = int64(begin)
		}
		f.Variables[name] = v
		f.varOrder = append(f.varOrder, name)
	}
	return nil
}

func typeSize(t int) int {
	switch t {
	case typeByte, typeChar:
		return 1
	case typeShort:
		return 2
	case typeInt, typeFloat:
		return 4
	case typeDouble:
		return 8
	}
	return 0
}

func decodeValues(b []byte, typ, count int) []float64 {
	out := make([]float64, 0, count)
	sz := typeSize(typ)
	for i := 0; i+sz <= len(b) && len(out) < count; i += sz {
		switch typ {
		case typeByte:
			out = append(out, float64(int8(b[i])))
		case typeShort:
			out = append(out, float64(int16(binary.BigEndian.Uint16(b[i:]))))
		case typeInt:
			out = append(out, float64(int32(binary.BigEndian.Uint32(b[i:]))))
		case typeFloat:
			out = append(out, float64(math.Float32frombits(binary.BigEndian.Uint32(b[i:]))))
		case typeDouble:
			out = append(out, math.Float64frombits(binary.BigEndian.Uint64(b[i:])))
		}
	}
	return out
}

// ReadVariable reads the variable's whole array, widened to float64, in
// row-major order of its declared shape.
func (f *File) ReadVariable(name string) ([]float64, error) {
	v, ok := f.Variables[name]
	if !ok {
		return nil, &gridstream.Error{
			Kind:    gridstream.ErrUnknownVariable,
			Message: fmt.Sprintf("netcdf: no variable %q", name),
		}
	}
	count := 1
	for _, s := range v.Shape {
		count *= s
	}
	start := make([]int, len(v.Shape))
	return f.readSlab(v, start, v.Shape, count)
}

// ReadSlice reads a hyperslab: start and count per dimension.
func (f *File) ReadSlice(name string, start, count []int) ([]float64, error) {
	v, ok := f.Variables[name]
	if !ok {
		return nil, &gridstream.Error{
			Kind:    gridstream.ErrUnknownVariable,
			Message: fmt.Sprintf("netcdf: no variable %q", name),
		}
	}
	if len(start) != len(v.Shape) || len(count) != len(v.Shape) {
		return nil, parseErr("slice rank %d/%d against variable rank %d", len(start), len(count), len(v.Shape))
	}
	total := 1
	for i := range count {
		if start[i] < 0 || count[i] < 1 || start[i]+count[i] > v.Shape[i] {
			return nil, parseErr("slice [%d,+%d) outside dimension %q of %d",
				start[i], count[i], v.Dims[i], v.Shape[i])
		}
		total *= count[i]
	}
	return f.readSlab(v, start, count, total)
}

func (f *File) readSlab(v *Var, start, count []int, total int) ([]float64, error) {
	sz := typeSize(v.Type)
	out := make([]float64, 0, total)
	if v.isRecord && len(start) == 1 {
		// Rank-1 record variable: one element per record, strided by the
		// record size rather than contiguous.
		for r := start[0]; r < start[0]+count[0]; r++ {
			off := v.begin + int64(r)*f.recSize
			if off+int64(sz) > int64(len(f.b)) {
				return nil, parseErr("variable %q data runs past end of file", v.Name)
			}
			out = append(out, decodeValues(f.b[off:off+int64(sz)], v.Type, 1)...)
		}
		return out, nil
	}
	idx := make([]int, len(start))
	copy(idx, start)
	for {
		off, err := f.offsetOf(v, idx)
		if err != nil {
			return nil, err
		}
		// Innermost dimension is contiguous; read the run in one go.
		run := 1
		if n := len(count); n > 0 {
			run = count[n-1]
		}
		end := off + int64(run*sz)
		if end > int64(len(f.b)) {
			return nil, parseErr("variable %q data runs past end of file", v.Name)
		}
		out = append(out, decodeValues(f.b[off:end], v.Type, run)...)
		if !increment(idx, start, count) {
			break
		}
	}
	if len(out) != total {
		return nil, parseErr("variable %q: read %d of %d values", v.Name, len(out), total)
	}
	return out, nil
}

// Increment advances idx through the slab in row-major order, skipping the
// innermost dimension, which readSlab consumes as a run.
func increment(idx, start, count []int) bool {
	for d := len(idx) - 2; d >= 0; d-- {
		idx[d]++
		if idx[d] < start[d]+count[d] {
			return true
		}
		idx[d] = start[d]
	}
	return false
}

// OffsetOf computes the file offset of the element at idx. Record variables
// store one record per slot of the record dimension, strided by the sum of
// all record variables' vsize.
func (f *File) offsetOf(v *Var, idx []int) (int64, error) {
	off := v.begin
	if v.isRecord {
		if len(idx) == 0 {
			return 0, parseErr("record variable %q with no dimensions", v.Name)
		}
		off += int64(idx[0]) * f.recSize
		idx = idx[1:]
		stride := int64(typeSize(v.Type))
		for d := len(idx) - 1; d >= 0; d-- {
			off += int64(idx[d]) * stride
			stride *= int64(v.Shape[d+1])
		}
		return off, nil
	}
	stride := int64(typeSize(v.Type))
	for d := len(idx) - 1; d >= 0; d-- {
		off += int64(idx[d]) * stride
		stride *= int64(v.Shape[d])
	}
	return off, nil
}

func parseErr(format string, args ...interface{}) error {
	return &gridstream.Error{
		Kind:    gridstream.ErrFormatParse,
		Message: fmt.Sprintf("netcdf: "+format, args...),
	}
}
