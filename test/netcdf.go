package test

import (
	"bytes"
	"encoding/binary"
	"math"
)

// NetCDFOpts parameterizes a synthetic classic NetCDF file: one gridded
// float32 variable on (lat, lon) plus its coordinate variables.
type NetCDFOpts struct {
	Variable   string
	Latitudes  []float64
	Longitudes []float64
	// Values row-major (lat, lon), ordered as Latitudes is.
	Values []float64
	Units  string
	// Scale, when non-zero, emits scale_factor/add_offset/_FillValue
	// attributes and the caller is expected to store packed values.
	Scale  float64
	Offset float64
	Fill   float64
}

// BuildNetCDF encodes a version-1 classic file.
func BuildNetCDF(o NetCDFOpts) []byte {
	var hdr bytes.Buffer
	w32 := func(v uint32) {
		var b [4]byte
		binary.BigEndian.PutUint32(b[:], v)
		hdr.Write(b[:])
	}
	wname := func(s string) {
		w32(uint32(len(s)))
		hdr.WriteString(s)
		for i := len(s); i%4 != 0; i++ {
			hdr.WriteByte(0)
		}
	}
	wf64attr := func(name string, v float64) {
		wname(name)
		w32(6) // double
		w32(1)
		var b [8]byte
		binary.BigEndian.PutUint64(b[:], math.Float64bits(v))
		hdr.Write(b[:])
	}
	wstrattr := func(name, v string) {
		wname(name)
		w32(2) // char
		w32(uint32(len(v)))
		hdr.WriteString(v)
		for i := len(v); i%4 != 0; i++ {
			hdr.WriteByte(0)
		}
	}

	hdr.WriteString("CDF\x01")
	w32(0) // numrecs

	// Dimensions.
	w32(0x0A)
	w32(2)
	wname("lat")
	w32(uint32(len(o.Latitudes)))
	wname("lon")
	w32(uint32(len(o.Longitudes)))

	// No global attributes.
	w32(0)
	w32(0)

	// Variable entries reference data laid out after the header; compute
	// sizes first, offsets after the header length is known.
	latSize := pad4b(8 * len(o.Latitudes))
	lonSize := pad4b(8 * len(o.Longitudes))
	dataSize := pad4b(4 * len(o.Values))

	var data bytes.Buffer
	for _, v := range o.Latitudes {
		var b [8]byte
		binary.BigEndian.PutUint64(b[:], math.Float64bits(v))
		data.Write(b[:])
	}
	padTo(&data, latSize)
	for _, v := range o.Longitudes {
		var b [8]byte
		binary.BigEndian.PutUint64(b[:], math.Float64bits(v))
		data.Write(b[:])
	}
	padTo(&data, latSize+lonSize)
	for _, v := range o.Values {
		var b [4]byte
		binary.BigEndian.PutUint32(b[:], math.Float32bits(float32(v)))
		data.Write(b[:])
	}
	padTo(&data, latSize+lonSize+dataSize)

	// Variable list, written to a scratch buffer twice: once to learn the
	// header size, once with real begin offsets.
	writeVars := func(base uint32) {
		w32(0x0B)
		w32(3)

		wname("latitude")
		w32(1)
		w32(0) // dim lat
		w32(0)
		w32(0) // no attrs
		w32(6) // double
		w32(uint32(latSize))
		w32(base)

		wname("longitude")
		w32(1)
		w32(1) // dim lon
		w32(0)
		w32(0)
		w32(6)
		w32(uint32(lonSize))
		w32(base + uint32(latSize))

		wname(o.Variable)
		w32(2)
		w32(0)
		w32(1)
		if o.Scale != 0 || o.Units != "" {
			n := uint32(0)
			if o.Scale != 0 {
				n += 3
			}
			if o.Units != "" {
				n++
			}
			w32(0x0C)
			w32(n)
			if o.Scale != 0 {
				wf64attr("scale_factor", o.Scale)
				wf64attr("add_offset", o.Offset)
				wf64attr("_FillValue", o.Fill)
			}
			if o.Units != "" {
				wstrattr("units", o.Units)
			}
		} else {
			w32(0)
			w32(0)
		}
		w32(5) // float
		w32(uint32(dataSize))
		w32(base + uint32(latSize+lonSize))
	}

	probe := hdr.Len()
	writeVars(0)
	base := uint32(hdr.Len())
	hdr.Truncate(probe)
	writeVars(base)

	out := hdr.Bytes()
	return append(out, data.Bytes()...)
}

func pad4b(n int) int {
	if rem := n % 4; rem != 0 {
		return n + 4 - rem
	}
	return n
}

func padTo(b *bytes.Buffer, n int) {
	for b.Len() < n {
		b.WriteByte(0)
	}
}
