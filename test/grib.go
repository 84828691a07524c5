// Package test holds fixture builders and in-memory servers shared by the
// package tests: synthetic GRIB2 messages, Zarr stores, rasters, and an
// HTTP range server.
package test

import (
	"encoding/binary"
	"math"
	"time"
)

// GribOpts parameterizes a synthetic GRIB2 message. The zero value plus
// grid dimensions and values yields a decodable simple-packed message.
type GribOpts struct {
	Discipline int
	Category   int
	Parameter  int
	LevelType  int
	LevelValue int
	RefTime    time.Time

	Ni, Nj     int
	Lat1, Lon1 float64
	DLat, DLon float64
	ScanMode   byte

	// Values in grid scan order, length Ni*Nj. Integers survive the
	// packing round-trip exactly.
	Values []float64
}

// BuildGRIB2 encodes one GRIB2 message: sections 0-1, 3 (template 3.0),
// 4 (template 4.0), 5 (template 5.0 simple packing), 6 (no bitmap), 7,
// and the end marker. Values are packed at 16 bits against their minimum.
func BuildGRIB2(o GribOpts) []byte {
	ref := math.Inf(1)
	for _, v := range o.Values {
		if v < ref {
			ref = v
		}
	}
	if len(o.Values) == 0 {
		ref = 0
	}
	const bits = 16
	packed := make([]uint16, len(o.Values))
	for i, v := range o.Values {
		packed[i] = uint16(math.Round(v - ref))
	}

	sec1 := make([]byte, 21)
	putSec(sec1, 1)
	t := o.RefTime.UTC()
	if t.IsZero() {
		t = time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)
	}
	binary.BigEndian.PutUint16(sec1[12:14], uint16(t.Year()))
	sec1[14], sec1[15] = byte(t.Month()), byte(t.Day())
	sec1[16], sec1[17], sec1[18] = byte(t.Hour()), byte(t.Minute()), byte(t.Second())

	sec3 := make([]byte, 72)
	putSec(sec3, 3)
	binary.BigEndian.PutUint32(sec3[6:10], uint32(o.Ni*o.Nj))
	binary.BigEndian.PutUint16(sec3[12:14], 0) // template 3.0
	binary.BigEndian.PutUint32(sec3[30:34], uint32(o.Ni))
	binary.BigEndian.PutUint32(sec3[34:38], uint32(o.Nj))
	putAngle(sec3[46:50], o.Lat1)
	putAngle(sec3[50:54], o.Lon1)
	putAngle(sec3[55:59], o.Lat1-float64(o.Nj-1)*o.DLat)
	putAngle(sec3[59:63], o.Lon1+float64(o.Ni-1)*o.DLon)
	putAngle(sec3[63:67], o.DLon)
	putAngle(sec3[67:71], o.DLat)
	sec3[71] = o.ScanMode

	sec4 := make([]byte, 34)
	putSec(sec4, 4)
	binary.BigEndian.PutUint16(sec4[7:9], 0) // template 4.0
	sec4[9], sec4[10] = byte(o.Category), byte(o.Parameter)
	sec4[17] = 1 // hours
	sec4[22] = byte(o.LevelType)
	binary.BigEndian.PutUint32(sec4[24:28], uint32(o.LevelValue))
	sec4[28] = 255

	sec5 := make([]byte, 21)
	putSec(sec5, 5)
	binary.BigEndian.PutUint32(sec5[5:9], uint32(len(o.Values)))
	binary.BigEndian.PutUint16(sec5[9:11], 0) // template 5.0
	binary.BigEndian.PutUint32(sec5[11:15], math.Float32bits(float32(ref)))
	sec5[19] = bits

	sec6 := make([]byte, 6)
	putSec(sec6, 6)
	sec6[5] = 255 // no bitmap

	sec7 := make([]byte, 5+2*len(packed))
	putSec(sec7, 7)
	for i, x := range packed {
		binary.BigEndian.PutUint16(sec7[5+2*i:], x)
	}

	body := 16 + len(sec1) + len(sec3) + len(sec4) + len(sec5) + len(sec6) + len(sec7) + 4
	out := make([]byte, 0, body)
	sec0 := make([]byte, 16)
	copy(sec0, "GRIB")
	sec0[6] = byte(o.Discipline)
	sec0[7] = 2
	binary.BigEndian.PutUint64(sec0[8:16], uint64(body))
	out = append(out, sec0...)
	out = append(out, sec1...)
	out = append(out, sec3...)
	out = append(out, sec4...)
	out = append(out, sec5...)
	out = append(out, sec6...)
	out = append(out, sec7...)
	out = append(out, "7777"...)
	return out
}

func putSec(b []byte, num byte) {
	binary.BigEndian.PutUint32(b[0:4], uint32(len(b)))
	b[4] = num
}

func putAngle(b []byte, deg float64) {
	u := uint32(math.Round(math.Abs(deg) * 1e6))
	if deg < 0 {
		u |= 0x80000000
	}
	binary.BigEndian.PutUint32(b, u)
}
