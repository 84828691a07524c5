// Package grib implements a GRIB2 (WMO FM-92 edition 2) message decoder.
//
// The decoder accepts one or many concatenated messages, exposes the Product
// and Grid Definition metadata eagerly, and unpacks data values lazily so
// callers that only need to locate a message never pay for full decoding.
// Simple (5.0), complex (5.2), complex with spatial differencing (5.3), and
// PNG (5.41) packing are supported; the grid addressing fast path covers the
// regular latitude/longitude template (3.0).
package grib

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"

	"github.com/hydrographs/gridstream"
)

// Message is one decoded GRIB2 message.
type Message struct {
	Discipline   int
	Category     int
	Parameter    int
	LevelType    int
	LevelValue   float64
	RefTime      time.Time
	ForecastHour int

	Grid GridDef

	drs    dataRepr
	bitmap []bool
	data   []byte
	raw    []byte

	values []float64
}

// GridDef is the Grid Definition of a message. Only template 3.0 (regular
// lat/lon) populates the increment fields; other templates still report
// point counts for brute-force addressing.
type GridDef struct {
	TemplateNumber int
	NumPoints      int
	Ni, Nj         int
	Lat1, Lon1     float64
	Lat2, Lon2     float64
	DLat, DLon     float64
	ScanMode       byte
}

// Regular reports whether the fast index arithmetic applies.
func (g *GridDef) Regular() bool {
	return g.TemplateNumber == 0 && g.Ni > 0 && g.Nj > 0 && g.DLat != 0 && g.DLon != 0
}

// DataRepr is the Data Representation needed to unpack section 7.
type dataRepr struct {
	template  int
	numPoints int
	refValue  float64
	binScale  int
	decScale  int
	bits      int

	// Complex-packing fields (5.2/5.3).
	groupSplit       int
	missingMgmt      int
	primaryMissing   uint32
	secondaryMissing uint32
	numGroups        int
	groupWidthRef    int
	groupWidthBits   int
	groupLenRef      int
	groupLenInc      int
	lastGroupLen     int
	groupLenBits     int
	spatialOrder     int
	spatialOctets    int
}

// ShortName reports the conventional NCEP abbreviation of the message's
// parameter, or "" when unknown.
func (m *Message) ShortName() string {
	return shortName(m.Discipline, m.Category, m.Parameter)
}

// Raw returns the message's wire bytes, section 0 through the end marker.
// The slice aliases the buffer given to [Parse].
func (m *Message) Raw() []byte {
	return m.raw
}

// Parse decodes all GRIB2 messages in b. Each message's metadata sections
// are parsed; data values decode on first use.
func Parse(b []byte) ([]*Message, error) {
	var out []*Message
	for off := 0; off < len(b); {
		// Tolerate padding between messages.
		if len(b)-off < 16 {
			break
		}
		if string(b[off:off+4]) != "GRIB" {
			off++
			continue
		}
		msgLen := int(binary.BigEndian.Uint64(b[off+8 : off+16]))
		if msgLen < 16 || off+msgLen > len(b) {
			return nil, parseErr("message length %d exceeds buffer", msgLen)
		}
		m, err := parseMessage(b[off : off+msgLen])
		if err != nil {
			return nil, err
		}
		out = append(out, m)
		off += msgLen
	}
	if len(out) == 0 {
		return nil, parseErr("no GRIB2 messages in %d bytes", len(b))
	}
	return out, nil
}

func parseMessage(b []byte) (*Message, error) {
	if b[7] != 2 {
		return nil, parseErr("unsupported GRIB edition %d", b[7])
	}
	m := &Message{Discipline: int(b[6]), raw: b}

	off := 16
	for off < len(b) {
		if len(b)-off == 4 && string(b[off:off+4]) == "7777" {
			return m, nil
		}
		if len(b)-off < 5 {
			return nil, parseErr("truncated section at offset %d", off)
		}
		secLen := int(binary.BigEndian.Uint32(b[off : off+4]))
		secNum := int(b[off+4])
		if secLen < 5 || off+secLen > len(b) {
			return nil, parseErr("section %d length %d exceeds message", secNum, secLen)
		}
		sec := b[off : off+secLen]
		var err error
		switch secNum {
		case 1:
			err = m.parseIdentification(sec)
		case 2:
			// Local use, skipped.
		case 3:
			err = m.parseGridDefinition(sec)
		case 4:
			err = m.parseProductDefinition(sec)
		case 5:
			err = m.parseDataRepresentation(sec)
		case 6:
			err = m.parseBitmap(sec)
		case 7:
			m.data = sec[5:]
		default:
			err = parseErr("unknown section number %d", secNum)
		}
		if err != nil {
			return nil, err
		}
		off += secLen
	}
	return nil, parseErr("message missing end marker")
}

func (m *Message) parseIdentification(sec []byte) error {
	if len(sec) < 21 {
		return parseErr("identification section too short: %d", len(sec))
	}
	m.RefTime = time.Date(
		int(binary.BigEndian.Uint16(sec[12:14])),
		time.Month(sec[14]), int(sec[15]),
		int(sec[16]), int(sec[17]), int(sec[18]),
		0, time.UTC)
	return nil
}

func (m *Message) parseGridDefinition(sec []byte) error {
	if len(sec) < 14 {
		return parseErr("grid definition section too short: %d", len(sec))
	}
	m.Grid.NumPoints = int(binary.BigEndian.Uint32(sec[6:10]))
	m.Grid.TemplateNumber = int(binary.BigEndian.Uint16(sec[12:14]))
	if m.Grid.TemplateNumber != 0 {
		return nil
	}
	if len(sec) < 72 {
		return parseErr("lat/lon grid template too short: %d", len(sec))
	}
	// Template 3.0, all angles in 1e-6 degrees.
	m.Grid.Ni = int(binary.BigEndian.Uint32(sec[30:34]))
	m.Grid.Nj = int(binary.BigEndian.Uint32(sec[34:38]))
	m.Grid.Lat1 = signedAngle(sec[46:50])
	m.Grid.Lon1 = signedAngle(sec[50:54])
	m.Grid.Lat2 = signedAngle(sec[55:59])
	m.Grid.Lon2 = signedAngle(sec[59:63])
	m.Grid.DLon = signedAngle(sec[63:67])
	m.Grid.DLat = signedAngle(sec[67:71])
	m.Grid.ScanMode = sec[71]
	return nil
}

func (m *Message) parseProductDefinition(sec []byte) error {
	if len(sec) < 11 {
		return parseErr("product definition section too short: %d", len(sec))
	}
	tmpl := int(binary.BigEndian.Uint16(sec[7:9]))
	// Templates 4.0 (instant) and 4.8 (accumulation) share the leading
	// layout read here.
	if tmpl != 0 && tmpl != 8 {
		return parseErr("unsupported product definition template 4.%d", tmpl)
	}
	if len(sec) < 34 {
		return parseErr("product definition template too short: %d", len(sec))
	}
	m.Category = int(sec[9])
	m.Parameter = int(sec[10])
	m.ForecastHour = forecastHours(sec[17], binary.BigEndian.Uint32(sec[18:22]))
	m.LevelType = int(sec[22])
	scale, val := int(int8(sec[23])), binary.BigEndian.Uint32(sec[24:28])
	if val != 0xFFFFFFFF {
		m.LevelValue = float64(val) / math.Pow10(scale)
	}
	return nil
}

func forecastHours(unit byte, n uint32) int {
	switch unit {
	case 0: // minutes
		return int(n) / 60
	case 1: // hours
		return int(n)
	case 2: // days
		return int(n) * 24
	case 10: // 3 hours
		return int(n) * 3
	case 11: // 6 hours
		return int(n) * 6
	case 12: // 12 hours
		return int(n) * 12
	case 13: // seconds
		return int(n) / 3600
	}
	return int(n)
}

func (m *Message) parseDataRepresentation(sec []byte) error {
	if len(sec) < 11 {
		return parseErr("data representation section too short: %d", len(sec))
	}
	d := &m.drs
	d.numPoints = int(binary.BigEndian.Uint32(sec[5:9]))
	d.template = int(binary.BigEndian.Uint16(sec[9:11]))
	switch d.template {
	case 0, 41: // simple, PNG
		if len(sec) < 21 {
			return parseErr("packing template 5.%d too short: %d", d.template, len(sec))
		}
		d.refValue = float64(math.Float32frombits(binary.BigEndian.Uint32(sec[11:15])))
		d.binScale = int(int16(binary.BigEndian.Uint16(sec[15:17])))
		d.decScale = int(int16(binary.BigEndian.Uint16(sec[17:19])))
		d.bits = int(sec[19])
	case 2, 3: // complex, complex + spatial differencing
		if len(sec) < 47 {
			return parseErr("packing template 5.%d too short: %d", d.template, len(sec))
		}
		d.refValue = float64(math.Float32frombits(binary.BigEndian.Uint32(sec[11:15])))
		d.binScale = int(int16(binary.BigEndian.Uint16(sec[15:17])))
		d.decScale = int(int16(binary.BigEndian.Uint16(sec[17:19])))
		d.bits = int(sec[19])
		d.groupSplit = int(sec[21])
		d.missingMgmt = int(sec[22])
		d.primaryMissing = binary.BigEndian.Uint32(sec[23:27])
		d.secondaryMissing = binary.BigEndian.Uint32(sec[27:31])
		d.numGroups = int(binary.BigEndian.Uint32(sec[31:35]))
		d.groupWidthRef = int(sec[35])
		d.groupWidthBits = int(sec[36])
		d.groupLenRef = int(binary.BigEndian.Uint32(sec[37:41]))
		d.groupLenInc = int(sec[41])
		d.lastGroupLen = int(binary.BigEndian.Uint32(sec[42:46]))
		d.groupLenBits = int(sec[46])
		if d.template == 3 {
			if len(sec) < 49 {
				return parseErr("packing template 5.3 too short: %d", len(sec))
			}
			d.spatialOrder = int(sec[47])
			d.spatialOctets = int(sec[48])
		}
	default:
		return parseErr("unsupported data representation template 5.%d", d.template)
	}
	return nil
}

func (m *Message) parseBitmap(sec []byte) error {
	switch sec[5] {
	case 0:
		n := m.Grid.NumPoints
		m.bitmap = make([]bool, n)
		for i := 0; i < n; i++ {
			byteIdx := 6 + i/8
			if byteIdx >= len(sec) {
				return parseErr("bitmap shorter than grid: %d points", n)
			}
			m.bitmap[i] = sec[byteIdx]&(0x80>>(i%8)) != 0
		}
	case 254:
		// Reuse previously defined bitmap; already in place.
	case 255:
		m.bitmap = nil
	default:
		return parseErr("unsupported bitmap indicator %d", sec[5])
	}
	return nil
}

// SignedAngle decodes a 4-byte sign-magnitude angle in 1e-6 degree units.
func signedAngle(b []byte) float64 {
	v := binary.BigEndian.Uint32(b)
	neg := v&0x80000000 != 0
	f := float64(v&0x7FFFFFFF) / 1e6
	if neg {
		return -f
	}
	return f
}

func parseErr(format string, args ...interface{}) error {
	return &gridstream.Error{
		Kind:    gridstream.ErrFormatParse,
		Message: fmt.Sprintf("grib: "+format, args...),
	}
}
