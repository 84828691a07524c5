package grib

import (
	"fmt"
	"math"
	"strings"

	"github.com/hydrographs/gridstream"
)

// FindMessage selects the message matching the variable's selector:
// discipline, category, parameter, level type, and (when set) level value.
// When no message matches numerically, a substring match on the NCEP short
// name tolerates center-specific aliasing.
func FindMessage(msgs []*Message, sel gridstream.GribSelector) (*Message, error) {
	for _, m := range msgs {
		if m.Discipline != sel.Discipline || m.Category != sel.Category || m.Parameter != sel.Parameter {
			continue
		}
		if sel.LevelType != 0 && m.LevelType != sel.LevelType {
			continue
		}
		if sel.LevelValue != 0 && m.LevelValue != sel.LevelValue {
			continue
		}
		return m, nil
	}
	if sel.ShortName != "" {
		want := strings.ToUpper(sel.ShortName)
		for _, m := range msgs {
			if n := m.ShortName(); n != "" && strings.Contains(strings.ToUpper(n), want) {
				return m, nil
			}
		}
	}
	return nil, &gridstream.Error{
		Kind: gridstream.ErrMessageNotFound,
		Message: fmt.Sprintf("no message for discipline=%d category=%d parameter=%d level=%d among %d messages",
			sel.Discipline, sel.Category, sel.Parameter, sel.LevelType, len(msgs)),
	}
}

// ValueAtPoint returns the raw value nearest (lat, lon). Scaling to
// physical units happens upstream.
//
// The regular lat/lon template computes indexes directly from the grid
// increments, honouring the scanning direction; any other grid falls back to
// brute-force nearest-neighbour over the realized coordinate arrays.
func (m *Message) ValueAtPoint(lat, lon float64) (float64, error) {
	vals, err := m.Values()
	if err != nil {
		return 0, err
	}
	g := &m.Grid
	if g.Regular() {
		lon = normalizeLon(lon, g.Lon1)
		var latIdx, lonIdx int
		if g.ScanMode&0x40 != 0 {
			// +j scan: latitudes run south to north.
			latIdx = int(math.Round((lat - g.Lat1) / g.DLat))
		} else {
			latIdx = int(math.Round((g.Lat1 - lat) / g.DLat))
		}
		if g.ScanMode&0x80 != 0 {
			lonIdx = int(math.Round((g.Lon1 - lon) / g.DLon))
		} else {
			lonIdx = int(math.Round((lon - g.Lon1) / g.DLon))
		}
		latIdx = clampIdx(latIdx, g.Nj)
		lonIdx = clampIdx(lonIdx, g.Ni)
		idx := latIdx*g.Ni + lonIdx
		if idx >= len(vals) {
			return 0, parseErr("index %d outside %d values", idx, len(vals))
		}
		return vals[idx], nil
	}

	lats, lons := m.Latitudes(), m.Longitudes()
	if len(lats) != len(vals) || len(lons) != len(vals) {
		return 0, parseErr("no coordinates for grid template 3.%d", g.TemplateNumber)
	}
	best, bestDist := -1, math.Inf(1)
	for i := range vals {
		d := (lats[i]-lat)*(lats[i]-lat) + (lons[i]-lon)*(lons[i]-lon)
		if d < bestDist {
			best, bestDist = i, d
		}
	}
	if best < 0 {
		return 0, parseErr("empty grid")
	}
	return vals[best], nil
}

// Latitudes realizes the per-point latitude array in scan order. Empty for
// unsupported grid templates.
func (m *Message) Latitudes() []float64 {
	g := &m.Grid
	if !g.Regular() {
		return nil
	}
	out := make([]float64, 0, g.Ni*g.Nj)
	for j := 0; j < g.Nj; j++ {
		lat := g.Lat1 - float64(j)*g.DLat
		if g.ScanMode&0x40 != 0 {
			lat = g.Lat1 + float64(j)*g.DLat
		}
		for i := 0; i < g.Ni; i++ {
			out = append(out, lat)
		}
	}
	return out
}

// Longitudes realizes the per-point longitude array in scan order.
func (m *Message) Longitudes() []float64 {
	g := &m.Grid
	if !g.Regular() {
		return nil
	}
	out := make([]float64, 0, g.Ni*g.Nj)
	for j := 0; j < g.Nj; j++ {
		for i := 0; i < g.Ni; i++ {
			lon := g.Lon1 + float64(i)*g.DLon
			if g.ScanMode&0x80 != 0 {
				lon = g.Lon1 - float64(i)*g.DLon
			}
			out = append(out, lon)
		}
	}
	return out
}

// LatAxis returns the latitude axis of a regular grid for windowing.
func (m *Message) LatAxis() (min, max, step float64, descending bool) {
	g := &m.Grid
	if g.ScanMode&0x40 != 0 {
		return g.Lat1, g.Lat1 + float64(g.Nj-1)*g.DLat, g.DLat, false
	}
	return g.Lat1 - float64(g.Nj-1)*g.DLat, g.Lat1, g.DLat, true
}

// LonAxis returns the longitude axis of a regular grid for windowing.
func (m *Message) LonAxis() (min, max, step float64) {
	g := &m.Grid
	return g.Lon1, g.Lon1 + float64(g.Ni-1)*g.DLon, g.DLon
}

// NormalizeLon maps lon into the grid's longitude convention: sources using
// 0..360 need negative west longitudes shifted.
func normalizeLon(lon, gridLon1 float64) float64 {
	if gridLon1 >= 0 && lon < 0 {
		return lon + 360
	}
	return lon
}

func clampIdx(i, n int) int {
	switch {
	case i < 0:
		return 0
	case i >= n:
		return n - 1
	}
	return i
}

// NCEP short names for the parameters the bundled sources deliver. The
// selector fallback match consults this table.
var shortNames = map[[3]int]string{
	{0, 0, 0}:    "TMP",
	{0, 0, 6}:    "DPT",
	{0, 1, 0}:    "SPFH",
	{0, 1, 1}:    "RH",
	{0, 1, 8}:    "APCP",
	{0, 1, 7}:    "PRATE",
	{0, 2, 2}:    "UGRD",
	{0, 2, 3}:    "VGRD",
	{0, 3, 0}:    "PRES",
	{0, 3, 1}:    "PRMSL",
	{0, 4, 7}:    "DSWRF",
	{0, 5, 3}:    "DLWRF",
	{0, 6, 1}:    "TCDC",
	{0, 15, 0}:   "REF",
	{0, 16, 196}: "REFC",
	{2, 0, 0}:    "LAND",
	{2, 0, 7}:    "HGT",
}

func shortName(discipline, category, parameter int) string {
	return shortNames[[3]int{discipline, category, parameter}]
}
