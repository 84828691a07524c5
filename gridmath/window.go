package gridmath

import (
	"github.com/hydrographs/gridstream"
)

// Window clips a bbox against a lat/lon axis pair and returns the index
// ranges plus the realized coordinate arrays. The returned window is
// inclusive on both ends and never empty when the bbox intersects the axes.
type Window struct {
	LatStart, LatEnd int
	LonStart, LonEnd int
	Latitudes        []float64
	Longitudes       []float64
}

// MakeWindow computes the index window of bbox on the given axes.
func MakeWindow(latAxis, lonAxis *Axis, bbox gridstream.BBox) Window {
	i0 := latAxis.NearestIndex(bbox.South)
	i1 := latAxis.NearestIndex(bbox.North)
	if i0 > i1 {
		i0, i1 = i1, i0
	}
	j0 := lonAxis.NearestIndex(bbox.West)
	j1 := lonAxis.NearestIndex(bbox.East)
	if j0 > j1 {
		j0, j1 = j1, j0
	}
	w := Window{LatStart: i0, LatEnd: i1, LonStart: j0, LonEnd: j1}
	for i := i0; i <= i1; i++ {
		w.Latitudes = append(w.Latitudes, latAxis.Value(i))
	}
	for j := j0; j <= j1; j++ {
		w.Longitudes = append(w.Longitudes, lonAxis.Value(j))
	}
	return w
}

// Extract builds a GridWindow from a row-major value array laid out on the
// given axes, applying per-variable scaling on the way out.
func Extract(values []float64, latAxis, lonAxis *Axis, bbox gridstream.BBox, v *gridstream.VariableDescriptor) *gridstream.GridWindow {
	w := MakeWindow(latAxis, lonAxis, bbox)
	nLon := lonAxis.Len()
	out := &gridstream.GridWindow{
		Latitudes:  w.Latitudes,
		Longitudes: w.Longitudes,
		BBox:       bbox,
		Units:      v.Units,
		Variable:   v.ID,
		Aggregated: gridstream.Absent,
	}
	for i := w.LatStart; i <= w.LatEnd; i++ {
		row := make([]float64, 0, w.LonEnd-w.LonStart+1)
		for j := w.LonStart; j <= w.LonEnd; j++ {
			idx := i*nLon + j
			if idx < 0 || idx >= len(values) {
				row = append(row, gridstream.Absent)
				continue
			}
			row = append(row, ApplyScaling(values[idx], v))
		}
		out.Values = append(out.Values, row)
	}
	return out
}
