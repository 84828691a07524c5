// Package gridmath implements the coordinate arithmetic shared by every
// decoder: axis/index conversion, scale/offset application, bounding-box
// windows, aggregation, and the small projection surface needed for
// non-geographic grids.
package gridmath

import (
	"math"

	"github.com/hydrographs/gridstream"
)

// Axis is one coordinate axis of a grid: either resolution-based
// (min/max/step) or an explicit coordinate array.
type Axis struct {
	Min        float64
	Max        float64
	Resolution float64
	// Values, when non-nil, overrides the resolution form.
	Values []float64
	// Descending marks axes stored from Max toward Min (typical for
	// north-to-south latitude scans).
	Descending bool
}

// Len reports the number of points on the axis.
func (a *Axis) Len() int {
	if a.Values != nil {
		return len(a.Values)
	}
	if a.Resolution == 0 {
		return 0
	}
	return int(math.Floor((a.Max-a.Min)/a.Resolution)) + 1
}

// NearestIndex returns the index of the axis point closest to target,
// clamped to the valid range.
func (a *Axis) NearestIndex(target float64) int {
	if a.Values != nil {
		best, bestDist := 0, math.Inf(1)
		for i, v := range a.Values {
			if d := math.Abs(v - target); d < bestDist {
				best, bestDist = i, d
			}
		}
		return best
	}
	n := a.Len()
	if n == 0 {
		return 0
	}
	var idx int
	if a.Descending {
		idx = int(math.Round((a.Max - target) / a.Resolution))
	} else {
		idx = int(math.Round((target - a.Min) / a.Resolution))
	}
	return clamp(idx, 0, n-1)
}

// Value reports the coordinate at index i.
func (a *Axis) Value(i int) float64 {
	if a.Values != nil {
		return a.Values[i]
	}
	if a.Descending {
		return a.Max - float64(i)*a.Resolution
	}
	return a.Min + float64(i)*a.Resolution
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

// ValidateCoords fails with an out-of-domain error when the point lies
// outside the source bounds.
func ValidateCoords(p gridstream.Point, bounds gridstream.BBox) error {
	if !bounds.Contains(p) {
		return &gridstream.Error{
			Kind:    gridstream.ErrOutOfDomain,
			Message: p.String() + " outside source bounds " + bounds.String(),
		}
	}
	return nil
}

// ValidateBBox fails on a degenerate box. Partial overlap with the source
// bounds is allowed; the caller clips. No overlap at all is out of domain.
func ValidateBBox(b, bounds gridstream.BBox) error {
	if b.West >= b.East || b.South >= b.North {
		return &gridstream.Error{
			Kind:    gridstream.ErrInvalidBBox,
			Message: "degenerate bounding box " + b.String(),
		}
	}
	if !b.Intersects(bounds) {
		return &gridstream.Error{
			Kind:    gridstream.ErrOutOfDomain,
			Message: b.String() + " outside source bounds " + bounds.String(),
		}
	}
	return nil
}
