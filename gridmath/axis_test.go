package gridmath

import (
	"errors"
	"testing"

	"github.com/hydrographs/gridstream"
)

func TestNearestIndexResolution(t *testing.T) {
	a := &Axis{Min: 20, Max: 55, Resolution: 0.01}
	tt := []struct {
		target float64
		want   int
	}{
		{20, 0},
		{20.004, 0},
		{20.006, 1},
		{55, a.Len() - 1},
		{19, 0},           // clamped low
		{60, a.Len() - 1}, // clamped high
	}
	for _, tc := range tt {
		if got := a.NearestIndex(tc.target); got != tc.want {
			t.Errorf("NearestIndex(%v): got %d, want %d", tc.target, got, tc.want)
		}
	}
}

func TestNearestIndexMonotone(t *testing.T) {
	a := &Axis{Min: -125, Max: -67, Resolution: 0.25}
	prev := -1
	for target := -126.0; target <= -66.0; target += 0.01 {
		got := a.NearestIndex(target)
		if got < prev {
			t.Fatalf("NearestIndex not monotone at %v: %d after %d", target, got, prev)
		}
		prev = got
	}
}

func TestNearestIndexDescending(t *testing.T) {
	a := &Axis{Min: 20, Max: 55, Resolution: 0.5, Descending: true}
	if got := a.NearestIndex(55); got != 0 {
		t.Errorf("top of a descending axis: got %d, want 0", got)
	}
	if got := a.NearestIndex(20); got != a.Len()-1 {
		t.Errorf("bottom of a descending axis: got %d, want %d", got, a.Len()-1)
	}
	if got, want := a.Value(0), 55.0; got != want {
		t.Errorf("Value(0): got %v, want %v", got, want)
	}
}

func TestNearestIndexExplicit(t *testing.T) {
	a := &Axis{Values: []float64{41.0, 41.5, 42.2, 43.0}}
	if got := a.NearestIndex(42.0); got != 2 {
		t.Errorf("got %d, want 2", got)
	}
}

func TestValidateCoords(t *testing.T) {
	bounds := gridstream.BBox{West: -130, South: 20, East: -60, North: 55}
	if err := ValidateCoords(gridstream.Point{Lat: 41.66, Lon: -91.53}, bounds); err != nil {
		t.Errorf("in-bounds point: %v", err)
	}
	err := ValidateCoords(gridstream.Point{Lat: 10, Lon: -91.53}, bounds)
	if !errors.Is(err, gridstream.ErrOutOfDomain) {
		t.Errorf("out-of-bounds point: got %v, want OutOfDomain", err)
	}
}

func TestValidateBBox(t *testing.T) {
	bounds := gridstream.BBox{West: -130, South: 20, East: -60, North: 55}
	degenerate := gridstream.BBox{West: -90, South: 42, East: -91, North: 41}
	if err := ValidateBBox(degenerate, bounds); !errors.Is(err, gridstream.ErrInvalidBBox) {
		t.Errorf("degenerate box: got %v, want InvalidBBox", err)
	}
	disjoint := gridstream.BBox{West: 10, South: 42, East: 11, North: 43}
	if err := ValidateBBox(disjoint, bounds); !errors.Is(err, gridstream.ErrOutOfDomain) {
		t.Errorf("disjoint box: got %v, want OutOfDomain", err)
	}
	partial := gridstream.BBox{West: -131, South: 42, East: -129, North: 43}
	if err := ValidateBBox(partial, bounds); err != nil {
		t.Errorf("partial overlap should pass: %v", err)
	}
}
