package gridmath

import (
	"github.com/hydrographs/gridstream"
)

// ApplyScaling converts a raw stored value to physical units:
// raw×scale+offset, unless raw is one of the variable's no-data sentinels,
// in which case the result is Absent. Pure function.
func ApplyScaling(raw float64, v *gridstream.VariableDescriptor) float64 {
	if v.IsFill(raw) {
		return gridstream.Absent
	}
	scale, offset := v.Scaling()
	return raw*scale + offset
}

// ApplyScalingAll scales a whole slice in place-order, returning a new
// slice.
func ApplyScalingAll(raw []float64, v *gridstream.VariableDescriptor) []float64 {
	out := make([]float64, len(raw))
	for i, r := range raw {
		out[i] = ApplyScaling(r, v)
	}
	return out
}
