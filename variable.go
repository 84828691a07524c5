package gridstream

import "math"

// GribSelector identifies a GRIB2 message by the Product Definition fields.
type GribSelector struct {
	Discipline int
	Category   int
	Parameter  int
	LevelType  int
	LevelValue float64
	// ShortName is used for a substring fallback match when the numeric
	// identifiers miss, tolerating center-specific parameter aliasing.
	ShortName string
}

// VariableDescriptor is the static per-variable metadata of a source.
type VariableDescriptor struct {
	ID       string
	LongName string
	Units    string
	// Aliases are informal names accepted in requests (e.g. "temperature").
	Aliases []string
	// WireName is the in-file variable name when it differs from ID
	// (NetCDF/Zarr variables, GeoTIFF band semantics).
	WireName string
	Grib     GribSelector

	// Scale and Offset define the affine transform applied to raw values.
	// A zero-value descriptor means identity; use Scaling to read them.
	Scale  float64
	Offset float64
	// Fill and Missing are sentinel raw values meaning "no data". NaN
	// disables the comparison.
	Fill    float64
	Missing float64

	DataType string
	// Products lists the product IDs that carry this variable.
	Products     []string
	Availability []TimeRange
}

// Scaling returns the scale factor and offset, defaulting to the identity
// transform when the descriptor leaves them zero.
func (v *VariableDescriptor) Scaling() (scale, offset float64) {
	scale, offset = v.Scale, v.Offset
	if scale == 0 {
		scale = 1
	}
	return scale, offset
}

// IsFill reports whether raw is one of the variable's no-data sentinels.
func (v *VariableDescriptor) IsFill(raw float64) bool {
	if math.IsNaN(raw) {
		return true
	}
	if !math.IsNaN(v.Fill) && v.Fill != 0 && raw == v.Fill {
		return true
	}
	if !math.IsNaN(v.Missing) && v.Missing != 0 && raw == v.Missing {
		return true
	}
	return false
}

// InProduct reports whether the variable is delivered by the named product.
// A variable with no product list is available everywhere.
func (v *VariableDescriptor) InProduct(id string) bool {
	if len(v.Products) == 0 {
		return true
	}
	for _, p := range v.Products {
		if p == id {
			return true
		}
	}
	return false
}
