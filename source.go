package gridstream

import (
	"time"
)

// Format enumerates the wire formats a source can deliver.
type Format uint

const (
	FormatInvalid Format = iota // invalid

	FormatGRIB2   // grib2
	FormatNetCDF  // netcdf
	FormatZarr    // zarr
	FormatGeoTIFF // geotiff
	FormatBIL     // bil
)

var formatNames = [...]string{"invalid", "grib2", "netcdf", "zarr", "geotiff", "bil"}

func (f Format) String() string {
	if int(f) >= len(formatNames) {
		return "invalid"
	}
	return formatNames[f]
}

// TimeRange is an inclusive temporal interval. A zero End means "ongoing".
type TimeRange struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether t falls inside the range. Open-ended ranges
// contain everything after Start.
func (r TimeRange) Contains(t time.Time) bool {
	if t.Before(r.Start) {
		return false
	}
	if r.End.IsZero() {
		return true
	}
	return !t.After(r.End)
}

// Product is a named bundle of variables delivered together by a source.
type Product struct {
	ID        string
	LongName  string
	Variables []string
}

// SourceDescriptor is the static configuration of one remote source. These
// are loaded at process start and never mutated.
type SourceDescriptor struct {
	ID string
	// Dataset is the dataset identifier requests name; often the source ID
	// plus a product-line or version suffix.
	Dataset            string
	BaseURL            string
	URLTemplate        string
	Format             Format
	SpatialBounds      BBox
	TemporalBounds     TimeRange
	TemporalResolution time.Duration
	Products           []Product
	Variables          map[string]VariableDescriptor
	// NeedsProxy marks sources that cannot be contacted directly.
	NeedsProxy  bool
	RequiresKey bool
	// SkipSizeProbe marks servers known to reject HEAD.
	SkipSizeProbe bool
	// ForceChunked marks sources whose payloads are always large enough to
	// warrant range downloads.
	ForceChunked bool
	// RetentionNote, when non-empty, is attached to NotFound errors so
	// callers learn that real-time data may simply not be published yet or
	// already rotated out.
	RetentionNote string
}

// Variable returns the descriptor for the given ID, tolerating informal
// aliases registered on the descriptor.
func (s *SourceDescriptor) Variable(id string) (VariableDescriptor, bool) {
	if v, ok := s.Variables[id]; ok {
		return v, true
	}
	for _, v := range s.Variables {
		for _, a := range v.Aliases {
			if a == id {
				return v, true
			}
		}
	}
	return VariableDescriptor{}, false
}

// Product returns the named product.
func (s *SourceDescriptor) Product(id string) (Product, bool) {
	for _, p := range s.Products {
		if p.ID == id {
			return p, true
		}
	}
	return Product{}, false
}
