// Package prism adapts the PRISM climate dataset: daily and monthly 4 km
// CONUS grids delivered as ZIP archives holding a BIL raster and its
// sidecars. The PRISM web service sets no CORS headers, so every request
// goes through a proxy.
package prism

import (
	"strings"
	"time"

	"github.com/hydrographs/gridstream"
	"github.com/hydrographs/gridstream/driver"
)

const baseURL = "https://services.nacse.org/prism/data/public/4km"

// Adapter serves the prism source.
type Adapter struct {
	desc gridstream.SourceDescriptor
}

var (
	_ driver.Adapter         = (*Adapter)(nil)
	_ driver.ProductResolver = (*Adapter)(nil)
	_ driver.RasterArchive   = (*Adapter)(nil)
)

// NewAdapter returns the PRISM adapter.
func NewAdapter() *Adapter {
	return &Adapter{desc: descriptor()}
}

func (a *Adapter) Name() string { return "prism" }

func (a *Adapter) Descriptor() *gridstream.SourceDescriptor { return &a.desc }

// URLFor builds the element download path. A "monthly" time period drops
// the day component; the service keys monthly grids by YYYYMM.
func (a *Adapter) URLFor(product string, ts time.Time, opts gridstream.Options) (string, error) {
	tmpl := baseURL + "/{product}/{YYYY}{MM}{DD}"
	if strings.EqualFold(opts.TimePeriod, "monthly") {
		tmpl = baseURL + "/{product}/{YYYY}{MM}"
	}
	return driver.Expand(tmpl, driver.Vars{Time: ts.UTC(), Product: product})
}

// ResolveProduct maps a variable to its PRISM element name; for PRISM the
// product and the variable are the same axis.
func (a *Adapter) ResolveProduct(variableID string) (string, error) {
	v, ok := a.desc.Variable(variableID)
	if !ok {
		return "", &gridstream.Error{
			Kind:    gridstream.ErrUnknownVariable,
			Source:  a.Name(),
			Message: "no PRISM element for variable " + variableID,
		}
	}
	return v.ID, nil
}

// MemberPattern selects the BIL member out of the delivery archive.
func (a *Adapter) MemberPattern() string { return `(?i)\.bil$` }

func descriptor() gridstream.SourceDescriptor {
	return gridstream.SourceDescriptor{
		ID:      "prism",
		Dataset: "prism-4km",
		BaseURL: baseURL,
		Format:  gridstream.FormatBIL,
		SpatialBounds: gridstream.BBox{
			West: -125.021, South: 24.062, East: -66.479, North: 49.938,
		},
		TemporalBounds: gridstream.TimeRange{
			Start: time.Date(1981, 1, 1, 0, 0, 0, 0, time.UTC),
		},
		TemporalResolution: 24 * time.Hour,
		NeedsProxy:         true,
		Variables: map[string]gridstream.VariableDescriptor{
			"ppt": {
				ID:       "ppt",
				LongName: "Daily precipitation",
				Units:    "mm",
				Aliases:  []string{"precip", "precipitation"},
				Fill:     -9999,
			},
			"tmean": {
				ID:       "tmean",
				LongName: "Daily mean temperature",
				Units:    "degC",
				Aliases:  []string{"temperature"},
				Fill:     -9999,
			},
			"tmax": {
				ID:       "tmax",
				LongName: "Daily maximum temperature",
				Units:    "degC",
				Fill:     -9999,
			},
			"tmin": {
				ID:       "tmin",
				LongName: "Daily minimum temperature",
				Units:    "degC",
				Fill:     -9999,
			},
			"vpdmax": {
				ID:       "vpdmax",
				LongName: "Daily maximum vapor pressure deficit",
				Units:    "hPa",
				Fill:     -9999,
			},
		},
	}
}
