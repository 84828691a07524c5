// Package mrms adapts the NOAA Multi-Radar/Multi-Sensor real-time feed:
// per-product GRIB2 files, gzipped on the wire, published every few minutes
// and retained only briefly.
package mrms

import (
	"time"

	"github.com/hydrographs/gridstream"
	"github.com/hydrographs/gridstream/driver"
)

const baseURL = "https://mrms.ncep.noaa.gov/data/2D"

// Retention window of the real-time listing, as observed; not contractual.
const retentionNote = "MRMS real-time products are retained roughly 24-48 hours; " +
	"check the current-data listing at " + baseURL + "/ for available timestamps"

// Adapter serves the mrms source.
type Adapter struct {
	desc gridstream.SourceDescriptor
}

var _ driver.Adapter = (*Adapter)(nil)
var _ driver.ProductResolver = (*Adapter)(nil)

// NewAdapter returns the MRMS adapter.
func NewAdapter() *Adapter {
	return &Adapter{desc: descriptor()}
}

func (a *Adapter) Name() string { return "mrms" }

func (a *Adapter) Descriptor() *gridstream.SourceDescriptor { return &a.desc }

// URLFor synthesizes the timestamped product file path. MRMS publishes on
// two-minute boundaries for radar products; the timestamp is used as given
// and rounded only to the whole second.
func (a *Adapter) URLFor(product string, ts time.Time, _ gridstream.Options) (string, error) {
	t := ts.UTC().Truncate(time.Second)
	return driver.Expand(
		baseURL+"/{product}/MRMS_{product}_{YYYY}{MM}{DD}-{HH}{mm}{ss}.grib2.gz",
		driver.Vars{Time: t, Product: product},
	)
}

// ResolveProduct maps a variable onto the MRMS product directory carrying
// it.
func (a *Adapter) ResolveProduct(variableID string) (string, error) {
	v, ok := a.desc.Variable(variableID)
	if !ok || len(v.Products) == 0 {
		return "", &gridstream.Error{
			Kind:    gridstream.ErrUnknownVariable,
			Source:  a.Name(),
			Message: "no product carries variable " + variableID,
		}
	}
	return v.Products[0], nil
}

func descriptor() gridstream.SourceDescriptor {
	return gridstream.SourceDescriptor{
		ID:      "mrms",
		Dataset: "mrms-radar",
		BaseURL: baseURL,
		Format:  gridstream.FormatGRIB2,
		SpatialBounds: gridstream.BBox{
			West: -130, South: 20, East: -60, North: 55,
		},
		TemporalResolution: 2 * time.Minute,
		RetentionNote:      retentionNote,
		Products: []gridstream.Product{
			{ID: "MergedReflectivityQC_00.50", LongName: "Merged reflectivity QC, 0.5 km", Variables: []string{"REF"}},
			{ID: "PrecipRate", LongName: "Radar precipitation rate", Variables: []string{"PRATE"}},
			{ID: "MultiSensor_QPE_01H_Pass2", LongName: "Multi-sensor 1 h QPE, pass 2", Variables: []string{"QPE01H"}},
		},
		Variables: map[string]gridstream.VariableDescriptor{
			"REF": {
				ID:       "REF",
				LongName: "Merged reflectivity",
				Units:    "dBZ",
				Aliases:  []string{"reflectivity"},
				Grib:     gridstream.GribSelector{Discipline: 0, Category: 15, Parameter: 0, ShortName: "REF"},
				Fill:     -999,
				Missing:  -99,
				Products: []string{"MergedReflectivityQC_00.50"},
			},
			"PRATE": {
				ID:       "PRATE",
				LongName: "Precipitation rate",
				Units:    "mm/h",
				Aliases:  []string{"precip_rate"},
				Grib:     gridstream.GribSelector{Discipline: 0, Category: 1, Parameter: 7, ShortName: "PRATE"},
				Fill:     -999,
				Missing:  -3,
				Products: []string{"PrecipRate"},
			},
			"QPE01H": {
				ID:       "QPE01H",
				LongName: "1 h quantitative precipitation estimate",
				Units:    "mm",
				Aliases:  []string{"qpe", "precip_1h"},
				Grib:     gridstream.GribSelector{Discipline: 0, Category: 1, Parameter: 8, ShortName: "APCP"},
				Fill:     -999,
				Missing:  -3,
				Products: []string{"MultiSensor_QPE_01H_Pass2"},
			},
		},
	}
}
