// Package aorc adapts the NOAA Analysis of Record for Calibration forcing
// archive: Zarr V2 stores on S3, one store per calendar year, hourly steps
// on a 1 km CONUS grid.
package aorc

import (
	"fmt"
	"time"

	"github.com/hydrographs/gridstream"
	"github.com/hydrographs/gridstream/driver"
	"github.com/hydrographs/gridstream/gridmath"
)

const baseURL = "https://noaa-nws-aorc-v1-1-1km.s3.amazonaws.com"

// Grid geometry of the 1 km CONUS domain. The spatial axes are regular;
// ~30 arc seconds per cell.
const (
	latMin = 25.0
	latMax = 53.0
	lonMin = -125.0
	lonMax = -67.0
	step   = 1.0 / 120.0
)

// Archive coverage.
var coverage = gridstream.TimeRange{
	Start: time.Date(1979, 2, 1, 0, 0, 0, 0, time.UTC),
	End:   time.Date(2023, 1, 31, 23, 0, 0, 0, time.UTC),
}

// Adapter serves the aorc source.
type Adapter struct {
	desc  gridstream.SourceDescriptor
	latAx gridmath.Axis
	lonAx gridmath.Axis
}

var (
	_ driver.Adapter     = (*Adapter)(nil)
	_ driver.ZarrAdapter = (*Adapter)(nil)
)

// NewAdapter returns the AORC adapter.
func NewAdapter() *Adapter {
	return &Adapter{
		desc:  descriptor(),
		latAx: gridmath.Axis{Min: latMin, Max: latMax, Resolution: step},
		lonAx: gridmath.Axis{Min: lonMin, Max: lonMax, Resolution: step},
	}
}

func (a *Adapter) Name() string { return "aorc" }

func (a *Adapter) Descriptor() *gridstream.SourceDescriptor { return &a.desc }

// URLFor reports the store root; individual chunk paths are appended by the
// Zarr read path, so the "URL" of a request is just its year's store.
func (a *Adapter) URLFor(_ string, ts time.Time, opts gridstream.Options) (string, error) {
	return a.StoreRoot(ts, opts)
}

// StoreRoot is the year-keyed store: {base}/{YYYY}.zarr.
func (a *Adapter) StoreRoot(ts time.Time, _ gridstream.Options) (string, error) {
	return driver.Expand(baseURL+"/{YYYY}.zarr", driver.Vars{Time: ts.UTC()})
}

// TimeIndex maps an instant to its hour offset from January 1 of its own
// year, the store's epoch.
func (a *Adapter) TimeIndex(ts time.Time) (int, error) {
	t := ts.UTC()
	epoch := time.Date(t.Year(), 1, 1, 0, 0, 0, 0, time.UTC)
	h := int(t.Sub(epoch) / time.Hour)
	if h < 0 {
		return 0, fmt.Errorf("aorc: %v precedes its store epoch %v", ts, epoch)
	}
	return h, nil
}

// Axes returns the store's regular spatial axes.
func (a *Adapter) Axes() (lat, lon *gridmath.Axis) {
	return &a.latAx, &a.lonAx
}

func descriptor() gridstream.SourceDescriptor {
	return gridstream.SourceDescriptor{
		ID:      "aorc",
		Dataset: "aorc-v1.1",
		BaseURL: baseURL,
		Format:  gridstream.FormatZarr,
		SpatialBounds: gridstream.BBox{
			West: lonMin, South: latMin, East: lonMax, North: latMax,
		},
		TemporalBounds:     coverage,
		TemporalResolution: time.Hour,
		Variables: map[string]gridstream.VariableDescriptor{
			"APCP_surface": {
				ID:       "APCP_surface",
				LongName: "Hourly precipitation",
				Units:    "kg/m^2",
				Aliases:  []string{"precip", "APCP"},
				// Scale and fill are read from .zattrs per store; these are
				// the v1.1 values, used only when the store omits them.
				Scale:    0.1,
				Fill:     -9999,
				DataType: "int16",
			},
			"TMP_2maboveground": {
				ID:       "TMP_2maboveground",
				LongName: "2 m temperature",
				Units:    "K",
				Aliases:  []string{"temperature", "TMP"},
				Scale:    0.1,
				Fill:     -9999,
				DataType: "int16",
			},
			"SPFH_2maboveground": {
				ID:       "SPFH_2maboveground",
				LongName: "2 m specific humidity",
				Units:    "kg/kg",
				Aliases:  []string{"SPFH"},
				Fill:     -9999,
				DataType: "float32",
			},
			"DSWRF_surface": {
				ID:       "DSWRF_surface",
				LongName: "Downward shortwave radiation",
				Units:    "W/m^2",
				Aliases:  []string{"DSWRF"},
				Fill:     -9999,
				DataType: "float32",
			},
			"UGRD_10maboveground": {
				ID:       "UGRD_10maboveground",
				LongName: "10 m U wind",
				Units:    "m/s",
				Fill:     -9999,
				DataType: "float32",
			},
			"VGRD_10maboveground": {
				ID:       "VGRD_10maboveground",
				LongName: "10 m V wind",
				Units:    "m/s",
				Fill:     -9999,
				DataType: "float32",
			},
		},
	}
}
