// Package nwm adapts the National Water Model retrospective forcing
// archive: hourly NetCDF files on S3, one instant per file.
package nwm

import (
	"time"

	"github.com/hydrographs/gridstream"
	"github.com/hydrographs/gridstream/driver"
)

const baseURL = "https://noaa-nwm-retrospective-3-0-pds.s3.amazonaws.com/CONUS/netcdf/FORCING"

// Adapter serves the nwm source.
type Adapter struct {
	desc gridstream.SourceDescriptor
}

var _ driver.Adapter = (*Adapter)(nil)

// NewAdapter returns the NWM retrospective adapter.
func NewAdapter() *Adapter {
	return &Adapter{desc: descriptor()}
}

func (a *Adapter) Name() string { return "nwm" }

func (a *Adapter) Descriptor() *gridstream.SourceDescriptor { return &a.desc }

// URLFor builds the hourly forcing file path, keyed by year directory and
// the full timestamp.
func (a *Adapter) URLFor(_ string, ts time.Time, _ gridstream.Options) (string, error) {
	return driver.Expand(
		baseURL+"/{YYYY}/{YYYY}{MM}{DD}{HH}.LDASIN_DOMAIN1",
		driver.Vars{Time: ts.UTC()},
	)
}

func descriptor() gridstream.SourceDescriptor {
	return gridstream.SourceDescriptor{
		ID:      "nwm",
		Dataset: "nwm-retrospective-v3",
		BaseURL: baseURL,
		Format:  gridstream.FormatNetCDF,
		SpatialBounds: gridstream.BBox{
			West: -125, South: 25, East: -67, North: 53,
		},
		TemporalBounds: gridstream.TimeRange{
			Start: time.Date(1979, 2, 1, 0, 0, 0, 0, time.UTC),
			End:   time.Date(2023, 1, 31, 23, 0, 0, 0, time.UTC),
		},
		TemporalResolution: time.Hour,
		// The bucket rejects HEAD through the anonymous path.
		SkipSizeProbe: true,
		Variables: map[string]gridstream.VariableDescriptor{
			"T2D": {
				ID:       "T2D",
				LongName: "2 m air temperature",
				Units:    "K",
				Aliases:  []string{"temperature"},
				Fill:     -1e36,
			},
			"RAINRATE": {
				ID:       "RAINRATE",
				LongName: "Surface precipitation rate",
				Units:    "mm/s",
				Aliases:  []string{"precip_rate"},
				Fill:     -1e36,
			},
			"LWDOWN": {
				ID:       "LWDOWN",
				LongName: "Downward longwave radiation",
				Units:    "W/m^2",
				Fill:     -1e36,
			},
			"SWDOWN": {
				ID:       "SWDOWN",
				LongName: "Downward shortwave radiation",
				Units:    "W/m^2",
				Fill:     -1e36,
			},
			"Q2D": {
				ID:       "Q2D",
				LongName: "2 m specific humidity",
				Units:    "kg/kg",
				Fill:     -1e36,
			},
			"U2D": {
				ID:       "U2D",
				LongName: "10 m U wind",
				Units:    "m/s",
				Fill:     -1e36,
			},
			"V2D": {
				ID:       "V2D",
				LongName: "10 m V wind",
				Units:    "m/s",
				Fill:     -1e36,
			},
		},
	}
}
