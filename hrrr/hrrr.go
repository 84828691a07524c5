// Package hrrr adapts the NOAA High-Resolution Rapid Refresh forecast feed
// on NOMADS: hourly model cycles, one GRIB2 file per product and forecast
// hour.
package hrrr

import (
	"fmt"
	"time"

	"github.com/hydrographs/gridstream"
	"github.com/hydrographs/gridstream/driver"
)

const baseURL = "https://nomads.ncep.noaa.gov/pub/data/nccf/com/hrrr/prod"

// Adapter serves the hrrr source.
type Adapter struct {
	desc gridstream.SourceDescriptor
}

var _ driver.Adapter = (*Adapter)(nil)

// NewAdapter returns the HRRR adapter.
func NewAdapter() *Adapter {
	return &Adapter{desc: descriptor()}
}

func (a *Adapter) Name() string { return "hrrr" }

func (a *Adapter) Descriptor() *gridstream.SourceDescriptor { return &a.desc }

// URLFor builds the cycle path: hrrr.YYYYMMDD/conus/hrrr.tHHz.wrf{product}fFF.grib2.
// The timestamp selects the model cycle; the forecast hour comes from the
// request options.
func (a *Adapter) URLFor(product string, ts time.Time, opts gridstream.Options) (string, error) {
	if opts.ForecastHour < 0 || opts.ForecastHour > 48 {
		return "", &gridstream.Error{
			Kind:    gridstream.ErrOutOfTemporalRange,
			Source:  a.Name(),
			Message: fmt.Sprintf("forecast hour %d outside 0-48", opts.ForecastHour),
		}
	}
	return driver.Expand(
		baseURL+"/hrrr.{YYYY}{MM}{DD}/conus/hrrr.t{HH}z.wrf{product}f{step2}.grib2",
		driver.Vars{Time: ts.UTC(), Product: product, Step: opts.ForecastHour},
	)
}

func descriptor() gridstream.SourceDescriptor {
	return gridstream.SourceDescriptor{
		ID:      "hrrr",
		Dataset: "hrrr-operational",
		BaseURL: baseURL,
		Format:  gridstream.FormatGRIB2,
		SpatialBounds: gridstream.BBox{
			West: -134.1, South: 21.1, East: -60.9, North: 52.6,
		},
		TemporalResolution: time.Hour,
		RetentionNote: "NOMADS keeps only the most recent two days of HRRR cycles; " +
			"older cycles live in the AWS open-data archive",
		Products: []gridstream.Product{
			{ID: "sfc", LongName: "2D surface fields", Variables: []string{"TMP", "DPT", "UGRD", "VGRD", "APCP", "REFC", "DSWRF"}},
			{ID: "prs", LongName: "3D pressure levels"},
			{ID: "subh", LongName: "Sub-hourly surface fields"},
			{ID: "nat", LongName: "Native model levels"},
		},
		Variables: map[string]gridstream.VariableDescriptor{
			"TMP": {
				ID:       "TMP",
				LongName: "2 m temperature",
				Units:    "K",
				Aliases:  []string{"temperature", "t2m"},
				Grib:     gridstream.GribSelector{Discipline: 0, Category: 0, Parameter: 0, LevelType: 103, LevelValue: 2, ShortName: "TMP"},
				Products: []string{"sfc", "subh"},
			},
			"DPT": {
				ID:       "DPT",
				LongName: "2 m dewpoint",
				Units:    "K",
				Aliases:  []string{"dewpoint"},
				Grib:     gridstream.GribSelector{Discipline: 0, Category: 0, Parameter: 6, LevelType: 103, LevelValue: 2, ShortName: "DPT"},
				Products: []string{"sfc"},
			},
			"UGRD": {
				ID:       "UGRD",
				LongName: "10 m U wind",
				Units:    "m/s",
				Grib:     gridstream.GribSelector{Discipline: 0, Category: 2, Parameter: 2, LevelType: 103, LevelValue: 10, ShortName: "UGRD"},
				Products: []string{"sfc", "subh"},
			},
			"VGRD": {
				ID:       "VGRD",
				LongName: "10 m V wind",
				Units:    "m/s",
				Grib:     gridstream.GribSelector{Discipline: 0, Category: 2, Parameter: 3, LevelType: 103, LevelValue: 10, ShortName: "VGRD"},
				Products: []string{"sfc", "subh"},
			},
			"APCP": {
				ID:       "APCP",
				LongName: "Accumulated precipitation",
				Units:    "kg/m^2",
				Aliases:  []string{"precip"},
				Grib:     gridstream.GribSelector{Discipline: 0, Category: 1, Parameter: 8, LevelType: 1, ShortName: "APCP"},
				Products: []string{"sfc"},
			},
			"REFC": {
				ID:       "REFC",
				LongName: "Composite reflectivity",
				Units:    "dBZ",
				Grib:     gridstream.GribSelector{Discipline: 0, Category: 16, Parameter: 196, ShortName: "REFC"},
				Products: []string{"sfc"},
			},
			"DSWRF": {
				ID:       "DSWRF",
				LongName: "Downward shortwave radiation flux",
				Units:    "W/m^2",
				Grib:     gridstream.GribSelector{Discipline: 0, Category: 4, Parameter: 7, LevelType: 1, ShortName: "DSWRF"},
				Products: []string{"sfc"},
			},
		},
	}
}
