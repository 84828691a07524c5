package hrrr

import (
	"errors"
	"testing"
	"time"

	"github.com/hydrographs/gridstream"
)

func TestURLFor(t *testing.T) {
	a := NewAdapter()
	cycle := time.Date(2024, 5, 10, 6, 0, 0, 0, time.UTC)
	got, err := a.URLFor("sfc", cycle, gridstream.Options{ForecastHour: 1})
	if err != nil {
		t.Fatal(err)
	}
	want := "https://nomads.ncep.noaa.gov/pub/data/nccf/com/hrrr/prod/hrrr.20240510/conus/hrrr.t06z.wrfsfcf01.grib2"
	if got != want {
		t.Errorf("got  %q\nwant %q", got, want)
	}

	// Analysis file at forecast hour zero.
	got, err = a.URLFor("sfc", cycle, gridstream.Options{})
	if err != nil {
		t.Fatal(err)
	}
	want = "https://nomads.ncep.noaa.gov/pub/data/nccf/com/hrrr/prod/hrrr.20240510/conus/hrrr.t06z.wrfsfcf00.grib2"
	if got != want {
		t.Errorf("got  %q\nwant %q", got, want)
	}
}

func TestURLForForecastHourBounds(t *testing.T) {
	a := NewAdapter()
	cycle := time.Date(2024, 5, 10, 6, 0, 0, 0, time.UTC)
	for _, h := range []int{-1, 49} {
		_, err := a.URLFor("sfc", cycle, gridstream.Options{ForecastHour: h})
		if !errors.Is(err, gridstream.ErrOutOfTemporalRange) {
			t.Errorf("hour %d: got %v, want OutOfTemporalRange", h, err)
		}
	}
}

func TestDescriptor(t *testing.T) {
	d := NewAdapter().Descriptor()
	if d.Dataset != "hrrr-operational" {
		t.Errorf("dataset: got %q", d.Dataset)
	}
	v, ok := d.Variable("TMP")
	if !ok {
		t.Fatal("no TMP variable")
	}
	if v.Grib.LevelType != 103 || v.Grib.LevelValue != 2 {
		t.Errorf("TMP selector: %+v", v.Grib)
	}
	if !v.InProduct("sfc") || v.InProduct("prs") {
		t.Error("TMP product membership wrong")
	}
}
