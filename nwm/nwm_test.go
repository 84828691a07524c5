package nwm

import (
	"testing"
	"time"

	"github.com/hydrographs/gridstream"
)

func TestURLFor(t *testing.T) {
	a := NewAdapter()
	ts := time.Date(2016, 6, 15, 7, 0, 0, 0, time.UTC)
	got, err := a.URLFor("", ts, gridstream.Options{})
	if err != nil {
		t.Fatal(err)
	}
	want := "https://noaa-nwm-retrospective-3-0-pds.s3.amazonaws.com/CONUS/netcdf/FORCING/2016/2016061507.LDASIN_DOMAIN1"
	if got != want {
		t.Errorf("got  %q\nwant %q", got, want)
	}
}

func TestDescriptor(t *testing.T) {
	d := NewAdapter().Descriptor()
	if d.Format != gridstream.FormatNetCDF || d.Dataset != "nwm-retrospective-v3" {
		t.Errorf("identity: %v / %q", d.Format, d.Dataset)
	}
	if !d.SkipSizeProbe {
		t.Error("bucket rejects HEAD; probe must be skipped")
	}
	if _, ok := d.Variable("temperature"); !ok {
		t.Error("alias temperature should resolve to T2D")
	}
}
