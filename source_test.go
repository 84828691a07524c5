package gridstream

import (
	"testing"
	"time"
)

func TestFormatString(t *testing.T) {
	tt := []struct {
		f    Format
		want string
	}{
		{FormatInvalid, "invalid"},
		{FormatGRIB2, "grib2"},
		{FormatNetCDF, "netcdf"},
		{FormatZarr, "zarr"},
		{FormatGeoTIFF, "geotiff"},
		{FormatBIL, "bil"},
		{Format(99), "invalid"},
	}
	for _, tc := range tt {
		if got := tc.f.String(); got != tc.want {
			t.Errorf("%d: got %q, want %q", tc.f, got, tc.want)
		}
	}
}

func TestTimeRangeContains(t *testing.T) {
	t0 := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	closed := TimeRange{Start: t0, End: t0.AddDate(1, 0, 0)}
	if !closed.Contains(t0) || !closed.Contains(closed.End) {
		t.Error("endpoints are inclusive")
	}
	if closed.Contains(t0.Add(-time.Second)) || closed.Contains(closed.End.Add(time.Second)) {
		t.Error("points outside a closed range accepted")
	}
	open := TimeRange{Start: t0}
	if !open.Contains(t0.AddDate(30, 0, 0)) {
		t.Error("open-ended range should contain any later time")
	}
}

func TestDescriptorLookups(t *testing.T) {
	d := SourceDescriptor{
		Products: []Product{{ID: "sfc"}},
		Variables: map[string]VariableDescriptor{
			"TMP": {ID: "TMP", Aliases: []string{"temperature", "t2m"}},
		},
	}
	if v, ok := d.Variable("TMP"); !ok || v.ID != "TMP" {
		t.Error("canonical lookup failed")
	}
	if v, ok := d.Variable("t2m"); !ok || v.ID != "TMP" {
		t.Error("alias lookup failed")
	}
	if _, ok := d.Variable("nope"); ok {
		t.Error("unknown variable found")
	}
	if _, ok := d.Product("sfc"); !ok {
		t.Error("product lookup failed")
	}
	if _, ok := d.Product("prs"); ok {
		t.Error("unknown product found")
	}
}
