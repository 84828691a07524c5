package aorc

import (
	"testing"
	"time"

	"github.com/hydrographs/gridstream"
)

func TestStoreRoot(t *testing.T) {
	a := NewAdapter()
	ts := time.Date(2016, 6, 15, 12, 0, 0, 0, time.UTC)
	got, err := a.StoreRoot(ts, gridstream.Options{})
	if err != nil {
		t.Fatal(err)
	}
	if want := "https://noaa-nws-aorc-v1-1-1km.s3.amazonaws.com/2016.zarr"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
	// URLFor is the store root; chunk paths append later.
	u, err := a.URLFor("", ts, gridstream.Options{})
	if err != nil || u != got {
		t.Errorf("URLFor: got %q, %v", u, err)
	}
}

func TestTimeIndex(t *testing.T) {
	a := NewAdapter()
	tt := []struct {
		ts   time.Time
		want int
	}{
		{time.Date(2016, 1, 1, 0, 0, 0, 0, time.UTC), 0},
		{time.Date(2016, 1, 1, 5, 0, 0, 0, time.UTC), 5},
		{time.Date(2016, 1, 2, 0, 0, 0, 0, time.UTC), 24},
		{time.Date(2016, 6, 15, 12, 0, 0, 0, time.UTC), (31+29+31+30+31+14)*24 + 12},
	}
	for _, tc := range tt {
		got, err := a.TimeIndex(tc.ts)
		if err != nil {
			t.Fatalf("%v: %v", tc.ts, err)
		}
		if got != tc.want {
			t.Errorf("TimeIndex(%v): got %d, want %d", tc.ts, got, tc.want)
		}
	}
}

func TestAxes(t *testing.T) {
	lat, lon := NewAdapter().Axes()
	if lat.Min != 25 || lat.Max != 53 || lon.Min != -125 || lon.Max != -67 {
		t.Errorf("axes: lat %+v lon %+v", lat, lon)
	}
	// ~1 km cells: 120 per degree.
	if got := lat.NearestIndex(25 + 1.0/120); got != 1 {
		t.Errorf("one cell north: got index %d", got)
	}
}

func TestDescriptor(t *testing.T) {
	d := NewAdapter().Descriptor()
	if d.Format != gridstream.FormatZarr || d.Dataset != "aorc-v1.1" {
		t.Errorf("identity: %v / %q", d.Format, d.Dataset)
	}
	if !d.TemporalBounds.Contains(time.Date(2000, 7, 1, 0, 0, 0, 0, time.UTC)) {
		t.Error("coverage should include 2000")
	}
	if d.TemporalBounds.Contains(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Error("coverage should end in 2023")
	}
}
