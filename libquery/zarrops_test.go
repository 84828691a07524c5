package libquery_test

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/hydrographs/gridstream"
	"github.com/hydrographs/gridstream/driver"
	"github.com/hydrographs/gridstream/gridmath"
	"github.com/hydrographs/gridstream/libquery"
	"github.com/hydrographs/gridstream/test"
)

// ZarrSource wraps the stub with the store-oriented surface: a year store,
// hour-of-day time index, and regular 1-degree axes over (40..43, -93..-90).
type zarrSource struct {
	stubSource
	latAx gridmath.Axis
	lonAx gridmath.Axis
}

var _ driver.ZarrAdapter = (*zarrSource)(nil)

func (s *zarrSource) StoreRoot(time.Time, gridstream.Options) (string, error) {
	return s.base + "/store", nil
}

func (s *zarrSource) TimeIndex(ts time.Time) (int, error) {
	return ts.UTC().Hour(), nil
}

func (s *zarrSource) Axes() (lat, lon *gridmath.Axis) {
	return &s.latAx, &s.lonAx
}

func zarrDescriptor() gridstream.SourceDescriptor {
	return gridstream.SourceDescriptor{
		ID:      "testzarr",
		Dataset: "testzarr-data",
		Format:  gridstream.FormatZarr,
		SpatialBounds: gridstream.BBox{
			West: -94, South: 39, East: -89, North: 44,
		},
		TemporalResolution: time.Hour,
		Variables: map[string]gridstream.VariableDescriptor{
			"PRCP": {
				ID:       "PRCP",
				LongName: "Hourly precipitation",
				Units:    "mm",
				Fill:     -9999,
				DataType: "int16",
			},
		},
	}
}

// ZarrServer serves a one-variable store whose chunks split the day and
// the grid: shape (24, 4, 4), chunks (6, 2, 2), raw int16 scaled by 0.1.
func zarrServer(t *testing.T, cells map[int]int16) *test.FileServer {
	t.Helper()
	store := test.BuildZarrStore(test.ZarrOpts{
		Variable: "PRCP",
		Shape:    []int{24, 4, 4},
		Chunks:   []int{6, 2, 2},
		Scale:    0.1,
		Fill:     -9999,
		Units:    "mm",
		Cells:    cells,
	})
	files := make(map[string][]byte, len(store))
	for k, v := range store {
		files["store/"+k] = v
	}
	return test.NewFileServer(t, files)
}

func zarrAdapter(srv *test.FileServer) zarrSource {
	return zarrSource{
		stubSource: stubSource{desc: zarrDescriptor(), base: srv.URL},
		latAx:      gridmath.Axis{Min: 40, Max: 43, Resolution: 1},
		lonAx:      gridmath.Axis{Min: -93, Max: -90, Resolution: 1},
	}
}

func zarrLib(t *testing.T, cells map[int]int16) (context.Context, *libquery.Lib, *test.FileServer) {
	t.Helper()
	srv := zarrServer(t, cells)
	src := zarrAdapter(srv)
	set := driver.NewAdapterSet()
	if err := set.Add(&src); err != nil {
		t.Fatal(err)
	}
	ctx, l := newLib(t, set)
	return ctx, l, srv
}

func TestZarrPoint(t *testing.T) {
	// Hour 2, cell (lat 41, lon -92) -> global index 2*16 + 1*4 + 1.
	ctx, l, srv := zarrLib(t, map[int]int16{37: 123})
	req := &gridstream.Request{
		Source:   "testzarr",
		Variable: "PRCP",
		Geometry: gridstream.Point{Lat: 41, Lon: -92},
		Time:     gridstream.TimeSpec{Instant: noon.Add(-10 * time.Hour)},
	}
	res, err := l.Point(ctx, req)
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(res.Value-12.3) > 1e-9 {
		t.Errorf("value: got %v, want 12.3", res.Value)
	}
	// .zarray, .zattrs, and one chunk.
	if got := srv.Gets(); got != 3 {
		t.Fatalf("first extraction: %d requests", got)
	}

	// The store files are all cached now.
	if _, err := l.Point(ctx, req); err != nil {
		t.Fatal(err)
	}
	if got := srv.Gets(); got != 3 {
		t.Errorf("cache hit still issued requests: %d total", got)
	}
}

func TestZarrPointFill(t *testing.T) {
	// Hour 0, cell (41, -92) written as the raw fill sentinel.
	ctx, l, _ := zarrLib(t, map[int]int16{5: -9999})
	res, err := l.Point(ctx, &gridstream.Request{
		Source:   "testzarr",
		Variable: "PRCP",
		Geometry: gridstream.Point{Lat: 41, Lon: -92},
		Time:     gridstream.TimeSpec{Instant: noon.Add(-12 * time.Hour)},
	})
	if err != nil {
		t.Fatal(err)
	}
	if !gridstream.IsAbsent(res.Value) {
		t.Errorf("fill cell: got %v, want Absent", res.Value)
	}
}

func TestZarrGrid(t *testing.T) {
	// Hour 0, the 2x2 block at lat 40..41, lon -93..-92: cooked 1, 2, 3, 4.
	ctx, l, _ := zarrLib(t, map[int]int16{
		0: 10, 1: 20, 4: 30, 5: 40,
	})
	w, err := l.Grid(ctx, &gridstream.Request{
		Source:   "testzarr",
		Variable: "PRCP",
		Geometry: gridstream.BBox{West: -93.4, South: 39.6, East: -91.6, North: 41.4},
		Time:     gridstream.TimeSpec{Instant: noon.Add(-12 * time.Hour)},
		Options:  gridstream.Options{Aggregation: "mean"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(w.Values) != 2 || len(w.Values[0]) != 2 {
		t.Fatalf("window shape: %dx%d", len(w.Values), len(w.Values[0]))
	}
	if math.Abs(w.Aggregated-2.5) > 1e-9 {
		t.Errorf("mean: got %v, want 2.5", w.Aggregated)
	}
	if w.Units != "mm" {
		t.Errorf("units: got %q", w.Units)
	}
}

// CappedZarr post-processes beyond linear scaling, standing in for sources
// with nonlinear corrections.
type cappedZarr struct {
	zarrSource
	ceiling float64
}

var _ driver.Finalizer = (*cappedZarr)(nil)

func (s *cappedZarr) Finalize(raw float64, v *gridstream.VariableDescriptor) float64 {
	cooked := gridmath.ApplyScaling(raw, v)
	if cooked > s.ceiling {
		return s.ceiling
	}
	return cooked
}

func TestZarrFinalizerOverride(t *testing.T) {
	// Hour 2: (41, -93) cooks to 2.0, (41, -92) would cook to 12.3 and
	// must come back clamped.
	srv := zarrServer(t, map[int]int16{36: 20, 37: 123})
	src := &cappedZarr{zarrSource: zarrAdapter(srv), ceiling: 10}
	set := driver.NewAdapterSet()
	if err := set.Add(src); err != nil {
		t.Fatal(err)
	}
	ctx, l := newLib(t, set)

	ts := gridstream.TimeSpec{Instant: noon.Add(-10 * time.Hour)}
	res, err := l.Point(ctx, &gridstream.Request{
		Source:   "testzarr",
		Variable: "PRCP",
		Geometry: gridstream.Point{Lat: 41, Lon: -92},
		Time:     ts,
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.Value != 10 {
		t.Errorf("point: got %v, want the clamped 10", res.Value)
	}

	w, err := l.Grid(ctx, &gridstream.Request{
		Source:   "testzarr",
		Variable: "PRCP",
		Geometry: gridstream.BBox{West: -93.4, South: 40.6, East: -91.6, North: 41.4},
		Time:     ts,
	})
	if err != nil {
		t.Fatal(err)
	}
	want := [][]float64{{2, 10}}
	if len(w.Values) != 1 || len(w.Values[0]) != 2 {
		t.Fatalf("window shape: %v", w.Values)
	}
	for j := range want[0] {
		if math.Abs(w.Values[0][j]-want[0][j]) > 1e-9 {
			t.Errorf("window: got %v, want %v", w.Values, want)
			break
		}
	}
}

func TestZarrMissingChunk(t *testing.T) {
	// Hour 20 lives in time-chunk 3, which the fixture store never wrote.
	ctx, l, _ := zarrLib(t, map[int]int16{37: 123})
	_, err := l.Point(ctx, &gridstream.Request{
		Source:   "testzarr",
		Variable: "PRCP",
		Geometry: gridstream.Point{Lat: 41, Lon: -92},
		Time:     gridstream.TimeSpec{Instant: noon.Add(8 * time.Hour)},
	})
	if err == nil {
		t.Fatal("missing chunk should fail")
	}
}
