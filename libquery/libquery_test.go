package libquery_test

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/quay/zlog"

	"github.com/hydrographs/gridstream"
	"github.com/hydrographs/gridstream/driver"
	"github.com/hydrographs/gridstream/internal/httputil"
	"github.com/hydrographs/gridstream/libquery"
	"github.com/hydrographs/gridstream/test"
)

// StubSource is a minimal adapter over an httptest server: one file per
// hour, named by timestamp.
type stubSource struct {
	desc gridstream.SourceDescriptor
	base string
	ext  string
}

var _ driver.Adapter = (*stubSource)(nil)

func (s *stubSource) Name() string { return s.desc.ID }

func (s *stubSource) Descriptor() *gridstream.SourceDescriptor { return &s.desc }

func (s *stubSource) URLFor(_ string, ts time.Time, _ gridstream.Options) (string, error) {
	return s.base + "/" + ts.UTC().Format("2006010215") + s.ext, nil
}

func gribDescriptor() gridstream.SourceDescriptor {
	return gridstream.SourceDescriptor{
		ID:      "testgrib",
		Dataset: "testgrib-data",
		Format:  gridstream.FormatGRIB2,
		SpatialBounds: gridstream.BBox{
			West: -94, South: 39, East: -90, North: 43,
		},
		TemporalBounds: gridstream.TimeRange{
			Start: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
			End:   time.Date(2024, 12, 31, 23, 0, 0, 0, time.UTC),
		},
		TemporalResolution: time.Hour,
		RetentionNote:      "test files rotate out after the fixture window",
		SkipSizeProbe:      true,
		Variables: map[string]gridstream.VariableDescriptor{
			"TMP": {
				ID:       "TMP",
				LongName: "2 m temperature",
				Units:    "K",
				Aliases:  []string{"temperature"},
				Grib:     gridstream.GribSelector{LevelType: 103, LevelValue: 2, ShortName: "TMP"},
			},
			"DPT": {
				ID:       "DPT",
				LongName: "2 m dew point",
				Units:    "K",
				Grib:     gridstream.GribSelector{Parameter: 6, LevelType: 103, LevelValue: 2, ShortName: "DPT"},
			},
		},
	}
}

// GribFixture is a 3x3 north-to-south grid over (40..42, -93..-91) with
// values 0..8 in scan order; (41, -92) holds 4.
func gribFixture() []byte {
	return test.BuildGRIB2(test.GribOpts{
		LevelType: 103, LevelValue: 2,
		Ni: 3, Nj: 3,
		Lat1: 42, Lon1: -93,
		DLat: 1, DLon: 1,
		Values: []float64{0, 1, 2, 3, 4, 5, 6, 7, 8},
	})
}

// DptFixture mirrors gribFixture's grid as parameter 0-0-6 with values
// 100..108; (41, -92) holds 104.
func dptFixture() []byte {
	return test.BuildGRIB2(test.GribOpts{
		Parameter: 6,
		LevelType: 103, LevelValue: 2,
		Ni: 3, Nj: 3,
		Lat1: 42, Lon1: -93,
		DLat: 1, DLon: 1,
		Values: []float64{100, 101, 102, 103, 104, 105, 106, 107, 108},
	})
}

func newLib(t *testing.T, set driver.AdapterSet) (context.Context, *libquery.Lib) {
	t.Helper()
	ctx := zlog.Test(context.Background(), t)
	l, err := libquery.New(ctx, libquery.Options{
		Adapters: set,
		CacheDir: t.TempDir(),
		Proxies:  httputil.ProxyList{},
	})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { l.Close(ctx) })
	return ctx, l
}

func gribLib(t *testing.T, files map[string][]byte) (context.Context, *libquery.Lib, *test.FileServer) {
	t.Helper()
	srv := test.NewFileServer(t, files)
	src := &stubSource{desc: gribDescriptor(), base: srv.URL, ext: ".grib2"}
	set := driver.NewAdapterSet()
	if err := set.Add(src); err != nil {
		t.Fatal(err)
	}
	ctx, l := newLib(t, set)
	return ctx, l, srv
}

var noon = time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)

func TestPoint(t *testing.T) {
	ctx, l, srv := gribLib(t, map[string][]byte{"2024051012.grib2": gribFixture()})
	req := &gridstream.Request{
		Source:   "testgrib",
		Variable: "TMP",
		Geometry: gridstream.Point{Lat: 41, Lon: -92},
		Time:     gridstream.TimeSpec{Instant: noon},
	}
	res, err := l.Point(ctx, req)
	if err != nil {
		t.Fatal(err)
	}
	if res.Value != 4 {
		t.Errorf("value: got %v, want 4", res.Value)
	}
	if res.Units != "K" || res.Variable != "TMP" || !res.Timestamp.Equal(noon) {
		t.Errorf("metadata: %+v", res)
	}
	if got := srv.Gets(); got != 1 {
		t.Fatalf("first extraction: %d requests", got)
	}

	// Same request again is served from cache.
	if _, err := l.Point(ctx, req); err != nil {
		t.Fatal(err)
	}
	if got := srv.Gets(); got != 1 {
		t.Errorf("cache hit still issued requests: %d total", got)
	}
}

func TestPointAlias(t *testing.T) {
	ctx, l, _ := gribLib(t, map[string][]byte{"2024051012.grib2": gribFixture()})
	res, err := l.Point(ctx, &gridstream.Request{
		Source:   "testgrib",
		Variable: "temperature",
		Geometry: gridstream.Point{Lat: 41, Lon: -92},
		Time:     gridstream.TimeSpec{Instant: noon},
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.Variable != "TMP" {
		t.Errorf("alias should resolve to canonical ID, got %q", res.Variable)
	}
}

func TestPointNotFound(t *testing.T) {
	ctx, l, _ := gribLib(t, map[string][]byte{"2024051012.grib2": gribFixture()})
	_, err := l.Point(ctx, &gridstream.Request{
		Source:   "testgrib",
		Variable: "TMP",
		Geometry: gridstream.Point{Lat: 41, Lon: -92},
		Time:     gridstream.TimeSpec{Instant: noon.Add(time.Hour)},
	})
	if !errors.Is(err, gridstream.ErrNotFound) {
		t.Fatalf("got %v, want NotFound", err)
	}
	if !strings.Contains(err.Error(), "rotate out") {
		t.Errorf("missing retention note: %v", err)
	}
}

func TestGrid(t *testing.T) {
	ctx, l, _ := gribLib(t, map[string][]byte{"2024051012.grib2": gribFixture()})
	w, err := l.Grid(ctx, &gridstream.Request{
		Source:   "testgrib",
		Variable: "TMP",
		Geometry: gridstream.BBox{West: -93.4, South: 39.6, East: -90.6, North: 42.4},
		Time:     gridstream.TimeSpec{Instant: noon},
		Options:  gridstream.Options{Aggregation: "mean"},
	})
	if err != nil {
		t.Fatal(err)
	}
	want := [][]float64{{0, 1, 2}, {3, 4, 5}, {6, 7, 8}}
	if diff := cmp.Diff(want, w.Values); diff != "" {
		t.Errorf("window values (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]float64{42, 41, 40}, w.Latitudes); diff != "" {
		t.Errorf("latitudes (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]float64{-93, -92, -91}, w.Longitudes); diff != "" {
		t.Errorf("longitudes (-want +got):\n%s", diff)
	}
	if w.Aggregated != 4 {
		t.Errorf("mean of 0..8: got %v", w.Aggregated)
	}
}

func TestGridBadAggregation(t *testing.T) {
	ctx, l, _ := gribLib(t, map[string][]byte{"2024051012.grib2": gribFixture()})
	_, err := l.Grid(ctx, &gridstream.Request{
		Source:   "testgrib",
		Variable: "TMP",
		Geometry: gridstream.BBox{West: -93.4, South: 39.6, East: -90.6, North: 42.4},
		Time:     gridstream.TimeSpec{Instant: noon},
		Options:  gridstream.Options{Aggregation: "bogus"},
	})
	if err == nil {
		t.Fatal("unknown aggregation should fail")
	}
}

func TestRaw(t *testing.T) {
	payload := gribFixture()
	ctx, l, _ := gribLib(t, map[string][]byte{"2024051012.grib2": payload})
	b, err := l.Raw(ctx, &gridstream.Request{
		Source:   "testgrib",
		Variable: "TMP",
		Geometry: gridstream.Point{Lat: 41, Lon: -92},
		Time:     gridstream.TimeSpec{Instant: noon},
	})
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(b, payload) {
		t.Errorf("raw payload differs: %d bytes vs %d", len(b), len(payload))
	}
}

func TestRawBuffer(t *testing.T) {
	tmp, dpt := gribFixture(), dptFixture()
	payload := append(append([]byte{}, tmp...), dpt...)
	ctx, l, _ := gribLib(t, map[string][]byte{"2024051012.grib2": payload})
	b, err := l.Raw(ctx, &gridstream.Request{
		Source:   "testgrib",
		Variable: "DPT",
		Geometry: gridstream.Point{Lat: 41, Lon: -92},
		Time:     gridstream.TimeSpec{Instant: noon},
		Options:  gridstream.Options{RawBuffer: true},
	})
	if err != nil {
		t.Fatal(err)
	}
	// The second message of the file, exactly, nothing around it.
	if !bytes.Equal(b, dpt) {
		t.Errorf("located message: got %d bytes, want the %d-byte second message", len(b), len(dpt))
	}
}

func TestResolveErrors(t *testing.T) {
	ctx, l, _ := gribLib(t, map[string][]byte{"2024051012.grib2": gribFixture()})
	base := gridstream.Request{
		Source:   "testgrib",
		Variable: "TMP",
		Geometry: gridstream.Point{Lat: 41, Lon: -92},
		Time:     gridstream.TimeSpec{Instant: noon},
	}
	tt := []struct {
		name   string
		mut    func(*gridstream.Request)
		wantIs error
	}{
		{"unknown source", func(r *gridstream.Request) { r.Source = "nope" }, gridstream.ErrUnknownSource},
		{"unknown variable", func(r *gridstream.Request) { r.Variable = "nope" }, gridstream.ErrUnknownVariable},
		{"wrong dataset", func(r *gridstream.Request) { r.Dataset = "other-data" }, gridstream.ErrUnknownDataset},
		{"out of domain", func(r *gridstream.Request) { r.Geometry = gridstream.Point{Lat: 10, Lon: -92} }, gridstream.ErrOutOfDomain},
		{"no time", func(r *gridstream.Request) { r.Time = gridstream.TimeSpec{} }, gridstream.ErrInvalidDateRange},
		{"out of coverage", func(r *gridstream.Request) {
			r.Time = gridstream.TimeSpec{Instant: time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)}
		}, gridstream.ErrOutOfTemporalRange},
		{"bbox for point op", func(r *gridstream.Request) {
			r.Geometry = gridstream.BBox{West: -93, South: 40, East: -91, North: 42}
		}, gridstream.ErrInvalidBBox},
	}
	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {
			req := base
			tc.mut(&req)
			_, err := l.Point(ctx, &req)
			if !errors.Is(err, tc.wantIs) {
				t.Errorf("got %v, want %v", err, tc.wantIs)
			}
		})
	}
}

func TestNoCache(t *testing.T) {
	ctx, l, srv := gribLib(t, map[string][]byte{"2024051012.grib2": gribFixture()})
	req := &gridstream.Request{
		Source:   "testgrib",
		Variable: "TMP",
		Geometry: gridstream.Point{Lat: 41, Lon: -92},
		Time:     gridstream.TimeSpec{Instant: noon},
		Options:  gridstream.Options{NoCache: true},
	}
	for i := 0; i < 2; i++ {
		if _, err := l.Point(ctx, req); err != nil {
			t.Fatal(err)
		}
	}
	if got := srv.Gets(); got != 2 {
		t.Errorf("NoCache should refetch: %d requests", got)
	}
}

func TestCacheStatsAndClear(t *testing.T) {
	ctx, l, _ := gribLib(t, map[string][]byte{"2024051012.grib2": gribFixture()})
	if _, err := l.Point(ctx, &gridstream.Request{
		Source:   "testgrib",
		Variable: "TMP",
		Geometry: gridstream.Point{Lat: 41, Lon: -92},
		Time:     gridstream.TimeSpec{Instant: noon},
	}); err != nil {
		t.Fatal(err)
	}
	st, err := l.CacheStats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if st.Entries == 0 || st.TotalBytes == 0 {
		t.Errorf("stats after a fetch: %+v", st)
	}
	if err := l.CacheClear(ctx); err != nil {
		t.Fatal(err)
	}
	st, err = l.CacheStats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if st.Entries != 0 {
		t.Errorf("entries survive Clear: %+v", st)
	}
}

func TestDefaultAdapters(t *testing.T) {
	_, l := newLib(t, libquery.DefaultAdapters())
	want := []string{"aorc", "hrrr", "mrms", "nwm", "prism", "threedep"}
	got := l.Sources()
	if len(got) != len(want) {
		t.Fatalf("sources: %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("source %d: got %q, want %q", i, got[i], want[i])
		}
	}
}
