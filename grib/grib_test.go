package grib

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/hydrographs/gridstream"
	"github.com/hydrographs/gridstream/test"
)

func buildTemp(scan byte) []byte {
	return test.BuildGRIB2(test.GribOpts{
		Category:   0,
		Parameter:  0,
		LevelType:  103,
		LevelValue: 2,
		RefTime:    time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC),
		Ni:         3, Nj: 3,
		Lat1: 42, Lon1: -93,
		DLat: 1, DLon: 1,
		ScanMode: scan,
		Values:   []float64{0, 1, 2, 3, 4, 5, 6, 7, 8},
	})
}

func TestParseMessage(t *testing.T) {
	msgs, err := Parse(buildTemp(0))
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 1 {
		t.Fatalf("got %d messages, want 1", len(msgs))
	}
	m := msgs[0]
	if m.Discipline != 0 || m.Category != 0 || m.Parameter != 0 {
		t.Errorf("parameter triple: got (%d,%d,%d)", m.Discipline, m.Category, m.Parameter)
	}
	if m.LevelType != 103 || m.LevelValue != 2 {
		t.Errorf("level: got type=%d value=%v", m.LevelType, m.LevelValue)
	}
	if want := time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC); !m.RefTime.Equal(want) {
		t.Errorf("RefTime: got %v, want %v", m.RefTime, want)
	}
	if m.ShortName() != "TMP" {
		t.Errorf("ShortName: got %q, want TMP", m.ShortName())
	}

	g := &m.Grid
	if !g.Regular() {
		t.Fatal("grid should be regular lat/lon")
	}
	if g.Ni != 3 || g.Nj != 3 || g.Lat1 != 42 || g.Lon1 != -93 {
		t.Errorf("grid corner: Ni=%d Nj=%d Lat1=%v Lon1=%v", g.Ni, g.Nj, g.Lat1, g.Lon1)
	}
	if g.Lat2 != 40 || g.Lon2 != -91 {
		t.Errorf("far corner: got (%v, %v), want (40, -91)", g.Lat2, g.Lon2)
	}

	vals, err := m.Values()
	if err != nil {
		t.Fatal(err)
	}
	for i, v := range vals {
		if v != float64(i) {
			t.Errorf("Values[%d]: got %v, want %d", i, v, i)
		}
	}
}

func TestParseConcatenated(t *testing.T) {
	b := append(buildTemp(0), buildTemp(0)...)
	msgs, err := Parse(b)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 2 {
		t.Errorf("got %d messages, want 2", len(msgs))
	}
}

func TestParseGarbage(t *testing.T) {
	if _, err := Parse([]byte("this is not a grib file")); err == nil {
		t.Error("expected an error")
	}
	var ge *gridstream.Error
	_, err := Parse(make([]byte, 64))
	if !errors.As(err, &ge) || ge.Kind != gridstream.ErrFormatParse {
		t.Errorf("got %v, want FormatParse", err)
	}
}

func TestValueAtPoint(t *testing.T) {
	msgs, err := Parse(buildTemp(0))
	if err != nil {
		t.Fatal(err)
	}
	m := msgs[0]
	tt := []struct {
		lat, lon float64
		want     float64
	}{
		{42, -93, 0},     // first grid point
		{40, -91, 8},     // last grid point
		{41, -92, 4},     // center
		{41.4, -92.4, 4}, // nearest-neighbour rounding
		{50, -100, 0},    // clamped to the corner
	}
	for _, tc := range tt {
		got, err := m.ValueAtPoint(tc.lat, tc.lon)
		if err != nil {
			t.Fatalf("ValueAtPoint(%v,%v): %v", tc.lat, tc.lon, err)
		}
		if got != tc.want {
			t.Errorf("ValueAtPoint(%v,%v): got %v, want %v", tc.lat, tc.lon, got, tc.want)
		}
	}
}

func TestValueAtPointSouthToNorth(t *testing.T) {
	// +j scan: latitudes run south to north from Lat1.
	b := test.BuildGRIB2(test.GribOpts{
		Ni: 3, Nj: 3,
		Lat1: 40, Lon1: -93,
		DLat: 1, DLon: 1,
		ScanMode: 0x40,
		Values:   []float64{0, 1, 2, 3, 4, 5, 6, 7, 8},
	})
	msgs, err := Parse(b)
	if err != nil {
		t.Fatal(err)
	}
	got, err := msgs[0].ValueAtPoint(42, -93)
	if err != nil {
		t.Fatal(err)
	}
	if got != 6 {
		t.Errorf("northmost row: got %v, want 6", got)
	}
}

func TestValueAtPointLongitude360(t *testing.T) {
	// Grids published on 0..360 accept negative west longitudes.
	b := test.BuildGRIB2(test.GribOpts{
		Ni: 3, Nj: 3,
		Lat1: 42, Lon1: 267,
		DLat: 1, DLon: 1,
		Values: []float64{0, 1, 2, 3, 4, 5, 6, 7, 8},
	})
	msgs, err := Parse(b)
	if err != nil {
		t.Fatal(err)
	}
	got, err := msgs[0].ValueAtPoint(41, -92)
	if err != nil {
		t.Fatal(err)
	}
	if got != 4 {
		t.Errorf("got %v, want 4", got)
	}
}

func TestFindMessage(t *testing.T) {
	msgs, err := Parse(buildTemp(0))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := FindMessage(msgs, gridstream.GribSelector{LevelType: 103, LevelValue: 2}); err != nil {
		t.Errorf("numeric match: %v", err)
	}
	_, err = FindMessage(msgs, gridstream.GribSelector{LevelType: 1})
	if !errors.Is(err, gridstream.ErrMessageNotFound) {
		t.Errorf("level mismatch: got %v, want MessageNotFound", err)
	}
	// Short-name fallback when the numeric triple misses.
	sel := gridstream.GribSelector{Discipline: 9, Category: 9, Parameter: 9, ShortName: "tmp"}
	if _, err := FindMessage(msgs, sel); err != nil {
		t.Errorf("short-name fallback: %v", err)
	}
}

func TestAxes(t *testing.T) {
	msgs, err := Parse(buildTemp(0))
	if err != nil {
		t.Fatal(err)
	}
	m := msgs[0]
	min, max, step, desc := m.LatAxis()
	if min != 40 || max != 42 || step != 1 || !desc {
		t.Errorf("LatAxis: got (%v, %v, %v, %v)", min, max, step, desc)
	}
	lmin, lmax, lstep := m.LonAxis()
	if lmin != -93 || lmax != -91 || lstep != 1 {
		t.Errorf("LonAxis: got (%v, %v, %v)", lmin, lmax, lstep)
	}
}

func TestApplyBitmap(t *testing.T) {
	m := &Message{bitmap: []bool{true, false, true, false}}
	out := m.applyBitmap([]float64{7, 9})
	if len(out) != 4 {
		t.Fatalf("got %d values, want 4", len(out))
	}
	if out[0] != 7 || out[2] != 9 {
		t.Errorf("present points: got %v", out)
	}
	if !math.IsNaN(out[1]) || !math.IsNaN(out[3]) {
		t.Errorf("masked points should be NaN: got %v", out)
	}
}

func TestSignMagnitude(t *testing.T) {
	if got := signMagnitude(0x80000005, 32); got != -5 {
		t.Errorf("got %d, want -5", got)
	}
	if got := signMagnitude(5, 32); got != 5 {
		t.Errorf("got %d, want 5", got)
	}
}

func TestBitReader(t *testing.T) {
	br := newBitReader([]byte{0b10110100, 0b11000000})
	v, err := br.read(3)
	if err != nil || v != 0b101 {
		t.Errorf("read(3): got %d, %v", v, err)
	}
	br.align()
	v, err = br.read(2)
	if err != nil || v != 0b11 {
		t.Errorf("aligned read(2): got %d, %v", v, err)
	}
	if _, err := br.read(16); err == nil {
		t.Error("read past end should fail")
	}
}
