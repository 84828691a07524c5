package zippack

import (
	"errors"
	"regexp"
	"strings"
	"testing"

	"github.com/hydrographs/gridstream"
	"github.com/hydrographs/gridstream/test"
)

func TestOpenSelector(t *testing.T) {
	b := test.BuildPRISMZip(test.BilOpts{
		Rows: 2, Cols: 2,
		ULX: -94, ULY: 42,
		XDim: 1, YDim: 1,
		NoData:         -9999,
		Values:         []float64{1, 2, 3, 4},
		IncludeSidecar: true,
	})
	ar, err := Open(b, regexp.MustCompile(`(?i)\.bil$`))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasSuffix(ar.PrimaryName, ".bil") {
		t.Errorf("PrimaryName: got %q", ar.PrimaryName)
	}
	if len(ar.Primary) != 16 {
		t.Errorf("primary: got %d bytes, want 16", len(ar.Primary))
	}
	if _, ok := ar.Sidecars[".hdr"]; !ok {
		t.Error("missing .hdr sidecar")
	}
	if _, ok := ar.Sidecars[".prj"]; !ok {
		t.Error("missing .prj sidecar")
	}
}

func TestOpenExtensionPreference(t *testing.T) {
	b := test.BuildPRISMZip(test.BilOpts{
		Rows: 1, Cols: 1,
		XDim: 1, YDim: 1,
		Values: []float64{1},
	})
	// No selector: .bil is the only data member.
	ar, err := Open(b, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasSuffix(ar.PrimaryName, ".bil") {
		t.Errorf("PrimaryName: got %q", ar.PrimaryName)
	}
}

func TestOpenRejects(t *testing.T) {
	if _, err := Open([]byte("not a zip"), nil); !errors.Is(err, gridstream.ErrFormatParse) {
		t.Errorf("garbage: got %v, want FormatParse", err)
	}
	b := test.BuildPRISMZip(test.BilOpts{
		Rows: 1, Cols: 1,
		XDim: 1, YDim: 1,
		Values: []float64{1},
	})
	if _, err := Open(b, regexp.MustCompile(`\.tif$`)); !errors.Is(err, gridstream.ErrFormatParse) {
		t.Errorf("no matching member: got %v, want FormatParse", err)
	}
}
