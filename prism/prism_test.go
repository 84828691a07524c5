package prism

import (
	"regexp"
	"testing"
	"time"

	"github.com/hydrographs/gridstream"
)

func TestURLFor(t *testing.T) {
	a := NewAdapter()
	ts := time.Date(2024, 5, 10, 0, 0, 0, 0, time.UTC)
	got, err := a.URLFor("ppt", ts, gridstream.Options{})
	if err != nil {
		t.Fatal(err)
	}
	if want := "https://services.nacse.org/prism/data/public/4km/ppt/20240510"; got != want {
		t.Errorf("daily: got %q, want %q", got, want)
	}

	got, err = a.URLFor("tmean", ts, gridstream.Options{TimePeriod: "monthly"})
	if err != nil {
		t.Fatal(err)
	}
	if want := "https://services.nacse.org/prism/data/public/4km/tmean/202405"; got != want {
		t.Errorf("monthly: got %q, want %q", got, want)
	}
}

func TestResolveProduct(t *testing.T) {
	a := NewAdapter()
	// Elements and variables are the same axis; aliases map through.
	got, err := a.ResolveProduct("precip")
	if err != nil || got != "ppt" {
		t.Errorf("alias: got %q, %v", got, err)
	}
	if _, err := a.ResolveProduct("snow"); err == nil {
		t.Error("unknown element should fail")
	}
}

func TestMemberPattern(t *testing.T) {
	re := regexp.MustCompile(NewAdapter().MemberPattern())
	if !re.MatchString("PRISM_ppt_stable_4kmD2_20240510.BIL") {
		t.Error("pattern should match case-insensitively")
	}
	if re.MatchString("PRISM_ppt_stable_4kmD2_20240510.hdr") {
		t.Error("pattern should not match sidecars")
	}
}

func TestDescriptor(t *testing.T) {
	d := NewAdapter().Descriptor()
	if !d.NeedsProxy {
		t.Error("PRISM requires the proxy path")
	}
	if d.Format != gridstream.FormatBIL {
		t.Errorf("format: got %v", d.Format)
	}
}
