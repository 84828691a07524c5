// Package zippack unpacks archive-packed raster deliveries: a ZIP holding
// one primary data file (GeoTIFF or BIL) plus sidecar metadata.
package zippack

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"path"
	"regexp"
	"strings"

	"github.com/hydrographs/gridstream"
)

// Archive is an opened delivery.
type Archive struct {
	// Primary is the selected data member's bytes.
	Primary []byte
	// PrimaryName is its name within the archive.
	PrimaryName string
	// Sidecars maps lower-cased extensions (".hdr", ".prj", ".stx") of
	// members sharing the primary's basename to their bytes.
	Sidecars map[string][]byte
}

// Extension preference when no selector is supplied.
var preferred = []string{".tif", ".bil"}

// Open unpacks the archive and selects the primary data member: the first
// match of sel when provided, else by extension preference .tif over .bil.
func Open(b []byte, sel *regexp.Regexp) (*Archive, error) {
	zr, err := zip.NewReader(bytes.NewReader(b), int64(len(b)))
	if err != nil {
		return nil, &gridstream.Error{
			Kind:    gridstream.ErrFormatParse,
			Message: "zippack: not a ZIP archive",
			Inner:   err,
		}
	}
	var primary *zip.File
	if sel != nil {
		for _, f := range zr.File {
			if sel.MatchString(f.Name) {
				primary = f
				break
			}
		}
	} else {
	Prefer:
		for _, ext := range preferred {
			for _, f := range zr.File {
				if strings.EqualFold(path.Ext(f.Name), ext) {
					primary = f
					break Prefer
				}
			}
		}
	}
	if primary == nil {
		return nil, &gridstream.Error{
			Kind:    gridstream.ErrFormatParse,
			Message: fmt.Sprintf("zippack: no data member among %d files", len(zr.File)),
		}
	}

	out := &Archive{
		PrimaryName: primary.Name,
		Sidecars:    make(map[string][]byte),
	}
	if out.Primary, err = readMember(primary); err != nil {
		return nil, err
	}
	base := strings.TrimSuffix(primary.Name, path.Ext(primary.Name))
	for _, f := range zr.File {
		if f == primary {
			continue
		}
		if strings.TrimSuffix(f.Name, path.Ext(f.Name)) != base {
			continue
		}
		b, err := readMember(f)
		if err != nil {
			return nil, err
		}
		out.Sidecars[strings.ToLower(path.Ext(f.Name))] = b
	}
	return out, nil
}

func readMember(f *zip.File) ([]byte, error) {
	r, err := f.Open()
	if err != nil {
		return nil, &gridstream.Error{
			Kind:    gridstream.ErrDecompression,
			Message: "zippack: member " + f.Name,
			Inner:   err,
		}
	}
	defer r.Close()
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, &gridstream.Error{
			Kind:    gridstream.ErrDecompression,
			Message: "zippack: member " + f.Name,
			Inner:   err,
		}
	}
	return b, nil
}
