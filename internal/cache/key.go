package cache

import (
	"fmt"
	"strings"
	"time"

	"github.com/hydrographs/gridstream"
)

// KeyParams are the logical request coordinates a cache key is derived from.
// The key is a pure function of these: it never depends on which proxy or
// mirror actually served the bytes.
type KeyParams struct {
	Source   string
	DataKind string
	Geometry gridstream.Geometry
	Start    time.Time
	End      time.Time
	Variable string
	Dataset  string
	// UserTag, when set, is used verbatim as the key. Sub-resources of the
	// same logical entity append their path to retain uniqueness.
	UserTag string
	// SubPath distinguishes sub-resources (e.g. Zarr chunk paths).
	SubPath string
}

// Key canonicalizes the parameters into the cache key. Coordinates are
// stringified at fixed precision so float jitter doesn't split entries.
func Key(p KeyParams) string {
	if p.UserTag != "" {
		if p.SubPath != "" {
			return p.UserTag + "/" + p.SubPath
		}
		return p.UserTag
	}
	parts := []string{p.Source, p.DataKind}
	switch g := p.Geometry.(type) {
	case gridstream.Point:
		parts = append(parts, fmt.Sprintf("%.4f,%.4f", g.Lat, g.Lon))
	case gridstream.BBox:
		parts = append(parts, fmt.Sprintf("%.4f,%.4f,%.4f,%.4f", g.West, g.South, g.East, g.North))
	case gridstream.MultiPoint:
		pts := make([]string, len(g))
		for i, pt := range g {
			pts[i] = fmt.Sprintf("%.4f,%.4f", pt.Lat, pt.Lon)
		}
		parts = append(parts, strings.Join(pts, ";"))
	case nil:
	}
	if !p.Start.IsZero() {
		parts = append(parts, p.Start.UTC().Format("2006-01-02"))
	}
	if !p.End.IsZero() {
		parts = append(parts, p.End.UTC().Format("2006-01-02"))
	}
	if p.Variable != "" {
		parts = append(parts, p.Variable)
	}
	if p.Dataset != "" {
		parts = append(parts, p.Dataset)
	}
	key := strings.Join(parts, "|")
	if p.SubPath != "" {
		key += "/" + p.SubPath
	}
	return key
}

// URLKey derives a key for a raw URL fetch with no richer request context.
func URLKey(source, url string) string {
	return source + "|url|" + url
}
