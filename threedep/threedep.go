// Package threedep adapts the USGS 3DEP seamless elevation tiles: static
// cloud-optimized GeoTIFFs on S3, one per 1°x1° cell, in EPSG:5070 for the
// seamless CONUS product. Elevation has no time axis; requests ignore the
// timestamp.
package threedep

import (
	"fmt"
	"math"
	"time"

	"github.com/hydrographs/gridstream"
	"github.com/hydrographs/gridstream/driver"
)

const baseURL = "https://prd-tnm.s3.amazonaws.com/StagedProducts/Elevation/13/TIFF/current"

// Adapter serves the threedep source.
type Adapter struct {
	desc gridstream.SourceDescriptor
}

var _ driver.Adapter = (*Adapter)(nil)

// NewAdapter returns the 3DEP adapter.
func NewAdapter() *Adapter {
	return &Adapter{desc: descriptor()}
}

func (a *Adapter) Name() string { return "threedep" }

func (a *Adapter) Descriptor() *gridstream.SourceDescriptor { return &a.desc }

// URLFor resolves the tile holding the request. The tile cell comes from
// the Region option ("n42w092"); TileFor derives it from a point when the
// caller has coordinates instead.
func (a *Adapter) URLFor(_ string, _ time.Time, opts gridstream.Options) (string, error) {
	if opts.Region == "" {
		return "", &gridstream.Error{
			Kind:    gridstream.ErrUnknownProduct,
			Source:  a.Name(),
			Message: "3DEP needs a tile cell in the region option, e.g. " + TileFor(gridstream.Point{Lat: 41.66, Lon: -91.53}),
		}
	}
	return driver.Expand(
		baseURL+"/{region}/USGS_13_{region}.tif",
		driver.Vars{Region: opts.Region},
	)
}

// TileFor names the 1°x1° cell containing the point. Tiles are labeled by
// their northwest corner, so latitude rounds up and west longitude rounds
// away from zero.
func TileFor(p gridstream.Point) string {
	return fmt.Sprintf("n%02dw%03d", int(math.Ceil(p.Lat)), int(math.Ceil(-p.Lon)))
}

func descriptor() gridstream.SourceDescriptor {
	return gridstream.SourceDescriptor{
		ID:      "threedep",
		Dataset: "threedep-13as",
		BaseURL: baseURL,
		Format:  gridstream.FormatGeoTIFF,
		SpatialBounds: gridstream.BBox{
			West: -125, South: 24, East: -66, North: 50,
		},
		// Tiles run hundreds of megabytes; always range-download them.
		ForceChunked: true,
		Variables: map[string]gridstream.VariableDescriptor{
			"elevation": {
				ID:       "elevation",
				LongName: "Ground surface elevation (NAVD88)",
				Units:    "m",
				Aliases:  []string{"elev", "dem"},
				// Per-file NoData comes from the GDAL_NODATA tag; this is
				// the conventional value for when the tag is absent.
				Fill: -999999,
			},
		},
	}
}
