package libquery

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/hydrographs/gridstream"
	"github.com/hydrographs/gridstream/bil"
	"github.com/hydrographs/gridstream/driver"
	"github.com/hydrographs/gridstream/geotiff"
	"github.com/hydrographs/gridstream/grib"
	"github.com/hydrographs/gridstream/gridmath"
	"github.com/hydrographs/gridstream/internal/cache"
	"github.com/hydrographs/gridstream/internal/fetch"
	"github.com/hydrographs/gridstream/internal/zreader"
	"github.com/hydrographs/gridstream/netcdf"
	"github.com/hydrographs/gridstream/zippack"
)

// Payload fetches the source file covering ts, running the proxy and cache
// machinery. The returned bytes are as delivered; payload-level
// decompression happens in the per-format extractors.
func (l *Lib) payload(ctx context.Context, r *resolved, req *gridstream.Request, ts time.Time) ([]byte, error) {
	u, err := r.ad.URLFor(r.product, ts, req.Options)
	if err != nil {
		return nil, err
	}
	var key string
	if req.Options.CacheID != "" {
		key = cache.Key(cache.KeyParams{UserTag: req.Options.CacheID})
	}
	b, err := l.fc.Fetch(ctx, u, fetch.Options{
		Key:           key,
		Source:        r.desc.ID,
		Dataset:       r.desc.Dataset,
		Format:        r.desc.Format.String(),
		NoCache:       req.Options.NoCache,
		NeedsProxy:    r.desc.NeedsProxy || req.Options.ForceProxy,
		ForceChunked:  r.desc.ForceChunked,
		SkipSizeProbe: r.desc.SkipSizeProbe,
	})
	if err != nil {
		return nil, l.annotate(r, err)
	}
	return b, nil
}

// Annotate attaches the source's retention note to NotFound failures, so a
// caller asking a real-time source for last year learns why the file is
// gone.
func (l *Lib) annotate(r *resolved, err error) error {
	if r.desc.RetentionNote == "" || !errors.Is(err, gridstream.ErrNotFound) {
		return err
	}
	return &gridstream.Error{
		Kind:    gridstream.ErrNotFound,
		Source:  r.desc.ID,
		Message: r.desc.RetentionNote,
		Inner:   err,
	}
}

// PointOnce extracts one cooked value at pt for the instant ts.
func (l *Lib) pointOnce(ctx context.Context, r *resolved, req *gridstream.Request, pt gridstream.Point, ts time.Time) (float64, error) {
	switch r.desc.Format {
	case gridstream.FormatGRIB2:
		return l.gribPoint(ctx, r, req, pt, ts)
	case gridstream.FormatNetCDF:
		return l.netcdfPoint(ctx, r, req, pt, ts)
	case gridstream.FormatZarr:
		return l.zarrPoint(ctx, r, req, pt, ts)
	case gridstream.FormatGeoTIFF:
		return l.rasterPoint(ctx, r, req, pt, ts)
	case gridstream.FormatBIL:
		return l.rasterPoint(ctx, r, req, pt, ts)
	}
	return 0, fmt.Errorf("libquery: unhandled format %v", r.desc.Format)
}

// WindowOnce extracts a grid window for the instant ts.
func (l *Lib) windowOnce(ctx context.Context, r *resolved, req *gridstream.Request, box gridstream.BBox, ts time.Time) (*gridstream.GridWindow, error) {
	switch r.desc.Format {
	case gridstream.FormatGRIB2:
		return l.gribWindow(ctx, r, req, box, ts)
	case gridstream.FormatNetCDF:
		return l.netcdfWindow(ctx, r, req, box, ts)
	case gridstream.FormatZarr:
		return l.zarrWindow(ctx, r, req, box, ts)
	case gridstream.FormatGeoTIFF, gridstream.FormatBIL:
		return l.rasterWindow(ctx, r, req, box, ts)
	}
	return nil, fmt.Errorf("libquery: unhandled format %v", r.desc.Format)
}

// Locate narrows a delivered payload to the undecoded portion carrying the
// requested variable. The GRIB2 walk stops before any value unpacking; other
// formats hand back the data member of an archive delivery, or the payload
// itself after wire decompression.
func locate(r *resolved, b []byte) ([]byte, error) {
	d, err := zreader.Decompress(b)
	if err != nil {
		return nil, err
	}
	switch {
	case r.desc.Format == gridstream.FormatGRIB2:
		msgs, err := grib.Parse(d)
		if err != nil {
			return nil, err
		}
		m, err := grib.FindMessage(msgs, r.v.Grib)
		if err != nil {
			return nil, err
		}
		return m.Raw(), nil
	case bytes.HasPrefix(d, []byte("PK")):
		ar, err := zippack.Open(d, memberPattern(r.ad))
		if err != nil {
			return nil, err
		}
		return ar.Primary, nil
	}
	return d, nil
}

func (l *Lib) gribMessage(ctx context.Context, r *resolved, req *gridstream.Request, ts time.Time) (*grib.Message, error) {
	b, err := l.payload(ctx, r, req, ts)
	if err != nil {
		return nil, err
	}
	if b, err = zreader.Decompress(b); err != nil {
		return nil, err
	}
	msgs, err := grib.Parse(b)
	if err != nil {
		return nil, err
	}
	return grib.FindMessage(msgs, r.v.Grib)
}

func (l *Lib) gribPoint(ctx context.Context, r *resolved, req *gridstream.Request, pt gridstream.Point, ts time.Time) (float64, error) {
	msg, err := l.gribMessage(ctx, r, req, ts)
	if err != nil {
		return 0, err
	}
	raw, err := msg.ValueAtPoint(pt.Lat, pt.Lon)
	if err != nil {
		return 0, err
	}
	return driver.Finalize(r.ad, raw, r.v), nil
}

func (l *Lib) gribWindow(ctx context.Context, r *resolved, req *gridstream.Request, box gridstream.BBox, ts time.Time) (*gridstream.GridWindow, error) {
	msg, err := l.gribMessage(ctx, r, req, ts)
	if err != nil {
		return nil, err
	}
	vals, err := msg.Values()
	if err != nil {
		return nil, err
	}
	if !msg.Grid.Regular() {
		return nil, &gridstream.Error{
			Kind:    gridstream.ErrFormatParse,
			Source:  r.desc.ID,
			Message: fmt.Sprintf("window extraction needs a regular grid, got template 3.%d", msg.Grid.TemplateNumber),
		}
	}
	latMin, latMax, latStep, desc := msg.LatAxis()
	lonMin, lonMax, lonStep := msg.LonAxis()
	latAxis := &gridmath.Axis{Min: latMin, Max: latMax, Resolution: latStep, Descending: desc}
	lonAxis := &gridmath.Axis{Min: lonMin, Max: lonMax, Resolution: lonStep}
	// Grids stored 0..360 need west-negative boxes shifted to match.
	if lonAxis.Min >= 0 && box.West < 0 {
		box.West += 360
		box.East += 360
	}
	w := gridmath.Extract(vals, latAxis, lonAxis, box, &gridstream.VariableDescriptor{})
	w.Variable = r.v.ID
	w.Units = r.v.Units
	for i, row := range w.Values {
		for j, raw := range row {
			w.Values[i][j] = driver.Finalize(r.ad, raw, r.v)
		}
	}
	return w, nil
}

func (l *Lib) openNetCDF(ctx context.Context, r *resolved, req *gridstream.Request, ts time.Time) (*netcdf.File, *netcdf.Var, error) {
	b, err := l.payload(ctx, r, req, ts)
	if err != nil {
		return nil, nil, err
	}
	if b, err = zreader.Decompress(b); err != nil {
		return nil, nil, err
	}
	f, err := netcdf.Open(b)
	if err != nil {
		return nil, nil, err
	}
	name := r.v.WireName
	if name == "" {
		name = r.v.ID
	}
	v, ok := f.Variables[name]
	if !ok {
		return nil, nil, &gridstream.Error{
			Kind:    gridstream.ErrUnknownVariable,
			Source:  r.desc.ID,
			Message: fmt.Sprintf("file carries no variable %q", name),
		}
	}
	return f, v, nil
}

// NetcdfAxes reads the coordinate variables backing a gridded variable. The
// conventional names cover every NetCDF source this module ships.
func netcdfAxes(f *netcdf.File) (lat, lon *gridmath.Axis, err error) {
	read := func(names ...string) ([]float64, error) {
		for _, n := range names {
			if _, ok := f.Variables[n]; ok {
				return f.ReadVariable(n)
			}
		}
		return nil, &gridstream.Error{
			Kind:    gridstream.ErrFormatParse,
			Message: fmt.Sprintf("netcdf: no coordinate variable among %v", names),
		}
	}
	lats, err := read("latitude", "lat", "y")
	if err != nil {
		return nil, nil, err
	}
	lons, err := read("longitude", "lon", "x")
	if err != nil {
		return nil, nil, err
	}
	return &gridmath.Axis{Values: lats}, &gridmath.Axis{Values: lons}, nil
}

// NetcdfMeta merges in-file attributes over the static descriptor; the file
// is authoritative for scaling when it says anything.
func netcdfMeta(v *netcdf.Var, vd *gridstream.VariableDescriptor) *gridstream.VariableDescriptor {
	m := *vd
	if _, ok := v.Attrs["scale_factor"]; ok {
		m.Scale = v.ScaleFactor()
		m.Offset = v.AddOffset()
	}
	if f := v.FillValue(); f == f { // non-NaN
		m.Fill = f
	}
	if u := v.Units(); u != "" {
		m.Units = u
	}
	return &m
}

func (l *Lib) netcdfPoint(ctx context.Context, r *resolved, req *gridstream.Request, pt gridstream.Point, ts time.Time) (float64, error) {
	f, v, err := l.openNetCDF(ctx, r, req, ts)
	if err != nil {
		return 0, err
	}
	latAxis, lonAxis, err := netcdfAxes(f)
	if err != nil {
		return 0, err
	}
	i, j := latAxis.NearestIndex(pt.Lat), lonAxis.NearestIndex(pt.Lon)
	start, count := sliceFor(v, i, j, 1, 1)
	vals, err := f.ReadSlice(v.Name, start, count)
	if err != nil {
		return 0, err
	}
	if len(vals) == 0 {
		return 0, &gridstream.Error{Kind: gridstream.ErrDataIntegrity, Message: "netcdf: empty slab"}
	}
	return driver.Finalize(r.ad, vals[0], netcdfMeta(v, r.v)), nil
}

func (l *Lib) netcdfWindow(ctx context.Context, r *resolved, req *gridstream.Request, box gridstream.BBox, ts time.Time) (*gridstream.GridWindow, error) {
	f, v, err := l.openNetCDF(ctx, r, req, ts)
	if err != nil {
		return nil, err
	}
	latAxis, lonAxis, err := netcdfAxes(f)
	if err != nil {
		return nil, err
	}
	w := gridmath.MakeWindow(latAxis, lonAxis, box)
	start, count := sliceFor(v, w.LatStart, w.LonStart, w.LatEnd-w.LatStart+1, w.LonEnd-w.LonStart+1)
	vals, err := f.ReadSlice(v.Name, start, count)
	if err != nil {
		return nil, err
	}
	meta := netcdfMeta(v, r.v)
	out := &gridstream.GridWindow{
		Latitudes:  w.Latitudes,
		Longitudes: w.Longitudes,
		BBox:       box,
		Units:      meta.Units,
		Variable:   r.v.ID,
		Aggregated: gridstream.Absent,
	}
	nLon := w.LonEnd - w.LonStart + 1
	for i := 0; i <= w.LatEnd-w.LatStart; i++ {
		row := make([]float64, 0, nLon)
		for j := 0; j < nLon; j++ {
			row = append(row, driver.Finalize(r.ad, vals[i*nLon+j], meta))
		}
		out.Values = append(out.Values, row)
	}
	return out, nil
}

// SliceFor builds the hyperslab coordinates of a (lat, lon) window on a
// variable whose trailing two dimensions are spatial. Leading dimensions
// (time, reference time, ensemble) take index zero: the bundled NetCDF
// sources deliver one instant per file.
func sliceFor(v *netcdf.Var, latIdx, lonIdx, nLat, nLon int) (start, count []int) {
	rank := len(v.Shape)
	start = make([]int, rank)
	count = make([]int, rank)
	for d := 0; d < rank; d++ {
		count[d] = 1
	}
	if rank >= 2 {
		start[rank-2], count[rank-2] = latIdx, nLat
		start[rank-1], count[rank-1] = lonIdx, nLon
	}
	return start, count
}

// OpenRaster turns a GeoTIFF or BIL payload, possibly ZIP-packed, into a
// point lookup and window function pair.
func (l *Lib) openRaster(ctx context.Context, r *resolved, req *gridstream.Request, ts time.Time) (rasterHandle, error) {
	b, err := l.payload(ctx, r, req, ts)
	if err != nil {
		return nil, err
	}
	if bytes.HasPrefix(b, []byte("PK")) {
		ar, err := zippack.Open(b, memberPattern(r.ad))
		if err != nil {
			return nil, err
		}
		return openRasterMember(ar, r)
	}
	switch r.desc.Format {
	case gridstream.FormatBIL:
		return nil, &gridstream.Error{
			Kind:    gridstream.ErrFormatParse,
			Source:  r.desc.ID,
			Message: "bil delivery without its .hdr sidecar archive",
		}
	default:
		img, err := geotiff.Open(b)
		if err != nil {
			return nil, err
		}
		return (*tiffHandle)(img), nil
	}
}

func openRasterMember(ar *zippack.Archive, r *resolved) (rasterHandle, error) {
	if bytes.HasPrefix(ar.Primary, []byte("II")) || bytes.HasPrefix(ar.Primary, []byte("MM")) {
		img, err := geotiff.Open(ar.Primary)
		if err != nil {
			return nil, err
		}
		return (*tiffHandle)(img), nil
	}
	hdr, ok := ar.Sidecars[".hdr"]
	if !ok {
		return nil, &gridstream.Error{
			Kind:    gridstream.ErrFormatParse,
			Source:  r.desc.ID,
			Message: "archive member " + ar.PrimaryName + " has no .hdr sidecar",
		}
	}
	h, err := bil.ParseHeader(hdr)
	if err != nil {
		return nil, err
	}
	ras, err := bil.Open(ar.Primary, h)
	if err != nil {
		return nil, err
	}
	return (*bilHandle)(ras), nil
}

func memberPattern(ad driver.Adapter) *regexp.Regexp {
	ra, ok := ad.(driver.RasterArchive)
	if !ok {
		return nil
	}
	p := ra.MemberPattern()
	if p == "" {
		return nil
	}
	return regexp.MustCompile(p)
}

func (l *Lib) rasterPoint(ctx context.Context, r *resolved, req *gridstream.Request, pt gridstream.Point, ts time.Time) (float64, error) {
	h, err := l.openRaster(ctx, r, req, ts)
	if err != nil {
		return 0, err
	}
	x, y, err := projectPoint(h, pt)
	if err != nil {
		return 0, err
	}
	raw, err := h.valueAt(x, y)
	if err != nil {
		return 0, err
	}
	return driver.Finalize(r.ad, raw, r.v), nil
}

func (l *Lib) rasterWindow(ctx context.Context, r *resolved, req *gridstream.Request, box gridstream.BBox, ts time.Time) (*gridstream.GridWindow, error) {
	h, err := l.openRaster(ctx, r, req, ts)
	if err != nil {
		return nil, err
	}
	w, err := h.window(box)
	if err != nil {
		return nil, err
	}
	w.Variable = r.v.ID
	w.Units = r.v.Units
	for i, row := range w.Values {
		for j, raw := range row {
			w.Values[i][j] = driver.Finalize(r.ad, raw, r.v)
		}
	}
	return w, nil
}

// ProjectPoint maps a WGS84 point into the raster's native coordinates.
func projectPoint(h rasterHandle, pt gridstream.Point) (x, y float64, err error) {
	proj, err := gridmath.ProjectionFor(h.epsg())
	if err != nil {
		return 0, 0, err
	}
	x, y = proj.Forward(pt.Lat, pt.Lon)
	return x, y, nil
}

// RasterHandle unifies the GeoTIFF and BIL read paths.
type rasterHandle interface {
	epsg() int
	valueAt(x, y float64) (float64, error)
	window(box gridstream.BBox) (*gridstream.GridWindow, error)
}

type tiffHandle geotiff.Image

func (h *tiffHandle) epsg() int { return (*geotiff.Image)(h).EPSG }

func (h *tiffHandle) valueAt(x, y float64) (float64, error) {
	return (*geotiff.Image)(h).ValueAt(x, y)
}

func (h *tiffHandle) window(box gridstream.BBox) (*gridstream.GridWindow, error) {
	img := (*geotiff.Image)(h)
	if img.EPSG != 4326 {
		proj, err := gridmath.ProjectionFor(img.EPSG)
		if err != nil {
			return nil, err
		}
		x0, y0 := proj.Forward(box.South, box.West)
		x1, y1 := proj.Forward(box.North, box.East)
		box = gridstream.BBox{West: min(x0, x1), South: min(y0, y1), East: max(x0, x1), North: max(y0, y1)}
	}
	return img.ReadWindow(box)
}

type bilHandle bil.Raster

func (h *bilHandle) epsg() int { return 4326 }

func (h *bilHandle) valueAt(x, y float64) (float64, error) {
	return (*bil.Raster)(h).ValueAt(y, x)
}

func (h *bilHandle) window(box gridstream.BBox) (*gridstream.GridWindow, error) {
	r := (*bil.Raster)(h)
	hd := r.Header
	latAxis := &gridmath.Axis{
		Min:        hd.ULYMap - float64(hd.Rows-1)*hd.YDim,
		Max:        hd.ULYMap,
		Resolution: hd.YDim,
		Descending: true,
	}
	lonAxis := &gridmath.Axis{
		Min:        hd.ULXMap,
		Max:        hd.ULXMap + float64(hd.Cols-1)*hd.XDim,
		Resolution: hd.XDim,
	}
	return gridmath.Extract(r.Values, latAxis, lonAxis, box, &gridstream.VariableDescriptor{}), nil
}
