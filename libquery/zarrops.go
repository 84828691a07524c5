package libquery

import (
	"context"
	"fmt"
	"time"

	"github.com/hydrographs/gridstream"
	"github.com/hydrographs/gridstream/driver"
	"github.com/hydrographs/gridstream/gridmath"
	"github.com/hydrographs/gridstream/internal/cache"
	"github.com/hydrographs/gridstream/internal/fetch"
	"github.com/hydrographs/gridstream/zarr"
)

// ZarrFetch pulls one store-relative file. Zarr chunk and metadata files
// are never range-chunked; they are small and numerous.
func (l *Lib) zarrFetch(ctx context.Context, r *resolved, req *gridstream.Request, root, rel string) ([]byte, error) {
	var key string
	if req.Options.CacheID != "" {
		key = cache.Key(cache.KeyParams{UserTag: req.Options.CacheID, SubPath: rel})
	}
	b, err := l.fc.Fetch(ctx, root+"/"+rel, fetch.Options{
		Key:        key,
		Source:     r.desc.ID,
		Dataset:    r.desc.Dataset,
		Format:     r.desc.Format.String(),
		NoCache:    req.Options.NoCache,
		NeedsProxy: r.desc.NeedsProxy || req.Options.ForceProxy,
		NoChunk:    true,
	})
	if err != nil {
		return nil, l.annotate(r, err)
	}
	return b, nil
}

// ZarrVar is the opened state of one variable in one store: parsed .zarray
// plus the effective scaling metadata.
type zarrVar struct {
	root string
	name string
	meta *zarr.ArrayMeta
	vd   *gridstream.VariableDescriptor
}

func (l *Lib) openZarr(ctx context.Context, r *resolved, req *gridstream.Request, ts time.Time) (*zarrVar, driver.ZarrAdapter, error) {
	za, ok := r.ad.(driver.ZarrAdapter)
	if !ok {
		return nil, nil, fmt.Errorf("libquery: source %q declares zarr but implements no zarr surface", r.desc.ID)
	}
	root, err := za.StoreRoot(ts, req.Options)
	if err != nil {
		return nil, nil, err
	}
	name := r.v.WireName
	if name == "" {
		name = r.v.ID
	}
	zb, err := l.zarrFetch(ctx, r, req, root, name+"/.zarray")
	if err != nil {
		return nil, nil, err
	}
	meta, err := zarr.ParseArrayMeta(zb)
	if err != nil {
		return nil, nil, err
	}
	if len(meta.Shape) != 3 {
		return nil, nil, &gridstream.Error{
			Kind:    gridstream.ErrFormatParse,
			Source:  r.desc.ID,
			Message: fmt.Sprintf("zarr: variable %s has rank %d, want (time, lat, lon)", name, len(meta.Shape)),
		}
	}

	vd := *r.v
	if fill := meta.Fill(); fill == fill {
		vd.Fill = fill
	}
	// Scale metadata lives in .zattrs when the dataset version carries it;
	// static configuration is only the fallback.
	if ab, err := l.zarrFetch(ctx, r, req, root, name+"/.zattrs"); err == nil {
		if attrs, err := zarr.ParseAttrs(ab); err == nil {
			if f, ok := attrs.Float("scale_factor"); ok {
				vd.Scale = f
				vd.Offset, _ = attrs.Float("add_offset")
			}
			if f, ok := attrs.Float("_FillValue"); ok {
				vd.Fill = f
			}
			if u, ok := attrs["units"].(string); ok && u != "" {
				vd.Units = u
			}
		}
	}
	return &zarrVar{root: root, name: name, meta: meta, vd: &vd}, za, nil
}

// CellAt reads one (t, lat, lon) cell, fetching its chunk through the
// cache.
func (l *Lib) zarrCell(ctx context.Context, r *resolved, req *gridstream.Request, zv *zarrVar, idx []int) (float64, error) {
	chunk, within, err := zv.meta.ChunkCoord(idx)
	if err != nil {
		return 0, err
	}
	cb, err := l.zarrFetch(ctx, r, req, zv.root, zarr.ChunkKey(zv.name, chunk))
	if err != nil {
		return 0, err
	}
	vals, err := zarr.DecodeChunk(cb, zv.meta)
	if err != nil {
		return 0, err
	}
	return vals[zv.meta.Offset(within)], nil
}

func (l *Lib) zarrPoint(ctx context.Context, r *resolved, req *gridstream.Request, pt gridstream.Point, ts time.Time) (float64, error) {
	zv, za, err := l.openZarr(ctx, r, req, ts)
	if err != nil {
		return 0, err
	}
	tIdx, err := za.TimeIndex(ts)
	if err != nil {
		return 0, err
	}
	latAx, lonAx := za.Axes()
	raw, err := l.zarrCell(ctx, r, req, zv, []int{tIdx, latAx.NearestIndex(pt.Lat), lonAx.NearestIndex(pt.Lon)})
	if err != nil {
		return 0, err
	}
	return driver.Finalize(r.ad, raw, zv.vd), nil
}

func (l *Lib) zarrWindow(ctx context.Context, r *resolved, req *gridstream.Request, box gridstream.BBox, ts time.Time) (*gridstream.GridWindow, error) {
	zv, za, err := l.openZarr(ctx, r, req, ts)
	if err != nil {
		return nil, err
	}
	tIdx, err := za.TimeIndex(ts)
	if err != nil {
		return nil, err
	}
	latAx, lonAx := za.Axes()
	w := gridmath.MakeWindow(latAx, lonAx, box)

	out := &gridstream.GridWindow{
		Latitudes:  w.Latitudes,
		Longitudes: w.Longitudes,
		BBox:       box,
		Units:      zv.vd.Units,
		Variable:   r.v.ID,
		Aggregated: gridstream.Absent,
	}
	// Decode each touched chunk once; windows usually land in one.
	decoded := map[string][]float64{}
	for i := w.LatStart; i <= w.LatEnd; i++ {
		row := make([]float64, 0, w.LonEnd-w.LonStart+1)
		for j := w.LonStart; j <= w.LonEnd; j++ {
			chunk, within, err := zv.meta.ChunkCoord([]int{tIdx, i, j})
			if err != nil {
				return nil, err
			}
			ckey := zarr.ChunkKey(zv.name, chunk)
			vals, ok := decoded[ckey]
			if !ok {
				cb, err := l.zarrFetch(ctx, r, req, zv.root, ckey)
				if err != nil {
					return nil, err
				}
				if vals, err = zarr.DecodeChunk(cb, zv.meta); err != nil {
					return nil, err
				}
				decoded[ckey] = vals
			}
			row = append(row, driver.Finalize(r.ad, vals[zv.meta.Offset(within)], zv.vd))
		}
		out.Values = append(out.Values, row)
	}
	return out, nil
}
