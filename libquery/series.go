package libquery

import (
	"context"
	"errors"
	"time"

	"github.com/quay/zlog"
	"golang.org/x/sync/errgroup"

	"github.com/hydrographs/gridstream"
	"github.com/hydrographs/gridstream/gridmath"
)

// Steps enumerates the instants of a range request: t0, t0+Δ, …, never
// past t1. Length is floor((t1−t0)/Δ)+1.
func steps(start, end time.Time, step time.Duration) []time.Time {
	n := int(end.Sub(start)/step) + 1
	out := make([]time.Time, n)
	for i := range out {
		out[i] = start.Add(time.Duration(i) * step)
	}
	return out
}

// Terminal reports errors that must abort a fan-out rather than be
// captured per item.
func terminal(err error) bool {
	return errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, gridstream.ErrCancelled)
}

// TimeSeries extracts a point value per step over the request's range.
// Failed steps keep their slot with the error attached; the series always
// has the full expected length and strictly increasing timestamps.
func (l *Lib) TimeSeries(ctx context.Context, req *gridstream.Request) (*gridstream.Series, error) {
	ctx, done := l.startOp(ctx, "TimeSeries", req)
	defer done()
	r, err := l.resolve(req)
	if err != nil {
		return nil, err
	}
	pt, ok := req.Geometry.(gridstream.Point)
	if !ok {
		return nil, &gridstream.Error{
			Kind:    gridstream.ErrInvalidBBox,
			Source:  req.Source,
			Message: "TimeSeries wants point geometry",
		}
	}
	step, err := r.step(req)
	if err != nil {
		return nil, err
	}
	times := steps(req.Time.Start, req.Time.End, step)
	out := &gridstream.Series{
		Variable:   r.v.ID,
		Units:      r.v.Units,
		Location:   pt,
		Entries:    make([]gridstream.SeriesEntry, len(times)),
		Aggregated: gridstream.Absent,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.parallel)
	for i, ts := range times {
		g.Go(func() error {
			v, err := l.pointOnce(gctx, r, req, pt, ts)
			if err != nil {
				if terminal(err) {
					return err
				}
				zlog.Debug(gctx).Time("step", ts).Err(err).Msg("step failed")
				v = gridstream.Absent
			}
			out.Entries[i] = gridstream.SeriesEntry{Timestamp: ts, Value: v, Err: err}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if req.Options.Aggregation != "" {
		kind, err := gridmath.ParseAggregation(req.Options.Aggregation)
		if err != nil {
			return nil, err
		}
		out.Aggregated = gridmath.Aggregate(out.Values(), kind)
	}
	return out, nil
}

// MultiPoint extracts the request's instant at every point of a MultiPoint
// geometry, preserving input order. Per-point failures are attached, not
// fatal.
func (l *Lib) MultiPoint(ctx context.Context, req *gridstream.Request) ([]gridstream.PointResult, error) {
	ctx, done := l.startOp(ctx, "MultiPoint", req)
	defer done()
	r, err := l.resolve(req)
	if err != nil {
		return nil, err
	}
	pts, ok := req.Geometry.(gridstream.MultiPoint)
	if !ok {
		return nil, &gridstream.Error{
			Kind:    gridstream.ErrInvalidBBox,
			Source:  req.Source,
			Message: "MultiPoint wants multi-point geometry",
		}
	}
	ts := req.Time.Instant
	out := make([]gridstream.PointResult, len(pts))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.parallel)
	for i, pt := range pts {
		g.Go(func() error {
			v, err := l.pointOnce(gctx, r, req, pt, ts)
			if err != nil {
				if terminal(err) {
					return err
				}
				v = gridstream.Absent
			}
			out[i] = gridstream.PointResult{
				Value:     v,
				Units:     r.v.Units,
				Variable:  r.v.ID,
				Product:   r.product,
				Timestamp: ts,
				Location:  pt,
				Err:       err,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// MultiVariable extracts the request's point and instant once per entry of
// Variables, preserving input order. Per-variable failures are attached,
// not fatal.
func (l *Lib) MultiVariable(ctx context.Context, req *gridstream.Request) ([]gridstream.PointResult, error) {
	ctx, done := l.startOp(ctx, "MultiVariable", req)
	defer done()
	vars := req.Variables
	if len(vars) == 0 && req.Variable != "" {
		vars = []string{req.Variable}
	}
	if len(vars) == 0 {
		return nil, &gridstream.Error{
			Kind:    gridstream.ErrUnknownVariable,
			Source:  req.Source,
			Message: "no variables named",
		}
	}
	pt, ok := req.Geometry.(gridstream.Point)
	if !ok {
		return nil, &gridstream.Error{
			Kind:    gridstream.ErrInvalidBBox,
			Source:  req.Source,
			Message: "MultiVariable wants point geometry",
		}
	}
	ts := req.Time.Instant
	out := make([]gridstream.PointResult, len(vars))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.parallel)
	for i, id := range vars {
		g.Go(func() error {
			sub := *req
			sub.Variable = id
			sub.Variables = nil
			res := gridstream.PointResult{
				Value:     gridstream.Absent,
				Variable:  id,
				Timestamp: ts,
				Location:  pt,
			}
			r, err := l.resolve(&sub)
			if err == nil {
				res.Variable = r.v.ID
				res.Units = r.v.Units
				res.Product = r.product
				res.Value, err = l.pointOnce(gctx, r, &sub, pt, ts)
			}
			if err != nil {
				if terminal(err) {
					return err
				}
				zlog.Debug(gctx).Str("variable", id).Err(err).Msg("variable failed")
				res.Value = gridstream.Absent
				res.Err = err
			}
			out[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// GridSeries extracts a window per step over the request's range.
func (l *Lib) GridSeries(ctx context.Context, req *gridstream.Request) ([]gridstream.WindowEntry, error) {
	ctx, done := l.startOp(ctx, "GridSeries", req)
	defer done()
	r, err := l.resolve(req)
	if err != nil {
		return nil, err
	}
	box, ok := req.Geometry.(gridstream.BBox)
	if !ok {
		return nil, &gridstream.Error{
			Kind:    gridstream.ErrInvalidBBox,
			Source:  req.Source,
			Message: "GridSeries wants bbox geometry",
		}
	}
	step, err := r.step(req)
	if err != nil {
		return nil, err
	}
	times := steps(req.Time.Start, req.Time.End, step)
	out := make([]gridstream.WindowEntry, len(times))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.parallel)
	for i, ts := range times {
		g.Go(func() error {
			w, err := l.windowOnce(gctx, r, req, box, ts)
			if err != nil && terminal(err) {
				return err
			}
			out[i] = gridstream.WindowEntry{Timestamp: ts, Window: w, Err: err}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
