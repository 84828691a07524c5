package libquery

import (
	"context"

	"github.com/quay/zlog"
	"go.opentelemetry.io/otel/attribute"

	"github.com/hydrographs/gridstream"
	"github.com/hydrographs/gridstream/gridmath"
)

// Point extracts a single value at the request's point and instant.
func (l *Lib) Point(ctx context.Context, req *gridstream.Request) (*gridstream.PointResult, error) {
	ctx, done := l.startOp(ctx, "Point", req)
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
			Message: "Point wants point geometry",
		}
	}
	ts := req.Time.Instant
	v, err := l.pointOnce(ctx, r, req, pt, ts)
	if err != nil {
		return nil, err
	}
	return &gridstream.PointResult{
		Value:     v,
		Units:     r.v.Units,
		Variable:  r.v.ID,
		Product:   r.product,
		Timestamp: ts,
		Location:  pt,
	}, nil
}

// Grid extracts a window over the request's bbox at its instant, applying
// the spatial aggregation when one is asked for.
func (l *Lib) Grid(ctx context.Context, req *gridstream.Request) (*gridstream.GridWindow, error) {
	ctx, done := l.startOp(ctx, "Grid", req)
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
			Message: "Grid wants bbox geometry",
		}
	}
	w, err := l.windowOnce(ctx, r, req, box, req.Time.Instant)
	if err != nil {
		return nil, err
	}
	if req.Options.Aggregation != "" {
		kind, err := gridmath.ParseAggregation(req.Options.Aggregation)
		if err != nil {
			return nil, err
		}
		w.Aggregated = gridmath.Aggregate(w.Flatten(), kind)
	}
	return w, nil
}

// Raw fetches the payload covering the request's instant and returns the
// bytes as delivered; callers that only relay the file skip the decode cost
// entirely. With Options.RawBuffer set the payload is narrowed to the
// undecoded portion carrying the requested variable: the matching GRIB2
// message, or the data member of an archive delivery.
func (l *Lib) Raw(ctx context.Context, req *gridstream.Request) ([]byte, error) {
	ctx, done := l.startOp(ctx, "Raw", req)
	defer done()
	r, err := l.resolve(req)
	if err != nil {
		return nil, err
	}
	b, err := l.payload(ctx, r, req, req.Time.Instant)
	if err != nil {
		return nil, err
	}
	if !req.Options.RawBuffer {
		return b, nil
	}
	return locate(r, b)
}

// StartOp derives the logging and tracing context of one public operation.
func (l *Lib) startOp(ctx context.Context, op string, req *gridstream.Request) (context.Context, func()) {
	ctx = zlog.ContextWithValues(ctx,
		"component", "libquery/Lib."+op,
		"source", req.Source,
		"variable", req.Variable)
	ctx, span := l.tracer.Start(ctx, "Lib."+op)
	span.SetAttributes(
		attribute.String("source", req.Source),
		attribute.String("variable", req.Variable),
	)
	return ctx, func() { span.End() }
}
