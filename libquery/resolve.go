package libquery

import (
	"fmt"
	"time"

	"github.com/hydrographs/gridstream"
	"github.com/hydrographs/gridstream/driver"
	"github.com/hydrographs/gridstream/gridmath"
)

// Resolved is a validated request bound to its adapter and metadata.
type resolved struct {
	ad      driver.Adapter
	desc    *gridstream.SourceDescriptor
	v       *gridstream.VariableDescriptor
	product string
}

// Resolve validates the request against the registry and the source's
// static configuration. All configuration and request-class errors surface
// here, before any I/O.
func (l *Lib) resolve(req *gridstream.Request) (*resolved, error) {
	ad, err := l.set.Get(req.Source)
	if err != nil {
		return nil, err
	}
	desc := ad.Descriptor()
	if req.Dataset != "" && req.Dataset != desc.Dataset && req.Dataset != desc.ID {
		return nil, &gridstream.Error{
			Kind:    gridstream.ErrUnknownDataset,
			Source:  req.Source,
			Message: fmt.Sprintf("source serves dataset %q, not %q", desc.Dataset, req.Dataset),
		}
	}
	vd, ok := desc.Variable(req.Variable)
	if !ok {
		return nil, &gridstream.Error{
			Kind:    gridstream.ErrUnknownVariable,
			Source:  req.Source,
			Message: fmt.Sprintf("variable %q not served; %d variables configured", req.Variable, len(desc.Variables)),
		}
	}

	product := req.Options.Product
	if product == "" {
		if product, err = driver.ResolveProduct(ad, &vd); err != nil {
			return nil, err
		}
	} else {
		if _, ok := desc.Product(product); !ok && len(desc.Products) > 0 {
			return nil, &gridstream.Error{
				Kind:    gridstream.ErrUnknownProduct,
				Source:  req.Source,
				Message: fmt.Sprintf("no product %q", product),
			}
		}
		if !vd.InProduct(product) {
			return nil, &gridstream.Error{
				Kind:    gridstream.ErrVariableUnavailable,
				Source:  req.Source,
				Message: fmt.Sprintf("variable %q is not delivered by product %q", vd.ID, product),
			}
		}
	}

	switch g := req.Geometry.(type) {
	case gridstream.Point:
		if err := gridmath.ValidateCoords(g, desc.SpatialBounds); err != nil {
			return nil, err
		}
	case gridstream.BBox:
		if err := gridmath.ValidateBBox(g, desc.SpatialBounds); err != nil {
			return nil, err
		}
	case gridstream.MultiPoint:
		for _, p := range g {
			if err := gridmath.ValidateCoords(p, desc.SpatialBounds); err != nil {
				return nil, err
			}
		}
	case nil:
		return nil, &gridstream.Error{
			Kind:    gridstream.ErrInvalidBBox,
			Source:  req.Source,
			Message: "no geometry provided",
		}
	}

	if err := req.Time.Validate(); err != nil {
		return nil, err
	}
	for _, t := range requestTimes(req) {
		if err := checkTemporal(desc, t); err != nil {
			return nil, err
		}
	}
	return &resolved{ad: ad, desc: desc, v: &vd, product: product}, nil
}

func requestTimes(req *gridstream.Request) []time.Time {
	if req.Time.IsRange() {
		return []time.Time{req.Time.Start, req.Time.End}
	}
	return []time.Time{req.Time.Instant}
}

func checkTemporal(desc *gridstream.SourceDescriptor, t time.Time) error {
	b := desc.TemporalBounds
	if b.Start.IsZero() && b.End.IsZero() {
		return nil
	}
	if b.Contains(t) {
		return nil
	}
	msg := fmt.Sprintf("%s outside source coverage [%s, %s]",
		t.Format(time.RFC3339), b.Start.Format(time.RFC3339), endLabel(b.End))
	if desc.RetentionNote != "" {
		msg += "; " + desc.RetentionNote
	}
	return &gridstream.Error{
		Kind:    gridstream.ErrOutOfTemporalRange,
		Source:  desc.ID,
		Message: msg,
	}
}

func endLabel(t time.Time) string {
	if t.IsZero() {
		return "now"
	}
	return t.Format(time.RFC3339)
}

// Step resolves the effective time step of a range request: the explicit
// step or the source's native resolution.
func (r *resolved) step(req *gridstream.Request) (time.Duration, error) {
	if req.Time.Step > 0 {
		return req.Time.Step, nil
	}
	if r.desc.TemporalResolution > 0 {
		return r.desc.TemporalResolution, nil
	}
	return 0, &gridstream.Error{
		Kind:    gridstream.ErrInvalidDateRange,
		Source:  r.desc.ID,
		Message: "range request without a step on a source with no native resolution",
	}
}
