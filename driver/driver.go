// Package driver defines the per-source adapter contract and the registry
// the query layer resolves sources through.
//
// An adapter supplies the static descriptor of its source plus URL
// synthesis. Everything else — fetching, decompression, format decoding,
// grid arithmetic — is generic. Optional capability interfaces let an
// adapter override the rare behaviors that differ per source.
package driver

import (
	"time"

	"github.com/hydrographs/gridstream"
	"github.com/hydrographs/gridstream/gridmath"
)

// Adapter is the required surface of a source adapter.
type Adapter interface {
	// Name is the source identifier requests use.
	Name() string
	// Descriptor returns the source's static configuration. The returned
	// value is shared and must not be mutated.
	Descriptor() *gridstream.SourceDescriptor
	// URLFor synthesizes the remote URL of the payload holding the given
	// product at the given valid time.
	URLFor(product string, ts time.Time, opts gridstream.Options) (string, error)
}

// ProductResolver picks the product carrying a variable. Adapters without
// it get the default: the first product listing the variable.
type ProductResolver interface {
	ResolveProduct(variableID string) (string, error)
}

// Finalizer overrides the default raw→physical conversion. Rare; used for
// nonlinear corrections.
type Finalizer interface {
	Finalize(raw float64, v *gridstream.VariableDescriptor) float64
}

// ZarrAdapter is the extra surface of Zarr-backed sources.
type ZarrAdapter interface {
	// StoreRoot is the URL prefix of the store holding ts.
	StoreRoot(ts time.Time, opts gridstream.Options) (string, error)
	// TimeIndex maps a valid time to the store's time-axis index.
	TimeIndex(ts time.Time) (int, error)
	// Axes returns the store's spatial axes for index arithmetic.
	Axes() (lat, lon *gridmath.Axis)
}

// RasterArchive marks sources whose payloads arrive as ZIP archives; the
// pattern, when non-empty, selects the data member.
type RasterArchive interface {
	MemberPattern() string
}

// ResolveProduct applies the adapter's resolver or the default product
// selection for a variable.
func ResolveProduct(a Adapter, v *gridstream.VariableDescriptor) (string, error) {
	if pr, ok := a.(ProductResolver); ok {
		return pr.ResolveProduct(v.ID)
	}
	if len(v.Products) > 0 {
		return v.Products[0], nil
	}
	if ps := a.Descriptor().Products; len(ps) > 0 {
		return ps[0].ID, nil
	}
	return "", nil
}

// Finalize applies the adapter's value conversion, defaulting to the
// standard scale/offset/fill transform.
func Finalize(a Adapter, raw float64, v *gridstream.VariableDescriptor) float64 {
	if f, ok := a.(Finalizer); ok {
		return f.Finalize(raw, v)
	}
	return gridmath.ApplyScaling(raw, v)
}
