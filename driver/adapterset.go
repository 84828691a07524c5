package driver

import (
	"fmt"
	"sort"

	"github.com/hydrographs/gridstream"
)

// AdapterSet is a collection of uniquely named adapters.
type AdapterSet struct {
	set map[string]Adapter
}

// NewAdapterSet returns an initialized AdapterSet.
func NewAdapterSet() AdapterSet {
	return AdapterSet{set: map[string]Adapter{}}
}

// Add puts the adapter in the set, erroring if the name is already claimed.
func (s *AdapterSet) Add(a Adapter) error {
	if a == nil {
		return fmt.Errorf("driver: added nil adapter")
	}
	n := a.Name()
	if _, ok := s.set[n]; ok {
		return fmt.Errorf("driver: adapter %q already registered", n)
	}
	s.set[n] = a
	return nil
}

// Merge copies every adapter from set into s, erroring on any name
// collision before mutating s.
func (s *AdapterSet) Merge(set AdapterSet) error {
	for n := range set.set {
		if _, ok := s.set[n]; ok {
			return fmt.Errorf("driver: adapter %q already registered", n)
		}
	}
	for n, a := range set.set {
		s.set[n] = a
	}
	return nil
}

// Get resolves a source name, case-sensitively.
func (s *AdapterSet) Get(name string) (Adapter, error) {
	a, ok := s.set[name]
	if !ok {
		return nil, &gridstream.Error{
			Kind:    gridstream.ErrUnknownSource,
			Source:  name,
			Message: "no adapter registered for source",
		}
	}
	return a, nil
}

// Adapters returns the member adapters sorted by name.
func (s *AdapterSet) Adapters() []Adapter {
	out := make([]Adapter, 0, len(s.set))
	for _, a := range s.set {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}
