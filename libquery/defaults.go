package libquery

import (
	"github.com/hydrographs/gridstream/aorc"
	"github.com/hydrographs/gridstream/driver"
	"github.com/hydrographs/gridstream/hrrr"
	"github.com/hydrographs/gridstream/mrms"
	"github.com/hydrographs/gridstream/nwm"
	"github.com/hydrographs/gridstream/prism"
	"github.com/hydrographs/gridstream/threedep"
)

// DefaultAdapters registers every bundled source adapter.
func DefaultAdapters() driver.AdapterSet {
	s := driver.NewAdapterSet()
	for _, a := range []driver.Adapter{
		aorc.NewAdapter(),
		hrrr.NewAdapter(),
		mrms.NewAdapter(),
		nwm.NewAdapter(),
		prism.NewAdapter(),
		threedep.NewAdapter(),
	} {
		if err := s.Add(a); err != nil {
			// Names are package constants; a collision is a programming error.
			panic(err)
		}
	}
	return s
}
