package gridstream

import (
	"math"
	"time"
)

// Absent is the canonical "no data" value in results. Cells equal to a
// variable's fill or missing sentinel become Absent.
var Absent = math.NaN()

// IsAbsent reports whether v is the canonical absent value.
func IsAbsent(v float64) bool { return math.IsNaN(v) }

// PointResult is the canonical shape of a single extracted value.
type PointResult struct {
	Value     float64   `json:"value"`
	Units     string    `json:"units"`
	Variable  string    `json:"variable"`
	Product   string    `json:"product,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Location  Point     `json:"location"`
	// Err carries the per-item failure inside multi-point results; the
	// Value is Absent when set.
	Err error `json:"-"`
}

// WindowEntry is one step of a grid time series.
type WindowEntry struct {
	Timestamp time.Time   `json:"timestamp"`
	Window    *GridWindow `json:"window"`
	Err       error       `json:"-"`
}

// GridWindow is the canonical shape of a bbox extraction.
//
// Values[i][j] corresponds to (Latitudes[i], Longitudes[j]). Missing cells
// are Absent.
type GridWindow struct {
	Values     [][]float64 `json:"data"`
	Latitudes  []float64   `json:"latitudes"`
	Longitudes []float64   `json:"longitudes"`
	BBox       BBox        `json:"bbox"`
	Units      string      `json:"units"`
	Variable   string      `json:"variable"`
	// Aggregated carries the spatial aggregate when the request asked for
	// one; Absent otherwise.
	Aggregated float64 `json:"aggregatedValue"`
}

// Flatten returns all cell values in row-major order.
func (w *GridWindow) Flatten() []float64 {
	out := make([]float64, 0, len(w.Values)*len(w.Longitudes))
	for _, row := range w.Values {
		out = append(out, row...)
	}
	return out
}

// SeriesEntry is one step of a time series. A failed step carries Absent and
// the per-step error; the series as a whole still succeeds.
type SeriesEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
	Err       error     `json:"-"`
}

// Series is an ordered time series, strictly increasing in Timestamp.
type Series struct {
	Variable string        `json:"variable"`
	Units    string        `json:"units"`
	Location Point         `json:"location"`
	Entries  []SeriesEntry `json:"data"`
	// Aggregated carries the temporal aggregate when requested.
	Aggregated float64 `json:"aggregatedValue"`
}

// Values returns just the values of the series, failed steps as Absent.
func (s *Series) Values() []float64 {
	out := make([]float64, len(s.Entries))
	for i := range s.Entries {
		out[i] = s.Entries[i].Value
	}
	return out
}
