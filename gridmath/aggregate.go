package gridmath

import (
	"fmt"
	"math"
	"sort"

	"github.com/hydrographs/gridstream"
)

// Aggregation names the supported reductions.
type Aggregation string

const (
	AggMean   Aggregation = "mean"
	AggSum    Aggregation = "sum"
	AggMin    Aggregation = "min"
	AggMax    Aggregation = "max"
	AggMedian Aggregation = "median"
)

// ParseAggregation validates an aggregation name.
func ParseAggregation(s string) (Aggregation, error) {
	switch a := Aggregation(s); a {
	case AggMean, AggSum, AggMin, AggMax, AggMedian:
		return a, nil
	}
	return "", fmt.Errorf("gridmath: unknown aggregation %q", s)
}

// Aggregate reduces a sequence of values. Absent values are excluded; an
// all-absent (or empty) input yields Absent. The same semantics serve both
// spatial and temporal aggregation.
func Aggregate(values []float64, kind Aggregation) float64 {
	present := make([]float64, 0, len(values))
	for _, v := range values {
		if !gridstream.IsAbsent(v) {
			present = append(present, v)
		}
	}
	if len(present) == 0 {
		return gridstream.Absent
	}
	switch kind {
	case AggSum, AggMean:
		var sum float64
		for _, v := range present {
			sum += v
		}
		if kind == AggSum {
			return sum
		}
		return sum / float64(len(present))
	case AggMin:
		m := math.Inf(1)
		for _, v := range present {
			m = math.Min(m, v)
		}
		return m
	case AggMax:
		m := math.Inf(-1)
		for _, v := range present {
			m = math.Max(m, v)
		}
		return m
	case AggMedian:
		sort.Float64s(present)
		mid := len(present) / 2
		if len(present)%2 == 1 {
			return present[mid]
		}
		return (present[mid-1] + present[mid]) / 2
	}
	return gridstream.Absent
}
