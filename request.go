package gridstream

import (
	"fmt"
	"time"
)

// Request describes one logical data retrieval. Callers construct a Request,
// hand it to a libquery operation, and never mutate it afterwards.
type Request struct {
	Source   string
	Dataset  string
	Variable string
	// Variables, when set, overrides Variable for multi-variable operations.
	Variables []string
	Geometry  Geometry
	Time      TimeSpec
	Options   Options
}

// Options carries the optional knobs of a Request. The zero value selects
// caching, no proxy preference, and full decoding.
type Options struct {
	ForecastHour int
	Product      string
	Resolution   string
	Region       string
	TimePeriod   string
	Aggregation  string
	// RawBuffer, when true, asks decoders to stop after locating the
	// requested payload and hand back undecoded bytes.
	RawBuffer bool
	// NoCache disables the read and write paths of the chunk cache for this
	// request only.
	NoCache bool
	// ForceProxy skips the direct-connection attempt.
	ForceProxy bool
	// CacheID, when non-empty, is used verbatim as the cache key.
	CacheID string
}

// Geometry is the sealed set of spatial query shapes: [Point], [BBox], and
// [MultiPoint].
type Geometry interface {
	isGeometry()
}

// Point is a WGS84 coordinate pair.
type Point struct {
	Lat float64 `json:"latitude"`
	Lon float64 `json:"longitude"`
}

func (Point) isGeometry() {}

func (p Point) String() string {
	return fmt.Sprintf("(%.4f,%.4f)", p.Lat, p.Lon)
}

// BBox is a geographic bounding box in degrees, west/south/east/north.
type BBox struct {
	West  float64 `json:"west"`
	South float64 `json:"south"`
	East  float64 `json:"east"`
	North float64 `json:"north"`
}

func (BBox) isGeometry() {}

func (b BBox) String() string {
	return fmt.Sprintf("[%.4f,%.4f,%.4f,%.4f]", b.West, b.South, b.East, b.North)
}

// Contains reports whether the point lies inside or on the edge of the box.
func (b BBox) Contains(p Point) bool {
	return p.Lon >= b.West && p.Lon <= b.East && p.Lat >= b.South && p.Lat <= b.North
}

// Intersects reports whether the two boxes share any area.
func (b BBox) Intersects(o BBox) bool {
	return b.West < o.East && b.East > o.West && b.South < o.North && b.North > o.South
}

// MultiPoint is an ordered list of query points. Results preserve this order.
type MultiPoint []Point

func (MultiPoint) isGeometry() {}

// TimeSpec is either an instant or a half-open-free inclusive range with an
// optional step. A zero Step on a range means "the source's native temporal
// resolution".
type TimeSpec struct {
	Instant time.Time
	Start   time.Time
	End     time.Time
	Step    time.Duration
}

// IsRange reports whether the spec describes a range rather than an instant.
func (t TimeSpec) IsRange() bool {
	return !t.Start.IsZero() || !t.End.IsZero()
}

// Validate checks internal consistency of the spec.
func (t TimeSpec) Validate() error {
	if t.IsRange() {
		if t.Start.IsZero() || t.End.IsZero() {
			return &Error{Kind: ErrInvalidDateRange, Message: "range requires both start and end"}
		}
		if t.End.Before(t.Start) {
			return &Error{
				Kind:    ErrInvalidDateRange,
				Message: fmt.Sprintf("end %v precedes start %v", t.End, t.Start),
			}
		}
		return nil
	}
	if t.Instant.IsZero() {
		return &Error{Kind: ErrInvalidDateRange, Message: "no time provided"}
	}
	return nil
}
