package gridstream

import (
	"errors"
	"strings"
)

// Error is the gridstream error domain type.
//
// Errors coming from gridstream components should be able to be inspected as
// ([errors.As]) an *Error at some point in the error chain.
//
// Implementers of gridstream components should create an Error at the system
// boundary (e.g. when executing an HTTP request or reading the cache) and
// intermediate layers should not wrap in another Error except to add
// additional [ErrorKind] information. That is to say, use [fmt.Errorf] with a
// "%w" verb in preference to creating a containing Error.
type Error struct {
	Inner   error
	Kind    ErrorKind
	Op      string
	Source  string
	URL     string
	Message string
}

// Assert this implements all the cool features.
var (
	_ error                       = (*Error)(nil)
	_ interface{ Is(error) bool } = (*Error)(nil)
	_ interface{ Unwrap() error } = (*Error)(nil)
)

// Error implements error.
func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(" ")
	}
	b.WriteString("[")
	b.WriteString(string(e.Kind))
	b.WriteString("]")
	if e.Source != "" {
		b.WriteString(" source=")
		b.WriteString(e.Source)
	}
	if e.URL != "" {
		b.WriteString(" url=")
		b.WriteString(e.URL)
	}
	b.WriteString(": ")
	if e.Message != "" {
		b.WriteString(e.Message)
	}
	if e.Message != "" && e.Inner != nil {
		b.WriteString(": ")
	}
	if e.Inner != nil {
		b.WriteString(e.Inner.Error())
	}
	return b.String()
}

// Is enables [errors.Is].
//
// It compares the error kind. Callers should compare against a declared
// [ErrorKind] over a specific error.
func (e *Error) Is(tgt error) bool {
	return errors.Is(e.Kind, tgt)
}

// Unwrap enables [errors.Unwrap].
func (e *Error) Unwrap() error {
	return e.Inner
}

// ErrorKind represents classes of errors to be checked against.
type ErrorKind string

// Configuration error kinds.
var (
	ErrUnknownSource       = ErrorKind("unknown source")
	ErrUnknownDataset      = ErrorKind("unknown dataset")
	ErrUnknownVariable     = ErrorKind("unknown variable")
	ErrUnknownProduct      = ErrorKind("unknown product")
	ErrVariableUnavailable = ErrorKind("variable not available for data type")
)

// Request error kinds.
var (
	ErrOutOfDomain        = ErrorKind("out of spatial domain")
	ErrOutOfTemporalRange = ErrorKind("out of temporal range")
	ErrInvalidDateRange   = ErrorKind("invalid date range")
	ErrInvalidBBox        = ErrorKind("invalid bounding box")
)

// Transport error kinds.
var (
	ErrNotFound         = ErrorKind("not found")
	ErrForbidden        = ErrorKind("forbidden")
	ErrRateLimited      = ErrorKind("rate limited")
	ErrTimeout          = ErrorKind("timeout")
	ErrTransport        = ErrorKind("transport failure")
	ErrAllProxiesFailed = ErrorKind("all proxies failed")
)

// Decode error kinds.
var (
	ErrDecompression   = ErrorKind("decompression failure")
	ErrFormatParse     = ErrorKind("format parse failure")
	ErrMessageNotFound = ErrorKind("message not found")
	ErrDataIntegrity   = ErrorKind("data integrity failure")
)

// Cache error kinds.
var (
	ErrCacheFull    = ErrorKind("cache full")
	ErrCacheCorrupt = ErrorKind("cache corrupt")
)

// ErrCancelled is reported when a request's context is cancelled before the
// operation completes.
var ErrCancelled = ErrorKind("cancelled")

// Error implements error.
func (e ErrorKind) Error() string {
	return string(e)
}
