// Package errs holds the error taxonomy shared by the historian packages.
//
// Transport problems surface as *FetchError, unexpected listing or CSV shapes
// as *ParseError and failed writes as *PersistError. Callers match them with
// errors.As; the sentinels below are matched with errors.Is.
package errs

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrInvalidDate     = errors.New("invalid date, expected YYYY-MM-DD")
	ErrFutureDate      = errors.New("date is not in the past")
	ErrNotListed       = errors.New("date is not listed in the archive")
	ErrInvalidSensorID = errors.New("invalid sensor id")
)

// FetchError reports a transport failure or a non-2xx archive response.
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: unexpected status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// ParseError reports an unrecognized listing page or a malformed CSV.
type ParseError struct {
	Source string
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s: %v", e.Source, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// PersistError reports a failed write into the data directory.
type PersistError struct {
	Path string
	Err  error
}

func (e *PersistError) Error() string {
	return fmt.Sprintf("persist %s: %v", e.Path, e.Err)
}

func (e *PersistError) Unwrap() error { return e.Err }

// Kind returns a short label for metrics and logs.
func Kind(err error) string {
	var fetchErr *FetchError
	var parseErr *ParseError
	var persistErr *PersistError
	switch {
	case err == nil:
		return "none"
	case errors.As(err, &fetchErr):
		return "fetch"
	case errors.As(err, &parseErr):
		return "parse"
	case errors.As(err, &persistErr):
		return "persist"
	default:
		return "other"
	}
}
