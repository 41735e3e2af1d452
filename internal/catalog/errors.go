package catalog

import (
	"errors"
	"fmt"
)

var (
	ErrTransport   = errors.New("transport error")
	ErrHTTPStatus  = errors.New("unexpected http status")
	ErrDecode      = errors.New("malformed response")
	ErrEmptyResult = errors.New("empty result")
)

// StatusError is returned for any non-2xx response.
type StatusError struct {
	Code int
	URL  string
}

func (e *StatusError) Error() string { return fmt.Sprintf("http %d from %s", e.Code, e.URL) }

func (e *StatusError) Is(target error) bool { return target == ErrHTTPStatus }
