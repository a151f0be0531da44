package domain

import (
	"errors"
	"fmt"
)

// ErrorKind classifies every failure the source core reports. A kind is itself
// an error so callers can write errors.Is(err, domain.ErrNetwork).
type ErrorKind string

const (
	KindConfiguration ErrorKind = "configuration"
	KindParse         ErrorKind = "parse"
	KindResolution    ErrorKind = "resolution"
	KindNetwork       ErrorKind = "network"
	KindCancelled     ErrorKind = "cancelled"
	KindNotFound      ErrorKind = "not_found"
)

func (k ErrorKind) Error() string {
	return string(k) + " error"
}

var (
	ErrConfiguration  error = KindConfiguration
	ErrParse          error = KindParse
	ErrResolution     error = KindResolution
	ErrNetwork        error = KindNetwork
	ErrCancelled      error = KindCancelled
	ErrSourceNotFound error = KindNotFound
)

var (
	ErrMissingTiles      = errors.New("tilejson has no tile url templates")
	ErrNotReady          = errors.New("source is not ready")
	ErrBelowMinZoom      = errors.New("zoom is below source minimum zoom")
	ErrInvalidCoordinate = errors.New("tile coordinate out of range")
	ErrEmptyPayload      = errors.New("empty tile payload")
	ErrInvalidTransition = errors.New("invalid resolution state transition")
	ErrSourceExists      = errors.New("source identifier already registered")
	ErrInvalidTemplate   = errors.New("invalid tile url template")
	ErrInvalidTileSize   = errors.New("tile size must be positive")
	ErrInvalidIdentifier = errors.New("source identifier must not be empty")
	ErrInvalidConfigURL  = errors.New("invalid configuration url")
)

// Error is the typed outcome carried by every failed operation.
type Error struct {
	Kind   ErrorKind
	Op     string
	Source string
	Err    error
}

func (e *Error) Error() string {
	msg := e.Op
	if e.Source != "" {
		msg += fmt.Sprintf(" source %q", e.Source)
	}
	msg += ": " + e.Kind.Error()
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	k, ok := target.(ErrorKind)
	return ok && k == e.Kind
}

func NewError(kind ErrorKind, op, source string, err error) *Error {
	return &Error{Kind: kind, Op: op, Source: source, Err: err}
}

// KindOf returns the kind of the first *Error in err's chain, or "" when err
// was not produced by this package.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// StatusError reports a non-success transport status.
type StatusError struct {
	Status int
	URL    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream %s returned status %d", e.URL, e.Status)
}
