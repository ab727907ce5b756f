// Package ferrors implements the framework's error-kind taxonomy, grounded
// on the teacher stack's two sibling error packages
// (infrastructure/errors.ServiceError's code+wrap shape and
// system/framework/core/service's sentinel+wrapped-struct shape): a tagged
// Kind carried by a single Error type, with package-level sentinels so
// callers can still use errors.Is against the kind they care about.
package ferrors

import (
	"errors"
	"fmt"
)

// Kind tags the taxonomy of spec-level error categories. Kind is a tagged
// variant dispatched on, never a string.
type Kind int

const (
	KindConfig Kind = iota
	KindCache
	KindManifest
	KindLoad
	KindActivator
	KindFilterParse
	KindTimeout
	KindNotFound
	KindConflict
	KindShuttingDown
)

func (k Kind) String() string {
	switch k {
	case KindConfig:
		return "config"
	case KindCache:
		return "cache"
	case KindManifest:
		return "manifest"
	case KindLoad:
		return "load"
	case KindActivator:
		return "activator"
	case KindFilterParse:
		return "filter_parse"
	case KindTimeout:
		return "timeout"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindShuttingDown:
		return "shutting_down"
	default:
		return "unknown"
	}
}

// sentinel values usable with errors.Is, one per Kind.
var (
	ErrConfig       = errors.New("config error")
	ErrCache        = errors.New("cache error")
	ErrManifest     = errors.New("manifest error")
	ErrLoad         = errors.New("load error")
	ErrActivator    = errors.New("activator error")
	ErrFilterParse  = errors.New("filter parse error")
	ErrTimeout      = errors.New("timeout")
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrShuttingDown = errors.New("shutting down")
)

func sentinelFor(k Kind) error {
	switch k {
	case KindConfig:
		return ErrConfig
	case KindCache:
		return ErrCache
	case KindManifest:
		return ErrManifest
	case KindLoad:
		return ErrLoad
	case KindActivator:
		return ErrActivator
	case KindFilterParse:
		return ErrFilterParse
	case KindTimeout:
		return ErrTimeout
	case KindNotFound:
		return ErrNotFound
	case KindConflict:
		return ErrConflict
	case KindShuttingDown:
		return ErrShuttingDown
	default:
		return nil
	}
}

// Error is the single structured error type returned by framework
// operations: a Kind, the operation that failed, and an optional wrapped
// cause.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Kind)
}

// Unwrap exposes both the wrapped cause (if any, via errors.Unwrap) and the
// kind's sentinel (via the Is method below), so errors.Is(err, ferrors.ErrNotFound)
// and errors.Is(err, someLowerCause) both work as expected.
func (e *Error) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ferrors.ErrNotFound) (and the other kind
// sentinels) succeed for any *Error of that Kind, regardless of the wrapped
// cause.
func (e *Error) Is(target error) bool {
	return target == sentinelFor(e.Kind)
}

// New constructs a *Error for op with no wrapped cause.
func New(kind Kind, op string) *Error {
	return &Error{Kind: kind, Op: op}
}

// Wrap constructs a *Error for op wrapping err. Returns nil if err is nil.
func Wrap(kind Kind, op string, err error) *Error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// Is reports whether err is of the given kind.
func Is(err error, kind Kind) bool {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind == kind
	}
	return errors.Is(err, sentinelFor(kind))
}
