// Package vdberr defines the error taxonomy shared by every service in the
// store: callers switch on Kind rather than matching error strings.
package vdberr

import (
	"fmt"
	"log"
)

// Kind classifies an error the way spec section 7 describes: validation and
// not-found/conflict errors are caller-visible, index errors are logged as
// well as returned, everything else is an unexpected internal error.
type Kind int

const (
	Internal Kind = iota
	Validation
	NotFound
	Conflict
	Index
)

func (k Kind) String() string {
	switch k {
	case Validation:
		return "VALIDATION"
	case NotFound:
		return "NOT_FOUND"
	case Conflict:
		return "CONFLICT"
	case Index:
		return "INDEX"
	default:
		return "INTERNAL"
	}
}

// Error is the concrete error type returned by services. Details carries
// kind-specific context (field name, conflict type, index kind/operation)
// so callers don't need to parse Msg.
type Error struct {
	Kind    Kind
	Msg     string
	Details map[string]string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

func newErr(kind Kind, msg string, details map[string]string) *Error {
	return &Error{Kind: kind, Msg: msg, Details: details}
}

// Validationf builds a VALIDATION error naming the offending field.
func Validationf(field, format string, args ...any) *Error {
	return newErr(Validation, fmt.Sprintf(format, args...), map[string]string{"field": field})
}

// NotFoundf builds a NOT_FOUND error for the given resource kind/id.
func NotFoundf(resource, id string) *Error {
	return newErr(NotFound, fmt.Sprintf("%s %s not found", resource, id), map[string]string{
		"resource": resource,
		"id":       id,
	})
}

// Conflictf builds a CONFLICT error carrying a conflict_type detail.
func Conflictf(conflictType, format string, args ...any) *Error {
	return newErr(Conflict, fmt.Sprintf(format, args...), map[string]string{"conflict_type": conflictType})
}

// Indexf builds an INDEX error carrying the index kind and failed operation,
// and logs it.
func Indexf(indexKind, operation string, err error) *Error {
	e := newErr(Index, fmt.Sprintf("%s operation %q failed", indexKind, operation), map[string]string{
		"index_kind": indexKind,
		"operation":  operation,
	})
	e.Err = err
	log.Printf("index error: %v", e)
	return e
}

// Internalf builds an INTERNAL error wrapping an unexpected failure.
func Internalf(err error, format string, args ...any) *Error {
	e := newErr(Internal, fmt.Sprintf(format, args...), nil)
	e.Err = err
	return e
}

// Is reports whether err carries the given Kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if as(err, &e) {
		return e.Kind == kind
	}
	return false
}

func as(err error, target **Error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
