// Package apperr holds the error kinds handlers translate into HTTP statuses.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindConflict
	KindNotFound
	KindForbidden
	KindUnauthorized
)

// Duplicate names a band number that is already held by another user.
type Duplicate struct {
	BandNo int64  `json:"bandNo"`
	User   string `json:"user"`
}

type Error struct {
	Kind       Kind
	Message    string
	Duplicates []Duplicate
}

func (e *Error) Error() string {
	return e.Message
}

func Validation(format string, args ...any) error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

func Conflict(format string, args ...any) error {
	return &Error{Kind: KindConflict, Message: fmt.Sprintf(format, args...)}
}

// DuplicateBands is a conflict that enumerates every colliding band.
func DuplicateBands(dups []Duplicate) error {
	return &Error{Kind: KindConflict, Message: "Duplicate band numbers found", Duplicates: dups}
}

func NotFound(format string, args ...any) error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

func Forbidden(format string, args ...any) error {
	return &Error{Kind: KindForbidden, Message: fmt.Sprintf(format, args...)}
}

func Unauthorized(format string, args ...any) error {
	return &Error{Kind: KindUnauthorized, Message: fmt.Sprintf(format, args...)}
}

// KindOf reports the kind of err, KindInternal when err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Status maps err to the HTTP status the handlers answer with.
func Status(err error) int {
	switch KindOf(err) {
	case KindValidation:
		return http.StatusBadRequest
	case KindConflict:
		return http.StatusConflict
	case KindNotFound:
		return http.StatusNotFound
	case KindForbidden:
		return http.StatusForbidden
	case KindUnauthorized:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// DuplicatesOf returns the duplicate list carried by err, if any.
func DuplicatesOf(err error) []Duplicate {
	var e *Error
	if errors.As(err, &e) {
		return e.Duplicates
	}
	return nil
}
