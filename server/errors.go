package main

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrInvalid      = errors.New("invalid request")
	ErrConflict     = errors.New("conflict")
	ErrForbidden    = errors.New("Forbidden")
	ErrUnauthorized = errors.New("Not authorized")
)

// invalidf builds a validation error whose client message is the formatted text.
func invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...))
}

func notFound(what string) error { return fmt.Errorf("%w: %s", ErrNotFound, what) }

func conflict(msg string) error { return fmt.Errorf("%w: %s", ErrConflict, msg) }

// errorStatus maps a service error to its HTTP status and client message.
// ok is false for errors that are not part of the taxonomy.
func errorStatus(err error) (status int, msg string, ok bool) {
	switch {
	case errors.Is(err, ErrInvalid):
		return 400, detail(err, ErrInvalid), true
	case errors.Is(err, ErrConflict):
		return 400, detail(err, ErrConflict), true
	case errors.Is(err, ErrUnauthorized):
		return 401, detail(err, ErrUnauthorized), true
	case errors.Is(err, ErrForbidden):
		return 403, detail(err, ErrForbidden), true
	case errors.Is(err, ErrNotFound):
		return 404, detail(err, ErrNotFound), true
	}
	return 500, "internal error", false
}

// detail strips the sentinel prefix so "not found: Card not found" becomes "Card not found".
func detail(err, sentinel error) string {
	s := err.Error()
	prefix := sentinel.Error() + ": "
	if i := strings.LastIndex(s, prefix); i >= 0 {
		return s[i+len(prefix):]
	}
	return sentinel.Error()
}
