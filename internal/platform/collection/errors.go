package collection

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound  = errors.New("record not found")
	ErrDuplicate = errors.New("duplicate record")
	ErrConflict  = errors.New("conflict")
	ErrInvalid   = errors.New("invalid record")
	ErrStore     = errors.New("persist collection")
)

// Invalidf returns an error wrapping ErrInvalid.
func Invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...))
}

// NotFoundf returns an error wrapping ErrNotFound.
func NotFoundf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}

// Conflictf returns an error wrapping ErrConflict.
func Conflictf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConflict, fmt.Sprintf(format, args...))
}

// Invalid wraps a plain validation error in ErrInvalid. It returns nil for
// a nil err.
func Invalid(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %v", ErrInvalid, err)
}

// Protected returns an ErrInvalid error naming the first of keys present in
// partial. Services use it to keep PATCH away from fields that only their
// operations may change.
func Protected(partial map[string]any, keys ...string) error {
	for _, k := range keys {
		if _, ok := partial[k]; ok {
			return Invalidf("%s cannot be patched", k)
		}
	}
	return nil
}
