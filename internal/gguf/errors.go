package gguf

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidMagic       = errors.New("invalid GGUF magic")
	ErrUnsupportedVersion = errors.New("unsupported GGUF version")
	ErrCorruptValue       = errors.New("corrupt value")
	ErrCorruptLayout      = errors.New("corrupt layout")
	ErrTypeMismatch       = errors.New("type mismatch")
	ErrKeyNotFound        = errors.New("key not found")
)

// VersionError reports the version found in a header this package does not
// understand.
type VersionError struct {
	Version uint32
}

func (e *VersionError) Error() string {
	return fmt.Sprintf("%v: %d (supported: %d)", ErrUnsupportedVersion, e.Version, Version)
}

func (e *VersionError) Unwrap() error { return ErrUnsupportedVersion }

// ValueError is a malformed or truncated encoding. Entity names the metadata
// key or tensor being decoded; Offset is the absolute byte offset where the
// failing read started.
type ValueError struct {
	Entity string
	Offset int64
	Reason string
}

func (e *ValueError) Error() string {
	if e.Entity == "" {
		return fmt.Sprintf("%v at offset %d: %s", ErrCorruptValue, e.Offset, e.Reason)
	}
	return fmt.Sprintf("%v: %s at offset %d: %s", ErrCorruptValue, e.Entity, e.Offset, e.Reason)
}

func (e *ValueError) Unwrap() error { return ErrCorruptValue }

// LayoutError is a violated structural invariant. Tensor and Offset are set
// when the violation belongs to a specific descriptor or byte position.
type LayoutError struct {
	Detail string
	Tensor string
	Offset uint64
}

func (e *LayoutError) Error() string {
	if e.Tensor != "" {
		return fmt.Sprintf("%v: tensor %q (offset %d): %s", ErrCorruptLayout, e.Tensor, e.Offset, e.Detail)
	}
	return fmt.Sprintf("%v: %s", ErrCorruptLayout, e.Detail)
}

func (e *LayoutError) Unwrap() error { return ErrCorruptLayout }

func layoutErrorf(format string, args ...any) error {
	return &LayoutError{Detail: fmt.Sprintf(format, args...)}
}

// TypeMismatchError is an update whose variant disagrees with the existing
// entry.
type TypeMismatchError struct {
	Key      string
	Expected string
	Actual   string
}

func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf("%v: key %q is %s, got %s", ErrTypeMismatch, e.Key, e.Expected, e.Actual)
}

func (e *TypeMismatchError) Unwrap() error { return ErrTypeMismatch }

type KeyNotFoundError struct {
	Key string
}

func (e *KeyNotFoundError) Error() string {
	return fmt.Sprintf("%v: %q", ErrKeyNotFound, e.Key)
}

func (e *KeyNotFoundError) Unwrap() error { return ErrKeyNotFound }

// IsFormatError reports whether err originates from this package's error
// taxonomy rather than from the underlying I/O.
func IsFormatError(err error) bool {
	return errors.Is(err, ErrInvalidMagic) ||
		errors.Is(err, ErrUnsupportedVersion) ||
		errors.Is(err, ErrCorruptValue) ||
		errors.Is(err, ErrCorruptLayout) ||
		errors.Is(err, ErrTypeMismatch) ||
		errors.Is(err, ErrKeyNotFound)
}
