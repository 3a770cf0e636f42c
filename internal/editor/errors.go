package editor

import (
	"context"
	"errors"
	"fmt"

	"github.com/samcharles93/ggufedit/internal/gguf"
)

var (
	// ErrIO marks failures of the underlying filesystem: open, read, write,
	// sync and rename.
	ErrIO = errors.New("i/o error")
	// ErrInvalidUpdate is an update that cannot be interpreted at all, such
	// as an empty key or a null value.
	ErrInvalidUpdate = errors.New("invalid update")
	// ErrSessionClosed is returned by every Session method after Commit or
	// Close.
	ErrSessionClosed = errors.New("session closed")
)

// Stage names the step of a session an error left from.
type Stage string

const (
	StageDecode   Stage = "decode"
	StageValidate Stage = "validate"
	StageUpdate   Stage = "update"
	StageWrite    Stage = "write"
	StageBackup   Stage = "backup"
)

// StageError wraps every error returned by a Session.
type StageError struct {
	Stage Stage
	Path  string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Stage, e.Path, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// StageOf returns the stage recorded in err, or "" when err did not come
// from a Session.
func StageOf(err error) Stage {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage
	}
	return ""
}

// ioErr tags err as ErrIO unless it already belongs to the format taxonomy
// or is a context error.
func ioErr(err error) error {
	if err == nil || errors.Is(err, ErrIO) || gguf.IsFormatError(err) ||
		errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrIO, err)
}

func invalidUpdatef(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidUpdate, fmt.Sprintf(format, args...))
}
