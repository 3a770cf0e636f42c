package api

import (
	"errors"
	"io/fs"
	"net/http"

	"github.com/samcharles93/ggufedit/internal/editor"
	"github.com/samcharles93/ggufedit/internal/gguf"
	"github.com/samcharles93/ggufedit/internal/request"
)

var ErrInvalidRequest = errors.New("invalid_request")

type invalidRequestError struct {
	msg string
}

func (e invalidRequestError) Error() string {
	return e.msg
}

func (e invalidRequestError) Unwrap() error {
	return ErrInvalidRequest
}

func newInvalidRequest(msg string) error {
	return invalidRequestError{msg: msg}
}

// classify maps err to an HTTP status and an error type for the response
// envelope.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, request.ErrInvalid),
		errors.Is(err, editor.ErrInvalidUpdate):
		return http.StatusBadRequest, "invalid_request_error"
	case errors.Is(err, gguf.ErrTypeMismatch):
		return http.StatusBadRequest, "type_mismatch_error"
	case errors.Is(err, gguf.ErrKeyNotFound):
		return http.StatusBadRequest, "key_not_found_error"
	case errors.Is(err, fs.ErrNotExist):
		return http.StatusNotFound, "not_found_error"
	case errors.Is(err, gguf.ErrInvalidMagic),
		errors.Is(err, gguf.ErrUnsupportedVersion),
		errors.Is(err, gguf.ErrCorruptValue),
		errors.Is(err, gguf.ErrCorruptLayout):
		return http.StatusUnprocessableEntity, "invalid_file_error"
	default:
		return http.StatusInternalServerError, "server_error"
	}
}
