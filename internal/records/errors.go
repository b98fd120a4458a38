package records

import (
	"errors"
	"net/http"

	"github.com/kirill555101/paperclip/internal/attachment"
	"github.com/kirill555101/paperclip/pkg/storage"
)

// Domain errors for record operations.
var (
	ErrNotFound          = errors.New("record not found")
	ErrDuplicate         = errors.New("record already exists")
	ErrUnknownClass      = errors.New("unknown record class")
	ErrUnknownAttachment = errors.New("unknown attachment")
	ErrUnknownStyle      = errors.New("unknown style")
	ErrFileTooLarge      = errors.New("file exceeds maximum upload size")
	ErrInvalidFile       = errors.New("invalid or missing file")
)

// MapHTTPStatus maps domain errors to appropriate HTTP status codes.
func MapHTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, ErrUnknownClass),
		errors.Is(err, ErrUnknownAttachment),
		errors.Is(err, ErrUnknownStyle),
		errors.Is(err, attachment.ErrNoFile),
		errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrDuplicate):
		return http.StatusConflict
	case errors.Is(err, ErrFileTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, ErrInvalidFile):
		return http.StatusBadRequest
	case errors.Is(err, attachment.ErrProcessing),
		errors.Is(err, attachment.ErrUnsupportedInput):
		return http.StatusUnprocessableEntity
	case errors.Is(err, attachment.ErrSave),
		errors.Is(err, storage.ErrConnection):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
