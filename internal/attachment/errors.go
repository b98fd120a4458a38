package attachment

import "errors"

var (
	// ErrSave indicates one or more queued styles could not be written.
	// Pending queues are kept so the flush can be retried.
	ErrSave = errors.New("attachment: save failed")

	// ErrProcessing indicates a whiny style transformation failed during
	// assignment. The attachment is not valid and must not be committed.
	ErrProcessing = errors.New("attachment: processing failed")

	// ErrUnsupportedInput indicates a value Assign does not accept.
	ErrUnsupportedInput = errors.New("attachment: unsupported input")

	// ErrInvalidDefinition indicates an attachment or style definition that
	// failed validation.
	ErrInvalidDefinition = errors.New("attachment: invalid definition")

	// ErrNoFile indicates an operation that needs a stored file.
	ErrNoFile = errors.New("attachment: no file")
)
