package records

import (
	"context"

	"github.com/google/uuid"

	"github.com/kirill555101/paperclip/pkg/pagination"
)

// Store persists records and their attachment attributes.
type Store interface {
	// Insert stores a new record. An existing id yields ErrDuplicate.
	Insert(ctx context.Context, rec Record) (Record, error)

	// Find returns the record of class with id, or ErrNotFound.
	Find(ctx context.Context, class string, id uuid.UUID) (Record, error)

	// List returns one page of the records of class, oldest first.
	List(ctx context.Context, class string, page pagination.PageRequest) (pagination.PageResult[Record], error)

	// Update replaces the attachment attributes of rec and touches UpdatedAt.
	Update(ctx context.Context, rec Record) (Record, error)

	// Delete removes the record and its attachment attributes.
	Delete(ctx context.Context, class string, id uuid.UUID) error
}
