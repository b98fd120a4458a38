package records

import (
	"fmt"
	"slices"

	"github.com/kirill555101/paperclip/internal/attachment"
)

// Registry holds the attachment definitions of each record class.
type Registry struct {
	classes map[string][]*attachment.Definition
}

// NewRegistry finalizes defs and groups them by class. Two definitions
// with the same class and name are rejected.
func NewRegistry(defs ...*attachment.Definition) (*Registry, error) {
	r := &Registry{classes: make(map[string][]*attachment.Definition)}

	for _, def := range defs {
		if err := def.Finalize(); err != nil {
			return nil, err
		}
		for _, existing := range r.classes[def.ClassName] {
			if existing.Name == def.Name {
				return nil, fmt.Errorf("%w: %s.%s defined twice", attachment.ErrInvalidDefinition, def.ClassName, def.Name)
			}
		}
		r.classes[def.ClassName] = append(r.classes[def.ClassName], def)
	}

	return r, nil
}

// Definitions returns the attachments declared for class.
func (r *Registry) Definitions(class string) ([]*attachment.Definition, error) {
	defs, ok := r.classes[class]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownClass, class)
	}
	return defs, nil
}

// Classes returns the registered class names in sorted order.
func (r *Registry) Classes() []string {
	names := make([]string, 0, len(r.classes))
	for name := range r.classes {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
