package records

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/kirill555101/paperclip/internal/attachment"
	"github.com/kirill555101/paperclip/pkg/pagination"
	"github.com/kirill555101/paperclip/pkg/storage"
)

// System drives records and their attachments through the save lifecycle.
type System interface {
	// Classes returns the registered record classes.
	Classes() []string

	// Create inserts an empty record of class.
	Create(ctx context.Context, class string) (*Model, error)

	// Find loads a record of class with its attachments.
	Find(ctx context.Context, class string, id uuid.UUID) (*Model, error)

	// List returns one page of the records of class.
	List(ctx context.Context, class string, page pagination.PageRequest) (pagination.PageResult[View], error)

	// Save commits pending attachment changes: every attachment validates,
	// the attributes are persisted, then queued files are flushed. An
	// attachment whose files fail to flush has its persisted attributes
	// restored and the flush error wraps attachment.ErrSave.
	Save(ctx context.Context, m *Model) error

	// Destroy deletes the record and then every stored file.
	Destroy(ctx context.Context, m *Model) error

	// Reload discards pending changes and re-reads the record.
	Reload(ctx context.Context, m *Model) error
}

type system struct {
	store     Store
	registry  *Registry
	backend   storage.Backend
	processor attachment.Processor
	opts      []attachment.Option
	logger    *slog.Logger
}

// New creates a record system. opts are applied to every attachment.
func New(store Store, registry *Registry, backend storage.Backend, processor attachment.Processor, logger *slog.Logger, opts ...attachment.Option) System {
	return &system{
		store:     store,
		registry:  registry,
		backend:   backend,
		processor: processor,
		opts:      opts,
		logger:    logger.With("system", "records"),
	}
}

func (s *system) Classes() []string {
	return s.registry.Classes()
}

func (s *system) Create(ctx context.Context, class string) (*Model, error) {
	if _, err := s.registry.Definitions(class); err != nil {
		return nil, err
	}

	rec, err := s.store.Insert(ctx, Record{ID: uuid.New(), Class: class})
	if err != nil {
		return nil, err
	}

	s.logger.Info("record created", "id", rec.ID, "class", class)
	return s.model(rec)
}

func (s *system) Find(ctx context.Context, class string, id uuid.UUID) (*Model, error) {
	if _, err := s.registry.Definitions(class); err != nil {
		return nil, err
	}

	rec, err := s.store.Find(ctx, class, id)
	if err != nil {
		return nil, err
	}
	return s.model(rec)
}

func (s *system) List(ctx context.Context, class string, page pagination.PageRequest) (pagination.PageResult[View], error) {
	if _, err := s.registry.Definitions(class); err != nil {
		return pagination.PageResult[View]{}, err
	}

	result, err := s.store.List(ctx, class, page)
	if err != nil {
		return pagination.PageResult[View]{}, err
	}

	var buildErr error
	views := pagination.Map(result, func(rec Record) View {
		m, err := s.model(rec)
		if err != nil {
			buildErr = err
			return View{Record: rec}
		}
		return m.View()
	})
	return views, buildErr
}

func (s *system) Save(ctx context.Context, m *Model) error {
	var errs []error
	for _, name := range m.names {
		if err := m.attachments[name].BeforeCommit(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	rec := m.record.clone()
	rec.Attachments = make(map[string]attachment.Attributes, len(m.names))
	for _, name := range m.names {
		rec.Attachments[name] = m.attachments[name].Attributes()
	}

	previous := m.record
	updated, err := s.store.Update(ctx, rec)
	if err != nil {
		return err
	}
	m.record = updated

	var unflushed []string
	for _, name := range m.names {
		if err := m.attachments[name].AfterCommit(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
			unflushed = append(unflushed, name)
		}
	}
	if len(unflushed) > 0 {
		s.revert(ctx, m, previous, unflushed)
		return errors.Join(errs...)
	}

	s.logger.Debug("record saved", "id", rec.ID, "class", rec.Class)
	return nil
}

// revert restores the persisted attributes of attachments whose files could
// not be flushed. They stay pending on the model so a later Save retries.
func (s *system) revert(ctx context.Context, m *Model, previous Record, names []string) {
	rec := m.record.clone()
	if rec.Attachments == nil {
		rec.Attachments = make(map[string]attachment.Attributes, len(names))
	}
	for _, name := range names {
		rec.Attachments[name] = previous.Attachments[name]
	}

	restored, err := s.store.Update(ctx, rec)
	if err != nil {
		s.logger.Error("failed to revert unflushed attachments", "id", rec.ID, "attachments", names, "error", err)
		return
	}
	m.record = restored
	s.logger.Warn("reverted unflushed attachments", "id", rec.ID, "attachments", names)
}

func (s *system) Destroy(ctx context.Context, m *Model) error {
	if err := s.store.Delete(ctx, m.record.Class, m.record.ID); err != nil {
		return err
	}

	for _, name := range m.names {
		m.attachments[name].AfterDestroy(ctx)
	}

	s.logger.Info("record destroyed", "id", m.record.ID, "class", m.record.Class)
	return nil
}

func (s *system) Reload(ctx context.Context, m *Model) error {
	rec, err := s.store.Find(ctx, m.record.Class, m.record.ID)
	if err != nil {
		return err
	}

	m.record = rec
	for _, name := range m.names {
		m.attachments[name].Reload(rec.Attachments[name])
	}
	return nil
}

func (s *system) model(rec Record) (*Model, error) {
	defs, err := s.registry.Definitions(rec.Class)
	if err != nil {
		return nil, err
	}

	m := &Model{
		record:      rec,
		names:       make([]string, 0, len(defs)),
		attachments: make(map[string]*attachment.Attachment, len(defs)),
	}
	for _, def := range defs {
		m.names = append(m.names, def.Name)
		m.attachments[def.Name] = attachment.New(def, m, rec.Attachments[def.Name], s.backend, s.processor, s.logger, s.opts...)
	}
	return m, nil
}
