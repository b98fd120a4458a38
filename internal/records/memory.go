package records

import (
	"cmp"
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kirill555101/paperclip/pkg/pagination"
)

// MemoryStore keeps records in process memory. It backs the CLI and tests
// when no database is configured.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[uuid.UUID]Record
	now     func() time.Time
	logger  *slog.Logger
}

// NewMemoryStore creates an empty store.
func NewMemoryStore(logger *slog.Logger) *MemoryStore {
	return &MemoryStore{
		records: make(map[uuid.UUID]Record),
		now:     time.Now,
		logger:  logger.With("system", "records", "store", "memory"),
	}
}

func (s *MemoryStore) Insert(_ context.Context, rec Record) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[rec.ID]; ok {
		return Record{}, ErrDuplicate
	}

	now := s.now().UTC()
	rec.CreatedAt = now
	rec.UpdatedAt = now
	s.records[rec.ID] = rec.clone()

	s.logger.Debug("record inserted", "id", rec.ID, "class", rec.Class)
	return rec, nil
}

func (s *MemoryStore) Find(_ context.Context, class string, id uuid.UUID) (Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[id]
	if !ok || rec.Class != class {
		return Record{}, ErrNotFound
	}
	return rec.clone(), nil
}

func (s *MemoryStore) List(_ context.Context, class string, page pagination.PageRequest) (pagination.PageResult[Record], error) {
	s.mu.RLock()
	matched := make([]Record, 0)
	for _, rec := range s.records {
		if rec.Class == class {
			matched = append(matched, rec.clone())
		}
	}
	s.mu.RUnlock()

	slices.SortFunc(matched, func(a, b Record) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID.String(), b.ID.String())
	})

	start := min(page.Offset(), len(matched))
	end := min(start+page.PageSize, len(matched))
	return pagination.NewPageResult(matched[start:end], len(matched), page), nil
}

func (s *MemoryStore) Update(_ context.Context, rec Record) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.records[rec.ID]
	if !ok || existing.Class != rec.Class {
		return Record{}, ErrNotFound
	}

	existing.Attachments = rec.Attachments
	existing.UpdatedAt = s.now().UTC()
	s.records[rec.ID] = existing.clone()
	return existing.clone(), nil
}

func (s *MemoryStore) Delete(_ context.Context, class string, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok || rec.Class != class {
		return ErrNotFound
	}
	delete(s.records, id)
	return nil
}
