package records

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/kirill555101/paperclip/internal/attachment"
	"github.com/kirill555101/paperclip/pkg/pagination"
	"github.com/kirill555101/paperclip/pkg/repository"
)

const (
	recordColumns = "id, class, created_at, updated_at"

	insertRecordSQL = `INSERT INTO records (id, class) VALUES ($1, $2)
RETURNING ` + recordColumns

	findRecordSQL = `SELECT ` + recordColumns + ` FROM records WHERE id = $1 AND class = $2`

	countRecordsSQL = `SELECT COUNT(*) FROM records WHERE class = $1`

	listRecordsSQL = `SELECT ` + recordColumns + ` FROM records WHERE class = $1
ORDER BY created_at, id LIMIT $2 OFFSET $3`

	touchRecordSQL = `UPDATE records SET updated_at = NOW() WHERE id = $1 AND class = $2
RETURNING ` + recordColumns

	deleteRecordSQL = `DELETE FROM records WHERE id = $1 AND class = $2`

	findAttachmentsSQL = `SELECT name, file_name, content_type, file_size, updated_at
FROM record_attachments WHERE record_id = $1`

	upsertAttachmentSQL = `INSERT INTO record_attachments
    (record_id, name, file_name, content_type, file_size, updated_at)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (record_id, name) DO UPDATE SET
    file_name = EXCLUDED.file_name,
    content_type = EXCLUDED.content_type,
    file_size = EXCLUDED.file_size,
    updated_at = EXCLUDED.updated_at`
)

// PostgresStore persists records in the records and record_attachments
// tables.
type PostgresStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresStore creates a store over db. The schema is created by the
// embedded migrations.
func NewPostgresStore(db *sql.DB, logger *slog.Logger) *PostgresStore {
	return &PostgresStore{
		db:     db,
		logger: logger.With("system", "records", "store", "postgres"),
	}
}

func (s *PostgresStore) Insert(ctx context.Context, rec Record) (Record, error) {
	created, err := repository.WithTx(ctx, s.db, func(tx *sql.Tx) (Record, error) {
		created, err := repository.QueryOne(ctx, tx, insertRecordSQL, []any{rec.ID, rec.Class}, scanRecord)
		if err != nil {
			return Record{}, repository.MapError(err, ErrNotFound, ErrDuplicate)
		}
		created.Attachments = rec.Attachments
		if err := upsertAttachments(ctx, tx, created); err != nil {
			return Record{}, err
		}
		return created, nil
	})
	if err != nil {
		return Record{}, err
	}

	s.logger.Debug("record inserted", "id", created.ID, "class", created.Class)
	return created, nil
}

func (s *PostgresStore) Find(ctx context.Context, class string, id uuid.UUID) (Record, error) {
	rec, err := repository.QueryOne(ctx, s.db, findRecordSQL, []any{id, class}, scanRecord)
	if err != nil {
		return Record{}, repository.MapError(err, ErrNotFound, ErrDuplicate)
	}

	rec.Attachments, err = findAttachments(ctx, s.db, id)
	if err != nil {
		return Record{}, err
	}
	return rec, nil
}

func (s *PostgresStore) List(ctx context.Context, class string, page pagination.PageRequest) (pagination.PageResult[Record], error) {
	var total int
	if err := s.db.QueryRowContext(ctx, countRecordsSQL, class).Scan(&total); err != nil {
		return pagination.PageResult[Record]{}, fmt.Errorf("count records: %w", err)
	}

	recs, err := repository.QueryMany(ctx, s.db, listRecordsSQL, []any{class, page.PageSize, page.Offset()}, scanRecord)
	if err != nil {
		return pagination.PageResult[Record]{}, fmt.Errorf("query records: %w", err)
	}

	for i := range recs {
		recs[i].Attachments, err = findAttachments(ctx, s.db, recs[i].ID)
		if err != nil {
			return pagination.PageResult[Record]{}, err
		}
	}

	return pagination.NewPageResult(recs, total, page), nil
}

func (s *PostgresStore) Update(ctx context.Context, rec Record) (Record, error) {
	return repository.WithTx(ctx, s.db, func(tx *sql.Tx) (Record, error) {
		updated, err := repository.QueryOne(ctx, tx, touchRecordSQL, []any{rec.ID, rec.Class}, scanRecord)
		if err != nil {
			return Record{}, repository.MapError(err, ErrNotFound, ErrDuplicate)
		}
		updated.Attachments = rec.Attachments
		if err := upsertAttachments(ctx, tx, updated); err != nil {
			return Record{}, err
		}
		return updated, nil
	})
}

func (s *PostgresStore) Delete(ctx context.Context, class string, id uuid.UUID) error {
	if err := repository.ExecExpectOne(ctx, s.db, deleteRecordSQL, id, class); err != nil {
		return repository.MapError(err, ErrNotFound, ErrDuplicate)
	}

	s.logger.Debug("record deleted", "id", id, "class", class)
	return nil
}

func scanRecord(s repository.Scanner) (Record, error) {
	var r Record
	err := s.Scan(&r.ID, &r.Class, &r.CreatedAt, &r.UpdatedAt)
	return r, err
}

type namedAttributes struct {
	name  string
	attrs attachment.Attributes
}

func scanAttributes(s repository.Scanner) (namedAttributes, error) {
	var n namedAttributes
	err := s.Scan(
		&n.name, &n.attrs.FileName, &n.attrs.ContentType,
		&n.attrs.FileSize, &n.attrs.UpdatedAt,
	)
	return n, err
}

func findAttachments(ctx context.Context, q repository.Querier, id uuid.UUID) (map[string]attachment.Attributes, error) {
	rows, err := repository.QueryMany(ctx, q, findAttachmentsSQL, []any{id}, scanAttributes)
	if err != nil {
		return nil, fmt.Errorf("query attachments: %w", err)
	}

	out := make(map[string]attachment.Attributes, len(rows))
	for _, row := range rows {
		out[row.name] = row.attrs
	}
	return out, nil
}

func upsertAttachments(ctx context.Context, q repository.Querier, rec Record) error {
	for name, attrs := range rec.Attachments {
		_, err := q.ExecContext(ctx, upsertAttachmentSQL,
			rec.ID, name, attrs.FileName, attrs.ContentType, attrs.FileSize, attrs.UpdatedAt)
		if err != nil {
			return fmt.Errorf("upsert attachment %s: %w", name, err)
		}
	}
	return nil
}
