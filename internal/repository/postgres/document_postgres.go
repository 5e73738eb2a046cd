package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"docqa/internal/model"
	"docqa/internal/repository"
)

const documentColumns = `id, filename, storage_path, size, content_type, status, chunk_count, error, created_at, updated_at`

// DocumentPostgres is the PostgreSQL implementation of repository.DocumentRepository.
type DocumentPostgres struct {
	db *sql.DB
}

// NewDocumentPostgres creates a new DocumentPostgres repository.
func NewDocumentPostgres(db *sql.DB) *DocumentPostgres {
	return &DocumentPostgres{db: db}
}

var _ repository.DocumentRepository = (*DocumentPostgres)(nil)

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(s rowScanner) (*model.Document, error) {
	var (
		d      model.Document
		status string
	)
	if err := s.Scan(
		&d.ID,
		&d.Filename,
		&d.StoragePath,
		&d.Size,
		&d.ContentType,
		&status,
		&d.ChunkCount,
		&d.Error,
		&d.CreatedAt,
		&d.UpdatedAt,
	); err != nil {
		return nil, err
	}
	d.Status = model.DocumentStatus(status)
	return &d, nil
}

func (r *DocumentPostgres) Create(ctx context.Context, doc *model.Document) (*model.Document, error) {
	const q = `
		INSERT INTO documents (id, filename, storage_path, size, content_type, status, chunk_count, error, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)
		RETURNING ` + documentColumns
	status := doc.Status
	if status == "" {
		status = model.StatusPending
	}
	out, err := scanDocument(r.db.QueryRowContext(ctx, q,
		doc.ID,
		doc.Filename,
		doc.StoragePath,
		doc.Size,
		doc.ContentType,
		string(status),
		doc.ChunkCount,
		doc.Error,
		doc.CreatedAt,
	))
	if err != nil {
		return nil, fmt.Errorf("insert document: %w", err)
	}
	return out, nil
}

func (r *DocumentPostgres) FindByID(ctx context.Context, id string) (*model.Document, error) {
	const q = `SELECT ` + documentColumns + ` FROM documents WHERE id = $1`
	d, err := scanDocument(r.db.QueryRowContext(ctx, q, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("find document %s: %w", id, err)
	}
	return d, nil
}

// List uses LIMIT/OFFSET pagination; an empty Status matches every row.
func (r *DocumentPostgres) List(ctx context.Context, pq repository.PageQuery) (*repository.PageResult[model.Document], error) {
	const qCount = `SELECT COUNT(*) FROM documents WHERE ($1 = '' OR status = $1)`
	var total int
	if err := r.db.QueryRowContext(ctx, qCount, string(pq.Status)).Scan(&total); err != nil {
		return nil, fmt.Errorf("count documents: %w", err)
	}

	const qList = `
		SELECT ` + documentColumns + `
		FROM documents
		WHERE ($1 = '' OR status = $1)
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3
	`
	rows, err := r.db.QueryContext(ctx, qList, string(pq.Status), pq.Limit, pq.Offset)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	items := make([]model.Document, 0)
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		items = append(items, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &repository.PageResult[model.Document]{Items: items, Total: total}, nil
}

func (r *DocumentPostgres) Delete(ctx context.Context, id string) error {
	const q = `DELETE FROM documents WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, q, id); err != nil {
		return fmt.Errorf("delete document %s: %w", id, err)
	}
	return nil
}

func (r *DocumentPostgres) UpdateStatus(ctx context.Context, id string, status model.DocumentStatus, chunkCount int, errMsg string) error {
	const q = `
		UPDATE documents
		SET status = $2, chunk_count = $3, error = $4, updated_at = now()
		WHERE id = $1
	`
	res, err := r.db.ExecContext(ctx, q, id, string(status), chunkCount, errMsg)
	if err != nil {
		return fmt.Errorf("update document %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update document %s: %w", id, err)
	}
	if n == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *DocumentPostgres) MarkReplaced(ctx context.Context) (int64, error) {
	const q = `UPDATE documents SET status = $1, updated_at = now() WHERE status = $2`
	res, err := r.db.ExecContext(ctx, q, string(model.StatusReplaced), string(model.StatusIndexed))
	if err != nil {
		return 0, fmt.Errorf("mark documents replaced: %w", err)
	}
	return res.RowsAffected()
}
