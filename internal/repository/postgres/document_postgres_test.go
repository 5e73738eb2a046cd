package postgres

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docqa/internal/model"
	"docqa/internal/repository"
)

var columns = []string{"id", "filename", "storage_path", "size", "content_type", "status", "chunk_count", "error", "created_at", "updated_at"}

func newRepo(t *testing.T) (*DocumentPostgres, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewDocumentPostgres(db), mock
}

func TestDocumentPostgres_Create(t *testing.T) {
	repo, mock := newRepo(t)
	now := time.Now().UTC()
	doc := &model.Document{
		ID:          "test-uuid",
		Filename:    "test.pdf",
		StoragePath: "test-uuid/test.pdf",
		Size:        123,
		ContentType: "application/pdf",
		CreatedAt:   now,
	}

	mock.ExpectQuery("INSERT INTO documents").
		WithArgs(doc.ID, doc.Filename, doc.StoragePath, doc.Size, doc.ContentType, "pending", 0, "", doc.CreatedAt).
		WillReturnRows(sqlmock.NewRows(columns).
			AddRow(doc.ID, doc.Filename, doc.StoragePath, doc.Size, doc.ContentType, "pending", 0, "", now, now))

	result, err := repo.Create(context.Background(), doc)

	require.NoError(t, err)
	assert.Equal(t, doc.ID, result.ID)
	assert.Equal(t, model.StatusPending, result.Status)
	assert.Equal(t, now, result.UpdatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDocumentPostgres_FindByID(t *testing.T) {
	repo, mock := newRepo(t)
	ctx := context.Background()

	t.Run("found", func(t *testing.T) {
		now := time.Now()
		mock.ExpectQuery("SELECT (.+) FROM documents WHERE id = ?").
			WithArgs("test-id").
			WillReturnRows(sqlmock.NewRows(columns).
				AddRow("test-id", "file.txt", "test-id/file.txt", 100, "text/plain", "indexed", 4, "", now, now))

		doc, err := repo.FindByID(ctx, "test-id")

		require.NoError(t, err)
		assert.Equal(t, "test-id", doc.ID)
		assert.Equal(t, model.StatusIndexed, doc.Status)
		assert.Equal(t, 4, doc.ChunkCount)
	})

	t.Run("not found", func(t *testing.T) {
		mock.ExpectQuery("SELECT (.+) FROM documents WHERE id = ?").
			WithArgs("missing").
			WillReturnError(sql.ErrNoRows)

		doc, err := repo.FindByID(ctx, "missing")

		assert.ErrorIs(t, err, repository.ErrNotFound)
		assert.Nil(t, doc)
	})

	t.Run("driver error", func(t *testing.T) {
		mock.ExpectQuery("SELECT (.+) FROM documents WHERE id = ?").
			WithArgs("boom").
			WillReturnError(errors.New("conn reset"))

		_, err := repo.FindByID(ctx, "boom")

		assert.ErrorContains(t, err, "conn reset")
		assert.NotErrorIs(t, err, repository.ErrNotFound)
	})
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDocumentPostgres_List(t *testing.T) {
	repo, mock := newRepo(t)
	now := time.Now()

	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM documents").
		WithArgs("indexed").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery("SELECT (.+) FROM documents WHERE (.+) ORDER BY").
		WithArgs("indexed", 10, 0).
		WillReturnRows(sqlmock.NewRows(columns).
			AddRow("test-id", "file.txt", "test-id/file.txt", 100, "text/plain", "indexed", 2, "", now, now))

	res, err := repo.List(context.Background(), repository.PageQuery{Limit: 10, Offset: 0, Status: model.StatusIndexed})

	require.NoError(t, err)
	assert.Equal(t, 1, res.Total)
	require.Len(t, res.Items, 1)
	assert.Equal(t, 2, res.Items[0].ChunkCount)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDocumentPostgres_Delete(t *testing.T) {
	repo, mock := newRepo(t)

	mock.ExpectExec("DELETE FROM documents WHERE id = ?").
		WithArgs("test-id").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Delete(context.Background(), "test-id"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDocumentPostgres_UpdateStatus(t *testing.T) {
	repo, mock := newRepo(t)
	ctx := context.Background()

	mock.ExpectExec("UPDATE documents SET status").
		WithArgs("id-1", "failed", 0, "no text").
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.UpdateStatus(ctx, "id-1", model.StatusFailed, 0, "no text"))

	mock.ExpectExec("UPDATE documents SET status").
		WithArgs("gone", "indexed", 3, "").
		WillReturnResult(sqlmock.NewResult(0, 0))
	assert.ErrorIs(t, repo.UpdateStatus(ctx, "gone", model.StatusIndexed, 3, ""), repository.ErrNotFound)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDocumentPostgres_MarkReplaced(t *testing.T) {
	repo, mock := newRepo(t)

	mock.ExpectExec("UPDATE documents SET status = (.+) WHERE status = ").
		WithArgs("replaced", "indexed").
		WillReturnResult(sqlmock.NewResult(0, 3))

	n, err := repo.MarkReplaced(context.Background())

	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}
