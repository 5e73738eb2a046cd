package repository

import (
	"context"

	"docqa/internal/model"
)

// DocumentRepository defines persistence for uploaded-document records.
// No business logic here, strictly persistence operations.
type DocumentRepository interface {
	// Create inserts a new document record and returns the stored row.
	Create(ctx context.Context, doc *model.Document) (*model.Document, error)

	// FindByID returns a document by its ID, or ErrNotFound.
	FindByID(ctx context.Context, id string) (*model.Document, error)

	// List returns a page of documents, newest first, and the total matching rows.
	List(ctx context.Context, pq PageQuery) (*PageResult[model.Document], error)

	// Delete removes a document by ID. Missing rows are not an error.
	Delete(ctx context.Context, id string) error

	// UpdateStatus records the outcome of indexing one document.
	UpdateStatus(ctx context.Context, id string, status model.DocumentStatus, chunkCount int, errMsg string) error

	// MarkReplaced flags every indexed document as replaced and returns how many changed.
	MarkReplaced(ctx context.Context) (int64, error)
}

// PageQuery holds limit/offset pagination and an optional status filter.
type PageQuery struct {
	Limit  int
	Offset int
	Status model.DocumentStatus
}

// PageResult is a generic pagination result wrapper.
type PageResult[T any] struct {
	Items []T
	Total int
}
