package model

import "time"

// DocumentStatus tracks where an uploaded file is in the indexing lifecycle.
type DocumentStatus string

const (
	StatusPending  DocumentStatus = "pending"
	StatusIndexed  DocumentStatus = "indexed"
	StatusFailed   DocumentStatus = "failed"
	StatusReplaced DocumentStatus = "replaced"
)

// Document represents an uploaded file and its indexing state.
// This is a pure domain model with no database-specific dependencies or tags.
type Document struct {
	ID          string         `json:"id"`
	Filename    string         `json:"filename"`
	StoragePath string         `json:"storage_path"`
	Size        int64          `json:"size"`
	ContentType string         `json:"content_type"`
	Status      DocumentStatus `json:"status"`
	ChunkCount  int            `json:"chunk_count"`
	Error       string         `json:"error,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}
