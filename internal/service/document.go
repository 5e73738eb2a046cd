package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"docqa/internal/ingest"
	"docqa/internal/logging"
	"docqa/internal/model"
	"docqa/internal/repository"
	"docqa/internal/storage"
)

// UploadMessage is returned after a successful upload.
const UploadMessage = "Files are processed and vectorstore is updated"

var (
	ErrIDRequired = errors.New("id is required")
	ErrNotFound   = errors.New("document not found")
	ErrNoFiles    = errors.New("no files uploaded")
)

// Ingester turns stored uploads into indexed chunks.
type Ingester interface {
	Run(ctx context.Context, sources []ingest.Source, overwrite bool) (*ingest.Report, error)
}

// IndexRemover drops a document's chunks from the vector index.
type IndexRemover interface {
	DeleteDocument(ctx context.Context, documentID string) (int, error)
}

// UploadFile is one file from a multipart upload.
type UploadFile struct {
	Filename    string
	ContentType string
	Data        []byte
}

// UploadResult reports the documents registered by one upload.
type UploadResult struct {
	Message   string           `json:"message"`
	Documents []model.Document `json:"documents"`
	Chunks    int              `json:"chunks"`
}

// DocumentListResult is the service-level DTO for paginated documents.
type DocumentListResult struct {
	Items []model.Document `json:"data"`
	Total int              `json:"total"`
}

// DownloadURLExpiry bounds how long a presigned download link stays valid.
const DownloadURLExpiry = 15 * time.Minute

// Download is either a redirect URL or an open object stream.
// Callers must close Body when it is set.
type Download struct {
	Document *model.Document
	URL      string
	Body     io.ReadCloser
	Info     storage.ObjectInfo
}

// DocumentService defines the use cases for handling documents.
type DocumentService interface {
	// Upload stores every non-empty file, registers it, and indexes its text.
	// Files that cannot be parsed are registered as failed; the call fails
	// with ingest.ErrNoDocuments only when none of them produced text.
	Upload(ctx context.Context, files []UploadFile) (*UploadResult, error)

	// List returns documents using limit/offset, optionally filtered by status, and a total count.
	List(ctx context.Context, limit, offset int, status model.DocumentStatus) (*DocumentListResult, error)

	// Get returns a single document by its ID.
	Get(ctx context.Context, id string) (*model.Document, error)

	// Delete removes a document from the index, from storage and from the registry.
	Delete(ctx context.Context, id string) error

	// Download returns the uploaded bytes. Backends that can presign an http(s)
	// link return it in URL; the rest return an open Body.
	Download(ctx context.Context, id string) (*Download, error)
}

type documentService struct {
	store     storage.Storage
	repo      repository.DocumentRepository
	ingester  Ingester
	index     IndexRemover
	overwrite bool
	log       *zap.Logger

	// mu serializes uploads and deletes so registry rows follow index order.
	mu sync.Mutex
}

// NewDocumentService constructs a new DocumentService. With overwrite set,
// each upload replaces the whole index.
func NewDocumentService(store storage.Storage, repo repository.DocumentRepository, ingester Ingester, index IndexRemover, overwrite bool, log *zap.Logger) DocumentService {
	return &documentService{
		store:     store,
		repo:      repo,
		ingester:  ingester,
		index:     index,
		overwrite: overwrite,
		log:       logging.Component(log, "document_service"),
	}
}

func (s *documentService) Upload(ctx context.Context, files []UploadFile) (*UploadResult, error) {
	files = nonEmpty(files)
	if len(files) == 0 {
		return nil, ErrNoFiles
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	docs := make([]*model.Document, 0, len(files))
	sources := make([]ingest.Source, 0, len(files))
	for _, f := range files {
		doc, err := s.register(ctx, f)
		if err != nil {
			s.failAll(ctx, docs, err)
			return nil, err
		}
		docs = append(docs, doc)
		sources = append(sources, ingest.Source{DocumentID: doc.ID, Filename: doc.Filename, Data: f.Data})
	}

	report, err := s.ingester.Run(ctx, sources, s.overwrite)
	if err != nil && !errors.Is(err, ingest.ErrNoDocuments) {
		s.failAll(ctx, docs, err)
		return nil, fmt.Errorf("index documents: %w", err)
	}
	if err == nil && s.overwrite {
		n, mErr := s.repo.MarkReplaced(ctx)
		if mErr != nil {
			s.log.Warn("mark replaced failed", zap.Error(mErr))
		} else {
			s.log.Info("previous documents replaced", zap.Int64("count", n))
		}
	}

	outcomes := make(map[string]ingest.Outcome, len(report.Outcomes))
	for _, o := range report.Outcomes {
		outcomes[o.DocumentID] = o
	}
	res := &UploadResult{Message: UploadMessage, Documents: make([]model.Document, 0, len(docs)), Chunks: report.Chunks}
	for _, doc := range docs {
		o := outcomes[doc.ID]
		switch {
		case o.Err != nil:
			s.setStatus(ctx, doc, model.StatusFailed, 0, o.Err.Error())
		case err != nil:
			s.setStatus(ctx, doc, model.StatusFailed, 0, err.Error())
		default:
			s.setStatus(ctx, doc, model.StatusIndexed, o.Chunks, "")
		}
		res.Documents = append(res.Documents, *doc)
	}

	if err != nil {
		return res, err
	}
	s.log.Info("upload indexed",
		zap.Int("files", len(docs)),
		zap.Int("indexed", report.Indexed()),
		zap.Int("chunks", report.Chunks),
	)
	return res, nil
}

// register stores the original bytes and creates a pending registry row,
// removing the object again if the row cannot be written.
func (s *documentService) register(ctx context.Context, f UploadFile) (*model.Document, error) {
	name := baseName(f.Filename)
	key := "documents/" + uuid.New().String() + filepath.Ext(name)

	objInfo, err := s.store.Put(ctx, key, bytes.NewReader(f.Data), storage.PutObjectOptions{
		Size:        int64(len(f.Data)),
		ContentType: f.ContentType,
		Metadata:    map[string]string{"original-filename": name},
	})
	if err != nil {
		return nil, fmt.Errorf("upload to storage: %w", err)
	}

	now := time.Now().UTC()
	doc := &model.Document{
		ID:          uuid.New().String(),
		Filename:    name,
		StoragePath: objInfo.Key,
		Size:        objInfo.Size,
		ContentType: objInfo.ContentType,
		Status:      model.StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	stored, err := s.repo.Create(ctx, doc)
	if err != nil {
		if delErr := s.store.Delete(ctx, key); delErr != nil {
			return nil, fmt.Errorf("db save failed: %v; rollback delete failed: %v", err, delErr)
		}
		return nil, fmt.Errorf("db save failed: %w", err)
	}
	return stored, nil
}

func (s *documentService) setStatus(ctx context.Context, doc *model.Document, status model.DocumentStatus, chunks int, msg string) {
	doc.Status, doc.ChunkCount, doc.Error = status, chunks, msg
	doc.UpdatedAt = time.Now().UTC()
	if err := s.repo.UpdateStatus(ctx, doc.ID, status, chunks, msg); err != nil {
		s.log.Warn("update document status failed",
			zap.String("document_id", doc.ID),
			zap.String("status", string(status)),
			zap.Error(err),
		)
	}
}

func (s *documentService) failAll(ctx context.Context, docs []*model.Document, cause error) {
	for _, doc := range docs {
		s.setStatus(ctx, doc, model.StatusFailed, 0, cause.Error())
	}
}

// baseName strips any client-side directories, Windows ones included.
func baseName(filename string) string {
	name := path.Base(strings.ReplaceAll(filename, "\\", "/"))
	if name == "." || name == "/" {
		return "upload"
	}
	return name
}

func nonEmpty(files []UploadFile) []UploadFile {
	out := files[:0:0]
	for _, f := range files {
		if len(f.Data) > 0 {
			out = append(out, f)
		}
	}
	return out
}

// List returns paginated documents without exposing repository types.
func (s *documentService) List(ctx context.Context, limit, offset int, status model.DocumentStatus) (*DocumentListResult, error) {
	if limit <= 0 {
		limit = 10
	}
	if offset < 0 {
		offset = 0
	}

	res, err := s.repo.List(ctx, repository.PageQuery{Limit: limit, Offset: offset, Status: status})
	if err != nil {
		return nil, err
	}
	return &DocumentListResult{Items: res.Items, Total: res.Total}, nil
}

// Get returns a document by ID.
func (s *documentService) Get(ctx context.Context, id string) (*model.Document, error) {
	if id == "" {
		return nil, ErrIDRequired
	}
	doc, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return doc, nil
}

func (s *documentService) Download(ctx context.Context, id string) (*Download, error) {
	doc, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	link, err := s.store.PresignGet(ctx, doc.StoragePath, DownloadURLExpiry)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("presign object: %w", err)
	}
	if u, err := url.Parse(link); err == nil && (u.Scheme == "http" || u.Scheme == "https") {
		return &Download{Document: doc, URL: link}, nil
	}

	body, info, err := s.store.Get(ctx, doc.StoragePath)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("open object: %w", err)
	}
	return &Download{Document: doc, Body: body, Info: info}, nil
}

// Delete drops the document's chunks first so answers stop citing it, then
// removes the stored object and finally the registry row.
func (s *documentService) Delete(ctx context.Context, id string) error {
	if id == "" {
		return ErrIDRequired
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrNotFound
		}
		return err
	}
	removed, err := s.index.DeleteDocument(ctx, id)
	if err != nil {
		return fmt.Errorf("delete from index: %w", err)
	}
	// Keep the row if storage fails so the object can still be found.
	if err := s.store.Delete(ctx, doc.StoragePath); err != nil {
		return fmt.Errorf("delete storage: %w", err)
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.log.Info("document deleted", zap.String("document_id", id), zap.Int("chunks", removed))
	return nil
}
