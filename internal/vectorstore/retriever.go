package vectorstore

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/schema"
)

// Metadata keys set on retrieved documents.
const (
	MetaSource     = "source"
	MetaDocumentID = "document_id"
	MetaPage       = "page"
	MetaChunk      = "chunk"
)

// Searcher is the read side of Store.
type Searcher interface {
	Search(ctx context.Context, vector []float32, k int) ([]Result, error)
}

// Retriever embeds a query and returns the k nearest chunks as documents.
type Retriever struct {
	store    Searcher
	embedder embeddings.Embedder
	k        int
}

var _ schema.Retriever = (*Retriever)(nil)

func NewRetriever(store Searcher, embedder embeddings.Embedder, k int) *Retriever {
	return &Retriever{store: store, embedder: embedder, k: k}
}

func (r *Retriever) GetRelevantDocuments(ctx context.Context, query string) ([]schema.Document, error) {
	vec, err := r.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	hits, err := r.store.Search(ctx, vec, r.k)
	if err != nil {
		return nil, fmt.Errorf("search index: %w", err)
	}

	docs := make([]schema.Document, len(hits))
	for i, h := range hits {
		meta := map[string]any{
			MetaSource:     h.Source,
			MetaDocumentID: h.DocumentID,
			MetaChunk:      h.Index,
		}
		if h.Page > 0 {
			meta[MetaPage] = h.Page
		}
		docs[i] = schema.Document{PageContent: h.Content, Metadata: meta, Score: h.Score}
	}
	return docs, nil
}
