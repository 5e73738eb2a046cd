// Package ingest turns uploaded files into indexed chunks:
// parse, split, embed, then write to the vector index.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/schema"
	"github.com/tmc/langchaingo/textsplitter"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"docqa/internal/config"
	"docqa/internal/loader"
	"docqa/internal/logging"
	"docqa/internal/metrics"
	"docqa/internal/vectorstore"
)

// ErrNoDocuments is returned when none of the sources produced any text.
var ErrNoDocuments = errors.New("no documents could be loaded")

var tracer = otel.Tracer("docqa/ingest")

// Index is the write side of the vector store.
type Index interface {
	Add(ctx context.Context, chunks []vectorstore.Chunk) error
	Reset(ctx context.Context) error
}

// Source is one uploaded file.
type Source struct {
	DocumentID string
	Filename   string
	Data       []byte
}

// Outcome is the per-file result of a run. Err is set when the file was skipped.
type Outcome struct {
	DocumentID string
	Filename   string
	Chunks     int
	Err        error
}

// Report summarizes a run.
type Report struct {
	Outcomes []Outcome
	Chunks   int
}

// Indexed counts files that contributed at least one chunk.
func (r *Report) Indexed() int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Err == nil {
			n++
		}
	}
	return n
}

// Pipeline is safe for concurrent use; index writes are serialized.
type Pipeline struct {
	index     Index
	embedder  embeddings.Embedder
	splitter  textsplitter.TextSplitter
	pool      *ants.Pool
	batchSize int
	metrics   *metrics.Metrics
	log       *zap.Logger

	mu sync.Mutex
}

// Option configures a Pipeline.
type Option func(*Pipeline)

func WithLogger(log *zap.Logger) Option {
	return func(p *Pipeline) {
		if log != nil {
			p.log = log
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Pipeline) {
		if m != nil {
			p.metrics = m
		}
	}
}

// New builds a pipeline with a worker pool of cfg.Workers goroutines.
func New(index Index, embedder embeddings.Embedder, cfg config.IngestConfig, opts ...Option) (*Pipeline, error) {
	if index == nil || embedder == nil {
		return nil, errors.New("ingest: index and embedder are required")
	}
	if cfg.ChunkSize <= 0 || cfg.ChunkOverlap < 0 || cfg.ChunkOverlap >= cfg.ChunkSize {
		return nil, fmt.Errorf("ingest: invalid chunking size=%d overlap=%d", cfg.ChunkSize, cfg.ChunkOverlap)
	}
	workers := cfg.Workers
	if workers < 1 {
		workers = 1
	}
	batch := cfg.EmbedBatchSize
	if batch < 1 {
		batch = 1
	}

	pool, err := ants.NewPool(workers)
	if err != nil {
		return nil, fmt.Errorf("ingest: create worker pool: %w", err)
	}

	p := &Pipeline{
		index:    index,
		embedder: embedder,
		splitter: textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(cfg.ChunkSize),
			textsplitter.WithChunkOverlap(cfg.ChunkOverlap),
		),
		pool:      pool,
		batchSize: batch,
		metrics:   metrics.Nop(),
		log:       zap.NewNop(),
	}
	for _, o := range opts {
		o(p)
	}
	p.log = logging.Component(p.log, "ingest")
	return p, nil
}

// Release stops the worker pool. The pipeline must not be used afterwards.
func (p *Pipeline) Release() {
	p.pool.Release()
}

// Run indexes sources. Files that fail to parse are reported in the outcomes
// and skipped; embedding or index failures abort the whole run with nothing
// written. With overwrite the index is emptied before the new chunks go in.
func (p *Pipeline) Run(ctx context.Context, sources []Source, overwrite bool) (*Report, error) {
	ctx, span := tracer.Start(ctx, "ingest.Run")
	defer span.End()
	span.SetAttributes(attribute.Int("sources", len(sources)), attribute.Bool("overwrite", overwrite))

	start := time.Now()
	report, chunks, err := p.run(ctx, sources, overwrite)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}

	indexed := 0
	if err == nil {
		indexed = report.Indexed()
	}
	p.metrics.ObserveIngest(indexed, len(sources)-indexed, len(chunks), time.Since(start))
	return report, err
}

func (p *Pipeline) run(ctx context.Context, sources []Source, overwrite bool) (*Report, []vectorstore.Chunk, error) {
	report := &Report{Outcomes: make([]Outcome, len(sources))}
	loaded := p.load(ctx, sources)

	var chunks []vectorstore.Chunk
	for i, src := range sources {
		out := &report.Outcomes[i]
		out.DocumentID, out.Filename = src.DocumentID, src.Filename
		if loaded[i].err != nil {
			out.Err = loaded[i].err
			p.log.Warn("file skipped",
				zap.String("document_id", src.DocumentID),
				zap.String("filename", src.Filename),
				zap.Error(out.Err),
			)
			continue
		}
		split, err := p.split(src, loaded[i].docs)
		if err != nil {
			out.Err = err
			continue
		}
		out.Chunks = len(split)
		chunks = append(chunks, split...)
	}
	if err := ctx.Err(); err != nil {
		return report, nil, err
	}
	if len(chunks) == 0 {
		return report, nil, ErrNoDocuments
	}

	if err := p.embed(ctx, chunks); err != nil {
		return report, nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if overwrite {
		if err := p.index.Reset(ctx); err != nil {
			return report, nil, fmt.Errorf("reset index: %w", err)
		}
	}
	if err := p.index.Add(ctx, chunks); err != nil {
		return report, nil, fmt.Errorf("write index: %w", err)
	}

	report.Chunks = len(chunks)
	p.log.Info("ingest complete",
		zap.Int("files", len(sources)),
		zap.Int("indexed_files", report.Indexed()),
		zap.Int("chunks", len(chunks)),
		zap.Bool("overwrite", overwrite),
	)
	return report, chunks, nil
}

type loadResult struct {
	docs []schema.Document
	err  error
}

// load parses every source on the pool.
func (p *Pipeline) load(ctx context.Context, sources []Source) []loadResult {
	results := make([]loadResult, len(sources))
	var wg sync.WaitGroup
	for i, src := range sources {
		wg.Add(1)
		err := p.pool.Submit(func() {
			defer wg.Done()
			docs, err := loader.Load(ctx, src.Filename, src.Data)
			results[i] = loadResult{docs: docs, err: err}
		})
		if err != nil {
			wg.Done()
			results[i] = loadResult{err: fmt.Errorf("schedule load: %w", err)}
		}
	}
	wg.Wait()
	return results
}

// split chunks a loaded file. Chunk indexes run across the whole file.
func (p *Pipeline) split(src Source, docs []schema.Document) ([]vectorstore.Chunk, error) {
	parts, err := textsplitter.SplitDocuments(p.splitter, docs)
	if err != nil {
		return nil, fmt.Errorf("split %s: %w", src.Filename, err)
	}
	out := make([]vectorstore.Chunk, 0, len(parts))
	for _, part := range parts {
		if strings.TrimSpace(part.PageContent) == "" {
			continue
		}
		source, _ := part.Metadata[loader.MetaSource].(string)
		if source == "" {
			source = src.Filename
		}
		out = append(out, vectorstore.Chunk{
			DocumentID: src.DocumentID,
			Source:     source,
			Page:       pageOf(part.Metadata),
			Index:      len(out),
			Content:    part.PageContent,
		})
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("split %s: %w", src.Filename, loader.ErrEmptyContent)
	}
	return out, nil
}

func pageOf(meta map[string]any) int {
	for _, k := range []string{loader.MetaPage, loader.MetaSlide} {
		if n, ok := meta[k].(int); ok {
			return n
		}
	}
	return 0
}

// embed fills in chunk vectors, batchSize texts per request, batches in parallel.
func (p *Pipeline) embed(ctx context.Context, chunks []vectorstore.Chunk) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg       sync.WaitGroup
		errOnce  sync.Once
		firstErr error
	)
	fail := func(err error) {
		errOnce.Do(func() {
			firstErr = err
			cancel()
		})
	}

	for start := 0; start < len(chunks); start += p.batchSize {
		end := min(start+p.batchSize, len(chunks))
		batch := chunks[start:end]

		wg.Add(1)
		err := p.pool.Submit(func() {
			defer wg.Done()
			texts := make([]string, len(batch))
			for i, c := range batch {
				texts[i] = c.Content
			}
			vecs, err := p.embedder.EmbedDocuments(ctx, texts)
			if err != nil {
				fail(fmt.Errorf("embed chunks %d-%d: %w", start, end-1, err))
				return
			}
			if len(vecs) != len(batch) {
				fail(fmt.Errorf("embed chunks %d-%d: got %d vectors for %d texts", start, end-1, len(vecs), len(batch)))
				return
			}
			for i := range batch {
				batch[i].Vector = vecs[i]
			}
		})
		if err != nil {
			wg.Done()
			fail(fmt.Errorf("schedule embedding: %w", err))
			break
		}
	}
	wg.Wait()
	return firstErr
}
