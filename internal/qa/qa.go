// Package qa answers questions over the vector index with a retrieval QA chain.
package qa

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/tmc/langchaingo/chains"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/schema"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"docqa/internal/logging"
	"docqa/internal/metrics"
	"docqa/internal/model"
	"docqa/internal/vectorstore"
)

// NoDocumentsAnswer is returned without calling the model while the index is empty.
const NoDocumentsAnswer = "No documents have been indexed yet. Upload documents before asking questions."

const snippetRunes = 200

// ErrEmptyQuestion is returned for blank questions.
var ErrEmptyQuestion = errors.New("question is required")

var tracer = otel.Tracer("docqa/qa")

// IndexState is the read-only view of the index the answerer needs.
type IndexState interface {
	Count() int
	Generation() uint64
}

// TokenFunc receives streamed answer text.
type TokenFunc func(ctx context.Context, chunk []byte) error

// Answerer runs the retrieval QA chain.
type Answerer struct {
	model     llms.Model
	retriever schema.Retriever
	index     IndexState
	cache     Cache
	metrics   *metrics.Metrics
	log       *zap.Logger
}

type Option func(*Answerer)

// WithCache enables answer caching.
func WithCache(c Cache) Option { return func(a *Answerer) { a.cache = c } }

func WithMetrics(m *metrics.Metrics) Option {
	return func(a *Answerer) {
		if m != nil {
			a.metrics = m
		}
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(a *Answerer) {
		if l != nil {
			a.log = l
		}
	}
}

func NewAnswerer(model llms.Model, retriever schema.Retriever, index IndexState, opts ...Option) *Answerer {
	a := &Answerer{
		model:     model,
		retriever: retriever,
		index:     index,
		metrics:   metrics.Nop(),
		log:       zap.NewNop(),
	}
	for _, o := range opts {
		o(a)
	}
	a.log = logging.Component(a.log, "qa")
	return a
}

// Ask answers question from the indexed documents.
func (a *Answerer) Ask(ctx context.Context, question string) (*model.Answer, error) {
	ans, _, err := a.answer(ctx, question, nil)
	return ans, err
}

// AskStream is Ask with the answer text delivered to onToken as it is
// generated. A cached answer arrives as a single chunk. The citations
// describe the retrieved chunks and are nil for cached answers.
func (a *Answerer) AskStream(ctx context.Context, question string, onToken TokenFunc) (*model.Answer, []model.Citation, error) {
	if onToken == nil {
		return nil, nil, errors.New("qa: onToken is required")
	}
	return a.answer(ctx, question, onToken)
}

func (a *Answerer) answer(ctx context.Context, question string, onToken TokenFunc) (*model.Answer, []model.Citation, error) {
	q := strings.TrimSpace(question)
	if q == "" {
		return nil, nil, ErrEmptyQuestion
	}

	ctx, span := tracer.Start(ctx, "qa.Ask")
	defer span.End()
	span.SetAttributes(attribute.Bool("stream", onToken != nil))
	start := time.Now()

	if a.index.Count() == 0 {
		ans := &model.Answer{Response: NoDocumentsAnswer, Sources: []string{}}
		if onToken != nil {
			if err := onToken(ctx, []byte(ans.Response)); err != nil {
				return nil, nil, err
			}
		}
		return ans, nil, nil
	}

	gen := a.index.Generation()
	if ans := a.lookup(ctx, gen, q); ans != nil {
		span.SetAttributes(attribute.Bool("cache_hit", true))
		if onToken != nil {
			if err := onToken(ctx, []byte(ans.Response)); err != nil {
				return nil, nil, err
			}
		}
		a.metrics.ObserveQuery(time.Since(start))
		return ans, nil, nil
	}

	chain := chains.NewRetrievalQAFromLLM(a.model, a.retriever)
	chain.ReturnSourceDocuments = true
	var opts []chains.ChainCallOption
	if onToken != nil {
		opts = append(opts, chains.WithStreamingFunc(onToken))
	}

	out, err := chains.Call(ctx, chain, map[string]any{"query": q}, opts...)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, nil, fmt.Errorf("retrieval qa: %w", err)
	}

	text, _ := out["text"].(string)
	docs, _ := out["source_documents"].([]schema.Document)
	ans := &model.Answer{Response: strings.TrimSpace(text), Sources: make([]string, 0, len(docs))}
	citations := make([]model.Citation, 0, len(docs))
	for _, d := range docs {
		c := citation(d)
		ans.Sources = append(ans.Sources, c.Source)
		citations = append(citations, c)
	}
	span.SetAttributes(attribute.Int("sources", len(docs)))

	if a.cache != nil {
		if err := a.cache.Set(ctx, gen, q, ans); err != nil {
			a.log.Warn("answer not cached", zap.Error(err))
		}
	}
	took := time.Since(start)
	a.metrics.ObserveQuery(took)
	a.log.Info("question answered",
		zap.Int("sources", len(docs)),
		zap.Duration("latency_ms", took),
	)
	return ans, citations, nil
}

// lookup returns a cached answer, or nil. Cache failures count as misses.
func (a *Answerer) lookup(ctx context.Context, gen uint64, q string) *model.Answer {
	if a.cache == nil {
		return nil
	}
	ans, ok, err := a.cache.Get(ctx, gen, q)
	if err != nil {
		a.log.Warn("answer cache unavailable", zap.Error(err))
	}
	a.metrics.ObserveCache(ok)
	if !ok {
		return nil
	}
	return ans
}

func citation(d schema.Document) model.Citation {
	c := model.Citation{Score: d.Score}
	c.Source, _ = d.Metadata[vectorstore.MetaSource].(string)
	c.DocumentID, _ = d.Metadata[vectorstore.MetaDocumentID].(string)
	c.Page, _ = d.Metadata[vectorstore.MetaPage].(int)

	snippet := strings.TrimSpace(d.PageContent)
	if utf8.RuneCountInString(snippet) > snippetRunes {
		snippet = string([]rune(snippet)[:snippetRunes]) + "…"
	}
	c.Snippet = snippet
	return c
}
