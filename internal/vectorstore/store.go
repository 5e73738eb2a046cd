// Package vectorstore is the persistent embedding index. Chunks are kept in a
// badger database and mirrored in memory for exact cosine search.
package vectorstore

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"slices"
	"strings"
	"sync"

	"github.com/bytedance/sonic"
	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"docqa/internal/logging"
)

const (
	chunkPrefix   = "chunk/"
	keyDimension  = "meta/dimension"
	keyGeneration = "meta/generation"
)

var (
	// ErrDimensionMismatch is returned when a vector's length differs from the index dimension.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
	// ErrZeroVector is returned for vectors with no magnitude, which have no direction to compare.
	ErrZeroVector = errors.New("zero vector")
	// ErrInvalidChunk is returned for chunks missing a document ID or vector.
	ErrInvalidChunk = errors.New("invalid chunk")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("vector store closed")
)

var tracer = otel.Tracer("docqa/vectorstore")

// Chunk is one embedded piece of a document.
type Chunk struct {
	ID         string    `json:"id"`
	DocumentID string    `json:"document_id"`
	Source     string    `json:"source"`
	Page       int       `json:"page,omitempty"`
	Index      int       `json:"index"`
	Content    string    `json:"content"`
	Vector     []float32 `json:"vector"`
}

// Result is a search hit. Score is the cosine similarity to the query.
type Result struct {
	Chunk
	Score float32
}

type record struct {
	Seq uint64 `json:"seq"`
	Chunk
}

// Options configures Open.
type Options struct {
	// Path is the badger directory. Ignored when InMemory is set.
	Path     string
	InMemory bool
	Logger   *zap.Logger
}

// Store is safe for concurrent use: searches share a read lock, mutations take
// the write lock, so a search never observes a half-applied upload.
type Store struct {
	mu      sync.RWMutex
	db      *badger.DB
	log     *zap.Logger
	records []*record // insertion order
	dim     int
	gen     uint64
	nextSeq uint64
	closed  bool
}

// Open opens (or creates) the index and loads every chunk into memory.
func Open(opts Options) (*Store, error) {
	log := logging.Component(opts.Logger, "vectorstore")

	var bopts badger.Options
	if opts.InMemory {
		bopts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if opts.Path == "" {
			return nil, errors.New("index path is required")
		}
		if err := os.MkdirAll(opts.Path, 0o755); err != nil {
			return nil, fmt.Errorf("create index directory: %w", err)
		}
		bopts = badger.DefaultOptions(opts.Path)
	}
	bopts.Logger = &badgerLogger{log: log.Named("badger")}
	bopts.Compression = options.None

	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("open index: %w", err)
	}

	s := &Store{db: db, log: log}
	if err := s.load(); err != nil {
		_ = db.Close()
		return nil, err
	}
	log.Info("index loaded",
		zap.Int("chunks", len(s.records)),
		zap.Int("dimension", s.dim),
		zap.Uint64("generation", s.gen),
	)
	return s, nil
}

func (s *Store) load() error {
	return s.db.View(func(tx *badger.Txn) error {
		gen, err := getUint64(tx, keyGeneration)
		if err != nil {
			return err
		}
		dim, err := getUint64(tx, keyDimension)
		if err != nil {
			return err
		}
		s.gen, s.dim = gen, int(dim)

		it := tx.NewIterator(badger.IteratorOptions{Prefix: []byte(chunkPrefix), PrefetchValues: true, PrefetchSize: 100})
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			var rec record
			err := it.Item().Value(func(val []byte) error {
				return sonic.Unmarshal(val, &rec)
			})
			if err != nil {
				return fmt.Errorf("decode %s: %w", it.Item().Key(), err)
			}
			s.records = append(s.records, &rec)
			if rec.Seq >= s.nextSeq {
				s.nextSeq = rec.Seq + 1
			}
		}
		slices.SortFunc(s.records, func(a, b *record) int {
			switch {
			case a.Seq < b.Seq:
				return -1
			case a.Seq > b.Seq:
				return 1
			}
			return 0
		})
		if s.dim == 0 && len(s.records) > 0 {
			s.dim = len(s.records[0].Vector)
		}
		return nil
	})
}

func getUint64(tx *badger.Txn, key string) (uint64, error) {
	item, err := tx.Get([]byte(key))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read %s: %w", key, err)
	}
	var v uint64
	err = item.Value(func(val []byte) error {
		if len(val) != 8 {
			return fmt.Errorf("read %s: corrupt value", key)
		}
		v = binary.BigEndian.Uint64(val)
		return nil
	})
	return v, err
}

func uint64Bytes(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}

func chunkKey(docID string, seq uint64) []byte {
	return []byte(fmt.Sprintf("%s%s/%020d", chunkPrefix, docID, seq))
}

// normalize returns v scaled to unit length, or ErrZeroVector.
func normalize(v []float32) ([]float32, error) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 || math.IsNaN(sum) || math.IsInf(sum, 0) {
		return nil, ErrZeroVector
	}
	inv := 1 / math.Sqrt(sum)
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) * inv)
	}
	return out, nil
}

// Add validates and persists chunks. Either every chunk is accepted or none
// are. The first insert into an empty index fixes its dimension.
func (s *Store) Add(ctx context.Context, chunks []Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	dim := s.dim
	if dim == 0 {
		dim = len(chunks[0].Vector)
	}
	recs := make([]*record, 0, len(chunks))
	seq := s.nextSeq
	for i, c := range chunks {
		if c.DocumentID == "" || strings.Contains(c.DocumentID, "/") || len(c.Vector) == 0 {
			return fmt.Errorf("chunk %d: %w", i, ErrInvalidChunk)
		}
		if len(c.Vector) != dim {
			return fmt.Errorf("chunk %d has %d dimensions, index has %d: %w", i, len(c.Vector), dim, ErrDimensionMismatch)
		}
		v, err := normalize(c.Vector)
		if err != nil {
			return fmt.Errorf("chunk %d: %w", i, err)
		}
		c.Vector = v
		if c.ID == "" {
			c.ID = fmt.Sprintf("%s/%d", c.DocumentID, c.Index)
		}
		recs = append(recs, &record{Seq: seq, Chunk: c})
		seq++
	}

	gen := s.gen + 1
	wb := s.db.NewWriteBatch()
	defer wb.Cancel()
	for _, r := range recs {
		val, err := sonic.Marshal(r)
		if err != nil {
			return fmt.Errorf("encode chunk %s: %w", r.ID, err)
		}
		if err := wb.Set(chunkKey(r.DocumentID, r.Seq), val); err != nil {
			return fmt.Errorf("write chunk %s: %w", r.ID, err)
		}
	}
	if err := wb.Set([]byte(keyDimension), uint64Bytes(uint64(dim))); err != nil {
		return fmt.Errorf("write dimension: %w", err)
	}
	if err := wb.Set([]byte(keyGeneration), uint64Bytes(gen)); err != nil {
		return fmt.Errorf("write generation: %w", err)
	}
	if err := wb.Flush(); err != nil {
		return fmt.Errorf("commit chunks: %w", err)
	}

	s.records = append(s.records, recs...)
	s.dim = dim
	s.gen = gen
	s.nextSeq = seq
	s.log.Debug("chunks added", zap.Int("chunks", len(recs)), zap.Uint64("generation", gen))
	return nil
}

// Search returns the k chunks most similar to vector, best first. Equal
// scores keep insertion order.
func (s *Store) Search(ctx context.Context, vector []float32, k int) ([]Result, error) {
	ctx, span := tracer.Start(ctx, "vectorstore.Search")
	defer span.End()
	span.SetAttributes(attribute.Int("k", k))

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if k <= 0 {
		return nil, nil
	}
	q, err := normalize(vector)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	if len(s.records) == 0 {
		return nil, nil
	}
	if len(q) != s.dim {
		return nil, fmt.Errorf("query has %d dimensions, index has %d: %w", len(q), s.dim, ErrDimensionMismatch)
	}

	results := make([]Result, len(s.records))
	for i, r := range s.records {
		results[i] = Result{Chunk: r.Chunk, Score: dot(q, r.Vector)}
	}
	slices.SortStableFunc(results, func(a, b Result) int {
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		}
		return 0
	})
	if len(results) > k {
		results = results[:k]
	}
	span.SetAttributes(attribute.Int("hits", len(results)))
	return results, nil
}

func dot(a, b []float32) float32 {
	var sum float32
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

// DeleteDocument removes every chunk of a document and returns how many were
// removed. Removing the last chunk clears the dimension like Reset.
func (s *Store) DeleteDocument(ctx context.Context, documentID string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, ErrClosed
	}

	keep := make([]*record, 0, len(s.records))
	var drop []*record
	for _, r := range s.records {
		if r.DocumentID == documentID {
			drop = append(drop, r)
		} else {
			keep = append(keep, r)
		}
	}
	if len(drop) == 0 {
		return 0, nil
	}
	if err := s.rewrite(drop, len(keep) == 0); err != nil {
		return 0, err
	}
	s.records = keep
	if len(keep) == 0 {
		s.dim = 0
	}
	return len(drop), nil
}

// Reset empties the index and clears its dimension. The generation keeps increasing.
func (s *Store) Reset(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if err := s.rewrite(s.records, true); err != nil {
		return err
	}
	s.records = nil
	s.dim = 0
	s.log.Info("index reset", zap.Uint64("generation", s.gen))
	return nil
}

// rewrite deletes drop from disk and bumps the generation. Callers hold mu.
func (s *Store) rewrite(drop []*record, clearDim bool) error {
	gen := s.gen + 1
	wb := s.db.NewWriteBatch()
	defer wb.Cancel()
	for _, r := range drop {
		if err := wb.Delete(chunkKey(r.DocumentID, r.Seq)); err != nil {
			return fmt.Errorf("delete chunk %s: %w", r.ID, err)
		}
	}
	if clearDim {
		if err := wb.Delete([]byte(keyDimension)); err != nil {
			return fmt.Errorf("clear dimension: %w", err)
		}
	}
	if err := wb.Set([]byte(keyGeneration), uint64Bytes(gen)); err != nil {
		return fmt.Errorf("write generation: %w", err)
	}
	if err := wb.Flush(); err != nil {
		return fmt.Errorf("commit delete: %w", err)
	}
	s.gen = gen
	return nil
}

// Count returns the number of stored chunks.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Dimension returns the index dimension, or 0 while the index is empty.
func (s *Store) Dimension() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dim
}

// Generation increases on every successful mutation and survives restarts.
func (s *Store) Generation() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.gen
}

// Close flushes and closes the underlying database. It is safe to call twice.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}
