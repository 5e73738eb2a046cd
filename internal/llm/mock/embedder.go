package mock

import (
	"context"
	"hash/fnv"
	"strings"
	"sync/atomic"
	"unicode"

	"github.com/tmc/langchaingo/embeddings"
)

// DefaultDimension is the vector size produced by NewEmbedder.
const DefaultDimension = 256

// Embedder is a deterministic embeddings.Embedder.
type Embedder struct {
	Dim int
	// Err, when set, is returned from every call.
	Err error

	calls atomic.Int64
}

var _ embeddings.Embedder = (*Embedder)(nil)

func NewEmbedder() *Embedder {
	return &Embedder{Dim: DefaultDimension}
}

func (e *Embedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	e.calls.Add(1)
	if e.Err != nil {
		return nil, e.Err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = e.vector(t)
	}
	return out, nil
}

func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	e.calls.Add(1)
	if e.Err != nil {
		return nil, e.Err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return e.vector(text), nil
}

// Calls counts EmbedDocuments and EmbedQuery invocations.
func (e *Embedder) Calls() int64 { return e.calls.Load() }

// vector hashes each lower-cased word into a bucket. Text without words gets
// a constant vector so it is never the zero vector.
func (e *Embedder) vector(text string) []float32 {
	dim := e.Dim
	if dim <= 0 {
		dim = DefaultDimension
	}
	v := make([]float32, dim)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	for _, w := range words {
		h := fnv.New32a()
		h.Write([]byte(w))
		v[h.Sum32()%uint32(dim)]++
	}
	if len(words) == 0 {
		v[0] = 1
	}
	return v
}
