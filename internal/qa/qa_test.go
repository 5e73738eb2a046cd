package qa

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docqa/internal/llm/mock"
	"docqa/internal/metrics"
	"docqa/internal/model"
	"docqa/internal/vectorstore"
)

type fixture struct {
	store *vectorstore.Store
	emb   *mock.Embedder
	llm   *mock.Model
}

func newFixture(t *testing.T, texts map[string]string) *fixture {
	t.Helper()
	store, err := vectorstore.Open(vectorstore.Options{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	f := &fixture{store: store, emb: mock.NewEmbedder(), llm: mock.NewModel()}
	ctx := context.Background()
	for source, text := range texts {
		vecs, err := f.emb.EmbedDocuments(ctx, []string{text})
		require.NoError(t, err)
		require.NoError(t, store.Add(ctx, []vectorstore.Chunk{{
			DocumentID: "id-" + source, Source: source, Page: 1, Content: text, Vector: vecs[0],
		}}))
	}
	return f
}

func (f *fixture) answerer(k int, opts ...Option) *Answerer {
	return NewAnswerer(f.llm, vectorstore.NewRetriever(f.store, f.emb, k), f.store, opts...)
}

type memCache struct {
	entries map[string]*model.Answer
	getErr  error
	sets    int
}

func newMemCache() *memCache { return &memCache{entries: map[string]*model.Answer{}} }

func (c *memCache) key(gen uint64, q string) string { return fmt.Sprintf("%d|%s", gen, q) }

func (c *memCache) Get(_ context.Context, gen uint64, q string) (*model.Answer, bool, error) {
	if c.getErr != nil {
		return nil, false, c.getErr
	}
	a, ok := c.entries[c.key(gen, q)]
	return a, ok, nil
}

func (c *memCache) Set(_ context.Context, gen uint64, q string, a *model.Answer) error {
	c.sets++
	c.entries[c.key(gen, q)] = a
	return nil
}

func TestAsk_GroundsAnswerInRetrievedChunks(t *testing.T) {
	f := newFixture(t, map[string]string{
		"cats.txt":   "cats purr when they are happy",
		"stocks.txt": "stock prices rose sharply in march",
	})
	a := f.answerer(1)

	ans, err := a.Ask(context.Background(), "  why do cats purr  ")
	require.NoError(t, err)
	assert.Equal(t, []string{"cats.txt"}, ans.Sources)
	// The echo model returns the prompt, which carries the retrieved context.
	assert.Contains(t, ans.Response, "cats purr when they are happy")
	assert.NotContains(t, ans.Response, "stock prices")

	prompts := f.llm.Prompts()
	require.Len(t, prompts, 1)
	assert.Contains(t, prompts[0], "why do cats purr")
}

func TestAsk_SourcesFollowRankOrder(t *testing.T) {
	f := newFixture(t, map[string]string{
		"a.txt": "alpha beta gamma",
		"b.txt": "alpha beta",
		"c.txt": "unrelated words only",
	})
	f.llm.Reply = "ok"

	ans, err := f.answerer(15).Ask(context.Background(), "alpha beta")
	require.NoError(t, err)
	require.Len(t, ans.Sources, 3)
	assert.Equal(t, "b.txt", ans.Sources[0])
	assert.Equal(t, "c.txt", ans.Sources[2])
	assert.Equal(t, "ok", ans.Response)
}

func TestAsk_EmptyQuestion(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.answerer(15).Ask(context.Background(), " \n\t")
	assert.ErrorIs(t, err, ErrEmptyQuestion)
	assert.Empty(t, f.llm.Prompts())
}

func TestAsk_EmptyIndexSkipsModel(t *testing.T) {
	f := newFixture(t, nil)

	ans, err := f.answerer(15).Ask(context.Background(), "anything?")
	require.NoError(t, err)
	assert.Equal(t, NoDocumentsAnswer, ans.Response)
	assert.Empty(t, ans.Sources)
	assert.NotNil(t, ans.Sources)
	assert.Empty(t, f.llm.Prompts())
	assert.Zero(t, f.emb.Calls())
}

func TestAsk_ModelError(t *testing.T) {
	f := newFixture(t, map[string]string{"a.txt": "content"})
	f.llm.Err = errors.New("rate limited")

	_, err := f.answerer(15).Ask(context.Background(), "question")
	assert.ErrorContains(t, err, "rate limited")
}

func TestAsk_UsesCachePerGeneration(t *testing.T) {
	f := newFixture(t, map[string]string{"a.txt": "the sky is blue"})
	f.llm.Reply = "blue"
	cache := newMemCache()
	m := metrics.Nop()
	a := f.answerer(15, WithCache(cache), WithMetrics(m))
	ctx := context.Background()

	first, err := a.Ask(ctx, "what colour is the sky")
	require.NoError(t, err)
	second, err := a.Ask(ctx, "what colour is the sky")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Len(t, f.llm.Prompts(), 1)
	assert.Equal(t, 1, cache.sets)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.QueryCache.WithLabelValues(metrics.CacheHit)))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.QueryCache.WithLabelValues(metrics.CacheMiss)))

	// A new generation misses the old entry.
	vecs, err := f.emb.EmbedDocuments(ctx, []string{"grass is green"})
	require.NoError(t, err)
	require.NoError(t, f.store.Add(ctx, []vectorstore.Chunk{{DocumentID: "g", Source: "g.txt", Content: "grass is green", Vector: vecs[0]}}))

	_, err = a.Ask(ctx, "what colour is the sky")
	require.NoError(t, err)
	assert.Len(t, f.llm.Prompts(), 2)
}

func TestAsk_CacheErrorFallsThrough(t *testing.T) {
	f := newFixture(t, map[string]string{"a.txt": "text"})
	f.llm.Reply = "fine"
	cache := newMemCache()
	cache.getErr = errors.New("connection refused")

	ans, err := f.answerer(15, WithCache(cache)).Ask(context.Background(), "q")
	require.NoError(t, err)
	assert.Equal(t, "fine", ans.Response)
}

func TestAskStream_DeliversTokensAndCitations(t *testing.T) {
	f := newFixture(t, map[string]string{"notes.txt": "meeting moved to friday"})
	f.llm.Reply = "The meeting is on friday."

	var sb strings.Builder
	var chunks int
	ans, cites, err := f.answerer(15).AskStream(context.Background(), "when is the meeting", func(_ context.Context, b []byte) error {
		chunks++
		sb.Write(b)
		return nil
	})
	require.NoError(t, err)
	assert.Greater(t, chunks, 1)
	assert.Equal(t, "The meeting is on friday.", sb.String())
	assert.Equal(t, "The meeting is on friday.", ans.Response)

	require.Len(t, cites, 1)
	assert.Equal(t, "notes.txt", cites[0].Source)
	assert.Equal(t, "id-notes.txt", cites[0].DocumentID)
	assert.Equal(t, 1, cites[0].Page)
	assert.Equal(t, "meeting moved to friday", cites[0].Snippet)
	assert.Greater(t, cites[0].Score, float32(0))
}

func TestAskStream_CallbackErrorAborts(t *testing.T) {
	f := newFixture(t, map[string]string{"a.txt": "text"})
	f.llm.Reply = "one two three"
	stop := errors.New("client went away")

	_, _, err := f.answerer(15).AskStream(context.Background(), "q", func(context.Context, []byte) error { return stop })
	assert.ErrorIs(t, err, stop)
}

func TestAskStream_RequiresCallback(t *testing.T) {
	f := newFixture(t, nil)
	_, _, err := f.answerer(15).AskStream(context.Background(), "q", nil)
	assert.Error(t, err)
}

func TestCitation_TruncatesSnippet(t *testing.T) {
	f := newFixture(t, map[string]string{"long.txt": strings.Repeat("é", 500)})
	f.llm.Reply = "x"

	_, cites, err := f.answerer(15).AskStream(context.Background(), "é", func(context.Context, []byte) error { return nil })
	require.NoError(t, err)
	require.Len(t, cites, 1)
	assert.Equal(t, snippetRunes+1, len([]rune(cites[0].Snippet)))
}
