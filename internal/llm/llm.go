// Package llm builds the chat model and embedder used for answering and indexing.
package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/googleai"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"docqa/internal/config"
)

// Provider pairs the model that writes answers with the embedder that indexes chunks.
type Provider struct {
	Model    llms.Model
	Embedder embeddings.Embedder
}

// embedBatchSize bounds texts per embedding request; the ingest pipeline batches above this.
const embedBatchSize = 100

// New builds a Provider for cfg.Provider.
func New(ctx context.Context, cfg config.LLMConfig) (*Provider, error) {
	switch cfg.Provider {
	case config.ProviderGoogleAI, "":
		return newGoogleAI(ctx, cfg)
	case config.ProviderOpenAI:
		return newOpenAI(cfg)
	case config.ProviderOllama:
		return newOllama(cfg)
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
}

func newGoogleAI(ctx context.Context, cfg config.LLMConfig) (*Provider, error) {
	if cfg.GeminiAPIKey == "" {
		return nil, errors.New("GEMINI_API_KEY is required for the googleai provider")
	}
	client, err := googleai.New(ctx,
		googleai.WithAPIKey(cfg.GeminiAPIKey),
		googleai.WithDefaultModel(cfg.Model),
		googleai.WithDefaultEmbeddingModel(cfg.EmbeddingModel),
	)
	if err != nil {
		return nil, fmt.Errorf("create googleai client: %w", err)
	}
	return wrap(client, client)
}

func newOpenAI(cfg config.LLMConfig) (*Provider, error) {
	token := cfg.OpenAIAPIKey
	if token == "" {
		if cfg.BaseURL == "" {
			return nil, errors.New("OPENAI_API_KEY is required unless LLM_BASE_URL points at a local server")
		}
		// Local OpenAI-compatible servers accept any token.
		token = "none"
	}
	opts := []openai.Option{
		openai.WithToken(token),
		openai.WithModel(cfg.Model),
		openai.WithEmbeddingModel(cfg.EmbeddingModel),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}
	client, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("create openai client: %w", err)
	}
	return wrap(client, client)
}

// newOllama uses separate clients because ollama selects the embedding model by client model.
func newOllama(cfg config.LLMConfig) (*Provider, error) {
	opts := func(model string) []ollama.Option {
		o := []ollama.Option{ollama.WithModel(model)}
		if cfg.BaseURL != "" {
			o = append(o, ollama.WithServerURL(cfg.BaseURL))
		}
		return o
	}
	chat, err := ollama.New(opts(cfg.Model)...)
	if err != nil {
		return nil, fmt.Errorf("create ollama client: %w", err)
	}
	embed, err := ollama.New(opts(cfg.EmbeddingModel)...)
	if err != nil {
		return nil, fmt.Errorf("create ollama embedding client: %w", err)
	}
	return wrap(chat, embed)
}

func wrap(model llms.Model, client embeddings.EmbedderClient) (*Provider, error) {
	embedder, err := embeddings.NewEmbedder(client,
		embeddings.WithStripNewLines(true),
		embeddings.WithBatchSize(embedBatchSize),
	)
	if err != nil {
		return nil, fmt.Errorf("create embedder: %w", err)
	}
	return &Provider{Model: model, Embedder: embedder}, nil
}
