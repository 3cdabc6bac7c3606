// Package openai embeds text through an OpenAI-compatible embeddings
// endpoint. Pointing BaseURL at a local Ollama server with a model
// such as nomic-embed-text keeps the agent fully local.
package openai

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// Config configures the embedder.
type Config struct {
	BaseURL string
	APIKey  string
	Model   string

	// Dimensions is the expected vector size; responses with any
	// other size are rejected.
	Dimensions int
}

// Embedder calls the embeddings API.
type Embedder struct {
	client openai.Client
	model  string
	dims   int
}

// New creates the embedder.
func New(cfg Config) *Embedder {
	opts := []option.RequestOption{}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.APIKey != "" {
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	}
	return &Embedder{
		client: openai.NewClient(opts...),
		model:  cfg.Model,
		dims:   cfg.Dimensions,
	}
}

// Embed requests one embedding for the text.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := e.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Model: openai.EmbeddingModel(e.model),
		Input: openai.EmbeddingNewParamsInputUnion{
			OfString: openai.String(text),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("embeddings request: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("embeddings request: empty response")
	}

	raw := resp.Data[0].Embedding
	if len(raw) != e.dims {
		return nil, fmt.Errorf("embeddings request: got %d dimensions, want %d", len(raw), e.dims)
	}
	vec := make([]float32, len(raw))
	for i, v := range raw {
		vec[i] = float32(v)
	}
	return vec, nil
}

// Dimensions returns the configured embedding size.
func (e *Embedder) Dimensions() int { return e.dims }
