package memory

import (
	"context"
	"fmt"
	"time"
)

// Kind classifies a memory item by origin.
type Kind string

const (
	KindUserQuery   Kind = "user_query"
	KindToolResult  Kind = "tool_result"
	KindFinalAnswer Kind = "final_answer"
	KindDocument    Kind = "document"
)

// Item is one immutable memory record. Items are only ever appended
// and retrieved, never mutated. The embedding always has the
// dimensionality the owning store was created with.
type Item struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	Embedding []float32 `json:"-"`
	Kind      Kind      `json:"kind"`
	CreatedAt time.Time `json:"created_at"`
	Tags      []string  `json:"tags,omitempty"`
}

// SearchResult pairs a retrieved item with its similarity score.
// Higher scores are better regardless of the underlying metric.
type SearchResult struct {
	Item  Item
	Score float32
}

// Filter narrows a retrieval. The zero value matches everything.
type Filter struct {
	Kind Kind
}

// Matches reports whether the item passes the filter.
func (f Filter) Matches(it Item) bool {
	return f.Kind == "" || it.Kind == f.Kind
}

// Store is the vector storage backend. Implementations must keep the
// i-th vector and the i-th metadata record referring to the same item
// at all times (positional correspondence), and must let concurrent
// searches proceed without ever observing a half-applied add.
type Store interface {
	// Add appends an item whose embedding is already set.
	Add(ctx context.Context, item Item) error

	// Search returns up to k items ordered by decreasing score, ties
	// broken by insertion order (earlier first). An empty store
	// returns an empty result, not an error.
	Search(ctx context.Context, embedding []float32, k int, filter Filter) ([]SearchResult, error)

	// Count returns the number of stored items.
	Count() int

	// Save persists index and metadata together, atomically.
	Save(ctx context.Context) error

	// Load restores persisted state, validating structural
	// consistency. A missing store is an empty store, not an error.
	Load(ctx context.Context) error

	// Close releases resources.
	Close() error
}

// Embedder converts text to a fixed-length vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)

	// Dimensions returns the embedding vector size.
	Dimensions() int
}

// EmbeddingError reports a failed or dimensionally wrong embedding.
// It is fatal to the single add/retrieve call it occurred in, never
// to the agent loop.
type EmbeddingError struct {
	Cause error
	Got   int // dimensions received; 0 when the provider failed outright
	Want  int
}

func (e *EmbeddingError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("embedding provider failed: %v", e.Cause)
	}
	return fmt.Sprintf("embedding dimension mismatch: got %d, want %d", e.Got, e.Want)
}

func (e *EmbeddingError) Unwrap() error { return e.Cause }
