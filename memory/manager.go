package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Manager is the memory store the rest of the agent talks to. It
// embeds text on the way in and out, enforces the fixed embedding
// dimension, and serializes writes so the positional invariant of the
// underlying store survives concurrent sessions.
type Manager struct {
	store     Store
	embedder  Embedder
	dim       int
	saveOnAdd bool
	log       zerolog.Logger

	// mu serializes Add calls across sessions. Reads go straight to
	// the store, which guarantees snapshot consistency on its own.
	mu sync.Mutex
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithSaveOnAdd persists the store after every successful add instead
// of only at session teardown.
func WithSaveOnAdd() ManagerOption {
	return func(m *Manager) { m.saveOnAdd = true }
}

// NewManager binds an embedder to a store. The embedder's dimension
// becomes the store's fixed dimension D.
func NewManager(store Store, embedder Embedder, log zerolog.Logger, opts ...ManagerOption) *Manager {
	m := &Manager{
		store:    store,
		embedder: embedder,
		dim:      embedder.Dimensions(),
		log:      log.With().Str("component", "memory").Logger(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Dimensions returns the fixed embedding dimension D.
func (m *Manager) Dimensions() int { return m.dim }

// Count returns the number of stored items.
func (m *Manager) Count() int { return m.store.Count() }

// Add embeds text, assigns an id, and appends the item. Nothing is
// persisted when the embedding fails or has the wrong dimension; the
// add is all-or-nothing.
func (m *Manager) Add(ctx context.Context, text string, kind Kind, tags []string) (Item, error) {
	vec, err := m.embed(ctx, text)
	if err != nil {
		return Item{}, err
	}

	item := Item{
		ID:        uuid.New().String(),
		Text:      text,
		Embedding: vec,
		Kind:      kind,
		CreatedAt: time.Now().UTC(),
		Tags:      tags,
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.store.Add(ctx, item); err != nil {
		return Item{}, err
	}
	m.log.Debug().Str("kind", string(kind)).Str("id", item.ID).Msg("stored memory item")

	if m.saveOnAdd {
		if err := m.store.Save(ctx); err != nil {
			m.log.Error().Err(err).Msg("save after add failed")
		}
	}
	return item, nil
}

// Retrieve embeds the query and returns up to k items ordered by
// decreasing similarity, ties broken by insertion order. An empty
// store yields an empty result.
func (m *Manager) Retrieve(ctx context.Context, query string, k int, filter Filter) ([]SearchResult, error) {
	if m.store.Count() == 0 || k <= 0 {
		return nil, nil
	}

	vec, err := m.embed(ctx, query)
	if err != nil {
		return nil, err
	}
	results, err := m.store.Search(ctx, vec, k, filter)
	if err != nil {
		return nil, err
	}
	m.log.Debug().Int("k", k).Int("hits", len(results)).Msg("retrieved memories")
	return results, nil
}

// Save persists the store.
func (m *Manager) Save(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.store.Save(ctx)
}

// Load restores the store from its persisted state.
func (m *Manager) Load(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.store.Load(ctx)
}

// Close releases store resources.
func (m *Manager) Close() error { return m.store.Close() }

func (m *Manager) embed(ctx context.Context, text string) ([]float32, error) {
	vec, err := m.embedder.Embed(ctx, text)
	if err != nil {
		return nil, &EmbeddingError{Cause: err, Want: m.dim}
	}
	if len(vec) != m.dim {
		return nil, &EmbeddingError{Got: len(vec), Want: m.dim}
	}
	return vec, nil
}
