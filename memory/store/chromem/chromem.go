// Package chromem backs the memory store with chromem-go, a pure Go
// embedded vector database. Unlike the flat store, persistence is
// handled by chromem itself: every add is written through, so Save
// and Load are no-ops and there is no separate sidecar to diverge.
package chromem

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	chromem "github.com/philippgille/chromem-go"
	"github.com/rs/zerolog"

	"github.com/seekerworks/searchagent/memory"
)

const collectionName = "memories"

// Config configures a chromem store.
type Config struct {
	// Dir is the persistence directory. Empty means in-memory only.
	Dir string

	Logger zerolog.Logger
}

// Store wraps a chromem collection as a memory.Store.
type Store struct {
	db  *chromem.DB
	col *chromem.Collection
	log zerolog.Logger

	// seq preserves insertion order for tie-breaking; chromem sorts
	// by similarity only.
	mu  sync.Mutex
	seq int
}

// New opens (or creates) a chromem-backed store.
func New(cfg Config) (*Store, error) {
	var (
		db  *chromem.DB
		err error
	)
	if cfg.Dir != "" {
		db, err = chromem.NewPersistentDB(cfg.Dir, false)
		if err != nil {
			return nil, fmt.Errorf("chromem: open persistent db: %w", err)
		}
	} else {
		db = chromem.NewDB()
	}

	// Embeddings are always provided by the caller, so no embedding
	// func is registered on the collection.
	col, err := db.GetOrCreateCollection(collectionName, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("chromem: create collection: %w", err)
	}

	s := &Store{
		db:  db,
		col: col,
		log: cfg.Logger.With().Str("component", "chromemstore").Logger(),
	}
	s.seq = col.Count()
	return s, nil
}

// Add stores the item as a chromem document.
func (s *Store) Add(ctx context.Context, item memory.Item) error {
	s.mu.Lock()
	seq := s.seq
	s.seq++
	s.mu.Unlock()

	doc := chromem.Document{
		ID:        item.ID,
		Content:   item.Text,
		Embedding: item.Embedding,
		Metadata: map[string]string{
			"kind":       string(item.Kind),
			"created_at": item.CreatedAt.Format(time.RFC3339Nano),
			"tags":       strings.Join(item.Tags, ","),
			"seq":        strconv.Itoa(seq),
		},
	}
	if err := s.col.AddDocument(ctx, doc); err != nil {
		return fmt.Errorf("chromem: add document: %w", err)
	}
	return nil
}

// Count returns the number of stored items.
func (s *Store) Count() int { return s.col.Count() }

// Search queries by embedding, ordering by similarity with insertion
// order as tie-break.
func (s *Store) Search(ctx context.Context, embedding []float32, k int, filter memory.Filter) ([]memory.SearchResult, error) {
	var where map[string]string
	if filter.Kind != "" {
		where = map[string]string{"kind": string(filter.Kind)}
	}

	// chromem rejects nResults larger than the matching document
	// count, and the matching count under a where-clause is not
	// exposed. Walk the limit down until the query succeeds.
	var results []chromem.Result
	for limit := min(k, s.col.Count()); limit >= 1; limit-- {
		var err error
		results, err = s.col.QueryEmbedding(ctx, embedding, limit, where, nil)
		if err == nil {
			break
		}
		if !isTooFewDocsError(err) {
			return nil, fmt.Errorf("chromem: query: %w", err)
		}
	}
	if len(results) == 0 {
		return nil, nil
	}

	out := make([]memory.SearchResult, 0, len(results))
	for _, res := range results {
		item, err := itemFromResult(res)
		if err != nil {
			s.log.Warn().Err(err).Str("id", res.ID).Msg("skipping undecodable document")
			continue
		}
		out = append(out, memory.SearchResult{Item: item, Score: res.Similarity})
	}

	sort.SliceStable(out, func(a, b int) bool {
		if out[a].Score != out[b].Score {
			return out[a].Score > out[b].Score
		}
		return seqOf(results, out[a].Item.ID) < seqOf(results, out[b].Item.ID)
	})
	return out, nil
}

// Save is a no-op: the persistent DB writes through on every add.
func (s *Store) Save(ctx context.Context) error { return nil }

// Load is a no-op: opening the persistent DB restores all documents.
func (s *Store) Load(ctx context.Context) error { return nil }

// Close is a no-op; chromem holds everything in process.
func (s *Store) Close() error { return nil }

var _ memory.Store = (*Store)(nil)

func itemFromResult(res chromem.Result) (memory.Item, error) {
	createdAt, err := time.Parse(time.RFC3339Nano, res.Metadata["created_at"])
	if err != nil {
		return memory.Item{}, fmt.Errorf("parse created_at: %w", err)
	}
	var tags []string
	if res.Metadata["tags"] != "" {
		tags = strings.Split(res.Metadata["tags"], ",")
	}
	return memory.Item{
		ID:        res.ID,
		Text:      res.Content,
		Embedding: res.Embedding,
		Kind:      memory.Kind(res.Metadata["kind"]),
		CreatedAt: createdAt,
		Tags:      tags,
	}, nil
}

func seqOf(results []chromem.Result, id string) int {
	for _, res := range results {
		if res.ID == id {
			if n, err := strconv.Atoi(res.Metadata["seq"]); err == nil {
				return n
			}
		}
	}
	return 0
}

func isTooFewDocsError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "nResults must be") || strings.Contains(msg, "number of documents")
}
