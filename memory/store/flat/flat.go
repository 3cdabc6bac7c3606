// Package flat implements an exact, brute-force vector index with a
// positional metadata sidecar. The i-th vector always corresponds to
// the i-th metadata record, across inserts, saves, and loads.
package flat

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"github.com/seekerworks/searchagent/memory"
)

// Metric selects the distance function. Fixed at store creation and
// never mixed afterwards.
type Metric string

const (
	// MetricCosine scores by cosine similarity (higher is better).
	MetricCosine Metric = "cosine"

	// MetricL2 scores by negated squared Euclidean distance so that
	// higher scores are still better.
	MetricL2 Metric = "l2"
)

// ErrCorruptIndex reports that the persisted index and its metadata
// sidecar disagree. The store refuses to serve rather than silently
// truncate.
var ErrCorruptIndex = errors.New("flat: index and metadata are inconsistent")

// Config configures a flat store.
type Config struct {
	// Dir is the directory holding index.bin and metadata.json.
	// Empty means in-memory only; Save and Load become no-ops.
	Dir string

	// Dimensions is the fixed embedding dimension D.
	Dimensions int

	// Metric defaults to MetricCosine.
	Metric Metric

	Logger zerolog.Logger
}

// Store is a flat exact-search vector index. Vectors live in one
// contiguous slice; metadata in a parallel slice at the same ordinal.
type Store struct {
	mu      sync.RWMutex
	dim     int
	metric  Metric
	vectors []float32     // len == dim * len(items)
	items   []memory.Item // positional sidecar
	paths   *storePaths
	log     zerolog.Logger
}

// New creates a flat store. Call Load to restore persisted state.
func New(cfg Config) (*Store, error) {
	if cfg.Dimensions <= 0 {
		return nil, fmt.Errorf("flat: dimensions must be positive, got %d", cfg.Dimensions)
	}
	metric := cfg.Metric
	if metric == "" {
		metric = MetricCosine
	}
	if metric != MetricCosine && metric != MetricL2 {
		return nil, fmt.Errorf("flat: unknown metric %q", metric)
	}

	var paths *storePaths
	if cfg.Dir != "" {
		paths = newStorePaths(cfg.Dir)
	}
	return &Store{
		dim:    cfg.Dimensions,
		metric: metric,
		paths:  paths,
		log:    cfg.Logger.With().Str("component", "flatstore").Logger(),
	}, nil
}

// Add appends the item's vector and metadata in one critical section.
func (s *Store) Add(ctx context.Context, item memory.Item) error {
	if len(item.Embedding) != s.dim {
		return fmt.Errorf("flat: embedding has %d dimensions, store expects %d", len(item.Embedding), s.dim)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.vectors = append(s.vectors, item.Embedding...)
	// Keep the stored item's embedding pointing into the index so the
	// two can never drift apart.
	item.Embedding = s.vectors[len(s.vectors)-s.dim:]
	s.items = append(s.items, item)
	return nil
}

// Count returns the number of stored items.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// Search scans all vectors and returns the top k by score. Ordering
// is by decreasing score; equal scores keep insertion order.
func (s *Store) Search(ctx context.Context, embedding []float32, k int, filter memory.Filter) ([]memory.SearchResult, error) {
	if len(embedding) != s.dim {
		return nil, fmt.Errorf("flat: query has %d dimensions, store expects %d", len(embedding), s.dim)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	type hit struct {
		idx   int
		score float32
	}
	hits := make([]hit, 0, len(s.items))
	for i, item := range s.items {
		if !filter.Matches(item) {
			continue
		}
		vec := s.vectors[i*s.dim : (i+1)*s.dim]
		hits = append(hits, hit{idx: i, score: s.score(embedding, vec)})
	}

	sort.SliceStable(hits, func(a, b int) bool {
		return hits[a].score > hits[b].score
	})
	if k > len(hits) {
		k = len(hits)
	}

	results := make([]memory.SearchResult, 0, k)
	for _, h := range hits[:k] {
		results = append(results, memory.SearchResult{Item: s.items[h.idx], Score: h.score})
	}
	return results, nil
}

func (s *Store) score(a, b []float32) float32 {
	switch s.metric {
	case MetricL2:
		var sum float32
		for i := range a {
			d := a[i] - b[i]
			sum += d * d
		}
		return -sum
	default:
		return cosine(a, b)
	}
}

func cosine(a, b []float32) float32 {
	var dot, na, nb float32
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / float32(math.Sqrt(float64(na))*math.Sqrt(float64(nb)))
}

// Close is a no-op; the flat store holds no external resources.
func (s *Store) Close() error { return nil }

var _ memory.Store = (*Store)(nil)

func metricCode(m Metric) uint8 {
	if m == MetricL2 {
		return 1
	}
	return 0
}

func metricFromCode(c uint8) (Metric, error) {
	switch c {
	case 0:
		return MetricCosine, nil
	case 1:
		return MetricL2, nil
	}
	return "", fmt.Errorf("flat: unknown metric code %d", c)
}

// vectorAt returns the i-th vector. Caller must hold the lock.
func (s *Store) vectorAt(i int) []float32 {
	return s.vectors[i*s.dim : (i+1)*s.dim]
}

var byteOrder = binary.LittleEndian
