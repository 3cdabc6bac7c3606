// Package ingest indexes local documents into the memory store as
// searchable chunks. A content-hash cache skips files that have not
// changed since the last run, and an optional fsnotify watcher re-runs
// ingestion when the documents directory changes.
package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/seekerworks/searchagent/memory"
)

const cacheFileName = "doc_cache.json"

// Adder is the slice of the memory manager ingestion writes through.
type Adder interface {
	Add(ctx context.Context, text string, kind memory.Kind, tags []string) (memory.Item, error)
}

// Config configures an Ingester.
type Config struct {
	// Dir is the documents directory to scan. Empty disables scanning.
	Dir string

	// CacheDir holds doc_cache.json. Defaults to Dir.
	CacheDir string

	// ChunkSize and ChunkOverlap default to 256 and 40 words.
	ChunkSize    int
	ChunkOverlap int

	Logger zerolog.Logger
}

// Ingester chunks and indexes documents.
type Ingester struct {
	dir       string
	cachePath string
	size      int
	overlap   int
	mem       Adder
	log       zerolog.Logger

	mu    sync.Mutex
	cache map[string]string // file path -> content hash
}

// New creates an Ingester and loads any existing hash cache.
func New(cfg Config, mem Adder) (*Ingester, error) {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = DefaultChunkSize
	}
	if cfg.ChunkOverlap <= 0 {
		cfg.ChunkOverlap = DefaultChunkOverlap
	}
	cacheDir := cfg.CacheDir
	if cacheDir == "" {
		cacheDir = cfg.Dir
	}

	ing := &Ingester{
		dir:     cfg.Dir,
		size:    cfg.ChunkSize,
		overlap: cfg.ChunkOverlap,
		mem:     mem,
		log:     cfg.Logger.With().Str("component", "ingest").Logger(),
		cache:   make(map[string]string),
	}
	if cacheDir != "" {
		ing.cachePath = filepath.Join(cacheDir, cacheFileName)
		if err := ing.loadCache(); err != nil {
			return nil, err
		}
	}
	return ing, nil
}

// Run scans the documents directory, indexing files whose content hash
// changed since the last run. Returns chunks indexed and files skipped.
func (ing *Ingester) Run(ctx context.Context) (indexed, skipped int, err error) {
	if ing.dir == "" {
		return 0, 0, nil
	}
	entries, err := os.ReadDir(ing.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, 0, nil
		}
		return 0, 0, fmt.Errorf("ingest: read dir: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() || !indexableFile(entry.Name()) {
			continue
		}
		path := filepath.Join(ing.dir, entry.Name())

		data, err := os.ReadFile(path)
		if err != nil {
			ing.log.Warn().Str("file", path).Err(err).Msg("skipping unreadable file")
			continue
		}
		hash := contentHash(data)

		ing.mu.Lock()
		unchanged := ing.cache[path] == hash
		ing.mu.Unlock()
		if unchanged {
			skipped++
			continue
		}

		n, err := ing.indexChunks(ctx, entry.Name(), string(data))
		if err != nil {
			return indexed, skipped, err
		}
		indexed += n

		ing.mu.Lock()
		ing.cache[path] = hash
		ing.mu.Unlock()
		ing.log.Info().Str("file", entry.Name()).Int("chunks", n).Msg("indexed document")
	}

	if err := ing.saveCache(); err != nil {
		ing.log.Error().Err(err).Msg("saving document cache failed")
	}
	return indexed, skipped, nil
}

// IndexText chunks and indexes arbitrary text under a source label,
// bypassing the file cache. Used for fetched web pages.
func (ing *Ingester) IndexText(ctx context.Context, source, text string) (int, error) {
	return ing.indexChunks(ctx, source, text)
}

func (ing *Ingester) indexChunks(ctx context.Context, source, text string) (int, error) {
	chunks := Chunk(text, ing.size, ing.overlap)
	for i, chunk := range chunks {
		tags := []string{source, "chunk:" + strconv.Itoa(i)}
		if _, err := ing.mem.Add(ctx, chunk, memory.KindDocument, tags); err != nil {
			return i, fmt.Errorf("ingest: index %s chunk %d: %w", source, i, err)
		}
	}
	return len(chunks), nil
}

// Watch re-runs ingestion when files in the documents directory
// change. Events are debounced so an editor's write burst triggers one
// run. Blocks until ctx is canceled.
func (ing *Ingester) Watch(ctx context.Context) error {
	if ing.dir == "" {
		<-ctx.Done()
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("ingest: create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(ing.dir); err != nil {
		return fmt.Errorf("ingest: watch %s: %w", ing.dir, err)
	}
	ing.log.Info().Str("dir", ing.dir).Msg("watching documents directory")

	const debounce = 500 * time.Millisecond
	var timer *time.Timer
	var pending <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) && !event.Has(fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(debounce)
				pending = timer.C
			} else {
				timer.Reset(debounce)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			ing.log.Warn().Err(err).Msg("watcher error")
		case <-pending:
			timer = nil
			pending = nil
			if _, _, err := ing.Run(ctx); err != nil {
				ing.log.Error().Err(err).Msg("ingest run after change failed")
			}
		}
	}
}

func (ing *Ingester) loadCache() error {
	data, err := os.ReadFile(ing.cachePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("ingest: read cache: %w", err)
	}
	ing.mu.Lock()
	defer ing.mu.Unlock()
	if err := json.Unmarshal(data, &ing.cache); err != nil {
		// A garbled cache only costs a re-index.
		ing.log.Warn().Err(err).Msg("resetting unreadable document cache")
		ing.cache = make(map[string]string)
	}
	return nil
}

func (ing *Ingester) saveCache() error {
	if ing.cachePath == "" {
		return nil
	}
	ing.mu.Lock()
	data, err := json.MarshalIndent(ing.cache, "", "  ")
	ing.mu.Unlock()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(ing.cachePath), 0o755); err != nil {
		return err
	}
	return os.WriteFile(ing.cachePath, data, 0o644)
}

func indexableFile(name string) bool {
	if name == cacheFileName || strings.HasPrefix(name, ".") {
		return false
	}
	switch strings.ToLower(filepath.Ext(name)) {
	case ".txt", ".md", ".markdown", ".rst", ".html", ".htm":
		return true
	}
	return false
}

func contentHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
