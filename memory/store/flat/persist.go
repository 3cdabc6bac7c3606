package flat

import (
	"bufio"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// On-disk layout: index.bin holds the raw vectors, metadata.json the
// positional item records. Both are written to temp files and renamed
// so a crash leaves either the old pair, the new pair, or a count
// mismatch that Load detects.

const (
	indexMagic   = "SAFI"
	indexVersion = uint32(1)

	indexFileName = "index.bin"
	metaFileName  = "metadata.json"
)

type storePaths struct {
	dir   string
	index string
	meta  string
}

func newStorePaths(dir string) *storePaths {
	return &storePaths{
		dir:   dir,
		index: filepath.Join(dir, indexFileName),
		meta:  filepath.Join(dir, metaFileName),
	}
}

type indexHeader struct {
	Version uint32
	Metric  uint8
	Dim     uint32
	Count   uint32
}

// Save serializes index and metadata together. No-op for in-memory
// stores.
func (s *Store) Save(ctx context.Context) error {
	if s.paths == nil {
		return nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := os.MkdirAll(s.paths.dir, 0o755); err != nil {
		return fmt.Errorf("flat: create store dir: %w", err)
	}

	metaBytes, err := json.MarshalIndent(s.items, "", "  ")
	if err != nil {
		return fmt.Errorf("flat: marshal metadata: %w", err)
	}
	if err := writeFileAtomic(s.paths.meta, func(w io.Writer) error {
		_, werr := w.Write(metaBytes)
		return werr
	}); err != nil {
		return fmt.Errorf("flat: write metadata: %w", err)
	}

	if err := writeFileAtomic(s.paths.index, func(w io.Writer) error {
		return s.writeIndex(w)
	}); err != nil {
		return fmt.Errorf("flat: write index: %w", err)
	}

	s.log.Debug().Int("items", len(s.items)).Msg("saved store")
	return nil
}

func (s *Store) writeIndex(w io.Writer) error {
	bw := bufio.NewWriter(w)
	if _, err := bw.WriteString(indexMagic); err != nil {
		return err
	}
	hdr := indexHeader{
		Version: indexVersion,
		Metric:  metricCode(s.metric),
		Dim:     uint32(s.dim),
		Count:   uint32(len(s.items)),
	}
	if err := writeBinary(bw, hdr); err != nil {
		return err
	}
	if err := writeBinary(bw, s.vectors); err != nil {
		return err
	}
	return bw.Flush()
}

// Load restores index and metadata, validating that the vector count
// matches the metadata count. A fully missing store is empty; a half
// missing or diverging store is corrupt.
func (s *Store) Load(ctx context.Context) error {
	if s.paths == nil {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	indexExists := fileExists(s.paths.index)
	metaExists := fileExists(s.paths.meta)
	if !indexExists && !metaExists {
		return nil
	}
	if indexExists != metaExists {
		return fmt.Errorf("%w: only one of %s and %s exists", ErrCorruptIndex, indexFileName, metaFileName)
	}

	vectors, count, err := s.readIndex()
	if err != nil {
		return err
	}

	metaBytes, err := os.ReadFile(s.paths.meta)
	if err != nil {
		return fmt.Errorf("flat: read metadata: %w", err)
	}
	items := s.items[:0:0]
	if err := json.Unmarshal(metaBytes, &items); err != nil {
		return fmt.Errorf("flat: parse metadata: %w", err)
	}

	if len(items) != count {
		return fmt.Errorf("%w: index holds %d vectors, metadata %d records", ErrCorruptIndex, count, len(items))
	}

	s.vectors = vectors
	s.items = items
	for i := range s.items {
		s.items[i].Embedding = s.vectorAt(i)
	}

	s.log.Info().Int("items", len(s.items)).Msg("loaded store")
	return nil
}

func (s *Store) readIndex() ([]float32, int, error) {
	f, err := os.Open(s.paths.index)
	if err != nil {
		return nil, 0, fmt.Errorf("flat: open index: %w", err)
	}
	defer f.Close()
	br := bufio.NewReader(f)

	magic := make([]byte, len(indexMagic))
	if _, err := io.ReadFull(br, magic); err != nil {
		return nil, 0, fmt.Errorf("%w: short index header", ErrCorruptIndex)
	}
	if string(magic) != indexMagic {
		return nil, 0, fmt.Errorf("%w: bad magic %q", ErrCorruptIndex, magic)
	}

	var hdr indexHeader
	if err := readBinary(br, &hdr); err != nil {
		return nil, 0, fmt.Errorf("%w: short index header", ErrCorruptIndex)
	}
	if hdr.Version != indexVersion {
		return nil, 0, fmt.Errorf("flat: unsupported index version %d", hdr.Version)
	}
	metric, err := metricFromCode(hdr.Metric)
	if err != nil {
		return nil, 0, err
	}
	if metric != s.metric {
		return nil, 0, fmt.Errorf("flat: index was built with metric %q, store uses %q", metric, s.metric)
	}
	if int(hdr.Dim) != s.dim {
		return nil, 0, fmt.Errorf("flat: index dimension %d does not match store dimension %d", hdr.Dim, s.dim)
	}

	vectors := make([]float32, int(hdr.Count)*s.dim)
	if err := readBinary(br, vectors); err != nil {
		return nil, 0, fmt.Errorf("%w: truncated vector data", ErrCorruptIndex)
	}
	return vectors, int(hdr.Count), nil
}

func writeBinary(w io.Writer, data interface{}) error {
	return binary.Write(w, byteOrder, data)
}

func readBinary(r io.Reader, data interface{}) error {
	return binary.Read(r, byteOrder, data)
}

func writeFileAtomic(path string, write func(io.Writer) error) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if err := write(tmp); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
