package memory_test

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seekerworks/searchagent/memory"
	"github.com/seekerworks/searchagent/memory/embedder/mock"
	"github.com/seekerworks/searchagent/memory/store/flat"
)

// failingEmbedder fails every call, or returns vectors of the wrong
// size when Wrong is set.
type failingEmbedder struct {
	dims  int
	wrong bool
}

func (f *failingEmbedder) Embed(context.Context, string) ([]float32, error) {
	if f.wrong {
		return make([]float32, f.dims+1), nil
	}
	return nil, errors.New("provider down")
}

func (f *failingEmbedder) Dimensions() int { return f.dims }

func newFlatManager(t *testing.T, embedder memory.Embedder) *memory.Manager {
	t.Helper()
	store, err := flat.New(flat.Config{Dimensions: embedder.Dimensions(), Logger: zerolog.Nop()})
	require.NoError(t, err)
	return memory.NewManager(store, embedder, zerolog.Nop())
}

func TestAddAndSelfRetrieve(t *testing.T) {
	ctx := context.Background()
	mgr := newFlatManager(t, mock.New(32))

	stored, err := mgr.Add(ctx, "FAISS is a vector similarity library", memory.KindToolResult, []string{"web_search"})
	require.NoError(t, err)
	assert.NotEmpty(t, stored.ID)
	assert.False(t, stored.CreatedAt.IsZero())

	_, err = mgr.Add(ctx, "the weather in Lisbon is sunny", memory.KindToolResult, nil)
	require.NoError(t, err)

	results, err := mgr.Retrieve(ctx, "FAISS is a vector similarity library", 1, memory.Filter{})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, stored.ID, results[0].Item.ID)
}

func TestRetrieveEmptyStore(t *testing.T) {
	mgr := newFlatManager(t, mock.New(32))
	results, err := mgr.Retrieve(context.Background(), "anything", 5, memory.Filter{})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestRetrieveZeroK(t *testing.T) {
	ctx := context.Background()
	mgr := newFlatManager(t, mock.New(32))
	_, err := mgr.Add(ctx, "something", memory.KindUserQuery, nil)
	require.NoError(t, err)

	results, err := mgr.Retrieve(ctx, "something", 0, memory.Filter{})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestAddFailedEmbeddingIsAtomic(t *testing.T) {
	mgr := newFlatManager(t, &failingEmbedder{dims: 8})

	_, err := mgr.Add(context.Background(), "text", memory.KindUserQuery, nil)
	var embErr *memory.EmbeddingError
	require.ErrorAs(t, err, &embErr)
	assert.Equal(t, 0, mgr.Count())
}

func TestAddWrongDimensionIsAtomic(t *testing.T) {
	mgr := newFlatManager(t, &failingEmbedder{dims: 8, wrong: true})

	_, err := mgr.Add(context.Background(), "text", memory.KindUserQuery, nil)
	var embErr *memory.EmbeddingError
	require.ErrorAs(t, err, &embErr)
	assert.Equal(t, 9, embErr.Got)
	assert.Equal(t, 8, embErr.Want)
	assert.Equal(t, 0, mgr.Count())
}

func TestRetrieveKindFilter(t *testing.T) {
	ctx := context.Background()
	mgr := newFlatManager(t, mock.New(32))

	_, err := mgr.Add(ctx, "chunk about embeddings", memory.KindDocument, []string{"notes.md"})
	require.NoError(t, err)
	_, err = mgr.Add(ctx, "chunk about embeddings", memory.KindToolResult, nil)
	require.NoError(t, err)

	results, err := mgr.Retrieve(ctx, "chunk about embeddings", 10, memory.Filter{Kind: memory.KindDocument})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, memory.KindDocument, results[0].Item.Kind)
}
