package chromem

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seekerworks/searchagent/memory"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(Config{Logger: zerolog.Nop()})
	require.NoError(t, err)
	return store
}

func item(id string, kind memory.Kind, vec ...float32) memory.Item {
	return memory.Item{
		ID:        id,
		Text:      "text-" + id,
		Kind:      kind,
		CreatedAt: time.Now().UTC(),
		Tags:      []string{"tag-" + id},
		Embedding: vec,
	}
}

func TestAddAndSelfRetrieve(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	require.NoError(t, store.Add(ctx, item("a", memory.KindUserQuery, 1, 0, 0)))
	require.NoError(t, store.Add(ctx, item("b", memory.KindUserQuery, 0, 1, 0)))
	require.Equal(t, 2, store.Count())

	results, err := store.Search(ctx, []float32{0, 1, 0}, 1, memory.Filter{})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "b", results[0].Item.ID)
	assert.Equal(t, "text-b", results[0].Item.Text)
	assert.Equal(t, []string{"tag-b"}, results[0].Item.Tags)
}

func TestSearchEmptyStore(t *testing.T) {
	store := newTestStore(t)
	results, err := store.Search(context.Background(), []float32{1, 0, 0}, 5, memory.Filter{})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSearchKindFilter(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	require.NoError(t, store.Add(ctx, item("q", memory.KindUserQuery, 1, 0, 0)))
	require.NoError(t, store.Add(ctx, item("d", memory.KindDocument, 1, 0, 0)))

	results, err := store.Search(ctx, []float32{1, 0, 0}, 5, memory.Filter{Kind: memory.KindDocument})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "d", results[0].Item.ID)
}

func TestSearchCapsKAtDocumentCount(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	require.NoError(t, store.Add(ctx, item("only", memory.KindToolResult, 1, 0, 0)))

	results, err := store.Search(ctx, []float32{1, 0, 0}, 50, memory.Filter{})
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

func TestSaveLoadAreNoops(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	require.NoError(t, store.Add(ctx, item("a", memory.KindUserQuery, 1, 0, 0)))

	require.NoError(t, store.Save(ctx))
	require.NoError(t, store.Load(ctx))
	assert.Equal(t, 1, store.Count())
}
