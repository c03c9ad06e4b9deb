// Package storetest holds behaviour tests shared by every vectorstore backend.
package storetest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragchat/internal/domain"
	"ragchat/internal/vectorstore"
)

func record(id, text string, vec ...float32) domain.Record {
	return domain.Record{
		ID:       id,
		Vector:   vec,
		Text:     text,
		Metadata: map[string]any{"source": "doc.pdf", "chunk_index": 7, "page": 2},
	}
}

func ids(results []domain.SearchResult) []string {
	out := make([]string, len(results))
	for i, r := range results {
		out[i] = r.Chunk.ID
	}
	return out
}

// Run exercises the Collection contract against stores built by newStore.
func Run(t *testing.T, newStore func(t *testing.T) vectorstore.Store) {
	ctx := context.Background()

	open := func(t *testing.T) vectorstore.Collection {
		c, err := newStore(t).OpenCollection(ctx, "docs", map[string]string{"purpose": "test"})
		require.NoError(t, err)
		return c
	}

	t.Run("open is idempotent", func(t *testing.T) {
		s := newStore(t)
		first, err := s.OpenCollection(ctx, "docs", nil)
		require.NoError(t, err)
		require.NoError(t, first.Add(ctx, []domain.Record{record("a", "alpha", 1, 0, 0)}))

		second, err := s.OpenCollection(ctx, "docs", map[string]string{"ignored": "yes"})
		require.NoError(t, err)
		n, err := second.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
		assert.Equal(t, "docs", second.Name())
	})

	t.Run("empty collection", func(t *testing.T) {
		c := open(t)
		n, err := c.Count(ctx)
		require.NoError(t, err)
		assert.Zero(t, n)

		res, err := c.Query(ctx, []float32{1, 0, 0}, 5, vectorstore.IncludeAll)
		require.NoError(t, err)
		assert.Empty(t, res)

		_, err = c.Query(ctx, []float32{1, 0, 0}, 0, vectorstore.IncludeAll)
		assert.ErrorIs(t, err, domain.ErrConfig)
	})

	t.Run("query orders by distance", func(t *testing.T) {
		c := open(t)
		require.NoError(t, c.Add(ctx, []domain.Record{
			record("far", "far away", 0, 0, 1),
			record("near", "close by", 1, 0.1, 0),
			record("mid", "in between", 1, 1, 0),
		}))

		res, err := c.Query(ctx, []float32{1, 0, 0}, 2, vectorstore.IncludeAll)
		require.NoError(t, err)
		assert.Equal(t, []string{"near", "mid"}, ids(res))
		assert.InDelta(t, 0.005, res[0].Distance, 0.01)
		assert.InDelta(t, 1-0.7071, res[1].Distance, 0.01)
		assert.Equal(t, "close by", res[0].Chunk.Text)
		assert.Equal(t, "doc.pdf", res[0].Chunk.SourceID)
		assert.Equal(t, 7, res[0].Chunk.Index)
		assert.Equal(t, "2", res[0].Chunk.Locator)

		res, err = c.Query(ctx, []float32{1, 0, 0}, 10, vectorstore.IncludeAll)
		require.NoError(t, err)
		assert.Len(t, res, 3)
	})

	t.Run("ties keep insertion order", func(t *testing.T) {
		c := open(t)
		require.NoError(t, c.Add(ctx, []domain.Record{
			record("first", "one", 1, 0),
			record("second", "two", 1, 0),
		}))
		require.NoError(t, c.Add(ctx, []domain.Record{record("third", "three", 1, 0)}))
		// upsert keeps the original position
		require.NoError(t, c.Add(ctx, []domain.Record{record("first", "one again", 1, 0)}))

		res, err := c.Query(ctx, []float32{1, 0}, 3, vectorstore.IncludeAll)
		require.NoError(t, err)
		assert.Equal(t, []string{"first", "second", "third"}, ids(res))
		assert.Equal(t, "one again", res[0].Chunk.Text)
	})

	t.Run("upsert does not grow the collection", func(t *testing.T) {
		c := open(t)
		batch := []domain.Record{record("a", "alpha", 1, 0), record("b", "beta", 0, 1)}
		require.NoError(t, c.Add(ctx, batch))
		require.NoError(t, c.Add(ctx, batch))

		n, err := c.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		got, err := c.Existing(ctx, []string{"a", "b", "c"})
		require.NoError(t, err)
		assert.Equal(t, map[string]bool{"a": true, "b": true}, got)
	})

	t.Run("invalid batch writes nothing", func(t *testing.T) {
		c := open(t)
		err := c.Add(ctx, []domain.Record{record("a", "alpha", 1, 0), record("b", "beta", 1, 0, 0)})
		assert.ErrorIs(t, err, domain.ErrStore)
		err = c.Add(ctx, []domain.Record{record("a", "alpha", 1, 0), record("", "beta", 1, 0)})
		assert.ErrorIs(t, err, domain.ErrStore)
		err = c.Add(ctx, []domain.Record{record("a", "alpha", 1, 0), record("a", "again", 1, 0)})
		assert.ErrorIs(t, err, domain.ErrStore)

		n, err := c.Count(ctx)
		require.NoError(t, err)
		assert.Zero(t, n)
	})

	t.Run("dimension change is rejected", func(t *testing.T) {
		c := open(t)
		require.NoError(t, c.Add(ctx, []domain.Record{record("a", "alpha", 1, 0)}))

		err := c.Add(ctx, []domain.Record{record("b", "beta", 1, 0, 0)})
		assert.ErrorIs(t, err, domain.ErrStore)
		n, err := c.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		res, err := c.Query(ctx, []float32{1, 0}, 5, vectorstore.IncludeAll)
		require.NoError(t, err)
		assert.Equal(t, []string{"a"}, ids(res))

		_, err = c.Query(ctx, []float32{1, 0, 0}, 5, vectorstore.IncludeAll)
		assert.ErrorIs(t, err, domain.ErrStore)
	})

	t.Run("ties beyond k keep insertion order", func(t *testing.T) {
		c := open(t)
		require.NoError(t, c.Add(ctx, []domain.Record{
			record("first", "one", 1, 0),
			record("second", "two", 1, 0),
			record("third", "three", 1, 0),
			record("fourth", "four", 1, 0),
			record("other", "five", 0, 1),
		}))

		res, err := c.Query(ctx, []float32{1, 0}, 2, vectorstore.IncludeAll)
		require.NoError(t, err)
		assert.Equal(t, []string{"first", "second"}, ids(res))
	})

	t.Run("include selects fields", func(t *testing.T) {
		c := open(t)
		require.NoError(t, c.Add(ctx, []domain.Record{record("a", "alpha", 1, 0)}))

		res, err := c.Query(ctx, []float32{0, 1}, 1, vectorstore.Include{})
		require.NoError(t, err)
		require.Len(t, res, 1)
		assert.Equal(t, "a", res[0].Chunk.ID)
		assert.Empty(t, res[0].Chunk.Text)
		assert.Nil(t, res[0].Chunk.Metadata)
		assert.Zero(t, res[0].Distance)
	})
}
