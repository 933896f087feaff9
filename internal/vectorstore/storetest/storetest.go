// Package storetest holds behaviour checks shared by every vectorstore backend.
package storetest

import (
	"context"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pdfqa/internal/domain"
	"pdfqa/internal/errs"
	"pdfqa/internal/vectorstore"
)

func chunk(i int) domain.Chunk {
	return domain.Chunk{
		DocumentID: "doc",
		ChunkID:    "doc:" + strconv.Itoa(i),
		Page:       i/2 + 1,
		Text:       "chunk " + strconv.Itoa(i),
		Index:      i,
	}
}

// fixture returns four chunks whose vectors point along distinct axes.
func fixture() ([]domain.Chunk, [][]float32) {
	chunks := []domain.Chunk{chunk(0), chunk(1), chunk(2), chunk(3)}
	vectors := [][]float32{
		{1, 0, 0},
		{0, 1, 0},
		{0, 0, 2},
		{1, 1, 0},
	}
	return chunks, vectors
}

// Run exercises a fresh storage from newStorage against the Storage contract.
func Run(t *testing.T, newStorage func(t *testing.T) vectorstore.Storage) {
	ctx := context.Background()

	t.Run("search orders by similarity", func(t *testing.T) {
		s := newStorage(t)
		require.NoError(t, s.Init(ctx, 3))
		chunks, vectors := fixture()
		require.NoError(t, s.Upsert(ctx, chunks, vectors))
		assert.Equal(t, 4, s.Count())

		res, err := s.Search(ctx, []float32{1, 0.1, 0}, 2)
		require.NoError(t, err)
		require.Len(t, res, 2)
		assert.Equal(t, "doc:0", res[0].Chunk.ChunkID)
		assert.Equal(t, "doc:3", res[1].Chunk.ChunkID)
		assert.Greater(t, res[0].Score, res[1].Score)
		assert.Equal(t, chunks[0], res[0].Chunk)
	})

	t.Run("default and oversized top k", func(t *testing.T) {
		s := newStorage(t)
		require.NoError(t, s.Init(ctx, 3))
		chunks, vectors := fixture()
		require.NoError(t, s.Upsert(ctx, chunks, vectors))

		res, err := s.Search(ctx, []float32{0, 0, 1}, 0)
		require.NoError(t, err)
		assert.Len(t, res, vectorstore.DefaultTopK)
		assert.Equal(t, "doc:2", res[0].Chunk.ChunkID)
		assert.InDelta(t, 1.0, res[0].Score, 1e-5)

		res, err = s.Search(ctx, []float32{0, 0, 1}, 50)
		require.NoError(t, err)
		assert.Len(t, res, 4)
		for i := 1; i < len(res); i++ {
			assert.GreaterOrEqual(t, res[i-1].Score, res[i].Score)
		}
	})

	t.Run("upsert replaces by chunk id", func(t *testing.T) {
		s := newStorage(t)
		require.NoError(t, s.Init(ctx, 3))
		chunks, vectors := fixture()
		require.NoError(t, s.Upsert(ctx, chunks, vectors))

		moved := chunks[1]
		moved.Text = "rewritten"
		require.NoError(t, s.Upsert(ctx, []domain.Chunk{moved}, [][]float32{{0, 0, 1}}))
		assert.Equal(t, 4, s.Count())

		res, err := s.Search(ctx, []float32{0, 0, 1}, 2)
		require.NoError(t, err)
		ids := []string{res[0].Chunk.ChunkID, res[1].Chunk.ChunkID}
		assert.ElementsMatch(t, []string{"doc:1", "doc:2"}, ids)
	})

	t.Run("zero vectors are kept with zero score", func(t *testing.T) {
		s := newStorage(t)
		require.NoError(t, s.Init(ctx, 3))
		require.NoError(t, s.Upsert(ctx,
			[]domain.Chunk{chunk(0), chunk(1)},
			[][]float32{{0, 0, 0}, {1, 0, 0}}))
		assert.Equal(t, 2, s.Count())

		res, err := s.Search(ctx, []float32{1, 0, 0}, 5)
		require.NoError(t, err)
		require.Len(t, res, 2)
		assert.Equal(t, "doc:1", res[0].Chunk.ChunkID)
		assert.Equal(t, "doc:0", res[1].Chunk.ChunkID)
		assert.Zero(t, res[1].Score)
	})

	t.Run("validation", func(t *testing.T) {
		s := newStorage(t)
		assert.True(t, errs.IsInvalidInput(s.Init(ctx, 0)))
		require.NoError(t, s.Init(ctx, 3))

		err := s.Upsert(ctx, []domain.Chunk{chunk(0)}, nil)
		assert.True(t, errs.IsInvalidInput(err))
		err = s.Upsert(ctx, []domain.Chunk{chunk(0)}, [][]float32{{1, 2}})
		assert.True(t, errs.IsInvalidInput(err))
		_, err = s.Search(ctx, []float32{1}, 1)
		assert.True(t, errs.IsInvalidInput(err))
	})

	t.Run("empty store and clear", func(t *testing.T) {
		s := newStorage(t)
		require.NoError(t, s.Init(ctx, 3))
		res, err := s.Search(ctx, []float32{1, 0, 0}, 3)
		require.NoError(t, err)
		assert.Empty(t, res)

		chunks, vectors := fixture()
		require.NoError(t, s.Upsert(ctx, chunks, vectors))
		require.NoError(t, s.Clear(ctx))
		assert.Zero(t, s.Count())
		res, err = s.Search(ctx, []float32{1, 0, 0}, 3)
		require.NoError(t, err)
		assert.Empty(t, res)
	})

	t.Run("init resets contents", func(t *testing.T) {
		s := newStorage(t)
		require.NoError(t, s.Init(ctx, 3))
		chunks, vectors := fixture()
		require.NoError(t, s.Upsert(ctx, chunks, vectors))
		require.NoError(t, s.Init(ctx, 2))
		assert.Zero(t, s.Count())
	})
}
