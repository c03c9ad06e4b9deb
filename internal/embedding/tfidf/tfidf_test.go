package tfidf

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragchat/internal/domain"
)

func dot(a, b []float32) float64 {
	var s float64
	for i := range a {
		s += float64(a[i]) * float64(b[i])
	}
	return s
}

func TestEmbedder_RequiresPrepare(t *testing.T) {
	e := NewEmbedder()
	_, err := e.Embed(context.Background(), []string{"anything"})
	assert.ErrorIs(t, err, domain.ErrEmbedding)

	assert.ErrorIs(t, e.Prepare(nil), domain.ErrEmbedding)
	assert.False(t, e.Prepared())
}

func TestEmbedder_VectorsAreNormalizedAndComparable(t *testing.T) {
	e := NewEmbedder()
	corpus := []string{
		"Nike was founded in 1964 as Blue Ribbon Sports.",
		"The company headquarters is in Beaverton, Oregon.",
		"Revenue grew in fiscal 2023.",
	}
	require.NoError(t, e.Prepare(corpus))
	assert.True(t, e.Prepared())
	assert.Greater(t, e.Dimension(), 0)

	vecs, err := e.Embed(context.Background(), corpus)
	require.NoError(t, err)
	require.Len(t, vecs, 3)
	for _, v := range vecs {
		assert.Len(t, v, e.Dimension())
		assert.InDelta(t, 1.0, math.Sqrt(dot(v, v)), 1e-5)
	}

	q, err := e.EmbedQuery(context.Background(), "where is the headquarters")
	require.NoError(t, err)
	assert.Greater(t, dot(q, vecs[1]), dot(q, vecs[0]))
	assert.Greater(t, dot(q, vecs[1]), dot(q, vecs[2]))
}

func TestEmbedder_HanBigrams(t *testing.T) {
	e := NewEmbedder()
	require.NoError(t, e.Prepare([]string{"耐克成立于1964年", "总部位于俄勒冈州"}))

	q, err := e.EmbedQuery(context.Background(), "耐克的总部在哪里")
	require.NoError(t, err)
	assert.Greater(t, dot(q, q), 0.0)

	unknown, err := e.EmbedQuery(context.Background(), "zzz")
	require.NoError(t, err)
	assert.Equal(t, 0.0, dot(unknown, unknown))
}
