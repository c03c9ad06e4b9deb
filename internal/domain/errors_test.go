package domain

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWrap_IsKindAndCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := Wrap(ErrStore, "memory.add", cause)

	assert.ErrorIs(t, err, ErrStore)
	assert.ErrorIs(t, err, cause)
	assert.NotErrorIs(t, err, ErrEmbedding)
	assert.Equal(t, "memory.add: vector store failed: connection refused", err.Error())
}

func TestWrap_NilCause(t *testing.T) {
	err := Wrap(ErrConfig, "chunker", nil)
	assert.ErrorIs(t, err, ErrConfig)
	assert.Equal(t, "chunker: invalid configuration", err.Error())
}

func TestClassify(t *testing.T) {
	t.Run("nil stays nil", func(t *testing.T) {
		assert.NoError(t, Classify(ErrEmbedding, "op", nil))
	})

	t.Run("deadline becomes timeout", func(t *testing.T) {
		err := Classify(ErrEmbedding, "openai.embed", fmt.Errorf("post: %w", context.DeadlineExceeded))
		assert.ErrorIs(t, err, ErrTimeout)
		assert.NotErrorIs(t, err, ErrEmbedding)
		assert.True(t, IsRetryable(err))
	})

	t.Run("other errors get the kind", func(t *testing.T) {
		err := Classify(ErrGeneration, "openai.chat", errors.New("401"))
		assert.ErrorIs(t, err, ErrGeneration)
		assert.False(t, IsRetryable(err))
	})

	t.Run("already classified is kept", func(t *testing.T) {
		inner := Wrap(ErrQuotaExceeded, "quota", nil)
		err := Classify(ErrStore, "outer", inner)
		assert.Same(t, inner, err)
	})
}

func TestRetrievalResultAccessors(t *testing.T) {
	r := RetrievalResult{
		{Chunk: Chunk{ID: "a", Text: "x"}, Distance: 0.1},
		{Chunk: Chunk{ID: "b", Text: "y"}, Distance: 0.2},
	}
	assert.Equal(t, []string{"a", "b"}, r.IDs())
	assert.Equal(t, "y", r.Chunks()[1].Text)
}
