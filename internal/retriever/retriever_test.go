package retriever

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"ragchat/internal/domain"
	"ragchat/internal/embedding/embeddingtest"
	"ragchat/internal/vectorstore"
	"ragchat/internal/vectorstore/memory"
)

var nikeChunks = []string{
	"Nike, Inc. was incorporated in 1967 under the laws of the State of Oregon.",
	"Our world headquarters are located in Beaverton, Oregon.",
	"Revenues for fiscal 2023 were $51.2 billion.",
	"The Jordan Brand designs and distributes athletic footwear.",
	"Converse is a wholly-owned subsidiary of Nike.",
	"Employees worldwide numbered approximately 83,700.",
}

func setup(t *testing.T, texts []string) (*embeddingtest.Vocabulary, vectorstore.Collection) {
	t.Helper()
	emb := embeddingtest.New("nike", "incorporated", "oregon", "headquarters", "revenues", "jordan", "converse", "employees")
	coll, err := memory.NewStore().OpenCollection(context.Background(), "nike", nil)
	require.NoError(t, err)

	vecs, err := emb.Embed(context.Background(), texts)
	require.NoError(t, err)
	records := make([]domain.Record, len(texts))
	for i, text := range texts {
		records[i] = domain.Record{ID: string(rune('a' + i)), Text: text, Vector: vecs[i], Metadata: map[string]any{"source": "nike.pdf", "chunk_index": i}}
	}
	require.NoError(t, coll.Add(context.Background(), records))
	return emb, coll
}

func TestNew_RejectsKeywordKNotBelowK(t *testing.T) {
	_, err := New(nil, nil, Options{K: 3, KeywordK: 3})
	assert.ErrorIs(t, err, domain.ErrConfig)

	_, err = New(nil, nil, Options{K: 2})
	assert.ErrorIs(t, err, domain.ErrConfig, "default keyword k of 3 exceeds k")
}

func TestKeywords(t *testing.T) {
	assert.Equal(t, []string{"when", "was", "nike", "incorporated"}, Keywords("When was Nike incorporated?"))
	assert.Equal(t, []string{"耐克", "总部在哪里"}, Keywords("耐克，总部在哪里？"))
	assert.Equal(t, []string{"is", "it"}, Keywords("a is it a, IS"))
	assert.Empty(t, Keywords("  ? "))
}

func TestRetrieve_BestMatchFirstWithoutDuplicates(t *testing.T) {
	emb, coll := setup(t, nikeChunks)
	r, err := New(emb, coll, Options{})
	require.NoError(t, err)

	res, err := r.Retrieve(context.Background(), "When was Nike incorporated?")
	require.NoError(t, err)
	require.NotEmpty(t, res)
	assert.Contains(t, res[0].Chunk.Text, "incorporated in 1967")

	texts := map[string]int{}
	for _, h := range res {
		texts[h.Chunk.Text]++
	}
	for text, n := range texts {
		assert.Equal(t, 1, n, "duplicate %q", text)
	}
	assert.Len(t, res, 5)
}

func TestRetrieve_KeywordsAddNovelChunks(t *testing.T) {
	emb, coll := setup(t, nikeChunks)
	r, err := New(emb, coll, Options{K: 2, KeywordK: 1})
	require.NoError(t, err)

	res, err := r.Retrieve(context.Background(), "Nike incorporated headquarters")
	require.NoError(t, err)
	// the Converse chunk is only reachable through the "nike" keyword
	assert.Equal(t, []string{"a", "b", "e"}, res.IDs())
}

func TestRetrieve_IsDeterministic(t *testing.T) {
	emb, coll := setup(t, nikeChunks)
	r, err := New(emb, coll, Options{})
	require.NoError(t, err)

	first, err := r.Retrieve(context.Background(), "Oregon headquarters")
	require.NoError(t, err)
	second, err := r.Retrieve(context.Background(), "Oregon headquarters")
	require.NoError(t, err)
	assert.Equal(t, first.IDs(), second.IDs())
}

func TestRetrieve_DeduplicatesByText(t *testing.T) {
	emb, coll := setup(t, []string{"Nike Oregon", "Nike Oregon", "Converse"})
	r, err := New(emb, coll, Options{K: 3, KeywordK: 2})
	require.NoError(t, err)

	res, err := r.Retrieve(context.Background(), "nike oregon")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "c"}, res.IDs())
}

func TestRetrieve_FailedStrategiesAreLoggedAndSkipped(t *testing.T) {
	emb, coll := setup(t, nikeChunks)
	emb.FailOn("converse jordan", errors.New("provider down"))
	core, logs := observer.New(zapcore.WarnLevel)
	r, err := New(emb, coll, Options{K: 2, KeywordK: 1, Logger: zap.New(core)})
	require.NoError(t, err)

	res, err := r.Retrieve(context.Background(), "converse jordan")
	require.NoError(t, err)
	require.Len(t, res, 2)
	assert.Contains(t, res[0].Chunk.Text, "Converse")
	assert.Contains(t, res[1].Chunk.Text, "Jordan")
	assert.Equal(t, 1, logs.FilterMessage("whole-query search failed").Len())
}

func TestRetrieve_CancelledContext(t *testing.T) {
	emb, coll := setup(t, nikeChunks)
	r, err := New(emb, coll, Options{})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = r.Retrieve(ctx, "nike")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRetrieve_EmptyCollection(t *testing.T) {
	coll, err := memory.NewStore().OpenCollection(context.Background(), "empty", nil)
	require.NoError(t, err)
	r, err := New(embeddingtest.New("nike"), coll, Options{})
	require.NoError(t, err)

	res, err := r.Retrieve(context.Background(), "anything at all")
	require.NoError(t, err)
	assert.Empty(t, res)
}
