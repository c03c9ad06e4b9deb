package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"ragchat/internal/chunker"
	"ragchat/internal/domain"
	"ragchat/internal/embedding/embeddingtest"
	"ragchat/internal/embedding/tfidf"
	"ragchat/internal/vectorstore"
	"ragchat/internal/vectorstore/memory"
)

// pagesLoader serves a fixed three-page document under any source name.
type pagesLoader struct {
	err error
}

func (l pagesLoader) Load(_ context.Context, source string) ([]domain.Document, error) {
	if l.err != nil {
		return nil, l.err
	}
	pages := []string{
		"Nike was incorporated in 1967 under the laws of Oregon. It designs athletic footwear.",
		"Revenue grew in every region. Apparel sales rose sharply.",
		"The company employs about 79,000 people.",
	}
	docs := make([]domain.Document, len(pages))
	for i, text := range pages {
		page := i + 1
		docs[i] = domain.Document{
			Text:     text,
			SourceID: source,
			Locator:  string(rune('0' + page)),
			Metadata: map[string]any{"page": page, "total_pages": len(pages)},
		}
	}
	return docs, nil
}

type fixture struct {
	ingestor   *Ingestor
	collection *vectorstore.QuotaCollection
	embedder   *embeddingtest.Vocabulary
	logs       *observer.ObservedLogs
}

func newFixture(t *testing.T, limit int) *fixture {
	t.Helper()
	coll, err := memory.NewStore().OpenCollection(context.Background(), "docs", nil)
	require.NoError(t, err)
	quota, err := vectorstore.WithQuota(coll, limit)
	require.NoError(t, err)
	split, err := chunker.NewSentenceChunker(1, 0)
	require.NoError(t, err)

	core, logs := observer.New(zap.InfoLevel)
	emb := embeddingtest.New("nike", "revenue", "apparel", "employs", "oregon")
	return &fixture{
		ingestor:   NewIngestor(pagesLoader{}, split, emb, quota, Options{Logger: zap.New(core)}),
		collection: quota,
		embedder:   emb,
		logs:       logs,
	}
}

func TestIngest_TruncatesToQuota(t *testing.T) {
	f := newFixture(t, 3)
	ctx := context.Background()

	report, err := f.ingestor.Ingest(ctx, "nike-10k.pdf")
	require.NoError(t, err)

	assert.Equal(t, 3, report.Documents)
	assert.Equal(t, 5, report.Requested)
	assert.Equal(t, 3, report.Stored)
	assert.Equal(t, 2, report.Dropped)
	assert.True(t, report.Truncated())

	count, err := f.collection.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	warnings := f.logs.FilterMessage("quota reached, truncating ingestion").All()
	require.Len(t, warnings, 1)
	assert.Equal(t, int64(5), warnings[0].ContextMap()["requested"])
	assert.Equal(t, int64(3), warnings[0].ContextMap()["kept"])

	// The first chunks in source order are the ones kept.
	existing, err := f.collection.Existing(ctx, []string{
		chunker.ChunkID("nike-10k.pdf", 0), chunker.ChunkID("nike-10k.pdf", 2), chunker.ChunkID("nike-10k.pdf", 3),
	})
	require.NoError(t, err)
	assert.True(t, existing[chunker.ChunkID("nike-10k.pdf", 0)])
	assert.True(t, existing[chunker.ChunkID("nike-10k.pdf", 2)])
	assert.False(t, existing[chunker.ChunkID("nike-10k.pdf", 3)])
}

func TestIngest_IsIdempotent(t *testing.T) {
	f := newFixture(t, 10)
	ctx := context.Background()

	first, err := f.ingestor.Ingest(ctx, "nike-10k.pdf")
	require.NoError(t, err)
	second, err := f.ingestor.Ingest(ctx, "nike-10k.pdf", "nike-10k.pdf")
	require.NoError(t, err)

	assert.Equal(t, 5, first.Stored)
	assert.Zero(t, first.Updated)
	assert.Equal(t, 5, second.Stored)
	assert.Equal(t, 5, second.Updated)
	assert.Zero(t, second.Dropped)
	count, err := f.collection.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, count)
}

func TestIngest_UpsertsDoNotNeedQuota(t *testing.T) {
	f := newFixture(t, 5)
	ctx := context.Background()

	_, err := f.ingestor.Ingest(ctx, "nike-10k.pdf")
	require.NoError(t, err)
	report, err := f.ingestor.Ingest(ctx, "nike-10k.pdf", "annual.pdf")
	require.NoError(t, err)

	assert.Equal(t, 5, report.Stored)
	assert.Equal(t, 5, report.Dropped)
	assert.Equal(t, 1, f.logs.FilterMessage("quota reached, truncating ingestion").Len())
}

func TestIngest_EmbeddingFailureStoresNothing(t *testing.T) {
	f := newFixture(t, 10)
	f.embedder.FailOn("Apparel sales rose sharply.", domain.Wrap(domain.ErrEmbedding, "test", errors.New("boom")))

	_, err := f.ingestor.Ingest(context.Background(), "nike-10k.pdf")
	assert.ErrorIs(t, err, domain.ErrEmbedding)
	count, err := f.collection.Count(context.Background())
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestIngest_LoadFailureAborts(t *testing.T) {
	f := newFixture(t, 10)
	f.ingestor.loader = pagesLoader{err: domain.Wrap(domain.ErrIngest, "load", errors.New("404"))}

	_, err := f.ingestor.Ingest(context.Background(), "https://example.com/missing")
	assert.ErrorIs(t, err, domain.ErrIngest)
	assert.Zero(t, f.embedder.Calls())

	_, err = f.ingestor.Ingest(context.Background())
	assert.ErrorIs(t, err, domain.ErrIngest)
}

func TestIngest_FullCollectionStoresNothing(t *testing.T) {
	f := newFixture(t, 5)
	ctx := context.Background()
	_, err := f.ingestor.Ingest(ctx, "a.pdf")
	require.NoError(t, err)
	calls := f.embedder.Calls()

	report, err := f.ingestor.Ingest(ctx, "b.pdf")
	require.NoError(t, err)
	assert.Zero(t, report.Stored)
	assert.Equal(t, 5, report.Dropped)
	assert.Equal(t, calls, f.embedder.Calls())
}

func TestIngest_PreparesCorpusFittedEmbedder(t *testing.T) {
	coll, err := memory.NewStore().OpenCollection(context.Background(), "docs", nil)
	require.NoError(t, err)
	quota, err := vectorstore.WithQuota(coll, vectorstore.DefaultQuotaLimit)
	require.NoError(t, err)
	split, err := chunker.NewSentenceChunker(2, 0)
	require.NoError(t, err)

	ing := NewIngestor(pagesLoader{}, split, tfidf.NewEmbedder(), quota, Options{SummarySentences: 1})
	report, err := ing.Ingest(context.Background(), "nike-10k.pdf")
	require.NoError(t, err)
	assert.Equal(t, 3, report.Stored)
	assert.NotEmpty(t, report.Summary)
}
