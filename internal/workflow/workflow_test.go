package workflow

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragchat/internal/domain"
	"ragchat/internal/embedding/embeddingtest"
	"ragchat/internal/generator"
	"ragchat/internal/retriever"
	"ragchat/internal/vectorstore"
	"ragchat/internal/vectorstore/memory"
)

type fakeRetriever struct {
	res domain.RetrievalResult
	err error
}

func (f fakeRetriever) Retrieve(context.Context, string) (domain.RetrievalResult, error) {
	return f.res, f.err
}

type recordingGenerator struct {
	chunks  []domain.Chunk
	history []domain.Turn
	called  bool
}

func (r *recordingGenerator) Generate(_ context.Context, _ string, chunks []domain.Chunk, history []domain.Turn) (<-chan domain.Delta, error) {
	r.called = true
	r.chunks = chunks
	r.history = history
	ch := make(chan domain.Delta, 1)
	ch <- domain.Delta{Content: "ok"}
	close(ch)
	return ch, nil
}

func TestRun_VisitsNodesInOrder(t *testing.T) {
	res := domain.RetrievalResult{{Chunk: domain.Chunk{ID: "a", Text: "alpha"}}}
	gen := &recordingGenerator{}
	history := []domain.Turn{{Question: "before?"}}

	st, err := New(fakeRetriever{res: res}, gen, nil).Run(context.Background(), "q?", history)
	require.NoError(t, err)

	assert.Equal(t, []Node{Start, Retrieve, Generate, End}, st.Trace)
	assert.Equal(t, "q?", st.Question)
	assert.Equal(t, res, st.Context)
	assert.Equal(t, res.Chunks(), gen.chunks)
	assert.Equal(t, history, gen.history)
	answer, err := generator.Collect(st.Stream)
	require.NoError(t, err)
	assert.Equal(t, "ok", answer)
}

func TestRun_EmptyRetrievalStillGenerates(t *testing.T) {
	gen := &recordingGenerator{}
	st, err := New(fakeRetriever{}, gen, nil).Run(context.Background(), "q?", nil)
	require.NoError(t, err)
	assert.True(t, gen.called)
	assert.Empty(t, gen.chunks)
	assert.Equal(t, End, st.Trace[len(st.Trace)-1])
}

func TestRun_RetrievalErrorStops(t *testing.T) {
	gen := &recordingGenerator{}
	st, err := New(fakeRetriever{err: context.Canceled}, gen, nil).Run(context.Background(), "q?", nil)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.False(t, gen.called)
	assert.Equal(t, []Node{Start, Retrieve}, st.Trace)
}

// echoModel repeats the first retrieved document back as the answer.
type echoModel struct{}

func (echoModel) Stream(_ context.Context, msgs []domain.Message) (<-chan domain.Delta, error) {
	ch := make(chan domain.Delta, 1)
	ch <- domain.Delta{Content: msgs[len(msgs)-1].Content}
	close(ch)
	return ch, nil
}

func TestRun_EndToEnd(t *testing.T) {
	ctx := context.Background()
	emb := embeddingtest.New("nike", "incorporated", "oregon", "shoes", "acme")
	coll, err := memory.NewStore().OpenCollection(ctx, "docs", nil)
	require.NoError(t, err)

	texts := []string{
		"Nike was incorporated in 1967 in Oregon.",
		"Nike sells shoes worldwide.",
		"Weather in Oregon is rainy.",
	}
	vecs, err := emb.Embed(ctx, texts)
	require.NoError(t, err)
	var records []domain.Record
	for i, text := range texts {
		records = append(records, vectorstore.RecordFromChunk(domain.EmbeddedChunk{
			Chunk:  domain.Chunk{ID: text[:4] + string(rune('0'+i)), SourceID: "10k.pdf", Index: i, Text: text},
			Vector: vecs[i],
		}))
	}
	require.NoError(t, coll.Add(ctx, records))

	r, err := retriever.New(emb, coll, retriever.Options{})
	require.NoError(t, err)
	graph := New(r, generator.New(echoModel{}, generator.Options{}), nil)

	st, err := graph.Run(ctx, "When was Nike incorporated?", nil)
	require.NoError(t, err)
	require.NotEmpty(t, st.Context)
	assert.Equal(t, texts[0], st.Context[0].Chunk.Text)
	answer, err := generator.Collect(st.Stream)
	require.NoError(t, err)
	assert.Contains(t, answer, "1967")

	empty, err := memory.NewStore().OpenCollection(ctx, "empty", nil)
	require.NoError(t, err)
	r, err = retriever.New(emb, empty, retriever.Options{})
	require.NoError(t, err)
	st, err = New(r, generator.New(echoModel{}, generator.Options{}), nil).Run(ctx, "Who founded Acme?", nil)
	require.NoError(t, err)
	assert.Empty(t, st.Context)
	answer, err = generator.Collect(st.Stream)
	require.NoError(t, err)
	assert.Equal(t, generator.DefaultNoAnswer, answer)
}
