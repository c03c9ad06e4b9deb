package vectorstore

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"ragchat/internal/domain"
)

func TestCosineDistance(t *testing.T) {
	assert.InDelta(t, 0, CosineDistance([]float32{1, 0}, []float32{2, 0}), 1e-9)
	assert.InDelta(t, 1, CosineDistance([]float32{1, 0}, []float32{0, 3}), 1e-9)
	assert.InDelta(t, 2, CosineDistance([]float32{1, 0}, []float32{-1, 0}), 1e-9)
	assert.Equal(t, 1.0, CosineDistance([]float32{0, 0}, []float32{1, 0}))
}

func TestRank_BreaksTiesBySequence(t *testing.T) {
	hit := func(id string, d float64, seq int) Ranked {
		return Ranked{Result: domain.SearchResult{Chunk: domain.Chunk{ID: id, Text: id}, Distance: d}, Seq: seq}
	}
	got := Rank([]Ranked{hit("c", 0.2, 2), hit("b", 0.1, 1), hit("a", 0.1, 0), hit("d", 0.5, 3)}, 3, IncludeAll)
	assert.Equal(t, []string{"a", "b", "c"}, domain.RetrievalResult(got).IDs())
}

func TestChunkFromRecord_ReadsStringlyMetadata(t *testing.T) {
	c := ChunkFromRecord("id", "text", map[string]any{"source": "a.pdf", "chunk_index": "4", "page": "3"})
	assert.Equal(t, "a.pdf", c.SourceID)
	assert.Equal(t, 4, c.Index)
	assert.Equal(t, "3", c.Locator)

	c = ChunkFromRecord("id", "text", map[string]any{"source": "a.pdf", "chunk_index": float64(2), "locator": "#intro", "page": 9})
	assert.Equal(t, 2, c.Index)
	assert.Equal(t, "#intro", c.Locator)
}

func TestRecordFromChunk(t *testing.T) {
	r := RecordFromChunk(domain.EmbeddedChunk{
		Chunk:  domain.Chunk{ID: "x:1", SourceID: "x", Locator: "2", Index: 1, Text: "hi", Metadata: map[string]any{"title": "T"}},
		Vector: []float32{1},
	})
	assert.Equal(t, "x:1", r.ID)
	assert.Equal(t, map[string]any{"title": "T", "source": "x", "chunk_index": 1, "locator": "2"}, r.Metadata)
}
