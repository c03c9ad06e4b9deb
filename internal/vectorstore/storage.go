package vectorstore

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strconv"

	"ragchat/internal/domain"
)

// Store opens named collections. OpenCollection is idempotent: an existing
// collection is returned unchanged and metadata only applies on creation.
type Store interface {
	OpenCollection(ctx context.Context, name string, metadata map[string]string) (Collection, error)
}

// Collection persists records and answers nearest-neighbour queries.
//
// Add upserts: a record whose id already exists replaces the stored vector, text
// and metadata and keeps its original insertion position. Add is atomic; on
// failure the collection is left as it was before the call.
//
// Query returns at most k results ordered by ascending cosine distance, ties
// broken by insertion order.
type Collection interface {
	Name() string
	Count(ctx context.Context) (int, error)
	Existing(ctx context.Context, ids []string) (map[string]bool, error)
	Add(ctx context.Context, records []domain.Record) error
	Query(ctx context.Context, vector []float32, k int, include Include) ([]domain.SearchResult, error)
}

// Include selects which fields Query fills in. Omitted fields are left zero;
// ids are always returned.
type Include struct {
	Documents bool
	Metadatas bool
	Distances bool
}

// IncludeAll fills every field.
var IncludeAll = Include{Documents: true, Metadatas: true, Distances: true}

// Validate checks a batch before anything is written: ids are present and
// unique, text is present, and all vectors are non-empty with one dimension.
// It returns that dimension.
func Validate(op string, records []domain.Record) (int, error) {
	dim := 0
	seen := make(map[string]struct{}, len(records))
	for i, r := range records {
		if r.ID == "" {
			return 0, domain.Errorf(domain.ErrStore, op, "record %d has no id", i)
		}
		if _, dup := seen[r.ID]; dup {
			return 0, domain.Errorf(domain.ErrStore, op, "duplicate id %q in batch", r.ID)
		}
		seen[r.ID] = struct{}{}
		if r.Text == "" {
			return 0, domain.Errorf(domain.ErrStore, op, "record %q has no text", r.ID)
		}
		if len(r.Vector) == 0 {
			return 0, domain.Errorf(domain.ErrStore, op, "record %q has no vector", r.ID)
		}
		if dim == 0 {
			dim = len(r.Vector)
		} else if len(r.Vector) != dim {
			return 0, domain.Errorf(domain.ErrStore, op, "record %q has dimension %d, want %d", r.ID, len(r.Vector), dim)
		}
	}
	return dim, nil
}

// CosineDistance is 1 minus the cosine similarity of a and b. A zero vector is
// at distance 1 from everything.
func CosineDistance(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 1
	}
	return 1 - dot/(math.Sqrt(na)*math.Sqrt(nb))
}

// Ranked is a scored hit with its insertion sequence, used to order query results.
type Ranked struct {
	Result domain.SearchResult
	Seq    int
}

// Rank sorts hits by distance then insertion order and keeps the first k.
func Rank(hits []Ranked, k int, include Include) []domain.SearchResult {
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Result.Distance != hits[j].Result.Distance {
			return hits[i].Result.Distance < hits[j].Result.Distance
		}
		return hits[i].Seq < hits[j].Seq
	})
	if k < len(hits) {
		hits = hits[:k]
	}
	out := make([]domain.SearchResult, len(hits))
	for i, h := range hits {
		out[i] = Project(h.Result, include)
	}
	return out
}

// Project zeroes the fields include leaves out.
func Project(r domain.SearchResult, include Include) domain.SearchResult {
	if !include.Documents {
		r.Chunk.Text = ""
	}
	if !include.Metadatas {
		r.Chunk.Metadata = nil
	}
	if !include.Distances {
		r.Distance = 0
	}
	return r
}

// RecordFromChunk builds the persisted form of an embedded chunk.
func RecordFromChunk(c domain.EmbeddedChunk) domain.Record {
	meta := make(map[string]any, len(c.Metadata)+2)
	for k, v := range c.Metadata {
		meta[k] = v
	}
	meta["source"] = c.SourceID
	meta["chunk_index"] = c.Index
	if c.Locator != "" {
		meta["locator"] = c.Locator
	}
	return domain.Record{ID: c.ID, Vector: c.Vector, Text: c.Text, Metadata: meta}
}

// ChunkFromRecord rebuilds a chunk from stored fields. Backends that keep
// metadata as strings or JSON numbers are handled.
func ChunkFromRecord(id, text string, meta map[string]any) domain.Chunk {
	c := domain.Chunk{ID: id, Text: text, Metadata: meta}
	if v, ok := meta["source"]; ok {
		c.SourceID = fmt.Sprint(v)
	}
	if v, ok := meta["locator"]; ok {
		c.Locator = fmt.Sprint(v)
	} else if v, ok := meta["page"]; ok {
		c.Locator = fmt.Sprint(v)
	}
	switch v := meta["chunk_index"].(type) {
	case int:
		c.Index = v
	case int64:
		c.Index = int(v)
	case float64:
		c.Index = int(v)
	case string:
		c.Index, _ = strconv.Atoi(v)
	}
	return c
}

// CheckQuery validates Query arguments shared by all backends.
func CheckQuery(op string, vector []float32, k int) error {
	if k <= 0 {
		return domain.Errorf(domain.ErrConfig, op, "k must be positive, got %d", k)
	}
	if len(vector) == 0 {
		return domain.Errorf(domain.ErrStore, op, "empty query vector")
	}
	return nil
}
