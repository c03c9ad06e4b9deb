package memory

import (
	"context"
	"sync"

	"ragchat/internal/domain"
	"ragchat/internal/vectorstore"
)

// Store keeps collections in process memory. Nothing survives a restart.
type Store struct {
	mu          sync.Mutex
	collections map[string]*Collection
}

func NewStore() *Store {
	return &Store{collections: make(map[string]*Collection)}
}

func (s *Store) OpenCollection(_ context.Context, name string, metadata map[string]string) (vectorstore.Collection, error) {
	if name == "" {
		return nil, domain.Errorf(domain.ErrConfig, "memory.open", "collection name is empty")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.collections[name]; ok {
		return c, nil
	}
	meta := make(map[string]string, len(metadata))
	for k, v := range metadata {
		meta[k] = v
	}
	c := &Collection{name: name, metadata: meta, entries: make(map[string]*entry)}
	s.collections[name] = c
	return c, nil
}

type entry struct {
	seq      int
	vector   []float32
	text     string
	metadata map[string]any
}

// Collection is a brute-force cosine collection guarded by an RWMutex.
type Collection struct {
	mu        sync.RWMutex
	name      string
	metadata  map[string]string
	dimension int
	entries   map[string]*entry
	order     []string
}

func (c *Collection) Name() string { return c.name }

// Metadata returns the metadata the collection was created with.
func (c *Collection) Metadata() map[string]string {
	out := make(map[string]string, len(c.metadata))
	for k, v := range c.metadata {
		out[k] = v
	}
	return out
}

func (c *Collection) Count(context.Context) (int, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries), nil
}

func (c *Collection) Existing(_ context.Context, ids []string) (map[string]bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]bool, len(ids))
	for _, id := range ids {
		if _, ok := c.entries[id]; ok {
			out[id] = true
		}
	}
	return out, nil
}

func (c *Collection) Add(_ context.Context, records []domain.Record) error {
	dim, err := vectorstore.Validate("memory.add", records)
	if err != nil || len(records) == 0 {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.dimension != 0 && dim != c.dimension {
		return domain.Errorf(domain.ErrStore, "memory.add", "vector dimension %d, collection has %d", dim, c.dimension)
	}
	c.dimension = dim
	for _, r := range records {
		vec := make([]float32, len(r.Vector))
		copy(vec, r.Vector)
		meta := make(map[string]any, len(r.Metadata))
		for k, v := range r.Metadata {
			meta[k] = v
		}
		if e, ok := c.entries[r.ID]; ok {
			e.vector, e.text, e.metadata = vec, r.Text, meta
			continue
		}
		c.entries[r.ID] = &entry{seq: len(c.order), vector: vec, text: r.Text, metadata: meta}
		c.order = append(c.order, r.ID)
	}
	return nil
}

func (c *Collection) Query(ctx context.Context, vector []float32, k int, include vectorstore.Include) ([]domain.SearchResult, error) {
	if err := vectorstore.CheckQuery("memory.query", vector, k); err != nil {
		return nil, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.entries) == 0 {
		return nil, nil
	}
	if len(vector) != c.dimension {
		return nil, domain.Errorf(domain.ErrStore, "memory.query", "query dimension %d, collection has %d", len(vector), c.dimension)
	}
	hits := make([]vectorstore.Ranked, 0, len(c.order))
	for _, id := range c.order {
		if err := ctx.Err(); err != nil {
			return nil, domain.Classify(domain.ErrStore, "memory.query", err)
		}
		e := c.entries[id]
		meta := make(map[string]any, len(e.metadata))
		for k, v := range e.metadata {
			meta[k] = v
		}
		hits = append(hits, vectorstore.Ranked{
			Result: domain.SearchResult{
				Chunk:    vectorstore.ChunkFromRecord(id, e.text, meta),
				Distance: vectorstore.CosineDistance(vector, e.vector),
			},
			Seq: e.seq,
		})
	}
	return vectorstore.Rank(hits, k, include), nil
}
