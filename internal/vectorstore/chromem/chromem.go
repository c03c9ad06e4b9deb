package chromem

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strconv"
	"sync"

	"github.com/philippgille/chromem-go"

	"ragchat/internal/domain"
	"ragchat/internal/vectorstore"
)

// Document metadata keys reserved by the store.
const (
	seqKey = "_seq"
	dimKey = "_dim"
)

var errNoEmbeddingFunc = errors.New("records must carry precomputed embeddings")

// noEmbedding stops chromem from calling out to a provider for missing vectors.
func noEmbedding(context.Context, string) ([]float32, error) {
	return nil, errNoEmbeddingFunc
}

// Store wraps a chromem-go database, in memory or persisted to a directory.
type Store struct {
	db *chromem.DB
}

// NewStore returns an in-memory store.
func NewStore() *Store {
	return &Store{db: chromem.NewDB()}
}

// NewPersistentStore opens or creates a database under path.
func NewPersistentStore(path string, compress bool) (*Store, error) {
	db, err := chromem.NewPersistentDB(path, compress)
	if err != nil {
		return nil, domain.Wrap(domain.ErrStore, "chromem.open", fmt.Errorf("open %s: %w", path, err))
	}
	return &Store{db: db}, nil
}

func (s *Store) OpenCollection(_ context.Context, name string, metadata map[string]string) (vectorstore.Collection, error) {
	if name == "" {
		return nil, domain.Errorf(domain.ErrConfig, "chromem.open", "collection name is empty")
	}
	c, err := s.db.GetOrCreateCollection(name, metadata, noEmbedding)
	if err != nil {
		return nil, domain.Wrap(domain.ErrStore, "chromem.open", err)
	}
	return &Collection{c: c}, nil
}

// Collection adapts a chromem collection. chromem normalizes vectors on write
// and reports cosine similarity. chromem does not track the vector size, so
// every document records its own and the collection enforces a single one.
type Collection struct {
	c *chromem.Collection

	mu  sync.Mutex
	dim int
}

func (c *Collection) Name() string { return c.c.Name }

func (c *Collection) Count(context.Context) (int, error) {
	return c.c.Count(), nil
}

func (c *Collection) Existing(ctx context.Context, ids []string) (map[string]bool, error) {
	out := make(map[string]bool, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		// GetByID only fails for unknown ids once the id is non-empty.
		if _, err := c.c.GetByID(ctx, id); err == nil {
			out[id] = true
		}
	}
	return out, nil
}

// Add upserts records. If chromem fails part-way, new ids are deleted and
// overwritten documents are put back.
func (c *Collection) Add(ctx context.Context, records []domain.Record) error {
	dim, err := vectorstore.Validate("chromem.add", records)
	if err != nil || len(records) == 0 {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkDim(ctx, "chromem.add", dim); err != nil {
		return err
	}

	previous := make(map[string]chromem.Document)
	for _, r := range records {
		if doc, err := c.c.GetByID(ctx, r.ID); err == nil {
			previous[r.ID] = doc
		}
	}

	next := c.c.Count()
	docs := make([]chromem.Document, len(records))
	for i, r := range records {
		meta := make(map[string]string, len(r.Metadata)+2)
		for k, v := range r.Metadata {
			meta[k] = fmt.Sprint(v)
		}
		meta[dimKey] = strconv.Itoa(dim)
		if prev, ok := previous[r.ID]; ok {
			meta[seqKey] = prev.Metadata[seqKey]
		} else {
			meta[seqKey] = strconv.Itoa(next)
			next++
		}
		vec := make([]float32, len(r.Vector))
		copy(vec, r.Vector)
		docs[i] = chromem.Document{ID: r.ID, Content: r.Text, Metadata: meta, Embedding: vec}
	}

	if err := c.c.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		c.rollback(records, previous)
		return domain.Classify(domain.ErrStore, "chromem.add", err)
	}
	c.dim = dim
	return nil
}

// checkDim rejects vectors whose size differs from the stored ones. On a
// reopened collection the size is learned by counting the documents tagged
// with dim; any untagged or differently sized document fails the check.
// The caller holds c.mu.
func (c *Collection) checkDim(ctx context.Context, op string, dim int) error {
	if c.dim != 0 {
		if dim != c.dim {
			return domain.Errorf(domain.ErrStore, op, "vector dimension %d, collection has %d", dim, c.dim)
		}
		return nil
	}
	n := c.c.Count()
	if n == 0 {
		return nil
	}
	probe := make([]float32, dim)
	for i := range probe {
		probe[i] = 1
	}
	res, err := c.c.QueryEmbedding(ctx, probe, n, map[string]string{dimKey: strconv.Itoa(dim)}, nil)
	if err != nil {
		return domain.Classify(domain.ErrStore, op, err)
	}
	if len(res) != n {
		return domain.Errorf(domain.ErrStore, op, "vector dimension %d, collection holds %d documents of another size", dim, n-len(res))
	}
	c.dim = dim
	return nil
}

func (c *Collection) rollback(records []domain.Record, previous map[string]chromem.Document) {
	ctx := context.Background()
	var added []string
	var restore []chromem.Document
	for _, r := range records {
		if doc, ok := previous[r.ID]; ok {
			restore = append(restore, doc)
		} else {
			added = append(added, r.ID)
		}
	}
	if len(added) > 0 {
		_ = c.c.Delete(ctx, nil, nil, added...)
	}
	if len(restore) > 0 {
		_ = c.c.AddDocuments(ctx, restore, 1)
	}
}

// Query ranks the whole collection so ties can be broken by insertion order;
// chromem's own top-n selection does not keep a stable order among equals.
func (c *Collection) Query(ctx context.Context, vector []float32, k int, include vectorstore.Include) ([]domain.SearchResult, error) {
	if err := vectorstore.CheckQuery("chromem.query", vector, k); err != nil {
		return nil, err
	}
	n := c.c.Count()
	if n == 0 {
		return nil, nil
	}
	c.mu.Lock()
	err := c.checkDim(ctx, "chromem.query", len(vector))
	c.mu.Unlock()
	if err != nil {
		return nil, err
	}
	res, err := c.c.QueryEmbedding(ctx, vector, n, nil, nil)
	if err != nil {
		return nil, domain.Classify(domain.ErrStore, "chromem.query", err)
	}
	hits := make([]vectorstore.Ranked, len(res))
	for i, r := range res {
		meta := make(map[string]any, len(r.Metadata))
		seq := 0
		for key, v := range r.Metadata {
			switch key {
			case seqKey:
				seq, _ = strconv.Atoi(v)
				continue
			case dimKey:
				continue
			}
			meta[key] = v
		}
		hits[i] = vectorstore.Ranked{
			Result: domain.SearchResult{
				Chunk:    vectorstore.ChunkFromRecord(r.ID, r.Content, meta),
				Distance: 1 - float64(r.Similarity),
			},
			Seq: seq,
		}
	}
	return vectorstore.Rank(hits, k, include), nil
}
