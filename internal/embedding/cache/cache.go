package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"

	"go.uber.org/zap"

	"ragchat/internal/embedding"
)

// Backend stores vectors by key. A miss is (nil, false, nil).
type Backend interface {
	Get(ctx context.Context, key string) ([]float32, bool, error)
	Set(ctx context.Context, key string, vector []float32) error
}

// Embedder serves repeated texts from a Backend and forwards misses to the
// wrapped embedder. Backend failures are logged and treated as misses.
type Embedder struct {
	next    embedding.Embedder
	backend Backend
	logger  *zap.Logger
}

// New wraps next. Embedders that need Prepare should not be cached, since their
// vectors change whenever the corpus does.
func New(next embedding.Embedder, backend Backend, logger *zap.Logger) *Embedder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Embedder{next: next, backend: backend, logger: logger}
}

// Name reports the wrapped embedder's name.
func (e *Embedder) Name() string { return e.next.Name() }

// Key is the cache key for text embedded by the named model.
func Key(model, text string) string {
	sum := sha256.Sum256([]byte(model + "\x00" + text))
	return hex.EncodeToString(sum[:])
}

// Embed returns cached vectors where present and embeds the rest in one call.
func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	var missing []string
	var slots []int
	for i, text := range texts {
		if vec, ok := e.lookup(ctx, text); ok {
			out[i] = vec
			continue
		}
		missing = append(missing, text)
		slots = append(slots, i)
	}
	if len(missing) == 0 {
		return out, nil
	}

	fresh, err := e.next.Embed(ctx, missing)
	if err != nil {
		return nil, err
	}
	if err := embedding.CheckDims("cache.embed", len(missing), fresh); err != nil {
		return nil, err
	}
	for j, vec := range fresh {
		out[slots[j]] = vec
		e.store(ctx, missing[j], vec)
	}
	e.logger.Debug("embedding cache", zap.Int("hits", len(texts)-len(missing)), zap.Int("misses", len(missing)))
	return out, nil
}

// EmbedQuery embeds one text through the cache.
func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if vec, ok := e.lookup(ctx, text); ok {
		return vec, nil
	}
	vec, err := e.next.EmbedQuery(ctx, text)
	if err != nil {
		return nil, err
	}
	e.store(ctx, text, vec)
	return vec, nil
}

func (e *Embedder) lookup(ctx context.Context, text string) ([]float32, bool) {
	vec, ok, err := e.backend.Get(ctx, Key(e.next.Name(), text))
	if err != nil {
		e.logger.Warn("embedding cache read failed", zap.Error(err))
		return nil, false
	}
	return vec, ok
}

func (e *Embedder) store(ctx context.Context, text string, vec []float32) {
	if err := e.backend.Set(ctx, Key(e.next.Name(), text), vec); err != nil {
		e.logger.Warn("embedding cache write failed", zap.Error(err))
	}
}

// Memory is an in-process Backend.
type Memory struct {
	mu      sync.RWMutex
	vectors map[string][]float32
}

// NewMemory creates an empty in-process backend.
func NewMemory() *Memory {
	return &Memory{vectors: make(map[string][]float32)}
}

func (m *Memory) Get(_ context.Context, key string) ([]float32, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	vec, ok := m.vectors[key]
	if !ok {
		return nil, false, nil
	}
	cp := make([]float32, len(vec))
	copy(cp, vec)
	return cp, true, nil
}

func (m *Memory) Set(_ context.Context, key string, vector []float32) error {
	cp := make([]float32, len(vector))
	copy(cp, vector)
	m.mu.Lock()
	m.vectors[key] = cp
	m.mu.Unlock()
	return nil
}

// Len returns the number of cached vectors.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.vectors)
}
