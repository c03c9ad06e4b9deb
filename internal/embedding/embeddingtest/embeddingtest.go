// Package embeddingtest provides a deterministic embedder for tests.
package embeddingtest

import (
	"context"
	"strings"
	"sync"

	"ragchat/internal/domain"
)

// Vocabulary embeds text as term counts over a fixed vocabulary, plus a small
// constant component so no vector is zero.
type Vocabulary struct {
	terms []string

	mu    sync.Mutex
	fail  map[string]error
	calls int
}

func New(terms ...string) *Vocabulary {
	lower := make([]string, len(terms))
	for i, t := range terms {
		lower[i] = strings.ToLower(t)
	}
	return &Vocabulary{terms: lower, fail: make(map[string]error)}
}

// FailOn makes embedding text return err.
func (v *Vocabulary) FailOn(text string, err error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.fail[text] = err
}

// Calls returns how many texts were embedded.
func (v *Vocabulary) Calls() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.calls
}

func (v *Vocabulary) Name() string { return "vocabulary" }

func (v *Vocabulary) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		vec, err := v.EmbedQuery(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

func (v *Vocabulary) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, domain.Classify(domain.ErrEmbedding, "embeddingtest", err)
	}
	v.mu.Lock()
	v.calls++
	err := v.fail[text]
	v.mu.Unlock()
	if err != nil {
		return nil, err
	}
	lower := strings.ToLower(text)
	vec := make([]float32, len(v.terms)+1)
	for i, term := range v.terms {
		vec[i] = float32(strings.Count(lower, term))
	}
	vec[len(v.terms)] = 0.01
	return vec, nil
}
