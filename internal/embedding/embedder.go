package embedding

import (
	"context"
	"fmt"

	"ragchat/internal/domain"
)

// Embedder converts text into fixed-length vectors. Embed returns one vector per
// input, in input order; EmbedQuery returns a vector of the same dimension.
type Embedder interface {
	Name() string
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Preparer is implemented by embedders that must be fitted on the corpus first.
// Prepared reports whether Prepare has succeeded.
type Preparer interface {
	Prepare(corpus []string) error
	Prepared() bool
}

// CheckDims verifies an Embed response: one non-empty vector per input, all of equal length.
func CheckDims(op string, inputs int, vectors [][]float32) error {
	if len(vectors) != inputs {
		return domain.Wrap(domain.ErrEmbedding, op, fmt.Errorf("got %d vectors for %d inputs", len(vectors), inputs))
	}
	dim := -1
	for i, v := range vectors {
		if len(v) == 0 {
			return domain.Wrap(domain.ErrEmbedding, op, fmt.Errorf("empty vector at %d", i))
		}
		if dim == -1 {
			dim = len(v)
		} else if len(v) != dim {
			return domain.Wrap(domain.ErrEmbedding, op, fmt.Errorf("vector %d has dimension %d, want %d", i, len(v), dim))
		}
	}
	return nil
}
