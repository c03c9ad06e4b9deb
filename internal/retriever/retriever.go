package retriever

import (
	"context"
	"regexp"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"ragchat/internal/domain"
	"ragchat/internal/embedding"
	"ragchat/internal/vectorstore"
)

const (
	DefaultK        = 5
	DefaultKeywordK = 3
)

// keywordSplit separates keywords on whitespace and ASCII or full-width punctuation.
var keywordSplit = regexp.MustCompile(`[\s,.;:!?()"'，。！？；：、（）《》“”]+`)

// Options configures a Retriever.
type Options struct {
	// K is the whole-query result count.
	K int
	// KeywordK is the per-keyword result count; it must be smaller than K.
	KeywordK        int
	DisableKeywords bool
	Logger          *zap.Logger
}

// Retriever runs a whole-query search followed by one search per keyword and
// merges the results, dropping chunks whose text was already found.
type Retriever struct {
	embedder   embedding.Embedder
	collection vectorstore.Collection
	k          int
	keywordK   int
	keywords   bool
	logger     *zap.Logger
}

func New(embedder embedding.Embedder, collection vectorstore.Collection, opts Options) (*Retriever, error) {
	if opts.K == 0 {
		opts.K = DefaultK
	}
	if opts.KeywordK == 0 {
		opts.KeywordK = DefaultKeywordK
	}
	if opts.K < 0 || opts.KeywordK < 0 {
		return nil, domain.Errorf(domain.ErrConfig, "retriever", "k and keyword k must be positive")
	}
	if opts.KeywordK >= opts.K {
		return nil, domain.Errorf(domain.ErrConfig, "retriever", "keyword k (%d) must be smaller than k (%d)", opts.KeywordK, opts.K)
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Retriever{
		embedder:   embedder,
		collection: collection,
		k:          opts.K,
		keywordK:   opts.KeywordK,
		keywords:   !opts.DisableKeywords,
		logger:     logger,
	}, nil
}

// Keywords lower-cases query and returns its distinct terms longer than one character.
func Keywords(query string) []string {
	var out []string
	seen := make(map[string]struct{})
	for _, w := range keywordSplit.Split(strings.ToLower(query), -1) {
		if utf8.RuneCountInString(w) <= 1 {
			continue
		}
		if _, ok := seen[w]; ok {
			continue
		}
		seen[w] = struct{}{}
		out = append(out, w)
	}
	return out
}

// Retrieve returns whole-query hits in rank order, then keyword hits not seen
// before. A failing search is logged and skipped; only cancellation of ctx is
// returned as an error.
func (r *Retriever) Retrieve(ctx context.Context, query string) (domain.RetrievalResult, error) {
	var out domain.RetrievalResult
	seen := make(map[string]struct{})
	merge := func(hits []domain.SearchResult) {
		for _, h := range hits {
			if _, dup := seen[h.Chunk.Text]; dup {
				continue
			}
			seen[h.Chunk.Text] = struct{}{}
			out = append(out, h)
		}
	}

	hits, err := r.search(ctx, query, r.k)
	if err != nil {
		if ctx.Err() != nil {
			return nil, domain.Classify(domain.ErrStore, "retriever", ctx.Err())
		}
		r.logger.Warn("whole-query search failed", zap.String("query", query), zap.Error(err))
	}
	merge(hits)

	if !r.keywords {
		return out, nil
	}
	for _, kw := range Keywords(query) {
		hits, err := r.search(ctx, kw, r.keywordK)
		if err != nil {
			if ctx.Err() != nil {
				return nil, domain.Classify(domain.ErrStore, "retriever", ctx.Err())
			}
			r.logger.Warn("keyword search failed", zap.String("keyword", kw), zap.Error(err))
			continue
		}
		merge(hits)
	}
	r.logger.Debug("retrieved", zap.String("query", query), zap.Int("chunks", len(out)))
	return out, nil
}

func (r *Retriever) search(ctx context.Context, text string, k int) ([]domain.SearchResult, error) {
	vec, err := r.embedder.EmbedQuery(ctx, text)
	if err != nil {
		return nil, err
	}
	return r.collection.Query(ctx, vec, k, vectorstore.IncludeAll)
}
