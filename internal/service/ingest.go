package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"ragchat/internal/domain"
	"ragchat/internal/embedding"
	"ragchat/internal/summarizer"
	"ragchat/internal/vectorstore"
)

// Collection is a quota-bounded vector collection.
type Collection interface {
	vectorstore.Collection
	Limit() int
	Remaining(ctx context.Context) (int, error)
}

// Report describes one ingestion run.
type Report struct {
	Sources   []string
	Documents int
	// Requested is the number of chunks produced by the chunker.
	Requested int
	// Stored is the number of chunks written, upserts included.
	Stored int
	// Updated counts stored chunks whose id was already present.
	Updated int
	// Dropped counts chunks cut off by the quota.
	Dropped int
	Summary string
}

func (r *Report) Truncated() bool { return r.Dropped > 0 }

// Options configures an Ingestor.
type Options struct {
	// SummarySentences sets the digest length; negative disables the digest.
	SummarySentences int
	Logger           *zap.Logger
}

// Ingestor loads sources, chunks them, truncates to the collection's quota,
// embeds what is left and stores it.
type Ingestor struct {
	loader     domain.Loader
	chunker    domain.Chunker
	embedder   embedding.Embedder
	collection Collection
	summarizer *summarizer.Frequency
	sentences  int
	logger     *zap.Logger
}

func NewIngestor(loader domain.Loader, chunker domain.Chunker, embedder embedding.Embedder, collection Collection, opts Options) *Ingestor {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	ing := &Ingestor{
		loader:     loader,
		chunker:    chunker,
		embedder:   embedder,
		collection: collection,
		sentences:  opts.SummarySentences,
		logger:     logger,
	}
	if opts.SummarySentences >= 0 {
		ing.summarizer = summarizer.NewFrequency()
	}
	return ing
}

// Ingest runs the whole pipeline. Any load, chunk or embedding failure aborts
// before the collection is touched. When the quota cannot hold every new
// chunk, the first ones in source order are kept and the rest are dropped
// with a warning.
func (s *Ingestor) Ingest(ctx context.Context, sources ...string) (*Report, error) {
	if len(sources) == 0 {
		return nil, domain.Errorf(domain.ErrIngest, "ingest", "no sources given")
	}
	report := &Report{Sources: sources}

	var docs []domain.Document
	for _, src := range sources {
		loaded, err := s.loader.Load(ctx, src)
		if err != nil {
			return nil, err
		}
		s.logger.Debug("loaded source", zap.String("source", src), zap.Int("documents", len(loaded)))
		docs = append(docs, loaded...)
	}
	report.Documents = len(docs)

	chunks, err := s.chunker.Split(docs)
	if err != nil {
		return nil, err
	}
	if len(chunks) == 0 {
		return nil, domain.Errorf(domain.ErrIngest, "ingest", "sources produced no chunks")
	}
	report.Requested = len(chunks)

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	if p, ok := s.embedder.(embedding.Preparer); ok {
		if err := p.Prepare(texts); err != nil {
			return nil, err
		}
	}

	kept, err := s.fitQuota(ctx, chunks, report)
	if err != nil {
		return nil, err
	}
	if report.Truncated() {
		s.logger.Warn("quota reached, truncating ingestion",
			zap.String("collection", s.collection.Name()),
			zap.Int("limit", s.collection.Limit()),
			zap.Int("requested", len(chunks)),
			zap.Int("kept", len(kept)),
			zap.Int("dropped", report.Dropped))
	}

	if len(kept) > 0 {
		if err := s.store(ctx, kept); err != nil {
			return nil, err
		}
	}
	report.Stored = len(kept)

	if s.summarizer != nil {
		report.Summary = s.summarizer.Summarize(texts, s.sentences)
	}
	s.logger.Info("ingested",
		zap.Strings("sources", sources),
		zap.Int("documents", report.Documents),
		zap.Int("stored", report.Stored),
		zap.Int("updated", report.Updated),
		zap.Int("dropped", report.Dropped))
	return report, nil
}

// fitQuota keeps every chunk already stored and as many new chunks as the
// collection has room for, preserving order. A chunk id seen twice in one run
// (the same source given twice) is kept once.
func (s *Ingestor) fitQuota(ctx context.Context, chunks []domain.Chunk, report *Report) ([]domain.Chunk, error) {
	ids := make([]string, len(chunks))
	for i, c := range chunks {
		ids[i] = c.ID
	}
	existing, err := s.collection.Existing(ctx, ids)
	if err != nil {
		return nil, err
	}
	room, err := s.collection.Remaining(ctx)
	if err != nil {
		return nil, err
	}
	kept := make([]domain.Chunk, 0, len(chunks))
	seen := make(map[string]struct{}, len(chunks))
	for _, c := range chunks {
		if _, dup := seen[c.ID]; dup {
			continue
		}
		seen[c.ID] = struct{}{}
		switch {
		case existing[c.ID]:
			report.Updated++
		case room > 0:
			room--
		default:
			report.Dropped++
			continue
		}
		kept = append(kept, c)
	}
	return kept, nil
}

func (s *Ingestor) store(ctx context.Context, chunks []domain.Chunk) error {
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vectors, err := s.embedder.Embed(ctx, texts)
	if err != nil {
		return err
	}
	if err := embedding.CheckDims(s.embedder.Name(), len(texts), vectors); err != nil {
		return err
	}
	records := make([]domain.Record, len(chunks))
	for i, c := range chunks {
		records[i] = vectorstore.RecordFromChunk(domain.EmbeddedChunk{Chunk: c, Vector: vectors[i]})
	}
	if err := s.collection.Add(ctx, records); err != nil {
		return fmt.Errorf("store %d chunks: %w", len(records), err)
	}
	return nil
}
