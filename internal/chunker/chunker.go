package chunker

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"strconv"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"

	"ragchat/internal/domain"
)

// LengthFunc measures a piece of text in the unit chunk sizes are expressed in.
type LengthFunc func(text string) int

// CharLength counts runes.
func CharLength(text string) int { return utf8.RuneCountInString(text) }

// TokenLength returns a LengthFunc counting tiktoken tokens of the named encoding
// (for example "cl100k_base").
func TokenLength(encoding string) (LengthFunc, error) {
	if encoding == "" {
		encoding = "cl100k_base"
	}
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, domain.Wrap(domain.ErrConfig, "chunker.tokens", fmt.Errorf("load encoding %q: %w", encoding, err))
	}
	return func(text string) int {
		return len(enc.Encode(text, nil, nil))
	}, nil
}

// ChunkID derives the stable id of the index-th chunk of a source.
// It depends only on position, so re-ingesting an unchanged source yields the same ids.
func ChunkID(sourceID string, index int) string {
	h := sha1.Sum([]byte(sourceID))
	return hex.EncodeToString(h[:8]) + ":" + strconv.Itoa(index)
}

// indexer hands out per-source ordinals so pages of one source share a sequence.
type indexer map[string]int

func (ix indexer) next(sourceID string) int {
	n := ix[sourceID]
	ix[sourceID] = n + 1
	return n
}

func newChunk(doc domain.Document, index int, text string) domain.Chunk {
	meta := make(map[string]any, len(doc.Metadata)+3)
	for k, v := range doc.Metadata {
		meta[k] = v
	}
	meta["source"] = doc.SourceID
	meta["chunk_index"] = index
	if doc.Locator != "" {
		meta["locator"] = doc.Locator
	}
	return domain.Chunk{
		ID:       ChunkID(doc.SourceID, index),
		SourceID: doc.SourceID,
		Locator:  doc.Locator,
		Index:    index,
		Text:     text,
		Metadata: meta,
	}
}
