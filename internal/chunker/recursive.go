package chunker

import (
	"fmt"
	"strings"

	"ragchat/internal/domain"
)

const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 200
)

// DefaultSeparators go from paragraph break down to single characters.
var DefaultSeparators = []string{"\n\n", "\n", " ", ""}

// CJKSeparators add full-width and ASCII sentence punctuation for mixed Chinese/English pages.
var CJKSeparators = []string{"\n\n", "\n", "。", "！", "？", "；", ".", "!", "?", ";", " ", ""}

// Options configures a RecursiveSplitter.
type Options struct {
	ChunkSize    int
	ChunkOverlap int
	Separators   []string
	// Length defaults to CharLength.
	Length LengthFunc
}

// RecursiveSplitter splits on the coarsest separator that occurs in the text and
// recurses into pieces that are still too long, then merges neighbouring pieces
// into windows that share up to ChunkOverlap of context.
type RecursiveSplitter struct {
	size       int
	overlap    int
	separators []string
	length     LengthFunc
}

// NewRecursiveSplitter validates opts. The overlap must be smaller than the chunk size.
func NewRecursiveSplitter(opts Options) (*RecursiveSplitter, error) {
	if opts.ChunkSize <= 0 {
		return nil, domain.Errorf(domain.ErrConfig, "chunker", "chunk size must be positive, got %d", opts.ChunkSize)
	}
	if opts.ChunkOverlap < 0 {
		return nil, domain.Errorf(domain.ErrConfig, "chunker", "chunk overlap must not be negative, got %d", opts.ChunkOverlap)
	}
	if opts.ChunkOverlap >= opts.ChunkSize {
		return nil, domain.Errorf(domain.ErrConfig, "chunker", "chunk overlap (%d) must be smaller than chunk size (%d)", opts.ChunkOverlap, opts.ChunkSize)
	}
	seps := opts.Separators
	if len(seps) == 0 {
		seps = DefaultSeparators
	}
	length := opts.Length
	if length == nil {
		length = CharLength
	}
	return &RecursiveSplitter{size: opts.ChunkSize, overlap: opts.ChunkOverlap, separators: seps, length: length}, nil
}

// Split chunks every document. Chunk indexes run per source across its documents.
func (s *RecursiveSplitter) Split(documents []domain.Document) ([]domain.Chunk, error) {
	var out []domain.Chunk
	ix := indexer{}
	for _, doc := range documents {
		if doc.SourceID == "" {
			return nil, domain.Errorf(domain.ErrConfig, "chunker", "document without source id")
		}
		for _, text := range s.SplitText(doc.Text) {
			out = append(out, newChunk(doc, ix.next(doc.SourceID), text))
		}
	}
	return out, nil
}

// SplitText splits a single text into chunk strings.
func (s *RecursiveSplitter) SplitText(text string) []string {
	return s.splitText(text, s.separators)
}

func (s *RecursiveSplitter) splitText(text string, separators []string) []string {
	separator := separators[len(separators)-1]
	var finer []string
	for i, sep := range separators {
		if sep == "" {
			separator = sep
			break
		}
		if strings.Contains(text, sep) {
			separator = sep
			finer = separators[i+1:]
			break
		}
	}

	var chunks, good []string
	for _, piece := range splitOn(text, separator) {
		if s.length(piece) <= s.size {
			good = append(good, piece)
			continue
		}
		if len(good) > 0 {
			chunks = append(chunks, s.merge(good, separator)...)
			good = nil
		}
		if len(finer) == 0 {
			chunks = append(chunks, piece)
		} else {
			chunks = append(chunks, s.splitText(piece, finer)...)
		}
	}
	if len(good) > 0 {
		chunks = append(chunks, s.merge(good, separator)...)
	}
	return chunks
}

// merge packs pieces into windows no longer than the chunk size. When a window
// closes, leading pieces are dropped until what remains fits in the overlap, and
// that remainder opens the next window.
func (s *RecursiveSplitter) merge(pieces []string, separator string) []string {
	sepLen := s.length(separator)
	var out, current []string
	total := 0
	joinedLen := func(extra int) int {
		if len(current) > 0 {
			return total + extra + sepLen
		}
		return total + extra
	}

	for _, piece := range pieces {
		n := s.length(piece)
		if joinedLen(n) > s.size && len(current) > 0 {
			if doc := strings.TrimSpace(strings.Join(current, separator)); doc != "" {
				out = append(out, doc)
			}
			for total > s.overlap || (total > 0 && joinedLen(n) > s.size) {
				drop := s.length(current[0])
				if len(current) > 1 {
					drop += sepLen
				}
				total -= drop
				current = current[1:]
			}
		}
		current = append(current, piece)
		if len(current) > 1 {
			total += sepLen
		}
		total += n
	}
	if doc := strings.TrimSpace(strings.Join(current, separator)); doc != "" {
		out = append(out, doc)
	}
	return out
}

func splitOn(text, separator string) []string {
	var parts []string
	if separator == "" {
		parts = make([]string, 0, len(text))
		for _, r := range text {
			parts = append(parts, string(r))
		}
		return parts
	}
	for _, p := range strings.Split(text, separator) {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return parts
}

func (s *RecursiveSplitter) String() string {
	return fmt.Sprintf("recursive(size=%d, overlap=%d)", s.size, s.overlap)
}
