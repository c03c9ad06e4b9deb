package chunker

import (
	"regexp"
	"strings"

	"ragchat/internal/domain"
)

// SentenceChunker groups whole sentences into chunks, repeating the last
// overlapSentences sentences at the start of the following chunk.
type SentenceChunker struct {
	sentencesPerChunk int
	overlapSentences  int
	splitter          *regexp.Regexp
}

// NewSentenceChunker fails with ErrConfig when the overlap is not smaller than the chunk.
func NewSentenceChunker(sentencesPerChunk, overlapSentences int) (*SentenceChunker, error) {
	if sentencesPerChunk <= 0 {
		sentencesPerChunk = 5
	}
	if overlapSentences < 0 {
		overlapSentences = 0
	}
	if overlapSentences >= sentencesPerChunk {
		return nil, domain.Errorf(domain.ErrConfig, "chunker.sentence", "overlap (%d) must be smaller than sentences per chunk (%d)", overlapSentences, sentencesPerChunk)
	}
	return &SentenceChunker{
		sentencesPerChunk: sentencesPerChunk,
		overlapSentences:  overlapSentences,
		splitter:          regexp.MustCompile(`(?m)(?U)([^.!?。！？]+[.!?。！？])`),
	}, nil
}

// Split chunks every document. Chunk indexes run per source across its documents.
func (c *SentenceChunker) Split(documents []domain.Document) ([]domain.Chunk, error) {
	var out []domain.Chunk
	ix := indexer{}
	for _, doc := range documents {
		if doc.SourceID == "" {
			return nil, domain.Errorf(domain.ErrConfig, "chunker.sentence", "document without source id")
		}
		for _, text := range c.group(c.sentences(doc.Text)) {
			out = append(out, newChunk(doc, ix.next(doc.SourceID), text))
		}
	}
	return out, nil
}

func (c *SentenceChunker) sentences(text string) []string {
	found := c.splitter.FindAllStringIndex(text, -1)
	var sentences []string
	end := 0
	for _, loc := range found {
		if s := strings.TrimSpace(text[loc[0]:loc[1]]); s != "" {
			sentences = append(sentences, s)
		}
		end = loc[1]
	}
	// Trailing text without terminal punctuation is still a sentence.
	if tail := strings.TrimSpace(text[end:]); tail != "" {
		sentences = append(sentences, tail)
	}
	return sentences
}

func (c *SentenceChunker) group(sentences []string) []string {
	var chunks []string
	i := 0
	for i < len(sentences) {
		end := i + c.sentencesPerChunk
		if end > len(sentences) {
			end = len(sentences)
		}
		chunks = append(chunks, strings.Join(sentences[i:end], " "))
		if end == len(sentences) {
			break
		}
		i = end - c.overlapSentences
	}
	return chunks
}
