package domain

import (
	"context"
	"time"
)

// Document is one unit of loaded content: a text file, a PDF page or a web page.
type Document struct {
	Text     string
	SourceID string
	// Locator is the page number (PDF) or section within the source; empty when unknown.
	Locator  string
	Metadata map[string]any
}

// Chunk is a contiguous window of a document's text used as the retrieval unit.
type Chunk struct {
	ID       string
	SourceID string
	Locator  string
	Index    int
	Text     string
	Metadata map[string]any
}

// EmbeddedChunk pairs a chunk with its embedding vector.
type EmbeddedChunk struct {
	Chunk
	Vector []float32
}

// Record is the persisted form of an embedded chunk.
type Record struct {
	ID       string
	Vector   []float32
	Text     string
	Metadata map[string]any
}

// SearchResult is a matching chunk with its distance to the query (smaller is closer).
type SearchResult struct {
	Chunk    Chunk
	Distance float64
}

// RetrievalResult is the ranked, text-deduplicated output of a retrieval.
type RetrievalResult []SearchResult

// Chunks returns the chunks of the result in rank order.
func (r RetrievalResult) Chunks() []Chunk {
	out := make([]Chunk, len(r))
	for i := range r {
		out[i] = r[i].Chunk
	}
	return out
}

// IDs returns the chunk ids of the result in rank order.
func (r RetrievalResult) IDs() []string {
	out := make([]string, len(r))
	for i := range r {
		out[i] = r[i].Chunk.ID
	}
	return out
}

// Turn is one question asked during a session.
type Turn struct {
	Question  string
	Timestamp time.Time
}

// Message roles understood by chat models.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is a role-tagged chat message.
type Message struct {
	Role    string
	Content string
}

// Delta is one streamed fragment of a model answer. A non-nil Err ends the stream.
type Delta struct {
	Content string
	Err     error
}

// Loader turns a source specifier (file path, glob or URL) into documents.
type Loader interface {
	Load(ctx context.Context, source string) ([]Document, error)
}

// Chunker splits documents into chunks suitable for embedding.
type Chunker interface {
	Split(documents []Document) ([]Chunk, error)
}

// ChatModel streams a completion for a list of messages.
type ChatModel interface {
	Stream(ctx context.Context, messages []Message) (<-chan Delta, error)
}
