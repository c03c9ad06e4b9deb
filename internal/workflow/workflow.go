package workflow

import (
	"context"
	"time"

	"go.uber.org/zap"

	"ragchat/internal/domain"
)

// Node names a step of the question-answering graph.
type Node string

const (
	Start    Node = "START"
	Retrieve Node = "RETRIEVE"
	Generate Node = "GENERATE"
	End      Node = "END"
)

// edges is the whole graph: strictly linear, no branches.
var edges = map[Node]Node{
	Start:    Retrieve,
	Retrieve: Generate,
	Generate: End,
}

// Retriever finds the chunks relevant to a question.
type Retriever interface {
	Retrieve(ctx context.Context, query string) (domain.RetrievalResult, error)
}

// Generator streams an answer from a question and its chunks.
type Generator interface {
	Generate(ctx context.Context, question string, chunks []domain.Chunk, history []domain.Turn) (<-chan domain.Delta, error)
}

// State is what flows through the graph for one question.
type State struct {
	Question string
	Context  domain.RetrievalResult
	Stream   <-chan domain.Delta
	// Trace lists the nodes visited, START and END included.
	Trace []Node
}

// Graph wires retrieval to generation.
type Graph struct {
	retriever Retriever
	generator Generator
	logger    *zap.Logger
}

func New(r Retriever, g Generator, logger *zap.Logger) *Graph {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Graph{retriever: r, generator: g, logger: logger}
}

// Run walks START → RETRIEVE → GENERATE → END. An empty retrieval still
// reaches GENERATE. The returned state's Stream must be drained by the caller.
func (g *Graph) Run(ctx context.Context, question string, history []domain.Turn) (*State, error) {
	st := &State{Question: question}
	for node := Start; ; node = edges[node] {
		st.Trace = append(st.Trace, node)
		if node == End {
			return st, nil
		}
		started := time.Now()
		if err := g.step(ctx, node, st, history); err != nil {
			return st, err
		}
		if node != Start {
			g.logger.Debug("node done", zap.String("node", string(node)), zap.Duration("took", time.Since(started)))
		}
	}
}

func (g *Graph) step(ctx context.Context, node Node, st *State, history []domain.Turn) error {
	switch node {
	case Retrieve:
		res, err := g.retriever.Retrieve(ctx, st.Question)
		if err != nil {
			return err
		}
		st.Context = res
	case Generate:
		stream, err := g.generator.Generate(ctx, st.Question, st.Context.Chunks(), history)
		if err != nil {
			return err
		}
		st.Stream = stream
	}
	return nil
}
