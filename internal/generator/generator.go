package generator

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"ragchat/internal/domain"
	"ragchat/internal/prompt"
)

// DefaultNoAnswer is streamed when retrieval found nothing.
const DefaultNoAnswer = "No relevant information was found in the provided documents."

// DefaultHistoryTurns is how many previous questions are shown to the model.
const DefaultHistoryTurns = 3

// Options configures a Generator.
type Options struct {
	Template     *prompt.Template
	HistoryTurns int
	NoAnswer     string
	Logger       *zap.Logger
}

// Generator turns a question and its retrieved chunks into a streamed answer.
type Generator struct {
	model        domain.ChatModel
	template     *prompt.Template
	historyTurns int
	noAnswer     string
	logger       *zap.Logger
}

func New(model domain.ChatModel, opts Options) *Generator {
	if opts.Template == nil {
		opts.Template = prompt.Default()
	}
	if opts.HistoryTurns <= 0 {
		opts.HistoryTurns = DefaultHistoryTurns
	}
	if opts.NoAnswer == "" {
		opts.NoAnswer = DefaultNoAnswer
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Generator{
		model:        model,
		template:     opts.Template,
		historyTurns: opts.HistoryTurns,
		noAnswer:     opts.NoAnswer,
		logger:       opts.Logger,
	}
}

// Messages renders the prompt for one turn. Only the most recent history turns are kept.
func (g *Generator) Messages(question string, chunks []domain.Chunk, history []domain.Turn) []domain.Message {
	if len(history) > g.historyTurns {
		history = history[len(history)-g.historyTurns:]
	}
	return g.template.Render(question, prompt.FormatContext(chunks), prompt.FormatHistory(history))
}

// Generate streams the answer. With no chunks the model is not called and the
// stream holds the fixed no-information answer.
func (g *Generator) Generate(ctx context.Context, question string, chunks []domain.Chunk, history []domain.Turn) (<-chan domain.Delta, error) {
	if len(chunks) == 0 {
		out := make(chan domain.Delta, 1)
		out <- domain.Delta{Content: g.noAnswer}
		close(out)
		return out, nil
	}
	stream, err := g.model.Stream(ctx, g.Messages(question, chunks, history))
	if err != nil {
		g.logger.Warn("generation failed", zap.String("question", question), zap.Error(err))
		return nil, domain.Classify(domain.ErrGeneration, "generator", err)
	}
	return stream, nil
}

// Collect reads a stream to the end and returns the text received and the
// terminal error, if any.
func Collect(stream <-chan domain.Delta) (string, error) {
	var b strings.Builder
	for d := range stream {
		if d.Err != nil {
			return b.String(), d.Err
		}
		b.WriteString(d.Content)
	}
	return b.String(), nil
}
