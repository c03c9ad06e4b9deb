package session

import (
	"bufio"
	"context"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"ragchat/internal/domain"
	"ragchat/internal/workflow"
)

// Separator is written after every answer.
var Separator = strings.Repeat("=", 60)

// Runner answers one question given the previous ones.
type Runner interface {
	Run(ctx context.Context, question string, history []domain.Turn) (*workflow.State, error)
}

// Options configures a Session.
type Options struct {
	HistorySize int
	// TypingDelay is slept after each streamed rune; zero writes fragments as they arrive.
	TypingDelay time.Duration
	Logger      *zap.Logger
	// Now defaults to time.Now.
	Now func() time.Time
}

// Session is an interactive question loop over a line-oriented reader and writer.
type Session struct {
	id      string
	runner  Runner
	history *History
	delay   time.Duration
	logger  *zap.Logger
	now     func() time.Time
}

func New(runner Runner, opts Options) *Session {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	id := uuid.NewString()
	return &Session{
		id:      id,
		runner:  runner,
		history: NewHistory(opts.HistorySize),
		delay:   opts.TypingDelay,
		logger:  opts.Logger.With(zap.String("session", id)),
		now:     opts.Now,
	}
}

func (s *Session) ID() string { return s.id }

// History returns the questions asked so far, oldest first.
func (s *Session) History() []domain.Turn { return s.history.Turns() }

type styles struct {
	title  lipgloss.Style
	prompt lipgloss.Style
	faint  lipgloss.Style
	err    lipgloss.Style
}

func newStyles(out io.Writer) styles {
	r := lipgloss.NewRenderer(out)
	return styles{
		title:  r.NewStyle().Bold(true),
		prompt: r.NewStyle().Foreground(lipgloss.Color("11")).Bold(true),
		faint:  r.NewStyle().Foreground(lipgloss.Color("8")),
		err:    r.NewStyle().Foreground(lipgloss.Color("9")),
	}
}

// Loop reads one question per line until exit, quit, end of input or
// cancellation of ctx. A failed question is reported and the loop goes on.
func (s *Session) Loop(ctx context.Context, in io.Reader, out io.Writer) error {
	readCtx, stop := context.WithCancel(ctx)
	defer stop()
	st := newStyles(out)
	w := &errWriter{w: out}
	w.printf("%s\n", st.title.Render("=== ragchat ==="))
	w.printf("%s\n\n", st.faint.Render(`Type "exit" or "quit" to leave.`))

	lines := make(chan string)
	readErr := make(chan error, 1)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		sc.Buffer(make([]byte, 64*1024), 1024*1024)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-readCtx.Done():
				return
			}
		}
		readErr <- sc.Err()
	}()

	for {
		w.printf("%s ", st.prompt.Render("Question:"))
		if w.err != nil {
			return w.err
		}
		var line string
		var ok bool
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok = <-lines:
		}
		if !ok {
			w.printf("\n")
			select {
			case err := <-readErr:
				return err
			default:
				return ctx.Err()
			}
		}

		question := strings.TrimSpace(line)
		switch strings.ToLower(question) {
		case "exit", "quit":
			w.printf("\n%s\n", st.title.Render("=== Goodbye ==="))
			return w.err
		case "":
			w.printf("%s\n\n", st.faint.Render("Please enter a question."))
			continue
		}

		if err := s.ask(ctx, question, w, st); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.logger.Warn("question failed", zap.String("question", question), zap.Error(err))
			w.printf("\n%s\n", st.err.Render("Error: "+err.Error()))
		}
		w.printf("\n%s\n\n", Separator)
		if w.err != nil {
			return w.err
		}
	}
}

// ask runs one question and streams its answer. The runner is given the
// turns before this one.
func (s *Session) ask(ctx context.Context, question string, w *errWriter, st styles) error {
	previous := s.history.Turns()
	s.history.Add(question, s.now())

	state, err := s.runner.Run(ctx, question, previous)
	if err != nil {
		return err
	}
	w.printf("\n%s\n", st.faint.Render("Answer:"))
	for d := range state.Stream {
		if d.Err != nil {
			drain(state.Stream)
			return d.Err
		}
		s.write(ctx, w, d.Content)
	}
	w.printf("\n")
	return nil
}

func (s *Session) write(ctx context.Context, w *errWriter, text string) {
	if s.delay <= 0 {
		w.printf("%s", text)
		return
	}
	for _, r := range text {
		w.printf("%c", r)
		select {
		case <-ctx.Done():
			return
		case <-time.After(s.delay):
		}
	}
}

func drain(ch <-chan domain.Delta) {
	for range ch {
	}
}
