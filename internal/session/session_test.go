package session

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"ragchat/internal/domain"
	"ragchat/internal/workflow"
)

type call struct {
	question string
	history  []domain.Turn
}

// scriptedRunner answers "answer to <q>" unless q has a scripted error.
type scriptedRunner struct {
	calls     []call
	failRun   map[string]error
	failDelta map[string]error
}

func (r *scriptedRunner) Run(_ context.Context, q string, history []domain.Turn) (*workflow.State, error) {
	r.calls = append(r.calls, call{question: q, history: history})
	if err := r.failRun[q]; err != nil {
		return nil, err
	}
	ch := make(chan domain.Delta, 2)
	ch <- domain.Delta{Content: "answer to " + q}
	if err := r.failDelta[q]; err != nil {
		ch <- domain.Delta{Err: err}
	}
	close(ch)
	return &workflow.State{Question: q, Stream: ch}, nil
}

func TestHistory_RingKeepsNewest(t *testing.T) {
	h := NewHistory(3)
	assert.Empty(t, h.Turns())
	for _, q := range []string{"a", "b", "c", "d", "e"} {
		h.Add(q, time.Time{})
	}
	assert.Equal(t, 3, h.Len())
	var got []string
	for _, turn := range h.Turns() {
		got = append(got, turn.Question)
	}
	assert.Equal(t, []string{"c", "d", "e"}, got)
}

func TestLoop_ExitAndEmptyInput(t *testing.T) {
	for _, word := range []string{"exit", "quit", "  QUIT  ", "Exit"} {
		t.Run(word, func(t *testing.T) {
			runner := &scriptedRunner{}
			s := New(runner, Options{})
			in := strings.NewReader("\n   \n" + word + "\nnever asked\n")
			var out bytes.Buffer

			require.NoError(t, s.Loop(context.Background(), in, &out))
			assert.Empty(t, runner.calls)
			assert.Empty(t, s.History())
			assert.Equal(t, 2, strings.Count(out.String(), "Please enter a question."))
			assert.Contains(t, out.String(), "Goodbye")
		})
	}
}

func TestLoop_StreamsAnswersAndPassesHistory(t *testing.T) {
	runner := &scriptedRunner{}
	s := New(runner, Options{})
	var out bytes.Buffer

	require.NoError(t, s.Loop(context.Background(), strings.NewReader("first?\n  second?  \n"), &out))

	require.Len(t, runner.calls, 2)
	assert.Equal(t, "second?", runner.calls[1].question)
	assert.Empty(t, runner.calls[0].history)
	require.Len(t, runner.calls[1].history, 1)
	assert.Equal(t, "first?", runner.calls[1].history[0].Question)

	text := out.String()
	assert.Contains(t, text, "answer to first?")
	assert.Contains(t, text, "answer to second?")
	assert.Equal(t, 2, strings.Count(text, "\n"+Separator+"\n"))
	assert.Len(t, Separator, 60)
}

func TestLoop_FailedQuestionDoesNotStopLoop(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	runner := &scriptedRunner{
		failRun:   map[string]error{"bad?": domain.Wrap(domain.ErrGeneration, "chat", errors.New("401"))},
		failDelta: map[string]error{"slow?": domain.Wrap(domain.ErrTimeout, "chat", context.DeadlineExceeded)},
	}
	s := New(runner, Options{Logger: zap.New(core)})
	var out bytes.Buffer

	require.NoError(t, s.Loop(context.Background(), strings.NewReader("bad?\nslow?\nok?\nexit\n"), &out))

	assert.Len(t, runner.calls, 3)
	text := out.String()
	assert.Contains(t, text, "generation failed")
	assert.Contains(t, text, "answer to slow?")
	assert.Contains(t, text, "timeout")
	assert.Contains(t, text, "answer to ok?")
	assert.Equal(t, 3, strings.Count(text, Separator))
	assert.Equal(t, 2, logs.FilterMessage("question failed").Len())
	assert.Len(t, s.History(), 3)
}

func TestLoop_TypingDelay(t *testing.T) {
	runner := &scriptedRunner{}
	s := New(runner, Options{TypingDelay: time.Millisecond})
	var out bytes.Buffer

	start := time.Now()
	require.NoError(t, s.Loop(context.Background(), strings.NewReader("hi\n"), &out))
	assert.GreaterOrEqual(t, time.Since(start), time.Duration(len("answer to hi"))*time.Millisecond)
	assert.Contains(t, out.String(), "answer to hi")
}

func TestLoop_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	pr, pw := io.Pipe()
	defer pw.Close()

	err := New(&scriptedRunner{}, Options{}).Loop(ctx, pr, &bytes.Buffer{})
	assert.ErrorIs(t, err, context.Canceled)
}
