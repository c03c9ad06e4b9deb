package session

import (
	"sync"
	"time"

	"ragchat/internal/domain"
)

// DefaultHistorySize is the number of turns a History keeps.
const DefaultHistorySize = 10

// History is a fixed-size ring of the most recent questions.
type History struct {
	mu    sync.Mutex
	turns []domain.Turn
	next  int
	full  bool
}

func NewHistory(size int) *History {
	if size <= 0 {
		size = DefaultHistorySize
	}
	return &History{turns: make([]domain.Turn, size)}
}

// Add records a question, overwriting the oldest turn once the ring is full.
func (h *History) Add(question string, at time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.turns[h.next] = domain.Turn{Question: question, Timestamp: at}
	h.next = (h.next + 1) % len(h.turns)
	if h.next == 0 {
		h.full = true
	}
}

// Turns returns a copy of the kept turns, oldest first.
func (h *History) Turns() []domain.Turn {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.full {
		return append([]domain.Turn(nil), h.turns[:h.next]...)
	}
	out := make([]domain.Turn, 0, len(h.turns))
	out = append(out, h.turns[h.next:]...)
	return append(out, h.turns[:h.next]...)
}

func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.full {
		return len(h.turns)
	}
	return h.next
}
