package pipeline

import (
	"sync"
	"time"

	"github.com/voxlate/voxlate/internal/arbiter"
)

// defaultHistorySize bounds the exchange history when the config leaves it
// zero.
const defaultHistorySize = 32

// Exchange is one completed translation: what was heard and what was said,
// plus the mode that produced it.
type Exchange struct {
	Transcript  string       `json:"transcript"`
	Translation string       `json:"translation"`
	Mode        arbiter.Mode `json:"mode"`
	At          time.Time    `json:"at"`
}

// History keeps the most recent exchanges of one session for the ops status
// endpoint. In-memory only; nothing is persisted. Safe for concurrent use.
type History struct {
	mu      sync.Mutex
	max     int
	entries []Exchange
}

// NewHistory creates a History retaining up to max exchanges. A non-positive
// max falls back to the default.
func NewHistory(max int) *History {
	if max <= 0 {
		max = defaultHistorySize
	}
	return &History{max: max}
}

// Add records one exchange, evicting the oldest once the bound is reached.
func (h *History) Add(e Exchange) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries = append(h.entries, e)
	if len(h.entries) > h.max {
		// Shift in place so the backing array stays bounded.
		n := copy(h.entries, h.entries[len(h.entries)-h.max:])
		h.entries = h.entries[:n]
	}
}

// Recent returns a copy of the retained exchanges, oldest first.
func (h *History) Recent() []Exchange {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]Exchange, len(h.entries))
	copy(out, h.entries)
	return out
}

// Len returns the number of retained exchanges.
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.entries)
}
