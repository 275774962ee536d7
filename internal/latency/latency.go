// Package latency records per-turn checkpoint timestamps and aggregates
// rolling latency windows.
//
// A translation turn passes four checkpoints: the transport connects, the
// first audio frame is sent, the translated text arrives, and synthesis
// starts. [Tracker] records each at most once per turn; [Metrics] derives
// stage deltas from the marks. A checkpoint that has not been reached is
// absent, never zero — callers must treat absence as "stage not reached".
package latency

import (
	"sync"
	"time"
)

// Checkpoint names one instant in a translation turn.
type Checkpoint string

const (
	// ConnectionEstablished marks the transport reaching its ready state.
	ConnectionEstablished Checkpoint = "connection-established"
	// FirstAudio marks the first audio frame sent on the transport.
	FirstAudio Checkpoint = "first-audio"
	// TranslationReceived marks the first final translation of the turn.
	TranslationReceived Checkpoint = "translation-received"
	// SynthesisStart marks the handoff of translated text to synthesis.
	SynthesisStart Checkpoint = "synthesis-start"
)

// Checkpoints lists all checkpoints in turn order.
var Checkpoints = []Checkpoint{
	ConnectionEstablished,
	FirstAudio,
	TranslationReceived,
	SynthesisStart,
}

// Tracker records turn checkpoints. Safe for concurrent use; transport and
// pipeline goroutines mark independently.
type Tracker struct {
	mu    sync.Mutex
	now   func() time.Time
	marks map[Checkpoint]time.Time
}

// Option configures a Tracker during construction.
type Option func(*Tracker)

// WithClock replaces the wall clock, letting tests control time.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// New constructs an empty Tracker.
func New(opts ...Option) *Tracker {
	t := &Tracker{
		now:   time.Now,
		marks: make(map[Checkpoint]time.Time, len(Checkpoints)),
	}
	for _, o := range opts {
		o(t)
	}
	return t
}

// Mark records the current time for cp unless the checkpoint was already
// recorded this turn. The first write wins; later calls are no-ops. Returns
// true when this call recorded the mark.
func (t *Tracker) Mark(cp Checkpoint) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.marks[cp]; ok {
		return false
	}
	t.marks[cp] = t.now()
	return true
}

// Reset clears all marks. Called at the start of every connection attempt.
// Idempotent.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	clear(t.marks)
}

// Metrics returns an immutable snapshot of the marks recorded so far.
func (t *Tracker) Metrics() Metrics {
	t.mu.Lock()
	defer t.mu.Unlock()
	marks := make(map[Checkpoint]time.Time, len(t.marks))
	for cp, at := range t.marks {
		marks[cp] = at
	}
	return Metrics{marks: marks}
}

// Metrics is a point-in-time view of one turn's checkpoints. Deltas are
// derived on demand, never stored.
type Metrics struct {
	marks map[Checkpoint]time.Time
}

// At returns when cp was recorded. ok is false when the stage has not been
// reached.
func (m Metrics) At(cp Checkpoint) (time.Time, bool) {
	at, ok := m.marks[cp]
	return at, ok
}

// Between returns the delta from checkpoint a to checkpoint b. ok is false
// unless both were recorded.
func (m Metrics) Between(a, b Checkpoint) (time.Duration, bool) {
	from, ok := m.marks[a]
	if !ok {
		return 0, false
	}
	to, ok := m.marks[b]
	if !ok {
		return 0, false
	}
	return to.Sub(from), true
}

// Total returns the end-to-end turn latency, synthesis start minus
// connection established.
func (m Metrics) Total() (time.Duration, bool) {
	return m.Between(ConnectionEstablished, SynthesisStart)
}
