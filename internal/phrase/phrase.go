// Package phrase aggregates partial translation text into natural,
// synthesis-ready phrases.
//
// Waiting for a full translated sentence before speaking produces long
// silences; speaking every partial fragment produces stutter. The
// [Aggregator] sits between: it reconciles incremental updates into a
// buffer and emits the buffer to a synthesis [Sink] at natural break
// points, in priority order:
//
//  1. the buffer ends with terminal punctuation — emit immediately;
//  2. the buffer is long enough and contains a pause indicator (comma,
//     semicolon, colon, or a conjunction as a whole word) — emit
//     immediately;
//  3. a max-wait timer bounds time-to-first-audio for text that never
//     hits either heuristic.
//
// While the sink is settling a phrase (plus a short cooldown), emissions
// are deferred so phrases keep speak order and never overlap. A failing or
// panicking sink is logged and the buffer cleared regardless, so one bad
// emission cannot wedge the stream.
//
// AddPartial calls must be serialized per session (they arrive from one
// translation-event stream); the internal mutex only coordinates the timer
// callbacks with that single writer.
package phrase

import (
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode"
	"unicode/utf8"
)

// Sink receives finished phrases for synthesis. Speak should treat the call
// as a handoff to a queue and return promptly; the aggregator defers further
// emissions until it returns plus a short cooldown.
type Sink interface {
	Speak(text string) error
}

// Config holds tuning knobs for an [Aggregator].
type Config struct {
	// MinEmitLength is the minimum buffer length (in runes) before the
	// pause-indicator heuristic may emit. Terminal punctuation emits
	// regardless of length. Default: 10.
	MinEmitLength int

	// MaxWait bounds how long buffered text may sit unemitted. Default:
	// 900ms.
	MaxWait time.Duration

	// Cooldown is how long after a sink handoff the aggregator holds back
	// the next emission, absorbing rapid-fire partial updates. Default:
	// 100ms.
	Cooldown time.Duration
}

// Aggregator buffers partial translation text and emits phrases to its sink.
type Aggregator struct {
	sink Sink
	cfg  Config

	mu         sync.Mutex
	buffer     string
	lastEmit   time.Time
	processing bool
	closed     bool

	// gen invalidates armed wait timers: Clear, Close, and every emission
	// bump it, so a timer racing one of those finds a stale generation and
	// does nothing.
	gen       int
	waitArmed bool
	waitTimer *time.Timer
	cooldown  *time.Timer
}

// New constructs an Aggregator emitting to sink. Zero-value config fields
// are replaced with sensible defaults. The sink must be non-nil.
func New(sink Sink, cfg Config) *Aggregator {
	if cfg.MinEmitLength <= 0 {
		cfg.MinEmitLength = 10
	}
	if cfg.MaxWait <= 0 {
		cfg.MaxWait = 900 * time.Millisecond
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 100 * time.Millisecond
	}
	return &Aggregator{
		sink:     sink,
		cfg:      cfg,
		lastEmit: time.Now(),
	}
}

// AddPartial reconciles one partial translation update into the buffer and
// emits if a break point was reached. Empty updates are ignored; calls after
// Close are no-ops.
func (a *Aggregator) AddPartial(text string) {
	if text == "" {
		return
	}
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	a.buffer = reconcile(a.buffer, text)

	var out string
	if !a.processing && a.shouldEmitLocked() {
		out = a.takeLocked()
	} else if a.buffer != "" {
		a.armWaitLocked()
	}
	a.mu.Unlock()

	if out != "" {
		a.speak(out)
	}
}

// Flush emits whatever is buffered, bypassing the break-point heuristics and
// the processing guard. Used on final translations and at session end.
func (a *Aggregator) Flush() {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	out := a.takeLocked()
	a.mu.Unlock()

	if out != "" {
		a.speak(out)
	}
}

// Clear discards buffered text without emitting and cancels any armed wait
// timer. An in-flight sink call settles normally. Idempotent.
func (a *Aggregator) Clear() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.discardLocked()
}

// Close discards buffered text, cancels all timers, and rejects further
// input. Idempotent.
func (a *Aggregator) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil
	}
	a.closed = true
	a.discardLocked()
	if a.cooldown != nil {
		a.cooldown.Stop()
		a.cooldown = nil
	}
	return nil
}

// ─── Emission internals ─────────────────────────────────────────────────────

// takeLocked snapshots and clears the buffer for emission, marking the
// aggregator as processing. Returns "" when there is nothing to emit.
// Callers hold the mutex.
func (a *Aggregator) takeLocked() string {
	text := strings.TrimSpace(a.buffer)
	a.discardLocked()
	if text == "" {
		return ""
	}
	a.processing = true
	a.lastEmit = time.Now()
	return text
}

// discardLocked drops the buffer and invalidates armed wait timers. Callers
// hold the mutex.
func (a *Aggregator) discardLocked() {
	a.buffer = ""
	a.gen++
	a.waitArmed = false
	if a.waitTimer != nil {
		a.waitTimer.Stop()
		a.waitTimer = nil
	}
}

// speak hands one phrase to the sink. Sink failures are logged and absorbed;
// the buffer was already cleared so the stream continues either way. Called
// without the mutex.
func (a *Aggregator) speak(text string) {
	defer a.settle()
	defer func() {
		if r := recover(); r != nil {
			slog.Error("synthesis sink panicked",
				"component", "phrase",
				"panic", r,
			)
		}
	}()
	if err := a.sink.Speak(text); err != nil {
		slog.Warn("synthesis sink rejected phrase",
			"component", "phrase",
			"error", err,
		)
	}
}

// settle arms the cooldown that releases the processing guard.
func (a *Aggregator) settle() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		a.processing = false
		return
	}
	a.cooldown = time.AfterFunc(a.cfg.Cooldown, a.endCooldown)
}

// endCooldown releases the processing guard and re-evaluates the buffer:
// emissions deferred during synthesis happen now, and text still waiting on
// a break point gets its wait timer re-armed.
func (a *Aggregator) endCooldown() {
	a.mu.Lock()
	a.processing = false
	if a.closed {
		a.mu.Unlock()
		return
	}
	var out string
	if a.shouldEmitLocked() {
		out = a.takeLocked()
	} else if a.buffer != "" {
		a.armWaitLocked()
	}
	a.mu.Unlock()

	if out != "" {
		a.speak(out)
	}
}

// armWaitLocked arms the force-emit timer once more than half the max-wait
// interval has passed since the last emission. Callers hold the mutex.
func (a *Aggregator) armWaitLocked() {
	if a.waitArmed {
		return
	}
	elapsed := time.Since(a.lastEmit)
	if elapsed <= a.cfg.MaxWait/2 {
		return
	}
	remaining := a.cfg.MaxWait - elapsed
	if remaining <= 0 {
		// lastEmit is stale (long idle stretch); give fresh text a half
		// window instead of emitting a fragment instantly.
		remaining = a.cfg.MaxWait / 2
	}
	gen := a.gen
	a.waitArmed = true
	a.waitTimer = time.AfterFunc(remaining, func() { a.waitExpired(gen) })
}

// waitExpired force-emits the buffer when the max-wait timer fires, unless
// the buffer was already flushed or cleared (stale generation) or the sink
// is mid-synthesis (the cooldown release re-evaluates).
func (a *Aggregator) waitExpired(gen int) {
	a.mu.Lock()
	if a.closed || gen != a.gen {
		a.mu.Unlock()
		return
	}
	a.waitArmed = false
	if a.processing || a.buffer == "" {
		a.mu.Unlock()
		return
	}
	out := a.takeLocked()
	a.mu.Unlock()

	if out != "" {
		a.speak(out)
	}
}

// ─── Reconciliation and break points ────────────────────────────────────────

// reconcile merges a partial update into the buffer: a cumulative update
// that extends the buffer replaces it, a stale shorter prefix is dropped,
// and anything else is treated as a delta and appended.
func reconcile(buffer, update string) string {
	switch {
	case buffer == "":
		return update
	case strings.HasPrefix(update, buffer):
		return update
	case strings.HasPrefix(buffer, update):
		return buffer
	default:
		return buffer + " " + update
	}
}

// shouldEmitLocked applies the break-point heuristics in priority order.
// Callers hold the mutex.
func (a *Aggregator) shouldEmitLocked() bool {
	text := strings.TrimSpace(a.buffer)
	if text == "" {
		return false
	}
	if endsWithTerminal(text) {
		return true
	}
	if utf8.RuneCountInString(text) > a.cfg.MinEmitLength && hasPauseIndicator(text) {
		return true
	}
	return false
}

// terminalRunes end a sentence outright, including CJK full stops.
const terminalRunes = ".!?…。！？"

// pauseRunes mark prosodic breaks worth speaking at, including full-width
// forms.
const pauseRunes = ",;:，；："

// conjunctions are coordinating/subordinating words treated as pause
// indicators when they appear as whole words.
var conjunctions = map[string]struct{}{
	"and": {}, "but": {}, "or": {}, "nor": {}, "so": {}, "yet": {},
	"for": {}, "because": {}, "although": {}, "though": {}, "while": {},
	"whereas": {}, "after": {}, "before": {}, "since": {}, "unless": {},
	"until": {}, "when": {}, "whenever": {}, "where": {}, "wherever": {},
	"if": {},
}

func endsWithTerminal(text string) bool {
	last, _ := utf8.DecodeLastRuneInString(text)
	return last != utf8.RuneError && strings.ContainsRune(terminalRunes, last)
}

func hasPauseIndicator(text string) bool {
	if strings.ContainsAny(text, pauseRunes) {
		return true
	}
	for _, word := range strings.Fields(text) {
		word = strings.ToLower(strings.TrimFunc(word, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsNumber(r)
		}))
		if _, ok := conjunctions[word]; ok {
			return true
		}
	}
	return false
}
