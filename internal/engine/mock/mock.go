// Package mock provides an in-memory mock implementation of
// [engine.Translator] for use in unit tests.
//
// The mock records every method call and allows the test to configure return
// values via exported fields. It is safe for concurrent use.
//
// Example:
//
//	tr := &mock.Translator{
//	    Result: engine.Result{
//	        Transcript:  "guten morgen",
//	        Translation: "good morning",
//	        Audio:       []byte{0x01, 0x02},
//	    },
//	}
//	res, err := tr.TranslateSegment(ctx, seg, langs)
package mock

import (
	"context"
	"sync"

	"github.com/voxlate/voxlate/internal/engine"
	"github.com/voxlate/voxlate/pkg/audio"
)

// Compile-time interface assertion.
var _ engine.Translator = (*Translator)(nil)

// TranslateSegmentCall records the arguments of a single
// [Translator.TranslateSegment] call.
type TranslateSegmentCall struct {
	// Ctx is the context passed to TranslateSegment.
	Ctx context.Context
	// Seg is the speech segment passed to TranslateSegment.
	Seg audio.SpeechSegment
	// Langs is the language pair passed to TranslateSegment.
	Langs engine.LangPair
}

// Translator is a mock implementation of [engine.Translator].
// All exported *Result and Err fields control return values.
// TranslateSegmentCalls accumulates invocation records.
type Translator struct {
	mu sync.Mutex

	// Result is returned by [Translator.TranslateSegment] when Results is
	// exhausted or empty.
	Result engine.Result

	// Results, if non-empty, is consumed one element per call; this lets a
	// test script several turns with distinct outcomes.
	Results []engine.Result

	// Err is the error returned by [Translator.TranslateSegment].
	Err error

	// TranslateSegmentCalls records all TranslateSegment invocations.
	TranslateSegmentCalls []TranslateSegmentCall
}

// TranslateSegment implements [engine.Translator].
func (t *Translator) TranslateSegment(ctx context.Context, seg audio.SpeechSegment, langs engine.LangPair) (engine.Result, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.TranslateSegmentCalls = append(t.TranslateSegmentCalls, TranslateSegmentCall{Ctx: ctx, Seg: seg, Langs: langs})
	if t.Err != nil {
		return engine.Result{}, t.Err
	}
	if len(t.Results) > 0 {
		res := t.Results[0]
		t.Results = t.Results[1:]
		return res, nil
	}
	return t.Result, nil
}

// Calls returns a snapshot of the recorded TranslateSegment invocations.
func (t *Translator) Calls() []TranslateSegmentCall {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]TranslateSegmentCall, len(t.TranslateSegmentCalls))
	copy(out, t.TranslateSegmentCalls)
	return out
}

// Reset clears all recorded calls and queued results.
func (t *Translator) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.TranslateSegmentCalls = nil
	t.Results = nil
}
