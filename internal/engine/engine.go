// Package engine defines the Translator interface and its supporting types.
//
// A Translator is the turn-based half of the translation pipeline: it receives
// a complete speech segment (as cut by the VAD detector), runs it through the
// full speech-to-speech cascade, and returns a [Result] containing the source
// transcript, the translated text, the synthesized audio, and per-stage
// timings.
//
// The interface is intentionally narrow so that the pipeline orchestrator
// remains provider-agnostic: when the streaming transport degrades, the
// orchestrator swaps a realtime session for a Translator without touching the
// rest of the session plumbing.
//
// Implementations are provided by subpackages (see turn). This package lives
// under internal/ because it encapsulates application-private processing logic
// and is not intended to be imported by external code.
package engine

import (
	"context"
	"time"

	"github.com/voxlate/voxlate/pkg/audio"
)

// LangPair names the source and target language of a translation turn.
type LangPair struct {
	// Source is the spoken language as an ISO 639-1 code (e.g. "de").
	// Empty means the provider should auto-detect.
	Source string

	// Target is the language to translate into. Must not be empty.
	Target string
}

// Stages holds the measured duration of each cascade stage for one turn.
// A zero duration means the stage did not run (for example Correct when no
// glossary is configured).
type Stages struct {
	Transcribe time.Duration
	Correct    time.Duration
	Translate  time.Duration
	Synthesize time.Duration

	// Total is the wall-clock duration of the whole turn, including stage
	// overhead not attributed to any single stage.
	Total time.Duration
}

// Result is the outcome of a successful [Translator.TranslateSegment] call.
//
// A segment that transcribes to silence (no recognizable speech) yields a
// Result with an empty Transcript and no error; callers should treat that as
// "nothing to translate" rather than a failure.
type Result struct {
	// Transcript is the recognized source-language text after glossary
	// correction.
	Transcript string

	// Translation is the target-language text.
	Translation string

	// Audio is the synthesized translation as raw PCM in AudioFormat.
	Audio []byte

	// AudioFormat describes the sample layout of Audio.
	AudioFormat audio.Format

	// Stages carries the per-stage latency breakdown.
	Stages Stages
}

// Translator handles one complete translation turn: speech in, translated
// speech out.
//
// Implementations must be safe for concurrent use, though callers should
// avoid issuing concurrent calls for the same session; segments within a
// session are ordered and a turn's translation context depends on the turns
// before it.
//
// Cancelling the context aborts the in-flight provider call and returns the
// context error wrapped with the stage that was running.
type Translator interface {
	// TranslateSegment runs the full cascade on seg and returns the result.
	// The call blocks until synthesis completes; audio is returned whole,
	// not streamed, because a turn is only handed over once the utterance
	// is final.
	TranslateSegment(ctx context.Context, seg audio.SpeechSegment, langs LangPair) (Result, error)
}
