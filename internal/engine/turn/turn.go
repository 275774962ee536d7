// Package turn implements the turn-based speech-to-speech translation cascade.
//
// The cascade is the discrete fallback transport: where the streaming mode
// feeds audio continuously into a realtime session, the turn engine waits for
// the VAD detector to hand over a complete utterance and then runs it through
// four sequential stages:
//
//  1. Transcribe — speech-to-text on the padded segment.
//  2. Correct — glossary correction of domain terms the recognizer mangles
//     (skipped when no glossary is configured).
//  3. Translate — machine translation of the corrected transcript.
//  4. Synthesize — text-to-speech on the translation.
//
// Each stage is timed individually; the resulting [engine.Stages] feeds the
// latency tracker and the per-stage OTel histograms, which is what lets the
// mode arbiter compare turn-based round trips against streaming latency on
// equal terms.
package turn

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/voxlate/voxlate/internal/engine"
	"github.com/voxlate/voxlate/internal/glossary"
	"github.com/voxlate/voxlate/internal/observe"
	"github.com/voxlate/voxlate/pkg/audio"
	"github.com/voxlate/voxlate/pkg/provider/mt"
	"github.com/voxlate/voxlate/pkg/provider/stt"
	"github.com/voxlate/voxlate/pkg/provider/tts"
)

// defaultContextDepth is how many recent source transcripts are passed to the
// translator as disambiguation context. Two utterances cover most mid-sentence
// pronoun references without inflating the prompt.
const defaultContextDepth = 2

// Engine implements [engine.Translator] as a sequential STT → MT → TTS
// cascade with optional glossary correction between recognition and
// translation.
//
// Engine is safe for concurrent use; the rolling translation context is the
// only shared state and is guarded internally.
type Engine struct {
	sttP  stt.Provider
	mtP   mt.Provider
	ttsP  tts.Provider
	voice tts.Voice

	corrector    *glossary.Corrector
	metrics      *observe.Metrics
	contextDepth int

	mu     sync.Mutex
	recent []string // last contextDepth source transcripts, oldest first
}

// Compile-time assertion that Engine satisfies the engine.Translator interface.
var _ engine.Translator = (*Engine)(nil)

// Option is a functional option for configuring an Engine during construction.
type Option func(*Engine)

// WithCorrector configures a glossary corrector to run between transcription
// and translation. If nil (the default), the Correct stage is skipped.
func WithCorrector(c *glossary.Corrector) Option {
	return func(e *Engine) { e.corrector = c }
}

// WithMetrics configures the metrics sink for per-stage duration recording.
// A nil metrics value disables recording.
func WithMetrics(m *observe.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithContextDepth sets how many recent source transcripts are carried into
// the translation prompt as context. Zero disables context carrying.
func WithContextDepth(n int) Option {
	return func(e *Engine) { e.contextDepth = n }
}

// New constructs a turn Engine backed by the given providers and voice.
// Options are applied after the engine is initialised with its defaults.
func New(sttP stt.Provider, mtP mt.Provider, ttsP tts.Provider, voice tts.Voice, opts ...Option) *Engine {
	e := &Engine{
		sttP:         sttP,
		mtP:          mtP,
		ttsP:         ttsP,
		voice:        voice,
		contextDepth: defaultContextDepth,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// TranslateSegment runs the full cascade on seg and returns the result with
// per-stage timings.
//
// A segment that transcribes to silence short-circuits after the Transcribe
// stage and returns an empty-transcript [engine.Result] with no error; the
// remaining stages never run. Stage failures wrap the underlying provider
// error with the stage name.
func (e *Engine) TranslateSegment(ctx context.Context, seg audio.SpeechSegment, langs engine.LangPair) (res engine.Result, err error) {
	if langs.Target == "" {
		return engine.Result{}, fmt.Errorf("turn: target language must not be empty")
	}

	ctx, span := observe.StartSpan(ctx, "turn.translate_segment",
		trace.WithAttributes(
			attribute.String("source_lang", langs.Source),
			attribute.String("target_lang", langs.Target),
			attribute.Float64("segment_seconds", seg.Speech.Seconds()),
		),
	)
	defer func() { observe.EndSpan(span, err) }()

	start := time.Now()

	// ── Stage 1: Transcribe ──────────────────────────────────────────────────

	t0 := time.Now()
	sttRes, err := e.sttP.Transcribe(ctx, stt.Request{
		PCM:      seg.PCM,
		Format:   seg.Format,
		Language: langs.Source,
	})
	if err != nil {
		return engine.Result{}, fmt.Errorf("turn: transcribe: %w", err)
	}
	res.Stages.Transcribe = time.Since(t0)
	e.metrics.RecordStage(ctx, "transcribe", res.Stages.Transcribe)

	transcript := strings.TrimSpace(sttRes.Text)
	if transcript == "" {
		// The VAD fired on non-speech (a cough, a door). Nothing to translate.
		res.Stages.Total = time.Since(start)
		return res, nil
	}

	// ── Stage 2: Correct ─────────────────────────────────────────────────────

	if e.corrector != nil {
		t0 = time.Now()
		transcript, _ = e.corrector.Correct(transcript)
		res.Stages.Correct = time.Since(t0)
		e.metrics.RecordStage(ctx, "correct", res.Stages.Correct)
	}
	res.Transcript = transcript

	// ── Stage 3: Translate ───────────────────────────────────────────────────

	t0 = time.Now()
	mtRes, err := e.mtP.Translate(ctx, mt.Request{
		Text:       transcript,
		SourceLang: langs.Source,
		TargetLang: langs.Target,
		Context:    e.contextWindow(),
	})
	if err != nil {
		return engine.Result{}, fmt.Errorf("turn: translate: %w", err)
	}
	res.Stages.Translate = time.Since(t0)
	e.metrics.RecordStage(ctx, "translate", res.Stages.Translate)
	res.Translation = mtRes.Text

	// ── Stage 4: Synthesize ──────────────────────────────────────────────────

	t0 = time.Now()
	ttsRes, err := e.ttsP.Synthesize(ctx, tts.Request{
		Text:  mtRes.Text,
		Voice: e.voice,
	})
	if err != nil {
		return engine.Result{}, fmt.Errorf("turn: synthesize: %w", err)
	}
	res.Stages.Synthesize = time.Since(t0)
	e.metrics.RecordStage(ctx, "synthesize", res.Stages.Synthesize)
	res.Audio = ttsRes.Audio
	res.AudioFormat = ttsRes.Format

	res.Stages.Total = time.Since(start)
	e.metrics.RecordStage(ctx, "total", res.Stages.Total)

	e.remember(transcript)
	return res, nil
}

// Reset clears the rolling translation context. Call it when the session
// changes language pair or after a long silence where earlier utterances no
// longer disambiguate anything.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.recent = nil
}

// ─── Internal helpers ─────────────────────────────────────────────────────────

// contextWindow returns the recent source transcripts joined for use as the
// translation prompt's context block, or "" when context carrying is disabled
// or no turns have completed yet.
func (e *Engine) contextWindow() string {
	if e.contextDepth <= 0 {
		return ""
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return strings.Join(e.recent, "\n")
}

// remember appends a completed transcript to the rolling context, evicting the
// oldest entry once the window is full.
func (e *Engine) remember(transcript string) {
	if e.contextDepth <= 0 {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.recent = append(e.recent, transcript)
	if len(e.recent) > e.contextDepth {
		e.recent = e.recent[len(e.recent)-e.contextDepth:]
	}
}
