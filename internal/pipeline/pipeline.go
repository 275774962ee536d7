// Package pipeline wires one translation session together: VAD, phrase
// aggregation, latency tracking, mode arbitration, and the two transports.
//
// A [Pipeline] owns every per-session component — nothing is shared between
// sessions. Audio frames enter through [Pipeline.Feed]; everything the
// session produces (speech boundaries, translation text, synthesized audio,
// mode switches, errors) leaves through the single [Pipeline.Events] channel
// as explicitly typed [Event] values.
//
// The pipeline operates in one of two modes, decided by the arbiter:
//
//   - Streaming: every frame is forwarded to the realtime stream session.
//     The VAD still runs, marking turn boundaries for latency measurement.
//     Partial translations flow through the phrase aggregator into
//     synthesis, so speech starts before the utterance finishes.
//   - Turn-based: the VAD bounds complete utterances, and each finished
//     segment runs through the request/response cascade (push-to-talk).
//
// Latency samples — first-audio to first-translation in streaming mode, the
// cascade total in turn mode — feed the arbiter, which may switch modes at
// any point. Stream drops trigger a breaker-gated redial with exponential
// backoff while the turn-based fallback keeps the session usable.
//
// Run starts the processing loops and blocks; Feed and Events may be used
// concurrently with it. Run must be called at most once per Pipeline.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/voxlate/voxlate/internal/arbiter"
	"github.com/voxlate/voxlate/internal/engine"
	"github.com/voxlate/voxlate/internal/latency"
	"github.com/voxlate/voxlate/internal/observe"
	"github.com/voxlate/voxlate/internal/phrase"
	"github.com/voxlate/voxlate/internal/resilience"
	"github.com/voxlate/voxlate/internal/vad"
	"github.com/voxlate/voxlate/pkg/audio"
	"github.com/voxlate/voxlate/pkg/provider/stream"
	"github.com/voxlate/voxlate/pkg/provider/tts"
)

// Channel capacities. Frames carry a real-time feed and must absorb consumer
// jitter; the rest are low-frequency.
const (
	frameBuffer        = 64
	segmentBuffer      = 4
	phraseBuffer       = 16
	controlBuffer      = 4
	publishBuffer      = 128
	defaultEventBuffer = 256
)

// Synthesizer converts one phrase to audio. Satisfied by any
// [tts.Provider] and by [resilience.TTSFallback].
type Synthesizer interface {
	Synthesize(ctx context.Context, req tts.Request) (tts.Result, error)
}

// Deps are the external collaborators of a [Pipeline].
type Deps struct {
	// Stream is the realtime transport. Optional: without it the pipeline
	// is turn-based only and the initial mode must say so.
	Stream stream.Provider

	// Engine runs the turn-based cascade. Required.
	Engine engine.Translator

	// TTS synthesizes aggregated phrases in streaming mode. Optional: when
	// nil the pipeline relies on the stream provider's own audio.
	TTS Synthesizer

	// Metrics receives pipeline telemetry. Nil disables recording.
	Metrics *observe.Metrics

	// Logger defaults to slog.Default.
	Logger *slog.Logger
}

// Config holds the per-session tuning of a [Pipeline].
type Config struct {
	// SourceLang is the speaker's language. Empty lets providers detect it.
	SourceLang string

	// TargetLang is the language to translate into. Required.
	TargetLang string

	// Voice selects the synthesis voice for both transports.
	Voice tts.Voice

	// Instructions overrides the stream provider's translation prompt.
	Instructions string

	// VAD configures the detector. The zero value uses [vad.DefaultConfig].
	VAD vad.Config

	// Phrase configures the aggregator.
	Phrase phrase.Config

	// Arbiter configures mode arbitration.
	Arbiter arbiter.Config

	// Redial configures the reconnect backoff schedule.
	Redial RedialConfig

	// Breaker configures the stream redial circuit breaker.
	Breaker resilience.CircuitBreakerConfig

	// HistorySize bounds the exchange history kept for the status endpoint.
	HistorySize int

	// LatencyWindow bounds the rolling sample window behind the latency
	// aggregates. Zero uses the stats default.
	LatencyWindow int

	// EventBuffer is the capacity of the Events channel. Events are dropped,
	// not blocked on, when the consumer lags. Default 256.
	EventBuffer int
}

// Pipeline orchestrates one translation session.
type Pipeline struct {
	deps   Deps
	cfg    Config
	logger *slog.Logger

	detector *vad.Detector
	agg      *phrase.Aggregator
	tracker  *latency.Tracker
	stats    *latency.Stats
	arb      *arbiter.Arbiter
	breaker  *resilience.CircuitBreaker
	recon    *Reconnector
	history  *History

	frames   chan audio.Frame
	segments chan audio.SpeechSegment
	phrases  chan string
	control  chan arbiter.Mode
	publish  chan Event
	events   chan Event

	mu        sync.Mutex
	sess      stream.Session
	sessReady chan struct{}

	// providerAudio is set once the stream provider delivers synthesized
	// audio for the current utterance, so the phrase sink does not speak the
	// same text twice.
	providerAudio atomic.Bool

	framesDropped atomic.Int64
	eventsDropped atomic.Int64

	done      chan struct{}
	closeOnce sync.Once
}

// New validates deps and cfg and assembles a Pipeline. The pipeline is inert
// until [Pipeline.Run].
func New(deps Deps, cfg Config) (*Pipeline, error) {
	if deps.Engine == nil {
		return nil, errors.New("pipeline: turn engine is required")
	}
	if cfg.TargetLang == "" {
		return nil, errors.New("pipeline: target language must not be empty")
	}
	if deps.Stream == nil && cfg.Arbiter.InitialMode != arbiter.ModeTurnBased {
		return nil, errors.New("pipeline: no stream provider configured; initial mode must be turn-based")
	}
	if cfg.VAD == (vad.Config{}) {
		cfg.VAD = vad.DefaultConfig()
	}
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = defaultEventBuffer
	}

	detector, err := vad.New(cfg.VAD)
	if err != nil {
		return nil, fmt.Errorf("pipeline: vad: %w", err)
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "pipeline")

	breakerCfg := cfg.Breaker
	if breakerCfg.Name == "" {
		breakerCfg.Name = "stream-redial"
	}

	p := &Pipeline{
		deps:     deps,
		cfg:      cfg,
		logger:   logger,
		detector: detector,
		tracker:  latency.New(),
		stats:    latency.NewStats(cfg.LatencyWindow),
		arb:      arbiter.New(cfg.Arbiter),
		breaker:  resilience.NewCircuitBreaker(breakerCfg),
		history:  NewHistory(cfg.HistorySize),

		frames:    make(chan audio.Frame, frameBuffer),
		segments:  make(chan audio.SpeechSegment, segmentBuffer),
		phrases:   make(chan string, phraseBuffer),
		control:   make(chan arbiter.Mode, controlBuffer),
		publish:   make(chan Event, publishBuffer),
		events:    make(chan Event, cfg.EventBuffer),
		sessReady: make(chan struct{}, 1),
		done:      make(chan struct{}),
	}
	p.agg = phrase.New(&synthSink{p: p}, cfg.Phrase)
	p.recon = NewReconnector(p.redialOnce, p.redialGaveUp, cfg.Redial, logger)
	return p, nil
}

// Run connects the initial transport and drives the processing loops until
// ctx is done or the pipeline is closed. It always cleans up the stream
// session and the aggregator before returning.
func (p *Pipeline) Run(ctx context.Context) error {
	defer p.Close()

	if p.arb.Mode() == arbiter.ModeStreaming {
		if err := p.connectStream(ctx); err != nil {
			p.logger.Warn("initial stream connect failed, starting in push-to-talk",
				"error", err,
			)
			p.deps.Metrics.RecordTransportFailure(ctx)
			p.emit(Event{Kind: KindTransportState, State: TransportDisconnected, Error: err.Error()})
			p.applyDecision(ctx, p.arb.ObserveTransportFailure(time.Now()))
			p.recon.NotifyDisconnect()
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return p.frameLoop(gctx) })
	g.Go(func() error { return p.turnLoop(gctx) })
	g.Go(func() error { return p.receiveLoop(gctx) })
	g.Go(func() error { return p.speakLoop(gctx) })
	g.Go(func() error { return p.controlLoop(gctx) })
	g.Go(func() error { return p.dispatchLoop(gctx) })
	g.Go(func() error { return p.recon.Run(gctx) })
	return g.Wait()
}

// Feed hands one captured audio frame to the pipeline. It never blocks: when
// the pipeline cannot keep up the frame is dropped and counted, because
// stalling the capture callback is worse than a gap in the analysis.
func (p *Pipeline) Feed(frame audio.Frame) {
	select {
	case <-p.done:
		return
	default:
	}
	select {
	case p.frames <- frame:
	default:
		p.framesDropped.Add(1)
	}
}

// Events returns the channel carrying the session's output events. The
// channel is closed when Run returns. Slow consumers lose events rather than
// stalling the pipeline.
func (p *Pipeline) Events() <-chan Event {
	return p.events
}

// Mode returns the transport mode currently in effect.
func (p *Pipeline) Mode() arbiter.Mode {
	return p.arb.Mode()
}

// Close stops the pipeline and releases the stream session. Idempotent; safe
// to call concurrently with Run.
func (p *Pipeline) Close() error {
	p.closeOnce.Do(func() {
		close(p.done)
		p.recon.Stop()
		p.agg.Flush()
		_ = p.agg.Close()
		if sess := p.takeSession(); sess != nil {
			_ = sess.Close()
		}
	})
	return nil
}

// Status is a point-in-time snapshot of one pipeline for the ops surface.
type Status struct {
	Mode          arbiter.Mode  `json:"mode"`
	Drops         int           `json:"drops"`
	Breaker       string        `json:"breaker"`
	Latency       LatencyMillis `json:"latency"`
	History       []Exchange    `json:"history"`
	FramesDropped int64         `json:"frames_dropped"`
	EventsDropped int64         `json:"events_dropped"`
}

// LatencyMillis is the JSON-friendly view of the rolling latency window.
type LatencyMillis struct {
	Count int   `json:"count"`
	Mean  int64 `json:"mean_ms"`
	Min   int64 `json:"min_ms"`
	Max   int64 `json:"max_ms"`
	P50   int64 `json:"p50_ms"`
	P95   int64 `json:"p95_ms"`
	P99   int64 `json:"p99_ms"`
}

// latencyMillis converts a window summary to milliseconds.
func latencyMillis(s latency.Summary) LatencyMillis {
	return LatencyMillis{
		Count: s.Count,
		Mean:  s.Mean.Milliseconds(),
		Min:   s.Min.Milliseconds(),
		Max:   s.Max.Milliseconds(),
		P50:   s.P50.Milliseconds(),
		P95:   s.P95.Milliseconds(),
		P99:   s.P99.Milliseconds(),
	}
}

// Status reports the current mode, redial health, rolling latency aggregates,
// and recent exchanges.
func (p *Pipeline) Status() Status {
	return Status{
		Mode:          p.arb.Mode(),
		Drops:         p.arb.Drops(),
		Breaker:       p.breaker.State().String(),
		Latency:       latencyMillis(p.stats.Summary()),
		History:       p.history.Recent(),
		FramesDropped: p.framesDropped.Load(),
		EventsDropped: p.eventsDropped.Load(),
	}
}

// ─── Frame path ──────────────────────────────────────────────────────────────

func (p *Pipeline) frameLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-p.done:
			return nil
		case frame := <-p.frames:
			p.handleFrame(ctx, frame)
		}
	}
}

func (p *Pipeline) handleFrame(ctx context.Context, frame audio.Frame) {
	res, err := p.detector.ProcessFrame(frame)
	if err != nil {
		p.emit(Event{Kind: KindPipelineError, Error: err.Error()})
		return
	}

	streaming := p.arb.Mode() == arbiter.ModeStreaming

	switch res.Event {
	case vad.EventSpeechStart:
		if streaming {
			p.startStreamTurn()
		}
		p.emit(Event{Kind: KindSpeechStart, Confidence: res.Confidence})

	case vad.EventSpeechEnd:
		p.emit(Event{
			Kind:       KindSpeechEnd,
			Confidence: res.Confidence,
			Millis:     res.SpeechDuration.Milliseconds(),
		})
		if res.Segment != nil {
			p.deps.Metrics.RecordSegment(ctx)
			if !streaming {
				select {
				case p.segments <- *res.Segment:
				default:
					p.logger.Warn("turn queue full, dropping segment",
						"duration", res.Segment.Duration(),
					)
					p.emit(Event{Kind: KindPipelineError, Error: "turn queue full: segment dropped"})
				}
			}
		}
	}

	if !streaming {
		return
	}
	sess := p.currentSession()
	if sess == nil {
		return
	}
	// The provider needs the silence between utterances too: its server-side
	// turn detection works on the continuous feed.
	if err := sess.SendAudio(frame.Data); err != nil {
		p.transportFailure(ctx, sess, err)
		return
	}
	p.tracker.Mark(latency.FirstAudio)
}

// startStreamTurn rolls the latency tracker over to a fresh utterance. The
// transport is already up, so connection-established doubles as the turn
// baseline; the next forwarded frame marks first-audio.
func (p *Pipeline) startStreamTurn() {
	p.tracker.Reset()
	p.tracker.Mark(latency.ConnectionEstablished)
	p.providerAudio.Store(false)
}

// ─── Turn path ───────────────────────────────────────────────────────────────

func (p *Pipeline) turnLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-p.done:
			return nil
		case seg := <-p.segments:
			p.runTurn(ctx, seg)
		}
	}
}

func (p *Pipeline) runTurn(ctx context.Context, seg audio.SpeechSegment) {
	p.tracker.Reset()
	p.tracker.Mark(latency.ConnectionEstablished)
	p.tracker.Mark(latency.FirstAudio)

	res, err := p.deps.Engine.TranslateSegment(ctx, seg, engine.LangPair{
		Source: p.cfg.SourceLang,
		Target: p.cfg.TargetLang,
	})
	if err != nil {
		p.logger.Error("turn translation failed", "error", err)
		p.emit(Event{Kind: KindPipelineError, Error: err.Error()})
		return
	}
	if res.Transcript == "" {
		// The segment held no recognizable speech.
		return
	}

	p.tracker.Mark(latency.TranslationReceived)
	p.tracker.Mark(latency.SynthesisStart)

	p.emit(Event{Kind: KindTranslationFinal, Text: res.Translation})
	if len(res.Audio) > 0 {
		p.emit(Event{Kind: KindSynthesisAudio, Audio: res.Audio})
	}
	p.emit(Event{
		Kind:       KindTurnCompleted,
		Transcript: res.Transcript,
		Text:       res.Translation,
		Stages:     stageMillis(res.Stages),
	})

	p.history.Add(Exchange{
		Transcript:  res.Transcript,
		Translation: res.Translation,
		Mode:        arbiter.ModeTurnBased,
		At:          time.Now(),
	})
	p.sample(ctx, res.Stages.Total)
}

// ─── Stream receive path ─────────────────────────────────────────────────────

// receiveLoop fans in events from whichever stream session is current,
// surviving session replacement across redials.
func (p *Pipeline) receiveLoop(ctx context.Context) error {
	for {
		sess := p.currentSession()
		if sess == nil {
			select {
			case <-ctx.Done():
				return nil
			case <-p.done:
				return nil
			case <-p.sessReady:
				continue
			}
		}
		if done := p.consumeSession(ctx, sess); done {
			return nil
		}
	}
}

// consumeSession drains one session until it ends or the pipeline stops.
// Returns true when the pipeline is shutting down.
func (p *Pipeline) consumeSession(ctx context.Context, sess stream.Session) bool {
	// The provider's source transcript for the utterance in flight; paired
	// with the next final translation in the history.
	var transcript string

	for {
		select {
		case <-ctx.Done():
			return true
		case <-p.done:
			return true
		case ev, ok := <-sess.Events():
			if !ok {
				if err := sess.Err(); err != nil {
					p.transportFailure(ctx, sess, err)
				} else {
					// Clean end: our own teardown or a provider-side close.
					p.dropSession(sess)
				}
				return false
			}
			transcript = p.handleStreamEvent(ctx, ev, transcript)
		}
	}
}

// handleStreamEvent reduces one provider event. It carries the pending source
// transcript through and returns its new value.
func (p *Pipeline) handleStreamEvent(ctx context.Context, ev stream.Event, transcript string) string {
	switch ev.Kind {
	case stream.KindTranslationPartial:
		// The first translation text of the turn, partial or final, closes
		// the latency measurement.
		if p.tracker.Mark(latency.TranslationReceived) {
			p.sampleStreamLatency(ctx)
		}
		p.agg.AddPartial(ev.Text)
		p.emit(Event{Kind: KindTranslationPartial, Text: ev.Text})

	case stream.KindTranslationFinal:
		if p.tracker.Mark(latency.TranslationReceived) {
			p.sampleStreamLatency(ctx)
		}
		p.agg.AddPartial(ev.Text)
		p.agg.Flush()
		p.emit(Event{Kind: KindTranslationFinal, Text: ev.Text})
		p.history.Add(Exchange{
			Transcript:  transcript,
			Translation: ev.Text,
			Mode:        arbiter.ModeStreaming,
			At:          time.Now(),
		})
		return ""

	case stream.KindSourceFinal:
		return ev.Text

	case stream.KindAudioDelta:
		p.providerAudio.Store(true)
		p.markSynthesisStart(ctx)
		p.emit(Event{Kind: KindSynthesisAudio, Audio: ev.Audio})

	case stream.KindError:
		p.logger.Warn("stream provider error", "error", ev.Err)
		p.emit(Event{Kind: KindPipelineError, Error: errString(ev.Err)})
	}
	return transcript
}

// sampleStreamLatency derives the streaming quality sample: how long the
// provider took from hearing audio to producing translation text.
func (p *Pipeline) sampleStreamLatency(ctx context.Context) {
	m := p.tracker.Metrics()
	d, ok := m.Between(latency.FirstAudio, latency.TranslationReceived)
	if !ok {
		return
	}
	p.deps.Metrics.RecordCheckpointDelta(ctx,
		string(latency.FirstAudio), string(latency.TranslationReceived), d)
	p.sample(ctx, d)
}

// sample records one latency measurement and lets the arbiter react to it.
func (p *Pipeline) sample(ctx context.Context, d time.Duration) {
	p.stats.Add(d)
	p.emit(Event{Kind: KindLatencySample, Millis: d.Milliseconds(), Tier: arbiter.Classify(d)})
	if p.deps.Stream == nil {
		// No transport to arbitrate between.
		return
	}
	p.applyDecision(ctx, p.arb.ObserveLatency(d, time.Now()))
}

// markSynthesisStart records the synthesis-start checkpoint once per turn and
// derives the checkpoint deltas that end at it.
func (p *Pipeline) markSynthesisStart(ctx context.Context) {
	if !p.tracker.Mark(latency.SynthesisStart) {
		return
	}
	m := p.tracker.Metrics()
	if d, ok := m.Between(latency.TranslationReceived, latency.SynthesisStart); ok {
		p.deps.Metrics.RecordCheckpointDelta(ctx,
			string(latency.TranslationReceived), string(latency.SynthesisStart), d)
	}
	if total, ok := m.Total(); ok {
		p.deps.Metrics.RecordCheckpointDelta(ctx,
			string(latency.ConnectionEstablished), string(latency.SynthesisStart), total)
	}
}

// ─── Phrase synthesis path ───────────────────────────────────────────────────

// synthSink receives aggregated phrases. Speak is a queue handoff: actual
// synthesis happens on the speak loop so the aggregator settles immediately.
type synthSink struct {
	p *Pipeline
}

var _ phrase.Sink = (*synthSink)(nil)

func (s *synthSink) Speak(text string) error {
	p := s.p
	ctx := context.Background()
	p.deps.Metrics.RecordPhrase(ctx)
	p.emit(Event{Kind: KindPhraseEmitted, Text: text})
	p.markSynthesisStart(ctx)

	if p.deps.TTS == nil || p.providerAudio.Load() {
		// The stream provider is already speaking this utterance.
		return nil
	}
	select {
	case p.phrases <- text:
		return nil
	case <-p.done:
		return nil
	default:
		return errors.New("pipeline: synthesis queue full")
	}
}

func (p *Pipeline) speakLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-p.done:
			return nil
		case text := <-p.phrases:
			res, err := p.deps.TTS.Synthesize(ctx, tts.Request{Text: text, Voice: p.cfg.Voice})
			if err != nil {
				p.logger.Warn("phrase synthesis failed", "error", err)
				p.emit(Event{Kind: KindPipelineError, Error: "synthesis: " + err.Error()})
				continue
			}
			p.emit(Event{Kind: KindSynthesisAudio, Audio: res.Audio})
		}
	}
}

// ─── Mode control ────────────────────────────────────────────────────────────

// applyDecision publishes a mode switch and queues the transport transition.
// Decisions that did not switch are no-ops.
func (p *Pipeline) applyDecision(ctx context.Context, d arbiter.Decision) {
	if !d.Switched {
		return
	}
	direction := "to_streaming"
	if d.Mode == arbiter.ModeTurnBased {
		direction = "to_push_to_talk"
	}
	p.deps.Metrics.RecordModeSwitch(ctx, direction)
	p.logger.Info("translation mode switched",
		"mode", d.Mode,
		"tier", d.Tier,
		"reason", d.Reason,
	)
	p.emit(Event{Kind: KindModeSwitched, Mode: d.Mode, Tier: d.Tier, Reason: d.Reason})

	select {
	case p.control <- d.Mode:
	case <-p.done:
	case <-ctx.Done():
	}
}

// controlLoop executes transport transitions serially, decoupled from the
// loops that observe the triggering samples.
func (p *Pipeline) controlLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-p.done:
			return nil
		case mode := <-p.control:
			switch mode {
			case arbiter.ModeTurnBased:
				p.teardownStream()
			case arbiter.ModeStreaming:
				p.ensureStream(ctx)
			}
		}
	}
}

// teardownStream flushes pending text and releases the stream session.
func (p *Pipeline) teardownStream() {
	p.agg.Flush()
	sess := p.takeSession()
	if sess == nil {
		return
	}
	_ = sess.Close()
	p.emit(Event{Kind: KindTransportState, State: TransportDisconnected, Mode: p.arb.Mode()})
}

// ensureStream makes a live session exist after an upgrade decision. A warm
// session left behind by a background redial is reused as-is.
func (p *Pipeline) ensureStream(ctx context.Context) {
	if sess := p.currentSession(); sess != nil && sess.Err() == nil {
		return
	}
	if err := p.connectStream(ctx); err != nil {
		p.logger.Warn("stream establish failed", "error", err)
		p.deps.Metrics.RecordTransportFailure(ctx)
		p.emit(Event{Kind: KindTransportState, State: TransportDisconnected, Error: err.Error()})
		// Hand the mode straight back; the upgrade cooldown stops a thrash.
		p.applyDecision(ctx, p.arb.ObserveTransportFailure(time.Now()))
	}
}

// connectStream performs one breaker-gated connection attempt and installs
// the resulting session.
func (p *Pipeline) connectStream(ctx context.Context) error {
	if p.deps.Stream == nil {
		return errors.New("pipeline: no stream provider configured")
	}
	if err := p.breaker.Allow(); err != nil {
		return fmt.Errorf("pipeline: stream connect: %w", err)
	}

	// Fresh connection, fresh turn measurement.
	p.tracker.Reset()

	sess, err := p.deps.Stream.Connect(ctx, stream.SessionConfig{
		SourceLang:   p.cfg.SourceLang,
		TargetLang:   p.cfg.TargetLang,
		Voice:        p.cfg.Voice.ID,
		Instructions: p.cfg.Instructions,
	})
	if err != nil {
		p.breaker.RecordFailure()
		return fmt.Errorf("pipeline: stream connect: %w", err)
	}

	p.breaker.RecordSuccess()
	p.tracker.Mark(latency.ConnectionEstablished)
	p.arb.ResetDrops()
	p.installSession(sess)
	p.logger.Info("stream session established",
		"source_lang", p.cfg.SourceLang,
		"target_lang", p.cfg.TargetLang,
	)
	p.emit(Event{Kind: KindTransportState, State: TransportConnected, Mode: p.arb.Mode()})
	return nil
}

// transportFailure handles the loss of a live session: once per session, it
// closes it, lets the arbiter downgrade, and schedules the background redial.
func (p *Pipeline) transportFailure(ctx context.Context, sess stream.Session, err error) {
	if !p.dropSession(sess) {
		// Another loop already handled this session's failure.
		return
	}
	_ = sess.Close()

	p.logger.Warn("stream transport failure", "error", err)
	p.deps.Metrics.RecordTransportFailure(ctx)
	p.emit(Event{Kind: KindTransportState, State: TransportDisconnected, Error: err.Error()})

	p.applyDecision(ctx, p.arb.ObserveTransportFailure(time.Now()))

	p.emit(Event{Kind: KindTransportState, State: TransportReconnecting})
	p.recon.NotifyDisconnect()
}

// redialOnce is the reconnector's connect function: one gated attempt, with
// failed attempts counted as drops so the orchestrator's retry budget and the
// arbiter's diagnostics stay in step.
func (p *Pipeline) redialOnce(ctx context.Context) error {
	err := p.connectStream(ctx)
	if err == nil {
		p.deps.Metrics.RecordReconnect(ctx, "success")
		return nil
	}
	if !errors.Is(err, resilience.ErrCircuitOpen) {
		p.deps.Metrics.RecordReconnect(ctx, "failure")
		p.deps.Metrics.RecordTransportFailure(ctx)
		p.applyDecision(ctx, p.arb.ObserveTransportFailure(time.Now()))
	}
	return err
}

// redialGaveUp surfaces an abandoned redial cycle. The session stays usable
// through the turn-based fallback.
func (p *Pipeline) redialGaveUp(err error) {
	p.emit(Event{Kind: KindTransportState, State: TransportFailed, Error: errString(err)})
	p.emit(Event{Kind: KindPipelineError, Error: errString(err)})
}

// ─── Session handle ──────────────────────────────────────────────────────────

func (p *Pipeline) currentSession() stream.Session {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sess
}

// installSession swaps in a new session, closing any predecessor, and wakes
// the receive loop.
func (p *Pipeline) installSession(sess stream.Session) {
	p.mu.Lock()
	old := p.sess
	p.sess = sess
	p.mu.Unlock()

	if old != nil {
		_ = old.Close()
	}
	select {
	case p.sessReady <- struct{}{}:
	default:
	}
}

// takeSession removes and returns the current session, if any.
func (p *Pipeline) takeSession() stream.Session {
	p.mu.Lock()
	defer p.mu.Unlock()
	sess := p.sess
	p.sess = nil
	return sess
}

// dropSession clears the handle only if it still points at sess, so a
// failure observed on a stale session cannot evict its replacement.
func (p *Pipeline) dropSession(sess stream.Session) bool {
	if sess == nil {
		return false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.sess != sess {
		return false
	}
	p.sess = nil
	return true
}

// ─── Event bus ───────────────────────────────────────────────────────────────

// emit publishes one event onto the internal bus. Never blocks; a full bus
// drops the event and counts it.
func (p *Pipeline) emit(ev Event) {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	select {
	case p.publish <- ev:
	default:
		p.eventsDropped.Add(1)
		p.logger.Debug("event bus full, dropping event", "kind", ev.Kind)
	}
}

// dispatchLoop owns the public events channel: it forwards published events
// and closes the channel when the pipeline stops.
func (p *Pipeline) dispatchLoop(ctx context.Context) error {
	defer close(p.events)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-p.done:
			// Forward what is already queued so late turn results survive
			// an orderly shutdown.
			for {
				select {
				case ev := <-p.publish:
					p.forward(ev)
				default:
					return nil
				}
			}
		case ev := <-p.publish:
			p.forward(ev)
		}
	}
}

func (p *Pipeline) forward(ev Event) {
	select {
	case p.events <- ev:
	default:
		p.eventsDropped.Add(1)
		p.logger.Debug("event consumer lagging, dropping event", "kind", ev.Kind)
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
