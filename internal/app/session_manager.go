package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/voxlate/voxlate/internal/api"
	"github.com/voxlate/voxlate/internal/arbiter"
	"github.com/voxlate/voxlate/internal/config"
	"github.com/voxlate/voxlate/internal/engine/turn"
	"github.com/voxlate/voxlate/internal/glossary"
	"github.com/voxlate/voxlate/internal/observe"
	"github.com/voxlate/voxlate/internal/phrase"
	"github.com/voxlate/voxlate/internal/pipeline"
	"github.com/voxlate/voxlate/internal/resilience"
	"github.com/voxlate/voxlate/internal/vad"
	"github.com/voxlate/voxlate/pkg/audio"
	"github.com/voxlate/voxlate/pkg/provider/tts"
)

// stopTimeout bounds how long Stop waits for a session's loops to exit.
const stopTimeout = 5 * time.Second

// ErrManagerClosed is returned by Create after the manager has shut down.
var ErrManagerClosed = errors.New("session manager is shut down")

// SessionManager owns the lifecycle of all active translation sessions. Each
// session wraps one pipeline: the manager constructs it with a per-session
// turn engine (the synthesis voice is fixed at engine construction), runs it
// on a background context, pumps its events into the shared hub, and removes
// it when the pipeline stops.
//
// SessionManager implements [api.Sessions]. All exported methods are safe
// for concurrent use.
type SessionManager struct {
	cfg       *config.Config
	providers *Providers
	corrector *glossary.Corrector
	metrics   *observe.Metrics
	logger    *slog.Logger

	hub *eventHub

	mu       sync.Mutex
	sessions map[string]*session
	closed   bool
}

var _ api.Sessions = (*SessionManager)(nil)

// SessionManagerConfig carries the dependencies for NewSessionManager.
type SessionManagerConfig struct {
	Config    *config.Config
	Providers *Providers
	Corrector *glossary.Corrector // nil disables transcript correction
	Metrics   *observe.Metrics    // nil disables instrumentation
	Logger    *slog.Logger        // nil uses slog.Default
}

// NewSessionManager creates a session manager. It does not start anything;
// sessions spin up on Create.
func NewSessionManager(cfg SessionManagerConfig) *SessionManager {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionManager{
		cfg:       cfg.Config,
		providers: cfg.Providers,
		corrector: cfg.Corrector,
		metrics:   cfg.Metrics,
		logger:    logger,
		hub:       newEventHub(logger),
		sessions:  make(map[string]*session),
	}
}

// session pairs a running pipeline with its descriptor.
type session struct {
	// info is the static descriptor. Status is attached on every read.
	info api.SessionInfo

	pipe   *pipeline.Pipeline
	cancel context.CancelFunc

	// inFormat is the layout the client declared for its fed audio; conv
	// normalizes it to the pipeline ingest format.
	inFormat audio.Format
	conv     *audio.FormatConverter

	// elapsedNs accumulates ingested audio duration for frame timestamps.
	elapsedNs atomic.Int64

	// done closes once the pipeline loop and event pump have exited.
	done chan struct{}
}

// ─── api.Sessions ────────────────────────────────────────────────────────────

// Create starts a new translation session and returns its descriptor. The
// given context covers only creation; the session itself runs on a background
// context until Stop, manager Close, or a fatal pipeline error.
func (m *SessionManager) Create(ctx context.Context, req api.CreateSessionRequest) (api.SessionInfo, error) {
	if m.providers.STT == nil || m.providers.MT == nil || m.providers.TTS == nil {
		return api.SessionInfo{}, errors.New("cascade providers not configured")
	}

	voice := tts.Voice{ID: req.Voice}

	var turnOpts []turn.Option
	if m.corrector != nil {
		turnOpts = append(turnOpts, turn.WithCorrector(m.corrector))
	}
	if m.metrics != nil {
		turnOpts = append(turnOpts, turn.WithMetrics(m.metrics))
	}
	eng := turn.New(m.providers.STT, m.providers.MT, m.providers.TTS, voice, turnOpts...)

	pipeCfg := m.pipelineConfig(req)
	pipe, err := pipeline.New(pipeline.Deps{
		Stream:  m.providers.Stream,
		Engine:  eng,
		TTS:     m.providers.TTS,
		Metrics: m.metrics,
		Logger:  m.logger,
	}, pipeCfg)
	if err != nil {
		return api.SessionInfo{}, fmt.Errorf("create session: %w", err)
	}

	ingest := IngestFormat(m.cfg)
	s := &session{
		info: api.SessionInfo{
			ID:         uuid.NewString(),
			SourceLang: req.SourceLang,
			TargetLang: req.TargetLang,
			Voice:      req.Voice,
			CreatedAt:  time.Now().UTC(),
		},
		pipe:     pipe,
		inFormat: feedFormat(req, ingest),
		conv:     &audio.FormatConverter{Target: ingest},
		done:     make(chan struct{}),
	}
	runCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		cancel()
		_ = pipe.Close()
		return api.SessionInfo{}, ErrManagerClosed
	}
	m.sessions[s.info.ID] = s
	m.mu.Unlock()

	m.metrics.AddActiveSessions(ctx, 1)
	go m.runSession(runCtx, s)

	m.logger.Info("session created",
		"session_id", s.info.ID,
		"source_lang", req.SourceLang,
		"target_lang", req.TargetLang,
		"mode", string(pipeCfg.Arbiter.InitialMode))

	info := s.info
	info.Status = pipe.Status()
	return info, nil
}

// Get returns the descriptor and live status of one session.
func (m *SessionManager) Get(id string) (api.SessionInfo, error) {
	m.mu.Lock()
	s, ok := m.sessions[id]
	m.mu.Unlock()
	if !ok {
		return api.SessionInfo{}, api.ErrNotFound
	}
	info := s.info
	info.Status = s.pipe.Status()
	return info, nil
}

// List returns every active session, oldest first.
func (m *SessionManager) List() []api.SessionInfo {
	m.mu.Lock()
	sessions := make([]*session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.Unlock()

	infos := make([]api.SessionInfo, 0, len(sessions))
	for _, s := range sessions {
		info := s.info
		info.Status = s.pipe.Status()
		infos = append(infos, info)
	}
	sort.Slice(infos, func(i, j int) bool {
		if !infos[i].CreatedAt.Equal(infos[j].CreatedAt) {
			return infos[i].CreatedAt.Before(infos[j].CreatedAt)
		}
		return infos[i].ID < infos[j].ID
	})
	return infos
}

// Stop ends one session and waits for its loops to wind down.
func (m *SessionManager) Stop(id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	m.mu.Unlock()
	if !ok {
		return api.ErrNotFound
	}
	m.stopSession(s)
	return nil
}

// Feed hands one chunk of PCM16 audio to a session, normalizing it from the
// session's declared input format to the pipeline ingest format. Non-blocking:
// the pipeline drops frames when its intake is full.
func (m *SessionManager) Feed(id string, pcm []byte) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	m.mu.Unlock()
	if !ok {
		return api.ErrNotFound
	}

	d := s.inFormat.FrameDuration(len(pcm))
	// Timestamps are synthesized from cumulative ingested duration, so a
	// remote feed looks like a continuous capture stream to the detector.
	ts := time.Duration(s.elapsedNs.Add(int64(d))) - d

	frame := s.conv.Convert(audio.Frame{
		Data:       pcm,
		SampleRate: s.inFormat.SampleRate,
		Channels:   s.inFormat.Channels,
		Timestamp:  ts,
	})
	if len(frame.Data) == 0 {
		return nil // misaligned chunk, dropped by the converter
	}
	s.pipe.Feed(frame)
	return nil
}

// Subscribe registers an event listener for one session, or for all sessions
// when id is empty. The channel closes when the session ends (or, for the
// all-sessions feed, when the manager shuts down). The returned cancel must
// be called to release the subscription.
func (m *SessionManager) Subscribe(id string) (<-chan api.SessionEvent, func(), error) {
	if id != "" {
		m.mu.Lock()
		_, ok := m.sessions[id]
		m.mu.Unlock()
		if !ok {
			return nil, nil, api.ErrNotFound
		}
	}
	ch, cancel := m.hub.subscribe(id)
	return ch, cancel, nil
}

// ─── Lifecycle ───────────────────────────────────────────────────────────────

// runSession drives one session to completion: it pumps pipeline events into
// the hub, runs the pipeline until it stops, then removes the session and
// closes its subscriptions.
func (m *SessionManager) runSession(ctx context.Context, s *session) {
	pumpDone := make(chan struct{})
	go func() {
		defer close(pumpDone)
		for ev := range s.pipe.Events() {
			m.hub.publish(api.SessionEvent{SessionID: s.info.ID, Event: ev})
		}
	}()

	err := s.pipe.Run(ctx)
	// Run closed the events channel on the way out; wait for the pump to
	// flush so subscribers see every event before the close.
	<-pumpDone

	if err != nil && !errors.Is(err, context.Canceled) {
		m.logger.Error("session pipeline failed", "session_id", s.info.ID, "err", err)
	}

	m.mu.Lock()
	delete(m.sessions, s.info.ID)
	m.mu.Unlock()
	m.metrics.AddActiveSessions(ctx, -1)
	m.hub.closeScoped(s.info.ID)
	close(s.done)

	m.logger.Info("session ended", "session_id", s.info.ID)
}

// stopSession cancels the session's context and waits for runSession to
// finish. Map removal happens in runSession so crashed pipelines clean up
// the same way stopped ones do.
func (m *SessionManager) stopSession(s *session) {
	s.cancel()
	select {
	case <-s.done:
	case <-time.After(stopTimeout):
		m.logger.Warn("session stop timed out", "session_id", s.info.ID)
	}
}

// Close stops every active session and rejects further Creates.
func (m *SessionManager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	sessions := make([]*session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.Unlock()

	for _, s := range sessions {
		m.stopSession(s)
	}
	m.hub.closeAll()
	m.logger.Info("session manager closed", "sessions", len(sessions))
	return nil
}

// ─── Config mapping ──────────────────────────────────────────────────────────

// pipelineConfig maps the server config and the create request onto a
// pipeline config. Zero-valued knobs pass through untouched so the component
// constructors apply their own defaults.
func (m *SessionManager) pipelineConfig(req api.CreateSessionRequest) pipeline.Config {
	cfg := m.cfg
	return pipeline.Config{
		SourceLang:   req.SourceLang,
		TargetLang:   req.TargetLang,
		Voice:        tts.Voice{ID: req.Voice},
		Instructions: req.Instructions,
		VAD:          vadConfig(cfg),
		Phrase: phrase.Config{
			MinEmitLength: cfg.Phrase.MinEmitLength,
			MaxWait:       millis(cfg.Phrase.MaxWaitMs),
			Cooldown:      millis(cfg.Phrase.CooldownMs),
		},
		Arbiter: arbiter.Config{
			InitialMode:     initialMode(cfg, req),
			UpgradeCooldown: millis(cfg.Arbiter.UpgradeCooldownMs),
		},
		Redial: pipeline.RedialConfig{
			MaxRetries: cfg.Resilience.Redial.MaxRetries,
			Backoff:    millis(cfg.Resilience.Redial.BackoffMs),
			MaxBackoff: millis(cfg.Resilience.Redial.MaxBackoffMs),
		},
		Breaker: resilience.CircuitBreakerConfig{
			MaxFailures:  cfg.Resilience.Breaker.MaxFailures,
			ResetTimeout: millis(cfg.Resilience.Breaker.ResetTimeoutMs),
			HalfOpenMax:  cfg.Resilience.Breaker.HalfOpenMax,
		},
		LatencyWindow: cfg.Latency.WindowSize,
	}
}

// initialMode resolves a session's starting mode: the request value wins,
// then the configured default.
func initialMode(cfg *config.Config, req api.CreateSessionRequest) arbiter.Mode {
	if req.Mode != "" {
		return arbiter.Mode(req.Mode)
	}
	return cfg.Arbiter.InitialMode
}

// vadConfig overlays configured detector knobs onto the defaults. Only
// non-zero values override, so a sparse config block stays valid.
func vadConfig(cfg *config.Config) vad.Config {
	vc := vad.DefaultConfig()
	vc.Format = IngestFormat(cfg)
	if v := cfg.VAD.FrameDurationMs; v > 0 {
		vc.FrameDuration = millis(v)
	}
	if v := cfg.VAD.HistorySize; v > 0 {
		vc.HistorySize = v
	}
	if v := cfg.VAD.SpeechStartFrames; v > 0 {
		vc.SpeechStartFrames = v
	}
	if v := cfg.VAD.SpeechEndFrames; v > 0 {
		vc.SpeechEndFrames = v
	}
	if v := cfg.VAD.MinSpeechMs; v > 0 {
		vc.MinSpeechDuration = millis(v)
	}
	if v := cfg.VAD.MaxSilenceMs; v > 0 {
		vc.MaxSilenceDuration = millis(v)
	}
	if v := cfg.VAD.EnergyThreshold; v > 0 {
		vc.EnergyThreshold = v
	}
	if v := cfg.VAD.ZCRThreshold; v > 0 {
		vc.ZCRThreshold = v
	}
	if v := cfg.VAD.PreRollMs; v > 0 {
		vc.PreRoll = millis(v)
	}
	if v := cfg.VAD.PostRollMs; v > 0 {
		vc.PostRoll = millis(v)
	}
	return vc
}

// feedFormat resolves the layout a session's fed audio arrives in: request
// fields override the server ingest format per dimension.
func feedFormat(req api.CreateSessionRequest, ingest audio.Format) audio.Format {
	f := ingest
	if req.SampleRate > 0 {
		f.SampleRate = req.SampleRate
	}
	if req.Channels > 0 {
		f.Channels = req.Channels
	}
	return f
}

// IngestFormat returns the session ingest format from config, defaulting to
// the internal pipeline format. Feed expects PCM16 in this layout.
func IngestFormat(cfg *config.Config) audio.Format {
	f := audio.PipelineFormat
	if cfg.Audio.SampleRate > 0 {
		f.SampleRate = cfg.Audio.SampleRate
	}
	if cfg.Audio.Channels > 0 {
		f.Channels = cfg.Audio.Channels
	}
	return f
}

// millis converts a config value in milliseconds to a duration. Zero stays
// zero so constructor defaults apply.
func millis(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
