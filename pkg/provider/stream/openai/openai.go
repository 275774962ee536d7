// Package openai implements a realtime translation session on top of the
// OpenAI Realtime API over WebSocket.
//
// One Connect call opens one WebSocket, configures it as a simultaneous
// interpreter via session.update, and returns a [stream.Session] whose event
// channel carries translated text and synthesized audio as the model
// produces them. Source audio goes up as base64 PCM16 chunks; the server's
// own turn detection decides when an utterance is complete.
package openai

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"

	"github.com/coder/websocket"

	"github.com/voxlate/voxlate/pkg/provider/stream"
)

const (
	defaultModel   = "gpt-4o-realtime-preview"
	defaultBaseURL = "wss://api.openai.com/v1/realtime"

	// eventBuffer sizes the session event channel. Audio deltas arrive in
	// bursts after each server turn, so the buffer absorbs a burst without
	// stalling the receive loop while the consumer drains playback.
	eventBuffer = 64
)

// Provider connects translation sessions to the OpenAI Realtime API.
type Provider struct {
	apiKey  string
	model   string
	baseURL string
}

// Option configures a Provider.
type Option func(*Provider)

// WithModel overrides the default realtime model.
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = model
	}
}

// WithBaseURL overrides the default API endpoint. Intended for tests and
// proxies.
func WithBaseURL(baseURL string) Option {
	return func(p *Provider) {
		p.baseURL = baseURL
	}
}

// New creates a Provider that authenticates with the given API key.
func New(apiKey string, opts ...Option) *Provider {
	p := &Provider{
		apiKey:  apiKey,
		model:   defaultModel,
		baseURL: defaultBaseURL,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Connect dials the realtime endpoint, applies the session configuration and
// starts the receive loop. The returned session is ready for SendAudio.
func (p *Provider) Connect(ctx context.Context, cfg stream.SessionConfig) (stream.Session, error) {
	u, err := url.Parse(p.baseURL)
	if err != nil {
		return nil, fmt.Errorf("openai realtime: parse base URL: %w", err)
	}
	q := u.Query()
	q.Set("model", p.model)
	u.RawQuery = q.Encode()

	header := http.Header{}
	header.Set("Authorization", "Bearer "+p.apiKey)
	header.Set("OpenAI-Beta", "realtime=v1")

	conn, _, err := websocket.Dial(ctx, u.String(), &websocket.DialOptions{
		HTTPHeader: header,
	})
	if err != nil {
		return nil, fmt.Errorf("openai realtime: dial: %w", err)
	}
	conn.SetReadLimit(16 << 20)

	// The session outlives the dial context: callers routinely dial with a
	// short timeout but keep the session open for the whole conversation.
	sessCtx, cancel := context.WithCancel(context.Background())
	s := &session{
		conn:   conn,
		events: make(chan stream.Event, eventBuffer),
		ctx:    sessCtx,
		cancel: cancel,
	}

	if err := s.sendSessionUpdate(ctx, cfg); err != nil {
		cancel()
		conn.Close(websocket.StatusInternalError, "session.update failed")
		return nil, fmt.Errorf("openai realtime: configure session: %w", err)
	}

	go s.receiveLoop()
	return s, nil
}

// session is one live WebSocket connection to the realtime API.
type session struct {
	conn   *websocket.Conn
	events chan stream.Event

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	errVal error
	closed bool

	closeOnce sync.Once
}

// clientEvent is the envelope for messages sent to the server.
type clientEvent struct {
	Type    string         `json:"type"`
	Session *sessionParams `json:"session,omitempty"`
	Audio   string         `json:"audio,omitempty"`
}

type sessionParams struct {
	Instructions            string               `json:"instructions,omitempty"`
	Voice                   string               `json:"voice,omitempty"`
	InputAudioFormat        string               `json:"input_audio_format,omitempty"`
	OutputAudioFormat       string               `json:"output_audio_format,omitempty"`
	InputAudioTranscription *transcriptionParams `json:"input_audio_transcription,omitempty"`
}

type transcriptionParams struct {
	Model string `json:"model"`
}

// serverEvent is the union of the server message fields the session cares
// about. Unknown event types are ignored.
type serverEvent struct {
	Type       string `json:"type"`
	Delta      string `json:"delta,omitempty"`
	Transcript string `json:"transcript,omitempty"`
	Error      *struct {
		Type    string `json:"type"`
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (s *session) sendSessionUpdate(ctx context.Context, cfg stream.SessionConfig) error {
	instructions := cfg.Instructions
	if instructions == "" {
		instructions = translationInstructions(cfg.SourceLang, cfg.TargetLang)
	}
	return s.writeJSON(ctx, clientEvent{
		Type: "session.update",
		Session: &sessionParams{
			Instructions:            instructions,
			Voice:                   cfg.Voice,
			InputAudioFormat:        "pcm16",
			OutputAudioFormat:       "pcm16",
			InputAudioTranscription: &transcriptionParams{Model: "whisper-1"},
		},
	})
}

// translationInstructions builds the interpreter prompt for a language pair.
func translationInstructions(source, target string) string {
	return fmt.Sprintf("You are a simultaneous interpreter. Translate every utterance you hear from %s into %s. "+
		"Speak only the translation. Never answer questions, never add commentary, never switch roles. "+
		"Preserve the speaker's tone and register.", source, target)
}

// SendAudio forwards one PCM16 chunk as an input_audio_buffer.append event.
func (s *session) SendAudio(chunk []byte) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return fmt.Errorf("openai realtime: session closed")
	}
	s.mu.Unlock()

	err := s.writeJSON(s.ctx, clientEvent{
		Type:  "input_audio_buffer.append",
		Audio: base64.StdEncoding.EncodeToString(chunk),
	})
	if err != nil {
		return fmt.Errorf("openai realtime: send audio: %w", err)
	}
	return nil
}

// Events returns the session output channel. The receive loop owns the
// channel and closes it when the connection ends.
func (s *session) Events() <-chan stream.Event {
	return s.events
}

// Err returns the first non-nil error that caused the session to terminate.
func (s *session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errVal
}

// Close terminates the session and releases all resources. Idempotent.
func (s *session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.cancel()
	s.conn.Close(websocket.StatusNormalClosure, "session closed")
	return nil
}

func (s *session) writeJSON(ctx context.Context, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	return s.conn.Write(ctx, websocket.MessageText, data)
}

func (s *session) setErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.errVal == nil {
		s.errVal = err
	}
}

// receiveLoop reads server events until the connection drops. It is the sole
// writer to the events channel and closes it on exit so consumers can range
// over Events.
func (s *session) receiveLoop() {
	defer s.closeOnce.Do(func() { close(s.events) })

	// Translation text arrives as deltas; partials carry the text
	// accumulated so far so each one supersedes the last.
	var pending string

	for {
		_, data, err := s.conn.Read(s.ctx)
		if err != nil {
			s.mu.Lock()
			closed := s.closed
			s.mu.Unlock()
			if !closed {
				s.setErr(fmt.Errorf("openai realtime: read: %w", err))
			}
			return
		}

		var ev serverEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			// A malformed frame is not worth killing the session over.
			continue
		}

		switch ev.Type {
		case "response.audio.delta":
			audio, err := base64.StdEncoding.DecodeString(ev.Delta)
			if err != nil || len(audio) == 0 {
				continue
			}
			s.emit(stream.Event{Kind: stream.KindAudioDelta, Audio: audio})

		case "response.audio_transcript.delta":
			pending += ev.Delta
			s.emit(stream.Event{Kind: stream.KindTranslationPartial, Text: pending})

		case "response.audio_transcript.done":
			text := ev.Transcript
			if text == "" {
				text = pending
			}
			pending = ""
			if text != "" {
				s.emit(stream.Event{Kind: stream.KindTranslationFinal, Text: text, IsFinal: true})
			}

		case "conversation.item.input_audio_transcription.completed":
			if ev.Transcript != "" {
				s.emit(stream.Event{Kind: stream.KindSourceFinal, Text: ev.Transcript, IsFinal: true})
			}

		case "error":
			if ev.Error != nil {
				s.emit(stream.Event{
					Kind: stream.KindError,
					Err:  fmt.Errorf("openai realtime: %s (%s)", ev.Error.Message, ev.Error.Code),
				})
			}
		}
	}
}

// emit delivers one event, giving up when the session context is cancelled
// so a slow consumer cannot wedge the receive loop during shutdown.
func (s *session) emit(ev stream.Event) {
	select {
	case s.events <- ev:
	case <-s.ctx.Done():
	}
}
