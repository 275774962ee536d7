package api

import (
	"context"
	"errors"
	"time"

	"github.com/voxlate/voxlate/internal/pipeline"
)

// ErrNotFound is returned by [Sessions] implementations when no session with
// the given ID exists. Handlers map it to 404.
var ErrNotFound = errors.New("session not found")

// Sessions is the view of the session manager the API serves. Implementations
// must be safe for concurrent use.
type Sessions interface {
	// Create starts a new translation session.
	Create(ctx context.Context, req CreateSessionRequest) (SessionInfo, error)

	// Get returns one session's descriptor, or [ErrNotFound].
	Get(id string) (SessionInfo, error)

	// List returns descriptors for every live session.
	List() []SessionInfo

	// Stop terminates a session and releases its pipeline.
	Stop(id string) error

	// Feed hands one chunk of source-language PCM16 to a session. Feeding a
	// stopped session returns [ErrNotFound].
	Feed(id string, pcm []byte) error

	// Subscribe registers an event listener. A non-empty id scopes the feed
	// to one session; the empty string receives events from every session.
	// The channel is closed when the scoped session ends or the manager
	// shuts down. The cancel func releases the subscription and must always
	// be called.
	Subscribe(id string) (<-chan SessionEvent, func(), error)
}

// CreateSessionRequest is the body of POST /v1/sessions.
type CreateSessionRequest struct {
	// SourceLang is the expected source language tag (e.g. "de"). Empty
	// lets the recognizer detect the language.
	SourceLang string `json:"source_lang,omitempty"`

	// TargetLang is the language to translate into. Required.
	TargetLang string `json:"target_lang"`

	// Voice selects the synthesis voice by provider voice ID. Empty uses
	// the provider default.
	Voice string `json:"voice,omitempty"`

	// Instructions carries extra style hints for the translator, e.g.
	// register or domain vocabulary.
	Instructions string `json:"instructions,omitempty"`

	// Mode pins the starting transport mode, "streaming" or "turn-based".
	// Empty uses the server default.
	Mode string `json:"mode,omitempty"`

	// SampleRate declares the sample rate of the PCM16 audio this client
	// will feed, in Hz. Zero means the server's configured ingest rate.
	// Audio in any other rate is resampled on ingest.
	SampleRate int `json:"sample_rate,omitempty"`

	// Channels declares the channel count of the fed audio, 1 or 2. Zero
	// means the server's configured ingest layout. Stereo input is
	// downmixed to the pipeline's mono stream.
	Channels int `json:"channels,omitempty"`
}

// SessionInfo describes one live session.
type SessionInfo struct {
	ID         string          `json:"id"`
	SourceLang string          `json:"source_lang,omitempty"`
	TargetLang string          `json:"target_lang"`
	Voice      string          `json:"voice,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	Status     pipeline.Status `json:"status"`
}

// SessionEvent is one pipeline event tagged with the session it came from.
type SessionEvent struct {
	SessionID string `json:"session_id"`
	pipeline.Event
}

// StatusResponse is the body of GET /v1/status.
type StatusResponse struct {
	Service  string        `json:"service"`
	Version  string        `json:"version,omitempty"`
	UptimeS  int64         `json:"uptime_s"`
	Sessions []SessionInfo `json:"sessions"`
}
