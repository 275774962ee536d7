// Package stream defines the Provider interface for realtime
// speech-to-speech translation backends.
//
// A stream provider wraps a voice AI service that accepts raw source-language
// audio and returns translated text and synthesized target-language audio in
// a single, stateful session — bypassing the separate STT → MT → TTS cascade
// entirely. Examples include the OpenAI Realtime API and similar low-latency
// voice models.
//
// The central abstraction is Session: a bidirectional connection whose
// output side is a single multiplexed [Event] channel carrying translation
// text, synthesized audio, and provider errors in arrival order. Sessions
// are long-lived (seconds to minutes) and must be safe for concurrent use.
package stream

import "context"

// EventKind discriminates the payload of an [Event].
type EventKind string

const (
	// KindTranslationPartial carries the translation text accumulated so
	// far for the utterance in progress. Each partial supersedes the
	// previous one.
	KindTranslationPartial EventKind = "translation.partial"

	// KindTranslationFinal carries the complete translation of one
	// utterance.
	KindTranslationFinal EventKind = "translation.final"

	// KindAudioDelta carries a chunk of synthesized target-language PCM16.
	KindAudioDelta EventKind = "audio.delta"

	// KindSourceFinal carries the provider's transcript of the source
	// speech as it was recognized, before translation.
	KindSourceFinal EventKind = "source.final"

	// KindError carries a non-fatal provider error. The session stays
	// open; fatal transport failures close the event channel instead and
	// surface through [Session.Err].
	KindError EventKind = "error"
)

// Event is one unit of session output.
type Event struct {
	Kind    EventKind
	Text    string
	IsFinal bool
	Audio   []byte
	Err     error
}

// SessionConfig is the initial configuration for a new translation session.
type SessionConfig struct {
	// SourceLang is the language the speaker uses, as a BCP 47 / ISO 639
	// code ("en", "de", "ja").
	SourceLang string

	// TargetLang is the language to translate into.
	TargetLang string

	// Voice selects the synthesized output voice. Empty uses the
	// provider's default.
	Voice string

	// Instructions overrides the provider's built-in translation prompt.
	// Leave empty to let the provider derive one from the language pair.
	Instructions string
}

// Session is an open realtime translation session.
//
// The session is the hot path of the streaming pipeline — every method must
// return quickly. Output is channel-based so the caller's audio thread never
// blocks on the network. Callers must call Close when the session is no
// longer needed and must drain Events promptly to keep the provider's
// receive loop from stalling.
type Session interface {
	// SendAudio delivers a raw PCM16 chunk of source speech to the
	// provider. Returns an error if the session is closed or the
	// transport rejects the write.
	SendAudio(chunk []byte) error

	// Events returns the channel on which session output arrives. The
	// channel is closed when the session ends; after that, Err reports
	// whether it ended cleanly.
	Events() <-chan Event

	// Err returns the error that closed the event channel prematurely,
	// or nil if the session ended cleanly.
	Err() error

	// Close terminates the session and closes the event channel.
	// Calling Close more than once is safe and returns nil.
	Close() error
}

// Provider is the abstraction over any realtime translation backend.
// Implementations must be safe for concurrent use; a process may hold
// several sessions at once.
type Provider interface {
	// Connect establishes a new translation session. The returned Session
	// is ready to accept audio immediately. The caller owns the Session
	// and is responsible for calling Close.
	Connect(ctx context.Context, cfg SessionConfig) (Session, error)
}
