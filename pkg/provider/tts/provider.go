// Package tts defines the Provider interface for Text-to-Speech backends.
//
// A TTS provider wraps a speech synthesis service (e.g., OpenAI audio or
// ElevenLabs) and presents both a turn-based and a streaming interface.
// Synthesize converts one complete phrase; SynthesizeStream accepts a channel
// of text fragments and returns a channel of raw PCM audio bytes as they
// become available, enabling phrase-at-a-time pipelining between the
// aggregator and playback.
//
// Implementations must be safe for concurrent use.
package tts

import (
	"context"

	"github.com/voxlate/voxlate/pkg/audio"
)

// Request describes one phrase to synthesize.
type Request struct {
	// Text is the phrase to speak. Must not be empty.
	Text string

	// Voice selects the voice profile. An empty Voice.ID falls back to the
	// provider default, if it has one.
	Voice Voice
}

// Result is a completed synthesis.
type Result struct {
	// Audio is the raw little-endian 16-bit PCM of the spoken phrase.
	Audio []byte

	// Format describes the PCM payload. Sample rate varies by provider;
	// callers resample to the pipeline format as needed.
	Format audio.Format
}

// Provider is the abstraction over any TTS backend.
type Provider interface {
	// Synthesize converts one complete phrase to audio. It blocks until the
	// provider responds or ctx is done.
	Synthesize(ctx context.Context, req Request) (Result, error)

	// SynthesizeStream consumes text fragments from the text channel and
	// returns a channel that emits raw PCM audio byte slices as they are
	// synthesized. This allows the caller to pipe emitted phrases directly
	// into synthesis without waiting for the turn to finish.
	//
	// The returned audio channel is closed by the implementation when the
	// text channel is closed and all audio has been emitted, or when ctx is
	// cancelled. The caller must drain the audio channel to avoid blocking
	// the provider's internal goroutines.
	//
	// Returns a non-nil error only if the stream cannot be started. Errors
	// encountered during synthesis are signalled by closing the audio channel
	// early; callers should check ctx.Err() to distinguish cancellation from
	// provider errors.
	SynthesizeStream(ctx context.Context, text <-chan string, voice Voice) (<-chan []byte, error)

	// ListVoices returns all voice profiles available from this provider. The
	// list reflects the provider's current catalogue and may change between
	// calls if the underlying service adds or removes voices.
	ListVoices(ctx context.Context) ([]Voice, error)

	// Name identifies the provider in logs, health checks and fallback
	// reporting (e.g., "openai", "elevenlabs").
	Name() string
}
