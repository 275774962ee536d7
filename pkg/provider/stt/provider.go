// Package stt defines the Provider interface for Speech-to-Text backends.
//
// An STT provider wraps a transcription service (e.g., the OpenAI audio API or
// a self-hosted Whisper server) behind a uniform turn-based interface: the
// caller hands over one complete speech segment and receives the recognized
// text. Turn-based transcription trades latency for accuracy, so it is used by
// the push-to-talk cascade rather than the realtime streaming path.
//
// Implementations must be safe for concurrent use. Multiple segments may be
// transcribed simultaneously (e.g., one per active session).
package stt

import (
	"context"

	"github.com/voxlate/voxlate/pkg/audio"
)

// Request describes one complete utterance to transcribe.
type Request struct {
	// PCM is the raw little-endian 16-bit audio of the utterance. Must not be
	// empty. The slice is not retained after Transcribe returns.
	PCM []byte

	// Format describes the PCM payload. Must validate; most providers expect
	// 16 kHz mono.
	Format audio.Format

	// Language is the BCP-47 language tag of the speech (e.g., "en", "de").
	// An empty string lets the provider auto-detect the language, if supported.
	Language string

	// Prompt optionally biases recognition toward domain vocabulary, such as
	// glossary terms likely to appear in the utterance.
	Prompt string
}

// Provider is the abstraction over any turn-based STT backend.
type Provider interface {
	// Transcribe converts one speech segment to text. It blocks until the
	// provider responds or ctx is done.
	//
	// Returns an error if the audio cannot be submitted or the provider
	// rejects it (authentication failure, unsupported format, or ctx already
	// cancelled). A segment that contains no recognizable speech is not an
	// error; the provider returns a Result with empty Text.
	Transcribe(ctx context.Context, req Request) (Result, error)

	// Name identifies the provider in logs, health checks and fallback
	// reporting (e.g., "openai").
	Name() string
}
