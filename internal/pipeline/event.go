package pipeline

import (
	"time"

	"github.com/voxlate/voxlate/internal/arbiter"
	"github.com/voxlate/voxlate/internal/engine"
)

// Kind discriminates the payload of a pipeline [Event].
type Kind string

const (
	// KindSpeechStart marks a detected speech onset.
	KindSpeechStart Kind = "vad.speech_start"

	// KindSpeechEnd marks a detected speech end. Millis carries the speech
	// duration.
	KindSpeechEnd Kind = "vad.speech_end"

	// KindTranslationPartial carries in-progress translation text.
	KindTranslationPartial Kind = "translation.partial"

	// KindTranslationFinal carries the complete translation of one utterance.
	KindTranslationFinal Kind = "translation.final"

	// KindPhraseEmitted marks the aggregator handing one phrase to synthesis.
	KindPhraseEmitted Kind = "phrase.emitted"

	// KindSynthesisAudio carries synthesized target-language PCM.
	KindSynthesisAudio Kind = "synthesis.audio"

	// KindModeSwitched marks an arbiter mode switch. Reason is the
	// human-readable explanation shown to the user.
	KindModeSwitched Kind = "mode.switched"

	// KindLatencySample carries one classified latency measurement.
	KindLatencySample Kind = "latency.sample"

	// KindTransportState marks a change in the streaming transport:
	// connected, disconnected, reconnecting, or failed.
	KindTransportState Kind = "transport.state"

	// KindTurnCompleted marks one finished turn-based translation, with the
	// per-stage latency breakdown.
	KindTurnCompleted Kind = "turn.completed"

	// KindPipelineError carries a non-fatal pipeline error. The pipeline
	// keeps running; fatal failures end Run instead.
	KindPipelineError Kind = "pipeline.error"
)

// Streaming transport states carried by [KindTransportState] events.
const (
	TransportConnected    = "connected"
	TransportDisconnected = "disconnected"
	TransportReconnecting = "reconnecting"
	TransportFailed       = "failed"
)

// Event is one unit of pipeline output. Exactly which payload fields are set
// depends on Kind; everything else is omitted from the JSON encoding.
type Event struct {
	Kind Kind      `json:"kind"`
	At   time.Time `json:"at"`

	// Text is translation or phrase text.
	Text string `json:"text,omitempty"`

	// Transcript is the recognized source-language text of a completed turn.
	Transcript string `json:"transcript,omitempty"`

	// Audio is synthesized PCM16, base64-encoded in JSON.
	Audio []byte `json:"audio,omitempty"`

	// Confidence is the detector's speech confidence for VAD events.
	Confidence float64 `json:"confidence,omitempty"`

	// Mode, Tier and Reason describe mode switches and latency samples.
	Mode   arbiter.Mode `json:"mode,omitempty"`
	Tier   arbiter.Tier `json:"tier,omitempty"`
	Reason string       `json:"reason,omitempty"`

	// Millis is a duration payload: the sample for latency.sample, the
	// speech duration for vad.speech_end.
	Millis int64 `json:"millis,omitempty"`

	// Stages is the per-stage breakdown of a completed turn.
	Stages *StageMillis `json:"stages,omitempty"`

	// State is the transport state for transport.state events.
	State string `json:"state,omitempty"`

	// Error is the message of the error that produced the event.
	Error string `json:"error,omitempty"`
}

// StageMillis is the JSON-friendly per-stage latency breakdown of one turn.
type StageMillis struct {
	Transcribe int64 `json:"transcribe_ms"`
	Correct    int64 `json:"correct_ms"`
	Translate  int64 `json:"translate_ms"`
	Synthesize int64 `json:"synthesize_ms"`
	Total      int64 `json:"total_ms"`
}

// stageMillis converts an engine stage breakdown to milliseconds.
func stageMillis(s engine.Stages) *StageMillis {
	return &StageMillis{
		Transcribe: s.Transcribe.Milliseconds(),
		Correct:    s.Correct.Milliseconds(),
		Translate:  s.Translate.Milliseconds(),
		Synthesize: s.Synthesize.Milliseconds(),
		Total:      s.Total.Milliseconds(),
	}
}
