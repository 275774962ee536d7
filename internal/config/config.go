// Package config provides the configuration schema and loader for the
// Voxlate translation server.
package config

import "github.com/voxlate/voxlate/internal/arbiter"

// LogLevel controls log verbosity for the Voxlate server.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// LogFormat selects the slog handler used for server logs.
type LogFormat string

const (
	LogText LogFormat = "text"
	LogJSON LogFormat = "json"
)

// IsValid reports whether f is a recognised log format.
func (f LogFormat) IsValid() bool {
	return f == LogText || f == LogJSON
}

// Config is the root configuration structure for Voxlate.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
// A loaded Config is never mutated; components receive the values they need
// by copy, so there is no hot-reload path.
type Config struct {
	API        APIConfig        `yaml:"api"`
	Log        LogConfig        `yaml:"log"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`
	Providers  ProvidersConfig  `yaml:"providers"`
	Audio      AudioConfig      `yaml:"audio"`
	VAD        VADConfig        `yaml:"vad"`
	Phrase     PhraseConfig     `yaml:"phrase"`
	Arbiter    ArbiterConfig    `yaml:"arbiter"`
	Latency    LatencyConfig    `yaml:"latency"`
	Glossary   GlossaryConfig   `yaml:"glossary"`
	Resilience ResilienceConfig `yaml:"resilience"`
}

// APIConfig holds network settings for the ops/control HTTP server.
type APIConfig struct {
	// ListenAddr is the TCP address the server listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// TLS configures TLS for the server. When nil, the server runs plain HTTP.
	TLS *TLSConfig `yaml:"tls"`
}

// TLSConfig holds TLS certificate paths for enabling HTTPS.
type TLSConfig struct {
	// CertFile is the path to the PEM-encoded TLS certificate.
	CertFile string `yaml:"cert_file"`

	// KeyFile is the path to the PEM-encoded TLS private key.
	KeyFile string `yaml:"key_file"`
}

// LogConfig controls the structured logging output.
type LogConfig struct {
	// Level controls verbosity. Default: "info".
	Level LogLevel `yaml:"level"`

	// Format selects the handler: "text" or "json". Default: "text".
	Format LogFormat `yaml:"format"`
}

// TelemetryConfig configures the OpenTelemetry providers.
type TelemetryConfig struct {
	// ServiceName is the service name reported in telemetry. Default: "voxlate".
	ServiceName string `yaml:"service_name"`

	// ServiceVersion is the service version reported in telemetry.
	ServiceVersion string `yaml:"service_version"`

	// PrometheusListen optionally serves /metrics on a dedicated address
	// (e.g., ":9090") in addition to the API router. Empty disables the
	// extra listener.
	PrometheusListen string `yaml:"prometheus_listen"`
}

// ProvidersConfig declares which provider implementation to use for each
// pipeline stage. Each field selects a named provider known to the app's
// provider builders.
type ProvidersConfig struct {
	// Stream is the realtime speech-to-speech transport. Optional: when
	// unset, sessions run turn-based only and arbiter.initial_mode must be
	// "turn-based".
	Stream ProviderEntry `yaml:"stream"`

	// STT transcribes detected speech segments in turn-based mode.
	STT ProviderEntry `yaml:"stt"`

	// MT translates transcripts in turn-based mode.
	MT ProviderEntry `yaml:"mt"`

	// TTS synthesizes translated text in both modes.
	TTS ProviderEntry `yaml:"tts"`
}

// ProviderEntry is the common configuration block shared by all provider types.
type ProviderEntry struct {
	// Name selects the provider implementation (e.g., "openai", "elevenlabs").
	Name string `yaml:"name"`

	// APIKey is the authentication key for the provider's API if any.
	// Values of the form ${VAR} are replaced with the environment variable
	// VAR at load time, so keys can stay out of the file.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint.
	// Leave empty to use the provider's built-in default.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider
	// (e.g., "gpt-4o-mini-realtime-preview", "whisper-1").
	Model string `yaml:"model"`

	// Options holds provider-specific configuration values not covered by the
	// standard fields above. Values may be strings, numbers, booleans, or nested maps.
	Options map[string]any `yaml:"options"`

	// Fallbacks lists providers tried in order when this one fails or its
	// circuit breaker is open. Fallbacks of fallbacks are not supported and
	// are rejected by validation.
	Fallbacks []ProviderEntry `yaml:"fallbacks"`
}

// AudioConfig describes the PCM format sessions ingest.
type AudioConfig struct {
	// SampleRate in Hz. Default: 16000.
	SampleRate int `yaml:"sample_rate"`

	// Channels is the channel count. Default: 1. The pipeline mixes down to
	// mono internally, so values above 1 only affect capture.
	Channels int `yaml:"channels"`
}

// VADConfig tunes the voice activity detector. Zero fields fall back to the
// detector defaults; only non-zero values override them.
type VADConfig struct {
	// FrameDurationMs is the length of each analysis frame in milliseconds.
	FrameDurationMs int `yaml:"frame_duration_ms"`

	// HistorySize is the number of recent frame energies kept for the
	// adaptive noise threshold.
	HistorySize int `yaml:"history_size"`

	// SpeechStartFrames is the consecutive speech-positive frame count
	// required to register a speech onset.
	SpeechStartFrames int `yaml:"speech_start_frames"`

	// SpeechEndFrames is the consecutive speech-negative frame count
	// required to close a speech run.
	SpeechEndFrames int `yaml:"speech_end_frames"`

	// MinSpeechMs discards speech runs shorter than this, in milliseconds.
	MinSpeechMs int `yaml:"min_speech_ms"`

	// MaxSilenceMs force-closes a speech run once trailing silence exceeds
	// this, in milliseconds.
	MaxSilenceMs int `yaml:"max_silence_ms"`

	// EnergyThreshold is the static floor of the adaptive energy threshold,
	// in normalized RMS units [0,1].
	EnergyThreshold float64 `yaml:"energy_threshold"`

	// ZCRThreshold is the minimum zero-crossing rate for a frame to count
	// as speech.
	ZCRThreshold float64 `yaml:"zcr_threshold"`

	// PreRollMs is the audio prepended before each detected onset, in
	// milliseconds.
	PreRollMs int `yaml:"pre_roll_ms"`

	// PostRollMs is the trailing silence kept after the last speech frame,
	// in milliseconds.
	PostRollMs int `yaml:"post_roll_ms"`
}

// PhraseConfig tunes the streaming phrase aggregator. Zero fields fall back
// to the aggregator defaults.
type PhraseConfig struct {
	// MinEmitLength is the minimum buffered rune count before a pause
	// indicator may emit a phrase.
	MinEmitLength int `yaml:"min_emit_length"`

	// MaxWaitMs bounds how long buffered text may sit unemitted, in
	// milliseconds.
	MaxWaitMs int `yaml:"max_wait_ms"`

	// CooldownMs is the hold-back after each emission, in milliseconds.
	CooldownMs int `yaml:"cooldown_ms"`
}

// ArbiterConfig tunes connection-quality mode arbitration.
type ArbiterConfig struct {
	// InitialMode is the mode new sessions start in: "streaming" or
	// "turn-based". Default: "streaming".
	InitialMode arbiter.Mode `yaml:"initial_mode"`

	// UpgradeCooldownMs is the minimum time after any switch before an
	// excellent sample may upgrade back to streaming, in milliseconds.
	UpgradeCooldownMs int `yaml:"upgrade_cooldown_ms"`
}

// LatencyConfig tunes response-delay bookkeeping.
type LatencyConfig struct {
	// WindowSize is the number of recent latency samples kept for the
	// rolling percentile summary. Default: 100.
	WindowSize int `yaml:"window_size"`
}

// GlossaryConfig configures domain-term correction of transcripts.
type GlossaryConfig struct {
	// Path is the YAML glossary file. Empty disables term correction.
	Path string `yaml:"path"`

	// PhoneticThreshold is the minimum similarity score for a
	// phonetically-equal candidate to be corrected. Zero keeps the matcher
	// default.
	PhoneticThreshold float64 `yaml:"phonetic_threshold"`

	// FuzzyThreshold is the minimum similarity score for a purely fuzzy
	// candidate. Zero keeps the matcher default.
	FuzzyThreshold float64 `yaml:"fuzzy_threshold"`
}

// ResilienceConfig tunes failure handling for provider calls and the
// realtime transport.
type ResilienceConfig struct {
	Breaker BreakerConfig `yaml:"breaker"`
	Redial  RedialConfig  `yaml:"redial"`
}

// BreakerConfig tunes the circuit breakers guarding provider calls.
type BreakerConfig struct {
	// MaxFailures is the consecutive-failure count that opens a breaker.
	MaxFailures int `yaml:"max_failures"`

	// ResetTimeoutMs is how long an open breaker waits before probing, in
	// milliseconds.
	ResetTimeoutMs int `yaml:"reset_timeout_ms"`

	// HalfOpenMax is the probe budget in the half-open state.
	HalfOpenMax int `yaml:"half_open_max"`
}

// RedialConfig tunes stream reconnection after a transport failure.
type RedialConfig struct {
	// MaxRetries is the redial attempt count per disconnect.
	MaxRetries int `yaml:"max_retries"`

	// BackoffMs is the initial delay between attempts, in milliseconds.
	// Doubles each attempt.
	BackoffMs int `yaml:"backoff_ms"`

	// MaxBackoffMs caps the doubled delay, in milliseconds.
	MaxBackoffMs int `yaml:"max_backoff_ms"`
}
