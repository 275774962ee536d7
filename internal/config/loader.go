package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"regexp"
	"slices"

	"github.com/voxlate/voxlate/internal/arbiter"
	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"stream": {"openai"},
	"stt":    {"openai", "deepgram", "whisper"},
	"mt": {"openai", "anyllm", "anthropic", "gemini", "ollama",
		"deepseek", "mistral", "groq", "llamacpp", "llamafile"},
	"tts": {"openai", "elevenlabs", "coqui"},
}

// envPattern matches ${VAR} references in the raw config document.
// Bare $VAR references are left alone.
var envPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, expands ${VAR} environment
// references, applies defaults, and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("config: read: %w", err)
	}

	cfg := &Config{}
	dec := yaml.NewDecoder(bytes.NewReader(expandEnv(data)))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	cfg.applyDefaults()
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// expandEnv replaces every ${VAR} reference with the value of the environment
// variable VAR. Unset variables expand to the empty string so that missing
// secrets surface as empty fields instead of literal placeholders.
func expandEnv(data []byte) []byte {
	return envPattern.ReplaceAllFunc(data, func(ref []byte) []byte {
		name := string(ref[2 : len(ref)-1])
		return []byte(os.Getenv(name))
	})
}

// applyDefaults fills unset fields that have server-level defaults. Component
// tunables (VAD, phrase, resilience timings) deliberately stay zero; each
// component substitutes its own defaults for zero values, so the numbers are
// not duplicated here.
func (c *Config) applyDefaults() {
	if c.API.ListenAddr == "" {
		c.API.ListenAddr = ":8080"
	}
	if c.Log.Level == "" {
		c.Log.Level = LogInfo
	}
	if c.Log.Format == "" {
		c.Log.Format = LogText
	}
	if c.Telemetry.ServiceName == "" {
		c.Telemetry.ServiceName = "voxlate"
	}
	if c.Audio.SampleRate == 0 {
		c.Audio.SampleRate = 16000
	}
	if c.Audio.Channels == 0 {
		c.Audio.Channels = 1
	}
	if c.Latency.WindowSize == 0 {
		c.Latency.WindowSize = 100
	}
	// Without a stream transport the only workable starting mode is
	// turn-based, so the default follows the provider set.
	if c.Arbiter.InitialMode == "" {
		if c.Providers.Stream.Name != "" {
			c.Arbiter.InitialMode = arbiter.ModeStreaming
		} else {
			c.Arbiter.InitialMode = arbiter.ModeTurnBased
		}
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Log
	if cfg.Log.Level != "" && !cfg.Log.Level.IsValid() {
		errs = append(errs, fmt.Errorf("log.level %q is invalid; valid values: debug, info, warn, error", cfg.Log.Level))
	}
	if cfg.Log.Format != "" && !cfg.Log.Format.IsValid() {
		errs = append(errs, fmt.Errorf("log.format %q is invalid; valid values: text, json", cfg.Log.Format))
	}

	// API
	if cfg.API.TLS != nil {
		if cfg.API.TLS.CertFile == "" {
			errs = append(errs, errors.New("api.tls.cert_file is required when api.tls is set"))
		}
		if cfg.API.TLS.KeyFile == "" {
			errs = append(errs, errors.New("api.tls.key_file is required when api.tls is set"))
		}
	}

	// Providers. The turn-based cascade (stt → mt → tts) is mandatory; the
	// realtime stream transport is optional.
	if cfg.Providers.STT.Name == "" {
		errs = append(errs, errors.New("providers.stt.name is required"))
	}
	if cfg.Providers.MT.Name == "" {
		errs = append(errs, errors.New("providers.mt.name is required"))
	}
	if cfg.Providers.TTS.Name == "" {
		errs = append(errs, errors.New("providers.tts.name is required"))
	}
	if cfg.Providers.Stream.Name == "" {
		slog.Warn("providers.stream is not configured; sessions will run turn-based only")
	}
	errs = append(errs, validateEntry("providers.stream", "stream", cfg.Providers.Stream)...)
	errs = append(errs, validateEntry("providers.stt", "stt", cfg.Providers.STT)...)
	errs = append(errs, validateEntry("providers.mt", "mt", cfg.Providers.MT)...)
	errs = append(errs, validateEntry("providers.tts", "tts", cfg.Providers.TTS)...)

	// Audio
	errs = nonNegative(errs, "audio.sample_rate", cfg.Audio.SampleRate)
	if cfg.Audio.Channels != 0 && cfg.Audio.Channels != 1 && cfg.Audio.Channels != 2 {
		errs = append(errs, fmt.Errorf("audio.channels %d is invalid; valid values: 1 (mono), 2 (stereo)", cfg.Audio.Channels))
	}

	// VAD
	errs = nonNegative(errs, "vad.frame_duration_ms", cfg.VAD.FrameDurationMs)
	errs = nonNegative(errs, "vad.history_size", cfg.VAD.HistorySize)
	errs = nonNegative(errs, "vad.speech_start_frames", cfg.VAD.SpeechStartFrames)
	errs = nonNegative(errs, "vad.speech_end_frames", cfg.VAD.SpeechEndFrames)
	errs = nonNegative(errs, "vad.min_speech_ms", cfg.VAD.MinSpeechMs)
	errs = nonNegative(errs, "vad.max_silence_ms", cfg.VAD.MaxSilenceMs)
	errs = nonNegative(errs, "vad.pre_roll_ms", cfg.VAD.PreRollMs)
	errs = nonNegative(errs, "vad.post_roll_ms", cfg.VAD.PostRollMs)
	errs = unitInterval(errs, "vad.energy_threshold", cfg.VAD.EnergyThreshold)
	errs = unitInterval(errs, "vad.zcr_threshold", cfg.VAD.ZCRThreshold)

	// Phrase
	errs = nonNegative(errs, "phrase.min_emit_length", cfg.Phrase.MinEmitLength)
	errs = nonNegative(errs, "phrase.max_wait_ms", cfg.Phrase.MaxWaitMs)
	errs = nonNegative(errs, "phrase.cooldown_ms", cfg.Phrase.CooldownMs)

	// Arbiter
	switch cfg.Arbiter.InitialMode {
	case "", arbiter.ModeStreaming, arbiter.ModeTurnBased:
	default:
		errs = append(errs, fmt.Errorf("arbiter.initial_mode %q is invalid; valid values: streaming, turn-based", cfg.Arbiter.InitialMode))
	}
	if cfg.Arbiter.InitialMode == arbiter.ModeStreaming && cfg.Providers.Stream.Name == "" {
		errs = append(errs, errors.New("arbiter.initial_mode is streaming but providers.stream is not configured"))
	}
	errs = nonNegative(errs, "arbiter.upgrade_cooldown_ms", cfg.Arbiter.UpgradeCooldownMs)

	// Latency
	errs = nonNegative(errs, "latency.window_size", cfg.Latency.WindowSize)

	// Glossary
	errs = unitInterval(errs, "glossary.phonetic_threshold", cfg.Glossary.PhoneticThreshold)
	errs = unitInterval(errs, "glossary.fuzzy_threshold", cfg.Glossary.FuzzyThreshold)
	if cfg.Glossary.Path == "" && (cfg.Glossary.PhoneticThreshold != 0 || cfg.Glossary.FuzzyThreshold != 0) {
		slog.Warn("glossary thresholds are set but glossary.path is empty; term correction stays disabled")
	}

	// Resilience
	errs = nonNegative(errs, "resilience.breaker.max_failures", cfg.Resilience.Breaker.MaxFailures)
	errs = nonNegative(errs, "resilience.breaker.reset_timeout_ms", cfg.Resilience.Breaker.ResetTimeoutMs)
	errs = nonNegative(errs, "resilience.breaker.half_open_max", cfg.Resilience.Breaker.HalfOpenMax)
	errs = nonNegative(errs, "resilience.redial.max_retries", cfg.Resilience.Redial.MaxRetries)
	errs = nonNegative(errs, "resilience.redial.backoff_ms", cfg.Resilience.Redial.BackoffMs)
	errs = nonNegative(errs, "resilience.redial.max_backoff_ms", cfg.Resilience.Redial.MaxBackoffMs)

	return errors.Join(errs...)
}

// validateEntry checks one provider slot, including its fallback chain.
func validateEntry(path, kind string, e ProviderEntry) []error {
	var errs []error
	validateProviderName(kind, e.Name)
	if e.Name == "" && len(e.Fallbacks) > 0 {
		errs = append(errs, fmt.Errorf("%s.fallbacks requires %s.name to be set", path, path))
	}
	for i, fb := range e.Fallbacks {
		prefix := fmt.Sprintf("%s.fallbacks[%d]", path, i)
		if fb.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", prefix))
		}
		validateProviderName(kind, fb.Name)
		if len(fb.Fallbacks) > 0 {
			errs = append(errs, fmt.Errorf("%s.fallbacks must not be nested", prefix))
		}
	}
	return errs
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind. Unknown names are not an
// error: the registry may carry providers this list has not caught up with.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name; may be a typo or an unregistered provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}

// nonNegative appends an error when v is below zero. Zero means "use the
// component default" throughout the schema, so only negatives are rejected.
func nonNegative(errs []error, field string, v int) []error {
	if v < 0 {
		return append(errs, fmt.Errorf("%s must not be negative (got %d)", field, v))
	}
	return errs
}

// unitInterval appends an error when v falls outside [0, 1].
func unitInterval(errs []error, field string, v float64) []error {
	if v < 0 || v > 1 {
		return append(errs, fmt.Errorf("%s %.2f is out of range [0, 1]", field, v))
	}
	return errs
}
