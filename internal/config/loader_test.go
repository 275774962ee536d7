package config_test

import (
	"slices"
	"strings"
	"testing"

	"github.com/voxlate/voxlate/internal/config"
)

// validBase is the smallest document that passes validation; tests append the
// section under scrutiny.
const validBase = `
providers:
  stt:
    name: openai
  mt:
    name: openai
  tts:
    name: openai
`

func TestValidate_InvalidLogLevel(t *testing.T) {
	t.Parallel()
	yaml := validBase + `
log:
  level: verbose
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for invalid log level, got nil")
	}
	if !strings.Contains(err.Error(), "log.level") {
		t.Errorf("error should mention log.level, got: %v", err)
	}
}

func TestValidate_InvalidLogFormat(t *testing.T) {
	t.Parallel()
	yaml := validBase + `
log:
  format: xml
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for invalid log format, got nil")
	}
	if !strings.Contains(err.Error(), "log.format") {
		t.Errorf("error should mention log.format, got: %v", err)
	}
}

func TestValidate_MissingProviders(t *testing.T) {
	t.Parallel()
	_, err := config.LoadFromReader(strings.NewReader("{}"))
	if err == nil {
		t.Fatal("expected errors for missing providers, got nil")
	}
	errStr := err.Error()
	for _, want := range []string{"providers.stt.name", "providers.mt.name", "providers.tts.name"} {
		if !strings.Contains(errStr, want) {
			t.Errorf("error should mention %s, got: %v", want, err)
		}
	}
}

func TestValidate_StreamingModeRequiresStreamProvider(t *testing.T) {
	t.Parallel()
	yaml := validBase + `
arbiter:
  initial_mode: streaming
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for streaming mode without a stream provider, got nil")
	}
	if !strings.Contains(err.Error(), "initial_mode") {
		t.Errorf("error should mention initial_mode, got: %v", err)
	}
}

func TestValidate_InvalidInitialMode(t *testing.T) {
	t.Parallel()
	yaml := validBase + `
arbiter:
  initial_mode: hybrid
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for invalid initial_mode, got nil")
	}
	if !strings.Contains(err.Error(), "initial_mode") {
		t.Errorf("error should mention initial_mode, got: %v", err)
	}
}

func TestValidate_NegativeVADField(t *testing.T) {
	t.Parallel()
	yaml := validBase + `
vad:
  min_speech_ms: -1
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for negative vad.min_speech_ms, got nil")
	}
	if !strings.Contains(err.Error(), "vad.min_speech_ms") {
		t.Errorf("error should mention vad.min_speech_ms, got: %v", err)
	}
}

func TestValidate_EnergyThresholdOutOfRange(t *testing.T) {
	t.Parallel()
	yaml := validBase + `
vad:
  energy_threshold: 1.5
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for out-of-range energy_threshold, got nil")
	}
	if !strings.Contains(err.Error(), "vad.energy_threshold") {
		t.Errorf("error should mention vad.energy_threshold, got: %v", err)
	}
}

func TestValidate_GlossaryThresholdOutOfRange(t *testing.T) {
	t.Parallel()
	yaml := validBase + `
glossary:
  path: glossary.yaml
  phonetic_threshold: -0.2
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for out-of-range phonetic_threshold, got nil")
	}
	if !strings.Contains(err.Error(), "glossary.phonetic_threshold") {
		t.Errorf("error should mention glossary.phonetic_threshold, got: %v", err)
	}
}

func TestValidate_InvalidChannelCount(t *testing.T) {
	t.Parallel()
	yaml := validBase + `
audio:
  channels: 3
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for invalid channel count, got nil")
	}
	if !strings.Contains(err.Error(), "audio.channels") {
		t.Errorf("error should mention audio.channels, got: %v", err)
	}
}

func TestValidate_TLSRequiresCertAndKey(t *testing.T) {
	t.Parallel()
	yaml := validBase + `
api:
  tls:
    cert_file: ""
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for incomplete TLS block, got nil")
	}
	errStr := err.Error()
	if !strings.Contains(errStr, "api.tls.cert_file") {
		t.Errorf("error should mention api.tls.cert_file, got: %v", err)
	}
	if !strings.Contains(errStr, "api.tls.key_file") {
		t.Errorf("error should mention api.tls.key_file, got: %v", err)
	}
}

func TestValidate_NestedFallbacksRejected(t *testing.T) {
	t.Parallel()
	yaml := `
providers:
  stt:
    name: openai
  mt:
    name: openai
    fallbacks:
      - name: anyllm
        fallbacks:
          - name: openai
  tts:
    name: openai
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for nested fallbacks, got nil")
	}
	if !strings.Contains(err.Error(), "must not be nested") {
		t.Errorf("error should mention nesting, got: %v", err)
	}
}

func TestValidate_FallbackMissingName(t *testing.T) {
	t.Parallel()
	yaml := `
providers:
  stt:
    name: openai
  mt:
    name: openai
  tts:
    name: openai
    fallbacks:
      - api_key: el-test
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for fallback without a name, got nil")
	}
	if !strings.Contains(err.Error(), "providers.tts.fallbacks[0].name") {
		t.Errorf("error should mention the fallback index, got: %v", err)
	}
}

func TestValidate_FallbacksRequirePrimary(t *testing.T) {
	t.Parallel()
	// The stream slot may stay empty, but not with fallbacks attached.
	yaml := `
providers:
  stream:
    fallbacks:
      - name: openai
  stt:
    name: openai
  mt:
    name: openai
  tts:
    name: openai
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for fallbacks without a primary, got nil")
	}
	if !strings.Contains(err.Error(), "providers.stream.fallbacks requires") {
		t.Errorf("error should mention the missing primary, got: %v", err)
	}
}

func TestValidate_NegativeRedialBackoff(t *testing.T) {
	t.Parallel()
	yaml := validBase + `
resilience:
  redial:
    backoff_ms: -5
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for negative backoff, got nil")
	}
	if !strings.Contains(err.Error(), "resilience.redial.backoff_ms") {
		t.Errorf("error should mention resilience.redial.backoff_ms, got: %v", err)
	}
}

func TestValidate_MultipleErrors(t *testing.T) {
	t.Parallel()
	yaml := `
log:
  level: verbose
providers:
  stt:
    name: openai
  mt:
    name: openai
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected errors, got nil")
	}
	errStr := err.Error()
	if !strings.Contains(errStr, "log.level") {
		t.Errorf("error should mention log.level, got: %v", err)
	}
	if !strings.Contains(errStr, "providers.tts.name") {
		t.Errorf("error should mention providers.tts.name, got: %v", err)
	}
}

func TestValidProviderNames(t *testing.T) {
	t.Parallel()
	// Sanity-check that the map is populated for every provider kind.
	for _, kind := range []string{"stream", "stt", "mt", "tts"} {
		names := config.ValidProviderNames[kind]
		if len(names) == 0 {
			t.Errorf("ValidProviderNames[%q] should not be empty", kind)
			continue
		}
		if !slices.Contains(names, "openai") {
			t.Errorf("ValidProviderNames[%q] should contain \"openai\", got %v", kind, names)
		}
	}
}
