// Command voxlate is the main entry point for the Voxlate translation server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/voxlate/voxlate/internal/app"
	"github.com/voxlate/voxlate/internal/config"
	"github.com/voxlate/voxlate/internal/resilience"
	"github.com/voxlate/voxlate/pkg/provider/mt"
	"github.com/voxlate/voxlate/pkg/provider/mt/anyllm"
	oaimt "github.com/voxlate/voxlate/pkg/provider/mt/openai"
	"github.com/voxlate/voxlate/pkg/provider/stream"
	oaistream "github.com/voxlate/voxlate/pkg/provider/stream/openai"
	"github.com/voxlate/voxlate/pkg/provider/stt"
	"github.com/voxlate/voxlate/pkg/provider/stt/deepgram"
	oaistt "github.com/voxlate/voxlate/pkg/provider/stt/openai"
	"github.com/voxlate/voxlate/pkg/provider/stt/whisper"
	"github.com/voxlate/voxlate/pkg/provider/tts"
	"github.com/voxlate/voxlate/pkg/provider/tts/coqui"
	"github.com/voxlate/voxlate/pkg/provider/tts/elevenlabs"
	oaitts "github.com/voxlate/voxlate/pkg/provider/tts/openai"
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	logLevel := flag.String("log-level", "", "override the configured log level (debug, info, warn, error)")
	logFormat := flag.String("log-format", "", "override the configured log format (text, json)")
	localMode := flag.Bool("local", false, "run a microphone-to-speaker session on this machine")
	targetLang := flag.String("target", "", "target language for --local (e.g. \"en\")")
	sourceLang := flag.String("source", "", "source language for --local; empty auto-detects")
	voice := flag.String("voice", "", "synthesis voice ID for --local; empty uses the provider default")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "voxlate: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "voxlate: %v\n", err)
		}
		return 1
	}
	if *logLevel != "" {
		cfg.Log.Level = config.LogLevel(*logLevel)
		if !cfg.Log.Level.IsValid() {
			fmt.Fprintf(os.Stderr, "voxlate: invalid log level %q\n", *logLevel)
			return 1
		}
	}
	if *logFormat != "" {
		cfg.Log.Format = config.LogFormat(*logFormat)
		if !cfg.Log.Format.IsValid() {
			fmt.Fprintf(os.Stderr, "voxlate: invalid log format %q\n", *logFormat)
			return 1
		}
	}
	if *localMode && *targetLang == "" {
		fmt.Fprintln(os.Stderr, "voxlate: --local requires --target")
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logger := newLogger(cfg.Log)
	slog.SetDefault(logger)

	slog.Info("voxlate starting",
		"config", *configPath,
		"listen_addr", cfg.API.ListenAddr,
		"log_level", cfg.Log.Level,
		"initial_mode", cfg.Arbiter.InitialMode,
	)

	// ── Provider registry ─────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	// ── Instantiate providers ─────────────────────────────────────────────────
	providers, err := buildProviders(cfg, reg)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Local session (optional) ──────────────────────────────────────────────
	var lsess *localSession
	if *localMode {
		lsess, err = newLocalSession(cfg, localOptions{
			SourceLang: *sourceLang,
			TargetLang: *targetLang,
			Voice:      *voice,
		})
		if err != nil {
			slog.Error("failed to open local audio devices", "err", err)
			return 1
		}
		slog.Info("local audio devices ready", "target_lang", *targetLang)
	}

	// ── Startup summary ───────────────────────────────────────────────────────
	printStartupSummary(cfg)

	application, err := app.New(ctx, cfg, providers)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	// Drive the local session alongside the server loop.
	if lsess != nil {
		go func() {
			if err := lsess.Run(ctx, application.Sessions()); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("local session error", "err", err)
			}
		}()
	}

	slog.Info("server ready — press Ctrl+C to shut down")

	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("shutdown signal received, stopping…")

	// Release the audio devices first so shutdown never blocks on playback.
	if lsess != nil {
		if err := lsess.Close(); err != nil {
			slog.Warn("local session close error", "err", err)
		}
	}

	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// builtinProviders maps provider slots to the implementations that ship with
// Voxlate. Used for startup logging.
var builtinProviders = map[string][]string{
	"stream": {"openai"},
	"stt":    {"openai", "deepgram", "whisper"},
	"mt":     {"openai", "anyllm", "anthropic", "gemini", "ollama", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
	"tts":    {"openai", "elevenlabs", "coqui"},
}

// registerBuiltinProviders wires all built-in provider factories into reg.
// Each factory receives a config.ProviderEntry and constructs the appropriate
// provider from the real implementation packages.
func registerBuiltinProviders(reg *config.Registry) {
	// ── Stream ────────────────────────────────────────────────────────────────

	reg.RegisterStream("openai", func(entry config.ProviderEntry) (stream.Provider, error) {
		var opts []oaistream.Option
		if entry.Model != "" {
			opts = append(opts, oaistream.WithModel(entry.Model))
		}
		if entry.BaseURL != "" {
			opts = append(opts, oaistream.WithBaseURL(entry.BaseURL))
		}
		return oaistream.New(entry.APIKey, opts...), nil
	})

	// ── STT ───────────────────────────────────────────────────────────────────

	reg.RegisterSTT("openai", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []oaistt.Option
		if entry.BaseURL != "" {
			opts = append(opts, oaistt.WithBaseURL(entry.BaseURL))
		}
		return oaistt.New(entry.APIKey, entry.Model, opts...)
	})

	reg.RegisterSTT("deepgram", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []deepgram.Option
		if entry.Model != "" {
			opts = append(opts, deepgram.WithModel(entry.Model))
		}
		if entry.BaseURL != "" {
			opts = append(opts, deepgram.WithBaseURL(entry.BaseURL))
		}
		return deepgram.New(entry.APIKey, opts...)
	})

	// whisper-server is a local process; it uses BaseURL for the address, not
	// an API key.
	reg.RegisterSTT("whisper", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []whisper.Option
		if entry.Model != "" {
			opts = append(opts, whisper.WithModel(entry.Model))
		}
		return whisper.New(entry.BaseURL, opts...)
	})

	// ── MT ────────────────────────────────────────────────────────────────────

	// openai goes through the official SDK; the any-llm names below cover the
	// other hosted backends.
	reg.RegisterMT("openai", func(entry config.ProviderEntry) (mt.Provider, error) {
		var opts []oaimt.Option
		if entry.BaseURL != "" {
			opts = append(opts, oaimt.WithBaseURL(entry.BaseURL))
		}
		return oaimt.New(entry.APIKey, entry.Model, opts...)
	})

	// anthropic, gemini, deepseek, mistral, groq, llamacpp and llamafile all
	// share the same pattern: optional APIKey + optional BaseURL.
	for _, providerName := range []string{
		"anthropic", "gemini",
		"deepseek", "mistral", "groq", "llamacpp", "llamafile",
	} {
		reg.RegisterMT(providerName, func(entry config.ProviderEntry) (mt.Provider, error) {
			var opts []anyllmlib.Option
			if entry.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			return anyllm.New(providerName, entry.Model, opts...)
		})
	}

	// ollama is a local server; it uses BaseURL for the address, not an API key.
	reg.RegisterMT("ollama", func(entry config.ProviderEntry) (mt.Provider, error) {
		var opts []anyllmlib.Option
		if entry.BaseURL != "" {
			opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
		}
		return anyllm.New("ollama", entry.Model, opts...)
	})

	// anyllm selects its backend from options.provider, so backends added
	// upstream work without a new release.
	reg.RegisterMT("anyllm", func(entry config.ProviderEntry) (mt.Provider, error) {
		backend := optString(entry.Options, "provider")
		if backend == "" {
			return nil, errors.New("anyllm provider requires options.provider")
		}
		var opts []anyllmlib.Option
		if entry.APIKey != "" {
			opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
		}
		if entry.BaseURL != "" {
			opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
		}
		return anyllm.New(backend, entry.Model, opts...)
	})

	// ── TTS ───────────────────────────────────────────────────────────────────

	reg.RegisterTTS("openai", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []oaitts.Option
		if entry.BaseURL != "" {
			opts = append(opts, oaitts.WithBaseURL(entry.BaseURL))
		}
		return oaitts.New(entry.APIKey, entry.Model, opts...)
	})

	reg.RegisterTTS("elevenlabs", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []elevenlabs.Option
		if entry.Model != "" {
			opts = append(opts, elevenlabs.WithModel(entry.Model))
		}
		if outputFmt := optString(entry.Options, "output_format"); outputFmt != "" {
			opts = append(opts, elevenlabs.WithOutputFormat(outputFmt))
		}
		return elevenlabs.New(entry.APIKey, opts...)
	})

	reg.RegisterTTS("coqui", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []coqui.Option
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, coqui.WithLanguage(lang))
		}
		if mode := optString(entry.Options, "api_mode"); mode != "" {
			opts = append(opts, coqui.WithAPIMode(coqui.APIMode(mode)))
		}
		if rate := optInt(entry.Options, "output_sample_rate"); rate > 0 {
			opts = append(opts, coqui.WithOutputSampleRate(rate))
		}
		return coqui.New(entry.BaseURL, opts...)
	})

	for kind, names := range builtinProviders {
		for _, name := range names {
			slog.Debug("registered provider", "kind", kind, "name", name)
		}
	}
}

// buildProviders instantiates every configured provider slot and wraps the
// cascade slots in their configured fallback chains.
func buildProviders(cfg *config.Config, reg *config.Registry) (*app.Providers, error) {
	ps := &app.Providers{}

	// The stream slot carries no fallback chain: the pipeline's redial loop
	// and the arbiter's mode degradation cover streaming failures.
	if name := cfg.Providers.Stream.Name; name != "" {
		p, err := reg.CreateStream(cfg.Providers.Stream)
		if errors.Is(err, config.ErrProviderNotRegistered) {
			slog.Debug("provider not registered — skipping", "kind", "stream", "name", name)
		} else if err != nil {
			return nil, fmt.Errorf("create stream provider %q: %w", name, err)
		} else {
			ps.Stream = p
			slog.Info("provider created", "kind", "stream", "name", name)
		}
	}

	if name := cfg.Providers.STT.Name; name != "" {
		p, err := reg.CreateSTT(cfg.Providers.STT)
		if errors.Is(err, config.ErrProviderNotRegistered) {
			slog.Debug("provider not registered — skipping", "kind", "stt", "name", name)
		} else if err != nil {
			return nil, fmt.Errorf("create stt provider %q: %w", name, err)
		} else {
			ps.STT = p
			slog.Info("provider created", "kind", "stt", "name", name)
		}
	}
	if ps.STT != nil && len(cfg.Providers.STT.Fallbacks) > 0 {
		chain := resilience.NewSTTFallback(ps.STT, cfg.Providers.STT.Name, fallbackConfig(cfg, "stt"))
		for _, entry := range cfg.Providers.STT.Fallbacks {
			fb, err := reg.CreateSTT(entry)
			if err != nil {
				return nil, fmt.Errorf("create stt fallback %q: %w", entry.Name, err)
			}
			chain.AddFallback(entry.Name, fb)
			slog.Info("fallback provider created", "kind", "stt", "name", entry.Name)
		}
		ps.STT = chain
	}

	if name := cfg.Providers.MT.Name; name != "" {
		p, err := reg.CreateMT(cfg.Providers.MT)
		if errors.Is(err, config.ErrProviderNotRegistered) {
			slog.Debug("provider not registered — skipping", "kind", "mt", "name", name)
		} else if err != nil {
			return nil, fmt.Errorf("create mt provider %q: %w", name, err)
		} else {
			ps.MT = p
			slog.Info("provider created", "kind", "mt", "name", name)
		}
	}
	if ps.MT != nil && len(cfg.Providers.MT.Fallbacks) > 0 {
		chain := resilience.NewMTFallback(ps.MT, cfg.Providers.MT.Name, fallbackConfig(cfg, "mt"))
		for _, entry := range cfg.Providers.MT.Fallbacks {
			fb, err := reg.CreateMT(entry)
			if err != nil {
				return nil, fmt.Errorf("create mt fallback %q: %w", entry.Name, err)
			}
			chain.AddFallback(entry.Name, fb)
			slog.Info("fallback provider created", "kind", "mt", "name", entry.Name)
		}
		ps.MT = chain
	}

	if name := cfg.Providers.TTS.Name; name != "" {
		p, err := reg.CreateTTS(cfg.Providers.TTS)
		if errors.Is(err, config.ErrProviderNotRegistered) {
			slog.Debug("provider not registered — skipping", "kind", "tts", "name", name)
		} else if err != nil {
			return nil, fmt.Errorf("create tts provider %q: %w", name, err)
		} else {
			ps.TTS = p
			slog.Info("provider created", "kind", "tts", "name", name)
		}
	}
	if ps.TTS != nil && len(cfg.Providers.TTS.Fallbacks) > 0 {
		chain := resilience.NewTTSFallback(ps.TTS, cfg.Providers.TTS.Name, fallbackConfig(cfg, "tts"))
		for _, entry := range cfg.Providers.TTS.Fallbacks {
			fb, err := reg.CreateTTS(entry)
			if err != nil {
				return nil, fmt.Errorf("create tts fallback %q: %w", entry.Name, err)
			}
			chain.AddFallback(entry.Name, fb)
			slog.Info("fallback provider created", "kind", "tts", "name", entry.Name)
		}
		ps.TTS = chain
	}

	return ps, nil
}

// fallbackConfig carries the shared breaker settings into one named fallback
// chain. Zero values fall through to the resilience defaults.
func fallbackConfig(cfg *config.Config, kind string) resilience.FallbackConfig {
	return resilience.FallbackConfig{
		Kind: kind,
		CircuitBreaker: resilience.CircuitBreakerConfig{
			MaxFailures:  cfg.Resilience.Breaker.MaxFailures,
			ResetTimeout: millis(cfg.Resilience.Breaker.ResetTimeoutMs),
			HalfOpenMax:  cfg.Resilience.Breaker.HalfOpenMax,
		},
	}
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔════════════════════════════════════════╗")
	fmt.Println("║       Voxlate — startup summary        ║")
	fmt.Println("╠════════════════════════════════════════╣")
	printProvider("Stream", cfg.Providers.Stream.Name, cfg.Providers.Stream.Model)
	printProvider("STT", cfg.Providers.STT.Name, cfg.Providers.STT.Model)
	printProvider("MT", cfg.Providers.MT.Name, cfg.Providers.MT.Model)
	printProvider("TTS", cfg.Providers.TTS.Name, cfg.Providers.TTS.Model)
	printRow("Initial mode", string(cfg.Arbiter.InitialMode))
	if cfg.Glossary.Path != "" {
		printRow("Glossary", cfg.Glossary.Path)
	} else {
		printRow("Glossary", "(disabled)")
	}
	fallbacks := len(cfg.Providers.STT.Fallbacks) +
		len(cfg.Providers.MT.Fallbacks) +
		len(cfg.Providers.TTS.Fallbacks)
	fmt.Printf("║  %-16s: %-19d ║\n", "Fallbacks", fallbacks)
	if cfg.API.ListenAddr != "" {
		printRow("Listen addr", cfg.API.ListenAddr)
	}
	if cfg.Telemetry.PrometheusListen != "" {
		printRow("Metrics addr", cfg.Telemetry.PrometheusListen)
	}
	fmt.Println("╚════════════════════════════════════════╝")
}

func printProvider(kind, name, model string) {
	value := name
	if value == "" {
		value = "(not configured)"
	} else if model != "" {
		value = name + " / " + model
	}
	printRow(kind, value)
}

func printRow(label, value string) {
	if len(value) > 19 {
		value = value[:16] + "…"
	}
	fmt.Printf("║  %-16s: %-19s ║\n", label, value)
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func newLogger(cfg config.LogConfig) *slog.Logger {
	var lvl slog.Level
	switch cfg.Level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if cfg.Format == config.LogJSON {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

// ── Helpers ───────────────────────────────────────────────────────────────────

// optString extracts a string value from a provider Options map[string]any.
// Returns "" if the map is nil, the key is absent, or the value is not a string.
func optString(opts map[string]any, key string) string {
	if opts == nil {
		return ""
	}
	v, ok := opts[key]
	if !ok {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		return ""
	}
	return s
}

// optInt extracts an integer value from a provider Options map[string]any.
// Returns 0 if the map is nil, the key is absent, or the value is not an int.
func optInt(opts map[string]any, key string) int {
	if opts == nil {
		return 0
	}
	v, ok := opts[key]
	if !ok {
		return 0
	}
	n, ok := v.(int)
	if !ok {
		return 0
	}
	return n
}

// millis converts a config value in milliseconds to a duration. Zero stays
// zero so defaults apply downstream.
func millis(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
