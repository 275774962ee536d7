// Package app wires all Voxlate subsystems into a running server.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run serves the HTTP control surface until the context is
// cancelled, and Shutdown tears everything down in order.
//
// For testing, inject mock implementations via functional options
// (WithMetrics, WithCorrector). When an option is not provided, New creates
// real implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"golang.org/x/sync/errgroup"

	"github.com/voxlate/voxlate/internal/api"
	"github.com/voxlate/voxlate/internal/config"
	"github.com/voxlate/voxlate/internal/glossary"
	"github.com/voxlate/voxlate/internal/health"
	"github.com/voxlate/voxlate/internal/observe"
	"github.com/voxlate/voxlate/pkg/provider/mt"
	"github.com/voxlate/voxlate/pkg/provider/stream"
	"github.com/voxlate/voxlate/pkg/provider/stt"
	"github.com/voxlate/voxlate/pkg/provider/tts"
)

// shutdownGrace bounds the graceful HTTP drain when Run's context is
// cancelled.
const shutdownGrace = 5 * time.Second

// Providers holds one interface value per provider slot. Nil means the
// provider is not configured. Populated by main.go via the config registry;
// slots backed by fallback chains arrive already wrapped.
type Providers struct {
	Stream stream.Provider
	STT    stt.Provider
	MT     mt.Provider
	TTS    tts.Provider
}

// App owns all subsystem lifetimes and serves the Voxlate control surface.
type App struct {
	cfg       *config.Config
	providers *Providers

	// Subsystems, initialised in New and torn down in Shutdown.
	metrics   *observe.Metrics
	corrector *glossary.Corrector
	manager   *SessionManager
	health    *health.Registry
	apiSrv    *http.Server
	promSrv   *http.Server

	// closers are called in reverse order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithMetrics injects a metrics sink instead of initialising the OTel SDK.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithCorrector injects a glossary corrector instead of loading one from the
// configured glossary file.
func WithCorrector(c *glossary.Corrector) Option {
	return func(a *App) { a.corrector = c }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. The providers struct
// comes from main.go (populated via the config registry). Use Option functions
// to inject test doubles.
//
// New performs all initialisation synchronously: telemetry setup, glossary
// loading, session manager construction, health checker registration, and
// HTTP server assembly. Nothing listens until Run.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	a := &App{
		cfg:       cfg,
		providers: providers,
		health:    health.NewRegistry(),
	}
	for _, o := range opts {
		o(a)
	}

	// ── 1. Telemetry ─────────────────────────────────────────────────────
	if err := a.initTelemetry(ctx); err != nil {
		return nil, fmt.Errorf("app: init telemetry: %w", err)
	}

	// ── 2. Glossary ──────────────────────────────────────────────────────
	if err := a.initGlossary(); err != nil {
		return nil, fmt.Errorf("app: init glossary: %w", err)
	}

	// ── 3. Session manager ───────────────────────────────────────────────
	a.manager = NewSessionManager(SessionManagerConfig{
		Config:    cfg,
		Providers: providers,
		Corrector: a.corrector,
		Metrics:   a.metrics,
		Logger:    slog.Default(),
	})
	a.closers = append(a.closers, a.manager.Close)

	// ── 4. Health checkers ───────────────────────────────────────────────
	a.initHealth()

	// ── 5. HTTP servers ──────────────────────────────────────────────────
	a.initServers()

	return a, nil
}

// ─── Init helpers ────────────────────────────────────────────────────────────

// initTelemetry sets up the global OTel SDK and the metrics sink, unless a
// sink was injected.
func (a *App) initTelemetry(ctx context.Context) error {
	if a.metrics != nil {
		return nil // injected
	}

	shutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    a.cfg.Telemetry.ServiceName,
		ServiceVersion: a.cfg.Telemetry.ServiceVersion,
	})
	if err != nil {
		return err
	}
	a.closers = append(a.closers, func() error {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		return shutdown(ctx)
	})

	m, err := observe.NewMetrics(otel.GetMeterProvider())
	if err != nil {
		return err
	}
	a.metrics = m
	return nil
}

// initGlossary loads the glossary file and builds the corrector, unless one
// was injected or no glossary is configured.
func (a *App) initGlossary() error {
	if a.corrector != nil || a.cfg.Glossary.Path == "" {
		return nil
	}

	terms, err := glossary.Load(a.cfg.Glossary.Path)
	if err != nil {
		return err
	}

	var opts []glossary.MatcherOption
	if a.cfg.Glossary.PhoneticThreshold > 0 {
		opts = append(opts, glossary.WithPhoneticThreshold(a.cfg.Glossary.PhoneticThreshold))
	}
	if a.cfg.Glossary.FuzzyThreshold > 0 {
		opts = append(opts, glossary.WithFuzzyThreshold(a.cfg.Glossary.FuzzyThreshold))
	}
	a.corrector = glossary.NewCorrector(glossary.NewMatcher(opts...), terms)

	slog.Info("glossary loaded", "path", a.cfg.Glossary.Path, "terms", len(terms))
	return nil
}

// initHealth registers the readiness checkers served by /readyz.
func (a *App) initHealth() {
	a.health.AddChecker(health.CheckerFunc("providers", func(context.Context) error {
		if a.providers.STT == nil || a.providers.MT == nil || a.providers.TTS == nil {
			return errors.New("cascade providers not configured")
		}
		return nil
	}))

	if a.cfg.Glossary.Path != "" {
		a.health.AddChecker(health.CheckerFunc("glossary", func(context.Context) error {
			if a.corrector == nil {
				return errors.New("glossary not loaded")
			}
			return nil
		}))
	}
}

// initServers assembles the API server and, when configured, the dedicated
// Prometheus listener. Nothing binds until Run.
func (a *App) initServers() {
	router := api.NewRouter(
		api.Config{
			Service: a.cfg.Telemetry.ServiceName,
			Version: a.cfg.Telemetry.ServiceVersion,
		},
		a.manager,
		a.health,
		a.metrics,
		slog.Default(),
	)
	a.apiSrv = &http.Server{
		Addr:              a.cfg.API.ListenAddr,
		Handler:           router.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	if addr := a.cfg.Telemetry.PrometheusListen; addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		a.promSrv = &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		}
	}
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run serves the HTTP listeners and blocks until ctx is cancelled or a
// listener fails. On cancellation the servers drain gracefully within
// shutdownGrace before Run returns ctx.Err().
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("api listening", "addr", a.apiSrv.Addr)
		err := a.listenAndServe(a.apiSrv, a.cfg.API.TLS)
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})

	if a.promSrv != nil {
		g.Go(func() error {
			slog.Info("metrics listening", "addr", a.promSrv.Addr)
			err := a.promSrv.ListenAndServe()
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return err
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if a.promSrv != nil {
			_ = a.promSrv.Shutdown(sctx)
		}
		return a.apiSrv.Shutdown(sctx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// listenAndServe starts srv with or without TLS depending on the config.
func (a *App) listenAndServe(srv *http.Server, tls *config.TLSConfig) error {
	if tls != nil {
		return srv.ListenAndServeTLS(tls.CertFile, tls.KeyFile)
	}
	return srv.ListenAndServe()
}

// Sessions exposes the session manager for host integrations that feed audio
// directly, such as local capture.
func (a *App) Sessions() *SessionManager {
	return a.manager
}

// Handler returns the API handler tree, for tests and for embedding the
// control surface into a host server.
func (a *App) Handler() http.Handler {
	return a.apiSrv.Handler
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown tears down all subsystems in reverse-init order. It respects the
// context deadline: if ctx expires before all closers finish, remaining
// closers are skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		// Stop accepting API traffic first. Run may already have drained
		// the servers; a second Shutdown is a no-op.
		if a.apiSrv != nil {
			if err := a.apiSrv.Shutdown(ctx); err != nil {
				slog.Warn("api server shutdown error", "err", err)
			}
		}
		if a.promSrv != nil {
			if err := a.promSrv.Shutdown(ctx); err != nil {
				slog.Warn("metrics server shutdown error", "err", err)
			}
		}

		for i := len(a.closers) - 1; i >= 0; i-- {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", i+1)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := a.closers[i](); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}
