package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/voxlate/voxlate/internal/resilience"
)

// Default redial parameters. MaxRetries matches the transport drop cap: past
// three consecutive failures the connection is not coming back soon, and the
// turn-based fallback is already carrying the session.
const (
	defaultMaxRetries = 3
	defaultBackoff    = 1 * time.Second
	defaultMaxBackoff = 30 * time.Second
)

// RedialConfig holds the backoff schedule for stream redials.
type RedialConfig struct {
	// MaxRetries is the number of redial attempts per disconnect before
	// giving up. Default 3.
	MaxRetries int

	// Backoff is the initial delay between attempts. Doubles each attempt.
	// Default 1s.
	Backoff time.Duration

	// MaxBackoff caps the doubled delay. Default 30s.
	MaxBackoff time.Duration
}

func (c RedialConfig) withDefaults() RedialConfig {
	if c.MaxRetries <= 0 {
		c.MaxRetries = defaultMaxRetries
	}
	if c.Backoff <= 0 {
		c.Backoff = defaultBackoff
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = defaultMaxBackoff
	}
	return c
}

// Reconnector redials the streaming transport after a disconnect.
//
// A drop is reported via [Reconnector.NotifyDisconnect]; the run loop then
// calls the connect function with exponential backoff until it succeeds, the
// retry budget is spent, or the redial circuit breaker rejects the attempt.
// The connect function owns the whole attempt — breaker accounting, session
// installation, drop counting — so the reconnector is pure scheduling.
//
// All methods are safe for concurrent use.
type Reconnector struct {
	connect  func(context.Context) error
	onGiveUp func(error)
	cfg      RedialConfig
	logger   *slog.Logger

	done         chan struct{}
	stopOnce     sync.Once
	disconnected chan struct{} // signalled when a disconnect is detected
}

// NewReconnector creates a [Reconnector] that redials through connect and
// reports abandoned cycles through onGiveUp (may be nil).
func NewReconnector(connect func(context.Context) error, onGiveUp func(error), cfg RedialConfig, logger *slog.Logger) *Reconnector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconnector{
		connect:      connect,
		onGiveUp:     onGiveUp,
		cfg:          cfg.withDefaults(),
		logger:       logger,
		done:         make(chan struct{}),
		disconnected: make(chan struct{}, 1),
	}
}

// NotifyDisconnect signals that the stream connection has been lost and a
// redial cycle should start. Safe to call multiple times; only the first call
// per cycle has effect.
func (r *Reconnector) NotifyDisconnect() {
	select {
	case r.disconnected <- struct{}{}:
	default:
		// Already signalled; avoid blocking.
	}
}

// Stop halts the run loop. Safe to call multiple times.
func (r *Reconnector) Stop() {
	r.stopOnce.Do(func() {
		close(r.done)
	})
}

// Run waits for disconnect notifications and executes redial cycles. It
// blocks until ctx is done or [Reconnector.Stop] is called, always returning
// nil so an errgroup treats shutdown as clean.
func (r *Reconnector) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-r.done:
			return nil
		case <-r.disconnected:
			r.redialCycle(ctx)
		}
	}
}

// redialCycle attempts to reconnect with exponential backoff.
func (r *Reconnector) redialCycle(ctx context.Context) {
	backoff := r.cfg.Backoff

	for attempt := 1; attempt <= r.cfg.MaxRetries; attempt++ {
		select {
		case <-ctx.Done():
			return
		case <-r.done:
			return
		default:
		}

		r.logger.Info("attempting stream redial",
			"attempt", attempt,
			"max_retries", r.cfg.MaxRetries,
			"backoff", backoff,
		)

		err := r.connect(ctx)
		if err == nil {
			r.logger.Info("stream redial succeeded", "attempt", attempt)
			return
		}
		if errors.Is(err, resilience.ErrCircuitOpen) {
			// The breaker has seen enough; it will admit a probe after its
			// reset timeout, on the next disconnect notification.
			r.logger.Warn("stream redial rejected by circuit breaker, abandoning cycle")
			r.giveUp(err)
			return
		}

		r.logger.Warn("stream redial attempt failed",
			"attempt", attempt,
			"error", err,
		)

		select {
		case <-ctx.Done():
			return
		case <-r.done:
			return
		case <-time.After(backoff):
		}

		backoff *= 2
		if backoff > r.cfg.MaxBackoff {
			backoff = r.cfg.MaxBackoff
		}
	}

	r.logger.Error("stream redial exhausted", "max_retries", r.cfg.MaxRetries)
	r.giveUp(fmt.Errorf("pipeline: stream redial exhausted after %d attempts", r.cfg.MaxRetries))
}

func (r *Reconnector) giveUp(err error) {
	if r.onGiveUp != nil {
		r.onGiveUp(err)
	}
}
