package resilience

import (
	"errors"
	"fmt"
	"log/slog"
)

// ErrAllFailed is returned when every backend in a [FallbackGroup] fails or
// sits behind an open circuit breaker.
var ErrAllFailed = errors.New("all providers failed")

// FallbackConfig configures a [FallbackGroup].
type FallbackConfig struct {
	// Kind labels the chain in logs and breaker names ("stt", "mt", "tts").
	Kind string

	// CircuitBreaker is the template for each backend's dedicated breaker.
	// Its Name is replaced per backend.
	CircuitBreaker CircuitBreakerConfig
}

// FallbackGroup chains a primary and zero or more fallback backends of one
// provider type. Each backend gets its own circuit breaker; a call walks the
// chain in registration order and stops at the first backend that is healthy
// and succeeds.
//
// Safe for concurrent use once assembled. AddFallback is not synchronized
// with in-flight calls; register the whole chain before using it.
type FallbackGroup[T any] struct {
	cfg     FallbackConfig
	entries []fallbackEntry[T]
}

type fallbackEntry[T any] struct {
	name    string
	value   T
	breaker *CircuitBreaker
}

// NewFallbackGroup creates a group with primary as the first backend.
func NewFallbackGroup[T any](primary T, primaryName string, cfg FallbackConfig) *FallbackGroup[T] {
	fg := &FallbackGroup[T]{cfg: cfg}
	fg.add(primaryName, primary)
	return fg
}

// AddFallback appends a backend tried after everything registered before it.
func (fg *FallbackGroup[T]) AddFallback(name string, fallback T) {
	fg.add(name, fallback)
}

func (fg *FallbackGroup[T]) add(name string, value T) {
	cbCfg := fg.cfg.CircuitBreaker
	cbCfg.Name = fg.label(name)
	fg.entries = append(fg.entries, fallbackEntry[T]{
		name:    name,
		value:   value,
		breaker: NewCircuitBreaker(cbCfg),
	})
}

// label qualifies a backend name with the chain kind, e.g. "tts/elevenlabs".
func (fg *FallbackGroup[T]) label(name string) string {
	if fg.cfg.Kind == "" {
		return name
	}
	return fg.cfg.Kind + "/" + name
}

// Primary returns the name of the first registered backend.
func (fg *FallbackGroup[T]) Primary() string {
	if len(fg.entries) == 0 {
		return ""
	}
	return fg.entries[0].name
}

// Execute walks the chain with fn until one backend succeeds. Backends with
// an open breaker are skipped. When every backend fails the returned error
// wraps [ErrAllFailed] together with each backend's failure.
func (fg *FallbackGroup[T]) Execute(fn func(T) error) error {
	_, err := ExecuteWithResult(fg, func(v T) (struct{}, error) {
		return struct{}{}, fn(v)
	})
	return err
}

// ExecuteWithResult walks the chain with fn until one backend succeeds and
// returns its result. A package-level function because Go has no method-level
// type parameters.
func ExecuteWithResult[T any, R any](fg *FallbackGroup[T], fn func(T) (R, error)) (R, error) {
	var failures []error
	for i := range fg.entries {
		entry := &fg.entries[i]
		var result R
		err := entry.breaker.Execute(func() error {
			var innerErr error
			result, innerErr = fn(entry.value)
			return innerErr
		})
		if err == nil {
			return result, nil
		}
		failures = append(failures, fmt.Errorf("%s: %w", entry.name, err))
		if errors.Is(err, ErrCircuitOpen) {
			slog.Debug("backend circuit open, skipping",
				"chain", fg.cfg.Kind, "backend", entry.name)
		} else {
			slog.Warn("backend failed, trying next in chain",
				"chain", fg.cfg.Kind, "backend", entry.name, "error", err)
		}
	}
	var zero R
	return zero, fmt.Errorf("%w: %w", ErrAllFailed, errors.Join(failures...))
}
