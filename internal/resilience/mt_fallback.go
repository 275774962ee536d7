package resilience

import (
	"context"

	"github.com/voxlate/voxlate/pkg/provider/mt"
)

// MTFallback implements [mt.Provider] with automatic failover across multiple
// translation backends. Each backend has its own circuit breaker; when the
// primary fails or its breaker is open, the next healthy fallback is tried.
type MTFallback struct {
	group *FallbackGroup[mt.Provider]
}

// Compile-time interface assertion.
var _ mt.Provider = (*MTFallback)(nil)

// NewMTFallback creates an [MTFallback] with primary as the preferred backend.
func NewMTFallback(primary mt.Provider, primaryName string, cfg FallbackConfig) *MTFallback {
	return &MTFallback{
		group: NewFallbackGroup(primary, primaryName, cfg),
	}
}

// AddFallback registers an additional MT provider as a fallback.
func (f *MTFallback) AddFallback(name string, provider mt.Provider) {
	f.group.AddFallback(name, provider)
}

// Translate sends the request to the first healthy provider and returns its
// result. If the primary fails, subsequent fallbacks are tried.
func (f *MTFallback) Translate(ctx context.Context, req mt.Request) (mt.Result, error) {
	return ExecuteWithResult(f.group, func(p mt.Provider) (mt.Result, error) {
		return p.Translate(ctx, req)
	})
}

// Name returns the registered name of the primary backend.
func (f *MTFallback) Name() string {
	return f.group.Primary()
}
