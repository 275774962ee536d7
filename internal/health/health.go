// Package health provides liveness and readiness checks for the ops API.
//
// Two endpoints are exposed through the API router:
//
//   - /healthz — liveness probe; always returns 200 OK.
//   - /readyz  — readiness probe; returns 200 only when every [Checker]
//     registered with the [Registry] passes.
//
// Responses are JSON objects with a top-level "status" field ("ok" or "fail")
// and a "checks" map containing the result of each named checker.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

// checkTimeout is the maximum time a single readiness check may take before
// the context is cancelled.
const checkTimeout = 5 * time.Second

// Checker probes one dependency of the server.
type Checker interface {
	// Name is a short, human-readable label for this check (e.g. "providers",
	// "glossary"). It appears as a key in the JSON response.
	Name() string

	// Check probes the dependency, returning nil when it is healthy. It must
	// respect context cancellation.
	Check(ctx context.Context) error
}

// CheckerFunc adapts a named function to the [Checker] interface.
func CheckerFunc(name string, fn func(ctx context.Context) error) Checker {
	return funcChecker{name: name, fn: fn}
}

type funcChecker struct {
	name string
	fn   func(ctx context.Context) error
}

func (c funcChecker) Name() string                    { return c.name }
func (c funcChecker) Check(ctx context.Context) error { return c.fn(ctx) }

// result is the JSON response body for health endpoints.
type result struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Registry collects checkers and serves the health endpoints over them.
// It is safe for concurrent use; checkers may be added while serving.
type Registry struct {
	mu       sync.RWMutex
	checkers []Checker
}

// NewRegistry returns an empty [Registry]. A registry with no checkers
// reports ready.
func NewRegistry() *Registry {
	return &Registry{}
}

// AddChecker registers c for evaluation on each /readyz request. Checkers run
// sequentially in registration order.
func (r *Registry) AddChecker(c Checker) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.checkers = append(r.checkers, c)
}

// Healthz is a liveness probe that always returns 200 OK. A running process
// that can serve HTTP is considered alive.
func (r *Registry) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, result{Status: "ok"})
}

// Readyz is a readiness probe that returns 200 only when every registered
// [Checker] passes. Each checker is given a context with a [checkTimeout]
// deadline derived from the request context.
func (r *Registry) Readyz(w http.ResponseWriter, req *http.Request) {
	r.mu.RLock()
	checkers := make([]Checker, len(r.checkers))
	copy(checkers, r.checkers)
	r.mu.RUnlock()

	checks := make(map[string]string, len(checkers))
	allOK := true

	for _, c := range checkers {
		ctx, cancel := context.WithTimeout(req.Context(), checkTimeout)
		err := c.Check(ctx)
		cancel()

		if err != nil {
			checks[c.Name()] = "fail: " + err.Error()
			allOK = false
		} else {
			checks[c.Name()] = "ok"
		}
	}

	res := result{
		Status: "ok",
		Checks: checks,
	}
	status := http.StatusOK
	if !allOK {
		res.Status = "fail"
		status = http.StatusServiceUnavailable
	}

	writeJSON(w, status, res)
}

// writeJSON encodes v as JSON and writes it with the given status code. On
// encoding failure it falls back to a plain-text 500 response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"status":"error"}`, http.StatusInternalServerError)
	}
}
