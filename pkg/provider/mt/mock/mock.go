// Package mock provides a test double for the mt.Provider interface.
//
// Use Provider to verify that the caller requests the expected language pair
// and to feed controlled translations without a live MT backend.
//
// Example:
//
//	p := &mock.Provider{
//	    TranslateFunc: func(req mt.Request) (mt.Result, error) {
//	        return mt.Result{Text: "[de] " + req.Text}, nil
//	    },
//	}
package mock

import (
	"context"
	"sync"

	"github.com/voxlate/voxlate/pkg/provider/mt"
)

// TranslateCall records a single invocation of Provider.Translate.
type TranslateCall struct {
	// Ctx is the context passed to Translate.
	Ctx context.Context
	// Req is the Request passed to Translate.
	Req mt.Request
}

// Provider is a mock implementation of mt.Provider.
// Zero values cause Translate to echo the input text back.
type Provider struct {
	mu sync.Mutex

	// Result is returned by every Translate call when TranslateFunc is nil.
	// A zero Result echoes req.Text.
	Result mt.Result

	// TranslateFunc, if non-nil, computes the result per call. It runs under
	// the mock's lock, so it must not call back into the mock.
	TranslateFunc func(req mt.Request) (mt.Result, error)

	// Err, if non-nil, is returned as the error from Translate.
	Err error

	// NameValue is returned by Name. Defaults to "mock".
	NameValue string

	// TranslateCalls records every call to Translate.
	TranslateCalls []TranslateCall
}

// Translate records the call and returns the configured result.
func (p *Provider) Translate(ctx context.Context, req mt.Request) (mt.Result, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.TranslateCalls = append(p.TranslateCalls, TranslateCall{Ctx: ctx, Req: req})

	if p.Err != nil {
		return mt.Result{}, p.Err
	}
	if p.TranslateFunc != nil {
		return p.TranslateFunc(req)
	}
	if p.Result == (mt.Result{}) {
		return mt.Result{Text: req.Text}, nil
	}
	return p.Result, nil
}

// Name implements mt.Provider.
func (p *Provider) Name() string {
	if p.NameValue == "" {
		return "mock"
	}
	return p.NameValue
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.TranslateCalls = nil
}

// Ensure Provider implements mt.Provider at compile time.
var _ mt.Provider = (*Provider)(nil)
