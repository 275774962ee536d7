// Package mock provides a test double for the stt.Provider interface.
//
// Use Provider to verify that the caller submits the expected audio and to
// feed controlled transcription results without a live STT backend.
//
// Example:
//
//	p := &mock.Provider{
//	    Result: stt.Result{Text: "hello world", Language: "en"},
//	}
//	res, _ := p.Transcribe(ctx, req)
package mock

import (
	"context"
	"sync"

	"github.com/voxlate/voxlate/pkg/provider/stt"
)

// TranscribeCall records a single invocation of Provider.Transcribe.
type TranscribeCall struct {
	// Ctx is the context passed to Transcribe.
	Ctx context.Context
	// Req is the Request passed to Transcribe. The PCM slice is copied so
	// later mutations by the caller do not affect the record.
	Req stt.Request
}

// Provider is a mock implementation of stt.Provider.
// Zero values cause Transcribe to return an empty Result and nil error.
type Provider struct {
	mu sync.Mutex

	// Result is returned by every Transcribe call unless Results is set.
	Result stt.Result

	// Results, if non-empty, is consumed one element per Transcribe call.
	// After the last element the mock falls back to Result.
	Results []stt.Result

	// Err, if non-nil, is returned as the error from Transcribe.
	Err error

	// NameValue is returned by Name. Defaults to "mock".
	NameValue string

	// TranscribeCalls records every call to Transcribe.
	TranscribeCalls []TranscribeCall
}

// Transcribe records the call and returns the configured result.
func (p *Provider) Transcribe(ctx context.Context, req stt.Request) (stt.Result, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	rec := req
	rec.PCM = append([]byte(nil), req.PCM...)
	p.TranscribeCalls = append(p.TranscribeCalls, TranscribeCall{Ctx: ctx, Req: rec})

	if p.Err != nil {
		return stt.Result{}, p.Err
	}
	if len(p.Results) > 0 {
		res := p.Results[0]
		p.Results = p.Results[1:]
		return res, nil
	}
	return p.Result, nil
}

// Name implements stt.Provider.
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
	p.TranscribeCalls = nil
}

// Ensure Provider implements stt.Provider at compile time.
var _ stt.Provider = (*Provider)(nil)
