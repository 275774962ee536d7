// Package mock provides a test double for the tts.Provider interface.
//
// Use Provider to feed controlled audio to consumers and to verify that the
// correct Voice and text fragments are passed to the TTS backend.
//
// Example:
//
//	p := &mock.Provider{
//	    SynthesizeResult: tts.Result{Audio: []byte("pcm"), Format: audio.PipelineFormat},
//	    StreamChunks:     [][]byte{[]byte("audio1"), []byte("audio2")},
//	}
//	res, _ := p.Synthesize(ctx, tts.Request{Text: "hello"})
package mock

import (
	"context"
	"sync"

	"github.com/voxlate/voxlate/pkg/provider/tts"
)

// SynthesizeCall records a single invocation of Synthesize.
type SynthesizeCall struct {
	// Ctx is the context passed to Synthesize.
	Ctx context.Context
	// Req is the Request passed to Synthesize.
	Req tts.Request
}

// SynthesizeStreamCall records a single invocation of SynthesizeStream.
type SynthesizeStreamCall struct {
	// Ctx is the context passed to SynthesizeStream.
	Ctx context.Context
	// Text is the text input channel passed to SynthesizeStream.
	Text <-chan string
	// Voice is the Voice passed to SynthesizeStream.
	Voice tts.Voice
}

// ListVoicesCall records a single invocation of ListVoices.
type ListVoicesCall struct {
	// Ctx is the context passed to ListVoices.
	Ctx context.Context
}

// Provider is a mock implementation of tts.Provider.
// Zero values cause methods to return zero values and nil errors.
type Provider struct {
	mu sync.Mutex

	// --- Configurable responses ---

	// SynthesizeResult is returned by every Synthesize call.
	SynthesizeResult tts.Result

	// SynthesizeErr, if non-nil, is returned as the error from Synthesize.
	SynthesizeErr error

	// StreamChunks is the sequence of audio chunks emitted on the channel
	// returned by SynthesizeStream. The mock emits one chunk per received
	// text fragment, cycling through StreamChunks; the channel closes when
	// the text channel closes.
	StreamChunks [][]byte

	// StreamErr, if non-nil, is returned as the error from SynthesizeStream
	// instead of starting a channel.
	StreamErr error

	// ListVoicesResult is returned by ListVoices.
	ListVoicesResult []tts.Voice

	// ListVoicesErr, if non-nil, is returned as the error from ListVoices.
	ListVoicesErr error

	// NameValue is returned by Name. Defaults to "mock".
	NameValue string

	// --- Recorded calls ---

	// SynthesizeCalls records every call to Synthesize.
	SynthesizeCalls []SynthesizeCall

	// StreamCalls records every call to SynthesizeStream.
	StreamCalls []SynthesizeStreamCall

	// ListVoicesCalls records every call to ListVoices.
	ListVoicesCalls []ListVoicesCall

	// StreamTexts records every text fragment drained from the text channels
	// of all SynthesizeStream calls, in arrival order.
	StreamTexts []string
}

// Synthesize records the call and returns the configured result.
func (p *Provider) Synthesize(ctx context.Context, req tts.Request) (tts.Result, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.SynthesizeCalls = append(p.SynthesizeCalls, SynthesizeCall{Ctx: ctx, Req: req})
	if p.SynthesizeErr != nil {
		return tts.Result{}, p.SynthesizeErr
	}
	return p.SynthesizeResult, nil
}

// SynthesizeStream records the call and returns a channel fed from
// StreamChunks, one chunk per text fragment received.
func (p *Provider) SynthesizeStream(ctx context.Context, text <-chan string, voice tts.Voice) (<-chan []byte, error) {
	p.mu.Lock()
	p.StreamCalls = append(p.StreamCalls, SynthesizeStreamCall{Ctx: ctx, Text: text, Voice: voice})
	if p.StreamErr != nil {
		p.mu.Unlock()
		return nil, p.StreamErr
	}
	chunks := p.StreamChunks
	p.mu.Unlock()

	audioCh := make(chan []byte, 16)
	go func() {
		defer close(audioCh)
		i := 0
		for {
			select {
			case fragment, ok := <-text:
				if !ok {
					return
				}
				p.mu.Lock()
				p.StreamTexts = append(p.StreamTexts, fragment)
				p.mu.Unlock()
				if len(chunks) == 0 {
					continue
				}
				chunk := chunks[i%len(chunks)]
				i++
				select {
				case audioCh <- chunk:
				case <-ctx.Done():
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	return audioCh, nil
}

// ListVoices records the call and returns the configured voices.
func (p *Provider) ListVoices(ctx context.Context) ([]tts.Voice, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ListVoicesCalls = append(p.ListVoicesCalls, ListVoicesCall{Ctx: ctx})
	if p.ListVoicesErr != nil {
		return nil, p.ListVoicesErr
	}
	return p.ListVoicesResult, nil
}

// Name implements tts.Provider.
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
	p.SynthesizeCalls = nil
	p.StreamCalls = nil
	p.ListVoicesCalls = nil
	p.StreamTexts = nil
}

// Ensure Provider implements tts.Provider at compile time.
var _ tts.Provider = (*Provider)(nil)
