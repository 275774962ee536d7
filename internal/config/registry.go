package config

import (
	"errors"
	"fmt"
	"sync"

	"github.com/voxlate/voxlate/pkg/provider/mt"
	"github.com/voxlate/voxlate/pkg/provider/stream"
	"github.com/voxlate/voxlate/pkg/provider/stt"
	"github.com/voxlate/voxlate/pkg/provider/tts"
)

// ErrProviderNotRegistered is returned by Create* methods when no factory has
// been registered under the requested provider name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// Registry maps provider names to their constructor functions for each
// provider kind. The app registers every implementation it links at startup
// and builds the configured ones from their [ProviderEntry]. It is safe for
// concurrent use.
type Registry struct {
	mu     sync.RWMutex
	stream map[string]func(ProviderEntry) (stream.Provider, error)
	stt    map[string]func(ProviderEntry) (stt.Provider, error)
	mt     map[string]func(ProviderEntry) (mt.Provider, error)
	tts    map[string]func(ProviderEntry) (tts.Provider, error)
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		stream: make(map[string]func(ProviderEntry) (stream.Provider, error)),
		stt:    make(map[string]func(ProviderEntry) (stt.Provider, error)),
		mt:     make(map[string]func(ProviderEntry) (mt.Provider, error)),
		tts:    make(map[string]func(ProviderEntry) (tts.Provider, error)),
	}
}

// RegisterStream registers a realtime stream provider factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) RegisterStream(name string, factory func(ProviderEntry) (stream.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stream[name] = factory
}

// RegisterSTT registers an STT provider factory under name.
func (r *Registry) RegisterSTT(name string, factory func(ProviderEntry) (stt.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stt[name] = factory
}

// RegisterMT registers a translation provider factory under name.
func (r *Registry) RegisterMT(name string, factory func(ProviderEntry) (mt.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mt[name] = factory
}

// RegisterTTS registers a TTS provider factory under name.
func (r *Registry) RegisterTTS(name string, factory func(ProviderEntry) (tts.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tts[name] = factory
}

// CreateStream instantiates a stream provider using the factory registered
// under entry.Name. Returns [ErrProviderNotRegistered] if no factory has been
// registered for that name.
func (r *Registry) CreateStream(entry ProviderEntry) (stream.Provider, error) {
	r.mu.RLock()
	factory, ok := r.stream[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: stream/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}

// CreateSTT instantiates an STT provider using the factory registered under entry.Name.
func (r *Registry) CreateSTT(entry ProviderEntry) (stt.Provider, error) {
	r.mu.RLock()
	factory, ok := r.stt[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: stt/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}

// CreateMT instantiates a translation provider using the factory registered under entry.Name.
func (r *Registry) CreateMT(entry ProviderEntry) (mt.Provider, error) {
	r.mu.RLock()
	factory, ok := r.mt[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: mt/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}

// CreateTTS instantiates a TTS provider using the factory registered under entry.Name.
func (r *Registry) CreateTTS(entry ProviderEntry) (tts.Provider, error) {
	r.mu.RLock()
	factory, ok := r.tts[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: tts/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}
