// Package openai provides a TTS provider backed by the OpenAI audio API.
package openai

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"

	"github.com/voxlate/voxlate/pkg/audio"
	"github.com/voxlate/voxlate/pkg/provider/tts"
)

const (
	// defaultModel is used when no model is configured.
	defaultModel = "gpt-4o-mini-tts"

	// defaultVoice is used when the request carries an empty Voice.ID.
	defaultVoice = "alloy"

	// pcmSampleRate is the fixed output rate of the OpenAI speech endpoint
	// when the pcm response format is requested: 24 kHz mono 16-bit.
	pcmSampleRate = 24000
)

// voiceCatalogue lists the fixed set of voices the speech endpoint accepts.
var voiceCatalogue = []string{
	"alloy", "ash", "ballad", "coral", "echo",
	"fable", "nova", "onyx", "sage", "shimmer", "verse",
}

// Provider implements tts.Provider using the OpenAI speech endpoint. The pcm
// response format is requested so no codec work happens on the hot path.
type Provider struct {
	client oai.Client
	model  string
}

// config holds optional configuration for the provider.
type config struct {
	baseURL string
	timeout time.Duration
}

// Option is a functional option for Provider.
type Option func(*config)

// WithBaseURL overrides the default OpenAI API base URL.
func WithBaseURL(url string) Option {
	return func(c *config) {
		c.baseURL = url
	}
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		c.timeout = d
	}
}

// New constructs a new OpenAI TTS Provider. model may be empty, in which case
// gpt-4o-mini-tts is used.
func New(apiKey string, model string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai: apiKey must not be empty")
	}
	if model == "" {
		model = defaultModel
	}

	cfg := &config{}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{
			Timeout: cfg.timeout,
		}))
	}

	client := oai.NewClient(reqOpts...)
	return &Provider{client: client, model: model}, nil
}

// Synthesize implements tts.Provider.
func (p *Provider) Synthesize(ctx context.Context, req tts.Request) (tts.Result, error) {
	if req.Text == "" {
		return tts.Result{}, fmt.Errorf("openai: empty text")
	}

	voice := req.Voice.ID
	if voice == "" {
		voice = defaultVoice
	}

	params := oai.AudioSpeechNewParams{
		Model:          oai.SpeechModel(p.model),
		Input:          req.Text,
		Voice:          oai.AudioSpeechNewParamsVoice(voice),
		ResponseFormat: oai.AudioSpeechNewParamsResponseFormatPCM,
	}
	if req.Voice.Speed > 0 && req.Voice.Speed != 1.0 {
		params.Speed = param.NewOpt(req.Voice.Speed)
	}

	resp, err := p.client.Audio.Speech.New(ctx, params)
	if err != nil {
		return tts.Result{}, fmt.Errorf("openai: synthesize: %w", err)
	}
	defer resp.Body.Close()

	pcm, err := io.ReadAll(resp.Body)
	if err != nil {
		return tts.Result{}, fmt.Errorf("openai: read audio: %w", err)
	}

	return tts.Result{
		Audio:  pcm,
		Format: audio.Format{SampleRate: pcmSampleRate, Channels: 1},
	}, nil
}

// SynthesizeStream implements tts.Provider. The speech endpoint has no
// bidirectional mode, so each fragment becomes one request; ordering is
// preserved by synthesizing sequentially.
func (p *Provider) SynthesizeStream(ctx context.Context, text <-chan string, voice tts.Voice) (<-chan []byte, error) {
	audioCh := make(chan []byte, 16)

	go func() {
		defer close(audioCh)
		for {
			select {
			case fragment, ok := <-text:
				if !ok {
					return
				}
				if fragment == "" {
					continue
				}
				res, err := p.Synthesize(ctx, tts.Request{Text: fragment, Voice: voice})
				if err != nil {
					// Closing early signals the failure; the caller
					// distinguishes cancellation via ctx.Err().
					return
				}
				select {
				case audioCh <- res.Audio:
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

// ListVoices implements tts.Provider. The speech endpoint has a fixed voice
// set, so the catalogue is static.
func (p *Provider) ListVoices(_ context.Context) ([]tts.Voice, error) {
	voices := make([]tts.Voice, 0, len(voiceCatalogue))
	for _, id := range voiceCatalogue {
		voices = append(voices, tts.Voice{
			ID:       id,
			Name:     id,
			Provider: "openai",
		})
	}
	return voices, nil
}

// Name implements tts.Provider.
func (p *Provider) Name() string { return "openai" }

// Ensure Provider implements tts.Provider at compile time.
var _ tts.Provider = (*Provider)(nil)
