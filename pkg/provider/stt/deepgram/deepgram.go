// Package deepgram provides an STT provider backed by the Deepgram
// pre-recorded transcription API. It implements the stt.Provider interface.
package deepgram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/voxlate/voxlate/pkg/audio"
	"github.com/voxlate/voxlate/pkg/provider/stt"
)

const (
	defaultBaseURL = "https://api.deepgram.com"
	defaultModel   = "nova-3"
	defaultTimeout = 30 * time.Second
	listenPath     = "/v1/listen"
)

// Option is a functional option for configuring the Deepgram Provider.
type Option func(*Provider)

// WithModel sets the Deepgram model to use (e.g., "nova-3", "base").
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = model
	}
}

// WithBaseURL overrides the API endpoint. Useful for self-hosted Deepgram
// deployments.
func WithBaseURL(baseURL string) Option {
	return func(p *Provider) {
		p.baseURL = strings.TrimRight(baseURL, "/")
	}
}

// WithTimeout sets the per-request HTTP timeout. Defaults to 30 s.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) {
		p.httpClient.Timeout = d
	}
}

// Provider implements stt.Provider backed by the Deepgram batch API. Each
// speech segment is uploaded as one WAV file to /v1/listen; no streaming
// socket is held between segments.
type Provider struct {
	apiKey     string
	model      string
	baseURL    string
	httpClient *http.Client
}

// New creates a new Deepgram Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("deepgram: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:     apiKey,
		model:      defaultModel,
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// deepgramResponse is the JSON structure returned for a pre-recorded request.
type deepgramResponse struct {
	Results struct {
		Channels []struct {
			DetectedLanguage string `json:"detected_language"`
			Alternatives     []struct {
				Transcript string  `json:"transcript"`
				Confidence float64 `json:"confidence"`
			} `json:"alternatives"`
		} `json:"channels"`
	} `json:"results"`
}

// Transcribe implements stt.Provider.
func (p *Provider) Transcribe(ctx context.Context, req stt.Request) (stt.Result, error) {
	if len(req.PCM) == 0 {
		return stt.Result{}, errors.New("deepgram: empty audio")
	}
	if err := req.Format.Validate(); err != nil {
		return stt.Result{}, fmt.Errorf("deepgram: %w", err)
	}

	endpoint, err := p.buildURL(req)
	if err != nil {
		return stt.Result{}, fmt.Errorf("deepgram: build URL: %w", err)
	}

	wav := audio.EncodeWAV(req.PCM, req.Format)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(wav))
	if err != nil {
		return stt.Result{}, fmt.Errorf("deepgram: create request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Token "+p.apiKey)
	httpReq.Header.Set("Content-Type", "audio/wav")

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return stt.Result{}, fmt.Errorf("deepgram: transcribe: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return stt.Result{}, fmt.Errorf("deepgram: server returned HTTP %d", resp.StatusCode)
	}

	var dr deepgramResponse
	if err := json.NewDecoder(resp.Body).Decode(&dr); err != nil {
		return stt.Result{}, fmt.Errorf("deepgram: parse response: %w", err)
	}

	res := stt.Result{
		Language: req.Language,
		Duration: req.Format.FrameDuration(len(req.PCM)),
	}
	if len(dr.Results.Channels) == 0 {
		// Nothing recognized. Not an error: the segment may be non-speech.
		return res, nil
	}
	ch := dr.Results.Channels[0]
	if ch.DetectedLanguage != "" {
		res.Language = ch.DetectedLanguage
	}
	if len(ch.Alternatives) > 0 {
		res.Text = strings.TrimSpace(ch.Alternatives[0].Transcript)
	}
	return res, nil
}

// buildURL constructs the pre-recorded endpoint URL for one request.
func (p *Provider) buildURL(req stt.Request) (string, error) {
	u, err := url.Parse(p.baseURL + listenPath)
	if err != nil {
		return "", err
	}

	q := u.Query()
	q.Set("model", p.model)
	q.Set("punctuate", "true")
	if req.Language != "" {
		q.Set("language", req.Language)
	} else {
		q.Set("detect_language", "true")
	}
	// The vocabulary hint maps onto Deepgram keyword boosts, one per term.
	for _, kw := range splitPromptTerms(req.Prompt) {
		q.Add("keywords", kw)
	}

	u.RawQuery = q.Encode()
	return u.String(), nil
}

// splitPromptTerms breaks a vocabulary hint into individual keyword tokens.
func splitPromptTerms(prompt string) []string {
	if prompt == "" {
		return nil
	}
	fields := strings.FieldsFunc(prompt, func(r rune) bool {
		return r == ',' || r == ';' || r == '\n'
	})
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}

// Name implements stt.Provider.
func (p *Provider) Name() string { return "deepgram" }

// Ensure Provider implements stt.Provider at compile time.
var _ stt.Provider = (*Provider)(nil)
