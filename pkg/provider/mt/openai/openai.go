// Package openai provides an MT provider backed by OpenAI chat completions.
package openai

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/shared"

	"github.com/voxlate/voxlate/pkg/provider/mt"
)

// defaultModel is used when no model is configured. Translation of short
// conversational fragments does not need a frontier model.
const defaultModel = "gpt-4o-mini"

// translationTemperature keeps output close to deterministic; creative
// rephrasing is unwanted in an interpreter.
const translationTemperature = 0.2

// Provider implements mt.Provider using the OpenAI chat completions API.
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

// New constructs a new OpenAI MT Provider. model may be empty, in which case
// gpt-4o-mini is used.
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

// Translate implements mt.Provider.
func (p *Provider) Translate(ctx context.Context, req mt.Request) (mt.Result, error) {
	if strings.TrimSpace(req.Text) == "" {
		return mt.Result{}, fmt.Errorf("openai: empty text")
	}
	if req.TargetLang == "" {
		return mt.Result{}, fmt.Errorf("openai: empty target language")
	}

	system := mt.Instructions(req.SourceLang, req.TargetLang)
	if req.Context != "" {
		system += "\n\nEarlier utterances, for context only (do not translate): " + req.Context
	}

	params := oai.ChatCompletionNewParams{
		Model: shared.ChatModel(p.model),
		Messages: []oai.ChatCompletionMessageParamUnion{
			oai.SystemMessage(system),
			oai.UserMessage(req.Text),
		},
		Temperature: param.NewOpt(translationTemperature),
	}

	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return mt.Result{}, fmt.Errorf("openai: chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return mt.Result{}, fmt.Errorf("openai: empty choices in response")
	}

	return mt.Result{Text: strings.TrimSpace(resp.Choices[0].Message.Content)}, nil
}

// Name implements mt.Provider.
func (p *Provider) Name() string { return "openai" }

// Ensure Provider implements mt.Provider at compile time.
var _ mt.Provider = (*Provider)(nil)
