// Package openai provides an STT provider backed by the OpenAI audio
// transcription API (whisper-1 and the gpt-4o transcribe models).
package openai

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/MrWong99/voxcap/pkg/audio/wav"
	"github.com/MrWong99/voxcap/pkg/provider/stt"
)

// DefaultModel is the default OpenAI transcription model.
const DefaultModel = oai.AudioModelWhisper1

// Ensure Provider implements the stt.Provider interface.
var _ stt.Provider = (*Provider)(nil)

// Provider implements stt.Provider using the OpenAI API.
type Provider struct {
	client   oai.Client
	model    string
	language string
}

// config holds optional configuration for the provider.
type config struct {
	baseURL      string
	organization string
	language     string
	timeout      time.Duration
}

// Option is a functional option for Provider.
type Option func(*config)

// WithBaseURL overrides the default OpenAI API base URL, e.g. for an
// OpenAI-compatible server.
func WithBaseURL(url string) Option {
	return func(c *config) {
		c.baseURL = url
	}
}

// WithOrganization sets the OpenAI organization ID on all requests.
func WithOrganization(org string) Option {
	return func(c *config) {
		c.organization = org
	}
}

// WithLanguage sets the ISO-639-1 language used when a request carries
// none. Empty lets the model detect the language.
func WithLanguage(lang string) Option {
	return func(c *config) {
		c.language = lang
	}
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		c.timeout = d
	}
}

// New constructs a new OpenAI transcription Provider.
// If model is empty, DefaultModel (whisper-1) is used. The client's own
// retries are disabled; callers wrap the provider in their retry policy.
func New(apiKey string, model string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("openai stt: apiKey must not be empty")
	}
	if model == "" {
		model = DefaultModel
	}

	cfg := &config{}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.organization != "" {
		reqOpts = append(reqOpts, option.WithOrganization(cfg.organization))
	}
	if cfg.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{
			Timeout: cfg.timeout,
		}))
	}

	return &Provider{
		client:   oai.NewClient(reqOpts...),
		model:    model,
		language: cfg.language,
	}, nil
}

// Name implements stt.Provider.
func (p *Provider) Name() string { return "openai" }

// Transcribe implements stt.Provider. The clip is uploaded as a WAV file in
// its recorded format.
func (p *Provider) Transcribe(ctx context.Context, req stt.Request) (stt.Transcript, error) {
	if req.Audio.Empty() {
		return stt.Transcript{}, fmt.Errorf("openai stt: %w", stt.ErrEmptyAudio)
	}

	params := oai.AudioTranscriptionNewParams{
		File:  oai.File(bytes.NewReader(wav.Encode(req.Audio)), "clip.wav", "audio/wav"),
		Model: oai.AudioModel(p.model),
	}
	lang := req.Language
	if lang == "" {
		lang = p.language
	}
	if lang != "" {
		params.Language = oai.String(lang)
	}
	if len(req.Keywords) > 0 {
		params.Prompt = oai.String(keywordPrompt(req.Keywords))
	}

	resp, err := p.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return stt.Transcript{}, fmt.Errorf("openai stt: transcribe: %w", err)
	}

	return stt.Transcript{
		Text:     strings.TrimSpace(resp.Text),
		Language: lang,
		Duration: req.Audio.Duration(),
	}, nil
}

// keywordPrompt turns keyword hints into a prompt; the transcription API
// has no boosting, but vocabulary in the prompt biases recognition.
func keywordPrompt(kws []stt.KeywordBoost) string {
	words := make([]string, len(kws))
	for i, kw := range kws {
		words[i] = kw.Keyword
	}
	return strings.Join(words, ", ")
}
