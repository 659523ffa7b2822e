// Package openai provides a recognition provider backed by the OpenAI
// audio transcription API.
package openai

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/lxm0851/shadowing/pkg/provider/asr"
)

// DefaultModel is the default transcription model.
const DefaultModel = oai.AudioModelWhisper1

// defaultChatModel renders the Chinese translation of a transcript when
// one is requested.
const defaultChatModel = "gpt-4o-mini"

// Compile-time assertion that Provider satisfies asr.Provider.
var _ asr.Provider = (*Provider)(nil)

// Provider implements asr.Provider using the OpenAI API.
type Provider struct {
	client    oai.Client
	model     string
	chatModel string
}

// config holds optional configuration for the provider.
type config struct {
	baseURL   string
	timeout   time.Duration
	chatModel string
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

// WithChatModel overrides the chat model used for translation.
func WithChatModel(model string) Option {
	return func(c *config) {
		c.chatModel = model
	}
}

// New constructs an OpenAI recognition Provider. If model is empty,
// DefaultModel (whisper-1) is used.
func New(apiKey string, model string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai asr: apiKey must not be empty")
	}
	if model == "" {
		model = DefaultModel
	}

	cfg := &config{chatModel: defaultChatModel}
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
	return &Provider{client: client, model: model, chatModel: cfg.chatModel}, nil
}

func (p *Provider) Name() string { return "remote_openai" }

// Recognize uploads the WAV file to the transcription endpoint. When a
// translation is requested the recognized text is rendered into Chinese
// with a chat completion; translation failure degrades to an untranslated
// result.
func (p *Provider) Recognize(ctx context.Context, req asr.Request) (*asr.Result, error) {
	if ctx.Err() != nil {
		return nil, nil
	}

	f, err := os.Open(req.WAVPath)
	if err != nil {
		return nil, fmt.Errorf("openai asr: %w: %v", asr.ErrBadAudio, err)
	}
	defer f.Close()

	params := oai.AudioTranscriptionNewParams{
		Model: p.model,
		File:  f,
	}
	if req.Language != "" {
		params.Language = oai.String(req.Language)
	}
	if req.Reference != "" {
		// The prompt field biases recognition towards expected vocabulary.
		params.Prompt = oai.String(req.Reference)
	}

	resp, err := p.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		if ctx.Err() != nil {
			return nil, nil
		}
		return nil, fmt.Errorf("openai asr: transcribe: %w", err)
	}
	if ctx.Err() != nil {
		return nil, nil
	}

	result := &asr.Result{RecognizedText: strings.TrimSpace(resp.Text)}
	if req.Translate && result.RecognizedText != "" {
		if zh, err := p.translate(ctx, result.RecognizedText); err == nil {
			result.TranslatedText = zh
		}
		if ctx.Err() != nil {
			return nil, nil
		}
	}
	return result, nil
}

func (p *Provider) translate(ctx context.Context, text string) (string, error) {
	comp, err := p.client.Chat.Completions.New(ctx, oai.ChatCompletionNewParams{
		Model: p.chatModel,
		Messages: []oai.ChatCompletionMessageParamUnion{
			oai.SystemMessage("Translate the user's text into Simplified Chinese. Reply with the translation only."),
			oai.UserMessage(text),
		},
	})
	if err != nil {
		return "", fmt.Errorf("openai asr: translate: %w", err)
	}
	if len(comp.Choices) == 0 {
		return "", fmt.Errorf("openai asr: empty translation response")
	}
	return strings.TrimSpace(comp.Choices[0].Message.Content), nil
}
