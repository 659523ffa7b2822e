// Package whisper provides a local recognition provider backed by the
// whisper.cpp CGO bindings. The whisper.cpp static library (libwhisper.a)
// and headers (whisper.h) must be available at link time via LIBRARY_PATH
// and C_INCLUDE_PATH environment variables.
//
// The model is loaded once and shared across calls; each Recognize creates
// its own whisper.cpp context, so concurrent recognitions do not interfere.
// whisper.cpp inference cannot be interrupted mid-run, so cancellation is
// honoured at the boundaries: before decode and after inference returns.
package whisper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"github.com/lxm0851/shadowing/pkg/audio"
	"github.com/lxm0851/shadowing/pkg/provider/asr"
)

const defaultLanguage = "en"

// Compile-time assertion that Provider satisfies asr.Provider.
var _ asr.Provider = (*Provider)(nil)

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithLanguage sets the default recognition language code (e.g. "en", "de").
// A per-request language overrides it. Defaults to "en".
func WithLanguage(lang string) Option {
	return func(p *Provider) { p.language = lang }
}

// Provider implements asr.Provider using the whisper.cpp Go bindings.
type Provider struct {
	model    whisperlib.Model
	language string
}

// New loads the whisper.cpp model from modelPath (e.g. "ggml-base.en.bin").
// The caller must call Close when the provider is no longer needed.
func New(modelPath string, opts ...Option) (*Provider, error) {
	if modelPath == "" {
		return nil, errors.New("whisper: modelPath must not be empty")
	}
	model, err := whisperlib.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("whisper: load model %q: %w", modelPath, err)
	}

	p := &Provider{model: model, language: defaultLanguage}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Close releases the whisper model.
func (p *Provider) Close() error {
	if p.model != nil {
		return p.model.Close()
	}
	return nil
}

func (p *Provider) Name() string { return "local_whisper" }

// Recognize decodes the WAV file, downmixes and resamples it to the 16 kHz
// mono float32 format whisper.cpp expects, and runs batch inference. With
// req.Translate set the model's translate task produces the translated
// rendering directly.
func (p *Provider) Recognize(ctx context.Context, req asr.Request) (*asr.Result, error) {
	if ctx.Err() != nil {
		return nil, nil
	}

	pcm, format, err := audio.ReadWAVFile(req.WAVPath)
	if err != nil {
		return nil, fmt.Errorf("whisper: %w: %v", asr.ErrBadAudio, err)
	}
	if format.Channels == 2 {
		pcm = audio.StereoToMono(pcm)
	}
	pcm = audio.ResampleMono16(pcm, format.SampleRate, audio.RecognitionRate)
	samples := audio.PCMToFloat32(pcm)

	lang := req.Language
	if lang == "" {
		lang = p.language
	}

	text, err := p.infer(samples, lang, false)
	if err != nil {
		return nil, err
	}
	if ctx.Err() != nil {
		return nil, nil
	}

	result := &asr.Result{RecognizedText: text}
	if req.Translate && text != "" {
		// Second pass with the translate task. Failure here degrades to an
		// untranslated result rather than failing the recognition.
		if translated, err := p.infer(samples, lang, true); err == nil {
			result.TranslatedText = translated
		}
		if ctx.Err() != nil {
			return nil, nil
		}
	}
	return result, nil
}

// infer runs one whisper.cpp pass over samples using a fresh context. Each
// context is NOT thread-safe, but the model can be shared across goroutines.
func (p *Provider) infer(samples []float32, lang string, translate bool) (string, error) {
	wctx, err := p.model.NewContext()
	if err != nil {
		return "", fmt.Errorf("whisper: create context: %w", err)
	}
	if err := wctx.SetLanguage(lang); err != nil {
		return "", fmt.Errorf("whisper: set language %q: %w", lang, err)
	}
	wctx.SetTranslate(translate)

	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		return "", fmt.Errorf("whisper: process audio: %w", err)
	}

	var parts []string
	for {
		segment, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("whisper: read segment: %w", err)
		}
		if text := strings.TrimSpace(segment.Text); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, " "), nil
}
