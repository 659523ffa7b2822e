// Package asr defines the Provider interface for speech recognition backends.
//
// A provider transcribes one finished WAV capture per call. There is no
// streaming surface: the follow engine records a complete attempt, saves it
// to disk, and submits the file. The call is synchronous from the provider's
// point of view; the engine runs it on a transient worker goroutine and
// routes the result back through its event loop.
//
// Cancellation is cooperative through the context: a provider must check
// ctx before starting work and after returning from the backend, and a
// cancelled call returns (nil, nil) rather than an error. Callers treat a
// nil Result as "nothing recognized" and never surface it to the user.
//
// Implementations must be safe for concurrent use; the engine may start a
// new recognition before an abandoned one has finished winding down.
package asr

import (
	"context"
	"errors"
)

// ErrBadAudio reports that the submitted WAV file could not be decoded.
var ErrBadAudio = errors.New("asr: audio file not decodable")

// Request describes one recognition call.
type Request struct {
	// WAVPath is the capture to transcribe: 16-bit PCM WAV. Providers
	// resample and downmix internally as their backend requires.
	WAVPath string

	// Language is the expected language of the speech as a lowercase
	// ISO 639-1 code (e.g. "en"). Empty lets the backend auto-detect where
	// supported.
	Language string

	// Reference is the text the speaker attempted to read. Providers that
	// accept vocabulary hints may use it; others ignore it.
	Reference string

	// Translate asks for a Chinese rendering of the recognized text in
	// Result.TranslatedText, on backends that can produce one.
	Translate bool
}

// Result is a completed recognition.
type Result struct {
	// RecognizedText is the transcription. May be empty when the backend
	// heard nothing intelligible.
	RecognizedText string

	// TranslatedText is a Chinese rendering of RecognizedText, when
	// requested and supported. Empty otherwise.
	TranslatedText string

	// Confidence is the backend's overall confidence (0.0–1.0), or zero
	// when the backend does not report one.
	Confidence float64
}

// Provider is the abstraction over any recognition backend.
type Provider interface {
	// Name identifies the backend in logs and configuration
	// (e.g. "local_whisper", "remote_baidu").
	Name() string

	// Recognize transcribes the WAV file named by req. When ctx is
	// cancelled before or during the call it returns (nil, nil); a nil
	// Result with nil error always means the call was cancelled or
	// abandoned and must not drive any user-visible update.
	Recognize(ctx context.Context, req Request) (*Result, error)
}
