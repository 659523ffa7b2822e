// Package audio provides the PCM primitives shared by the playback, capture,
// and recognition layers: frame and format types, sample-rate conversion, a
// minimal WAV codec for the capture output format, and the playback clock that
// maps wall time to an authoritative track position.
package audio

import "time"

const (
	// CaptureRate is the sample rate of learner recordings in Hz.
	CaptureRate = 44100

	// RecognitionRate is the sample rate expected by the local whisper
	// recognizer in Hz. Capture output is downsampled before inference.
	RecognitionRate = 16000

	// BitsPerSample is fixed at 16 for all PCM flowing through the trainer.
	BitsPerSample = 16
)

// Format describes the sample rate and channel count of a PCM stream.
type Format struct {
	SampleRate int
	Channels   int
}

// CaptureFormat is the fixed format of learner recordings:
// 44.1 kHz mono 16-bit signed little-endian.
var CaptureFormat = Format{SampleRate: CaptureRate, Channels: 1}

// Frame is a chunk of PCM audio flowing through the capture pipeline.
// Frames are the atomic unit the recorder's silence detector operates on.
type Frame struct {
	// Data is little-endian int16 PCM.
	Data []byte

	// SampleRate in Hz.
	SampleRate int

	// Channels: 1 for mono capture.
	Channels int

	// Timestamp marks when this frame was captured, relative to capture start.
	Timestamp time.Duration
}

// Duration returns the play time covered by the frame.
func (f Frame) Duration() time.Duration {
	if f.SampleRate <= 0 || f.Channels <= 0 {
		return 0
	}
	samples := len(f.Data) / 2 / f.Channels
	return time.Duration(samples) * time.Second / time.Duration(f.SampleRate)
}
