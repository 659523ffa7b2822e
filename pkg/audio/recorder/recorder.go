// Package recorder captures the learner's spoken attempt from the microphone.
//
// Capture runs on a dedicated goroutine because the input API blocks. Frames
// are accumulated into a PCM buffer; an energy-based detector ends the
// capture automatically once the learner has fallen silent (after a minimum
// capture time), mirroring the silence segmentation used for recognition
// input. The finished buffer is persisted as two identical WAV files: one for
// playback through the transport and one for transcription. Callers own both
// files and must delete them.
package recorder

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lxm0851/shadowing/pkg/audio"
)

// Errors surfaced by the recorder.
var (
	// ErrDeviceUnavailable reports that the input device could not be opened.
	ErrDeviceUnavailable = errors.New("recorder: input device unavailable")

	// ErrNoAudio reports that the capture ended with less audio than the
	// minimum viable length.
	ErrNoAudio = errors.New("recorder: no usable audio captured")
)

const (
	// defaultRMSThreshold is the RMS energy (in 16-bit PCM units) below
	// which a frame counts as silence. 32 767 is the 16-bit maximum; 300 is
	// near-silence on typical microphones.
	defaultRMSThreshold = 300.0

	defaultMinWait       = 1 * time.Second
	defaultSilenceWindow = 1500 * time.Millisecond
	defaultMaxDuration   = 30 * time.Second
	defaultMinViable     = 200 * time.Millisecond
)

// Source is a blocking stream of capture frames. Read blocks until a frame
// is available and returns an error (conventionally io.EOF) when the stream
// ends. Close unblocks a pending Read.
type Source interface {
	Read() (audio.Frame, error)
	Close() error
}

// Device opens capture sources. The production implementation spawns an
// ffmpeg capture subprocess; tests substitute a scripted device.
type Device interface {
	Open(format audio.Format) (Source, error)
}

// Option is a functional option for configuring a Recorder.
type Option func(*Recorder)

// WithMinWait sets the minimum capture time before the silence detector may
// end the capture. Default 1 s.
func WithMinWait(d time.Duration) Option {
	return func(r *Recorder) { r.minWait = d }
}

// WithSilenceWindow sets the trailing window that must be entirely silent
// for the capture to auto-stop. Default 1.5 s.
func WithSilenceWindow(d time.Duration) Option {
	return func(r *Recorder) { r.silenceWindow = d }
}

// WithRMSThreshold sets the silence energy threshold in 16-bit PCM units.
// Default 300.
func WithRMSThreshold(v float64) Option {
	return func(r *Recorder) { r.rmsThreshold = v }
}

// WithMaxDuration caps a single capture. Default 30 s.
func WithMaxDuration(d time.Duration) Option {
	return func(r *Recorder) { r.maxDuration = d }
}

// Recorder opens captures against a Device. Safe for concurrent use; each
// Start returns an independent [Capture].
type Recorder struct {
	device        Device
	minWait       time.Duration
	silenceWindow time.Duration
	rmsThreshold  float64
	maxDuration   time.Duration
	minViable     time.Duration
}

// New returns a Recorder capturing from device at [audio.CaptureFormat].
func New(device Device, opts ...Option) *Recorder {
	r := &Recorder{
		device:        device,
		minWait:       defaultMinWait,
		silenceWindow: defaultSilenceWindow,
		rmsThreshold:  defaultRMSThreshold,
		maxDuration:   defaultMaxDuration,
		minViable:     defaultMinViable,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Start opens the input device and begins capturing on a background
// goroutine. Returns [ErrDeviceUnavailable] when the device cannot be
// opened. The capture ends on auto-stop, [Capture.Stop], ctx cancellation,
// or the maximum duration, whichever comes first.
func (r *Recorder) Start(ctx context.Context) (*Capture, error) {
	src, err := r.device.Open(audio.CaptureFormat)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}

	c := &Capture{
		minViable: r.minViable,
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	go r.captureLoop(ctx, src, c)
	return c, nil
}

// captureLoop drains the source until a stop condition fires. Elapsed time
// is derived from the captured sample count, not wall time, so the silence
// arithmetic is deterministic.
func (r *Recorder) captureLoop(ctx context.Context, src Source, c *Capture) {
	defer close(c.done)
	defer src.Close()

	// Close the source when the caller stops or the context ends, so a
	// blocked Read returns.
	unblock := make(chan struct{})
	defer close(unblock)
	go func() {
		select {
		case <-ctx.Done():
		case <-c.stop:
		case <-unblock:
			return
		}
		_ = src.Close()
	}()

	var (
		pcm        []byte
		elapsed    time.Duration
		lastLoudAt time.Duration
	)

	for {
		select {
		case <-ctx.Done():
			c.finish(pcm, nil)
			return
		case <-c.stop:
			c.finish(pcm, nil)
			return
		default:
		}

		frame, err := src.Read()
		if err != nil {
			// Stream end (device closed or EOF) terminates the capture;
			// whatever was buffered is the result.
			c.finish(pcm, nil)
			return
		}

		pcm = append(pcm, frame.Data...)
		elapsed += frame.Duration()
		if audio.RMS(frame.Data) >= r.rmsThreshold {
			lastLoudAt = elapsed
		}

		if elapsed >= r.maxDuration {
			c.finish(pcm, nil)
			return
		}
		if elapsed >= r.minWait && elapsed-lastLoudAt >= r.silenceWindow {
			c.finish(pcm, nil)
			return
		}
	}
}

// Capture is one in-flight or finished recording.
type Capture struct {
	minViable time.Duration

	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}

	mu  sync.Mutex
	pcm []byte
	err error
}

func (c *Capture) finish(pcm []byte, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pcm = pcm
	c.err = err
}

// Done is closed when the capture goroutine has finished, whether by
// auto-stop, Stop, context cancellation, or device failure.
func (c *Capture) Done() <-chan struct{} { return c.done }

// Stop ends the capture (idempotent), waits for the capture goroutine to
// join, and returns the recorded PCM. Returns [ErrNoAudio] when less than
// the minimum viable length was captured.
func (c *Capture) Stop() ([]byte, error) {
	c.stopOnce.Do(func() { close(c.stop) })
	<-c.done

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return nil, c.err
	}
	captured := audio.Frame{Data: c.pcm, SampleRate: audio.CaptureRate, Channels: 1}
	if captured.Duration() < c.minViable {
		return nil, ErrNoAudio
	}
	return c.pcm, nil
}

// Save writes pcm as two identical WAV files under dir: a playback copy and
// a transcription copy. Callers own both files and must delete them.
func Save(pcm []byte, dir string) (playbackPath, transcribePath string, err error) {
	id := uuid.NewString()
	playbackPath = filepath.Join(dir, fmt.Sprintf("take-%s-play.wav", id))
	transcribePath = filepath.Join(dir, fmt.Sprintf("take-%s-stt.wav", id))

	if err := audio.WriteWAVFile(playbackPath, pcm, audio.CaptureFormat); err != nil {
		return "", "", err
	}
	if err := audio.WriteWAVFile(transcribePath, pcm, audio.CaptureFormat); err != nil {
		return "", "", err
	}
	return playbackPath, transcribePath, nil
}
