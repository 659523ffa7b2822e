// Package mock provides a scripted capture device for recorder tests.
package mock

import (
	"errors"
	"io"
	"sync"
	"time"

	"github.com/lxm0851/shadowing/pkg/audio"
	"github.com/lxm0851/shadowing/pkg/audio/recorder"
)

// Device is a scripted [recorder.Device]. Each Open returns a Source that
// delivers Frames in order; once the script is exhausted the Source either
// returns io.EOF or, with Hold set, blocks until closed.
type Device struct {
	mu sync.Mutex

	// Frames is the scripted capture, delivered one per Read.
	Frames []audio.Frame

	// OpenErr, when set, makes Open fail.
	OpenErr error

	// Hold makes an exhausted Source block instead of returning io.EOF,
	// modelling a live microphone with nothing arriving.
	Hold bool

	// Opens counts Open calls.
	Opens int
}

var _ recorder.Device = (*Device)(nil)

func (d *Device) Open(audio.Format) (recorder.Source, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Opens++
	if d.OpenErr != nil {
		return nil, d.OpenErr
	}
	frames := make([]audio.Frame, len(d.Frames))
	copy(frames, d.Frames)
	return &source{frames: frames, hold: d.Hold, closed: make(chan struct{})}, nil
}

type source struct {
	mu     sync.Mutex
	frames []audio.Frame
	hold   bool
	closed chan struct{}
	once   sync.Once
}

func (s *source) Read() (audio.Frame, error) {
	s.mu.Lock()
	if len(s.frames) > 0 {
		f := s.frames[0]
		s.frames = s.frames[1:]
		s.mu.Unlock()
		return f, nil
	}
	hold := s.hold
	s.mu.Unlock()

	if !hold {
		return audio.Frame{}, io.EOF
	}
	<-s.closed
	return audio.Frame{}, errors.New("mock: source closed")
}

func (s *source) Close() error {
	s.once.Do(func() { close(s.closed) })
	return nil
}

// Silence returns a frame of d zero samples at the capture rate.
func Silence(d time.Duration) audio.Frame {
	n := int(d) * audio.CaptureRate / int(time.Second)
	return audio.Frame{
		Data:       make([]byte, n*2),
		SampleRate: audio.CaptureRate,
		Channels:   1,
	}
}

// Speech returns a frame of d loud samples (constant amplitude well above
// any silence threshold) at the capture rate.
func Speech(d time.Duration) audio.Frame {
	n := int(d) * audio.CaptureRate / int(time.Second)
	data := make([]byte, n*2)
	for i := 0; i < n; i++ {
		// 8000 amplitude, little endian.
		data[2*i] = 0x40
		data[2*i+1] = 0x1f
	}
	return audio.Frame{
		Data:       data,
		SampleRate: audio.CaptureRate,
		Channels:   1,
	}
}
