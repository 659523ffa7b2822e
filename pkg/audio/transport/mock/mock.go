// Package mock provides a test double for the transport package.
//
// The mock transport completes every operation instantly and records each
// call, so engine tests can assert on the exact sequence of transport
// mutations without real audio output. Playback does not advance on its own;
// tests that need an "end of clip" observe the engine's segment timer
// instead of the decoder.
package mock

import (
	"sync"
	"time"

	"github.com/lxm0851/shadowing/pkg/audio/transport"
)

// Call records a single transport invocation: the operation name plus the
// position argument where one applies.
type Call struct {
	Op  string
	Pos time.Duration
}

// Transport is a mock implementation of transport.Transport.
type Transport struct {
	mu sync.Mutex

	// TrackDuration is returned by Duration for any loaded path.
	TrackDuration time.Duration

	// LoadErr, if non-nil, is returned by Load.
	LoadErr error

	// PlayErr, if non-nil, is returned by Play.
	PlayErr error

	// Busy overrides IsBusy while playing when set.
	Busy bool

	// Calls records every invocation in order.
	Calls []Call

	loaded  string
	playing bool
	pos     time.Duration
	volume  float64
	speed   float64
}

var _ transport.Transport = (*Transport)(nil)

func (t *Transport) record(op string, pos time.Duration) {
	t.Calls = append(t.Calls, Call{Op: op, Pos: pos})
}

// Load records the call and succeeds unless LoadErr is set.
func (t *Transport) Load(path string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.record("load", 0)
	if t.LoadErr != nil {
		return t.LoadErr
	}
	t.loaded = path
	t.pos = 0
	t.playing = false
	return nil
}

// Loaded returns the most recently loaded path.
func (t *Transport) Loaded() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.loaded
}

func (t *Transport) Duration() (time.Duration, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.loaded == "" {
		return 0, false
	}
	return t.TrackDuration, true
}

func (t *Transport) Play(start time.Duration) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.record("play", start)
	if t.PlayErr != nil {
		return t.PlayErr
	}
	if t.loaded == "" {
		return transport.ErrNoTrack
	}
	t.pos = start
	t.playing = true
	return nil
}

func (t *Transport) Pause() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.record("pause", t.pos)
	t.playing = false
	return nil
}

func (t *Transport) Resume() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.record("resume", t.pos)
	if t.loaded == "" {
		return transport.ErrNoTrack
	}
	t.playing = true
	return nil
}

func (t *Transport) Stop() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.record("stop", t.pos)
	t.playing = false
	t.pos = 0
	return nil
}

func (t *Transport) Seek(to time.Duration) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.record("seek", to)
	if t.loaded == "" {
		return transport.ErrNoTrack
	}
	t.pos = to
	return nil
}

func (t *Transport) SetVolume(v float64) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.record("volume", time.Duration(v*float64(time.Second)))
	t.volume = v
	return nil
}

func (t *Transport) SetSpeed(s float64) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.record("speed", time.Duration(s*float64(time.Second)))
	t.speed = s
	return nil
}

func (t *Transport) EffectiveSpeed() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.speed == 0 {
		return 1
	}
	return t.speed
}

func (t *Transport) IsBusy() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.playing || t.Busy
}

func (t *Transport) PositionRaw() (time.Duration, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.loaded == "" {
		return 0, false
	}
	return t.pos, true
}

func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.record("close", 0)
	t.playing = false
	return nil
}

// CallOps returns just the operation names, in order. Convenient for
// asserting call sequences.
func (t *Transport) CallOps() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	ops := make([]string, len(t.Calls))
	for i, c := range t.Calls {
		ops[i] = c.Op
	}
	return ops
}

// Reset clears all recorded calls.
func (t *Transport) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Calls = nil
}
