package audio

import (
	"sync"
	"time"
)

// Clock maps wall time to an authoritative playback position. The decoder's
// own position reporting is unreliable across pause, seek, and speed changes,
// so the engine anchors the clock on every transport mutation and projects
// the current position from the anchor:
//
//	position(T) = anchorPos + (T - anchorWall) * speed   while running
//	position(T) = anchorPos                              while paused or seeking
//
// While a seek is in flight ([Clock.BeginSeek] until the next anchor commit)
// the projection is suppressed so consumers never observe a position from the
// old anchor against the new decoder state.
//
// All methods are safe for concurrent use.
type Clock struct {
	mu         sync.Mutex
	anchorWall time.Time
	anchorPos  time.Duration
	speed      float64
	running    bool
	seeking    bool

	// now is the wall-time source, replaceable in tests.
	now func() time.Time
}

// NewClock returns a stopped Clock anchored at position zero with speed 1.
func NewClock() *Clock {
	return &Clock{speed: 1, now: time.Now}
}

// SetNowFunc replaces the wall-clock source. Tests use this to drive the
// clock deterministically. Passing nil restores time.Now.
func (c *Clock) SetNowFunc(now func() time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if now == nil {
		now = time.Now
	}
	c.now = now
}

// MarkPlay anchors the clock at pos with the given speed and starts it.
// Any in-flight seek is committed by this anchor.
func (c *Clock) MarkPlay(pos time.Duration, speed float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if speed <= 0 {
		speed = 1
	}
	c.anchorWall = c.now()
	c.anchorPos = pos
	c.speed = speed
	c.running = true
	c.seeking = false
}

// MarkPause commits the projected position as the new anchor and stops the
// clock. Position() returns the committed anchor until the next MarkPlay.
func (c *Clock) MarkPause() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.anchorPos = c.projectLocked()
	c.anchorWall = c.now()
	c.running = false
}

// BeginSeek flags a seek as in progress. Until MarkSeek or MarkPlay commits
// the new anchor, Position() keeps returning the last committed anchor.
func (c *Clock) BeginSeek() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.anchorPos = c.projectLocked()
	c.anchorWall = c.now()
	c.seeking = true
}

// MarkSeek commits pos as the new anchor and clears the seeking flag.
// The running state is preserved.
func (c *Clock) MarkSeek(pos time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.anchorWall = c.now()
	c.anchorPos = pos
	c.seeking = false
}

// MarkSpeed re-anchors at the current projected position with the new speed,
// so past elapsed time keeps its old scale and future time uses the new one.
func (c *Clock) MarkSpeed(speed float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if speed <= 0 {
		speed = 1
	}
	c.anchorPos = c.projectLocked()
	c.anchorWall = c.now()
	c.speed = speed
}

// Position returns the current playback position. While paused or seeking
// this is the last committed anchor; otherwise the projected position.
func (c *Clock) Position() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.projectLocked()
}

// Running reports whether the clock is advancing.
func (c *Clock) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running && !c.seeking
}

// Speed returns the current speed factor.
func (c *Clock) Speed() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.speed
}

func (c *Clock) projectLocked() time.Duration {
	if !c.running || c.seeking {
		return c.anchorPos
	}
	elapsed := c.now().Sub(c.anchorWall)
	return c.anchorPos + time.Duration(float64(elapsed)*c.speed)
}
