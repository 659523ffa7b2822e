package transport

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"
)

const (
	// loadRetries is how many probe attempts Load makes within [StopGrace]
	// when the file is still held by a dying decoder process.
	loadRetries = 4

	// killGrace is how long Stop waits for the player process to exit after
	// SIGTERM before escalating to SIGKILL.
	killGrace = StopGrace
)

// FFPlay is a Transport backed by ffplay/ffprobe subprocesses. ffplay has no
// pause or seek control channel, so Pause kills the player process while the
// transport keeps its own position anchor, and Resume/Seek restart playback
// at the wanted offset with -ss. Speed uses the atempo filter.
//
// All mutators share one lock. Safe for concurrent use.
type FFPlay struct {
	mu sync.Mutex

	ffplayPath  string
	ffprobePath string

	path     string
	duration time.Duration

	cmd      *exec.Cmd
	procDone chan struct{}

	// position anchor maintained across pause/seek, mirrored from the
	// engine's clock discipline but local to the subprocess lifecycle.
	anchorPos time.Duration
	startedAt time.Time
	playing   bool
	volume    float64
	speed     float64
	canScale  bool
}

// NewFFPlay locates ffplay and ffprobe on PATH (or at the conventional
// install locations) and returns a ready transport. Returns an error when
// ffplay is not installed.
func NewFFPlay() (*FFPlay, error) {
	ffplay, err := lookBinary("ffplay")
	if err != nil {
		return nil, fmt.Errorf("transport: %w", err)
	}
	ffprobe, err := lookBinary("ffprobe")
	if err != nil {
		return nil, fmt.Errorf("transport: %w", err)
	}
	return &FFPlay{
		ffplayPath:  ffplay,
		ffprobePath: ffprobe,
		volume:      1.0,
		speed:       1.0,
		canScale:    true,
	}, nil
}

var _ Transport = (*FFPlay)(nil)

func lookBinary(name string) (string, error) {
	for _, p := range []string{"/opt/homebrew/bin/" + name, "/usr/local/bin/" + name, "/usr/bin/" + name} {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	p, err := exec.LookPath(name)
	if err != nil {
		return "", fmt.Errorf("%s not found on PATH: %w", name, err)
	}
	return p, nil
}

// Load probes the file for its duration and makes it the current track.
// Probing doubles as the "decoder can open this file" check; it is retried
// within [StopGrace] because a just-killed player may still hold the file.
func (t *FFPlay) Load(path string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.stopLocked()

	var lastErr error
	for attempt := 0; attempt < loadRetries; attempt++ {
		if attempt > 0 {
			time.Sleep(StopGrace / loadRetries)
		}
		d, err := t.probeDuration(path)
		if err != nil {
			lastErr = err
			continue
		}
		t.path = path
		t.duration = d
		t.anchorPos = 0
		return nil
	}
	return fmt.Errorf("%w: %q: %v", ErrLoadFailed, path, lastErr)
}

// Duration returns the probed track duration.
func (t *FFPlay) Duration() (time.Duration, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.path == "" {
		return 0, false
	}
	return t.duration, true
}

// Play starts playback at the given position.
func (t *FFPlay) Play(start time.Duration) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.path == "" {
		return ErrNoTrack
	}
	t.stopLocked()
	return t.spawnLocked(start)
}

// Pause halts playback keeping the position.
func (t *FFPlay) Pause() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.playing {
		return nil
	}
	t.anchorPos = t.positionLocked()
	t.stopLocked()
	return nil
}

// Resume continues from the paused position.
func (t *FFPlay) Resume() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.path == "" {
		return ErrNoTrack
	}
	if t.playing {
		return nil
	}
	return t.spawnLocked(t.anchorPos)
}

// Stop halts playback and resets the position anchor.
func (t *FFPlay) Stop() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.anchorPos = 0
	t.stopLocked()
	return nil
}

// Seek restarts playback at the target position, or just moves the anchor
// when paused.
func (t *FFPlay) Seek(to time.Duration) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.path == "" {
		return ErrNoTrack
	}
	if to < 0 {
		to = 0
	}
	wasPlaying := t.playing
	t.stopLocked()
	t.anchorPos = to
	if wasPlaying {
		return t.spawnLocked(to)
	}
	return nil
}

// SetVolume takes effect on the next (re)spawn of the player process.
func (t *FFPlay) SetVolume(v float64) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if v < 0 {
		v = 0
	} else if v > 1 {
		v = 1
	}
	t.volume = v
	if t.playing {
		pos := t.positionLocked()
		t.stopLocked()
		return t.spawnLocked(pos)
	}
	return nil
}

// SetSpeed clamps to [0.5, 2.0] and restarts playback at the current
// position so the atempo filter picks up the new rate.
func (t *FFPlay) SetSpeed(s float64) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if s < 0.5 {
		s = 0.5
	} else if s > 2.0 {
		s = 2.0
	}
	t.speed = s
	if t.playing {
		pos := t.positionLocked()
		t.stopLocked()
		return t.spawnLocked(pos)
	}
	return nil
}

// EffectiveSpeed reports the rate playback actually runs at. 1 when the
// atempo filter is unavailable.
func (t *FFPlay) EffectiveSpeed() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.canScale {
		return 1
	}
	return t.speed
}

// IsBusy reports whether the player process is alive.
func (t *FFPlay) IsBusy() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.playing {
		return false
	}
	select {
	case <-t.procDone:
		// Process exited on its own (end of file).
		t.playing = false
		t.anchorPos = t.duration
		t.cmd = nil
		return false
	default:
		return true
	}
}

// PositionRaw projects the position from the spawn anchor and elapsed wall
// time scaled by the effective speed.
func (t *FFPlay) PositionRaw() (time.Duration, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.path == "" {
		return 0, false
	}
	return t.positionLocked(), true
}

// Close stops playback. The transport cannot be reused after Close.
func (t *FFPlay) Close() error {
	return t.Stop()
}

// ---- internals --------------------------------------------------------------

func (t *FFPlay) positionLocked() time.Duration {
	if !t.playing {
		return t.anchorPos
	}
	speed := t.speed
	if !t.canScale {
		speed = 1
	}
	pos := t.anchorPos + time.Duration(float64(time.Since(t.startedAt))*speed)
	if pos > t.duration {
		pos = t.duration
	}
	return pos
}

func (t *FFPlay) spawnLocked(start time.Duration) error {
	filters := []string{fmt.Sprintf("volume=%.3f", t.volume)}
	if t.canScale && t.speed != 1.0 {
		filters = append(filters, fmt.Sprintf("atempo=%.3f", t.speed))
	}

	args := []string{
		"-nodisp", "-autoexit", "-loglevel", "quiet",
		"-ss", fmt.Sprintf("%.3f", start.Seconds()),
		"-af", strings.Join(filters, ","),
		t.path,
	}
	cmd := exec.Command(t.ffplayPath, args...)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("%w: start ffplay: %v", ErrDeviceLost, err)
	}

	done := make(chan struct{})
	go func() {
		_ = cmd.Wait()
		close(done)
	}()

	t.cmd = cmd
	t.procDone = done
	t.anchorPos = start
	t.startedAt = time.Now()
	t.playing = true
	return nil
}

// stopLocked terminates the player process and waits for it to release the
// file, escalating to SIGKILL after [killGrace].
func (t *FFPlay) stopLocked() {
	if t.cmd == nil {
		return
	}
	_ = t.cmd.Process.Signal(syscall.SIGTERM)
	select {
	case <-t.procDone:
	case <-time.After(killGrace):
		_ = t.cmd.Process.Kill()
		<-t.procDone
	}
	t.cmd = nil
	t.procDone = nil
	t.playing = false
}

func (t *FFPlay) probeDuration(path string) (time.Duration, error) {
	cmd := exec.Command(t.ffprobePath,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "csv=p=0",
		path,
	)
	var out bytes.Buffer
	cmd.Stdout = &out
	if err := cmd.Run(); err != nil {
		return 0, fmt.Errorf("ffprobe %q: %w", path, err)
	}
	raw := strings.TrimSpace(out.String())
	seconds, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		slog.Warn("transport: unparsable ffprobe duration", "path", path, "raw", raw)
		return 0, fmt.Errorf("parse duration %q: %w", raw, err)
	}
	return time.Duration(seconds * float64(time.Second)), nil
}
