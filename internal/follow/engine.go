// Package follow implements the listen-and-repeat state machine that drives a
// shadowing session.
//
// The engine plays one subtitle segment at a time, waits for the learner to
// repeat it, captures the attempt, runs speech recognition on it and scores
// the transcript against the segment text. All state transitions happen on a
// single run-loop goroutine; commands and worker results are posted onto it
// as closures, so transitions have a total order. Two kinds of background
// work exist: microphone capture (owned by [recorder]) and recognition jobs
// (one transient goroutine per attempt). Both report back by posting.
//
// Stale recognition results are detected by identity: every job captures
// (epoch, file index, segment index) at spawn time, and a result is dropped
// unless the tuple still matches when it arrives on the loop.
package follow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/lxm0851/shadowing/internal/observe"
	"github.com/lxm0851/shadowing/pkg/audio"
	"github.com/lxm0851/shadowing/pkg/audio/transport"
	"github.com/lxm0851/shadowing/pkg/provider/asr"
	"github.com/lxm0851/shadowing/pkg/score"
	"github.com/lxm0851/shadowing/pkg/subtitle"
)

// Errors surfaced by the engine.
var (
	// ErrClosed is returned by commands issued after Close.
	ErrClosed = errors.New("follow: engine closed")

	// ErrNoSegments is returned by Start when the first track carries no
	// usable subtitle model.
	ErrNoSegments = errors.New("follow: track has no subtitle segments")

	// ErrEmptyPlaylist is returned by Start with an empty playlist.
	ErrEmptyPlaylist = errors.New("follow: empty playlist")
)

const (
	// minLearnerWait and maxLearnerWait bound the safety timer armed while
	// waiting for the learner: the wait is the segment length clamped into
	// [3s, 5s].
	minLearnerWait = 3 * time.Second
	maxLearnerWait = 5 * time.Second

	// settlePoll and settleMax bound the wait for lingering playback of the
	// learner's own recording before advancing past Scoring.
	settlePoll = 100 * time.Millisecond
	settleMax  = 20

	// captureJoinTimeout is how long teardown waits for the capture
	// goroutine to hand back its buffer before abandoning it.
	captureJoinTimeout = 2 * time.Second

	defaultResultBuf = 16
)

// Phase is the engine's lifecycle phase.
type Phase int

const (
	PhaseIdle Phase = iota
	PhasePlayingSegment
	PhaseAwaitingLearner
	PhaseRecognizing
	PhaseScoring
	PhaseBetweenSegments
	PhaseStopped
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhasePlayingSegment:
		return "playing_segment"
	case PhaseAwaitingLearner:
		return "awaiting_learner"
	case PhaseRecognizing:
		return "recognizing"
	case PhaseScoring:
		return "scoring"
	case PhaseBetweenSegments:
		return "between_segments"
	case PhaseStopped:
		return "stopped"
	}
	return "unknown"
}

// PlayMode is the playlist transition policy applied once a file's loops are
// exhausted.
type PlayMode string

const (
	// PlaySequential advances to the next track and stops at the end.
	PlaySequential PlayMode = "sequential"

	// PlayLoopOne replays the same file indefinitely.
	PlayLoopOne PlayMode = "loop_one"

	// PlayLoopAll advances to the next track and wraps around.
	PlayLoopAll PlayMode = "loop_all"
)

// Track pairs an audio file with its parsed subtitle model.
type Track struct {
	Path      string
	Subtitles *subtitle.Model
}

// Settings are the per-session options the engine honours. Zero values are
// replaced by sensible defaults in [Settings.normalize].
type Settings struct {
	PlayMode              PlayMode
	FileLoopCount         int
	SegmentRepeatCount    int
	NoRecord              bool
	NoPlaybackOfRecording bool
	PlaybackSpeed         float64
	Volume                int
	Language              string
	Translate             bool
}

func (s *Settings) normalize() {
	if s.PlayMode == "" {
		s.PlayMode = PlaySequential
	}
	if s.FileLoopCount < 1 {
		s.FileLoopCount = 1
	}
	if s.SegmentRepeatCount < 1 {
		s.SegmentRepeatCount = 1
	}
	if s.PlaybackSpeed == 0 {
		s.PlaybackSpeed = 1.0
	}
	// Volume 0 is a valid mute; only out-of-range values are corrected.
	if s.Volume < 0 {
		s.Volume = 0
	}
	if s.Volume > 100 {
		s.Volume = 100
	}
	if s.Language == "" {
		s.Language = "en"
	}
	// Recording and playback-of-recording suppression are mutually
	// exclusive; recording wins when both are set.
	if s.NoRecord && s.NoPlaybackOfRecording {
		s.NoPlaybackOfRecording = false
	}
}

// effectiveMaxRepeats adjusts the configured segment-repeat count by the
// reference word count so short lines do not get drilled as hard as long
// ones. The result is never below one.
func effectiveMaxRepeats(words, configured int) int {
	var r int
	switch {
	case words <= 4:
		r = configured / 2
	case words <= 7 && configured >= 3:
		r = configured/2 + 1
	case words <= 7 && configured == 2:
		r = 1
	default:
		r = configured
	}
	if r < 1 {
		r = 1
	}
	return r
}

// learnerWait derives the safety-timer duration from the segment length.
func learnerWait(seg subtitle.Segment) time.Duration {
	d := time.Duration(seg.DurationMs()) * time.Millisecond
	if d < minLearnerWait {
		return minLearnerWait
	}
	if d > maxLearnerWait {
		return maxLearnerWait
	}
	return d
}

// Capture is the handle for one in-flight microphone capture.
type Capture interface {
	// Done is closed once the capture ended on its own.
	Done() <-chan struct{}

	// Stop ends the capture and returns the buffered PCM.
	Stop() ([]byte, error)
}

// Recorder opens microphone captures. The production implementation wraps
// [recorder.Recorder]; tests substitute a scripted fake.
type Recorder interface {
	Start(ctx context.Context) (Capture, error)
}

// SaveFunc persists a captured PCM buffer as a playback WAV and a
// transcription WAV under dir. The default is [recorder.Save].
type SaveFunc func(pcm []byte, dir string) (playbackPath, transcribePath string, err error)

// Attempt is one published follow result: the learner's attempt at a
// segment, scored against the reference.
type Attempt struct {
	FileIdx    int
	SegmentIdx int
	Repeat     int

	Reference  string
	Recognized string
	Translated string

	Result score.Result
}

// Status is a point-in-time snapshot of the engine for the progress
// publisher and the UI.
type Status struct {
	Phase      Phase
	TrackPath  string
	FileIdx    int
	SegmentIdx int
	Segment    subtitle.Segment

	// Repeat is the zero-based repeat counter; MaxRepeats the word-count
	// adjusted cap for the current segment.
	Repeat     int
	MaxRepeats int

	Epoch   uint64
	Paused  bool
	LastErr string
}

// timer is the cancellable handle the engine keeps for its scheduled work.
type timer interface {
	Stop() bool
}

// timerFunc schedules fn after d. The default wraps [time.AfterFunc]; tests
// substitute a manual trigger so transitions run without real waiting.
type timerFunc func(d time.Duration, fn func()) timer

// recogJob is one recognition worker with its captured identity and the two
// temp WAVs it owns.
type recogJob struct {
	epoch   uint64
	fileIdx int
	segIdx  int

	playWAV string
	sttWAV  string
	cancel  context.CancelFunc
}

// Engine is the follow-reading state machine. All exported methods are safe
// for concurrent use; they post onto the single run-loop goroutine started
// by [New].
type Engine struct {
	tr      transport.Transport
	rec     Recorder
	prov    asr.Provider
	clock   *audio.Clock
	queue   *SwitchQueue
	metrics *observe.Metrics
	log     *slog.Logger
	tempDir string
	save    SaveFunc
	after   timerFunc

	calls chan func()
	done  chan struct{}
	ctx   context.Context
	stop  context.CancelFunc

	results chan Attempt

	// Loop-owned state. Only the run loop touches these.
	phase    Phase
	playlist []Track
	settings Settings
	fileIdx  int
	segIdx   int
	repeat   int
	fileLoop int
	epoch    uint64

	loadedPath string
	segTimer   timer
	capture    Capture
	captureGen uint64
	job        *recogJob
	settleLeft int
	moved      bool

	pausedSeg int
	pausedPos time.Duration
	paused    bool
	active    bool

	mu     sync.Mutex
	status Status

	closeOnce sync.Once
}

// Option is a functional option for configuring an Engine during construction.
type Option func(*Engine)

// WithLogger sets the structured logger. Default is [slog.Default].
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// WithMetrics sets the metrics sink. Default is [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithQueue substitutes the switch-request queue, e.g. to shorten the
// debounce window in tests.
func WithQueue(q *SwitchQueue) Option {
	return func(e *Engine) { e.queue = q }
}

// WithSaveFunc overrides how captured PCM is persisted to temp WAVs.
func WithSaveFunc(fn SaveFunc) Option {
	return func(e *Engine) { e.save = fn }
}

// WithTimerFunc overrides timer scheduling. Tests install a manual trigger
// so segment and wait timers fire on demand.
func WithTimerFunc(fn timerFunc) Option {
	return func(e *Engine) { e.after = fn }
}

// WithResultBuffer sets the capacity of the channel returned by
// [Engine.Results]. Default is 16.
func WithResultBuffer(n int) Option {
	return func(e *Engine) { e.results = make(chan Attempt, n) }
}

// New constructs an Engine and starts its run loop. tempDir receives the
// session's capture WAVs; the engine deletes them when each attempt reaches
// a terminal state and sweeps the remainder on stop.
func New(tr transport.Transport, rec Recorder, prov asr.Provider, tempDir string, opts ...Option) *Engine {
	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		tr:      tr,
		rec:     rec,
		prov:    prov,
		clock:   audio.NewClock(),
		queue:   NewSwitchQueue(),
		log:     slog.Default(),
		tempDir: tempDir,
		after: func(d time.Duration, fn func()) timer {
			return time.AfterFunc(d, fn)
		},
		calls:   make(chan func(), 64),
		done:    make(chan struct{}),
		ctx:     ctx,
		stop:    cancel,
		results: make(chan Attempt, defaultResultBuf),
		phase:   PhaseIdle,
	}
	for _, o := range opts {
		o(e)
	}
	if e.metrics == nil {
		e.metrics = observe.DefaultMetrics()
	}
	if e.save == nil {
		e.save = defaultSave
	}
	go e.run()
	return e
}

// Clock returns the engine's playback clock. The progress publisher reads
// positions from it.
func (e *Engine) Clock() *audio.Clock { return e.clock }

// Results returns the channel attempts are published on. Slow consumers
// lose attempts rather than stalling the engine.
func (e *Engine) Results() <-chan Attempt { return e.results }

// Status returns a snapshot of the engine state.
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status
}

// Close tears the session down and stops the run loop. It is idempotent.
func (e *Engine) Close() error {
	e.closeOnce.Do(func() {
		done := make(chan struct{})
		if e.post(func() { e.stopFollow(); close(done) }) {
			<-done
		}
		e.stop()
		close(e.done)
	})
	return nil
}

// ─── Commands ───────────────────────────────────────────────────────────────

// Start begins a follow session over playlist at track startIdx. It fails
// when the playlist is empty or the first track has no subtitle segments.
func (e *Engine) Start(playlist []Track, startIdx int, s Settings) error {
	errCh := make(chan error, 1)
	ok := e.post(func() { errCh <- e.startSession(playlist, startIdx, s) })
	if !ok {
		return ErrClosed
	}
	return <-errCh
}

// Stop ends the follow session. Idempotent.
func (e *Engine) Stop() {
	e.post(func() { e.stopFollow() })
}

// PlayPause toggles between paused and running. Pausing while waiting for
// the learner or while recognition is pending stops the session, because
// a half-finished capture cannot be resumed.
func (e *Engine) PlayPause() {
	e.post(func() { e.playPause() })
}

// PrevSegment, NextSegment and RepeatSegment enqueue navigation requests.
// Requests are coalesced when the engine next reaches a segment boundary.
func (e *Engine) PrevSegment() { e.nav(SwitchRequest{Kind: KindPrev}) }

// NextSegment requests the following segment.
func (e *Engine) NextSegment() { e.nav(SwitchRequest{Kind: KindNext}) }

// RepeatSegment requests an extra replay of the current segment.
func (e *Engine) RepeatSegment() { e.nav(SwitchRequest{Kind: KindRepeat}) }

// JumpSegment requests an absolute jump to segment idx of the current track.
func (e *Engine) JumpSegment(idx int) {
	e.nav(SwitchRequest{Kind: KindJump, Target: idx})
}

// NextTrack abandons the current iteration and starts the next track.
func (e *Engine) NextTrack() { e.post(func() { e.switchTrack(1) }) }

// PrevTrack abandons the current iteration and starts the previous track.
func (e *Engine) PrevTrack() { e.post(func() { e.switchTrack(-1) }) }

// BeginEdit pauses the session for subtitle editing and returns the index
// of the segment to highlight, or -1 after Close.
func (e *Engine) BeginEdit() int {
	idxCh := make(chan int, 1)
	ok := e.post(func() {
		if !e.paused {
			e.playPause()
		}
		idxCh <- e.segIdx
	})
	if !ok {
		return -1
	}
	return <-idxCh
}

// EndEdit resumes playback after the subtitle editor closes. A no-op
// unless the engine is paused mid-segment.
func (e *Engine) EndEdit() {
	e.post(func() {
		if e.phase == PhasePlayingSegment && e.paused {
			e.resumeSegment()
		}
	})
}

func (e *Engine) nav(req SwitchRequest) {
	// Navigation outside an active session has nothing to act on. Without
	// this gate a tap after stop would sit in the queue and fire at the
	// first boundary of the next session.
	if st := e.Status(); st.Phase == PhaseIdle || st.Phase == PhaseStopped {
		return
	}
	if !e.queue.Push(req) {
		return
	}
	if e.metrics != nil {
		e.metrics.RecordSwitchRequest(context.Background(), req.Kind.String())
	}
	e.post(func() { e.interruptForNav() })
}

// SeekAbsolute maps a progress-bar seek to the segment containing the
// target time and jumps to it.
func (e *Engine) SeekAbsolute(to time.Duration) {
	e.post(func() {
		tr := e.currentTrack()
		if tr == nil || tr.Subtitles == nil {
			return
		}
		if _, idx, ok := tr.Subtitles.At(int(to / time.Millisecond)); ok {
			e.queue.Push(SwitchRequest{Kind: KindJump, Target: idx})
			e.interruptForNav()
		}
	})
}

// SeekRelative maps the small skip buttons to prev/next segment.
func (e *Engine) SeekRelative(d time.Duration) {
	if d < 0 {
		e.PrevSegment()
	} else {
		e.NextSegment()
	}
}

// SetSpeed changes the playback speed for subsequent segment plays.
func (e *Engine) SetSpeed(s float64) {
	e.post(func() {
		e.settings.PlaybackSpeed = s
		if err := e.tr.SetSpeed(s); err != nil {
			e.log.Warn("set speed", "err", err)
		}
		e.clock.MarkSpeed(e.tr.EffectiveSpeed())
	})
}

// SetVolume sets the output volume in percent.
func (e *Engine) SetVolume(pct int) {
	e.post(func() {
		e.settings.Volume = pct
		if err := e.tr.SetVolume(float64(pct) / 100); err != nil {
			e.log.Warn("set volume", "err", err)
		}
	})
}

// SetSubtitleOffset shifts subtitle lookup by ms for every track in the
// session.
func (e *Engine) SetSubtitleOffset(ms int) {
	e.post(func() {
		for _, t := range e.playlist {
			if t.Subtitles != nil {
				t.Subtitles.SetOffset(ms)
			}
		}
	})
}

// SetNoRecord toggles no-record mode. Enabling it disables
// no-playback-of-recording.
func (e *Engine) SetNoRecord(on bool) {
	e.post(func() {
		e.settings.NoRecord = on
		if on {
			e.settings.NoPlaybackOfRecording = false
		}
	})
}

// SetNoPlaybackOfRecording toggles playback of the learner's own capture.
// Enabling it disables no-record mode.
func (e *Engine) SetNoPlaybackOfRecording(on bool) {
	e.post(func() {
		e.settings.NoPlaybackOfRecording = on
		if on {
			e.settings.NoRecord = false
		}
	})
}

// ─── Run loop ───────────────────────────────────────────────────────────────

func (e *Engine) run() {
	for {
		select {
		case fn := <-e.calls:
			fn()
		case <-e.done:
			return
		}
	}
}

// post hands fn to the run loop. It reports false after Close.
func (e *Engine) post(fn func()) bool {
	select {
	case e.calls <- fn:
		return true
	case <-e.done:
		return false
	}
}

func (e *Engine) currentTrack() *Track {
	if e.fileIdx < 0 || e.fileIdx >= len(e.playlist) {
		return nil
	}
	return &e.playlist[e.fileIdx]
}

func (e *Engine) publishStatus() {
	tr := e.currentTrack()
	st := Status{
		Phase:      e.phase,
		FileIdx:    e.fileIdx,
		SegmentIdx: e.segIdx,
		Repeat:     e.repeat,
		Epoch:      e.epoch,
		Paused:     e.paused,
	}
	if tr != nil {
		st.TrackPath = tr.Path
		if tr.Subtitles != nil && e.segIdx < tr.Subtitles.Len() {
			st.Segment = tr.Subtitles.Segment(e.segIdx)
			st.MaxRepeats = effectiveMaxRepeats(
				wordCount(st.Segment.EN), e.settings.SegmentRepeatCount)
		}
	}
	e.mu.Lock()
	st.LastErr = e.status.LastErr
	e.status = st
	e.mu.Unlock()
}

func (e *Engine) setError(msg string) {
	e.mu.Lock()
	e.status.LastErr = msg
	e.mu.Unlock()
	e.log.Error(msg)
}

func wordCount(s string) int {
	return len(strings.Fields(s))
}

// ─── Session lifecycle ──────────────────────────────────────────────────────

func (e *Engine) startSession(playlist []Track, startIdx int, s Settings) error {
	if len(playlist) == 0 {
		return ErrEmptyPlaylist
	}
	if startIdx < 0 || startIdx >= len(playlist) {
		startIdx = 0
	}
	first := playlist[startIdx]
	if first.Subtitles == nil || first.Subtitles.Len() == 0 {
		return ErrNoSegments
	}
	if e.phase != PhaseIdle && e.phase != PhaseStopped {
		e.stopFollow()
	}

	s.normalize()
	e.queue.Clear()
	e.playlist = playlist
	e.settings = s
	e.fileIdx = startIdx
	e.segIdx = 0
	e.repeat = 0
	e.fileLoop = 0
	e.epoch++
	e.paused = false
	e.mu.Lock()
	e.status.LastErr = ""
	e.mu.Unlock()

	e.active = true
	if e.metrics != nil {
		e.metrics.ActiveSessions.Add(context.Background(), 1)
	}
	if err := e.tr.SetVolume(float64(s.Volume) / 100); err != nil {
		e.log.Warn("set volume", "err", err)
	}
	if err := e.tr.SetSpeed(s.PlaybackSpeed); err != nil {
		e.log.Warn("set speed", "err", err)
	}
	e.log.Info("follow session started",
		"track", first.Path, "segments", first.Subtitles.Len(),
		"play_mode", s.PlayMode, "epoch", e.epoch)

	e.enterPlaying()
	return nil
}

// stopFollow tears the session down: cancel recognition, stop the capture,
// stop the transport, delete temp WAVs, clear the queue. Idempotent.
func (e *Engine) stopFollow() {
	// The session counter follows startSession, not the phase: a session
	// that fails before its first segment still counted itself in.
	if e.active {
		e.active = false
		if e.metrics != nil {
			e.metrics.ActiveSessions.Add(context.Background(), -1)
		}
	}
	if e.phase == PhaseIdle || e.phase == PhaseStopped {
		e.phase = PhaseStopped
		e.publishStatus()
		return
	}
	e.cancelSegTimer()
	e.cancelRecognition()
	e.abandonCapture()
	if err := e.tr.Stop(); err != nil {
		e.log.Warn("transport stop", "err", err)
	}
	e.clock.MarkPause()
	e.sweepTempWAVs()
	e.queue.Clear()
	e.paused = false
	e.loadedPath = ""
	e.phase = PhaseStopped
	e.publishStatus()
	e.log.Info("follow session stopped", "epoch", e.epoch)
}

func (e *Engine) cancelSegTimer() {
	if e.segTimer != nil {
		e.segTimer.Stop()
		e.segTimer = nil
	}
}

func (e *Engine) cancelRecognition() {
	if e.job != nil {
		e.job.cancel()
		e.job = nil
	}
}

// abandonCapture stops an in-flight capture and discards its buffer,
// joining the capture goroutine with a timeout.
func (e *Engine) abandonCapture() {
	if e.capture == nil {
		return
	}
	c := e.capture
	e.capture = nil
	e.captureGen++

	joined := make(chan struct{})
	go func() {
		_, _ = c.Stop()
		close(joined)
	}()
	select {
	case <-joined:
	case <-time.After(captureJoinTimeout):
		e.log.Warn("capture goroutine did not join in time")
	}
}

func (e *Engine) removeWAVs(job *recogJob) {
	for _, p := range []string{job.playWAV, job.sttWAV} {
		if p == "" {
			continue
		}
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			e.log.Warn("remove temp wav", "path", p, "err", err)
		}
	}
	job.playWAV, job.sttWAV = "", ""
}

// sweepTempWAVs deletes any capture WAV left behind in the temp directory.
func (e *Engine) sweepTempWAVs() {
	entries, err := os.ReadDir(e.tempDir)
	if err != nil {
		return
	}
	for _, ent := range entries {
		name := ent.Name()
		if ent.IsDir() || !strings.HasPrefix(name, "take-") || !strings.HasSuffix(name, ".wav") {
			continue
		}
		_ = os.Remove(e.tempDir + string(os.PathSeparator) + name)
	}
}

// ─── PlayingSegment ─────────────────────────────────────────────────────────

func (e *Engine) enterPlaying() {
	tr := e.currentTrack()
	if tr == nil || tr.Subtitles == nil || tr.Subtitles.Len() == 0 {
		e.stopFollow()
		return
	}
	if e.segIdx >= tr.Subtitles.Len() {
		e.segIdx = tr.Subtitles.Len() - 1
	}
	if e.loadedPath != tr.Path {
		if _, err := os.Stat(tr.Path); err != nil {
			// The file vanished between sessions; skip it rather than
			// dying on a stale playlist entry. skipTrack never re-enters
			// the same missing file.
			e.setError(fmt.Sprintf("track missing: %s", tr.Path))
			e.skipTrack()
			return
		}
		if err := e.tr.Load(tr.Path); err != nil {
			e.setError(fmt.Sprintf("cannot load %s: %v", tr.Path, err))
			e.stopFollow()
			return
		}
		e.loadedPath = tr.Path
	}

	seg := tr.Subtitles.Segment(e.segIdx)
	start := time.Duration(seg.Start) * time.Millisecond
	if err := e.tr.Play(start); err != nil {
		e.setError(fmt.Sprintf("playback failed: %v", err))
		e.stopFollow()
		return
	}
	speed := e.tr.EffectiveSpeed()
	e.clock.MarkPlay(start, speed)
	e.moved = true
	e.paused = false

	dur := time.Duration(seg.DurationMs()) * time.Millisecond
	if speed > 0 {
		dur = time.Duration(float64(dur) / speed)
	}
	epoch, segIdx := e.epoch, e.segIdx
	e.cancelSegTimer()
	e.segTimer = e.after(dur, func() {
		e.post(func() { e.onSegmentEnd(epoch, segIdx) })
	})
	e.phase = PhasePlayingSegment
	e.publishStatus()
	if e.metrics != nil {
		e.metrics.SegmentPlays.Add(context.Background(), 1)
	}
	e.log.Debug("playing segment",
		"seg", e.segIdx, "repeat", e.repeat, "start_ms", seg.Start, "end_ms", seg.End)
}

func (e *Engine) onSegmentEnd(epoch uint64, segIdx int) {
	if e.phase != PhasePlayingSegment || epoch != e.epoch || segIdx != e.segIdx || e.paused {
		return
	}
	e.segTimer = nil
	if err := e.tr.Pause(); err != nil {
		e.log.Warn("transport pause", "err", err)
	}
	e.clock.MarkPause()
	e.enterAwaiting()
}

// ─── AwaitingLearner ────────────────────────────────────────────────────────

func (e *Engine) enterAwaiting() {
	tr := e.currentTrack()
	seg := tr.Subtitles.Segment(e.segIdx)
	wait := learnerWait(seg)

	e.phase = PhaseAwaitingLearner
	e.publishStatus()

	if e.settings.NoRecord || strings.TrimSpace(seg.EN) == "" {
		// Nothing to recognize: hold for the derived interval, then move on.
		epoch, segIdx := e.epoch, e.segIdx
		e.segTimer = e.after(wait, func() {
			e.post(func() {
				if e.phase == PhaseAwaitingLearner && epoch == e.epoch && segIdx == e.segIdx {
					e.segTimer = nil
					e.enterBetween()
				}
			})
		})
		return
	}

	c, err := e.rec.Start(e.ctx)
	if err != nil {
		e.setError(fmt.Sprintf("microphone unavailable: %v", err))
		e.enterBetween()
		return
	}
	e.capture = c
	e.captureGen++
	gen := e.captureGen
	epoch, segIdx := e.epoch, e.segIdx

	// The capture ends either by the silence detector or by the safety
	// timer, whichever is first.
	go func() {
		select {
		case <-c.Done():
			e.post(func() { e.onCaptureReady(gen, epoch, segIdx) })
		case <-e.done:
		}
	}()
	e.segTimer = e.after(wait, func() {
		e.post(func() { e.onCaptureReady(gen, epoch, segIdx) })
	})
}

func (e *Engine) onCaptureReady(gen, epoch uint64, segIdx int) {
	if e.phase != PhaseAwaitingLearner || gen != e.captureGen ||
		epoch != e.epoch || segIdx != e.segIdx || e.capture == nil {
		return
	}
	e.cancelSegTimer()
	c := e.capture
	e.capture = nil

	started := time.Now()
	pcm, err := c.Stop()
	if e.metrics != nil {
		e.metrics.CaptureDuration.Record(context.Background(), time.Since(started).Seconds())
	}
	if err != nil {
		// Too little audio is not an error worth surfacing; advance.
		e.log.Debug("capture discarded", "err", err)
		e.enterBetween()
		return
	}
	e.startRecognition(pcm)
}

// ─── Recognizing ────────────────────────────────────────────────────────────

func (e *Engine) startRecognition(pcm []byte) {
	playWAV, sttWAV, err := e.saveWithGrace(pcm)
	if err != nil {
		e.setError(fmt.Sprintf("cannot save capture: %v", err))
		e.enterBetween()
		return
	}

	if !e.settings.NoPlaybackOfRecording {
		if err := e.tr.Load(playWAV); err != nil {
			e.log.Warn("playback of recording", "err", err)
		} else {
			e.loadedPath = playWAV
			if err := e.tr.Play(0); err != nil {
				e.log.Warn("playback of recording", "err", err)
			}
		}
	}

	tr := e.currentTrack()
	seg := tr.Subtitles.Segment(e.segIdx)
	ctx, cancel := context.WithCancel(e.ctx)
	job := &recogJob{
		epoch:   e.epoch,
		fileIdx: e.fileIdx,
		segIdx:  e.segIdx,
		playWAV: playWAV,
		sttWAV:  sttWAV,
		cancel:  cancel,
	}
	e.cancelRecognition()
	e.job = job
	e.phase = PhaseRecognizing
	e.publishStatus()

	req := asr.Request{
		WAVPath:   sttWAV,
		Language:  e.settings.Language,
		Reference: seg.EN,
		Translate: e.settings.Translate,
	}
	started := time.Now()
	go func() {
		res, err := e.prov.Recognize(ctx, req)
		elapsed := time.Since(started)
		e.post(func() { e.onRecognitionDone(job, res, err, elapsed) })
	}()
}

// saveWithGrace retries the WAV save briefly in case the decoder still
// holds a previous take's file handle.
func (e *Engine) saveWithGrace(pcm []byte) (string, string, error) {
	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		if attempt > 0 {
			time.Sleep(transport.StopGrace / 2)
		}
		play, stt, err := e.save(pcm, e.tempDir)
		if err == nil {
			return play, stt, nil
		}
		lastErr = err
	}
	return "", "", lastErr
}

func (e *Engine) onRecognitionDone(job *recogJob, res *asr.Result, err error, elapsed time.Duration) {
	e.removeWAVs(job)

	stale := job != e.job ||
		job.epoch != e.epoch || job.fileIdx != e.fileIdx || job.segIdx != e.segIdx ||
		e.phase != PhaseRecognizing
	if stale {
		if e.metrics != nil {
			e.metrics.StaleResults.Add(context.Background(), 1)
		}
		e.log.Debug("stale recognition result dropped",
			"job_seg", job.segIdx, "cur_seg", e.segIdx)
		return
	}
	e.job = nil

	status := "ok"
	if err != nil {
		status = "error"
		e.log.Warn("recognition failed", "provider", e.prov.Name(), "err", err)
		if e.metrics != nil {
			e.metrics.RecordProviderError(context.Background(), e.prov.Name())
		}
		res = nil
	}
	if e.metrics != nil {
		e.metrics.RecordRecognition(context.Background(), e.prov.Name(), elapsed.Seconds(), status)
	}

	e.phase = PhaseScoring
	e.publishStatus()
	if res != nil && strings.TrimSpace(res.RecognizedText) != "" {
		e.scoreAttempt(res)
	}
	e.settleLeft = settleMax
	e.settlePlayback()
}

// ─── Scoring ────────────────────────────────────────────────────────────────

func (e *Engine) scoreAttempt(res *asr.Result) {
	tr := e.currentTrack()
	seg := tr.Subtitles.Segment(e.segIdx)
	result := score.Evaluate(seg.EN, res.RecognizedText)

	att := Attempt{
		FileIdx:    e.fileIdx,
		SegmentIdx: e.segIdx,
		Repeat:     e.repeat,
		Reference:  seg.EN,
		Recognized: res.RecognizedText,
		Translated: res.TranslatedText,
		Result:     result,
	}
	select {
	case e.results <- att:
	default:
		e.log.Debug("attempt dropped, result channel full")
	}
	if e.metrics != nil {
		e.metrics.AttemptScores.Record(context.Background(), result.Score)
	}
	e.log.Info("attempt scored",
		"seg", e.segIdx, "score", fmt.Sprintf("%.1f", result.Score),
		"band", result.Band.Text(), "recognized", res.RecognizedText)
}

// settlePlayback waits out any lingering playback of the learner's own
// recording before moving to the segment boundary.
func (e *Engine) settlePlayback() {
	if e.phase != PhaseScoring {
		return
	}
	if !e.tr.IsBusy() || e.settleLeft <= 0 {
		e.enterBetween()
		return
	}
	e.settleLeft--
	epoch := e.epoch
	e.after(settlePoll, func() {
		e.post(func() {
			if e.phase == PhaseScoring && epoch == e.epoch {
				e.settlePlayback()
			}
		})
	})
}

// ─── BetweenSegments and the advancement rule ───────────────────────────────

func (e *Engine) enterBetween() {
	e.phase = PhaseBetweenSegments
	e.cancelSegTimer()

	move, ok := e.queue.Drain(e.moved)
	e.moved = false
	if ok {
		e.cancelRecognition()
		e.applyMove(move)
		return
	}

	tr := e.currentTrack()
	seg := tr.Subtitles.Segment(e.segIdx)
	maxRep := effectiveMaxRepeats(wordCount(seg.EN), e.settings.SegmentRepeatCount)
	if e.repeat+1 < maxRep {
		e.repeat++
		e.enterPlaying()
		return
	}

	e.repeat = 0
	e.segIdx++
	if e.segIdx < tr.Subtitles.Len() {
		e.enterPlaying()
		return
	}

	e.segIdx = 0
	e.fileLoop++
	if e.fileLoop < e.settings.FileLoopCount {
		e.enterPlaying()
		return
	}
	e.fileLoop = 0
	e.advanceTrackOrStop()
}

func (e *Engine) applyMove(m Move) {
	tr := e.currentTrack()
	last := tr.Subtitles.Len() - 1
	switch {
	case m.Jump:
		e.segIdx = clampInt(m.Target, 0, last)
		e.repeat = 0
		e.epoch++
	case m.Delta != 0:
		e.segIdx = clampInt(e.segIdx+m.Delta, 0, last)
		e.repeat = 0
	case m.Repeat:
		// Self-transition: replay without touching counters.
	default:
		// Relative moves cancelled out; treat as a plain replay.
	}
	e.enterPlaying()
}

func (e *Engine) advanceTrackOrStop() {
	switch e.settings.PlayMode {
	case PlayLoopOne:
		e.segIdx, e.repeat = 0, 0
		e.skipUnplayable()
	case PlayLoopAll:
		e.fileIdx = (e.fileIdx + 1) % len(e.playlist)
		e.segIdx, e.repeat = 0, 0
		e.epoch++
		e.skipUnplayable()
	default: // sequential
		e.fileIdx++
		if e.fileIdx >= len(e.playlist) {
			e.stopFollow()
			return
		}
		e.segIdx, e.repeat = 0, 0
		e.epoch++
		e.skipUnplayable()
	}
}

// skipUnplayable starts the current track, or walks forward past tracks that
// vanished from disk or carry no subtitle segments until a playable one is
// found. The walk is bounded by the playlist length; when nothing remains
// playable the session ends.
func (e *Engine) skipUnplayable() {
	for range e.playlist {
		tr := e.currentTrack()
		if tr == nil {
			break
		}
		if e.playable(tr) {
			e.enterPlaying()
			return
		}
		e.log.Warn("skipping unplayable track", "track", tr.Path)
		if e.settings.PlayMode == PlayLoopOne {
			// loop_one has nowhere else to go.
			break
		}
		if e.settings.PlayMode == PlayLoopAll {
			e.fileIdx = (e.fileIdx + 1) % len(e.playlist)
			continue
		}
		e.fileIdx++
		if e.fileIdx >= len(e.playlist) {
			break
		}
	}
	e.stopFollow()
}

// playable reports whether a track can actually start: it still exists on
// disk and has at least one subtitle segment. A track that is already loaded
// keeps playing off the open handle even if its file was unlinked.
func (e *Engine) playable(tr *Track) bool {
	if tr.Subtitles == nil || tr.Subtitles.Len() == 0 {
		return false
	}
	if e.loadedPath == tr.Path {
		return true
	}
	_, err := os.Stat(tr.Path)
	return err == nil
}

// skipTrack moves past the current track after it turned out unplayable.
// Unlike advanceTrackOrStop it never replays the current file, so a missing
// file cannot cycle back into itself under loop_one.
func (e *Engine) skipTrack() {
	if e.settings.PlayMode == PlayLoopOne {
		e.stopFollow()
		return
	}
	if e.settings.PlayMode == PlayLoopAll {
		e.fileIdx = (e.fileIdx + 1) % len(e.playlist)
	} else {
		e.fileIdx++
		if e.fileIdx >= len(e.playlist) {
			e.stopFollow()
			return
		}
	}
	e.segIdx, e.repeat, e.fileLoop = 0, 0, 0
	e.epoch++
	e.skipUnplayable()
}

// switchTrack is the user-driven track jump. Unlike the advancement rule it
// applies in any phase, abandoning whatever the current segment was doing.
func (e *Engine) switchTrack(delta int) {
	if e.phase == PhaseIdle || e.phase == PhaseStopped {
		return
	}
	e.cancelSegTimer()
	e.cancelRecognition()
	e.abandonCapture()
	if err := e.tr.Stop(); err != nil {
		e.log.Warn("transport stop", "err", err)
	}
	e.clock.MarkPause()
	e.queue.Clear()
	e.loadedPath = ""
	e.paused = false

	n := len(e.playlist)
	idx := e.fileIdx + delta
	if e.settings.PlayMode == PlayLoopAll {
		idx = (idx%n + n) % n
	} else if idx < 0 || idx >= n {
		e.stopFollow()
		return
	}
	e.fileIdx = idx
	e.segIdx, e.repeat, e.fileLoop = 0, 0, 0
	e.epoch++
	e.skipUnplayable()
}

// ─── Navigation and pause ───────────────────────────────────────────────────

// interruptForNav short-circuits the current phase to the segment boundary
// so queued navigation takes effect promptly.
func (e *Engine) interruptForNav() {
	if e.queue.Len() == 0 {
		return
	}
	switch e.phase {
	case PhasePlayingSegment:
		if e.paused {
			return
		}
		e.cancelSegTimer()
		if err := e.tr.Pause(); err != nil {
			e.log.Warn("transport pause", "err", err)
		}
		e.clock.MarkPause()
		e.enterBetween()
	case PhaseAwaitingLearner:
		e.cancelSegTimer()
		e.abandonCapture()
		e.enterBetween()
	case PhaseRecognizing:
		e.cancelRecognition()
		e.enterBetween()
	case PhaseScoring:
		e.enterBetween()
	}
}

func (e *Engine) playPause() {
	switch e.phase {
	case PhasePlayingSegment:
		if e.paused {
			e.resumeSegment()
			return
		}
		e.cancelSegTimer()
		if err := e.tr.Pause(); err != nil {
			e.log.Warn("transport pause", "err", err)
		}
		pos := e.clock.Position()
		e.clock.MarkPause()
		seg := e.currentTrack().Subtitles.Segment(e.segIdx)
		e.paused = true
		e.pausedSeg = e.segIdx
		e.pausedPos = pos - time.Duration(seg.Start)*time.Millisecond
		e.publishStatus()
	case PhaseAwaitingLearner, PhaseRecognizing, PhaseScoring:
		// Capture and recognition cannot be meaningfully paused.
		e.stopFollow()
	case PhaseStopped, PhaseIdle:
		// Nothing to toggle.
	}
}

func (e *Engine) resumeSegment() {
	tr := e.currentTrack()
	seg := tr.Subtitles.Segment(e.segIdx)
	segDur := time.Duration(seg.DurationMs()) * time.Millisecond

	offset := e.pausedPos
	if e.pausedSeg != e.segIdx || offset < 0 || offset >= segDur {
		offset = 0
	}
	start := time.Duration(seg.Start)*time.Millisecond + offset
	if err := e.tr.Play(start); err != nil {
		e.setError(fmt.Sprintf("playback failed: %v", err))
		e.stopFollow()
		return
	}
	speed := e.tr.EffectiveSpeed()
	e.clock.MarkPlay(start, speed)
	e.paused = false

	remain := segDur - offset
	if speed > 0 {
		remain = time.Duration(float64(remain) / speed)
	}
	epoch, segIdx := e.epoch, e.segIdx
	e.cancelSegTimer()
	e.segTimer = e.after(remain, func() {
		e.post(func() { e.onSegmentEnd(epoch, segIdx) })
	})
	e.publishStatus()
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
