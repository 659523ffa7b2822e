// Package app wires all shadowing subsystems into a running application.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run executes the interactive loop, and Shutdown tears
// everything down in order.
//
// For testing, inject fakes via functional options (WithTransport,
// WithRecorder, WithProvider, ...). When an option is not provided, New
// creates real implementations from the config.
package app

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/lxm0851/shadowing/internal/config"
	"github.com/lxm0851/shadowing/internal/follow"
	"github.com/lxm0851/shadowing/internal/observe"
	"github.com/lxm0851/shadowing/internal/playlist"
	"github.com/lxm0851/shadowing/internal/progress"
	"github.com/lxm0851/shadowing/internal/state"
	"github.com/lxm0851/shadowing/pkg/audio/recorder"
	"github.com/lxm0851/shadowing/pkg/audio/transport"
	"github.com/lxm0851/shadowing/pkg/provider/asr"
	"github.com/lxm0851/shadowing/pkg/provider/asr/baidu"
	"github.com/lxm0851/shadowing/pkg/provider/asr/openai"
	"github.com/lxm0851/shadowing/pkg/provider/asr/tencent"
	"github.com/lxm0851/shadowing/pkg/provider/asr/whisper"
	"github.com/lxm0851/shadowing/pkg/subtitle"
)

// App owns all subsystem lifetimes and drives the shadowing trainer.
type App struct {
	cfg *config.Config
	log *slog.Logger

	dir  *state.Dir
	tr   transport.Transport
	rec  follow.Recorder
	prov asr.Provider

	engine    *follow.Engine
	publisher *progress.Publisher

	in  io.Reader
	out io.Writer

	// mu guards the open playlist and accumulated stats.
	mu      sync.Mutex
	folder  string
	entries []playlist.Entry
	tracks  []follow.Track
	stats   state.Stats
	latest  progress.Snapshot

	// closers are called in reverse order during Shutdown.
	closers  []func() error
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithTransport injects a playback transport instead of spawning ffplay.
func WithTransport(t transport.Transport) Option {
	return func(a *App) { a.tr = t }
}

// WithRecorder injects a microphone recorder instead of the ffmpeg device.
func WithRecorder(r follow.Recorder) Option {
	return func(a *App) { a.rec = r }
}

// WithProvider injects a recognition provider instead of building one from
// the config.
func WithProvider(p asr.Provider) Option {
	return func(a *App) { a.prov = p }
}

// WithStateDir injects an opened state directory.
func WithStateDir(d *state.Dir) Option {
	return func(a *App) { a.dir = d }
}

// WithLogger sets the structured logger. Default is [slog.Default].
func WithLogger(l *slog.Logger) Option {
	return func(a *App) { a.log = l }
}

// WithInput sets where interactive commands are read from. Default stdin.
func WithInput(r io.Reader) Option {
	return func(a *App) { a.in = r }
}

// WithOutput sets where user-facing output goes. Default stdout.
func WithOutput(w io.Writer) Option {
	return func(a *App) { a.out = w }
}

// New creates an App by wiring all subsystems together.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	a := &App{
		cfg: cfg,
		log: slog.Default(),
		in:  os.Stdin,
		out: os.Stdout,
	}
	for _, o := range opts {
		o(a)
	}

	// ── 1. State directory ───────────────────────────────────────────────
	if a.dir == nil {
		d, err := state.Open(cfg.App.DataDir)
		if err != nil {
			return nil, fmt.Errorf("app: open state dir: %w", err)
		}
		a.dir = d
	}
	// Takes from a previous crash are worthless.
	if err := a.dir.CleanTemp(); err != nil {
		a.log.Warn("clean temp dir", "err", err)
	}

	// ── 2. Playback transport ────────────────────────────────────────────
	if a.tr == nil {
		t, err := transport.NewFFPlay()
		if err != nil {
			return nil, fmt.Errorf("app: init transport: %w", err)
		}
		a.tr = t
	}
	a.closers = append(a.closers, a.tr.Close)

	// ── 3. Microphone ────────────────────────────────────────────────────
	if a.rec == nil {
		a.rec = follow.Mic{R: recorder.New(&recorder.FFmpegDevice{})}
	}

	// ── 4. Recognition provider ──────────────────────────────────────────
	if a.prov == nil {
		p, err := buildProvider(cfg)
		if err != nil {
			return nil, fmt.Errorf("app: init recognizer: %w", err)
		}
		a.prov = p
		if c, ok := p.(io.Closer); ok {
			a.closers = append(a.closers, c.Close)
		}
	}

	// ── 5. Engine + publisher ────────────────────────────────────────────
	a.engine = follow.New(a.tr, a.rec, a.prov, a.dir.TempDir(),
		follow.WithLogger(a.log))
	a.closers = append(a.closers, a.engine.Close)

	a.publisher = progress.New(a.engine,
		progress.WithModel(a.currentModel),
		progress.WithTotal(a.trackTotal),
	)

	if err := a.restoreState(); err != nil {
		a.log.Warn("restore player state", "err", err)
	}
	return a, nil
}

// buildProvider constructs the configured recognition backend.
func buildProvider(cfg *config.Config) (asr.Provider, error) {
	r := cfg.Recognizer
	var (
		p   asr.Provider
		err error
	)
	switch r.Provider {
	case "local_whisper":
		p, err = whisper.New(r.Local.ModelPath, whisper.WithLanguage(r.Language))
	case "remote_baidu":
		p, err = baidu.New(r.Baidu.AppID, r.Baidu.APIKey, r.Baidu.SecretKey)
	case "remote_tencent":
		p, err = tencent.New(r.Tencent.AppID, r.Tencent.SecretID, r.Tencent.SecretKey)
	case "remote_openai":
		p, err = openai.New(r.OpenAI.APIKey, r.OpenAI.Model)
	default:
		return nil, fmt.Errorf("unknown recognizer provider %q", r.Provider)
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (a *App) currentModel() *subtitle.Model {
	st := a.engine.Status()
	a.mu.Lock()
	defer a.mu.Unlock()
	if st.FileIdx < 0 || st.FileIdx >= len(a.tracks) {
		return nil
	}
	return a.tracks[st.FileIdx].Subtitles
}

func (a *App) trackTotal() time.Duration {
	if d, ok := a.tr.Duration(); ok {
		return d
	}
	return 0
}

// ─── Folder handling ─────────────────────────────────────────────────────────

// OpenFolder scans path and prepares its tracks for follow mode.
func (a *App) OpenFolder(path string) error {
	entries, err := playlist.Scan(path)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		return fmt.Errorf("app: no playable files in %s", path)
	}
	tracks, loadErr := playlist.LoadTracks(entries, a.cfg.Follow.SubtitleOffsetMs)
	if loadErr != nil {
		// Bad subtitles are surfaced but do not block the rest.
		fmt.Fprintf(a.out, "warning: %v\n", loadErr)
	}

	a.mu.Lock()
	a.folder = path
	a.entries = entries
	a.tracks = tracks
	a.mu.Unlock()

	a.rememberFolder(path)
	fmt.Fprintf(a.out, "opened %s: %d file(s)\n", path, len(entries))
	return nil
}

// rememberFolder persists the folder's settings snapshot.
func (a *App) rememberFolder(path string) {
	s, err := a.dir.LoadSettings()
	if err != nil {
		a.log.Warn("load settings", "err", err)
		return
	}
	if s.Folders == nil {
		s.Folders = make(map[string]state.FolderSettings)
	}
	s.Folders[path] = state.FolderSettings{
		Volume:             a.cfg.Follow.Volume,
		Speed:              a.cfg.Follow.PlaybackSpeed,
		SubtitleOffsetMs:   a.cfg.Follow.SubtitleOffsetMs,
		FileLoopCount:      a.cfg.Follow.FileLoopCount,
		SegmentRepeatCount: a.cfg.Follow.SegmentRepeatCount,
		PlayMode:           string(a.cfg.Follow.PlayMode),
	}
	if err := a.dir.SaveSettings(s); err != nil {
		a.log.Warn("save settings", "err", err)
	}
}

// restoreState revalidates remembered folders and accumulated stats.
func (a *App) restoreState() error {
	ps, err := a.dir.LoadPlayerState()
	if err != nil {
		return err
	}
	a.mu.Lock()
	a.stats = ps.Stats
	a.mu.Unlock()

	s, err := a.dir.LoadSettings()
	if err != nil {
		return err
	}
	var known []string
	for f := range s.Folders {
		known = append(known, f)
	}
	if _, missing := playlist.Validate(known); len(missing) > 0 {
		for _, f := range missing {
			a.log.Warn("remembered folder vanished", "folder", f)
			delete(s.Folders, f)
		}
		return a.dir.SaveSettings(s)
	}
	return nil
}

// StartFollow begins a follow session on the open folder at track startIdx.
func (a *App) StartFollow(startIdx int) error {
	a.mu.Lock()
	tracks := a.tracks
	a.mu.Unlock()
	if len(tracks) == 0 {
		return errors.New("app: open a folder first")
	}
	f := a.cfg.Follow
	return a.engine.Start(tracks, startIdx, follow.Settings{
		PlayMode:              follow.PlayMode(f.PlayMode),
		FileLoopCount:         f.FileLoopCount,
		SegmentRepeatCount:    f.SegmentRepeatCount,
		NoRecord:              f.NoRecord,
		NoPlaybackOfRecording: f.NoPlaybackOfRecording,
		PlaybackSpeed:         f.PlaybackSpeed,
		Volume:                f.Volume,
		Language:              a.cfg.Recognizer.Language,
		Translate:             a.cfg.Recognizer.Translate,
	})
}

// ─── Run loop ────────────────────────────────────────────────────────────────

// Run drives the application until ctx is cancelled or the user quits.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.publisher.Run(ctx)
		return nil
	})
	g.Go(func() error {
		a.consumeSnapshots(ctx)
		return nil
	})
	g.Go(func() error {
		a.consumeResults(ctx)
		return nil
	})
	if addr := a.cfg.Metrics.ListenAddr; addr != "" {
		g.Go(func() error {
			if err := observe.ServeMetrics(ctx, addr); err != nil {
				return fmt.Errorf("app: metrics server: %w", err)
			}
			return nil
		})
	}
	g.Go(func() error {
		defer cancel()
		return a.repl(ctx)
	})

	err := g.Wait()
	a.Shutdown()
	return err
}

func (a *App) consumeSnapshots(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-a.publisher.Snapshots():
			if !ok {
				return
			}
			a.mu.Lock()
			a.latest = snap
			a.mu.Unlock()
		}
	}
}

func (a *App) consumeResults(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case att, ok := <-a.engine.Results():
			if !ok {
				return
			}
			a.printAttempt(att)
			a.mu.Lock()
			a.stats.Attempts++
			a.stats.ScoreSum += att.Result.Score
			a.mu.Unlock()
		}
	}
}

func (a *App) printAttempt(att follow.Attempt) {
	fmt.Fprintf(a.out, "segment %d  score %.1f  %s / %s\n",
		att.SegmentIdx+1, att.Result.Score, att.Result.Feedback, att.Result.FeedbackCN)
	fmt.Fprintf(a.out, "  said: %s\n", att.Recognized)
	if att.Translated != "" {
		fmt.Fprintf(a.out, "  中文: %s\n", att.Translated)
	}
	for _, h := range att.Result.Hints {
		fmt.Fprintf(a.out, "  hint: %q sounded like %q\n", h.Want, h.Heard)
	}
}

// repl reads interactive commands until EOF, quit, or cancellation.
func (a *App) repl(ctx context.Context) error {
	scanner := bufio.NewScanner(a.in)
	lines := make(chan string)
	go func() {
		defer close(lines)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			quit, err := a.dispatch(line)
			if err != nil {
				fmt.Fprintf(a.out, "error: %v\n", err)
			}
			if quit {
				return nil
			}
		}
	}
}

// dispatch executes one command line. It reports quit=true for the exit
// commands.
func (a *App) dispatch(line string) (quit bool, err error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false, nil
	}
	cmd, args := fields[0], fields[1:]

	switch cmd {
	case "open":
		if len(args) != 1 {
			return false, errors.New("usage: open <folder>")
		}
		return false, a.OpenFolder(args[0])
	case "start":
		idx := 0
		if len(args) == 1 {
			if idx, err = strconv.Atoi(args[0]); err != nil {
				return false, fmt.Errorf("bad track index %q", args[0])
			}
		}
		return false, a.StartFollow(idx)
	case "stop":
		a.engine.Stop()
	case "p", "pause":
		a.engine.PlayPause()
	case "n", "next":
		a.engine.NextSegment()
	case "b", "prev":
		a.engine.PrevSegment()
	case "nt", "nexttrack":
		a.engine.NextTrack()
	case "pt", "prevtrack":
		a.engine.PrevTrack()
	case "skip":
		if len(args) != 1 {
			return false, errors.New("usage: skip <±seconds>")
		}
		sec, err := strconv.ParseFloat(args[0], 64)
		if err != nil {
			return false, fmt.Errorf("bad skip %q", args[0])
		}
		a.engine.SeekRelative(time.Duration(sec * float64(time.Second)))
	case "edit":
		a.beginEdit()
	case "savesubs":
		return false, a.saveSubtitlesAndResume()
	case "r", "repeat":
		a.engine.RepeatSegment()
	case "jump":
		if len(args) != 1 {
			return false, errors.New("usage: jump <segment>")
		}
		idx, err := strconv.Atoi(args[0])
		if err != nil {
			return false, fmt.Errorf("bad segment index %q", args[0])
		}
		a.engine.JumpSegment(idx - 1)
	case "seek":
		if len(args) != 1 {
			return false, errors.New("usage: seek <seconds>")
		}
		sec, err := strconv.ParseFloat(args[0], 64)
		if err != nil {
			return false, fmt.Errorf("bad position %q", args[0])
		}
		a.engine.SeekAbsolute(time.Duration(sec * float64(time.Second)))
	case "speed":
		if len(args) != 1 {
			return false, errors.New("usage: speed <0.5..2.0>")
		}
		s, err := strconv.ParseFloat(args[0], 64)
		if err != nil || s < 0.5 || s > 2.0 {
			return false, fmt.Errorf("bad speed %q", args[0])
		}
		a.engine.SetSpeed(s)
	case "volume":
		if len(args) != 1 {
			return false, errors.New("usage: volume <0..100>")
		}
		v, err := strconv.Atoi(args[0])
		if err != nil || v < 0 || v > 100 {
			return false, fmt.Errorf("bad volume %q", args[0])
		}
		a.engine.SetVolume(v)
	case "offset":
		if len(args) != 1 {
			return false, errors.New("usage: offset <ms>")
		}
		ms, err := strconv.Atoi(args[0])
		if err != nil {
			return false, fmt.Errorf("bad offset %q", args[0])
		}
		a.engine.SetSubtitleOffset(ms)
	case "norecord":
		a.engine.SetNoRecord(boolArg(args))
	case "noplayback":
		a.engine.SetNoPlaybackOfRecording(boolArg(args))
	case "status":
		a.printStatus()
	case "q", "quit", "exit":
		return true, nil
	default:
		return false, fmt.Errorf("unknown command %q", cmd)
	}
	return false, nil
}

func boolArg(args []string) bool {
	return len(args) == 0 || args[0] == "on" || args[0] == "true"
}

func (a *App) printStatus() {
	st := a.engine.Status()
	a.mu.Lock()
	snap := a.latest
	stats := a.stats
	a.mu.Unlock()

	fmt.Fprintf(a.out, "phase=%s track=%s segment=%d/%d repeat=%d/%d\n",
		st.Phase, st.TrackPath, st.SegmentIdx+1, snapTotalSegments(a.currentModel()),
		st.Repeat+1, st.MaxRepeats)
	if snap.SegmentText != "" {
		fmt.Fprintf(a.out, "  %s\n", snap.SegmentText)
	}
	fmt.Fprintf(a.out, "  position %s / %s\n",
		snap.Position.Round(time.Second), snap.Total.Round(time.Second))
	if stats.Attempts > 0 {
		fmt.Fprintf(a.out, "  attempts %d, average score %.1f\n",
			stats.Attempts, stats.ScoreSum/float64(stats.Attempts))
	}
	if st.LastErr != "" {
		fmt.Fprintf(a.out, "  last error: %s\n", st.LastErr)
	}
}

// beginEdit pauses the engine and shows the segment to edit.
func (a *App) beginEdit() {
	idx := a.engine.BeginEdit()
	m := a.currentModel()
	if idx < 0 || m == nil || idx >= m.Len() {
		fmt.Fprintln(a.out, "nothing to edit")
		return
	}
	seg := m.Segment(idx)
	fmt.Fprintf(a.out, "editing segment %d [%d..%d ms]\n%s\n", idx+1, seg.Start, seg.End, seg.Text())
}

// saveSubtitlesAndResume writes the current track's subtitles back to its
// .srt (with a backup of the prior file) and resumes playback.
func (a *App) saveSubtitlesAndResume() error {
	st := a.engine.Status()
	a.mu.Lock()
	var path string
	if st.FileIdx >= 0 && st.FileIdx < len(a.entries) {
		path = a.entries[st.FileIdx].Subtitle
	}
	a.mu.Unlock()
	m := a.currentModel()
	if path == "" || m == nil {
		return errors.New("app: no subtitle file to save")
	}
	if err := m.Save(path, subtitle.SaveOptions{}); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "saved %s\n", path)
	a.engine.EndEdit()
	return nil
}

func snapTotalSegments(m *subtitle.Model) int {
	if m == nil {
		return 0
	}
	return m.Len()
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown stops the engine, persists state and releases all resources.
// Safe to call multiple times.
func (a *App) Shutdown() {
	a.stopOnce.Do(func() {
		a.persistState()
		for i := len(a.closers) - 1; i >= 0; i-- {
			if err := a.closers[i](); err != nil {
				a.log.Warn("shutdown", "err", err)
			}
		}
		if err := a.dir.CleanTemp(); err != nil {
			a.log.Warn("clean temp dir", "err", err)
		}
	})
}

func (a *App) persistState() {
	st := a.engine.Status()
	a.mu.Lock()
	stats := a.stats
	var paths []string
	for _, t := range a.tracks {
		paths = append(paths, t.Path)
	}
	a.mu.Unlock()

	ps := &state.PlayerState{
		Playlist:              paths,
		Index:                 st.FileIdx,
		PositionMs:            int(a.engine.Clock().Position() / time.Millisecond),
		NoRecord:              a.cfg.Follow.NoRecord,
		NoPlaybackOfRecording: a.cfg.Follow.NoPlaybackOfRecording,
		Stats:                 stats,
	}
	if err := a.dir.SavePlayerState(ps); err != nil {
		a.log.Warn("save player state", "err", err)
	}
}
