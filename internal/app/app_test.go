package app_test

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/lxm0851/shadowing/internal/app"
	"github.com/lxm0851/shadowing/internal/config"
	"github.com/lxm0851/shadowing/internal/follow"
	"github.com/lxm0851/shadowing/internal/state"
	transportmock "github.com/lxm0851/shadowing/pkg/audio/transport/mock"
	asrmock "github.com/lxm0851/shadowing/pkg/provider/asr/mock"
)

// noRecorder never opens a capture; the tests run in no-record mode.
type noRecorder struct{}

func (noRecorder) Start(ctx context.Context) (follow.Capture, error) {
	return nil, os.ErrInvalid
}

func testConfig(dataDir string) *config.Config {
	return &config.Config{
		App: config.AppConfig{
			DataDir:  dataDir,
			LogLevel: config.LogInfo,
		},
		Recognizer: config.RecognizerConfig{
			Provider: "local_whisper",
			Language: "en",
		},
		Follow: config.FollowConfig{
			PlayMode:           config.PlaySequential,
			FileLoopCount:      1,
			SegmentRepeatCount: 1,
			NoRecord:           true,
			PlaybackSpeed:      1.0,
			Volume:             80,
		},
	}
}

const srt = `1
00:00:01,000 --> 00:00:03,000
Hello world

`

func mediaFolder(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range map[string]string{
		"track.mp3": "not really audio",
		"track.srt": srt,
	} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestApp(t *testing.T, in io.Reader, out io.Writer) (*app.App, *transportmock.Transport) {
	t.Helper()
	dataDir := t.TempDir()
	dir, err := state.Open(filepath.Join(dataDir, "state"))
	if err != nil {
		t.Fatal(err)
	}
	tr := &transportmock.Transport{}
	a, err := app.New(context.Background(), testConfig(dataDir),
		app.WithTransport(tr),
		app.WithRecorder(noRecorder{}),
		app.WithProvider(&asrmock.Provider{}),
		app.WithStateDir(dir),
		app.WithLogger(quietLogger()),
		app.WithInput(in),
		app.WithOutput(out),
	)
	if err != nil {
		t.Fatal(err)
	}
	return a, tr
}

func TestOpenFolderAndStartFollow(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	a, tr := newTestApp(t, strings.NewReader(""), &out)
	defer a.Shutdown()

	if err := a.OpenFolder(mediaFolder(t)); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), "1 file(s)") {
		t.Fatalf("output = %q", out.String())
	}
	if err := a.StartFollow(0); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		for _, op := range tr.CallOps() {
			if op == "play" {
				return
			}
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("no playback started; transport ops: %v", tr.CallOps())
}

func TestOpenFolderRejectsEmptyDir(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	a, _ := newTestApp(t, strings.NewReader(""), &out)
	defer a.Shutdown()

	if err := a.OpenFolder(t.TempDir()); err == nil {
		t.Fatal("empty folder should be rejected")
	}
}

func TestRunQuitsOnCommand(t *testing.T) {
	t.Parallel()

	folder := mediaFolder(t)
	script := "open " + folder + "\nstatus\nbogus\nquit\n"
	var mu sync.Mutex
	var out bytes.Buffer
	lockedOut := writerFunc(func(p []byte) (int, error) {
		mu.Lock()
		defer mu.Unlock()
		return out.Write(p)
	})

	a, _ := newTestApp(t, strings.NewReader(script), lockedOut)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.Run(ctx); err != nil {
		t.Fatalf("run: %v", err)
	}

	mu.Lock()
	got := out.String()
	mu.Unlock()
	if !strings.Contains(got, "opened") {
		t.Fatalf("missing open confirmation in %q", got)
	}
	if !strings.Contains(got, "phase=") {
		t.Fatalf("missing status line in %q", got)
	}
	if !strings.Contains(got, "unknown command") {
		t.Fatalf("missing error for bogus command in %q", got)
	}
}

type writerFunc func(p []byte) (int, error)

func (f writerFunc) Write(p []byte) (int, error) { return f(p) }

func TestStartWithoutFolderFails(t *testing.T) {
	t.Parallel()

	a, _ := newTestApp(t, strings.NewReader(""), io.Discard)
	defer a.Shutdown()

	if err := a.StartFollow(0); err == nil {
		t.Fatal("start without an open folder should fail")
	}
}
