package recorder_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/lxm0851/shadowing/pkg/audio"
	"github.com/lxm0851/shadowing/pkg/audio/recorder"
	"github.com/lxm0851/shadowing/pkg/audio/recorder/mock"
)

func pcmDuration(pcm []byte) time.Duration {
	f := audio.Frame{Data: pcm, SampleRate: audio.CaptureRate, Channels: 1}
	return f.Duration()
}

func TestAutoStopOnSilence(t *testing.T) {
	t.Parallel()

	dev := &mock.Device{Hold: true}
	for i := 0; i < 3; i++ {
		dev.Frames = append(dev.Frames, mock.Speech(100*time.Millisecond))
	}
	for i := 0; i < 10; i++ {
		dev.Frames = append(dev.Frames, mock.Silence(100*time.Millisecond))
	}

	rec := recorder.New(dev,
		recorder.WithMinWait(300*time.Millisecond),
		recorder.WithSilenceWindow(400*time.Millisecond),
	)
	cap, err := rec.Start(context.Background())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	select {
	case <-cap.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("capture did not auto-stop")
	}

	pcm, err := cap.Stop()
	if err != nil {
		t.Fatalf("Stop: %v", err)
	}
	// 300 ms of speech plus the 400 ms silence window.
	if got, want := pcmDuration(pcm), 700*time.Millisecond; got != want {
		t.Errorf("captured %v, want %v", got, want)
	}
}

func TestManualStop(t *testing.T) {
	t.Parallel()

	dev := &mock.Device{
		Frames: []audio.Frame{mock.Speech(500 * time.Millisecond)},
		Hold:   true,
	}
	rec := recorder.New(dev)
	cap, err := rec.Start(context.Background())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	// Let the scripted frame land before stopping.
	time.Sleep(50 * time.Millisecond)
	pcm, err := cap.Stop()
	if err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if got, want := pcmDuration(pcm), 500*time.Millisecond; got != want {
		t.Errorf("captured %v, want %v", got, want)
	}
}

func TestMaxDurationCap(t *testing.T) {
	t.Parallel()

	dev := &mock.Device{Hold: true}
	for i := 0; i < 10; i++ {
		dev.Frames = append(dev.Frames, mock.Speech(100*time.Millisecond))
	}
	rec := recorder.New(dev, recorder.WithMaxDuration(300*time.Millisecond))
	cap, err := rec.Start(context.Background())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	select {
	case <-cap.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("capture did not hit the duration cap")
	}
	pcm, err := cap.Stop()
	if err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if got, want := pcmDuration(pcm), 300*time.Millisecond; got != want {
		t.Errorf("captured %v, want %v", got, want)
	}
}

func TestTooShortCaptureIsNoAudio(t *testing.T) {
	t.Parallel()

	dev := &mock.Device{
		Frames: []audio.Frame{mock.Silence(100 * time.Millisecond)},
	}
	rec := recorder.New(dev)
	cap, err := rec.Start(context.Background())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if _, err := cap.Stop(); !errors.Is(err, recorder.ErrNoAudio) {
		t.Fatalf("Stop err = %v, want ErrNoAudio", err)
	}
}

func TestOpenFailure(t *testing.T) {
	t.Parallel()

	dev := &mock.Device{OpenErr: errors.New("busy")}
	rec := recorder.New(dev)
	if _, err := rec.Start(context.Background()); !errors.Is(err, recorder.ErrDeviceUnavailable) {
		t.Fatalf("Start err = %v, want ErrDeviceUnavailable", err)
	}
}

func TestContextCancelEndsCapture(t *testing.T) {
	t.Parallel()

	dev := &mock.Device{Hold: true}
	rec := recorder.New(dev)
	ctx, cancel := context.WithCancel(context.Background())
	cap, err := rec.Start(ctx)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	cancel()
	select {
	case <-cap.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("capture did not end on cancel")
	}
}

func TestSaveWritesTwinWAVs(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	pcm := mock.Speech(250 * time.Millisecond).Data

	play, stt, err := recorder.Save(pcm, dir)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if filepath.Dir(play) != dir || filepath.Dir(stt) != dir {
		t.Fatalf("files written outside %s: %s, %s", dir, play, stt)
	}
	for _, p := range []string{play, stt} {
		got, format, err := audio.ReadWAVFile(p)
		if err != nil {
			t.Fatalf("ReadWAVFile(%s): %v", p, err)
		}
		if format != audio.CaptureFormat {
			t.Errorf("%s format = %+v, want capture format", p, format)
		}
		if len(got) != len(pcm) {
			t.Errorf("%s payload %d bytes, want %d", p, len(got), len(pcm))
		}
		if err := os.Remove(p); err != nil {
			t.Errorf("cleanup %s: %v", p, err)
		}
	}
}
