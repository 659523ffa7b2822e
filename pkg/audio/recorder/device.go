package recorder

import (
	"errors"
	"fmt"
	"io"
	"os/exec"
	"runtime"
	"time"

	"github.com/lxm0851/shadowing/pkg/audio"
)

// frameLen is the capture chunk size handed to the loop. 30 ms keeps the
// silence detector responsive without burning CPU on tiny reads.
const frameLen = 30 * time.Millisecond

// FFmpegDevice opens the default system microphone through an ffmpeg
// capture subprocess emitting raw signed 16-bit little-endian PCM on
// stdout.
type FFmpegDevice struct {
	// Input overrides the capture input name. Empty selects the platform
	// default ("default" on ALSA, ":0" on avfoundation).
	Input string
}

var _ Device = (*FFmpegDevice)(nil)

// Open spawns the capture process and returns a Source streaming frames of
// the requested format.
func (d *FFmpegDevice) Open(format audio.Format) (Source, error) {
	bin, err := exec.LookPath("ffmpeg")
	if err != nil {
		return nil, fmt.Errorf("ffmpeg not found: %w", err)
	}

	inFmt, input := captureInput(d.Input)
	cmd := exec.Command(bin,
		"-loglevel", "quiet",
		"-f", inFmt,
		"-i", input,
		"-f", "s16le",
		"-ar", fmt.Sprint(format.SampleRate),
		"-ac", fmt.Sprint(format.Channels),
		"-",
	)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start ffmpeg capture: %w", err)
	}

	bytesPerFrame := format.SampleRate * format.Channels * (audio.BitsPerSample / 8)
	chunk := int(frameLen) * bytesPerFrame / int(time.Second)
	// s16le frames must not split a sample.
	chunk -= chunk % 2
	return &ffmpegSource{
		cmd:    cmd,
		stdout: stdout,
		format: format,
		chunk:  chunk,
	}, nil
}

func captureInput(override string) (format, input string) {
	switch runtime.GOOS {
	case "darwin":
		if override == "" {
			override = ":0"
		}
		return "avfoundation", override
	default:
		if override == "" {
			override = "default"
		}
		return "alsa", override
	}
}

type ffmpegSource struct {
	cmd    *exec.Cmd
	stdout io.ReadCloser
	format audio.Format
	chunk  int

	elapsed time.Duration
}

func (s *ffmpegSource) Read() (audio.Frame, error) {
	buf := make([]byte, s.chunk)
	n, err := io.ReadFull(s.stdout, buf)
	if n == 0 {
		if err == nil {
			err = io.EOF
		}
		return audio.Frame{}, err
	}
	if errors.Is(err, io.ErrUnexpectedEOF) {
		err = nil // deliver the short tail, EOF on the next call
	}
	if err != nil {
		return audio.Frame{}, err
	}

	frame := audio.Frame{
		Data:       buf[:n],
		SampleRate: s.format.SampleRate,
		Channels:   s.format.Channels,
		Timestamp:  s.elapsed,
	}
	s.elapsed += frame.Duration()
	return frame, nil
}

func (s *ffmpegSource) Close() error {
	_ = s.stdout.Close()
	if s.cmd.Process != nil {
		_ = s.cmd.Process.Kill()
	}
	_ = s.cmd.Wait()
	return nil
}
