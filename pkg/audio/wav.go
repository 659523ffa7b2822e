package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
)

// ErrNotWAV is returned by [ReadWAV] when the input does not start with a
// RIFF/WAVE header.
var ErrNotWAV = errors.New("audio: not a RIFF/WAVE stream")

// wavHeaderSize is the byte length of the canonical 44-byte PCM WAV header
// written by [WriteWAV].
const wavHeaderSize = 44

// WriteWAV writes pcm as a PCM WAV stream in the given format to w.
// pcm must be little-endian int16 samples matching format.
func WriteWAV(w io.Writer, pcm []byte, format Format) error {
	if format.SampleRate <= 0 || format.Channels <= 0 {
		return fmt.Errorf("audio: invalid WAV format %+v", format)
	}

	byteRate := format.SampleRate * format.Channels * BitsPerSample / 8
	blockAlign := format.Channels * BitsPerSample / 8

	header := make([]byte, wavHeaderSize)
	copy(header[0:4], "RIFF")
	binary.LittleEndian.PutUint32(header[4:8], uint32(wavHeaderSize-8+len(pcm)))
	copy(header[8:12], "WAVE")
	copy(header[12:16], "fmt ")
	binary.LittleEndian.PutUint32(header[16:20], 16) // PCM fmt chunk size
	binary.LittleEndian.PutUint16(header[20:22], 1)  // audio format: PCM
	binary.LittleEndian.PutUint16(header[22:24], uint16(format.Channels))
	binary.LittleEndian.PutUint32(header[24:28], uint32(format.SampleRate))
	binary.LittleEndian.PutUint32(header[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(header[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(header[34:36], BitsPerSample)
	copy(header[36:40], "data")
	binary.LittleEndian.PutUint32(header[40:44], uint32(len(pcm)))

	if _, err := w.Write(header); err != nil {
		return fmt.Errorf("audio: write WAV header: %w", err)
	}
	if _, err := w.Write(pcm); err != nil {
		return fmt.Errorf("audio: write WAV data: %w", err)
	}
	return nil
}

// WriteWAVFile writes pcm as a WAV file at path, creating or truncating it.
func WriteWAVFile(path string, pcm []byte, format Format) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("audio: create %q: %w", path, err)
	}
	if err := WriteWAV(f, pcm, format); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("audio: close %q: %w", path, err)
	}
	return nil
}

// ReadWAV decodes a PCM WAV stream, returning the raw sample data and its
// format. Only uncompressed 16-bit PCM is supported; extra chunks before the
// data chunk (LIST, fact) are skipped.
func ReadWAV(r io.Reader) ([]byte, Format, error) {
	var riff [12]byte
	if _, err := io.ReadFull(r, riff[:]); err != nil {
		return nil, Format{}, fmt.Errorf("audio: read RIFF header: %w", err)
	}
	if string(riff[0:4]) != "RIFF" || string(riff[8:12]) != "WAVE" {
		return nil, Format{}, ErrNotWAV
	}

	var format Format
	sawFmt := false
	for {
		var chunk [8]byte
		if _, err := io.ReadFull(r, chunk[:]); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return nil, Format{}, errors.New("audio: WAV stream has no data chunk")
			}
			return nil, Format{}, fmt.Errorf("audio: read chunk header: %w", err)
		}
		id := string(chunk[0:4])
		size := binary.LittleEndian.Uint32(chunk[4:8])

		switch id {
		case "fmt ":
			body := make([]byte, size)
			if _, err := io.ReadFull(r, body); err != nil {
				return nil, Format{}, fmt.Errorf("audio: read fmt chunk: %w", err)
			}
			if len(body) < 16 {
				return nil, Format{}, errors.New("audio: fmt chunk too short")
			}
			audioFormat := binary.LittleEndian.Uint16(body[0:2])
			if audioFormat != 1 {
				return nil, Format{}, fmt.Errorf("audio: unsupported WAV encoding %d (only PCM)", audioFormat)
			}
			if bits := binary.LittleEndian.Uint16(body[14:16]); bits != BitsPerSample {
				return nil, Format{}, fmt.Errorf("audio: unsupported bit depth %d (only 16)", bits)
			}
			format.Channels = int(binary.LittleEndian.Uint16(body[2:4]))
			format.SampleRate = int(binary.LittleEndian.Uint32(body[4:8]))
			sawFmt = true
		case "data":
			if !sawFmt {
				return nil, Format{}, errors.New("audio: data chunk before fmt chunk")
			}
			pcm := make([]byte, size)
			if _, err := io.ReadFull(r, pcm); err != nil {
				return nil, Format{}, fmt.Errorf("audio: read data chunk: %w", err)
			}
			return pcm, format, nil
		default:
			// Skip unknown chunks (LIST, fact, ...).
			if _, err := io.CopyN(io.Discard, r, int64(size)); err != nil {
				return nil, Format{}, fmt.Errorf("audio: skip %q chunk: %w", id, err)
			}
		}
	}
}

// ReadWAVFile decodes the WAV file at path.
func ReadWAVFile(path string) ([]byte, Format, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, Format{}, fmt.Errorf("audio: open %q: %w", path, err)
	}
	defer f.Close()
	return ReadWAV(f)
}
