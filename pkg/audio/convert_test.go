package audio_test

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/lxm0851/shadowing/pkg/audio"
)

func TestResampleMono16_HalvesSampleCount(t *testing.T) {
	t.Parallel()

	in := ramp16(1000)
	out := audio.ResampleMono16(in, 44100, 22050)

	wantSamples := 500
	if got := len(out) / 2; got != wantSamples {
		t.Errorf("resampled sample count = %d, want %d", got, wantSamples)
	}
}

func TestResampleMono16_SameRateIsIdentity(t *testing.T) {
	t.Parallel()

	in := ramp16(100)
	out := audio.ResampleMono16(in, 16000, 16000)
	if &in[0] != &out[0] {
		t.Error("same-rate resample should return the input unchanged")
	}
}

func TestStereoToMono_Averages(t *testing.T) {
	t.Parallel()

	in := make([]byte, 4)
	binary.LittleEndian.PutUint16(in[0:], uint16(int16(1000)))
	binary.LittleEndian.PutUint16(in[2:], uint16(int16(3000)))

	out := audio.StereoToMono(in)
	got := int16(binary.LittleEndian.Uint16(out))
	if got != 2000 {
		t.Errorf("mono sample = %d, want 2000", got)
	}
}

func TestRMS(t *testing.T) {
	t.Parallel()

	if got := audio.RMS(nil); got != 0 {
		t.Errorf("RMS(nil) = %v, want 0", got)
	}

	// Constant-amplitude signal: RMS equals the amplitude.
	in := make([]byte, 200)
	for i := 0; i < 100; i++ {
		binary.LittleEndian.PutUint16(in[i*2:], uint16(int16(500)))
	}
	if got := audio.RMS(in); math.Abs(got-500) > 0.01 {
		t.Errorf("RMS(const 500) = %v, want 500", got)
	}
}

func TestPCMToFloat32_Normalises(t *testing.T) {
	t.Parallel()

	in := make([]byte, 4)
	minSample := int16(-32768)
	binary.LittleEndian.PutUint16(in[0:], uint16(minSample))
	binary.LittleEndian.PutUint16(in[2:], uint16(int16(16384)))

	out := audio.PCMToFloat32(in)
	if len(out) != 2 {
		t.Fatalf("len = %d, want 2", len(out))
	}
	if out[0] != -1.0 {
		t.Errorf("out[0] = %v, want -1.0", out[0])
	}
	if math.Abs(float64(out[1])-0.5) > 1e-4 {
		t.Errorf("out[1] = %v, want 0.5", out[1])
	}
}
