// Package transport defines the single-instance audio playback transport the
// follow-reading engine drives.
//
// A Transport owns exactly one decoder. All mutators are serialized by the
// implementation behind a single lock; under contention callers observe the
// same order their calls were granted the lock in. The engine never trusts
// the decoder's own position reporting across pause/seek/speed changes — the
// authoritative position lives in [audio.Clock] — but PositionRaw is exposed
// for diagnostics and for non-follow playback.
package transport

import (
	"errors"
	"time"
)

// Errors surfaced by transports. Load failures and device loss are
// user-visible and move the engine to its stopped state.
var (
	// ErrLoadFailed reports that the decoder could not open the file within
	// the retry grace.
	ErrLoadFailed = errors.New("transport: load failed")

	// ErrDeviceLost reports that the output device disappeared mid-playback.
	ErrDeviceLost = errors.New("transport: output device lost")

	// ErrNoTrack is returned by playback operations before a successful Load.
	ErrNoTrack = errors.New("transport: no track loaded")
)

// StopGrace is how long after Stop returns the engine may have to wait for
// the decoder to release the file. Load retries within this window before
// surfacing ErrLoadFailed.
const StopGrace = 200 * time.Millisecond

// Transport is the playback contract. Implementations must serialize all
// mutators; see the package comment.
type Transport interface {
	// Load opens the audio file at path, replacing any current track.
	// It retries within [StopGrace] when the file is still held by a
	// previous decoder instance.
	Load(path string) error

	// Duration returns the duration of the loaded track, or false before Load.
	Duration() (time.Duration, bool)

	// Play starts playback at the given track position.
	Play(start time.Duration) error

	// Pause halts playback keeping the current position.
	Pause() error

	// Resume continues playback from the paused position.
	Resume() error

	// Stop halts playback and releases the decoder's claim on the file.
	// Stop on an idle transport is a no-op.
	Stop() error

	// Seek moves the playback position. Implementations whose decoder cannot
	// seek natively realise it as stop+load+play.
	Seek(to time.Duration) error

	// SetVolume sets the output gain in [0, 1].
	SetVolume(v float64) error

	// SetSpeed sets the playback rate in [0.5, 2.0]. Decoders without rate
	// support treat this as a no-op and report EffectiveSpeed() == 1.
	SetSpeed(s float64) error

	// EffectiveSpeed returns the rate playback actually runs at.
	EffectiveSpeed() float64

	// IsBusy reports whether the decoder is currently producing audio.
	IsBusy() bool

	// PositionRaw returns the decoder-reported position, or false when the
	// decoder exposes none (stopped, or mid-seek).
	PositionRaw() (time.Duration, bool)

	// Close stops playback and releases all transport resources.
	Close() error
}
