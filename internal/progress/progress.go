// Package progress periodically samples the playback clock and engine state
// and publishes snapshots for the progress bar, the time label and the
// current-subtitle display.
//
// Sampling is pull-based: the publisher owns a ticker and reads from its
// source on every tick. Snapshots that would not visibly change the UI are
// suppressed to avoid jitter in the progress bar.
package progress

import (
	"context"
	"time"

	"github.com/lxm0851/shadowing/internal/follow"
	"github.com/lxm0851/shadowing/pkg/audio"
	"github.com/lxm0851/shadowing/pkg/subtitle"
)

const (
	defaultInterval = 600 * time.Millisecond

	// defaultMinDeltaFraction is the position change, as a fraction of the
	// track length, below which a snapshot is suppressed when nothing else
	// changed.
	defaultMinDeltaFraction = 0.005

	// fallbackMinDelta applies while the track length is unknown.
	fallbackMinDelta = 250 * time.Millisecond

	defaultSnapshotBuf = 8
)

// Snapshot is one published view of the session.
type Snapshot struct {
	Position time.Duration
	Total    time.Duration

	// SegmentIdx is the index of the subtitle enclosing Position, or -1
	// when none does.
	SegmentIdx  int
	SegmentText string

	Phase      follow.Phase
	Repeat     int
	MaxRepeats int
}

// Source is where the publisher reads engine state from. [follow.Engine]
// satisfies it.
type Source interface {
	Status() follow.Status
	Clock() *audio.Clock
}

// Publisher samples a Source on a fixed interval and emits snapshots.
type Publisher struct {
	src      Source
	interval time.Duration
	minFrac  float64

	model func() *subtitle.Model
	total func() time.Duration

	out chan Snapshot

	last    Snapshot
	hasLast bool
}

// Option is a functional option for configuring a Publisher.
type Option func(*Publisher)

// WithInterval sets the sampling interval. Default is 600 ms.
func WithInterval(d time.Duration) Option {
	return func(p *Publisher) { p.interval = d }
}

// WithMinDeltaFraction sets the suppression threshold as a fraction of the
// track length. Default is 0.5%.
func WithMinDeltaFraction(f float64) Option {
	return func(p *Publisher) { p.minFrac = f }
}

// WithModel supplies the subtitle model used to derive the enclosing
// segment from the clock position. The callback is consulted on every tick
// so the model may change between tracks.
func WithModel(fn func() *subtitle.Model) Option {
	return func(p *Publisher) { p.model = fn }
}

// WithTotal supplies the track length for the time label and the
// suppression threshold.
func WithTotal(fn func() time.Duration) Option {
	return func(p *Publisher) { p.total = fn }
}

// WithBuffer sets the capacity of the snapshot channel. Default is 8.
func WithBuffer(n int) Option {
	return func(p *Publisher) { p.out = make(chan Snapshot, n) }
}

// New constructs a Publisher over src. Call [Publisher.Run] to start it.
func New(src Source, opts ...Option) *Publisher {
	p := &Publisher{
		src:      src,
		interval: defaultInterval,
		minFrac:  defaultMinDeltaFraction,
		out:      make(chan Snapshot, defaultSnapshotBuf),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Snapshots returns the channel snapshots are published on. Slow consumers
// lose snapshots rather than stalling the publisher.
func (p *Publisher) Snapshots() <-chan Snapshot { return p.out }

// Run samples until ctx is cancelled. It closes the snapshot channel on
// return.
func (p *Publisher) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	defer close(p.out)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.tick()
		}
	}
}

// tick samples the source once and publishes when the snapshot differs
// visibly from the previous one.
func (p *Publisher) tick() {
	snap := p.sample()
	if p.hasLast && p.suppress(snap) {
		return
	}
	p.last, p.hasLast = snap, true
	select {
	case p.out <- snap:
	default:
	}
}

func (p *Publisher) sample() Snapshot {
	st := p.src.Status()
	snap := Snapshot{
		Position:   p.src.Clock().Position(),
		SegmentIdx: -1,
		Phase:      st.Phase,
		Repeat:     st.Repeat,
		MaxRepeats: st.MaxRepeats,
	}
	if p.total != nil {
		snap.Total = p.total()
	}
	if p.model != nil {
		if m := p.model(); m != nil {
			if seg, idx, ok := m.At(int(snap.Position / time.Millisecond)); ok {
				snap.SegmentIdx = idx
				snap.SegmentText = seg.Text()
			}
		}
	}
	return snap
}

// suppress reports whether snap is too close to the previous snapshot to
// be worth publishing.
func (p *Publisher) suppress(snap Snapshot) bool {
	if snap.Phase != p.last.Phase ||
		snap.SegmentIdx != p.last.SegmentIdx ||
		snap.SegmentText != p.last.SegmentText ||
		snap.Repeat != p.last.Repeat ||
		snap.MaxRepeats != p.last.MaxRepeats ||
		snap.Total != p.last.Total {
		return false
	}
	delta := snap.Position - p.last.Position
	if delta < 0 {
		delta = -delta
	}
	min := fallbackMinDelta
	if snap.Total > 0 {
		min = time.Duration(float64(snap.Total) * p.minFrac)
	}
	return delta < min
}
