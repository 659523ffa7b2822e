// Package subtitle implements the bilingual SubRip segment model the
// follow-reading engine practices against.
//
// A subtitle file is parsed into an ordered list of [Segment] values, each an
// interval in milliseconds plus an English and a Chinese text half. The model
// answers "which segment encloses time t" with a binary search and exposes
// clamped neighbour navigation, a mutable query-time offset (so files are
// never rewritten just to shift times), validation, and re-serialisation with
// a timestamped backup of the prior file.
package subtitle

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Segment is one subtitle entry: an interval plus bilingual text.
// Segments are immutable once loaded.
type Segment struct {
	// Index is the 1-based position within the file.
	Index int

	// Start and End are the interval bounds in milliseconds. End > Start.
	Start int
	End   int

	// EN is the English half; CN the Chinese half. Either may be empty,
	// but not both.
	EN string
	CN string
}

// DurationMs returns the segment length in milliseconds.
func (s Segment) DurationMs() int { return s.End - s.Start }

// Text returns the combined display text, English line first.
func (s Segment) Text() string {
	switch {
	case s.EN == "":
		return s.CN
	case s.CN == "":
		return s.EN
	default:
		return s.EN + "\n" + s.CN
	}
}

// Contains reports whether t (in milliseconds) lies within [Start, End].
func (s Segment) Contains(t int) bool { return t >= s.Start && t <= s.End }

// Model is the in-memory ordered segment list for one audio file.
// Queries apply the mutable time offset; the segment list itself never
// changes after construction. All methods are safe for concurrent use.
type Model struct {
	mu       sync.RWMutex
	segments []Segment
	offsetMs int
}

// NewModel builds a Model from segments, sorting them by start time
// (stable, so ties keep input order) and renumbering from 1.
// Returns an error if segments is empty.
func NewModel(segments []Segment) (*Model, error) {
	if len(segments) == 0 {
		return nil, fmt.Errorf("subtitle: model requires at least one segment")
	}
	sorted := make([]Segment, len(segments))
	copy(sorted, segments)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Start < sorted[j].Start })
	for i := range sorted {
		sorted[i].Index = i + 1
	}
	return &Model{segments: sorted}, nil
}

// Len returns the number of segments.
func (m *Model) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.segments)
}

// Segment returns the segment at position idx (0-based). idx is clamped
// to the valid range.
func (m *Model) Segment(idx int) Segment {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.segments[clamp(idx, 0, len(m.segments)-1)]
}

// Segments returns a copy of the segment list.
func (m *Model) Segments() []Segment {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Segment, len(m.segments))
	copy(out, m.segments)
	return out
}

// SetOffset sets the signed offset in milliseconds added to query times.
func (m *Model) SetOffset(ms int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.offsetMs = ms
}

// Offset returns the current query-time offset in milliseconds.
func (m *Model) Offset() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.offsetMs
}

// At returns the segment whose interval contains t+offset (milliseconds)
// and its 0-based position. When overlapping segments both contain the
// effective time, the earliest by start wins. Returns ok=false when no
// segment encloses the time.
func (m *Model) At(t int) (Segment, int, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	eff := t + m.offsetMs
	// First segment with Start > eff; everything before is a candidate.
	hi := sort.Search(len(m.segments), func(i int) bool {
		return m.segments[i].Start > eff
	})

	// Walk left over candidates, keeping the earliest container. Well-formed
	// files match on the first probe; the walk only matters under overlap.
	found := -1
	for i := hi - 1; i >= 0; i-- {
		if m.segments[i].Contains(eff) {
			found = i
		}
	}
	if found < 0 {
		return Segment{}, -1, false
	}
	return m.segments[found], found, true
}

// Neighbor returns the segment delta steps away from idx, clamped to the
// model bounds, together with its 0-based position.
func (m *Model) Neighbor(idx, delta int) (Segment, int) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	i := clamp(idx+delta, 0, len(m.segments)-1)
	return m.segments[i], i
}

// Diagnostic describes one validation finding for a segment.
type Diagnostic struct {
	// SegmentIndex is the 1-based index of the offending segment.
	SegmentIndex int

	// Problem is a one-line description.
	Problem string
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("segment %d: %s", d.SegmentIndex, d.Problem)
}

// Validate checks every segment for a positive interval and non-empty text.
// It returns ok=true when no diagnostics were produced.
func (m *Model) Validate() (bool, []Diagnostic) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var diags []Diagnostic
	for _, s := range m.segments {
		if s.Start < 0 {
			diags = append(diags, Diagnostic{s.Index, fmt.Sprintf("negative start time %dms", s.Start)})
		}
		if s.End <= s.Start {
			diags = append(diags, Diagnostic{s.Index, fmt.Sprintf("end %dms is not after start %dms", s.End, s.Start)})
		}
		if strings.TrimSpace(s.EN) == "" && strings.TrimSpace(s.CN) == "" {
			diags = append(diags, Diagnostic{s.Index, "empty text"})
		}
	}
	return len(diags) == 0, diags
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
