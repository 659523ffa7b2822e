package follow

import (
	"sync"
	"time"
)

// RequestKind identifies a navigation command.
type RequestKind int

const (
	KindPrev RequestKind = iota
	KindNext
	KindRepeat
	KindJump
)

func (k RequestKind) String() string {
	switch k {
	case KindPrev:
		return "prev"
	case KindNext:
		return "next"
	case KindRepeat:
		return "repeat"
	case KindJump:
		return "jump"
	}
	return "unknown"
}

// SwitchRequest is one user navigation command. Target is only meaningful
// for KindJump.
type SwitchRequest struct {
	Kind   RequestKind
	Target int

	at time.Time
}

// Move is the coalesced outcome of draining the queue.
type Move struct {
	// Jump selects an absolute segment; Target holds the index.
	Jump   bool
	Target int

	// Delta is the net relative movement when Jump is false.
	Delta int

	// Repeat replays the current segment when no movement was requested.
	Repeat bool
}

const (
	defaultQueueLimit    = 16
	defaultQueueDebounce = 500 * time.Millisecond
)

// SwitchQueue is the bounded navigation queue between the UI and the
// engine. Producers push from any goroutine; only the engine drains, and
// coalescing happens at drain time: consecutive prev/next collapse into
// their net movement, repeat is a self-transition, jump is absolute.
//
// A same-kind debounce rejects chord-taps: a request whose kind matches
// the previously accepted one within the debounce window is dropped
// (except jumps to a different segment).
type SwitchQueue struct {
	mu       sync.Mutex
	items    []SwitchRequest
	limit    int
	debounce time.Duration
	last     SwitchRequest
	hasLast  bool

	now func() time.Time
}

// QueueOption is a functional option for configuring a SwitchQueue.
type QueueOption func(*SwitchQueue)

// WithQueueLimit caps the number of buffered requests. Default 16.
func WithQueueLimit(n int) QueueOption {
	return func(q *SwitchQueue) { q.limit = n }
}

// WithQueueDebounce sets the same-kind rejection window. Default 500 ms.
func WithQueueDebounce(d time.Duration) QueueOption {
	return func(q *SwitchQueue) { q.debounce = d }
}

// NewSwitchQueue returns an empty queue.
func NewSwitchQueue(opts ...QueueOption) *SwitchQueue {
	q := &SwitchQueue{
		limit:    defaultQueueLimit,
		debounce: defaultQueueDebounce,
		now:      time.Now,
	}
	for _, o := range opts {
		o(q)
	}
	return q
}

// SetNowFunc replaces the time source. Intended for tests.
func (q *SwitchQueue) SetNowFunc(now func() time.Time) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.now = now
}

// Push enqueues req. It reports false when the request was dropped by the
// debounce window or by the queue bound.
func (q *SwitchQueue) Push(req SwitchRequest) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	req.at = q.now()
	if q.hasLast && req.Kind == q.last.Kind && req.at.Sub(q.last.at) < q.debounce {
		if req.Kind != KindJump || req.Target == q.last.Target {
			return false
		}
	}
	if len(q.items) >= q.limit {
		return false
	}
	q.items = append(q.items, req)
	q.last = req
	q.hasLast = true
	return true
}

// Drain empties the queue and coalesces it into a single Move. moved
// reports whether playback or recording was in progress while the requests
// arrived; in that case prev/next beyond the first are dropped so a chord
// of taps cannot overshoot. The second return is false when the queue was
// empty.
func (q *SwitchQueue) Drain(moved bool) (Move, bool) {
	q.mu.Lock()
	items := q.items
	q.items = nil
	q.mu.Unlock()

	if len(items) == 0 {
		return Move{}, false
	}

	var (
		m         Move
		sawRel    bool
		relTaken  int
		sawRepeat bool
	)
	for _, req := range items {
		switch req.Kind {
		case KindJump:
			m.Jump = true
			m.Target = req.Target
			m.Delta = 0
			relTaken = 0
		case KindPrev, KindNext:
			sawRel = true
			relTaken++
			if moved && relTaken > 1 {
				continue
			}
			if req.Kind == KindPrev {
				m.Delta--
			} else {
				m.Delta++
			}
		case KindRepeat:
			sawRepeat = true
		}
	}
	if !m.Jump && m.Delta == 0 && !sawRel && sawRepeat {
		m.Repeat = true
	}
	return m, true
}

// Clear drops all buffered requests and the debounce memory.
func (q *SwitchQueue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = nil
	q.hasLast = false
}

// Len returns the number of buffered requests.
func (q *SwitchQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
