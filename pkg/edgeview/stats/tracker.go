package stats

import (
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"
)

const DefaultWindow = time.Second

type DropReason int

const (
	// TransientDrop is a frame displaced by a newer one under backpressure.
	TransientDrop DropReason = iota
	// PoolExhaustion is a frame lost because no buffer could be acquired.
	PoolExhaustion
	// StaleFrame is a pending frame whose buffer the pool reclaimed.
	StaleFrame
)

func (r DropReason) String() string {
	switch r {
	case TransientDrop:
		return "transient"
	case PoolExhaustion:
		return "pool_exhaustion"
	case StaleFrame:
		return "stale"
	default:
		return fmt.Sprintf("reason(%d)", int(r))
	}
}

var dropReasons = []DropReason{TransientDrop, PoolExhaustion, StaleFrame}

// Snapshot is a point in time view of the tracker. FPS always comes
// from the most recently closed window.
type Snapshot struct {
	FPS               float64
	Window            int64
	WindowFrames      uint64
	WindowElapsed     time.Duration
	Completed         uint64
	Drops             map[string]uint64
	TransformFailures uint64
	LastProcessing    time.Duration
	Resolution        string
}

func (s Snapshot) TotalDrops() uint64 {
	var n uint64
	for _, v := range s.Drops {
		n += v
	}
	return n
}

// Tracker measures throughput over fixed windows. RecordCompletion is the
// hot path, a counter increment plus one boundary comparison. Whichever
// caller crosses a boundary closes the window, everyone else only counts.
type Tracker struct {
	window     time.Duration
	resolution atomic.Value

	count       atomic.Uint64
	windowStart atomic.Int64
	fps         atomic.Uint64
	windows     atomic.Int64
	lastFrames  atomic.Uint64
	lastElapsed atomic.Int64

	completed      atomic.Uint64
	drops          [3]atomic.Uint64
	failures       atomic.Uint64
	lastProcessing atomic.Int64

	subMu sync.Mutex
	subs  []chan Snapshot
}

// NewTracker opens the first window at start, a monotonic timestamp.
func NewTracker(window time.Duration, start time.Duration) *Tracker {
	if window <= 0 {
		window = DefaultWindow
	}
	t := &Tracker{window: window}
	t.windowStart.Store(int64(start))
	return t
}

func (t *Tracker) SetResolution(r string) { t.resolution.Store(r) }

// RecordCompletion counts one finished frame at monotonic time ts.
func (t *Tracker) RecordCompletion(ts time.Duration) {
	t.completed.Add(1)
	t.count.Add(1)

	start := t.windowStart.Load()
	elapsed := time.Duration(int64(ts) - start)
	if elapsed < t.window {
		return
	}
	if !t.windowStart.CompareAndSwap(start, int64(ts)) {
		return
	}

	frames := t.count.Swap(0)
	ms := elapsed.Milliseconds()
	if ms == 0 {
		ms = 1
	}
	fps := float64(frames) * 1000 / float64(ms)
	t.fps.Store(math.Float64bits(fps))
	t.lastFrames.Store(frames)
	t.lastElapsed.Store(int64(elapsed))
	t.windows.Add(1)

	t.publish(t.Snapshot())
}

func (t *Tracker) RecordDrop(reason DropReason) {
	if int(reason) < 0 || int(reason) >= len(t.drops) {
		return
	}
	t.drops[reason].Add(1)
}

func (t *Tracker) RecordFailure() {
	t.failures.Add(1)
}

func (t *Tracker) RecordProcessingTime(d time.Duration) {
	t.lastProcessing.Store(int64(d))
}

// CurrentFPS is the rate of the last closed window, zero until the
// first window closes.
func (t *Tracker) CurrentFPS() float64 {
	return math.Float64frombits(t.fps.Load())
}

func (t *Tracker) Drops(reason DropReason) uint64 {
	if int(reason) < 0 || int(reason) >= len(t.drops) {
		return 0
	}
	return t.drops[reason].Load()
}

func (t *Tracker) Snapshot() Snapshot {
	drops := make(map[string]uint64, len(dropReasons))
	for _, r := range dropReasons {
		drops[r.String()] = t.drops[r].Load()
	}
	resolution, _ := t.resolution.Load().(string)
	return Snapshot{
		FPS:               t.CurrentFPS(),
		Window:            t.windows.Load(),
		WindowFrames:      t.lastFrames.Load(),
		WindowElapsed:     time.Duration(t.lastElapsed.Load()),
		Completed:         t.completed.Load(),
		Drops:             drops,
		TransformFailures: t.failures.Load(),
		LastProcessing:    time.Duration(t.lastProcessing.Load()),
		Resolution:        resolution,
	}
}

// OpenWindow discards the in-progress window and starts a new one at
// start. Totals and the last closed window are kept.
func (t *Tracker) OpenWindow(start time.Duration) {
	t.count.Store(0)
	t.windowStart.Store(int64(start))
}

// Reset zeroes every counter and opens a fresh window at start.
func (t *Tracker) Reset(start time.Duration) {
	t.count.Store(0)
	t.windowStart.Store(int64(start))
	t.fps.Store(0)
	t.windows.Store(0)
	t.lastFrames.Store(0)
	t.lastElapsed.Store(0)
	t.completed.Store(0)
	for i := range t.drops {
		t.drops[i].Store(0)
	}
	t.failures.Store(0)
	t.lastProcessing.Store(0)
}

// Subscribe returns a channel receiving a snapshot each time a window
// closes. A subscriber that falls behind only ever sees the newest one.
func (t *Tracker) Subscribe() <-chan Snapshot {
	ch := make(chan Snapshot, 1)
	t.subMu.Lock()
	t.subs = append(t.subs, ch)
	t.subMu.Unlock()
	return ch
}

// Close ends every subscription.
func (t *Tracker) Close() {
	t.subMu.Lock()
	defer t.subMu.Unlock()
	for _, ch := range t.subs {
		close(ch)
	}
	t.subs = nil
}

func (t *Tracker) publish(s Snapshot) {
	t.subMu.Lock()
	defer t.subMu.Unlock()
	for _, ch := range t.subs {
		select {
		case ch <- s:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- s:
			default:
			}
		}
	}
}
