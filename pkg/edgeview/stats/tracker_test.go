package stats_test

import (
	"sync"
	"testing"
	"time"

	"github.com/matryer/is"
	"github.com/tauraamui/edgeview/pkg/edgeview/stats"
)

// at returns the timestamp of the i'th of n completions spread evenly over span.
func at(i, n int, span time.Duration) time.Duration {
	return time.Duration(i) * span / time.Duration(n)
}

func TestTrackerReportsZeroBeforeFirstWindowCloses(t *testing.T) {
	is := is.New(t)
	tracker := stats.NewTracker(time.Second, 0)
	for i := 1; i < 15; i++ {
		tracker.RecordCompletion(at(i, 30, 2*time.Second))
		is.Equal(tracker.CurrentFPS(), float64(0))
	}
}

func TestTrackerThirtyFramesOverTwoSeconds(t *testing.T) {
	is := is.New(t)
	tracker := stats.NewTracker(time.Second, 0)

	var observed []float64
	last := tracker.CurrentFPS()
	for i := 1; i <= 30; i++ {
		tracker.RecordCompletion(at(i, 30, 2*time.Second))
		if fps := tracker.CurrentFPS(); fps != last {
			observed = append(observed, fps)
			last = fps
		}

		switch i {
		case 15, 30:
		default:
			// value only changes on window boundaries
			is.Equal(tracker.Snapshot().Window, int64(i/15))
		}
	}

	is.Equal(len(observed), 1) // both windows read 15, so the value changes once
	is.Equal(tracker.CurrentFPS(), float64(15))
	snap := tracker.Snapshot()
	is.Equal(snap.Window, int64(2))
	is.Equal(snap.WindowFrames, uint64(15))
	is.Equal(snap.Completed, uint64(30))
}

func TestTrackerComputesRateFromElapsedMilliseconds(t *testing.T) {
	is := is.New(t)
	tracker := stats.NewTracker(time.Second, 0)
	for i := 0; i < 9; i++ {
		tracker.RecordCompletion(time.Duration(i) * 100 * time.Millisecond)
	}
	tracker.RecordCompletion(1250 * time.Millisecond)
	is.Equal(tracker.CurrentFPS(), float64(10*1000)/1250)
}

func TestTrackerCountsDropsAndFailures(t *testing.T) {
	is := is.New(t)
	tracker := stats.NewTracker(time.Second, 0)
	tracker.RecordDrop(stats.TransientDrop)
	tracker.RecordDrop(stats.TransientDrop)
	tracker.RecordDrop(stats.PoolExhaustion)
	tracker.RecordFailure()
	tracker.RecordProcessingTime(4 * time.Millisecond)
	tracker.SetResolution("640x480")

	snap := tracker.Snapshot()
	is.Equal(snap.Drops["transient"], uint64(2))
	is.Equal(snap.Drops["pool_exhaustion"], uint64(1))
	is.Equal(snap.TotalDrops(), uint64(3))
	is.Equal(snap.TransformFailures, uint64(1))
	is.Equal(snap.LastProcessing, 4*time.Millisecond)
	is.Equal(snap.Resolution, "640x480")
}

func TestTrackerResetStartsAFreshWindow(t *testing.T) {
	is := is.New(t)
	tracker := stats.NewTracker(time.Second, 0)
	for i := 1; i <= 20; i++ {
		tracker.RecordCompletion(at(i, 20, time.Second))
	}
	is.Equal(tracker.CurrentFPS(), float64(20))

	tracker.Reset(5 * time.Second)
	is.Equal(tracker.CurrentFPS(), float64(0))
	is.Equal(tracker.Snapshot().Completed, uint64(0))

	tracker.RecordCompletion(5*time.Second + 500*time.Millisecond)
	is.Equal(tracker.CurrentFPS(), float64(0))
}

func TestTrackerPublishesClosedWindowsToSubscribers(t *testing.T) {
	is := is.New(t)
	tracker := stats.NewTracker(time.Second, 0)
	sub := tracker.Subscribe()

	for i := 1; i <= 10; i++ {
		tracker.RecordCompletion(at(i, 10, time.Second))
	}

	select {
	case snap := <-sub:
		is.Equal(snap.FPS, float64(10))
		is.Equal(snap.Window, int64(1))
	case <-time.After(3 * time.Second):
		t.Fatal("test timeout 3s limit exceeded")
	}

	tracker.Close()
	_, open := <-sub
	is.True(!open)
}

func TestTrackerConcurrentCompletionsAreAllCounted(t *testing.T) {
	is := is.New(t)
	tracker := stats.NewTracker(time.Hour, 0)

	wg := sync.WaitGroup{}
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 1000; i++ {
				tracker.RecordCompletion(time.Millisecond)
			}
		}()
	}
	wg.Wait()
	is.Equal(tracker.Snapshot().Completed, uint64(4000))
}
