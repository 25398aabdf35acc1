package videoframe_test

import (
	"errors"
	"sync"
	"testing"

	"github.com/matryer/is"
	"github.com/tauraamui/edgeview/pkg/video/videoframe"
)

func TestNewPoolRejectsZeroCapacity(t *testing.T) {
	is := is.New(t)
	pool, err := videoframe.NewPool(0, 16)
	is.True(err != nil)
	is.True(pool == nil)
}

func TestPoolAcquireHandsOutDistinctBuffers(t *testing.T) {
	is := is.New(t)
	pool, err := videoframe.NewPool(2, 16)
	is.NoErr(err)

	a, err := pool.Acquire()
	is.NoErr(err)
	b, err := pool.Acquire()
	is.NoErr(err)

	is.True(a.Handle() != b.Handle())
	is.Equal(len(a.Bytes()), 16)
	is.Equal(pool.InUse(), 2)
}

func TestPoolAcquireFailsFastWhenNothingReclaimable(t *testing.T) {
	is := is.New(t)
	pool, err := videoframe.NewPool(2, 16)
	is.NoErr(err)

	_, err = pool.Acquire()
	is.NoErr(err)
	_, err = pool.Acquire()
	is.NoErr(err)

	buf, err := pool.Acquire()
	is.True(buf == nil)
	is.True(errors.Is(err, videoframe.ErrPoolExhausted))
	is.Equal(pool.Stats().Exhausted, uint64(1))
	is.Equal(pool.InUse(), 2)
}

func TestPoolAcquireReclaimsOldestPendingBuffer(t *testing.T) {
	is := is.New(t)
	pool, err := videoframe.NewPool(2, 16)
	is.NoErr(err)

	dims := videoframe.Dimensions{W: 4, H: 4}
	first, err := pool.Acquire()
	is.NoErr(err)
	second, err := pool.Acquire()
	is.NoErr(err)

	older := videoframe.New(first, dims, videoframe.Gray8, 0, 0, false)
	newer := videoframe.New(second, dims, videoframe.Gray8, 1, 0, false)
	older.MarkPending()
	newer.MarkPending()

	third, err := pool.Acquire()
	is.NoErr(err)
	is.Equal(third.Handle(), first.Handle()) // oldest pending buffer is taken
	is.Equal(pool.Stats().Reclaimed, uint64(1))
	is.Equal(pool.InUse(), 2)

	is.True(!older.Claim()) // reclaimed frame can no longer be processed
	is.True(errors.Is(older.Release(), videoframe.ErrStaleBuffer))
	is.True(newer.Claim())
}

func TestPoolNeverReclaimsClaimedOrRetainedBuffers(t *testing.T) {
	is := is.New(t)
	pool, err := videoframe.NewPool(2, 16)
	is.NoErr(err)

	dims := videoframe.Dimensions{W: 4, H: 4}
	a, _ := pool.Acquire()
	b, _ := pool.Acquire()

	inTransform := videoframe.New(a, dims, videoframe.Gray8, 0, 0, false)
	inTransform.MarkPending()
	is.True(inTransform.Claim())

	displayed := videoframe.New(b, dims, videoframe.Gray8, 1, 0, false)
	displayed.MarkPending()
	is.NoErr(displayed.Retain())

	_, err = pool.Acquire()
	is.True(errors.Is(err, videoframe.ErrPoolExhausted))
}

func TestPoolDoubleReleaseIsReported(t *testing.T) {
	is := is.New(t)
	pool, err := videoframe.NewPool(1, 16)
	is.NoErr(err)

	buf, err := pool.Acquire()
	is.NoErr(err)
	is.NoErr(buf.Release())
	is.True(errors.Is(buf.Release(), videoframe.ErrDoubleRelease))
	is.Equal(pool.Stats().DoubleReleases, uint64(1))
	is.Equal(pool.InUse(), 0)
}

func TestPoolRetainKeepsBufferInUseUntilLastRelease(t *testing.T) {
	is := is.New(t)
	pool, err := videoframe.NewPool(1, 16)
	is.NoErr(err)

	buf, err := pool.Acquire()
	is.NoErr(err)
	is.NoErr(buf.Retain())

	is.NoErr(buf.Release())
	is.Equal(pool.InUse(), 1)
	is.NoErr(buf.Release())
	is.Equal(pool.InUse(), 0)
}

func TestPoolDrainFreesEverythingAndInvalidatesHolders(t *testing.T) {
	is := is.New(t)
	pool, err := videoframe.NewPool(3, 16)
	is.NoErr(err)

	a, _ := pool.Acquire()
	b, _ := pool.Acquire()
	is.NoErr(b.Retain())

	is.Equal(pool.Drain(), 2)
	is.Equal(pool.InUse(), 0)
	is.True(errors.Is(a.Release(), videoframe.ErrStaleBuffer))
	is.True(errors.Is(b.Release(), videoframe.ErrStaleBuffer))
}

func TestPoolInUseNeverExceedsCapacityUnderContention(t *testing.T) {
	is := is.New(t)
	const capacity = 2
	pool, err := videoframe.NewPool(capacity, 8)
	is.NoErr(err)

	wg := sync.WaitGroup{}
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				buf, err := pool.Acquire()
				if err != nil {
					continue
				}
				buf.Release() //nolint
			}
		}()
	}
	wg.Wait()

	is.True(pool.MaxInUse() <= capacity)
	is.Equal(pool.InUse(), 0)
}
