package videoframe

import (
	"sync"

	"github.com/tauraamui/xerror"
)

const PoolExhaustion = xerror.Kind("pool_exhaustion")

var (
	ErrPoolExhausted = xerror.NewWithKind(PoolExhaustion, "no free or reclaimable frame buffer")
	ErrDoubleRelease = xerror.New("frame buffer released while already free")
	ErrStaleBuffer   = xerror.New("frame buffer was reclaimed by the pool")
)

type Handle int

type bufferState int

const (
	stateFree bufferState = iota
	stateInUse
)

type entry struct {
	data    []byte
	state   bufferState
	refs    int
	pending bool
	gen     uint64
	stamp   uint64
}

// Pool is a fixed arena of frame buffers indexed by handle. Buffer memory
// is allocated once up front, acquiring never allocates or blocks.
type Pool struct {
	mu       sync.Mutex
	entries  []entry
	bufSize  int
	tick     uint64
	stats    PoolStats
	inUse    int
	maxInUse int
}

type PoolStats struct {
	Acquired       uint64
	Reclaimed      uint64
	Exhausted      uint64
	DoubleReleases uint64
	Drained        uint64
}

// Buffer is a reference to one pool entry. A buffer whose entry has since
// been reclaimed or drained is stale, releasing it is a no-op which
// reports ErrStaleBuffer.
type Buffer struct {
	pool   *Pool
	handle Handle
	gen    uint64
	data   []byte
}

func (b *Buffer) Handle() Handle { return b.handle }
func (b *Buffer) Bytes() []byte  { return b.data }
func (b *Buffer) Release() error { return b.pool.release(b) }
func (b *Buffer) Retain() error  { return b.pool.retain(b) }

func NewPool(capacity, bufferSize int) (*Pool, error) {
	if capacity < 1 {
		return nil, xerror.Errorf("pool capacity must be at least 1, got %d", capacity)
	}
	if bufferSize < 1 {
		return nil, xerror.Errorf("pool buffer size must be at least 1 byte, got %d", bufferSize)
	}

	arena := make([]byte, capacity*bufferSize)
	entries := make([]entry, capacity)
	for i := range entries {
		entries[i].data = arena[i*bufferSize : (i+1)*bufferSize : (i+1)*bufferSize]
	}
	return &Pool{entries: entries, bufSize: bufferSize}, nil
}

func (p *Pool) Capacity() int   { return len(p.entries) }
func (p *Pool) BufferSize() int { return p.bufSize }

// Acquire hands out a FREE buffer. When every buffer is IN_USE it reclaims
// the oldest buffer still pending in the pipeline slot, buffers being
// transformed or retained by the display are never taken. With nothing
// reclaimable it fails fast with ErrPoolExhausted.
func (p *Pool) Acquire() (*Buffer, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i := range p.entries {
		if p.entries[i].state == stateFree {
			p.inUse++
			if p.inUse > p.maxInUse {
				p.maxInUse = p.inUse
			}
			return p.hand(i), nil
		}
	}

	oldest := -1
	for i := range p.entries {
		e := &p.entries[i]
		if !e.pending || e.refs != 1 {
			continue
		}
		if oldest == -1 || e.stamp < p.entries[oldest].stamp {
			oldest = i
		}
	}

	if oldest == -1 {
		p.stats.Exhausted++
		return nil, ErrPoolExhausted
	}

	p.stats.Reclaimed++
	return p.hand(oldest), nil
}

func (p *Pool) hand(i int) *Buffer {
	p.tick++
	e := &p.entries[i]
	e.state = stateInUse
	e.refs = 1
	e.pending = false
	e.gen++
	e.stamp = p.tick
	p.stats.Acquired++
	return &Buffer{pool: p, handle: Handle(i), gen: e.gen, data: e.data}
}

func (p *Pool) lookup(b *Buffer) (*entry, error) {
	if b == nil || b.pool != p || int(b.handle) < 0 || int(b.handle) >= len(p.entries) {
		return nil, xerror.New("buffer does not belong to this pool")
	}
	e := &p.entries[b.handle]
	if e.gen != b.gen {
		return nil, ErrStaleBuffer
	}
	return e, nil
}

func (p *Pool) release(b *Buffer) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	e, err := p.lookup(b)
	if err != nil {
		return err
	}

	if e.state == stateFree || e.refs == 0 {
		p.stats.DoubleReleases++
		return ErrDoubleRelease
	}

	e.refs--
	if e.refs == 0 {
		e.state = stateFree
		e.pending = false
		p.inUse--
	}
	return nil
}

func (p *Pool) retain(b *Buffer) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	e, err := p.lookup(b)
	if err != nil {
		return err
	}
	if e.state == stateFree {
		return xerror.New("cannot retain a free frame buffer")
	}
	e.refs++
	return nil
}

// read runs fn while b is still the current holder of its entry.
func (p *Pool) read(b *Buffer, fn func()) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	e, err := p.lookup(b)
	if err != nil {
		return err
	}
	if e.state == stateFree {
		return ErrStaleBuffer
	}
	fn()
	return nil
}

func (p *Pool) markPending(b *Buffer) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if e, err := p.lookup(b); err == nil && e.state == stateInUse {
		e.pending = true
	}
}

func (p *Pool) claim(b *Buffer) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	e, err := p.lookup(b)
	if err != nil || e.state == stateFree {
		return false
	}
	e.pending = false
	return true
}

// Drain forces every IN_USE buffer back to FREE and invalidates all
// outstanding references. It returns how many buffers were still held.
func (p *Pool) Drain() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := 0
	for i := range p.entries {
		e := &p.entries[i]
		if e.state != stateInUse {
			continue
		}
		e.state = stateFree
		e.refs = 0
		e.pending = false
		e.gen++
		n++
	}
	p.inUse = 0
	p.stats.Drained += uint64(n)
	return n
}

func (p *Pool) InUse() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.inUse
}

// MaxInUse is the high water mark of simultaneously IN_USE buffers.
func (p *Pool) MaxInUse() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.maxInUse
}

func (p *Pool) Stats() PoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}
