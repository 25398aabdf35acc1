package process

import (
	"sync"

	"github.com/tauraamui/edgeview/pkg/video/videoframe"
)

// Slot is the single frame mailbox between the capture context and the
// processing worker. A new frame always replaces one that has not been
// started yet, so the worker only ever picks up the newest frame.
type Slot struct {
	mu       sync.Mutex
	cond     *sync.Cond
	frame    *videoframe.Frame
	closed   bool
	replaced uint64
}

func NewSlot() *Slot {
	s := &Slot{}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// Put installs f and wakes the worker. It never blocks beyond the swap.
// The displaced, never started frame is handed back for the caller to
// release. On a closed slot f itself comes back with ok false.
func (s *Slot) Put(f *videoframe.Frame) (displaced *videoframe.Frame, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return f, false
	}

	displaced = s.frame
	if displaced != nil {
		s.replaced++
	}
	s.frame = f
	s.cond.Signal()
	return displaced, true
}

// Take blocks until a frame is available and empties the slot. It
// returns nil once the slot is closed.
func (s *Slot) Take() *videoframe.Frame {
	s.mu.Lock()
	defer s.mu.Unlock()

	for s.frame == nil && !s.closed {
		s.cond.Wait()
	}

	if s.closed {
		return nil
	}

	f := s.frame
	s.frame = nil
	return f
}

// Close wakes a waiting worker and hands back any frame still pending.
// Closing twice is harmless.
func (s *Slot) Close() *videoframe.Frame {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	f := s.frame
	s.frame = nil
	s.cond.Broadcast()
	return f
}

func (s *Slot) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frame != nil
}

func (s *Slot) Replaced() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.replaced
}
