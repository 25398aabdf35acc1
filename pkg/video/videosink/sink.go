package videosink

import (
	"errors"
	"sync"

	"github.com/tauraamui/edgeview/pkg/log"
	"github.com/tauraamui/edgeview/pkg/video/videoframe"
)

// Sink receives each processed frame for presentation. Present must not
// block for longer than one frame interval. The frame is only valid for the
// duration of the call, a sink which keeps pixels must copy them.
type Sink interface {
	Present(*videoframe.Frame)
}

// Func adapts a plain function into a Sink.
type Func func(*videoframe.Frame)

func (fn Func) Present(f *videoframe.Frame) { fn(f) }

// Discard drops every frame.
var Discard Sink = Func(func(*videoframe.Frame) {})

// LatestFrameSink holds a copy of only the newest presented frame.
// Presenting never blocks and never keeps a pool buffer, the pixels are
// copied into at most three buffers owned by the sink and reused.
type LatestFrameSink struct {
	mu        sync.Mutex
	latest    *videoframe.Frame
	taken     []byte
	spare     [][]byte
	presented uint64
	replaced  uint64
}

func NewLatestFrameSink() *LatestFrameSink {
	return &LatestFrameSink{}
}

func (s *LatestFrameSink) Present(f *videoframe.Frame) {
	s.mu.Lock()
	defer s.mu.Unlock()

	dst := s.popSpare()
	copied, err := f.Detach(dst)
	if err != nil {
		s.pushSpare(dst)
		if !errors.Is(err, videoframe.ErrStaleBuffer) {
			log.Error("Unable to copy frame [%d] for display: %v", f.Seq(), err)
		}
		return
	}

	if s.latest != nil {
		s.pushSpare(s.latest.Data())
		s.replaced++
	}
	s.latest = copied
	s.presented++
}

// Take hands the latest frame to the caller. Its pixels stay valid until
// the next call to Take. It returns nil when no new frame has arrived.
func (s *LatestFrameSink) Take() *videoframe.Frame {
	s.mu.Lock()
	defer s.mu.Unlock()

	f := s.latest
	if f == nil {
		return nil
	}
	s.latest = nil
	s.pushSpare(s.taken)
	s.taken = f.Data()
	return f
}

// Reset drops any frame still waiting to be taken.
func (s *LatestFrameSink) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.latest != nil {
		s.pushSpare(s.latest.Data())
		s.latest = nil
	}
}

// Counts returns how many frames were presented and how many of those
// were replaced before being taken.
func (s *LatestFrameSink) Counts() (presented, replaced uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.presented, s.replaced
}

func (s *LatestFrameSink) popSpare() []byte {
	n := len(s.spare)
	if n == 0 {
		return nil
	}
	b := s.spare[n-1]
	s.spare = s.spare[:n-1]
	return b
}

func (s *LatestFrameSink) pushSpare(b []byte) {
	if cap(b) > 0 {
		s.spare = append(s.spare, b[:0])
	}
}
