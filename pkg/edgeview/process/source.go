package process

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/tauraamui/edgeview/pkg/edgeview/stats"
	"github.com/tauraamui/edgeview/pkg/log"
	"github.com/tauraamui/edgeview/pkg/video/videobackend"
	"github.com/tauraamui/edgeview/pkg/video/videoframe"
)

// Submitter is where the source hands acquired frames.
type Submitter interface {
	Submit(*videoframe.Frame)
	TransformEnabled() bool
}

type SourceSettings struct {
	Title      string
	Pool       *videoframe.Pool
	Pipeline   Submitter
	Stats      *stats.Tracker
	Dimensions videoframe.Dimensions
	Format     videoframe.PixelFormat
	// InboxSize bounds how many raw images may wait for the capture
	// context. The oldest waiting image is dropped when it is full.
	InboxSize int
}

// Source turns raw device images into pooled frames. Deliver may be
// called from any goroutine and never blocks. Frames are built one at a
// time on the source's own capture goroutine, in arrival order.
type Source struct {
	title    string
	pool     *videoframe.Pool
	pipeline Submitter
	stats    *stats.Tracker
	dims     videoframe.Dimensions
	format   videoframe.PixelFormat

	mu     sync.RWMutex
	closed bool
	inbox  chan videobackend.RawFrame

	nextSeq   atomic.Uint64
	acquired  atomic.Uint64
	exhausted atomic.Uint64
	rejected  atomic.Uint64
	proc      Process
}

func NewSource(settings SourceSettings) *Source {
	if settings.InboxSize <= 0 {
		settings.InboxSize = 1
	}
	s := &Source{
		title:    settings.Title,
		pool:     settings.Pool,
		pipeline: settings.Pipeline,
		stats:    settings.Stats,
		dims:     settings.Dimensions,
		format:   settings.Format,
		inbox:    make(chan videobackend.RawFrame, settings.InboxSize),
	}
	if s.stats == nil {
		s.stats = stats.NewTracker(stats.DefaultWindow, videoframe.Now())
	}
	s.proc = New(Settings{
		WaitForShutdownMsg: fmt.Sprintf("Stopping frame capture for [%s]...", s.title),
		Process:            s.run,
	})
	return s
}

// Deliver queues a raw image for the capture goroutine. It is the
// callback a device repeats into.
func (s *Source) Deliver(raw videobackend.RawFrame) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		raw.Done()
		return
	}

	select {
	case s.inbox <- raw:
		return
	default:
	}

	select {
	case old := <-s.inbox:
		old.Done()
		s.stats.RecordDrop(stats.TransientDrop)
	default:
	}

	select {
	case s.inbox <- raw:
	default:
		raw.Done()
		s.stats.RecordDrop(stats.TransientDrop)
	}
}

// OnFrameReady copies one raw image into a pooled buffer and submits it.
// Images that do not match the configured geometry are rejected. When no
// buffer can be had the image is dropped, nothing waits.
func (s *Source) OnFrameReady(raw videobackend.RawFrame) {
	defer raw.Done()

	if raw.Dimensions != s.dims || raw.Format != s.format || len(raw.Data) < s.format.BufferSize(s.dims) {
		s.rejected.Add(1)
		s.stats.RecordDrop(stats.TransientDrop)
		log.Debug(
			"Rejecting %s %s image from [%s], expected %s %s",
			raw.Dimensions, raw.Format, s.title, s.dims, s.format,
		)
		return
	}

	buf, err := s.pool.Acquire()
	if err != nil {
		if errors.Is(err, videoframe.ErrPoolExhausted) {
			s.exhausted.Add(1)
			s.stats.RecordDrop(stats.PoolExhaustion)
			log.Debug("Dropping image from [%s]: %v", s.title, err)
			return
		}
		log.Error("Unable to acquire frame buffer for [%s]: %v", s.title, err)
		return
	}

	copy(buf.Bytes(), raw.Data)
	seq := s.nextSeq.Add(1) - 1
	s.acquired.Add(1)
	s.pipeline.Submit(videoframe.New(buf, s.dims, s.format, seq, videoframe.Now(), s.pipeline.TransformEnabled()))
}

func (s *Source) Setup() Process { return s }
func (s *Source) Start()         { s.proc.Start() }

// Stop refuses further images, then stops the capture goroutine. Images
// still waiting in the inbox are handed back to the device.
func (s *Source) Stop() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.proc.Stop()
}

// Wait blocks until the capture goroutine is gone, then hands back any
// image left waiting.
func (s *Source) Wait() {
	s.proc.Wait()
	s.drainInbox()
}

func (s *Source) Acquired() uint64  { return s.acquired.Load() }
func (s *Source) Exhausted() uint64 { return s.exhausted.Load() }
func (s *Source) Rejected() uint64  { return s.rejected.Load() }

func (s *Source) run(ctx context.Context) []chan interface{} {
	stopping := make(chan interface{})
	go func() {
		defer close(stopping)
		for {
			select {
			case <-ctx.Done():
				s.drainInbox()
				return
			case raw := <-s.inbox:
				if ctx.Err() != nil {
					raw.Done()
					continue
				}
				s.OnFrameReady(raw)
			}
		}
	}()
	return []chan interface{}{stopping}
}

func (s *Source) drainInbox() {
	for {
		select {
		case raw := <-s.inbox:
			raw.Done()
		default:
			return
		}
	}
}
