package edgeview

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/tauraamui/edgeview/pkg/edgeview/process"
	"github.com/tauraamui/edgeview/pkg/edgeview/stats"
	"github.com/tauraamui/edgeview/pkg/log"
	"github.com/tauraamui/edgeview/pkg/video/transform"
	"github.com/tauraamui/edgeview/pkg/video/videobackend"
	"github.com/tauraamui/edgeview/pkg/video/videoframe"
	"github.com/tauraamui/edgeview/pkg/video/videosink"
	"github.com/tauraamui/xerror"
)

const SessionFailure = xerror.Kind("session_failure")

// ErrSessionFailure is matched by every error a session surfaces, the
// cause is wrapped beneath it.
var ErrSessionFailure = xerror.NewWithKind(SessionFailure, "capture session failed")

type State int32

const (
	Closed State = iota
	Opening
	Configuring
	Streaming
	Closing
)

func (s State) String() string {
	switch s {
	case Closed:
		return "CLOSED"
	case Opening:
		return "OPENING"
	case Configuring:
		return "CONFIGURING"
	case Streaming:
		return "STREAMING"
	case Closing:
		return "CLOSING"
	default:
		return fmt.Sprintf("STATE(%d)", int32(s))
	}
}

type SessionSettings struct {
	Device           videobackend.Device
	Dimensions       videoframe.Dimensions
	Format           videoframe.PixelFormat
	PoolCapacity     int
	FPS              int
	InboxSize        int
	Transform        transform.Transform
	TransformEnabled bool
	Sink             videosink.Sink
	Stats            *stats.Tracker
}

// resetter is implemented by sinks holding on to frames between
// presentations.
type resetter interface {
	Reset()
}

// Session drives one capture device through its lifecycle and owns the
// pipeline running while it streams. Start and Stop may be called from
// any goroutine, in any state.
type Session struct {
	device    videobackend.Device
	settings  SessionSettings
	pool      *videoframe.Pool
	tracker   *stats.Tracker
	enabled   atomic.Bool
	state     atomic.Int32
	failures  chan error
	lifecycle sync.Mutex

	mu          sync.Mutex
	cancelStart context.CancelFunc
	pipeline    *process.Pipeline
	source      *process.Source
	watchStop   chan struct{}
	watchDone   chan struct{}
}

func NewSession(settings SessionSettings) (*Session, error) {
	if settings.Device == nil {
		return nil, xerror.New("session needs a capture device")
	}
	if settings.PoolCapacity <= 0 {
		settings.PoolCapacity = 2
	}
	if settings.Sink == nil {
		settings.Sink = videosink.Discard
	}

	pool, err := videoframe.NewPool(settings.PoolCapacity, settings.Format.BufferSize(settings.Dimensions))
	if err != nil {
		return nil, err
	}

	tracker := settings.Stats
	if tracker == nil {
		tracker = stats.NewTracker(stats.DefaultWindow, videoframe.Now())
	}
	tracker.SetResolution(settings.Dimensions.String())

	s := &Session{
		device:   settings.Device,
		settings: settings,
		pool:     pool,
		tracker:  tracker,
		failures: make(chan error, 4),
	}
	s.enabled.Store(settings.TransformEnabled)
	return s, nil
}

func (s *Session) Title() string { return s.device.Title() }

func (s *Session) State() State { return State(s.state.Load()) }

func (s *Session) setState(st State) {
	prev := State(s.state.Swap(int32(st)))
	if prev != st {
		log.Info("Session [%s] %s -> %s", s.Title(), prev, st)
	}
}

// Failures reports sessions lost while streaming, a device disconnect
// for example. Failures from Start are returned from Start instead.
func (s *Session) Failures() <-chan error { return s.failures }

func (s *Session) Stats() stats.Snapshot { return s.tracker.Snapshot() }

func (s *Session) Tracker() *stats.Tracker { return s.tracker }

func (s *Session) Pool() *videoframe.Pool { return s.pool }

func (s *Session) TransformEnabled() bool { return s.enabled.Load() }

// SetTransformEnabled toggles the transform for frames acquired from now
// on. The choice outlives restarts.
func (s *Session) SetTransformEnabled(enabled bool) {
	s.enabled.Store(enabled)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pipeline != nil {
		s.pipeline.SetTransformEnabled(enabled)
	}
}

// Start opens and configures the device, then starts streaming. Calling
// it in any state but CLOSED does nothing. Open and configure honour ctx,
// and a Stop issued meanwhile cancels them.
func (s *Session) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.mu.Lock()
	if !s.state.CompareAndSwap(int32(Closed), int32(Opening)) {
		s.mu.Unlock()
		log.Debug("Session [%s] already %s, ignoring start", s.Title(), s.State())
		return nil
	}
	s.cancelStart = cancel
	s.mu.Unlock()
	log.Info("Session [%s] %s -> %s", s.Title(), Closed, Opening)

	defer func() {
		s.mu.Lock()
		s.cancelStart = nil
		s.mu.Unlock()
	}()

	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	if err := s.device.Open(ctx); err != nil {
		return s.abort("open", err)
	}

	s.setState(Configuring)
	if err := s.device.Configure(ctx, videobackend.Settings{
		Dimensions: s.settings.Dimensions,
		Format:     s.settings.Format,
		MaxImages:  s.settings.PoolCapacity,
		FPS:        s.settings.FPS,
	}); err != nil {
		return s.abort("configure", err)
	}
	if err := ctx.Err(); err != nil {
		return s.abort("configure", err)
	}

	pipeline := process.NewPipeline(process.PipelineSettings{
		Title:            s.Title(),
		Transform:        s.settings.Transform,
		TransformEnabled: s.enabled.Load(),
		Sink:             s.settings.Sink,
		Stats:            s.tracker,
	})
	source := process.NewSource(process.SourceSettings{
		Title:      s.Title(),
		Pool:       s.pool,
		Pipeline:   pipeline,
		Stats:      s.tracker,
		Dimensions: s.settings.Dimensions,
		Format:     s.settings.Format,
		InboxSize:  s.settings.InboxSize,
	})

	s.mu.Lock()
	s.pipeline, s.source = pipeline, source
	s.mu.Unlock()
	// a toggle racing the swap above must still land on the new pipeline
	pipeline.SetTransformEnabled(s.enabled.Load())

	s.tracker.OpenWindow(videoframe.Now())
	pipeline.Setup().Start()
	source.Setup().Start()

	s.setState(Streaming)
	if err := s.device.StartRepeating(source.Deliver); err != nil {
		s.setState(Closing)
		s.teardown()
		s.setState(Closed)
		return xerror.Errorf("%w: unable to start repeating capture on [%s]: %v", ErrSessionFailure, s.Title(), err)
	}

	s.watch()
	return nil
}

func (s *Session) abort(stage string, cause error) error {
	if err := s.device.Close(); err != nil {
		log.Error("Unable to close device [%s]: %v", s.Title(), err)
	}
	s.setState(Closed)
	err := xerror.Errorf("%w: unable to %s device [%s]: %v", ErrSessionFailure, stage, s.Title(), cause)
	log.Error("%v", err)
	return err
}

// Stop drains the pipeline, releases every pool buffer and closes the
// device. It is safe to call repeatedly and from any state.
func (s *Session) Stop() {
	s.mu.Lock()
	cancel := s.cancelStart
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}

	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	if !s.state.CompareAndSwap(int32(Streaming), int32(Closing)) {
		return
	}
	log.Info("Session [%s] %s -> %s", s.Title(), Streaming, Closing)
	s.teardown()
	s.setState(Closed)
}

func (s *Session) teardown() {
	s.unwatch()
	s.device.StopRepeating()

	s.mu.Lock()
	pipeline, source := s.pipeline, s.source
	s.pipeline, s.source = nil, nil
	s.mu.Unlock()

	if source != nil {
		source.Stop()
		source.Wait()
	}
	if pipeline != nil {
		pipeline.Stop()
		pipeline.Wait()
	}
	if r, ok := s.settings.Sink.(resetter); ok {
		r.Reset()
	}
	if n := s.pool.Drain(); n > 0 {
		log.Warn("Reclaimed %d buffers still held after stopping [%s]", n, s.Title())
	}
	if err := s.device.Close(); err != nil {
		log.Error("Unable to close device [%s]: %v", s.Title(), err)
	}
}

func (s *Session) watch() {
	stop, done := make(chan struct{}), make(chan struct{})
	s.mu.Lock()
	s.watchStop, s.watchDone = stop, done
	s.mu.Unlock()

	go func() {
		defer close(done)
		select {
		case <-stop:
		case cause := <-s.device.Disconnected():
			log.Error("Device [%s] disconnected: %v", s.Title(), cause)
			go s.lose(cause)
		}
	}()
}

func (s *Session) unwatch() {
	s.mu.Lock()
	stop, done := s.watchStop, s.watchDone
	s.watchStop, s.watchDone = nil, nil
	s.mu.Unlock()

	if stop != nil {
		close(stop)
		<-done
	}
}

func (s *Session) lose(cause error) {
	s.Stop()
	err := xerror.Errorf("%w: device [%s] disconnected: %v", ErrSessionFailure, s.Title(), cause)
	select {
	case s.failures <- err:
	default:
		log.Warn("Dropping session failure report for [%s]: %v", s.Title(), err)
	}
}
