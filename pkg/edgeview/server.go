package edgeview

import (
	"context"
	"math"
	"os"
	"sync"
	"time"

	"github.com/tauraamui/edgeview/pkg/api"
	"github.com/tauraamui/edgeview/pkg/configdef"
	"github.com/tauraamui/edgeview/pkg/database"
	"github.com/tauraamui/edgeview/pkg/database/dbconn"
	"github.com/tauraamui/edgeview/pkg/database/models"
	"github.com/tauraamui/edgeview/pkg/database/repos"
	"github.com/tauraamui/edgeview/pkg/edgeview/stats"
	"github.com/tauraamui/edgeview/pkg/log"
	"github.com/tauraamui/edgeview/pkg/metrics"
	"github.com/tauraamui/edgeview/pkg/video/transform"
	_ "github.com/tauraamui/edgeview/pkg/video/transform/canny"
	"github.com/tauraamui/edgeview/pkg/video/videobackend"
	"github.com/tauraamui/edgeview/pkg/video/videoframe"
	"github.com/tauraamui/edgeview/pkg/video/videosink"
	"github.com/tauraamui/xerror"
)

// pruneEvery is how many recorded windows pass between history prunes.
const pruneEvery = 3600

var ErrHistoryDisabled = xerror.New("stats history is not being persisted")

var connectDB = database.Connect
var timeNow = time.Now

// Server wires one capture session to its observers and the control api
// from the resolved configuration.
type Server struct {
	config    configdef.Values
	backend   videobackend.Backend
	interrupt chan os.Signal
	metrics   *metrics.Metrics
	sink      *videosink.LatestFrameSink

	mu           sync.Mutex
	session      *Session
	db           dbconn.GormWrapper
	windows      *repos.WindowRepository
	api          *api.ControlServer
	observers    sync.WaitGroup
	stopWatch    chan struct{}
	shutdownOnce sync.Once
	shutdownDone chan interface{}
}

// NewServer resolves the configuration. A nil backend is picked from the
// configured device backend name.
func NewServer(cr configdef.Resolver, backend videobackend.Backend) (*Server, error) {
	config, err := cr.Resolve()
	if err != nil {
		return nil, err
	}

	if backend == nil {
		backend = videobackend.Resolve(config.Device.Backend)
	}

	return &Server{
		config:       config,
		backend:      backend,
		metrics:      metrics.New(),
		sink:         videosink.NewLatestFrameSink(),
		shutdownDone: make(chan interface{}),
	}, nil
}

// NotifyOnRemoteShutdown has api shutdown requests delivered on interrupt.
func (s *Server) NotifyOnRemoteShutdown(interrupt chan os.Signal) {
	s.interrupt = interrupt
}

func (s *Server) Sink() *videosink.LatestFrameSink { return s.sink }

func (s *Server) Metrics() *metrics.Metrics { return s.metrics }

func (s *Server) Session() *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session
}

// Run builds the session and its observers, serves the api if enabled and
// starts streaming. Shutdown must be called whatever Run returns.
func (s *Server) Run(ctx context.Context) error {
	session, err := s.newSession()
	if err != nil {
		return err
	}

	if s.config.Stats.PersistHistory {
		db, err := connectDB()
		if err != nil {
			return xerror.Errorf("unable to connect to stats history db, try running the setup: %w", err)
		}
		s.mu.Lock()
		s.db = db
		s.windows = &repos.WindowRepository{DB: db}
		s.mu.Unlock()
	}

	s.mu.Lock()
	s.session = session
	s.stopWatch = make(chan struct{})
	s.mu.Unlock()

	s.startObservers(session)
	go s.watchFailures(session, s.stopWatch)

	if s.config.API.Enabled {
		if err := s.startAPI(); err != nil {
			return err
		}
	}

	log.Info("Starting capture session: [%s]...", session.Title())
	if err := session.Start(ctx); err != nil {
		return err
	}
	s.metrics.SetStreaming(session.Title(), session.State() == Streaming)
	return nil
}

func (s *Server) newSession() (*Session, error) {
	dev := s.config.Device
	format, err := videoframe.ParsePixelFormat(dev.PixelFormat)
	if err != nil {
		return nil, err
	}

	pipe := s.config.Pipeline
	tr, err := transform.Resolve(pipe.Transform, transform.Options{
		Threshold: pipe.Threshold,
		Low:       pipe.CannyLow,
		High:      pipe.CannyHigh,
	})
	if err != nil {
		return nil, err
	}

	return NewSession(SessionSettings{
		Device:           s.backend.NewDevice(dev.Title, dev.DeviceID),
		Dimensions:       videoframe.Dimensions{W: dev.Width, H: dev.Height},
		Format:           format,
		PoolCapacity:     dev.PoolCapacity,
		FPS:              dev.FPS,
		InboxSize:        dev.InboxSize,
		Transform:        tr,
		TransformEnabled: pipe.TransformEnabled,
		Sink:             s.sink,
	})
}

func (s *Server) startAPI() error {
	server, err := api.New(s.interrupt, s, api.Options{
		RPCListenAddress: s.config.API.ListenAddress,
		SigningSecret:    s.config.API.Secret,
		PasswordHash:     s.config.API.PasswordHash,
		MetricsHandler:   s.metrics.Handler(),
	})
	if err != nil {
		return err
	}
	if err := api.StartRPC(server); err != nil {
		return xerror.Errorf("unable to start api: %w", err)
	}

	s.mu.Lock()
	s.api = server
	s.mu.Unlock()
	return nil
}

func (s *Server) startObservers(session *Session) {
	tracker := session.Tracker()
	title := session.Title()

	if s.config.Stats.LogFPS {
		s.observe(tracker.Subscribe(), func(snap stats.Snapshot) {
			log.Info("FPS: %d", int(math.Round(snap.FPS)))
		})
	}

	s.observe(tracker.Subscribe(), func(snap stats.Snapshot) {
		s.metrics.Observe(title, snap)
		s.metrics.SetPoolInUse(title, session.Pool().InUse())
		s.metrics.SetStreaming(title, session.State() == Streaming)
	})

	if s.windows != nil {
		recorder := historyRecorder{
			device: title,
			repo:   s.windows,
			maxAge: time.Duration(s.config.Stats.MaxHistoryAgeInDays) * 24 * time.Hour,
		}
		s.observe(tracker.Subscribe(), recorder.record)
	}
}

func (s *Server) observe(ch <-chan stats.Snapshot, fn func(stats.Snapshot)) {
	s.observers.Add(1)
	go func() {
		defer s.observers.Done()
		for snap := range ch {
			fn(snap)
		}
	}()
}

func (s *Server) watchFailures(session *Session, stop chan struct{}) {
	for {
		select {
		case <-stop:
			return
		case err := <-session.Failures():
			log.Error("Capture session lost, not restarting: %v", err)
			s.metrics.SetStreaming(session.Title(), false)
		}
	}
}

type historyRecorder struct {
	device   string
	repo     *repos.WindowRepository
	maxAge   time.Duration
	recorded int
}

func (h *historyRecorder) record(snap stats.Snapshot) {
	now := timeNow()
	window := models.NewFPSWindow(h.device, snap, now)
	if err := h.repo.Create(&window); err != nil {
		log.Error("Unable to record stats window for [%s]: %v", h.device, err)
		return
	}

	if h.recorded%pruneEvery == 0 {
		n, err := h.repo.PruneOlderThan(now.Add(-h.maxAge))
		if err != nil {
			log.Error("Unable to prune stats history: %v", err)
		} else if n > 0 {
			log.Debug("Pruned %d stats windows older than %s", n, h.maxAge)
		}
	}
	h.recorded++
}

func (s *Server) Stats() stats.Snapshot {
	if session := s.Session(); session != nil {
		return session.Stats()
	}
	return stats.Snapshot{}
}

func (s *Server) ResetStats() {
	if session := s.Session(); session != nil {
		log.Info("Resetting stats for [%s]", session.Title())
		session.Tracker().Reset(videoframe.Now())
	}
}

func (s *Server) SetTransformEnabled(enabled bool) {
	if session := s.Session(); session != nil {
		session.SetTransformEnabled(enabled)
	}
}

func (s *Server) TransformEnabled() bool {
	if session := s.Session(); session != nil {
		return session.TransformEnabled()
	}
	return s.config.Pipeline.TransformEnabled
}

func (s *Server) History(limit int) ([]models.FPSWindow, error) {
	s.mu.Lock()
	windows, session := s.windows, s.session
	s.mu.Unlock()
	if windows == nil || session == nil {
		return nil, ErrHistoryDisabled
	}
	return windows.Recent(session.Title(), limit)
}

// Shutdown stops streaming and every observer, then closes the api and
// the history db. The returned channel closes once all of it is done.
func (s *Server) Shutdown() chan interface{} {
	s.shutdownOnce.Do(func() {
		go s.shutdown()
	})
	return s.shutdownDone
}

func (s *Server) shutdown() {
	defer close(s.shutdownDone)

	s.mu.Lock()
	session, stopWatch, apiServer, db := s.session, s.stopWatch, s.api, s.db
	s.mu.Unlock()

	if session != nil {
		log.Warn("Closing capture session: [%s]...", session.Title())
		if stopWatch != nil {
			close(stopWatch)
		}
		session.Stop()
		session.Tracker().Close()
		s.metrics.SetStreaming(session.Title(), false)
		s.metrics.SetPoolInUse(session.Title(), session.Pool().InUse())
	}
	s.observers.Wait()

	if apiServer != nil {
		if err := api.ShutdownRPC(apiServer); err != nil {
			log.Error("Unable to shutdown api: %v", err)
		}
	}

	if db != nil {
		if err := db.Close(); err != nil {
			log.Error("Unable to close stats history db: %v", err)
		}
	}
}
