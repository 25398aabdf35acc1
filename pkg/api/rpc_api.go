package api

import (
	"errors"
	"net"
	"net/http"
	"net/rpc"
	"os"
	"sync"
	"time"

	"github.com/tauraamui/edgeview/pkg/api/auth"
	"github.com/tauraamui/edgeview/pkg/database/models"
	"github.com/tauraamui/edgeview/pkg/edgeview/stats"
	"github.com/tauraamui/edgeview/pkg/log"
)

const SIGREMOTE = Signal(0x1)

const subject = "admin"

type Signal int

func (s Signal) Signal() {}

func (s Signal) String() string {
	return "remote-shutdown"
}

// Controller is the part of the daemon the api drives.
type Controller interface {
	Stats() stats.Snapshot
	ResetStats()
	SetTransformEnabled(bool)
	TransformEnabled() bool
	History(limit int) ([]models.FPSWindow, error)
}

type Options struct {
	RPCListenAddress string
	SigningSecret    string
	PasswordHash     string
	MetricsHandler   http.Handler
}

type Session struct {
	Token   string
	Enabled bool
	Limit   int
}

type ControlServer struct {
	interrupt     chan os.Signal
	c             Controller
	httpServer    *http.Server
	rpcListenAddr string
	signingSecret string
	passwordHash  string
	shutdownDelay time.Duration

	mu       sync.Mutex
	listener net.Listener
}

func New(interrupt chan os.Signal, c Controller, opts Options) (*ControlServer, error) {
	if len(opts.SigningSecret) == 0 || len(opts.PasswordHash) == 0 {
		return nil, errors.New("api requires a signing secret and password hash, try running the setup")
	}

	m := &ControlServer{
		interrupt:     interrupt,
		c:             c,
		rpcListenAddr: opts.RPCListenAddress,
		signingSecret: opts.SigningSecret,
		passwordHash:  opts.PasswordHash,
		shutdownDelay: time.Second,
	}

	rpcServer := rpc.NewServer()
	if err := rpcServer.Register(m); err != nil {
		return nil, err
	}

	mux := http.NewServeMux()
	mux.Handle(rpc.DefaultRPCPath, rpcServer)
	if opts.MetricsHandler != nil {
		mux.Handle("/metrics", opts.MetricsHandler)
	}
	m.httpServer = &http.Server{Handler: mux}

	return m, nil
}

func StartRPC(m *ControlServer) error {
	l, err := net.Listen("tcp", m.rpcListenAddr)
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.listener = l
	m.mu.Unlock()

	go func() {
		if err := m.httpServer.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("API server stopped: %v", err)
		}
	}()

	log.Info("Serving API on %s", l.Addr()) //nolint
	return nil
}

func ShutdownRPC(m *ControlServer) error {
	if m != nil && m.httpServer != nil {
		return m.httpServer.Close()
	}
	return errors.New("API server not running")
}

// Addr is the address the api is listening on, nil before StartRPC.
func Addr(m *ControlServer) net.Addr {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listener == nil {
		return nil
	}
	return m.listener.Addr()
}

func (m *ControlServer) Authenticate(password string, resp *string) error {
	if len(password) == 0 {
		return errors.New("cannot authenticate with blank password")
	}

	if err := auth.ComparePassword(m.passwordHash, password); err != nil {
		log.Warn("Rejected API authentication attempt") //nolint
		return err
	}

	token, err := auth.GenToken(m.signingSecret, subject)
	if err != nil {
		return err
	}

	*resp = token
	return nil
}

// Exposed API
func (m *ControlServer) Stats(sess *Session, resp *stats.Snapshot) error {
	if err := m.validateSession(*sess); err != nil {
		return err
	}
	*resp = m.c.Stats()
	return nil
}

func (m *ControlServer) ResetStats(sess *Session, resp *bool) error {
	if err := m.validateSession(*sess); err != nil {
		return err
	}
	m.c.ResetStats()
	*resp = true
	return nil
}

func (m *ControlServer) SetTransformEnabled(sess *Session, resp *bool) error {
	if err := m.validateSession(*sess); err != nil {
		return err
	}

	log.Info("Received remote transform toggle: %t", sess.Enabled) //nolint
	m.c.SetTransformEnabled(sess.Enabled)
	*resp = m.c.TransformEnabled()
	return nil
}

func (m *ControlServer) History(sess *Session, resp *[]models.FPSWindow) error {
	if err := m.validateSession(*sess); err != nil {
		return err
	}

	limit := sess.Limit
	if limit <= 0 {
		limit = 60
	}
	windows, err := m.c.History(limit)
	if err != nil {
		return err
	}
	*resp = windows
	return nil
}

func (m *ControlServer) Shutdown(sess *Session, resp *bool) error {
	if err := m.validateSession(*sess); err != nil {
		return err
	}

	if m.interrupt == nil {
		return errors.New("remote shutdown is not available")
	}

	*resp = true
	log.Warn("Received remote shutdown request...") //nolint
	go func() {
		time.Sleep(m.shutdownDelay)
		m.interrupt <- SIGREMOTE
	}()
	return nil
}

func (m *ControlServer) validateSession(sess Session) error {
	if len(sess.Token) == 0 {
		return errors.New("user must be authenticated")
	}
	if _, err := auth.ValidateToken(m.signingSecret, sess.Token); err != nil {
		return err
	}
	return nil
}
