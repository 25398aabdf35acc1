package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/rpc"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"github.com/tauraamui/edgeview/pkg/api/auth"
	"github.com/tauraamui/edgeview/pkg/database/models"
	"github.com/tauraamui/edgeview/pkg/edgeview/stats"
	"github.com/tauraamui/edgeview/pkg/log"
)

const (
	testSecret   = "testsecret"
	testPassword = "letmein"
)

type testController struct {
	mu         sync.Mutex
	snapshot   stats.Snapshot
	resets     int
	enabled    bool
	historyErr error
	limits     []int
}

func (c *testController) Stats() stats.Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshot
}

func (c *testController) ResetStats() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resets++
}

func (c *testController) SetTransformEnabled(enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.enabled = enabled
}

func (c *testController) TransformEnabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.enabled
}

func (c *testController) History(limit int) ([]models.FPSWindow, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.limits = append(c.limits, limit)
	if c.historyErr != nil {
		return nil, c.historyErr
	}
	return []models.FPSWindow{{Device: "front", FPS: 29}}, nil
}

type APITestSuite struct {
	suite.Suite
	interrupt    chan os.Signal
	controller   *testController
	server       *ControlServer
	client       *rpc.Client
	passwordHash string
	restoreLog   func()
}

func (suite *APITestSuite) SetupSuite() {
	suite.restoreLog = log.Silence()
	hash, err := auth.HashPassword(testPassword)
	require.NoError(suite.T(), err)
	suite.passwordHash = hash
}

func (suite *APITestSuite) TearDownSuite() {
	suite.restoreLog()
}

func (suite *APITestSuite) SetupTest() {
	suite.interrupt = make(chan os.Signal, 1)
	suite.controller = &testController{
		snapshot: stats.Snapshot{FPS: 30, Completed: 300, Resolution: "640x480"},
		enabled:  true,
	}

	server, err := New(suite.interrupt, suite.controller, Options{
		RPCListenAddress: "127.0.0.1:0",
		SigningSecret:    testSecret,
		PasswordHash:     suite.passwordHash,
		MetricsHandler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, "edgeview_frames_processed_total 300")
		}),
	})
	require.NoError(suite.T(), err)
	server.shutdownDelay = 0
	require.NoError(suite.T(), StartRPC(server))
	suite.server = server

	client, err := rpc.DialHTTP("tcp", Addr(server).String())
	require.NoError(suite.T(), err)
	suite.client = client
}

func (suite *APITestSuite) TearDownTest() {
	suite.client.Close()
	require.NoError(suite.T(), ShutdownRPC(suite.server))
}

func (suite *APITestSuite) authenticate() string {
	var token string
	require.NoError(suite.T(), suite.client.Call("ControlServer.Authenticate", testPassword, &token))
	require.NotEmpty(suite.T(), token)
	return token
}

func (suite *APITestSuite) TestNewRequiresSecretAndHash() {
	_, err := New(suite.interrupt, suite.controller, Options{SigningSecret: testSecret})
	assert.EqualError(suite.T(), err, "api requires a signing secret and password hash, try running the setup")
}

func (suite *APITestSuite) TestAuthenticateRejectsWrongPassword() {
	var token string
	err := suite.client.Call("ControlServer.Authenticate", "wrong", &token)
	require.Error(suite.T(), err)
	assert.Equal(suite.T(), auth.ErrWrongPassword.Error(), err.Error())
	assert.Empty(suite.T(), token)
}

func (suite *APITestSuite) TestStatsRequiresSession() {
	var snapshot stats.Snapshot
	err := suite.client.Call("ControlServer.Stats", &Session{}, &snapshot)
	assert.EqualError(suite.T(), err, "user must be authenticated")

	err = suite.client.Call("ControlServer.Stats", &Session{Token: "validtoken"}, &snapshot)
	require.Error(suite.T(), err)
	assert.True(suite.T(), strings.HasPrefix(err.Error(), "unable to validate token"))
}

func (suite *APITestSuite) TestStatsReturnsSnapshot() {
	token := suite.authenticate()

	var snapshot stats.Snapshot
	require.NoError(suite.T(), suite.client.Call("ControlServer.Stats", &Session{Token: token}, &snapshot))
	assert.Equal(suite.T(), 30.0, snapshot.FPS)
	assert.Equal(suite.T(), uint64(300), snapshot.Completed)
	assert.Equal(suite.T(), "640x480", snapshot.Resolution)
}

func (suite *APITestSuite) TestResetStats() {
	token := suite.authenticate()

	var ok bool
	require.NoError(suite.T(), suite.client.Call("ControlServer.ResetStats", &Session{Token: token}, &ok))
	assert.True(suite.T(), ok)
	assert.Equal(suite.T(), 1, suite.controller.resets)
}

func (suite *APITestSuite) TestSetTransformEnabled() {
	token := suite.authenticate()

	enabled := true
	require.NoError(suite.T(), suite.client.Call("ControlServer.SetTransformEnabled", &Session{Token: token, Enabled: false}, &enabled))
	assert.False(suite.T(), enabled)
	assert.False(suite.T(), suite.controller.TransformEnabled())
}

func (suite *APITestSuite) TestHistoryDefaultsLimit() {
	token := suite.authenticate()

	var windows []models.FPSWindow
	require.NoError(suite.T(), suite.client.Call("ControlServer.History", &Session{Token: token}, &windows))
	require.Len(suite.T(), windows, 1)
	assert.Equal(suite.T(), "front", windows[0].Device)

	require.NoError(suite.T(), suite.client.Call("ControlServer.History", &Session{Token: token, Limit: 5}, &windows))
	assert.Equal(suite.T(), []int{60, 5}, suite.controller.limits)
}

func (suite *APITestSuite) TestHistoryReturnsStoreError() {
	token := suite.authenticate()
	suite.controller.historyErr = errors.New("history is not being recorded")

	var windows []models.FPSWindow
	err := suite.client.Call("ControlServer.History", &Session{Token: token}, &windows)
	assert.EqualError(suite.T(), err, "history is not being recorded")
}

func (suite *APITestSuite) TestShutdownSignalsInterrupt() {
	token := suite.authenticate()

	var ok bool
	require.NoError(suite.T(), suite.client.Call("ControlServer.Shutdown", &Session{Token: token}, &ok))
	assert.True(suite.T(), ok)

	select {
	case sig := <-suite.interrupt:
		assert.Equal(suite.T(), SIGREMOTE, sig)
		assert.Equal(suite.T(), "remote-shutdown", sig.String())
	case <-time.After(3 * time.Second):
		suite.T().Fatal("shutdown signal never sent")
	}
}

func (suite *APITestSuite) TestServesMetrics() {
	resp, err := http.Get("http://" + Addr(suite.server).String() + "/metrics")
	require.NoError(suite.T(), err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), "edgeview_frames_processed_total 300", string(body))
}

func TestAPITestSuite(t *testing.T) {
	suite.Run(t, &APITestSuite{})
}
