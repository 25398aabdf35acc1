package metrics_test

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tauraamui/edgeview/pkg/edgeview/stats"
	"github.com/tauraamui/edgeview/pkg/metrics"
)

func snapshot(completed, transient, failures uint64, fps float64) stats.Snapshot {
	return stats.Snapshot{
		FPS:               fps,
		Completed:         completed,
		Drops:             map[string]uint64{"transient": transient, "pool_exhaustion": 0, "stale": 0},
		TransformFailures: failures,
		LastProcessing:    4 * time.Millisecond,
	}
}

func TestObserveAddsDeltas(t *testing.T) {
	m := metrics.New()

	m.Observe("front", snapshot(30, 2, 1, 30))
	m.Observe("front", snapshot(45, 5, 1, 15))

	assert.Equal(t, 45.0, testutil.ToFloat64(m.FramesProcessed.WithLabelValues("front")))
	assert.Equal(t, 5.0, testutil.ToFloat64(m.FramesDropped.WithLabelValues("front", "transient")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TransformFailures.WithLabelValues("front")))
	assert.Equal(t, 15.0, testutil.ToFloat64(m.FPS.WithLabelValues("front")))
}

func TestObserveAbsorbsTrackerReset(t *testing.T) {
	m := metrics.New()

	m.Observe("front", snapshot(30, 2, 0, 30))
	m.Observe("front", snapshot(10, 1, 0, 10))

	assert.Equal(t, 40.0, testutil.ToFloat64(m.FramesProcessed.WithLabelValues("front")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.FramesDropped.WithLabelValues("front", "transient")))
}

func TestGaugesAndHandler(t *testing.T) {
	m := metrics.New()
	m.SetPoolInUse("front", 2)
	m.SetStreaming("front", true)
	m.Observe("front", snapshot(1, 0, 0, 1))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.PoolInUse.WithLabelValues("front")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DeviceStreaming.WithLabelValues("front")))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `edgeview_pool_buffers_in_use{device="front"} 2`))
	assert.True(t, strings.Contains(body, "edgeview_processing_seconds_count"))
}
