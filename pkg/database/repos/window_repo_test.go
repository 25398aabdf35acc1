package repos_test

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tauraamui/edgeview/pkg/database"
	"github.com/tauraamui/edgeview/pkg/database/dbconn"
	"github.com/tauraamui/edgeview/pkg/database/models"
	"github.com/tauraamui/edgeview/pkg/database/repos"
	"github.com/tauraamui/edgeview/pkg/edgeview/stats"
)

func TestCreateWindowStoresRecord(t *testing.T) {
	mock := dbconn.Mock()
	repo := repos.WindowRepository{DB: mock}

	window := models.NewFPSWindow("front", stats.Snapshot{
		FPS:           29.5,
		Window:        3,
		WindowFrames:  30,
		WindowElapsed: 1017 * time.Millisecond,
		Completed:     91,
		Drops:         map[string]uint64{"transient": 2, "pool_exhaustion": 1},
	}, time.Unix(100, 0))

	require.NoError(t, repo.Create(&window))
	require.Len(t, mock.Created(), 1)

	stored := mock.Created()[0].(*models.FPSWindow)
	assert.Equal(t, "front", stored.Device)
	assert.Equal(t, int64(1017), stored.ElapsedMS)
	assert.Equal(t, uint64(3), stored.Drops)
}

func TestCreateWindowReturnsDBError(t *testing.T) {
	mock := dbconn.Mock().SetError(errors.New("disk full"))
	repo := repos.WindowRepository{DB: mock}

	err := repo.Create(&models.FPSWindow{})
	assert.EqualError(t, err, "disk full")
	assert.Empty(t, mock.Created())
}

func TestRecentQueriesNewestFirst(t *testing.T) {
	mock := dbconn.Mock().SetResult([]models.FPSWindow{{Device: "front", FPS: 30}})
	repo := repos.WindowRepository{DB: mock}

	windows, err := repo.Recent("front", 5)
	require.NoError(t, err)
	require.Len(t, windows, 1)
	assert.Equal(t, 30.0, windows[0].FPS)

	chain := mock.Chain()
	require.Len(t, chain.Where, 1)
	assert.Equal(t, "device = ?", chain.Where[0].Query)
	assert.Equal(t, []interface{}{"front"}, chain.Where[0].Args)
	assert.Equal(t, "closed_at desc", chain.Order)
	assert.Equal(t, 5, chain.Limit)
}

func TestPruneOlderThanHardDeletes(t *testing.T) {
	mock := dbconn.Mock().SetRowsAffected(4)
	repo := repos.WindowRepository{DB: mock}

	cutoff := time.Unix(500, 0)
	n, err := repo.PruneOlderThan(cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)

	chain := mock.Chain()
	assert.True(t, chain.Unscoped)
	require.Len(t, chain.Where, 1)
	assert.Equal(t, []interface{}{cutoff}, chain.Where[0].Args)
	assert.Len(t, chain.Deleted, 1)
}

func TestWindowRepositoryAgainstSQLite(t *testing.T) {
	t.Setenv("EDGEVIEW_DB", filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, database.Setup())

	db, err := database.Connect()
	require.NoError(t, err)
	defer db.Close()

	repo := repos.WindowRepository{DB: db}
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		w := models.NewFPSWindow("front", stats.Snapshot{FPS: float64(20 + i), Window: int64(i)}, base.Add(time.Duration(i)*time.Hour))
		require.NoError(t, repo.Create(&w))
		assert.NotEmpty(t, w.UUID)
	}
	other := models.NewFPSWindow("back", stats.Snapshot{FPS: 12}, base)
	require.NoError(t, repo.Create(&other))

	recent, err := repo.Recent("front", 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, int64(4), recent[0].Window)
	assert.Equal(t, int64(3), recent[1].Window)

	pruned, err := repo.PruneOlderThan(base.Add(2 * time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(3), pruned)

	remaining, err := repo.Recent("front", 10)
	require.NoError(t, err)
	assert.Len(t, remaining, 3)
}
